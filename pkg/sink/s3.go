package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/beam-cloud/tartape/pkg/tape"
)

type S3SinkOpts struct {
	Bucket         string
	Key            string
	Region         string
	Endpoint       string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool

	// PartSize is the multipart upload part size in bytes. Zero uses the
	// SDK default.
	PartSize int64

	// ProgressChan receives delivered-percentage updates when non-nil.
	ProgressChan chan<- int
}

// S3Sink streams a playback into an S3 object via a multipart upload. S3
// objects cannot be appended to, so an interrupted delivery restarts from
// offset zero rather than resuming.
type S3Sink struct {
	svc  *s3.Client
	opts S3SinkOpts
}

func NewS3Sink(ctx context.Context, opts S3SinkOpts) (*S3Sink, error) {
	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")

	if opts.AccessKey != "" && opts.SecretKey != "" {
		accessKey = opts.AccessKey
		secretKey = opts.SecretKey
	}

	cfg, err := getAWSConfig(ctx, accessKey, secretKey, opts.Region, opts.Endpoint)
	if err != nil {
		return nil, err
	}

	svc := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	// Check to see if we have access to the bucket
	_, err = svc.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(opts.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("cannot access bucket <%s>: %v", opts.Bucket, err)
	}

	return &S3Sink{svc: svc, opts: opts}, nil
}

func getAWSConfig(ctx context.Context, accessKey string, secretKey string, region string, endpoint string) (aws.Config, error) {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}

	if endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{URL: endpoint}, nil
		})
		loadOpts = append(loadOpts, config.WithEndpointResolverWithOptions(resolver))
	}

	if accessKey != "" && secretKey != "" {
		provider := credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")
		loadOpts = append(loadOpts, config.WithCredentialsProvider(provider))
	}

	return config.LoadDefaultConfig(ctx, loadOpts...)
}

// Offset reports how many bytes of the object already exist. A multipart
// upload is all-or-nothing, so this is either the full stream length of a
// previous successful delivery or zero.
func (s *S3Sink) Offset(ctx context.Context) (int64, error) {
	head, err := s.svc.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(s.opts.Key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return 0, nil
		}
		return 0, err
	}
	return aws.ToInt64(head.ContentLength), nil
}

// progressReader reports delivery progress as a percentage of the known
// stream length.
type progressReader struct {
	inner io.Reader
	size  int64
	read  int64
	ch    chan<- int
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.inner.Read(p)
	if n > 0 {
		pr.read += int64(n)
		if pr.ch != nil {
			pr.ch <- int(float64(pr.read) / float64(pr.size) * 100)
		}
	}
	return n, err
}

// Write uploads the stream's bytes as one S3 object. The stream must have
// been opened at offset zero; the upload body is produced on the fly
// through a pipe, so nothing is spooled to disk.
func (s *S3Sink) Write(ctx context.Context, stream *tape.Stream) (int64, error) {
	uploader := manager.NewUploader(s.svc, func(u *manager.Uploader) {
		if s.opts.PartSize > 0 {
			u.PartSize = s.opts.PartSize
		}
	})

	pr, pw := io.Pipe()

	var written int64
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := Drain(ctx, stream, pw)
		written = n
		pw.CloseWithError(err)
		return err
	})

	g.Go(func() error {
		var body io.Reader = pr
		if s.opts.ProgressChan != nil {
			body = &progressReader{inner: pr, size: stream.Length(), ch: s.opts.ProgressChan}
		}

		_, err := uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.opts.Bucket),
			Key:    aws.String(s.opts.Key),
			Body:   body,
		})
		if err != nil {
			pr.CloseWithError(err)
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return written, err
	}

	log.Info().Msgf("uploaded %d bytes to s3://%s/%s", written, s.opts.Bucket, s.opts.Key)
	return written, nil
}
