package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/beam-cloud/tartape/pkg/common"
	"github.com/beam-cloud/tartape/pkg/sink"
	"github.com/beam-cloud/tartape/pkg/tape"
)

var uploadOpts = struct {
	Root           string
	Bucket         string
	Key            string
	Region         string
	Endpoint       string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
	PartSize       int64
}{}

var UploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Stream the recorded tape into an S3 object",
	RunE:  runUpload,
}

func init() {
	UploadCmd.Flags().StringVarP(&uploadOpts.Root, "root", "r", ".", "Tape root directory")
	UploadCmd.Flags().StringVar(&uploadOpts.Bucket, "bucket", "", "S3 bucket")
	UploadCmd.Flags().StringVar(&uploadOpts.Key, "key", "", "S3 object key")
	UploadCmd.Flags().StringVar(&uploadOpts.Region, "region", "", "S3 region")
	UploadCmd.Flags().StringVar(&uploadOpts.Endpoint, "endpoint", "", "S3 endpoint override")
	UploadCmd.Flags().StringVar(&uploadOpts.AccessKey, "access-key", "", "S3 access key (default: AWS_ACCESS_KEY_ID)")
	UploadCmd.Flags().StringVar(&uploadOpts.SecretKey, "secret-key", "", "S3 secret key (default: AWS_SECRET_ACCESS_KEY)")
	UploadCmd.Flags().BoolVar(&uploadOpts.ForcePathStyle, "force-path-style", false, "Use path-style S3 addressing")
	UploadCmd.Flags().Int64Var(&uploadOpts.PartSize, "part-size", 0, "Multipart upload part size in bytes")
	UploadCmd.MarkFlagRequired("bucket")
	UploadCmd.MarkFlagRequired("key")
}

func runUpload(cmd *cobra.Command, args []string) error {
	t, err := tape.Discover(uploadOpts.Root)
	if err != nil {
		return err
	}

	dest, err := sink.NewS3Sink(cmd.Context(), sink.S3SinkOpts{
		Bucket:         uploadOpts.Bucket,
		Key:            uploadOpts.Key,
		Region:         uploadOpts.Region,
		Endpoint:       uploadOpts.Endpoint,
		AccessKey:      uploadOpts.AccessKey,
		SecretKey:      uploadOpts.SecretKey,
		ForcePathStyle: uploadOpts.ForcePathStyle,
		PartSize:       uploadOpts.PartSize,
	})
	if err != nil {
		return err
	}

	offset, err := dest.Offset(cmd.Context())
	if err != nil {
		return err
	}
	if offset == t.StreamLength() {
		log.Info().Msgf("s3://%s/%s already holds the complete tape (%d bytes)", uploadOpts.Bucket, uploadOpts.Key, offset)
		return nil
	}

	stream, err := tape.NewPlayer(t, common.Options{}).Play(0)
	if err != nil {
		return err
	}
	defer stream.Close()

	_, err = dest.Write(cmd.Context(), stream)
	return err
}
