// Package sink delivers playback bytes to their destination: a local file
// or an S3 object. Sinks consume events; they never interpret the stream.
package sink

import (
	"context"
	"io"

	"github.com/beam-cloud/tartape/pkg/tape"
)

// Sink consumes a playback stream to completion and reports how many bytes
// it delivered.
type Sink interface {
	Write(ctx context.Context, stream *tape.Stream) (int64, error)
}

// Drain pumps a stream's data events into w until the stream completes.
// It returns the byte count delivered by this call, which on error, added
// to the offset the stream was opened at, gives the exact stream offset to
// resume from.
func Drain(ctx context.Context, stream *tape.Stream, w io.Writer) (int64, error) {
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		ev, err := stream.Next()
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}

		if data, ok := ev.(tape.FileData); ok {
			n, err := w.Write(data.Bytes)
			written += int64(n)
			if err != nil {
				return written, err
			}
		}
	}
}
