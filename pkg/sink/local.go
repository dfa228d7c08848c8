package sink

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/beam-cloud/tartape/pkg/tape"
)

// LocalSink appends playback bytes to a file on disk. Because it always
// appends, an interrupted delivery is resumed by playing the tape from the
// sink's current Offset.
type LocalSink struct {
	path string
}

func NewLocalSink(path string) *LocalSink {
	return &LocalSink{path: path}
}

// Offset returns the number of bytes already delivered to the file. A
// missing file counts as zero.
func (s *LocalSink) Offset() (int64, error) {
	fi, err := os.Stat(s.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (s *LocalSink) Write(ctx context.Context, stream *tape.Stream) (int64, error) {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	written, err := Drain(ctx, stream, f)
	if err != nil {
		return written, err
	}
	if err := f.Sync(); err != nil {
		return written, err
	}

	log.Info().Msgf("wrote %d bytes to %s", written, s.path)
	return written, nil
}
