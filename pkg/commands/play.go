package commands

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/beam-cloud/tartape/pkg/common"
	"github.com/beam-cloud/tartape/pkg/sink"
	"github.com/beam-cloud/tartape/pkg/tape"
)

var playOpts = struct {
	Root      string
	Output    string
	Offset    int64
	ChunkSize int
}{}

var PlayCmd = &cobra.Command{
	Use:   "play",
	Short: "Play the recorded tape as a tar stream",
	Long: `Play streams the recorded tape into a file or to stdout. When writing
to a file, an interrupted playback is resumed by running play again: the
stream picks up at the file's current size.`,
	RunE: runPlay,
}

func init() {
	PlayCmd.Flags().StringVarP(&playOpts.Root, "root", "r", ".", "Tape root directory")
	PlayCmd.Flags().StringVarP(&playOpts.Output, "output", "o", "-", "Output tar file, or - for stdout")
	PlayCmd.Flags().Int64Var(&playOpts.Offset, "offset", -1, "Stream offset to start from (default: resume automatically)")
	PlayCmd.Flags().IntVar(&playOpts.ChunkSize, "chunk-size", common.DefaultChunkSize, "Read size for file bodies")
}

func runPlay(cmd *cobra.Command, args []string) error {
	t, err := tape.Discover(playOpts.Root)
	if err != nil {
		return err
	}

	player := tape.NewPlayer(t, common.Options{ChunkSize: playOpts.ChunkSize})

	if playOpts.Output == "-" {
		offset := playOpts.Offset
		if offset < 0 {
			offset = 0
		}
		stream, err := player.Play(offset)
		if err != nil {
			return err
		}
		defer stream.Close()

		_, err = sink.Drain(cmd.Context(), stream, os.Stdout)
		return err
	}

	dest := sink.NewLocalSink(playOpts.Output)
	offset := playOpts.Offset
	if offset < 0 {
		if offset, err = dest.Offset(); err != nil {
			return err
		}
	}
	if offset > 0 {
		log.Info().Msgf("resuming playback at offset %d", offset)
	}

	stream, err := player.Play(offset)
	if err != nil {
		return err
	}
	defer stream.Close()

	written, err := dest.Write(cmd.Context(), stream)
	if err != nil {
		return err
	}

	log.Info().Msgf("playback complete: %d bytes this run, %d total", written, offset+written)
	return nil
}
