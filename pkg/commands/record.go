package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beam-cloud/tartape/pkg/tape"
)

var recordOpts = struct {
	Root    string
	Exclude []string
	Strict  bool
}{}

var RecordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record the tape root's inventory and commit a snapshot",
	RunE:  runRecord,
}

func init() {
	RecordCmd.Flags().StringVarP(&recordOpts.Root, "root", "r", ".", "Tape root directory")
	RecordCmd.Flags().StringSliceVarP(&recordOpts.Exclude, "exclude", "e", nil, "Additional gitignore-style exclude patterns")
	RecordCmd.Flags().BoolVar(&recordOpts.Strict, "strict", false, "Fail on sockets, pipes, and devices instead of skipping them")
}

func runRecord(cmd *cobra.Command, args []string) error {
	recorder, err := tape.NewRecorder(recordOpts.Root, tape.RecordOptions{
		Exclude:           recordOpts.Exclude,
		StrictUnsupported: recordOpts.Strict,
	})
	if err != nil {
		return err
	}

	fingerprint, err := recorder.Commit()
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), fingerprint)
	return nil
}
