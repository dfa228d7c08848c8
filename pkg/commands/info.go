package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beam-cloud/tartape/pkg/tape"
)

var infoOpts = struct {
	Root    string
	Entries bool
}{}

var InfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the recorded tape's fingerprint, length, and entry count",
	RunE:  runInfo,
}

func init() {
	InfoCmd.Flags().StringVarP(&infoOpts.Root, "root", "r", ".", "Tape root directory")
	InfoCmd.Flags().BoolVar(&infoOpts.Entries, "entries", false, "List every entry with its offsets")
}

func runInfo(cmd *cobra.Command, args []string) error {
	t, err := tape.Discover(infoOpts.Root)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "tape id:       %s\n", t.TapeID())
	fmt.Fprintf(out, "fingerprint:   %s\n", t.Fingerprint())
	fmt.Fprintf(out, "entries:       %d\n", t.Count())
	fmt.Fprintf(out, "stream length: %d\n", t.StreamLength())

	if infoOpts.Entries {
		for _, e := range t.Entries() {
			fmt.Fprintf(out, "%12d %12d %-7s %s\n", e.StartOffset, e.Size, e.Kind, e.ArcPath)
		}
	}
	return nil
}
