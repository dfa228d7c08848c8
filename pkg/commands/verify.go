package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/beam-cloud/tartape/pkg/snapshot"
	"github.com/beam-cloud/tartape/pkg/tape"
)

var verifyOpts = struct {
	Root   string
	Expect string
}{}

var VerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that the tree still matches the recorded snapshot",
	RunE:  runVerify,
}

func init() {
	VerifyCmd.Flags().StringVarP(&verifyOpts.Root, "root", "r", ".", "Tape root directory")
	VerifyCmd.Flags().StringVar(&verifyOpts.Expect, "expect", "", "Expected snapshot fingerprint (hex)")
}

func runVerify(cmd *cobra.Command, args []string) error {
	t, err := tape.Discover(verifyOpts.Root)
	if err != nil {
		return err
	}

	if verifyOpts.Expect != "" {
		expected, err := snapshot.FingerprintFromString(verifyOpts.Expect)
		if err != nil {
			return err
		}
		if expected != t.Fingerprint() {
			return fmt.Errorf("fingerprint mismatch: snapshot has %s, expected %s", t.Fingerprint(), expected)
		}
	}

	if err := t.VerifyCurrent(); err != nil {
		return err
	}

	log.Info().Msgf("tape %s verified: %d entries unchanged", t.Fingerprint(), t.Count())
	return nil
}
