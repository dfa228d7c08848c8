package commands

import (
	"errors"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/beam-cloud/tartape/pkg/common"
)

var (
	verbose  bool
	logLevel string
)

var RootCmd = &cobra.Command{
	Use:           "tartape",
	Short:         "Record a directory tree and stream it as a resumable tar archive",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := common.SetLogLevel(logLevel); err != nil {
			return err
		}
		if verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
		return nil
	},
}

func init() {
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error, disabled)")

	RootCmd.AddCommand(RecordCmd)
	RootCmd.AddCommand(PlayCmd)
	RootCmd.AddCommand(InfoCmd)
	RootCmd.AddCommand(VerifyCmd)
	RootCmd.AddCommand(UploadCmd)
}

// ExitCode maps an error to the process exit code, one per failure class.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, common.ErrPathTooLong):
		return 2
	case errors.Is(err, common.ErrDirNameTooLong):
		return 3
	case errors.Is(err, common.ErrUnsupportedKind):
		return 4
	case errors.Is(err, common.ErrSnapshotCorrupt):
		return 5
	case errors.Is(err, common.ErrIntegrity):
		return 6
	case errors.Is(err, common.ErrInvalidOffset):
		return 7
	default:
		return 1
	}
}
