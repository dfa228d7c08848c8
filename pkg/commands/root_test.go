package commands

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/beam-cloud/tartape/pkg/common"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{errors.New("anything else"), 1},
		{fmt.Errorf("wrapped: %w", common.ErrPathTooLong), 2},
		{common.ErrDirNameTooLong, 3},
		{common.ErrUnsupportedKind, 4},
		{common.ErrSnapshotCorrupt, 5},
		{fmt.Errorf("%w: hello.txt mtime changed", common.ErrIntegrity), 6},
		{common.ErrInvalidOffset, 7},
	}

	for _, tc := range tests {
		require.Equal(t, tc.want, ExitCode(tc.err))
	}
}
