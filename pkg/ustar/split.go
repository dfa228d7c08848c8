package ustar

import (
	"fmt"
	"strings"

	"github.com/beam-cloud/tartape/pkg/common"
)

const (
	nameFieldLen   = 100
	prefixFieldLen = 155
	maxPathLen     = nameFieldLen + prefixFieldLen
	maxLinkLen     = 100
)

// SplitPath splits an archive path into the (name, prefix) pair stored in a
// USTAR header. The rightmost "/" is chosen such that the suffix fits the
// 100-byte name field and the prefix fits the 155-byte prefix field. A
// trailing "/" on directory paths is never used as a split point, so the
// final name component always lands in the name field.
func SplitPath(arcPath string) (name, prefix string, err error) {
	if len(arcPath) <= nameFieldLen {
		return arcPath, "", nil
	}

	best := -1
	for i := 0; i < len(arcPath)-1; i++ {
		if arcPath[i] != '/' {
			continue
		}
		if len(arcPath)-i-1 <= nameFieldLen && i <= prefixFieldLen {
			best = i
		}
	}
	if best < 0 {
		return "", "", fmt.Errorf("%w: cannot split %q under the 100/155 rule", common.ErrPathTooLong, arcPath)
	}

	return arcPath[best+1:], arcPath[:best], nil
}

// ValidateArcPath enforces the recording-time path constraints for an entry.
func ValidateArcPath(arcPath string, kind common.EntryKind) error {
	if len(arcPath) > maxPathLen {
		return fmt.Errorf("%w: %q is %d bytes (max %d)", common.ErrPathTooLong, arcPath, len(arcPath), maxPathLen)
	}
	if strings.ContainsRune(arcPath, 0) {
		return fmt.Errorf("%w: %q contains NUL", common.ErrPathTooLong, arcPath)
	}

	if kind == common.KindDir {
		// The final component, trailing slash included, must fit the name
		// field on its own; directories cannot spill into a second header.
		component := arcPath
		if i := strings.LastIndex(strings.TrimSuffix(arcPath, "/"), "/"); i >= 0 {
			component = arcPath[i+1:]
		}
		if len(component) > nameFieldLen {
			return fmt.Errorf("%w: component %q is %d bytes", common.ErrDirNameTooLong, component, len(component))
		}
	}

	if _, _, err := SplitPath(arcPath); err != nil {
		return err
	}
	return nil
}

// ValidateLinkTarget enforces the 100-byte linkname field limit.
func ValidateLinkTarget(target string) error {
	if len(target) > maxLinkLen {
		return fmt.Errorf("%w: link target %q is %d bytes (max %d)", common.ErrPathTooLong, target, len(target), maxLinkLen)
	}
	return nil
}
