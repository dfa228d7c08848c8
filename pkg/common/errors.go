package common

import "errors"

var (
	// ErrPathTooLong marks a path that exceeds the 255-byte USTAR limit or
	// cannot be split at a "/" boundary under the 100/155 rule.
	ErrPathTooLong = errors.New("path exceeds ustar limits")

	// ErrDirNameTooLong marks a directory whose single name component does
	// not fit the 100-byte name field.
	ErrDirNameTooLong = errors.New("directory name exceeds 100 bytes")

	// ErrUnsupportedKind marks a path that is not a regular file, directory,
	// or symlink. Only surfaced under strict filtering.
	ErrUnsupportedKind = errors.New("unsupported file kind")

	// ErrSnapshotCorrupt marks a persisted snapshot that fails its internal
	// consistency check on load.
	ErrSnapshotCorrupt = errors.New("snapshot is corrupt")

	// ErrIntegrity marks a divergence between the disk state at playback time
	// and the promise recorded in the snapshot. Fatal; the stream stops.
	ErrIntegrity = errors.New("integrity violation")

	// ErrInvalidOffset marks a playback start offset beyond the stream end.
	ErrInvalidOffset = errors.New("offset beyond end of stream")
)
