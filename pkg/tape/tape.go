package tape

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/beam-cloud/tartape/pkg/common"
	"github.com/beam-cloud/tartape/pkg/snapshot"
)

// Tape is a discovered tape: a source root plus its committed snapshot.
// All metadata queries are answered from the snapshot alone; the source
// tree is only touched again during playback.
type Tape struct {
	root string
	snap *snapshot.Snapshot
}

// Discover opens the tape recorded at root by loading the snapshot under
// <root>/.tartape/.
func Discover(root string) (*Tape, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	snap, err := snapshot.Open(filepath.Join(absRoot, common.MetadataDir, common.SnapshotFile))
	if err != nil {
		return nil, err
	}

	return &Tape{root: absRoot, snap: snap}, nil
}

func (t *Tape) Root() string { return t.root }

func (t *Tape) Fingerprint() snapshot.Fingerprint { return t.snap.Fingerprint() }

func (t *Tape) TapeID() uuid.UUID { return t.snap.TapeID() }

// StreamLength is the exact byte length of the full stream, terminator
// included. Playback offsets live in [0, StreamLength].
func (t *Tape) StreamLength() int64 { return t.snap.StreamLength() }

func (t *Tape) Count() int { return t.snap.Count() }

func (t *Tape) Entry(i int) *common.Entry { return t.snap.Entry(i) }

// Entries returns all entries in canonical order.
func (t *Tape) Entries() []*common.Entry { return t.snap.From(0) }

// OffsetOf returns the header start offset of the entry with the given
// archive path.
func (t *Tape) OffsetOf(arcPath string) (int64, error) {
	return t.snap.OffsetOf(arcPath)
}

// Locate maps an absolute stream offset to its entry index, region, and
// region-local offset.
func (t *Tape) Locate(offset int64) (int, common.Region, int64, error) {
	return t.snap.Locate(offset)
}

// VerifyCurrent checks every snapshot entry against the live tree and
// returns the first divergence as an ErrIntegrity. A path that can no
// longer be lstat'ed (for example, a missing file) returns the raw lstat
// error instead. A nil return means a
// playback started now would not fail an integrity check at its outset.
func (t *Tape) VerifyCurrent() error {
	for _, e := range t.snap.From(0) {
		if err := verifyEntryAgainstDisk(t.root, e); err != nil {
			return err
		}
	}
	return nil
}

// sourcePath maps an archive path back to the absolute filesystem path it
// was recorded from.
func sourcePath(root, arcPath string) string {
	return filepath.Join(root, filepath.FromSlash(strings.TrimSuffix(arcPath, "/")))
}

// verifyEntryAgainstDisk re-examines one entry's source path and reports
// whether the attributes captured at recording time still hold.
func verifyEntryAgainstDisk(root string, e *common.Entry) error {
	path := sourcePath(root, e.ArcPath)

	fi, err := os.Lstat(path)
	if err != nil {
		return err
	}

	switch e.Kind {
	case common.KindDir:
		if !fi.IsDir() {
			return integrityError(e, "no longer a directory")
		}
		if fi.ModTime().Unix() != e.Mtime {
			return integrityError(e, "mtime changed")
		}
	case common.KindSymlink:
		if fi.Mode()&os.ModeSymlink == 0 {
			return integrityError(e, "no longer a symlink")
		}
		target, err := os.Readlink(path)
		if err != nil {
			return err
		}
		if target != e.LinkTarget {
			return integrityError(e, "symlink target changed")
		}
	default:
		if !fi.Mode().IsRegular() {
			return integrityError(e, "no longer a regular file")
		}
		if fi.Size() != e.Size {
			return integrityError(e, "size changed")
		}
		if fi.ModTime().Unix() != e.Mtime {
			return integrityError(e, "mtime changed")
		}
	}
	return nil
}
