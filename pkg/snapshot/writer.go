package snapshot

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/beam-cloud/tartape/pkg/common"
)

// Writer records entries into a new snapshot. Appends accumulate in memory;
// Commit serializes everything and makes the snapshot visible atomically via
// a temp-file rename. A flock in the metadata directory keeps two recorders
// from racing on the same tape root.
type Writer struct {
	dir       string
	lock      *flock.Flock
	entries   []*common.Entry
	rootMtime int64
	committed bool
}

func NewWriter(root string) (*Writer, error) {
	dir := filepath.Join(root, common.MetadataDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	lock := flock.New(filepath.Join(dir, common.LockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, fmt.Errorf("another recording is in progress for %s", root)
	}

	return &Writer{dir: dir, lock: lock}, nil
}

// SetRootMtime records the tape root's mtime at T0. It is stored for
// reference only and never takes part in integrity checks.
func (w *Writer) SetRootMtime(mtime int64) {
	w.rootMtime = mtime
}

// Append adds a fully planned entry. Entries must arrive in canonical order
// with their offsets already assigned.
func (w *Writer) Append(e *common.Entry) error {
	if w.committed {
		return fmt.Errorf("snapshot already committed")
	}
	if n := len(w.entries); n > 0 {
		prev := w.entries[n-1]
		if e.ArcPath <= prev.ArcPath {
			return fmt.Errorf("entry %q out of order after %q", e.ArcPath, prev.ArcPath)
		}
		if e.StartOffset != prev.EndOffset() {
			return fmt.Errorf("entry %q starts at %d, expected %d", e.ArcPath, e.StartOffset, prev.EndOffset())
		}
	} else if e.StartOffset != 0 {
		return fmt.Errorf("first entry %q starts at %d, expected 0", e.ArcPath, e.StartOffset)
	}
	w.entries = append(w.entries, e)
	return nil
}

// Commit persists the snapshot and returns its fingerprint. After Commit the
// snapshot on disk is immutable for the lifetime of the tape.
func (w *Writer) Commit() (Fingerprint, error) {
	if w.committed {
		return Fingerprint{}, fmt.Errorf("snapshot already committed")
	}

	streamLength := int64(common.TerminatorSize)
	if n := len(w.entries); n > 0 {
		streamLength = w.entries[n-1].EndOffset() + common.TerminatorSize
	}

	fingerprint := ComputeFingerprint(w.entries)

	var index bytes.Buffer
	if err := gob.NewEncoder(&index).Encode(w.entries); err != nil {
		return Fingerprint{}, err
	}

	header := snapshotHeader{
		FormatVersion: SnapshotFormatVersion,
		EntryCount:    int64(len(w.entries)),
		StreamLength:  streamLength,
		RootMtime:     w.rootMtime,
		Fingerprint:   fingerprint,
		TapeID:        uuid.New(),
		IndexLength:   int64(index.Len()),
	}
	copy(header.StartBytes[:], snapshotStartBytes)

	finalPath := filepath.Join(w.dir, common.SnapshotFile)
	tmpPath := finalPath + ".tmp"

	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return Fingerprint{}, err
	}
	defer os.Remove(tmpPath)

	if err := binary.Write(tmpFile, binary.LittleEndian, &header); err != nil {
		tmpFile.Close()
		return Fingerprint{}, err
	}
	if _, err := tmpFile.Write(index.Bytes()); err != nil {
		tmpFile.Close()
		return Fingerprint{}, err
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return Fingerprint{}, err
	}
	if err := tmpFile.Close(); err != nil {
		return Fingerprint{}, err
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return Fingerprint{}, err
	}

	w.committed = true
	return fingerprint, nil
}

// Close releases the recording lock. Safe to call after Commit or on an
// abandoned recording.
func (w *Writer) Close() error {
	if w.lock == nil {
		return nil
	}
	err := w.lock.Unlock()
	w.lock = nil
	return err
}
