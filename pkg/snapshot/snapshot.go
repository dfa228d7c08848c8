// Package snapshot persists and serves the tape inventory: the ordered,
// offset-planned entry list recorded at T0, its fingerprint, and the
// byte-offset index used for resumption.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/google/uuid"

	"github.com/beam-cloud/tartape/pkg/common"
)

// Snapshot is a committed, read-only tape inventory.
type Snapshot struct {
	entries      []*common.Entry
	fingerprint  Fingerprint
	tapeID       uuid.UUID
	rootMtime    int64
	streamLength int64
}

// Open loads a snapshot and verifies its internal consistency: magic and
// version, entry count, offset arithmetic, canonical ordering, and the
// fingerprint. Any mismatch surfaces as ErrSnapshotCorrupt.
func Open(path string) (*Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	headerBytes := make([]byte, snapshotHeaderLength)
	if _, err := io.ReadFull(file, headerBytes); err != nil {
		return nil, fmt.Errorf("%w: truncated header", common.ErrSnapshotCorrupt)
	}

	var header snapshotHeader
	if err := binary.Read(bytes.NewReader(headerBytes), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: unreadable header", common.ErrSnapshotCorrupt)
	}
	if !bytes.Equal(header.StartBytes[:], snapshotStartBytes) {
		return nil, fmt.Errorf("%w: bad magic", common.ErrSnapshotCorrupt)
	}
	if header.FormatVersion != SnapshotFormatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", common.ErrSnapshotCorrupt, header.FormatVersion)
	}

	indexBytes := make([]byte, header.IndexLength)
	if _, err := io.ReadFull(file, indexBytes); err != nil {
		return nil, fmt.Errorf("%w: truncated index", common.ErrSnapshotCorrupt)
	}

	var entries []*common.Entry
	if err := gob.NewDecoder(bytes.NewReader(indexBytes)).Decode(&entries); err != nil {
		return nil, fmt.Errorf("%w: undecodable index", common.ErrSnapshotCorrupt)
	}
	if int64(len(entries)) != header.EntryCount {
		return nil, fmt.Errorf("%w: entry count mismatch", common.ErrSnapshotCorrupt)
	}

	s := &Snapshot{
		entries:      entries,
		fingerprint:  header.Fingerprint,
		tapeID:       header.TapeID,
		rootMtime:    header.RootMtime,
		streamLength: header.StreamLength,
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Snapshot) validate() error {
	expectedOffset := int64(0)
	for i, e := range s.entries {
		if e.StartOffset != expectedOffset {
			return fmt.Errorf("%w: entry %d offset %d, expected %d", common.ErrSnapshotCorrupt, i, e.StartOffset, expectedOffset)
		}
		if e.PayloadBlocks != common.PayloadBlockCount(e.Kind, e.Size) {
			return fmt.Errorf("%w: entry %d payload block count", common.ErrSnapshotCorrupt, i)
		}
		if i > 0 && e.ArcPath <= s.entries[i-1].ArcPath {
			return fmt.Errorf("%w: entries out of order at %d", common.ErrSnapshotCorrupt, i)
		}
		expectedOffset = e.EndOffset()
	}
	if s.streamLength != expectedOffset+common.TerminatorSize {
		return fmt.Errorf("%w: stream length mismatch", common.ErrSnapshotCorrupt)
	}
	if ComputeFingerprint(s.entries) != s.fingerprint {
		return fmt.Errorf("%w: fingerprint mismatch", common.ErrSnapshotCorrupt)
	}
	return nil
}

func (s *Snapshot) Count() int { return len(s.entries) }

func (s *Snapshot) Entry(i int) *common.Entry { return s.entries[i] }

// From returns the entries at index i and beyond, in canonical order.
func (s *Snapshot) From(i int) []*common.Entry { return s.entries[i:] }

func (s *Snapshot) Fingerprint() Fingerprint { return s.fingerprint }

func (s *Snapshot) TapeID() uuid.UUID { return s.tapeID }

// RootMtime is the tape root's mtime at T0. Informational only: the engine
// writes its own metadata under the root, so the root is allowed to change.
func (s *Snapshot) RootMtime() int64 { return s.rootMtime }

// StreamLength is the total byte length of the stream, terminator included.
func (s *Snapshot) StreamLength() int64 { return s.streamLength }

// OffsetOf returns the start offset of the entry with the given archive path.
func (s *Snapshot) OffsetOf(arcPath string) (int64, error) {
	i := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].ArcPath >= arcPath
	})
	if i < len(s.entries) && s.entries[i].ArcPath == arcPath {
		return s.entries[i].StartOffset, nil
	}
	return 0, fmt.Errorf("no entry %q in snapshot", arcPath)
}

// Locate maps an absolute stream offset to the entry index it falls into,
// the region within that entry, and the offset local to that region. Offsets
// inside the trailing terminator return index Count(). The stream end offset
// itself is rejected; callers treat it as an immediately complete playback.
func (s *Snapshot) Locate(offset int64) (index int, region common.Region, local int64, err error) {
	if offset < 0 || offset >= s.streamLength {
		return 0, 0, 0, fmt.Errorf("%w: %d not in [0, %d)", common.ErrInvalidOffset, offset, s.streamLength)
	}

	terminatorStart := s.streamLength - common.TerminatorSize
	if offset >= terminatorStart {
		return len(s.entries), common.RegionTerminator, offset - terminatorStart, nil
	}

	// Rightmost entry whose start offset is at or before the target.
	i := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].StartOffset > offset
	}) - 1
	e := s.entries[i]

	local = offset - e.StartOffset
	switch {
	case local < common.BlockSize:
		return i, common.RegionHeader, local, nil
	case local-common.BlockSize < e.Size && e.Kind == common.KindFile:
		return i, common.RegionBody, local - common.BlockSize, nil
	default:
		return i, common.RegionPadding, local - common.BlockSize - e.Size, nil
	}
}
