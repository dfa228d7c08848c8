package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/beam-cloud/tartape/pkg/common"
)

// planEntries assigns offsets and block counts the way the recorder does.
func planEntries(entries []*common.Entry) []*common.Entry {
	offset := int64(0)
	for _, e := range entries {
		e.StartOffset = offset
		e.PayloadBlocks = common.PayloadBlockCount(e.Kind, e.Size)
		offset = e.EndOffset()
	}
	return entries
}

func sampleEntries() []*common.Entry {
	return planEntries([]*common.Entry{
		{ArcPath: "a.txt", Kind: common.KindFile, Size: 600, Mode: 0o644, Mtime: 100},
		{ArcPath: "b/", Kind: common.KindDir, Mode: 0o755, Mtime: 100},
		{ArcPath: "b/empty", Kind: common.KindFile, Size: 0, Mode: 0o644, Mtime: 100},
		{ArcPath: "b/link", Kind: common.KindSymlink, LinkTarget: "a.txt", Mode: 0o777, Mtime: 100},
	})
}

func writeSnapshot(t *testing.T, root string, entries []*common.Entry) Fingerprint {
	t.Helper()

	w, err := NewWriter(root)
	require.NoError(t, err)
	defer w.Close()

	w.SetRootMtime(424242)
	for _, e := range entries {
		require.NoError(t, w.Append(e))
	}

	fingerprint, err := w.Commit()
	require.NoError(t, err)
	return fingerprint
}

func snapshotPath(root string) string {
	return filepath.Join(root, common.MetadataDir, common.SnapshotFile)
}

func TestWriterRoundTrip(t *testing.T) {
	root := t.TempDir()
	entries := sampleEntries()
	fingerprint := writeSnapshot(t, root, entries)

	s, err := Open(snapshotPath(root))
	require.NoError(t, err)

	require.Equal(t, fingerprint, s.Fingerprint())
	require.Equal(t, len(entries), s.Count())
	require.Equal(t, int64(424242), s.RootMtime())
	require.NotEqual(t, [16]byte{}, [16]byte(s.TapeID()))

	// 600-byte file spans two payload blocks; the rest are headers only.
	wantLength := int64(512+1024) + 512 + 512 + 512 + common.TerminatorSize
	require.Equal(t, wantLength, s.StreamLength())

	for i, e := range entries {
		require.Equal(t, e.ArcPath, s.Entry(i).ArcPath)
		require.Equal(t, e.StartOffset, s.Entry(i).StartOffset)
	}
}

func TestWriterEmptyTape(t *testing.T) {
	root := t.TempDir()
	writeSnapshot(t, root, nil)

	s, err := Open(snapshotPath(root))
	require.NoError(t, err)
	require.Equal(t, 0, s.Count())
	require.Equal(t, int64(common.TerminatorSize), s.StreamLength())
}

func TestWriterRejectsDisorder(t *testing.T) {
	root := t.TempDir()
	w, err := NewWriter(root)
	require.NoError(t, err)
	defer w.Close()

	entries := planEntries([]*common.Entry{
		{ArcPath: "b.txt", Kind: common.KindFile, Size: 1, Mode: 0o644, Mtime: 1},
		{ArcPath: "a.txt", Kind: common.KindFile, Size: 1, Mode: 0o644, Mtime: 1},
	})

	require.NoError(t, w.Append(entries[0]))
	require.Error(t, w.Append(entries[1]))
}

func TestWriterRejectsOffsetGap(t *testing.T) {
	root := t.TempDir()
	w, err := NewWriter(root)
	require.NoError(t, err)
	defer w.Close()

	first := &common.Entry{ArcPath: "a", Kind: common.KindFile, Size: 1, Mode: 0o644, Mtime: 1, StartOffset: 0, PayloadBlocks: 1}
	require.NoError(t, w.Append(first))

	gap := &common.Entry{ArcPath: "b", Kind: common.KindFile, Size: 1, Mode: 0o644, Mtime: 1, StartOffset: 9999, PayloadBlocks: 1}
	require.Error(t, w.Append(gap))
}

func TestWriterLockExcludesConcurrentRecorders(t *testing.T) {
	root := t.TempDir()

	w, err := NewWriter(root)
	require.NoError(t, err)
	defer w.Close()

	_, err = NewWriter(root)
	require.Error(t, err)
}

func TestWriterCommitIsAtomic(t *testing.T) {
	root := t.TempDir()

	w, err := NewWriter(root)
	require.NoError(t, err)
	defer w.Close()

	_, err = os.Stat(snapshotPath(root))
	require.True(t, os.IsNotExist(err))

	_, err = w.Commit()
	require.NoError(t, err)

	_, err = os.Stat(snapshotPath(root))
	require.NoError(t, err)
}

func TestOpenDetectsCorruption(t *testing.T) {
	root := t.TempDir()
	writeSnapshot(t, root, sampleEntries())
	path := snapshotPath(root)

	pristine, err := os.ReadFile(path)
	require.NoError(t, err)

	corruptions := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{
			name:   "bad magic",
			mutate: func(b []byte) []byte { b[0] ^= 0xFF; return b },
		},
		{
			name:   "bad version",
			mutate: func(b []byte) []byte { b[8] = 0x7F; return b },
		},
		{
			name:   "truncated index",
			mutate: func(b []byte) []byte { return b[:len(b)-10] },
		},
		{
			name:   "flipped fingerprint",
			mutate: func(b []byte) []byte { b[33] ^= 0x01; return b },
		},
	}

	for _, tc := range corruptions {
		t.Run(tc.name, func(t *testing.T) {
			corrupt := tc.mutate(append([]byte(nil), pristine...))
			require.NoError(t, os.WriteFile(path, corrupt, 0644))

			_, err := Open(path)
			require.ErrorIs(t, err, common.ErrSnapshotCorrupt)
		})
	}
}

func TestOffsetOf(t *testing.T) {
	root := t.TempDir()
	entries := sampleEntries()
	writeSnapshot(t, root, entries)

	s, err := Open(snapshotPath(root))
	require.NoError(t, err)

	for _, e := range entries {
		offset, err := s.OffsetOf(e.ArcPath)
		require.NoError(t, err)
		require.Equal(t, e.StartOffset, offset)
	}

	_, err = s.OffsetOf("missing")
	require.Error(t, err)
}

func TestLocate(t *testing.T) {
	root := t.TempDir()
	writeSnapshot(t, root, sampleEntries())

	s, err := Open(snapshotPath(root))
	require.NoError(t, err)

	// a.txt: header [0,512), body [512,1112), padding [1112,1536)
	// b/: header [1536,2048)
	// b/empty: header [2048,2560)
	// b/link: header [2560,3072)
	// terminator: [3072,4096)
	tests := []struct {
		offset     int64
		wantIndex  int
		wantRegion common.Region
		wantLocal  int64
	}{
		{0, 0, common.RegionHeader, 0},
		{511, 0, common.RegionHeader, 511},
		{512, 0, common.RegionBody, 0},
		{1111, 0, common.RegionBody, 599},
		{1112, 0, common.RegionPadding, 0},
		{1535, 0, common.RegionPadding, 423},
		{1536, 1, common.RegionHeader, 0},
		{2048, 2, common.RegionHeader, 0},
		{2559, 2, common.RegionHeader, 511},
		{2560, 3, common.RegionHeader, 0},
		{3072, 4, common.RegionTerminator, 0},
		{4095, 4, common.RegionTerminator, 1023},
	}

	for _, tc := range tests {
		index, region, local, err := s.Locate(tc.offset)
		require.NoError(t, err, "offset %d", tc.offset)
		require.Equal(t, tc.wantIndex, index, "offset %d", tc.offset)
		require.Equal(t, tc.wantRegion, region, "offset %d", tc.offset)
		require.Equal(t, tc.wantLocal, local, "offset %d", tc.offset)
	}

	_, _, _, err = s.Locate(-1)
	require.ErrorIs(t, err, common.ErrInvalidOffset)
	_, _, _, err = s.Locate(s.StreamLength())
	require.ErrorIs(t, err, common.ErrInvalidOffset)
}

func TestFingerprintSensitivity(t *testing.T) {
	base := sampleEntries()
	require.Equal(t, ComputeFingerprint(base), ComputeFingerprint(sampleEntries()))

	changed := sampleEntries()
	changed[0].Mtime++
	require.NotEqual(t, ComputeFingerprint(base), ComputeFingerprint(changed))

	renamed := sampleEntries()
	renamed[3].LinkTarget = "b/empty"
	require.NotEqual(t, ComputeFingerprint(base), ComputeFingerprint(renamed))
}
