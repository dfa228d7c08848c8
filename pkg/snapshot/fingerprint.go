package snapshot

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"

	"github.com/beam-cloud/tartape/pkg/common"
)

// Fingerprint is the 128-bit content identifier of a snapshot. Two snapshots
// with equal fingerprints produce identical streams.
type Fingerprint [md5.Size]byte

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// FingerprintFromString parses the hex form produced by String.
func FingerprintFromString(s string) (Fingerprint, error) {
	var f Fingerprint
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != md5.Size {
		return f, fmt.Errorf("invalid fingerprint %q", s)
	}
	copy(f[:], b)
	return f, nil
}

var kindWire = map[common.EntryKind]byte{
	common.KindFile:    0,
	common.KindDir:     1,
	common.KindSymlink: 2,
}

// ComputeFingerprint digests (arc_path, kind, size, mode, mtime, link_target)
// for every entry in canonical order. Byte strings are length-prefixed and
// integers are little-endian, so the value is independent of the backing
// store and stable across machines.
func ComputeFingerprint(entries []*common.Entry) Fingerprint {
	h := md5.New()
	for _, e := range entries {
		hashEntry(h, e.ArcPath, kindWire[e.Kind], e.Size, e.Mode, e.Mtime, e.LinkTarget)
	}
	var f Fingerprint
	copy(f[:], h.Sum(nil))
	return f
}

func hashEntry(h hash.Hash, arcPath string, kind byte, size int64, mode uint32, mtime int64, linkTarget string) {
	writeBytes(h, []byte(arcPath))
	h.Write([]byte{kind})
	writeUint64(h, uint64(size))
	writeUint32(h, mode)
	writeUint64(h, uint64(mtime))
	writeBytes(h, []byte(linkTarget))
}

func writeBytes(h hash.Hash, b []byte) {
	writeUint32(h, uint32(len(b)))
	h.Write(b)
}

func writeUint32(h hash.Hash, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	h.Write(buf[:])
}

func writeUint64(h hash.Hash, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	h.Write(buf[:])
}
