// Package ustar encodes tape entries into POSIX.1-1988 USTAR header blocks.
//
// The standard library's archive/tar is deliberately not used here: it emits
// GNU LongLink or PAX records when long paths and large files mix, which
// breaks the constant-512-byte-header offset arithmetic the tape depends on.
// This encoder always produces exactly one block per entry, switching the
// size field to the GNU base-256 form for payloads of 8 GiB and above.
package ustar

import (
	"fmt"
	"strconv"

	"github.com/beam-cloud/tartape/pkg/common"
)

// Field layout of a 512-byte USTAR header block.
const (
	offName     = 0
	offMode     = 100
	offUID      = 108
	offGID      = 116
	offSize     = 124
	offMtime    = 136
	offChecksum = 148
	offTypeflag = 156
	offLinkname = 157
	offMagic    = 257
	offVersion  = 263
	offUname    = 265
	offGname    = 297
	offPrefix   = 345

	lenUname = 32
	lenGname = 32
)

// binarySizeThreshold is the first size that no longer fits in 11 octal
// digits. From here on the GNU base-256 encoding is used.
const binarySizeThreshold = int64(1) << 33

const (
	typeflagFile    = '0'
	typeflagSymlink = '2'
	typeflagDir     = '5'
)

// Identity is the flattened ownership written into every header.
type Identity struct {
	UID   uint32
	GID   uint32
	Uname string
	Gname string
}

// Anonymous is the default identity: uid/gid 0, uname/gname "root".
var Anonymous = Identity{UID: 0, GID: 0, Uname: "root", Gname: "root"}

// Encode produces the 512-byte header block for an entry. It is a pure
// function of the entry fields and the identity; nothing else may leak in.
func Encode(e *common.Entry, id Identity) ([]byte, error) {
	name, prefix, err := SplitPath(e.ArcPath)
	if err != nil {
		return nil, err
	}

	var b block
	if err := b.setString(offName, nameFieldLen, name); err != nil {
		return nil, err
	}
	if err := b.setString(offPrefix, prefixFieldLen, prefix); err != nil {
		return nil, err
	}

	b.setOctal(offMode, 8, int64(e.Mode&0o7777))
	b.setOctalTrailing(offUID, 8, int64(id.UID))
	b.setOctalTrailing(offGID, 8, int64(id.GID))
	b.setSize(e.Size)
	b.setOctal(offMtime, 12, e.Mtime)

	switch e.Kind {
	case common.KindDir:
		b[offTypeflag] = typeflagDir
	case common.KindSymlink:
		b[offTypeflag] = typeflagSymlink
		if err := ValidateLinkTarget(e.LinkTarget); err != nil {
			return nil, err
		}
		if err := b.setString(offLinkname, maxLinkLen, e.LinkTarget); err != nil {
			return nil, err
		}
	default:
		b[offTypeflag] = typeflagFile
	}

	copy(b[offMagic:], "ustar\x00")
	copy(b[offVersion:], "00")
	if err := b.setString(offUname, lenUname, id.Uname); err != nil {
		return nil, err
	}
	if err := b.setString(offGname, lenGname, id.Gname); err != nil {
		return nil, err
	}

	b.writeChecksum()
	return b[:], nil
}

// Checksum computes the USTAR checksum of a header block: the sum of all 512
// bytes with the checksum field counted as ASCII spaces.
func Checksum(header []byte) int64 {
	var sum int64
	for i, c := range header {
		if i >= offChecksum && i < offChecksum+8 {
			c = ' '
		}
		sum += int64(c)
	}
	return sum
}

type block [common.BlockSize]byte

func (b *block) setString(offset, width int, value string) error {
	if len(value) > width {
		return fmt.Errorf("%w: %q does not fit %d-byte field", common.ErrPathTooLong, value, width)
	}
	copy(b[offset:offset+width], value)
	return nil
}

// setOctal writes value as width-1 zero-padded octal digits followed by NUL.
func (b *block) setOctal(offset, width int, value int64) {
	s := strconv.FormatInt(value, 8)
	digits := width - 1
	for i := 0; i < digits-len(s); i++ {
		b[offset+i] = '0'
	}
	copy(b[offset+digits-len(s):], s)
	b[offset+digits] = 0
}

// setOctalTrailing writes value as width-2 zero-padded octal digits followed
// by a space and a NUL, the form tar uses for the uid and gid fields.
func (b *block) setOctalTrailing(offset, width int, value int64) {
	s := strconv.FormatInt(value, 8)
	digits := width - 2
	for i := 0; i < digits-len(s); i++ {
		b[offset+i] = '0'
	}
	copy(b[offset+digits-len(s):], s)
	b[offset+digits] = ' '
	b[offset+digits+1] = 0
}

// setSize writes the 12-byte size field. Sizes below 8 GiB use the standard
// 11-digit octal form; larger sizes set the high bit of the first byte and
// store the value big-endian in the remaining 11 bytes (GNU base-256).
func (b *block) setSize(size int64) {
	if size < binarySizeThreshold {
		b.setOctal(offSize, 12, size)
		return
	}

	b[offSize] = 0x80
	v := uint64(size)
	for i := 11; i >= 1; i-- {
		b[offSize+i] = byte(v)
		v >>= 8
	}
}

func (b *block) writeChecksum() {
	sum := Checksum(b[:])
	s := strconv.FormatInt(sum, 8)
	for i := 0; i < 6-len(s); i++ {
		b[offChecksum+i] = '0'
	}
	copy(b[offChecksum+6-len(s):], s)
	b[offChecksum+6] = 0
	b[offChecksum+7] = ' '
}
