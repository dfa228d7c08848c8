package ustar

import (
	"archive/tar"
	"bytes"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/beam-cloud/tartape/pkg/common"
)

func octalField(t *testing.T, header []byte, offset, width int) int64 {
	t.Helper()
	raw := strings.TrimRight(string(header[offset:offset+width]), "\x00 ")
	v, err := strconv.ParseInt(raw, 8, 64)
	require.NoError(t, err)
	return v
}

func stringField(header []byte, offset, width int) string {
	raw := header[offset : offset+width]
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	return string(raw)
}

func TestEncodeFileHeader(t *testing.T) {
	e := &common.Entry{
		ArcPath: "docs/readme.md",
		Kind:    common.KindFile,
		Size:    1234,
		Mode:    0o644,
		Mtime:   1700000000,
	}

	header, err := Encode(e, Anonymous)
	require.NoError(t, err)
	require.Len(t, header, common.BlockSize)

	require.Equal(t, "docs/readme.md", stringField(header, offName, 100))
	require.Equal(t, "", stringField(header, offPrefix, 155))
	require.Equal(t, int64(0o644), octalField(t, header, offMode, 8))
	require.Equal(t, int64(0), octalField(t, header, offUID, 8))
	require.Equal(t, int64(0), octalField(t, header, offGID, 8))
	require.Equal(t, int64(1234), octalField(t, header, offSize, 12))
	require.Equal(t, int64(1700000000), octalField(t, header, offMtime, 12))
	require.Equal(t, byte(typeflagFile), header[offTypeflag])
	require.Equal(t, "ustar", stringField(header, offMagic, 6))
	require.Equal(t, "00", string(header[offVersion:offVersion+2]))
	require.Equal(t, "root", stringField(header, offUname, lenUname))
	require.Equal(t, "root", stringField(header, offGname, lenGname))
}

func TestEncodeChecksum(t *testing.T) {
	e := &common.Entry{ArcPath: "a.bin", Kind: common.KindFile, Size: 7, Mode: 0o600, Mtime: 1}

	header, err := Encode(e, Anonymous)
	require.NoError(t, err)

	stored := octalField(t, header, offChecksum, 8)
	require.Equal(t, Checksum(header), stored)

	// Six octal digits, NUL, then space.
	require.Equal(t, byte(0), header[offChecksum+6])
	require.Equal(t, byte(' '), header[offChecksum+7])
}

func TestEncodeDirectoryAndSymlink(t *testing.T) {
	dir := &common.Entry{ArcPath: "sub/", Kind: common.KindDir, Mode: 0o755, Mtime: 5}
	header, err := Encode(dir, Anonymous)
	require.NoError(t, err)
	require.Equal(t, byte(typeflagDir), header[offTypeflag])
	require.Equal(t, "sub/", stringField(header, offName, 100))
	require.Equal(t, int64(0), octalField(t, header, offSize, 12))

	link := &common.Entry{ArcPath: "ln", Kind: common.KindSymlink, LinkTarget: "sub/target", Mode: 0o777, Mtime: 5}
	header, err = Encode(link, Anonymous)
	require.NoError(t, err)
	require.Equal(t, byte(typeflagSymlink), header[offTypeflag])
	require.Equal(t, "sub/target", stringField(header, offLinkname, 100))
}

func TestEncodeLongPathUsesPrefix(t *testing.T) {
	deep := strings.Repeat("d", 90) + "/" + strings.Repeat("f", 60)
	e := &common.Entry{ArcPath: deep, Kind: common.KindFile, Size: 1, Mode: 0o644, Mtime: 1}

	header, err := Encode(e, Anonymous)
	require.NoError(t, err)
	require.Equal(t, strings.Repeat("f", 60), stringField(header, offName, 100))
	require.Equal(t, strings.Repeat("d", 90), stringField(header, offPrefix, 155))
}

func TestEncodeLargeSizeBase256(t *testing.T) {
	size := int64(1)<<33 + 42
	e := &common.Entry{ArcPath: "huge.bin", Kind: common.KindFile, Size: size, Mode: 0o644, Mtime: 1}

	header, err := Encode(e, Anonymous)
	require.NoError(t, err)

	require.Equal(t, byte(0x80), header[offSize])
	var decoded int64
	for _, b := range header[offSize+1 : offSize+12] {
		decoded = decoded<<8 | int64(b)
	}
	require.Equal(t, size, decoded)
}

func TestEncodeIdentityOverride(t *testing.T) {
	e := &common.Entry{ArcPath: "owned", Kind: common.KindFile, Size: 0, Mode: 0o644, Mtime: 1}
	id := Identity{UID: 1000, GID: 2000, Uname: "alice", Gname: "staff"}

	header, err := Encode(e, id)
	require.NoError(t, err)
	require.Equal(t, int64(1000), octalField(t, header, offUID, 8))
	require.Equal(t, int64(2000), octalField(t, header, offGID, 8))
	require.Equal(t, "alice", stringField(header, offUname, lenUname))
	require.Equal(t, "staff", stringField(header, offGname, lenGname))
}

// TestEncodeReadableByArchiveTar feeds an encoded header through the standard
// library's tar reader to confirm interoperability.
func TestEncodeReadableByArchiveTar(t *testing.T) {
	payload := []byte("hello, tape")
	e := &common.Entry{
		ArcPath: "greeting.txt",
		Kind:    common.KindFile,
		Size:    int64(len(payload)),
		Mode:    0o640,
		Mtime:   1700000000,
	}

	header, err := Encode(e, Anonymous)
	require.NoError(t, err)

	var stream bytes.Buffer
	stream.Write(header)
	stream.Write(payload)
	stream.Write(make([]byte, common.BlockSize-len(payload)))
	stream.Write(make([]byte, common.TerminatorSize))

	tr := tar.NewReader(&stream)
	hdr, err := tr.Next()
	require.NoError(t, err)
	require.Equal(t, "greeting.txt", hdr.Name)
	require.Equal(t, int64(0o640), hdr.Mode)
	require.Equal(t, int64(len(payload)), hdr.Size)
	require.Equal(t, int64(1700000000), hdr.ModTime.Unix())

	got, err := io.ReadAll(tr)
	require.NoError(t, err)
	require.Equal(t, payload, got)

	_, err = tr.Next()
	require.Equal(t, io.EOF, err)
}
