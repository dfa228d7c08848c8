package common

// TAR stream geometry. Every header is exactly one block, file payloads are
// padded to a block boundary, and the tape ends with two zero blocks.
const (
	BlockSize      = 512
	TerminatorSize = 1024
)

const (
	// MetadataDir is the directory at the tape root that holds the persisted
	// snapshot. It is never part of the stream.
	MetadataDir = ".tartape"

	// SnapshotFile is the snapshot index inside MetadataDir.
	SnapshotFile = "index.db"

	// LockFile guards a recording against concurrent recorders.
	LockFile = "record.lock"

	// IgnoreFile holds optional user exclude patterns at the tape root.
	IgnoreFile = ".tartapeignore"
)

type EntryKind string

const (
	KindFile    EntryKind = "file"
	KindDir     EntryKind = "dir"
	KindSymlink EntryKind = "symlink"
)

// Entry is a single planned element of the tape: a file, directory, or
// symlink together with the absolute offset where its header begins.
type Entry struct {
	// ArcPath is the POSIX-style archive path, at most 255 bytes.
	// Directory paths carry a trailing "/".
	ArcPath string

	Kind EntryKind

	// Size is the payload size in bytes. Zero for directories and symlinks.
	Size int64

	// Mode holds the low 12 permission and set-id bits of the file mode.
	Mode uint32

	// Mtime is the modification time in whole Unix seconds.
	Mtime int64

	// LinkTarget is the symlink target, at most 100 bytes. Empty otherwise.
	LinkTarget string

	// StartOffset is the absolute byte offset of this entry's header block.
	StartOffset int64

	// PayloadBlocks is the number of 512-byte blocks occupied by the payload.
	PayloadBlocks int64
}

// HasBody reports whether the entry occupies payload blocks in the stream.
func (e *Entry) HasBody() bool {
	return e.Kind == KindFile && e.Size > 0
}

// HeaderEnd returns the offset of the first byte after the header block.
func (e *Entry) HeaderEnd() int64 {
	return e.StartOffset + BlockSize
}

// BodyEnd returns the offset of the first byte after the payload, before
// padding.
func (e *Entry) BodyEnd() int64 {
	return e.HeaderEnd() + e.bodySize()
}

// EndOffset returns the offset of the first byte after the entry, padding
// included.
func (e *Entry) EndOffset() int64 {
	return e.HeaderEnd() + e.PayloadBlocks*BlockSize
}

// PaddingSize returns the number of zero bytes between the payload and the
// next block boundary.
func (e *Entry) PaddingSize() int64 {
	return e.PayloadBlocks*BlockSize - e.bodySize()
}

func (e *Entry) bodySize() int64 {
	if e.Kind != KindFile {
		return 0
	}
	return e.Size
}

// PayloadBlockCount returns ceil(size / 512) for file payloads and zero for
// directories and symlinks.
func PayloadBlockCount(kind EntryKind, size int64) int64 {
	if kind != KindFile {
		return 0
	}
	return (size + BlockSize - 1) / BlockSize
}

// Region identifies which part of the stream a byte offset falls into.
type Region int

const (
	RegionHeader Region = iota
	RegionBody
	RegionPadding
	RegionTerminator
)

func (r Region) String() string {
	switch r {
	case RegionHeader:
		return "header"
	case RegionBody:
		return "body"
	case RegionPadding:
		return "padding"
	case RegionTerminator:
		return "terminator"
	}
	return "unknown"
}
