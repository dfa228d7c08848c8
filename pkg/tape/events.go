package tape

import "github.com/beam-cloud/tartape/pkg/common"

// Event is one element of the playback sequence. Concrete types are
// FileStart, FileData, FileEnd, and TapeCompleted. Events for entry i always
// precede events for entry j > i; within an entry the order is
// FileStart, FileData..., FileEnd.
type Event interface {
	event()
}

// FileStart announces that the stream is entering an entry.
type FileStart struct {
	Entry *common.Entry

	// StartOffset is the absolute offset of the entry's header block.
	StartOffset int64

	// Resumed is true when playback began mid-entry: this is the first entry
	// of a resumed playback and the stream did not enter it at its header.
	Resumed bool
}

// FileData carries raw stream bytes: header, payload, padding, or terminator.
type FileData struct {
	Bytes []byte
}

// FileEnd announces that an entry has been fully emitted.
type FileEnd struct {
	Entry *common.Entry

	// EndOffset is the absolute offset just past the entry's padding.
	EndOffset int64

	// MD5 is the digest of the entry's payload bytes. Nil when a resumed
	// playback skipped any payload byte (it entered the entry mid-body or in
	// its padding), since skipped bytes make the digest unrecoverable
	// without re-reading.
	MD5 []byte
}

// TapeCompleted is the final event of every successful playback.
type TapeCompleted struct{}

func (FileStart) event()     {}
func (FileData) event()      {}
func (FileEnd) event()       {}
func (TapeCompleted) event() {}
