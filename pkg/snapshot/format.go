package snapshot

import "github.com/google/uuid"

// On-disk layout of .tartape/index.db: a fixed little-endian file header
// followed by the gob-encoded entry slice. The header carries everything
// needed to answer metadata queries without decoding the index.
var snapshotStartBytes = []byte{0x89, 0x54, 0x54, 0x41, 0x50, 0x45, 0x0D, 0x0A}

const (
	SnapshotFormatVersion uint8 = 0x01

	snapshotHeaderLength = 73
)

type snapshotHeader struct {
	StartBytes    [8]byte
	FormatVersion uint8
	EntryCount    int64
	StreamLength  int64
	RootMtime     int64
	Fingerprint   Fingerprint
	TapeID        uuid.UUID
	IndexLength   int64
}
