package common

const DefaultChunkSize = 64 * 1024

// Options configures playback behavior. The zero value is usable; call
// Normalize before reading fields.
type Options struct {
	// ChunkSize is the read size for file bodies. Defaults to 64 KiB.
	ChunkSize int

	// StrictUnsupported is not read by the player or the recorder. The
	// recorder takes its strict filtering setting (fail on sockets, pipes,
	// and devices instead of skipping them) from
	// tape.RecordOptions.StrictUnsupported.
	StrictUnsupported bool

	// Identity overrides. Headers are anonymized to uid=gid=0 and
	// uname=gname="root" unless these are set.
	OverrideUID   *uint32
	OverrideGID   *uint32
	OverrideUname string
	OverrideGname string
}

func (o *Options) Normalize() {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
}

// Identity returns the uid/gid/uname/gname written into every header.
func (o *Options) Identity() (uid, gid uint32, uname, gname string) {
	uid, gid = 0, 0
	uname, gname = "root", "root"
	if o.OverrideUID != nil {
		uid = *o.OverrideUID
	}
	if o.OverrideGID != nil {
		gid = *o.OverrideGID
	}
	if o.OverrideUname != "" {
		uname = o.OverrideUname
	}
	if o.OverrideGname != "" {
		gname = o.OverrideGname
	}
	return uid, gid, uname, gname
}
