package tape

import (
	"crypto/md5"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/beam-cloud/tartape/pkg/common"
	"github.com/beam-cloud/tartape/pkg/ustar"
)

// Player produces playback streams over a discovered tape. A single player
// can open any number of independent streams.
type Player struct {
	tape *Tape
	opts common.Options
	id   ustar.Identity
}

func NewPlayer(t *Tape, opts common.Options) *Player {
	opts.Normalize()
	uid, gid, uname, gname := opts.Identity()
	return &Player{
		tape: t,
		opts: opts,
		id:   ustar.Identity{UID: uid, GID: gid, Uname: uname, Gname: gname},
	}
}

// Play opens a stream that emits the tape's bytes from startOffset to the
// end. Play(0) is a full playback; any other offset resumes mid-stream and
// produces exactly the suffix a full playback would have produced from that
// byte on. startOffset equal to the stream length yields an immediately
// complete stream.
func (p *Player) Play(startOffset int64) (*Stream, error) {
	s := &Stream{
		tape: p.tape,
		opts: p.opts,
		id:   p.id,
	}

	if startOffset == p.tape.StreamLength() {
		s.stage = stageCompleted
		return s, nil
	}

	index, region, local, err := p.tape.Locate(startOffset)
	if err != nil {
		return nil, err
	}

	if region == common.RegionTerminator {
		s.index = p.tape.Count()
		s.stage = stageTerminator
		s.terminatorSkip = local
		return s, nil
	}

	s.index = index
	s.stage = stageStart
	s.resumePending = startOffset > 0
	s.resumeRegion = region
	s.resumeLocal = local

	log.Debug().Msgf("playback opened at offset %d (entry %d, %s+%d)", startOffset, index, region, local)
	return s, nil
}

type stage int

const (
	stageStart stage = iota
	stageHeader
	stageBody
	stagePadding
	stageEnd
	stageTerminator
	stageCompleted
	stageDone
)

// Stream is a lazy playback. Each Next call returns the next event; the
// byte slices inside FileData events are only valid until the following
// Next call. After the TapeCompleted event, Next returns io.EOF.
type Stream struct {
	tape *Tape
	opts common.Options
	id   ustar.Identity

	index int
	stage stage

	resumePending bool
	resumeRegion  common.Region
	resumeLocal   int64

	// Per-entry skip amounts, nonzero only for the first entry of a
	// resumed playback.
	headerSkip     int64
	bodySkip       int64
	paddingSkip    int64
	terminatorSkip int64

	file          *os.File
	bodyRemaining int64
	digest        hash.Hash
	buf           []byte

	err error
}

// Length returns the total stream length in bytes, terminator included.
func (s *Stream) Length() int64 {
	return s.tape.StreamLength()
}

// Next returns the next playback event. It returns io.EOF after the
// TapeCompleted event, and any earlier error is sticky.
func (s *Stream) Next() (Event, error) {
	if s.err != nil {
		return nil, s.err
	}
	for {
		ev, err := s.step()
		if err != nil {
			s.err = err
			s.closeFile()
			return nil, err
		}
		if ev != nil {
			return ev, nil
		}
	}
}

// Close abandons the stream and releases any open source file. A closed
// stream's Next returns io.EOF.
func (s *Stream) Close() error {
	err := s.closeFile()
	if s.err == nil {
		s.err = io.EOF
	}
	return err
}

// step advances the state machine by one stage transition. It may return a
// nil event when a stage produces no bytes, such as a fully skipped header
// on resume.
func (s *Stream) step() (Event, error) {
	switch s.stage {
	case stageStart:
		return s.stepStart()
	case stageHeader:
		return s.stepHeader()
	case stageBody:
		return s.stepBody()
	case stagePadding:
		return s.stepPadding()
	case stageEnd:
		return s.stepEnd()
	case stageTerminator:
		return s.stepTerminator()
	case stageCompleted:
		s.stage = stageDone
		return TapeCompleted{}, nil
	default:
		return nil, io.EOF
	}
}

func (s *Stream) stepStart() (Event, error) {
	e := s.tape.Entry(s.index)

	if err := verifyEntryAgainstDisk(s.tape.root, e); err != nil {
		return nil, err
	}

	resumed := false
	s.headerSkip, s.bodySkip, s.paddingSkip = 0, 0, 0
	if s.resumePending {
		resumed = s.resumeRegion != common.RegionHeader || s.resumeLocal != 0
		switch s.resumeRegion {
		case common.RegionHeader:
			s.headerSkip = s.resumeLocal
		case common.RegionBody:
			s.headerSkip = common.BlockSize
			s.bodySkip = s.resumeLocal
		case common.RegionPadding:
			s.headerSkip = common.BlockSize
			s.bodySkip = e.Size
			s.paddingSkip = s.resumeLocal
		}
		s.resumePending = false
	}

	s.bodyRemaining = e.Size - s.bodySkip
	if s.bodySkip == 0 {
		// The full payload passes through, so the digest is recoverable
		// even when the header was entered mid-block.
		s.digest = md5.New()
	} else {
		s.digest = nil
	}

	s.stage = stageHeader
	return FileStart{Entry: e, StartOffset: e.StartOffset, Resumed: resumed}, nil
}

func (s *Stream) stepHeader() (Event, error) {
	e := s.tape.Entry(s.index)

	header, err := ustar.Encode(e, s.id)
	if err != nil {
		return nil, err
	}

	data := header[s.headerSkip:]
	s.headerSkip = 0
	s.stage = stageBody

	if len(data) == 0 {
		return nil, nil
	}
	return FileData{Bytes: data}, nil
}

func (s *Stream) stepBody() (Event, error) {
	e := s.tape.Entry(s.index)

	if !e.HasBody() {
		s.stage = stagePadding
		return nil, nil
	}

	if s.file == nil {
		if s.bodySkip > 0 && s.bodyRemaining == 0 {
			// The body lies entirely behind the resume point; the earlier
			// lstat size check is the only guard it gets.
			s.stage = stagePadding
			return nil, nil
		}
		f, err := os.Open(sourcePath(s.tape.root, e.ArcPath))
		if err != nil {
			return nil, err
		}
		if s.bodySkip > 0 {
			if _, err := f.Seek(s.bodySkip, io.SeekStart); err != nil {
				f.Close()
				return nil, err
			}
		}
		s.file = f
	}

	if s.bodyRemaining > 0 {
		if s.buf == nil {
			s.buf = make([]byte, s.opts.ChunkSize)
		}
		n := s.bodyRemaining
		if n > int64(len(s.buf)) {
			n = int64(len(s.buf))
		}

		if _, err := io.ReadFull(s.file, s.buf[:n]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, integrityError(e, "shrank during playback")
			}
			return nil, err
		}
		if s.digest != nil {
			s.digest.Write(s.buf[:n])
		}
		s.bodyRemaining -= n
		return FileData{Bytes: s.buf[:n]}, nil
	}

	// The planned payload is exhausted. One more readable byte means the
	// file grew after recording.
	var probe [1]byte
	if n, err := s.file.Read(probe[:]); n > 0 {
		return nil, integrityError(e, "grew during playback")
	} else if err != nil && err != io.EOF {
		return nil, err
	}

	s.closeFile()
	s.stage = stagePadding
	return nil, nil
}

func (s *Stream) stepPadding() (Event, error) {
	e := s.tape.Entry(s.index)

	pad := e.PaddingSize() - s.paddingSkip
	s.paddingSkip = 0
	s.stage = stageEnd

	if pad <= 0 {
		return nil, nil
	}
	return FileData{Bytes: zeroBlock[:pad]}, nil
}

func (s *Stream) stepEnd() (Event, error) {
	e := s.tape.Entry(s.index)

	var sum []byte
	if s.digest != nil {
		sum = s.digest.Sum(nil)
	}
	s.digest = nil

	s.index++
	if s.index == s.tape.Count() {
		s.stage = stageTerminator
	} else {
		s.stage = stageStart
	}

	return FileEnd{Entry: e, EndOffset: e.EndOffset(), MD5: sum}, nil
}

func (s *Stream) stepTerminator() (Event, error) {
	data := zeroTerminator[s.terminatorSkip:]
	s.terminatorSkip = 0
	s.stage = stageCompleted

	if len(data) == 0 {
		return nil, nil
	}
	return FileData{Bytes: data}, nil
}

func (s *Stream) closeFile() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func integrityError(e *common.Entry, reason string) error {
	return fmt.Errorf("%w: %s %s", common.ErrIntegrity, e.ArcPath, reason)
}

var (
	zeroBlock      [common.BlockSize]byte
	zeroTerminator [common.TerminatorSize]byte
)
