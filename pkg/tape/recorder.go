package tape

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/denormal/go-gitignore"
	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/btree"

	"github.com/beam-cloud/tartape/pkg/common"
	"github.com/beam-cloud/tartape/pkg/snapshot"
	"github.com/beam-cloud/tartape/pkg/ustar"
)

// RecordOptions configures a recording.
type RecordOptions struct {
	// Exclude holds additional gitignore-style patterns, merged with the
	// tape root's .tartapeignore file.
	Exclude []string

	// StrictUnsupported fails the recording on sockets, pipes, and devices
	// instead of silently skipping them.
	StrictUnsupported bool
}

// Recorder walks a tape root at T0, orders the surviving entries by
// byte-lexicographic archive path, plans their stream offsets, and persists
// the result as the snapshot the player will later replay against.
type Recorder struct {
	root  string
	opts  RecordOptions
	index *btree.BTree
}

func NewRecorder(root string, opts RecordOptions) (*Recorder, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("tape root %s is not a directory", root)
	}

	return &Recorder{
		root:  absRoot,
		opts:  opts,
		index: newEntryIndex(),
	}, nil
}

func newEntryIndex() *btree.BTree {
	compare := func(a, b interface{}) bool {
		return a.(*common.Entry).ArcPath < b.(*common.Entry).ArcPath
	}
	return btree.New(compare)
}

// Commit performs the walk, plans offsets, and atomically persists the
// snapshot under <root>/.tartape/. It returns the snapshot fingerprint.
func (r *Recorder) Commit() (snapshot.Fingerprint, error) {
	log.Info().Msgf("recording tape inventory of %s", r.root)

	writer, err := snapshot.NewWriter(r.root)
	if err != nil {
		return snapshot.Fingerprint{}, err
	}
	defer writer.Close()

	rootInfo, err := os.Lstat(r.root)
	if err != nil {
		return snapshot.Fingerprint{}, err
	}
	writer.SetRootMtime(rootInfo.ModTime().Unix())

	if err := r.populateIndex(); err != nil {
		return snapshot.Fingerprint{}, err
	}

	entries := r.planOffsets()
	for _, e := range entries {
		if err := writer.Append(e); err != nil {
			return snapshot.Fingerprint{}, err
		}
	}

	fingerprint, err := writer.Commit()
	if err != nil {
		return snapshot.Fingerprint{}, err
	}

	log.Info().Msgf("snapshot committed: %d entries, fingerprint %s", len(entries), fingerprint)
	return fingerprint, nil
}

// populateIndex walks the root and fills the ordered index with one entry
// per surviving path.
func (r *Recorder) populateIndex() error {
	matcher := r.loadExcludeMatcher()

	return godirwalk.Walk(r.root, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if path == r.root {
				// The root itself is implicit; only its contents are entries.
				return nil
			}

			rel, err := filepath.Rel(r.root, path)
			if err != nil {
				return err
			}
			arcPath := filepath.ToSlash(rel)

			if arcPath == common.MetadataDir || isSnapshotSidecar(arcPath) {
				if de.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if r.excluded(matcher, arcPath, path) {
				if de.IsDir() && !de.IsSymlink() {
					return filepath.SkipDir
				}
				return nil
			}

			entry, err := r.buildEntry(path, arcPath, de)
			if err != nil {
				return err
			}
			if entry != nil {
				r.index.Set(entry)
			}
			return nil
		},
		Unsorted: false,
	})
}

// isSnapshotSidecar matches the SQLite-style sidecar files that may appear
// next to the snapshot inside the metadata directory.
func isSnapshotSidecar(arcPath string) bool {
	if !strings.HasPrefix(arcPath, common.MetadataDir+"/") {
		return false
	}
	for _, suffix := range []string{"-journal", "-wal", "-shm"} {
		if strings.HasSuffix(arcPath, suffix) {
			return true
		}
	}
	return false
}

func (r *Recorder) loadExcludeMatcher() gitignore.GitIgnore {
	patterns := []string{common.IgnoreFile}
	patterns = append(patterns, r.opts.Exclude...)

	if content, err := os.ReadFile(filepath.Join(r.root, common.IgnoreFile)); err == nil {
		for _, line := range strings.Split(string(content), "\n") {
			line = strings.TrimSpace(line)
			if line != "" && !strings.HasPrefix(line, "#") {
				patterns = append(patterns, line)
			}
		}
	}

	return gitignore.New(
		strings.NewReader(strings.Join(patterns, "\n")),
		r.root,
		func(err gitignore.Error) bool { return false },
	)
}

func (r *Recorder) excluded(matcher gitignore.GitIgnore, arcPath, absPath string) bool {
	if matcher == nil {
		return false
	}
	match := matcher.Match(arcPath)
	if match == nil {
		match = matcher.Match(absPath)
	}
	return match != nil && match.Ignore()
}

// buildEntry classifies a path by lstat and produces its unplanned entry.
// Unsupported kinds return (nil, nil) unless strict filtering is on.
func (r *Recorder) buildEntry(path, arcPath string, de *godirwalk.Dirent) (*common.Entry, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}

	var kind common.EntryKind
	switch {
	case de.IsSymlink():
		kind = common.KindSymlink
	case de.IsDir():
		kind = common.KindDir
	case de.IsRegular():
		kind = common.KindFile
	default:
		if r.opts.StrictUnsupported {
			return nil, fmt.Errorf("%w: %s", common.ErrUnsupportedKind, arcPath)
		}
		log.Debug().Msgf("skipping unsupported path %s", arcPath)
		return nil, nil
	}

	entry := &common.Entry{
		Kind:  kind,
		Mode:  uint32(fi.Sys().(*syscall.Stat_t).Mode) & 0o7777,
		Mtime: fi.ModTime().Unix(),
	}

	switch kind {
	case common.KindDir:
		entry.ArcPath = arcPath + "/"
	case common.KindSymlink:
		target, err := os.Readlink(path)
		if err != nil {
			return nil, fmt.Errorf("reading symlink target of %s: %w", arcPath, err)
		}
		if err := ustar.ValidateLinkTarget(target); err != nil {
			return nil, err
		}
		entry.ArcPath = arcPath
		entry.LinkTarget = target
	default:
		entry.ArcPath = arcPath
		entry.Size = fi.Size()
	}

	if err := ustar.ValidateArcPath(entry.ArcPath, kind); err != nil {
		return nil, err
	}
	return entry, nil
}

// planOffsets drains the ordered index and assigns each entry its absolute
// header offset in a single left-to-right pass.
func (r *Recorder) planOffsets() []*common.Entry {
	entries := make([]*common.Entry, 0, r.index.Len())

	offset := int64(0)
	r.index.Ascend(r.index.Min(), func(a interface{}) bool {
		e := a.(*common.Entry)
		e.StartOffset = offset
		e.PayloadBlocks = common.PayloadBlockCount(e.Kind, e.Size)
		offset = e.EndOffset()
		entries = append(entries, e)
		return true
	})

	return entries
}
