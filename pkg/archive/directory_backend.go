package archive

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/ckmame/ckmame/pkg/fsutil"
	"github.com/ckmame/ckmame/pkg/random"
)

// directoryBackend implements backend over an unpacked directory, treating
// its direct children as archive members (one directory per game, loose
// ROM/disk files inside). Commit uses a two-phase plan: every move is first
// staged into a private quarantine directory so that a partial failure is
// reversible, then survivors are reparented into their final names;
// rollback undoes quarantine moves in reverse order.
type directoryBackend struct {
	root         string
	topLevelOnly bool
	readOnly     bool
}

func newDirectoryBackend(root string, flags Flags, readOnly bool) (*directoryBackend, error) {
	info, err := os.Stat(root)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("unable to stat %q: %w", root, err)
		}
		if flags&FlagCreate == 0 {
			return nil, err
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("%q is not a directory", root)
	}
	return &directoryBackend{
		root:         root,
		topLevelOnly: flags&FlagTopLevelOnly != 0,
		readOnly:     readOnly,
	}, nil
}

func (b *directoryBackend) exists() bool {
	_, err := os.Stat(b.root)
	return err == nil
}

func (b *directoryBackend) list() ([]Member, error) {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("unable to read directory %q: %w", b.root, err)
	}

	var members []Member
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("unable to stat entry %q: %w", entry.Name(), err)
		}
		members = append(members, Member{
			Name:      entry.Name(),
			MTime:     info.ModTime(),
			Extension: filepath.Ext(entry.Name()),
		}.withSize(uint64(info.Size())))
	}

	// Sort for a deterministic, reproducible member order across runs;
	// os.ReadDir already sorts by name, but this keeps the guarantee
	// explicit regardless of that implementation detail.
	sort.Slice(members, func(i, j int) bool { return members[i].Name < members[j].Name })

	return members, nil
}

func (b *directoryBackend) open(index int, start, length int64) (ReadSource, error) {
	members, err := b.list()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(members) {
		return nil, fmt.Errorf("member index %d out of range", index)
	}

	f, err := os.Open(filepath.Join(b.root, members[index].Name))
	if err != nil {
		return nil, fmt.Errorf("unable to open %q: %w", members[index].Name, err)
	}
	if start > 0 {
		if _, err := f.Seek(start, io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("unable to seek in %q: %w", members[index].Name, err)
		}
	}
	if length < 0 {
		return f, nil
	}
	return &limitedReadCloser{f: f, remaining: length}, nil
}

// limitedReadCloser bounds reads to a fixed byte count while still closing
// the underlying file on Close.
type limitedReadCloser struct {
	f         *os.File
	remaining int64
}

func (l *limitedReadCloser) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.f.Read(p)
	l.remaining -= int64(n)
	return n, err
}

func (l *limitedReadCloser) Close() error {
	return l.f.Close()
}

// quarantineName picks a private, unique-enough sibling directory name to
// stage reversible moves in.
func (b *directoryBackend) quarantineName() (string, error) {
	suffix, err := random.New(8)
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(b.root), fsutil.TemporaryNamePrefix+"quarantine-"+hex.EncodeToString(suffix)), nil
}

// commit applies renames, deletes, and incoming copies via a private
// quarantine directory, so that if any single step fails the directory can
// be restored to its pre-commit state by replaying the recorded undo moves
// in reverse.
func (b *directoryBackend) commit(members []Member, changes []Change) error {
	if b.readOnly {
		return ErrReadOnly
	}

	quarantine, err := b.quarantineName()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(quarantine, 0755); err != nil {
		return fmt.Errorf("unable to create quarantine directory: %w", err)
	}
	defer os.RemoveAll(quarantine)

	var undo []func()
	rollback := func() {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
	}

	for _, c := range changes {
		switch c.Kind {
		case ChangeDelete:
			name := members[c.Index].Name
			src := filepath.Join(b.root, name)
			dst := filepath.Join(quarantine, fmt.Sprintf("deleted-%d-%s", c.Index, name))
			if err := os.Rename(src, dst); err != nil {
				rollback()
				return fmt.Errorf("unable to quarantine deleted member %q: %w", name, err)
			}
			undo = append(undo, func() { os.Rename(dst, src) })

		case ChangeRename:
			oldName := c.OldName
			oldPath := filepath.Join(b.root, oldName)
			staged := filepath.Join(quarantine, fmt.Sprintf("renamed-%d", c.Index))
			if err := os.Rename(oldPath, staged); err != nil {
				rollback()
				return fmt.Errorf("unable to quarantine renamed member %q: %w", oldName, err)
			}
			newPath := filepath.Join(b.root, c.NewName)
			if err := fsutil.EnsureParentDirectory(newPath); err != nil {
				rollback()
				return err
			}
			if err := os.Rename(staged, newPath); err != nil {
				rollback()
				return fmt.Errorf("unable to move renamed member into place as %q: %w", c.NewName, err)
			}
			capturedOld, capturedNew := oldPath, newPath
			undo = append(undo, func() { os.Rename(capturedNew, capturedOld) })

		case ChangeAddEmpty:
			dst := filepath.Join(b.root, c.NewName)
			if err := fsutil.EnsureParentDirectory(dst); err != nil {
				rollback()
				return err
			}
			f, err := os.Create(dst)
			if err != nil {
				rollback()
				return fmt.Errorf("unable to create empty member %q: %w", c.NewName, err)
			}
			f.Close()
			capturedDst := dst
			undo = append(undo, func() { os.Remove(capturedDst) })

		case ChangeCopyFrom, ChangeCopyRangeFrom:
			length := c.Length
			if c.Kind == ChangeCopyFrom {
				length = -1
			}
			source, err := c.SourceArchive.FileOpen(c.SourceIndex, c.Offset, length)
			if err != nil {
				rollback()
				return fmt.Errorf("unable to open copy source for %q: %w", c.NewName, err)
			}
			dst := filepath.Join(b.root, c.NewName)
			if err := fsutil.EnsureParentDirectory(dst); err != nil {
				source.Close()
				rollback()
				return err
			}
			f, err := os.Create(dst)
			if err != nil {
				source.Close()
				rollback()
				return fmt.Errorf("unable to create copied member %q: %w", c.NewName, err)
			}
			_, copyErr := io.Copy(f, source)
			source.Close()
			f.Close()
			if copyErr != nil {
				os.Remove(dst)
				rollback()
				return fmt.Errorf("unable to copy into %q: %w", c.NewName, copyErr)
			}
			capturedDst := dst
			undo = append(undo, func() { os.Remove(capturedDst) })
		}
	}

	return nil
}
