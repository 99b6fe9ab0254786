package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Probe is a size/modification-time snapshot of a filesystem entry. The
// archive cache compares a fresh Probe of each scanned archive against the
// one recorded the last time it was indexed to decide whether the cached
// member list can be trusted or must be refreshed.
type Probe struct {
	// ModTime is the modification time of the entry, or for a directory the
	// latest modification time observed anywhere in its subtree.
	ModTime time.Time
	// Size is the entry's size in bytes, or for a directory the sum of the
	// sizes of every regular file in its subtree.
	Size uint64
}

// ProbeFile stats a single file and returns its size and modification time.
func ProbeFile(path string) (Probe, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Probe{}, fmt.Errorf("unable to stat %q: %w", path, err)
	}
	return Probe{ModTime: info.ModTime(), Size: uint64(info.Size())}, nil
}

// ProbeDirectory walks a directory tree and returns its aggregate size
// (the sum of every regular file's size) and the latest modification time
// observed on any entry in the tree, including the root itself, so it
// reflects changes anywhere below the top-level directory. The engine's
// scan does not call it: directory archives bypass the archive cache.
func ProbeDirectory(root string) (Probe, error) {
	var result Probe

	rootInfo, err := os.Stat(root)
	if err != nil {
		return Probe{}, fmt.Errorf("unable to stat %q: %w", root, err)
	}
	result.ModTime = rootInfo.ModTime()

	walkErr := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.ModTime().After(result.ModTime) {
			result.ModTime = info.ModTime()
		}
		if !info.IsDir() {
			result.Size += uint64(info.Size())
		}
		return nil
	})
	if walkErr != nil {
		return Probe{}, fmt.Errorf("unable to walk %q: %w", root, walkErr)
	}

	return result, nil
}

// Matches reports whether two probes agree on both size and modification
// time, the criterion the archive cache uses to treat its cached member
// list as still valid.
func (p Probe) Matches(other Probe) bool {
	return p.Size == other.Size && p.ModTime.Equal(other.ModTime)
}
