// Package archive implements the uniform, transactional view over zip,
// 7z, and directory-as-archive storage that every other engine component
// builds on. An Archive is identified by its backend kind, filesystem path,
// and filetype; the process holds at most one live Archive per identity so
// that concurrent callers (the finder, the matcher, the planner) always see
// the same staged changes.
package archive

import (
	"fmt"
	"sync"
)

// FileType distinguishes ROM files (ordinary byte streams) from disk images
// (CHD-backed, addressed by combined SHA-1 rather than CRC32/MD5/SHA-1).
type FileType int

const (
	// FileTypeROM is an ordinary ROM file.
	FileTypeROM FileType = iota
	// FileTypeDisk is a CHD disk image.
	FileTypeDisk
)

// String renders a FileType for diagnostics.
func (t FileType) String() string {
	switch t {
	case FileTypeROM:
		return "rom"
	case FileTypeDisk:
		return "disk"
	default:
		return "unknown"
	}
}

// Kind identifies the storage backend an Archive uses.
type Kind int

const (
	// KindZip is a packed zip archive.
	KindZip Kind = iota
	// KindSevenZip is a packed 7z archive.
	KindSevenZip
	// KindDirectory is an unpacked directory whose entries are treated as
	// archive members (one archive per top-level game directory).
	KindDirectory
	// KindDiskDir is a directory holding loose CHD disk images, addressed
	// the same way as KindDirectory but never subject to header detection.
	KindDiskDir
)

// String renders a Kind for diagnostics.
func (k Kind) String() string {
	switch k {
	case KindZip:
		return "zip"
	case KindSevenZip:
		return "7z"
	case KindDirectory:
		return "directory"
	case KindDiskDir:
		return "diskdir"
	default:
		return "unknown"
	}
}

// Location tags the role a scanned root plays, carried on an Archive so
// that members discovered under it get a sensible default classification
// before the matcher has run.
type Location int

const (
	// LocationRomset is the primary collection root.
	LocationRomset Location = iota
	// LocationExtra is a secondary root scanned for donor content only.
	LocationExtra
	// LocationNeeded is the needed/ content-addressable stash.
	LocationNeeded
	// LocationSuperfluous is the unknown/ garbage-sibling root.
	LocationSuperfluous
)

// String renders a Location for diagnostics.
func (l Location) String() string {
	switch l {
	case LocationRomset:
		return "romset"
	case LocationExtra:
		return "extra"
	case LocationNeeded:
		return "needed"
	case LocationSuperfluous:
		return "superfluous"
	default:
		return "unknown"
	}
}

// Flags control how an Archive is opened.
type Flags uint8

const (
	// FlagCreate permits creating the backing file/directory if it doesn't
	// exist.
	FlagCreate Flags = 1 << iota
	// FlagReadOnly rejects every mutation on the resulting Archive.
	FlagReadOnly
	// FlagTopLevelOnly restricts a directory backend to its immediate
	// children, never descending into subdirectories (used for CHD-only
	// directories under the top-level-disks heuristic).
	FlagTopLevelOnly
)

// Identity is the key by which Archives are deduplicated.
type Identity struct {
	Kind     Kind
	Path     string
	FileType FileType
}

// String renders an Identity for diagnostics.
func (id Identity) String() string {
	return fmt.Sprintf("%s:%s(%s)", id.Kind, id.Path, id.FileType)
}

// Registry holds at most one live Archive per Identity, implementing
// process-wide deduplication so two callers opening the same archive share
// one in-memory instance. The zero value is ready to use.
type Registry struct {
	mu        sync.Mutex
	readOnly  bool
	instances map[Identity]*Archive
}

// NewRegistry creates a Registry. When readOnly is true, every Archive
// opened through this registry rejects mutations regardless of the flags
// passed to Open.
func NewRegistry(readOnly bool) *Registry {
	return &Registry{
		readOnly:  readOnly,
		instances: make(map[Identity]*Archive),
	}
}

// Lookup returns the live Archive for id, if one is currently held.
func (r *Registry) Lookup(id Identity) (*Archive, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.instances[id]
	return a, ok
}

// register records a newly constructed Archive under its identity. It's
// called only by Open, while still holding the registry lock in the
// caller's critical section.
func (r *Registry) register(a *Archive) {
	if r.instances == nil {
		r.instances = make(map[Identity]*Archive)
	}
	r.instances[a.identity] = a
}

// forget removes an Archive from the registry, used when an Archive's
// backing file is deleted entirely (e.g. an empty archive swept away by the
// final pass).
func (r *Registry) forget(id Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.instances, id)
}

// Lock acquires the registry's critical section; Open uses this to make
// lookup-or-construct atomic.
func (r *Registry) Lock() {
	r.mu.Lock()
}

// Unlock releases the registry's critical section.
func (r *Registry) Unlock() {
	r.mu.Unlock()
}
