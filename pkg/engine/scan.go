package engine

import (
	"crypto/sha1"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ckmame/ckmame/pkg/archive"
	"github.com/ckmame/ckmame/pkg/archivecache"
	"github.com/ckmame/ckmame/pkg/fingerprint"
	"github.com/ckmame/ckmame/pkg/fsutil"
	"github.com/ckmame/ckmame/pkg/memoryindex"
)

// scanRoot enumerates root's immediate children, opens each as an archive
// (packed zip/7z files, or directories treated the unpacked way), and
// records every member's fingerprint in index under location. It's used
// for donor roots (extra, needed, old) whose ownership isn't already known
// from the catalog. The romset root is never scanned; openGameArchive only
// opens a game's archive and does not index it.
func (e *Engine) scanRoot(root string, location archive.Location, index *memoryindex.Index) error {
	if index == nil || root == "" {
		return nil
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("unable to list %q: %w", root, err)
	}

	cache, err := e.cacheFor(root)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		id, ok := classifyEntry(root, entry)
		if !ok {
			continue
		}

		var cachedMembers []archive.Member
		if cache != nil && id.Kind != archive.KindDirectory {
			cachedMembers, err = loadCachedMembers(cache, id.Path)
			if err != nil {
				return err
			}
		}

		a, err := archive.Open(e.Registry, id, location, archive.FlagReadOnly, cachedMembers, e.Logger.Sublogger("archive"))
		if err != nil {
			return fmt.Errorf("unable to open %s: %w", id, err)
		}

		if err := e.indexArchive(a, location, index); err != nil {
			return err
		}

		if cache != nil && id.Kind != archive.KindDirectory {
			if err := saveCachedMembers(cache, id.Path, a); err != nil {
				return err
			}
		}
	}

	return nil
}

// classifyEntry infers an archive identity for one directory entry, or
// reports false for entries that aren't recognized archive shapes (e.g. a
// loose file sitting at the top level of a donor root).
func classifyEntry(root string, entry os.DirEntry) (archive.Identity, bool) {
	name := entry.Name()
	path := filepath.Join(root, name)
	switch {
	case strings.HasSuffix(name, ".zip"):
		return archive.Identity{Kind: archive.KindZip, Path: path, FileType: archive.FileTypeROM}, true
	case strings.HasSuffix(name, ".7z"):
		return archive.Identity{Kind: archive.KindSevenZip, Path: path, FileType: archive.FileTypeROM}, true
	case strings.HasSuffix(name, ".chd"):
		return archive.Identity{Kind: archive.KindDiskDir, Path: path, FileType: archive.FileTypeDisk}, true
	case entry.IsDir():
		return archive.Identity{Kind: archive.KindDirectory, Path: path, FileType: archive.FileTypeROM}, true
	default:
		return archive.Identity{}, false
	}
}

// indexArchive computes (or reuses cached) fingerprints for every member of
// a and registers them in index.
func (e *Engine) indexArchive(a *archive.Archive, location archive.Location, index *memoryindex.Index) error {
	for i, m := range a.Files() {
		if a.IsDeleted(i) {
			continue
		}
		fp, err := a.EnsureMemberFingerprints(i, fingerprint.KindDigests)
		if err != nil {
			e.Logger.Warnf("%s: member %q: %v", a.Identity(), m.Name, err)
			continue
		}
		index.Add(a.Identity().FileType, fp, memoryindex.FindResult{
			Archive:     a,
			MemberIndex: i,
			Location:    location,
		})
	}
	return nil
}

// cacheFor returns the ArchiveCache for root, opening (and memoizing) it
// the first time root is scanned. It returns a nil cache, not an error,
// when no cache directory is configured.
func (e *Engine) cacheFor(root string) (*archivecache.Cache, error) {
	if e.Config.Paths.Cache == "" {
		return nil, nil
	}
	if c, ok := e.caches[root]; ok {
		return c, nil
	}
	if err := os.MkdirAll(e.Config.Paths.Cache, 0755); err != nil {
		return nil, fmt.Errorf("unable to create cache directory: %w", err)
	}
	digest := sha1.Sum([]byte(root))
	path := filepath.Join(e.Config.Paths.Cache, fmt.Sprintf("%x.db", digest))
	c, err := archivecache.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open archive cache for %q: %w", root, err)
	}
	e.caches[root] = c
	return c, nil
}

// loadCachedMembers returns the raw (non-detector-transformed) fingerprints
// the cache last recorded for the packed archive at path, if its on-disk
// probe still matches. Detector-transformed rows aren't restored here: the
// cache stores them under a cache-local detector id, and translating that
// back to the engine's process-wide detector registry would require a
// reverse lookup the cache doesn't expose, so those are simply
// recomputed lazily like any first-time member.
func loadCachedMembers(cache *archivecache.Cache, path string) ([]archive.Member, error) {
	probe, err := fsutil.ProbeFile(path)
	if err != nil {
		return nil, nil // vanished since ReadDir listed it; let the backend report the error
	}
	upToDate, err := cache.IsUpToDate(path, probe)
	if err != nil {
		return nil, fmt.Errorf("unable to check archive cache for %q: %w", path, err)
	}
	if !upToDate {
		return nil, nil
	}

	cached, ok, err := cache.Lookup(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read archive cache for %q: %w", path, err)
	}
	if !ok {
		return nil, nil
	}

	var members []archive.Member
	for _, m := range cached.Members {
		if m.DetectorLocalID != 0 {
			continue
		}
		members = append(members, archive.Member{
			Name:        m.Name,
			Broken:      m.Broken,
			Fingerprint: m.Fingerprint,
		})
	}
	return members, nil
}

// saveCachedMembers records a's current raw member fingerprints in cache,
// replacing whatever was previously stored for its path.
func saveCachedMembers(cache *archivecache.Cache, path string, a *archive.Archive) error {
	probe, err := fsutil.ProbeFile(path)
	if err != nil {
		return fmt.Errorf("unable to probe %q: %w", path, err)
	}

	var rows []archivecache.CachedMember
	for i, m := range a.Files() {
		if a.IsDeleted(i) {
			continue
		}
		rows = append(rows, archivecache.CachedMember{
			Index:         i,
			Name:          m.Name,
			MTimeUnixNano: m.MTime.UnixNano(),
			Broken:        m.Broken,
			Fingerprint:   m.Fingerprint,
		})
	}

	if err := cache.Write(path, a.Identity().FileType, probe, rows); err != nil {
		return fmt.Errorf("unable to write archive cache for %q: %w", path, err)
	}
	return nil
}
