// Package memoryindex implements the process-wide, in-memory map from
// content fingerprints to every known location that content currently
// lives, across every archive opened during a run. It's the cross-archive
// counterpart to the per-directory archivecache: where archivecache
// remembers one directory's contents between runs, memoryindex answers "is
// this content anywhere at all" during a single run.
package memoryindex

import (
	"sync"

	"github.com/ckmame/ckmame/pkg/archive"
	"github.com/ckmame/ckmame/pkg/fingerprint"
)

// FindResult identifies one location where a piece of content is known to
// live.
type FindResult struct {
	Archive     *archive.Archive
	MemberIndex int
	DetectorID  int
	Location    archive.Location
}

// equalLocation reports whether two FindResults name the same
// (archive, member, detector) triple, used to dedupe lookups that match
// via more than one shared digest kind.
func (r FindResult) equalLocation(other FindResult) bool {
	return r.Archive == other.Archive && r.MemberIndex == other.MemberIndex && r.DetectorID == other.DetectorID
}

// Index is the process-wide reverse-lookup map. A member contributes one
// entry per digest kind it carries (CRC32, MD5, SHA-1), so that a query
// fingerprint carrying only one digest kind can still find a candidate
// that was indexed with all three. The zero value is not ready to use;
// construct with New.
type Index struct {
	mu sync.Mutex

	byCRC32 map[archive.FileType]map[uint32][]FindResult
	byMD5   map[archive.FileType]map[[16]byte][]FindResult
	bySHA1  map[archive.FileType]map[[20]byte][]FindResult
}

// New creates an empty Index.
func New() *Index {
	return &Index{
		byCRC32: make(map[archive.FileType]map[uint32][]FindResult),
		byMD5:   make(map[archive.FileType]map[[16]byte][]FindResult),
		bySHA1:  make(map[archive.FileType]map[[20]byte][]FindResult),
	}
}

// Add registers one location for fp under filetype. It's called once per
// (member, detector-id) pair discovered while populating the index from a
// scanned archive, and again any time an archive mutation changes which
// content a member holds.
func (idx *Index) Add(filetype archive.FileType, fp fingerprint.Fingerprint, result FindResult) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if crc, ok := fp.CRC32(); ok {
		m := idx.byCRC32[filetype]
		if m == nil {
			m = make(map[uint32][]FindResult)
			idx.byCRC32[filetype] = m
		}
		m[crc] = append(m[crc], result)
	}
	if md5sum, ok := fp.MD5(); ok {
		m := idx.byMD5[filetype]
		if m == nil {
			m = make(map[[16]byte][]FindResult)
			idx.byMD5[filetype] = m
		}
		m[md5sum] = append(m[md5sum], result)
	}
	if sha1sum, ok := fp.SHA1(); ok {
		m := idx.bySHA1[filetype]
		if m == nil {
			m = make(map[[20]byte][]FindResult)
			idx.bySHA1[filetype] = m
		}
		m[sha1sum] = append(m[sha1sum], result)
	}
}

// Remove deletes every entry under filetype referring to the given
// archive/member pair, under every detector id. It's called whenever an archive mutation
// (delete, rename over, commit) makes a previously-indexed location no
// longer valid.
func (idx *Index) Remove(filetype archive.FileType, a *archive.Archive, memberIndex int) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	match := func(r FindResult) bool {
		return r.Archive == a && r.MemberIndex == memberIndex
	}
	removeMatching(idx.byCRC32[filetype], match)
	removeMatching(idx.byMD5[filetype], match)
	removeMatching(idx.bySHA1[filetype], match)
}

// removeMatching filters every bucket in m in place, dropping FindResults
// for which match returns true.
func removeMatching[K comparable](m map[K][]FindResult, match func(FindResult) bool) {
	for key, results := range m {
		filtered := results[:0]
		for _, r := range results {
			if !match(r) {
				filtered = append(filtered, r)
			}
		}
		if len(filtered) == 0 {
			delete(m, key)
		} else {
			m[key] = filtered
		}
	}
}

// Find returns every location whose stored digests match fp on the
// intersection of the digest kinds fp carries with the digest kinds it was
// indexed under. The finder (pkg/finder) refines this candidate list with a
// strict, fully-verified comparison, since two different indexed digest
// kinds for two different members can coincidentally overlap with a query
// that only carries one kind.
func (idx *Index) Find(filetype archive.FileType, fp fingerprint.Fingerprint) []FindResult {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var results []FindResult
	seen := func(candidate FindResult) bool {
		for _, r := range results {
			if r.equalLocation(candidate) {
				return true
			}
		}
		return false
	}

	if crc, ok := fp.CRC32(); ok {
		for _, r := range idx.byCRC32[filetype][crc] {
			if !seen(r) {
				results = append(results, r)
			}
		}
	}
	if md5sum, ok := fp.MD5(); ok {
		for _, r := range idx.byMD5[filetype][md5sum] {
			if !seen(r) {
				results = append(results, r)
			}
		}
	}
	if sha1sum, ok := fp.SHA1(); ok {
		for _, r := range idx.bySHA1[filetype][sha1sum] {
			if !seen(r) {
				results = append(results, r)
			}
		}
	}

	return results
}
