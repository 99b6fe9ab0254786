// Package finder implements candidate search across archives: given a
// required file's fingerprint, locate a member anywhere in scope (the
// romset, an old catalog, or the needed/extra stashes) whose content
// strictly matches. It shares one search routine across its three entry
// points (FindInRomset, FindInOld, FindInArchives): a cheap index lookup
// narrows candidates, then each candidate is opened and strictly verified
// before being trusted.
package finder

import (
	"fmt"

	"github.com/ckmame/ckmame/pkg/archive"
	"github.com/ckmame/ckmame/pkg/detector"
	"github.com/ckmame/ckmame/pkg/fingerprint"
	"github.com/ckmame/ckmame/pkg/logging"
	"github.com/ckmame/ckmame/pkg/memoryindex"
)

// Result identifies a verified match: a specific member, under a specific
// detector id, at a specific location.
type Result struct {
	Archive    *archive.Archive
	MemberIndex int
	DetectorID int
	Location   archive.Location
}

// Finder searches one or more MemoryIndexes for content matching a
// required fingerprint, verifying each candidate strictly before returning
// it.
type Finder struct {
	Index     *memoryindex.Index // romset + extra + needed + superfluous
	OldIndex  *memoryindex.Index // content known from the old catalog, may be nil
	Detectors *detector.Registry
	Logger    *logging.Logger
}

// New creates a Finder over the given indexes. oldIndex may be nil if no
// old catalog was supplied.
func New(index, oldIndex *memoryindex.Index, detectors *detector.Registry, logger *logging.Logger) *Finder {
	return &Finder{Index: index, OldIndex: oldIndex, Detectors: detectors, Logger: logger}
}

// FindInRomset searches only the romset location for a member matching
// required, skipping skipArchive/skipName (the file currently being
// resolved, so it doesn't match itself).
func (f *Finder) FindInRomset(filetype archive.FileType, required fingerprint.Fingerprint, skipArchive *archive.Archive, skipName string) (Result, bool, error) {
	allowed := map[archive.Location]bool{archive.LocationRomset: true}
	return f.find(f.Index, filetype, 0, required, allowed, skipArchive, skipName)
}

// FindInOld searches the old-catalog index, if one was supplied.
func (f *Finder) FindInOld(filetype archive.FileType, required fingerprint.Fingerprint) (Result, bool, error) {
	if f.OldIndex == nil {
		return Result{}, false, nil
	}
	allowed := map[archive.Location]bool{
		archive.LocationRomset: true, archive.LocationExtra: true,
		archive.LocationNeeded: true, archive.LocationSuperfluous: true,
	}
	return f.find(f.OldIndex, filetype, 0, required, allowed, nil, "")
}

// FindInArchives searches every known location (or, if neededOnly is set,
// only the needed/ stash) for a member matching required.
func (f *Finder) FindInArchives(filetype archive.FileType, required fingerprint.Fingerprint, skipArchive *archive.Archive, skipName string, neededOnly bool) (Result, bool, error) {
	var allowed map[archive.Location]bool
	if neededOnly {
		allowed = map[archive.Location]bool{archive.LocationNeeded: true}
	} else {
		allowed = map[archive.Location]bool{
			archive.LocationRomset: true, archive.LocationExtra: true,
			archive.LocationNeeded: true, archive.LocationSuperfluous: true,
		}
	}
	return f.find(f.Index, filetype, 0, required, allowed, skipArchive, skipName)
}

// find is the shared search routine. A detectorID of 0 means "search with
// raw fingerprints, then retry per registered detector if nothing
// verifies"; a non-zero detectorID restricts verification to that single
// detector's transformed fingerprint and never recurses further.
func (f *Finder) find(idx *memoryindex.Index, filetype archive.FileType, detectorID int, required fingerprint.Fingerprint, allowed map[archive.Location]bool, skipArchive *archive.Archive, skipName string) (Result, bool, error) {
	for _, candidate := range idx.Find(filetype, required) {
		if !allowed[candidate.Location] {
			continue
		}
		if candidate.Archive == skipArchive && skipName != "" {
			files := candidate.Archive.Files()
			if candidate.MemberIndex < len(files) && files[candidate.MemberIndex].Name == skipName {
				continue
			}
		}
		if candidate.Archive.IsDeleted(candidate.MemberIndex) {
			continue
		}

		matched, err := f.checkCandidate(candidate, detectorID, required)
		if err != nil {
			continue // a broken candidate is simply not a match
		}
		if matched {
			return Result{
				Archive:     candidate.Archive,
				MemberIndex: candidate.MemberIndex,
				DetectorID:  detectorID,
				Location:    candidate.Location,
			}, true, nil
		}
	}

	if detectorID != 0 || f.Detectors == nil {
		return Result{}, false, nil
	}
	for _, d := range f.Detectors.All() {
		if result, found, err := f.find(idx, filetype, d.ID, required, allowed, skipArchive, skipName); err != nil {
			return Result{}, false, err
		} else if found {
			return result, true, nil
		}
	}
	return Result{}, false, nil
}

// checkCandidate lazily completes whatever fingerprint the candidate still
// lacks under detectorID, then strictly compares (size and every digest
// kind both sides carry) against required.
func (f *Finder) checkCandidate(candidate memoryindex.FindResult, detectorID int, required fingerprint.Fingerprint) (bool, error) {
	var computed fingerprint.Fingerprint
	var err error

	if detectorID == 0 {
		computed, err = candidate.Archive.EnsureMemberFingerprints(candidate.MemberIndex, fingerprint.KindDigests)
	} else {
		d, ok := f.Detectors.Get(detectorID)
		if !ok {
			return false, fmt.Errorf("finder: unknown detector id %d", detectorID)
		}
		computed, err = candidate.Archive.EnsureDetectorFingerprint(candidate.MemberIndex, detectorID, d.Apply, fingerprint.KindDigests)
	}
	if err != nil {
		return false, err
	}

	return computed.CompareWithSize(required), nil
}
