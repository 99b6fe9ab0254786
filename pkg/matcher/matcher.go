// Package matcher implements per-required-file resolution: for each file a
// game declares, run a small priority list of tests and stop at the first
// one that succeeds, then derive the game's overall status from the
// collected results: each required file is resolved independently before
// rolling the per-file outcomes into an overall game status.
package matcher

import (
	"github.com/ckmame/ckmame/pkg/archive"
	"github.com/ckmame/ckmame/pkg/catalog"
	"github.com/ckmame/ckmame/pkg/detector"
	"github.com/ckmame/ckmame/pkg/finder"
	"github.com/ckmame/ckmame/pkg/fingerprint"
)

// Quality is the outcome of resolving a single required file.
type Quality int

const (
	Unchecked Quality = iota
	Missing
	Ok
	NameError
	Long
	Copied
	InZip
	Old
	OkAndOld
	NoHash
)

// String renders a Quality for diagnostics.
func (q Quality) String() string {
	switch q {
	case Missing:
		return "missing"
	case Ok:
		return "ok"
	case NameError:
		return "name-error"
	case Long:
		return "long"
	case Copied:
		return "copied"
	case InZip:
		return "in-zip"
	case Old:
		return "old"
	case OkAndOld:
		return "ok-and-old"
	case NoHash:
		return "no-hash"
	default:
		return "unchecked"
	}
}

// ArchiveFileStatus classifies a member of an archive once matching has
// run, independent of any single required file's match quality.
type ArchiveFileStatus int

const (
	StatusUnknown ArchiveFileStatus = iota
	StatusPartUsed
	StatusUsed
	StatusMissing
	StatusBroken
	StatusSuperfluous
	StatusNeeded
	StatusDuplicate
)

// GameStatus is the overall verdict for one game once every required file
// has been resolved.
type GameStatus int

const (
	GameMissing GameStatus = iota
	GameCorrect
	GameCorrectMia
	GameFixable
	GamePartial
	GameOld
)

// String renders a GameStatus for diagnostics.
func (s GameStatus) String() string {
	switch s {
	case GameCorrect:
		return "correct"
	case GameCorrectMia:
		return "correct-mia"
	case GameFixable:
		return "fixable"
	case GamePartial:
		return "partial"
	case GameOld:
		return "old"
	default:
		return "missing"
	}
}

// Match is the resolved outcome for one required file.
type Match struct {
	Quality       Quality
	SourceLocation archive.Location
	SourceArchive *archive.Archive
	SourceIndex   int
	Offset        int64
	OldGameName   string
	OldFileName   string
}

// Archives bundles the archives a game's required files may resolve
// against. Parent and Grandparent are nil when the game declares none.
type Archives struct {
	Own         *archive.Archive
	Parent      *archive.Archive
	Grandparent *archive.Archive
}

// ancestorFor returns the archive named by where, or nil if that ancestor
// wasn't supplied.
func (a Archives) ancestorFor(where catalog.Where) *archive.Archive {
	switch where {
	case catalog.WhereParent:
		return a.Parent
	case catalog.WhereGrandparent:
		return a.Grandparent
	default:
		return a.Own
	}
}

// Options controls configuration-sensitive matcher behavior.
type Options struct {
	// NoDumpCountsAsMissing, when true, treats a required file whose
	// catalog status is NoDump as contributing to "Missing" rather than
	// being silently excused.
	NoDumpCountsAsMissing bool
}

// Result is the outcome of matching one game: an overall status and one
// Match per required file, grouped the same way Game.Required is (by
// filetype, in declaration order).
type Result struct {
	Status  GameStatus
	Matches map[archive.FileType][]Match

	// ArchiveFileStatus records, per member index of Archives.Own, the
	// status derived while resolving this game's required files. Members
	// never touched by any required file are absent from the map; the
	// planner's unknown sweep moves them to the garbage sibling (or deletes
	// them) right after this game is planned.
	ArchiveFileStatus map[int]ArchiveFileStatus
}

// Matcher resolves a game's required files against its archives.
type Matcher struct {
	Finder    *finder.Finder
	Detectors *detector.Registry
	Options   Options
}

// New creates a Matcher.
func New(f *finder.Finder, detectors *detector.Registry, options Options) *Matcher {
	return &Matcher{Finder: f, Detectors: detectors, Options: options}
}

// MatchGame resolves every required file of g against archives, returning
// the per-file matches and the derived overall status.
func (m *Matcher) MatchGame(g catalog.Game, archives Archives) Result {
	result := Result{
		Matches:           make(map[archive.FileType][]Match),
		ArchiveFileStatus: make(map[int]ArchiveFileStatus),
	}

	for filetype, required := range g.Required {
		matches := make([]Match, len(required))
		for i, r := range required {
			match := m.matchRequired(filetype, r, archives)
			matches[i] = match
			m.recordArchiveFileStatus(archives, match, result.ArchiveFileStatus)
		}
		result.Matches[filetype] = matches
	}

	result.Status = deriveGameStatus(g, result.Matches, m.Options)
	return result
}

// matchRequired runs the priority list for a single required file.
func (m *Matcher) matchRequired(filetype archive.FileType, r catalog.Required, archives Archives) Match {
	// Test 1 (and, folded in, test 2): name (or merge_name) + size +
	// digests in the expected ancestor archive. merge_name already encodes
	// "the name this file is known by in that ancestor", so checking
	// EffectiveName against the ancestor named by Where covers both name
	// and merge-name cases in one lookup.
	target := archives.ancestorFor(r.Where)
	if target != nil {
		if idx := target.IndexOfName(r.EffectiveName()); idx >= 0 {
			fp, err := target.EnsureMemberFingerprints(idx, fingerprint.KindDigests)
			if err == nil && fp.CompareWithSize(r.Fingerprint) {
				return Match{Quality: Ok, SourceArchive: target, SourceIndex: idx, SourceLocation: target.Location()}
			}
		}
	}

	// Test 3: size + digests anywhere in the game's own archive, under any
	// name -> NameError if the name differs from what's required.
	if archives.Own != nil {
		for idx, file := range archives.Own.Files() {
			if archives.Own.IsDeleted(idx) {
				continue
			}
			fp, err := archives.Own.EnsureMemberFingerprints(idx, fingerprint.KindDigests)
			if err != nil || !fp.CompareWithSize(r.Fingerprint) {
				continue
			}
			if file.Name == r.EffectiveName() {
				continue // already covered by test 1/2, this would be Ok
			}
			return Match{Quality: NameError, SourceArchive: archives.Own, SourceIndex: idx, SourceLocation: archives.Own.Location()}
		}
	}

	// Test 4: long — a member larger than required holding the required
	// content as a length-aligned sub-range.
	if archives.Own != nil {
		if size, ok := r.Fingerprint.Size(); ok && size > 0 {
			for idx, file := range archives.Own.Files() {
				if archives.Own.IsDeleted(idx) {
					continue
				}
				fileSize, ok := file.Fingerprint.Size()
				if !ok || fileSize <= size {
					continue
				}
				offset, found, err := archives.Own.FindOffset(idx, int64(size), r.Fingerprint)
				if err == nil && found {
					return Match{Quality: Long, SourceArchive: archives.Own, SourceIndex: idx, Offset: offset, SourceLocation: archives.Own.Location()}
				}
			}
		}
	}

	// Test 5: finder across the romset.
	if m.Finder != nil {
		if result, found, err := m.Finder.FindInRomset(filetype, r.Fingerprint, archives.Own, r.EffectiveName()); err == nil && found {
			quality := Copied
			if target != nil && result.Archive == target {
				quality = InZip
			}
			return Match{Quality: quality, SourceArchive: result.Archive, SourceIndex: result.MemberIndex, SourceLocation: result.Location}
		}
	}

	// Test 6: finder across needed/extra.
	if m.Finder != nil {
		if result, found, err := m.Finder.FindInArchives(filetype, r.Fingerprint, archives.Own, r.EffectiveName(), false); err == nil && found {
			return Match{Quality: Copied, SourceArchive: result.Archive, SourceIndex: result.MemberIndex, SourceLocation: result.Location}
		}
		if result, found, err := m.Finder.FindInOld(filetype, r.Fingerprint); err == nil && found {
			return Match{Quality: Old, SourceArchive: result.Archive, SourceIndex: result.MemberIndex, SourceLocation: result.Location}
		}
	}

	if fp, ok := r.Fingerprint.Size(); ok && fp == 0 {
		return Match{Quality: Missing}
	}
	return Match{Quality: Missing}
}

// recordArchiveFileStatus updates the own-archive member status map based
// on one required file's match, marking a Long match's source PartUsed so
// it isn't later swept as superfluous, and an Ok/NameError source Used.
// Matches whose source is another archive leave the map untouched.
func (m *Matcher) recordArchiveFileStatus(archives Archives, match Match, status map[int]ArchiveFileStatus) {
	if archives.Own == nil || match.SourceArchive != archives.Own {
		return
	}
	switch match.Quality {
	case Long:
		status[match.SourceIndex] = StatusPartUsed
	case Ok, NameError:
		status[match.SourceIndex] = StatusUsed
	}
}

// deriveGameStatus derives a game's overall GameStatus from its required
// files across every filetype. Perfect matches
// (Quality Ok, plus anything the "NoDump doesn't count as missing" rule
// excuses) are tracked separately from matches that are present but need
// an actual repair action (NameError/Long/Copied/InZip), since only the
// latter push a game from Correct down to Fixable.
func deriveGameStatus(g catalog.Game, matches map[archive.FileType][]Match, opts Options) GameStatus {
	total, perfectOk, fixableReachable, missing, old, anyMIA := 0, 0, 0, 0, 0, false

	for filetype, required := range g.Required {
		fileMatches := matches[filetype]
		for i, r := range required {
			total++
			q := fileMatches[i].Quality
			countsAsMissing := q == Missing && (r.Status != catalog.StatusNoDump || opts.NoDumpCountsAsMissing)
			switch {
			case q == Ok:
				perfectOk++
				if r.MIA {
					anyMIA = true
				}
			case q == NameError || q == Long || q == Copied || q == InZip:
				fixableReachable++
			case q == Old || q == OkAndOld:
				old++
			case countsAsMissing:
				missing++
			default:
				// NoDump not counted as missing, or NoHash: treat as
				// satisfied for status purposes per the Open Question
				// default.
				perfectOk++
			}
		}
	}

	switch {
	case total == 0:
		return GameCorrect
	case old == total:
		return GameOld
	case perfectOk == total:
		if anyMIA || g.IsMIA {
			return GameCorrectMia
		}
		return GameCorrect
	case missing == 0:
		return GameFixable
	case perfectOk == 0 && missing == total:
		return GameMissing
	case perfectOk > 0 && missing > 0:
		return GamePartial
	default:
		return GamePartial
	}
}
