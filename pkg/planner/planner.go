// Package planner translates a matcher.Result into a sequence of staged
// archive mutations and commits them: a pure translation from "what's true"
// (a Match) to "what changes" (a staged Change), with the actual mutation
// primitives living on Archive itself rather than in this package.
package planner

import (
	"fmt"

	"github.com/ckmame/ckmame/pkg/archive"
	"github.com/ckmame/ckmame/pkg/catalog"
	"github.com/ckmame/ckmame/pkg/fingerprint"
	"github.com/ckmame/ckmame/pkg/logging"
	"github.com/ckmame/ckmame/pkg/matcher"
	"github.com/ckmame/ckmame/pkg/memoryindex"
)

// Options controls configuration-sensitive planning behavior.
type Options struct {
	// KeepDuplicates, when true, leaves an OkAndOld member in place instead
	// of deleting it.
	KeepDuplicates bool

	// UnknownDeletePatterns lists shell glob patterns; an unclaimed member
	// whose name matches one is deleted outright instead of being moved
	// into its archive's garbage sibling.
	UnknownDeletePatterns []string
}

// GarbageSiblingOpener returns the garbage-sibling archive for an
// unclaimed member of own (the `<unknown_dir>/<name>` archive), opening or
// creating it as needed.
type GarbageSiblingOpener func(own *archive.Archive) (*archive.Archive, error)

// NeededStashOpener returns an archive to hold one piece of needed
// content, keyed by the content digest of fp.
type NeededStashOpener func(filetype archive.FileType, fp fingerprint.Fingerprint) (*archive.Archive, error)

// Planner stages and commits the mutations a matcher.Result implies.
type Planner struct {
	Options            Options
	OpenGarbageSibling GarbageSiblingOpener
	OpenNeededStash    NeededStashOpener
	DeleteList         *DeleteList
	Index              *memoryindex.Index
	Logger             *logging.Logger
}

// New creates a Planner.
func New(options Options, openGarbageSibling GarbageSiblingOpener, openNeededStash NeededStashOpener, deleteList *DeleteList, index *memoryindex.Index, logger *logging.Logger) *Planner {
	return &Planner{
		Options:            options,
		OpenGarbageSibling: openGarbageSibling,
		OpenNeededStash:    openNeededStash,
		DeleteList:         deleteList,
		Index:              index,
		Logger:             logger,
	}
}

// PlanGame stages every mutation g's Result implies against archives, then
// commits archives.Own first and the ancestors last, per the commit
// protocol: ancestors are only ever repair *sources* for this game (never
// destinations), so committing own first means a later ancestor-commit
// failure never loses a mutation already durable in own.
func (p *Planner) PlanGame(g catalog.Game, archives matcher.Archives, result matcher.Result) error {
	for filetype, matches := range result.Matches {
		required := g.Required[filetype]
		for i, match := range matches {
			if err := p.planOne(filetype, required[i], match, archives, result.ArchiveFileStatus); err != nil {
				archives.Own.Rollback()
				return fmt.Errorf("planner: game %s: %w", g.Name, err)
			}
		}
	}

	if err := p.sweepUnknown(archives.Own, result.ArchiveFileStatus); err != nil {
		return err
	}

	if archives.Own != nil {
		if err := archives.Own.Commit(); err != nil {
			archives.Own.Rollback()
			return fmt.Errorf("planner: game %s: commit own archive: %w", g.Name, err)
		}
	}
	for _, ancestor := range []*archive.Archive{archives.Parent, archives.Grandparent} {
		if ancestor == nil {
			continue
		}
		if err := ancestor.Commit(); err != nil {
			return fmt.Errorf("planner: game %s: commit ancestor archive: %w", g.Name, err)
		}
	}

	if archives.Own != nil && len(archives.Own.Files()) == 0 {
		p.DeleteList.MarkArchiveForRemoval(archives.Own)
	}

	return nil
}

// planOne stages the mutation implied by one required file's match,
// switching on the match's quality to pick the repair action.
func (p *Planner) planOne(filetype archive.FileType, r catalog.Required, match matcher.Match, archives matcher.Archives, status map[int]matcher.ArchiveFileStatus) error {
	switch match.Quality {
	case matcher.Ok:
		return nil

	case matcher.Missing:
		if size, ok := r.Fingerprint.Size(); ok && size == 0 {
			_, err := archives.Own.AddEmpty(r.EffectiveName())
			return err
		}
		return nil

	case matcher.NameError:
		if match.SourceArchive != archives.Own {
			return fmt.Errorf("planner: NameError match outside own archive")
		}
		if archives.Own.IndexOfName(r.EffectiveName()) >= 0 {
			if _, err := archives.Own.RenameToUnique(archives.Own.IndexOfName(r.EffectiveName())); err != nil {
				return err
			}
		}
		return archives.Own.Rename(match.SourceIndex, r.EffectiveName())

	case matcher.Long:
		if match.SourceArchive != archives.Own {
			return fmt.Errorf("planner: Long match outside own archive")
		}
		size, _ := r.Fingerprint.Size()
		// Free the name the copy will use by displacing the long member
		// to a unique name in the same archive; its content is still
		// readable from its new name at commit time.
		if _, err := archives.Own.RenameToUnique(match.SourceIndex); err != nil {
			return err
		}
		newIndex, err := archives.Own.CopyRangeFrom(archives.Own, match.SourceIndex, r.EffectiveName(), match.Offset, int64(size), r.Fingerprint)
		if err != nil {
			return err
		}
		if err := archives.Own.Delete(match.SourceIndex); err != nil {
			return err
		}
		if p.Index != nil {
			p.Index.Add(filetype, r.Fingerprint, memoryindex.FindResult{Archive: archives.Own, MemberIndex: newIndex, Location: archives.Own.Location()})
		}
		return nil

	case matcher.Copied:
		if match.SourceArchive == archives.Own {
			// Quarantine-of-same-archive: the content already lives under
			// a different name in this archive; nothing to copy, but the
			// source member is serving this required file and must not be
			// swept as unknown.
			status[match.SourceIndex] = matcher.StatusUsed
			return nil
		}
		if existing := archives.Own.IndexOfName(r.EffectiveName()); existing >= 0 {
			if _, err := archives.Own.RenameToUnique(existing); err != nil {
				return err
			}
		}
		newIndex, err := archives.Own.CopyFrom(match.SourceArchive, match.SourceIndex, r.EffectiveName())
		if err != nil {
			return err
		}
		p.DeleteList.MarkMember(match.SourceArchive, match.SourceIndex)
		if p.Index != nil {
			p.Index.Add(filetype, r.Fingerprint, memoryindex.FindResult{Archive: archives.Own, MemberIndex: newIndex, Location: archives.Own.Location()})
		}
		return nil

	case matcher.InZip:
		if p.OpenNeededStash == nil {
			return nil
		}
		stash, err := p.OpenNeededStash(filetype, r.Fingerprint)
		if err != nil {
			return err
		}
		newIndex, err := stash.CopyFrom(match.SourceArchive, match.SourceIndex, match.SourceArchive.Files()[match.SourceIndex].Name)
		if err != nil {
			return err
		}
		if err := stash.Commit(); err != nil {
			return err
		}
		if p.Index != nil {
			p.Index.Add(filetype, r.Fingerprint, memoryindex.FindResult{Archive: stash, MemberIndex: newIndex, Location: archive.LocationNeeded})
		}
		return nil

	case matcher.OkAndOld:
		if p.Options.KeepDuplicates {
			return nil
		}
		if match.SourceArchive != archives.Own {
			return nil
		}
		return archives.Own.Delete(match.SourceIndex)

	default:
		return nil
	}
}
