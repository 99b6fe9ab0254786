package planner

import (
	"path/filepath"

	"github.com/ckmame/ckmame/pkg/archive"
	"github.com/ckmame/ckmame/pkg/matcher"
)

// sweepUnknown moves every member of own left at matcher.StatusUnknown (not
// claimed by any required file of the game just planned) into its garbage
// sibling, or deletes it outright if its name matches an unknown-delete
// pattern. This assumes the common one-archive-per-game layout; an archive
// shared by more than one game would need the sweep deferred until every
// game referencing it has planned, which this engine doesn't model since
// ckmame romsets never share an archive across games.
func (p *Planner) sweepUnknown(own *archive.Archive, status map[int]matcher.ArchiveFileStatus) error {
	if own == nil {
		return nil
	}

	var sibling *archive.Archive
	for index, file := range own.Files() {
		if own.IsDeleted(index) {
			continue
		}
		if _, claimed := status[index]; claimed {
			continue
		}

		if matchesAny(p.Options.UnknownDeletePatterns, file.Name) {
			if err := own.Delete(index); err != nil {
				return err
			}
			continue
		}

		if p.OpenGarbageSibling == nil {
			continue
		}
		if sibling == nil {
			var err error
			sibling, err = p.OpenGarbageSibling(own)
			if err != nil {
				return err
			}
		}
		if _, err := sibling.CopyFrom(own, index, file.Name); err != nil {
			return err
		}
		if err := own.Delete(index); err != nil {
			return err
		}
	}

	if sibling != nil {
		if err := sibling.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// matchesAny reports whether name matches any of patterns, using shell
// glob semantics.
func matchesAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if ok, err := filepath.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}
