// Package deletesweep drains the delete-list the planner accumulates while
// processing every game in a run: members queued for deletion, and whole
// archives to re-check for emptiness once their deletes have landed. It
// runs once, after every game has been planned, rather than incrementally
// per game.
package deletesweep

import (
	"fmt"
	"os"
	"sort"

	"github.com/dustin/go-humanize"

	"github.com/ckmame/ckmame/pkg/archive"
	"github.com/ckmame/ckmame/pkg/logging"
	"github.com/ckmame/ckmame/pkg/memoryindex"
	"github.com/ckmame/ckmame/pkg/planner"
)

// removerFunc adapts a plain function to the archive.Remove backing-store
// remover interface.
type removerFunc func(string) error

func (f removerFunc) Remove(path string) error { return f(path) }

// osRemover deletes a path recursively, used for directory-backend
// archives whose backing store is a directory tree rather than a single
// file.
var osRemover = removerFunc(os.RemoveAll)

// Sweeper drains a planner.DeleteList.
type Sweeper struct {
	Index  *memoryindex.Index
	Logger *logging.Logger
}

// New creates a Sweeper.
func New(index *memoryindex.Index, logger *logging.Logger) *Sweeper {
	return &Sweeper{Index: index, Logger: logger}
}

// Run applies every queued member delete, batched by archive to avoid
// reopening the same archive repeatedly, then removes any archive left
// with zero surviving members from both the filesystem and the memory
// index.
func (s *Sweeper) Run(filetype archive.FileType, list *planner.DeleteList) error {
	archives := list.Archives(filetype)
	sort.Slice(archives, func(i, j int) bool {
		return archives[i].Identity().Path < archives[j].Identity().Path
	})

	for _, a := range archives {
		var freed uint64
		for _, index := range list.EntriesFor(a) {
			if a.IsDeleted(index) {
				continue // already staged, e.g. by the planner's own Copied handling
			}
			if size, ok := a.Files()[index].Fingerprint.Size(); ok {
				freed += size
			}
			if err := a.Delete(index); err != nil {
				return fmt.Errorf("deletesweep: %s: %w", a.Identity(), err)
			}
			if s.Index != nil {
				s.Index.Remove(filetype, a, index)
			}
		}
		if err := a.Commit(); err != nil {
			return fmt.Errorf("deletesweep: commit %s: %w", a.Identity(), err)
		}
		if freed > 0 {
			s.Logger.Infof("%s: freed %s", a.Identity(), humanize.Bytes(freed))
		}
		if len(a.Files()) == 0 {
			if err := a.Remove(osRemover); err != nil {
				return fmt.Errorf("deletesweep: remove %s: %w", a.Identity(), err)
			}
		}
	}

	return nil
}
