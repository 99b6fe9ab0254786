// Package engine wires the matcher, finder, planner, walker, and
// delete-sweep into one run: the explicit, passed-by-reference context
// object that gathers the memory index, archive registry, delete-list, and
// logger a session needs, in place of package-level singletons. Drives its
// passes sequentially rather than from a background goroutine, reflecting
// single-threaded, cooperative scheduling.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/ckmame/ckmame/pkg/archive"
	"github.com/ckmame/ckmame/pkg/archivecache"
	"github.com/ckmame/ckmame/pkg/catalog"
	"github.com/ckmame/ckmame/pkg/contextutil"
	"github.com/ckmame/ckmame/pkg/detector"
	"github.com/ckmame/ckmame/pkg/engineconfig"
	"github.com/ckmame/ckmame/pkg/deletesweep"
	"github.com/ckmame/ckmame/pkg/finder"
	"github.com/ckmame/ckmame/pkg/fingerprint"
	"github.com/ckmame/ckmame/pkg/logging"
	"github.com/ckmame/ckmame/pkg/matcher"
	"github.com/ckmame/ckmame/pkg/memoryindex"
	"github.com/ckmame/ckmame/pkg/planner"
	"github.com/ckmame/ckmame/pkg/walker"
)

// ErrCancelled is returned by Run when ctx is cancelled before every game
// has been processed. Games already reported are returned alongside it.
var ErrCancelled = fmt.Errorf("engine: run cancelled")

// Engine holds every piece of session-wide state a verify-and-repair run
// shares across games: the archive registry (so the same archive is never
// opened twice), the memory index (so content found for one game is
// visible when resolving another), the delete-list the planner
// accumulates, and the logger every component writes through.
type Engine struct {
	Config    engineconfig.Options
	Logger    *logging.Logger
	Registry  *archive.Registry
	Detectors *detector.Registry
	Index     *memoryindex.Index
	OldIndex  *memoryindex.Index

	deleteList *planner.DeleteList
	matcher    *matcher.Matcher
	planner    *planner.Planner
	sweeper    *deletesweep.Sweeper
	caches     map[string]*archivecache.Cache

	Stats Statistics
}

// New constructs an Engine from validated configuration. It opens no
// archives itself; archives are opened lazily as games are processed.
func New(config engineconfig.Options, logger *logging.Logger) *Engine {
	index := memoryindex.New()

	var oldIndex *memoryindex.Index
	if config.Paths.Old != "" {
		oldIndex = memoryindex.New()
	}

	e := &Engine{
		Config:     config,
		Logger:     logger,
		Registry:   archive.NewRegistry(false),
		Detectors:  detector.NewRegistry(),
		Index:      index,
		OldIndex:   oldIndex,
		deleteList: planner.NewDeleteList(),
		caches:     make(map[string]*archivecache.Cache),
	}

	f := finder.New(e.Index, e.OldIndex, e.Detectors, logger.Sublogger("finder"))
	e.matcher = matcher.New(f, e.Detectors, config.MatcherOptions())
	e.planner = planner.New(
		config.PlannerOptions(),
		e.openGarbageSibling,
		e.openNeededStash,
		e.deleteList,
		e.Index,
		logger.Sublogger("planner"),
	)
	e.sweeper = deletesweep.New(e.Index, logger.Sublogger("deletesweep"))

	return e
}

// Prepare scans every donor root (extra directories, the needed/ stash,
// and the old romset if configured) into the memory indexes, ahead of
// matching any game. The romset root is not scanned: romset content enters
// the index only when a repair copies it into a romset archive.
func (e *Engine) Prepare() error {
	for _, root := range e.Config.Paths.Extra {
		if err := e.scanRoot(root, archive.LocationExtra, e.Index); err != nil {
			return fmt.Errorf("engine: scanning extra root %q: %w", root, err)
		}
	}
	if e.Config.Paths.Needed != "" {
		if err := e.scanRoot(e.Config.Paths.Needed, archive.LocationNeeded, e.Index); err != nil {
			return fmt.Errorf("engine: scanning needed stash %q: %w", e.Config.Paths.Needed, err)
		}
	}
	if e.Config.Paths.Old != "" {
		if err := e.scanRoot(e.Config.Paths.Old, archive.LocationExtra, e.OldIndex); err != nil {
			return fmt.Errorf("engine: scanning old romset %q: %w", e.Config.Paths.Old, err)
		}
	}
	return nil
}

// Run walks cat's games ancestor-first, matching and (when fix is true)
// repairing each one, then drains the delete-list the repairs accumulated.
// It returns one GameReport per game, in the order the walker visited them.
// Cancelling ctx stops the walk before the next game and returns
// ErrCancelled alongside whatever reports were gathered so far; a repair
// already committed for the current game is never rolled back.
func (e *Engine) Run(ctx context.Context, cat *catalog.Catalog, fix bool) ([]GameReport, error) {
	w := walker.New(cat)

	var reports []GameReport
	reportIndex := make(map[string]int)
	var runErr error

	walker.Walk(w, func(g catalog.Game) bool {
		if runErr != nil {
			return false
		}
		if contextutil.IsCancelled(ctx) {
			runErr = ErrCancelled
			return false
		}
		report, recheck, err := e.processGame(cat, g, fix)
		if err != nil {
			runErr = err
			return false
		}
		if idx, ok := reportIndex[g.Name]; ok {
			reports[idx] = report
		} else {
			reportIndex[g.Name] = len(reports)
			reports = append(reports, report)
		}
		return recheck
	})
	if runErr != nil {
		return reports, runErr
	}

	if fix {
		for _, filetype := range []archive.FileType{archive.FileTypeROM, archive.FileTypeDisk} {
			if err := e.sweeper.Run(filetype, e.deleteList); err != nil {
				return nil, fmt.Errorf("engine: delete sweep: %w", err)
			}
		}
	}

	e.Stats = summarize(reports)
	return reports, nil
}

// processGame verifies g and, if fix is set and g is repairable, plans and
// commits its repair, then re-verifies to report the final status. It
// returns whether g should be revisited in the walker's second pass: true
// when g is still not correct after repair, so a later sibling's stash
// landing in the meantime gets a second chance to resolve it.
//
// A PlanGame failure (e.g. an archive the filesystem won't let us commit)
// is local to this game: its delete-list mark is discarded so nothing it
// queued reaches the final sweep, the result is reported as still-unfixed
// rather than upgraded to Repaired, and the walk continues to the next
// game instead of aborting the whole run.
func (e *Engine) processGame(cat *catalog.Catalog, g catalog.Game, fix bool) (GameReport, bool, error) {
	archives, err := e.openGameArchives(cat, g)
	if err != nil {
		return GameReport{}, false, err
	}

	result := e.matcher.MatchGame(g, archives)

	if !fix || result.Status == matcher.GameCorrect || result.Status == matcher.GameCorrectMia {
		return GameReport{Game: g.Name, Status: result.Status}, false, nil
	}

	mark := e.deleteList.Mark()
	if err := e.planner.PlanGame(g, archives, result); err != nil {
		e.deleteList.DiscardSince(mark)
		e.Logger.Warnf("engine: planning %q: %v", g.Name, err)
		return GameReport{Game: g.Name, Status: result.Status}, false, nil
	}

	result = e.matcher.MatchGame(g, archives)
	recheck := result.Status != matcher.GameCorrect && result.Status != matcher.GameCorrectMia
	return GameReport{Game: g.Name, Status: result.Status, Repaired: true}, recheck, nil
}

// openGameArchives resolves a game's own archive and, if it has ancestors,
// their archives too, opening each through the shared registry so repeated
// visits (e.g. a descendant resolving against its parent) see the same
// staged state.
func (e *Engine) openGameArchives(cat *catalog.Catalog, g catalog.Game) (matcher.Archives, error) {
	own, err := e.openGameArchive(g.Name)
	if err != nil {
		return matcher.Archives{}, fmt.Errorf("engine: opening %q: %w", g.Name, err)
	}

	archives := matcher.Archives{Own: own}

	if parent, ok := cat.Parent(g); ok {
		p, err := e.openGameArchive(parent.Name)
		if err != nil {
			return matcher.Archives{}, fmt.Errorf("engine: opening parent %q: %w", parent.Name, err)
		}
		archives.Parent = p
	}
	if grandparent, ok := cat.Grandparent(g); ok {
		gp, err := e.openGameArchive(grandparent.Name)
		if err != nil {
			return matcher.Archives{}, fmt.Errorf("engine: opening grandparent %q: %w", grandparent.Name, err)
		}
		archives.Grandparent = gp
	}

	return archives, nil
}

// openGameArchive opens the romset archive for the named game, creating it
// if it doesn't yet exist (a game with nothing on disk is simply all
// Missing).
func (e *Engine) openGameArchive(name string) (*archive.Archive, error) {
	id := e.resolveIdentity(e.Config.Paths.Romset, name)
	if a, ok := e.Registry.Lookup(id); ok {
		return a, nil
	}
	return archive.Open(e.Registry, id, archive.LocationRomset, archive.FlagCreate, nil, e.Logger.Sublogger("archive"))
}

// resolveIdentity infers an archive's backend kind from what's already on
// disk under root for the given game name: a packed zip or 7z file if one
// exists, a directory otherwise (the common ckmame unpacked-mode layout).
func (e *Engine) resolveIdentity(root, name string) archive.Identity {
	if _, err := os.Stat(filepath.Join(root, name+".zip")); err == nil {
		return archive.Identity{Kind: archive.KindZip, Path: filepath.Join(root, name+".zip"), FileType: archive.FileTypeROM}
	}
	if _, err := os.Stat(filepath.Join(root, name+".7z")); err == nil {
		return archive.Identity{Kind: archive.KindSevenZip, Path: filepath.Join(root, name+".7z"), FileType: archive.FileTypeROM}
	}
	return archive.Identity{Kind: archive.KindDirectory, Path: filepath.Join(root, name), FileType: archive.FileTypeROM}
}

// openGarbageSibling opens (creating if necessary) the unclaimed-member
// sibling archive for own: <unknown_dir>/<name> when an unknown directory
// is configured, or <name>.garbage beside own when none is.
func (e *Engine) openGarbageSibling(own *archive.Archive) (*archive.Archive, error) {
	root := e.Config.Paths.Unknown
	name := filepath.Base(own.Identity().Path)
	if root == "" {
		root = filepath.Dir(own.Identity().Path)
		name += ".garbage"
	}
	id := archive.Identity{Kind: archive.KindDirectory, Path: filepath.Join(root, name), FileType: own.Identity().FileType}
	if a, ok := e.Registry.Lookup(id); ok {
		return a, nil
	}
	return archive.Open(e.Registry, id, archive.LocationSuperfluous, archive.FlagCreate, nil, e.Logger.Sublogger("archive"))
}

// openNeededStash opens (creating if necessary) the directory archive
// needed/<digest> that holds one piece of needed content, keyed by its
// content digest so re-running a scan finds the same stash. The stash is
// always a directory archive; no numbered zip or .chd stash file is
// written, and every filetype shares the same naming.
func (e *Engine) openNeededStash(filetype archive.FileType, fp fingerprint.Fingerprint) (*archive.Archive, error) {
	digest := fingerprintDigestName(fp)
	id := archive.Identity{Kind: archive.KindDirectory, Path: filepath.Join(e.Config.Paths.Needed, digest), FileType: filetype}
	if a, ok := e.Registry.Lookup(id); ok {
		return a, nil
	}
	return archive.Open(e.Registry, id, archive.LocationNeeded, archive.FlagCreate, nil, e.Logger.Sublogger("archive"))
}

// fingerprintDigestName renders a fingerprint's SHA-1 (falling back to
// CRC32) as a filesystem-safe name for the needed/ stash. A fingerprint
// bearing neither digest can't be named deterministically; a random UUID
// keeps two such stashes from colliding on the same "unknown" name.
func fingerprintDigestName(fp fingerprint.Fingerprint) string {
	if sha1, ok := fp.SHA1(); ok {
		return fmt.Sprintf("%x", sha1)
	}
	if crc, ok := fp.CRC32(); ok {
		return fmt.Sprintf("%08x", crc)
	}
	return uuid.NewString()
}
