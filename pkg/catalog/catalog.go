// Package catalog implements the engine's immutable view of a reference
// DAT: a set of games, their required files, and the parent/grandparent
// relationships between them. The catalog never holds pointers between
// games — only names — so it stays comparable and cloneable without graph
// surgery; the tree walker resolves names to archives at match time.
package catalog

import (
	"fmt"

	"github.com/ckmame/ckmame/pkg/archive"
	"github.com/ckmame/ckmame/pkg/fingerprint"
)

// DumpStatus records the catalog's declared quality for a required file,
// independent of whatever the matcher later finds on disk.
type DumpStatus int

const (
	// StatusOk is a normally dumped, verified file.
	StatusOk DumpStatus = iota
	// StatusBadDump is a known-bad dump, still tracked for completeness.
	StatusBadDump
	// StatusNoDump means no dump of this file is known to exist.
	StatusNoDump
)

// String renders a DumpStatus for diagnostics.
func (s DumpStatus) String() string {
	switch s {
	case StatusOk:
		return "ok"
	case StatusBadDump:
		return "baddump"
	case StatusNoDump:
		return "nodump"
	default:
		return "unknown"
	}
}

// Where identifies which ancestor archive a required file should ultimately
// reside in.
type Where int

const (
	// WhereSelf is the game's own archive.
	WhereSelf Where = iota
	// WhereParent is the game's parent archive.
	WhereParent
	// WhereGrandparent is the game's grandparent archive.
	WhereGrandparent
)

// String renders a Where for diagnostics.
func (w Where) String() string {
	switch w {
	case WhereSelf:
		return "self"
	case WhereParent:
		return "parent"
	case WhereGrandparent:
		return "grandparent"
	default:
		return "unknown"
	}
}

// Required is one required file entry within a Game's per-filetype list.
type Required struct {
	Name        string
	Fingerprint fingerprint.Fingerprint
	Status      DumpStatus
	Where       Where
	MergeName   string
	MIA         bool
}

// EffectiveName returns the name this required file is known by in the
// archive named by Where: MergeName when set, otherwise Name.
func (r Required) EffectiveName() string {
	if r.MergeName != "" {
		return r.MergeName
	}
	return r.Name
}

// Game is one entry in the catalog: a name, optional ancestors, and a
// required-file list per filetype.
type Game struct {
	Name            string
	DatIndex        int
	Description     string
	ParentName      string
	GrandparentName string
	IsMIA           bool

	Required map[archive.FileType][]Required
}

// HasParent reports whether g declares a parent game.
func (g Game) HasParent() bool {
	return g.ParentName != ""
}

// HasGrandparent reports whether g declares a grandparent game.
func (g Game) HasGrandparent() bool {
	return g.GrandparentName != ""
}

// Catalog is the finished, immutable view of a DAT: every game the
// reference describes, indexed by name.
type Catalog struct {
	Name        string
	Description string
	Version     string

	games    []Game
	byName   map[string]int
	detector string
}

// New builds a Catalog from a completed game list. Two games sharing a
// name are rejected outright, as a conflicting catalog rather than a
// silently-overwritten one.
func New(name, description, version, detectorFile string, games []Game) (*Catalog, error) {
	byName := make(map[string]int, len(games))
	for i, g := range games {
		if _, exists := byName[g.Name]; exists {
			return nil, fmt.Errorf("catalog: duplicate game %q: %w", g.Name, ErrDuplicateGame)
		}
		byName[g.Name] = i
	}
	c := &Catalog{
		Name:        name,
		Description: description,
		Version:     version,
		games:       games,
		byName:      byName,
		detector:    detectorFile,
	}
	c.resolveAncestorWhere()
	return c, nil
}

// resolveAncestorWhere refines the Where field of every required file that
// carries a merge_name: the event stream only says "this file is shared
// with an ancestor", not which one. A clone-of-clone's shared file belongs
// to the parent if the parent itself declares it, otherwise it has skipped
// a generation and belongs to the grandparent.
func (c *Catalog) resolveAncestorWhere() {
	for gi, g := range c.games {
		if !g.HasParent() {
			continue
		}
		parent, ok := c.Game(g.ParentName)
		if !ok {
			continue
		}
		grandparent, hasGrandparent := Game{}, false
		if g.HasGrandparent() {
			grandparent, hasGrandparent = c.Game(g.GrandparentName)
		}
		for ft, required := range g.Required {
			for ri, r := range required {
				if r.Where != WhereParent || r.MergeName == "" {
					continue
				}
				if parentHasFile(parent, ft, r.EffectiveName()) {
					continue
				}
				if hasGrandparent && parentHasFile(grandparent, ft, r.EffectiveName()) {
					c.games[gi].Required[ft][ri].Where = WhereGrandparent
				}
			}
		}
	}
}

// parentHasFile reports whether game g declares a required file of the
// given type whose own name (not merge name) matches target.
func parentHasFile(g Game, ft archive.FileType, target string) bool {
	for _, r := range g.Required[ft] {
		if r.Name == target {
			return true
		}
	}
	return false
}

// DetectorFile returns the path referenced by the catalog's
// detector-file-reference event, if any.
func (c *Catalog) DetectorFile() string {
	return c.detector
}

// Games returns every game in declaration order.
func (c *Catalog) Games() []Game {
	return c.games
}

// Game returns the game named name, if present.
func (c *Catalog) Game(name string) (Game, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Game{}, false
	}
	return c.games[i], true
}

// Parent returns g's parent game, if it declares one and the catalog
// contains it.
func (c *Catalog) Parent(g Game) (Game, bool) {
	if g.ParentName == "" {
		return Game{}, false
	}
	return c.Game(g.ParentName)
}

// Grandparent returns g's grandparent game, if it declares one and the
// catalog contains it.
func (c *Catalog) Grandparent(g Game) (Game, bool) {
	if g.GrandparentName == "" {
		return Game{}, false
	}
	return c.Game(g.GrandparentName)
}
