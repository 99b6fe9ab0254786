// Package walker orders games for processing so that every game's parent
// (and grandparent) has already been repaired by the time the game itself
// is matched and planned, then runs a second pass over every game the
// visit function flagged for recheck during the first pass: a retry/recheck
// cycle for dependency chains that need more than one reconciliation round
// to converge.
package walker

import "github.com/ckmame/ckmame/pkg/catalog"

// node is one entry in the walk forest.
type node struct {
	game     catalog.Game
	children []*node
}

// Walker orders a catalog's games into a multi-root forest keyed by name,
// parents before their descendants, and drives a visit function over it.
type Walker struct {
	cat   *catalog.Catalog
	roots []*node
	byName map[string]*node
}

// New builds a Walker over every game in cat.
func New(cat *catalog.Catalog) *Walker {
	w := &Walker{cat: cat, byName: make(map[string]*node)}
	for _, g := range cat.Games() {
		w.insert(g)
	}
	return w
}

// insert places g into the forest, first inserting its parent and
// grandparent (if any and not already present) so that ancestors always
// precede descendants in the resulting pre-order traversal.
func (w *Walker) insert(g catalog.Game) *node {
	if existing, ok := w.byName[g.Name]; ok {
		return existing
	}

	n := &node{game: g}
	w.byName[g.Name] = n

	parent, hasParent := w.cat.Parent(g)
	if !hasParent {
		w.roots = append(w.roots, n)
		return n
	}

	parentNode := w.insert(parent)
	parentNode.children = append(parentNode.children, n)
	return n
}

// VisitFunc is called once per game in pre-order (ancestors before
// descendants). It returns whether the game is to be visited again in the
// second pass. The walker does not track which games depend on a stashed
// file; the visit function alone decides which games to flag.
type VisitFunc func(g catalog.Game) (recheck bool)

// Walk runs visit over every game in the forest in pre-order, then runs a
// second pre-order pass restricted to games visit flagged for recheck.
// Two passes suffice because a stash only ever makes a later game more
// complete, never less, so no game can newly require a third pass as a
// consequence of the second.
func Walk(w *Walker, visit VisitFunc) {
	var recheck []*node
	var walk func(n *node)
	walk = func(n *node) {
		if visit(n.game) {
			recheck = append(recheck, n)
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	for _, root := range w.roots {
		walk(root)
	}

	for _, n := range recheck {
		visit(n.game)
	}
}

// Roots returns the forest's top-level nodes' games, for diagnostics.
func (w *Walker) Roots() []catalog.Game {
	games := make([]catalog.Game, len(w.roots))
	for i, n := range w.roots {
		games[i] = n.game
	}
	return games
}
