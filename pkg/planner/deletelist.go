package planner

import "github.com/ckmame/ckmame/pkg/archive"

// DeleteListEntry is one (archive, member) pair queued for deletion during
// the final sweep.
type DeleteListEntry struct {
	Archive     *archive.Archive
	MemberIndex int
}

// DeleteList accumulates everything the final sweep (pkg/deletesweep) needs
// to process once every game has been planned: specific members to delete,
// and whole archives to re-check for emptiness after deletes land. Archives
// are marked rather than deleted inline, since an archive queued by one
// game may still be read from as a copy source by another game processed
// later in the same run.
type DeleteList struct {
	entries         []DeleteListEntry
	archivesToCheck []*archive.Archive
	seenArchive     map[*archive.Archive]bool
}

// NewDeleteList creates an empty DeleteList.
func NewDeleteList() *DeleteList {
	return &DeleteList{seenArchive: make(map[*archive.Archive]bool)}
}

// MarkMember queues the member at index in a for deletion.
func (d *DeleteList) MarkMember(a *archive.Archive, index int) {
	d.entries = append(d.entries, DeleteListEntry{Archive: a, MemberIndex: index})
	d.markArchiveChecked(a)
}

// MarkArchiveForRemoval queues a, which committed with zero surviving
// members, for removal from the filesystem and the memory index.
func (d *DeleteList) MarkArchiveForRemoval(a *archive.Archive) {
	d.markArchiveChecked(a)
}

func (d *DeleteList) markArchiveChecked(a *archive.Archive) {
	if d.seenArchive[a] {
		return
	}
	d.seenArchive[a] = true
	d.archivesToCheck = append(d.archivesToCheck, a)
}

// Entries returns every queued (archive, member) deletion, in the order
// they were marked.
func (d *DeleteList) Entries() []DeleteListEntry {
	return d.entries
}

// Archives returns every archive of the given filetype queued for an
// emptiness re-check, in the order first marked. An archive only ever
// holds members of one filetype (its Identity().FileType), so filtering
// here also keeps a filetype's sweep pass from revisiting an archive
// another pass already committed (and renumbered).
func (d *DeleteList) Archives(filetype archive.FileType) []*archive.Archive {
	var archives []*archive.Archive
	for _, a := range d.archivesToCheck {
		if a.Identity().FileType == filetype {
			archives = append(archives, a)
		}
	}
	return archives
}

// EntriesFor returns the queued member deletions belonging to a single
// archive, which pkg/deletesweep uses to batch its sweep by archive.
func (d *DeleteList) EntriesFor(a *archive.Archive) []int {
	var indices []int
	for _, e := range d.entries {
		if e.Archive == a {
			indices = append(indices, e.MemberIndex)
		}
	}
	return indices
}

// Mark is a snapshot of the queue's length, taken before planning a game so
// that anything the game queues can be discarded if its repair never
// commits.
type Mark struct {
	entries  int
	archives int
}

// Mark returns a snapshot of the current queue.
func (d *DeleteList) Mark() Mark {
	return Mark{entries: len(d.entries), archives: len(d.archivesToCheck)}
}

// DiscardSince rolls the queue back to mark, dropping every entry and
// archive-check queued after it. Used when a game's planned mutations
// failed to commit, so nothing that game queued should reach the final
// sweep.
func (d *DeleteList) DiscardSince(mark Mark) {
	for _, a := range d.archivesToCheck[mark.archives:] {
		delete(d.seenArchive, a)
	}
	d.entries = d.entries[:mark.entries]
	d.archivesToCheck = d.archivesToCheck[:mark.archives]
}
