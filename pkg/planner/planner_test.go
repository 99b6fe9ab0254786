package planner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ckmame/ckmame/pkg/archive"
	"github.com/ckmame/ckmame/pkg/catalog"
	"github.com/ckmame/ckmame/pkg/fingerprint"
	"github.com/ckmame/ckmame/pkg/matcher"
)

func writeFile(t *testing.T, dir, name string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), content, 0644); err != nil {
		t.Fatal(err)
	}
}

func openGameArchive(t *testing.T, dir, name string) *archive.Archive {
	t.Helper()
	registry := archive.NewRegistry(false)
	id := archive.Identity{Kind: archive.KindDirectory, Path: filepath.Join(dir, name), FileType: archive.FileTypeROM}
	a, err := archive.Open(registry, id, archive.LocationRomset, archive.FlagCreate, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

// TestPlanOneRenamesOnNameError tests that a NameError match stages a
// rename to the required name.
func TestPlanOneRenamesOnNameError(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "g"), "a-renamed.rom", []byte("abcd"))
	own := openGameArchive(t, root, "g")
	idx := own.IndexOfName("a-renamed.rom")

	p := New(Options{}, nil, nil, NewDeleteList(), nil, nil)
	r := catalog.Required{Name: "a.rom"}
	match := matcher.Match{Quality: matcher.NameError, SourceArchive: own, SourceIndex: idx}
	status := make(map[int]matcher.ArchiveFileStatus)

	if err := p.planOne(archive.FileTypeROM, r, match, matcher.Archives{Own: own}, status); err != nil {
		t.Fatal(err)
	}
	if own.Files()[idx].Name != "a.rom" {
		t.Errorf("name = %q, want a.rom", own.Files()[idx].Name)
	}
}

// TestPlanOneLongFreesSlotAndCopiesRange tests that a Long match renames
// the oversize member aside, copies the required sub-range under the
// required name, and deletes the original.
func TestPlanOneLongFreesSlotAndCopiesRange(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "g"), "a.rom", []byte("XXXXYYYY"))
	own := openGameArchive(t, root, "g")
	idx := own.IndexOfName("a.rom")

	p := New(Options{}, nil, nil, NewDeleteList(), nil, nil)
	r := catalog.Required{Name: "required.rom", Fingerprint: fingerprint.New(4)}
	match := matcher.Match{Quality: matcher.Long, SourceArchive: own, SourceIndex: idx, Offset: 4}
	status := make(map[int]matcher.ArchiveFileStatus)

	if err := p.planOne(archive.FileTypeROM, r, match, matcher.Archives{Own: own}, status); err != nil {
		t.Fatal(err)
	}

	if !own.IsDeleted(idx) {
		t.Error("expected the original long member to be staged for delete")
	}
	newIdx := own.IndexOfName("required.rom")
	if newIdx < 0 {
		t.Fatal("expected a new member named required.rom")
	}
}

// TestPlanOneCopiedSkipsSameArchiveSource tests the quarantine-of-same-
// archive rule: a Copied match whose source is the own archive stages no
// copy and marks the source used rather than unknown.
func TestPlanOneCopiedSkipsSameArchiveSource(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "g"), "dup.rom", []byte("abcd"))
	own := openGameArchive(t, root, "g")
	idx := own.IndexOfName("dup.rom")

	p := New(Options{}, nil, nil, NewDeleteList(), nil, nil)
	r := catalog.Required{Name: "a.rom"}
	match := matcher.Match{Quality: matcher.Copied, SourceArchive: own, SourceIndex: idx}
	status := make(map[int]matcher.ArchiveFileStatus)

	if err := p.planOne(archive.FileTypeROM, r, match, matcher.Archives{Own: own}, status); err != nil {
		t.Fatal(err)
	}
	if len(own.Files()) != 1 {
		t.Errorf("expected no new member staged, got %d files", len(own.Files()))
	}
	if status[idx] != matcher.StatusUsed {
		t.Errorf("expected source marked Used, got %v", status[idx])
	}
}

// TestPlanOneCopiedFromOtherArchiveCopiesAndMarksDelete tests that a
// Copied match from a different archive stages a copy and marks the
// source for deletion on the shared delete-list.
func TestPlanOneCopiedFromOtherArchiveCopiesAndMarksDelete(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "donor"), "a.rom", []byte("abcd"))
	donor := openGameArchive(t, root, "donor")
	donorIdx := donor.IndexOfName("a.rom")

	own := openGameArchive(t, root, "g")

	deleteList := NewDeleteList()
	p := New(Options{}, nil, nil, deleteList, nil, nil)
	r := catalog.Required{Name: "a.rom"}
	match := matcher.Match{Quality: matcher.Copied, SourceArchive: donor, SourceIndex: donorIdx}
	status := make(map[int]matcher.ArchiveFileStatus)

	if err := p.planOne(archive.FileTypeROM, r, match, matcher.Archives{Own: own}, status); err != nil {
		t.Fatal(err)
	}
	if own.IndexOfName("a.rom") < 0 {
		t.Error("expected a new member named a.rom in own")
	}
	if len(deleteList.EntriesFor(donor)) != 1 {
		t.Errorf("expected the donor member queued for delete, got %d entries", len(deleteList.EntriesFor(donor)))
	}
}

// TestSweepUnknownMovesUnclaimedMemberToGarbageSibling tests that a member
// no required file claimed is moved into the garbage sibling rather than
// left in place.
func TestSweepUnknownMovesUnclaimedMemberToGarbageSibling(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "g"), "junk.rom", []byte("zzzz"))
	own := openGameArchive(t, root, "g")
	junkIdx := own.IndexOfName("junk.rom")

	siblingDir := filepath.Join(root, "unknown")
	var sibling *archive.Archive
	opener := func(o *archive.Archive) (*archive.Archive, error) {
		registry := archive.NewRegistry(false)
		id := archive.Identity{Kind: archive.KindDirectory, Path: siblingDir, FileType: archive.FileTypeROM}
		a, err := archive.Open(registry, id, archive.LocationSuperfluous, archive.FlagCreate, nil, nil)
		sibling = a
		return a, err
	}

	p := New(Options{}, opener, nil, NewDeleteList(), nil, nil)
	status := make(map[int]matcher.ArchiveFileStatus)

	if err := p.sweepUnknown(own, status); err != nil {
		t.Fatal(err)
	}
	if !own.IsDeleted(junkIdx) {
		t.Error("expected the unclaimed member staged for delete in own")
	}
	if sibling == nil || sibling.IndexOfName("junk.rom") < 0 {
		t.Error("expected the unclaimed member copied into the garbage sibling")
	}
}

// TestSweepUnknownDeletesMatchingPattern tests that an unclaimed member
// matching an unknown-delete pattern is deleted outright, never reaching
// the garbage sibling.
func TestSweepUnknownDeletesMatchingPattern(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "g"), "Thumbs.db", []byte("junk"))
	own := openGameArchive(t, root, "g")
	idx := own.IndexOfName("Thumbs.db")

	called := false
	opener := func(o *archive.Archive) (*archive.Archive, error) {
		called = true
		return nil, nil
	}

	p := New(Options{UnknownDeletePatterns: []string{"Thumbs.db"}}, opener, nil, NewDeleteList(), nil, nil)
	status := make(map[int]matcher.ArchiveFileStatus)

	if err := p.sweepUnknown(own, status); err != nil {
		t.Fatal(err)
	}
	if !own.IsDeleted(idx) {
		t.Error("expected the matched member staged for delete")
	}
	if called {
		t.Error("expected the garbage sibling never opened for a pattern-matched member")
	}
}
