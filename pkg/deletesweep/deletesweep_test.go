package deletesweep

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ckmame/ckmame/pkg/archive"
	"github.com/ckmame/ckmame/pkg/planner"
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

func openGameArchive(t *testing.T, path string) *archive.Archive {
	t.Helper()
	registry := archive.NewRegistry(false)
	id := archive.Identity{Kind: archive.KindDirectory, Path: path, FileType: archive.FileTypeROM}
	a, err := archive.Open(registry, id, archive.LocationRomset, archive.FlagCreate, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

// TestRunDeletesQueuedMembers tests that a queued (archive, member) entry
// is deleted on sweep.
func TestRunDeletesQueuedMembers(t *testing.T) {
	root := t.TempDir()
	gameDir := filepath.Join(root, "g")
	writeFile(t, gameDir, "keep.rom", []byte("keep"))
	writeFile(t, gameDir, "junk.rom", []byte("junk"))
	a := openGameArchive(t, gameDir)
	junkIdx := a.IndexOfName("junk.rom")

	list := planner.NewDeleteList()
	list.MarkMember(a, junkIdx)

	s := New(nil, nil)
	if err := s.Run(archive.FileTypeROM, list); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(gameDir, "junk.rom")); !os.IsNotExist(err) {
		t.Error("expected junk.rom removed from disk")
	}
	if _, err := os.Stat(filepath.Join(gameDir, "keep.rom")); err != nil {
		t.Error("expected keep.rom left in place")
	}
}

// TestRunRemovesEmptyArchive tests that an archive left with zero
// surviving members after the sweep is removed from the filesystem.
func TestRunRemovesEmptyArchive(t *testing.T) {
	root := t.TempDir()
	gameDir := filepath.Join(root, "g")
	writeFile(t, gameDir, "only.rom", []byte("x"))
	a := openGameArchive(t, gameDir)
	idx := a.IndexOfName("only.rom")

	list := planner.NewDeleteList()
	list.MarkMember(a, idx)

	s := New(nil, nil)
	if err := s.Run(archive.FileTypeROM, list); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(gameDir); !os.IsNotExist(err) {
		t.Error("expected the now-empty game directory removed")
	}
}

// TestRunSkipsAlreadyDeletedMember tests that a member the planner already
// staged for delete (e.g. via the Copied path re-queuing the same donor)
// isn't deleted twice.
func TestRunSkipsAlreadyDeletedMember(t *testing.T) {
	root := t.TempDir()
	gameDir := filepath.Join(root, "g")
	writeFile(t, gameDir, "a.rom", []byte("x"))
	writeFile(t, gameDir, "b.rom", []byte("y"))
	a := openGameArchive(t, gameDir)
	idx := a.IndexOfName("a.rom")
	if err := a.Delete(idx); err != nil {
		t.Fatal(err)
	}

	list := planner.NewDeleteList()
	list.MarkMember(a, idx)

	s := New(nil, nil)
	if err := s.Run(archive.FileTypeROM, list); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(gameDir, "b.rom")); err != nil {
		t.Error("expected b.rom left in place")
	}
}

// TestRunIgnoresOtherFiletypeArchive tests that a Run call for one filetype
// doesn't touch an archive queued under another filetype: calling Run twice
// (ROM then disk) against the same list must not let the disk pass reuse
// indices a ROM-pass commit already renumbered.
func TestRunIgnoresOtherFiletypeArchive(t *testing.T) {
	root := t.TempDir()

	romDir := filepath.Join(root, "rom")
	writeFile(t, romDir, "keep.rom", []byte("keep"))
	writeFile(t, romDir, "junk.rom", []byte("junk"))
	romArchive := openGameArchive(t, romDir)
	romJunk := romArchive.IndexOfName("junk.rom")

	diskDir := filepath.Join(root, "disk")
	writeFile(t, diskDir, "keep.chd", []byte("keep"))
	writeFile(t, diskDir, "junk.chd", []byte("junk"))
	registry := archive.NewRegistry(false)
	diskID := archive.Identity{Kind: archive.KindDirectory, Path: diskDir, FileType: archive.FileTypeDisk}
	diskArchive, err := archive.Open(registry, diskID, archive.LocationRomset, archive.FlagCreate, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	diskJunk := diskArchive.IndexOfName("junk.chd")

	list := planner.NewDeleteList()
	list.MarkMember(romArchive, romJunk)
	list.MarkMember(diskArchive, diskJunk)

	s := New(nil, nil)
	if err := s.Run(archive.FileTypeROM, list); err != nil {
		t.Fatal(err)
	}
	if err := s.Run(archive.FileTypeDisk, list); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(romDir, "junk.rom")); !os.IsNotExist(err) {
		t.Error("expected junk.rom removed from disk")
	}
	if _, err := os.Stat(filepath.Join(romDir, "keep.rom")); err != nil {
		t.Error("expected keep.rom left in place")
	}
	if _, err := os.Stat(filepath.Join(diskDir, "junk.chd")); !os.IsNotExist(err) {
		t.Error("expected junk.chd removed from disk")
	}
	if _, err := os.Stat(filepath.Join(diskDir, "keep.chd")); err != nil {
		t.Error("expected keep.chd left in place")
	}
}
