package archive

import (
	"os"
	"path/filepath"
	"testing"
)

// TestDirectoryBackendAddRenameDeleteCommit tests that a full cycle of
// add/rename/delete mutations against a directory backend lands on disk
// exactly as staged after Commit.
func TestDirectoryBackendAddRenameDeleteCommit(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "old.rom"), []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "gone.rom"), []byte("bye"), 0644); err != nil {
		t.Fatal(err)
	}

	registry := NewRegistry(false)
	identity := Identity{Kind: KindDirectory, Path: root, FileType: FileTypeROM}
	a, err := Open(registry, identity, LocationRomset, 0, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	oldIndex := a.IndexOfName("old.rom")
	if oldIndex < 0 {
		t.Fatal("expected old.rom to be listed")
	}
	if err := a.Rename(oldIndex, "new.rom"); err != nil {
		t.Fatal(err)
	}

	goneIndex := a.IndexOfName("gone.rom")
	if goneIndex < 0 {
		t.Fatal("expected gone.rom to be listed")
	}
	if err := a.Delete(goneIndex); err != nil {
		t.Fatal(err)
	}

	if _, err := a.AddEmpty("empty.rom"); err != nil {
		t.Fatal(err)
	}

	if err := a.Commit(); err != nil {
		t.Fatal("commit failed:", err)
	}

	if _, err := os.Stat(filepath.Join(root, "new.rom")); err != nil {
		t.Error("expected new.rom to exist after commit:", err)
	}
	if _, err := os.Stat(filepath.Join(root, "old.rom")); !os.IsNotExist(err) {
		t.Error("expected old.rom to no longer exist after rename")
	}
	if _, err := os.Stat(filepath.Join(root, "gone.rom")); !os.IsNotExist(err) {
		t.Error("expected gone.rom to be removed after commit")
	}
	if info, err := os.Stat(filepath.Join(root, "empty.rom")); err != nil {
		t.Error("expected empty.rom to exist after commit:", err)
	} else if info.Size() != 0 {
		t.Error("expected empty.rom to be zero-length")
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("expected exactly 2 surviving entries, got %d", len(entries))
	}
}

// TestDirectoryBackendReadOnlyRejectsMutation tests that a read-only
// directory archive refuses to stage mutations.
func TestDirectoryBackendReadOnlyRejectsMutation(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.rom"), []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}

	registry := NewRegistry(true)
	identity := Identity{Kind: KindDirectory, Path: root, FileType: FileTypeROM}
	a, err := Open(registry, identity, LocationRomset, 0, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := a.Delete(0); err != ErrReadOnly {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
}

// TestOpenDeduplicatesByIdentity tests that two Open calls with the same
// identity return the same Archive instance.
func TestOpenDeduplicatesByIdentity(t *testing.T) {
	root := t.TempDir()
	registry := NewRegistry(false)
	identity := Identity{Kind: KindDirectory, Path: root, FileType: FileTypeROM}

	first, err := Open(registry, identity, LocationRomset, 0, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Open(registry, identity, LocationRomset, 0, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatal("expected Open to deduplicate by identity")
	}
}
