package catalog

import (
	"testing"

	"github.com/ckmame/ckmame/pkg/archive"
)

func size(n uint64) *uint64 { return &n }

// TestBuilderAccumulatesFilesBetweenBeginAndEnd tests the core event-stream
// contract: files fed between game-begin and game-end land in that game's
// required list.
func TestBuilderAccumulatesFilesBetweenBeginAndEnd(t *testing.T) {
	b := NewBuilder()
	events := []Event{
		{Kind: EventHeader, HeaderName: "Test Set", HeaderVersion: "1.0"},
		{Kind: EventGameBegin, Name: "g"},
		{Kind: EventFile, File: FileEvent{FileType: archive.FileTypeROM, Name: "a.rom", Size: size(4), CRC32Hex: "12345678"}},
		{Kind: EventGameEnd},
		{Kind: EventEOF},
	}
	for _, e := range events {
		if err := b.Feed(e); err != nil {
			t.Fatalf("Feed(%v): %v", e, err)
		}
	}

	cat, err := b.Finish(nil)
	if err != nil {
		t.Fatal(err)
	}
	g, ok := cat.Game("g")
	if !ok {
		t.Fatal("expected game g")
	}
	required := g.Required[archive.FileTypeROM]
	if len(required) != 1 {
		t.Fatalf("expected 1 required file, got %d", len(required))
	}
	if required[0].Name != "a.rom" {
		t.Errorf("name = %q, want a.rom", required[0].Name)
	}
	if crc, ok := required[0].Fingerprint.CRC32(); !ok || crc != 0x12345678 {
		t.Errorf("crc32 = %x, ok=%v, want 12345678", crc, ok)
	}
}

// TestDescriptionDeduplicatesWithName tests the round-trip normalization
// rule: an empty or name-matching description collapses to the game name.
func TestDescriptionDeduplicatesWithName(t *testing.T) {
	b := NewBuilder()
	feedAll(t, b, []Event{
		{Kind: EventGameBegin, Name: "g"},
		{Kind: EventGameDescription, Description: ""},
		{Kind: EventGameEnd},
	})
	cat, err := b.Finish(nil)
	if err != nil {
		t.Fatal(err)
	}
	g, _ := cat.Game("g")
	if g.Description != "g" {
		t.Errorf("description = %q, want g", g.Description)
	}
}

// TestFeedRejectsGameBeginWithoutEnd tests that a nested game-begin is
// rejected as a malformed stream.
func TestFeedRejectsGameBeginWithoutEnd(t *testing.T) {
	b := NewBuilder()
	if err := b.Feed(Event{Kind: EventGameBegin, Name: "g1"}); err != nil {
		t.Fatal(err)
	}
	if err := b.Feed(Event{Kind: EventGameBegin, Name: "g2"}); err == nil {
		t.Fatal("expected an error for nested game-begin")
	}
}

// TestFeedRejectsFileOutsideGame tests that a file event with no open game
// is rejected.
func TestFeedRejectsFileOutsideGame(t *testing.T) {
	b := NewBuilder()
	err := b.Feed(Event{Kind: EventFile, File: FileEvent{Name: "a.rom"}})
	if err == nil {
		t.Fatal("expected an error for a file event outside game-begin/end")
	}
}

// TestNewRejectsDuplicateGameNames tests that the catalog constructor
// rejects two games sharing a name, per the conflicting-duplicate-game
// fatal catalog error.
func TestNewRejectsDuplicateGameNames(t *testing.T) {
	games := []Game{
		{Name: "g", Required: map[archive.FileType][]Required{}},
		{Name: "g", Required: map[archive.FileType][]Required{}},
	}
	if _, err := New("set", "desc", "1.0", "", games); err == nil {
		t.Fatal("expected an error for duplicate game names")
	}
}

// TestResolveAncestorWhereFallsBackToGrandparent tests that a required file
// shared with an ancestor, but absent from the immediate parent's own
// required list, resolves to the grandparent.
func TestResolveAncestorWhereFallsBackToGrandparent(t *testing.T) {
	games := []Game{
		{
			Name:     "grandparent",
			Required: map[archive.FileType][]Required{archive.FileTypeROM: {{Name: "shared.rom"}}},
		},
		{
			Name:            "parent",
			GrandparentName: "",
			ParentName:      "",
			Required:        map[archive.FileType][]Required{archive.FileTypeROM: {{Name: "parent-only.rom"}}},
		},
		{
			Name:            "clone",
			ParentName:      "parent",
			GrandparentName: "grandparent",
			Required: map[archive.FileType][]Required{
				archive.FileTypeROM: {{Name: "shared.rom", MergeName: "shared.rom", Where: WhereParent}},
			},
		},
	}
	cat, err := New("set", "desc", "1.0", "", games)
	if err != nil {
		t.Fatal(err)
	}
	clone, _ := cat.Game("clone")
	if clone.Required[archive.FileTypeROM][0].Where != WhereGrandparent {
		t.Errorf("where = %v, want grandparent", clone.Required[archive.FileTypeROM][0].Where)
	}
}

func feedAll(t *testing.T, b *Builder, events []Event) {
	t.Helper()
	for _, e := range events {
		if err := b.Feed(e); err != nil {
			t.Fatalf("Feed(%v): %v", e, err)
		}
	}
}
