package memoryindex

import (
	"testing"

	"github.com/ckmame/ckmame/pkg/archive"
	"github.com/ckmame/ckmame/pkg/fingerprint"
)

// TestFindMatchesOnPartialDigest tests that a query carrying only one
// digest kind still finds an entry that was indexed with all three.
func TestFindMatchesOnPartialDigest(t *testing.T) {
	idx := New()
	registry := archive.NewRegistry(false)
	id := archive.Identity{Kind: archive.KindDirectory, Path: "/roms/game", FileType: archive.FileTypeROM}
	a, err := archive.Open(registry, id, archive.LocationRomset, 0, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	full := fingerprint.New(10).WithCRC32(0x11111111).WithMD5([16]byte{1}).WithSHA1([20]byte{2})
	idx.Add(archive.FileTypeROM, full, FindResult{Archive: a, MemberIndex: 0, Location: archive.LocationRomset})

	query := fingerprint.Fingerprint{}.WithCRC32(0x11111111)
	results := idx.Find(archive.FileTypeROM, query)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].MemberIndex != 0 {
		t.Errorf("member index = %d, want 0", results[0].MemberIndex)
	}
}

// TestFindDedupesAcrossDigestKinds tests that a single indexed entry
// matching on more than one digest kind is returned exactly once.
func TestFindDedupesAcrossDigestKinds(t *testing.T) {
	idx := New()
	registry := archive.NewRegistry(false)
	id := archive.Identity{Kind: archive.KindDirectory, Path: "/roms/game", FileType: archive.FileTypeROM}
	a, err := archive.Open(registry, id, archive.LocationRomset, 0, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	full := fingerprint.New(10).WithCRC32(0x11111111).WithMD5([16]byte{1})
	idx.Add(archive.FileTypeROM, full, FindResult{Archive: a, MemberIndex: 0, Location: archive.LocationRomset})

	results := idx.Find(archive.FileTypeROM, full)
	if len(results) != 1 {
		t.Fatalf("expected exactly 1 deduped result, got %d", len(results))
	}
}

// TestRemoveDropsEveryIndexedDigest tests that Remove clears an entry from
// every digest bucket it was registered under.
func TestRemoveDropsEveryIndexedDigest(t *testing.T) {
	idx := New()
	registry := archive.NewRegistry(false)
	id := archive.Identity{Kind: archive.KindDirectory, Path: "/roms/game", FileType: archive.FileTypeROM}
	a, err := archive.Open(registry, id, archive.LocationRomset, 0, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	full := fingerprint.New(10).WithCRC32(0x11111111).WithMD5([16]byte{1})
	idx.Add(archive.FileTypeROM, full, FindResult{Archive: a, MemberIndex: 0, Location: archive.LocationRomset})
	idx.Remove(archive.FileTypeROM, a, 0)

	if results := idx.Find(archive.FileTypeROM, full); len(results) != 0 {
		t.Errorf("expected 0 results after Remove, got %d", len(results))
	}
}

// TestFindDistinguishesFileType tests that lookups are scoped per
// filetype, so a disk and a ROM sharing a CRC32 don't collide.
func TestFindDistinguishesFileType(t *testing.T) {
	idx := New()
	registry := archive.NewRegistry(false)
	romID := archive.Identity{Kind: archive.KindDirectory, Path: "/roms/game", FileType: archive.FileTypeROM}
	romArchive, err := archive.Open(registry, romID, archive.LocationRomset, 0, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	fp := fingerprint.New(10).WithCRC32(0x11111111)
	idx.Add(archive.FileTypeROM, fp, FindResult{Archive: romArchive, MemberIndex: 0})

	if results := idx.Find(archive.FileTypeDisk, fp); len(results) != 0 {
		t.Errorf("expected 0 cross-filetype results, got %d", len(results))
	}
}
