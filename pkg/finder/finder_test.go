package finder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ckmame/ckmame/pkg/archive"
	"github.com/ckmame/ckmame/pkg/detector"
	"github.com/ckmame/ckmame/pkg/fingerprint"
	"github.com/ckmame/ckmame/pkg/memoryindex"
)

func openDirArchive(t *testing.T, root string, location archive.Location) *archive.Archive {
	t.Helper()
	registry := archive.NewRegistry(false)
	id := archive.Identity{Kind: archive.KindDirectory, Path: root, FileType: archive.FileTypeROM}
	a, err := archive.Open(registry, id, location, 0, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

// TestFindInRomsetLocatesAndVerifiesRawMatch tests the common path: a
// member's raw fingerprint is already indexed and strictly matches.
func TestFindInRomsetLocatesAndVerifiesRawMatch(t *testing.T) {
	root := t.TempDir()
	content := []byte("hello")
	if err := os.WriteFile(filepath.Join(root, "a.rom"), content, 0644); err != nil {
		t.Fatal(err)
	}
	a := openDirArchive(t, root, archive.LocationRomset)
	index := a.IndexOfName("a.rom")

	fp, err := a.EnsureMemberFingerprints(index, fingerprint.KindDigests)
	if err != nil {
		t.Fatal(err)
	}

	idx := memoryindex.New()
	idx.Add(archive.FileTypeROM, fp, memoryindex.FindResult{Archive: a, MemberIndex: index, Location: archive.LocationRomset})

	f := New(idx, nil, detector.NewRegistry(), nil)
	result, found, err := f.FindInRomset(archive.FileTypeROM, fp, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected a match")
	}
	if result.MemberIndex != index {
		t.Errorf("member index = %d, want %d", result.MemberIndex, index)
	}
}

// TestFindInRomsetSkipsNamedMemberInSkipArchive tests that the
// skip-self-match parameters exclude the file currently being resolved.
func TestFindInRomsetSkipsNamedMemberInSkipArchive(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.rom"), []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	a := openDirArchive(t, root, archive.LocationRomset)
	index := a.IndexOfName("a.rom")
	fp, err := a.EnsureMemberFingerprints(index, fingerprint.KindDigests)
	if err != nil {
		t.Fatal(err)
	}

	idx := memoryindex.New()
	idx.Add(archive.FileTypeROM, fp, memoryindex.FindResult{Archive: a, MemberIndex: index, Location: archive.LocationRomset})

	f := New(idx, nil, detector.NewRegistry(), nil)
	_, found, err := f.FindInRomset(archive.FileTypeROM, fp, a, "a.rom")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("expected the skipped member to be excluded")
	}
}

// TestFindInArchivesRestrictsToNeededLocationWhenRequested tests that
// neededOnly excludes a romset-location candidate even though its digest
// matches.
func TestFindInArchivesRestrictsToNeededLocationWhenRequested(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.rom"), []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	a := openDirArchive(t, root, archive.LocationRomset)
	index := a.IndexOfName("a.rom")
	fp, err := a.EnsureMemberFingerprints(index, fingerprint.KindDigests)
	if err != nil {
		t.Fatal(err)
	}

	idx := memoryindex.New()
	idx.Add(archive.FileTypeROM, fp, memoryindex.FindResult{Archive: a, MemberIndex: index, Location: archive.LocationRomset})

	f := New(idx, nil, detector.NewRegistry(), nil)
	_, found, err := f.FindInArchives(archive.FileTypeROM, fp, nil, "", true)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("expected a romset-location candidate to be excluded under neededOnly")
	}
}

// TestFindRetriesPerDetectorWhenRawLookupFails tests that when no raw
// candidate verifies, the finder retries with each registered detector's
// transformed fingerprint.
func TestFindRetriesPerDetectorWhenRawLookupFails(t *testing.T) {
	root := t.TempDir()
	// "HEADER" + payload; the detector strips the 6-byte header.
	if err := os.WriteFile(filepath.Join(root, "a.rom"), []byte("HEADERhello"), 0644); err != nil {
		t.Fatal(err)
	}
	a := openDirArchive(t, root, archive.LocationRomset)
	index := a.IndexOfName("a.rom")

	rawFP, err := a.EnsureMemberFingerprints(index, fingerprint.KindDigests)
	if err != nil {
		t.Fatal(err)
	}

	strip := &detector.Detector{
		Name:    "strip6",
		Version: "1.0",
		Rules:   []detector.Rule{{Start: 6, End: -1}},
	}
	registry := detector.NewRegistry()
	detectorID := registry.Register(strip)

	transformedPayload, err := strip.Apply([]byte("HEADERhello"))
	if err != nil {
		t.Fatal(err)
	}
	required := fingerprint.New(uint64(len(transformedPayload)))
	computed, err := a.EnsureDetectorFingerprint(index, detectorID, strip.Apply, fingerprint.KindDigests)
	if err != nil {
		t.Fatal(err)
	}
	required = required.Merge(computed)

	idx := memoryindex.New()
	// Both fingerprints are indexed. The candidate found through the
	// transformed digest fails raw verification, so only the per-detector
	// retry can verify it.
	idx.Add(archive.FileTypeROM, rawFP, memoryindex.FindResult{Archive: a, MemberIndex: index, Location: archive.LocationRomset})
	idx.Add(archive.FileTypeROM, computed, memoryindex.FindResult{Archive: a, MemberIndex: index, DetectorID: detectorID, Location: archive.LocationRomset})

	f := New(idx, nil, registry, nil)
	result, found, err := f.FindInRomset(archive.FileTypeROM, required, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected the detector-transformed fingerprint to verify")
	}
	if result.DetectorID != detectorID {
		t.Errorf("detector id = %d, want %d", result.DetectorID, detectorID)
	}
}
