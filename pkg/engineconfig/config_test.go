package engineconfig

import (
	"os"
	"path/filepath"
	"testing"
)

// TestLoadMissingFileReturnsDefault tests that loading from a path that
// doesn't exist yields the unvalidated default rather than an error.
func TestLoadMissingFileReturnsDefault(t *testing.T) {
	options, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if options.HaveTopLevelDisks != TopLevelDisksAuto {
		t.Errorf("have_top_level_disks = %v, want auto", options.HaveTopLevelDisks)
	}
	if !options.KeepDuplicates {
		t.Error("expected KeepDuplicates to default to true")
	}
}

// TestLoadParsesTOML tests that a TOML file's fields populate Options.
func TestLoadParsesTOML(t *testing.T) {
	content := `
[paths]
romset = "/roms"
extra = ["/roms-extra"]
needed = "/roms-needed"

no_dump_counts_as_missing = true
have_top_level_disks = "always"
move_from_extra = true
keep_duplicates = false
unknown_delete_patterns = ["*.txt", "*.nfo"]
`
	path := filepath.Join(t.TempDir(), "ckmame.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	options, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if options.Paths.Romset != "/roms" {
		t.Errorf("romset = %q, want /roms", options.Paths.Romset)
	}
	if len(options.Paths.Extra) != 1 || options.Paths.Extra[0] != "/roms-extra" {
		t.Errorf("extra = %v, want [/roms-extra]", options.Paths.Extra)
	}
	if !options.NoDumpCountsAsMissing {
		t.Error("expected NoDumpCountsAsMissing true")
	}
	if options.HaveTopLevelDisks != TopLevelDisksAlways {
		t.Errorf("have_top_level_disks = %v, want always", options.HaveTopLevelDisks)
	}
	if !options.MoveFromExtra {
		t.Error("expected MoveFromExtra true")
	}
	if options.KeepDuplicates {
		t.Error("expected KeepDuplicates false")
	}
	if len(options.UnknownDeletePatterns) != 2 {
		t.Errorf("unknown_delete_patterns = %v, want 2 entries", options.UnknownDeletePatterns)
	}
}

// TestEnsureValidRequiresRomsetDirectory tests that an Options with no
// romset directory fails validation.
func TestEnsureValidRequiresRomsetDirectory(t *testing.T) {
	options := Default()
	if err := options.EnsureValid(); err == nil {
		t.Error("expected EnsureValid to fail without a romset directory")
	}
}

// TestMatcherAndPlannerOptionsProjectFields tests that the projections carry
// the expected fields through.
func TestMatcherAndPlannerOptionsProjectFields(t *testing.T) {
	options := Default()
	options.Paths.Romset = "/roms"
	options.NoDumpCountsAsMissing = true
	options.KeepDuplicates = false
	options.UnknownDeletePatterns = []string{"*.txt"}

	mo := options.MatcherOptions()
	if !mo.NoDumpCountsAsMissing {
		t.Error("expected matcher options to carry NoDumpCountsAsMissing")
	}

	po := options.PlannerOptions()
	if po.KeepDuplicates {
		t.Error("expected planner options to carry KeepDuplicates=false")
	}
	if len(po.UnknownDeletePatterns) != 1 {
		t.Errorf("unknown delete patterns = %v, want 1 entry", po.UnknownDeletePatterns)
	}
}
