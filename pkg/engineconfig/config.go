// Package engineconfig loads and validates the engine's runtime
// configuration: scan roots and the handful of behavioral flags that pick
// between otherwise-ambiguous verification behaviors at runtime rather than
// at compile time.
package engineconfig

import (
	"fmt"
	"os"

	"github.com/ckmame/ckmame/pkg/encoding"
	"github.com/ckmame/ckmame/pkg/matcher"
	"github.com/ckmame/ckmame/pkg/planner"
)

// TopLevelDisks controls whether CHD images that appear alongside a game's
// ROM archive (rather than inside a subdirectory of their own) are treated
// as that game's disks.
type TopLevelDisks int

const (
	// TopLevelDisksAuto infers the layout per-game from whether a
	// top-level CHD's name matches a required disk.
	TopLevelDisksAuto TopLevelDisks = iota
	// TopLevelDisksAlways always treats top-level CHDs as disks.
	TopLevelDisksAlways
	// TopLevelDisksNever never does.
	TopLevelDisksNever
)

// UnmarshalText implements encoding.TextUnmarshaler so TOML can decode the
// human-readable form ("auto", "always", "never") directly into the enum.
func (t *TopLevelDisks) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "auto":
		*t = TopLevelDisksAuto
	case "always":
		*t = TopLevelDisksAlways
	case "never":
		*t = TopLevelDisksNever
	default:
		return fmt.Errorf("unknown top-level-disks mode: %q", text)
	}
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (t TopLevelDisks) MarshalText() ([]byte, error) {
	switch t {
	case TopLevelDisksAlways:
		return []byte("always"), nil
	case TopLevelDisksNever:
		return []byte("never"), nil
	default:
		return []byte("auto"), nil
	}
}

// Paths collects the directory roots the engine scans and writes into.
type Paths struct {
	// Romset is the directory holding the romset being verified, one
	// archive (or subdirectory, in unpacked mode) per game.
	Romset string `toml:"romset"`
	// Extra lists additional directories searched for donor content when
	// repairing.
	Extra []string `toml:"extra"`
	// Old is an optional directory of a previous romset generation,
	// searched when classifying a missing file as Old rather than
	// Missing.
	Old string `toml:"old"`
	// Needed is where content belonging to a not-yet-verified game is
	// stashed until that game is processed.
	Needed string `toml:"needed"`
	// Unknown is where unclaimed archive members land when they don't
	// match any delete pattern (a per-archive "garbage sibling" is used
	// instead when Unknown is empty).
	Unknown string `toml:"unknown"`
	// Cache is the directory holding the per-romset-directory
	// ArchiveCache SQLite databases.
	Cache string `toml:"cache"`
}

// Options is the complete, validated engine configuration.
type Options struct {
	Paths Paths `toml:"paths"`

	// DetectorFile, if non-empty, names a header detector XML file (a
	// declarative byte-range rule engine) applied to every archive member
	// during fingerprinting.
	DetectorFile string `toml:"detector_file"`

	// NoDumpCountsAsMissing resolves Open Question 1: whether a required
	// file whose catalog status is NoDump contributes to "Missing".
	NoDumpCountsAsMissing bool `toml:"no_dump_counts_as_missing"`

	// HaveTopLevelDisks resolves Open Question 2.
	HaveTopLevelDisks TopLevelDisks `toml:"have_top_level_disks"`

	// MoveFromExtra, when true, moves (rather than copies) donor content
	// out of an Extra directory once it has been used to repair a game.
	MoveFromExtra bool `toml:"move_from_extra"`

	// KeepDuplicates, when true, leaves an OkAndOld member in place
	// instead of deleting it during repair.
	KeepDuplicates bool `toml:"keep_duplicates"`

	// UnknownDeletePatterns lists shell glob patterns; an unclaimed
	// member whose name matches one is deleted outright during repair
	// instead of being moved to Paths.Unknown or a garbage sibling.
	UnknownDeletePatterns []string `toml:"unknown_delete_patterns"`
}

// Default returns the configuration used when no file is loaded: NoDump
// files count as present, top-level disk detection is automatic, and
// repairs are conservative (copy rather than move, duplicates kept).
func Default() Options {
	return Options{
		NoDumpCountsAsMissing: false,
		HaveTopLevelDisks:     TopLevelDisksAuto,
		MoveFromExtra:         false,
		KeepDuplicates:        true,
	}
}

// Load reads a TOML configuration file at path, applying it over Default(),
// and validates the result. A non-existent path is not an error; Default()
// is returned unchanged.
func Load(path string) (Options, error) {
	options := Default()
	if err := encoding.LoadAndUnmarshalTOML(path, &options); err != nil {
		if os.IsNotExist(err) {
			return options, nil
		}
		return Options{}, fmt.Errorf("unable to load engine configuration: %w", err)
	}
	if err := options.EnsureValid(); err != nil {
		return Options{}, err
	}
	return options, nil
}

// EnsureValid ensures that Options's invariants are respected.
func (o *Options) EnsureValid() error {
	if o.Paths.Romset == "" {
		return fmt.Errorf("no romset directory specified")
	}
	for _, pattern := range o.UnknownDeletePatterns {
		if pattern == "" {
			return fmt.Errorf("empty unknown-delete pattern")
		}
	}
	switch o.HaveTopLevelDisks {
	case TopLevelDisksAuto, TopLevelDisksAlways, TopLevelDisksNever:
	default:
		return fmt.Errorf("unknown top-level-disks mode: %d", o.HaveTopLevelDisks)
	}
	return nil
}

// MatcherOptions projects the subset of Options the matcher needs.
func (o *Options) MatcherOptions() matcher.Options {
	return matcher.Options{
		NoDumpCountsAsMissing: o.NoDumpCountsAsMissing,
	}
}

// PlannerOptions projects the subset of Options the planner needs.
func (o *Options) PlannerOptions() planner.Options {
	return planner.Options{
		KeepDuplicates:        o.KeepDuplicates,
		UnknownDeletePatterns: o.UnknownDeletePatterns,
	}
}
