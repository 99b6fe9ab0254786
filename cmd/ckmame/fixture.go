package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/ckmame/ckmame/pkg/archive"
	"github.com/ckmame/ckmame/pkg/catalog"
)

// fixtureFile is one required file as declared in a fixture catalog. The
// CLI reads a small JSON document instead of a real DAT/CMPro file since
// parsing those formats is excluded; the fixture carries a subset of
// catalog.FileEvent's fields (no dump status and no merge name).
type fixtureFile struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Size  *uint64 `json:"size,omitempty"`
	CRC32 string `json:"crc32,omitempty"`
	MD5   string `json:"md5,omitempty"`
	SHA1  string `json:"sha1,omitempty"`
	MIA   bool   `json:"mia,omitempty"`
}

// fixtureGame is one game as declared in a fixture catalog.
type fixtureGame struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Parent      string        `json:"parent,omitempty"`
	Grandparent string        `json:"grandparent,omitempty"`
	Files       []fixtureFile `json:"files"`
}

// fixtureCatalog is the on-disk shape of the fixture catalog file.
type fixtureCatalog struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Version     string        `json:"version,omitempty"`
	Games       []fixtureGame `json:"games"`
}

// loadFixtureCatalog reads a fixture catalog file and feeds it through
// catalog.Builder the way a real DAT parser would, one event at a time.
func loadFixtureCatalog(path string) (*catalog.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read fixture catalog")
	}

	var fixture fixtureCatalog
	if err := json.Unmarshal(data, &fixture); err != nil {
		return nil, errors.Wrap(err, "unable to parse fixture catalog")
	}

	b := catalog.NewBuilder()
	if err := b.Feed(catalog.Event{
		Kind:              catalog.EventHeader,
		HeaderName:        fixture.Name,
		HeaderDescription: fixture.Description,
		HeaderVersion:     fixture.Version,
	}); err != nil {
		return nil, err
	}

	for _, g := range fixture.Games {
		if err := b.Feed(catalog.Event{Kind: catalog.EventGameBegin, Name: g.Name}); err != nil {
			return nil, err
		}
		if g.Parent != "" {
			if err := b.Feed(catalog.Event{Kind: catalog.EventGameParent, Name: g.Parent}); err != nil {
				return nil, err
			}
		}
		if g.Grandparent != "" {
			if err := b.Feed(catalog.Event{Kind: catalog.EventGameGrandparent, Name: g.Grandparent}); err != nil {
				return nil, err
			}
		}
		if err := b.Feed(catalog.Event{Kind: catalog.EventGameDescription, Description: g.Description}); err != nil {
			return nil, err
		}
		for _, f := range g.Files {
			filetype, err := parseFileType(f.Type)
			if err != nil {
				return nil, fmt.Errorf("game %q: %w", g.Name, err)
			}
			if err := b.Feed(catalog.Event{
				Kind: catalog.EventFile,
				File: catalog.FileEvent{
					FileType: filetype,
					Name:     f.Name,
					Size:     f.Size,
					CRC32Hex: f.CRC32,
					MD5Hex:   f.MD5,
					SHA1Hex:  f.SHA1,
					MIA:      f.MIA,
				},
			}); err != nil {
				return nil, err
			}
		}
		if err := b.Feed(catalog.Event{Kind: catalog.EventGameEnd}); err != nil {
			return nil, err
		}
	}

	if err := b.Feed(catalog.Event{Kind: catalog.EventEOF}); err != nil {
		return nil, err
	}

	return b.Finish(nil)
}

// parseFileType maps a fixture's file type string to an archive.FileType.
func parseFileType(s string) (archive.FileType, error) {
	switch s {
	case "", "rom":
		return archive.FileTypeROM, nil
	case "disk":
		return archive.FileTypeDisk, nil
	default:
		return 0, fmt.Errorf("unknown file type %q", s)
	}
}
