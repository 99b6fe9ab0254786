package catalog

import (
	"fmt"

	"github.com/ckmame/ckmame/pkg/archive"
	"github.com/ckmame/ckmame/pkg/fingerprint"
)

// EventKind tags the variant of a catalog event. A DAT/CMPro parser (not
// implemented here) is expected to emit exactly this stream, so the
// builder's only job is accumulating files between begin/end into Games.
type EventKind int

const (
	EventHeader EventKind = iota
	EventDetectorFileReference
	EventGameBegin
	EventGameParent
	EventGameGrandparent
	EventGameDescription
	EventFile
	EventGameEnd
	EventEOF
)

// FileEvent carries a file event's payload. Size is a pointer so that
// "absent" (catalog didn't declare a size) is distinguishable from zero;
// the digests are hex strings, where an empty string means absent.
type FileEvent struct {
	FileType  archive.FileType
	Name      string
	Size      *uint64
	CRC32Hex  string
	MD5Hex    string
	SHA1Hex   string
	Status    DumpStatus
	MergeName string
	MIA       bool
}

// Event is one item in the catalog event stream.
type Event struct {
	Kind EventKind

	// EventHeader
	HeaderName        string
	HeaderDescription string
	HeaderVersion     string

	// EventDetectorFileReference
	DetectorPath string

	// EventGameBegin / EventGameParent / EventGameGrandparent
	Name string

	// EventGameDescription
	Description string

	// EventFile
	File FileEvent
}

// Builder accumulates an event stream into a Catalog, reconstructing each
// Game by collecting its files between a begin and end event; it does not
// parse any on-disk format itself.
type Builder struct {
	header       string
	description  string
	version      string
	detectorPath string
	games        []Game
	current      *Game
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Feed applies one event to the builder's accumulation state.
func (b *Builder) Feed(e Event) error {
	switch e.Kind {
	case EventHeader:
		b.header = e.HeaderName
		b.description = e.HeaderDescription
		b.version = e.HeaderVersion
		return nil

	case EventDetectorFileReference:
		b.detectorPath = e.DetectorPath
		return nil

	case EventGameBegin:
		if b.current != nil {
			return fmt.Errorf("game %q began before %q ended: %w", e.Name, b.current.Name, ErrUnexpectedEvent)
		}
		b.current = &Game{
			Name:     e.Name,
			DatIndex: len(b.games),
			Required: make(map[archive.FileType][]Required),
		}
		return nil

	case EventGameParent:
		if b.current == nil {
			return fmt.Errorf("game-parent outside game-begin/end: %w", ErrUnexpectedEvent)
		}
		b.current.ParentName = e.Name
		return nil

	case EventGameGrandparent:
		if b.current == nil {
			return fmt.Errorf("game-grandparent outside game-begin/end: %w", ErrUnexpectedEvent)
		}
		b.current.GrandparentName = e.Name
		return nil

	case EventGameDescription:
		if b.current == nil {
			return fmt.Errorf("game-description outside game-begin/end: %w", ErrUnexpectedEvent)
		}
		// An empty or name-matching description collapses to the game name,
		// so a game with no real description round-trips identically.
		if e.Description == "" || e.Description == b.current.Name {
			b.current.Description = b.current.Name
		} else {
			b.current.Description = e.Description
		}
		return nil

	case EventFile:
		if b.current == nil {
			return fmt.Errorf("file outside game-begin/end: %w", ErrUnexpectedEvent)
		}
		required, err := fileEventToRequired(e.File)
		if err != nil {
			return err
		}
		ft := e.File.FileType
		b.current.Required[ft] = append(b.current.Required[ft], required)
		return nil

	case EventGameEnd:
		if b.current == nil {
			return fmt.Errorf("game-end without matching game-begin: %w", ErrUnexpectedEvent)
		}
		if b.current.Description == "" {
			b.current.Description = b.current.Name
		}
		b.games = append(b.games, *b.current)
		b.current = nil
		return nil

	case EventEOF:
		if b.current != nil {
			return fmt.Errorf("eof with unterminated game %q: %w", b.current.Name, ErrUnexpectedEvent)
		}
		return nil

	default:
		return fmt.Errorf("unrecognized event kind %d: %w", e.Kind, ErrUnexpectedEvent)
	}
}

// fileEventToRequired parses a FileEvent's hex digests into a Fingerprint
// and derives Where from whether a merge name was supplied; it does not
// know about parent/grandparent yet (that's resolved once the whole stream
// has been read, since parent/grandparent events may arrive before or after
// file events within a game).
func fileEventToRequired(fe FileEvent) (Required, error) {
	fp := fingerprint.Fingerprint{}
	if fe.Size != nil {
		fp = fp.WithSize(*fe.Size)
	}

	for _, hex := range []string{fe.CRC32Hex, fe.MD5Hex, fe.SHA1Hex} {
		if hex == "" {
			continue
		}
		parsed, kind, err := fingerprint.FromHex(hex)
		if err != nil {
			return Required{}, fmt.Errorf("file %q: %w: %v", fe.Name, ErrInvalidFingerprint, err)
		}
		switch kind {
		case fingerprint.KindCRC32:
			crc, _ := parsed.CRC32()
			fp = fp.WithCRC32(crc)
		case fingerprint.KindMD5:
			md5sum, _ := parsed.MD5()
			fp = fp.WithMD5(md5sum)
		case fingerprint.KindSHA1:
			sha1sum, _ := parsed.SHA1()
			fp = fp.WithSHA1(sha1sum)
		}
	}

	where := WhereSelf
	if fe.MergeName != "" {
		where = WhereParent
	}

	return Required{
		Name:        fe.Name,
		Fingerprint: fp,
		Status:      fe.Status,
		Where:       where,
		MergeName:   fe.MergeName,
		MIA:         fe.MIA,
	}, nil
}

// Finish validates that the catalog's detector path (if any) is present in
// availableDetectors (a nil map skips the check), then returns the
// finished Catalog.
func (b *Builder) Finish(availableDetectors map[string]bool) (*Catalog, error) {
	if b.current != nil {
		return nil, fmt.Errorf("catalog stream ended with unterminated game %q: %w", b.current.Name, ErrUnexpectedEvent)
	}
	if b.detectorPath != "" && availableDetectors != nil && !availableDetectors[b.detectorPath] {
		return nil, fmt.Errorf("detector %q: %w", b.detectorPath, ErrDetectorMissing)
	}
	return New(b.header, b.description, b.version, b.detectorPath, b.games)
}
