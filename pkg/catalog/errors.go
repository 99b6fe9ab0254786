package catalog

import "errors"

// Catalog errors are fatal to a run: building fails before repair begins
// rather than attempting to repair against a malformed or ambiguous
// reference.
var (
	// ErrDuplicateGame is wrapped into a catalog error when two games in
	// the same event stream declare the same name.
	ErrDuplicateGame = errors.New("duplicate game name")
	// ErrDetectorMissing is returned when a catalog references a detector
	// file that was not supplied to the builder.
	ErrDetectorMissing = errors.New("referenced detector not supplied")
	// ErrUnexpectedEvent is returned when the event stream violates the
	// begin/end nesting the builder expects (e.g. a file event outside any
	// game, or a game-begin before the previous game ended).
	ErrUnexpectedEvent = errors.New("unexpected event in catalog stream")
	// ErrInvalidFingerprint is returned when a file event carries a digest
	// whose hex length doesn't decode to a recognized digest kind; this is
	// rejected at ingestion, never at match time.
	ErrInvalidFingerprint = errors.New("invalid fingerprint in catalog stream")
)
