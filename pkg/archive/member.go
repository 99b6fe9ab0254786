package archive

import (
	"time"

	"github.com/ckmame/ckmame/pkg/fingerprint"
)

// Member is one logical entry in an Archive. Members are logical: a delete
// marks the change but keeps the slot, so indices handed out by Files()
// remain stable across a sequence of staged mutations until Commit, which
// drops deleted members and renumbers the rest.
type Member struct {
	// Name is the member's name within the archive (entry name for zip/7z,
	// file name for a directory backend).
	Name string
	// MTime is the member's last-modified time, when known.
	MTime time.Time
	// Broken is set when the member's content couldn't be read or its
	// digests don't correspond to what a previous pass recorded. A broken
	// member's size may still be trustworthy; its digests are not.
	Broken bool
	// Fingerprint is the member's raw content fingerprint.
	Fingerprint fingerprint.Fingerprint
	// DetectorFingerprints maps detector id to the member's fingerprint
	// after that detector's header-skip transform has been applied. Lazily
	// populated; a missing entry means the transform hasn't been computed
	// yet, not that it produced an empty result.
	DetectorFingerprints map[int]fingerprint.Fingerprint
	// Extension is the member's filename extension, cached separately from
	// Name since several call sites need it without a string split.
	Extension string

	// deleted marks a logical delete. The slot is retained so indices stay
	// stable; deleted members are skipped when rendering a new backend
	// layout on commit.
	deleted bool
}

// ChangeKind identifies the kind of staged mutation a Change represents.
type ChangeKind int

const (
	// ChangeAddEmpty stages a new zero-length member.
	ChangeAddEmpty ChangeKind = iota
	// ChangeCopyFrom stages copying an entire member from another archive.
	ChangeCopyFrom
	// ChangeCopyRangeFrom stages copying a byte range of a member from
	// another archive, verified against an expected fingerprint once
	// copied.
	ChangeCopyRangeFrom
	// ChangeDelete stages a logical delete of an existing member.
	ChangeDelete
	// ChangeRename stages renaming an existing member.
	ChangeRename
)

// Change is one staged mutation, recorded parallel to Archive.files so
// that commit can replay every mutation against the backend in one
// transaction.
type Change struct {
	Kind ChangeKind

	// Index is the member slot the change applies to. For ChangeAddEmpty
	// and ChangeCopyFrom/ChangeCopyRangeFrom applied as new members, Index
	// is the slot allocated for the new member (appended to files).
	Index int

	// NewName is the destination name for ChangeAddEmpty, ChangeCopyFrom,
	// ChangeCopyRangeFrom, and ChangeRename.
	NewName string

	// OldName is the pre-change name for ChangeRename, captured at staging
	// time since Archive mutates the in-memory Name immediately so callers
	// see the rename reflected without waiting for commit.
	OldName string

	// SourceArchive, SourceIndex identify the origin member for
	// ChangeCopyFrom and ChangeCopyRangeFrom.
	SourceArchive *Archive
	SourceIndex   int

	// Offset, Length bound the byte range copied by ChangeCopyRangeFrom.
	Offset int64
	Length int64

	// ExpectedFingerprint is the fingerprint the caller expects the copied
	// range to have. No backend's commit checks the copied bytes against
	// it, and a mismatch does not mark the destination member Broken.
	ExpectedFingerprint fingerprint.Fingerprint
}
