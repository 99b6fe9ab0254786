package archive

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/unicode/norm"

	"github.com/ckmame/ckmame/pkg/chd"
	"github.com/ckmame/ckmame/pkg/fingerprint"
	"github.com/ckmame/ckmame/pkg/leafhash"
	"github.com/ckmame/ckmame/pkg/logging"
)

// ErrReadOnly is returned by any mutation method when the Archive (or its
// registry) is read-only.
var ErrReadOnly = errors.New("archive is read-only")

// findOffsetWindow is a 64 KiB window size. FindOffset does not use it:
// FindOffset requires a positive length, and callers scanning for a
// specific required file always pass the required file's own length.
const findOffsetWindow = 1 << 16

// Archive is a transactional, identity-deduplicated handle over a storage
// container with ordered, logically-deleted members.
type Archive struct {
	identity Identity
	location Location
	flags    Flags
	backend  backend
	registry *Registry
	logger   *logging.Logger

	files      []Member
	changes    []Change
	modified   bool
	cacheDirty bool
}

// Open returns the live Archive for identity, constructing and registering
// one if none exists yet. cachedMembers, if non-nil, seeds the member list
// merged with whatever the backend reports; pass nil to force a full
// backend listing.
func Open(registry *Registry, identity Identity, location Location, flags Flags, cachedMembers []Member, logger *logging.Logger) (*Archive, error) {
	registry.Lock()
	defer registry.Unlock()

	if existing, ok := registry.instances[identity]; ok {
		return existing, nil
	}

	b, err := newBackend(identity, flags, registry.readOnly)
	if err != nil {
		return nil, err
	}

	listed, err := b.list()
	if err != nil {
		return nil, fmt.Errorf("unable to list archive %s: %w", identity, err)
	}

	a := &Archive{
		identity: identity,
		location: location,
		flags:    flags,
		backend:  b,
		registry: registry,
		logger:   logger,
		files:    mergeCachedMembers(listed, cachedMembers),
	}
	registry.register(a)
	return a, nil
}

// mergeCachedMembers reconciles a fresh backend listing against a
// previously cached member list by name, preferring fresh metadata (name,
// mtime, extension) but carrying forward fingerprints the cache already
// knew, treating the cached list as hints rather than ground truth.
func mergeCachedMembers(listed []Member, cached []Member) []Member {
	if len(cached) == 0 {
		return listed
	}
	byName := make(map[string]Member, len(cached))
	for _, m := range cached {
		byName[m.Name] = m
	}
	for i, m := range listed {
		if c, ok := byName[m.Name]; ok {
			listed[i].Fingerprint = listed[i].Fingerprint.Merge(c.Fingerprint)
			if c.DetectorFingerprints != nil {
				listed[i].DetectorFingerprints = c.DetectorFingerprints
			}
			listed[i].Broken = c.Broken
		}
	}
	return listed
}

// Identity returns the archive's identity.
func (a *Archive) Identity() Identity {
	return a.identity
}

// Location returns the archive's declared scan-root location.
func (a *Archive) Location() Location {
	return a.location
}

// ReadOnly reports whether this archive rejects mutations.
func (a *Archive) ReadOnly() bool {
	return a.registry.readOnly || a.flags&FlagReadOnly != 0
}

// Files returns a read-only view of the archive's members, including
// logically-deleted ones (callers should check IsDeleted before acting on
// an entry). Indices into this slice stay stable until the next Commit,
// which drops deleted members and renumbers the rest.
func (a *Archive) Files() []Member {
	return a.files
}

// IsDeleted reports whether the member at index has been logically
// deleted by a staged (or committed) change.
func (a *Archive) IsDeleted(index int) bool {
	return a.files[index].deleted
}

// FileOpen opens a sequential reader over the member at index, optionally
// limited to [start, start+length). Pass length -1 to read to the end of
// the member.
func (a *Archive) FileOpen(index int, start, length int64) (ReadSource, error) {
	if index < 0 || index >= len(a.files) {
		return nil, fmt.Errorf("member index %d out of range", index)
	}
	return a.backend.open(index, start, length)
}

// EnsureMemberFingerprints computes and caches any digest kinds in
// wantedTypes that the member at index's raw (untransformed) fingerprint
// lacks. It marks the member Broken if the content can't be read. It sets
// cacheDirty so the archive cache is rewritten on the next write-through.
func (a *Archive) EnsureMemberFingerprints(index int, wantedTypes fingerprint.Kind) (fingerprint.Fingerprint, error) {
	if index < 0 || index >= len(a.files) {
		return fingerprint.Fingerprint{}, fmt.Errorf("member index %d out of range", index)
	}

	current := a.files[index].Fingerprint
	if current.Has(wantedTypes) {
		return current, nil
	}

	source, err := a.backend.open(index, 0, -1)
	if err != nil {
		a.files[index].Broken = true
		a.cacheDirty = true
		return current, fmt.Errorf("unable to open member %d: %w", index, err)
	}
	defer source.Close()

	computed, err := a.fingerprintMember(source)
	if err != nil {
		a.files[index].Broken = true
		a.cacheDirty = true
		return current, fmt.Errorf("unable to hash member %d: %w", index, err)
	}

	merged := current.Merge(computed)
	if size, ok := computed.Size(); ok && a.identity.FileType == FileTypeDisk {
		// A disk's size is its header's logical size, not the listed
		// container file size.
		merged = merged.WithSize(size)
	}
	a.files[index].Fingerprint = merged
	a.cacheDirty = true
	return merged, nil
}

// EnsureDetectorFingerprint computes and caches the digest kinds in
// wantedTypes that the member at index's detector-transformed fingerprint
// (under detectorID) lacks. transform receives the member's full raw bytes
// and returns the post-header-skip payload to fingerprint; detector.Detector
// supplies this as its Apply method, kept as a plain function here so this
// package doesn't need to import pkg/detector. A transform error (including
// detector.ErrNoRuleApplies) is returned without marking the member Broken,
// and the raw fingerprint is left untouched.
func (a *Archive) EnsureDetectorFingerprint(index int, detectorID int, transform func([]byte) ([]byte, error), wantedTypes fingerprint.Kind) (fingerprint.Fingerprint, error) {
	if index < 0 || index >= len(a.files) {
		return fingerprint.Fingerprint{}, fmt.Errorf("member index %d out of range", index)
	}

	current := a.currentFingerprint(index, detectorID)
	if current.Has(wantedTypes) {
		return current, nil
	}

	source, err := a.backend.open(index, 0, -1)
	if err != nil {
		return current, fmt.Errorf("unable to open member %d: %w", index, err)
	}
	raw, err := io.ReadAll(source)
	source.Close()
	if err != nil {
		return current, fmt.Errorf("unable to read member %d: %w", index, err)
	}

	transformed, err := transform(raw)
	if err != nil {
		return current, fmt.Errorf("detector transform failed for member %d: %w", index, err)
	}

	computed, size, err := hashStream(bytes.NewReader(transformed))
	if err != nil {
		return current, fmt.Errorf("unable to hash transformed member %d: %w", index, err)
	}
	computed = computed.WithSize(size)

	merged := current.Merge(computed)
	a.setFingerprint(index, detectorID, merged)
	a.cacheDirty = true
	return merged, nil
}

// currentFingerprint returns the currently cached fingerprint for the
// member at index under the given detector id.
func (a *Archive) currentFingerprint(index int, detectorID int) fingerprint.Fingerprint {
	if detectorID == 0 {
		return a.files[index].Fingerprint
	}
	if a.files[index].DetectorFingerprints == nil {
		return fingerprint.Fingerprint{}
	}
	return a.files[index].DetectorFingerprints[detectorID]
}

// setFingerprint stores a fingerprint for the member at index under the
// given detector id.
func (a *Archive) setFingerprint(index int, detectorID int, fp fingerprint.Fingerprint) {
	if detectorID == 0 {
		a.files[index].Fingerprint = fp
		return
	}
	if a.files[index].DetectorFingerprints == nil {
		a.files[index].DetectorFingerprints = make(map[int]fingerprint.Fingerprint)
	}
	a.files[index].DetectorFingerprints[detectorID] = fp
}

// hashStream computes CRC32, MD5, and SHA-1 of r in a single pass, along
// with the number of bytes read. It's a thin alias over leafhash.Stream.
func hashStream(r io.Reader) (fingerprint.Fingerprint, uint64, error) {
	return leafhash.Stream(r)
}

// fingerprintMember computes the raw fingerprint for a member opened from
// r. For a disk archive this is the digest its CHD header already declares
// (size and SHA-1 or MD5, with no hunk decompression); for anything else
// it's a plain byte hash via hashStream. A disk member that doesn't
// actually start with the CHD tag falls back to a byte hash of the whole
// stream, via a buffered reader so the tag bytes peeked to detect that
// aren't lost to the fallback hash.
func (a *Archive) fingerprintMember(r io.Reader) (fingerprint.Fingerprint, error) {
	if a.identity.FileType == FileTypeDisk {
		buffered := bufio.NewReader(r)
		if tag, err := buffered.Peek(8); err == nil && string(tag) == chd.Tag {
			header, err := chd.ReadHeader(buffered)
			if err != nil {
				return fingerprint.Fingerprint{}, err
			}
			return header.Fingerprint(), nil
		}
		r = buffered
	}

	computed, size, err := hashStream(r)
	if err != nil {
		return fingerprint.Fingerprint{}, err
	}
	return computed.WithSize(size), nil
}

// FindOffset scans the member at index in aligned, non-overlapping windows
// of exactly length bytes, returning the offset of the first window whose
// content matches fp. Windows are stepped by exactly length bytes; the
// final window only qualifies when offset+length equals the member's size,
// so a sub-range comparison never straddles a partial window.
func (a *Archive) FindOffset(index int, length int64, fp fingerprint.Fingerprint) (int64, bool, error) {
	if length <= 0 {
		return 0, false, fmt.Errorf("find_offset requires a positive window length")
	}

	size, ok := a.files[index].Fingerprint.Size()
	if !ok {
		return 0, false, fmt.Errorf("member %d has unknown size", index)
	}

	source, err := a.backend.open(index, 0, -1)
	if err != nil {
		return 0, false, fmt.Errorf("unable to open member %d: %w", index, err)
	}
	defer source.Close()

	var offset int64
	for offset+length <= int64(size) {
		windowFingerprint, n, err := hashStream(io.LimitReader(source, length))
		if err != nil {
			return 0, false, fmt.Errorf("unable to hash window at offset %d: %w", offset, err)
		}
		if n != length {
			break
		}
		windowFingerprint = windowFingerprint.WithSize(uint64(length))
		if windowFingerprint.CompareWithSize(fp) {
			return offset, true, nil
		}
		offset += length
	}

	return 0, false, nil
}

// stage appends a Change to the archive's pending change log.
func (a *Archive) stage(c Change) error {
	if a.ReadOnly() {
		return ErrReadOnly
	}
	a.changes = append(a.changes, c)
	a.modified = true
	return nil
}

// AddEmpty stages a new zero-length member named name.
func (a *Archive) AddEmpty(name string) (int, error) {
	index := len(a.files)
	if err := a.stage(Change{Kind: ChangeAddEmpty, Index: index, NewName: name}); err != nil {
		return -1, err
	}
	a.files = append(a.files, Member{
		Name:        name,
		Fingerprint: fingerprint.EmptyFile,
	})
	return index, nil
}

// CopyFrom stages copying the entire member at srcIndex in src into this
// archive under dstName.
func (a *Archive) CopyFrom(src *Archive, srcIndex int, dstName string) (int, error) {
	index := len(a.files)
	if err := a.stage(Change{
		Kind:          ChangeCopyFrom,
		Index:         index,
		NewName:       dstName,
		SourceArchive: src,
		SourceIndex:   srcIndex,
	}); err != nil {
		return -1, err
	}
	a.files = append(a.files, Member{
		Name:        dstName,
		Fingerprint: src.files[srcIndex].Fingerprint,
	})
	return index, nil
}

// CopyRangeFrom stages copying a byte range of the member at srcIndex in
// src into this archive under dstName. expected is recorded on the staged
// change; commit copies the range without checking it against expected.
func (a *Archive) CopyRangeFrom(src *Archive, srcIndex int, dstName string, offset, length int64, expected fingerprint.Fingerprint) (int, error) {
	index := len(a.files)
	if err := a.stage(Change{
		Kind:                ChangeCopyRangeFrom,
		Index:               index,
		NewName:             dstName,
		SourceArchive:       src,
		SourceIndex:         srcIndex,
		Offset:              offset,
		Length:              length,
		ExpectedFingerprint: expected,
	}); err != nil {
		return -1, err
	}
	a.files = append(a.files, Member{
		Name:        dstName,
		Fingerprint: expected,
	})
	return index, nil
}

// Delete stages a logical delete of the member at index.
func (a *Archive) Delete(index int) error {
	if err := a.stage(Change{Kind: ChangeDelete, Index: index}); err != nil {
		return err
	}
	a.files[index].deleted = true
	return nil
}

// Rename stages renaming the member at index to newName.
func (a *Archive) Rename(index int, newName string) error {
	oldName := a.files[index].Name
	if err := a.stage(Change{Kind: ChangeRename, Index: index, NewName: newName, OldName: oldName}); err != nil {
		return err
	}
	a.files[index].Name = newName
	return nil
}

// RenameToUnique stages renaming the member at index to a name that
// doesn't collide with any other live member, returning the chosen name.
// It's used to displace a file occupying the name a required file needs.
func (a *Archive) RenameToUnique(index int) (string, error) {
	base := a.files[index].Name
	candidate := base
	for n := 1; a.nameInUse(candidate, index); n++ {
		candidate = fmt.Sprintf("%s.displaced-%d", base, n)
	}
	if err := a.Rename(index, candidate); err != nil {
		return "", err
	}
	return candidate, nil
}

// nameInUse reports whether any live member other than except has the
// given name.
func (a *Archive) nameInUse(name string, except int) bool {
	for i, m := range a.files {
		if i == except || m.deleted {
			continue
		}
		if m.Name == name {
			return true
		}
	}
	return false
}

// IndexOfName returns the index of the first live member with the given
// name, or -1. Names are compared under Unicode NFC normalization so a
// catalog name and a directory entry decomposed to NFD by the filesystem
// (as macOS does for accented names) are still recognized as the same
// name; the member's stored name is left untouched for I/O.
func (a *Archive) IndexOfName(name string) int {
	target := norm.NFC.String(name)
	for i, m := range a.files {
		if !m.deleted && norm.NFC.String(m.Name) == target {
			return i
		}
	}
	return -1
}

// Modified reports whether any mutation has been staged since the last
// commit.
func (a *Archive) Modified() bool {
	return a.modified
}

// CacheDirty reports whether the archive cache's record of this archive
// needs to be rewritten.
func (a *Archive) CacheDirty() bool {
	return a.cacheDirty
}

// ClearCacheDirty resets the cache-dirty flag after the archive cache has
// been written through.
func (a *Archive) ClearCacheDirty() {
	a.cacheDirty = false
}

// Commit writes staged changes to the backend atomically. On an unmodified
// archive it's a no-op success. On success the change log is cleared and
// the in-memory member list reflects the committed state.
func (a *Archive) Commit() error {
	if !a.modified {
		return nil
	}
	if a.ReadOnly() {
		return ErrReadOnly
	}

	if err := a.backend.commit(a.files, a.changes); err != nil {
		return fmt.Errorf("unable to commit archive %s: %w", a.identity, err)
	}

	// Drop logically-deleted members now that the backend reflects their
	// removal; remaining indices are renumbered, so any cached index held
	// by a caller across a commit is no longer valid by contract.
	survivors := a.files[:0]
	for _, m := range a.files {
		if !m.deleted {
			survivors = append(survivors, m)
		}
	}
	a.files = survivors
	a.changes = nil
	a.modified = false
	a.cacheDirty = true

	return nil
}

// Rollback discards staged changes without touching the backend.
func (a *Archive) Rollback() {
	// Undo in-memory effects of staged changes in reverse order so that,
	// e.g., a rename staged after a delete doesn't leave the member's
	// visible Name out of sync with its deleted flag.
	for i := len(a.changes) - 1; i >= 0; i-- {
		c := a.changes[i]
		switch c.Kind {
		case ChangeDelete:
			a.files[c.Index].deleted = false
		case ChangeRename:
			a.files[c.Index].Name = c.OldName
		}
	}

	if len(a.changes) > 0 {
		// Drop any appended-but-uncommitted members (AddEmpty/CopyFrom/
		// CopyRangeFrom all append past the pre-staging length).
		minAppendIndex := len(a.files)
		for _, c := range a.changes {
			switch c.Kind {
			case ChangeAddEmpty, ChangeCopyFrom, ChangeCopyRangeFrom:
				if c.Index < minAppendIndex {
					minAppendIndex = c.Index
				}
			}
		}
		if minAppendIndex < len(a.files) {
			a.files = a.files[:minAppendIndex]
		}
	}

	a.changes = nil
	a.modified = false
}

// Close commits any staged changes; it does nothing else. Callers that
// want to discard staged changes must call Rollback before Close.
func (a *Archive) Close() error {
	if err := a.Commit(); err != nil {
		return err
	}
	return nil
}

// Remove deletes the archive's backing store entirely (used when the final
// sweep finds a zero-member archive) and forgets it in the registry.
func (a *Archive) Remove(remover interface{ Remove(string) error }) error {
	if err := remover.Remove(a.identity.Path); err != nil {
		return err
	}
	a.registry.forget(a.identity)
	return nil
}
