// Package fingerprint implements the size-and-digest value type used
// throughout the engine to identify file content. A Fingerprint carries
// only the fields that are actually known about a piece of content; every
// comparison is performed using the intersection of the digest types that
// both operands have, so a fingerprint built from only a CRC32 can still be
// meaningfully compared against one carrying all three digests.
package fingerprint

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"hash/crc32"
)

// Kind identifies one field of a Fingerprint. Kinds are combined as a
// bitmask to describe which fields are present.
type Kind uint8

// The recognized fingerprint kinds. KindSize is tracked separately from the
// digest kinds because it participates in size-aware comparison but never
// in digest-only comparison.
const (
	KindSize Kind = 1 << iota
	KindCRC32
	KindMD5
	KindSHA1

	// KindDigests is the mask of all digest kinds, excluding size.
	KindDigests = KindCRC32 | KindMD5 | KindSHA1
)

// String renders a Kind mask as a short diagnostic label.
func (k Kind) String() string {
	var parts []string
	if k&KindSize != 0 {
		parts = append(parts, "size")
	}
	if k&KindCRC32 != 0 {
		parts = append(parts, "crc32")
	}
	if k&KindMD5 != 0 {
		parts = append(parts, "md5")
	}
	if k&KindSHA1 != 0 {
		parts = append(parts, "sha1")
	}
	if len(parts) == 0 {
		return "none"
	}
	result := parts[0]
	for _, p := range parts[1:] {
		result += "+" + p
	}
	return result
}

// Comparison is the result of comparing two Fingerprints.
type Comparison uint8

const (
	// NoCommonHash indicates the two fingerprints share no digest kind and
	// so could not be compared at all.
	NoCommonHash Comparison = iota
	// Match indicates every digest kind common to both fingerprints agreed.
	Match
	// Mismatch indicates at least one common digest kind disagreed.
	Mismatch
)

// Fingerprint is a size plus a set of fixed-width content digests, each
// individually optional. The present mask is the source of truth for which
// fields are meaningful; a zero-valued digest whose kind bit isn't set in
// present carries no information.
type Fingerprint struct {
	present Kind
	size    uint64
	crc32   uint32
	md5     [16]byte
	sha1    [20]byte
}

// EmptyFile is the fingerprint of the zero-length stream: size zero and the
// well-known digests of empty input for all three digest kinds.
var EmptyFile = Fingerprint{
	present: KindSize | KindCRC32 | KindMD5 | KindSHA1,
	size:    0,
	crc32:   crc32.ChecksumIEEE(nil),
	md5:     md5.Sum(nil),
	sha1:    sha1.Sum(nil),
}

// New constructs a Fingerprint with only the size field present.
func New(size uint64) Fingerprint {
	return Fingerprint{present: KindSize, size: size}
}

// Has reports whether every kind in mask is present.
func (f Fingerprint) Has(mask Kind) bool {
	return f.present&mask == mask
}

// Present returns the mask of fields this fingerprint carries.
func (f Fingerprint) Present() Kind {
	return f.present
}

// Size returns the size field and whether it's present.
func (f Fingerprint) Size() (uint64, bool) {
	return f.size, f.present&KindSize != 0
}

// CRC32 returns the CRC32 digest and whether it's present.
func (f Fingerprint) CRC32() (uint32, bool) {
	return f.crc32, f.present&KindCRC32 != 0
}

// MD5 returns the MD5 digest and whether it's present.
func (f Fingerprint) MD5() ([16]byte, bool) {
	return f.md5, f.present&KindMD5 != 0
}

// SHA1 returns the SHA-1 digest and whether it's present.
func (f Fingerprint) SHA1() ([20]byte, bool) {
	return f.sha1, f.present&KindSHA1 != 0
}

// WithSize returns a copy of f with the size field set.
func (f Fingerprint) WithSize(size uint64) Fingerprint {
	f.present |= KindSize
	f.size = size
	return f
}

// WithCRC32 returns a copy of f with the CRC32 digest set.
func (f Fingerprint) WithCRC32(v uint32) Fingerprint {
	f.present |= KindCRC32
	f.crc32 = v
	return f
}

// WithMD5 returns a copy of f with the MD5 digest set.
func (f Fingerprint) WithMD5(v [16]byte) Fingerprint {
	f.present |= KindMD5
	f.md5 = v
	return f
}

// WithSHA1 returns a copy of f with the SHA-1 digest set.
func (f Fingerprint) WithSHA1(v [20]byte) Fingerprint {
	f.present |= KindSHA1
	f.sha1 = v
	return f
}

// AddTypes widens f's present set to include every kind in mask, allocating
// zero-filled slots for any newly added digest kind. It does not overwrite
// kinds that are already present.
func (f Fingerprint) AddTypes(mask Kind) Fingerprint {
	f.present |= mask
	return f
}

// Merge returns a copy of f with every field other has that f lacks copied
// in. Fields f already has are left untouched, even if they disagree with
// other's values.
func (f Fingerprint) Merge(other Fingerprint) Fingerprint {
	if other.present&KindSize != 0 && f.present&KindSize == 0 {
		f.size = other.size
	}
	if other.present&KindCRC32 != 0 && f.present&KindCRC32 == 0 {
		f.crc32 = other.crc32
	}
	if other.present&KindMD5 != 0 && f.present&KindMD5 == 0 {
		f.md5 = other.md5
	}
	if other.present&KindSHA1 != 0 && f.present&KindSHA1 == 0 {
		f.sha1 = other.sha1
	}
	f.present |= other.present
	return f
}

// Compare compares f and other using only the digest kinds present in both.
// It never considers size. If the two fingerprints share no digest kind,
// the result is NoCommonHash.
func (f Fingerprint) Compare(other Fingerprint) Comparison {
	common := f.present & other.present & KindDigests
	if common == 0 {
		return NoCommonHash
	}
	if common&KindCRC32 != 0 && f.crc32 != other.crc32 {
		return Mismatch
	}
	if common&KindMD5 != 0 && f.md5 != other.md5 {
		return Mismatch
	}
	if common&KindSHA1 != 0 && f.sha1 != other.sha1 {
		return Mismatch
	}
	return Match
}

// CompareWithSize compares f and other as Compare does, but first requires
// that both sizes be known and equal; if either size is missing or they
// disagree, the fingerprints compare unequal regardless of digest
// agreement.
func (f Fingerprint) CompareWithSize(other Fingerprint) bool {
	fSize, fOK := f.Size()
	oSize, oOK := other.Size()
	if !fOK || !oOK || fSize != oSize {
		return false
	}
	return f.Compare(other) == Match
}

// IsZero reports whether the digest identified by kind equals the
// well-known digest of the empty stream. kind must name exactly one digest
// kind (KindCRC32, KindMD5, or KindSHA1); it is not meaningful for KindSize
// or for a multi-bit mask.
func (f Fingerprint) IsZero(kind Kind) bool {
	if f.present&kind == 0 {
		return false
	}
	switch kind {
	case KindCRC32:
		return f.crc32 == EmptyFile.crc32
	case KindMD5:
		return f.md5 == EmptyFile.md5
	case KindSHA1:
		return f.sha1 == EmptyFile.sha1
	default:
		return false
	}
}

// FromHex parses a hex-encoded digest, inferring its kind from the decoded
// byte length: 4 bytes is CRC32, 16 is MD5, 20 is SHA-1. Any other length is
// an error.
func FromHex(s string) (Fingerprint, Kind, error) {
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return Fingerprint{}, 0, fmt.Errorf("unable to decode hex digest: %w", err)
	}
	var f Fingerprint
	var kind Kind
	switch len(decoded) {
	case 4:
		kind = KindCRC32
		f = f.WithCRC32(uint32(decoded[0])<<24 | uint32(decoded[1])<<16 | uint32(decoded[2])<<8 | uint32(decoded[3]))
	case 16:
		kind = KindMD5
		var digest [16]byte
		copy(digest[:], decoded)
		f = f.WithMD5(digest)
	case 20:
		kind = KindSHA1
		var digest [20]byte
		copy(digest[:], decoded)
		f = f.WithSHA1(digest)
	default:
		return Fingerprint{}, 0, fmt.Errorf("digest has unrecognized length %d bytes", len(decoded))
	}
	return f, kind, nil
}

// String renders the fingerprint for diagnostics, showing only present
// fields.
func (f Fingerprint) String() string {
	result := "{"
	first := true
	sep := func() string {
		if first {
			first = false
			return ""
		}
		return ", "
	}
	if size, ok := f.Size(); ok {
		result += fmt.Sprintf("%ssize=%d", sep(), size)
	}
	if crc, ok := f.CRC32(); ok {
		result += fmt.Sprintf("%scrc32=%08x", sep(), crc)
	}
	if md5sum, ok := f.MD5(); ok {
		result += fmt.Sprintf("%smd5=%x", sep(), md5sum)
	}
	if sha1sum, ok := f.SHA1(); ok {
		result += fmt.Sprintf("%ssha1=%x", sep(), sha1sum)
	}
	return result + "}"
}
