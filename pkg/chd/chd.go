// Package chd parses just enough of a CHD (MAME Compressed Hunks of Data)
// disk-image header to fingerprint it as a leaf service: the declared size
// and the SHA-1 (or, for the oldest versions, MD5) the header already
// carries, without decompressing a single hunk.
package chd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/ckmame/ckmame/pkg/fingerprint"
)

// Tag is the fixed 8-byte magic every CHD version begins with.
const Tag = "MComprHD"

// ErrNotCHD is returned when the input doesn't begin with the CHD tag.
var ErrNotCHD = errors.New("chd: not a CHD image")

// ErrUnsupportedVersion is returned for a version this package doesn't know
// how to read.
var ErrUnsupportedVersion = errors.New("chd: unsupported version")

// Header is the subset of a CHD header the engine needs: declared logical
// size and the digest the format itself records.
type Header struct {
	Version uint32
	// LogicalBytes is the uncompressed size of the disk image's raw data.
	LogicalBytes uint64
	// SHA1 is the image's combined-sha1 (v5) or sha1 (v3/v4) digest. Zero
	// for v1/v2, which record only an MD5.
	SHA1 [20]byte
	// MD5 is the image's declared digest for v1-v3; zero for v4+.
	MD5 [16]byte
}

// HasSHA1 reports whether Header carries a non-zero SHA-1.
func (h Header) HasSHA1() bool {
	return h.SHA1 != [20]byte{}
}

// Fingerprint converts a parsed Header into the fingerprint the engine
// stores for a disk: combined-sha1 when the version carries one, otherwise
// the v1-v3 MD5. Size is always populated from LogicalBytes.
func (h Header) Fingerprint() fingerprint.Fingerprint {
	fp := fingerprint.New(h.LogicalBytes)
	if h.HasSHA1() {
		fp = fp.WithSHA1(h.SHA1)
	} else {
		fp = fp.WithMD5(h.MD5)
	}
	return fp
}

// ReadHeader reads and parses a CHD header from r, which must be positioned
// at the start of the image.
func ReadHeader(r io.Reader) (Header, error) {
	var tagAndLength [12]byte
	if _, err := io.ReadFull(r, tagAndLength[:]); err != nil {
		return Header{}, fmt.Errorf("chd: read tag: %w", err)
	}
	if string(tagAndLength[:8]) != Tag {
		return Header{}, ErrNotCHD
	}
	length := binary.BigEndian.Uint32(tagAndLength[8:12])

	rest := make([]byte, length-12)
	if _, err := io.ReadFull(r, rest); err != nil {
		return Header{}, fmt.Errorf("chd: read header body: %w", err)
	}

	version := binary.BigEndian.Uint32(rest[0:4])
	switch version {
	case 1, 2:
		return readV1V2(rest, version)
	case 3:
		return readV3(rest)
	case 4:
		return readV4(rest)
	case 5:
		return readV5(rest)
	default:
		return Header{}, fmt.Errorf("%w: version %d", ErrUnsupportedVersion, version)
	}
}

// v1/v2 layout (offsets relative to the start of the body, i.e. counting
// from the version field): version(4) flags(4) compression(4) hunksize(4)
// totalhunks(4) cylinders(4) heads(4) sectors(4) md5(16) parentmd5(16)
// [v2 adds] sectorsize(4).
func readV1V2(body []byte, version uint32) (Header, error) {
	const md5Offset = 4 + 4 + 4 + 4 + 4 + 4 + 4 + 4
	if len(body) < md5Offset+16 {
		return Header{}, fmt.Errorf("chd: v%d header too short", version)
	}
	hunksize := binary.BigEndian.Uint32(body[12:16])
	totalhunks := binary.BigEndian.Uint32(body[16:20])

	var md5 [16]byte
	copy(md5[:], body[md5Offset:md5Offset+16])

	return Header{
		Version:      version,
		LogicalBytes: uint64(hunksize) * uint64(totalhunks),
		MD5:          md5,
	}, nil
}

// v3 layout: version(4) flags(4) compression(4) totalhunks(4) logicalbytes(8)
// metaoffset(8) md5(16) parentmd5(16) hunkbytes(4) sha1(20) parentsha1(20).
func readV3(body []byte) (Header, error) {
	const logicalBytesOffset = 4 + 4 + 4 + 4
	const sha1Offset = logicalBytesOffset + 8 + 8 + 16 + 16 + 4
	if len(body) < sha1Offset+20 {
		return Header{}, errors.New("chd: v3 header too short")
	}
	logicalBytes := binary.BigEndian.Uint64(body[logicalBytesOffset : logicalBytesOffset+8])

	var sha1 [20]byte
	copy(sha1[:], body[sha1Offset:sha1Offset+20])

	md5Offset := logicalBytesOffset + 8 + 8
	var md5 [16]byte
	copy(md5[:], body[md5Offset:md5Offset+16])

	return Header{Version: 3, LogicalBytes: logicalBytes, SHA1: sha1, MD5: md5}, nil
}

// v4 layout: version(4) flags(4) compression(4) totalhunks(4) logicalbytes(8)
// metaoffset(8) hunkbytes(4) sha1(20) parentsha1(20) rawsha1(20).
func readV4(body []byte) (Header, error) {
	const logicalBytesOffset = 4 + 4 + 4 + 4
	const sha1Offset = logicalBytesOffset + 8 + 8 + 4
	if len(body) < sha1Offset+20 {
		return Header{}, errors.New("chd: v4 header too short")
	}
	logicalBytes := binary.BigEndian.Uint64(body[logicalBytesOffset : logicalBytesOffset+8])

	var sha1 [20]byte
	copy(sha1[:], body[sha1Offset:sha1Offset+20])

	return Header{Version: 4, LogicalBytes: logicalBytes, SHA1: sha1}, nil
}

// v5 layout: tag(8) length(4) version(4) compressors(16) logicalbytes(8)
// mapoffset(8) metaoffset(8) hunkbytes(4) unitbytes(4) rawsha1(20)
// combinedsha1(20) parentsha1(20). Offsets below are relative to the start
// of body (which begins at the version field), so they're 12 less than the
// field's offset from the tag.
func readV5(body []byte) (Header, error) {
	const logicalBytesOffset = 4 + 16
	const combinedSHA1Offset = logicalBytesOffset + 8 + 8 + 8 + 4 + 4 + 20
	if len(body) < combinedSHA1Offset+20 {
		return Header{}, errors.New("chd: v5 header too short")
	}
	logicalBytes := binary.BigEndian.Uint64(body[logicalBytesOffset : logicalBytesOffset+8])

	var combinedSHA1 [20]byte
	copy(combinedSHA1[:], body[combinedSHA1Offset:combinedSHA1Offset+20])

	return Header{Version: 5, LogicalBytes: logicalBytes, SHA1: combinedSHA1}, nil
}
