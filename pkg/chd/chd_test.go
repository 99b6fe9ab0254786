package chd

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildV5Header constructs a synthetic, minimal v5 CHD header for testing:
// tag(8) length(4) version(4) compressors(16) logicalbytes(8) mapoffset(8)
// metaoffset(8) hunkbytes(4) unitbytes(4) rawsha1(20) combinedsha1(20)
// parentsha1(20).
func buildV5Header(logicalBytes uint64, combinedSHA1 [20]byte) []byte {
	body := make([]byte, 4+16+8+8+8+4+4+20+20+20)
	binary.BigEndian.PutUint32(body[0:4], 5) // version
	offset := 4 + 16
	binary.BigEndian.PutUint64(body[offset:offset+8], logicalBytes)
	offset += 8 + 8 + 8 + 4 + 4 + 20
	copy(body[offset:offset+20], combinedSHA1[:])

	var buf bytes.Buffer
	buf.WriteString(Tag)
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(12+len(body)))
	buf.Write(length[:])
	buf.Write(body)
	return buf.Bytes()
}

func buildV3Header(logicalBytes uint64, sha1 [20]byte, md5 [16]byte) []byte {
	body := make([]byte, 4+4+4+4+8+8+16+16+4+20+20)
	binary.BigEndian.PutUint32(body[0:4], 3) // version
	logicalOffset := 4 + 4 + 4 + 4
	binary.BigEndian.PutUint64(body[logicalOffset:logicalOffset+8], logicalBytes)
	md5Offset := logicalOffset + 8 + 8
	copy(body[md5Offset:md5Offset+16], md5[:])
	sha1Offset := md5Offset + 16 + 16 + 4
	copy(body[sha1Offset:sha1Offset+20], sha1[:])

	var buf bytes.Buffer
	buf.WriteString(Tag)
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(12+len(body)))
	buf.Write(length[:])
	buf.Write(body)
	return buf.Bytes()
}

// TestReadHeaderParsesV5CombinedSHA1 tests that ReadHeader extracts the
// logical size and combined-sha1 from a v5 header.
func TestReadHeaderParsesV5CombinedSHA1(t *testing.T) {
	var sha1 [20]byte
	for i := range sha1 {
		sha1[i] = byte(i + 1)
	}
	raw := buildV5Header(123456, sha1)

	h, err := ReadHeader(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	if h.Version != 5 {
		t.Errorf("version = %d, want 5", h.Version)
	}
	if h.LogicalBytes != 123456 {
		t.Errorf("logical bytes = %d, want 123456", h.LogicalBytes)
	}
	if h.SHA1 != sha1 {
		t.Errorf("sha1 = %x, want %x", h.SHA1, sha1)
	}
	if !h.HasSHA1() {
		t.Error("expected HasSHA1 true")
	}
}

// TestReadHeaderParsesV3SHA1AndMD5 tests that ReadHeader extracts both
// digests from a v3 header and that Fingerprint prefers the SHA-1.
func TestReadHeaderParsesV3SHA1AndMD5(t *testing.T) {
	var sha1 [20]byte
	var md5 [16]byte
	for i := range sha1 {
		sha1[i] = byte(i + 10)
	}
	for i := range md5 {
		md5[i] = byte(i + 20)
	}
	raw := buildV3Header(999, sha1, md5)

	h, err := ReadHeader(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	if h.SHA1 != sha1 {
		t.Errorf("sha1 = %x, want %x", h.SHA1, sha1)
	}
	if h.MD5 != md5 {
		t.Errorf("md5 = %x, want %x", h.MD5, md5)
	}

	fp := h.Fingerprint()
	gotSHA1, ok := fp.SHA1()
	if !ok || gotSHA1 != sha1 {
		t.Errorf("fingerprint sha1 = %x, ok=%v, want %x", gotSHA1, ok, sha1)
	}
}

// TestReadHeaderRejectsWrongTag tests that a buffer not beginning with the
// CHD tag is rejected.
func TestReadHeaderRejectsWrongTag(t *testing.T) {
	_, err := ReadHeader(bytes.NewReader([]byte("not a chd header at all, padded")))
	if err != ErrNotCHD {
		t.Errorf("err = %v, want ErrNotCHD", err)
	}
}

// TestReadHeaderRejectsUnsupportedVersion tests that an unrecognized
// version number is rejected.
func TestReadHeaderRejectsUnsupportedVersion(t *testing.T) {
	body := make([]byte, 64)
	binary.BigEndian.PutUint32(body[0:4], 99)

	var buf bytes.Buffer
	buf.WriteString(Tag)
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(12+len(body)))
	buf.Write(length[:])
	buf.Write(body)

	_, err := ReadHeader(bytes.NewReader(buf.Bytes()))
	if err == nil {
		t.Fatal("expected an error for unsupported version")
	}
}
