package fingerprint

import "testing"

// TestCompareNoCommonHash tests that fingerprints with no shared digest kind
// compare as NoCommonHash.
func TestCompareNoCommonHash(t *testing.T) {
	a := New(10).WithCRC32(0x12345678)
	b := New(10).WithMD5([16]byte{1})
	if c := a.Compare(b); c != NoCommonHash {
		t.Fatal("expected NoCommonHash, got", c)
	}
}

// TestCompareMatch tests that fingerprints agreeing on every shared digest
// kind compare as Match, even if one carries additional digest kinds the
// other lacks.
func TestCompareMatch(t *testing.T) {
	a := New(10).WithCRC32(0x12345678).WithMD5([16]byte{1, 2, 3})
	b := New(10).WithCRC32(0x12345678)
	if c := a.Compare(b); c != Match {
		t.Fatal("expected Match, got", c)
	}
}

// TestCompareMismatch tests that a single disagreeing shared digest kind is
// enough to produce Mismatch, regardless of other agreeing kinds.
func TestCompareMismatch(t *testing.T) {
	a := New(10).WithCRC32(0x12345678).WithMD5([16]byte{1, 2, 3})
	b := New(10).WithCRC32(0x87654321).WithMD5([16]byte{1, 2, 3})
	if c := a.Compare(b); c != Mismatch {
		t.Fatal("expected Mismatch, got", c)
	}
}

// TestCompareWithSizeRequiresBothSizes tests that CompareWithSize fails
// closed when either side lacks a size, even if digests agree.
func TestCompareWithSizeRequiresBothSizes(t *testing.T) {
	a := Fingerprint{}.WithCRC32(0x12345678)
	b := New(10).WithCRC32(0x12345678)
	if a.CompareWithSize(b) {
		t.Fatal("expected CompareWithSize to fail when one side lacks a size")
	}
}

// TestCompareWithSizeMismatchedSizes tests that disagreeing sizes fail
// CompareWithSize even when digests agree.
func TestCompareWithSizeMismatchedSizes(t *testing.T) {
	a := New(10).WithCRC32(0x12345678)
	b := New(20).WithCRC32(0x12345678)
	if a.CompareWithSize(b) {
		t.Fatal("expected CompareWithSize to fail on size mismatch")
	}
}

// TestMergeAdoptsMissingFields tests that Merge copies in fields the
// receiver lacks without touching fields it already has.
func TestMergeAdoptsMissingFields(t *testing.T) {
	a := New(10).WithCRC32(0x11111111)
	b := New(999).WithCRC32(0x22222222).WithMD5([16]byte{9})

	merged := a.Merge(b)

	if size, _ := merged.Size(); size != 10 {
		t.Error("expected Merge to preserve receiver's size, got", size)
	}
	if crc, _ := merged.CRC32(); crc != 0x11111111 {
		t.Error("expected Merge to preserve receiver's CRC32, got", crc)
	}
	if md5sum, ok := merged.MD5(); !ok || md5sum != ([16]byte{9}) {
		t.Error("expected Merge to adopt MD5 from other")
	}
}

// TestAddTypesWidensPresentSet tests that AddTypes allocates zero-filled
// slots for newly added kinds without disturbing already-present fields.
func TestAddTypesWidensPresentSet(t *testing.T) {
	a := New(10).WithCRC32(0x12345678)
	widened := a.AddTypes(KindMD5 | KindSHA1)

	if !widened.Has(KindSize | KindCRC32 | KindMD5 | KindSHA1) {
		t.Fatal("expected all four kinds present after AddTypes")
	}
	if crc, _ := widened.CRC32(); crc != 0x12345678 {
		t.Error("expected AddTypes to preserve existing CRC32")
	}
	if md5sum, ok := widened.MD5(); !ok || md5sum != ([16]byte{}) {
		t.Error("expected AddTypes to allocate a zero-filled MD5 slot")
	}
}

// TestIsZeroRecognizesEmptyDigests tests that IsZero matches the well-known
// digests of the empty stream.
func TestIsZeroRecognizesEmptyDigests(t *testing.T) {
	if !EmptyFile.IsZero(KindCRC32) {
		t.Error("expected EmptyFile CRC32 to be recognized as zero")
	}
	if !EmptyFile.IsZero(KindMD5) {
		t.Error("expected EmptyFile MD5 to be recognized as zero")
	}
	if !EmptyFile.IsZero(KindSHA1) {
		t.Error("expected EmptyFile SHA1 to be recognized as zero")
	}

	nonEmpty := New(10).WithCRC32(0x12345678)
	if nonEmpty.IsZero(KindCRC32) {
		t.Error("expected non-empty CRC32 to not be recognized as zero")
	}
}

// TestIsZeroAbsentKind tests that IsZero returns false for a kind the
// fingerprint doesn't carry.
func TestIsZeroAbsentKind(t *testing.T) {
	a := New(10)
	if a.IsZero(KindCRC32) {
		t.Error("expected IsZero to return false for an absent kind")
	}
}

// TestFromHexInfersKindFromLength tests that FromHex deduces the digest
// kind from the decoded byte length.
func TestFromHexInfersKindFromLength(t *testing.T) {
	cases := []struct {
		hex  string
		kind Kind
	}{
		{"12345678", KindCRC32},
		{"000102030405060708090a0b0c0d0e0f", KindMD5},
		{"000102030405060708090a0b0c0d0e0f10111213", KindSHA1},
	}
	for _, c := range cases {
		f, kind, err := FromHex(c.hex)
		if err != nil {
			t.Fatalf("FromHex(%q) failed: %v", c.hex, err)
		}
		if kind != c.kind {
			t.Errorf("FromHex(%q) kind = %v, want %v", c.hex, kind, c.kind)
		}
		if !f.Has(c.kind) {
			t.Errorf("FromHex(%q) result doesn't have expected kind set", c.hex)
		}
	}
}

// TestFromHexRejectsUnrecognizedLength tests that FromHex rejects a digest
// that doesn't decode to 4, 16, or 20 bytes.
func TestFromHexRejectsUnrecognizedLength(t *testing.T) {
	if _, _, err := FromHex("1234"); err == nil {
		t.Fatal("expected FromHex to reject a 2-byte digest")
	}
}

// TestFromHexRejectsInvalidHex tests that FromHex rejects non-hex input.
func TestFromHexRejectsInvalidHex(t *testing.T) {
	if _, _, err := FromHex("not hex!"); err == nil {
		t.Fatal("expected FromHex to reject invalid hex")
	}
}
