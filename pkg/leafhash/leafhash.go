// Package leafhash computes a content fingerprint from a byte stream. It's
// a leaf service with no dependency on any other engine package: archive
// members, detector-transformed buffers, and disk images read through
// pkg/chd all reduce to the same size-plus-three-digests computation.
package leafhash

import (
	"crypto/md5"
	"crypto/sha1"
	"hash/crc32"
	"io"

	"github.com/ckmame/ckmame/pkg/fingerprint"
)

// Stream reads r to completion and returns its fingerprint (size, CRC32,
// MD5, and SHA-1, all computed in a single pass) along with the number of
// bytes read.
func Stream(r io.Reader) (fingerprint.Fingerprint, uint64, error) {
	crc := crc32.NewIEEE()
	md5h := md5.New()
	sha1h := sha1.New()
	mw := io.MultiWriter(crc, md5h, sha1h)

	n, err := io.Copy(mw, r)
	if err != nil {
		return fingerprint.Fingerprint{}, 0, err
	}

	var md5Digest [16]byte
	copy(md5Digest[:], md5h.Sum(nil))
	var sha1Digest [20]byte
	copy(sha1Digest[:], sha1h.Sum(nil))

	fp := fingerprint.New(uint64(n)).
		WithCRC32(crc.Sum32()).
		WithMD5(md5Digest).
		WithSHA1(sha1Digest)
	return fp, uint64(n), nil
}

// Bytes computes the fingerprint of an in-memory buffer, used for
// detector-transformed payloads that are already fully read into memory.
func Bytes(b []byte) fingerprint.Fingerprint {
	var md5Digest [16]byte
	sum := md5.Sum(b)
	copy(md5Digest[:], sum[:])
	var sha1Digest [20]byte
	sha1Sum := sha1.Sum(b)
	copy(sha1Digest[:], sha1Sum[:])

	return fingerprint.New(uint64(len(b))).
		WithCRC32(crc32.ChecksumIEEE(b)).
		WithMD5(md5Digest).
		WithSHA1(sha1Digest)
}
