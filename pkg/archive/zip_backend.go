package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ckmame/ckmame/pkg/fsutil"
)

// zipBackend implements backend over a stdlib archive/zip container.
// Real-world MAME romset tooling reads zip sets with the standard library
// too, so stdlib archive/zip is used here rather than adding a zip
// dependency with no grounding.
type zipBackend struct {
	path     string
	flags    Flags
	readOnly bool
}

func newZipBackend(path string, flags Flags, readOnly bool) (*zipBackend, error) {
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("unable to stat %q: %w", path, err)
		}
		if flags&FlagCreate == 0 {
			return nil, err
		}
	}
	return &zipBackend{path: path, flags: flags, readOnly: readOnly}, nil
}

func (b *zipBackend) exists() bool {
	_, err := os.Stat(b.path)
	return err == nil
}

func (b *zipBackend) list() ([]Member, error) {
	if !b.exists() {
		return nil, nil
	}
	reader, err := zip.OpenReader(b.path)
	if err != nil {
		return nil, fmt.Errorf("unable to open zip %q: %w", b.path, err)
	}
	defer reader.Close()

	members := make([]Member, 0, len(reader.File))
	for _, f := range reader.File {
		members = append(members, Member{
			Name:      f.Name,
			MTime:     f.Modified,
			Extension: filepath.Ext(f.Name),
		}.withSize(f.UncompressedSize64).withCRC32(f.CRC32))
	}
	return members, nil
}

func (b *zipBackend) open(index int, start, length int64) (ReadSource, error) {
	reader, err := zip.OpenReader(b.path)
	if err != nil {
		return nil, fmt.Errorf("unable to open zip %q: %w", b.path, err)
	}
	if index < 0 || index >= len(reader.File) {
		reader.Close()
		return nil, fmt.Errorf("member index %d out of range", index)
	}
	rc, err := reader.File[index].Open()
	if err != nil {
		reader.Close()
		return nil, fmt.Errorf("unable to open zip member %d: %w", index, err)
	}
	return &zipReadSource{parent: reader, inner: rc, remaining: start, length: length}, nil
}

// zipReadSource wraps a zip entry reader, applying a start offset by
// discarding bytes (zip entries are not seekable without decompressing) and
// an optional length limit.
type zipReadSource struct {
	parent    *zip.ReadCloser
	inner     io.ReadCloser
	remaining int64 // bytes left to discard before real reads begin
	length    int64 // remaining bytes allowed to be read, or -1 for unlimited
	skipped   bool
}

func (s *zipReadSource) Read(p []byte) (int, error) {
	if !s.skipped {
		if _, err := io.CopyN(io.Discard, s.inner, s.remaining); err != nil && err != io.EOF {
			return 0, err
		}
		s.skipped = true
	}
	if s.length >= 0 {
		if int64(len(p)) > s.length {
			p = p[:s.length]
		}
		if s.length == 0 {
			return 0, io.EOF
		}
	}
	n, err := s.inner.Read(p)
	if s.length >= 0 {
		s.length -= int64(n)
	}
	return n, err
}

func (s *zipReadSource) Close() error {
	innerErr := s.inner.Close()
	parentErr := s.parent.Close()
	if innerErr != nil {
		return innerErr
	}
	return parentErr
}

// commit rewrites the entire zip file to a temporary file reflecting
// members/changes, then renames it into place. Renumbering happens
// implicitly: the new file's entries are written in the order members are
// given, skipping deleted ones.
func (b *zipBackend) commit(members []Member, changes []Change) error {
	if b.readOnly {
		return ErrReadOnly
	}

	if err := fsutil.EnsureParentDirectory(b.path); err != nil {
		return err
	}

	temporary, err := os.CreateTemp(filepath.Dir(b.path), fsutil.TemporaryNamePrefix+"zip")
	if err != nil {
		return fmt.Errorf("unable to create temporary file: %w", err)
	}
	temporaryPath := temporary.Name()
	defer os.Remove(temporaryPath)

	writer := zip.NewWriter(temporary)

	// Open the existing archive, if any, so surviving unmodified members
	// can be streamed across without needing a source archive reference.
	var existing *zip.ReadCloser
	if b.exists() {
		existing, err = zip.OpenReader(b.path)
		if err != nil {
			temporary.Close()
			return fmt.Errorf("unable to open existing zip %q: %w", b.path, err)
		}
		defer existing.Close()
	}

	for _, c := range changes {
		switch c.Kind {
		case ChangeAddEmpty:
			if _, err := writer.Create(c.NewName); err != nil {
				writer.Close()
				temporary.Close()
				return fmt.Errorf("unable to stage empty member %q: %w", c.NewName, err)
			}
		case ChangeCopyFrom:
			if err := copyMemberInto(writer, c.NewName, c.SourceArchive, c.SourceIndex, 0, -1); err != nil {
				writer.Close()
				temporary.Close()
				return err
			}
		case ChangeCopyRangeFrom:
			if err := copyMemberInto(writer, c.NewName, c.SourceArchive, c.SourceIndex, c.Offset, c.Length); err != nil {
				writer.Close()
				temporary.Close()
				return err
			}
		}
	}

	// Stream every surviving member that wasn't itself the target of a
	// staging change above (i.e. every member present before this commit
	// that is neither deleted nor newly appended).
	preexistingCount := len(members) - countAppended(changes)
	for i := 0; i < preexistingCount && i < len(members); i++ {
		m := members[i]
		if m.deleted {
			continue
		}
		if existing == nil || i >= len(existing.File) {
			continue
		}
		if err := streamZipEntry(writer, m.Name, existing.File[i]); err != nil {
			writer.Close()
			temporary.Close()
			return err
		}
	}

	if err := writer.Close(); err != nil {
		temporary.Close()
		return fmt.Errorf("unable to finalize zip %q: %w", temporaryPath, err)
	}
	if err := temporary.Close(); err != nil {
		return fmt.Errorf("unable to close temporary zip %q: %w", temporaryPath, err)
	}

	return fsutil.RenameOverwriting(temporaryPath, b.path)
}

// countAppended returns how many Change entries append a new member past
// the archive's pre-staging length.
func countAppended(changes []Change) int {
	count := 0
	for _, c := range changes {
		switch c.Kind {
		case ChangeAddEmpty, ChangeCopyFrom, ChangeCopyRangeFrom:
			count++
		}
	}
	return count
}

// streamZipEntry copies an existing zip entry's raw compressed bytes
// across to writer under name, preserving its original compression method.
func streamZipEntry(writer *zip.Writer, name string, f *zip.File) error {
	header := f.FileHeader
	header.Name = name
	dst, err := writer.CreateHeader(&header)
	if err != nil {
		return fmt.Errorf("unable to stage member %q: %w", name, err)
	}
	src, err := f.OpenRaw()
	if err != nil {
		return fmt.Errorf("unable to open raw member %q: %w", name, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("unable to stream member %q: %w", name, err)
	}
	return nil
}

// copyMemberInto copies a byte range of a source archive's member into a
// new entry in writer under name.
func copyMemberInto(writer *zip.Writer, name string, src *Archive, srcIndex int, offset, length int64) error {
	dst, err := writer.Create(name)
	if err != nil {
		return fmt.Errorf("unable to stage copied member %q: %w", name, err)
	}
	source, err := src.FileOpen(srcIndex, offset, length)
	if err != nil {
		return fmt.Errorf("unable to open source member for %q: %w", name, err)
	}
	defer source.Close()
	if _, err := io.Copy(dst, source); err != nil {
		return fmt.Errorf("unable to copy into %q: %w", name, err)
	}
	return nil
}

// withSize and withCRC32 are small builder helpers kept local to this file
// since Member's Fingerprint field is populated piecemeal while listing a
// zip's central directory (which gives size and CRC32 for free, before any
// content is actually read).
func (m Member) withSize(size uint64) Member {
	m.Fingerprint = m.Fingerprint.WithSize(size)
	return m
}

func (m Member) withCRC32(crc uint32) Member {
	m.Fingerprint = m.Fingerprint.WithCRC32(crc)
	return m
}
