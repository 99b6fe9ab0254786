package fsutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ckmame/ckmame/pkg/logging"
	"github.com/ckmame/ckmame/pkg/must"
)

const (
	// atomicWriteTemporaryNamePrefix is the file name prefix to use for
	// intermediate temporary files used in atomic writes.
	atomicWriteTemporaryNamePrefix = TemporaryNamePrefix + "atomic-write"
)

// WriteFileAtomic writes a file to disk in an atomic fashion by using an
// intermediate temporary file that is swapped into place using a rename,
// so that a reader never observes the file half-written.
func WriteFileAtomic(path string, data []byte, permissions os.FileMode, logger *logging.Logger) error {
	// Create a temporary file in the same directory so that the final
	// rename is guaranteed to stay on one filesystem.
	temporary, err := os.CreateTemp(filepath.Dir(path), atomicWriteTemporaryNamePrefix)
	if err != nil {
		return fmt.Errorf("unable to create temporary file: %w", err)
	}

	// Write data.
	if _, err = temporary.Write(data); err != nil {
		must.Close(temporary, logger)
		must.OSRemove(temporary.Name(), logger)
		return fmt.Errorf("unable to write data to temporary file: %w", err)
	}

	// Close out the file.
	if err = temporary.Close(); err != nil {
		must.OSRemove(temporary.Name(), logger)
		return fmt.Errorf("unable to close temporary file: %w", err)
	}

	// Set the file's permissions.
	if err = os.Chmod(temporary.Name(), permissions); err != nil {
		must.OSRemove(temporary.Name(), logger)
		return fmt.Errorf("unable to change file permissions: %w", err)
	}

	// Swap the temporary file into place.
	if err = os.Rename(temporary.Name(), path); err != nil {
		must.OSRemove(temporary.Name(), logger)
		return fmt.Errorf("unable to rename file into place: %w", err)
	}

	// Success.
	return nil
}

// RenameOverwriting renames oldPath to newPath, replacing newPath if it
// already exists. On POSIX systems os.Rename already has this behavior; the
// wrapper exists so call sites read as an intentional overwrite rather than
// a bare os.Rename, and so a single choke point exists if a platform ever
// needs different handling.
func RenameOverwriting(oldPath, newPath string) error {
	if err := os.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("unable to rename %q to %q: %w", oldPath, newPath, err)
	}
	return nil
}

// EnsureParentDirectory creates the parent directory of path if it doesn't
// already exist, along with any missing ancestors. It's used before
// creating a stash or quarantine file nested under a directory tree that
// may not exist yet.
func EnsureParentDirectory(path string) error {
	parent := filepath.Dir(path)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return fmt.Errorf("unable to create parent directory %q: %w", parent, err)
	}
	return nil
}
