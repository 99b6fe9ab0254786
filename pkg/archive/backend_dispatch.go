package archive

import "fmt"

// newBackend constructs the storage-specific backend for identity.
func newBackend(identity Identity, flags Flags, registryReadOnly bool) (backend, error) {
	readOnly := registryReadOnly || flags&FlagReadOnly != 0

	switch identity.Kind {
	case KindZip:
		return newZipBackend(identity.Path, flags, readOnly)
	case KindSevenZip:
		return newSevenZipBackend(identity.Path)
	case KindDirectory, KindDiskDir:
		return newDirectoryBackend(identity.Path, flags, readOnly)
	default:
		return nil, fmt.Errorf("unrecognized archive kind %s", identity.Kind)
	}
}
