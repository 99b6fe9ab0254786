package archive

import "io"

// ReadSource is a sequential reader over a member's content, optionally
// windowed to a sub-range. Two opens on the same archive may be
// sequential-only; backends that can't support concurrent out-of-order
// reads (notably 7z) hide that limitation by reseeking or reopening
// internally.
type ReadSource interface {
	io.ReadCloser
}

// backend is the storage-specific half of an Archive. Each Kind has exactly
// one implementation. Archive holds the policy (staged changes, dedup,
// transaction framing, find_offset); backend holds the mechanism (how bytes
// actually move for this storage format).
type backend interface {
	// list opens the backing store and returns its current member list, in
	// on-disk order. It does not consult the archive cache; Archive.Open
	// merges the result with any cached member list itself.
	list() ([]Member, error)

	// open returns a ReadSource over the member at index, optionally
	// windowed to [start, start+length). A length of -1 means "to the end
	// of the member".
	open(index int, start, length int64) (ReadSource, error)

	// commit applies staged changes to the backend atomically. members is
	// the full post-mutation member slice (deleted members still present
	// but marked); changes is the parallel change log in staging order.
	// commit returns only an error; Archive.Commit compacts its own member
	// list once commit succeeds.
	commit(members []Member, changes []Change) error

	// exists reports whether the backing store (file or directory) is
	// currently present on disk.
	exists() bool
}
