// Package fsutil provides the small set of filesystem primitives the
// archive and cache layers need: atomic same-directory writes and renames,
// and a size/mtime probe used to decide whether cached metadata is stale.
// It's a much narrower analogue of what a continuously-watching
// synchronization tool needs, since this engine only ever touches the
// filesystem during a single run.
package fsutil

const (
	// TemporaryNamePrefix is the file name prefix used for all temporary
	// files and directories created by this package, so that an interrupted
	// run leaves artifacts that are easy to recognize and sweep up by hand.
	TemporaryNamePrefix = ".ckmame-temporary-"
)
