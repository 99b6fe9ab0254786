package archivecache

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ckmame/ckmame/pkg/archive"
	"github.com/ckmame/ckmame/pkg/fingerprint"
	"github.com/ckmame/ckmame/pkg/fsutil"
)

// CachedMember is one member row as recorded for a given detector. A raw
// (untransformed) row has DetectorLocalID 0.
type CachedMember struct {
	Index           int
	Name            string
	MTimeUnixNano   int64
	Broken          bool
	DetectorLocalID int
	Fingerprint     fingerprint.Fingerprint
}

// CachedArchive is everything the cache knows about one archive: its
// staleness probe and every recorded member row, across all detectors.
type CachedArchive struct {
	Probe   fsutil.Probe
	Members []CachedMember
}

// Cache is a per-scan-root SQLite-backed store of archive content
// metadata.
type Cache struct {
	db *sql.DB
}

// Open opens (creating if necessary) the cache database at path, ensuring
// its schema matches schemaVersion. An existing file at an older, known
// version is migrated forward in place; a file at a version newer than
// this package understands, or with a schema_info row this package can't
// make sense of, is rebuilt from scratch — it's a derived index, not a
// source of truth, so that's always a safe (if expensive) fallback.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("unable to open archive cache %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	c := &Cache{db: db}
	if err := c.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// Close releases the cache's database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) ensureSchema() error {
	var version int
	err := c.db.QueryRow(`SELECT version FROM schema_info LIMIT 1`).Scan(&version)
	var noSchemaYet bool
	if err != nil {
		if !isMissingTable(err) && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("unable to read archive cache schema version: %w", err)
		}
		noSchemaYet = true
		version = 0
	}

	if version == schemaVersion {
		return nil
	}

	if noSchemaYet {
		return c.createSchema()
	}

	switch version {
	case 2:
		if err := c.migrate(migrationV2toV3, 3); err != nil {
			return err
		}
		fallthrough
	case 3:
		return c.migrate(migrationV3toV4, schemaVersion)
	default:
		// A version this package doesn't recognize (newer than it
		// knows how to read, or corrupted): a derived index is always
		// safe to discard and recompute.
		return c.rebuildSchema()
	}
}

// createSchema bootstraps a brand new, empty database straight at
// schemaVersion.
func (c *Cache) createSchema() error {
	if _, err := c.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("unable to create archive cache schema: %w", err)
	}
	if _, err := c.db.Exec(`INSERT INTO schema_info(version) VALUES (?)`, schemaVersion); err != nil {
		return fmt.Errorf("unable to stamp archive cache schema version: %w", err)
	}
	return nil
}

// migrate runs statements against c's database in a single transaction and
// stamps schema_info with toVersion on success.
func (c *Cache) migrate(statements []string, toVersion int) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("unable to begin archive cache migration to v%d: %w", toVersion, err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("unable to migrate archive cache to v%d: %w", toVersion, err)
		}
	}
	if _, err := tx.Exec(`DELETE FROM schema_info`); err != nil {
		return fmt.Errorf("unable to migrate archive cache to v%d: %w", toVersion, err)
	}
	if _, err := tx.Exec(`INSERT INTO schema_info(version) VALUES (?)`, toVersion); err != nil {
		return fmt.Errorf("unable to migrate archive cache to v%d: %w", toVersion, err)
	}
	return tx.Commit()
}

// rebuildSchema drops every table this package owns and recreates the
// schema from scratch, discarding whatever was cached. Used when the
// existing database is at a version older than this package's migration
// chain starts from, or newer than schemaVersion.
func (c *Cache) rebuildSchema() error {
	for _, table := range []string{"file", "archive", "detector", "schema_info"} {
		if _, err := c.db.Exec(`DROP TABLE IF EXISTS ` + table); err != nil {
			return fmt.Errorf("unable to rebuild archive cache: %w", err)
		}
	}
	return c.createSchema()
}

// isMissingTable reports whether err is sqlite's "no such table" error, the
// shape SELECT ... FROM schema_info takes against a database that predates
// schema_info itself (i.e. a brand new file).
func isMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

// DetectorLocalID returns this cache's local id for the named, versioned
// detector, assigning and recording a new one if it hasn't been seen by
// this cache before. Detector ids are local to each cache file; translating
// between a cache's local id and the engine's process-wide detector id is
// the caller's responsibility, keyed on (name, version).
func (c *Cache) DetectorLocalID(name, version string) (int, error) {
	var id int
	err := c.db.QueryRow(`SELECT local_id FROM detector WHERE name = ? AND version = ?`, name, version).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("unable to query detector table: %w", err)
	}

	result, err := c.db.Exec(`INSERT INTO detector(name, version) VALUES (?, ?)`, name, version)
	if err != nil {
		return 0, fmt.Errorf("unable to register detector %q: %w", name, err)
	}
	inserted, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("unable to determine new detector id: %w", err)
	}
	return int(inserted), nil
}

// IsUpToDate reports whether probe matches the recorded probe for the
// archive at path. A directory-as-archive entry's mtime doesn't propagate
// through changes to its contents, so it should always be treated as
// stale; callers implement that by simply not calling IsUpToDate for
// directory backends and always re-enumerating instead.
func (c *Cache) IsUpToDate(path string, probe fsutil.Probe) (bool, error) {
	var storedNano int64
	var storedSize uint64
	err := c.db.QueryRow(`SELECT mtime_unix_nano, size FROM archive WHERE path = ?`, path).Scan(&storedNano, &storedSize)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("unable to query archive table: %w", err)
	}
	return storedNano == probe.ModTime.UnixNano() && storedSize == probe.Size, nil
}

// Lookup returns the cached member list for the archive at path, if any.
func (c *Cache) Lookup(path string) (CachedArchive, bool, error) {
	var id int
	var nano int64
	var size uint64
	err := c.db.QueryRow(`SELECT id, mtime_unix_nano, size FROM archive WHERE path = ?`, path).Scan(&id, &nano, &size)
	if errors.Is(err, sql.ErrNoRows) {
		return CachedArchive{}, false, nil
	}
	if err != nil {
		return CachedArchive{}, false, fmt.Errorf("unable to query archive table: %w", err)
	}

	rows, err := c.db.Query(`
		SELECT member_index, name, mtime_unix_nano, broken, detector_local_id,
		       size, has_size, crc32, has_crc32, md5, sha1
		FROM file WHERE archive_id = ?
		ORDER BY member_index, detector_local_id
	`, id)
	if err != nil {
		return CachedArchive{}, false, fmt.Errorf("unable to query file table: %w", err)
	}
	defer rows.Close()

	var members []CachedMember
	for rows.Next() {
		var m CachedMember
		var broken int
		var hasSize, hasCRC32 int
		var sizeVal sql.NullInt64
		var crc32Val sql.NullInt64
		var md5Val, sha1Val []byte
		if err := rows.Scan(&m.Index, &m.Name, &m.MTimeUnixNano, &broken, &m.DetectorLocalID,
			&sizeVal, &hasSize, &crc32Val, &hasCRC32, &md5Val, &sha1Val); err != nil {
			return CachedArchive{}, false, fmt.Errorf("unable to scan file row: %w", err)
		}
		m.Broken = broken != 0

		fp := fingerprint.Fingerprint{}
		if hasSize != 0 {
			fp = fp.WithSize(uint64(sizeVal.Int64))
		}
		if hasCRC32 != 0 {
			fp = fp.WithCRC32(uint32(crc32Val.Int64))
		}
		if len(md5Val) == 16 {
			var digest [16]byte
			copy(digest[:], md5Val)
			fp = fp.WithMD5(digest)
		}
		if len(sha1Val) == 20 {
			var digest [20]byte
			copy(digest[:], sha1Val)
			fp = fp.WithSHA1(digest)
		}
		m.Fingerprint = fp

		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return CachedArchive{}, false, fmt.Errorf("unable to read file rows: %w", err)
	}

	return CachedArchive{
		Probe:   fsutil.Probe{ModTime: time.Unix(0, nano), Size: size},
		Members: members,
	}, true, nil
}

// Write replaces the cached record for path with members, keyed under
// probe, in a single transaction (delete-then-insert).
func (c *Cache) Write(path string, filetype archive.FileType, probe fsutil.Probe, members []CachedMember) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("unable to begin archive cache write: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM file WHERE archive_id IN (SELECT id FROM archive WHERE path = ?)`, path); err != nil {
		return fmt.Errorf("unable to clear previous file rows: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM archive WHERE path = ?`, path); err != nil {
		return fmt.Errorf("unable to clear previous archive row: %w", err)
	}

	result, err := tx.Exec(
		`INSERT INTO archive(path, filetype, mtime_unix_nano, size) VALUES (?, ?, ?, ?)`,
		path, int(filetype), probe.ModTime.UnixNano(), probe.Size,
	)
	if err != nil {
		return fmt.Errorf("unable to insert archive row: %w", err)
	}
	archiveID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("unable to determine new archive id: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO file(archive_id, member_index, name, mtime_unix_nano, broken,
		                  detector_local_id, size, has_size, crc32, has_crc32, md5, sha1)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("unable to prepare file insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range members {
		var broken int
		if m.Broken {
			broken = 1
		}

		var sizeVal sql.NullInt64
		var hasSize int
		if size, ok := m.Fingerprint.Size(); ok {
			sizeVal = sql.NullInt64{Int64: int64(size), Valid: true}
			hasSize = 1
		}

		var crc32Val sql.NullInt64
		var hasCRC32 int
		if crc, ok := m.Fingerprint.CRC32(); ok {
			crc32Val = sql.NullInt64{Int64: int64(crc), Valid: true}
			hasCRC32 = 1
		}

		var md5Bytes, sha1Bytes []byte
		if digest, ok := m.Fingerprint.MD5(); ok {
			md5Bytes = digest[:]
		}
		if digest, ok := m.Fingerprint.SHA1(); ok {
			sha1Bytes = digest[:]
		}

		if _, err := stmt.Exec(
			archiveID, m.Index, m.Name, m.MTimeUnixNano, broken, m.DetectorLocalID,
			sizeVal, hasSize, crc32Val, hasCRC32, md5Bytes, sha1Bytes,
		); err != nil {
			return fmt.Errorf("unable to insert file row for %q: %w", m.Name, err)
		}
	}

	return tx.Commit()
}

// Delete removes any cached record for the archive at path.
func (c *Cache) Delete(path string) error {
	if _, err := c.db.Exec(`DELETE FROM file WHERE archive_id IN (SELECT id FROM archive WHERE path = ?)`, path); err != nil {
		return fmt.Errorf("unable to delete file rows for %q: %w", path, err)
	}
	if _, err := c.db.Exec(`DELETE FROM archive WHERE path = ?`, path); err != nil {
		return fmt.Errorf("unable to delete archive row for %q: %w", path, err)
	}
	return nil
}

// ListArchives returns the path of every archive this cache has a record
// for.
func (c *Cache) ListArchives() ([]string, error) {
	rows, err := c.db.Query(`SELECT path FROM archive ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("unable to list cached archives: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("unable to scan archive path: %w", err)
		}
		paths = append(paths, path)
	}
	return paths, rows.Err()
}
