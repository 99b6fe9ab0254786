// Package archivecache implements the per-scanned-directory persistent
// index of archive contents: one SQLite file per top-level scan root,
// mapping archive-relative paths to the member list computed the last time
// that archive was examined. It lets a run skip re-hashing archives that
// haven't changed since the previous pass.
package archivecache

// schemaVersion is the current schema version this package writes and
// expects to read. Opening a cache written by an older version runs the
// migration chain below rather than rebuilding from scratch, since a
// rebuild throws away every up-to-date row and forces the next scan to
// re-hash everything it touches.
const schemaVersion = 4

// schemaV2DDL creates the schema as it existed at version 2: an archive
// table with no filetype column, and a file table with no detector
// attribution (every row implicitly belongs to the "raw" detector).
// Nothing still calls this to bootstrap a brand new cache — new caches are
// created directly at schemaVersion — it exists to document, and let tests
// reconstruct, the baseline the migration chain below starts from.
const schemaV2DDL = `
CREATE TABLE IF NOT EXISTS schema_info (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS archive (
	id INTEGER PRIMARY KEY,
	path TEXT NOT NULL UNIQUE,
	mtime_unix_nano INTEGER NOT NULL,
	size INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS file (
	archive_id INTEGER NOT NULL REFERENCES archive(id) ON DELETE CASCADE,
	member_index INTEGER NOT NULL,
	name TEXT NOT NULL,
	mtime_unix_nano INTEGER NOT NULL,
	broken INTEGER NOT NULL,
	size INTEGER,
	has_size INTEGER NOT NULL,
	crc32 INTEGER,
	has_crc32 INTEGER NOT NULL,
	md5 BLOB,
	sha1 BLOB,
	PRIMARY KEY (archive_id, member_index)
);

CREATE INDEX IF NOT EXISTS file_archive_id_idx ON file(archive_id);
`

// schemaDDL creates the schema fresh, at schemaVersion, for a database with
// no schema_info row at all (a brand new cache file). An existing database
// at an older version is brought up to schemaVersion by the migration
// chain below instead, so its recorded rows survive.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS schema_info (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS archive (
	id INTEGER PRIMARY KEY,
	path TEXT NOT NULL UNIQUE,
	filetype INTEGER NOT NULL,
	mtime_unix_nano INTEGER NOT NULL,
	size INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS detector (
	local_id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	version TEXT NOT NULL,
	UNIQUE(name, version)
);

CREATE TABLE IF NOT EXISTS file (
	archive_id INTEGER NOT NULL REFERENCES archive(id) ON DELETE CASCADE,
	member_index INTEGER NOT NULL,
	name TEXT NOT NULL,
	mtime_unix_nano INTEGER NOT NULL,
	broken INTEGER NOT NULL,
	detector_local_id INTEGER NOT NULL DEFAULT 0,
	size INTEGER,
	has_size INTEGER NOT NULL,
	crc32 INTEGER,
	has_crc32 INTEGER NOT NULL,
	md5 BLOB,
	sha1 BLOB,
	PRIMARY KEY (archive_id, member_index, detector_local_id)
);

CREATE INDEX IF NOT EXISTS file_archive_id_idx ON file(archive_id);
CREATE INDEX IF NOT EXISTS file_crc32_idx ON file(crc32);
CREATE INDEX IF NOT EXISTS file_md5_idx ON file(md5);
CREATE INDEX IF NOT EXISTS file_sha1_idx ON file(sha1);
`

// migrationV2toV3 adds detector attribution: a detector table recording
// each (name, version) pair this cache has seen, and a detector_local_id
// column on file tying each row to the detector that produced it (0 for
// rows recorded before detectors were tracked at all). file's primary key
// widens to include detector_local_id, since a detector-transformed member
// can now coexist with its raw row; SQLite can't alter a primary key in
// place, so the table is rebuilt and the old one swapped in under its
// name. The digest indices let a lookup by content (e.g. cross-archive
// dedup during repair) avoid a full file-table scan.
var migrationV2toV3 = []string{
	`CREATE TABLE IF NOT EXISTS detector (
		local_id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		version TEXT NOT NULL,
		UNIQUE(name, version)
	)`,
	`CREATE TABLE file_v3 (
		archive_id INTEGER NOT NULL REFERENCES archive(id) ON DELETE CASCADE,
		member_index INTEGER NOT NULL,
		name TEXT NOT NULL,
		mtime_unix_nano INTEGER NOT NULL,
		broken INTEGER NOT NULL,
		detector_local_id INTEGER NOT NULL DEFAULT 0,
		size INTEGER,
		has_size INTEGER NOT NULL,
		crc32 INTEGER,
		has_crc32 INTEGER NOT NULL,
		md5 BLOB,
		sha1 BLOB,
		PRIMARY KEY (archive_id, member_index, detector_local_id)
	)`,
	`INSERT INTO file_v3 (archive_id, member_index, name, mtime_unix_nano, broken,
		detector_local_id, size, has_size, crc32, has_crc32, md5, sha1)
	 SELECT archive_id, member_index, name, mtime_unix_nano, broken,
		0, size, has_size, crc32, has_crc32, md5, sha1
	 FROM file`,
	`DROP TABLE file`,
	`ALTER TABLE file_v3 RENAME TO file`,
	`CREATE INDEX IF NOT EXISTS file_archive_id_idx ON file(archive_id)`,
	`CREATE INDEX IF NOT EXISTS file_crc32_idx ON file(crc32)`,
	`CREATE INDEX IF NOT EXISTS file_md5_idx ON file(md5)`,
	`CREATE INDEX IF NOT EXISTS file_sha1_idx ON file(sha1)`,
}

// migrationV3toV4 adds archive.filetype, needed once the cache started
// sharing one database between ROM and disk scan roots. Existing rows
// predate that split and default to FileTypeROM (0); any archive whose
// recorded members are all missing a CRC (a CHD disk image never carries
// one, unlike a ROM file) is then corrected to FileTypeDisk (1).
var migrationV3toV4 = []string{
	`ALTER TABLE archive ADD COLUMN filetype INTEGER NOT NULL DEFAULT 0`,
	`UPDATE archive SET filetype = 1
	 WHERE id IN (
		SELECT archive_id FROM file
		GROUP BY archive_id
		HAVING SUM(has_crc32) = 0
	 )`,
}
