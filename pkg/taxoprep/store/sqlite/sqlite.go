package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/taxoprep/pkg/taxoprep/internalerr"
	"github.com/cognicore/taxoprep/pkg/taxoprep/store"
)

// sqliteStore implements the Store interface using SQLite
type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite manifest database with WAL mode enabled.
// Pragmas go in the DSN so every pooled connection enforces foreign keys.
func OpenSQLite(ctx context.Context, path string) (store.Store, error) {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS manifests (
	key TEXT PRIMARY KEY,
	scheme TEXT NOT NULL,
	level INTEGER NOT NULL,
	run_id TEXT NOT NULL,
	created_at TEXT NOT NULL,
	max_length INTEGER NOT NULL,
	seed INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS manifest_files (
	manifest_key TEXT NOT NULL,
	subset TEXT NOT NULL,
	name TEXT NOT NULL,
	count INTEGER NOT NULL,
	crc32 INTEGER NOT NULL,
	PRIMARY KEY(manifest_key, subset),
	FOREIGN KEY(manifest_key) REFERENCES manifests(key) ON DELETE CASCADE
);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// GetManifest retrieves the manifest for key
func (s *sqliteStore) GetManifest(ctx context.Context, key string) (store.Manifest, bool, error) {
	var m store.Manifest
	var createdAt string
	var seed int64
	err := s.db.QueryRowContext(ctx, `
SELECT key, scheme, level, run_id, created_at, max_length, seed
FROM manifests
WHERE key = ?;
`, key).Scan(&m.Key, &m.Scheme, &m.Level, &m.RunID, &createdAt, &m.MaxLength, &seed)
	if err == sql.ErrNoRows {
		return store.Manifest{}, false, nil
	}
	if err != nil {
		return store.Manifest{}, false, err
	}
	m.Seed = uint64(seed)
	if m.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return store.Manifest{}, false, fmt.Errorf("manifest %s created_at: %w", key, err)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT subset, name, count, crc32
FROM manifest_files
WHERE manifest_key = ?
ORDER BY rowid;
`, key)
	if err != nil {
		return store.Manifest{}, false, err
	}
	defer rows.Close()

	for rows.Next() {
		var f store.FileEntry
		var crc int64
		if err := rows.Scan(&f.Subset, &f.Name, &f.Count, &crc); err != nil {
			return store.Manifest{}, false, err
		}
		f.Checksum = uint32(crc)
		m.Files = append(m.Files, f)
	}
	if err := rows.Err(); err != nil {
		return store.Manifest{}, false, err
	}
	return m, true, nil
}

// PutManifest inserts or replaces a manifest and its file entries in one transaction
func (s *sqliteStore) PutManifest(ctx context.Context, m store.Manifest) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
INSERT INTO manifests (key, scheme, level, run_id, created_at, max_length, seed)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	scheme=excluded.scheme,
	level=excluded.level,
	run_id=excluded.run_id,
	created_at=excluded.created_at,
	max_length=excluded.max_length,
	seed=excluded.seed;
`, m.Key, m.Scheme, m.Level, m.RunID, m.CreatedAt.UTC().Format(time.RFC3339Nano), m.MaxLength, int64(m.Seed))
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM manifest_files WHERE manifest_key = ?`, m.Key); err != nil {
		return err
	}
	for _, f := range m.Files {
		_, err := tx.ExecContext(ctx, `
INSERT INTO manifest_files (manifest_key, subset, name, count, crc32)
VALUES (?, ?, ?, ?, ?);
`, m.Key, f.Subset, f.Name, f.Count, int64(f.Checksum))
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// DeleteManifest removes a manifest; its file entries cascade
func (s *sqliteStore) DeleteManifest(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM manifests WHERE key = ?`, key)
	return err
}

// ListManifests returns every manifest ordered by key
func (s *sqliteStore) ListManifests(ctx context.Context) ([]store.Manifest, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM manifests ORDER BY key`)
	if err != nil {
		return nil, err
	}
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			rows.Close()
			return nil, err
		}
		keys = append(keys, k)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	manifests := make([]store.Manifest, 0, len(keys))
	for _, k := range keys {
		m, ok, err := s.GetManifest(ctx, k)
		if err != nil {
			return nil, err
		}
		if ok {
			manifests = append(manifests, m)
		}
	}
	return manifests, nil
}
