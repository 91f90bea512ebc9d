package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/cognicore/taxoprep/pkg/taxoprep/store"
)

func testManifest(key string) store.Manifest {
	return store.Manifest{
		Key:       key,
		Scheme:    "section",
		Level:     -1,
		RunID:     "01HZX3J8Q5V6W7X8Y9Z0ABCDEF",
		CreatedAt: time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.UTC),
		MaxLength: 17,
		Seed:      42,
		Files: []store.FileEntry{
			{Subset: "train", Name: key + "_train_set.tpa", Count: 72, Checksum: 0xdeadbeef},
			{Subset: "valid", Name: key + "_valid_set.tpa", Count: 8, Checksum: 0x01020304},
			{Subset: "test", Name: key + "_test_set.tpa", Count: 20, Checksum: 0xffffffff},
		},
	}
}

func TestManifestRoundTrip(t *testing.T) {
	ctx := context.Background()
	st, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "manifest.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer st.Close()

	if _, ok, err := st.GetManifest(ctx, "section_level_all"); err != nil || ok {
		t.Fatalf("GetManifest on empty store = %v, %v", ok, err)
	}

	want := testManifest("section_level_all")
	if err := st.PutManifest(ctx, want); err != nil {
		t.Fatalf("PutManifest: %v", err)
	}
	got, ok, err := st.GetManifest(ctx, want.Key)
	if err != nil || !ok {
		t.Fatalf("GetManifest = %v, %v", ok, err)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, want.CreatedAt)
	}
	got.CreatedAt = want.CreatedAt
	if !reflect.DeepEqual(got, want) {
		t.Errorf("GetManifest = %+v\nwant %+v", got, want)
	}
	if got.Records() != 100 {
		t.Errorf("Records = %d, want 100", got.Records())
	}
}

func TestPutManifestReplacesFiles(t *testing.T) {
	ctx := context.Background()
	st, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "manifest.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer st.Close()

	m := testManifest("flat_level_all")
	if err := st.PutManifest(ctx, m); err != nil {
		t.Fatalf("PutManifest: %v", err)
	}
	m.RunID = "01HZX3J8Q5V6W7X8Y9Z0ZZZZZZ"
	m.Files = m.Files[:1]
	m.Files[0].Count = 5
	if err := st.PutManifest(ctx, m); err != nil {
		t.Fatalf("PutManifest again: %v", err)
	}

	got, _, err := st.GetManifest(ctx, m.Key)
	if err != nil {
		t.Fatalf("GetManifest: %v", err)
	}
	if got.RunID != m.RunID {
		t.Errorf("RunID = %s, want %s", got.RunID, m.RunID)
	}
	if len(got.Files) != 1 || got.Files[0].Count != 5 {
		t.Errorf("Files = %+v, want one entry with count 5", got.Files)
	}
}

func TestDeleteAndList(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "manifest.db")
	st, err := OpenSQLite(ctx, dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}

	for _, key := range []string{"level_level_1", "flat_level_all", "level_level_0"} {
		if err := st.PutManifest(ctx, testManifest(key)); err != nil {
			t.Fatalf("PutManifest %s: %v", key, err)
		}
	}
	if err := st.DeleteManifest(ctx, "level_level_1"); err != nil {
		t.Fatalf("DeleteManifest: %v", err)
	}

	list, err := st.ListManifests(ctx)
	if err != nil {
		t.Fatalf("ListManifests: %v", err)
	}
	var keys []string
	for _, m := range list {
		keys = append(keys, m.Key)
	}
	if !reflect.DeepEqual(keys, []string{"flat_level_all", "level_level_0"}) {
		t.Errorf("keys = %v", keys)
	}
	st.Close()

	// File rows of the deleted manifest are gone too.
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM manifest_files WHERE manifest_key = ?`, "level_level_1").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("%d orphaned file rows", n)
	}
}

func TestEveryConnectionEnforcesForeignKeys(t *testing.T) {
	ctx := context.Background()
	st, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "manifest.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer st.Close()
	db := st.(*sqliteStore).db

	// Hold several connections at once so the pool has to open new ones.
	var conns []*sql.Conn
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()
	for i := 0; i < 4; i++ {
		c, err := db.Conn(ctx)
		if err != nil {
			t.Fatalf("Conn %d: %v", i, err)
		}
		conns = append(conns, c)
		var on int
		if err := c.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&on); err != nil {
			t.Fatalf("PRAGMA on conn %d: %v", i, err)
		}
		if on != 1 {
			t.Errorf("conn %d has foreign_keys=%d", i, on)
		}
	}

	// A file row without its manifest is rejected on any connection.
	_, err = conns[3].ExecContext(ctx, `
INSERT INTO manifest_files (manifest_key, subset, name, count, crc32)
VALUES ('missing', 'train', 'x.tpa', 1, 0);
`)
	if err == nil {
		t.Error("orphan file row accepted")
	}
}

func TestSchemaCreationIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open database: %v", err)
	}
	defer db.Close()

	for i := 0; i < 3; i++ {
		if err := initSchema(ctx, db); err != nil {
			t.Fatalf("initSchema iteration %d: %v", i, err)
		}
	}

	var count int
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&count)
	if err != nil {
		t.Fatalf("Count tables: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 tables, got %d", count)
	}
}
