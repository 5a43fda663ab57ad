package migrations

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

var (
	notesTable = Migration{
		Version:     1,
		Description: "notes table",
		Up:          `CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT NOT NULL)`,
		Down:        `DROP TABLE notes`,
	}
	notesIndex = Migration{
		Version:     2,
		Description: "notes body index",
		Up:          `CREATE INDEX idx_notes_body ON notes(body)`,
		Down:        `DROP INDEX idx_notes_body`,
	}
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "m.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestApplyAndRollback(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	// Registered out of order on purpose
	m := NewManager(notesIndex, notesTable)
	if m.Latest() != 2 {
		t.Fatalf("Latest = %d, want 2", m.Latest())
	}

	applied, err := m.Apply(ctx, db)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if applied != 2 {
		t.Errorf("applied %d migrations, want 2", applied)
	}
	if v, _ := Version(ctx, db); v != 2 {
		t.Errorf("version = %d, want 2", v)
	}
	if _, err := db.Exec("INSERT INTO notes (body) VALUES ('x')"); err != nil {
		t.Fatalf("notes table missing: %v", err)
	}

	// Re-applying is a no-op
	applied, err = m.Apply(ctx, db)
	if err != nil || applied != 0 {
		t.Fatalf("second Apply = %d, %v; want 0, nil", applied, err)
	}

	if err := m.Rollback(ctx, db); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if v, _ := Version(ctx, db); v != 1 {
		t.Errorf("version after rollback = %d, want 1", v)
	}
}

func TestRollbackWithoutMigrations(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	m := NewManager(notesTable)
	if _, err := m.Apply(ctx, db); err != nil {
		t.Fatal(err)
	}
	if err := m.Rollback(ctx, db); err != nil {
		t.Fatal(err)
	}
	if err := m.Rollback(ctx, db); err == nil {
		t.Error("expected error rolling back an empty database")
	}
}

func TestApplyFailureLeavesVersion(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	broken := Migration{Version: 2, Description: "broken", Up: "CREATE TABLE"}
	m := NewManager(notesTable, broken)

	applied, err := m.Apply(ctx, db)
	if err == nil {
		t.Fatal("expected error from broken migration")
	}
	if applied != 1 {
		t.Errorf("applied %d, want 1", applied)
	}
	if v, _ := Version(ctx, db); v != 1 {
		t.Errorf("version = %d, want 1", v)
	}
}
