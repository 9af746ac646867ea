package migrate

import (
	"testing"

	"planline/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	if err := Migrate(conn); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := Migrate(conn); err != nil {
		t.Fatalf("second run: %v", err)
	}

	var version int
	if err := conn.QueryRow(`SELECT version FROM schema_version`).Scan(&version); err != nil {
		t.Fatalf("read version: %v", err)
	}
	if version != 1 {
		t.Fatalf("expected schema version 1, got %d", version)
	}
	if _, err := conn.Exec(`INSERT INTO tasks(id,name,priority,status,created_at,updated_at)
VALUES ('t','t',1,'pending','2026-01-05T09:00:00Z','2026-01-05T09:00:00Z')`); err != nil {
		t.Fatalf("tasks table unusable: %v", err)
	}
}

func TestParseVersionRejectsBadNames(t *testing.T) {
	for _, name := range []string{"init.sql", "x_init.sql", "0_init.sql"} {
		if _, ok := parseVersion(name); ok {
			t.Fatalf("expected %q to be rejected", name)
		}
	}
	if v, ok := parseVersion("001_init.sql"); !ok || v != 1 {
		t.Fatalf("expected version 1, got %d ok=%v", v, ok)
	}
}
