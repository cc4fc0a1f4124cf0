package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Every numbered migration must ship as an up/down pair so the schema can
// roll back as far as it rolls forward.
func TestMigrationFilesPairUpWithDown(t *testing.T) {
	dir := filepath.Join("..", "..", "db", "migrations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		case entry.IsDir():
		default:
			t.Errorf("unexpected file in migrations dir: %s", name)
		}
	}

	if len(ups) == 0 {
		t.Fatal("no migrations discovered")
	}
	for stem := range ups {
		if !downs[stem] {
			t.Errorf("migration %s has no down file", stem)
		}
	}
	for stem := range downs {
		if !ups[stem] {
			t.Errorf("migration %s has no up file", stem)
		}
	}
}

func TestInitialMigrationCreatesArchiveTables(t *testing.T) {
	path := filepath.Join("..", "..", "db", "migrations", "0001_init.up.sql")
	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read initial migration: %v", err)
	}
	sql := strings.ToLower(string(contents))
	for _, table := range []string{"items", "users", "annotation_events"} {
		if !strings.Contains(sql, "create table if not exists "+table) {
			t.Errorf("initial migration missing table %s", table)
		}
	}
}
