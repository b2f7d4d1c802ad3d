package store

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

var migrationName = regexp.MustCompile(`^(\d{4})_[a-z0-9_]+\.(up|down)\.sql$`)

func migrationsFS() fs.FS {
	return os.DirFS(filepath.Join("..", "..", "db", "migrations"))
}

func TestMigrationFilesArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS(), ".")
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	pairs := map[string][]string{}
	for _, entry := range entries {
		m := migrationName.FindStringSubmatch(entry.Name())
		if m == nil {
			t.Errorf("unexpected file in migrations dir: %s", entry.Name())
			continue
		}
		pairs[m[1]] = append(pairs[m[1]], m[2])
	}
	if len(pairs) == 0 {
		t.Fatal("no migrations found")
	}
	for version, dirs := range pairs {
		if len(dirs) != 2 {
			t.Errorf("version %s has %v, want one up and one down", version, dirs)
		}
	}
}

func TestSessionTableMigration(t *testing.T) {
	up, err := fs.ReadFile(migrationsFS(), "0001_sessions.up.sql")
	if err != nil {
		t.Fatalf("read up migration: %v", err)
	}
	for _, column := range []string{"profile", "payload", "token_hash", "expires_at", "updated_at"} {
		if !strings.Contains(string(up), column) {
			t.Errorf("session table is missing column %q", column)
		}
	}

	down, err := fs.ReadFile(migrationsFS(), "0001_sessions.down.sql")
	if err != nil {
		t.Fatalf("read down migration: %v", err)
	}
	if !strings.Contains(string(down), "DROP TABLE IF EXISTS ocm_sessions") {
		t.Errorf("down migration should drop ocm_sessions, got %q", down)
	}
}
