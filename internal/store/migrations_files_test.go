package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var migrationsDir = filepath.Join("..", "..", "db", "migrations")

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	ups, err := listMigrations(migrationsDir, "up")
	if err != nil {
		t.Fatalf("list up migrations: %v", err)
	}
	downs, err := listMigrations(migrationsDir, "down")
	if err != nil {
		t.Fatalf("list down migrations: %v", err)
	}
	if len(ups) == 0 {
		t.Fatal("no migrations discovered")
	}

	seen := map[string]bool{}
	for _, down := range downs {
		if seen[down.version] {
			t.Fatalf("duplicate down migration file for version %s", down.version)
		}
		seen[down.version] = true
	}
	for _, up := range ups {
		if !seen[up.version] {
			t.Fatalf("version %s must include both up and down files", up.version)
		}
	}
	if len(ups) != len(downs) {
		t.Fatalf("expected %d down migrations, got %d", len(ups), len(downs))
	}
}

func TestCoreSchemaIndexesCommentLevels(t *testing.T) {
	sqlBytes, err := os.ReadFile(filepath.Join(migrationsDir, "0001_core_schema.up.sql"))
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	sqlText := string(sqlBytes)

	for _, snippet := range []string{
		"source_id TEXT UNIQUE",
		"parent_id BIGINT REFERENCES comments(id)",
		"WHERE parent_id IS NULL",
		"idx_comments_parent ON comments(parent_id",
		"CHECK (vote_direction IN (-1, 0, 1))",
	} {
		if !strings.Contains(sqlText, snippet) {
			t.Fatalf("expected migration to contain %q", snippet)
		}
	}
}
