package database

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"testing"
)

// migrationsDir returns the absolute path to db/migrations/ from the project root.
func migrationsDir(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot determine test file path")
	}
	// thisFile is internal/database/migrate_test.go, project root is two dirs up.
	projectRoot := filepath.Join(filepath.Dir(thisFile), "..", "..")
	dir := filepath.Join(projectRoot, "db", "migrations")
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("migrations directory not found at %s: %v", dir, err)
	}
	return dir
}

// TestMigrations_UpDownPairs ensures every .up.sql has a matching .down.sql.
func TestMigrations_UpDownPairs(t *testing.T) {
	dir := migrationsDir(t)
	upFiles, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		t.Fatalf("globbing up files: %v", err)
	}
	if len(upFiles) == 0 {
		t.Fatal("no migration files found")
	}

	for _, up := range upFiles {
		down := strings.Replace(up, ".up.sql", ".down.sql", 1)
		if _, err := os.Stat(down); err != nil {
			t.Errorf("missing down migration for %s", filepath.Base(up))
		}
	}
}

// TestMigrations_SequentialVersions catches duplicate or skipped version
// numbers, which golang-migrate rejects at startup.
func TestMigrations_SequentialVersions(t *testing.T) {
	dir := migrationsDir(t)
	upFiles, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		t.Fatalf("globbing up files: %v", err)
	}

	versionPattern := regexp.MustCompile(`^(\d{6})_`)
	seen := make(map[string]bool)
	for i, f := range upFiles {
		m := versionPattern.FindStringSubmatch(filepath.Base(f))
		if m == nil {
			t.Errorf("%s: missing 6-digit version prefix", filepath.Base(f))
			continue
		}
		if seen[m[1]] {
			t.Errorf("duplicate migration version %s", m[1])
		}
		seen[m[1]] = true

		want := i + 1
		if got := strings.TrimLeft(m[1], "0"); got != strconv.Itoa(want) {
			t.Errorf("%s: expected version %d", filepath.Base(f), want)
		}
	}
}

// TestMigrations_UsersEmailUnique guards the uniqueness constraint the
// identity store relies on to turn a registration race into a conflict.
func TestMigrations_UsersEmailUnique(t *testing.T) {
	dir := migrationsDir(t)
	data, err := os.ReadFile(filepath.Join(dir, "000001_create_users.up.sql"))
	if err != nil {
		t.Fatalf("reading users migration: %v", err)
	}

	uniqueEmail := regexp.MustCompile(`(?i)UNIQUE\s+KEY\s+\w+\s*\(\s*email\s*\)`)
	if !uniqueEmail.Match(data) {
		t.Error("users table must declare a unique key on email")
	}
}

func TestMigrationSource(t *testing.T) {
	dir := migrationsDir(t)

	src, err := migrationSource(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(src, "file://") || !strings.HasSuffix(src, "/db/migrations") {
		t.Errorf("unexpected source %q", src)
	}

	if _, err := migrationSource(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for a missing directory")
	}
	file := filepath.Join(dir, "000001_create_users.up.sql")
	if _, err := migrationSource(file); err == nil {
		t.Error("expected error for a file path")
	}
}
