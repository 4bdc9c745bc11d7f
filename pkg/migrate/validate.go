package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var migrationFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// ValidateDir checks that every .sql file in dir follows the
// YYYYMMDDHHMMSS_name.sql convention, carries both goose direction markers,
// and that no two files share a version.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	versions := make(map[string]string, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		match := migrationFileRe.FindStringSubmatch(name)
		if match == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if prev, dup := versions[match[1]]; dup {
			return fmt.Errorf("duplicate migration version %s in %q and %q", match[1], prev, name)
		}
		versions[match[1]] = name

		if err := checkGooseMarkers(filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

func checkGooseMarkers(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file %q: %w", path, err)
	}
	for _, marker := range []string{"-- +goose Up", "-- +goose Down"} {
		if !strings.Contains(string(raw), marker) {
			return fmt.Errorf("migration %q missing %q", filepath.Base(path), marker)
		}
	}
	return nil
}
