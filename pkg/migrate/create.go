package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

// CreateSQLMigration scaffolds an empty goose SQL migration at
// <dir>/<YYYYMMDDHHMMSS>_<name>.sql and returns its path.
func CreateSQLMigration(dir string, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	slug := slugify(name)
	if slug == "" {
		return "", fmt.Errorf("migration name %q is empty after sanitizing", name)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	filename := time.Now().UTC().Format(versionLayout) + "_" + slug + ".sql"
	path := filepath.Join(dir, filename)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("migration already exists: %s", path)
	}

	var b strings.Builder
	b.WriteString("-- +goose Up\n-- +goose StatementBegin\n")
	b.WriteString("-- " + slug + "\n")
	b.WriteString("-- +goose StatementEnd\n\n")
	b.WriteString("-- +goose Down\n-- +goose StatementBegin\n")
	b.WriteString("-- rollback " + slug + "\n")
	b.WriteString("-- +goose StatementEnd\n")

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write migration %q: %w", path, err)
	}
	return path, nil
}

// slugify lowercases the name and keeps only [a-z0-9_], collapsing every
// other run of characters into a single underscore.
func slugify(name string) string {
	var out []rune
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingSep && len(out) > 0 {
				out = append(out, '_')
			}
			pendingSep = false
			out = append(out, r)
		default:
			pendingSep = true
		}
	}
	return string(out)
}
