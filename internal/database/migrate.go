package database

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strings"
	"time"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies embedded migrations that are not yet recorded in
// schema_migrations, in file name order.
func Migrate(ctx context.Context, d *DB) error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	if _, err := d.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version VARCHAR(255) PRIMARY KEY,
		applied_at VARCHAR(32) NOT NULL
	)`); err != nil {
		return err
	}

	for _, f := range files {
		var n int
		if err := d.QueryRowContext(ctx, d.Rebind(`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`), f).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			continue
		}
		b, err := migrations.ReadFile("migrations/" + f)
		if err != nil {
			return err
		}
		for _, stmt := range splitStatements(string(b)) {
			if _, err := d.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("apply %s: %w", f, err)
			}
		}
		if _, err := d.ExecContext(ctx, d.Rebind(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`),
			f, FormatTime(time.Now())); err != nil {
			return err
		}
	}
	return nil
}

// splitStatements breaks a migration file on semicolons; the mysql driver
// runs one statement per Exec.
func splitStatements(src string) []string {
	var out []string
	for _, part := range strings.Split(src, ";") {
		var lines []string
		for _, l := range strings.Split(part, "\n") {
			if t := strings.TrimSpace(l); t != "" && !strings.HasPrefix(t, "--") {
				lines = append(lines, l)
			}
		}
		if stmt := strings.TrimSpace(strings.Join(lines, "\n")); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
