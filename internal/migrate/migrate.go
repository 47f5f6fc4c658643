// Package migrate applies the embedded schema migrations in lexical order,
// recording each applied file in schema_migrations so re-runs are no-ops.
package migrate

import (
	"context"
	"embed"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/example/tablebook/internal/db"
)

//go:embed *.sql
var migrations embed.FS

func Up(ctx context.Context, d *db.DB, log zerolog.Logger) error {
	if err := d.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)`); err != nil {
		return fmt.Errorf("migrations bookkeeping: %w", err)
	}

	names, err := versions()
	if err != nil {
		return err
	}

	applied := 0
	for _, name := range names {
		var done bool
		if err := d.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, name).Scan(&done); err != nil {
			return err
		}
		if done {
			continue
		}

		sql, err := migrations.ReadFile(name)
		if err != nil {
			return err
		}
		if err := d.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
		if err := d.Exec(ctx, `INSERT INTO schema_migrations(version) VALUES ($1)`, name); err != nil {
			return err
		}
		log.Info().Str("version", name).Msg("migration applied")
		applied++
	}
	if applied == 0 {
		log.Debug().Int("versions", len(names)).Msg("schema up to date")
	}
	return nil
}

// versions lists the embedded migration files in apply order. The embed
// pattern admits only *.sql, so the names are the versions.
func versions() ([]string, error) {
	entries, err := migrations.ReadDir(".")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
