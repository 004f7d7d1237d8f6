// Package migrations holds the database schema and applies it at startup
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

//go:embed *.sql
var files embed.FS

// Apply runs every migration file in name order. The files are idempotent.
func Apply(ctx context.Context, db *sqlx.DB) error {
	names, err := fs.Glob(files, "*.sql")
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		script, err := files.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(script)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
		log.Info().Str("migration", name).Msg("Applied migration")
	}
	return nil
}
