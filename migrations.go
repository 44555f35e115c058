package proposta

import (
	"context"
	"io/fs"
	"sort"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// RunMigrations applies the embedded schema files in lexical order. The
// files are idempotent, re-running them against an existing database is a
// no-op.
func RunMigrations(ctx context.Context, db *bun.DB, logger Logger) error {
	if logger == nil {
		logger = defLogger{}
	}

	sub, err := fs.Sub(migrationsFS, "data/sql/migrations")
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open migrations directory")
	}

	entries, err := fs.ReadDir(sub, ".")
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list migrations")
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		payload, err := fs.ReadFile(sub, name)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read migration").
				WithMetadata(map[string]any{"file": name})
		}

		if _, err := db.ExecContext(ctx, string(payload)); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to apply migration").
				WithMetadata(map[string]any{"file": name})
		}

		logger.Debug("applied migration: %s", name)
	}

	return nil
}
