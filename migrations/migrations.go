// Package migrations embeds the schema applied by the admin migrate command.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

//go:embed *.sql
var files embed.FS

// Script is one ordered schema file.
type Script struct {
	Name string
	SQL  string
}

// All returns the embedded scripts in lexical order.
func All() ([]Script, error) {
	names, err := fs.Glob(files, "*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	scripts := make([]Script, 0, len(names))
	for _, name := range names {
		body, err := files.ReadFile(name)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, Script{Name: name, SQL: string(body)})
	}
	return scripts, nil
}

// Apply runs every script in order, each in its own transaction. Scripts are
// written to be re-runnable.
func Apply(ctx context.Context, db *sqlx.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	scripts, err := All()
	if err != nil {
		return err
	}
	for _, script := range scripts {
		if err := applyOne(ctx, db, script); err != nil {
			return fmt.Errorf("apply %s: %w", script.Name, err)
		}
		logger.Info("migration applied", zap.String("script", script.Name))
	}
	return nil
}

func applyOne(ctx context.Context, db *sqlx.DB, script Script) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, script.SQL); err != nil {
		return err
	}
	return tx.Commit()
}
