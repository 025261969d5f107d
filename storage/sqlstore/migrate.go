package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-azure-oauth2-client/storage/sqlstore/migrations"
)

const migrationTable = "schema_migrations"

// Migrate applies the embedded migrations for the store's dialect, each at most once.
func (s *Store) Migrate(ctx context.Context) (applied []string, err error) {
	migrationFS, root := migrations.SQLite, "sqlite"
	if s.dialect == DialectPostgres {
		migrationFS, root = migrations.Postgres, "postgres"
	}

	entries, err := fs.ReadDir(migrationFS, root)
	if err != nil {
		return nil, errors.Wrap(err, "[Store.Migrate] read migrations dir")
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	createSQL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    name TEXT PRIMARY KEY,
    applied_at BIGINT NOT NULL
)`, migrationTable)
	if _, err := s.db.ExecContext(ctx, createSQL); err != nil {
		return nil, errors.Wrap(err, "[Store.Migrate] ensure migration table")
	}

	for _, file := range files {
		name := path.Join(root, file)
		done, err := s.isApplied(ctx, name)
		if err != nil {
			return applied, errors.Wrapf(err, "[Store.Migrate] check %s", name)
		}
		if done {
			continue
		}

		content, err := fs.ReadFile(migrationFS, name)
		if err != nil {
			return applied, errors.Wrapf(err, "[Store.Migrate] read %s", name)
		}
		upSQL := extractUp(string(content))
		if strings.TrimSpace(upSQL) == "" {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return applied, errors.Wrapf(err, "[Store.Migrate] begin %s", name)
		}
		if _, err := tx.ExecContext(ctx, upSQL); err != nil {
			_ = tx.Rollback()
			return applied, errors.Wrapf(err, "[Store.Migrate] exec %s", name)
		}
		insert := s.rebind(fmt.Sprintf("INSERT INTO %s (name, applied_at) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING", migrationTable))
		if _, err := tx.ExecContext(ctx, insert, name, time.Now().UTC().UnixMilli()); err != nil {
			_ = tx.Rollback()
			return applied, errors.Wrapf(err, "[Store.Migrate] record %s", name)
		}
		if err := tx.Commit(); err != nil {
			return applied, errors.Wrapf(err, "[Store.Migrate] commit %s", name)
		}
		applied = append(applied, name)
	}
	return applied, nil
}

func (s *Store) isApplied(ctx context.Context, name string) (bool, error) {
	var found int
	err := s.queryRow(ctx, "SELECT 1 FROM "+migrationTable+" WHERE name = $1", name).Scan(&found)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// extractUp returns the statements between the Up and Down markers.
func extractUp(content string) string {
	const up, down = "-- +migrate Up", "-- +migrate Down"
	upIdx := strings.Index(content, up)
	if upIdx == -1 {
		return content
	}
	downIdx := strings.Index(content, down)
	if downIdx == -1 {
		return content[upIdx+len(up):]
	}
	return content[upIdx+len(up) : downIdx]
}
