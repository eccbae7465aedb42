package sqlstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/xraph/streampass"
)

// Migration is one forward-only schema step.
type Migration struct {
	Version string
	Name    string
	Up      string
}

const migrationTable = "streampass_migrations"

// Migrate applies every dialect migration not yet recorded, each in its
// own transaction, in Version order.
func (s *Store) Migrate(ctx context.Context) error {
	if s.closed.Load() {
		return streampass.ErrStoreClosed
	}

	if _, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS `+migrationTable+` (
    version    TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at BIGINT NOT NULL
)`); err != nil {
		return fmt.Errorf("%w: ensure migration table: %w", streampass.ErrMigrationFailed, err)
	}

	migrations := append([]Migration(nil), s.dialect.Migrations...)
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })

	for _, m := range migrations {
		applied, err := s.isApplied(ctx, m.Version)
		if err != nil {
			return fmt.Errorf("%w: check %s: %w", streampass.ErrMigrationFailed, m.Name, err)
		}
		if applied {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("%w: begin %s: %w", streampass.ErrMigrationFailed, m.Name, err)
		}
		if _, err := tx.ExecContext(ctx, m.Up); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%w: exec %s: %w", streampass.ErrMigrationFailed, m.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			s.rebind(`INSERT INTO `+migrationTable+` (version, name, applied_at) VALUES (?, ?, ?)`),
			m.Version, m.Name, time.Now().UTC().Unix(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%w: record %s: %w", streampass.ErrMigrationFailed, m.Name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("%w: commit %s: %w", streampass.ErrMigrationFailed, m.Name, err)
		}
	}
	return nil
}

func (s *Store) isApplied(ctx context.Context, version string) (bool, error) {
	var found int
	err := s.queryRow(ctx, `SELECT 1 FROM `+migrationTable+` WHERE version = ?`, version).Scan(&found)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
