// Package sqlstore implements store.Store over database/sql. Dialect
// packages (store/sqlite, store/postgres) supply the placeholder style and
// the schema migrations.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/holiman/uint256"

	"github.com/xraph/streampass"
	"github.com/xraph/streampass/pass"
	"github.com/xraph/streampass/store"
	"github.com/xraph/streampass/tier"
	"github.com/xraph/streampass/types"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

const (
	settingSchedule = "schedule"
	settingOwner    = "owner"
	sequencePass    = "pass"
)

// Dialect captures what differs between SQL engines.
type Dialect struct {
	Name string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	// ReadOnlyViews opens View transactions with TxOptions.ReadOnly.
	ReadOnlyViews bool
	Migrations    []Migration
}

// QuestionMark is the "?" placeholder style.
func QuestionMark(int) string { return "?" }

// Dollar is the "$1" placeholder style.
func Dollar(n int) string { return "$" + strconv.Itoa(n) }

// Store is a store.Store backed by a *sql.DB.
type Store struct {
	queries
	db     *sql.DB
	closed atomic.Bool
}

// New wraps db. It does not run migrations.
func New(db *sql.DB, d Dialect) *Store {
	s := &Store{db: db}
	s.queries = queries{conn: db, dialect: &d}
	return s
}

// DB returns the underlying handle for direct access.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the dialect the store was built with.
func (s *Store) Dialect() Dialect { return *s.dialect }

// Atomic implements store.Store.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if s.closed.Load() {
		return streampass.ErrStoreClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", streampass.ErrTransactionFailed, err)
	}
	if err := fn(ctx, queries{conn: tx, dialect: s.dialect}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", streampass.ErrTransactionFailed, err)
	}
	return nil
}

// View implements store.Store. The transaction is always rolled back.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if s.closed.Load() {
		return streampass.ErrStoreClosed
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: s.dialect.ReadOnlyViews})
	if err != nil {
		return fmt.Errorf("%w: begin view: %w", streampass.ErrTransactionFailed, err)
	}
	defer func() { _ = tx.Rollback() }()
	return fn(ctx, queries{conn: tx, dialect: s.dialect})
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return streampass.ErrStoreClosed
	}
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

type conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements store.Tx against either the pool or a transaction.
type queries struct {
	conn    conn
	dialect *Dialect
}

// rebind rewrites "?" placeholders into the dialect's style.
func (q queries) rebind(query string) string {
	if q.dialect.Placeholder == nil {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(q.dialect.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (q queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.conn.ExecContext(ctx, q.rebind(query), args...)
}

func (q queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.conn.QueryRowContext(ctx, q.rebind(query), args...)
}

const passColumns = `id, owner, active, ttv, last_flow_rate, last_update, created_at, updated_at`

func (q queries) NextPassID(ctx context.Context) (pass.ID, error) {
	var next int64
	err := q.queryRow(ctx,
		`UPDATE streampass_sequences SET value = value + 1 WHERE name = ? RETURNING value`,
		sequencePass,
	).Scan(&next)
	if err != nil {
		return pass.None, fmt.Errorf("streampass/%s: next pass id: %w", q.dialect.Name, err)
	}
	return pass.ID(next), nil
}

func (q queries) CreatePass(ctx context.Context, p *pass.Pass) error {
	if p.ID.IsNone() {
		return &streampass.ValidationError{Field: "id", Message: "pass id 0 is reserved"}
	}
	m := toPassModel(p)
	_, err := q.exec(ctx,
		`INSERT INTO streampass_passes (`+passColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Owner, m.Active, m.TTV, m.LastFlowRate, m.LastUpdate, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("streampass/%s: create pass %d: %w", q.dialect.Name, p.ID, err)
	}
	_, err = q.exec(ctx,
		`UPDATE streampass_sequences SET value = ? WHERE name = ? AND value < ?`,
		m.ID, sequencePass, m.ID,
	)
	return err
}

func (q queries) GetPass(ctx context.Context, passID pass.ID) (*pass.Pass, error) {
	var m passModel
	err := q.queryRow(ctx,
		`SELECT `+passColumns+` FROM streampass_passes WHERE id = ?`,
		int64(passID),
	).Scan(&m.ID, &m.Owner, &m.Active, &m.TTV, &m.LastFlowRate, &m.LastUpdate, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, streampass.ErrPassNotFound
		}
		return nil, err
	}
	return fromPassModel(&m)
}

func (q queries) UpdatePass(ctx context.Context, p *pass.Pass) error {
	m := toPassModel(p)
	res, err := q.exec(ctx,
		`UPDATE streampass_passes
		    SET owner = ?, active = ?, ttv = ?, last_flow_rate = ?, last_update = ?, updated_at = ?
		  WHERE id = ?`,
		m.Owner, m.Active, m.TTV, m.LastFlowRate, m.LastUpdate, m.UpdatedAt, m.ID,
	)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return streampass.ErrPassNotFound
	}
	return nil
}

func (q queries) ListPassesByOwner(ctx context.Context, owner pass.Address) ([]*pass.Pass, error) {
	rows, err := q.conn.QueryContext(ctx,
		q.rebind(`SELECT `+passColumns+` FROM streampass_passes WHERE owner = ? ORDER BY id ASC`),
		string(owner),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*pass.Pass, 0)
	for rows.Next() {
		var m passModel
		if err := rows.Scan(&m.ID, &m.Owner, &m.Active, &m.TTV, &m.LastFlowRate, &m.LastUpdate, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		p, err := fromPassModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (q queries) CountPasses(ctx context.Context) (uint64, error) {
	var n int64
	if err := q.queryRow(ctx, `SELECT COUNT(*) FROM streampass_passes`).Scan(&n); err != nil {
		return 0, err
	}
	return uint64(n), nil
}

func (q queries) GetActivePass(ctx context.Context, subscriber pass.Address) (pass.ID, error) {
	var id int64
	err := q.queryRow(ctx,
		`SELECT active_pass_id FROM streampass_accounts WHERE address = ?`,
		string(subscriber),
	).Scan(&id)
	if err != nil {
		if isNoRows(err) {
			return pass.None, nil
		}
		return pass.None, err
	}
	return pass.ID(id), nil
}

func (q queries) SetActivePass(ctx context.Context, subscriber pass.Address, passID pass.ID) error {
	if passID.IsNone() {
		_, err := q.exec(ctx, `DELETE FROM streampass_accounts WHERE address = ?`, string(subscriber))
		return err
	}
	_, err := q.exec(ctx,
		`INSERT INTO streampass_accounts (address, active_pass_id) VALUES (?, ?)
		 ON CONFLICT (address) DO UPDATE SET active_pass_id = excluded.active_pass_id`,
		string(subscriber), int64(passID),
	)
	return err
}

func (q queries) GetSchedule(ctx context.Context) (tier.Schedule, error) {
	raw, err := q.getSetting(ctx, settingSchedule)
	if err != nil {
		return nil, err
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("streampass/%s: decode schedule: %w", q.dialect.Name, err)
	}
	return tier.FromStrings(values)
}

func (q queries) SetSchedule(ctx context.Context, s tier.Schedule) error {
	raw, err := json.Marshal(s.Strings())
	if err != nil {
		return err
	}
	return q.putSetting(ctx, settingSchedule, string(raw))
}

func (q queries) GetOwner(ctx context.Context) (pass.Address, error) {
	raw, err := q.getSetting(ctx, settingOwner)
	if err != nil {
		return "", err
	}
	return pass.Address(raw), nil
}

func (q queries) SetOwner(ctx context.Context, owner pass.Address) error {
	return q.putSetting(ctx, settingOwner, string(owner))
}

func (q queries) getSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := q.queryRow(ctx, `SELECT value FROM streampass_settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if isNoRows(err) {
			return "", streampass.ErrNotConfigured
		}
		return "", err
	}
	return value, nil
}

func (q queries) putSetting(ctx context.Context, key, value string) error {
	_, err := q.exec(ctx,
		`INSERT INTO streampass_settings (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// ──────────────────────────────────────────────────
// Models
// ──────────────────────────────────────────────────

type passModel struct {
	ID           int64
	Owner        string
	Active       bool
	TTV          string
	LastFlowRate string
	LastUpdate   int64
	CreatedAt    int64
	UpdatedAt    int64
}

func toPassModel(p *pass.Pass) passModel {
	return passModel{
		ID:           int64(p.ID),
		Owner:        string(p.Owner),
		Active:       p.Active,
		TTV:          decimal(p.TTV),
		LastFlowRate: decimal(p.LastFlowRate),
		LastUpdate:   p.LastUpdate.Unix(),
		CreatedAt:    p.CreatedAt.Unix(),
		UpdatedAt:    p.UpdatedAt.Unix(),
	}
}

func fromPassModel(m *passModel) (*pass.Pass, error) {
	ttvValue, err := types.ParseBase(m.TTV)
	if err != nil {
		return nil, fmt.Errorf("pass %d ttv: %w", m.ID, err)
	}
	rate, err := types.ParseBase(m.LastFlowRate)
	if err != nil {
		return nil, fmt.Errorf("pass %d rate: %w", m.ID, err)
	}
	return &pass.Pass{
		Entity: types.Entity{
			CreatedAt: time.Unix(m.CreatedAt, 0).UTC(),
			UpdatedAt: time.Unix(m.UpdatedAt, 0).UTC(),
		},
		ID:           pass.ID(m.ID),
		Owner:        pass.Address(m.Owner),
		Active:       m.Active,
		TTV:          ttvValue,
		LastUpdate:   time.Unix(m.LastUpdate, 0).UTC(),
		LastFlowRate: rate,
	}, nil
}

func decimal(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
