package postgres_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/streampass"
	"github.com/xraph/streampass/pass"
	"github.com/xraph/streampass/store"
	"github.com/xraph/streampass/store/postgres"
)

var (
	alice = pass.MustParseAddress("0x00000000000000000000000000000000000000a1")
	start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

var passColumns = []string{"id", "owner", "active", "ttv", "last_flow_rate", "last_update", "created_at", "updated_at"}

func newMock(t *testing.T) (*postgres.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return postgres.New(db), mock
}

func TestNextPassID(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE streampass_sequences SET value = value + 1 WHERE name = $1 RETURNING value")).
		WithArgs("pass").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(int64(1)))

	id, err := s.NextPassID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pass.ID(1), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPass(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()

	rows := sqlmock.NewRows(passColumns).
		AddRow(int64(1), string(alice), true, "720000000000", "200000000", start.Unix(), start.Unix(), start.Unix())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, owner, active, ttv, last_flow_rate, last_update, created_at, updated_at FROM streampass_passes WHERE id = $1")).
		WithArgs(int64(1)).
		WillReturnRows(rows)

	p, err := s.GetPass(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, alice, p.Owner)
	assert.True(t, p.Active)
	assert.Equal(t, "720000000000", p.TTV.Dec())
	assert.Equal(t, uint64(200000000), p.LastFlowRate.Uint64())
	assert.True(t, p.LastUpdate.Equal(start))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, owner")).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows(passColumns))

	_, err = s.GetPass(ctx, 2)
	assert.ErrorIs(t, err, streampass.ErrPassNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePass(t *testing.T) {
	s, mock := newMock(t)
	p := pass.New(3, alice, uint256.NewInt(110000000), start)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO streampass_passes (id, owner, active, ttv, last_flow_rate, last_update, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)")).
		WithArgs(int64(3), string(alice), true, "0", "110000000", start.Unix(), start.Unix(), start.Unix()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE streampass_sequences SET value = $1 WHERE name = $2 AND value < $3")).
		WithArgs(int64(3), "pass", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.CreatePass(context.Background(), p))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePassMissing(t *testing.T) {
	s, mock := newMock(t)
	p := pass.New(9, alice, uint256.NewInt(1), start)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE streampass_passes")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, s.UpdatePass(context.Background(), p), streampass.ErrPassNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivePass(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT active_pass_id FROM streampass_accounts WHERE address = $1")).
		WithArgs(string(alice)).
		WillReturnRows(sqlmock.NewRows([]string{"active_pass_id"}))
	id, err := s.GetActivePass(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, pass.None, id)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO streampass_accounts (address, active_pass_id) VALUES ($1, $2)")).
		WithArgs(string(alice), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.SetActivePass(ctx, alice, 2))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM streampass_accounts WHERE address = $1")).
		WithArgs(string(alice)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.SetActivePass(ctx, alice, pass.None))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchedule(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM streampass_settings WHERE key = $1")).
		WithArgs("schedule").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(`["0","1000000000000000000"]`))

	sched, err := s.GetSchedule(ctx)
	require.NoError(t, err)
	require.Len(t, sched, 2)
	assert.Equal(t, "1000000000000000000", sched[1].Dec())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM streampass_settings WHERE key = $1")).
		WithArgs("owner").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))
	_, err = s.GetOwner(ctx)
	assert.ErrorIs(t, err, streampass.ErrNotConfigured)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO streampass_settings (key, value) VALUES ($1, $2)")).
		WithArgs("schedule", `["0","2000000000000000000"]`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.SetSchedule(ctx, []*uint256.Int{uint256.NewInt(0), uint256.MustFromDecimal("2000000000000000000")}))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAtomic(t *testing.T) {
	s, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM streampass_accounts")).
		WithArgs(string(alice)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.SetActivePass(ctx, alice, pass.None)
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()
	err = s.Atomic(ctx, func(context.Context, store.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)

	mock.ExpectBegin().WillReturnError(errors.New("conn refused"))
	err = s.Atomic(ctx, func(context.Context, store.Tx) error { return nil })
	assert.ErrorIs(t, err, streampass.ErrTransactionFailed)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS streampass_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	for i, m := range postgres.Migrations {
		q := mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM streampass_migrations WHERE version = $1")).
			WithArgs(m.Version)
		if i == 0 {
			// Already applied.
			q.WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
			continue
		}
		q.WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO streampass_migrations (version, name, applied_at) VALUES ($1, $2, $3)")).
			WithArgs(m.Version, m.Name, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateFailureWraps(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS streampass_migrations")).
		WillReturnError(errors.New("permission denied"))

	err := s.Migrate(context.Background())
	assert.ErrorIs(t, err, streampass.ErrMigrationFailed)
}
