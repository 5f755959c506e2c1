package sql

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/consql"
	"github.com/syssam/consql/dialect"
)

// TestOpenDB tests the OpenDB function with different dialects.
func TestOpenDB(t *testing.T) {
	tests := []struct {
		name    string
		dialect string
		want    string
	}{
		{"Postgres", dialect.Postgres, dialect.Postgres},
		{"MySQL", dialect.MySQL, dialect.MySQL},
		{"SQLite", dialect.SQLite, dialect.SQLite},
		{"Decorated", "postgres-traced", dialect.Postgres},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, _, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			drv := OpenDB(tt.dialect, db)
			assert.NotNil(t, drv)
			assert.Equal(t, tt.want, drv.Dialect())
			assert.Same(t, db, drv.DB())
		})
	}
}

// TestDriverQuery tests query operations.
func TestDriverQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	drv := OpenDB(dialect.Postgres, db)

	t.Run("query_with_args", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, status FROM accounts WHERE id = \\$1").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow(int64(1), "authorized"))

		rows := &Rows{}
		err := drv.Query(context.Background(), "SELECT id, status FROM accounts WHERE id = $1", []any{1}, rows)
		require.NoError(t, err)
		m, ok, err := ScanMap(rows)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, map[string]any{"id": int64(1), "status": "authorized"}, m)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query_error", func(t *testing.T) {
		mock.ExpectQuery("SELECT").WillReturnError(errors.New("database error"))

		rows := &Rows{}
		err := drv.Query(context.Background(), "SELECT", []any{}, rows)
		require.Error(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid_args", func(t *testing.T) {
		assert.Error(t, drv.Query(context.Background(), "SELECT 1", "nope", &Rows{}))
		assert.Error(t, drv.Query(context.Background(), "SELECT 1", []any{}, nil))
	})
}

// TestDriverExec tests execute operations.
func TestDriverExec(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	drv := OpenDB(dialect.Postgres, db)

	t.Run("exec_with_result", func(t *testing.T) {
		mock.ExpectExec("UPDATE accounts SET status = \\$1 WHERE id = \\$2").
			WithArgs("banned", 1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		var res Result
		err := drv.Exec(context.Background(), "UPDATE accounts SET status = $1 WHERE id = $2", []any{"banned", 1}, &res)
		require.NoError(t, err)
		n, err := res.RowsAffected()
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("exec_error", func(t *testing.T) {
		mock.ExpectExec("DELETE").WillReturnError(errors.New("UNIQUE constraint failed: accounts.id"))

		err := drv.Exec(context.Background(), "DELETE FROM accounts", []any{}, nil)
		require.Error(t, err)
		assert.True(t, IsUniqueConstraintError(err))
		assert.True(t, consql.IsConstraintError(err), "constraint violations are wrapped")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rows_affected", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM accounts").WillReturnResult(sqlmock.NewResult(0, 3))

		var n int64
		require.NoError(t, drv.Exec(context.Background(), "DELETE FROM accounts", nil, &n))
		assert.Equal(t, int64(3), n)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid_target", func(t *testing.T) {
		assert.Error(t, drv.Exec(context.Background(), "DELETE FROM accounts", []any{}, new(int)))
		assert.Error(t, drv.Exec(context.Background(), "DELETE FROM accounts", "id", nil))
		assert.Error(t, drv.Query(context.Background(), "SELECT 1", []any{}, new(int)))
	})
}

// TestDriverTransaction tests transaction operations.
func TestDriverTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	drv := OpenDB(dialect.Postgres, db)

	t.Run("successful_commit", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO accounts").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		tx, err := drv.Tx(context.Background())
		require.NoError(t, err)
		require.NoError(t, tx.Exec(context.Background(), "INSERT INTO accounts (status) VALUES ('banned')", []any{}, nil))
		require.NoError(t, tx.Commit())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO accounts").WillReturnError(errors.New("error"))
		mock.ExpectRollback()

		tx, err := drv.Tx(context.Background())
		require.NoError(t, err)
		require.Error(t, tx.Exec(context.Background(), "INSERT INTO accounts (status) VALUES ('banned')", []any{}, nil))
		require.NoError(t, tx.Rollback())
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

// TestScanMaps tests row to map scanning, NULLs included.
func TestScanMaps(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	drv := OpenDB(dialect.SQLite, db)

	mock.ExpectQuery("SELECT").
		WillReturnRows(sqlmock.NewRows([]string{"name", "email"}).
			AddRow("Alice", nil).
			AddRow(nil, []byte("bob@example.com")))

	rows := &Rows{}
	require.NoError(t, drv.Query(context.Background(), "SELECT name, email FROM users", []any{}, rows))
	ms, err := ScanMaps(rows)
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{
		{"name": "Alice", "email": nil},
		{"name": nil, "email": []byte("bob@example.com")},
	}, ms)
	require.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	rows = &Rows{}
	require.NoError(t, drv.Query(context.Background(), "SELECT id FROM users", []any{}, rows))
	_, ok, err := ScanMap(rows)
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"id"}).AddRow(1).RowError(0, errors.New("broken row")))
	rows = &Rows{}
	require.NoError(t, drv.Query(context.Background(), "SELECT id FROM users", []any{}, rows))
	_, err = ScanMaps(rows)
	assert.Error(t, err)
}

// TestStatsDriver tests statistics and slow query reporting.
func TestStatsDriver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var slow []SlowQuery
	drv := NewStatsDriver(OpenDB(dialect.Postgres, db),
		WithSlowThreshold(-1),
		WithSlowQueryHook(func(_ context.Context, q SlowQuery) {
			slow = append(slow, q)
		}),
	)

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectExec("DELETE").WillReturnError(errors.New("boom"))
	rows := &Rows{}
	require.NoError(t, drv.Query(context.Background(), "SELECT 1", []any{}, rows))
	require.NoError(t, rows.Close())
	require.Error(t, drv.Exec(context.Background(), "DELETE FROM accounts", []any{}, nil))

	s := drv.QueryStats().Stats()
	assert.Equal(t, int64(1), s.TotalQueries)
	assert.Equal(t, int64(1), s.TotalExecs)
	assert.Equal(t, int64(1), s.Errors)
	assert.Equal(t, int64(2), s.SlowQueries)
	require.Len(t, slow, 2)
	assert.Equal(t, KindSelect, slow[0].Kind)
	assert.Equal(t, "DELETE FROM accounts", slow[1].Query)
	assert.Error(t, slow[1].Err)
	assert.Equal(t, map[string]int64{"select": 1, "delete": 1}, s.ByKind)
	assert.Contains(t, s.String(), "queries=1 execs=1")

	drv.SetSlowThreshold(time.Hour)
	assert.Equal(t, time.Hour, drv.SlowThreshold())
	drv.QueryStats().Reset()
	assert.Zero(t, drv.QueryStats().Stats().TotalQueries)
	assert.Empty(t, drv.QueryStats().Stats().ByKind)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := map[string]Kind{
		"SELECT * FROM accounts":          KindSelect,
		"  insert INTO accounts":          KindInsert,
		"UPDATE accounts SET x = 1":       KindUpdate,
		"DELETE FROM \"accounts\"\nWHERE": KindDelete,
		"WITH x AS (SELECT 1) SELECT":     KindOther,
		"":                                KindOther,
	}
	for query, want := range tests {
		assert.Equal(t, want, KindOf(query), query)
	}
	assert.Equal(t, "other", Kind(99).String())
}
