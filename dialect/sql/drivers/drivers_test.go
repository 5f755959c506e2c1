package drivers

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/consql"
	"github.com/syssam/consql/dialect"
	"github.com/syssam/consql/dialect/sql"
)

func TestDSN(t *testing.T) {
	t.Parallel()

	dsn, err := DSN(dialect.Postgres, "postgres://u:p@localhost:5432/app?sslmode=disable")
	require.NoError(t, err)
	for _, kv := range []string{"dbname=app", "host=localhost", "user=u", "sslmode=disable"} {
		assert.Contains(t, dsn, kv)
	}
	dsn, err = DSN(dialect.Postgres, "host=localhost dbname=app")
	require.NoError(t, err)
	assert.Equal(t, "host=localhost dbname=app", dsn)

	dsn, err = DSN(dialect.MySQL, "u:p@tcp(localhost:3306)/app")
	require.NoError(t, err)
	assert.Contains(t, dsn, "parseTime=true")
	_, err = DSN(dialect.MySQL, "u:p@bad(")
	assert.Error(t, err)

	dsn, err = DSN(dialect.SQLite, "file:app.db")
	require.NoError(t, err)
	assert.Equal(t, "file:app.db?_pragma=foreign_keys(1)", dsn)
	dsn, err = DSN(dialect.SQLite, "file:app.db?cache=shared")
	require.NoError(t, err)
	assert.Equal(t, "file:app.db?cache=shared&_pragma=foreign_keys(1)", dsn)

	_, err = DSN("oracle", "")
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want sql.ConstraintKind
	}{
		{"pq unique", &pq.Error{Code: "23505"}, sql.UniqueConstraint},
		{"pq foreign key", fmt.Errorf("wrapped: %w", &pq.Error{Code: "23503"}), sql.ForeignKeyConstraint},
		{"pq other", &pq.Error{Code: "42P01"}, sql.NoConstraint},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062}, sql.UniqueConstraint},
		{"mysql not null", &mysql.MySQLError{Number: 1048}, sql.NotNullConstraint},
		{"sqlite message", errors.New("UNIQUE constraint failed: accounts.email"), sql.UniqueConstraint},
		{"plain", errors.New("connection refused"), sql.NoConstraint},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sql.Classify(tt.err))
		})
	}

	err := sql.WrapConstraint(&pq.Error{Code: "23505", Message: "duplicate key"})
	assert.True(t, consql.IsConstraintError(err))
	assert.True(t, sql.IsUniqueConstraintError(err))
}
