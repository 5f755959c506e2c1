package dialect

import (
	"context"
	"database/sql/driver"
	"fmt"
	"slices"
)

// Dialect names for external usage.
const (
	MySQL    = "mysql"
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// Names lists the supported dialects.
var Names = []string{Postgres, MySQL, SQLite}

// Valid reports whether name is a supported dialect.
func Valid(name string) bool { return slices.Contains(Names, name) }

// ExecQuerier wraps the 2 database operations.
type ExecQuerier interface {
	// Exec executes a query that does not return records. For example, in SQL, INSERT or UPDATE.
	// It scans the result into the pointer v. For SQL drivers, it is dialect/sql.Result.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a query that returns rows, typically a SELECT in SQL.
	// It scans the result into the pointer v. For SQL drivers, it is *dialect/sql.Rows.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the interface that wraps all necessary operations for the stores.
type Driver interface {
	ExecQuerier
	// Tx starts and returns a new transaction.
	// The provided context is used until the transaction is committed or rolled back.
	Tx(context.Context) (Tx, error)
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Tx wraps the Exec and Query operations in transaction.
type Tx interface {
	ExecQuerier
	driver.Tx
}

// Placeholder returns the n-th (1-based) positional parameter marker of
// the dialect: $n for Postgres, ? otherwise.
func Placeholder(name string, n int) string {
	if name == Postgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}
