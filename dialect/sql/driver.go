package sql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/syssam/consql/dialect"
)

// Driver is a dialect.Driver running statements on a *sql.DB.
type Driver struct {
	Conn
	db *sql.DB
}

// Open opens a database with a registered database/sql driver. The driver
// name doubles as the dialect; decorated names such as "postgres-traced"
// resolve to the dialect they start with.
func Open(driverName, source string) (*Driver, error) {
	db, err := sql.Open(driverName, source)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: open %s: %w", driverName, err)
	}
	return OpenDB(driverName, db), nil
}

// OpenDB wraps an open database.
func OpenDB(driverName string, db *sql.DB) *Driver {
	return &Driver{Conn: Conn{ExecQuerier: db, dialect: dialectOf(driverName)}, db: db}
}

func dialectOf(driverName string) string {
	for _, name := range dialect.Names {
		if strings.HasPrefix(driverName, name) {
			return name
		}
	}
	return driverName
}

// DB returns the underlying *sql.DB.
func (d *Driver) DB() *sql.DB { return d.db }

// Tx starts a transaction.
func (d *Driver) Tx(ctx context.Context) (dialect.Tx, error) {
	return d.BeginTx(ctx, nil)
}

// BeginTx starts a transaction with options.
func (d *Driver) BeginTx(ctx context.Context, opts *TxOptions) (dialect.Tx, error) {
	tx, err := d.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: begin: %w", err)
	}
	return &Tx{Conn: Conn{ExecQuerier: tx, dialect: d.dialect}, Tx: tx}, nil
}

// Close closes the database.
func (d *Driver) Close() error { return d.db.Close() }

// Tx is a dialect.Tx over a *sql.Tx.
type Tx struct {
	Conn
	driver.Tx
}

// ExecQuerier is the part of *sql.DB and *sql.Tx a Conn runs statements on.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Conn implements dialect.ExecQuerier on an ExecQuerier. Statement errors
// that are constraint violations are returned as consql.ConstraintError.
type Conn struct {
	ExecQuerier
	dialect string
}

// Dialect returns the dialect name.
func (c Conn) Dialect() string { return c.dialect }

// Exec runs a statement. v may be nil, a *Result, or an *int64 receiving
// the number of affected rows.
func (c Conn) Exec(ctx context.Context, query string, args, v any) error {
	argv, err := argsOf(args)
	if err != nil {
		return err
	}
	switch v.(type) {
	case nil, *Result, *int64:
	default:
		return fmt.Errorf("dialect/sql: invalid exec target %T, expect *sql.Result or *int64", v)
	}
	res, err := c.ExecContext(ctx, query, argv...)
	if err != nil {
		return fmt.Errorf("dialect/sql: exec: %w", WrapConstraint(err))
	}
	switch v := v.(type) {
	case *Result:
		*v = res
	case *int64:
		if *v, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("dialect/sql: rows affected: %w", err)
		}
	}
	return nil
}

// Query runs a statement returning rows into v, which must be a *Rows.
// The caller closes the rows.
func (c Conn) Query(ctx context.Context, query string, args, v any) error {
	vr, ok := v.(*Rows)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid query target %T, expect *sql.Rows", v)
	}
	argv, err := argsOf(args)
	if err != nil {
		return err
	}
	rows, err := c.QueryContext(ctx, query, argv...)
	if err != nil {
		return fmt.Errorf("dialect/sql: query: %w", WrapConstraint(err))
	}
	*vr = Rows{rows}
	return nil
}

func argsOf(args any) ([]any, error) {
	switch args := args.(type) {
	case nil:
		return nil, nil
	case []any:
		return args, nil
	}
	return nil, fmt.Errorf("dialect/sql: invalid args %T, expect []any", args)
}

var (
	_ dialect.Driver = (*Driver)(nil)
	_ dialect.Tx     = (*Tx)(nil)
)

type (
	// Rows wraps *sql.Rows so that it can be passed by pointer as a scan
	// target without copying its lock.
	Rows struct{ ColumnScanner }
	// Result is an alias to sql.Result.
	Result = sql.Result
	// TxOptions holds the transaction options to be used in DB.BeginTx.
	TxOptions = sql.TxOptions
)

// ColumnScanner is the subset of *sql.Rows used to scan rows.
type ColumnScanner interface {
	Close() error
	ColumnTypes() ([]*sql.ColumnType, error)
	Columns() ([]string, error)
	Err() error
	Next() bool
	NextResultSet() bool
	Scan(dest ...any) error
}
