// Package dialect defines the database driver contract consumed by the
// persistence layer.
//
// # Supported Dialects
//
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"  // MariaDB 10.5+ for RETURNING
//	dialect.SQLite   = "sqlite"
//
// # Driver Interface
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// Both Driver and Tx implement ExecQuerier, which is all the store needs:
//
//	drv, err := sql.Open(dialect.Postgres, "postgres://...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
//	st := store.New(drv, renderer, pager)
//
// # Sub-packages
//
//   - dialect/sql: database/sql driver, row scanning, statistics and constraint errors
//   - dialect/sql/drivers: registration and DSN handling of the bundled drivers
package dialect
