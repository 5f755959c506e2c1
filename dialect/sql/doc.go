// Package sql runs statements on database/sql connections.
//
// A Driver wraps a *sql.DB and implements dialect.Driver. Statements are
// executed with Exec and Query, the results scanned into a Result or a
// *Rows:
//
//	drv, err := sql.Open(dialect.Postgres, dsn)
//	if err != nil {
//	    return err
//	}
//	rows := &sql.Rows{}
//	if err := drv.Query(ctx, "SELECT * FROM accounts WHERE id = $1", []any{1}, rows); err != nil {
//	    return err
//	}
//	row, ok, err := sql.ScanMap(rows)
//
// # Scanning
//
// ScanMap and ScanMaps turn rows into maps keyed by column name. Byte
// slices are copied out of the driver buffers and NULL columns map to nil.
//
// # Constraint Errors
//
// Classify maps driver errors to a ConstraintKind. The typed errors of a
// driver are recognized by a Classifier registered with RegisterClassifier;
// package drivers registers one for the bundled drivers. Unregistered
// errors are classified by SQLSTATE code or message. Exec and Query return
// constraint violations as consql.ConstraintError; WrapConstraint does the
// same for errors surfacing elsewhere, such as Rows.Err or Commit:
//
//	if err := rows.Err(); err != nil {
//	    return sql.WrapConstraint(err)
//	}
//
// # Statistics
//
// StatsDriver counts statements and their duration and reports the ones
// exceeding a threshold to a logger and a hook:
//
//	sd := sql.NewStatsDriver(drv,
//	    sql.WithSlowThreshold(200*time.Millisecond),
//	    sql.WithLogger(logger),
//	)
//	fmt.Println(sd.QueryStats().Stats())
package sql
