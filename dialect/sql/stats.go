package sql

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/syssam/consql/dialect"
)

// Kind is the leading verb of a statement.
type Kind int

// Statement kinds.
const (
	KindOther Kind = iota
	KindSelect
	KindInsert
	KindUpdate
	KindDelete
	numKinds
)

var kindVerbs = [numKinds]string{"other", "select", "insert", "update", "delete"}

func (k Kind) String() string {
	if k >= 0 && k < numKinds {
		return kindVerbs[k]
	}
	return kindVerbs[KindOther]
}

// KindOf returns the kind of a statement from its first keyword. Leading
// WITH clauses are reported as KindOther.
func KindOf(query string) Kind {
	verb, _, _ := strings.Cut(strings.TrimSpace(query), " ")
	switch strings.ToUpper(strings.TrimSpace(verb)) {
	case "SELECT":
		return KindSelect
	case "INSERT":
		return KindInsert
	case "UPDATE":
		return KindUpdate
	case "DELETE":
		return KindDelete
	}
	return KindOther
}

// QueryStats holds statement execution statistics.
type QueryStats struct {
	queries  atomic.Int64
	execs    atomic.Int64
	duration atomic.Int64 // nanoseconds
	slow     atomic.Int64
	errors   atomic.Int64
	kinds    [numKinds]atomic.Int64
}

func (s *QueryStats) add(kind Kind, query bool, d time.Duration, slow bool, err error) {
	if query {
		s.queries.Add(1)
	} else {
		s.execs.Add(1)
	}
	s.kinds[kind].Add(1)
	s.duration.Add(int64(d))
	if slow {
		s.slow.Add(1)
	}
	if err != nil {
		s.errors.Add(1)
	}
}

// Stats returns a snapshot of the current statistics.
func (s *QueryStats) Stats() StatsSnapshot {
	snap := StatsSnapshot{
		TotalQueries:  s.queries.Load(),
		TotalExecs:    s.execs.Load(),
		TotalDuration: time.Duration(s.duration.Load()),
		SlowQueries:   s.slow.Load(),
		Errors:        s.errors.Load(),
		ByKind:        make(map[string]int64, numKinds),
	}
	for k := range numKinds {
		if n := s.kinds[k].Load(); n > 0 {
			snap.ByKind[k.String()] = n
		}
	}
	return snap
}

// Reset resets all statistics to zero.
func (s *QueryStats) Reset() {
	s.queries.Store(0)
	s.execs.Store(0)
	s.duration.Store(0)
	s.slow.Store(0)
	s.errors.Store(0)
	for k := range s.kinds {
		s.kinds[k].Store(0)
	}
}

// StatsSnapshot is a point-in-time snapshot of statement statistics.
type StatsSnapshot struct {
	TotalQueries  int64
	TotalExecs    int64
	TotalDuration time.Duration
	SlowQueries   int64
	Errors        int64
	ByKind        map[string]int64 // keyed by Kind.String, zero counts omitted
}

// AvgQueryDuration returns the average statement duration.
func (s StatsSnapshot) AvgQueryDuration() time.Duration {
	total := s.TotalQueries + s.TotalExecs
	if total == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(total)
}

// LogValue implements slog.LogValuer.
func (s StatsSnapshot) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("queries", s.TotalQueries),
		slog.Int64("execs", s.TotalExecs),
		slog.Duration("duration", s.TotalDuration),
		slog.Duration("avg", s.AvgQueryDuration()),
		slog.Int64("slow", s.SlowQueries),
		slog.Int64("errors", s.Errors),
	}
	for k := range numKinds {
		if n, ok := s.ByKind[k.String()]; ok {
			attrs = append(attrs, slog.Int64(k.String(), n))
		}
	}
	return slog.GroupValue(attrs...)
}

// String returns a human-readable summary of the statistics.
func (s StatsSnapshot) String() string {
	return fmt.Sprintf(
		"queries=%d execs=%d duration=%s avg=%s slow=%d errors=%d",
		s.TotalQueries, s.TotalExecs, s.TotalDuration, s.AvgQueryDuration(),
		s.SlowQueries, s.Errors,
	)
}

// SlowQuery describes a statement that exceeded the slow threshold.
type SlowQuery struct {
	Kind     Kind
	Query    string
	Args     []any
	Duration time.Duration
	Err      error
}

// SlowQueryHook is called for every slow statement.
type SlowQueryHook func(ctx context.Context, q SlowQuery)

// StatsDriver wraps a Driver with statement statistics and reports
// statements slower than a threshold.
type StatsDriver struct {
	*Driver
	stats     *QueryStats
	threshold atomic.Int64 // nanoseconds
	slowHook  SlowQueryHook
	logger    *slog.Logger
}

// StatsOption configures the StatsDriver.
type StatsOption func(*StatsDriver)

// WithSlowThreshold sets the threshold for slow statement detection.
// Default is 100ms.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsDriver) {
		s.threshold.Store(int64(d))
	}
}

// WithSlowQueryHook sets a callback for slow statements.
func WithSlowQueryHook(hook SlowQueryHook) StatsOption {
	return func(s *StatsDriver) {
		s.slowHook = hook
	}
}

// WithLogger sets the logger for statement tracing at debug level and
// slow statements at warn level.
func WithLogger(l *slog.Logger) StatsOption {
	return func(s *StatsDriver) {
		s.logger = l
	}
}

// NewStatsDriver wraps a Driver with statistics collection.
//
//	drv, _ := sql.Open("postgres", dsn)
//	sd := sql.NewStatsDriver(drv,
//	    sql.WithSlowThreshold(200*time.Millisecond),
//	    sql.WithLogger(logger),
//	)
//	st := store.New(sd, renderer, pager)
func NewStatsDriver(drv *Driver, opts ...StatsOption) *StatsDriver {
	s := &StatsDriver{
		Driver: drv,
		stats:  &QueryStats{},
	}
	s.threshold.Store(int64(100 * time.Millisecond))
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QueryStats returns the underlying QueryStats for reading statistics.
func (d *StatsDriver) QueryStats() *QueryStats {
	return d.stats
}

// SlowThreshold returns the current slow statement threshold.
func (d *StatsDriver) SlowThreshold() time.Duration {
	return time.Duration(d.threshold.Load())
}

// SetSlowThreshold updates the slow statement threshold.
func (d *StatsDriver) SetSlowThreshold(threshold time.Duration) {
	d.threshold.Store(int64(threshold))
}

// Query executes a query and records statistics.
func (d *StatsDriver) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Query(ctx, query, args, v)
	d.record(ctx, true, query, args, time.Since(start), err)
	return err
}

// Exec executes a statement and records statistics.
func (d *StatsDriver) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Exec(ctx, query, args, v)
	d.record(ctx, false, query, args, time.Since(start), err)
	return err
}

func (d *StatsDriver) record(ctx context.Context, isQuery bool, query string, args any, took time.Duration, err error) {
	kind := KindOf(query)
	slow := took > d.SlowThreshold()
	d.stats.add(kind, isQuery, took, slow, err)

	argv, _ := args.([]any)
	if d.logger != nil {
		d.logger.LogAttrs(ctx, slog.LevelDebug, "statement",
			slog.String("kind", kind.String()), slog.String("query", query), slog.Any("args", argv),
			slog.Duration("duration", took), slog.Any("error", err))
	}
	if !slow {
		return
	}
	if d.logger != nil {
		d.logger.LogAttrs(ctx, slog.LevelWarn, "slow query detected",
			slog.String("kind", kind.String()), slog.Duration("duration", took),
			slog.String("query", query), slog.Any("args", argv))
	}
	if d.slowHook != nil {
		d.slowHook(ctx, SlowQuery{Kind: kind, Query: query, Args: argv, Duration: took, Err: err})
	}
}

// Tx starts a transaction that also records statistics.
func (d *StatsDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &StatsTx{Tx: tx, driver: d}, nil
}

// StatsTx wraps a transaction with statistics collection.
type StatsTx struct {
	dialect.Tx
	driver *StatsDriver
}

// Query executes a query within the transaction and records statistics.
func (tx *StatsTx) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := tx.Tx.Query(ctx, query, args, v)
	tx.driver.record(ctx, true, query, args, time.Since(start), err)
	return err
}

// Exec executes a statement within the transaction and records statistics.
func (tx *StatsTx) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := tx.Tx.Exec(ctx, query, args, v)
	tx.driver.record(ctx, false, query, args, time.Since(start), err)
	return err
}

var (
	_ dialect.Driver = (*StatsDriver)(nil)
	_ dialect.Tx     = (*StatsTx)(nil)
)
