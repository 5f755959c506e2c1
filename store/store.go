// Package store persists entities through rendered statements.
//
// A Store renders the save, rm and list statements of a schema with a
// Renderer and runs them on a dialect.ExecQuerier, a *sql.Driver or an
// open transaction:
//
//	st := store.New(drv, renderer, pager, store.WithLogger(logger))
//	if err := st.Save(ctx, account); err != nil {
//	    return err
//	}
//	page, err := st.List(ctx, Account, map[string]any{"limit": 20, "sort": "-created_at"})
package store

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/syssam/consql"
	"github.com/syssam/consql/cursor"
	"github.com/syssam/consql/dialect"
	"github.com/syssam/consql/dialect/sql"
	"github.com/syssam/consql/entity"
	"github.com/syssam/consql/schema"
	"github.com/syssam/consql/schema/mixin"
	"github.com/syssam/consql/sqlt"
)

const (
	// TagVars marks fields holding nested entities. A nested entity with
	// dirty fields makes its owning field dirty on save.
	TagVars = "db_vars"
	// AttrShard is the attribute set on listed entities when a shard hint
	// is used. The schema must declare it with schema.Attributes.
	AttrShard = "actual_shard"
)

// Renderer renders named statements.
type Renderer interface {
	Render(name string, s *schema.Schema, c *sqlt.Context) (sqlt.Statement, error)
	Dialect() string
}

// Store saves, removes and lists entities.
// It is safe for concurrent use; the entities passed to it are not.
type Store struct {
	exec     dialect.ExecQuerier
	renderer Renderer
	pager    *cursor.Pager
	logger   *slog.Logger
	clock    func() time.Time
	cache    consql.Cache
	ttl      time.Duration
	group    singleflight.Group
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the clock used for fields tagged mixin.TagTouch.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.clock = now
		}
	}
}

// WithCache caches list results for ttl. Saves and removes invalidate
// every cached listing of the table.
func WithCache(c consql.Cache, ttl time.Duration) Option {
	return func(s *Store) {
		s.cache = c
		s.ttl = ttl
	}
}

// New returns a store.
func New(exec dialect.ExecQuerier, r Renderer, p *cursor.Pager, opts ...Option) *Store {
	s := &Store{
		exec:     exec,
		renderer: r,
		pager:    p,
		logger:   slog.Default(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CallOption configures a single call.
type CallOption func(*call)

type call struct {
	shard  string
	exec   dialect.ExecQuerier
	routed bool
}

// Shard routes the call to the named shard. Statements qualify the table
// with it.
func Shard(name string) CallOption {
	return func(c *call) { c.shard = name }
}

// Using runs the call on exec instead of the store's executor, typically
// an open transaction. Listings run this way bypass the cache. Prefer a Tx
// from Store.Tx: other transactions leave listings cached between a write
// and its commit until Invalidate is called.
func Using(exec dialect.ExecQuerier) CallOption {
	return func(c *call) { c.exec, c.routed = exec, true }
}

func (s *Store) newCall(opts []CallOption) *call {
	c := &call{exec: s.exec}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Save upserts e and reloads the stored row into it. Fields tagged
// mixin.TagTouch are set to the current time first. On success the dirty
// set of e is empty.
func (s *Store) Save(ctx context.Context, e *entity.Entity, opts ...CallOption) error {
	c := s.newCall(opts)
	sc := e.Schema()
	if err := s.prepareSave(e); err != nil {
		return err
	}
	key, err := e.KeyFor()
	if err != nil {
		return err
	}
	data := &sqlt.Context{
		Shard:   c.shard,
		This:    e,
		Values:  make(map[string]any, sc.Len()),
		Updates: s.updates(e),
		Key:     s.bindAll(key),
	}
	for name, v := range e.All() {
		data.Values[name] = s.bindValue(v)
		if v != nil {
			data.Columns = append(data.Columns, name)
		}
	}
	if err := s.writeBack(ctx, c, sqlt.Save, e, data, key); err != nil {
		return consql.NewMutationError(e.Label(), "save", err)
	}
	return nil
}

// Remove deletes e by its primary key and reloads the deleted row into it.
func (s *Store) Remove(ctx context.Context, e *entity.Entity, opts ...CallOption) error {
	c := s.newCall(opts)
	key, err := e.KeyFor()
	if err != nil {
		return err
	}
	data := &sqlt.Context{
		Shard:  c.shard,
		This:   e,
		Values: maps.Collect(e.All()),
		Key:    s.bindAll(key),
	}
	if err := s.writeBack(ctx, c, sqlt.Remove, e, data, key); err != nil {
		return consql.NewMutationError(e.Label(), "remove", err)
	}
	return nil
}

// prepareSave propagates dirty nested entities and touches timestamps.
func (s *Store) prepareSave(e *entity.Entity) error {
	var now time.Time
	for _, fd := range e.Schema().Fields() {
		switch {
		case fd.HasTag(TagVars):
			if nested, ok := e.Value(fd.Name).(*entity.Entity); ok && nested != nil && len(nested.Snapshot()) > 0 {
				if err := e.SetDirty(fd.Name, true); err != nil {
					return err
				}
			}
		case fd.HasTag(mixin.TagTouch):
			if now.IsZero() {
				now = s.clock().UTC().Truncate(time.Second)
			}
			if err := e.Set(fd.Name, now); err != nil {
				return err
			}
		}
	}
	return nil
}

// updates returns the columns overwritten when the row already exists:
// the dirty non-key columns, or every non-key column when nothing is
// dirty, or the key itself so the conflicting row is still returned.
func (s *Store) updates(e *entity.Entity) []string {
	pk := e.Schema().Table().PrimaryKey
	var set []string
	nonKey := func(names []string) []string {
		var out []string
		for _, n := range names {
			if !slices.Contains(pk, n) && e.Value(n) != nil {
				out = append(out, n)
			}
		}
		return out
	}
	if set = nonKey(e.Snapshot()); len(set) > 0 {
		return set
	}
	if set = nonKey(e.Schema().Names()); len(set) > 0 {
		return set
	}
	for _, n := range pk {
		if e.Value(n) != nil {
			set = append(set, n)
		}
	}
	return set
}

// writeBack runs a statement returning one row and loads the row into e.
func (s *Store) writeBack(ctx context.Context, c *call, name string, e *entity.Entity, data *sqlt.Context, key []any) error {
	st, err := s.renderer.Render(name, e.Schema(), data)
	if err != nil {
		return err
	}
	rows := &sql.Rows{}
	if err := c.exec.Query(ctx, st.Query, st.Args, rows); err != nil {
		return sql.WrapConstraint(err)
	}
	row, ok, err := sql.ScanMap(rows)
	if err != nil {
		return sql.WrapConstraint(err)
	}
	if !ok {
		return consql.NewNotFoundError(e.Label(), key...)
	}
	if err := s.load(e, row); err != nil {
		return err
	}
	e.Clean()
	s.written(ctx, c, e.Schema())
	s.logger.LogAttrs(ctx, slog.LevelDebug, "entity written",
		slog.String("statement", name), slog.String("entity", e.Label()), slog.Any("key", key))
	return nil
}

// load assigns the columns of row that are fields of e.
func (s *Store) load(e *entity.Entity, row map[string]any) error {
	for _, name := range e.Schema().Names() {
		v, ok := row[name]
		if !ok {
			continue
		}
		fd, _ := e.Schema().Field(name)
		v, skip := s.scanValue(fd, v)
		if skip {
			continue
		}
		if err := e.Set(name, v); err != nil {
			return err
		}
	}
	return nil
}

// List runs the list statement of sc for one page and returns the cursor
// with the page attached to its window.
//
// params may hold "cursor" (a token, map or *cursor.Cursor to resume
// from), "limit", "sort" (a column or a list of columns, "-" prefixed for
// descending order) and "filter" (a map of column equalities). Every param
// is also available to templates as .Params.
func (s *Store) List(ctx context.Context, sc *schema.Schema, params map[string]any, opts ...CallOption) (*cursor.Cursor, error) {
	c := s.newCall(opts)
	params = maps.Clone(params)
	if params == nil {
		params = map[string]any{}
	}
	cur, err := s.pager.New(params["cursor"])
	if err != nil {
		return nil, err
	}
	if limit, ok := params["limit"]; ok {
		if err := cur.Set(cursor.FieldLimit, limit); err != nil {
			return nil, err
		}
	}
	sort, err := sortOf(params["sort"])
	if err != nil {
		return nil, err
	}
	filter, _ := params["filter"].(map[string]any)
	data := &sqlt.Context{
		Shard:  c.shard,
		Limit:  cur.Limit(),
		Offset: cur.Value("offset"),
		Sort:   sort,
		Filter: s.bindMap(filter),
		Params: params,
		Cursor: cur,
	}
	st, err := s.renderer.Render(sqlt.List, sc, data)
	if err != nil {
		return nil, consql.NewQueryError(sc.Name(), "list", err)
	}
	rows, err := s.fetch(ctx, c, sc, st)
	if err != nil {
		return nil, consql.NewQueryError(sc.Name(), "list", err)
	}
	for _, row := range rows {
		e, err := s.construct(sc, row)
		if err != nil {
			return nil, consql.NewQueryError(sc.Name(), "list", err)
		}
		if c.shard != "" && sc.HasAttribute(AttrShard) {
			if err := e.SetAttr(AttrShard, c.shard); err != nil {
				return nil, err
			}
		}
		cur.Attach(e)
	}
	s.logger.LogAttrs(ctx, slog.LevelDebug, "page listed",
		slog.String("entity", sc.Name()), slog.Int("rows", len(rows)), slog.Int("limit", cur.Limit()))
	return cur, nil
}

// construct builds an entity from a row, decoding stored representations.
func (s *Store) construct(sc *schema.Schema, row map[string]any) (*entity.Entity, error) {
	data := make(map[string]any, len(row))
	for k, v := range row {
		if fd, ok := sc.Field(k); ok {
			var skip bool
			if v, skip = s.scanValue(fd, v); skip {
				continue
			}
		}
		data[k] = v
	}
	return entity.New(sc, data)
}

func (s *Store) fetch(ctx context.Context, c *call, sc *schema.Schema, st sqlt.Statement) ([]map[string]any, error) {
	if s.cache != nil && !c.routed {
		return s.cached(ctx, sc, st)
	}
	return query(ctx, c.exec, st)
}

func query(ctx context.Context, exec dialect.ExecQuerier, st sqlt.Statement) ([]map[string]any, error) {
	rows := &sql.Rows{}
	if err := exec.Query(ctx, st.Query, st.Args, rows); err != nil {
		return nil, err
	}
	return sql.ScanMaps(rows)
}

func sortOf(v any) ([]string, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, len(v))
		for i, x := range v {
			s, ok := x.(string)
			if !ok {
				return nil, consql.NewUsageError("List", fmt.Sprintf("sort term %d is %T, not a string", i, x))
			}
			out[i] = s
		}
		return out, nil
	}
	return nil, consql.NewUsageError("List", fmt.Sprintf("unsupported sort %T", v))
}
