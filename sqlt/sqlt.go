// Package sqlt renders named SQL statement templates.
//
// A statement is looked up for a schema under its statement namespace
// (schema.Path), first as "<name>.<dialect>.sqlt", then "<name>.sqlt", in
// the override file system, and finally among the bundled defaults for
// save, rm and list. Templates bind values with the bind function, which
// emits the dialect placeholder and collects the positional arguments:
//
//	SELECT * FROM {{ table .Table.Name .Shard }} WHERE {{ ident "email" }} = {{ bind .Params.email }}
package sqlt

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"path"
	"slices"
	"strings"
	"sync"
	"text/template"

	"github.com/syssam/consql/dialect"
	"github.com/syssam/consql/schema"
)

// Bundled statement names.
const (
	Save   = "save"
	Remove = "rm"
	List   = "list"
)

// Ext is the template file extension.
const Ext = ".sqlt"

//go:embed templates/*.sqlt
var defaults embed.FS

// ErrNoTemplate is returned when no template exists for a statement.
var ErrNoTemplate = errors.New("sqlt: template not found")

// Statement is a rendered query and its positional arguments.
type Statement struct {
	Query string
	Args  []any
}

// Context is the data a statement template renders with.
type Context struct {
	// Dialect of the target database.
	Dialect string
	// Table metadata of the schema.
	Table schema.Table
	// Base is the statement namespace of the schema.
	Base string
	// Shard is the optional shard hint; templates qualify the table with it.
	Shard string
	// This is the entity being saved or removed, if any.
	This any
	// Columns are the columns written by save, in declaration order.
	Columns []string
	// Values holds the value of every field by name.
	Values map[string]any
	// Updates are the columns save overwrites on conflict.
	Updates []string
	// Key is the primary key tuple, ordered like Table.PrimaryKey.
	Key []any
	// Limit, Offset, Sort and Filter drive list.
	Limit  int
	Offset any
	Sort   []string
	Filter map[string]any
	// Params holds the caller parameters.
	Params map[string]any
	// Cursor is the pagination cursor of list, if any.
	Cursor any
}

// Renderer renders statement templates for one dialect.
// It is safe for concurrent use.
type Renderer struct {
	dialect string
	fsys    fs.FS
	funcs   template.FuncMap
	logger  *slog.Logger

	mu    sync.RWMutex
	cache map[string]*template.Template
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithFS sets the file system holding per-schema templates.
func WithFS(fsys fs.FS) Option {
	return func(r *Renderer) { r.fsys = fsys }
}

// WithFuncs adds template functions.
func WithFuncs(fm template.FuncMap) Option {
	return func(r *Renderer) { maps.Copy(r.funcs, fm) }
}

// WithLogger sets the logger rendered statements are traced to.
func WithLogger(l *slog.Logger) Option {
	return func(r *Renderer) { r.logger = l }
}

// New returns a renderer for the dialect.
func New(dialectName string, opts ...Option) (*Renderer, error) {
	if !dialect.Valid(dialectName) {
		return nil, fmt.Errorf("sqlt: unsupported dialect %q", dialectName)
	}
	r := &Renderer{
		dialect: dialectName,
		funcs:   template.FuncMap{},
		cache:   make(map[string]*template.Template),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Dialect returns the dialect of the renderer.
func (r *Renderer) Dialect() string { return r.dialect }

// Render renders the named statement of s with c. The dialect and base of
// c are filled from the renderer and the schema.
func (r *Renderer) Render(name string, s *schema.Schema, c *Context) (Statement, error) {
	if c == nil {
		c = &Context{}
	}
	c.Dialect = r.dialect
	c.Base = s.Base()
	if c.Table.Name == "" {
		c.Table = s.Table()
	}
	t, err := r.lookup(name, s)
	if err != nil {
		return Statement{}, err
	}
	t, err = t.Clone()
	if err != nil {
		return Statement{}, fmt.Errorf("sqlt: clone %s: %w", name, err)
	}
	b := &binder{dialect: r.dialect}
	t.Funcs(r.boundFuncs(b))
	var buf bytes.Buffer
	if err := t.Execute(&buf, c); err != nil {
		return Statement{}, fmt.Errorf("sqlt: render %s: %w", s.Path(name), err)
	}
	st := Statement{Query: strings.TrimSpace(buf.String()), Args: b.args}
	if r.logger != nil {
		r.logger.LogAttrs(context.Background(), slog.LevelDebug, "statement rendered",
			slog.String("template", s.Path(name)), slog.String("query", st.Query), slog.Int("args", len(st.Args)))
	}
	return st, nil
}

// lookup resolves and parses the template of a statement, caching the result.
func (r *Renderer) lookup(name string, s *schema.Schema) (*template.Template, error) {
	key := s.Path(name)
	r.mu.RLock()
	t, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return t, nil
	}
	src, file, err := r.source(name, s)
	if err != nil {
		return nil, err
	}
	t, err = template.New(file).Funcs(r.funcMap()).Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("sqlt: parse %s: %w", file, err)
	}
	r.mu.Lock()
	r.cache[key] = t
	r.mu.Unlock()
	return t, nil
}

func (r *Renderer) source(name string, s *schema.Schema) ([]byte, string, error) {
	if r.fsys != nil {
		for _, file := range []string{s.Path(name + "." + r.dialect + Ext), s.Path(name + Ext)} {
			b, err := fs.ReadFile(r.fsys, file)
			if err == nil {
				return b, file, nil
			}
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, "", fmt.Errorf("sqlt: read %s: %w", file, err)
			}
		}
	}
	file := path.Join("templates", name+Ext)
	b, err := defaults.ReadFile(file)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s", ErrNoTemplate, s.Path(name))
	}
	return b, file, nil
}

func (r *Renderer) funcMap() template.FuncMap {
	fm := template.FuncMap{
		"ident": r.ident,
		"table": r.table,
		"order": r.order,
		"keys":  keys,
		"join":  strings.Join,
	}
	maps.Copy(fm, r.boundFuncs(&binder{dialect: r.dialect}))
	maps.Copy(fm, r.funcs)
	return fm
}

// boundFuncs returns the functions that bind arguments through b.
func (r *Renderer) boundFuncs(b *binder) template.FuncMap {
	return template.FuncMap{
		"bind": b.bind,
		"match": func(col string, v any) string {
			if v == nil {
				return r.ident(col) + " IS NULL"
			}
			return r.ident(col) + " = " + b.bind(v)
		},
	}
}

// ident quotes an identifier, keeping qualified names qualified.
func (r *Renderer) ident(name string) string {
	q := `"`
	if r.dialect == dialect.MySQL {
		q = "`"
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = q + strings.ReplaceAll(p, q, q+q) + q
	}
	return strings.Join(parts, ".")
}

// table returns the table identifier, qualified with the shard if any.
func (r *Renderer) table(name, shard string) string {
	if shard == "" {
		return r.ident(name)
	}
	return r.ident(shard) + "." + r.ident(name)
}

// order turns "col" or "-col" into an ORDER BY term.
func (r *Renderer) order(term string) string {
	if col, ok := strings.CutPrefix(term, "-"); ok {
		return r.ident(col) + " DESC"
	}
	return r.ident(strings.TrimPrefix(term, "+")) + " ASC"
}

func keys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}

// binder collects positional arguments of one rendering.
type binder struct {
	dialect string
	args    []any
}

func (b *binder) bind(v any) string {
	b.args = append(b.args, v)
	return dialect.Placeholder(b.dialect, len(b.args))
}
