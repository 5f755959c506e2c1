// Package cursor implements pagination state exchanged with clients as an
// opaque signed token.
//
// A Cursor carries its issue time and page limit as schema fields, so it is
// validated and dirty-tracked like any entity. The result window is attached
// after the query runs and is never serialized.
package cursor

import (
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"
	"time"

	"github.com/syssam/consql"
	"github.com/syssam/consql/entity"
	"github.com/syssam/consql/schema"
	"github.com/syssam/consql/schema/field"
	"github.com/syssam/consql/token"
)

const (
	// DefaultLimit is the page size used when none is requested.
	DefaultLimit = 100
	// MaxLimit is the largest page size a client may request.
	MaxLimit = 100
	// PayloadKey is the token payload key holding the cursor fields.
	PayloadKey = "cursor"
)

// Cursor field names.
const (
	FieldTime  = "time"
	FieldLimit = "limit"
)

// Pager creates cursors with a fixed limit policy and token codec.
// It is safe for concurrent use.
type Pager struct {
	codec        *token.Codec
	defaultLimit int
	maxLimit     int
	clock        func() time.Time
	extra        []field.Field
	schema       *schema.Schema
}

// Option configures a Pager.
type Option func(*Pager)

// WithDefaultLimit sets the limit used when none, or an invalid one, is given.
func WithDefaultLimit(n int) Option {
	return func(p *Pager) { p.defaultLimit = n }
}

// WithMaxLimit sets the hard maximum limit.
func WithMaxLimit(n int) Option {
	return func(p *Pager) { p.maxLimit = n }
}

// WithClock sets the clock used to stamp new cursors.
func WithClock(now func() time.Time) Option {
	return func(p *Pager) {
		if now != nil {
			p.clock = now
		}
	}
}

// WithFields adds fields to the cursor schema, such as a keyset position.
func WithFields(fs ...field.Field) Option {
	return func(p *Pager) { p.extra = append(p.extra, fs...) }
}

// NewPager returns a pager signing tokens with codec.
func NewPager(codec *token.Codec, opts ...Option) (*Pager, error) {
	if codec == nil {
		return nil, errors.New("cursor: nil codec")
	}
	p := &Pager{
		codec:        codec,
		defaultLimit: DefaultLimit,
		maxLimit:     MaxLimit,
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.maxLimit < 1 {
		return nil, fmt.Errorf("cursor: max limit %d is below 1", p.maxLimit)
	}
	if p.defaultLimit < 1 || p.defaultLimit > p.maxLimit {
		return nil, fmt.Errorf("cursor: default limit %d is outside [1, %d]", p.defaultLimit, p.maxLimit)
	}
	s, err := schema.New("Cursor",
		schema.Fields(
			field.Unix(FieldTime).Required().Default(field.DefaultFunc(func(*field.Context) field.Result {
				return field.Done(p.clock().Unix())
			})),
			field.Int(FieldLimit).AlwaysCoerce().Coerce(func(v any, _ *field.Context) (field.Result, error) {
				return field.Done(p.clamp(v)), nil
			}),
		),
		schema.Fields(p.extra...),
	)
	if err != nil {
		return nil, err
	}
	p.schema = s
	return p, nil
}

// Schema returns the cursor schema.
func (p *Pager) Schema() *schema.Schema { return p.schema }

// clamp maps any requested limit into [1, maxLimit]. Absent or
// unconvertible values get the default.
func (p *Pager) clamp(v any) int {
	if v == nil {
		return p.defaultLimit
	}
	res, err := field.ToInt(v, nil)
	if err != nil {
		return p.defaultLimit
	}
	n, ok := res.Value.(int)
	switch {
	case !ok:
		return p.defaultLimit
	case n > p.maxLimit:
		return p.maxLimit
	case n < 1:
		return 1
	}
	return n
}

// New returns a cursor built from src, which may be nil, a map of cursor
// fields, another *Cursor, or a token string. A token that fails to decode
// yields a fresh cursor, so pagination restarts instead of failing.
func (p *Pager) New(src any) (*Cursor, error) {
	var row map[string]any
	fromToken := false
	switch src := src.(type) {
	case nil:
		row = map[string]any{}
	case map[string]any:
		row = maps.Clone(src)
	case *Cursor:
		if src == nil {
			row = map[string]any{}
			break
		}
		row = src.Map(nil)
	case string:
		fromToken = true
		row = p.unpack(src)
	default:
		return nil, consql.NewUsageError("cursor.New", fmt.Sprintf("unsupported source %T", src))
	}
	e, err := entity.New(p.schema, row)
	if err != nil && fromToken {
		e, err = entity.New(p.schema, map[string]any{})
	}
	if err != nil {
		return nil, err
	}
	return &Cursor{Entity: e, pager: p}, nil
}

func (p *Pager) unpack(tok string) map[string]any {
	data, ok := p.codec.Unpack(tok)
	if !ok {
		return map[string]any{}
	}
	row, ok := data[PayloadKey].(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return row
}

// Cursor is pagination state: issue time, page limit and the result window
// of the current page.
type Cursor struct {
	*entity.Entity
	pager  *Pager
	window []*entity.Entity
}

// Limit returns the page size.
func (c *Cursor) Limit() int {
	n, _ := c.Value(FieldLimit).(int)
	return n
}

// IssuedAt returns the issue time of the cursor, in seconds.
func (c *Cursor) IssuedAt() time.Time {
	sec, _ := c.Value(FieldTime).(int64)
	return time.Unix(sec, 0).UTC()
}

// Token packs the cursor fields into an opaque token. The window is not
// part of the token.
func (c *Cursor) Token() (string, error) {
	return c.pager.codec.Pack(map[string]any{PayloadKey: c.Map(nil)})
}

// Attach appends entities to the result window.
func (c *Cursor) Attach(es ...*entity.Entity) {
	c.window = append(c.window, es...)
}

// Window returns a copy of the result window.
func (c *Cursor) Window() []*entity.Entity {
	return slices.Clone(c.window)
}

// Len returns the number of entities in the window.
func (c *Cursor) Len() int { return len(c.window) }

// IsFull reports whether the window holds at least Limit entities, meaning
// a further page may exist.
func (c *Cursor) IsFull() bool {
	return len(c.window) >= c.Limit()
}

// Entries iterates over the result window. The cursor fields themselves
// are iterated with Items.
func (c *Cursor) Entries() iter.Seq2[int, *entity.Entity] {
	return slices.All(c.window)
}
