package schema

import (
	"errors"
	"fmt"
	"maps"
	"path"
	"slices"
	"strings"

	"github.com/go-openapi/inflect"

	"github.com/syssam/consql"
	"github.com/syssam/consql/schema/field"
)

// TableKey is the configuration key holding the Table metadata.
const TableKey = "table"

// Table is the table metadata used by the persistence layer.
type Table struct {
	Name       string
	PrimaryKey []string
}

// EqualCoercer converts a foreign value into field values, used when an
// entity is compared with something that is not an entity of its schema.
type EqualCoercer func(v any) (map[string]any, bool)

// Schema is the compiled, immutable description of an entity type.
type Schema struct {
	name    string
	fields  []*field.Descriptor
	index   map[string]int
	config  map[string]any
	own     []string
	attrs   []string
	coerce  EqualCoercer
	parents []*Schema
}

type builder struct {
	fields  []field.Field
	parents []*Schema
	config  map[string]any
	order   []string
	attrs   []string
	coerce  EqualCoercer
	errs    []error
}

// Option configures a schema under construction.
type Option func(*builder)

// Fields declares fields, in order.
func Fields(fs ...field.Field) Option {
	return func(b *builder) { b.fields = append(b.fields, fs...) }
}

// Extends declares parent schemas in precedence order. Fields and
// configuration not declared on the new schema are inherited from them.
func Extends(parents ...*Schema) Option {
	return func(b *builder) {
		for _, p := range parents {
			if p == nil {
				b.errs = append(b.errs, errors.New("nil parent schema"))
				continue
			}
			b.parents = append(b.parents, p)
		}
	}
}

// Config sets a schema-level configuration entry.
func Config(key string, value any) Option {
	return func(b *builder) {
		if _, ok := b.config[key]; !ok {
			b.order = append(b.order, key)
		}
		b.config[key] = value
	}
}

// WithTable sets the table metadata.
func WithTable(name string, pk ...string) Option {
	return Config(TableKey, Table{Name: name, PrimaryKey: pk})
}

// Attributes declares plain, non-field attributes that construction may
// fill from input keys of the same name.
func Attributes(names ...string) Option {
	return func(b *builder) { b.attrs = append(b.attrs, names...) }
}

// CoerceWith sets the function used to coerce foreign values for equality.
func CoerceWith(fn EqualCoercer) Option {
	return func(b *builder) { b.coerce = fn }
}

// New builds a schema. Fields enumerate in declaration order with inherited
// fields first. Malformed declarations return a *consql.SchemaError.
func New(name string, opts ...Option) (*Schema, error) {
	b := &builder{config: make(map[string]any)}
	for _, opt := range opts {
		opt(b)
	}
	if name == "" {
		return nil, consql.NewSchemaError(name, "", errors.New("empty schema name"))
	}
	if err := errors.Join(b.errs...); err != nil {
		return nil, consql.NewSchemaError(name, "", err)
	}
	s := &Schema{
		name:    name,
		index:   make(map[string]int),
		own:     b.order,
		coerce:  b.coerce,
		parents: b.parents,
	}
	for _, p := range b.parents {
		for _, fd := range p.fields {
			if _, ok := s.index[fd.Name]; ok {
				continue
			}
			s.index[fd.Name] = len(s.fields)
			s.fields = append(s.fields, fd)
		}
		for _, a := range p.attrs {
			if !slices.Contains(s.attrs, a) {
				s.attrs = append(s.attrs, a)
			}
		}
		if s.coerce == nil {
			s.coerce = p.coerce
		}
	}
	declared := make(map[string]struct{}, len(b.fields))
	for _, f := range b.fields {
		if f == nil {
			return nil, consql.NewSchemaError(name, "", errors.New("nil field"))
		}
		fd, err := f.Descriptor().Compile()
		if err != nil {
			return nil, consql.NewSchemaError(name, f.Descriptor().Name, err)
		}
		if _, dup := declared[fd.Name]; dup {
			return nil, consql.NewSchemaError(name, fd.Name, errors.New("duplicate field"))
		}
		declared[fd.Name] = struct{}{}
		if i, ok := s.index[fd.Name]; ok {
			s.fields[i] = fd
			continue
		}
		s.index[fd.Name] = len(s.fields)
		s.fields = append(s.fields, fd)
	}
	for _, a := range b.attrs {
		if _, ok := s.index[a]; ok {
			return nil, consql.NewSchemaError(name, a, errors.New("attribute shadows a field"))
		}
		if !slices.Contains(s.attrs, a) {
			s.attrs = append(s.attrs, a)
		}
	}
	s.config = MergeConfig(b.config, b.parents...)
	if t, ok := s.config[TableKey]; ok {
		if _, ok := t.(Table); !ok {
			return nil, consql.NewSchemaError(name, "", fmt.Errorf("%q must be a schema.Table, got %T", TableKey, t))
		}
	}
	return s, nil
}

// MustNew is like New but panics on error. It is meant for package-level
// schema declarations.
func MustNew(name string, opts ...Option) *Schema {
	s, err := New(name, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// MergeConfig composes configuration: entries in own are kept, missing
// keys are filled from the first parent, in order, that defines them.
func MergeConfig(own map[string]any, parents ...*Schema) map[string]any {
	merged := maps.Clone(own)
	if merged == nil {
		merged = make(map[string]any)
	}
	for _, p := range parents {
		for k, v := range p.config {
			if _, ok := merged[k]; !ok {
				merged[k] = v
			}
		}
	}
	return merged
}

// Name returns the schema name.
func (s *Schema) Name() string { return s.name }

// String implements fmt.Stringer.
func (s *Schema) String() string { return s.name }

// Fields returns the field descriptors in declaration order.
func (s *Schema) Fields() []*field.Descriptor { return slices.Clone(s.fields) }

// Names returns the field names in declaration order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, fd := range s.fields {
		names[i] = fd.Name
	}
	return names
}

// Field returns the descriptor of the named field.
func (s *Schema) Field(name string) (*field.Descriptor, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return s.fields[i], true
}

// Has reports whether the field is declared.
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Len returns the number of fields.
func (s *Schema) Len() int { return len(s.fields) }

// Config returns a configuration entry, inherited entries included.
func (s *Schema) Config(key string) (any, bool) {
	v, ok := s.config[key]
	return v, ok
}

// ConfigMap returns a copy of the effective configuration.
func (s *Schema) ConfigMap() map[string]any { return maps.Clone(s.config) }

// OwnConfig returns the configuration keys declared on this schema.
func (s *Schema) OwnConfig() []string { return slices.Clone(s.own) }

// Attributes returns the plain attribute names.
func (s *Schema) Attributes() []string { return slices.Clone(s.attrs) }

// HasAttribute reports whether name is a plain attribute.
func (s *Schema) HasAttribute(name string) bool { return slices.Contains(s.attrs, name) }

// EqualCoercer returns the equality coercer, if any.
func (s *Schema) EqualCoercer() EqualCoercer { return s.coerce }

// Parents returns the parent schemas in precedence order.
func (s *Schema) Parents() []*Schema { return slices.Clone(s.parents) }

// Table returns the table metadata. The name defaults to the pluralized
// snake_case schema name and the primary key to "id".
func (s *Schema) Table() Table {
	t, _ := s.config[TableKey].(Table)
	if t.Name == "" {
		t.Name = inflect.Pluralize(inflect.Underscore(s.name))
	}
	if len(t.PrimaryKey) == 0 {
		t.PrimaryKey = []string{"id"}
	} else {
		t.PrimaryKey = slices.Clone(t.PrimaryKey)
	}
	return t
}

// Base returns the statement namespace of the schema, e.g. "model/user_profile".
func (s *Schema) Base() string {
	return path.Join("model", strings.ToLower(inflect.Underscore(s.name)))
}

// Path returns the path of a named statement within Base.
func (s *Schema) Path(stmt string) string {
	return path.Join(s.Base(), stmt)
}
