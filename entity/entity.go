// Package entity implements typed records governed by a schema.
//
// An Entity holds the current value of every declared field and the set of
// fields changed since the last Clean. Every assignment runs the field's
// pipeline (coercion, type and required checks, validators) and fails fast
// with a *consql.InvalidFieldError.
//
// An Entity is not safe for concurrent mutation: exactly one goroutine may
// write to it at a time.
package entity

import (
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"

	"github.com/syssam/consql"
	"github.com/syssam/consql/schema"
	"github.com/syssam/consql/schema/field"
)

// Entity is a record instance of a schema.
type Entity struct {
	schema *schema.Schema
	values map[string]any
	dirty  map[string]struct{}
	attrs  map[string]any
}

// New constructs an entity from data.
//
// Construction runs in two passes. The first assigns every field whose
// value, default, coercion and validators can be resolved without the
// entity. The remaining fields are seeded with nil and assigned again with
// the entity available as context. Keys of data that are not fields are
// kept only if the schema declares a plain attribute of that name. The
// dirty set of the result is empty.
func New(s *schema.Schema, data map[string]any) (*Entity, error) {
	e := &Entity{
		schema: s,
		values: make(map[string]any, s.Len()),
		dirty:  make(map[string]struct{}),
	}
	var deferred []*field.Descriptor
	for _, fd := range s.Fields() {
		v, ok := data[fd.Name]
		if !ok {
			var later bool
			if v, later = fd.DefaultValue(nil); later {
				deferred = append(deferred, fd)
				continue
			}
		}
		later, err := e.assign(fd, v, false)
		if err != nil {
			return nil, err
		}
		if later {
			deferred = append(deferred, fd)
		}
	}
	for _, fd := range deferred {
		e.values[fd.Name] = nil
		v, ok := data[fd.Name]
		if !ok {
			v, _ = fd.DefaultValue(e)
		}
		if _, err := e.assign(fd, v, true); err != nil {
			return nil, err
		}
	}
	for k, v := range data {
		if !s.Has(k) && s.HasAttribute(k) {
			if e.attrs == nil {
				e.attrs = make(map[string]any)
			}
			e.attrs[k] = v
		}
	}
	e.Clean()
	return e, nil
}

// assign runs the pipeline of fd and commits the result, marking the field
// dirty when the value changed in type or value.
func (e *Entity) assign(fd *field.Descriptor, v any, seeded bool) (deferred bool, err error) {
	nv, deferred, err := fd.Prepare(e, v, seeded)
	if err != nil {
		return false, e.invalid(fd.Name, v, err)
	}
	if deferred {
		return true, nil
	}
	if old := e.values[fd.Name]; !field.Equal(old, nv) {
		e.dirty[fd.Name] = struct{}{}
	}
	e.values[fd.Name] = nv
	return false, nil
}

func (e *Entity) invalid(name string, v any, err error) error {
	var violation *field.Violation
	if errors.As(err, &violation) {
		if violation.Validator != "" && errors.Is(err, field.ErrRejected) {
			return consql.NewValidatorError(e.schema.Name(), name, violation.Validator, violation.Value)
		}
		return consql.NewInvalidFieldError(e.schema.Name(), name, v, violation.Err)
	}
	return consql.NewInvalidFieldError(e.schema.Name(), name, v, err)
}

// Schema returns the schema of the entity.
func (e *Entity) Schema() *schema.Schema { return e.schema }

// Label returns the schema name. It implements field.Owner.
func (e *Entity) Label() string { return e.schema.Name() }

// Value returns the value of a field, or nil if it is unset or undeclared.
// It implements field.Owner.
func (e *Entity) Value(name string) any { return e.values[name] }

// Get returns the value of a declared field.
func (e *Entity) Get(name string) (any, error) {
	if !e.schema.Has(name) {
		return nil, consql.NewUnknownFieldError(e.schema.Name(), name)
	}
	return e.values[name], nil
}

// Set assigns a declared field through its pipeline.
func (e *Entity) Set(name string, v any) error {
	fd, ok := e.schema.Field(name)
	if !ok {
		return consql.NewUnknownFieldError(e.schema.Name(), name)
	}
	_, seeded := e.values[name]
	deferred, err := e.assign(fd, v, seeded)
	if err != nil {
		return err
	}
	if deferred {
		e.values[name] = nil
		_, err = e.assign(fd, v, true)
	}
	return err
}

// Assign sets several fields from a map[string]any or from alternating
// name/value arguments. Undeclared names are skipped.
func (e *Entity) Assign(args ...any) error {
	pairs, err := pairsOf("Assign", args, func(v any) (any, bool) { return v, true })
	if err != nil {
		return err
	}
	for _, p := range pairs {
		if !e.schema.Has(p.name) {
			continue
		}
		if err := e.Set(p.name, p.value); err != nil {
			return err
		}
	}
	return nil
}

// Attr returns a plain attribute.
func (e *Entity) Attr(name string) (any, bool) {
	v, ok := e.attrs[name]
	return v, ok
}

// SetAttr sets a plain attribute declared by the schema.
func (e *Entity) SetAttr(name string, v any) error {
	if !e.schema.HasAttribute(name) {
		return consql.NewUnknownFieldError(e.schema.Name(), name)
	}
	if e.attrs == nil {
		e.attrs = make(map[string]any)
	}
	e.attrs[name] = v
	return nil
}

// KeyFor returns the values of the given fields, or of the table primary
// key when none are given.
func (e *Entity) KeyFor(names ...string) ([]any, error) {
	if len(names) == 0 {
		names = e.schema.Table().PrimaryKey
	}
	key := make([]any, len(names))
	for i, name := range names {
		v, err := e.Get(name)
		if err != nil {
			return nil, err
		}
		key[i] = v
	}
	return key, nil
}

// Equal reports whether other holds the same field values. other may be an
// *Entity of the same schema, or any value the schema's equality coercer
// accepts, or a map[string]any from which an entity of the same schema can
// be constructed.
func (e *Entity) Equal(other any) bool {
	o, ok := other.(*Entity)
	if !ok {
		data, isMap := other.(map[string]any)
		if coerce := e.schema.EqualCoercer(); coerce != nil {
			data, isMap = coerce(other)
		}
		if !isMap {
			return false
		}
		var err error
		if o, err = New(e.schema, data); err != nil {
			return false
		}
	}
	if o == nil || o.schema != e.schema {
		return false
	}
	if o == e {
		return true
	}
	for _, name := range e.schema.Names() {
		if !field.Equal(e.values[name], o.values[name]) {
			return false
		}
	}
	return true
}

// Projector is implemented by values that project themselves into plain maps.
type Projector interface {
	Map(overrides map[string]any) map[string]any
}

// Map returns a plain map of every field value, projecting nested entities
// the same way, merged with overrides. Overrides win on collision.
func (e *Entity) Map(overrides map[string]any) map[string]any {
	if e == nil {
		return nil
	}
	out := make(map[string]any, e.schema.Len()+len(overrides))
	for _, name := range e.schema.Names() {
		v := e.values[name]
		if p, ok := v.(Projector); ok && p != nil {
			v = p.Map(nil)
		}
		out[name] = v
	}
	maps.Copy(out, overrides)
	return out
}

// String returns a debug representation of the entity.
func (e *Entity) String() string {
	b, err := e.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("%s(%v)", e.schema.Name(), err)
	}
	return fmt.Sprintf("%s(%s)", e.schema.Name(), b)
}

type pair struct {
	name  string
	value any
}

// pairsOf reads either a single map or alternating name/value arguments.
func pairsOf(op string, args []any, conv func(any) (any, bool)) ([]pair, error) {
	if len(args) == 1 {
		var pairs []pair
		switch m := args[0].(type) {
		case map[string]any:
			for _, k := range slices.Sorted(maps.Keys(m)) {
				pairs = append(pairs, pair{k, m[k]})
			}
		case map[string]bool:
			for _, k := range slices.Sorted(maps.Keys(m)) {
				pairs = append(pairs, pair{k, m[k]})
			}
		default:
			return nil, consql.NewUsageError(op, fmt.Sprintf("expected a map, got %T", args[0]))
		}
		for i := range pairs {
			v, ok := conv(pairs[i].value)
			if !ok {
				return nil, consql.NewUsageError(op, fmt.Sprintf("invalid value %v for %q", pairs[i].value, pairs[i].name))
			}
			pairs[i].value = v
		}
		return pairs, nil
	}
	if len(args)%2 != 0 {
		return nil, consql.NewUsageError(op, "odd number of arguments")
	}
	pairs := make([]pair, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		name, ok := args[i].(string)
		if !ok {
			return nil, consql.NewUsageError(op, fmt.Sprintf("argument %d: expected a field name, got %T", i, args[i]))
		}
		v, ok := conv(args[i+1])
		if !ok {
			return nil, consql.NewUsageError(op, fmt.Sprintf("invalid value %v for %q", args[i+1], name))
		}
		pairs = append(pairs, pair{name, v})
	}
	return pairs, nil
}

// All iterates over every field in declaration order.
func (e *Entity) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for _, name := range e.schema.Names() {
			if !yield(name, e.values[name]) {
				return
			}
		}
	}
}
