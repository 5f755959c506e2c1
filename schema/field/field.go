package field

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Result is what coercers, defaults and validators return. A function that
// cannot decide without the owning entity returns NeedContext and is called
// again with a non-nil *Context.
type Result struct {
	Value        any
	NeedsContext bool
}

// Done wraps a final value.
func Done(v any) Result { return Result{Value: v} }

// NeedContext asks the pipeline to retry with the owning entity.
var NeedContext = Result{NeedsContext: true}

// Owner is the entity a field belongs to, as seen by contextual functions.
type Owner interface {
	// Label returns the name of the owning schema.
	Label() string
	// Value returns the current value of a sibling field, or nil.
	Value(name string) any
}

// Context is passed to contextual coercers, defaults and validators.
// It is nil during the stateless phase.
type Context struct {
	Owner Owner
	Field *Descriptor
}

// Value is a shorthand for c.Owner.Value.
func (c *Context) Value(name string) any {
	if c == nil || c.Owner == nil {
		return nil
	}
	return c.Owner.Value(name)
}

type (
	// Coercer converts a raw value into an accepted one.
	Coercer func(v any, c *Context) (Result, error)

	// Validator reports, through Done(bool), whether v satisfies a constraint.
	Validator func(v any, c *Context) Result

	// DefaultFunc produces the value of an unset field.
	DefaultFunc func(c *Context) Result
)

// NamedValidator is a validator together with the name reported on failure.
type NamedValidator struct {
	Name     string
	Validate Validator
}

// PluginArg is a declarative validator request, translated into a
// NamedValidator when the schema is built.
type PluginArg struct {
	Name string
	Arg  any
}

// Field is implemented by builders and descriptors.
type Field interface {
	Descriptor() *Descriptor
}

// Descriptor for field configuration.
type Descriptor struct {
	Name         string         // field name
	Types        []reflect.Type // accepted Go types
	TypeNames    []string       // accepted type names (reflect.Type.String or Name)
	Required     bool           // nil is rejected
	Coerce       Coercer        // raw -> accepted conversion
	Default      DefaultFunc    // value of an unset field
	AlwaysCoerce bool           // coerce even already accepted values
	Tags         []string       // free-form tags (e.g. "db_vars")
	Plugins      []PluginArg    // declarative validators
	Validators   []NamedValidator
	Err          error // builder misuse, reported at schema build

	custom []NamedValidator
}

// Descriptor implements the Field interface.
func (d *Descriptor) Descriptor() *Descriptor { return d }

// HasTag reports whether the field carries the tag.
func (d *Descriptor) HasTag(tag string) bool {
	return slices.Contains(d.Tags, tag)
}

// Accepts reports whether v satisfies the accepted types. nil is always
// accepted here; absence is the business of the required check.
func (d *Descriptor) Accepts(v any) bool {
	if v == nil {
		return true
	}
	rt := reflect.TypeOf(v)
	for _, t := range d.Types {
		if rt == t {
			return true
		}
		if t.Kind() == reflect.Interface && rt.Implements(t) {
			return true
		}
	}
	for _, n := range d.TypeNames {
		if rt.String() == n || rt.Name() == n {
			return true
		}
	}
	return false
}

// Compile returns a copy of the descriptor with Validators rebuilt from
// the plugin arguments and the custom validators.
func (d *Descriptor) Compile() (*Descriptor, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	if d.Name == "" {
		return nil, errors.New("field name is empty")
	}
	if len(d.Types) == 0 && len(d.TypeNames) == 0 {
		return nil, errors.New("no accepted types")
	}
	c := *d
	c.Types = slices.Clone(d.Types)
	c.TypeNames = slices.Clone(d.TypeNames)
	c.Tags = slices.Clone(d.Tags)
	c.Plugins = slices.Clone(d.Plugins)
	c.custom = slices.Clone(d.custom)
	c.Validators = make([]NamedValidator, 0, len(d.Plugins)+len(d.custom))
	for _, p := range d.Plugins {
		v, err := Plugin(p.Name, p.Arg)
		if err != nil {
			return nil, fmt.Errorf("plugin %q: %w", p.Name, err)
		}
		c.Validators = append(c.Validators, NamedValidator{Name: p.Name, Validate: v})
	}
	c.Validators = append(c.Validators, c.custom...)
	if c.Coerce == nil {
		c.Coerce = Identity
	}
	if c.Default == nil {
		c.Default = func(*Context) Result { return Done(nil) }
	}
	return &c, nil
}

// ErrRejected is the cause reported when a validator returns false.
var ErrRejected = errors.New("rejected by validator")

// Violation describes why Prepare refused a value.
type Violation struct {
	Validator string // failing validator, empty for type and required checks
	Value     any
	Err       error
}

func (v *Violation) Error() string {
	if v.Validator != "" {
		return fmt.Sprintf("%s: %v", v.Validator, v.Value)
	}
	return v.Err.Error()
}

func (v *Violation) Unwrap() error { return v.Err }

var (
	errType     = errors.New("value type not accepted")
	errRequired = errors.New("value is required")
	errLoop     = errors.New("function asked for context twice")
)

// Prepare runs the assignment pipeline up to, but not including, dirty
// tracking and commit: fast accept, coercion, type check, required check
// and validation. seeded reports whether the field already holds a value
// on owner; an unseeded field only gets the stateless phase, and a
// function asking for context makes Prepare return deferred=true.
func (d *Descriptor) Prepare(owner Owner, v any, seeded bool) (value any, deferred bool, err error) {
	ctx := &Context{Owner: owner, Field: d}
	value = v
	if !d.Accepts(v) || d.AlwaysCoerce {
		res, err := d.Coerce(v, nil)
		if err != nil {
			return nil, false, &Violation{Value: v, Err: err}
		}
		if res.NeedsContext {
			if !seeded {
				return nil, true, nil
			}
			if res, err = d.Coerce(v, ctx); err != nil {
				return nil, false, &Violation{Value: v, Err: err}
			}
			if res.NeedsContext {
				return nil, false, &Violation{Value: v, Err: errLoop}
			}
		}
		value = res.Value
	}
	if !d.Accepts(value) {
		return nil, false, &Violation{Value: value, Err: fmt.Errorf("%w: %T", errType, value)}
	}
	if value == nil {
		if d.Required {
			return nil, false, &Violation{Err: errRequired}
		}
		return nil, false, nil
	}
	for _, nv := range d.Validators {
		res := nv.Validate(value, nil)
		if res.NeedsContext {
			if !seeded {
				return nil, true, nil
			}
			if res = nv.Validate(value, ctx); res.NeedsContext {
				return nil, false, &Violation{Validator: nv.Name, Value: value, Err: errLoop}
			}
		}
		if ok, _ := res.Value.(bool); !ok {
			return nil, false, &Violation{Validator: nv.Name, Value: value, Err: ErrRejected}
		}
	}
	return value, false, nil
}

// DefaultValue evaluates the default. With a nil owner only the stateless
// phase runs and deferred reports whether context is needed.
func (d *Descriptor) DefaultValue(owner Owner) (value any, deferred bool) {
	res := d.Default(nil)
	if !res.NeedsContext {
		return res.Value, false
	}
	if owner == nil {
		return nil, true
	}
	res = d.Default(&Context{Owner: owner, Field: d})
	if res.NeedsContext {
		return nil, false
	}
	return res.Value, false
}

// Builder is the fluent field builder.
type Builder struct {
	desc *Descriptor
}

func newBuilder(name string, coerce Coercer, types ...reflect.Type) *Builder {
	return &Builder{desc: &Descriptor{Name: name, Types: types, Coerce: coerce}}
}

// Int returns a new field of type int.
func Int(name string) *Builder { return newBuilder(name, ToInt, typeOf[int]()) }

// Int64 returns a new field of type int64.
func Int64(name string) *Builder { return newBuilder(name, ToInt64, typeOf[int64]()) }

// Float returns a new field of type float64.
func Float(name string) *Builder { return newBuilder(name, ToFloat, typeOf[float64]()) }

// String returns a new field of type string.
func String(name string) *Builder { return newBuilder(name, ToString, typeOf[string]()) }

// Bool returns a new field of type bool.
func Bool(name string) *Builder { return newBuilder(name, ToBool, typeOf[bool]()) }

// Time returns a new field of type time.Time.
func Time(name string) *Builder { return newBuilder(name, ToTime, typeOf[time.Time]()) }

// Unix returns a new field holding a Unix timestamp in seconds (int64).
func Unix(name string) *Builder { return newBuilder(name, ToUnix, typeOf[int64]()) }

// UUID returns a new field of type uuid.UUID.
func UUID(name string) *Builder { return newBuilder(name, ToUUID, typeOf[uuid.UUID]()) }

// Decimal returns a new field of type decimal.Decimal.
func Decimal(name string) *Builder { return newBuilder(name, ToDecimal, typeOf[decimal.Decimal]()) }

// Bytes returns a new field of type []byte.
func Bytes(name string) *Builder { return newBuilder(name, ToBytes, typeOf[[]byte]()) }

// Strings returns a new field of type []string.
func Strings(name string) *Builder { return newBuilder(name, ToStrings, typeOf[[]string]()) }

// JSON returns a new field holding a free-form map[string]any payload.
// The payload is always coerced into its canonical form.
func JSON(name string) *Builder {
	return newBuilder(name, ToJSON, typeOf[map[string]any]()).AlwaysCoerce()
}

// Other returns a new field accepting the dynamic types of the given
// prototypes. Coercion is the identity unless set with Coerce.
//
//	field.Other("owner", (*entity.Entity)(nil))
func Other(name string, protos ...any) *Builder {
	b := newBuilder(name, Identity)
	for _, p := range protos {
		if p == nil {
			b.desc.Err = errors.New("nil prototype")
			continue
		}
		b.desc.Types = append(b.desc.Types, reflect.TypeOf(p))
	}
	return b
}

// Types adds accepted Go types.
func (b *Builder) Types(types ...reflect.Type) *Builder {
	b.desc.Types = append(b.desc.Types, types...)
	return b
}

// TypeNames adds accepted type names, matched against reflect.Type.String
// and reflect.Type.Name.
func (b *Builder) TypeNames(names ...string) *Builder {
	b.desc.TypeNames = append(b.desc.TypeNames, names...)
	return b
}

// Required rejects nil after coercion.
func (b *Builder) Required() *Builder {
	b.desc.Required = true
	return b
}

// Coerce sets the coercion function.
func (b *Builder) Coerce(fn Coercer) *Builder {
	if fn == nil {
		b.desc.Err = errors.New("nil coercer")
		return b
	}
	b.desc.Coerce = fn
	return b
}

// AlwaysCoerce runs the coercer even for values of an accepted type.
func (b *Builder) AlwaysCoerce() *Builder {
	b.desc.AlwaysCoerce = true
	return b
}

// Default sets the default value. v may be a literal, a DefaultFunc, or a
// function with no arguments and one result such as time.Now or uuid.New.
func (b *Builder) Default(v any) *Builder {
	switch fn := v.(type) {
	case DefaultFunc:
		b.desc.Default = fn
	case func(*Context) Result:
		b.desc.Default = fn
	case nil:
		b.desc.Default = nil
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Func {
			b.desc.Default = func(*Context) Result { return Done(v) }
			break
		}
		if rv.Type().NumIn() != 0 || rv.Type().NumOut() != 1 {
			b.desc.Err = fmt.Errorf("default function must be func() T, got %s", rv.Type())
			break
		}
		b.desc.Default = func(*Context) Result { return Done(rv.Call(nil)[0].Interface()) }
	}
	return b
}

// DefaultContext sets a default that may ask for the owning entity.
func (b *Builder) DefaultContext(fn DefaultFunc) *Builder {
	b.desc.Default = fn
	return b
}

// Tags adds tags.
func (b *Builder) Tags(tags ...string) *Builder {
	b.desc.Tags = append(b.desc.Tags, tags...)
	return b
}

// Plugin adds a declarative validator, translated when the schema is built.
func (b *Builder) Plugin(name string, arg any) *Builder {
	b.desc.Plugins = append(b.desc.Plugins, PluginArg{Name: name, Arg: arg})
	return b
}

// Enum restricts values (or every element of a collection value) to the
// given set.
func (b *Builder) Enum(values ...any) *Builder {
	return b.Plugin(PluginEnum, values)
}

// Min adds a lower bound for numeric values.
func (b *Builder) Min(n float64) *Builder { return b.Plugin(PluginMin, n) }

// Max adds an upper bound for numeric values.
func (b *Builder) Max(n float64) *Builder { return b.Plugin(PluginMax, n) }

// MinLen adds a minimum length for strings and collections.
func (b *Builder) MinLen(n int) *Builder { return b.Plugin(PluginMinLength, n) }

// MaxLen adds a maximum length for strings and collections.
func (b *Builder) MaxLen(n int) *Builder { return b.Plugin(PluginMaxLength, n) }

// Match requires string values to match the pattern.
func (b *Builder) Match(pattern string) *Builder { return b.Plugin(PluginPattern, pattern) }

// NotEmpty rejects blank strings and empty collections.
func (b *Builder) NotEmpty() *Builder { return b.Plugin(PluginNotEmpty, true) }

// Validate adds a named custom validator.
func (b *Builder) Validate(name string, fn Validator) *Builder {
	if fn == nil {
		b.desc.Err = fmt.Errorf("nil validator %q", name)
		return b
	}
	b.desc.custom = append(b.desc.custom, NamedValidator{Name: name, Validate: fn})
	return b
}

// Descriptor implements the Field interface by returning its descriptor.
func (b *Builder) Descriptor() *Descriptor {
	return b.desc
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
