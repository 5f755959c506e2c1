// Package field provides fluent builders for declaring entity fields.
//
// A field is described by a Descriptor: the Go types it accepts, whether it
// is required, how raw input is coerced, its default, its tags and its
// validators.
//
//	field.Int("id")
//	field.String("status").Required().Enum("authorized", "banned")
//	field.Time("created").Default(time.Now)
//	field.JSON("meta").Tags("db_vars")
//
// # Assignment pipeline
//
// Descriptor.Prepare runs, failing fast:
//
//  1. fast accept: a value of an accepted type is kept as-is unless
//     AlwaysCoerce is set;
//  2. coercion, stateless first and then with the owning entity if the
//     coercer returned NeedContext;
//  3. type check of the coerced value;
//  4. required check;
//  5. every validator, with the same stateless/contextual protocol.
//
// The owning entity then updates its dirty set and commits the value.
//
// # Contextual functions
//
// Coercers, defaults and validators receive a nil *Context first. A function
// that needs sibling values returns NeedContext and is called again:
//
//	field.Int64("seq").DefaultContext(func(c *field.Context) field.Result {
//	    if c == nil {
//	        return field.NeedContext
//	    }
//	    n, _ := c.Value("base").(int64)
//	    return field.Done(n + 1)
//	})
//
// # Plugins
//
// Declarative validators are listed on the builder and translated into
// validators when the schema is built, so malformed arguments fail at
// declaration time:
//
//	field.String("role").Plugin("enum", []string{"admin", "user"})
//	field.Int("age").Min(0).Max(150)
//	field.String("slug").Match(`^[a-z0-9-]+$`).MaxLen(64)
package field
