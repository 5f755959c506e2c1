// Package schema builds the registry of fields and configuration for an
// entity type.
//
// A schema is built once, usually at package level, and is immutable
// afterwards, so it can be shared freely between goroutines:
//
//	var User = schema.MustNew("User",
//	    schema.Extends(mixin.Time),
//	    schema.WithTable("users", "id"),
//	    schema.Fields(
//	        field.Int("id"),
//	        field.String("status").Required().Enum("authorized", "banned"),
//	    ),
//	)
//
// # Inheritance
//
// Extends lists parent schemas in precedence order. Parent fields come first;
// a field redeclared on the child replaces the inherited one in place.
// Configuration declared on the child wins; missing keys are filled from
// the first parent that defines them (see MergeConfig).
//
// # Plugins
//
// Plugin arguments declared on fields are compiled into validators by New.
// An empty or non-collection enum, an unknown plugin or an invalid pattern
// makes New return a *consql.SchemaError.
package schema
