// Package consql holds the error taxonomy and cache contract shared by the
// entity framework and its persistence layer.
//
// Entity types are declared with schema.New from field descriptors built
// by the schema/field package:
//
//	var Account = schema.MustNew("Account",
//	    schema.Extends(mixin.ID, mixin.Time),
//	    schema.Fields(
//	        field.String("status").Required().Enum("authorized", "banned"),
//	    ),
//	)
//
// Instances are created with entity.New, which validates every value and
// tracks changed fields in a dirty set. A store.Store persists entities
// through the statements rendered by package sqlt and pages listings with
// cursors from package cursor, exchanged with clients as signed tokens
// from package token.
//
// Every error returned by these packages matches one of the sentinels of
// this package through errors.Is, or one of the typed errors through
// errors.As:
//
//	if err := e.Set("status", "deleted"); consql.IsInvalidField(err) {
//	    // reject the request
//	}
package consql
