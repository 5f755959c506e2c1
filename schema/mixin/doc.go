// Package mixin provides ready-made parent schemas.
//
// A mixin is a schema with a reusable set of fields that other schemas
// inherit through schema.Extends. Parent fields come first, in the order
// the parents are listed:
//
//	var User = schema.MustNew("User",
//	    schema.Extends(mixin.ID, mixin.Time),
//	    schema.Fields(
//	        field.String("email").Required(),
//	    ),
//	)
//
// The resulting User schema has the fields:
//   - id (int64, primary key)
//   - created_at (time.Time, defaults to now)
//   - updated_at (time.Time, defaults to now, touched on save)
//   - email (string)
//
// # Built-in Mixins
//
//	mixin.ID             // id
//	mixin.Time           // created_at, updated_at
//	mixin.CreateTime     // created_at
//	mixin.UpdateTime     // updated_at
//	mixin.SoftDelete     // deleted_at
//	mixin.TimeSoftDelete // Time and SoftDelete
//
// Timestamps default to the current UTC time truncated to the second.
//
// # Touched Fields
//
// Fields tagged with TagTouch are set to the current time by
// store.Store.Save before the row is written, so updated_at follows every
// save without the caller assigning it:
//
//	field.Time("seen_at").Tags(mixin.TagTouch)
//
// # Custom Mixins
//
// Any schema can serve as a parent. Configuration declared on a mixin is
// inherited by children that do not declare the same key:
//
//	var Audit = schema.MustNew("Audit",
//	    schema.Fields(
//	        field.String("created_by"),
//	        field.String("updated_by"),
//	    ),
//	    schema.Config("audited", true),
//	)
package mixin
