package mixin

import (
	"time"

	"github.com/syssam/consql/schema"
	"github.com/syssam/consql/schema/field"
)

// TagTouch marks fields that are set to the current time on every save.
const TagTouch = "touch"

// ID adds an int64 "id" primary key.
var ID = schema.MustNew("ID",
	schema.Fields(field.Int64("id")),
)

// Time adds created_at and updated_at timestamp fields.
var Time = schema.MustNew("Time",
	schema.Fields(
		field.Time("created_at").Required().Default(now),
		field.Time("updated_at").Required().Default(now).Tags(TagTouch),
	),
)

// CreateTime adds only the created_at timestamp field.
var CreateTime = schema.MustNew("CreateTime",
	schema.Fields(field.Time("created_at").Required().Default(now)),
)

// UpdateTime adds only the updated_at timestamp field.
var UpdateTime = schema.MustNew("UpdateTime",
	schema.Fields(field.Time("updated_at").Required().Default(now).Tags(TagTouch)),
)

// SoftDelete adds a nullable deleted_at field.
var SoftDelete = schema.MustNew("SoftDelete",
	schema.Fields(field.Time("deleted_at")),
)

// TimeSoftDelete combines Time and SoftDelete.
var TimeSoftDelete = schema.MustNew("TimeSoftDelete",
	schema.Extends(Time, SoftDelete),
)

// now is truncated to seconds, the precision of projections.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
