package mixin_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/consql/schema"
	"github.com/syssam/consql/schema/field"
	"github.com/syssam/consql/schema/mixin"
)

func TestTime(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"created_at", "updated_at"}, mixin.Time.Names())
	fd, ok := mixin.Time.Field("updated_at")
	require.True(t, ok)
	assert.True(t, fd.HasTag(mixin.TagTouch))
	assert.True(t, fd.Required)

	v, deferred := fd.DefaultValue(nil)
	assert.False(t, deferred)
	ts, ok := v.(time.Time)
	require.True(t, ok)
	assert.Equal(t, time.UTC, ts.Location())
	assert.Zero(t, ts.Nanosecond())
}

func TestCompose(t *testing.T) {
	t.Parallel()

	user := schema.MustNew("User",
		schema.Extends(mixin.ID, mixin.TimeSoftDelete),
		schema.Fields(field.String("email")),
	)
	assert.Equal(t, []string{"id", "created_at", "updated_at", "deleted_at", "email"}, user.Names())

	fd, ok := user.Field("deleted_at")
	require.True(t, ok)
	assert.False(t, fd.Required)
	assert.Equal(t, []string{"created_at"}, mixin.CreateTime.Names())
	assert.Equal(t, []string{"updated_at"}, mixin.UpdateTime.Names())
}
