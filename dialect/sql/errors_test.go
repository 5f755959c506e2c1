package sql

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syssam/consql"
)

type stateErr string

func (e stateErr) Error() string    { return "driver failure" }
func (e stateErr) SQLState() string { return string(e) }

type codeErr string

func (e codeErr) Error() string { return "driver failure" }
func (e codeErr) Code() string  { return string(e) }

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want ConstraintKind
	}{
		{nil, NoConstraint},
		{errors.New("connection refused"), NoConstraint},
		{stateErr("23505"), UniqueConstraint},
		{fmt.Errorf("wrapped: %w", codeErr("23503")), ForeignKeyConstraint},
		{codeErr("23514"), CheckConstraint},
		{stateErr("23502"), NotNullConstraint},
		{errors.New("Error 1062 (23000): Duplicate entry '1' for key 'PRIMARY'"), UniqueConstraint},
		{errors.New(`pq: insert or update on table "posts" violates foreign key constraint "posts_user_id_fkey"`), ForeignKeyConstraint},
		{errors.New("CHECK constraint failed: age >= 0"), CheckConstraint},
		{errors.New("NOT NULL constraint failed: accounts.status"), NotNullConstraint},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "%v", tt.err)
	}
	assert.Equal(t, "foreign key", ForeignKeyConstraint.String())
	assert.Equal(t, "unknown", ConstraintKind(42).String())
}

func TestWrapConstraint(t *testing.T) {
	t.Parallel()

	assert.NoError(t, WrapConstraint(nil))

	plain := errors.New("connection refused")
	assert.Same(t, plain, WrapConstraint(plain))

	cause := errors.New("UNIQUE constraint failed: accounts.status")
	err := WrapConstraint(cause)
	assert.True(t, consql.IsConstraintError(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "unique constraint violated")
	assert.Equal(t, err, WrapConstraint(err), "wrapping is idempotent")

	assert.True(t, IsConstraintError(cause))
	assert.True(t, IsUniqueConstraintError(cause))
	assert.False(t, IsForeignKeyConstraintError(cause))
	assert.False(t, IsCheckConstraintError(cause))
}
