package consql

import (
	"errors"
	"fmt"
)

// Standard sentinel errors. Every typed error below matches one of them
// through errors.Is.
var (
	// ErrInvalidField is returned when a value fails the type, required or
	// validator checks of a field.
	ErrInvalidField = errors.New("consql: invalid field value")

	// ErrUnknownField is returned when a name is not declared by the schema.
	ErrUnknownField = errors.New("consql: unknown field")

	// ErrSchema is returned when a schema declaration is malformed.
	ErrSchema = errors.New("consql: schema configuration error")

	// ErrUsage is returned for malformed call shapes such as odd argument
	// counts or unsupported modes.
	ErrUsage = errors.New("consql: usage error")

	// ErrNotFound is returned when a statement expected a row and got none.
	ErrNotFound = errors.New("consql: entity not found")
)

// InvalidFieldError is returned when an assignment violates a field's
// constraints. Validator is set when a named validator rejected the value.
type InvalidFieldError struct {
	Entity    string // Entity (schema) name
	Field     string // Field name
	Validator string // Failing validator, if any
	Value     any    // Rejected value
	Err       error  // Underlying cause, if any
}

// Error returns the error string.
func (e *InvalidFieldError) Error() string {
	name := e.Field
	if e.Entity != "" {
		name = e.Entity + "." + e.Field
	}
	switch {
	case e.Validator != "":
		return fmt.Sprintf("consql: invalid field %s#%s: %v", name, e.Validator, e.Value)
	case e.Err != nil:
		return fmt.Sprintf("consql: invalid field %s: %v", name, e.Err)
	default:
		return fmt.Sprintf("consql: invalid field %s", name)
	}
}

// Is reports whether the target error matches ErrInvalidField.
func (e *InvalidFieldError) Is(err error) bool {
	return err == ErrInvalidField
}

// Unwrap returns the underlying error.
func (e *InvalidFieldError) Unwrap() error {
	return e.Err
}

// NewInvalidFieldError returns a new InvalidFieldError for the given field.
func NewInvalidFieldError(entity, field string, value any, err error) *InvalidFieldError {
	return &InvalidFieldError{Entity: entity, Field: field, Value: value, Err: err}
}

// NewValidatorError returns a new InvalidFieldError naming the failing validator.
func NewValidatorError(entity, field, validator string, value any) *InvalidFieldError {
	return &InvalidFieldError{Entity: entity, Field: field, Validator: validator, Value: value}
}

// IsInvalidField returns true if the error is an InvalidFieldError.
func IsInvalidField(err error) bool {
	if err == nil {
		return false
	}
	var e *InvalidFieldError
	return errors.As(err, &e) || errors.Is(err, ErrInvalidField)
}

// UnknownFieldError is returned when a name is not declared by the schema.
type UnknownFieldError struct {
	Entity string
	Field  string
}

// Error returns the error string.
func (e *UnknownFieldError) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("consql: unknown field %q on %s", e.Field, e.Entity)
	}
	return fmt.Sprintf("consql: unknown field %q", e.Field)
}

// Is reports whether the target error matches ErrUnknownField.
func (e *UnknownFieldError) Is(err error) bool {
	return err == ErrUnknownField
}

// NewUnknownFieldError returns a new UnknownFieldError.
func NewUnknownFieldError(entity, field string) *UnknownFieldError {
	return &UnknownFieldError{Entity: entity, Field: field}
}

// IsUnknownField returns true if the error is an UnknownFieldError.
func IsUnknownField(err error) bool {
	if err == nil {
		return false
	}
	var e *UnknownFieldError
	return errors.As(err, &e) || errors.Is(err, ErrUnknownField)
}

// SchemaError is returned at declaration time when a schema, field or
// plugin argument is malformed.
type SchemaError struct {
	Schema string // Schema name
	Field  string // Field name, if the error is field scoped
	Err    error
}

// Error returns the error string.
func (e *SchemaError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("consql: schema %s: field %q: %v", e.Schema, e.Field, e.Err)
	}
	return fmt.Sprintf("consql: schema %s: %v", e.Schema, e.Err)
}

// Is reports whether the target error matches ErrSchema.
func (e *SchemaError) Is(err error) bool {
	return err == ErrSchema
}

// Unwrap returns the underlying error.
func (e *SchemaError) Unwrap() error {
	return e.Err
}

// NewSchemaError returns a new SchemaError.
func NewSchemaError(schema, field string, err error) *SchemaError {
	return &SchemaError{Schema: schema, Field: field, Err: err}
}

// IsSchemaError returns true if the error is a SchemaError.
func IsSchemaError(err error) bool {
	if err == nil {
		return false
	}
	var e *SchemaError
	return errors.As(err, &e) || errors.Is(err, ErrSchema)
}

// UsageError is returned for malformed call shapes.
type UsageError struct {
	Op     string // Operation that was misused (e.g. "SetDirty", "Items")
	Reason string
}

// Error returns the error string.
func (e *UsageError) Error() string {
	return fmt.Sprintf("consql: %s: %s", e.Op, e.Reason)
}

// Is reports whether the target error matches ErrUsage.
func (e *UsageError) Is(err error) bool {
	return err == ErrUsage
}

// NewUsageError returns a new UsageError.
func NewUsageError(op, reason string) *UsageError {
	return &UsageError{Op: op, Reason: reason}
}

// IsUsageError returns true if the error is a UsageError.
func IsUsageError(err error) bool {
	if err == nil {
		return false
	}
	var e *UsageError
	return errors.As(err, &e) || errors.Is(err, ErrUsage)
}

// NotFoundError represents an error when a statement returned no row.
type NotFoundError struct {
	label string
	key   []any // Optional: the key tuple that was used
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if len(e.key) > 0 {
		return fmt.Sprintf("consql: %s not found (key=%v)", e.label, e.key)
	}
	return fmt.Sprintf("consql: %s not found", e.label)
}

// Is reports whether the target error matches NotFoundError.
// This allows errors.Is(notFoundErr, ErrNotFound) to return true.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Label returns the entity label.
func (e *NotFoundError) Label() string {
	return e.label
}

// Key returns the key tuple that was used, if available.
func (e *NotFoundError) Key() []any {
	return e.key
}

// NewNotFoundError returns a new NotFoundError for the given entity type.
func NewNotFoundError(label string, key ...any) *NotFoundError {
	return &NotFoundError{label: label, key: key}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// ConstraintError represents a database constraint violation error.
type ConstraintError struct {
	msg  string
	wrap error
}

// Error returns the error string.
func (e ConstraintError) Error() string {
	return fmt.Sprintf("consql: constraint failed: %s", e.msg)
}

// Unwrap returns the underlying error.
func (e ConstraintError) Unwrap() error {
	return e.wrap
}

// NewConstraintError returns a new ConstraintError with the given message.
func NewConstraintError(msg string, wrap error) error {
	return ConstraintError{msg: msg, wrap: wrap}
}

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e ConstraintError
	return errors.As(err, &e)
}

// QueryError wraps a listing error with additional context.
type QueryError struct {
	Entity string // Entity type being queried
	Op     string // Statement name (e.g., "list")
	Err    error  // Underlying error
}

// Error returns the error string.
func (e *QueryError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("consql: querying %s (%s): %v", e.Entity, e.Op, e.Err)
	}
	return fmt.Sprintf("consql: querying %s: %v", e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// NewQueryError returns a new QueryError.
func NewQueryError(entity, op string, err error) *QueryError {
	return &QueryError{Entity: entity, Op: op, Err: err}
}

// IsQueryError returns true if the error is a QueryError.
func IsQueryError(err error) bool {
	if err == nil {
		return false
	}
	var e *QueryError
	return errors.As(err, &e)
}

// MutationError wraps a save or remove error with additional context.
type MutationError struct {
	Entity string // Entity type being mutated
	Op     string // Statement name (e.g., "save", "rm")
	Err    error  // Underlying error
}

// Error returns the error string.
func (e *MutationError) Error() string {
	return fmt.Sprintf("consql: %s %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *MutationError) Unwrap() error {
	return e.Err
}

// NewMutationError returns a new MutationError.
func NewMutationError(entity, op string, err error) *MutationError {
	return &MutationError{Entity: entity, Op: op, Err: err}
}

// IsMutationError returns true if the error is a MutationError.
func IsMutationError(err error) bool {
	if err == nil {
		return false
	}
	var e *MutationError
	return errors.As(err, &e)
}
