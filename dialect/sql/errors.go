package sql

import (
	"errors"
	"strings"

	"github.com/syssam/consql"
)

// ConstraintKind classifies a constraint violation.
type ConstraintKind int

// Constraint kinds.
const (
	NoConstraint ConstraintKind = iota
	UniqueConstraint
	ForeignKeyConstraint
	CheckConstraint
	NotNullConstraint
)

var kindNames = [...]string{"none", "unique", "foreign key", "check", "not null"}

func (k ConstraintKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Classifier maps a driver error to a constraint kind. Drivers register
// typed classifiers with RegisterClassifier; errors no classifier
// recognizes fall back to interface and message matching.
type Classifier func(err error) ConstraintKind

var classifiers []Classifier

// RegisterClassifier adds a driver specific classifier. It is meant to be
// called from init functions.
func RegisterClassifier(c Classifier) {
	classifiers = append(classifiers, c)
}

// Classify returns the constraint kind of err.
func Classify(err error) ConstraintKind {
	if err == nil {
		return NoConstraint
	}
	for _, c := range classifiers {
		if k := c(err); k != NoConstraint {
			return k
		}
	}
	code := ""
	if e, ok := asError[sqlStateError](err); ok {
		code = e.SQLState()
	} else if e, ok := asError[errorCoder](err); ok {
		code = e.Code()
	}
	switch code {
	case pgUniqueViolation:
		return UniqueConstraint
	case pgForeignKeyViolation:
		return ForeignKeyConstraint
	case pgCheckViolation:
		return CheckConstraint
	case pgNotNullViolation:
		return NotNullConstraint
	}
	msg := err.Error()
	switch {
	case containsAny(msg, "Error 1062", "violates unique constraint", "UNIQUE constraint failed"):
		return UniqueConstraint
	case containsAny(msg, "Error 1451", "Error 1452", "violates foreign key constraint", "FOREIGN KEY constraint failed"):
		return ForeignKeyConstraint
	case containsAny(msg, "Error 3819", "violates check constraint", "CHECK constraint failed"):
		return CheckConstraint
	case containsAny(msg, "Error 1048", "violates not-null constraint", "NOT NULL constraint failed"):
		return NotNullConstraint
	}
	return NoConstraint
}

// IsConstraintError returns true if the error resulted from a database constraint violation.
func IsConstraintError(err error) bool {
	return consql.IsConstraintError(err) || Classify(err) != NoConstraint
}

// IsUniqueConstraintError reports if the error resulted from a DB uniqueness constraint violation.
func IsUniqueConstraintError(err error) bool { return Classify(err) == UniqueConstraint }

// IsForeignKeyConstraintError reports if the error resulted from a database foreign-key constraint violation.
func IsForeignKeyConstraintError(err error) bool { return Classify(err) == ForeignKeyConstraint }

// IsCheckConstraintError reports if the error resulted from a database check constraint violation.
func IsCheckConstraintError(err error) bool { return Classify(err) == CheckConstraint }

// WrapConstraint wraps err in a consql.ConstraintError when it is a
// constraint violation and returns it unchanged otherwise.
func WrapConstraint(err error) error {
	if err == nil || consql.IsConstraintError(err) {
		return err
	}
	if k := Classify(err); k != NoConstraint {
		return consql.NewConstraintError(k.String()+" constraint violated: "+err.Error(), err)
	}
	return err
}

// errorCoder is implemented by database errors that provide string codes.
type errorCoder interface {
	Code() string
}

// sqlStateError is implemented by errors that provide SQLSTATE codes.
type sqlStateError interface {
	SQLState() string
}

// PostgreSQL SQLSTATE codes for constraint violations (Class 23).
const (
	pgNotNullViolation    = "23502"
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// asError attempts to extract an error implementing interface T from the error chain.
func asError[T any](err error) (T, bool) {
	var target T
	for err != nil {
		if e, ok := err.(T); ok {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	return target, false
}

// containsAny returns true if s contains any of the substrings.
func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
