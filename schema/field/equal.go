package field

import (
	"reflect"
	"time"

	"github.com/shopspring/decimal"
)

// Equal reports whether a and b have the same dynamic type and equal
// values. The type check comes first: int(1) and int64(1) are different,
// and so are 1 and decimal 1. Dirty tracking depends on this rule.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	switch a := a.(type) {
	case time.Time:
		return a.Equal(b.(time.Time))
	case decimal.Decimal:
		return a.Equal(b.(decimal.Decimal))
	case []byte:
		return string(a) == string(b.([]byte))
	}
	if eq, ok := equalMethod(a, b); ok {
		return eq
	}
	// Value.Comparable looks into interface fields, which Type.Comparable
	// takes on trust: == panics on a struct holding a slice in an any.
	if reflect.ValueOf(a).Comparable() && reflect.ValueOf(b).Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// equalMethod calls a.Equal(b) when the type has a method
// Equal(T) bool for its own type T.
func equalMethod(a, b any) (eq bool, ok bool) {
	m := reflect.ValueOf(a).MethodByName("Equal")
	if !m.IsValid() {
		return false, false
	}
	mt := m.Type()
	if mt.NumIn() != 1 || mt.NumOut() != 1 || mt.Out(0).Kind() != reflect.Bool {
		return false, false
	}
	bt := reflect.TypeOf(b)
	if !bt.AssignableTo(mt.In(0)) {
		return false, false
	}
	av, bv := reflect.ValueOf(a), reflect.ValueOf(b)
	if av.Kind() == reflect.Pointer && (av.IsNil() || bv.IsNil()) {
		return av.IsNil() && bv.IsNil(), true
	}
	return m.Call([]reflect.Value{bv})[0].Bool(), true
}
