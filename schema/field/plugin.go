package field

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Plugin names understood by the schema builder.
const (
	PluginEnum      = "enum"
	PluginOneOf     = "one_of"
	PluginMin       = "min"
	PluginMax       = "max"
	PluginMinLength = "min_length"
	PluginMaxLength = "max_length"
	PluginPattern   = "pattern"
	PluginNotEmpty  = "not_empty"
)

// Plugin translates a declarative plugin argument into a validator.
// Malformed arguments are reported here, at declaration time.
func Plugin(name string, arg any) (Validator, error) {
	switch name {
	case PluginEnum, PluginOneOf:
		return Enum(arg)
	case PluginMin, PluginMax:
		bound, err := toNumber(arg)
		if err != nil {
			return nil, err
		}
		return bounded(bound, name == PluginMin), nil
	case PluginMinLength, PluginMaxLength:
		n, err := toInt64(arg)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("length must be a non-negative integer, got %v", arg)
		}
		return lengthBound(int(n), name == PluginMinLength), nil
	case PluginPattern:
		var re *regexp.Regexp
		switch p := arg.(type) {
		case *regexp.Regexp:
			re = p
		case string:
			var err error
			if re, err = regexp.Compile(p); err != nil {
				return nil, err
			}
		}
		if re == nil {
			return nil, fmt.Errorf("pattern must be a string or *regexp.Regexp, got %T", arg)
		}
		return pure(func(v any) bool {
			s, ok := v.(string)
			return ok && re.MatchString(s)
		}), nil
	case PluginNotEmpty:
		return pure(func(v any) bool {
			if s, ok := v.(string); ok {
				return strings.TrimSpace(s) != ""
			}
			if n, ok := length(v); ok {
				return n > 0
			}
			return true
		}), nil
	default:
		return nil, fmt.Errorf("unknown plugin %q", name)
	}
}

// Enum builds a membership validator. allowed must be a non-empty slice or
// array of comparable values. A collection value is valid iff every element
// is a member.
func Enum(allowed any) (Validator, error) {
	rv := reflect.ValueOf(allowed)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, fmt.Errorf("enum values must be a collection, got %T", allowed)
	}
	if rv.Len() == 0 {
		return nil, errors.New("enum values are empty")
	}
	set := make(map[any]struct{}, rv.Len())
	for i := range rv.Len() {
		el := rv.Index(i).Interface()
		if el == nil || !reflect.TypeOf(el).Comparable() {
			return nil, fmt.Errorf("enum value %v is not comparable", el)
		}
		set[el] = struct{}{}
	}
	member := func(v any) bool {
		if v == nil || !reflect.TypeOf(v).Comparable() {
			return false
		}
		_, ok := set[v]
		return ok
	}
	return pure(func(v any) bool {
		if isCollection(v) {
			cv := reflect.ValueOf(v)
			for i := range cv.Len() {
				if !member(cv.Index(i).Interface()) {
					return false
				}
			}
			return true
		}
		return member(v)
	}), nil
}

func pure(fn func(v any) bool) Validator {
	return func(v any, _ *Context) Result { return Done(fn(v)) }
}

func bounded(bound decimal.Decimal, lower bool) Validator {
	return pure(func(v any) bool {
		n, err := toNumber(v)
		if err != nil {
			return false
		}
		if lower {
			return n.GreaterThanOrEqual(bound)
		}
		return n.LessThanOrEqual(bound)
	})
}

func lengthBound(limit int, lower bool) Validator {
	return pure(func(v any) bool {
		var n int
		if s, ok := v.(string); ok {
			n = utf8.RuneCountInString(s)
		} else if l, ok := length(v); ok {
			n = l
		} else {
			return false
		}
		if lower {
			return n >= limit
		}
		return n <= limit
	})
}

func toNumber(v any) (decimal.Decimal, error) {
	if _, ok := v.(string); ok {
		return decimal.Decimal{}, fmt.Errorf("%q is not a number", v)
	}
	d, err := ToDecimal(v, nil)
	if err != nil {
		return decimal.Decimal{}, err
	}
	n, ok := d.Value.(decimal.Decimal)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%T is not a number", v)
	}
	return n, nil
}

// isCollection reports whether v is a slice or array other than []byte.
func isCollection(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.([]byte); ok {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

func length(v any) (int, bool) {
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
		return rv.Len(), true
	}
	return 0, false
}
