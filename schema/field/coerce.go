package field

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Stateless adapts a plain conversion function into a Coercer. nil values
// pass through untouched.
func Stateless(fn func(v any) (any, error)) Coercer {
	return func(v any, _ *Context) (Result, error) {
		if v == nil {
			return Done(nil), nil
		}
		out, err := fn(v)
		if err != nil {
			return Result{}, err
		}
		return Done(out), nil
	}
}

// Identity returns the value unchanged.
func Identity(v any, _ *Context) (Result, error) { return Done(v), nil }

// timeLayouts are tried in order by ToTime.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	time.DateOnly,
}

var (
	// ToInt converts numbers and numeric strings to int.
	ToInt = Stateless(func(v any) (any, error) {
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		if n < math.MinInt || n > math.MaxInt {
			return nil, fmt.Errorf("%d overflows int", n)
		}
		return int(n), nil
	})

	// ToInt64 converts numbers and numeric strings to int64.
	ToInt64 = Stateless(func(v any) (any, error) { return toInt64(v) })

	// ToFloat converts numbers and numeric strings to float64.
	ToFloat = Stateless(func(v any) (any, error) {
		switch v := v.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case string:
			return strconv.ParseFloat(strings.TrimSpace(v), 64)
		case json.Number:
			return v.Float64()
		case decimal.Decimal:
			return v.InexactFloat64(), nil
		case []byte:
			return strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
		}
		if n, err := toInt64(v); err == nil {
			return float64(n), nil
		}
		return nil, fmt.Errorf("cannot convert %T to float64", v)
	})

	// ToString converts any value to its string form.
	ToString = Stateless(func(v any) (any, error) {
		switch v := v.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		case fmt.Stringer:
			return v.String(), nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		}
		return fmt.Sprint(v), nil
	})

	// ToBool converts booleans, numbers and boolean strings to bool.
	ToBool = Stateless(func(v any) (any, error) {
		switch v := v.(type) {
		case bool:
			return v, nil
		case string:
			return strconv.ParseBool(strings.TrimSpace(v))
		case []byte:
			return strconv.ParseBool(strings.TrimSpace(string(v)))
		case float64:
			return v != 0, nil
		}
		n, err := toInt64(v)
		if err != nil {
			return nil, fmt.Errorf("cannot convert %T to bool", v)
		}
		return n != 0, nil
	})

	// ToTime converts time values, Unix seconds and formatted strings to time.Time.
	ToTime = Stateless(func(v any) (any, error) {
		switch v := v.(type) {
		case time.Time:
			return v, nil
		case *time.Time:
			if v == nil {
				return nil, nil
			}
			return *v, nil
		case string:
			return parseTime(v)
		case []byte:
			return parseTime(string(v))
		case float64:
			sec, frac := math.Modf(v)
			return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
		case json.Number:
			if _, err := v.Int64(); err != nil {
				f, err := v.Float64()
				if err != nil {
					return nil, err
				}
				sec, frac := math.Modf(f)
				return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
			}
		}
		n, err := toInt64(v)
		if err != nil {
			return nil, fmt.Errorf("cannot convert %T to time", v)
		}
		return time.Unix(n, 0).UTC(), nil
	})

	// ToUnix converts time values and numbers to Unix seconds (int64).
	ToUnix = Stateless(func(v any) (any, error) {
		switch v := v.(type) {
		case time.Time:
			return v.Unix(), nil
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
				return n, nil
			}
			t, err := parseTime(v)
			if err != nil {
				return nil, err
			}
			return t.Unix(), nil
		}
		return toInt64(v)
	})

	// ToUUID converts strings and 16-byte slices to uuid.UUID.
	ToUUID = Stateless(func(v any) (any, error) {
		switch v := v.(type) {
		case uuid.UUID:
			return v, nil
		case string:
			return uuid.Parse(strings.TrimSpace(v))
		case []byte:
			if len(v) == 16 {
				return uuid.FromBytes(v)
			}
			return uuid.ParseBytes(v)
		}
		return nil, fmt.Errorf("cannot convert %T to uuid", v)
	})

	// ToDecimal converts numbers and numeric strings to decimal.Decimal.
	ToDecimal = Stateless(func(v any) (any, error) {
		switch v := v.(type) {
		case decimal.Decimal:
			return v, nil
		case string:
			return decimal.NewFromString(strings.TrimSpace(v))
		case []byte:
			return decimal.NewFromString(strings.TrimSpace(string(v)))
		case json.Number:
			return decimal.NewFromString(v.String())
		case float64:
			return decimal.NewFromFloat(v), nil
		case float32:
			return decimal.NewFromFloat32(v), nil
		}
		n, err := toInt64(v)
		if err != nil {
			return nil, fmt.Errorf("cannot convert %T to decimal", v)
		}
		return decimal.NewFromInt(n), nil
	})

	// ToBytes converts strings to []byte.
	ToBytes = Stateless(func(v any) (any, error) {
		switch v := v.(type) {
		case []byte:
			return v, nil
		case string:
			return []byte(v), nil
		}
		return nil, fmt.Errorf("cannot convert %T to bytes", v)
	})

	// ToStrings converts a string or a collection of values to []string.
	ToStrings = Stateless(func(v any) (any, error) {
		switch v := v.(type) {
		case []string:
			return v, nil
		case string:
			return []string{v}, nil
		}
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, fmt.Errorf("cannot convert %T to []string", v)
		}
		out := make([]string, rv.Len())
		for i := range out {
			s, err := ToString(rv.Index(i).Interface(), nil)
			if err != nil {
				return nil, err
			}
			out[i], _ = s.Value.(string)
		}
		return out, nil
	})

	// ToJSON canonicalizes a payload into a fresh map[string]any by round
	// tripping it through JSON. Strings and byte slices are decoded.
	ToJSON = Stateless(func(v any) (any, error) {
		var raw []byte
		switch v := v.(type) {
		case string:
			raw = []byte(v)
		case []byte:
			raw = v
		case json.RawMessage:
			raw = v
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			raw = b
		}
		var out map[string]any
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		return out, nil
	})
)

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as time", s)
}

func toInt64(v any) (int64, error) {
	switch v := v.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", v)
		}
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", v)
		}
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || v > math.MaxInt64 || v < math.MinInt64 {
			return 0, fmt.Errorf("%v is not an integer", v)
		}
		return int64(v), nil
	case float32:
		return toInt64(float64(v))
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		f, err := v.Float64()
		if err != nil {
			return 0, err
		}
		return toInt64(f)
	case decimal.Decimal:
		if !v.IsInteger() {
			return 0, fmt.Errorf("%s is not an integer", v)
		}
		return v.IntPart(), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("cannot convert %T to integer", v)
}
