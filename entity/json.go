package entity

import (
	"bytes"
	"encoding/json"
	"time"
)

// MarshalJSON encodes the projection of the entity with keys in
// declaration order. Times are encoded in RFC 3339 with second precision,
// decimals as strings.
func (e *Entity) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range e.schema.Names() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := marshalValue(e.values[name])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalValue(v any) ([]byte, error) {
	switch v := v.(type) {
	case time.Time:
		return json.Marshal(v.Truncate(time.Second).Format(time.RFC3339))
	case *Entity:
		if v == nil {
			return []byte("null"), nil
		}
		return v.MarshalJSON()
	}
	return json.Marshal(v)
}
