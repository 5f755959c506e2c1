package store

import (
	"encoding/json"
	"reflect"
	"slices"

	"github.com/lib/pq"

	"github.com/syssam/consql/dialect"
	"github.com/syssam/consql/entity"
	"github.com/syssam/consql/schema/field"
)

var (
	stringsType = reflect.TypeFor[[]string]()
	entityType  = reflect.TypeFor[*entity.Entity]()
)

// bindValue converts a field value into a database argument. Lists and
// documents without a native column type are stored as JSON, string lists
// as arrays on Postgres.
func (s *Store) bindValue(v any) any {
	switch v := v.(type) {
	case []string:
		if s.renderer.Dialect() == dialect.Postgres {
			return pq.Array(v)
		}
		return encodeJSON(v)
	case map[string]any, []any:
		return encodeJSON(v)
	case *entity.Entity:
		if v == nil {
			return nil
		}
		return encodeJSON(v)
	}
	return v
}

func (s *Store) bindAll(vs []any) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = s.bindValue(v)
	}
	return out
}

func (s *Store) bindMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = s.bindValue(v)
	}
	return out
}

func encodeJSON(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	return string(b)
}

// scanValue decodes a stored column into a value the field pipeline can
// coerce. skip reports that the column must not be assigned, which is the
// case for nested entities: their stored form is a projection.
func (s *Store) scanValue(fd *field.Descriptor, v any) (_ any, skip bool) {
	raw, isText := textOf(v)
	if !isText {
		return v, false
	}
	if slices.Contains(fd.Types, entityType) {
		return nil, true
	}
	if !slices.Contains(fd.Types, stringsType) {
		return v, false
	}
	var out []string
	if s.renderer.Dialect() == dialect.Postgres && len(raw) > 0 && raw[0] == '{' {
		if err := pq.Array(&out).Scan([]byte(raw)); err == nil {
			return out, false
		}
	}
	if err := json.Unmarshal([]byte(raw), &out); err == nil {
		return out, false
	}
	return v, false
}

func textOf(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	}
	return "", false
}
