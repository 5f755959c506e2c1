package entity

import (
	"fmt"
	"iter"

	"github.com/syssam/consql"
)

// Mode selects the fields visited by Items.
type Mode string

// Iteration modes.
const (
	ByDirty Mode = "dirty"
	ByAll   Mode = "all"
)

// IsDirty reports whether the field changed since the last Clean.
func (e *Entity) IsDirty(name string) (bool, error) {
	if !e.schema.Has(name) {
		return false, consql.NewUnknownFieldError(e.schema.Name(), name)
	}
	_, ok := e.dirty[name]
	return ok, nil
}

// SetDirty sets dirty flags from a map[string]bool or from alternating
// name/flag arguments. Undeclared names are skipped.
//
//	e.SetDirty("status", true, "created", false)
//	e.SetDirty(map[string]bool{"status": true})
func (e *Entity) SetDirty(args ...any) error {
	pairs, err := pairsOf("SetDirty", args, func(v any) (any, bool) {
		b, ok := v.(bool)
		return b, ok
	})
	if err != nil {
		return err
	}
	for _, p := range pairs {
		if !e.schema.Has(p.name) {
			continue
		}
		if p.value.(bool) {
			e.dirty[p.name] = struct{}{}
		} else {
			delete(e.dirty, p.name)
		}
	}
	return nil
}

// Clean empties the dirty set.
func (e *Entity) Clean() {
	clear(e.dirty)
}

// Snapshot returns the dirty field names in declaration order. The entity
// is not modified.
func (e *Entity) Snapshot() []string {
	names := make([]string, 0, len(e.dirty))
	for _, name := range e.schema.Names() {
		if _, ok := e.dirty[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

// Items iterates over (name, value) pairs of either the dirty fields or all
// fields, in declaration order.
func (e *Entity) Items(mode Mode) (iter.Seq2[string, any], error) {
	switch mode {
	case ByAll:
		return e.All(), nil
	case ByDirty:
		return func(yield func(string, any) bool) {
			for _, name := range e.schema.Names() {
				if _, ok := e.dirty[name]; !ok {
					continue
				}
				if !yield(name, e.values[name]) {
					return
				}
			}
		}, nil
	default:
		return nil, consql.NewUsageError("Items", fmt.Sprintf("unsupported mode %q", mode))
	}
}
