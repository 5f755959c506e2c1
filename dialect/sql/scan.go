package sql

import (
	"errors"
	"fmt"
)

// ScanMaps reads every remaining row into a column-name keyed map and
// closes rows. Byte slices are copied, so the maps outlive the scan.
func ScanMaps(rows ColumnScanner) (_ []map[string]any, rerr error) {
	defer func() { rerr = errors.Join(rerr, rows.Close()) }()
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: columns: %w", err)
	}
	var out []map[string]any
	for rows.Next() {
		m, err := scanRow(rows, columns)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dialect/sql: rows: %w", err)
	}
	return out, nil
}

// ScanMap reads the first row, if any, and closes rows.
func ScanMap(rows ColumnScanner) (map[string]any, bool, error) {
	ms, err := ScanMaps(rows)
	if err != nil || len(ms) == 0 {
		return nil, false, err
	}
	return ms[0], true, nil
}

func scanRow(rows ColumnScanner, columns []string) (map[string]any, error) {
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("dialect/sql: scan: %w", err)
	}
	m := make(map[string]any, len(columns))
	for i, c := range columns {
		if b, ok := values[i].([]byte); ok {
			values[i] = append([]byte(nil), b...)
		}
		m[c] = values[i]
	}
	return m, nil
}
