package msi

import (
	"errors"
)

// Properties returns the Property table as a map. A package without one
// yields an empty map.
func Properties(p *Package) (map[string]string, error) {
	props := make(map[string]string)
	table, err := SnapshotTable(p, "Property")
	if errors.Is(err, ErrNotFound) {
		return props, nil
	}
	if err != nil {
		return nil, err
	}
	for _, row := range table.Rows {
		props[table.Text(row, "Property")] = table.Text(row, "Value")
	}
	return props, nil
}
