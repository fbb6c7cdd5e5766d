package msi

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/windowsadmins/msiextract/pkg/msidb"
)

// BinaryPlaceholder replaces stream cells in snapshots. Payloads are only
// ever read by the extraction path.
const BinaryPlaceholder = "[Binary data]"

// ColumnKind classifies a column for presentation and sorting.
type ColumnKind int

const (
	KindText ColumnKind = iota
	KindInteger
	KindStream
	KindOpaque
)

func (k ColumnKind) String() string {
	switch k {
	case KindInteger:
		return "Integer"
	case KindText:
		return "Text"
	case KindStream:
		return "Stream"
	case KindOpaque:
		return "Opaque"
	}
	return fmt.Sprintf("ColumnKind(%d)", int(k))
}

// MarshalText renders the kind by name in YAML output.
func (k ColumnKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func kindOf(c msidb.Column) ColumnKind {
	switch {
	case c.IsObject():
		return KindOpaque
	case c.IsStream():
		return KindStream
	case c.IsInteger():
		return KindInteger
	default:
		return KindText
	}
}

// ColumnSpec names a column and its kind.
type ColumnSpec struct {
	Name string     `yaml:"name"`
	Kind ColumnKind `yaml:"kind"`
}

// Value is one snapshot cell.
type Value struct {
	Kind ColumnKind
	Null bool
	Int  int
	Text string
}

// String renders the value for display. Null cells render empty.
func (v Value) String() string {
	switch {
	case v.Kind == KindStream:
		return BinaryPlaceholder
	case v.Null:
		return ""
	case v.Kind == KindInteger:
		return strconv.Itoa(v.Int)
	}
	return v.Text
}

// Row is one snapshot row, aligned with TableSnapshot.Columns.
type Row []Value

// TableSnapshot is an immutable copy of one table.
type TableSnapshot struct {
	Name    string
	Columns []ColumnSpec
	Rows    []Row
}

// ColumnIndex returns the position of the named column, compared without
// case, or -1.
func (t *TableSnapshot) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

// IsEmpty reports whether the table has no rows.
func (t *TableSnapshot) IsEmpty() bool {
	return len(t.Rows) == 0
}

// Text returns the display form of the named column in row, or "" when
// the column does not exist.
func (t *TableSnapshot) Text(row Row, column string) string {
	i := t.ColumnIndex(column)
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i].String()
}

// Int returns the integer value of the named column in row. Text cells are
// parsed; missing columns, nulls and unparsable text yield 0.
func (t *TableSnapshot) Int(row Row, column string) int {
	i := t.ColumnIndex(column)
	if i < 0 || i >= len(row) {
		return 0
	}
	return intValue(row[i])
}

func intValue(v Value) int {
	if v.Null {
		return 0
	}
	if v.Kind == KindInteger {
		return v.Int
	}
	n, _ := strconv.Atoi(strings.TrimSpace(v.Text))
	return n
}

// SnapshotTable reads every row of table. If the table has a Sequence
// column the rows are ordered by it numerically, otherwise the database
// order is kept.
func SnapshotTable(p *Package, table string) (*TableSnapshot, error) {
	view, err := p.SelectAll(table)
	if err != nil {
		return nil, err
	}
	defer view.Close()

	cols := view.Columns()
	snap := &TableSnapshot{Name: table, Columns: make([]ColumnSpec, len(cols))}
	for i, c := range cols {
		snap.Columns[i] = ColumnSpec{Name: c.Name, Kind: kindOf(c)}
	}

	for {
		rec, err := view.Fetch()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: fetch %s: %w", ErrDatabase, table, err)
		}
		row := make(Row, len(cols))
		for i, spec := range snap.Columns {
			row[i] = cellValue(spec.Kind, rec, i)
		}
		snap.Rows = append(snap.Rows, row)
	}

	if seq := snap.ColumnIndex("Sequence"); seq >= 0 {
		sort.SliceStable(snap.Rows, func(i, j int) bool {
			return lessSequence(snap.Rows[i][seq], snap.Rows[j][seq])
		})
	}
	return snap, nil
}

func cellValue(kind ColumnKind, rec msidb.Record, i int) Value {
	switch kind {
	case KindStream:
		return Value{Kind: kind, Text: BinaryPlaceholder}
	case KindOpaque:
		return Value{Kind: kind, Null: true}
	case KindInteger:
		if rec.IsNull(i) {
			return Value{Kind: kind, Null: true}
		}
		return Value{Kind: kind, Int: rec.Integer(i)}
	default:
		if rec.IsNull(i) {
			return Value{Kind: kind, Null: true}
		}
		return Value{Kind: kind, Text: rec.String(i)}
	}
}

// lessSequence orders nulls first, then by numeric value.
func lessSequence(a, b Value) bool {
	if a.Null || b.Null {
		return a.Null && !b.Null
	}
	return intValue(a) < intValue(b)
}

// SnapshotAll snapshots every table of the package, ordered by name.
func SnapshotAll(p *Package) ([]*TableSnapshot, error) {
	names := p.Tables()
	sort.Strings(names)

	snaps := make([]*TableSnapshot, 0, len(names))
	for _, name := range names {
		snap, err := SnapshotTable(p, name)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}
