package msidb

import (
	"fmt"
	"strings"
)

// Column type bits as stored in the _Columns table.
const (
	TypeSizeMask    = 0x00ff
	TypeValid       = 0x0100
	TypeLocalizable = 0x0200
	TypeShort       = 0x0400 // set on text and 2 byte integer columns
	TypeString      = 0x0800
	TypeNullable    = 0x1000
	TypeKey         = 0x2000
	TypeTemporary   = 0x4000
)

// Column describes one column of a table.
type Column struct {
	Table  string
	Number int // 1-based position
	Name   string
	Type   uint16
}

// Size is the declared size: the byte width of integers, the maximum length of strings.
func (c Column) Size() int { return int(c.Type & TypeSizeMask) }

// Nullable reports whether the column accepts null.
func (c Column) Nullable() bool { return c.Type&TypeNullable != 0 }

// Key reports whether the column is part of the primary key.
func (c Column) Key() bool { return c.Type&TypeKey != 0 }

// IsStream reports a binary column whose cells name a stream.
func (c Column) IsStream() bool {
	return c.Type&^TypeNullable == TypeString|TypeValid
}

// IsString reports a text column.
func (c Column) IsString() bool {
	return c.Type&TypeString != 0 && !c.IsStream() && !c.IsObject()
}

// IsInteger reports a 2 or 4 byte integer column.
func (c Column) IsInteger() bool {
	if c.Type&TypeString != 0 || c.IsObject() {
		return false
	}
	return c.Size() == 2 || c.Size() == 4
}

// IsObject reports a column whose cells are not persisted in the table
// stream. These show up in the _Tables of some packages.
func (c Column) IsObject() bool {
	return c.Type&TypeTemporary != 0 || c.Type&TypeValid == 0
}

// String renders the column definition in the short form used by
// installer tooling, e.g. "s72", "L0", "i2", "v0".
func (c Column) String() string {
	var letter byte
	switch {
	case c.IsObject():
		letter = 'o'
	case c.IsStream():
		letter = 'v'
	case c.Type&TypeLocalizable != 0:
		letter = 'l'
	case c.Type&TypeString != 0:
		letter = 's'
	default:
		letter = 'i'
	}
	def := string(letter)
	if c.Nullable() {
		def = strings.ToUpper(def)
	}
	return fmt.Sprintf("%s%d", def, c.Size())
}

// width is the number of bytes a cell of c occupies in the table stream.
func (c Column) width(refSize int) (int, error) {
	switch {
	case c.IsObject():
		return 0, nil
	case c.IsStream():
		return 2, nil
	case c.Type&TypeString != 0:
		return refSize, nil
	case c.Size() == 2:
		return 2, nil
	case c.Size() == 4:
		return 4, nil
	}
	return 0, fmt.Errorf("%w: column %s.%s has unsupported type %#04x", ErrCorrupt, c.Table, c.Name, c.Type)
}

// Schemas of the system tables, which are not described in _Columns.
var (
	tablesSchema = []Column{
		{Table: "_Tables", Number: 1, Name: "Name", Type: TypeValid | TypeString | TypeKey | 64},
	}
	columnsSchema = []Column{
		{Table: "_Columns", Number: 1, Name: "Table", Type: TypeValid | TypeString | TypeKey | 64},
		{Table: "_Columns", Number: 2, Name: "Number", Type: TypeValid | TypeKey | 2},
		{Table: "_Columns", Number: 3, Name: "Name", Type: TypeValid | TypeString | 64},
		{Table: "_Columns", Number: 4, Name: "Type", Type: TypeValid | 2},
	}
	streamsSchema = []Column{
		{Table: "_Streams", Number: 1, Name: "Name", Type: TypeValid | TypeString | TypeKey | 62},
		{Table: "_Streams", Number: 2, Name: "Data", Type: TypeValid | TypeString | TypeNullable},
	}
)
