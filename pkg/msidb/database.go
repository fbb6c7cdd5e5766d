// Package msidb is a read-only driver for the relational database stored
// inside Windows Installer packages.
//
// The database lives in a compound file: every table is a stream holding
// its cells column by column, strings are interned in a shared pool, and
// the schema is described by the _Tables and _Columns system tables.
package msidb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/windowsadmins/msiextract/pkg/cfb"
)

var (
	// ErrTableNotFound is returned when a query names a table the database does not have.
	ErrTableNotFound = errors.New("msidb: table not found")

	// ErrInvalidQuery is returned for statements outside the supported query shapes.
	ErrInvalidQuery = errors.New("msidb: invalid query")

	// ErrCorrupt is returned when the database streams are structurally invalid.
	ErrCorrupt = errors.New("msidb: corrupt database")
)

// Names of the system tables.
const (
	TablesTable  = "_Tables"
	ColumnsTable = "_Columns"
	StreamsTable = "_Streams"

	stringPoolStream = "_StringPool"
	stringDataStream = "_StringData"
)

// Database is an open, read-only MSI database.
type Database struct {
	file    *cfb.File
	order   []*cfb.Stream
	streams map[string]*cfb.Stream // raw compound file name -> stream
	pool    *StringPool
	tables  []string
	columns map[string][]Column
}

// Open opens the package at path read-only and loads its schema.
func Open(path string) (*Database, error) {
	f, err := cfb.Open(path)
	if err != nil {
		return nil, err
	}
	db, err := FromFile(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	return db, nil
}

// FromFile loads the database stored in an already open compound file.
// The database takes ownership of f.
func FromFile(f *cfb.File) (*Database, error) {
	db := &Database{
		file:    f,
		streams: make(map[string]*cfb.Stream),
		columns: make(map[string][]Column),
	}
	db.order = f.Streams()
	for _, s := range db.order {
		db.streams[s.Name] = s
	}

	pool, err := db.readTableStream(stringPoolStream)
	if err != nil {
		return nil, err
	}
	data, err := db.readTableStream(stringDataStream)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, fmt.Errorf("%w: missing string pool", ErrCorrupt)
	}
	if db.pool, err = ParseStringPool(pool, data); err != nil {
		return nil, err
	}

	if err := db.loadSchema(); err != nil {
		return nil, err
	}
	return db, nil
}

// readTableStream returns the contents of a table stream, or nil when the
// stream does not exist (tables without rows have no stream).
func (db *Database) readTableStream(table string) ([]byte, error) {
	s, ok := db.streams[EncodeStreamName(table, true)]
	if !ok {
		return nil, nil
	}
	data, err := io.ReadAll(s.Open())
	if err != nil {
		return nil, fmt.Errorf("read table stream %s: %w", table, err)
	}
	return data, nil
}

func (db *Database) loadSchema() error {
	tableRows, err := db.decodeTable(TablesTable, tablesSchema)
	if err != nil {
		return err
	}
	for _, r := range tableRows {
		db.tables = append(db.tables, r.String(0))
	}

	columnRows, err := db.decodeTable(ColumnsTable, columnsSchema)
	if err != nil {
		return err
	}
	for _, r := range columnRows {
		c := Column{
			Table:  r.String(0),
			Number: r.Integer(1),
			Name:   r.String(2),
			Type:   uint16(r.Integer(3)),
		}
		db.columns[c.Table] = append(db.columns[c.Table], c)
	}
	for _, cols := range db.columns {
		sort.Slice(cols, func(i, j int) bool { return cols[i].Number < cols[j].Number })
	}
	return nil
}

// Tables returns the names of the user tables in storage order.
func (db *Database) Tables() []string {
	return append([]string(nil), db.tables...)
}

// Columns returns the schema of table.
func (db *Database) Columns(table string) ([]Column, error) {
	switch table {
	case TablesTable:
		return tablesSchema, nil
	case ColumnsTable:
		return columnsSchema, nil
	case StreamsTable:
		return streamsSchema, nil
	}
	cols, ok := db.columns[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	return cols, nil
}

// OpenView runs query and returns its result. See ParseQuery for the
// accepted statements.
func (db *Database) OpenView(query string) (*View, error) {
	q, err := ParseQuery(query)
	if err != nil {
		return nil, err
	}

	cols, err := db.Columns(q.Table)
	if err != nil {
		return nil, err
	}

	var records []Record
	if q.Table == StreamsTable {
		records = db.streamRecords()
	} else if records, err = db.decodeTable(q.Table, cols); err != nil {
		return nil, err
	}
	return filterView(q, cols, records)
}

// Close releases the underlying compound file.
func (db *Database) Close() error {
	if db.file == nil {
		return nil
	}
	err := db.file.Close()
	db.file = nil
	return err
}

// streamRecords materializes the _Streams virtual table: every stream that
// is not a table, keyed by its decoded name.
func (db *Database) streamRecords() []Record {
	var records []Record
	for _, s := range db.order {
		name, table := DecodeStreamName(s.Name)
		if table || strings.HasPrefix(name, "\x05") {
			continue
		}
		records = append(records, NewRecord(
			StringCell(name),
			StreamCell(func() (io.ReadCloser, error) { return io.NopCloser(s.Open()), nil }),
		))
	}
	return records
}

// decodeTable reads a column-major table stream into records.
func (db *Database) decodeTable(table string, cols []Column) ([]Record, error) {
	data, err := db.readTableStream(table)
	if err != nil {
		return nil, err
	}

	widths := make([]int, len(cols))
	rowSize := 0
	for i, c := range cols {
		if widths[i], err = c.width(db.pool.RefSize()); err != nil {
			return nil, err
		}
		rowSize += widths[i]
	}
	if rowSize == 0 || len(data) == 0 {
		return nil, nil
	}
	rows := len(data) / rowSize

	records := make([]Record, rows)
	for r := range records {
		records[r].cells = make([]Cell, len(cols))
	}

	offset := 0
	for ci, c := range cols {
		w := widths[ci]
		for r := 0; r < rows; r++ {
			raw := readUint(data[offset+r*w : offset+(r+1)*w])
			cell, err := db.decodeCell(c, raw)
			if err != nil {
				return nil, fmt.Errorf("table %s row %d column %s: %w", table, r+1, c.Name, err)
			}
			records[r].cells[ci] = cell
		}
		offset += rows * w
	}

	for ci, c := range cols {
		if !c.IsStream() {
			continue
		}
		for r := range records {
			if name := streamCellName(table, cols, records[r]); name != "" {
				if s, ok := db.streams[EncodeStreamName(name, false)]; ok {
					records[r].cells[ci] = StreamCell(func() (io.ReadCloser, error) {
						return io.NopCloser(s.Open()), nil
					})
				}
			}
		}
	}
	return records, nil
}

func (db *Database) decodeCell(c Column, raw uint32) (Cell, error) {
	switch {
	case c.IsObject(), c.IsStream():
		return NullCell(), nil
	case c.Type&TypeString != 0:
		if raw == 0 {
			return NullCell(), nil
		}
		s, err := db.pool.Get(raw)
		if err != nil {
			return Cell{}, err
		}
		return StringCell(s), nil
	case raw == 0:
		return NullCell(), nil
	case c.Size() == 2:
		return IntCell(int(raw) - 0x8000), nil
	default:
		return IntCell(int(int32(raw ^ 0x80000000))), nil
	}
}

// streamCellName is the stream holding a binary cell: the table name
// followed by the primary key values, joined with dots.
func streamCellName(table string, cols []Column, r Record) string {
	parts := []string{table}
	for i, c := range cols {
		if !c.Key() {
			continue
		}
		if r.IsNull(i) {
			return ""
		}
		if c.IsInteger() {
			parts = append(parts, strconv.Itoa(r.Integer(i)))
		} else {
			parts = append(parts, r.String(i))
		}
	}
	return strings.Join(parts, ".")
}

func readUint(b []byte) uint32 {
	switch len(b) {
	case 2:
		return uint32(binary.LittleEndian.Uint16(b))
	case 3:
		return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
	case 4:
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}
