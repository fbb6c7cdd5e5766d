// Package msidbtest assembles small in-memory MSI databases for tests.
package msidbtest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/windowsadmins/msiextract/pkg/cfb"
	"github.com/windowsadmins/msiextract/pkg/msidb"
)

// Str declares a text column of the given maximum length.
func Str(name string, size int) msidb.Column {
	return msidb.Column{Name: name, Type: msidb.TypeValid | msidb.TypeString | msidb.TypeShort | uint16(size)}
}

// Int2 declares a 2 byte integer column.
func Int2(name string) msidb.Column {
	return msidb.Column{Name: name, Type: msidb.TypeValid | msidb.TypeShort | 2}
}

// Int4 declares a 4 byte integer column.
func Int4(name string) msidb.Column {
	return msidb.Column{Name: name, Type: msidb.TypeValid | 4}
}

// Binary declares a stream column.
func Binary(name string) msidb.Column {
	return msidb.Column{Name: name, Type: msidb.TypeValid | msidb.TypeString | msidb.TypeNullable}
}

// Key marks c as part of the primary key.
func Key(c msidb.Column) msidb.Column {
	c.Type |= msidb.TypeKey
	return c
}

// Nullable marks c as accepting null.
func Nullable(c msidb.Column) msidb.Column {
	c.Type |= msidb.TypeNullable
	return c
}

type table struct {
	name    string
	columns []msidb.Column
	rows    [][]any
}

type rawStream struct {
	name string
	data []byte
}

// Builder collects tables and streams. Row values are nil (null), int,
// string, or []byte for binary columns.
type Builder struct {
	tables  []table
	streams []rawStream

	strings []string
	ids     map[string]uint32
}

// New returns an empty builder.
func New() *Builder {
	return &Builder{ids: make(map[string]uint32)}
}

// Table adds a table with its rows.
func (b *Builder) Table(name string, columns []msidb.Column, rows ...[]any) *Builder {
	cols := make([]msidb.Column, len(columns))
	for i, c := range columns {
		c.Table = name
		c.Number = i + 1
		cols[i] = c
	}
	b.tables = append(b.tables, table{name: name, columns: cols, rows: rows})
	return b
}

// Stream adds a non-table stream under its encoded name.
func (b *Builder) Stream(name string, data []byte) *Builder {
	return b.RawStream(msidb.EncodeStreamName(name, false), data)
}

// RawStream adds a stream whose compound file name is used verbatim.
func (b *Builder) RawStream(raw string, data []byte) *Builder {
	b.streams = append(b.streams, rawStream{name: raw, data: data})
	return b
}

func (b *Builder) intern(s string) uint32 {
	if id, ok := b.ids[s]; ok {
		return id
	}
	b.strings = append(b.strings, s)
	id := uint32(len(b.strings))
	b.ids[s] = id
	return id
}

// File encodes everything into an in-memory compound file.
func (b *Builder) File() *cfb.File {
	var out []*cfb.Stream
	add := func(raw string, data []byte) {
		out = append(out, cfb.NewStream(raw, bytes.NewReader(data), int64(len(data))))
	}

	tableNames := make([][]any, 0, len(b.tables))
	var columnRows [][]any
	for _, t := range b.tables {
		tableNames = append(tableNames, []any{t.name})
		for _, c := range t.columns {
			columnRows = append(columnRows, []any{t.name, c.Number, c.Name, int(c.Type)})
		}
	}
	sysTables := msidb.Column{Name: "Name", Type: msidb.TypeValid | msidb.TypeString | msidb.TypeKey | 64}
	sysColumns := []msidb.Column{
		{Name: "Table", Type: msidb.TypeValid | msidb.TypeString | msidb.TypeKey | 64},
		{Name: "Number", Type: msidb.TypeValid | msidb.TypeKey | 2},
		{Name: "Name", Type: msidb.TypeValid | msidb.TypeString | 64},
		{Name: "Type", Type: msidb.TypeValid | 2},
	}

	add(msidb.EncodeStreamName(msidb.TablesTable, true), b.encodeTable("", []msidb.Column{sysTables}, tableNames, add))
	add(msidb.EncodeStreamName(msidb.ColumnsTable, true), b.encodeTable("", sysColumns, columnRows, add))
	for _, t := range b.tables {
		if len(t.rows) == 0 {
			continue
		}
		add(msidb.EncodeStreamName(t.name, true), b.encodeTable(t.name, t.columns, t.rows, add))
	}
	for _, s := range b.streams {
		add(s.name, s.data)
	}

	// The pool is written last so that every string above is interned.
	pool := binary.LittleEndian.AppendUint16(nil, 65001)
	pool = binary.LittleEndian.AppendUint16(pool, 0)
	var data []byte
	for _, s := range b.strings {
		pool = binary.LittleEndian.AppendUint16(pool, uint16(len(s)))
		pool = binary.LittleEndian.AppendUint16(pool, 1)
		data = append(data, s...)
	}
	add(msidb.EncodeStreamName("_StringPool", true), pool)
	add(msidb.EncodeStreamName("_StringData", true), data)

	return cfb.NewFile(out...)
}

// Database encodes the builder and opens it with the msidb driver.
func (b *Builder) Database(tb testing.TB) *msidb.Database {
	tb.Helper()
	db, err := msidb.FromFile(b.File())
	if err != nil {
		tb.Fatalf("open built database: %v", err)
	}
	return db
}

func (b *Builder) encodeTable(name string, cols []msidb.Column, rows [][]any, addStream func(string, []byte)) []byte {
	var buf []byte
	for ci, c := range cols {
		for _, row := range rows {
			var v any
			if ci < len(row) {
				v = row[ci]
			}
			switch {
			case c.IsObject():
				continue
			case c.IsStream():
				if payload, ok := v.([]byte); ok {
					addStream(msidb.EncodeStreamName(streamName(name, cols, row), false), payload)
				}
				buf = binary.LittleEndian.AppendUint16(buf, 0)
			case c.Type&msidb.TypeString != 0:
				var id uint32
				if s, ok := v.(string); ok {
					id = b.intern(s)
				}
				buf = binary.LittleEndian.AppendUint16(buf, uint16(id))
			case c.Size() == 2:
				var raw uint16
				if n, ok := v.(int); ok {
					raw = uint16(n + 0x8000)
				}
				buf = binary.LittleEndian.AppendUint16(buf, raw)
			default:
				var raw uint32
				if n, ok := v.(int); ok {
					raw = uint32(int32(n)) ^ 0x80000000
				}
				buf = binary.LittleEndian.AppendUint32(buf, raw)
			}
		}
	}
	return buf
}

func streamName(table string, cols []msidb.Column, row []any) string {
	parts := []string{table}
	for i, c := range cols {
		if !c.Key() || i >= len(row) {
			continue
		}
		switch v := row[i].(type) {
		case int:
			parts = append(parts, strconv.Itoa(v))
		default:
			parts = append(parts, fmt.Sprint(v))
		}
	}
	return strings.Join(parts, ".")
}
