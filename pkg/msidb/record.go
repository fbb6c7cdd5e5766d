package msidb

import (
	"errors"
	"fmt"
	"io"
	"strconv"
)

type cellKind uint8

const (
	cellNull cellKind = iota
	cellInt
	cellString
	cellStream
)

// Cell is one value of a record.
type Cell struct {
	kind   cellKind
	i      int
	s      string
	stream func() (io.ReadCloser, error)
}

// NullCell returns an empty cell.
func NullCell() Cell { return Cell{} }

// IntCell returns an integer cell.
func IntCell(v int) Cell { return Cell{kind: cellInt, i: v} }

// StringCell returns a text cell.
func StringCell(s string) Cell { return Cell{kind: cellString, s: s} }

// StreamCell returns a binary cell. open is only called when the stream is read.
func StreamCell(open func() (io.ReadCloser, error)) Cell {
	return Cell{kind: cellStream, stream: open}
}

// Record is one fetched row. Fields are indexed from 0 in column order.
type Record struct {
	cells []Cell
}

// NewRecord builds a record from cells.
func NewRecord(cells ...Cell) Record {
	return Record{cells: cells}
}

// Len returns the number of fields.
func (r Record) Len() int { return len(r.cells) }

func (r Record) cell(i int) Cell {
	if i < 0 || i >= len(r.cells) {
		return Cell{}
	}
	return r.cells[i]
}

// IsNull reports whether field i is null or out of range.
func (r Record) IsNull(i int) bool {
	return r.cell(i).kind == cellNull
}

// Integer returns field i as an integer. Null fields and text that is not
// a number yield 0.
func (r Record) Integer(i int) int {
	c := r.cell(i)
	switch c.kind {
	case cellInt:
		return c.i
	case cellString:
		v, err := strconv.Atoi(c.s)
		if err != nil {
			return 0
		}
		return v
	}
	return 0
}

// String returns field i as text. Integers are formatted in decimal;
// null and stream fields yield "".
func (r Record) String(i int) string {
	c := r.cell(i)
	switch c.kind {
	case cellString:
		return c.s
	case cellInt:
		return strconv.Itoa(c.i)
	}
	return ""
}

// ErrNotStream is returned by Record.Stream for fields that hold no stream.
var ErrNotStream = errors.New("msidb: field is not a stream")

// Stream opens the binary payload of field i.
func (r Record) Stream(i int) (io.ReadCloser, error) {
	c := r.cell(i)
	if c.kind != cellStream {
		return nil, fmt.Errorf("%w: field %d", ErrNotStream, i)
	}
	return c.stream()
}
