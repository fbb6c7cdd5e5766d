package msidb

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// View is the result of a query. Fetch walks its records in order.
type View struct {
	columns []Column
	records []Record
	pos     int
}

// NewView returns a view over already materialized records.
func NewView(columns []Column, records []Record) *View {
	return &View{columns: columns, records: records}
}

// Columns describes the fields of every record in the view.
func (v *View) Columns() []Column {
	return v.columns
}

// Fetch returns the next record, or io.EOF after the last one.
func (v *View) Fetch() (Record, error) {
	if v.pos >= len(v.records) {
		return Record{}, io.EOF
	}
	r := v.records[v.pos]
	v.pos++
	return r, nil
}

// Close releases the view. Fetch returns io.EOF afterwards.
func (v *View) Close() error {
	v.records = nil
	v.pos = 0
	return nil
}

// Query is a parsed SELECT statement. Only whole-row selects with an
// optional single equality filter are supported.
type Query struct {
	Table string

	// Filter is set when the statement has a WHERE clause.
	Filter      bool
	FilterCol   string
	FilterValue string
}

var queryPattern = regexp.MustCompile("(?is)^\\s*SELECT\\s+\\*\\s+FROM\\s+`?([A-Za-z0-9_.]+)`?" +
	"(?:\\s+WHERE\\s+`?([A-Za-z0-9_.]+)`?\\s*=\\s*(?:'((?:[^']|'')*)'|(-?[0-9]+)))?\\s*$")

// ParseQuery parses a statement of the form
//
//	SELECT * FROM `Table` [WHERE `Column` = 'value' | number]
func ParseQuery(query string) (Query, error) {
	m := queryPattern.FindStringSubmatch(query)
	if m == nil {
		return Query{}, fmt.Errorf("%w: %q", ErrInvalidQuery, query)
	}
	q := Query{Table: m[1]}
	if m[2] != "" {
		q.Filter = true
		q.FilterCol = m[2]
		q.FilterValue = strings.ReplaceAll(m[3], "''", "'")
		if m[4] != "" {
			q.FilterValue = m[4]
		}
	}
	return q, nil
}

// Quote escapes s for use inside a single-quoted query literal.
func Quote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// filterView applies the equality filter of q to records.
func filterView(q Query, columns []Column, records []Record) (*View, error) {
	if !q.Filter {
		return NewView(columns, records), nil
	}

	idx := -1
	for i, c := range columns {
		if strings.EqualFold(c.Name, q.FilterCol) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w: table %s has no column %s", ErrInvalidQuery, q.Table, q.FilterCol)
	}

	var matched []Record
	for _, r := range records {
		if columns[idx].IsInteger() {
			want, err := strconv.Atoi(q.FilterValue)
			if err != nil || r.IsNull(idx) || r.Integer(idx) != want {
				continue
			}
		} else if r.String(idx) != q.FilterValue {
			continue
		}
		matched = append(matched, r)
	}
	return NewView(columns, matched), nil
}
