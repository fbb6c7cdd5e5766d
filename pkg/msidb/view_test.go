package msidb

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		query string
		want  Query
	}{
		{query: "SELECT * FROM `File`", want: Query{Table: "File"}},
		{query: "select * from Media", want: Query{Table: "Media"}},
		{
			query: "SELECT * FROM `_Streams` WHERE `Name` = 'data1.cab'",
			want:  Query{Table: "_Streams", Filter: true, FilterCol: "Name", FilterValue: "data1.cab"},
		},
		{
			query: "SELECT * FROM `Property` WHERE `Property` = 'it''s'",
			want:  Query{Table: "Property", Filter: true, FilterCol: "Property", FilterValue: "it's"},
		},
		{
			query: "SELECT * FROM `Media` WHERE `DiskId` = 2",
			want:  Query{Table: "Media", Filter: true, FilterCol: "DiskId", FilterValue: "2"},
		},
	}
	for _, tt := range tests {
		got, err := ParseQuery(tt.query)
		require.NoError(t, err, tt.query)
		assert.Equal(t, tt.want, got, tt.query)
	}
}

func TestParseQueryRejects(t *testing.T) {
	t.Parallel()

	for _, q := range []string{
		"",
		"SELECT `Name` FROM `File`",
		"DELETE FROM `File`",
		"SELECT * FROM `File` WHERE `A` > 1",
	} {
		_, err := ParseQuery(q)
		assert.ErrorIs(t, err, ErrInvalidQuery, q)
	}
}

func TestQuote(t *testing.T) {
	t.Parallel()

	q, err := ParseQuery("SELECT * FROM `Property` WHERE `Value` = '" + Quote("a'b''c") + "'")
	require.NoError(t, err)
	assert.Equal(t, "a'b''c", q.FilterValue)
}

func TestViewFetch(t *testing.T) {
	t.Parallel()

	v := NewView(nil, []Record{NewRecord(IntCell(1)), NewRecord(StringCell("2"))})

	r, err := v.Fetch()
	require.NoError(t, err)
	assert.Equal(t, 1, r.Integer(0))

	r, err = v.Fetch()
	require.NoError(t, err)
	assert.Equal(t, 2, r.Integer(0))
	assert.Equal(t, "2", r.String(0))

	_, err = v.Fetch()
	assert.ErrorIs(t, err, io.EOF)
	require.NoError(t, v.Close())
}

func TestRecordAccessors(t *testing.T) {
	t.Parallel()

	r := NewRecord(NullCell(), IntCell(-5), StringCell("abc"))
	assert.True(t, r.IsNull(0))
	assert.True(t, r.IsNull(7))
	assert.Equal(t, "-5", r.String(1))
	assert.Equal(t, 0, r.Integer(2))
	assert.Equal(t, 3, r.Len())

	_, err := r.Stream(2)
	assert.ErrorIs(t, err, ErrNotStream)
}
