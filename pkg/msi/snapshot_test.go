package msi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/msiextract/pkg/msidb"
	"github.com/windowsadmins/msiextract/pkg/msidb/msidbtest"
)

func TestSnapshotTableKinds(t *testing.T) {
	t.Parallel()

	p := openPackage(t, msidbtest.New().
		Table("Binary",
			[]msidb.Column{
				msidbtest.Key(msidbtest.Str("Name", 72)),
				msidbtest.Binary("Data"),
				{Name: "Scratch", Type: msidb.TypeValid | msidb.TypeTemporary | 2},
				msidbtest.Nullable(msidbtest.Int2("Order")),
			},
			[]any{"icon", []byte("GIF89a"), nil, 7},
			[]any{"logo", nil, nil, nil},
		))

	snap, err := SnapshotTable(p, "Binary")
	require.NoError(t, err)
	assert.Equal(t, []ColumnSpec{
		{Name: "Name", Kind: KindText},
		{Name: "Data", Kind: KindStream},
		{Name: "Scratch", Kind: KindOpaque},
		{Name: "Order", Kind: KindInteger},
	}, snap.Columns)

	require.Len(t, snap.Rows, 2)
	assert.Equal(t, "icon", snap.Rows[0][0].String())
	assert.Equal(t, BinaryPlaceholder, snap.Rows[0][1].String())
	assert.True(t, snap.Rows[0][2].Null)
	assert.Equal(t, 7, snap.Rows[0][3].Int)
	assert.Equal(t, BinaryPlaceholder, snap.Rows[1][1].String())
	assert.True(t, snap.Rows[1][3].Null)
	assert.Equal(t, "", snap.Rows[1][3].String())
}

func TestSnapshotTableSortsSequenceNumerically(t *testing.T) {
	t.Parallel()

	cols := []msidb.Column{
		msidbtest.Key(msidbtest.Str("Action", 72)),
		msidbtest.Nullable(msidbtest.Int2("Sequence")),
	}
	p := openPackage(t, msidbtest.New().Table("InstallExecuteSequence", cols,
		[]any{"ten", 10},
		[]any{"one", 1},
		[]any{"two", 2},
		[]any{"none", nil},
		[]any{"one-again", 1},
	))

	snap, err := SnapshotTable(p, "InstallExecuteSequence")
	require.NoError(t, err)

	var order []string
	for _, row := range snap.Rows {
		order = append(order, snap.Text(row, "Action"))
	}
	assert.Equal(t, []string{"none", "one", "one-again", "two", "ten"}, order)

	for i := 1; i < len(snap.Rows); i++ {
		prev, cur := snap.Rows[i-1][1], snap.Rows[i][1]
		if !prev.Null && !cur.Null {
			assert.LessOrEqual(t, prev.Int, cur.Int)
		}
	}
}

func TestSnapshotTableKeepsOrderWithoutSequence(t *testing.T) {
	t.Parallel()

	p := openPackage(t, installerPackage())
	snap, err := SnapshotTable(p, "Property")
	require.NoError(t, err)
	require.Len(t, snap.Rows, 2)
	assert.Equal(t, "ProductName", snap.Text(snap.Rows[0], "property"))
	assert.Equal(t, "ProductVersion", snap.Text(snap.Rows[1], "Property"))
}

func TestSnapshotTableIdempotent(t *testing.T) {
	t.Parallel()

	p := openPackage(t, installerPackage())
	first, err := SnapshotTable(p, "File")
	require.NoError(t, err)
	second, err := SnapshotTable(p, "File")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSnapshotTableNotFound(t *testing.T) {
	t.Parallel()

	p := openPackage(t, installerPackage())
	_, err := SnapshotTable(p, "Registry")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, msidb.ErrTableNotFound)
}

func TestSnapshotAllOrdersByName(t *testing.T) {
	t.Parallel()

	p := openPackage(t, installerPackage())
	snaps, err := SnapshotAll(p)
	require.NoError(t, err)

	var names []string
	for _, s := range snaps {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"Component", "Directory", "File", "Media", "Property"}, names)
}

func TestColumnKindString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Integer", KindInteger.String())
	assert.Equal(t, "Opaque", KindOpaque.String())
	text, err := KindStream.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "Stream", string(text))
}
