package msi

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// samplePath is written by pkg/cfb/testdata/mksample.py.
var samplePath = filepath.Join("..", "cfb", "testdata", "sample.msi")

func TestOpenPackageFile(t *testing.T) {
	t.Parallel()

	p, err := Open(samplePath)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	assert.True(t, p.HasTable("Media"))
	assert.False(t, p.HasTable("Registry"))

	props, err := Properties(p)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"Manufacturer":   "Example Corp",
		"ProductName":    "Sample Tool",
		"ProductVersion": "1.4.2",
	}, props)

	catalog, err := BuildCatalog(p)
	require.NoError(t, err)
	require.Len(t, catalog, 2)
	assert.Equal(t, "ReadmeTxt", catalog[0].FileKey)
	assert.Equal(t, "Sample Tool/docs/readme.txt", catalog[0].Path())
	assert.Equal(t, "ToolExe", catalog[1].FileKey)
	assert.Equal(t, "Sample Tool/tool.exe", catalog[1].Path())
	assert.Equal(t, "TOOL.EXE", catalog[1].ShortName)
	assert.Equal(t, "1.4.2.0", catalog[1].Version)
	assert.Equal(t, int64(6000), catalog[1].Size)

	media, err := ReadMedia(p)
	require.NoError(t, err)
	require.Len(t, media, 1)
	assert.True(t, media[0].Embedded())
	assert.Equal(t, "sample.cab", media[0].CabinetName())
	assert.Equal(t, "DISK1", media[0].VolumeLabel)
	assert.Empty(t, media[0].DiskPrompt)
}

func TestOpenPackageFileSnapshot(t *testing.T) {
	t.Parallel()

	p, err := Open(samplePath)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	snap, err := SnapshotTable(p, "Directory")
	require.NoError(t, err)
	assert.Equal(t, []ColumnSpec{
		{Name: "Directory", Kind: KindText},
		{Name: "Directory_Parent", Kind: KindText},
		{Name: "DefaultDir", Kind: KindText},
	}, snap.Columns)
	require.Len(t, snap.Rows, 3)
	assert.True(t, snap.Rows[0][1].Null)
	assert.Equal(t, "SAMPLE~1|Sample Tool", snap.Text(snap.Rows[1], "DefaultDir"))
}

func TestOpenRejectsNonPackage(t *testing.T) {
	t.Parallel()

	_, err := Open("package_test.go")
	assert.ErrorIs(t, err, ErrDatabase)
}
