package cfb

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func memStream(name string, data []byte) *Stream {
	return NewStream(name, bytes.NewReader(data), int64(len(data)))
}

func TestHasMagic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{name: "cabinet", data: []byte("MSCF\x00\x00\x00\x00payload"), want: true},
		{name: "exactly magic", data: []byte("MSCF"), want: true},
		{name: "other", data: []byte("PK\x03\x04"), want: false},
		{name: "short", data: []byte("MS"), want: false},
		{name: "empty", data: nil, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := memStream(tt.name, tt.data).HasMagic(CabinetMagic)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpenRewindsAfterPeek(t *testing.T) {
	t.Parallel()

	data := []byte("MSCF-the-whole-cabinet")
	s := memStream("cab", data)

	ok, err := s.HasMagic(CabinetMagic)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := io.ReadAll(s.Open())
	require.NoError(t, err)
	assert.Equal(t, data, got)

	again, err := io.ReadAll(s.Open())
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestFindMagic(t *testing.T) {
	t.Parallel()

	streams := []*Stream{
		memStream("strings", []byte("\x01\x00\x00\x00")),
		memStream("cab1", []byte("MSCFone")),
		memStream("binary", []byte("MZ\x90\x00")),
		memStream("cab2", []byte("MSCFtwo")),
	}

	found, err := FindMagic(streams, CabinetMagic)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "cab1", found[0].Name)
	assert.Equal(t, "cab2", found[1].Name)
}

// samplePackage is a compound file written by testdata/mksample.py: a small
// installer database, an embedded cabinet and a nested storage.
const samplePackage = "testdata/sample.msi"

func TestOpenListsRootStreams(t *testing.T) {
	t.Parallel()

	cf, err := Open(samplePackage)
	require.NoError(t, err)
	t.Cleanup(func() { cf.Close() })

	streams := cf.Streams()
	// Nine database streams, the cabinet and the summary information.
	require.Len(t, streams, 11)
	for _, s := range streams {
		assert.NotEqual(t, "Nested", s.Name, "storages are not streams")
		assert.NotEqual(t, "inner.cab", s.Name, "streams of nested storages are not root streams")
	}

	// Property set names keep their leading control character.
	_, ok := cf.Stream("SummaryInformation")
	assert.False(t, ok)
	summary, ok := cf.Stream("\x05SummaryInformation")
	require.True(t, ok)
	got, err := io.ReadAll(summary.Open())
	require.NoError(t, err)
	assert.Equal(t, append([]byte{0xfe, 0xff, 0, 0}, make([]byte, 44)...), got)
}

func TestOpenFindsEmbeddedCabinet(t *testing.T) {
	t.Parallel()

	cf, err := Open(samplePackage)
	require.NoError(t, err)
	t.Cleanup(func() { cf.Close() })

	found, err := FindMagic(cf.Streams(), CabinetMagic)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, int64(6141), found[0].Size)

	// Large enough to live in regular sectors rather than the mini stream.
	data, err := io.ReadAll(found[0].Open())
	require.NoError(t, err)
	require.Len(t, data, 6141)
	assert.Equal(t, CabinetMagic, data[:4])
	assert.Equal(t, 187, bytes.Count(data, []byte("sample tool binary payload line\n")))
}

func TestOpenRejectsOtherFiles(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "plain.msi")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("not a compound file "), 40), 0o644))

	_, err := Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not a compound file")

	_, err = Open(filepath.Join(t.TempDir(), "missing.msi"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDump(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "dump")
	streams := []*Stream{
		memStream("raw1", []byte("MSCFcabinet")),
		memStream("raw2", []byte("plain")),
	}

	entries, err := Dump(streams, dir, func(s string) string { return "decoded-" + s })
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "decoded-raw1", entries[0].Name)
	assert.True(t, entries[0].Cabinet)
	assert.False(t, entries[1].Cabinet)
	assert.Equal(t, int64(5), entries[1].Size)

	got, err := os.ReadFile(filepath.Join(dir, entries[1].File))
	require.NoError(t, err)
	assert.Equal(t, []byte("plain"), got)

	index, err := os.ReadFile(filepath.Join(dir, IndexFileName))
	require.NoError(t, err)
	var decoded []DumpEntry
	require.NoError(t, yaml.Unmarshal(index, &decoded))
	assert.Equal(t, entries, decoded)
}
