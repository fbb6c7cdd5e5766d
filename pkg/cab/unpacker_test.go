package cab

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/msiextract/pkg/cab/cabtest"
)

type bufferCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufferCloser) Close() error {
	b.closed = true
	return nil
}

type recordingContext struct {
	paths   []string
	skip    map[string]bool
	written map[string]*bufferCloser
	entries []Entry
	failOn  string
}

func (c *recordingContext) OpenArchive(index int, name string) (ArchiveReader, error) {
	return os.Open(c.paths[index])
}

func (c *recordingContext) CreateFile(e Entry) (io.WriteCloser, error) {
	if e.Name == c.failOn {
		return nil, errors.New("destination exists")
	}
	if c.skip[e.Name] {
		return nil, nil
	}
	w := &bufferCloser{}
	c.written[e.Name] = w
	return w, nil
}

func (c *recordingContext) CompleteFile(e Entry, w io.WriteCloser) error {
	c.entries = append(c.entries, e)
	return w.Close()
}

func writeCabinet(t *testing.T, name string, files ...cabtest.File) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, cabtest.Build(files...), 0o644))
	return p
}

func TestUnpackerWritesEntries(t *testing.T) {
	t.Parallel()

	mod := time.Date(2020, 5, 17, 10, 30, 12, 0, time.UTC)
	path := writeCabinet(t, "data1.cab",
		cabtest.File{Name: "f1", Data: []byte("hello"), Modified: mod, Attributes: AttrArchive},
		cabtest.File{Name: "f2", Data: []byte("skipped")},
		cabtest.File{Name: "f3", Data: bytes.Repeat([]byte("z"), 40000), Attributes: AttrReadOnly},
	)

	uc := &recordingContext{
		paths:   []string{path},
		skip:    map[string]bool{"f2": true},
		written: map[string]*bufferCloser{},
	}
	require.NoError(t, NewUnpacker().Unpack(context.Background(), []string{"data1.cab"}, uc))

	require.Contains(t, uc.written, "f1")
	assert.Equal(t, "hello", uc.written["f1"].String())
	assert.True(t, uc.written["f1"].closed)
	assert.NotContains(t, uc.written, "f2")
	assert.Equal(t, 40000, uc.written["f3"].Len())

	require.Len(t, uc.entries, 2)
	assert.Equal(t, "f1", uc.entries[0].Name)
	assert.Equal(t, int64(5), uc.entries[0].Size)
	assert.Equal(t, uint16(AttrArchive), uc.entries[0].Attributes)
	assert.True(t, uc.entries[1].ReadOnly())
}

func TestUnpackerStopsOnCallbackError(t *testing.T) {
	t.Parallel()

	path := writeCabinet(t, "data1.cab",
		cabtest.File{Name: "a", Data: []byte("1")},
		cabtest.File{Name: "b", Data: []byte("2")},
		cabtest.File{Name: "c", Data: []byte("3")},
	)
	uc := &recordingContext{paths: []string{path}, written: map[string]*bufferCloser{}, failOn: "b"}

	err := NewUnpacker().Unpack(context.Background(), []string{"data1.cab"}, uc)
	require.Error(t, err)
	assert.Contains(t, uc.written, "a")
	assert.NotContains(t, uc.written, "c")
}

func TestUnpackerHonorsContext(t *testing.T) {
	t.Parallel()

	path := writeCabinet(t, "data1.cab", cabtest.File{Name: "a", Data: []byte("1")})
	uc := &recordingContext{paths: []string{path}, written: map[string]*bufferCloser{}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewUnpacker().Unpack(ctx, []string{"data1.cab"}, uc)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, uc.written)
}

func TestUnpackerRejectsGarbage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.cab")
	require.NoError(t, os.WriteFile(path, []byte("not a cabinet at all"), 0o644))
	uc := &recordingContext{paths: []string{path}, written: map[string]*bufferCloser{}}

	err := NewUnpacker().Unpack(context.Background(), []string{"bad.cab"}, uc)
	assert.Error(t, err)
}
