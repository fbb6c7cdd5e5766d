package extract

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/msiextract/pkg/cab"
	"github.com/windowsadmins/msiextract/pkg/cfb"
	"github.com/windowsadmins/msiextract/pkg/msi"
	"github.com/windowsadmins/msiextract/pkg/msidb"
	"github.com/windowsadmins/msiextract/pkg/msidb/msidbtest"
	"github.com/windowsadmins/msiextract/pkg/retry"
)

var (
	fileColumns = []msidb.Column{
		msidbtest.Key(msidbtest.Str("File", 72)),
		msidbtest.Str("Component_", 72),
		msidbtest.Str("FileName", 255),
		msidbtest.Int4("FileSize"),
		msidbtest.Nullable(msidbtest.Int2("Attributes")),
		msidbtest.Int2("Sequence"),
	}
	componentColumns = []msidb.Column{
		msidbtest.Key(msidbtest.Str("Component", 72)),
		msidbtest.Str("Directory_", 72),
	}
	directoryColumns = []msidb.Column{
		msidbtest.Key(msidbtest.Str("Directory", 72)),
		msidbtest.Nullable(msidbtest.Str("Directory_Parent", 72)),
		msidbtest.Str("DefaultDir", 255),
	}
	mediaColumns = []msidb.Column{
		msidbtest.Key(msidbtest.Int2("DiskId")),
		msidbtest.Int2("LastSequence"),
		msidbtest.Nullable(msidbtest.Str("Cabinet", 255)),
	}
	propertyColumns = []msidb.Column{
		msidbtest.Key(msidbtest.Str("Property", 72)),
		msidbtest.Str("Value", 0),
	}
)

// samplePackage has one directory ROOT, a SUB directory below it and the
// given files, all stored on disk 1 in cabinet.
func samplePackage(cabinet string, files ...[]any) *msidbtest.Builder {
	return msidbtest.New().
		Table("Directory", directoryColumns,
			[]any{"ROOT", nil, "SourceDir"},
			[]any{"SUB", "ROOT", "sub"},
		).
		Table("Component", componentColumns,
			[]any{"c1", "ROOT"},
			[]any{"c2", "SUB"},
		).
		Table("File", fileColumns, files...).
		Table("Media", mediaColumns, []any{1, len(files), cabinet})
}

// fixture is a package on disk backed by an in-memory database.
type fixture struct {
	path    string
	out     string
	workDir string
	builder *msidbtest.Builder
	storage *cfb.File
	dbWrap  func(msi.Database) msi.Database
}

func newFixture(t *testing.T, b *msidbtest.Builder) *fixture {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.msi")
	require.NoError(t, os.WriteFile(path, []byte("placeholder"), 0o644))
	workDir := filepath.Join(dir, "work")
	require.NoError(t, os.Mkdir(workDir, 0o755))
	return &fixture{path: path, out: filepath.Join(dir, "out"), workDir: workDir, builder: b}
}

func (f *fixture) extractor(t *testing.T, opts ...Option) *Extractor {
	t.Helper()
	base := []Option{
		WithWorkDir(f.workDir),
		WithRetry(retry.RetryConfig{MaxRetries: 1}),
		withPackageOpener(func(path string) (*msi.Package, error) {
			var db msi.Database = f.builder.Database(t)
			if f.dbWrap != nil {
				db = f.dbWrap(db)
			}
			return msi.NewPackage(path, db), nil
		}),
		withStorageOpener(func(string) (*cfb.File, error) {
			if f.storage == nil {
				return f.builder.File(), nil
			}
			return f.storage, nil
		}),
	}
	return New(append(base, opts...)...)
}

func (f *fixture) request(rec *recorder) Request {
	return Request{PackagePath: f.path, OutputDir: f.out, OnProgress: rec.record}
}

// requireWorkDirEmpty checks that every temporary cabinet is gone.
func (f *fixture) requireWorkDirEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.workDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

// recorder collects progress events.
type recorder struct {
	mu     sync.Mutex
	events []ProgressEvent
	fail   func(ProgressEvent) error
}

func (r *recorder) record(e ProgressEvent) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	if r.fail != nil {
		return r.fail(e)
	}
	return nil
}

func (r *recorder) activities() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		s := e.Activity.String()
		if e.FileName != "" {
			s += "(" + e.FileName + ")"
		}
		out = append(out, s)
	}
	return out
}

func (r *recorder) count(a Activity) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Activity == a {
			n++
		}
	}
	return n
}

func (r *recorder) last() ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type fakeFile struct {
	entry cab.Entry
	data  []byte
}

// fakeEngine serves fixed entries per cabinet and records what it saw.
type fakeEngine struct {
	entries map[string][]fakeFile
	err     error

	archives  map[string][]byte
	cabinets  []string
	completed []string
}

func (e *fakeEngine) Unpack(ctx context.Context, names []string, uc cab.Context) error {
	e.archives = map[string][]byte{}
	for i, name := range names {
		r, err := uc.OpenArchive(i, name)
		if err != nil {
			return err
		}
		data, err := io.ReadAll(io.NewSectionReader(r, 0, 1<<30))
		r.Close()
		if err != nil {
			return err
		}
		e.archives[name] = data
		e.cabinets = append(e.cabinets, name)

		for _, f := range e.entries[name] {
			w, err := uc.CreateFile(f.entry)
			if err != nil {
				return err
			}
			if w == nil {
				continue
			}
			if _, err := w.Write(f.data); err != nil {
				w.Close()
				return err
			}
			if err := uc.CompleteFile(f.entry, w); err != nil {
				return err
			}
			e.completed = append(e.completed, f.entry.Name)
		}
	}
	return e.err
}

// noStreamsTable hides the _Streams table from the wrapped database.
type noStreamsTable struct {
	msi.Database
}

func (d noStreamsTable) OpenView(query string) (*msidb.View, error) {
	if strings.Contains(query, msidb.StreamsTable) {
		return nil, errors.New("table _Streams is not queryable")
	}
	return d.Database.OpenView(query)
}
