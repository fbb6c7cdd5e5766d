// pkg/extract/extract.go

// Package extract pulls installable files out of MSI and MSM packages. It
// materializes the cabinets a package references, drives the cabinet codec
// over them, and writes every wanted entry to its resolved install path.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/windowsadmins/msiextract/pkg/cab"
	"github.com/windowsadmins/msiextract/pkg/cfb"
	"github.com/windowsadmins/msiextract/pkg/config"
	"github.com/windowsadmins/msiextract/pkg/logging"
	"github.com/windowsadmins/msiextract/pkg/msi"
	"github.com/windowsadmins/msiextract/pkg/retry"
	"github.com/windowsadmins/msiextract/pkg/rollback"
)

// Request describes one extraction.
type Request struct {
	PackagePath string
	OutputDir   string

	// Files limits the extraction to these catalog entries. Nil means
	// every file in the package; an empty non-nil slice extracts nothing.
	Files []msi.FileEntry

	// OnProgress is called synchronously on the extracting goroutine.
	OnProgress ProgressFunc
}

// Extractor runs extractions. It holds no per-package state, so one
// Extractor may serve concurrent calls.
type Extractor struct {
	engine  cab.Engine
	workDir string
	retry   retry.RetryConfig

	openPackage func(path string) (*msi.Package, error)
	openStorage func(path string) (*cfb.File, error)
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithEngine replaces the cabinet codec.
func WithEngine(e cab.Engine) Option {
	return func(x *Extractor) { x.engine = e }
}

// WithWorkDir sets the parent directory for temporary cabinets.
func WithWorkDir(dir string) Option {
	return func(x *Extractor) { x.workDir = dir }
}

// WithRetry sets how often removing a temporary cabinet is attempted.
func WithRetry(cfg retry.RetryConfig) Option {
	return func(x *Extractor) { x.retry = cfg }
}

func withPackageOpener(open func(string) (*msi.Package, error)) Option {
	return func(x *Extractor) { x.openPackage = open }
}

func withStorageOpener(open func(string) (*cfb.File, error)) Option {
	return func(x *Extractor) { x.openStorage = open }
}

// New returns an Extractor using the built-in cabinet reader and the
// system temp directory.
func New(opts ...Option) *Extractor {
	x := &Extractor{
		engine:      cab.NewUnpacker(),
		retry:       retry.RetryConfig{MaxRetries: 3, InitialInterval: 100 * time.Millisecond, Multiplier: 2},
		openPackage: msi.Open,
		openStorage: cfb.Open,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// NewFromConfig returns an Extractor honoring the work directory and
// delete retry settings of cfg.
func NewFromConfig(cfg *config.Configuration, opts ...Option) *Extractor {
	base := []Option{
		WithWorkDir(cfg.WorkDir),
		WithRetry(retry.RetryConfig{
			MaxRetries:      cfg.DeleteRetries,
			InitialInterval: time.Duration(cfg.DeleteRetryIntervalMs) * time.Millisecond,
			Multiplier:      2,
		}),
	}
	return New(append(base, opts...)...)
}

// Extract runs req to completion. See Run.
func (x *Extractor) Extract(ctx context.Context, req Request) error {
	return x.Run(ctx, req, NewProgress(req.OnProgress))
}

// Run extracts the files of req, publishing state to progress. Complete is
// reported exactly once on every return path, after temporary cabinets
// have been removed. A missing package completes with nothing extracted.
func (x *Extractor) Run(ctx context.Context, req Request, progress *Progress) (err error) {
	defer func() {
		if cerr := progress.complete(); cerr != nil {
			logging.Debug("Progress callback failed on completion", "error", cerr)
		}
	}()

	if req.PackagePath == "" {
		logging.Warn("No package given, nothing to extract")
		return nil
	}
	if _, statErr := os.Stat(req.PackagePath); statErr != nil {
		logging.Warn("Package not found, nothing to extract", "package", req.PackagePath, "error", statErr)
		return nil
	}
	if req.OutputDir == "" {
		return fmt.Errorf("%w: output directory is required", msi.ErrInvalidArgument)
	}

	pkg, err := x.openPackage(req.PackagePath)
	if err != nil {
		return err
	}
	defer pkg.Close()

	files := req.Files
	if files == nil {
		if files, err = msi.BuildCatalog(pkg); err != nil {
			return err
		}
	}
	progress.setTotal(len(files))
	if err := progress.report(Initializing, ""); err != nil {
		return err
	}

	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", msi.ErrIO, err)
	}
	wanted := indexByKey(files)

	media, err := msi.ReadMedia(pkg)
	if err != nil {
		return err
	}

	workDir, err := os.MkdirTemp(x.workDir, "msiextract-*")
	if err != nil {
		return fmt.Errorf("%w: %w", msi.ErrIO, err)
	}
	var cleanup rollback.RollbackManager
	cleanup.Add("remove work directory "+workDir, func() error { return os.RemoveAll(workDir) })
	defer func() {
		if cerr := cleanup.ExecuteRollback(); cerr != nil {
			logging.Warn("Failed to remove temporary cabinets", "error", cerr)
		}
	}()

	loc := &locator{pkg: pkg, workDir: workDir, openStorage: x.openStorage}
	cabs, err := loc.locate(ctx, media)
	for _, c := range cabs {
		cleanup.Add("delete cabinet "+c.SourceName, func() error { return x.removeForcefully(c.LocalPath) })
	}
	if err != nil {
		return err
	}
	logging.Info("Extracting package", "package", req.PackagePath, "files", len(wanted), "cabinets", len(cabs))

	progress.set(Uncompressing, "")
	s := &session{
		ctx:       ctx,
		cabs:      cabs,
		wanted:    wanted,
		outputDir: req.OutputDir,
		progress:  progress,
		open:      make(map[string]string),
	}
	if err := x.engine.Unpack(ctx, sourceNames(cabs), s); err != nil {
		if ctx.Err() != nil && !errors.Is(err, msi.ErrCanceled) && errors.Is(err, ctx.Err()) {
			return fmt.Errorf("%w: %w", msi.ErrCanceled, err)
		}
		return err
	}
	return nil
}

// indexByKey maps file keys to entries, keeping the first of duplicates.
func indexByKey(files []msi.FileEntry) map[string]msi.FileEntry {
	kept, dropped := msi.DedupeByKey(files)
	for _, d := range dropped {
		logging.Warn("Duplicate file key, keeping first entry", "file", d.FileKey, "dropped", d.LongName)
	}
	byKey := make(map[string]msi.FileEntry, len(kept))
	for _, f := range kept {
		byKey[f.FileKey] = f
	}
	return byKey
}

func sourceNames(cabs []LocalCabinet) []string {
	names := make([]string, len(cabs))
	for i, c := range cabs {
		names[i] = c.SourceName
	}
	return names
}

// removeForcefully deletes path, clearing a read-only attribute that
// blocks a plain delete.
func (x *Extractor) removeForcefully(path string) error {
	return retry.Retry(x.retry, func() error {
		err := os.Remove(path)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if cerr := clearReadOnly(path); cerr != nil {
			return errors.Join(err, cerr)
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	})
}

// session is the cab.Context of one unpack run.
type session struct {
	ctx       context.Context
	cabs      []LocalCabinet
	wanted    map[string]msi.FileEntry
	outputDir string
	progress  *Progress

	// open maps entries being written to their destination path.
	open map[string]string
}

func (s *session) OpenArchive(index int, name string) (cab.ArchiveReader, error) {
	if index < 0 || index >= len(s.cabs) {
		return nil, fmt.Errorf("%w: cabinet index %d out of range", msi.ErrInvalidArgument, index)
	}
	f, err := os.Open(s.cabs[index].LocalPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open cabinet %s: %w", msi.ErrIO, name, err)
	}
	return f, nil
}

func (s *session) CreateFile(e cab.Entry) (io.WriteCloser, error) {
	if err := s.ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", msi.ErrCanceled, err)
	}
	f, ok := s.wanted[e.Name]
	if !ok {
		logging.Debug("Skipping cabinet entry", "entry", e.Name)
		return nil, nil
	}

	dest, err := destinationPath(s.outputDir, f)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", msi.ErrIO, err)
	}
	w, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", msi.ErrIO, err)
	}
	s.open[e.Name] = dest
	return w, nil
}

func (s *session) CompleteFile(e cab.Entry, w io.WriteCloser) error {
	dest := s.open[e.Name]
	delete(s.open, e.Name)
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: %s: %w", msi.ErrIO, dest, err)
	}

	// Times first: a read-only file may refuse them.
	if !e.Modified.IsZero() {
		if err := os.Chtimes(dest, e.Modified, e.Modified); err != nil {
			return fmt.Errorf("%w: %w", msi.ErrIO, err)
		}
	}
	if err := setAttributes(dest, e.Attributes); err != nil {
		return fmt.Errorf("%w: %w", msi.ErrIO, err)
	}
	logging.Debug("Extracted file", "entry", e.Name, "path", dest)
	return s.progress.fileDone(e.Name)
}

// destinationPath joins the install path of f onto outputDir, refusing
// paths that leave it.
func destinationPath(outputDir string, f msi.FileEntry) (string, error) {
	if f.LongName == "" {
		return "", fmt.Errorf("%w: file %s has no name", msi.ErrCorruptPackage, f.FileKey)
	}
	dest := filepath.Join(outputDir, filepath.FromSlash(f.Path()))
	rel, err := filepath.Rel(outputDir, dest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: file %s resolves outside the output directory", msi.ErrCorruptPackage, f.FileKey)
	}
	return dest, nil
}
