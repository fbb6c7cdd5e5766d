// pkg/extract/locator.go

package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/windowsadmins/msiextract/pkg/cfb"
	"github.com/windowsadmins/msiextract/pkg/logging"
	"github.com/windowsadmins/msiextract/pkg/msi"
	"github.com/windowsadmins/msiextract/pkg/msidb"
)

// LocalCabinet is a cabinet materialized on disk for one extraction.
type LocalCabinet struct {
	// SourceName is the cabinet name from the Media table, without the
	// embedded marker.
	SourceName string
	LocalPath  string
}

// streamResult is the outcome of reading a cabinet through _Streams.
type streamResult int

const (
	streamFound streamResult = iota
	streamUnavailable
	streamMissing
)

func (r streamResult) String() string {
	switch r {
	case streamFound:
		return "found"
	case streamUnavailable:
		return "streams table unavailable"
	case streamMissing:
		return "no such stream"
	}
	return "unknown"
}

type locator struct {
	pkg         *msi.Package
	workDir     string
	openStorage func(path string) (*cfb.File, error)
}

// locate materializes the cabinet of every media entry under workDir. On
// error the cabinets located so far are still returned so the caller can
// remove them.
func (l *locator) locate(ctx context.Context, media []msi.MediaEntry) ([]LocalCabinet, error) {
	var cabs []LocalCabinet
	for _, m := range media {
		if !m.HasCabinet() {
			logging.Debug("Media entry has no cabinet", "disk", m.DiskID)
			continue
		}
		if err := ctx.Err(); err != nil {
			return cabs, fmt.Errorf("%w: %w", msi.ErrCanceled, err)
		}

		name := m.CabinetName()
		if located(cabs, name) {
			logging.Debug("Cabinet already located", "cabinet", name, "disk", m.DiskID)
			continue
		}
		dest := filepath.Join(l.workDir, fmt.Sprintf("%d-%s", m.DiskID, filepath.Base(filepath.FromSlash(name))))

		var err error
		if m.Embedded() {
			err = l.extractEmbedded(name, dest)
		} else {
			err = copyFile(filepath.Join(l.pkg.Dir(), name), dest)
		}
		if err != nil {
			return cabs, fmt.Errorf("cabinet %s: %w", name, err)
		}
		logging.Debug("Located cabinet", "cabinet", name, "embedded", m.Embedded(), "path", dest)
		cabs = append(cabs, LocalCabinet{SourceName: name, LocalPath: dest})
	}
	return cabs, nil
}

func located(cabs []LocalCabinet, name string) bool {
	for _, c := range cabs {
		if strings.EqualFold(c.SourceName, name) {
			return true
		}
	}
	return false
}

// extractEmbedded reads the cabinet from the _Streams table and falls back
// to scanning the raw compound file only when that table cannot be read.
func (l *locator) extractEmbedded(name, dest string) error {
	res, err := l.fromStreamsTable(name, dest)
	if err != nil {
		return err
	}
	switch res {
	case streamFound:
		return nil
	case streamMissing:
		// The table is readable; scanning would hand out another cabinet.
		return fmt.Errorf("%w: %s is not in %s", msi.ErrCabinetNotFound, name, msidb.StreamsTable)
	}
	logging.Debug("Falling back to compound file scan", "cabinet", name, "reason", res)
	return l.fromCompoundFile(dest)
}

func (l *locator) fromStreamsTable(name, dest string) (streamResult, error) {
	view, err := l.pkg.Query(fmt.Sprintf("SELECT * FROM `%s` WHERE `Name` = '%s'", msidb.StreamsTable, msidb.Quote(name)))
	if err != nil {
		logging.Debug("Streams table query failed", "cabinet", name, "error", err)
		return streamUnavailable, nil
	}
	defer view.Close()

	rec, err := view.Fetch()
	if errors.Is(err, io.EOF) {
		return streamMissing, nil
	}
	if err != nil {
		return streamUnavailable, nil
	}
	rc, err := rec.Stream(1)
	if err != nil {
		return streamUnavailable, nil
	}
	defer rc.Close()

	if err := writeFile(dest, rc); err != nil {
		return streamFound, err
	}
	return streamFound, nil
}

// fromCompoundFile copies the only root stream that starts with the
// cabinet signature.
func (l *locator) fromCompoundFile(dest string) error {
	cf, err := l.openStorage(l.pkg.Path())
	if err != nil {
		return fmt.Errorf("%w: %w", msi.ErrIO, err)
	}
	defer cf.Close()

	matches, err := cfb.FindMagic(cf.Streams(), cfb.CabinetMagic)
	if err != nil {
		return fmt.Errorf("%w: %w", msi.ErrIO, err)
	}
	switch len(matches) {
	case 0:
		return fmt.Errorf("%w: no stream of %s starts with %q", msi.ErrCabinetNotFound, l.pkg.Path(), cfb.CabinetMagic)
	case 1:
		return writeFile(dest, matches[0].Open())
	}

	names := make([]string, len(matches))
	for i, s := range matches {
		names[i], _ = msidb.DecodeStreamName(s.Name)
	}
	return fmt.Errorf("%w: %s", msi.ErrMultipleCandidates, strings.Join(names, ", "))
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: %w", msi.ErrIO, err)
	}
	defer in.Close()
	return writeFile(dest, in)
}

func writeFile(dest string, r io.Reader) error {
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %w", msi.ErrIO, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("%w: write %s: %w", msi.ErrIO, dest, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("%w: %w", msi.ErrIO, err)
	}
	return nil
}
