// Package cab reads Microsoft cabinet archives and drives their
// decompression through a callback contract that an unpack session runs
// against. Stored and MSZIP folders are supported.
package cab

import (
	"context"
	"io"
	"io/fs"
	"time"
)

// Attribute bits stored with every cabinet entry.
const (
	AttrReadOnly = 0x01
	AttrHidden   = 0x02
	AttrSystem   = 0x04
	AttrArchive  = 0x20
	AttrExec     = 0x40
	AttrNameUTF  = 0x80
)

// Entry describes one file inside a cabinet.
type Entry struct {
	Name       string
	Size       int64
	Modified   time.Time
	Attributes uint16
}

// ReadOnly reports whether the entry carries the read-only attribute.
func (e Entry) ReadOnly() bool {
	return e.Attributes&AttrReadOnly != 0
}

// ArchiveReader is an open cabinet. *os.File satisfies it.
type ArchiveReader interface {
	io.ReaderAt
	io.Closer
	Stat() (fs.FileInfo, error)
}

// Context receives the callbacks of an unpack session.
type Context interface {
	// OpenArchive opens the cabinet at position index of the session.
	OpenArchive(index int, name string) (ArchiveReader, error)

	// CreateFile returns the destination for e. A nil writer with a nil
	// error skips the entry.
	CreateFile(e Entry) (io.WriteCloser, error)

	// CompleteFile is called once the entry has been written to w. It
	// owns closing w.
	CompleteFile(e Entry, w io.WriteCloser) error
}

// Engine unpacks a set of cabinets as one session. Errors returned by any
// Context callback abort the session and are returned unchanged.
type Engine interface {
	Unpack(ctx context.Context, archives []string, uc Context) error
}
