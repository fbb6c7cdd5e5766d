// Package cfb reads OLE compound files (structured storage), the container
// format of MSI and MSM packages. It only exposes what package extraction
// needs: the data streams stored directly under the root storage.
package cfb

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode"

	"github.com/richardlehane/mscfb"
)

// CabinetMagic is the signature that starts every cabinet archive.
var CabinetMagic = []byte("MSCF")

// Stream is a named data stream inside a compound file.
type Stream struct {
	Name string
	Size int64

	data io.ReaderAt
}

// NewStream wraps arbitrary data as a Stream.
func NewStream(name string, data io.ReaderAt, size int64) *Stream {
	return &Stream{Name: name, Size: size, data: data}
}

// Open returns a reader positioned at the start of the stream.
// Every call starts from offset zero.
func (s *Stream) Open() io.Reader {
	return io.NewSectionReader(s.data, 0, s.Size)
}

// HasMagic reports whether the stream begins with magic.
func (s *Stream) HasMagic(magic []byte) (bool, error) {
	if s.Size < int64(len(magic)) {
		return false, nil
	}
	head := make([]byte, len(magic))
	if _, err := s.data.ReadAt(head, 0); err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read header of stream %q: %w", s.Name, err)
	}
	return bytes.Equal(head, magic), nil
}

// File is an open compound file.
type File struct {
	f       *os.File
	streams []*Stream
}

// Open opens path as a compound file and indexes its root-level streams.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	doc, err := mscfb.New(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s is not a compound file: %w", path, err)
	}

	cf := &File{f: f}
	for {
		entry, err := doc.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("read directory of %s: %w", path, err)
		}
		if entry.FileInfo().IsDir() || len(entry.Path) != 0 {
			continue
		}
		cf.streams = append(cf.streams, NewStream(rawName(entry), entry, entry.Size))
	}
	return cf, nil
}

// rawName restores the control character mscfb strips from names such as
// "\x05SummaryInformation".
func rawName(entry *mscfb.File) string {
	if entry.Initial != 0 && !unicode.IsPrint(rune(entry.Initial)) {
		return string(rune(entry.Initial)) + entry.Name
	}
	return entry.Name
}

// NewFile assembles an in-memory compound file from streams.
func NewFile(streams ...*Stream) *File {
	return &File{streams: streams}
}

// Streams returns the data streams stored directly under the root storage,
// in directory order.
func (cf *File) Streams() []*Stream {
	return cf.streams
}

// Stream looks up a root-level stream by its raw name.
func (cf *File) Stream(name string) (*Stream, bool) {
	for _, s := range cf.streams {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// Close releases the underlying file.
func (cf *File) Close() error {
	if cf.f == nil {
		return nil
	}
	err := cf.f.Close()
	cf.f = nil
	return err
}

// FindMagic returns every stream that begins with magic.
func FindMagic(streams []*Stream, magic []byte) ([]*Stream, error) {
	var found []*Stream
	for _, s := range streams {
		ok, err := s.HasMagic(magic)
		if err != nil {
			return nil, err
		}
		if ok {
			found = append(found, s)
		}
	}
	return found, nil
}
