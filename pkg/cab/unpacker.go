package cab

import (
	"context"
	"fmt"
	"io"

	"github.com/windowsadmins/msiextract/pkg/logging"
)

// Unpacker is the default Engine. Cabinets are processed in order and
// entries in directory order.
type Unpacker struct{}

// NewUnpacker returns the default Engine.
func NewUnpacker() *Unpacker {
	return &Unpacker{}
}

// Unpack implements Engine.
func (u *Unpacker) Unpack(ctx context.Context, archives []string, uc Context) error {
	for i, name := range archives {
		if err := u.unpackArchive(ctx, i, name, uc); err != nil {
			return err
		}
	}
	return nil
}

func (u *Unpacker) unpackArchive(ctx context.Context, index int, name string, uc Context) error {
	r, err := uc.OpenArchive(index, name)
	if err != nil {
		return err
	}
	defer r.Close()

	fi, err := r.Stat()
	if err != nil {
		return fmt.Errorf("stat cabinet %s: %w", name, err)
	}
	cabinet, err := Open(r, fi.Size())
	if err != nil {
		return fmt.Errorf("open cabinet %s: %w", name, err)
	}
	logging.Debug("Unpacking cabinet", "cabinet", name, "entries", len(cabinet.Files))

	entries := &entryReader{c: cabinet}
	for _, f := range cabinet.Files {
		if err := ctx.Err(); err != nil {
			return err
		}
		e := Entry{
			Name:       f.Name,
			Size:       f.Size,
			Modified:   f.Modified,
			Attributes: f.Attributes,
		}
		if err := unpackEntry(entries, f, e, uc); err != nil {
			return err
		}
	}
	return nil
}

func unpackEntry(entries *entryReader, f *File, e Entry, uc Context) error {
	w, err := uc.CreateFile(e)
	if err != nil {
		return err
	}
	if w == nil {
		return nil
	}

	src, err := entries.open(f)
	if err != nil {
		w.Close()
		return fmt.Errorf("open entry %s: %w", e.Name, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		w.Close()
		return fmt.Errorf("decompress entry %s: %w", e.Name, err)
	}
	return uc.CompleteFile(e, w)
}
