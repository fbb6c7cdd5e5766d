// Package cabtest writes small single-folder cabinets for tests.
package cabtest

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/klauspost/compress/flate"
)

// File is one cabinet entry.
type File struct {
	Name       string
	Data       []byte
	Modified   time.Time
	Attributes uint16
}

// Options controls how Build lays out the cabinet.
type Options struct {
	// MSZIP compresses the data blocks instead of storing them.
	MSZIP bool

	// DataReserve adds a per-block reserve area of this many bytes and
	// the header fields announcing it.
	DataReserve int
}

const (
	headerSize = 36
	folderSize = 8
	maxBlock   = 0x8000

	flagReservePresent = 0x0004
)

// Build returns a single-folder cabinet holding files, stored without
// compression.
func Build(files ...File) []byte {
	return BuildWith(Options{}, files...)
}

// BuildWith returns a single-folder cabinet holding files laid out as opts
// asks.
func BuildWith(opts Options, files ...File) []byte {
	var payload []byte
	var entries []byte
	for _, f := range files {
		date, tm := dosTime(f.Modified)
		entries = binary.LittleEndian.AppendUint32(entries, uint32(len(f.Data)))
		entries = binary.LittleEndian.AppendUint32(entries, uint32(len(payload)))
		entries = binary.LittleEndian.AppendUint16(entries, 0)
		entries = binary.LittleEndian.AppendUint16(entries, date)
		entries = binary.LittleEndian.AppendUint16(entries, tm)
		entries = binary.LittleEndian.AppendUint16(entries, f.Attributes)
		entries = append(entries, f.Name...)
		entries = append(entries, 0)
		payload = append(payload, f.Data...)
	}

	var blocks []byte
	count := 0
	var prev []byte
	for off := 0; off < len(payload); off += maxBlock {
		chunk := payload[off:min(off+maxBlock, len(payload))]
		data := chunk
		if opts.MSZIP {
			data = mszipBlock(chunk, prev)
			prev = chunk
		}
		blocks = binary.LittleEndian.AppendUint32(blocks, 0)
		blocks = binary.LittleEndian.AppendUint16(blocks, uint16(len(data)))
		blocks = binary.LittleEndian.AppendUint16(blocks, uint16(len(chunk)))
		blocks = append(blocks, make([]byte, opts.DataReserve)...)
		blocks = append(blocks, data...)
		count++
	}

	header := headerSize
	var flags uint16
	if opts.DataReserve > 0 {
		header += 4
		flags |= flagReservePresent
	}
	filesOffset := header + folderSize
	dataOffset := filesOffset + len(entries)
	total := dataOffset + len(blocks)

	out := []byte("MSCF")
	out = binary.LittleEndian.AppendUint32(out, 0)
	out = binary.LittleEndian.AppendUint32(out, uint32(total))
	out = binary.LittleEndian.AppendUint32(out, 0)
	out = binary.LittleEndian.AppendUint32(out, uint32(filesOffset))
	out = binary.LittleEndian.AppendUint32(out, 0)
	out = append(out, 3, 1)
	out = binary.LittleEndian.AppendUint16(out, 1)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(files)))
	out = binary.LittleEndian.AppendUint16(out, flags)
	out = binary.LittleEndian.AppendUint16(out, 0)
	out = binary.LittleEndian.AppendUint16(out, 0)
	if opts.DataReserve > 0 {
		out = binary.LittleEndian.AppendUint16(out, 0)
		out = append(out, 0, byte(opts.DataReserve))
	}

	var compression uint16
	if opts.MSZIP {
		compression = 1
	}
	out = binary.LittleEndian.AppendUint32(out, uint32(dataOffset))
	out = binary.LittleEndian.AppendUint16(out, uint16(count))
	out = binary.LittleEndian.AppendUint16(out, compression)

	out = append(out, entries...)
	return append(out, blocks...)
}

// mszipBlock deflates chunk with the previous block as its dictionary.
func mszipBlock(chunk, prev []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("CK")
	zw, err := flate.NewWriterDict(&buf, flate.BestCompression, prev)
	if err != nil {
		panic(err)
	}
	zw.Write(chunk)
	zw.Close()
	return buf.Bytes()
}

func dosTime(t time.Time) (date, tm uint16) {
	if t.IsZero() || t.Year() < 1980 {
		t = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	date = uint16(t.Year()-1980)<<9 | uint16(t.Month())<<5 | uint16(t.Day())
	tm = uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
	return date, tm
}
