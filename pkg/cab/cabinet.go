package cab

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/klauspost/compress/flate"
	"golang.org/x/text/encoding/charmap"
)

var (
	// ErrFormat is returned when the data is not a well-formed cabinet.
	ErrFormat = errors.New("cab: invalid cabinet")

	// ErrUnsupported is returned for cabinets this reader cannot decode:
	// LZX or Quantum folders and entries continued across cabinets.
	ErrUnsupported = errors.New("cab: unsupported cabinet feature")
)

// Folder compression methods, the low nibble of typeCompress.
const (
	compressNone    = 0
	compressMSZIP   = 1
	compressQuantum = 2
	compressLZX     = 3
	compressMask    = 0x000f
)

const (
	flagPrevCabinet    = 0x0001
	flagNextCabinet    = 0x0002
	flagReservePresent = 0x0004

	// iFolder values of entries that span cabinets.
	folderContinuedFromPrev    = 0xfffd
	folderContinuedToNext      = 0xfffe
	folderContinuedPrevAndNext = 0xffff

	maxBlockSize = 0x8000
)

var cabinetSignature = []byte("MSCF")

// File is one entry of a cabinet.
type File struct {
	Name       string
	Size       int64
	Modified   time.Time
	Attributes uint16

	folder int
	offset int64 // in the uncompressed folder stream
}

type folder struct {
	dataOffset  int64
	blocks      int
	compression uint16
}

// Cabinet is a parsed cabinet directory. Entry data is decoded on demand.
type Cabinet struct {
	Files []*File

	r           io.ReaderAt
	folders     []folder
	dataReserve int
}

// Open parses the header, folder and file tables of the cabinet in r.
func Open(r io.ReaderAt, size int64) (*Cabinet, error) {
	br := bufio.NewReader(io.NewSectionReader(r, 0, size))

	var hdr struct {
		Signature    [4]byte
		_            uint32
		CabinetSize  uint32
		_            uint32
		FilesOffset  uint32
		_            uint32
		VersionMinor uint8
		VersionMajor uint8
		Folders      uint16
		Files        uint16
		Flags        uint16
		SetID        uint16
		Index        uint16
	}
	if err := binary.Read(br, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrFormat, err)
	}
	if !bytes.Equal(hdr.Signature[:], cabinetSignature) {
		return nil, fmt.Errorf("%w: bad signature %q", ErrFormat, hdr.Signature[:])
	}

	c := &Cabinet{r: r}
	folderReserve := 0
	if hdr.Flags&flagReservePresent != 0 {
		var reserve struct {
			Header uint16
			Folder uint8
			Data   uint8
		}
		if err := binary.Read(br, binary.LittleEndian, &reserve); err != nil {
			return nil, fmt.Errorf("%w: reserve sizes: %w", ErrFormat, err)
		}
		if _, err := br.Discard(int(reserve.Header)); err != nil {
			return nil, fmt.Errorf("%w: header reserve: %w", ErrFormat, err)
		}
		folderReserve = int(reserve.Folder)
		c.dataReserve = int(reserve.Data)
	}
	for _, present := range []bool{hdr.Flags&flagPrevCabinet != 0, hdr.Flags&flagNextCabinet != 0} {
		if !present {
			continue
		}
		// Cabinet and disk name of the neighbor in the set.
		for i := 0; i < 2; i++ {
			if _, err := br.ReadBytes(0); err != nil {
				return nil, fmt.Errorf("%w: cabinet set names: %w", ErrFormat, err)
			}
		}
	}

	for i := 0; i < int(hdr.Folders); i++ {
		var f struct {
			DataOffset  uint32
			Blocks      uint16
			Compression uint16
		}
		if err := binary.Read(br, binary.LittleEndian, &f); err != nil {
			return nil, fmt.Errorf("%w: folder %d: %w", ErrFormat, i, err)
		}
		if _, err := br.Discard(folderReserve); err != nil {
			return nil, fmt.Errorf("%w: folder %d reserve: %w", ErrFormat, i, err)
		}
		c.folders = append(c.folders, folder{
			dataOffset:  int64(f.DataOffset),
			blocks:      int(f.Blocks),
			compression: f.Compression,
		})
	}

	if int64(hdr.FilesOffset) >= size {
		return nil, fmt.Errorf("%w: file table at %d beyond end", ErrFormat, hdr.FilesOffset)
	}
	br = bufio.NewReader(io.NewSectionReader(r, int64(hdr.FilesOffset), size-int64(hdr.FilesOffset)))
	for i := 0; i < int(hdr.Files); i++ {
		f, err := readFile(br)
		if err != nil {
			return nil, fmt.Errorf("%w: file %d: %w", ErrFormat, i, err)
		}
		c.Files = append(c.Files, f)
	}
	return c, nil
}

func readFile(br *bufio.Reader) (*File, error) {
	var e struct {
		Size        uint32
		FolderStart uint32
		Folder      uint16
		Date        uint16
		Time        uint16
		Attributes  uint16
	}
	if err := binary.Read(br, binary.LittleEndian, &e); err != nil {
		return nil, err
	}
	raw, err := br.ReadBytes(0)
	if err != nil {
		return nil, err
	}
	return &File{
		Name:       decodeName(raw[:len(raw)-1], e.Attributes),
		Size:       int64(e.Size),
		Modified:   dosTime(e.Date, e.Time),
		Attributes: e.Attributes,
		folder:     int(e.Folder),
		offset:     int64(e.FolderStart),
	}, nil
}

// decodeName returns the entry name as UTF-8. Names without the UTF-8
// attribute are in the ANSI code page of the authoring machine.
func decodeName(raw []byte, attrs uint16) string {
	if attrs&AttrNameUTF != 0 || utf8.Valid(raw) {
		return string(raw)
	}
	s, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(s)
}

// dosTime converts a FAT date and time, which carry no zone, as local time.
func dosTime(d, t uint16) time.Time {
	if d == 0 {
		return time.Time{}
	}
	return time.Date(
		1980+int(d>>9), time.Month(d>>5&0x0f), int(d&0x1f),
		int(t>>11), int(t>>5&0x3f), int(t&0x1f)*2, 0, time.Local)
}

// folderStream decodes the data blocks of one folder in order.
type folderStream struct {
	c       *Cabinet
	f       folder
	next    int64 // offset of the next CFDATA block
	block   int
	pending []byte
	history []byte
}

func (c *Cabinet) openFolder(index int) (*folderStream, error) {
	if index < 0 || index >= len(c.folders) {
		return nil, fmt.Errorf("%w: folder %d of %d", ErrFormat, index, len(c.folders))
	}
	f := c.folders[index]
	switch f.compression & compressMask {
	case compressNone, compressMSZIP:
	case compressLZX:
		// TODO: decode LZX folders; WiX "high" compression writes them.
		return nil, fmt.Errorf("%w: LZX compression", ErrUnsupported)
	case compressQuantum:
		return nil, fmt.Errorf("%w: Quantum compression", ErrUnsupported)
	default:
		return nil, fmt.Errorf("%w: compression type %#x", ErrFormat, f.compression)
	}
	return &folderStream{c: c, f: f, next: f.dataOffset}, nil
}

func (s *folderStream) Read(p []byte) (int, error) {
	for len(s.pending) == 0 {
		if s.block >= s.f.blocks {
			return 0, io.EOF
		}
		if err := s.readBlock(); err != nil {
			return 0, err
		}
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *folderStream) readBlock() error {
	hdr := make([]byte, 8)
	if _, err := s.c.r.ReadAt(hdr, s.next); err != nil {
		return fmt.Errorf("%w: data block %d header: %w", ErrFormat, s.block, err)
	}
	packed := int(binary.LittleEndian.Uint16(hdr[4:]))
	unpacked := int(binary.LittleEndian.Uint16(hdr[6:]))
	if unpacked == 0 {
		return fmt.Errorf("%w: data block %d continues in the next cabinet", ErrUnsupported, s.block)
	}
	if unpacked > maxBlockSize {
		return fmt.Errorf("%w: data block %d expands to %d bytes", ErrFormat, s.block, unpacked)
	}

	data := make([]byte, packed)
	if _, err := s.c.r.ReadAt(data, s.next+8+int64(s.c.dataReserve)); err != nil {
		return fmt.Errorf("%w: data block %d: %w", ErrFormat, s.block, err)
	}
	s.next += 8 + int64(s.c.dataReserve) + int64(packed)
	s.block++

	if s.f.compression&compressMask == compressNone {
		if packed != unpacked {
			return fmt.Errorf("%w: stored block of %d bytes declares %d", ErrFormat, packed, unpacked)
		}
		s.pending = data
		return nil
	}

	out, err := s.inflate(data, unpacked)
	if err != nil {
		return fmt.Errorf("%w: data block %d: %w", ErrFormat, s.block-1, err)
	}
	s.pending = out
	return nil
}

// inflate decodes one MSZIP block: "CK" followed by a deflate stream whose
// back references may reach into the previous block.
func (s *folderStream) inflate(data []byte, unpacked int) ([]byte, error) {
	if len(data) < 2 || data[0] != 'C' || data[1] != 'K' {
		return nil, errors.New("missing MSZIP signature")
	}
	zr := flate.NewReaderDict(bytes.NewReader(data[2:]), s.history)
	defer zr.Close()

	out := make([]byte, unpacked)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, err
	}
	s.history = out
	return out, nil
}

// entryReader serves the entries of a cabinet, reusing one folder stream
// while entries move forward through the same folder.
type entryReader struct {
	c      *Cabinet
	folder int
	stream *folderStream
	pos    int64
}

func (e *entryReader) open(f *File) (io.Reader, error) {
	switch f.folder {
	case folderContinuedFromPrev, folderContinuedToNext, folderContinuedPrevAndNext:
		return nil, fmt.Errorf("%w: %s spans cabinets", ErrUnsupported, f.Name)
	}
	if e.stream == nil || e.folder != f.folder || f.offset < e.pos {
		s, err := e.c.openFolder(f.folder)
		if err != nil {
			return nil, err
		}
		e.stream, e.folder, e.pos = s, f.folder, 0
	}
	if skip := f.offset - e.pos; skip > 0 {
		n, err := io.CopyN(io.Discard, e, skip)
		if err != nil {
			return nil, fmt.Errorf("seek to %s (%d of %d bytes): %w", f.Name, n, skip, err)
		}
	}
	return &exactReader{r: io.LimitReader(e, f.Size), left: f.Size}, nil
}

func (e *entryReader) Read(p []byte) (int, error) {
	n, err := e.stream.Read(p)
	e.pos += int64(n)
	return n, err
}

// exactReader turns a premature end of the folder into an error.
type exactReader struct {
	r    io.Reader
	left int64
}

func (x *exactReader) Read(p []byte) (int, error) {
	n, err := x.r.Read(p)
	x.left -= int64(n)
	if err == io.EOF && x.left > 0 {
		return n, fmt.Errorf("%w: entry truncated, %d bytes missing", ErrFormat, x.left)
	}
	return n, err
}
