package msidb

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

const (
	longRefFlag  = 0x8000
	shortRefSize = 2
	longRefSize  = 3
)

// StringPool holds the interned strings every string cell refers to.
// Id 0 is the null string.
type StringPool struct {
	Codepage int

	refSize int
	strings []string
}

// RefSize is the width in bytes of a string reference in table data.
func (sp *StringPool) RefSize() int {
	return sp.refSize
}

// Len returns the number of ids in the pool, including the null id.
func (sp *StringPool) Len() int {
	return len(sp.strings)
}

// Get resolves a string id.
func (sp *StringPool) Get(id uint32) (string, error) {
	if int64(id) >= int64(len(sp.strings)) {
		return "", fmt.Errorf("%w: string id %d out of range (pool has %d)", ErrCorrupt, id, len(sp.strings))
	}
	return sp.strings[id], nil
}

// ParseStringPool decodes the _StringPool and _StringData streams.
//
// The pool stream starts with a 4 byte header (codepage, flags) followed by
// one (length, refcount) pair of uint16 per string id. A string longer than
// 0xFFFF bytes occupies two pairs: a zero length marker followed by the
// 32 bit length.
func ParseStringPool(pool, data []byte) (*StringPool, error) {
	sp := &StringPool{refSize: shortRefSize, strings: []string{""}}
	if len(pool) < 4 {
		return sp, nil
	}

	word := func(i int) uint16 { return binary.LittleEndian.Uint16(pool[i*2:]) }
	count := len(pool) / 4

	sp.Codepage = int(word(0)) | int(word(1)&^longRefFlag)<<16
	if word(1)&longRefFlag != 0 {
		sp.refSize = longRefSize
	}
	dec := decoderFor(sp.Codepage)

	offset := 0
	for i := 1; i < count; {
		length := int(word(i * 2))
		refs := word(i*2 + 1)

		if length == 0 && refs == 0 {
			sp.strings = append(sp.strings, "")
			i++
			continue
		}
		if length == 0 {
			if i+1 >= count {
				return nil, fmt.Errorf("%w: truncated long string entry at id %d", ErrCorrupt, len(sp.strings))
			}
			length = int(word(i*2+3))<<16 | int(word(i*2+2))
			i += 2
		} else {
			i++
		}

		if offset+length > len(data) {
			return nil, fmt.Errorf("%w: string data too short for id %d", ErrCorrupt, len(sp.strings))
		}
		s, err := decodeString(dec, data[offset:offset+length])
		if err != nil {
			return nil, fmt.Errorf("%w: string id %d: %v", ErrCorrupt, len(sp.strings), err)
		}
		sp.strings = append(sp.strings, s)
		offset += length
	}
	return sp, nil
}

func decodeString(dec *encoding.Decoder, raw []byte) (string, error) {
	if dec == nil {
		if utf8.Valid(raw) {
			return string(raw), nil
		}
		dec = charmap.Windows1252.NewDecoder()
	}
	b, err := dec.Bytes(raw)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decoderFor maps a Windows codepage onto a decoder. nil means UTF-8, with
// a Windows-1252 fallback for invalid input.
func decoderFor(codepage int) *encoding.Decoder {
	var enc encoding.Encoding
	switch codepage {
	case 0, 65001:
		return nil
	case 437:
		enc = charmap.CodePage437
	case 850:
		enc = charmap.CodePage850
	case 852:
		enc = charmap.CodePage852
	case 866:
		enc = charmap.CodePage866
	case 874:
		enc = charmap.Windows874
	case 932:
		enc = japanese.ShiftJIS
	case 936:
		enc = simplifiedchinese.GBK
	case 949:
		enc = korean.EUCKR
	case 950:
		enc = traditionalchinese.Big5
	case 1250:
		enc = charmap.Windows1250
	case 1251:
		enc = charmap.Windows1251
	case 1253:
		enc = charmap.Windows1253
	case 1254:
		enc = charmap.Windows1254
	case 1255:
		enc = charmap.Windows1255
	case 1256:
		enc = charmap.Windows1256
	case 1257:
		enc = charmap.Windows1257
	case 1258:
		enc = charmap.Windows1258
	default:
		enc = charmap.Windows1252
	}
	return enc.NewDecoder()
}
