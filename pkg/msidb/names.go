package msidb

import "strings"

// Stream names inside an MSI are compressed: characters from a 64 symbol
// alphabet are packed two per UTF-16 code unit, and table streams carry a
// marker code unit in front.
const (
	nameAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz._"

	pairBase   = 0x3800
	singleBase = 0x4800
	tableMark  = 0x4840
)

func alphabetIndex(r rune) int {
	switch {
	case r >= '0' && r <= '9':
		return int(r - '0')
	case r >= 'A' && r <= 'Z':
		return int(r-'A') + 10
	case r >= 'a' && r <= 'z':
		return int(r-'a') + 36
	case r == '.':
		return 62
	case r == '_':
		return 63
	}
	return -1
}

// EncodeStreamName converts a logical stream name into the name stored in
// the compound file. Table streams are prefixed with the table marker.
func EncodeStreamName(name string, table bool) string {
	var b strings.Builder
	if table {
		b.WriteRune(tableMark)
	}

	in := []rune(name)
	for i := 0; i < len(in); i++ {
		first := alphabetIndex(in[i])
		if first < 0 {
			b.WriteRune(in[i])
			continue
		}
		if i+1 < len(in) {
			if second := alphabetIndex(in[i+1]); second >= 0 {
				b.WriteRune(rune(pairBase + first + second<<6))
				i++
				continue
			}
		}
		b.WriteRune(rune(singleBase + first))
	}
	return b.String()
}

// DecodeStreamName reverses EncodeStreamName. table reports whether the
// name carried the table marker.
func DecodeStreamName(raw string) (name string, table bool) {
	var b strings.Builder
	for i, r := range []rune(raw) {
		switch {
		case r == tableMark && i == 0:
			table = true
		case r >= pairBase && r < singleBase:
			v := int(r - pairBase)
			b.WriteByte(nameAlphabet[v&0x3f])
			b.WriteByte(nameAlphabet[(v>>6)&0x3f])
		case r >= singleBase && r < tableMark:
			b.WriteByte(nameAlphabet[r-singleBase])
		default:
			b.WriteRune(r)
		}
	}
	return b.String(), table
}
