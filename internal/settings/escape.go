package settings

import (
	"bytes"
	"fmt"
	"strconv"
	"unicode/utf16"
	"unicode/utf8"
)

// escapeNonASCII turns every rune at or above 0x80 into \uXXXX escapes,
// supplementary runes as a UTF-16 surrogate pair, so the text is pure ASCII
// like java.util.Properties.store writes it.
func escapeNonASCII(data []byte) []byte {
	var out bytes.Buffer
	out.Grow(len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		data = data[size:]
		switch {
		case r < utf8.RuneSelf:
			out.WriteByte(byte(r))
		case r > 0xFFFF:
			hi, lo := utf16.EncodeRune(r)
			fmt.Fprintf(&out, "\\u%04x\\u%04x", hi, lo)
		default:
			fmt.Fprintf(&out, "\\u%04x", r)
		}
	}
	return out.Bytes()
}

// latin1ToUTF8 reinterprets every byte as an ISO-8859-1 code point
func latin1ToUTF8(data []byte) []byte {
	out := make([]byte, 0, len(data)+len(data)/4)
	for _, b := range data {
		out = utf8.AppendRune(out, rune(b))
	}
	return out
}

// joinSurrogates replaces \uD8xx\uDCxx escape pairs with the UTF-8 encoding
// of the rune they stand for. Other escapes are copied unchanged.
func joinSurrogates(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u`)) {
		return data
	}

	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] != '\\' || i+1 >= len(data) {
			out = append(out, data[i])
			continue
		}
		if data[i+1] != 'u' {
			// keep escaped backslashes and the like as a unit
			out = append(out, data[i], data[i+1])
			i++
			continue
		}

		hi, ok := unicodeEscape(data[i:])
		if ok && utf16.IsSurrogate(hi) {
			if lo, ok := unicodeEscape(data[i+6:]); ok {
				if r := utf16.DecodeRune(hi, lo); r != utf8.RuneError {
					out = utf8.AppendRune(out, r)
					i += 11
					continue
				}
			}
		}
		out = append(out, data[i], data[i+1])
		i++
	}
	return out
}

// unicodeEscape parses a leading \uXXXX
func unicodeEscape(data []byte) (rune, bool) {
	if len(data) < 6 || data[0] != '\\' || data[1] != 'u' {
		return 0, false
	}
	v, err := strconv.ParseUint(string(data[2:6]), 16, 16)
	if err != nil {
		return 0, false
	}
	return rune(v), true
}
