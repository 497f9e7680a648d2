// Package textenc normalizes raw legacy bytes into Go strings.
package textenc

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

// Normalize converts legacy key or value bytes into an NFC-normalized
// string. Bytes that are not valid UTF-8 are read as ISO-8859-1, which maps
// every byte to a code point, so Normalize never fails.
func Normalize(b []byte) string {
	if utf8.Valid(b) {
		return norm.NFC.String(string(b))
	}
	s, _ := charmap.ISO8859_1.NewDecoder().Bytes(b)
	return norm.NFC.String(string(s))
}
