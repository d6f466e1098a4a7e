// Package sanitize normalizes captured process output so that malformed
// text never blocks result reporting. Test applications emit a variety of
// encodings; anything that is not valid UTF-8 is replaced with '?'.
package sanitize

import (
	"strings"
	"unicode/utf8"
)

// Output replaces undecodable byte sequences with '?' and folds CRLF line
// endings into LF.
func Output(raw []byte) string {
	var b strings.Builder
	b.Grow(len(raw))
	for len(raw) > 0 {
		r, size := utf8.DecodeRune(raw)
		if r == utf8.RuneError && size == 1 {
			b.WriteByte('?')
			raw = raw[1:]
			// collapse runs of invalid bytes into a single marker
			for len(raw) > 0 {
				r, size = utf8.DecodeRune(raw)
				if !(r == utf8.RuneError && size == 1) {
					break
				}
				raw = raw[1:]
			}
			continue
		}
		b.WriteRune(r)
		raw = raw[size:]
	}
	return strings.ReplaceAll(b.String(), "\r\n", "\n")
}
