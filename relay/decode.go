package relay

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// DecodeLine decodes b as UTF-8, replacing each invalid byte with U+FFFD.
func DecodeLine(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	out, err := unicode.UTF8.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), string(utf8.RuneError))
	}
	return string(out)
}

// Display is how a line is presented to subscribers.
func Display(line string) string {
	return "'" + line + "'"
}
