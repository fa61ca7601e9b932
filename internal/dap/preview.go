package dap

import (
	"strings"
	"unicode"
)

const previewLimit = 800

// Preview returns a diagnostic excerpt of extracted text: control and binary
// bytes removed, whitespace collapsed, at most 800 characters.
func Preview(text string) string {
	var b strings.Builder
	space := false
	n := 0
	for _, r := range text {
		if n >= previewLimit {
			break
		}
		if unicode.IsSpace(r) {
			space = b.Len() > 0
			continue
		}
		if r == unicode.ReplacementChar || !unicode.IsPrint(r) {
			continue
		}
		if space {
			if n+1 >= previewLimit {
				break
			}
			b.WriteByte(' ')
			n++
			space = false
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}
