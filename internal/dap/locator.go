package dap

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	multiSpace = regexp.MustCompile(`[ \t\f\v\x{00A0}]+`)
)

// trimValue drops the separators between a label and its value. A dash is
// only a separator when followed by a blank, so "-100,00" keeps its sign.
func trimValue(v string) string {
	for {
		t := strings.TrimLeft(v, " \t:=–—.")
		if strings.HasPrefix(t, "- ") || t == "-" {
			t = t[1:]
		}
		if t == v {
			break
		}
		v = t
	}
	return strings.TrimRight(v, " \t:")
}

// Lines is the line-oriented view of extracted text the header extraction works on.
type Lines []string

// SplitLines trims every line, collapses inner blanks and drops empty lines.
func SplitLines(text string) Lines {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	raw := strings.Split(text, "\n")
	lines := make(Lines, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimSpace(multiSpace.ReplaceAllString(l, " "))
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// ExtractByLabels returns the value written after the first label found, or
// the following line when the label line carries nothing after it. Labels are
// tried in the order given. No match returns "".
func (ls Lines) ExtractByLabels(labels ...string) string {
	for _, label := range labels {
		for i, line := range ls {
			end, ok := findLabel(line, label)
			if !ok {
				continue
			}
			if v := trimValue(line[end:]); v != "" {
				return v
			}
			if i+1 < len(ls) {
				if v := trimValue(ls[i+1]); v != "" {
					return v
				}
			}
		}
	}
	return ""
}

// ExtractByTokens returns the remainder of the first line that contains every
// token, split on the last colon/dash when present or after the last token.
func (ls Lines) ExtractByTokens(tokens ...string) string {
	for _, line := range ls {
		end, ok := matchTokens(line, tokens)
		if !ok {
			continue
		}
		rest := line[end:]
		if idx := strings.LastIndexAny(rest, ":–"); idx >= 0 {
			_, size := utf8.DecodeRuneInString(rest[idx:])
			rest = rest[idx+size:]
		} else if idx := strings.LastIndex(rest, " - "); idx >= 0 {
			rest = rest[idx+3:]
		}
		if v := trimValue(rest); v != "" {
			return v
		}
	}
	return ""
}

// ExtractDateByTokens returns the first DD/MM/YYYY token on a line that
// contains every token.
func (ls Lines) ExtractDateByTokens(tokens ...string) string {
	for _, line := range ls {
		if _, ok := matchTokens(line, tokens); !ok {
			continue
		}
		if d := findDateToken(line); d != "" {
			return d
		}
	}
	return ""
}

// matchTokens reports whether line contains all tokens (case and accent
// insensitive) and the byte offset where the right-most token ends.
func matchTokens(line string, tokens []string) (int, bool) {
	if len(tokens) == 0 {
		return 0, false
	}
	folded, offsets := foldWithOffsets(line)
	end := 0
	for _, tok := range tokens {
		ft := fold(tok)
		idx := strings.LastIndex(folded, ft)
		if idx < 0 {
			return 0, false
		}
		if e := offsets[idx+len(ft)]; e > end {
			end = e
		}
	}
	return end, true
}

// findLabel locates label in line as a whole word and returns the byte offset
// right after it in the original line.
func findLabel(line, label string) (int, bool) {
	folded, offsets := foldWithOffsets(line)
	fl := fold(strings.TrimSpace(label))
	if fl == "" {
		return 0, false
	}
	from := 0
	for {
		idx := strings.Index(folded[from:], fl)
		if idx < 0 {
			return 0, false
		}
		start := from + idx
		stop := start + len(fl)
		if wordBoundary(folded, start, stop) {
			return offsets[stop], true
		}
		from = start + 1
	}
}

func wordBoundary(s string, start, stop int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:start])
		if unicode.IsLetter(r) {
			return false
		}
	}
	if stop < len(s) {
		r, _ := utf8.DecodeRuneInString(s[stop:])
		if unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// foldWithOffsets folds s rune by rune and maps every byte of the result back
// to the byte offset of the rune it came from. The extra final entry maps to len(s).
func foldWithOffsets(s string) (string, []int) {
	var b strings.Builder
	offsets := make([]int, 0, len(s)+1)
	for i, r := range s {
		f := fold(string(r))
		b.WriteString(f)
		for j := 0; j < len(f); j++ {
			offsets = append(offsets, i)
		}
	}
	offsets = append(offsets, len(s))
	return b.String(), offsets
}
