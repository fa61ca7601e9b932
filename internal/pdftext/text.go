package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// TextLayer reads the text a PDF producer embedded, one line per visual row.
type TextLayer struct{}

func NewTextLayer() *TextLayer {
	return &TextLayer{}
}

// ExtractText returns the text of every page. Pages whose row grouping fails
// fall back to plain text; malformed streams on a page are skipped.
func (t *TextLayer) ExtractText(ctx context.Context, buf []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while reading pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	var b strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		b.WriteString(pageText(page))
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func pageText(page pdf.Page) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
		}
	}()

	rows, err := page.GetTextByRow()
	if err == nil && len(rows) > 0 {
		return joinRows(rows)
	}
	plain, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return plain
}

// joinRows writes rows top to bottom with the words of a row ordered by x.
func joinRows(rows pdf.Rows) string {
	var b strings.Builder
	for _, row := range rows {
		words := append([]pdf.Text(nil), row.Content...)
		sort.SliceStable(words, func(i, j int) bool { return words[i].X < words[j].X })

		var line strings.Builder
		prevEnd := 0.0
		for i, w := range words {
			if i > 0 && w.X-prevEnd > w.FontSize*0.2 {
				line.WriteByte(' ')
			}
			line.WriteString(w.S)
			prevEnd = w.X + w.W
		}
		if s := strings.TrimSpace(line.String()); s != "" {
			b.WriteString(s)
			b.WriteByte('\n')
		}
	}
	return b.String()
}
