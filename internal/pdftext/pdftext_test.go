package pdftext

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinRowsOrdersWordsByX(t *testing.T) {
	rows := pdf.Rows{
		{Position: 700, Content: pdf.TextHorizontal{
			{S: "2025", X: 60, W: 20, FontSize: 10},
			{S: "Ano:", X: 20, W: 20, FontSize: 10},
		}},
		{Position: 680, Content: pdf.TextHorizontal{
			{S: "Mê", X: 20, W: 10, FontSize: 10},
			{S: "s:", X: 30, W: 8, FontSize: 10},
			{S: "10", X: 45, W: 10, FontSize: 10},
		}},
		{Position: 660},
	}
	assert.Equal(t, "Ano: 2025\nMês: 10\n", joinRows(rows))
}

func TestExtractTextRejectsGarbage(t *testing.T) {
	_, err := NewTextLayer().ExtractText(context.Background(), []byte("not a pdf at all"))
	assert.Error(t, err)
}

func TestRenderPageRejectsGarbage(t *testing.T) {
	_, err := NewImageRenderer().RenderPage(context.Background(), []byte("not a pdf at all"), 1)
	assert.Error(t, err)
}

func fakeTesseract(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "tesseract")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return path
}

func TestTesseractEngineReadsStdout(t *testing.T) {
	bin := fakeTesseract(t, `cat >/dev/null; printf 'Ano: 2025\n1234 2 5 10,00\n'`)
	e := NewTesseractEngine(bin, "")

	out, err := e.Recognize(context.Background(), []byte{0x89, 'P', 'N', 'G'})
	require.NoError(t, err)
	assert.Equal(t, "Ano: 2025\n1234 2 5 10,00\n", out)
	assert.Equal(t, DefaultTesseractLang, e.Lang)
}

func TestTesseractEngineDecodesLatin1(t *testing.T) {
	bin := fakeTesseract(t, `cat >/dev/null; printf 'M\352s: 10'`)
	out, err := NewTesseractEngine(bin, "por").Recognize(context.Background(), []byte{1})
	require.NoError(t, err)
	assert.Equal(t, "Mês: 10", out)
}

func TestTesseractEngineFailure(t *testing.T) {
	bin := fakeTesseract(t, `echo "Error opening data file" >&2; exit 1`)
	_, err := NewTesseractEngine(bin, "por").Recognize(context.Background(), []byte{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Error opening data file")
}

func TestTesseractEngineHonorsDeadline(t *testing.T) {
	bin := fakeTesseract(t, `exec sleep 5`)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewTesseractEngine(bin, "por").Recognize(ctx, []byte{1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTesseractEngineRejectsEmptyImage(t *testing.T) {
	_, err := NewTesseractEngine("", "").Recognize(context.Background(), nil)
	assert.Error(t, err)
}
