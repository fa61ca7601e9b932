package pdftext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/farxc/dap-ledger/internal/dap"
)

const (
	DefaultTesseractBinary = "tesseract"
	DefaultTesseractLang   = "por"
)

// TesseractEngine runs the tesseract CLI, image on stdin and text on stdout.
type TesseractEngine struct {
	Binary string
	Lang   string
}

func NewTesseractEngine(binary, lang string) *TesseractEngine {
	if binary == "" {
		binary = DefaultTesseractBinary
	}
	if lang == "" {
		lang = DefaultTesseractLang
	}
	return &TesseractEngine{Binary: binary, Lang: lang}
}

func (e *TesseractEngine) Recognize(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", errors.New("empty image")
	}
	cmd := exec.CommandContext(ctx, e.Binary, "stdin", "stdout", "-l", e.Lang, "--psm", "6")
	cmd.Stdin = bytes.NewReader(image)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%s failed: %w: %s", e.Binary, err, strings.TrimSpace(stderr.String()))
	}
	return dap.DecodeText(stdout.Bytes()), nil
}

// Available reports whether the binary can be found on PATH.
func (e *TesseractEngine) Available() bool {
	_, err := exec.LookPath(e.Binary)
	return err == nil
}
