package pdftext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var ErrNoPageImage = errors.New("page has no embedded image")

// ImageRenderer returns the scanned image embedded in a page. Scanned filings
// carry one full-page raster per page, which is what OCR needs.
type ImageRenderer struct {
	conf *model.Configuration
}

func NewImageRenderer() *ImageRenderer {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &ImageRenderer{conf: conf}
}

// RenderPage returns the largest image found on page.
func (r *ImageRenderer) RenderPage(ctx context.Context, buf []byte, page int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pages, err := api.ExtractImagesRaw(bytes.NewReader(buf), []string{strconv.Itoa(page)}, r.conf)
	if err != nil {
		return nil, fmt.Errorf("failed to extract images from page %d: %w", page, err)
	}

	var best model.Image
	found := false
	for _, images := range pages {
		for _, img := range images {
			if img.Reader == nil {
				continue
			}
			if !found || img.Width*img.Height > best.Width*best.Height {
				best = img
				found = true
			}
		}
	}
	if !found {
		return nil, fmt.Errorf("page %d: %w", page, ErrNoPageImage)
	}

	data, err := io.ReadAll(best.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read image %s: %w", best.Name, err)
	}
	return data, nil
}
