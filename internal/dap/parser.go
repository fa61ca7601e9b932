package dap

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/farxc/dap-ledger/internal/logger"
)

const DefaultOCRTimeout = 60 * time.Second

// TextExtractor returns the raw text layer of a PDF.
type TextExtractor interface {
	ExtractText(ctx context.Context, pdf []byte) (string, error)
}

// PageRenderer turns one page of a PDF into an image an OCR engine can read.
type PageRenderer interface {
	RenderPage(ctx context.Context, pdf []byte, page int) ([]byte, error)
}

// OCREngine returns the raw text recognized in an image.
type OCREngine interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

type Parser struct {
	text       TextExtractor
	renderer   PageRenderer
	ocr        OCREngine
	ocrTimeout time.Duration
	logger     *logger.Logger
}

type Option func(*Parser)

// WithOCR enables the OCR fallback for documents whose text layer carries no act table.
func WithOCR(renderer PageRenderer, engine OCREngine) Option {
	return func(p *Parser) {
		p.renderer = renderer
		p.ocr = engine
	}
}

func WithOCRTimeout(d time.Duration) Option {
	return func(p *Parser) {
		if d > 0 {
			p.ocrTimeout = d
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(p *Parser) { p.logger = l }
}

func NewParser(text TextExtractor, opts ...Option) *Parser {
	p := &Parser{
		text:       text,
		ocrTimeout: DefaultOCRTimeout,
		logger:     logger.New(logger.LevelInfo),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Parser) ocrEnabled() bool {
	return p.renderer != nil && p.ocr != nil
}

// Parse reduces a DAP PDF to its header and periods. It has no side effects
// beyond calling the configured collaborators. Failures are *ParseError.
func (p *Parser) Parse(ctx context.Context, buf []byte, ov *Overrides) (*Payload, error) {
	const component = "DapParser"

	if len(buf) == 0 {
		return nil, newParseError("PDF vazio ou ilegível", "", nil)
	}

	text, err := p.text.ExtractText(ctx, buf)
	if err != nil {
		p.logger.Warn(component, "Text layer extraction failed: err=%v", err)
		text = ""
	}
	text = strings.TrimSpace(text)

	usedOCR := false
	source := text
	if source == "" {
		if !p.ocrEnabled() {
			return nil, newParseError("PDF vazio ou ilegível", "", err)
		}
		ocrText, oerr := p.runOCR(ctx, buf)
		if oerr != nil || strings.TrimSpace(ocrText) == "" {
			if oerr == nil {
				oerr = err
			}
			return nil, newParseError("PDF vazio ou ilegível", ocrText, oerr)
		}
		usedOCR = true
		source = strings.TrimSpace(ocrText)
	}

	header := ExtractHeader(SplitLines(source))

	var table TableResult
	if usedOCR {
		table = ExtractTableLowConfidence(source)
	} else {
		// OCR is decided on the structured strategies alone; the window
		// heuristic only runs once OCR had its chance.
		table = ExtractTableStructured(text)
		if table.ActCount() == 0 && p.ocrEnabled() && !HasCandidateActLines(text) {
			ocrText, oerr := p.runOCR(ctx, buf)
			if oerr != nil {
				p.logger.Warn(component, "OCR fallback failed: err=%v", oerr)
			} else {
				usedOCR = true
				table = ExtractTableLowConfidence(ocrText)
				fillHeaderGaps(&header, ExtractHeader(SplitLines(ocrText)))
				source = text + "\n" + ocrText
			}
		}
		if table.ActCount() == 0 {
			table = dropYearCodes(ExtractTableLastResort(text), header.Ano)
		}
	}

	applyOverrides(&header, ov)

	if header.Ano < 1900 || header.Ano > 9999 || header.Mes < 1 || header.Mes > 12 {
		return nil, newParseError("não foi possível identificar a competência (ano/mês) da DAP", source, nil)
	}
	if table.ActCount() == 0 {
		return nil, newParseError("nenhum ato encontrado na DAP", source, nil)
	}
	p.logger.Debug(component, "Table extracted: strategy=%s periods=%d acts=%d ocr=%t", table.Strategy, len(table.Periods), table.ActCount(), usedOCR)

	header.Status = InitialStatus(header.Tipo)
	header.Metadata.Origem = OrigemUpload
	header.Metadata.Estrategia = table.Strategy
	header.Metadata.OCR = usedOCR
	header.Metadata.TextoPreview = Preview(source)

	return &Payload{Cabecalho: header, Periodos: table.Periods}, nil
}

// runOCR renders the first page and recognizes it, bounded by the OCR timeout.
func (p *Parser) runOCR(ctx context.Context, buf []byte) (string, error) {
	const component = "DapParser-OCR"
	ctx, cancel := context.WithTimeout(ctx, p.ocrTimeout)
	defer cancel()

	start := time.Now()
	p.logger.Info(component, "Text layer has no act table, running OCR: timeout=%s", p.ocrTimeout)

	img, err := p.renderer.RenderPage(ctx, buf, 1)
	if err != nil {
		return "", fmt.Errorf("render page: %w", err)
	}
	text, err := p.ocr.Recognize(ctx, img)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("ocr timed out after %s: %w", p.ocrTimeout, err)
		}
		return "", fmt.Errorf("ocr: %w", err)
	}
	p.logger.Info(component, "OCR finished: chars=%d duration=%s", len(text), time.Since(start).Round(time.Millisecond))
	return text, nil
}

// dropYearCodes removes acts whose code is the competency year, a header
// value the window heuristic can pick up when labels and values sit on
// separate lines.
func dropYearCodes(r TableResult, ano int) TableResult {
	if ano == 0 {
		return r
	}
	year := strconv.Itoa(ano)
	periods := make([]Period, 0, len(r.Periods))
	for _, p := range r.Periods {
		kept := p.Atos[:0:0]
		for _, a := range p.Atos {
			if a.CodigoAto != year {
				kept = append(kept, a)
			}
		}
		p.Atos = kept
		p.TotalAtos, p.TotalEmolumentos, p.TotalLiquido = nil, nil, nil
		periods = append(periods, p)
	}
	r.Periods = finalizePeriods(periods)
	if len(r.Periods) == 0 {
		return TableResult{}
	}
	return r
}

func fillHeaderGaps(h *Header, from Header) {
	if h.Ano == 0 {
		h.Ano = from.Ano
	}
	if h.Mes == 0 {
		h.Mes = from.Mes
	}
	if h.DataEmissao == nil {
		h.DataEmissao = from.DataEmissao
	}
	if h.Numero == "" {
		h.Numero = from.Numero
	}
}

func applyOverrides(h *Header, ov *Overrides) {
	if ov == nil {
		return
	}
	if ov.Ano != 0 {
		h.Ano = ov.Ano
	}
	if ov.Mes != 0 {
		h.Mes = ov.Mes
	}
	if ov.ServentiaNome != "" {
		h.Metadata.ServentiaNome = ov.ServentiaNome
	}
	if ov.CodigoServentia != "" {
		h.Metadata.CodigoServentia = ov.CodigoServentia
	}
	if ov.CNPJ != "" {
		h.Metadata.CNPJ = ov.CNPJ
	}
	if ov.Observacoes != "" {
		h.Metadata.Observacoes = ov.Observacoes
	}
	if ov.ArquivoNome != "" {
		h.Metadata.ArquivoNome = ov.ArquivoNome
	}
}
