package dap

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
)

const amountPattern = `(?:\d{1,3}(?:\.\d{3})+|\d+),\d{2}`

var (
	amountRe        = regexp.MustCompile(`^` + amountPattern + `$`)
	candidateActRow = regexp.MustCompile(`\b\d{4}\b\s+\d{1,3}\b`)
)

// Strategy recovers periods and acts from extracted text. It returns nil when
// it finds nothing usable; strategies never fail.
type Strategy struct {
	Name    string
	Extract func(text string) []Period
}

// Cascade is the fixed order strategies are tried in. The first non-empty
// result wins.
var Cascade = []Strategy{
	{Name: "colunar", Extract: extractColumnar},
	{Name: "linha-estrita", Extract: extractStrictRows},
	{Name: "rotulada", Extract: extractLabeledRows},
	{Name: "heuristica-linha", Extract: extractLineHeuristic},
	{Name: "heuristica-janela", Extract: extractWindowHeuristic},
}

var (
	// TextCascade is every strategy that reads structure from the text. The
	// window heuristic is kept out so OCR escalation is decided before it runs.
	TextCascade = Cascade[:4]

	// LastResortCascade holds the window heuristic alone.
	LastResortCascade = Cascade[4:]

	// LowConfidenceCascade is used on OCR text, which only the heuristics tolerate.
	LowConfidenceCascade = Cascade[3:]
)

type TableResult struct {
	Periods  []Period
	Strategy string
}

func (r TableResult) ActCount() int {
	n := 0
	for _, p := range r.Periods {
		n += len(p.Atos)
	}
	return n
}

// ExtractTable runs the full cascade over text.
func ExtractTable(text string) TableResult {
	return runCascade(Cascade, text)
}

// ExtractTableStructured runs the cascade without the window heuristic.
func ExtractTableStructured(text string) TableResult {
	return runCascade(TextCascade, text)
}

// ExtractTableLastResort runs only the window heuristic.
func ExtractTableLastResort(text string) TableResult {
	return runCascade(LastResortCascade, text)
}

// ExtractTableLowConfidence runs only the heuristic strategies.
func ExtractTableLowConfidence(text string) TableResult {
	return runCascade(LowConfidenceCascade, text)
}

func runCascade(strategies []Strategy, text string) TableResult {
	for _, s := range strategies {
		periods := finalizePeriods(s.Extract(text))
		if len(periods) > 0 {
			return TableResult{Periods: periods, Strategy: s.Name}
		}
	}
	return TableResult{}
}

// HasCandidateActLines reports whether any line looks like the start of an
// act row (a 4-digit code followed by a number). When none exists the act
// table is structurally absent from the text layer.
func HasCandidateActLines(text string) bool {
	for _, l := range SplitLines(text) {
		if candidateActRow.MatchString(l) {
			return true
		}
	}
	return false
}

// finalizePeriods deduplicates acts, drops empty periods, fills totals the
// document did not supply and orders periods by number.
func finalizePeriods(periods []Period) []Period {
	out := make([]Period, 0, len(periods))
	for _, p := range periods {
		p.Atos = dedupeActs(p.Atos)
		if len(p.Atos) == 0 {
			continue
		}
		fillTotals(&p)
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PeriodoNumero < out[j].PeriodoNumero })
	return out
}

func dedupeActs(acts []Act) []Act {
	seen := make(map[string]bool, len(acts))
	out := make([]Act, 0, len(acts))
	for _, a := range acts {
		key := actKey(a)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}
	return out
}

func actKey(a Act) string {
	amount := "-"
	switch {
	case a.TfjValor != nil:
		amount = strconv.FormatFloat(*a.TfjValor, 'f', 2, 64)
	case a.ValorLiquido != nil:
		amount = strconv.FormatFloat(*a.ValorLiquido, 'f', 2, 64)
	}
	return fmt.Sprintf("%s|%d|%s", a.CodigoAto, a.Quantidade, amount)
}

func fillTotals(p *Period) {
	var qty int
	var emol, liquido float64
	var hasEmol, hasLiquido bool
	for _, a := range p.Atos {
		qty += a.Quantidade
		if a.Emolumentos != nil {
			emol += *a.Emolumentos
			hasEmol = true
		}
		if a.ValorLiquido != nil {
			liquido += *a.ValorLiquido
			hasLiquido = true
		}
	}
	if p.TotalAtos == nil {
		p.TotalAtos = intPtr(qty)
	}
	if p.TotalEmolumentos == nil && hasEmol {
		p.TotalEmolumentos = floatPtr(round2(emol))
	}
	if p.TotalLiquido == nil && hasLiquido {
		p.TotalLiquido = floatPtr(round2(liquido))
	}
}

// collidesWithCode reports the extraction collision where the quantity picked
// up is the act code itself.
func collidesWithCode(code string, qty int) bool {
	n, err := strconv.Atoi(code)
	return err == nil && n == qty
}

func round2(v float64) float64 {
	f, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	return f
}
