package dap

import (
	"regexp"
	"strconv"
	"strings"
)

const windowSize = 300

var (
	actCode       = regexp.MustCompile(`\b\d{4}\b`)
	windowCode    = regexp.MustCompile(`\b\d{4,5}\b`)
	codeToken     = regexp.MustCompile(`^\d{4,5}$`)
	segmentStrict = regexp.MustCompile(`^(\d{4})\s+(\d{1,2})\s+(\d{1,3})\s+(` + amountPattern + `)`)
	taxToken      = regexp.MustCompile(`^\d{1,2}$`)
	qtyToken      = regexp.MustCompile(`^\d{1,3}$`)
	skipLine      = regexp.MustCompile(`(?i)\b(sub\s*total|total|c[oó]digo|quantidade|qtde)\b`)
	labelLine     = regexp.MustCompile(`^[^\d:]*\pL[^\d:]*:`)
	totalLine     = regexp.MustCompile(`(?i)\b(sub\s*total|total)\b`)
)

// extractLineHeuristic scans each line for 4-digit act codes and reads the
// text up to the next code as "code taxation quantity amount", falling back to
// picking the first token of each kind when the strict order does not hold.
func extractLineHeuristic(text string) []Period {
	var acts []Act
	for _, line := range SplitLines(text) {
		if skipLine.MatchString(line) {
			continue
		}
		locs := actCode.FindAllStringIndex(line, -1)
		for i, loc := range locs {
			if partOfNumber(line, loc) {
				continue
			}
			end := len(line)
			if i+1 < len(locs) {
				end = locs[i+1][0]
			}
			if act, ok := parseSegment(line[loc[0]:end]); ok {
				acts = append(acts, act)
			}
		}
	}
	if len(acts) == 0 {
		return nil
	}
	return []Period{{PeriodoNumero: 1, Atos: acts}}
}

func parseSegment(seg string) (Act, bool) {
	if m := segmentStrict.FindStringSubmatch(seg); m != nil {
		qty, _ := strconv.Atoi(m[3])
		act := Act{CodigoAto: m[1], Tributacao: m[2], Quantidade: qty, TfjValor: ParseMoney(m[4])}
		if qty > 0 && !collidesWithCode(act.CodigoAto, qty) {
			return act, true
		}
	}

	fields := strings.Fields(seg)
	if len(fields) < 2 {
		return Act{}, false
	}
	act := Act{CodigoAto: fields[0]}
	qtyFound := false
	for _, tok := range fields[1:] {
		tok = strings.Trim(tok, ";|")
		switch {
		case act.Tributacao == "" && taxToken.MatchString(tok):
			act.Tributacao = tok
		case !qtyFound && qtyToken.MatchString(tok):
			act.Quantidade, _ = strconv.Atoi(tok)
			qtyFound = true
		case act.TfjValor == nil && amountRe.MatchString(tok):
			act.TfjValor = ParseMoney(tok)
		}
	}
	if !qtyFound && act.Tributacao != "" {
		// a lone small number is the quantity, not the taxation code
		act.Quantidade, _ = strconv.Atoi(act.Tributacao)
		act.Tributacao = ""
		qtyFound = true
	}
	if !qtyFound || act.Quantidade <= 0 || collidesWithCode(act.CodigoAto, act.Quantidade) {
		return Act{}, false
	}
	if act.TfjValor == nil {
		return Act{}, false
	}
	return act, true
}

// extractWindowHeuristic is the last resort: for every 4 or 5 digit number it
// looks at the next few hundred characters for a small integer and a currency
// amount. Header lines ("Ano: 2025", "Emolumento apurado: 1.234,56") and
// total lines are left out so header figures never become acts. Results are
// marked low confidence.
func extractWindowHeuristic(text string) []Period {
	var body []string
	for _, line := range SplitLines(text) {
		if labelLine.MatchString(line) || totalLine.MatchString(line) {
			continue
		}
		body = append(body, line)
	}
	flat := strings.Join(body, " ")
	var acts []Act
	for _, loc := range windowCode.FindAllStringIndex(flat, -1) {
		if partOfNumber(flat, loc) {
			continue
		}
		code := flat[loc[0]:loc[1]]
		end := loc[1] + windowSize
		if end > len(flat) {
			end = len(flat)
		}

		var qty int
		var amount *float64
		for _, tok := range strings.Fields(flat[loc[1]:end]) {
			tok = strings.TrimRight(tok, ",;:.")
			if codeToken.MatchString(tok) {
				break
			}
			if qty == 0 && qtyToken.MatchString(tok) {
				qty, _ = strconv.Atoi(tok)
				continue
			}
			if qty > 0 && amountRe.MatchString(tok) {
				amount = ParseMoney(tok)
				break
			}
		}
		if qty <= 0 || amount == nil || collidesWithCode(code, qty) {
			continue
		}
		acts = append(acts, Act{
			CodigoAto:  code,
			Quantidade: qty,
			TfjValor:   amount,
			Detalhes:   map[string]any{"confianca": "baixa"},
		})
	}
	if len(acts) == 0 {
		return nil
	}
	return []Period{{PeriodoNumero: 1, Atos: acts}}
}

// partOfNumber rejects digit runs glued to a date, amount or identifier.
func partOfNumber(s string, loc []int) bool {
	if loc[0] > 0 && strings.ContainsAny(s[loc[0]-1:loc[0]], "/.,:-") {
		return true
	}
	if loc[1] < len(s) && strings.ContainsAny(s[loc[1]:loc[1]+1], "/.,") {
		return true
	}
	return false
}
