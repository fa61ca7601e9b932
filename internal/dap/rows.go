package dap

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	strictRow = regexp.MustCompile(`^(\d{3,5})\s*[–—-]\s*(.+?)\s+(\d{1,5})\s+(` + amountPattern + `)\s+(` + amountPattern + `)\s+(` +
		amountPattern + `)\s+(` + amountPattern + `)\s+(` + amountPattern + `)$`)

	labeledRow = regexp.MustCompile(`(?i)(\d{3,5})\s*[–—-]?\s*([^\d]*?)\s*Qtd\.?\s*:?\s*(\d{1,5})\s*` +
		`Emol\.?\s*:?\s*(?:R\$\s*)?(` + amountPattern + `)\s*` +
		`TFJ\s*:?\s*(?:R\$\s*)?(` + amountPattern + `)\s*` +
		`(?:TAXA\s+)?ISS\s*:?\s*(?:R\$\s*)?(` + amountPattern + `)\s*` +
		`(?:TAXA\s+)?CNS\s*:?\s*(?:R\$\s*)?(` + amountPattern + `)\s*` +
		`(?:Valor\s+)?L[ií]quido\s*:?\s*(?:R\$\s*)?(` + amountPattern + `)`)
)

// extractStrictRows reads single-period tables laid out as
// "code - description qty emol tfj iss cns liquido", one act per line.
func extractStrictRows(text string) []Period {
	var acts []Act
	for _, line := range SplitLines(text) {
		m := strictRow.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if act, ok := fullAct(m[1:]); ok {
			acts = append(acts, act)
		}
	}
	if len(acts) == 0 {
		return nil
	}
	return []Period{{PeriodoNumero: 1, Atos: acts}}
}

// extractLabeledRows reads acts whose values are each introduced by a label
// (Qtd:, Emol:, TFJ:, ISS, CNS, Líquido). Rows may wrap across lines.
func extractLabeledRows(text string) []Period {
	joined := strings.Join(SplitLines(text), " ")
	var acts []Act
	for _, m := range labeledRow.FindAllStringSubmatch(joined, -1) {
		if act, ok := fullAct(m[1:]); ok {
			acts = append(acts, act)
		}
	}
	if len(acts) == 0 {
		return nil
	}
	return []Period{{PeriodoNumero: 1, Atos: acts}}
}

// fullAct builds an act from code, description, quantity, emolumentos, tfj,
// iss, cns and líquido, in that order.
func fullAct(f []string) (Act, bool) {
	qty, err := strconv.Atoi(f[2])
	if err != nil || qty <= 0 {
		return Act{}, false
	}
	return Act{
		CodigoAto:    f[0],
		Descricao:    strings.Trim(strings.TrimSpace(f[1]), "–—-"),
		Quantidade:   qty,
		Emolumentos:  ParseMoney(f[3]),
		TfjValor:     ParseMoney(f[4]),
		TaxaIss:      ParseMoney(f[5]),
		TaxaCns:      ParseMoney(f[6]),
		ValorLiquido: ParseMoney(f[7]),
	}, true
}
