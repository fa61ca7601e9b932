package dap

import (
	"regexp"
	"strconv"
	"strings"
)

const columnCount = 4

var columnGroup = regexp.MustCompile(`\b(\d{4})\s+(\d{1,2})\s+(\d{1,3})\s+(` + amountPattern + `)`)

// extractColumnar reads the four-period table where every row carries one
// (code, taxation, quantity, amount) group per period, left to right. A table
// starts at a row with at least four groups and ends at the first line
// holding "/" or "-".
func extractColumnar(text string) []Period {
	lines := SplitLines(text)
	periods := make([]Period, columnCount)
	for i := range periods {
		periods[i].PeriodoNumero = i + 1
	}

	found := false
	for i := 0; i < len(lines); i++ {
		if len(columnGroup.FindAllStringSubmatch(lines[i], -1)) < columnCount {
			continue
		}
		found = true
		for ; i < len(lines); i++ {
			line := lines[i]
			if strings.ContainsAny(line, "/-") {
				break
			}
			for col, m := range columnGroup.FindAllStringSubmatch(line, columnCount) {
				if act, ok := columnAct(m); ok {
					periods[col].Atos = append(periods[col].Atos, act)
				}
			}
		}
	}
	if !found {
		return nil
	}
	return periods
}

func columnAct(m []string) (Act, bool) {
	qty, err := strconv.Atoi(m[3])
	if err != nil || qty <= 0 {
		return Act{}, false
	}
	amount := ParseMoney(m[4])
	if amount == nil {
		return Act{}, false
	}
	return Act{
		CodigoAto:  m[1],
		Tributacao: m[2],
		Quantidade: qty,
		TfjValor:   amount,
	}, true
}
