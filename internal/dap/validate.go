package dap

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	actCodeShape    = regexp.MustCompile(`^\d{3,5}$`)
	tributacaoShape = regexp.MustCompile(`^\d{1,2}$`)
)

// ValidatePayload normalizes a payload in place and rejects malformed
// competency, taxation type, periods, acts or dates.
func ValidatePayload(p *Payload) error {
	if p == nil {
		return &ValidationError{Message: "payload ausente"}
	}
	h := &p.Cabecalho

	if h.Ano < 1900 || h.Ano > 9999 {
		return &ValidationError{Field: "ano", Message: "ano deve estar entre 1900 e 9999"}
	}
	if h.Mes < 1 || h.Mes > 12 {
		return &ValidationError{Field: "mes", Message: "mes deve estar entre 1 e 12"}
	}

	tipo, err := ParseTipo(string(h.Tipo))
	if err != nil {
		return err
	}
	h.Tipo = tipo

	if h.DataEmissao != nil {
		if strings.TrimSpace(*h.DataEmissao) == "" {
			h.DataEmissao = nil
		} else {
			iso := NormalizeDate(*h.DataEmissao)
			if iso == nil {
				return &ValidationError{Field: "dataEmissao", Message: "data deve estar no formato DD/MM/AAAA ou AAAA-MM-DD"}
			}
			h.DataEmissao = iso
		}
	}
	h.Numero = strings.TrimSpace(h.Numero)

	if len(p.Periodos) > 4 {
		return &ValidationError{Field: "periodos", Message: "no máximo 4 períodos"}
	}
	seen := make(map[int]bool, len(p.Periodos))
	for i := range p.Periodos {
		per := &p.Periodos[i]
		if per.PeriodoNumero < 1 || per.PeriodoNumero > 4 {
			return &ValidationError{Field: fmt.Sprintf("periodos[%d].periodoNumero", i), Message: "deve estar entre 1 e 4"}
		}
		if seen[per.PeriodoNumero] {
			return &ValidationError{Field: fmt.Sprintf("periodos[%d].periodoNumero", i), Message: "período repetido"}
		}
		seen[per.PeriodoNumero] = true

		for j := range per.Atos {
			a := &per.Atos[j]
			field := fmt.Sprintf("periodos[%d].atos[%d]", i, j)
			a.CodigoAto = strings.TrimSpace(a.CodigoAto)
			if !actCodeShape.MatchString(a.CodigoAto) {
				return &ValidationError{Field: field + ".codigoAto", Message: "código do ato deve ter de 3 a 5 dígitos"}
			}
			a.Tributacao = strings.TrimSpace(a.Tributacao)
			if a.Tributacao != "" && !tributacaoShape.MatchString(a.Tributacao) {
				return &ValidationError{Field: field + ".tributacao", Message: "tributação deve ter 1 ou 2 dígitos"}
			}
			if a.Quantidade <= 0 {
				return &ValidationError{Field: field + ".quantidade", Message: "quantidade deve ser positiva"}
			}
		}
	}
	return nil
}
