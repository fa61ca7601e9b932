package dap

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	firstNumber = regexp.MustCompile(`\d+`)
	moneyToken  = regexp.MustCompile(`-?(?:\d{1,3}(?:\.\d{3})+|\d+),\d{2}`)
	cnpjToken   = regexp.MustCompile(`\b\d{2}\.?\d{3}\.?\d{3}/?\d{4}-?\d{2}\b`)
)

var monthNames = map[string]int{
	"janeiro": 1, "fevereiro": 2, "marco": 3, "abril": 4, "maio": 5, "junho": 6,
	"julho": 7, "agosto": 8, "setembro": 9, "outubro": 10, "novembro": 11, "dezembro": 12,
}

// moneyField binds one MonetaryFields slot to the token sets that identify it,
// tried in order.
type moneyField struct {
	name   string
	tokens [][]string
	set    func(*MonetaryFields, *float64)
}

var moneyFields = []moneyField{
	{"emolumentoApurado", [][]string{{"emolumento", "apurado"}, {"emolumentos", "rateados"}, {"emolumentos", "rateio"}},
		func(m *MonetaryFields, v *float64) { m.EmolumentoApurado = v }},
	{"taxaFiscalizacaoJudiciariaApurada", [][]string{{"fiscalizacao judiciaria", "apurada"}, {"tfj", "apurada"}},
		func(m *MonetaryFields, v *float64) { m.TaxaFiscalizacaoJudiciariaApurada = v }},
	{"taxaFiscalizacaoJudiciariaPaga", [][]string{{"fiscalizacao judiciaria", "paga"}, {"tfj", "paga"}},
		func(m *MonetaryFields, v *float64) { m.TaxaFiscalizacaoJudiciariaPaga = v }},
	{"recompeApurado", [][]string{{"recompe", "apurado"}},
		func(m *MonetaryFields, v *float64) { m.RecompeApurado = v }},
	{"recompeDepositado", [][]string{{"recompe", "depositado"}},
		func(m *MonetaryFields, v *float64) { m.RecompeDepositado = v }},
	{"valoresRecebidosRecompe", [][]string{{"recebidos", "recompe"}},
		func(m *MonetaryFields, v *float64) { m.ValoresRecebidosRecompe = v }},
	{"valoresRecebidosFerrfis", [][]string{{"recebidos", "ferrfis"}, {"recebidos", "fiscalizacao"}},
		func(m *MonetaryFields, v *float64) { m.ValoresRecebidosFerrfis = v }},
	{"issqnRecebidoUsuarios", [][]string{{"issqn", "usuarios"}, {"iss", "recebido"}},
		func(m *MonetaryFields, v *float64) { m.IssqnRecebidoUsuarios = v }},
	{"diferencaRepasse", [][]string{{"diferenca", "repasse"}},
		func(m *MonetaryFields, v *float64) { m.DiferencaRepasse = v }},
	{"saldoPeriodoAnterior", [][]string{{"saldo", "periodo anterior"}, {"saldo", "mes anterior"}},
		func(m *MonetaryFields, v *float64) { m.SaldoPeriodoAnterior = v }},
	{"valorRecebidoPeriodoAnterior", [][]string{{"recebido", "periodo anterior"}, {"recebido", "mes anterior"}},
		func(m *MonetaryFields, v *float64) { m.ValorRecebidoPeriodoAnterior = v }},
	{"despesasTotal", [][]string{{"total", "despesas"}, {"despesas", "mes"}},
		func(m *MonetaryFields, v *float64) { m.DespesasTotal = v }},
	{"estoqueSelosEletronicos", [][]string{{"estoque", "selos"}},
		func(m *MonetaryFields, v *float64) { m.EstoqueSelosEletronicos = v }},
	{"totalAtosPraticados", [][]string{{"total", "atos praticados"}},
		func(m *MonetaryFields, v *float64) { m.TotalAtosPraticados = v }},
	{"totalAtosGratuitos", [][]string{{"atos gratuitos"}},
		func(m *MonetaryFields, v *float64) { m.TotalAtosGratuitos = v }},
}

// ExtractHeader recovers the identifying and monetary header fields. Fields
// that cannot be found stay at their zero value; validation is the caller's.
func ExtractHeader(lines Lines) Header {
	h := Header{Tipo: TipoOriginal}

	h.Ano = firstIntIn(lines.ExtractByLabels("Ano de referência", "Ano", "Exercício"), 1900, 9999)
	h.Mes = parseMonth(lines.ExtractByLabels("Mês de referência", "Mês", "Mes"))

	if h.Ano == 0 || h.Mes == 0 {
		mes, ano := parseCompetency(lines.ExtractByLabels("Competência", "Período de referência", "Mês/Ano", "Referência"))
		if h.Mes == 0 {
			h.Mes = mes
		}
		if h.Ano == 0 {
			h.Ano = ano
		}
	}

	if n := firstToken(lines.ExtractByLabels("Número da DAP", "Número da declaração", "Nº da DAP", "Número", "Protocolo")); firstNumber.MatchString(n) {
		h.Numero = n
	}

	if t, err := ParseTipo(firstToken(lines.ExtractByLabels("Tipo de declaração", "Tipo da declaração", "Tipo da DAP", "Tipo"))); err == nil {
		h.Tipo = t
	}
	if h.Tipo == TipoOriginal && mentionsRetificadora(lines) {
		h.Tipo = TipoRetificadora
	}

	h.DataEmissao = extractEmissionDate(lines)
	if h.DataEmissao != nil && (h.Ano == 0 || h.Mes == 0) {
		y, _ := strconv.Atoi((*h.DataEmissao)[0:4])
		m, _ := strconv.Atoi((*h.DataEmissao)[5:7])
		if h.Ano == 0 {
			h.Ano = y
		}
		if h.Mes == 0 {
			h.Mes = m
		}
	}

	h.Valores = extractMonetaryFields(lines)

	h.Metadata.ServentiaNome = lines.ExtractByLabels("Nome da serventia", "Serventia", "Cartório")
	h.Metadata.CodigoServentia = firstToken(lines.ExtractByLabels("Código da serventia", "Código CNS", "CNS da serventia"))
	for _, l := range lines {
		if m := cnpjToken.FindString(l); m != "" {
			h.Metadata.CNPJ = m
			break
		}
	}
	return h
}

func extractEmissionDate(lines Lines) *string {
	v := lines.ExtractByLabels("Data de emissão", "Data da emissão", "Data de transmissão", "Data da transmissão", "Emitido em")
	if d := findDateToken(v); d != "" {
		v = d
	}
	if iso := NormalizeDate(v); iso != nil {
		return iso
	}
	for _, tokens := range [][]string{{"data", "emiss"}, {"data", "transmiss"}, {"emitid"}} {
		if iso := NormalizeDate(lines.ExtractDateByTokens(tokens...)); iso != nil {
			return iso
		}
	}
	return nil
}

func extractMonetaryFields(lines Lines) MonetaryFields {
	var m MonetaryFields
	for _, f := range moneyFields {
		for _, tokens := range f.tokens {
			v := lines.ExtractByTokens(tokens...)
			if v == "" {
				continue
			}
			if tok := moneyToken.FindString(v); tok != "" {
				v = tok
			}
			if amount := ParseMoney(v); amount != nil {
				f.set(&m, amount)
				break
			}
		}
	}
	return m
}

func mentionsRetificadora(lines Lines) bool {
	for _, l := range lines {
		fl := fold(l)
		if strings.Contains(fl, "retificadora") && !strings.Contains(fl, "original") {
			return true
		}
	}
	return false
}

// parseMonth accepts "10", "10/2025" or a Portuguese month name.
func parseMonth(v string) int {
	if v == "" {
		return 0
	}
	if m := firstIntIn(v, 1, 12); m != 0 {
		return m
	}
	fv := fold(v)
	for name, m := range monthNames {
		if strings.HasPrefix(fv, name) {
			return m
		}
	}
	return 0
}

// parseCompetency reads "MM/AAAA" or "Outubro/2025" style competency values.
func parseCompetency(v string) (mes, ano int) {
	if v == "" {
		return 0, 0
	}
	if m := competencyTok.FindStringSubmatch(v); m != nil {
		mes, _ = strconv.Atoi(m[1])
		ano, _ = strconv.Atoi(m[2])
		if mes < 1 || mes > 12 {
			mes = 0
		}
		return mes, ano
	}
	fv := fold(v)
	for name, m := range monthNames {
		if strings.Contains(fv, name) {
			mes = m
			break
		}
	}
	ano = firstIntIn(v, 1900, 9999)
	return mes, ano
}

// firstIntIn returns the first number in s when it lies within [min, max].
func firstIntIn(s string, min, max int) int {
	tok := firstNumber.FindString(s)
	if tok == "" {
		return 0
	}
	n, err := strconv.Atoi(tok)
	if err != nil || n < min || n > max {
		return 0
	}
	return n
}

func firstToken(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return ""
}
