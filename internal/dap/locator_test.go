package dap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractByLabels(t *testing.T) {
	lines := SplitLines("DECLARAÇÃO DE ATOS PRATICADOS\r\n  Mes de Referencia :  10 \nAno\n2025\nSaldo: -100,00\n")

	assert.Equal(t, "10", lines.ExtractByLabels("Mês de referência"))
	assert.Equal(t, "2025", lines.ExtractByLabels("Ano"), "value on the following line")
	assert.Equal(t, "-100,00", lines.ExtractByLabels("Saldo"), "negative sign survives separator trimming")
	assert.Equal(t, "", lines.ExtractByLabels("Protocolo"))
}

func TestExtractByLabelsWholeWord(t *testing.T) {
	lines := SplitLines("Anotações gerais\nAno: 2024")
	assert.Equal(t, "2024", lines.ExtractByLabels("Ano"))
}

func TestExtractByTokens(t *testing.T) {
	lines := SplitLines("Valor do RECOMPE apurado no mês: R$ 1.500,00\nTotal de despesas - 300,10")

	assert.Equal(t, "R$ 1.500,00", lines.ExtractByTokens("recompe", "apurado"))
	assert.Equal(t, "300,10", lines.ExtractByTokens("total", "despesas"))
	assert.Equal(t, "", lines.ExtractByTokens("selos"))
}

func TestExtractDateByTokens(t *testing.T) {
	lines := SplitLines("Emitida por sistema\nData da transmissão 07/11/2025 às 10:31")
	assert.Equal(t, "07/11/2025", lines.ExtractDateByTokens("data", "transmiss"))
}

func TestExtractHeader(t *testing.T) {
	text := `DAP - Declaração de Atos Praticados
Serventia: Cartório do 2º Ofício de Notas
Código da serventia: 123456
CNPJ 12.345.678/0001-90
Competência: 09/2025
Tipo de declaração: Retificadora
Número da DAP: 2025/000123
Data de emissão: 15/10/2025
Emolumento apurado: R$ 10.500,00
Valores recebidos do RECOMPE: 1.200,50
Saldo do período anterior: -35,10`

	h := ExtractHeader(SplitLines(text))
	assert.Equal(t, 2025, h.Ano)
	assert.Equal(t, 9, h.Mes)
	assert.Equal(t, TipoRetificadora, h.Tipo)
	assert.Equal(t, "2025/000123", h.Numero)
	if assert.NotNil(t, h.DataEmissao) {
		assert.Equal(t, "2025-10-15", *h.DataEmissao)
	}
	if assert.NotNil(t, h.Valores.EmolumentoApurado) {
		assert.InDelta(t, 10500.0, *h.Valores.EmolumentoApurado, 0.001)
	}
	if assert.NotNil(t, h.Valores.ValoresRecebidosRecompe) {
		assert.InDelta(t, 1200.50, *h.Valores.ValoresRecebidosRecompe, 0.001)
	}
	if assert.NotNil(t, h.Valores.SaldoPeriodoAnterior) {
		assert.InDelta(t, -35.10, *h.Valores.SaldoPeriodoAnterior, 0.001)
	}
	assert.Equal(t, "Cartório do 2º Ofício de Notas", h.Metadata.ServentiaNome)
	assert.Equal(t, "123456", h.Metadata.CodigoServentia)
	assert.Equal(t, "12.345.678/0001-90", h.Metadata.CNPJ)
}

func TestExtractHeaderInfersCompetencyFromEmissionDate(t *testing.T) {
	h := ExtractHeader(SplitLines("Declaração original\nData de emissão: 03/04/2024"))
	assert.Equal(t, 2024, h.Ano)
	assert.Equal(t, 4, h.Mes)
	assert.Equal(t, TipoOriginal, h.Tipo)
}

func TestExtractHeaderMonthName(t *testing.T) {
	h := ExtractHeader(SplitLines("Mês: Outubro\nAno: 2025"))
	assert.Equal(t, 10, h.Mes)
	assert.Equal(t, 2025, h.Ano)
}
