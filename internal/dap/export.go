package dap

import (
	"io"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// ExportActsCSV writes every act of a record as one CSV row, periods in order.
func ExportActsCSV(rec *Record, w io.Writer) error {
	var (
		periodo, quantidade                                   []int
		codigo, tributacao, descricao                         []string
		emolumentos, taxaIss, taxaCns, valorLiquido, tfjValor []string
	)
	for _, p := range rec.Periodos {
		for _, a := range p.Atos {
			periodo = append(periodo, p.PeriodoNumero)
			codigo = append(codigo, a.CodigoAto)
			tributacao = append(tributacao, a.Tributacao)
			descricao = append(descricao, a.Descricao)
			quantidade = append(quantidade, a.Quantidade)
			emolumentos = append(emolumentos, csvAmount(a.Emolumentos))
			taxaIss = append(taxaIss, csvAmount(a.TaxaIss))
			taxaCns = append(taxaCns, csvAmount(a.TaxaCns))
			valorLiquido = append(valorLiquido, csvAmount(a.ValorLiquido))
			tfjValor = append(tfjValor, csvAmount(a.TfjValor))
		}
	}

	df := dataframe.New(
		series.New(periodo, series.Int, "periodo"),
		series.New(codigo, series.String, "codigo_ato"),
		series.New(tributacao, series.String, "tributacao"),
		series.New(descricao, series.String, "descricao"),
		series.New(quantidade, series.Int, "quantidade"),
		series.New(emolumentos, series.String, "emolumentos"),
		series.New(taxaIss, series.String, "taxa_iss"),
		series.New(taxaCns, series.String, "taxa_cns"),
		series.New(valorLiquido, series.String, "valor_liquido"),
		series.New(tfjValor, series.String, "tfj_valor"),
	)
	if df.Err != nil {
		return df.Err
	}
	return df.WriteCSV(w)
}

// csvAmount keeps absent figures empty instead of writing NaN.
func csvAmount(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}
