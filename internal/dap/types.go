package dap

import (
	"strings"
	"time"
)

type Tipo string

const (
	TipoOriginal     Tipo = "ORIGINAL"
	TipoRetificadora Tipo = "RETIFICADORA"
)

// ParseTipo accepts the spellings found in filings and structured payloads.
// An empty value defaults to ORIGINAL.
func ParseTipo(s string) (Tipo, error) {
	v := strings.ToUpper(foldAccents(strings.TrimSpace(s)))
	switch {
	case v == "":
		return TipoOriginal, nil
	case v == "ORIGINAL" || v == "NORMAL":
		return TipoOriginal, nil
	case strings.HasPrefix(v, "RETIFICA"):
		return TipoRetificadora, nil
	}
	return "", &ValidationError{Field: "tipo", Message: "tipo deve ser ORIGINAL ou RETIFICADORA"}
}

// MonetaryFields holds the header figures reported once per filing.
// Unknown figures found in structured payloads are kept in Extras.
type MonetaryFields struct {
	EmolumentoApurado                 *float64           `json:"emolumentoApurado,omitempty"`
	TaxaFiscalizacaoJudiciariaApurada *float64           `json:"taxaFiscalizacaoJudiciariaApurada,omitempty"`
	TaxaFiscalizacaoJudiciariaPaga    *float64           `json:"taxaFiscalizacaoJudiciariaPaga,omitempty"`
	RecompeApurado                    *float64           `json:"recompeApurado,omitempty"`
	RecompeDepositado                 *float64           `json:"recompeDepositado,omitempty"`
	ValoresRecebidosRecompe           *float64           `json:"valoresRecebidosRecompe,omitempty"`
	ValoresRecebidosFerrfis           *float64           `json:"valoresRecebidosFerrfis,omitempty"`
	IssqnRecebidoUsuarios             *float64           `json:"issqnRecebidoUsuarios,omitempty"`
	DiferencaRepasse                  *float64           `json:"diferencaRepasse,omitempty"`
	SaldoPeriodoAnterior              *float64           `json:"saldoPeriodoAnterior,omitempty"`
	ValorRecebidoPeriodoAnterior      *float64           `json:"valorRecebidoPeriodoAnterior,omitempty"`
	DespesasTotal                     *float64           `json:"despesasTotal,omitempty"`
	EstoqueSelosEletronicos           *float64           `json:"estoqueSelosEletronicos,omitempty"`
	TotalAtosPraticados               *float64           `json:"totalAtosPraticados,omitempty"`
	TotalAtosGratuitos                *float64           `json:"totalAtosGratuitos,omitempty"`
	Extras                            map[string]float64 `json:"extras,omitempty"`
}

const (
	OrigemUpload     = "upload"
	OrigemStructured = "structured"
)

// Metadata records where a filing came from.
type Metadata struct {
	Origem          string         `json:"origem,omitempty"`
	ArquivoNome     string         `json:"arquivoNome,omitempty"`
	ImportID        string         `json:"importId,omitempty"`
	ServentiaNome   string         `json:"serventiaNome,omitempty"`
	CodigoServentia string         `json:"codigoServentia,omitempty"`
	CNPJ            string         `json:"cnpj,omitempty"`
	Observacoes     string         `json:"observacoes,omitempty"`
	TextoPreview    string         `json:"textoPreview,omitempty"`
	Estrategia      string         `json:"estrategia,omitempty"`
	OCR             bool           `json:"ocr,omitempty"`
	Extras          map[string]any `json:"extras,omitempty"`
}

type Header struct {
	ID               int64          `json:"id,omitempty"`
	Ano              int            `json:"ano"`
	Mes              int            `json:"mes"`
	Numero           string         `json:"numero,omitempty"`
	Tipo             Tipo           `json:"tipo"`
	DataEmissao      *string        `json:"dataEmissao,omitempty"`
	Status           Status         `json:"status,omitempty"`
	RetificadaPorID  *int64         `json:"retificadaPorId,omitempty"`
	RetificadoraDeID *int64         `json:"retificadoraDeId,omitempty"`
	Valores          MonetaryFields `json:"valores"`
	Metadata         Metadata       `json:"metadata"`
}

type Period struct {
	PeriodoNumero    int            `json:"periodoNumero"`
	TotalAtos        *int           `json:"totalAtos,omitempty"`
	TotalEmolumentos *float64       `json:"totalEmolumentos,omitempty"`
	TotalTed         *float64       `json:"totalTed,omitempty"`
	TotalIss         *float64       `json:"totalIss,omitempty"`
	TotalLiquido     *float64       `json:"totalLiquido,omitempty"`
	OutrosCampos     map[string]any `json:"outrosCampos,omitempty"`
	Atos             []Act          `json:"atos"`
}

type Act struct {
	CodigoAto    string         `json:"codigoAto"`
	Tributacao   string         `json:"tributacao,omitempty"`
	Descricao    string         `json:"descricao,omitempty"`
	Quantidade   int            `json:"quantidade"`
	Emolumentos  *float64       `json:"emolumentos,omitempty"`
	TaxaIss      *float64       `json:"taxaIss,omitempty"`
	TaxaCns      *float64       `json:"taxaCns,omitempty"`
	ValorLiquido *float64       `json:"valorLiquido,omitempty"`
	TfjValor     *float64       `json:"tfjValor,omitempty"`
	Detalhes     map[string]any `json:"detalhes,omitempty"`
}

// Payload is the parser output and the persistence input.
type Payload struct {
	Cabecalho Header   `json:"cabecalho"`
	Periodos  []Period `json:"periodos"`
}

// Record is a persisted filing with its periods and acts hydrated.
type Record struct {
	Header
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Periodos  []Period  `json:"periodos"`
}

// Overrides carries caller supplied values that win over the document.
type Overrides struct {
	ServentiaNome   string
	CodigoServentia string
	CNPJ            string
	Ano             int
	Mes             int
	Observacoes     string
	ArquivoNome     string
}

func (p *Payload) ActCount() int {
	n := 0
	for _, per := range p.Periodos {
		n += len(per.Atos)
	}
	return n
}

func floatPtr(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }

// Merge copies every figure set in o over m.
func (m *MonetaryFields) Merge(o MonetaryFields) {
	set := func(dst **float64, src *float64) {
		if src != nil {
			*dst = src
		}
	}
	set(&m.EmolumentoApurado, o.EmolumentoApurado)
	set(&m.TaxaFiscalizacaoJudiciariaApurada, o.TaxaFiscalizacaoJudiciariaApurada)
	set(&m.TaxaFiscalizacaoJudiciariaPaga, o.TaxaFiscalizacaoJudiciariaPaga)
	set(&m.RecompeApurado, o.RecompeApurado)
	set(&m.RecompeDepositado, o.RecompeDepositado)
	set(&m.ValoresRecebidosRecompe, o.ValoresRecebidosRecompe)
	set(&m.ValoresRecebidosFerrfis, o.ValoresRecebidosFerrfis)
	set(&m.IssqnRecebidoUsuarios, o.IssqnRecebidoUsuarios)
	set(&m.DiferencaRepasse, o.DiferencaRepasse)
	set(&m.SaldoPeriodoAnterior, o.SaldoPeriodoAnterior)
	set(&m.ValorRecebidoPeriodoAnterior, o.ValorRecebidoPeriodoAnterior)
	set(&m.DespesasTotal, o.DespesasTotal)
	set(&m.EstoqueSelosEletronicos, o.EstoqueSelosEletronicos)
	set(&m.TotalAtosPraticados, o.TotalAtosPraticados)
	set(&m.TotalAtosGratuitos, o.TotalAtosGratuitos)
	for k, v := range o.Extras {
		if m.Extras == nil {
			m.Extras = make(map[string]float64, len(o.Extras))
		}
		m.Extras[k] = v
	}
}

// MergeEditable copies the caller editable metadata set in o over m. Provenance
// (origem, arquivo, importId, estratégia, OCR, preview) is never edited.
func (m *Metadata) MergeEditable(o Metadata) {
	if o.ServentiaNome != "" {
		m.ServentiaNome = o.ServentiaNome
	}
	if o.CodigoServentia != "" {
		m.CodigoServentia = o.CodigoServentia
	}
	if o.CNPJ != "" {
		m.CNPJ = o.CNPJ
	}
	if o.Observacoes != "" {
		m.Observacoes = o.Observacoes
	}
	for k, v := range o.Extras {
		if m.Extras == nil {
			m.Extras = make(map[string]any, len(o.Extras))
		}
		m.Extras[k] = v
	}
}
