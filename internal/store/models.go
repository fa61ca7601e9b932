package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/farxc/dap-ledger/internal/dap"
)

// JSON is a jsonb column. lib/pq sends []byte as bytea, so values go out as text.
type JSON []byte

func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

func (j *JSON) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = JSON(v)
	default:
		return fmt.Errorf("cannot scan %T into JSON", src)
	}
	return nil
}

func marshalJSON(v any) (JSON, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return nil, nil
	}
	return JSON(b), nil
}

func (j JSON) decode(v any) error {
	if len(j) == 0 {
		return nil
	}
	return json.Unmarshal(j, v)
}

// Dap represents the 'daps' table.
type Dap struct {
	ID               int64      `db:"id"`
	Ano              int        `db:"ano"`
	Mes              int        `db:"mes"`
	Numero           string     `db:"numero"`
	Tipo             string     `db:"tipo"`
	DataEmissao      *time.Time `db:"data_emissao"`
	Status           string     `db:"status"`
	RetificadaPorID  *int64     `db:"retificada_por_id"`
	RetificadoraDeID *int64     `db:"retificadora_de_id"`
	Valores          JSON       `db:"valores"`
	Metadata         JSON       `db:"metadata"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

// DapPeriodo represents the 'dap_periodos' table.
type DapPeriodo struct {
	ID               int64    `db:"id"`
	DapID            int64    `db:"dap_id"`
	PeriodoNumero    int      `db:"periodo_numero"`
	TotalAtos        *int     `db:"total_atos"`
	TotalEmolumentos *float64 `db:"total_emolumentos"`
	TotalTed         *float64 `db:"total_ted"`
	TotalIss         *float64 `db:"total_iss"`
	TotalLiquido     *float64 `db:"total_liquido"`
	OutrosCampos     JSON     `db:"outros_campos"`
}

// DapAto represents the 'dap_atos' table.
type DapAto struct {
	ID           int64    `db:"id"`
	PeriodoID    int64    `db:"periodo_id"`
	CodigoAto    string   `db:"codigo_ato"`
	Tributacao   string   `db:"tributacao"`
	Descricao    string   `db:"descricao"`
	Quantidade   int      `db:"quantidade"`
	Emolumentos  *float64 `db:"emolumentos"`
	TaxaIss      *float64 `db:"taxa_iss"`
	TaxaCns      *float64 `db:"taxa_cns"`
	ValorLiquido *float64 `db:"valor_liquido"`
	TfjValor     *float64 `db:"tfj_valor"`
	Detalhes     JSON     `db:"detalhes"`
}

// ImportHistory represents the 'dap_import_history' table.
type ImportHistory struct {
	ID          int64      `db:"id" json:"id"`
	ImportID    string     `db:"import_id" json:"import_id"`
	SourceFile  string     `db:"source_file" json:"source_file"`
	TriggerType string     `db:"trigger_type" json:"trigger_type"`
	Status      string     `db:"status" json:"status"`
	Message     string     `db:"message" json:"message,omitempty"`
	DapID       *int64     `db:"dap_id" json:"dap_id,omitempty"`
	ProcessedAt time.Time  `db:"processed_at" json:"processed_at"`
	FinishedAt  *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}

func newDapRow(h *dap.Header) (*Dap, error) {
	row := &Dap{
		ID:               h.ID,
		Ano:              h.Ano,
		Mes:              h.Mes,
		Numero:           h.Numero,
		Tipo:             string(h.Tipo),
		Status:           string(h.Status),
		RetificadaPorID:  h.RetificadaPorID,
		RetificadoraDeID: h.RetificadoraDeID,
	}
	if h.DataEmissao != nil {
		t, err := time.Parse(time.DateOnly, *h.DataEmissao)
		if err != nil {
			return nil, fmt.Errorf("invalid data_emissao %q: %w", *h.DataEmissao, err)
		}
		row.DataEmissao = &t
	}
	var err error
	if row.Valores, err = marshalJSON(h.Valores); err != nil {
		return nil, fmt.Errorf("failed to encode valores: %w", err)
	}
	if row.Metadata, err = marshalJSON(h.Metadata); err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	return row, nil
}

func (d *Dap) header() (dap.Header, error) {
	h := dap.Header{
		ID:               d.ID,
		Ano:              d.Ano,
		Mes:              d.Mes,
		Numero:           d.Numero,
		Tipo:             dap.Tipo(d.Tipo),
		Status:           dap.Status(d.Status),
		RetificadaPorID:  d.RetificadaPorID,
		RetificadoraDeID: d.RetificadoraDeID,
	}
	if d.DataEmissao != nil {
		iso := d.DataEmissao.Format(time.DateOnly)
		h.DataEmissao = &iso
	}
	if err := d.Valores.decode(&h.Valores); err != nil {
		return h, fmt.Errorf("failed to decode valores of dap %d: %w", d.ID, err)
	}
	if err := d.Metadata.decode(&h.Metadata); err != nil {
		return h, fmt.Errorf("failed to decode metadata of dap %d: %w", d.ID, err)
	}
	return h, nil
}

func (d *Dap) record() (*dap.Record, error) {
	h, err := d.header()
	if err != nil {
		return nil, err
	}
	return &dap.Record{Header: h, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt}, nil
}

func (p *DapPeriodo) period() (dap.Period, error) {
	out := dap.Period{
		PeriodoNumero:    p.PeriodoNumero,
		TotalAtos:        p.TotalAtos,
		TotalEmolumentos: p.TotalEmolumentos,
		TotalTed:         p.TotalTed,
		TotalIss:         p.TotalIss,
		TotalLiquido:     p.TotalLiquido,
		Atos:             []dap.Act{},
	}
	if err := p.OutrosCampos.decode(&out.OutrosCampos); err != nil {
		return out, fmt.Errorf("failed to decode outros_campos of periodo %d: %w", p.ID, err)
	}
	return out, nil
}

func (a *DapAto) act() (dap.Act, error) {
	out := dap.Act{
		CodigoAto:    a.CodigoAto,
		Tributacao:   a.Tributacao,
		Descricao:    a.Descricao,
		Quantidade:   a.Quantidade,
		Emolumentos:  a.Emolumentos,
		TaxaIss:      a.TaxaIss,
		TaxaCns:      a.TaxaCns,
		ValorLiquido: a.ValorLiquido,
		TfjValor:     a.TfjValor,
	}
	if err := a.Detalhes.decode(&out.Detalhes); err != nil {
		return out, fmt.Errorf("failed to decode detalhes of ato %d: %w", a.ID, err)
	}
	return out, nil
}
