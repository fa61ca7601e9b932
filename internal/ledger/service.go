package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/farxc/dap-ledger/internal/dap"
	"github.com/farxc/dap-ledger/internal/logger"
	"github.com/farxc/dap-ledger/internal/store"
	"github.com/google/uuid"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Repository is the transactional storage the ledger runs on.
type Repository interface {
	CreateWithRetification(ctx context.Context, h *dap.Header, periods []dap.Period) (*dap.Record, error)
	GetByID(ctx context.Context, id int64) (*dap.Record, error)
	List(ctx context.Context, f store.DapFilter) ([]dap.Record, int, error)
	UpdateHeader(ctx context.Context, id int64, apply func(*dap.Header) error) error
	SoftDelete(ctx context.Context, id int64) error
}

// DocumentParser turns a PDF into a payload; *dap.Parser and the parse cache
// both satisfy it.
type DocumentParser interface {
	Parse(ctx context.Context, buf []byte, ov *dap.Overrides) (*dap.Payload, error)
}

type Service struct {
	repo         Repository
	logger       *logger.Logger
	parseTimeout time.Duration
}

func NewService(repo Repository, log *logger.Logger, parseTimeout time.Duration) *Service {
	return &Service{repo: repo, logger: log, parseTimeout: parseTimeout}
}

type ImportOptions struct {
	ImportID  string
	FileName  string
	Overrides dap.Overrides
}

type ListFilter struct {
	Ano      int
	Mes      int
	Tipo     string
	Status   string
	Page     int
	PageSize int
}

type ListResult struct {
	Items    []dap.Record `json:"items"`
	Total    int          `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"pageSize"`
}

// HeaderPatch carries the header fields an update may change. Nil fields are
// left untouched. A patch that only carries Status is an explicit status change.
type HeaderPatch struct {
	Numero      *string             `json:"numero,omitempty"`
	DataEmissao *string             `json:"dataEmissao,omitempty"`
	Valores     *dap.MonetaryFields `json:"valores,omitempty"`
	Metadata    *dap.Metadata       `json:"metadata,omitempty"`
	Status      *dap.Status         `json:"status,omitempty"`
}

func (p HeaderPatch) statusOnly() bool {
	return p.Status != nil && p.Numero == nil && p.DataEmissao == nil && p.Valores == nil && p.Metadata == nil
}

// CreateFromStructured validates a payload and stores it atomically, linking a
// RETIFICADORA to the ORIGINAL it corrects.
func (s *Service) CreateFromStructured(ctx context.Context, payload *dap.Payload) (*dap.Record, error) {
	const component = "Ledger"

	if err := dap.ValidatePayload(payload); err != nil {
		return nil, err
	}

	h := payload.Cabecalho
	h.ID = 0
	h.RetificadaPorID = nil
	h.RetificadoraDeID = nil
	h.Status = dap.InitialStatus(h.Tipo)
	if h.Metadata.Origem == "" {
		h.Metadata.Origem = dap.OrigemStructured
	}
	if payload.Periodos == nil {
		payload.Periodos = []dap.Period{}
	}
	for i := range payload.Periodos {
		if payload.Periodos[i].Atos == nil {
			payload.Periodos[i].Atos = []dap.Act{}
		}
	}

	rec, err := s.repo.CreateWithRetification(ctx, &h, payload.Periodos)
	if err != nil {
		s.logger.Warn(component, "Create failed: ano=%d mes=%d tipo=%s err=%v", h.Ano, h.Mes, h.Tipo, err)
		return nil, classify("create", err)
	}
	if rec.RetificadoraDeID != nil {
		s.logger.Info(component, "Retificadora %d supersedes original %d", rec.ID, *rec.RetificadoraDeID)
	}
	return rec, nil
}

// Parse runs parser under the parse timeout without storing anything.
func (s *Service) Parse(ctx context.Context, parser DocumentParser, buf []byte, ov *dap.Overrides) (*dap.Payload, error) {
	if s.parseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.parseTimeout)
		defer cancel()
	}
	return parser.Parse(ctx, buf, ov)
}

// ImportPDF parses an uploaded filing and stores it with its provenance.
func (s *Service) ImportPDF(ctx context.Context, parser DocumentParser, buf []byte, opts ImportOptions) (*dap.Record, error) {
	const component = "Ledger"

	ov := opts.Overrides
	if opts.FileName != "" {
		ov.ArquivoNome = opts.FileName
	}
	payload, err := s.Parse(ctx, parser, buf, &ov)
	if err != nil {
		s.logger.Warn(component, "Parse failed: file=%s err=%v", opts.FileName, err)
		return nil, err
	}

	if opts.ImportID == "" {
		opts.ImportID = uuid.NewString()
	}
	payload.Cabecalho.Metadata.Origem = dap.OrigemUpload
	payload.Cabecalho.Metadata.ImportID = opts.ImportID
	return s.CreateFromStructured(ctx, payload)
}

func (s *Service) Get(ctx context.Context, id int64) (*dap.Record, error) {
	rec, err := s.repo.GetByID(ctx, id)
	return rec, classify("get", err)
}

func (s *Service) List(ctx context.Context, f ListFilter) (*ListResult, error) {
	filter := store.DapFilter{Ano: f.Ano, Mes: f.Mes}
	if f.Ano != 0 && (f.Ano < 1900 || f.Ano > 9999) {
		return nil, &dap.ValidationError{Field: "ano", Message: "ano deve estar entre 1900 e 9999"}
	}
	if f.Mes != 0 && (f.Mes < 1 || f.Mes > 12) {
		return nil, &dap.ValidationError{Field: "mes", Message: "mes deve estar entre 1 e 12"}
	}
	if strings.TrimSpace(f.Tipo) != "" {
		t, err := dap.ParseTipo(f.Tipo)
		if err != nil {
			return nil, err
		}
		filter.Tipo = t
	}
	if f.Status != "" {
		st := dap.Status(strings.ToUpper(strings.TrimSpace(f.Status)))
		if !st.Valid() {
			return nil, &dap.ValidationError{Field: "status", Message: "status inválido: " + f.Status}
		}
		filter.Status = st
	}

	page, size := f.Page, f.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	filter.Limit = size
	filter.Offset = (page - 1) * size

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, classify("list", err)
	}
	if items == nil {
		items = []dap.Record{}
	}
	return &ListResult{Items: items, Total: total, Page: page, PageSize: size}, nil
}

// Update changes header fields only. Status follows dap.NextStatus: an ATIVA
// carried along with other edits never reactivates a superseded filing.
func (s *Service) Update(ctx context.Context, id int64, patch HeaderPatch) (*dap.Record, error) {
	explicit := patch.statusOnly()

	err := s.repo.UpdateHeader(ctx, id, func(h *dap.Header) error {
		if patch.Numero != nil {
			h.Numero = strings.TrimSpace(*patch.Numero)
		}
		if patch.DataEmissao != nil {
			if strings.TrimSpace(*patch.DataEmissao) == "" {
				h.DataEmissao = nil
			} else {
				iso := dap.NormalizeDate(*patch.DataEmissao)
				if iso == nil {
					return &dap.ValidationError{Field: "dataEmissao", Message: "data deve estar no formato DD/MM/AAAA ou AAAA-MM-DD"}
				}
				h.DataEmissao = iso
			}
		}
		if patch.Valores != nil {
			h.Valores.Merge(*patch.Valores)
		}
		if patch.Metadata != nil {
			h.Metadata.MergeEditable(*patch.Metadata)
		}
		if patch.Status != nil {
			next, err := dap.NextStatus(h.Status, dap.Status(strings.ToUpper(string(*patch.Status))), explicit)
			if err != nil {
				return err
			}
			if next != h.Status {
				s.logger.Info("Ledger", "Status change: id=%d %s -> %s", id, h.Status, next)
			}
			h.Status = next
		}
		return nil
	})
	if err != nil {
		return nil, classify("update", err)
	}
	return s.Get(ctx, id)
}

// SoftDelete marks a filing REMOVIDA and repairs the retification link.
func (s *Service) SoftDelete(ctx context.Context, id int64) error {
	return classify("delete", s.repo.SoftDelete(ctx, id))
}
