package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/farxc/dap-ledger/internal/dap"
	"github.com/farxc/dap-ledger/internal/ledger"
	"github.com/farxc/dap-ledger/internal/logger"
	"github.com/farxc/dap-ledger/internal/response"
	"github.com/farxc/dap-ledger/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// repoStub stores at most one filing per competency and never links.
type repoStub struct {
	records map[int64]*dap.Record
}

func (r *repoStub) CreateWithRetification(_ context.Context, h *dap.Header, periods []dap.Period) (*dap.Record, error) {
	for _, rec := range r.records {
		if rec.Ano == h.Ano && rec.Mes == h.Mes && rec.Tipo == h.Tipo && rec.Status != dap.StatusRemovida {
			return nil, &store.ConflictError{ExistingID: rec.ID, Ano: h.Ano, Mes: h.Mes, Tipo: h.Tipo}
		}
	}
	rec := &dap.Record{Header: *h, Periodos: periods}
	rec.ID = int64(len(r.records) + 1)
	r.records[rec.ID] = rec
	return rec, nil
}

func (r *repoStub) GetByID(_ context.Context, id int64) (*dap.Record, error) {
	rec, ok := r.records[id]
	if !ok || rec.Status == dap.StatusRemovida {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

func (r *repoStub) List(_ context.Context, f store.DapFilter) ([]dap.Record, int, error) {
	var out []dap.Record
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	return out, len(out), nil
}

func (r *repoStub) UpdateHeader(_ context.Context, id int64, apply func(*dap.Header) error) error {
	rec, ok := r.records[id]
	if !ok {
		return store.ErrNotFound
	}
	return apply(&rec.Header)
}

func (r *repoStub) SoftDelete(_ context.Context, id int64) error {
	rec, ok := r.records[id]
	if !ok || rec.Status == dap.StatusRemovida {
		return store.ErrNotFound
	}
	rec.Status = dap.StatusRemovida
	return nil
}

type importsStub struct {
	rows []store.ImportHistory
}

func (s *importsStub) InsertImportHistory(_ context.Context, h *store.ImportHistory) error {
	h.ID = int64(len(s.rows) + 1)
	s.rows = append(s.rows, *h)
	return nil
}

func (s *importsStub) GetLatest(_ context.Context, limit int) ([]store.ImportHistory, error) {
	return s.rows, nil
}

func (s *importsStub) UpdateImportStatus(_ context.Context, id int64, status, message string, dapID *int64) error {
	s.rows[id-1].Status = status
	s.rows[id-1].Message = message
	s.rows[id-1].DapID = dapID
	return nil
}

// textOnly serves a fixed text layer for every document.
type textOnly string

func (t textOnly) ExtractText(context.Context, []byte) (string, error) { return string(t), nil }

func newTestApp(text string) (*application, *importsStub) {
	l := logger.New(logger.LevelError)
	l.SetOutput(io.Discard)
	imports := &importsStub{}
	app := &application{
		config:  config{parseTimeout: time.Minute, maxUploadBytes: 1 << 20},
		ledger:  ledger.NewService(&repoStub{records: map[int64]*dap.Record{}}, l, time.Minute),
		imports: imports,
		parser:  dap.NewParser(textOnly(text), dap.WithLogger(l)),
		logger:  l,
	}
	return app, imports
}

const structuredBody = `{
  "cabecalho": {"ano": 2025, "mes": 10, "tipo": "ORIGINAL"},
  "periodos": [{"periodoNumero": 1, "atos": [{"codigoAto": "1001", "quantidade": 2, "tfjValor": 20.5}]}]
}`

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func uploadRequest(t *testing.T, path string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "dap.pdf")
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("serventiaNome", "Cartório Teste"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestCreateThenConflict(t *testing.T) {
	app, _ := newTestApp("")
	mux := app.mount()

	rr := do(t, mux, httptest.NewRequest(http.MethodPost, "/v1/daps", strings.NewReader(structuredBody)))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = do(t, mux, httptest.NewRequest(http.MethodPost, "/v1/daps", strings.NewReader(structuredBody)))
	require.Equal(t, http.StatusConflict, rr.Code)
	var errBody response.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &errBody))
	assert.Equal(t, int64(1), errBody.ExistingID)
	assert.Equal(t, "conflict", errBody.Code)
}

func TestCreateValidationError(t *testing.T) {
	app, _ := newTestApp("")
	body := strings.Replace(structuredBody, `"mes": 10`, `"mes": 13`, 1)

	rr := do(t, app.mount(), httptest.NewRequest(http.MethodPost, "/v1/daps", strings.NewReader(body)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	var errBody response.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &errBody))
	assert.Equal(t, "mes", errBody.Field)
}

func TestGetDeleteNotFound(t *testing.T) {
	app, _ := newTestApp("")
	mux := app.mount()
	require.Equal(t, http.StatusCreated, do(t, mux, httptest.NewRequest(http.MethodPost, "/v1/daps", strings.NewReader(structuredBody))).Code)

	assert.Equal(t, http.StatusOK, do(t, mux, httptest.NewRequest(http.MethodGet, "/v1/daps/1", nil)).Code)
	assert.Equal(t, http.StatusNoContent, do(t, mux, httptest.NewRequest(http.MethodDelete, "/v1/daps/1", nil)).Code)
	assert.Equal(t, http.StatusNotFound, do(t, mux, httptest.NewRequest(http.MethodGet, "/v1/daps/1", nil)).Code)
	assert.Equal(t, http.StatusNotFound, do(t, mux, httptest.NewRequest(http.MethodDelete, "/v1/daps/1", nil)).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, mux, httptest.NewRequest(http.MethodGet, "/v1/daps/abc", nil)).Code)
}

func TestUploadParsesAndRecordsImport(t *testing.T) {
	text := "Competência: 10/2025\nCódigo Tributação Quantidade Valor\n1001 1 2 150,00\n1002 2 1 80,00"
	app, imports := newTestApp(text)

	rr := do(t, app.mount(), uploadRequest(t, "/v1/daps/upload", []byte("%PDF-1.4")))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var body DapResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 2025, body.Data.Ano)
	assert.Equal(t, "Cartório Teste", body.Data.Metadata.ServentiaNome)
	assert.Equal(t, "dap.pdf", body.Data.Metadata.ArquivoNome)

	require.Len(t, imports.rows, 1)
	assert.Equal(t, store.ImportStatusSuccess, imports.rows[0].Status)
	assert.Equal(t, body.Data.Metadata.ImportID, imports.rows[0].ImportID)
}

func TestUploadParseErrorCarriesPreview(t *testing.T) {
	app, imports := newTestApp("Declaração sem competência nem atos")

	rr := do(t, app.mount(), uploadRequest(t, "/v1/daps/upload", []byte("%PDF-1.4")))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	var errBody response.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &errBody))
	assert.Equal(t, "parse", errBody.Code)
	assert.Contains(t, errBody.Preview, "Declaração sem competência")

	require.Len(t, imports.rows, 1)
	assert.Equal(t, store.ImportStatusFailure, imports.rows[0].Status)
}

func TestListRejectsBadQuery(t *testing.T) {
	app, _ := newTestApp("")
	mux := app.mount()
	assert.Equal(t, http.StatusBadRequest, do(t, mux, httptest.NewRequest(http.MethodGet, "/v1/daps?ano=abc", nil)).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, mux, httptest.NewRequest(http.MethodGet, "/v1/daps?status=APAGADA", nil)).Code)
	assert.Equal(t, http.StatusOK, do(t, mux, httptest.NewRequest(http.MethodGet, "/v1/daps?ano=2025", nil)).Code)
}

func TestExportActsCSV(t *testing.T) {
	app, _ := newTestApp("")
	mux := app.mount()
	require.Equal(t, http.StatusCreated, do(t, mux, httptest.NewRequest(http.MethodPost, "/v1/daps", strings.NewReader(structuredBody))).Code)

	rr := do(t, mux, httptest.NewRequest(http.MethodGet, "/v1/daps/1/atos.csv", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rr.Body.String(), "1,1001,,,2,,,,,20.50")
}
