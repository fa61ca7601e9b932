package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/farxc/dap-ledger/internal/dap"
	"github.com/farxc/dap-ledger/internal/ledger"
	"github.com/farxc/dap-ledger/internal/response"
	"github.com/farxc/dap-ledger/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type DapResponse = response.APIResponse[*dap.Record]
type DapListResponse = response.APIResponse[*ledger.ListResult]
type ParseResponse = response.APIResponse[*dap.Payload]

// @Summary		Upload a DAP PDF
// @Description	Parses the uploaded filing and stores it. Form fields override values read from the document.
// @Tags			DAP
// @Accept			multipart/form-data
// @Produce		json
// @Param			file	formData	file					true	"DAP PDF"
// @Success		201		{object}	DapResponse
// @Failure		400		{object}	response.ErrorResponse	"Unreadable document or invalid competency"
// @Failure		409		{object}	response.ErrorResponse	"An active filing already exists for the competency"
// @Router			/daps/upload [post]
func (app *application) handleUploadDap(w http.ResponseWriter, r *http.Request) {
	const component = "API-Upload"

	buf, name, ov, err := app.readUpload(w, r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	importID := uuid.NewString()
	history := &store.ImportHistory{
		ImportID:    importID,
		SourceFile:  name,
		TriggerType: store.TriggerTypeUpload,
		Status:      store.ImportStatusInProgress,
	}
	if err := app.imports.InsertImportHistory(ctx, history); err != nil {
		app.logger.Warn(component, "Failed to record import: file=%s err=%v", name, err)
		history = nil
	}

	rec, err := app.ledger.ImportPDF(ctx, app.parser, buf, ledger.ImportOptions{ImportID: importID, FileName: name, Overrides: ov})
	if history != nil {
		status, message := store.ImportStatusSuccess, ""
		var dapID *int64
		switch {
		case err == nil:
			dapID = &rec.ID
		case errors.Is(err, store.ErrDuplicateCompetency):
			status, message = store.ImportStatusSkipped, err.Error()
		default:
			status, message = store.ImportStatusFailure, err.Error()
		}
		if uerr := app.imports.UpdateImportStatus(ctx, history.ID, status, message, dapID); uerr != nil {
			app.logger.Warn(component, "Failed to finish import record: id=%d err=%v", history.ID, uerr)
		}
	}
	if err != nil {
		app.writeDomainError(w, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, &DapResponse{Success: true, Data: rec, Message: "DAP importada"}); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to write response")
	}
}

// @Summary		Parse a DAP PDF
// @Description	Returns the extracted payload without storing it.
// @Tags			DAP
// @Accept			multipart/form-data
// @Produce		json
// @Param			file	formData	file	true	"DAP PDF"
// @Success		200		{object}	ParseResponse
// @Failure		400		{object}	response.ErrorResponse
// @Router			/daps/parse [post]
func (app *application) handleParseDap(w http.ResponseWriter, r *http.Request) {
	buf, name, ov, err := app.readUpload(w, r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	ov.ArquivoNome = name

	payload, err := app.ledger.Parse(r.Context(), app.parser, buf, &ov)
	if err != nil {
		app.writeDomainError(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, &ParseResponse{Success: true, Data: payload}); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to write response")
	}
}

// @Summary		Create a DAP from a structured payload
// @Tags			DAP
// @Accept			json
// @Produce		json
// @Param			dap	body		dap.Payload	true	"Header and periods"
// @Success		201	{object}	DapResponse
// @Failure		400	{object}	response.ErrorResponse
// @Failure		409	{object}	response.ErrorResponse
// @Router			/daps [post]
func (app *application) handleCreateDap(w http.ResponseWriter, r *http.Request) {
	var payload dap.Payload
	if err := readJSON(w, r, &payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request payload: "+err.Error())
		return
	}

	rec, err := app.ledger.CreateFromStructured(r.Context(), &payload)
	if err != nil {
		app.writeDomainError(w, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, &DapResponse{Success: true, Data: rec, Message: "DAP criada"}); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to write response")
	}
}

// @Summary		List DAPs
// @Tags			DAP
// @Produce		json
// @Param			ano			query		int		false	"Competency year"
// @Param			mes			query		int		false	"Competency month"
// @Param			tipo		query		string	false	"ORIGINAL or RETIFICADORA"
// @Param			status		query		string	false	"ATIVA, RETIFICADA, RETIFICADORA or REMOVIDA"
// @Param			page		query		int		false	"Page"		default(1)
// @Param			pageSize	query		int		false	"Page size"	default(20)
// @Success		200			{object}	DapListResponse
// @Router			/daps [get]
func (app *application) handleListDaps(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ledger.ListFilter{
		Tipo:   q.Get("tipo"),
		Status: q.Get("status"),
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"ano", &filter.Ano},
		{"mes", &filter.Mes},
		{"page", &filter.Page},
		{"pageSize", &filter.PageSize},
	} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s: %q", p.name, v))
			return
		}
		*p.dst = n
	}

	result, err := app.ledger.List(r.Context(), filter)
	if err != nil {
		app.writeDomainError(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, &DapListResponse{Success: true, Data: result}); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to write response")
	}
}

// @Summary		Get a DAP
// @Tags			DAP
// @Produce		json
// @Param			id	path		int	true	"DAP id"
// @Success		200	{object}	DapResponse
// @Failure		404	{object}	response.ErrorResponse
// @Router			/daps/{id} [get]
func (app *application) handleGetDap(w http.ResponseWriter, r *http.Request) {
	id, ok := dapID(w, r)
	if !ok {
		return
	}

	rec, err := app.ledger.Get(r.Context(), id)
	if err != nil {
		app.writeDomainError(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, &DapResponse{Success: true, Data: rec}); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to write response")
	}
}

// @Summary		Update a DAP header
// @Description	Only header fields change. A body carrying only status is an explicit status change.
// @Tags			DAP
// @Accept			json
// @Produce		json
// @Param			id		path		int					true	"DAP id"
// @Param			patch	body		ledger.HeaderPatch	true	"Header fields"
// @Success		200		{object}	DapResponse
// @Failure		400		{object}	response.ErrorResponse
// @Failure		404		{object}	response.ErrorResponse
// @Router			/daps/{id} [patch]
func (app *application) handleUpdateDap(w http.ResponseWriter, r *http.Request) {
	id, ok := dapID(w, r)
	if !ok {
		return
	}

	var patch ledger.HeaderPatch
	if err := readJSON(w, r, &patch); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request payload: "+err.Error())
		return
	}

	rec, err := app.ledger.Update(r.Context(), id, patch)
	if err != nil {
		app.writeDomainError(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, &DapResponse{Success: true, Data: rec, Message: "DAP atualizada"}); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to write response")
	}
}

// @Summary		Remove a DAP
// @Tags			DAP
// @Param			id	path	int	true	"DAP id"
// @Success		204
// @Failure		404	{object}	response.ErrorResponse
// @Router			/daps/{id} [delete]
func (app *application) handleDeleteDap(w http.ResponseWriter, r *http.Request) {
	id, ok := dapID(w, r)
	if !ok {
		return
	}

	if err := app.ledger.SoftDelete(r.Context(), id); err != nil {
		app.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// @Summary		Export the acts of a DAP as CSV
// @Tags			DAP
// @Produce		text/csv
// @Param			id	path	int	true	"DAP id"
// @Success		200
// @Failure		404	{object}	response.ErrorResponse
// @Router			/daps/{id}/atos.csv [get]
func (app *application) handleExportActs(w http.ResponseWriter, r *http.Request) {
	id, ok := dapID(w, r)
	if !ok {
		return
	}

	rec, err := app.ledger.Get(r.Context(), id)
	if err != nil {
		app.writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="dap-%d-%04d-%02d-atos.csv"`, rec.ID, rec.Ano, rec.Mes))
	if err := dap.ExportActsCSV(rec, w); err != nil {
		app.logger.Error("API-Export", "Failed to write CSV: id=%d err=%v", id, err)
	}
}

func dapID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeJSONError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// readUpload reads the multipart "file" field and the optional override fields.
func (app *application) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, dap.Overrides, error) {
	var ov dap.Overrides

	r.Body = http.MaxBytesReader(w, r.Body, app.config.maxUploadBytes)
	if err := r.ParseMultipartForm(app.config.maxUploadBytes); err != nil {
		return nil, "", ov, fmt.Errorf("invalid multipart form: %w", err)
	}
	file, fh, err := r.FormFile("file")
	if err != nil {
		return nil, "", ov, errors.New("missing file field")
	}
	defer file.Close()

	buf, err := io.ReadAll(file)
	if err != nil {
		return nil, "", ov, fmt.Errorf("failed to read upload: %w", err)
	}

	ov.ServentiaNome = strings.TrimSpace(r.FormValue("serventiaNome"))
	ov.CodigoServentia = strings.TrimSpace(r.FormValue("codigoServentia"))
	ov.CNPJ = strings.TrimSpace(r.FormValue("cnpj"))
	ov.Observacoes = strings.TrimSpace(r.FormValue("observacoes"))
	if v := strings.TrimSpace(r.FormValue("ano")); v != "" {
		if ov.Ano, err = strconv.Atoi(v); err != nil {
			return nil, "", ov, fmt.Errorf("invalid ano: %q", v)
		}
	}
	if v := strings.TrimSpace(r.FormValue("mes")); v != "" {
		if ov.Mes, err = strconv.Atoi(v); err != nil {
			return nil, "", ov, fmt.Errorf("invalid mes: %q", v)
		}
	}
	return buf, fh.Filename, ov, nil
}
