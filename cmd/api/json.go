package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/farxc/dap-ledger/internal/dap"
	"github.com/farxc/dap-ledger/internal/ledger"
	"github.com/farxc/dap-ledger/internal/response"
	"github.com/farxc/dap-ledger/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")

	w.WriteHeader(status)

	return json.NewEncoder(w).Encode(data)
}

func writeJSONError(w http.ResponseWriter, status int, message string) error {
	return writeJSON(w, status, &response.ErrorResponse{Error: message})
}

func readJSON(w http.ResponseWriter, r *http.Request, data any) error {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	return dec.Decode(data)
}

// writeDomainError maps ledger and parser failures to their HTTP status.
func (app *application) writeDomainError(w http.ResponseWriter, err error) {
	const component = "API"

	var (
		verr     *dap.ValidationError
		perr     *dap.ParseError
		conflict *store.ConflictError
		dberr    *ledger.PersistenceError
	)
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, &response.ErrorResponse{
			Error:      "já existe uma DAP ativa para esta competência e tipo",
			Code:       "conflict",
			ExistingID: conflict.ExistingID,
		})
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, &response.ErrorResponse{Error: verr.Error(), Code: "validation", Field: verr.Field})
	case errors.As(err, &perr):
		writeJSON(w, http.StatusBadRequest, &response.ErrorResponse{Error: perr.Message, Code: "parse", Preview: perr.Preview})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, &response.ErrorResponse{Error: "DAP não encontrada", Code: "not_found"})
	case errors.As(err, &dberr):
		app.logger.Error(component, "Persistence failure: op=%s err=%v", dberr.Op, dberr.Err)
		writeJSON(w, http.StatusInternalServerError, &response.ErrorResponse{Error: "falha ao persistir a DAP", Code: "persistence"})
	default:
		app.logger.Error(component, "Unexpected failure: err=%v", err)
		writeJSONError(w, http.StatusInternalServerError, "erro interno")
	}
}
