package main

import (
	"net/http"
	"strconv"

	"github.com/farxc/dap-ledger/internal/response"
	"github.com/farxc/dap-ledger/internal/store"
)

type GetImportHistoryResponse = response.APIResponse[[]store.ImportHistory]

// @Summary		Get import history
// @Description	Get a list of the latest PDF imports, uploads and batch runs alike.
// @Tags			Imports
// @Produce		json
// @Param			limit	query		int							false	"Limit the number of results"	default(10)
// @Success		200		{object}	GetImportHistoryResponse	"Successfully retrieved latest import records"
// @Failure		500		{object}	response.ErrorResponse		"Failed to get import history"
// @Router			/daps/imports [get]
func (app *application) handleGetImportHistory(w http.ResponseWriter, r *http.Request) {
	limitParam := r.URL.Query().Get("limit")
	limit := 10
	if limitParam != "" {
		if l, err := strconv.Atoi(limitParam); err == nil && l > 0 && l <= 500 {
			limit = l
		}
	}

	data, err := app.imports.GetLatest(r.Context(), limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to get import history: "+err.Error())
		return
	}
	if data == nil {
		data = []store.ImportHistory{}
	}

	response := &GetImportHistoryResponse{
		Success: true,
		Data:    data,
		Message: "Successfully retrieved latest import records",
	}

	if err := writeJSON(w, http.StatusOK, response); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to write response")
	}
}
