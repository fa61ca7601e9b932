package main

import "net/http"

// @Summary		Health check
// @Description	returns the status of the service
// @Tags			Health
// @Produce		json
// @Success		200	{object}	map[string]string
// @Router			/health [get]
func (app *application) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ocr := "disabled"
	if app.config.ocr.enabled {
		ocr = "enabled"
	}

	data := map[string]string{
		"status":  "available",
		"version": "0.1.0",
		"ocr":     ocr,
	}

	if err := writeJSON(w, http.StatusOK, data); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}
