package main

import (
	"context"
	"net/http"
	"time"
)

// healthCheckHandler godoc
//
//	@Summary		Healthcheck
//	@Tags			ops
//	@Produce		json
//	@Success		200	{object}	map[string]string
//	@Failure		503	{object}	error
//	@Router			/health [get]
func (app *application) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	data := map[string]string{
		"status":  "ok",
		"env":     app.config.Env,
		"version": version,
	}

	if err := app.store.Ping(ctx); err != nil {
		app.logger.Errorw("health check: database unreachable", "error", err)
		data["status"] = "degraded"
		data["database"] = "unreachable"
		writeJSON(w, http.StatusServiceUnavailable, data)
		return
	}

	app.jsonResponse(w, http.StatusOK, data)
}
