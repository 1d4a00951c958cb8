package main

import (
	"log/slog"
	"net/http"

	"github.com/myrjola/compassmystery/internal/errors"
)

type healthResponse struct {
	Status         string `json:"status"`
	ActiveSessions int    `json:"active_sessions"`
}

// healthy reports whether the database answers.
func (app *application) healthy(w http.ResponseWriter, r *http.Request) {
	if err := app.db.ReadOnly.PingContext(r.Context()); err != nil {
		app.logger.LogAttrs(r.Context(), slog.LevelError, "database ping failed", errors.SlogError(err))
		app.writeJSON(w, r, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", ActiveSessions: 0})
		return
	}
	app.writeJSON(w, r, http.StatusOK, healthResponse{Status: "ok", ActiveSessions: app.engine.ActiveSessions()})
}
