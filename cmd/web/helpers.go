package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/myrjola/compassmystery/internal/contexthelpers"
	"github.com/myrjola/compassmystery/internal/errors"
	"github.com/myrjola/compassmystery/internal/game"
)

const maxRequestBytes = 1 << 16

type errorResponse struct {
	Error string `json:"error"`
}

func (app *application) serverError(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.LogAttrs(r.Context(), slog.LevelError, "server error", errors.SlogError(err))
	app.writeJSON(w, r, http.StatusInternalServerError,
		errorResponse{Error: http.StatusText(http.StatusInternalServerError)})
}

func (app *application) clientError(w http.ResponseWriter, r *http.Request, status int, message string) {
	app.logger.LogAttrs(r.Context(), slog.LevelDebug, http.StatusText(status), slog.String("message", message))
	app.writeJSON(w, r, status, errorResponse{Error: message})
}

func (app *application) notFound(w http.ResponseWriter, r *http.Request) {
	app.clientError(w, r, http.StatusNotFound, "no route for "+contexthelpers.CurrentPath(r.Context()))
}

func (app *application) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		app.logger.LogAttrs(r.Context(), slog.LevelWarn, "failed to write response",
			errors.SlogError(errors.Wrap(err, "encode json")))
	}
}

// readJSON decodes the request body into dst. Unknown fields and trailing data are rejected.
func (app *application) readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Wrap(err, "decode request body")
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

// engineError maps engine failures to responses. Rejections are the player's fault and carry a message meant for
// them.
func (app *application) engineError(w http.ResponseWriter, r *http.Request, err error) {
	var rejection *game.RejectionError
	switch {
	case errors.As(err, &rejection) && errors.Is(err, game.ErrUnknownSession):
		app.clientError(w, r, http.StatusNotFound, rejection.Reason)
	case errors.As(err, &rejection):
		app.clientError(w, r, http.StatusUnprocessableEntity, rejection.Reason)
	case errors.Is(err, context.Canceled):
		// The client went away, nobody is listening.
		app.logger.LogAttrs(r.Context(), slog.LevelDebug, "request canceled")
	default:
		app.serverError(w, r, err)
	}
}
