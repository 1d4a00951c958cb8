package main

import (
	"log/slog"
	"net/http"

	"github.com/myrjola/compassmystery/internal/contexthelpers"
	"github.com/myrjola/compassmystery/internal/errors"
	"github.com/myrjola/compassmystery/internal/logging"
)

func (app *application) startSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state, err := app.engine.StartSession(ctx)
	if err != nil {
		app.serverError(w, r, errors.Wrap(err, "start session"))
		return
	}
	if err = app.sessionManager.RenewToken(ctx); err != nil {
		app.serverError(w, r, errors.Wrap(err, "renew session token"))
		return
	}
	app.sessionManager.Put(ctx, string(gameSessionIDSessionKey), state.SessionID)
	app.writeJSON(w, r, http.StatusOK, state)
}

type actionRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

func (app *application) sessionAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := app.readJSON(w, r, &req); err != nil {
		app.clientError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	remembered := contexthelpers.GameSessionID(r.Context())
	if req.SessionID == "" {
		req.SessionID = remembered
	}
	if req.SessionID == "" {
		app.clientError(w, r, http.StatusBadRequest, "session_id is required, start a game with POST /session/start")
		return
	}

	ctx := logging.WithAttrs(r.Context(), slog.String("session_id", req.SessionID))
	result, err := app.engine.ApplyAction(ctx, req.SessionID, req.Text)
	if err != nil {
		app.engineError(w, r.WithContext(ctx), errors.Wrap(err, "apply action"))
		return
	}
	if req.SessionID != remembered {
		app.sessionManager.Put(ctx, string(gameSessionIDSessionKey), req.SessionID)
	}
	app.writeJSON(w, r, http.StatusOK, result)
}

func (app *application) sessionState(w http.ResponseWriter, r *http.Request) {
	state, err := app.engine.State(r.Context(), r.PathValue("id"))
	if err != nil {
		app.engineError(w, r, errors.Wrap(err, "get state"))
		return
	}
	app.writeJSON(w, r, http.StatusOK, state)
}

func (app *application) endSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	if err := app.engine.EndSession(ctx, id); err != nil {
		app.serverError(w, r, errors.Wrap(err, "end session"))
		return
	}
	if contexthelpers.GameSessionID(ctx) == id {
		app.sessionManager.Remove(ctx, string(gameSessionIDSessionKey))
	}
	w.WriteHeader(http.StatusNoContent)
}
