package main

import (
	"net/http"

	"github.com/myrjola/compassmystery/internal/errors"
	"github.com/myrjola/compassmystery/internal/models"
	"github.com/myrjola/compassmystery/internal/story"
)

func (app *application) evaluationReport(w http.ResponseWriter, r *http.Request) {
	app.writeJSON(w, r, http.StatusOK, app.engine.EvaluationReport())
}

// evaluationRecords lists the evaluation log behind the report, oldest first.
func (app *application) evaluationRecords(w http.ResponseWriter, r *http.Request) {
	records := app.engine.EvaluationRecords()
	if records == nil {
		records = []models.EvaluationRecord{}
	}
	app.writeJSON(w, r, http.StatusOK, records)
}

func (app *application) evaluationReset(w http.ResponseWriter, r *http.Request) {
	if err := app.engine.EvaluationReset(r.Context()); err != nil {
		app.serverError(w, r, errors.Wrap(err, "reset evaluation"))
		return
	}
	app.writeJSON(w, r, http.StatusOK, map[string]string{"status": "evaluation reset"})
}

func (app *application) cacheStats(w http.ResponseWriter, r *http.Request) {
	app.writeJSON(w, r, http.StatusOK, app.engine.CacheStats())
}

func (app *application) cacheReset(w http.ResponseWriter, r *http.Request) {
	if err := app.engine.ResetCache(r.Context()); err != nil {
		app.serverError(w, r, errors.Wrap(err, "reset cache"))
		return
	}
	app.writeJSON(w, r, http.StatusOK, map[string]string{"status": "cache reset"})
}

type truthNPC struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	ConfessThreshold int    `json:"confess_threshold"`
}

type truthResponse struct {
	Title     string      `json:"title"`
	Crime     story.Crime `json:"crime"`
	Locations []string    `json:"locations"`
	NPCs      []truthNPC  `json:"npcs"`
}

// mysteryTruth spoils the case. It exists for debugging stories.
func (app *application) mysteryTruth(w http.ResponseWriter, r *http.Request) {
	truth := app.engine.Truth()
	resp := truthResponse{
		Title: truth.Title(),
		Crime: truth.Crime(),
	}
	for _, loc := range truth.Locations() {
		resp.Locations = append(resp.Locations, loc.ID)
	}
	for _, npc := range truth.NPCs() {
		resp.NPCs = append(resp.NPCs, truthNPC{ID: npc.ID, Name: npc.Name, ConfessThreshold: npc.ConfessThreshold})
	}
	app.writeJSON(w, r, http.StatusOK, resp)
}
