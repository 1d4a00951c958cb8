package main

import (
	"net/http"

	"github.com/justinas/alice"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (app *application) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/healthy", app.healthy)
	mux.Handle("GET /metrics", promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{})) //nolint:exhaustruct // defaults

	session := alice.New(app.sessionManager.LoadAndSave, app.gameSessionContext)
	mux.Handle("POST /session/start", session.ThenFunc(app.startSession))
	mux.Handle("POST /session/action", session.ThenFunc(app.sessionAction))
	mux.Handle("GET /session/{id}/state", session.ThenFunc(app.sessionState))
	mux.Handle("DELETE /session/{id}", session.ThenFunc(app.endSession))

	mux.HandleFunc("GET /evaluation/report", app.evaluationReport)
	mux.HandleFunc("GET /evaluation/records", app.evaluationRecords)
	mux.HandleFunc("POST /evaluation/reset", app.evaluationReset)
	mux.HandleFunc("GET /debug/cache-stats", app.cacheStats)
	mux.HandleFunc("POST /debug/cache/reset", app.cacheReset)
	mux.HandleFunc("GET /debug/mystery-truth", app.mysteryTruth)

	mux.HandleFunc("/", app.notFound)

	common := alice.New(app.recoverPanic, app.logRequest, secureHeaders, commonContext)
	return common.Then(timeoutHandler(mux, app.requestTimeout))
}
