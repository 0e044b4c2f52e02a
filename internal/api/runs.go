package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"ranktracker/internal/store"
)

type RunRouter struct {
	ctx    context.Context
	store  Store
	router chi.Router
}

func (t *RunRouter) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	t.router.ServeHTTP(writer, request)
}

func NewRunRouter(ctx context.Context, s Store) *RunRouter {
	r := &RunRouter{
		ctx:    ctx,
		store:  s,
		router: chi.NewRouter(),
	}
	r.router.Get("/{runID}/status", r.GetStatus)

	return r
}

func (t *RunRouter) GetStatus(w http.ResponseWriter, r *http.Request) {
	runID, err := strconv.ParseInt(chi.URLParam(r, "runID"), 10, 64)
	if err != nil {
		http.Error(w, "runID must be an integer", http.StatusBadRequest)
		return
	}

	run, err := t.store.GetRun(t.ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "run does not exist", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to fetch run", http.StatusInternalServerError)
		log.Error().Err(err).Int64("run_id", runID).Msg("Failed to fetch run")
		return
	}

	serveJson(w, newRunStatus(run))
}
