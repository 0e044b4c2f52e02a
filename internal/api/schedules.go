package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"ranktracker/internal/store"
)

type ScheduleRouter struct {
	ctx    context.Context
	store  Store
	router chi.Router
}

func (t *ScheduleRouter) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	t.router.ServeHTTP(writer, request)
}

func NewScheduleRouter(ctx context.Context, s Store) *ScheduleRouter {
	r := &ScheduleRouter{
		ctx:    ctx,
		store:  s,
		router: chi.NewRouter(),
	}
	r.router.Get("/", r.ListSchedules)
	r.router.Post("/", r.AddSchedule)
	r.router.Get("/{scheduleID}", r.GetSchedule)
	r.router.Put("/{scheduleID}", r.UpdateSchedule)
	r.router.Delete("/{scheduleID}", r.DeleteSchedule)

	return r
}

func (t *ScheduleRouter) ListSchedules(w http.ResponseWriter, _ *http.Request) {
	schedules, err := t.store.ListSchedules(t.ctx)
	if err != nil {
		http.Error(w, "Failed to fetch schedules", http.StatusInternalServerError)
		log.Error().Err(err).Msg("Failed to fetch schedules")
		return
	}

	payload := make([]ListSchedule, 0, len(schedules))
	for _, s := range schedules {
		payload = append(payload, newListSchedule(s))
	}
	serveJson(w, payload)
}

func (t *ScheduleRouter) GetSchedule(w http.ResponseWriter, r *http.Request) {
	scheduleID, err := parseScheduleID(w, r)
	if err != nil {
		return
	}

	sched, err := t.store.GetSchedule(t.ctx, scheduleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "schedule does not exist", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to fetch schedule", http.StatusInternalServerError)
		log.Error().Err(err).Int64("schedule_id", scheduleID).Msg("Failed to fetch schedule")
		return
	}

	serveJson(w, newListSchedule(*sched))
}

func (t *ScheduleRouter) AddSchedule(w http.ResponseWriter, r *http.Request) {
	var payload UpsertSchedule
	if err := readJson(w, r, &payload); err != nil {
		return
	}
	if err := payload.validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sched := payload.toModel(time.Now().UTC())
	if err := t.store.CreateSchedule(t.ctx, &sched); err != nil {
		http.Error(w, "Could not insert new schedule", http.StatusInternalServerError)
		log.Error().Err(err).Str("domain", sched.Domain).Msg("Could not insert new schedule")
		return
	}

	serveJson(w, newListSchedule(sched))
}

func (t *ScheduleRouter) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	scheduleID, err := parseScheduleID(w, r)
	if err != nil {
		return
	}

	var payload UpsertSchedule
	if err := readJson(w, r, &payload); err != nil {
		return
	}
	if err := payload.validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	existing, err := t.store.GetSchedule(t.ctx, scheduleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "schedule does not exist", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to fetch schedule", http.StatusInternalServerError)
		log.Error().Err(err).Int64("schedule_id", scheduleID).Msg("Failed to fetch schedule")
		return
	}

	sched := payload.toModel(time.Now().UTC())
	sched.ID = scheduleID
	sched.LastRunAt = existing.LastRunAt
	sched.LastRunID = existing.LastRunID

	if err := t.store.UpdateSchedule(t.ctx, &sched); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "schedule does not exist", http.StatusNotFound)
			return
		}
		http.Error(w, "Could not update schedule", http.StatusInternalServerError)
		log.Error().Err(err).Int64("schedule_id", scheduleID).Msg("Could not update schedule")
		return
	}

	serveJson(w, newListSchedule(sched))
}

func (t *ScheduleRouter) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	scheduleID, err := parseScheduleID(w, r)
	if err != nil {
		return
	}

	if err := t.store.DeleteSchedule(t.ctx, scheduleID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "schedule does not exist", http.StatusNotFound)
			return
		}
		http.Error(w, "Could not delete schedule", http.StatusInternalServerError)
		log.Error().Err(err).Int64("schedule_id", scheduleID).Msg("Could not delete schedule")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseScheduleID(w http.ResponseWriter, r *http.Request) (int64, error) {
	scheduleID, err := strconv.ParseInt(chi.URLParam(r, "scheduleID"), 10, 64)
	if err != nil {
		http.Error(w, "scheduleID must be an integer", http.StatusBadRequest)
	}
	return scheduleID, err
}
