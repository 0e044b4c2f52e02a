package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"ranktracker/internal/models"
)

// Store is the persistence surface the HTTP layer reads and writes
type Store interface {
	GetRun(ctx context.Context, runID int64) (*models.ReportRun, error)
	CreateSchedule(ctx context.Context, schedule *models.ReportSchedule) error
	UpdateSchedule(ctx context.Context, schedule *models.ReportSchedule) error
	DeleteSchedule(ctx context.Context, scheduleID int64) error
	GetSchedule(ctx context.Context, scheduleID int64) (*models.ReportSchedule, error)
	ListSchedules(ctx context.Context) ([]models.ReportSchedule, error)
}

type Server struct {
	ctx    context.Context
	store  Store
	router *chi.Mux
}

type Config struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// New creates a new API server instance
func New(ctx context.Context, store Store) *Server {
	s := &Server{
		ctx:    ctx,
		store:  store,
		router: chi.NewRouter(),
	}

	// Set up middleware
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)

	s.router.Route("/api", func(r chi.Router) {
		r.Mount("/runs", NewRunRouter(ctx, store))
		r.Mount("/schedules", NewScheduleRouter(ctx, store))
	})

	return s
}

// ServeHTTP implements the http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func readJson(w http.ResponseWriter, r *http.Request, payload any) error {
	defer func() {
		if err := r.Body.Close(); err != nil {
			log.Error().Err(err).Msg("Could not close request body")
		}
	}()

	err := json.NewDecoder(r.Body).Decode(payload)
	if err != nil {
		http.Error(w, "could not parse request body to payload", http.StatusBadRequest)
	}
	return err
}

func serveJson(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(payload)
	if err != nil {
		http.Error(w, "Failed to encode payload", http.StatusInternalServerError)
		log.Error().Err(err).Msg("JSON encoding issue")
	}
}
