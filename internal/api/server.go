// Package api exposes the scheduling engine over HTTP.
package api

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/derekprior/courtsched/internal/notify"
	"github.com/derekprior/courtsched/internal/schedule"
	"github.com/derekprior/courtsched/internal/store"
	"github.com/derekprior/courtsched/internal/tournament"
	"github.com/derekprior/courtsched/internal/upload"
	"github.com/derekprior/courtsched/internal/weather"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Deps are the collaborators a Server is built from. Hub and Uploader are
// optional.
type Deps struct {
	Store       store.Store
	Tournaments *tournament.Service
	Scheduler   *schedule.Scheduler
	Guard       *weather.Guard
	Hub         *notify.Hub
	Uploader    upload.Uploader
	// BufferMinutes is used when a request does not name one.
	BufferMinutes int
	CORSOrigins   []string
	Logger        *slog.Logger
	Now           func() time.Time
}

type Server struct {
	store       store.Store
	tournaments *tournament.Service
	scheduler   *schedule.Scheduler
	guard       *weather.Guard
	hub         *notify.Hub
	uploader    upload.Uploader
	buffer      int
	origins     []string
	logger      *slog.Logger
	now         func() time.Time
}

func New(d Deps) *Server {
	s := &Server{
		store:       d.Store,
		tournaments: d.Tournaments,
		scheduler:   d.Scheduler,
		guard:       d.Guard,
		hub:         d.Hub,
		uploader:    d.Uploader,
		buffer:      d.BufferMinutes,
		origins:     d.CORSOrigins,
		logger:      d.Logger,
		now:         d.Now,
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, envelope{"status": "ok"})
	})

	r.Route("/players", func(r chi.Router) {
		r.Post("/", s.createPlayer)
		r.Get("/", s.listPlayers)
		r.Get("/{id}", s.getPlayer)
		r.Get("/{id}/schedule", s.playerSchedule)
	})

	r.Route("/teams", func(r chi.Router) {
		r.Post("/", s.createTeam)
		r.Get("/", s.listTeams)
		r.Get("/{id}", s.getTeam)
		r.Put("/{id}/members", s.setTeamMembers)
		r.Get("/{id}/schedule", s.teamSchedule)
		r.Get("/{id}/matches", s.teamMatches)
	})

	r.Route("/courts", func(r chi.Router) {
		r.Post("/", s.createCourt)
		r.Get("/", s.listCourts)
		r.Get("/{id}", s.getCourt)
		r.Put("/{id}", s.updateCourt)
		r.Delete("/{id}", s.deleteCourt)
	})

	r.Route("/tournaments", func(r chi.Router) {
		r.Post("/", s.createTournament)
		r.Get("/", s.listTournaments)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getTournament)
			r.Post("/teams", s.registerTeam)
			r.Post("/start-group-phase", s.startGroupPhase)
			r.Post("/start-knockout-phase", s.startKnockoutPhase)
			r.Post("/finish", s.finishTournament)
			r.Get("/standings", s.standings)
			r.Get("/matches", s.tournamentMatches)
			r.Post("/schedule-matches", s.scheduleMatches)
			r.Post("/check-all-weather", s.checkAllWeather)
			r.Get("/audit", s.audit)
			r.Get("/schedule.xlsx", s.exportSchedule)
			r.Get("/ws", s.subscribe)
		})
	})

	r.Route("/matches/{id}", func(r chi.Router) {
		r.Get("/", s.getMatch)
		r.Post("/result", s.recordResult)
		r.Post("/forfeit", s.forfeit)
		r.Post("/validate-schedule", s.validateSchedule)
		r.Post("/check-weather", s.checkWeather)
	})

	r.Get("/weather", s.currentWeather)

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := s.now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
