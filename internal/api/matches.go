package api

import (
	"errors"
	"net/http"

	"github.com/derekprior/courtsched/internal/model"
	"github.com/derekprior/courtsched/internal/schedule"
	"github.com/derekprior/courtsched/internal/store"
	"github.com/derekprior/courtsched/internal/weather"
	"github.com/go-chi/chi/v5"
)

func (s *Server) getMatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	m, err := s.store.GetMatch(r.Context(), id)
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	var booking *model.Booking
	b, err := s.store.BookingForMatch(r.Context(), id)
	switch {
	case err == nil:
		booking = &b
	case !errors.Is(err, store.ErrNotFound):
		s.mapError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"match": m, "booking": booking})
}

func (s *Server) recordResult(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Team1Score *int `json:"team1_score"`
		Team2Score *int `json:"team2_score"`
	}
	if err := readJSON(w, r, &req); err != nil {
		s.mapError(w, r, err)
		return
	}
	if req.Team1Score == nil || req.Team2Score == nil {
		s.mapError(w, r, invalid("team1_score and team2_score are required"))
		return
	}
	m, err := s.tournaments.RecordResult(r.Context(), chi.URLParam(r, "id"), *req.Team1Score, *req.Team2Score)
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, m)
}

func (s *Server) forfeit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TeamID string `json:"team_id"`
		Reason string `json:"reason"`
	}
	if err := readJSON(w, r, &req); err != nil {
		s.mapError(w, r, err)
		return
	}
	if req.TeamID == "" {
		s.mapError(w, r, invalid("team_id is required"))
		return
	}
	m, err := s.tournaments.Forfeit(r.Context(), chi.URLParam(r, "id"), req.TeamID, req.Reason)
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, m)
}

type placementRequest struct {
	CourtID       string       `json:"court_id"`
	BookingDate   string       `json:"booking_date"`
	StartTime     *model.Clock `json:"start_time"`
	EndTime       *model.Clock `json:"end_time"`
	BufferMinutes *int         `json:"buffer_minutes"`
}

// validateSchedule answers whether a match could be placed at the given
// court, date and time. Nothing is written.
func (s *Server) validateSchedule(w http.ResponseWriter, r *http.Request) {
	var req placementRequest
	if err := readJSON(w, r, &req); err != nil {
		s.mapError(w, r, err)
		return
	}
	if req.CourtID == "" || req.BookingDate == "" || req.StartTime == nil {
		s.mapError(w, r, invalid("court_id, booking_date and start_time are required"))
		return
	}
	date, err := model.ParseDate(req.BookingDate)
	if err != nil {
		s.mapError(w, r, invalid("booking_date: %v", err))
		return
	}
	start := *req.StartTime
	end := start.Add(schedule.MatchMinutes)
	if req.EndTime != nil {
		end = *req.EndTime
	}
	buffer := s.buffer
	if req.BufferMinutes != nil {
		if *req.BufferMinutes < 0 {
			s.mapError(w, r, invalid("buffer_minutes must not be negative"))
			return
		}
		buffer = *req.BufferMinutes
	}

	matchID := chi.URLParam(r, "id")
	d, err := schedule.ValidatePlacement(r.Context(), s.store, matchID, req.CourtID, date, start, end, buffer)
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	// conflict_reason is only present when the placement is refused
	out := envelope{"match_id": matchID, "can_schedule": d.Allowed}
	if !d.Allowed {
		out["conflict_reason"] = d.Reason
		out["conflict"] = d.Conflict.String()
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) checkWeather(w http.ResponseWriter, r *http.Request) {
	o, err := s.guard.CheckMatch(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("location"))
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, o)
}

func (s *Server) currentWeather(w http.ResponseWriter, r *http.Request) {
	reading := s.guard.Fetch(r.Context(), r.URL.Query().Get("location"))
	s.writeJSON(w, http.StatusOK, envelope{
		"weather":     reading,
		"description": weather.Describe(reading),
	})
}
