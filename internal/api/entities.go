package api

import (
	"net/http"
	"strings"

	"github.com/derekprior/courtsched/internal/model"
	"github.com/derekprior/courtsched/internal/schedule"
	"github.com/derekprior/courtsched/internal/store"
	"github.com/go-chi/chi/v5"
)

type playerRequest struct {
	Name          string `json:"name"`
	Ranking       int    `json:"ranking"`
	LicenceNumber string `json:"licence_number"`
}

func (s *Server) createPlayer(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if err := readJSON(w, r, &req); err != nil {
		s.mapError(w, r, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		s.mapError(w, r, invalid("name is required"))
		return
	}
	if req.Ranking < 0 {
		s.mapError(w, r, invalid("ranking must not be negative"))
		return
	}
	p, err := s.store.CreatePlayer(r.Context(), model.Player{Name: req.Name, Ranking: req.Ranking, LicenceNumber: req.LicenceNumber})
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, p)
}

func (s *Server) listPlayers(w http.ResponseWriter, r *http.Request) {
	players, err := s.store.ListPlayers(r.Context())
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(players))
}

func (s *Server) getPlayer(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetPlayer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) playerSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	from, to, err := dateRange(r)
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	if _, err := s.store.GetPlayer(r.Context(), id); err != nil {
		s.mapError(w, r, err)
		return
	}
	bookings, err := schedule.PlayerSchedule(r.Context(), s.store, id, from, to)
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(bookings))
}

type teamRequest struct {
	Name      string   `json:"name"`
	PlayerIDs []string `json:"player_ids"`
}

func (s *Server) createTeam(w http.ResponseWriter, r *http.Request) {
	var req teamRequest
	if err := readJSON(w, r, &req); err != nil {
		s.mapError(w, r, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		s.mapError(w, r, invalid("name is required"))
		return
	}
	t, err := s.store.CreateTeam(r.Context(), model.Team{Name: req.Name, PlayerIDs: req.PlayerIDs})
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, t)
}

func (s *Server) listTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := s.store.ListTeams(r.Context())
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(teams))
}

func (s *Server) getTeam(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.GetTeam(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) setTeamMembers(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerIDs []string `json:"player_ids"`
	}
	if err := readJSON(w, r, &req); err != nil {
		s.mapError(w, r, err)
		return
	}
	t, err := s.store.SetTeamMembers(r.Context(), chi.URLParam(r, "id"), req.PlayerIDs)
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) teamSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	from, to, err := dateRange(r)
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	if _, err := s.store.GetTeam(r.Context(), id); err != nil {
		s.mapError(w, r, err)
		return
	}
	bookings, err := schedule.TeamSchedule(r.Context(), s.store, id, from, to)
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(bookings))
}

func (s *Server) teamMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := s.tournaments.TeamMatches(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(matches))
}

type courtRequest struct {
	Name        string `json:"name"`
	Location    string `json:"location"`
	IsIndoor    bool   `json:"is_indoor"`
	IsAvailable *bool  `json:"is_available"`
}

func (req courtRequest) court() (model.Court, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return model.Court{}, invalid("name is required")
	}
	c := model.Court{Name: name, Location: req.Location, IsIndoor: req.IsIndoor, IsAvailable: true}
	if req.IsAvailable != nil {
		c.IsAvailable = *req.IsAvailable
	}
	return c, nil
}

func (s *Server) createCourt(w http.ResponseWriter, r *http.Request) {
	var req courtRequest
	if err := readJSON(w, r, &req); err != nil {
		s.mapError(w, r, err)
		return
	}
	c, err := req.court()
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	if c, err = s.store.CreateCourt(r.Context(), c); err != nil {
		s.mapError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, c)
}

func (s *Server) listCourts(w http.ResponseWriter, r *http.Request) {
	indoor, err := boolParam(r, "indoor")
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	available, err := boolParam(r, "available")
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	courts, err := s.store.ListCourts(r.Context(), store.CourtFilter{Indoor: indoor, Available: available})
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(courts))
}

func (s *Server) getCourt(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.GetCourt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}

func (s *Server) updateCourt(w http.ResponseWriter, r *http.Request) {
	existing, err := s.store.GetCourt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	var req courtRequest
	if err := readJSON(w, r, &req); err != nil {
		s.mapError(w, r, err)
		return
	}
	if req.IsAvailable == nil {
		req.IsAvailable = &existing.IsAvailable
	}
	c, err := req.court()
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	c.ID, c.CreatedAt = existing.ID, existing.CreatedAt
	if err := s.store.UpdateCourt(r.Context(), c); err != nil {
		s.mapError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}

func (s *Server) deleteCourt(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteCourt(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.mapError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// nonNil keeps empty lists as [] rather than null.
func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
