package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/derekprior/courtsched/internal/excel"
	"github.com/derekprior/courtsched/internal/model"
	"github.com/derekprior/courtsched/internal/schedule"
	"github.com/derekprior/courtsched/internal/store"
	"github.com/derekprior/courtsched/internal/upload"
	"github.com/derekprior/courtsched/internal/validator"
	"github.com/go-chi/chi/v5"
)

type tournamentView struct {
	model.Tournament
	Teams []model.Team `json:"teams"`
}

func (s *Server) tournamentView(r *http.Request, id string) (tournamentView, error) {
	t, err := s.store.GetTournament(r.Context(), id)
	if err != nil {
		return tournamentView{}, err
	}
	teams, err := s.store.ListTournamentTeams(r.Context(), id)
	if err != nil {
		return tournamentView{}, err
	}
	return tournamentView{Tournament: t, Teams: nonNil(teams)}, nil
}

func (s *Server) createTournament(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := readJSON(w, r, &req); err != nil {
		s.mapError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.mapError(w, r, invalid("name is required"))
		return
	}
	t, err := s.tournaments.Create(r.Context(), req.Name)
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, tournamentView{Tournament: t, Teams: []model.Team{}})
}

func (s *Server) listTournaments(w http.ResponseWriter, r *http.Request) {
	ts, err := s.store.ListTournaments(r.Context())
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(ts))
}

func (s *Server) getTournament(w http.ResponseWriter, r *http.Request) {
	v, err := s.tournamentView(r, chi.URLParam(r, "id"))
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, v)
}

func (s *Server) registerTeam(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		TeamID string `json:"team_id"`
	}
	if err := readJSON(w, r, &req); err != nil {
		s.mapError(w, r, err)
		return
	}
	if req.TeamID == "" {
		s.mapError(w, r, invalid("team_id is required"))
		return
	}
	if err := s.tournaments.RegisterTeam(r.Context(), id, req.TeamID); err != nil {
		s.mapError(w, r, err)
		return
	}
	v, err := s.tournamentView(r, id)
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, v)
}

func (s *Server) startGroupPhase(w http.ResponseWriter, r *http.Request) {
	matches, err := s.tournaments.StartGroupPhase(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"matches": nonNil(matches)})
}

func (s *Server) startKnockoutPhase(w http.ResponseWriter, r *http.Request) {
	matches, err := s.tournaments.StartKnockoutPhase(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"matches": nonNil(matches)})
}

func (s *Server) finishTournament(w http.ResponseWriter, r *http.Request) {
	t, err := s.tournaments.Finish(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) standings(w http.ResponseWriter, r *http.Request) {
	table, err := s.tournaments.Standings(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, table)
}

func (s *Server) tournamentMatches(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetTournament(r.Context(), id); err != nil {
		s.mapError(w, r, err)
		return
	}
	f := store.MatchFilter{TournamentID: id}
	if v := r.URL.Query().Get("status"); v != "" {
		status, err := model.ParseMatchStatus(v)
		if err != nil {
			s.mapError(w, r, invalid("%v", err))
			return
		}
		f.Status = status
	}
	if v := r.URL.Query().Get("phase"); v != "" {
		phase, err := model.ParsePhase(v)
		if err != nil {
			s.mapError(w, r, invalid("%v", err))
			return
		}
		f.Phase = phase
	}
	matches, err := s.store.ListMatches(r.Context(), f)
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(matches))
}

type scheduleRequest struct {
	CourtIDs      []string `json:"court_ids"`
	StartDate     string   `json:"start_date"`
	TimeSlots     []string `json:"time_slots"`
	BufferMinutes *int     `json:"buffer_minutes"`
	Mode          string   `json:"mode"`
}

func (req scheduleRequest) parse(tournamentID string) (schedule.Request, error) {
	out := schedule.Request{TournamentID: tournamentID, CourtIDs: req.CourtIDs, BufferMinutes: req.BufferMinutes}
	if req.StartDate == "" {
		return out, invalid("start_date is required")
	}
	var err error
	if out.StartDate, err = model.ParseDate(req.StartDate); err != nil {
		return out, invalid("start_date: %v", err)
	}
	if out.TimeSlots, err = model.ParseClocks(req.TimeSlots); err != nil {
		return out, invalid("time_slots: %v", err)
	}
	if req.BufferMinutes != nil && *req.BufferMinutes < 0 {
		return out, invalid("buffer_minutes must not be negative")
	}
	if out.Mode, err = schedule.ParseMode(req.Mode); err != nil {
		return out, invalid("%v", err)
	}
	return out, nil
}

// scheduleMatches books the tournament's pending matches. Precondition
// failures and partial runs both answer 400 with the result body.
func (s *Server) scheduleMatches(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetTournament(r.Context(), id); err != nil {
		s.mapError(w, r, err)
		return
	}
	var body scheduleRequest
	if err := readJSON(w, r, &body); err != nil {
		s.mapError(w, r, err)
		return
	}
	req, err := body.parse(id)
	if err != nil {
		s.mapError(w, r, err)
		return
	}

	res, err := s.scheduler.Schedule(r.Context(), req)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = invalid("unknown court: %v", err)
		}
		if statusFor(err) != http.StatusBadRequest {
			s.mapError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusBadRequest, schedule.Result{Message: err.Error(), Bookings: []model.Booking{}})
		return
	}
	status := http.StatusOK
	if !res.Success {
		status = http.StatusBadRequest
	}
	res.Bookings = nonNil(res.Bookings)
	s.writeJSON(w, status, res)
}

func (s *Server) checkAllWeather(w http.ResponseWriter, r *http.Request) {
	sum, err := s.guard.CheckTournament(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("location"))
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sum)
}

func (s *Server) audit(w http.ResponseWriter, r *http.Request) {
	vs, err := validator.Validate(r.Context(), s.store, chi.URLParam(r, "id"), s.buffer)
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{
		"valid":      validator.Errors(vs) == 0,
		"errors":     validator.Errors(vs),
		"violations": nonNil(vs),
	})
}

// exportSchedule streams the workbook, or with ?upload=true stores it in
// the export bucket and answers with its location.
func (s *Server) exportSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sched, err := excel.Load(r.Context(), s.store, id)
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	f, err := excel.Generate(sched)
	if err != nil {
		s.mapError(w, r, err)
		return
	}
	defer f.Close()
	buf, err := f.WriteToBuffer()
	if err != nil {
		s.mapError(w, r, err)
		return
	}

	if r.URL.Query().Get("upload") == "true" {
		if s.uploader == nil {
			s.errorResponse(w, http.StatusNotImplemented, "no export bucket configured")
			return
		}
		res, err := s.uploader.Upload(r.Context(), upload.ScheduleKey(id, s.now()), upload.WorkbookContentType, buf.Bytes())
		if err != nil {
			s.mapError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, res)
		return
	}

	w.Header().Set("Content-Type", upload.WorkbookContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", sched.Tournament.Name+".xlsx"))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) subscribe(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.hub == nil {
		s.errorResponse(w, http.StatusNotImplemented, "live updates are not enabled")
		return
	}
	if _, err := s.store.GetTournament(r.Context(), id); err != nil {
		s.mapError(w, r, err)
		return
	}
	s.hub.ServeWS(w, r, id)
}
