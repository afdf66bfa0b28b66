// Package tournament drives a tournament through registration, the group
// phase, the knockout phase and completion, and records match outcomes.
package tournament

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/derekprior/courtsched/internal/model"
	"github.com/derekprior/courtsched/internal/notify"
	"github.com/derekprior/courtsched/internal/store"
	"github.com/derekprior/courtsched/internal/strategy"
)

var (
	ErrWrongPhase      = errors.New("tournament is not in the required phase")
	ErrNotEnoughTeams  = errors.New("at least two teams are required")
	ErrMatchNotPending = errors.New("match is not pending")
	ErrTeamNotInMatch  = errors.New("team does not play in this match")
	ErrInvalidScore    = errors.New("scores must not be negative")
)

// PointsPerWin is what a group-phase win is worth. Losses and ties score nothing.
const PointsPerWin = 3

// DefaultForfeitReason is recorded when a forfeit gives no reason.
const DefaultForfeitReason = "Team forfeited"

type Service struct {
	store  store.Store
	logger *slog.Logger
	events notify.Publisher
}

func NewService(st store.Store, logger *slog.Logger, events notify.Publisher) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if events == nil {
		events = notify.Discard{}
	}
	return &Service{store: st, logger: logger, events: events}
}

// Create opens a tournament for registration.
func (s *Service) Create(ctx context.Context, name string) (model.Tournament, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Tournament{}, errors.New("tournament name is required")
	}
	return s.store.CreateTournament(ctx, model.Tournament{Name: name, Status: model.TournamentWaiting})
}

// RegisterTeam enters a team while the tournament is still waiting.
func (s *Service) RegisterTeam(ctx context.Context, tournamentID, teamID string) error {
	return store.InTx(ctx, s.store, func(q store.Queries) error {
		t, err := q.GetTournament(ctx, tournamentID)
		if err != nil {
			return err
		}
		if t.Status != model.TournamentWaiting {
			return fmt.Errorf("registering in %s tournament: %w", t.Status, ErrWrongPhase)
		}
		if _, err := q.GetTeam(ctx, teamID); err != nil {
			return err
		}
		return q.RegisterTeam(ctx, tournamentID, teamID)
	})
}

// StartGroupPhase creates one group match per pair of registered teams and
// moves the tournament to the group phase.
func (s *Service) StartGroupPhase(ctx context.Context, tournamentID string) ([]model.Match, error) {
	var created []model.Match
	err := store.InTx(ctx, s.store, func(q store.Queries) error {
		if err := advance(ctx, q, tournamentID, model.TournamentGroupPhase); err != nil {
			return err
		}
		teams, err := q.ListTournamentTeams(ctx, tournamentID)
		if err != nil {
			return err
		}
		if len(teams) < 2 {
			return fmt.Errorf("%d registered: %w", len(teams), ErrNotEnoughTeams)
		}
		created, err = createMatches(ctx, q, tournamentID, model.PhaseGroup, strategy.RoundRobin{}, teamIDs(teams))
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("group phase started", "tournament_id", tournamentID, "matches", len(created))
	s.publishPhase(tournamentID, model.TournamentGroupPhase)
	return created, nil
}

// StartKnockoutPhase seeds the knockout bracket from the current standings
// and moves the tournament to the knockout phase.
func (s *Service) StartKnockoutPhase(ctx context.Context, tournamentID string) ([]model.Match, error) {
	var created []model.Match
	err := store.InTx(ctx, s.store, func(q store.Queries) error {
		if err := advance(ctx, q, tournamentID, model.TournamentKnockoutPhase); err != nil {
			return err
		}
		table, err := standings(ctx, q, tournamentID)
		if err != nil {
			return err
		}
		if len(table) < 2 {
			return fmt.Errorf("%d in standings: %w", len(table), ErrNotEnoughTeams)
		}
		ranked := make([]string, len(table))
		for i, st := range table {
			ranked[i] = st.Team.ID
		}
		created, err = createMatches(ctx, q, tournamentID, model.PhaseKnockout, strategy.Knockout{}, ranked)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("knockout phase started", "tournament_id", tournamentID, "matches", len(created))
	s.publishPhase(tournamentID, model.TournamentKnockoutPhase)
	return created, nil
}

// Finish closes a tournament in the knockout phase.
func (s *Service) Finish(ctx context.Context, tournamentID string) (model.Tournament, error) {
	var t model.Tournament
	err := store.InTx(ctx, s.store, func(q store.Queries) error {
		if err := advance(ctx, q, tournamentID, model.TournamentFinished); err != nil {
			return err
		}
		var err error
		t, err = q.GetTournament(ctx, tournamentID)
		return err
	})
	if err != nil {
		return model.Tournament{}, err
	}
	s.publishPhase(tournamentID, model.TournamentFinished)
	return t, nil
}

func (s *Service) publishPhase(tournamentID string, status model.TournamentStatus) {
	s.events.Publish(notify.Event{Type: notify.TournamentPhase, TournamentID: tournamentID, Payload: status})
}

// advance moves the tournament one step forward to next.
func advance(ctx context.Context, q store.Queries, tournamentID string, next model.TournamentStatus) error {
	t, err := q.GetTournament(ctx, tournamentID)
	if err != nil {
		return err
	}
	if !t.Status.CanTransitionTo(next) {
		return fmt.Errorf("cannot move from %s to %s: %w", t.Status, next, ErrWrongPhase)
	}
	return q.UpdateTournamentStatus(ctx, tournamentID, next)
}

func createMatches(ctx context.Context, q store.Queries, tournamentID string, phase model.Phase,
	gen strategy.Strategy, teams []string) ([]model.Match, error) {
	var out []model.Match
	for _, p := range gen.Pairings(teams) {
		m, err := q.CreateMatch(ctx, model.Match{
			TournamentID: tournamentID,
			Team1ID:      p.Team1,
			Team2ID:      p.Team2,
			Status:       model.MatchPending,
			Phase:        phase,
			Round:        p.Round,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func teamIDs(teams []model.Team) []string {
	out := make([]string, len(teams))
	for i, t := range teams {
		out[i] = t.ID
	}
	return out
}

// Standing is one row of the group-phase table.
type Standing struct {
	Team   model.Team `json:"team"`
	Played int        `json:"matches_played"`
	Wins   int        `json:"wins"`
	Losses int        `json:"losses"`
	Points int        `json:"points"`
}

// Standings tallies the group phase. Teams are ordered by points; equal
// points keep registration order.
func (s *Service) Standings(ctx context.Context, tournamentID string) ([]Standing, error) {
	return standings(ctx, s.store, tournamentID)
}

func standings(ctx context.Context, q store.Queries, tournamentID string) ([]Standing, error) {
	if _, err := q.GetTournament(ctx, tournamentID); err != nil {
		return nil, err
	}
	teams, err := q.ListTournamentTeams(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	matches, err := q.ListMatches(ctx, store.MatchFilter{TournamentID: tournamentID, Phase: model.PhaseGroup})
	if err != nil {
		return nil, err
	}

	table := make([]Standing, len(teams))
	row := make(map[string]*Standing, len(teams))
	for i, t := range teams {
		table[i].Team = t
		row[t.ID] = &table[i]
	}
	for _, m := range matches {
		if !decided(m) {
			continue
		}
		r1, r2 := row[m.Team1ID], row[m.Team2ID]
		if r1 == nil || r2 == nil {
			continue
		}
		r1.Played++
		r2.Played++
		switch m.WinnerID {
		case m.Team1ID:
			r1.Wins++
			r1.Points += PointsPerWin
			r2.Losses++
		case m.Team2ID:
			r2.Wins++
			r2.Points += PointsPerWin
			r1.Losses++
		}
	}
	sort.SliceStable(table, func(i, j int) bool { return table[i].Points > table[j].Points })
	return table, nil
}

// decided reports whether a match counts towards the table: a played
// match, or a forfeit.
func decided(m model.Match) bool {
	switch m.Status {
	case model.MatchFinished:
		return true
	case model.MatchCancelled:
		return m.WinnerID != ""
	}
	return false
}

// RecordResult stores the score of a pending match. The higher score wins;
// a tie leaves the match without a winner.
func (s *Service) RecordResult(ctx context.Context, matchID string, team1Score, team2Score int) (model.Match, error) {
	if team1Score < 0 || team2Score < 0 {
		return model.Match{}, ErrInvalidScore
	}
	m, err := s.updatePending(ctx, matchID, func(m *model.Match) error {
		m.Team1Score, m.Team2Score = &team1Score, &team2Score
		switch {
		case team1Score > team2Score:
			m.WinnerID = m.Team1ID
		case team2Score > team1Score:
			m.WinnerID = m.Team2ID
		default:
			m.WinnerID = ""
		}
		m.Status = model.MatchFinished
		return nil
	})
	if err != nil {
		return model.Match{}, err
	}
	s.logger.Info("result recorded", "match_id", m.ID, "team1_score", team1Score, "team2_score", team2Score, "winner_id", m.WinnerID)
	return m, nil
}

// Forfeit cancels a pending match on behalf of teamID. The opponent wins.
func (s *Service) Forfeit(ctx context.Context, matchID, teamID, reason string) (model.Match, error) {
	if strings.TrimSpace(reason) == "" {
		reason = DefaultForfeitReason
	}
	m, err := s.updatePending(ctx, matchID, func(m *model.Match) error {
		if !m.HasTeam(teamID) {
			return fmt.Errorf("team %s: %w", teamID, ErrTeamNotInMatch)
		}
		m.WinnerID = m.Opponent(teamID)
		m.Status = model.MatchCancelled
		m.CancelledByTeamID = teamID
		m.CancellationReason = reason
		return nil
	})
	if err != nil {
		return model.Match{}, err
	}
	s.logger.Info("match forfeited", "match_id", m.ID, "team_id", teamID, "winner_id", m.WinnerID)
	return m, nil
}

func (s *Service) updatePending(ctx context.Context, matchID string, fn func(m *model.Match) error) (model.Match, error) {
	var m model.Match
	err := store.InTx(ctx, s.store, func(q store.Queries) error {
		var err error
		m, err = q.GetMatch(ctx, matchID)
		if err != nil {
			return err
		}
		if m.Status != model.MatchPending {
			return fmt.Errorf("match %s is %s: %w", m.ID, m.Status, ErrMatchNotPending)
		}
		if err := fn(&m); err != nil {
			return err
		}
		return q.UpdateMatch(ctx, m)
	})
	if err != nil {
		return model.Match{}, err
	}
	s.events.Publish(notify.Event{Type: notify.MatchUpdated, TournamentID: m.TournamentID, Payload: m})
	return m, nil
}

// TeamMatches lists a team's matches across every tournament.
func (s *Service) TeamMatches(ctx context.Context, teamID string) ([]model.Match, error) {
	if _, err := s.store.GetTeam(ctx, teamID); err != nil {
		return nil, err
	}
	return s.store.ListMatches(ctx, store.MatchFilter{TeamID: teamID})
}
