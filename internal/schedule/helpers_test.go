package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/derekprior/courtsched/internal/model"
	"github.com/derekprior/courtsched/internal/store"
)

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func clock(s string) model.Clock { return model.MustClock(s) }

// world is a small store populated through its public API.
type world struct {
	t   *testing.T
	ctx context.Context
	s   *store.MemoryStore
}

func newWorld(t *testing.T) *world {
	return &world{t: t, ctx: context.Background(), s: store.NewMemoryStore()}
}

func (w *world) player(name string) model.Player {
	w.t.Helper()
	p, err := w.s.CreatePlayer(w.ctx, model.Player{Name: name, Ranking: 1})
	if err != nil {
		w.t.Fatalf("CreatePlayer(%s) error: %v", name, err)
	}
	return p
}

func (w *world) team(name string, players ...model.Player) model.Team {
	w.t.Helper()
	if len(players) == 0 {
		players = []model.Player{w.player(name + " 1"), w.player(name + " 2")}
	}
	ids := make([]string, len(players))
	for i, p := range players {
		ids[i] = p.ID
	}
	team, err := w.s.CreateTeam(w.ctx, model.Team{Name: name, PlayerIDs: ids})
	if err != nil {
		w.t.Fatalf("CreateTeam(%s) error: %v", name, err)
	}
	return team
}

func (w *world) court(name string, indoor bool) model.Court {
	w.t.Helper()
	c, err := w.s.CreateCourt(w.ctx, model.Court{Name: name, IsIndoor: indoor, IsAvailable: true})
	if err != nil {
		w.t.Fatalf("CreateCourt(%s) error: %v", name, err)
	}
	return c
}

func (w *world) tournament(name string) model.Tournament {
	w.t.Helper()
	tr, err := w.s.CreateTournament(w.ctx, model.Tournament{Name: name})
	if err != nil {
		w.t.Fatalf("CreateTournament(%s) error: %v", name, err)
	}
	return tr
}

func (w *world) match(tr model.Tournament, a, b model.Team) model.Match {
	w.t.Helper()
	m, err := w.s.CreateMatch(w.ctx, model.Match{TournamentID: tr.ID, Team1ID: a.ID, Team2ID: b.ID, Phase: model.PhaseGroup})
	if err != nil {
		w.t.Fatalf("CreateMatch error: %v", err)
	}
	return m
}

func (w *world) book(m model.Match, c model.Court, day time.Time, start, end string) model.Booking {
	w.t.Helper()
	b, err := w.s.CreateBooking(w.ctx, model.Booking{MatchID: m.ID, CourtID: c.ID, Date: day, Start: clock(start), End: clock(end)})
	if err != nil {
		w.t.Fatalf("CreateBooking error: %v", err)
	}
	return b
}

// roundRobin creates one match per pair of teams, i before j.
func (w *world) roundRobin(tr model.Tournament, teams ...model.Team) []model.Match {
	var out []model.Match
	for i := 0; i < len(teams); i++ {
		for j := i + 1; j < len(teams); j++ {
			out = append(out, w.match(tr, teams[i], teams[j]))
		}
	}
	return out
}

func intPtr(v int) *int { return &v }
