package tournament

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/derekprior/courtsched/internal/model"
	"github.com/derekprior/courtsched/internal/notify"
	"github.com/derekprior/courtsched/internal/store"
	"github.com/derekprior/courtsched/internal/strategy"
)

type fixture struct {
	t      *testing.T
	ctx    context.Context
	st     *store.MemoryStore
	svc    *Service
	events *notify.Recorder
}

func newFixture(t *testing.T) *fixture {
	st := store.NewMemoryStore()
	events := &notify.Recorder{}
	return &fixture{t: t, ctx: context.Background(), st: st, svc: NewService(st, nil, events), events: events}
}

func (f *fixture) teams(n int) []model.Team {
	f.t.Helper()
	out := make([]model.Team, n)
	for i := range out {
		p, err := f.st.CreatePlayer(f.ctx, model.Player{Name: fmt.Sprintf("Player %d", i+1), Ranking: i + 1})
		if err != nil {
			f.t.Fatalf("CreatePlayer error: %v", err)
		}
		out[i], err = f.st.CreateTeam(f.ctx, model.Team{Name: fmt.Sprintf("Team %d", i+1), PlayerIDs: []string{p.ID}})
		if err != nil {
			f.t.Fatalf("CreateTeam error: %v", err)
		}
	}
	return out
}

// registered creates a waiting tournament with n registered teams.
func (f *fixture) registered(n int) (model.Tournament, []model.Team) {
	f.t.Helper()
	tr, err := f.svc.Create(f.ctx, "Spring Open")
	if err != nil {
		f.t.Fatalf("Create error: %v", err)
	}
	teams := f.teams(n)
	for _, team := range teams {
		if err := f.svc.RegisterTeam(f.ctx, tr.ID, team.ID); err != nil {
			f.t.Fatalf("RegisterTeam error: %v", err)
		}
	}
	return tr, teams
}

func (f *fixture) status(id string) model.TournamentStatus {
	f.t.Helper()
	tr, err := f.st.GetTournament(f.ctx, id)
	if err != nil {
		f.t.Fatalf("GetTournament error: %v", err)
	}
	return tr.Status
}

func TestRegisterTeam(t *testing.T) {
	t.Run("duplicate registration", func(t *testing.T) {
		f := newFixture(t)
		tr, teams := f.registered(2)
		err := f.svc.RegisterTeam(f.ctx, tr.ID, teams[0].ID)
		if !errors.Is(err, store.ErrAlreadyRegistered) {
			t.Errorf("error = %v, want ErrAlreadyRegistered", err)
		}
	})

	t.Run("closed once the group phase starts", func(t *testing.T) {
		f := newFixture(t)
		tr, _ := f.registered(2)
		if _, err := f.svc.StartGroupPhase(f.ctx, tr.ID); err != nil {
			t.Fatalf("StartGroupPhase error: %v", err)
		}
		late := f.teams(1)[0]
		if err := f.svc.RegisterTeam(f.ctx, tr.ID, late.ID); !errors.Is(err, ErrWrongPhase) {
			t.Errorf("error = %v, want ErrWrongPhase", err)
		}
	})

	t.Run("unknown team", func(t *testing.T) {
		f := newFixture(t)
		tr, _ := f.registered(0)
		if err := f.svc.RegisterTeam(f.ctx, tr.ID, "nope"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})
}

func TestStartGroupPhase(t *testing.T) {
	t.Run("round robin in registration order", func(t *testing.T) {
		f := newFixture(t)
		tr, teams := f.registered(4)
		matches, err := f.svc.StartGroupPhase(f.ctx, tr.ID)
		if err != nil {
			t.Fatalf("StartGroupPhase error: %v", err)
		}
		if len(matches) != 6 {
			t.Fatalf("matches = %d, want 6", len(matches))
		}
		if matches[0].Team1ID != teams[0].ID || matches[0].Team2ID != teams[1].ID {
			t.Errorf("first match is not team 1 vs team 2")
		}
		for _, m := range matches {
			if m.Phase != model.PhaseGroup || m.Status != model.MatchPending {
				t.Errorf("match %s: phase %s status %s, want pending group", m.ID, m.Phase, m.Status)
			}
		}
		if got := f.status(tr.ID); got != model.TournamentGroupPhase {
			t.Errorf("status = %s, want group_phase", got)
		}
		if types := f.events.Types(); len(types) != 1 || types[0] != notify.TournamentPhase {
			t.Errorf("events = %v, want one phase event", types)
		}
	})

	t.Run("needs two teams and leaves nothing behind", func(t *testing.T) {
		f := newFixture(t)
		tr, _ := f.registered(1)
		if _, err := f.svc.StartGroupPhase(f.ctx, tr.ID); !errors.Is(err, ErrNotEnoughTeams) {
			t.Errorf("error = %v, want ErrNotEnoughTeams", err)
		}
		if got := f.status(tr.ID); got != model.TournamentWaiting {
			t.Errorf("status = %s, want waiting", got)
		}
	})

	t.Run("cannot start twice", func(t *testing.T) {
		f := newFixture(t)
		tr, _ := f.registered(2)
		if _, err := f.svc.StartGroupPhase(f.ctx, tr.ID); err != nil {
			t.Fatalf("StartGroupPhase error: %v", err)
		}
		if _, err := f.svc.StartGroupPhase(f.ctx, tr.ID); !errors.Is(err, ErrWrongPhase) {
			t.Errorf("error = %v, want ErrWrongPhase", err)
		}
	})
}

func TestStandings(t *testing.T) {
	f := newFixture(t)
	tr, teams := f.registered(3)
	matches, err := f.svc.StartGroupPhase(f.ctx, tr.ID)
	if err != nil {
		t.Fatalf("StartGroupPhase error: %v", err)
	}
	// T1-T2, T1-T3, T2-T3
	if _, err := f.svc.RecordResult(f.ctx, matches[0].ID, 2, 6); err != nil {
		t.Fatalf("RecordResult error: %v", err)
	}
	if _, err := f.svc.Forfeit(f.ctx, matches[2].ID, teams[1].ID, ""); err != nil {
		t.Fatalf("Forfeit error: %v", err)
	}

	table, err := f.svc.Standings(f.ctx, tr.ID)
	if err != nil {
		t.Fatalf("Standings error: %v", err)
	}
	want := []struct {
		team   string
		points int
		played int
	}{
		{teams[1].ID, 3, 2},
		{teams[2].ID, 3, 1},
		{teams[0].ID, 0, 1},
	}
	for i, w := range want {
		got := table[i]
		if got.Team.ID != w.team || got.Points != w.points || got.Played != w.played {
			t.Errorf("row %d = %s %d pts %d played, want %s %d pts %d played",
				i, got.Team.Name, got.Points, got.Played, w.team, w.points, w.played)
		}
	}
	if table[1].Wins != 1 || table[0].Losses != 1 {
		t.Errorf("forfeit not tallied: %+v", table)
	}
}

func TestKnockoutPhase(t *testing.T) {
	t.Run("five teams send the top four to the semi-finals", func(t *testing.T) {
		f := newFixture(t)
		tr, teams := f.registered(5)
		matches, err := f.svc.StartGroupPhase(f.ctx, tr.ID)
		if err != nil {
			t.Fatalf("StartGroupPhase error: %v", err)
		}
		// Team 5 wins everything, so it is seeded first.
		for _, m := range matches {
			if m.HasTeam(teams[4].ID) {
				s1, s2 := 0, 6
				if m.Team1ID == teams[4].ID {
					s1, s2 = 6, 0
				}
				if _, err := f.svc.RecordResult(f.ctx, m.ID, s1, s2); err != nil {
					t.Fatalf("RecordResult error: %v", err)
				}
			}
		}

		ko, err := f.svc.StartKnockoutPhase(f.ctx, tr.ID)
		if err != nil {
			t.Fatalf("StartKnockoutPhase error: %v", err)
		}
		if len(ko) != 2 {
			t.Fatalf("knockout matches = %d, want 2", len(ko))
		}
		// seeds: T5, then T1..T3 in registration order
		if ko[0].Team1ID != teams[4].ID || ko[0].Team2ID != teams[2].ID {
			t.Errorf("semi 1 = %s vs %s, want Team 5 vs Team 3", ko[0].Team1ID, ko[0].Team2ID)
		}
		if ko[1].Team1ID != teams[0].ID || ko[1].Team2ID != teams[1].ID {
			t.Errorf("semi 2 = %s vs %s, want Team 1 vs Team 2", ko[1].Team1ID, ko[1].Team2ID)
		}
		for _, m := range ko {
			if m.Phase != model.PhaseKnockout || m.Round != strategy.RoundSemiFinal {
				t.Errorf("match %s: phase %s round %d", m.ID, m.Phase, m.Round)
			}
		}
		if got := f.status(tr.ID); got != model.TournamentKnockoutPhase {
			t.Errorf("status = %s, want knockout_phase", got)
		}
	})

	t.Run("two teams go straight to the final", func(t *testing.T) {
		f := newFixture(t)
		tr, _ := f.registered(2)
		if _, err := f.svc.StartGroupPhase(f.ctx, tr.ID); err != nil {
			t.Fatalf("StartGroupPhase error: %v", err)
		}
		ko, err := f.svc.StartKnockoutPhase(f.ctx, tr.ID)
		if err != nil {
			t.Fatalf("StartKnockoutPhase error: %v", err)
		}
		if len(ko) != 1 || ko[0].Round != strategy.RoundFinal {
			t.Errorf("knockout = %+v, want one final", ko)
		}
	})

	t.Run("requires the group phase", func(t *testing.T) {
		f := newFixture(t)
		tr, _ := f.registered(4)
		if _, err := f.svc.StartKnockoutPhase(f.ctx, tr.ID); !errors.Is(err, ErrWrongPhase) {
			t.Errorf("error = %v, want ErrWrongPhase", err)
		}
	})
}

func TestFinish(t *testing.T) {
	f := newFixture(t)
	tr, _ := f.registered(2)
	if _, err := f.svc.Finish(f.ctx, tr.ID); !errors.Is(err, ErrWrongPhase) {
		t.Errorf("finishing a waiting tournament: error = %v, want ErrWrongPhase", err)
	}
	if _, err := f.svc.StartGroupPhase(f.ctx, tr.ID); err != nil {
		t.Fatalf("StartGroupPhase error: %v", err)
	}
	if _, err := f.svc.StartKnockoutPhase(f.ctx, tr.ID); err != nil {
		t.Fatalf("StartKnockoutPhase error: %v", err)
	}
	got, err := f.svc.Finish(f.ctx, tr.ID)
	if err != nil {
		t.Fatalf("Finish error: %v", err)
	}
	if got.Status != model.TournamentFinished {
		t.Errorf("status = %s, want finished", got.Status)
	}
}

func TestRecordResult(t *testing.T) {
	setup := func(t *testing.T) (*fixture, model.Match) {
		f := newFixture(t)
		tr, _ := f.registered(2)
		matches, err := f.svc.StartGroupPhase(f.ctx, tr.ID)
		if err != nil {
			t.Fatalf("StartGroupPhase error: %v", err)
		}
		return f, matches[0]
	}

	t.Run("higher score wins", func(t *testing.T) {
		f, m := setup(t)
		got, err := f.svc.RecordResult(f.ctx, m.ID, 6, 4)
		if err != nil {
			t.Fatalf("RecordResult error: %v", err)
		}
		if got.WinnerID != m.Team1ID || got.Status != model.MatchFinished {
			t.Errorf("match = %+v, want team 1 winner, finished", got)
		}
		if *got.Team1Score != 6 || *got.Team2Score != 4 {
			t.Errorf("scores = %d-%d, want 6-4", *got.Team1Score, *got.Team2Score)
		}
	})

	t.Run("tie has no winner", func(t *testing.T) {
		f, m := setup(t)
		got, err := f.svc.RecordResult(f.ctx, m.ID, 5, 5)
		if err != nil {
			t.Fatalf("RecordResult error: %v", err)
		}
		if got.WinnerID != "" || got.Status != model.MatchFinished {
			t.Errorf("match = %+v, want finished without winner", got)
		}
	})

	t.Run("only pending matches", func(t *testing.T) {
		f, m := setup(t)
		if _, err := f.svc.RecordResult(f.ctx, m.ID, 6, 4); err != nil {
			t.Fatalf("RecordResult error: %v", err)
		}
		if _, err := f.svc.RecordResult(f.ctx, m.ID, 1, 6); !errors.Is(err, ErrMatchNotPending) {
			t.Errorf("error = %v, want ErrMatchNotPending", err)
		}
	})

	t.Run("negative scores", func(t *testing.T) {
		f, m := setup(t)
		if _, err := f.svc.RecordResult(f.ctx, m.ID, -1, 6); !errors.Is(err, ErrInvalidScore) {
			t.Errorf("error = %v, want ErrInvalidScore", err)
		}
	})
}

func TestForfeit(t *testing.T) {
	f := newFixture(t)
	tr, teams := f.registered(3)
	matches, err := f.svc.StartGroupPhase(f.ctx, tr.ID)
	if err != nil {
		t.Fatalf("StartGroupPhase error: %v", err)
	}

	t.Run("team must play in the match", func(t *testing.T) {
		// matches[0] is Team 1 vs Team 2
		if _, err := f.svc.Forfeit(f.ctx, matches[0].ID, teams[2].ID, ""); !errors.Is(err, ErrTeamNotInMatch) {
			t.Errorf("error = %v, want ErrTeamNotInMatch", err)
		}
	})

	t.Run("opponent wins", func(t *testing.T) {
		got, err := f.svc.Forfeit(f.ctx, matches[0].ID, teams[0].ID, "injury")
		if err != nil {
			t.Fatalf("Forfeit error: %v", err)
		}
		if got.WinnerID != teams[1].ID {
			t.Errorf("winner = %s, want %s", got.WinnerID, teams[1].ID)
		}
		if got.Status != model.MatchCancelled || got.CancelledByTeamID != teams[0].ID || got.CancellationReason != "injury" {
			t.Errorf("match = %+v", got)
		}
	})

	t.Run("default reason", func(t *testing.T) {
		got, err := f.svc.Forfeit(f.ctx, matches[1].ID, teams[2].ID, "  ")
		if err != nil {
			t.Fatalf("Forfeit error: %v", err)
		}
		if got.CancellationReason != DefaultForfeitReason {
			t.Errorf("reason = %q, want %q", got.CancellationReason, DefaultForfeitReason)
		}
	})

	t.Run("only pending matches", func(t *testing.T) {
		if _, err := f.svc.Forfeit(f.ctx, matches[0].ID, teams[1].ID, ""); !errors.Is(err, ErrMatchNotPending) {
			t.Errorf("error = %v, want ErrMatchNotPending", err)
		}
	})
}

func TestTeamMatches(t *testing.T) {
	f := newFixture(t)
	tr, teams := f.registered(3)
	if _, err := f.svc.StartGroupPhase(f.ctx, tr.ID); err != nil {
		t.Fatalf("StartGroupPhase error: %v", err)
	}
	got, err := f.svc.TeamMatches(f.ctx, teams[0].ID)
	if err != nil {
		t.Fatalf("TeamMatches error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("matches = %d, want 2", len(got))
	}
	if _, err := f.svc.TeamMatches(f.ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}
