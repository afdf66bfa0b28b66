package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/derekprior/courtsched/internal/model"
)

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

// backends returns a fresh store per implementation.
func backends(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"sqlite": func() Store {
			s, err := NewSQLiteStore(context.Background(), ":memory:")
			if err != nil {
				t.Fatalf("NewSQLiteStore() error: %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

type fixture struct {
	s          Store
	alice, bob model.Player
	carol      model.Player
	teamAB     model.Team
	teamC      model.Team
	court      model.Court
	indoor     model.Court
	tournament model.Tournament
}

func newFixture(t *testing.T, s Store) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{s: s}
	var err error
	mustPlayer := func(name string, rank int) model.Player {
		p, err := s.CreatePlayer(ctx, model.Player{Name: name, Ranking: rank})
		if err != nil {
			t.Fatalf("CreatePlayer(%s) error: %v", name, err)
		}
		return p
	}
	f.alice = mustPlayer("Alice", 10)
	f.bob = mustPlayer("Bob", 7)
	f.carol = mustPlayer("Carol", 4)
	if f.teamAB, err = s.CreateTeam(ctx, model.Team{Name: "AB", PlayerIDs: []string{f.alice.ID, f.bob.ID}}); err != nil {
		t.Fatalf("CreateTeam(AB) error: %v", err)
	}
	if f.teamC, err = s.CreateTeam(ctx, model.Team{Name: "C", PlayerIDs: []string{f.carol.ID}}); err != nil {
		t.Fatalf("CreateTeam(C) error: %v", err)
	}
	if f.court, err = s.CreateCourt(ctx, model.Court{Name: "Centre", IsAvailable: true}); err != nil {
		t.Fatalf("CreateCourt error: %v", err)
	}
	if f.indoor, err = s.CreateCourt(ctx, model.Court{Name: "Hall", IsIndoor: true, IsAvailable: true}); err != nil {
		t.Fatalf("CreateCourt error: %v", err)
	}
	if f.tournament, err = s.CreateTournament(ctx, model.Tournament{Name: "Spring Open"}); err != nil {
		t.Fatalf("CreateTournament error: %v", err)
	}
	return f
}

func (f *fixture) match(t *testing.T, tournamentID string) model.Match {
	t.Helper()
	m, err := f.s.CreateMatch(context.Background(), model.Match{
		TournamentID: tournamentID,
		Team1ID:      f.teamAB.ID,
		Team2ID:      f.teamC.ID,
		Phase:        model.PhaseGroup,
	})
	if err != nil {
		t.Fatalf("CreateMatch error: %v", err)
	}
	return m
}

func TestStores(t *testing.T) {
	ctx := context.Background()
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("team ranking is the sum of member rankings", func(t *testing.T) {
				f := newFixture(t, open())
				if f.teamAB.Ranking != 17 {
					t.Errorf("AB ranking = %d, want 17", f.teamAB.Ranking)
				}
				team, err := f.s.SetTeamMembers(ctx, f.teamAB.ID, []string{f.alice.ID, f.carol.ID})
				if err != nil {
					t.Fatalf("SetTeamMembers error: %v", err)
				}
				if team.Ranking != 14 {
					t.Errorf("ranking after membership change = %d, want 14", team.Ranking)
				}
				ids, err := f.s.TeamIDsForPlayer(ctx, f.bob.ID)
				if err != nil {
					t.Fatalf("TeamIDsForPlayer error: %v", err)
				}
				if len(ids) != 0 {
					t.Errorf("Bob still belongs to %v", ids)
				}
				ids, _ = f.s.TeamIDsForPlayer(ctx, f.carol.ID)
				if len(ids) != 2 {
					t.Errorf("Carol belongs to %d teams, want 2", len(ids))
				}
			})

			t.Run("team membership is validated", func(t *testing.T) {
				f := newFixture(t, open())
				cases := [][]string{
					nil,
					{f.alice.ID, f.alice.ID},
					{f.alice.ID, f.bob.ID, f.carol.ID},
					{"nobody"},
				}
				for _, ids := range cases {
					if _, err := f.s.CreateTeam(ctx, model.Team{Name: "bad", PlayerIDs: ids}); !errors.Is(err, ErrInvalidTeam) {
						t.Errorf("CreateTeam(%v) error = %v, want ErrInvalidTeam", ids, err)
					}
				}
			})

			t.Run("registration keeps order and rejects duplicates", func(t *testing.T) {
				f := newFixture(t, open())
				if err := f.s.RegisterTeam(ctx, f.tournament.ID, f.teamC.ID); err != nil {
					t.Fatalf("RegisterTeam error: %v", err)
				}
				if err := f.s.RegisterTeam(ctx, f.tournament.ID, f.teamAB.ID); err != nil {
					t.Fatalf("RegisterTeam error: %v", err)
				}
				if err := f.s.RegisterTeam(ctx, f.tournament.ID, f.teamC.ID); !errors.Is(err, ErrAlreadyRegistered) {
					t.Errorf("duplicate RegisterTeam error = %v, want ErrAlreadyRegistered", err)
				}
				teams, err := f.s.ListTournamentTeams(ctx, f.tournament.ID)
				if err != nil {
					t.Fatalf("ListTournamentTeams error: %v", err)
				}
				if len(teams) != 2 || teams[0].ID != f.teamC.ID || teams[1].ID != f.teamAB.ID {
					t.Errorf("registered teams out of order: %+v", teams)
				}
			})

			t.Run("tournament names are unique", func(t *testing.T) {
				f := newFixture(t, open())
				if _, err := f.s.CreateTournament(ctx, model.Tournament{Name: f.tournament.Name}); !errors.Is(err, ErrDuplicate) {
					t.Errorf("CreateTournament duplicate error = %v, want ErrDuplicate", err)
				}
				got, err := f.s.GetTournament(ctx, f.tournament.ID)
				if err != nil {
					t.Fatalf("GetTournament error: %v", err)
				}
				if got.Status != model.TournamentWaiting {
					t.Errorf("new tournament status = %s, want waiting", got.Status)
				}
			})

			t.Run("matches list in creation order", func(t *testing.T) {
				f := newFixture(t, open())
				var ids []string
				for i := 0; i < 3; i++ {
					ids = append(ids, f.match(t, f.tournament.ID).ID)
				}
				got, err := f.s.ListMatches(ctx, MatchFilter{TournamentID: f.tournament.ID})
				if err != nil {
					t.Fatalf("ListMatches error: %v", err)
				}
				if len(got) != 3 {
					t.Fatalf("ListMatches returned %d matches, want 3", len(got))
				}
				for i, m := range got {
					if m.ID != ids[i] {
						t.Errorf("match %d = %s, want %s", i, m.ID, ids[i])
					}
					if m.Status != model.MatchPending {
						t.Errorf("match %d status = %s, want pending", i, m.Status)
					}
				}
			})

			t.Run("booking indexes follow updates", func(t *testing.T) {
				f := newFixture(t, open())
				m := f.match(t, f.tournament.ID)
				b, err := f.s.CreateBooking(ctx, model.Booking{
					MatchID: m.ID, CourtID: f.court.ID, Date: date(2026, 5, 1),
					Start: model.MustClock("10:00"), End: model.MustClock("11:00"),
				})
				if err != nil {
					t.Fatalf("CreateBooking error: %v", err)
				}
				if _, err := f.s.CreateBooking(ctx, model.Booking{MatchID: m.ID, CourtID: f.court.ID, Date: date(2026, 5, 2)}); !errors.Is(err, ErrMatchAlreadyBooked) {
					t.Errorf("second booking error = %v, want ErrMatchAlreadyBooked", err)
				}

				onCourt, _ := f.s.BookingsOnCourt(ctx, f.court.ID, date(2026, 5, 1))
				if len(onCourt) != 1 {
					t.Errorf("BookingsOnCourt = %d, want 1", len(onCourt))
				}
				forTeam, _ := f.s.BookingsForTeam(ctx, f.teamC.ID, date(2026, 4, 30), date(2026, 5, 1))
				if len(forTeam) != 1 {
					t.Errorf("BookingsForTeam = %d, want 1", len(forTeam))
				}

				temp := 18.5
				b.CourtID = f.indoor.ID
				b.Date = date(2026, 5, 2)
				b.Weather = &model.Weather{Temperature: &temp, Condition: "rain", CheckedAt: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
				if err := f.s.UpdateBooking(ctx, b); err != nil {
					t.Fatalf("UpdateBooking error: %v", err)
				}
				if got, _ := f.s.BookingsOnCourt(ctx, f.court.ID, date(2026, 5, 1)); len(got) != 0 {
					t.Errorf("old court/day still indexed: %d", len(got))
				}
				if got, _ := f.s.BookingsForTeam(ctx, f.teamAB.ID, date(2026, 5, 1), date(2026, 5, 1)); len(got) != 0 {
					t.Errorf("old team day still indexed: %d", len(got))
				}
				got, err := f.s.BookingForMatch(ctx, m.ID)
				if err != nil {
					t.Fatalf("BookingForMatch error: %v", err)
				}
				if got.CourtID != f.indoor.ID || !got.Date.Equal(date(2026, 5, 2)) {
					t.Errorf("booking = %s on %v, want Hall on 2026-05-02", got.CourtID, got.Date)
				}
				if got.Weather == nil || got.Weather.Temperature == nil || *got.Weather.Temperature != 18.5 {
					t.Errorf("weather snapshot not persisted: %+v", got.Weather)
				}
				if got.Weather != nil && got.Weather.RainProbability != nil {
					t.Errorf("rain probability = %d, want unset", *got.Weather.RainProbability)
				}

				unbooked, _ := f.s.ListMatches(ctx, MatchFilter{Unbooked: true})
				if len(unbooked) != 0 {
					t.Errorf("Unbooked returned %d matches, want 0", len(unbooked))
				}
				if err := f.s.DeleteCourt(ctx, f.indoor.ID); !errors.Is(err, ErrInUse) {
					t.Errorf("DeleteCourt error = %v, want ErrInUse", err)
				}
			})

			t.Run("team bookings span tournaments", func(t *testing.T) {
				f := newFixture(t, open())
				other, err := f.s.CreateTournament(ctx, model.Tournament{Name: "Summer Cup"})
				if err != nil {
					t.Fatalf("CreateTournament error: %v", err)
				}
				for i, tid := range []string{f.tournament.ID, other.ID} {
					m := f.match(t, tid)
					_, err := f.s.CreateBooking(ctx, model.Booking{
						MatchID: m.ID, CourtID: f.court.ID, Date: date(2026, 5, 1+i),
						Start: model.MustClock("10:00"), End: model.MustClock("11:00"),
					})
					if err != nil {
						t.Fatalf("CreateBooking error: %v", err)
					}
				}
				all, _ := f.s.BookingsForTeam(ctx, f.teamAB.ID, date(2026, 5, 1), date(2026, 5, 31))
				if len(all) != 2 {
					t.Errorf("BookingsForTeam across tournaments = %d, want 2", len(all))
				}
				one, _ := f.s.ListBookings(ctx, BookingFilter{TournamentID: other.ID})
				if len(one) != 1 {
					t.Errorf("ListBookings(other) = %d, want 1", len(one))
				}
				later, _ := f.s.ListBookings(ctx, BookingFilter{From: date(2026, 5, 2)})
				if len(later) != 1 {
					t.Errorf("ListBookings(from 05-02) = %d, want 1", len(later))
				}
			})

			t.Run("rollback discards writes", func(t *testing.T) {
				f := newFixture(t, open())
				m := f.match(t, f.tournament.ID)
				tx, err := f.s.Begin(ctx)
				if err != nil {
					t.Fatalf("Begin error: %v", err)
				}
				if _, err := tx.CreateBooking(ctx, model.Booking{
					MatchID: m.ID, CourtID: f.court.ID, Date: date(2026, 5, 1),
					Start: model.MustClock("10:00"), End: model.MustClock("11:00"),
				}); err != nil {
					t.Fatalf("CreateBooking in tx error: %v", err)
				}
				if got, _ := tx.BookingsOnCourt(ctx, f.court.ID, date(2026, 5, 1)); len(got) != 1 {
					t.Errorf("tx does not see its own write")
				}
				if err := tx.Rollback(); err != nil {
					t.Fatalf("Rollback error: %v", err)
				}
				if got, _ := f.s.BookingsOnCourt(ctx, f.court.ID, date(2026, 5, 1)); len(got) != 0 {
					t.Errorf("rolled back booking is visible")
				}
				if err := tx.Commit(); !errors.Is(err, ErrTxDone) {
					t.Errorf("Commit after Rollback error = %v, want ErrTxDone", err)
				}
			})

			t.Run("commit publishes writes", func(t *testing.T) {
				f := newFixture(t, open())
				m := f.match(t, f.tournament.ID)
				err := InTx(ctx, f.s, func(q Queries) error {
					m.ScheduleNote = "moved"
					return q.UpdateMatch(ctx, m)
				})
				if err != nil {
					t.Fatalf("InTx error: %v", err)
				}
				got, err := f.s.GetMatch(ctx, m.ID)
				if err != nil {
					t.Fatalf("GetMatch error: %v", err)
				}
				if got.ScheduleNote != "moved" {
					t.Errorf("ScheduleNote = %q, want %q", got.ScheduleNote, "moved")
				}
			})

			t.Run("missing records report ErrNotFound", func(t *testing.T) {
				s := open()
				if _, err := s.GetMatch(ctx, "nope"); !errors.Is(err, ErrNotFound) {
					t.Errorf("GetMatch error = %v, want ErrNotFound", err)
				}
				if _, err := s.BookingForMatch(ctx, "nope"); !errors.Is(err, ErrNotFound) {
					t.Errorf("BookingForMatch error = %v, want ErrNotFound", err)
				}
				if err := s.UpdateTournamentStatus(ctx, "nope", model.TournamentFinished); !errors.Is(err, ErrNotFound) {
					t.Errorf("UpdateTournamentStatus error = %v, want ErrNotFound", err)
				}
			})
		})
	}
}

func TestRebind(t *testing.T) {
	got := dialectPostgres.rebind(`SELECT * FROM t WHERE a = ? AND b = ?`)
	want := `SELECT * FROM t WHERE a = $1 AND b = $2`
	if got != want {
		t.Errorf("rebind = %q, want %q", got, want)
	}
	if q := dialectSQLite.rebind(`a = ?`); q != `a = ?` {
		t.Errorf("sqlite rebind changed query: %q", q)
	}
}
