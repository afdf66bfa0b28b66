package schedule

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/derekprior/courtsched/internal/model"
	"github.com/derekprior/courtsched/internal/notify"
	"github.com/derekprior/courtsched/internal/store"
)

func TestScheduleThreeTeamRoundRobin(t *testing.T) {
	w := newWorld(t)
	tr := w.tournament("Open")
	court := w.court("Centre", false)
	a, b, c := w.team("A"), w.team("B"), w.team("C")
	matches := w.roundRobin(tr, a, b, c)
	start := date(2026, 5, 1)

	events := &notify.Recorder{}
	s := NewScheduler(w.s, Config{BufferMinutes: 10, Events: events})
	res, err := s.Schedule(w.ctx, Request{TournamentID: tr.ID, CourtIDs: []string{court.ID}, StartDate: start})
	if err != nil {
		t.Fatalf("Schedule() error: %v", err)
	}

	t.Run("all matches scheduled", func(t *testing.T) {
		if !res.Success || res.Scheduled != 3 {
			t.Errorf("result = %+v, want 3 scheduled", res)
		}
		if len(events.Events) != 3 {
			t.Errorf("published %d events, want 3", len(events.Events))
		}
	})

	t.Run("each match lands on the first free day at the earliest slot", func(t *testing.T) {
		want := []time.Time{start, start.AddDate(0, 0, 1), start.AddDate(0, 0, 2)}
		for i, m := range matches {
			bk, err := w.s.BookingForMatch(w.ctx, m.ID)
			if err != nil {
				t.Fatalf("match %d has no booking: %v", i+1, err)
			}
			if !bk.Date.Equal(want[i]) {
				t.Errorf("match %d on %s, want %s", i+1, model.FormatDate(bk.Date), model.FormatDate(want[i]))
			}
			if bk.Start != clock("10:00") || bk.End != clock("11:00") {
				t.Errorf("match %d at %s-%s, want 10:00-11:00", i+1, bk.Start, bk.End)
			}
		}
	})

	t.Run("a second run has nothing to do", func(t *testing.T) {
		_, err := s.Schedule(w.ctx, Request{TournamentID: tr.ID, CourtIDs: []string{court.ID}, StartDate: start})
		if !errors.Is(err, ErrNoPendingMatches) {
			t.Errorf("error = %v, want ErrNoPendingMatches", err)
		}
	})
}

func TestSchedulePartialFailure(t *testing.T) {
	w := newWorld(t)
	tr := w.tournament("Open")
	other := w.tournament("League")
	court := w.court("Centre", false)
	elsewhere := w.court("Annex", false)
	a, b, c, d := w.team("A"), w.team("B"), w.team("C"), w.team("D")
	start := date(2026, 5, 1)

	// A plays in another tournament every day of the search window.
	for i := 0; i < MaxSearchDays; i++ {
		w.book(w.match(other, a, w.team("L")), elsewhere, start.AddDate(0, 0, i), "08:00", "09:00")
	}
	blocked := w.match(tr, a, b)
	free := w.match(tr, c, d)

	s := NewScheduler(w.s, Config{})
	res, err := s.Schedule(w.ctx, Request{TournamentID: tr.ID, CourtIDs: []string{court.ID}, StartDate: start})
	if err != nil {
		t.Fatalf("Schedule() error: %v", err)
	}
	if res.Success {
		t.Error("Success = true, want false")
	}
	if res.Scheduled != 1 {
		t.Errorf("Scheduled = %d, want 1", res.Scheduled)
	}
	if len(res.Failures) != 1 || res.Failures[0].MatchID != blocked.ID {
		t.Errorf("Failures = %+v, want only %s", res.Failures, blocked.ID)
	}
	if !strings.Contains(res.Message, "A vs B") {
		t.Errorf("message %q should list the failed match", res.Message)
	}
	if _, err := w.s.BookingForMatch(w.ctx, free.ID); err != nil {
		t.Errorf("successful booking was not committed: %v", err)
	}
	if _, err := w.s.BookingForMatch(w.ctx, blocked.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("blocked match booking error = %v, want ErrNotFound", err)
	}
}

func TestSchedulePreconditions(t *testing.T) {
	start := date(2026, 5, 1)

	t.Run("no pending matches", func(t *testing.T) {
		w := newWorld(t)
		tr := w.tournament("Open")
		court := w.court("Centre", false)
		_, err := NewScheduler(w.s, Config{}).Schedule(w.ctx, Request{TournamentID: tr.ID, CourtIDs: []string{court.ID}, StartDate: start})
		if !errors.Is(err, ErrNoPendingMatches) {
			t.Errorf("error = %v, want ErrNoPendingMatches", err)
		}
	})

	t.Run("finished matches are not pending", func(t *testing.T) {
		w := newWorld(t)
		tr := w.tournament("Open")
		court := w.court("Centre", false)
		m := w.match(tr, w.team("A"), w.team("B"))
		m.Status = model.MatchFinished
		if err := w.s.UpdateMatch(w.ctx, m); err != nil {
			t.Fatalf("UpdateMatch error: %v", err)
		}
		_, err := NewScheduler(w.s, Config{}).Schedule(w.ctx, Request{TournamentID: tr.ID, CourtIDs: []string{court.ID}, StartDate: start})
		if !errors.Is(err, ErrNoPendingMatches) {
			t.Errorf("error = %v, want ErrNoPendingMatches", err)
		}
	})

	t.Run("no courts", func(t *testing.T) {
		w := newWorld(t)
		tr := w.tournament("Open")
		w.match(tr, w.team("A"), w.team("B"))
		_, err := NewScheduler(w.s, Config{}).Schedule(w.ctx, Request{TournamentID: tr.ID, StartDate: start})
		if !errors.Is(err, ErrNoCourts) {
			t.Errorf("error = %v, want ErrNoCourts", err)
		}
	})

	t.Run("unknown court", func(t *testing.T) {
		w := newWorld(t)
		tr := w.tournament("Open")
		w.match(tr, w.team("A"), w.team("B"))
		_, err := NewScheduler(w.s, Config{}).Schedule(w.ctx, Request{TournamentID: tr.ID, CourtIDs: []string{"missing"}, StartDate: start})
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})

	t.Run("start time too late for a full match", func(t *testing.T) {
		w := newWorld(t)
		tr := w.tournament("Open")
		court := w.court("Centre", false)
		w.match(tr, w.team("A"), w.team("B"))
		_, err := NewScheduler(w.s, Config{}).Schedule(w.ctx, Request{
			TournamentID: tr.ID, CourtIDs: []string{court.ID}, StartDate: start,
			TimeSlots: []model.Clock{clock("23:30")},
		})
		if !errors.Is(err, ErrInvalidInterval) {
			t.Errorf("error = %v, want ErrInvalidInterval", err)
		}
	})
}

func TestScheduleRoundRobinMode(t *testing.T) {
	w := newWorld(t)
	tr := w.tournament("Open")
	c1, c2 := w.court("One", false), w.court("Two", false)
	var matches []model.Match
	for i := 0; i < 5; i++ {
		// the same two teams every time: rotation mode does not care
		matches = append(matches, w.match(tr, w.team("A"), w.team("B")))
	}
	start := date(2026, 5, 1)

	res, err := NewScheduler(w.s, Config{}).Schedule(w.ctx, Request{
		TournamentID: tr.ID,
		CourtIDs:     []string{c1.ID, c2.ID},
		StartDate:    start,
		TimeSlots:    []model.Clock{clock("10:00"), clock("12:00")},
		Mode:         ModeRoundRobin,
	})
	if err != nil {
		t.Fatalf("Schedule() error: %v", err)
	}
	if res.Scheduled != 5 {
		t.Fatalf("Scheduled = %d, want 5", res.Scheduled)
	}

	want := []struct {
		court string
		day   time.Time
		start string
	}{
		{c1.ID, start, "10:00"},
		{c1.ID, start, "12:00"},
		{c2.ID, start, "10:00"},
		{c2.ID, start, "12:00"},
		{c1.ID, start.AddDate(0, 0, 1), "10:00"},
	}
	for i, m := range matches {
		bk, err := w.s.BookingForMatch(w.ctx, m.ID)
		if err != nil {
			t.Fatalf("match %d unbooked: %v", i+1, err)
		}
		if bk.CourtID != want[i].court || !bk.Date.Equal(want[i].day) || bk.Start != clock(want[i].start) {
			t.Errorf("match %d at %s %s %s, want %s %s %s", i+1,
				bk.CourtID, model.FormatDate(bk.Date), bk.Start,
				want[i].court, model.FormatDate(want[i].day), want[i].start)
		}
	}
}

// TestScheduledBookingsHoldInvariants schedules a larger field with players
// shared between teams and checks every pair of resulting bookings.
func TestScheduledBookingsHoldInvariants(t *testing.T) {
	w := newWorld(t)
	tr := w.tournament("Open")
	courts := []model.Court{w.court("One", false), w.court("Two", false), w.court("Three", true)}
	p := make([]model.Player, 8)
	for i := range p {
		p[i] = w.player(string(rune('a' + i)))
	}
	teams := []model.Team{
		w.team("T1", p[0], p[1]), w.team("T2", p[2], p[3]), w.team("T3", p[4], p[5]),
		w.team("T4", p[6], p[7]), w.team("T5", p[0], p[2]), w.team("T6", p[4], p[6]),
	}
	w.roundRobin(tr, teams...)

	buffer := 15
	res, err := NewScheduler(w.s, Config{}).Schedule(w.ctx, Request{
		TournamentID:  tr.ID,
		CourtIDs:      []string{courts[0].ID, courts[1].ID, courts[2].ID},
		StartDate:     date(2026, 6, 1),
		TimeSlots:     []model.Clock{clock("09:00"), clock("10:05"), clock("10:30"), clock("14:00")},
		BufferMinutes: intPtr(buffer),
	})
	if err != nil {
		t.Fatalf("Schedule() error: %v", err)
	}
	if !res.Success {
		t.Fatalf("not everything scheduled: %s", res.Message)
	}

	bookings, _ := w.s.ListBookings(w.ctx, store.BookingFilter{TournamentID: tr.ID})
	matchOf := make(map[string]model.Match)
	for _, b := range bookings {
		m, _ := w.s.GetMatch(w.ctx, b.MatchID)
		matchOf[b.ID] = m
	}
	playersOf := func(m model.Match) map[string]bool {
		out := map[string]bool{}
		for _, id := range []string{m.Team1ID, m.Team2ID} {
			team, _ := w.s.GetTeam(w.ctx, id)
			for _, pid := range team.PlayerIDs {
				out[pid] = true
			}
		}
		return out
	}

	for i, x := range bookings {
		for _, y := range bookings[i+1:] {
			if !x.Date.Equal(y.Date) {
				continue
			}
			mx, my := matchOf[x.ID], matchOf[y.ID]
			if x.CourtID == y.CourtID && x.Overlaps(y.Start.Add(-buffer), y.End.Add(buffer)) {
				t.Errorf("court buffer violated: %s %s-%s and %s-%s", x.CourtID, x.Start, x.End, y.Start, y.End)
			}
			for _, team := range []string{mx.Team1ID, mx.Team2ID} {
				if my.HasTeam(team) {
					t.Errorf("team %s plays twice on %s", team, model.FormatDate(x.Date))
				}
			}
			if x.Overlaps(y.Start, y.End) {
				py := playersOf(my)
				for pid := range playersOf(mx) {
					if py[pid] {
						t.Errorf("player %s double booked on %s", pid, model.FormatDate(x.Date))
					}
				}
			}
		}
	}
}
