package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/derekprior/courtsched/internal/model"
	"github.com/derekprior/courtsched/internal/store"
)

const (
	// MaxSearchDays bounds how far past the start date FindSlot looks.
	MaxSearchDays = 30
	// MatchMinutes is the fixed length of every match.
	MatchMinutes = 60
	// DefaultBufferMinutes is the idle gap required between bookings on a court.
	DefaultBufferMinutes = 10
)

// DefaultTimeSlots are the start times used when a caller supplies none.
var DefaultTimeSlots = []string{"10:00", "12:00", "14:00", "16:00", "18:00"}

// DefaultClocks returns DefaultTimeSlots parsed.
func DefaultClocks() []model.Clock {
	out := make([]model.Clock, len(DefaultTimeSlots))
	for i, s := range DefaultTimeSlots {
		out[i] = model.MustClock(s)
	}
	return out
}

// Slot is a concrete placement: a court, a day and a one-hour window.
type Slot struct {
	Court model.Court
	Date  time.Time
	Start model.Clock
	End   model.Clock
}

func (s Slot) String() string {
	return fmt.Sprintf("%s %s %s-%s", s.Court.Name, model.FormatDate(s.Date), s.Start, s.End)
}

// checkStartTimes makes sure every start time leaves room for a full match
// before midnight.
func checkStartTimes(times []model.Clock) error {
	for _, t := range times {
		if err := validInterval(t, t.Add(MatchMinutes)); err != nil {
			return err
		}
	}
	return nil
}

// FindSlot walks the days from startDate, then courts, then start times,
// all in the order given, and returns the first placement CanSchedule
// accepts. A day on which either team already plays is skipped outright.
// found is false when nothing fits within MaxSearchDays.
func FindSlot(ctx context.Context, q store.Queries, m model.Match, courts []model.Court,
	startDate time.Time, times []model.Clock, bufferMinutes int) (slot Slot, found bool, err error) {
	if err := checkStartTimes(times); err != nil {
		return Slot{}, false, err
	}
	day := model.DateOf(startDate)
	for i := 0; i < MaxSearchDays; i++ {
		date := day.AddDate(0, 0, i)

		busy, err := eitherTeamBusy(ctx, q, m, date)
		if err != nil {
			return Slot{}, false, err
		}
		if busy {
			continue
		}

		for _, court := range courts {
			for _, start := range times {
				c := Candidate{
					Match:         m,
					Court:         court,
					Date:          date,
					Start:         start,
					End:           start.Add(MatchMinutes),
					BufferMinutes: bufferMinutes,
				}
				d, err := CanSchedule(ctx, q, c)
				if err != nil {
					return Slot{}, false, err
				}
				if d.Allowed {
					return Slot{Court: court, Date: date, Start: c.Start, End: c.End}, true, nil
				}
			}
		}
	}
	return Slot{}, false, nil
}

func eitherTeamBusy(ctx context.Context, q store.Queries, m model.Match, date time.Time) (bool, error) {
	for _, teamID := range []string{m.Team1ID, m.Team2ID} {
		busy, err := teamBusy(ctx, q, teamID, date, m.ID)
		if err != nil || busy {
			return busy, err
		}
	}
	return false, nil
}
