package weather

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/derekprior/courtsched/internal/model"
	"github.com/derekprior/courtsched/internal/notify"
	"github.com/derekprior/courtsched/internal/schedule"
	"github.com/derekprior/courtsched/internal/store"
)

// Action is what a check did to a booking.
type Action string

const (
	NoAction  Action = "no_action"
	Relocated Action = "relocated"
	Postponed Action = "postponed"
)

// Outcome reports a single match check. Weather is nil when no reading was
// taken. Conflict is set when the booking's new placement fails the
// conflict checker; the move is kept regardless.
type Outcome struct {
	MatchID      string       `json:"match_id"`
	Action       Action       `json:"action"`
	Reason       string       `json:"reason"`
	Description  string       `json:"description,omitempty"`
	Weather      *Reading     `json:"weather,omitempty"`
	BookingDate  string       `json:"booking_date,omitempty"`
	Court        string       `json:"court,omitempty"`
	OldCourt     string       `json:"old_court,omitempty"`
	NewCourt     *model.Court `json:"new_court,omitempty"`
	OriginalDate string       `json:"original_date,omitempty"`
	NewDate      string       `json:"new_date,omitempty"`
	Conflict     string       `json:"conflict,omitempty"`
}

// Summary reports a tournament-wide check.
type Summary struct {
	TotalChecked int       `json:"total_checked"`
	Relocated    int       `json:"relocated"`
	Postponed    int       `json:"postponed"`
	NoAction     int       `json:"no_action"`
	Results      []Outcome `json:"results"`
}

type GuardConfig struct {
	// Location is used when a check names none.
	Location string
	// BufferMinutes is the court buffer used to re-check moved bookings.
	BufferMinutes int
	Logger        *slog.Logger
	Events        notify.Publisher
	Now           func() time.Time
}

// Guard checks the weather for outdoor bookings and moves the ones that
// cannot be played.
type Guard struct {
	store    store.Store
	source   Source
	location string
	buffer   int
	logger   *slog.Logger
	events   notify.Publisher
	now      func() time.Time
}

// NewGuard wraps src in FailOpen, so a check always reaches a decision.
func NewGuard(st store.Store, src Source, cfg GuardConfig) *Guard {
	g := &Guard{
		store:    st,
		location: cfg.Location,
		buffer:   cfg.BufferMinutes,
		logger:   cfg.Logger,
		events:   cfg.Events,
		now:      cfg.Now,
	}
	if g.location == "" {
		g.location = DefaultLocation
	}
	if g.logger == nil {
		g.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if g.events == nil {
		g.events = notify.Discard{}
	}
	if g.now == nil {
		g.now = time.Now
	}
	g.source = FailOpen{Source: src, Logger: g.logger, Now: g.now}
	return g
}

// Fetch returns the current reading for location, never failing.
func (g *Guard) Fetch(ctx context.Context, location string) Reading {
	if location == "" {
		location = g.location
	}
	r, _ := g.source.Fetch(ctx, location)
	return r
}

// CheckMatch checks the booking of one match. Indoor bookings are left
// alone without a reading. For outdoor bookings the reading is always
// stored; if the weather is unsuitable the booking moves to the first
// indoor court with nothing starting at the same date and time, or failing
// that to the same court and time on the next day.
func (g *Guard) CheckMatch(ctx context.Context, matchID, location string) (Outcome, error) {
	m, err := g.store.GetMatch(ctx, matchID)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{MatchID: m.ID, Action: NoAction}

	booking, err := g.store.BookingForMatch(ctx, m.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			out.Reason = "No booking to check"
			return out, nil
		}
		return Outcome{}, err
	}
	court, err := g.store.GetCourt(ctx, booking.CourtID)
	if err != nil {
		return Outcome{}, err
	}
	out.BookingDate = model.FormatDate(booking.Date)
	out.Court = court.Name
	if court.IsIndoor {
		out.Reason = "Court is indoor, weather doesn't affect play"
		return out, nil
	}

	// The reading is taken before the transaction: the store may serialise
	// every access behind an open transaction.
	reading := g.Fetch(ctx, location)
	out.Weather = &reading
	out.Description = Describe(reading)

	var event string
	err = store.InTx(ctx, g.store, func(q store.Queries) error {
		var applyErr error
		event, applyErr = g.apply(ctx, q, m.ID, court, reading, &out)
		return applyErr
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("weather check for match %s: %w", m.ID, err)
	}

	g.events.Publish(notify.Event{Type: notify.WeatherChecked, TournamentID: m.TournamentID, Payload: out})
	if event != "" {
		g.events.Publish(notify.Event{Type: event, TournamentID: m.TournamentID, Payload: out})
	}
	return out, nil
}

// apply stores the reading and, for unsuitable weather, moves the booking.
// It returns the event type describing the move, if any.
func (g *Guard) apply(ctx context.Context, q store.Queries, matchID string,
	court model.Court, reading Reading, out *Outcome) (string, error) {
	m, err := q.GetMatch(ctx, matchID)
	if err != nil {
		return "", err
	}
	b, err := q.BookingForMatch(ctx, matchID)
	if err != nil {
		return "", err
	}
	b.Weather = reading.Snapshot()
	if reading.Suitable {
		out.Reason = "Weather is suitable for outdoor play"
		return "", q.UpdateBooking(ctx, b)
	}

	logger := g.logger.With("match_id", m.ID, "court", court.Name, "date", model.FormatDate(b.Date))
	logger.Warn("bad weather for outdoor match", "condition", reading.Condition, "description", out.Description)

	indoor, err := g.idleIndoorCourt(ctx, q, b)
	if err != nil {
		return "", err
	}

	var event string
	target := court
	if indoor != nil {
		b.CourtID = indoor.ID
		target = *indoor
		m.ScheduleNote = fmt.Sprintf("Relocated from '%s' to '%s' due to %s weather", court.Name, indoor.Name, reading.Condition)
		out.Action = Relocated
		out.Reason = fmt.Sprintf("Bad weather (%s), relocated to indoor court", reading.Condition)
		out.OldCourt = court.Name
		out.NewCourt = indoor
		out.Court = indoor.Name
		event = notify.BookingRelocated
		logger.Info("match relocated indoors", "new_court", indoor.Name)
	} else {
		original := b.Date
		b.Date = original.AddDate(0, 0, 1)
		m.ScheduleNote = fmt.Sprintf("Postponed from %s to %s due to %s weather (no indoor courts available)",
			model.FormatDate(original), model.FormatDate(b.Date), reading.Condition)
		out.Action = Postponed
		out.Reason = fmt.Sprintf("Bad weather (%s), postponed to next day (no indoor courts available)", reading.Condition)
		out.OriginalDate = model.FormatDate(original)
		out.NewDate = model.FormatDate(b.Date)
		out.BookingDate = out.NewDate
		event = notify.BookingPostponed
		logger.Info("match postponed", "new_date", out.NewDate)
	}
	if err := q.UpdateBooking(ctx, b); err != nil {
		return "", err
	}

	d, err := schedule.CanSchedule(ctx, q, schedule.Candidate{
		Match:         m,
		Court:         target,
		Date:          b.Date,
		Start:         b.Start,
		End:           b.End,
		BufferMinutes: g.buffer,
	})
	if err != nil {
		return "", err
	}
	if !d.Allowed {
		out.Conflict = d.Reason
		m.ScheduleNote += "; conflict: " + d.Reason
		logger.Warn("moved booking conflicts with the schedule", "conflict", d.Conflict.String(), "reason", d.Reason)
	}
	return event, q.UpdateMatch(ctx, m)
}

// idleIndoorCourt returns the first available indoor court with no booking
// starting at b's date and start time, or nil. Only the start time is
// compared.
func (g *Guard) idleIndoorCourt(ctx context.Context, q store.Queries, b model.Booking) (*model.Court, error) {
	yes := true
	courts, err := q.ListCourts(ctx, store.CourtFilter{Indoor: &yes, Available: &yes})
	if err != nil {
		return nil, err
	}
	for _, c := range courts {
		bookings, err := q.BookingsOnCourt(ctx, c.ID, b.Date)
		if err != nil {
			return nil, err
		}
		taken := false
		for _, other := range bookings {
			if other.Start == b.Start {
				taken = true
				break
			}
		}
		if !taken {
			return &c, nil
		}
	}
	return nil, nil
}

// CheckTournament checks every pending match of the tournament booked for
// today or later.
func (g *Guard) CheckTournament(ctx context.Context, tournamentID, location string) (Summary, error) {
	if _, err := g.store.GetTournament(ctx, tournamentID); err != nil {
		return Summary{}, err
	}
	bookings, err := g.store.ListBookings(ctx, store.BookingFilter{
		TournamentID: tournamentID,
		From:         model.DateOf(g.now()),
	})
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{Results: []Outcome{}}
	for _, b := range bookings {
		m, err := g.store.GetMatch(ctx, b.MatchID)
		if err != nil {
			return Summary{}, err
		}
		if m.Status != model.MatchPending {
			continue
		}
		out, err := g.CheckMatch(ctx, m.ID, location)
		if err != nil {
			return Summary{}, err
		}
		sum.TotalChecked++
		switch out.Action {
		case Relocated:
			sum.Relocated++
		case Postponed:
			sum.Postponed++
		default:
			sum.NoAction++
		}
		sum.Results = append(sum.Results, out)
	}
	g.logger.Info("weather check complete", "tournament_id", tournamentID,
		"checked", sum.TotalChecked, "relocated", sum.Relocated, "postponed", sum.Postponed, "no_action", sum.NoAction)
	return sum, nil
}
