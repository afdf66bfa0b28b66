package schedule

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/derekprior/courtsched/internal/model"
	"github.com/derekprior/courtsched/internal/notify"
	"github.com/derekprior/courtsched/internal/store"
)

var (
	ErrNoPendingMatches = errors.New("no pending matches to schedule")
	ErrNoCourts         = errors.New("no courts available")
)

// Mode selects the batch algorithm.
type Mode string

const (
	// ModeConflictAware places each match with FindSlot.
	ModeConflictAware Mode = "conflict_aware"
	// ModeRoundRobin hands out slots in rotation and checks nothing: no
	// court buffer, player or one-match-per-day guarantees.
	ModeRoundRobin Mode = "round_robin"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeConflictAware:
		return ModeConflictAware, nil
	case ModeRoundRobin:
		return ModeRoundRobin, nil
	}
	return "", fmt.Errorf("unknown scheduling mode %q", s)
}

// Config holds scheduler defaults and collaborators.
type Config struct {
	TimeSlots     []model.Clock
	BufferMinutes int
	Logger        *slog.Logger
	Events        notify.Publisher
}

type Scheduler struct {
	store  store.Store
	times  []model.Clock
	buffer int
	logger *slog.Logger
	events notify.Publisher
}

func NewScheduler(st store.Store, cfg Config) *Scheduler {
	s := &Scheduler{
		store:  st,
		times:  cfg.TimeSlots,
		buffer: cfg.BufferMinutes,
		logger: cfg.Logger,
		events: cfg.Events,
	}
	if len(s.times) == 0 {
		s.times = DefaultClocks()
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.events == nil {
		s.events = notify.Discard{}
	}
	return s
}

// Request describes one batch run. Empty TimeSlots and a nil BufferMinutes
// fall back to the scheduler defaults.
type Request struct {
	TournamentID  string
	CourtIDs      []string
	StartDate     time.Time
	TimeSlots     []model.Clock
	BufferMinutes *int
	Mode          Mode
}

// Failure is a match the batch could not place.
type Failure struct {
	MatchID string `json:"match_id"`
	Label   string `json:"label"`
}

type Result struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Scheduled int             `json:"scheduled_count"`
	Bookings  []model.Booking `json:"bookings"`
	Failures  []Failure       `json:"failed,omitempty"`
}

// Schedule books every pending, unbooked match of a tournament. Matches are
// taken in creation order. Successful placements are committed together at
// the end even when some matches could not be placed; those are listed in
// Result.Failures. Errors mean nothing was written.
func (s *Scheduler) Schedule(ctx context.Context, req Request) (Result, error) {
	if req.Mode == "" {
		req.Mode = ModeConflictAware
	}
	if req.StartDate.IsZero() {
		return Result{}, errors.New("start date is required")
	}
	times := req.TimeSlots
	if len(times) == 0 {
		times = s.times
	}
	if err := checkStartTimes(times); err != nil {
		return Result{}, err
	}
	buffer := s.buffer
	if req.BufferMinutes != nil {
		buffer = *req.BufferMinutes
	}
	if buffer < 0 {
		return Result{}, fmt.Errorf("buffer minutes must not be negative, got %d", buffer)
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return Result{}, err
	}
	defer tx.Rollback()

	if _, err := tx.GetTournament(ctx, req.TournamentID); err != nil {
		return Result{}, err
	}
	courts := make([]model.Court, 0, len(req.CourtIDs))
	for _, id := range req.CourtIDs {
		c, err := tx.GetCourt(ctx, id)
		if err != nil {
			return Result{}, err
		}
		courts = append(courts, c)
	}
	pending, err := tx.ListMatches(ctx, store.MatchFilter{
		TournamentID: req.TournamentID,
		Status:       model.MatchPending,
		Unbooked:     true,
	})
	if err != nil {
		return Result{}, err
	}
	if len(pending) == 0 {
		return Result{}, ErrNoPendingMatches
	}
	if len(courts) == 0 {
		return Result{}, ErrNoCourts
	}

	r := batch{ctx: ctx, q: tx, logger: s.logger.With("tournament_id", req.TournamentID, "mode", string(req.Mode))}
	switch req.Mode {
	case ModeConflictAware:
		err = r.conflictAware(pending, courts, model.DateOf(req.StartDate), times, buffer)
	case ModeRoundRobin:
		err = r.roundRobin(pending, courts, model.DateOf(req.StartDate), times)
	default:
		err = fmt.Errorf("unknown scheduling mode %q", req.Mode)
	}
	if err != nil {
		return Result{}, err
	}

	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("committing bookings: %w", err)
	}
	for _, b := range r.bookings {
		s.events.Publish(notify.Event{Type: notify.BookingCreated, TournamentID: req.TournamentID, Payload: b})
	}

	res := Result{
		Success:   len(r.failures) == 0,
		Scheduled: len(r.bookings),
		Bookings:  r.bookings,
		Failures:  r.failures,
	}
	switch {
	case len(r.failures) > 0:
		labels := make([]string, len(r.failures))
		for i, f := range r.failures {
			labels[i] = f.Label
		}
		res.Message = fmt.Sprintf("Scheduled %d matches. Failed to schedule: %s", res.Scheduled, strings.Join(labels, ", "))
	case req.Mode == ModeRoundRobin:
		res.Message = fmt.Sprintf("Scheduled %d matches in rotation (no conflict checks)", res.Scheduled)
	default:
		res.Message = fmt.Sprintf("Successfully scheduled all %d matches without conflicts", res.Scheduled)
	}
	s.logger.Info("batch scheduling finished",
		"tournament_id", req.TournamentID, "scheduled", res.Scheduled, "failed", len(r.failures))
	return res, nil
}

// batch accumulates the bookings and failures of one Schedule call.
type batch struct {
	ctx      context.Context
	q        store.Queries
	logger   *slog.Logger
	bookings []model.Booking
	failures []Failure
}

func (r *batch) label(m model.Match) string {
	name := func(id string) string {
		if t, err := r.q.GetTeam(r.ctx, id); err == nil {
			return t.Name
		}
		return id
	}
	return name(m.Team1ID) + " vs " + name(m.Team2ID)
}

func (r *batch) book(m model.Match, slot Slot) error {
	b, err := r.q.CreateBooking(r.ctx, model.Booking{
		MatchID: m.ID,
		CourtID: slot.Court.ID,
		Date:    slot.Date,
		Start:   slot.Start,
		End:     slot.End,
	})
	if err != nil {
		return fmt.Errorf("booking match %s: %w", m.ID, err)
	}
	r.bookings = append(r.bookings, b)
	r.logger.Info("scheduled match", "match_id", m.ID, "match", r.label(m),
		"court", slot.Court.Name, "date", model.FormatDate(slot.Date), "start", slot.Start.String())
	return nil
}

// conflictAware restarts the search at start for every match, so later
// matches land on later days only because earlier days have filled up.
func (r *batch) conflictAware(matches []model.Match, courts []model.Court, start time.Time, times []model.Clock, buffer int) error {
	for _, m := range matches {
		slot, found, err := FindSlot(r.ctx, r.q, m, courts, start, times, buffer)
		if err != nil {
			return err
		}
		if !found {
			label := r.label(m)
			r.failures = append(r.failures, Failure{MatchID: m.ID, Label: label})
			r.logger.Warn("no slot found", "match_id", m.ID, "match", label, "days_searched", MaxSearchDays)
			continue
		}
		if err := r.book(m, slot); err != nil {
			return err
		}
	}
	return nil
}

// roundRobin advances the start time for each match, moving to the next
// court after the last time and to the next day after the last court.
func (r *batch) roundRobin(matches []model.Match, courts []model.Court, start time.Time, times []model.Clock) error {
	date := start
	slotIdx, courtIdx := 0, 0
	for _, m := range matches {
		t := times[slotIdx]
		slot := Slot{Court: courts[courtIdx], Date: date, Start: t, End: t.Add(MatchMinutes)}
		if err := r.book(m, slot); err != nil {
			return err
		}
		slotIdx++
		if slotIdx == len(times) {
			slotIdx = 0
			courtIdx++
			if courtIdx == len(courts) {
				courtIdx = 0
				date = date.AddDate(0, 0, 1)
			}
		}
	}
	return nil
}
