package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/derekprior/courtsched/internal/model"
	"github.com/derekprior/courtsched/internal/store"
)

var ErrInvalidInterval = errors.New("invalid booking interval")

// Conflict categorizes why a candidate placement was rejected.
type Conflict int

const (
	NoConflict Conflict = iota
	ConflictCourtOccupied
	ConflictCourtBuffer
	ConflictPlayerBusy
	ConflictTeamDay
)

func (c Conflict) String() string {
	switch c {
	case NoConflict:
		return "none"
	case ConflictCourtOccupied:
		return "court_occupied"
	case ConflictCourtBuffer:
		return "court_buffer"
	case ConflictPlayerBusy:
		return "player_busy"
	case ConflictTeamDay:
		return "team_day"
	}
	return fmt.Sprintf("conflict(%d)", int(c))
}

// Candidate is a proposed placement of a match.
type Candidate struct {
	Match         model.Match
	Court         model.Court
	Date          time.Time
	Start, End    model.Clock
	BufferMinutes int
}

// Decision is the outcome of CanSchedule. Reason is empty when Allowed.
type Decision struct {
	Allowed  bool
	Conflict Conflict
	Reason   string
}

func allowed() Decision { return Decision{Allowed: true} }

func rejected(c Conflict, format string, args ...any) Decision {
	return Decision{Conflict: c, Reason: fmt.Sprintf(format, args...)}
}

func validInterval(start, end model.Clock) error {
	if !start.Valid() || !end.Valid() || end <= start {
		return fmt.Errorf("%s-%s: %w", start, end, ErrInvalidInterval)
	}
	return nil
}

// CanSchedule checks a candidate against the court, buffer, player and
// team-day rules in that order and stops at the first rejection. The
// match's own booking, if any, is ignored, so an already booked match can
// be tested against a new placement. The error is reserved for invalid
// input and storage failures.
func CanSchedule(ctx context.Context, q store.Queries, c Candidate) (Decision, error) {
	if err := validInterval(c.Start, c.End); err != nil {
		return Decision{}, err
	}
	if c.BufferMinutes < 0 {
		return Decision{}, fmt.Errorf("negative buffer %d: %w", c.BufferMinutes, ErrInvalidInterval)
	}
	date := model.DateOf(c.Date)

	onCourt, err := q.BookingsOnCourt(ctx, c.Court.ID, date)
	if err != nil {
		return Decision{}, fmt.Errorf("court %s bookings: %w", c.Court.ID, err)
	}
	onCourt = withoutMatch(onCourt, c.Match.ID)

	for _, b := range onCourt {
		if b.Overlaps(c.Start, c.End) {
			return rejected(ConflictCourtOccupied, "Court %s is already booked %s-%s", c.Court.Name, b.Start, b.End), nil
		}
	}

	padStart, padEnd := c.Start.Add(-c.BufferMinutes), c.End.Add(c.BufferMinutes)
	for _, b := range onCourt {
		if b.Overlaps(padStart, padEnd) {
			return rejected(ConflictCourtBuffer, "Court %s needs a %d min buffer; conflicts with booking %s-%s",
				c.Court.Name, c.BufferMinutes, b.Start, b.End), nil
		}
	}

	if d, err := checkPlayers(ctx, q, c, date); err != nil || !d.Allowed {
		return d, err
	}

	for i, teamID := range []string{c.Match.Team1ID, c.Match.Team2ID} {
		busy, err := teamBusy(ctx, q, teamID, date, c.Match.ID)
		if err != nil {
			return Decision{}, err
		}
		if busy {
			return rejected(ConflictTeamDay, "Team %d already has a match on %s (one match per day)",
				i+1, model.FormatDate(date)), nil
		}
	}

	return allowed(), nil
}

func checkPlayers(ctx context.Context, q store.Queries, c Candidate, date time.Time) (Decision, error) {
	for _, teamID := range []string{c.Match.Team1ID, c.Match.Team2ID} {
		team, err := q.GetTeam(ctx, teamID)
		if err != nil {
			return Decision{}, fmt.Errorf("match %s: %w", c.Match.ID, err)
		}
		for _, playerID := range team.PlayerIDs {
			bookings, err := PlayerSchedule(ctx, q, playerID, date, date)
			if err != nil {
				return Decision{}, err
			}
			for _, b := range withoutMatch(bookings, c.Match.ID) {
				if !b.Overlaps(c.Start, c.End) {
					continue
				}
				name := playerID
				if p, err := q.GetPlayer(ctx, playerID); err == nil {
					name = p.Name
				}
				return rejected(ConflictPlayerBusy, "Player %s (%s) already has a match %s-%s",
					name, team.Name, b.Start, b.End), nil
			}
		}
	}
	return allowed(), nil
}

func withoutMatch(bookings []model.Booking, matchID string) []model.Booking {
	if matchID == "" {
		return bookings
	}
	out := bookings[:0:0]
	for _, b := range bookings {
		if b.MatchID != matchID {
			out = append(out, b)
		}
	}
	return out
}

// ValidatePlacement loads the match and court by ID and runs CanSchedule.
// It writes nothing, so repeated calls against unchanged state agree.
func ValidatePlacement(ctx context.Context, q store.Queries, matchID, courtID string, date time.Time,
	start, end model.Clock, bufferMinutes int) (Decision, error) {
	m, err := q.GetMatch(ctx, matchID)
	if err != nil {
		return Decision{}, err
	}
	court, err := q.GetCourt(ctx, courtID)
	if err != nil {
		return Decision{}, err
	}
	return CanSchedule(ctx, q, Candidate{
		Match:         m,
		Court:         court,
		Date:          date,
		Start:         start,
		End:           end,
		BufferMinutes: bufferMinutes,
	})
}
