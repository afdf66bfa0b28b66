package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/derekprior/courtsched/internal/model"
	"github.com/derekprior/courtsched/internal/store"
)

// TeamSchedule returns every booking for a match involving teamID whose date
// falls in [from, to], across all tournaments.
func TeamSchedule(ctx context.Context, q store.Queries, teamID string, from, to time.Time) ([]model.Booking, error) {
	bookings, err := q.BookingsForTeam(ctx, teamID, from, to)
	if err != nil {
		return nil, fmt.Errorf("team %s schedule: %w", teamID, err)
	}
	return bookings, nil
}

// PlayerSchedule returns the bookings of every team playerID belongs to,
// dated within [from, to]. A booking shared by two of the player's teams
// appears once.
func PlayerSchedule(ctx context.Context, q store.Queries, playerID string, from, to time.Time) ([]model.Booking, error) {
	teamIDs, err := q.TeamIDsForPlayer(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("player %s teams: %w", playerID, err)
	}
	seen := make(map[string]bool)
	var out []model.Booking
	for _, teamID := range teamIDs {
		bookings, err := TeamSchedule(ctx, q, teamID, from, to)
		if err != nil {
			return nil, err
		}
		for _, b := range bookings {
			if seen[b.ID] {
				continue
			}
			seen[b.ID] = true
			out = append(out, b)
		}
	}
	return out, nil
}

// HasMatchOnDate reports whether teamID has any booking on date, whatever
// the time of day.
func HasMatchOnDate(ctx context.Context, q store.Queries, teamID string, date time.Time) (bool, error) {
	return teamBusy(ctx, q, teamID, date, "")
}

// teamBusy is HasMatchOnDate ignoring the booking of ignoreMatchID.
func teamBusy(ctx context.Context, q store.Queries, teamID string, date time.Time, ignoreMatchID string) (bool, error) {
	bookings, err := TeamSchedule(ctx, q, teamID, date, date)
	if err != nil {
		return false, err
	}
	for _, b := range bookings {
		if b.MatchID != ignoreMatchID {
			return true, nil
		}
	}
	return false, nil
}
