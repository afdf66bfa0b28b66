// Package store persists players, teams, courts, tournaments, matches and
// bookings. Both implementations keep bookings indexed by (court, date) and
// by (team, date) so the scheduler's per-day lookups stay cheap.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/derekprior/courtsched/internal/model"
)

var (
	ErrNotFound           = errors.New("record not found")
	ErrDuplicate          = errors.New("record already exists")
	ErrAlreadyRegistered  = errors.New("team already registered")
	ErrMatchAlreadyBooked = errors.New("match already has a booking")
	ErrInvalidTeam        = errors.New("team must have one or two distinct existing players")
	ErrInUse              = errors.New("record is still referenced")
	ErrTxDone             = errors.New("transaction already committed or rolled back")
)

// CourtFilter narrows ListCourts. Nil fields match everything.
type CourtFilter struct {
	Indoor    *bool
	Available *bool
}

// MatchFilter narrows ListMatches. Zero values match everything.
type MatchFilter struct {
	TournamentID string
	TeamID       string
	Status       model.MatchStatus
	Phase        model.Phase
	// Unbooked restricts the result to matches without a booking.
	Unbooked bool
}

// BookingFilter narrows ListBookings. A zero From or To leaves that side open.
type BookingFilter struct {
	TournamentID string
	From         time.Time
	To           time.Time
}

// Queries is the set of reads and writes shared by a Store and a Tx.
// List methods return matches in creation order and bookings ordered by
// date, start time and court.
type Queries interface {
	CreatePlayer(ctx context.Context, p model.Player) (model.Player, error)
	GetPlayer(ctx context.Context, id string) (model.Player, error)
	ListPlayers(ctx context.Context) ([]model.Player, error)

	CreateTeam(ctx context.Context, t model.Team) (model.Team, error)
	GetTeam(ctx context.Context, id string) (model.Team, error)
	ListTeams(ctx context.Context) ([]model.Team, error)
	SetTeamMembers(ctx context.Context, teamID string, playerIDs []string) (model.Team, error)
	TeamIDsForPlayer(ctx context.Context, playerID string) ([]string, error)

	CreateCourt(ctx context.Context, c model.Court) (model.Court, error)
	GetCourt(ctx context.Context, id string) (model.Court, error)
	ListCourts(ctx context.Context, f CourtFilter) ([]model.Court, error)
	UpdateCourt(ctx context.Context, c model.Court) error
	DeleteCourt(ctx context.Context, id string) error

	CreateTournament(ctx context.Context, t model.Tournament) (model.Tournament, error)
	GetTournament(ctx context.Context, id string) (model.Tournament, error)
	ListTournaments(ctx context.Context) ([]model.Tournament, error)
	UpdateTournamentStatus(ctx context.Context, id string, status model.TournamentStatus) error
	RegisterTeam(ctx context.Context, tournamentID, teamID string) error
	ListTournamentTeams(ctx context.Context, tournamentID string) ([]model.Team, error)

	CreateMatch(ctx context.Context, m model.Match) (model.Match, error)
	GetMatch(ctx context.Context, id string) (model.Match, error)
	ListMatches(ctx context.Context, f MatchFilter) ([]model.Match, error)
	UpdateMatch(ctx context.Context, m model.Match) error

	CreateBooking(ctx context.Context, b model.Booking) (model.Booking, error)
	GetBooking(ctx context.Context, id string) (model.Booking, error)
	BookingForMatch(ctx context.Context, matchID string) (model.Booking, error)
	UpdateBooking(ctx context.Context, b model.Booking) error
	DeleteBooking(ctx context.Context, id string) error
	BookingsOnCourt(ctx context.Context, courtID string, date time.Time) ([]model.Booking, error)
	BookingsForTeam(ctx context.Context, teamID string, from, to time.Time) ([]model.Booking, error)
	ListBookings(ctx context.Context, f BookingFilter) ([]model.Booking, error)
}

// Tx is a unit of work. Nothing written through it is visible to other
// callers until Commit. Rollback after Commit returns ErrTxDone.
type Tx interface {
	Queries
	Commit() error
	Rollback() error
}

type Store interface {
	Queries
	Begin(ctx context.Context) (Tx, error)
	Close() error
}

// InTx runs fn inside a transaction, committing when fn returns nil.
func InTx(ctx context.Context, s Store, fn func(q Queries) error) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// teamRanking sums member rankings.
func teamRanking(players []model.Player) int {
	total := 0
	for _, p := range players {
		total += p.Ranking
	}
	return total
}

// checkMembers validates a membership list before it is resolved.
func checkMembers(playerIDs []string) error {
	if len(playerIDs) == 0 || len(playerIDs) > model.MaxTeamSize {
		return ErrInvalidTeam
	}
	if len(playerIDs) == 2 && playerIDs[0] == playerIDs[1] {
		return ErrInvalidTeam
	}
	return nil
}
