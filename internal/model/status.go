package model

import "fmt"

type MatchStatus string

const (
	MatchPending   MatchStatus = "pending"
	MatchFinished  MatchStatus = "finished"
	MatchCancelled MatchStatus = "cancelled"
)

func (s MatchStatus) Valid() bool {
	switch s {
	case MatchPending, MatchFinished, MatchCancelled:
		return true
	}
	return false
}

// ParseMatchStatus converts a stored or user supplied value.
func ParseMatchStatus(v string) (MatchStatus, error) {
	s := MatchStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown match status %q", v)
	}
	return s, nil
}

type Phase string

const (
	PhaseGroup    Phase = "group"
	PhaseKnockout Phase = "knockout"
)

func (p Phase) Valid() bool {
	switch p {
	case PhaseGroup, PhaseKnockout:
		return true
	}
	return false
}

func ParsePhase(v string) (Phase, error) {
	p := Phase(v)
	if !p.Valid() {
		return "", fmt.Errorf("unknown phase %q", v)
	}
	return p, nil
}

type TournamentStatus string

const (
	TournamentWaiting       TournamentStatus = "waiting"
	TournamentGroupPhase    TournamentStatus = "group_phase"
	TournamentKnockoutPhase TournamentStatus = "knockout_phase"
	TournamentFinished      TournamentStatus = "finished"
)

func (s TournamentStatus) rank() int {
	switch s {
	case TournamentWaiting:
		return 0
	case TournamentGroupPhase:
		return 1
	case TournamentKnockoutPhase:
		return 2
	case TournamentFinished:
		return 3
	}
	return -1
}

func (s TournamentStatus) Valid() bool {
	return s.rank() >= 0
}

func ParseTournamentStatus(v string) (TournamentStatus, error) {
	s := TournamentStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown tournament status %q", v)
	}
	return s, nil
}

// Next returns the status that follows s, and false when s is terminal.
func (s TournamentStatus) Next() (TournamentStatus, bool) {
	switch s {
	case TournamentWaiting:
		return TournamentGroupPhase, true
	case TournamentGroupPhase:
		return TournamentKnockoutPhase, true
	case TournamentKnockoutPhase:
		return TournamentFinished, true
	}
	return "", false
}

// CanTransitionTo reports whether moving from s to next is a single forward step.
// Status never regresses and never skips a phase.
func (s TournamentStatus) CanTransitionTo(next TournamentStatus) bool {
	n, ok := s.Next()
	return ok && n == next
}
