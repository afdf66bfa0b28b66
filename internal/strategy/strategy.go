package strategy

import "fmt"

// Knockout round numbers. Group matches carry no round.
const (
	RoundQuarterFinal = 1
	RoundSemiFinal    = 2
	RoundFinal        = 3
)

// Pairing represents a single matchup between two teams.
type Pairing struct {
	Team1 string
	Team2 string
	Round int // 0 for group matches
}

// Strategy generates the matchups of one tournament phase. Teams are team
// IDs in registration order for the group phase and in standings order for
// the knockout phase.
type Strategy interface {
	Pairings(teams []string) []Pairing
}

// Get returns a Strategy by name.
func Get(name string) (Strategy, error) {
	switch name {
	case "round_robin":
		return RoundRobin{}, nil
	case "knockout":
		return Knockout{}, nil
	default:
		return nil, fmt.Errorf("unknown strategy: %q", name)
	}
}

// RoundRobin pairs every team with every later team exactly once.
type RoundRobin struct{}

func (RoundRobin) Pairings(teams []string) []Pairing {
	var out []Pairing
	for i := 0; i < len(teams); i++ {
		for j := i + 1; j < len(teams); j++ {
			out = append(out, Pairing{Team1: teams[i], Team2: teams[j]})
		}
	}
	return out
}

// Knockout seeds the first round of a single-elimination bracket from a
// ranked list. Up to eight teams go through; the field is cut to the
// largest bracket the entrant count fills.
type Knockout struct{}

func (Knockout) Pairings(ranked []string) []Pairing {
	switch n := len(ranked); {
	case n < 2:
		return nil
	case n <= 3:
		return []Pairing{{Team1: ranked[0], Team2: ranked[1], Round: RoundFinal}}
	case n <= 8:
		return seeded(ranked[:4], RoundSemiFinal)
	default:
		return seeded(ranked[:8], RoundQuarterFinal)
	}
}

// seeded pairs best with worst: 1v8, 2v7 and so on.
func seeded(teams []string, round int) []Pairing {
	n := len(teams)
	out := make([]Pairing, 0, n/2)
	for i := 0; i < n/2; i++ {
		out = append(out, Pairing{Team1: teams[i], Team2: teams[n-1-i], Round: round})
	}
	return out
}

// RoundName is the display label of a knockout round.
func RoundName(round int) string {
	switch round {
	case RoundQuarterFinal:
		return "Quarter-final"
	case RoundSemiFinal:
		return "Semi-final"
	case RoundFinal:
		return "Final"
	}
	return "Group"
}
