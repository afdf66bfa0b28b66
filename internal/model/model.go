package model

import (
	"encoding/json"
	"time"
)

// Player is a person with a global ranking. A player may belong to several
// teams at once, which is why scheduling checks players and not only teams.
type Player struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Ranking       int       `json:"ranking"`
	LicenceNumber string    `json:"licence_number,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Team is one or two players. Ranking is the sum of member rankings and is
// maintained by the store whenever membership changes.
type Team struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	PlayerIDs []string  `json:"player_ids"`
	Ranking   int       `json:"ranking"`
	CreatedAt time.Time `json:"created_at"`
}

// MaxTeamSize is the number of players in a full doubles team.
const MaxTeamSize = 2

// HasPlayer reports whether playerID is a member of the team.
func (t Team) HasPlayer(playerID string) bool {
	for _, id := range t.PlayerIDs {
		if id == playerID {
			return true
		}
	}
	return false
}

// Court is a physical playing surface. Outdoor courts are weather sensitive.
type Court struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Location    string    `json:"location,omitempty"`
	IsIndoor    bool      `json:"is_indoor"`
	IsAvailable bool      `json:"is_available"`
	CreatedAt   time.Time `json:"created_at"`
}

type Tournament struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Status    TournamentStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
}

// Match is a game between two teams inside a tournament. Seq is assigned by
// the store on creation and gives matches a stable creation order.
type Match struct {
	ID                 string      `json:"id"`
	Seq                int64       `json:"seq"`
	TournamentID       string      `json:"tournament_id"`
	Team1ID            string      `json:"team1_id"`
	Team2ID            string      `json:"team2_id"`
	Team1Score         *int        `json:"team1_score,omitempty"`
	Team2Score         *int        `json:"team2_score,omitempty"`
	WinnerID           string      `json:"winner_id,omitempty"`
	Status             MatchStatus `json:"status"`
	Phase              Phase       `json:"phase"`
	Round              int         `json:"round,omitempty"`
	CancelledByTeamID  string      `json:"cancelled_by_team_id,omitempty"`
	CancellationReason string      `json:"cancellation_reason,omitempty"`
	ScheduleNote       string      `json:"schedule_note,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
}

// HasTeam reports whether teamID plays in the match.
func (m Match) HasTeam(teamID string) bool {
	return m.Team1ID == teamID || m.Team2ID == teamID
}

// Opponent returns the other team in the match, or "" if teamID does not play.
func (m Match) Opponent(teamID string) string {
	switch teamID {
	case m.Team1ID:
		return m.Team2ID
	case m.Team2ID:
		return m.Team1ID
	}
	return ""
}

// Booking binds a match to a court on a date between Start and End.
// Date is always a UTC midnight. The weather fields are empty until the
// weather guard has looked at the booking.
type Booking struct {
	ID        string    `json:"id"`
	MatchID   string    `json:"match_id"`
	CourtID   string    `json:"court_id"`
	Date      time.Time `json:"date"`
	Start     Clock     `json:"start_time"`
	End       Clock     `json:"end_time"`
	Weather   *Weather  `json:"weather,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Weather is the snapshot of the last weather check stored on a booking.
type Weather struct {
	Temperature     *float64  `json:"temperature,omitempty"`
	RainProbability *int      `json:"rain_probability,omitempty"`
	WindSpeed       *float64  `json:"wind_speed,omitempty"`
	Condition       string    `json:"condition,omitempty"`
	Suitable        bool      `json:"suitable"`
	CheckedAt       time.Time `json:"checked_at"`
}

// Overlaps reports whether the half-open intervals [b.Start, b.End) and
// [start, end) intersect.
func (b Booking) Overlaps(start, end Clock) bool {
	return b.Start < end && b.End > start
}

// MarshalJSON renders Date as YYYY-MM-DD.
func (b Booking) MarshalJSON() ([]byte, error) {
	type alias Booking
	return json.Marshal(struct {
		alias
		Date string `json:"date"`
	}{alias: alias(b), Date: FormatDate(b.Date)})
}
