// Package notify fans schedule changes out to websocket subscribers, one
// room per tournament.
package notify

// Event types published after a change is committed.
const (
	BookingCreated   = "booking.created"
	BookingRelocated = "booking.relocated"
	BookingPostponed = "booking.postponed"
	WeatherChecked   = "weather.checked"
	MatchUpdated     = "match.updated"
	TournamentPhase  = "tournament.phase"
)

type Event struct {
	Type         string `json:"type"`
	TournamentID string `json:"tournament_id"`
	Payload      any    `json:"payload,omitempty"`
}

// Publisher receives events. Implementations must not block the caller.
type Publisher interface {
	Publish(e Event)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(Event) {}

// Recorder keeps events in memory. Tests use it to observe what was published.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Publish(e Event) {
	r.Events = append(r.Events, e)
}

// Types returns the event types in publish order.
func (r *Recorder) Types() []string {
	out := make([]string, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.Type
	}
	return out
}
