// Package weather decides whether outdoor bookings can go ahead and moves
// them indoors or to the next day when they cannot.
package weather

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/derekprior/courtsched/internal/model"
)

// Playable limits for outdoor courts.
const (
	MinTemperature     = 5.0
	MaxTemperature     = 40.0
	MaxRainProbability = 30 // exclusive
	MaxWindSpeed       = 40.0
)

// DefaultLocation is used when a check names no location.
const DefaultLocation = "Tunis,TN"

// Reading is one observation from a Source. Temperature is in °C, wind
// speed in km/h and rain probability in percent.
type Reading struct {
	Temperature     *float64  `json:"temperature"`
	RainProbability *int      `json:"rain_probability"`
	WindSpeed       *float64  `json:"wind_speed"`
	Condition       string    `json:"condition"`
	Suitable        bool      `json:"is_suitable"`
	CheckedAt       time.Time `json:"checked_at"`
	Error           string    `json:"error,omitempty"`
}

// Snapshot converts the reading to the form stored on a booking.
func (r Reading) Snapshot() *model.Weather {
	return &model.Weather{
		Temperature:     r.Temperature,
		RainProbability: r.RainProbability,
		WindSpeed:       r.WindSpeed,
		Condition:       r.Condition,
		Suitable:        r.Suitable,
		CheckedAt:       r.CheckedAt,
	}
}

// Suitable reports whether outdoor play is possible. A reading with any
// value missing counts as suitable.
func Suitable(temperature *float64, rainProbability *int, windSpeed *float64) bool {
	if temperature == nil || rainProbability == nil || windSpeed == nil {
		return true
	}
	if *temperature < MinTemperature || *temperature > MaxTemperature {
		return false
	}
	if *rainProbability >= MaxRainProbability {
		return false
	}
	return *windSpeed < MaxWindSpeed
}

// Describe summarises a reading for people, e.g. "Heavy rain, Cold".
func Describe(r Reading) string {
	var parts []string
	if r.RainProbability != nil {
		switch rain := *r.RainProbability; {
		case rain >= 70:
			parts = append(parts, "Heavy rain")
		case rain >= 30:
			parts = append(parts, "Light rain")
		}
	}
	if r.WindSpeed != nil {
		switch wind := *r.WindSpeed; {
		case wind >= 40:
			parts = append(parts, "Strong winds")
		case wind >= 30:
			parts = append(parts, "Moderate winds")
		}
	}
	if r.Temperature != nil {
		switch temp := *r.Temperature; {
		case temp >= 35:
			parts = append(parts, "Very hot")
		case temp >= 30:
			parts = append(parts, "Hot")
		case temp <= 5:
			parts = append(parts, "Very cold")
		case temp <= 10:
			parts = append(parts, "Cold")
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, ", ")
	}
	switch r.Condition {
	case "clear":
		return "Clear skies"
	case "clouds":
		return "Cloudy"
	case "rain":
		return "Rainy"
	case "snow":
		return "Snowy"
	case "":
		return "Unknown"
	}
	first, size := utf8.DecodeRuneInString(r.Condition)
	return string(unicode.ToUpper(first)) + r.Condition[size:]
}

// Source fetches the current weather for a location such as "Paris,FR".
// The reading's Suitable field is the source's verdict, taken on the
// measured values before any rounding for display.
type Source interface {
	Fetch(ctx context.Context, location string) (Reading, error)
}

// Fallback is the reading used when a Source fails: mild, dry and calm, so
// play goes ahead.
func Fallback(at time.Time, cause error) Reading {
	temp, rain, wind := 20.0, 0, 10.0
	r := Reading{
		Temperature:     &temp,
		RainProbability: &rain,
		WindSpeed:       &wind,
		Condition:       "unknown",
		Suitable:        true,
		CheckedAt:       at,
	}
	if cause != nil {
		r.Error = cause.Error()
	}
	return r
}

// FailOpen wraps a Source so that Fetch never fails. Errors are logged and
// replaced with Fallback. A nil Source always yields the fallback.
type FailOpen struct {
	Source Source
	Logger *slog.Logger
	Now    func() time.Time
}

func (f FailOpen) Fetch(ctx context.Context, location string) (Reading, error) {
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	logger := f.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if f.Source == nil {
		return Fallback(now().UTC(), nil), nil
	}
	r, err := f.Source.Fetch(ctx, location)
	if err != nil {
		logger.Warn("weather source failed, assuming playable weather", "location", location, "error", err)
		return Fallback(now().UTC(), err), nil
	}
	if r.CheckedAt.IsZero() {
		r.CheckedAt = now().UTC()
	}
	return r, nil
}
