package weather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func f64(v float64) *float64 { return &v }
func pct(v int) *int { return &v }

func TestSuitable(t *testing.T) {
	tests := []struct {
		name string
		temp *float64
		rain *int
		wind *float64
		want bool
	}{
		{"mild", f64(20), pct(0), f64(10), true},
		{"too hot", f64(45), pct(0), f64(10), false},
		{"too cold", f64(4.9), pct(0), f64(10), false},
		{"lower bound", f64(5), pct(0), f64(10), true},
		{"upper bound", f64(40), pct(0), f64(10), true},
		{"rain", f64(20), pct(35), f64(10), false},
		{"rain threshold", f64(20), pct(30), f64(10), false},
		{"light drizzle", f64(20), pct(29), f64(10), true},
		{"wind", f64(20), pct(0), f64(45), false},
		{"wind threshold", f64(20), pct(0), f64(40), false},
		{"breezy", f64(20), pct(0), f64(39.9), true},
		{"no data", nil, nil, nil, true},
		{"partial data", f64(50), nil, f64(10), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Suitable(tt.temp, tt.rain, tt.wind); got != tt.want {
				t.Errorf("Suitable = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		r    Reading
		want string
	}{
		{Reading{Temperature: f64(8), RainProbability: pct(80), WindSpeed: f64(45)}, "Heavy rain, Strong winds, Cold"},
		{Reading{Temperature: f64(31), RainProbability: pct(30), WindSpeed: f64(30)}, "Light rain, Moderate winds, Hot"},
		{Reading{Temperature: f64(20), RainProbability: pct(0), WindSpeed: f64(5), Condition: "clear"}, "Clear skies"},
		{Reading{Temperature: f64(20), RainProbability: pct(0), WindSpeed: f64(5), Condition: "mist"}, "Mist"},
		{Reading{Temperature: f64(20), RainProbability: pct(0), WindSpeed: f64(5), Condition: "éclaircies"}, "Éclaircies"},
		{Reading{Temperature: f64(2), RainProbability: pct(0), WindSpeed: f64(5)}, "Very cold"},
		{Reading{}, "Unknown"},
	}
	for _, tt := range tests {
		if got := Describe(tt.r); got != tt.want {
			t.Errorf("Describe(%+v) = %q, want %q", tt.r, got, tt.want)
		}
	}
}

type stubSource struct {
	reading Reading
	err     error
	calls   int
}

func (s *stubSource) Fetch(ctx context.Context, location string) (Reading, error) {
	s.calls++
	r := s.reading
	r.Suitable = Suitable(r.Temperature, r.RainProbability, r.WindSpeed)
	return r, s.err
}

func TestFailOpen(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	t.Run("source error becomes a playable reading", func(t *testing.T) {
		src := &stubSource{err: errors.New("connection refused")}
		got, err := FailOpen{Source: src, Now: func() time.Time { return now }}.Fetch(context.Background(), "Tunis,TN")
		if err != nil {
			t.Fatalf("Fetch error: %v", err)
		}
		if !got.Suitable || got.Condition != "unknown" || *got.Temperature != 20 || *got.RainProbability != 0 || *got.WindSpeed != 10 {
			t.Errorf("fallback = %+v", got)
		}
		if !strings.Contains(got.Error, "connection refused") {
			t.Errorf("Error = %q, want the cause", got.Error)
		}
		if !got.CheckedAt.Equal(now) {
			t.Errorf("CheckedAt = %v, want %v", got.CheckedAt, now)
		}
	})

	t.Run("successful readings pass through", func(t *testing.T) {
		src := &stubSource{reading: Reading{Temperature: f64(30), RainProbability: pct(40), WindSpeed: f64(5), Condition: "rain"}}
		got, _ := FailOpen{Source: src, Now: func() time.Time { return now }}.Fetch(context.Background(), "Tunis,TN")
		if got.Condition != "rain" || *got.RainProbability != 40 {
			t.Errorf("reading = %+v, want the source reading", got)
		}
		if got.CheckedAt.IsZero() {
			t.Error("CheckedAt not stamped")
		}
	})

	t.Run("no source", func(t *testing.T) {
		got, err := FailOpen{}.Fetch(context.Background(), "")
		if err != nil || !got.Suitable {
			t.Errorf("Fetch = %+v, %v; want fallback", got, err)
		}
	})
}

func TestOpenWeatherMap(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = map[string]string{"q": q.Get("q"), "appid": q.Get("appid"), "units": q.Get("units")}
		switch q.Get("q") {
		case "Broken,XX":
			w.WriteHeader(http.StatusUnauthorized)
		case "Partial,XX":
			w.Write([]byte(`{"main":{"temp":20}}`))
		case "Breezy,XX":
			w.Write([]byte(`{"main":{"temp":20},"wind":{"speed":11.1},"weather":[{"main":"Clouds"}]}`))
		case "Chilly,XX":
			w.Write([]byte(`{"main":{"temp":4.96},"wind":{"speed":2},"weather":[{"main":"Clouds"}]}`))
		case "Storm,XX":
			w.Write([]byte(`{"main":{"temp":14.26},"wind":{"speed":12.5},"rain":{"1h":2.5},"weather":[{"main":"Rain"}]}`))
		default:
			w.Write([]byte(`{"main":{"temp":22.04},"wind":{"speed":5},"weather":[{"main":"Clear"}]}`))
		}
	}))
	defer srv.Close()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	c := NewOpenWeatherMap("secret", srv.URL, time.Second)
	c.Now = func() time.Time { return now }

	t.Run("clear day", func(t *testing.T) {
		got, err := c.Fetch(context.Background(), "")
		if err != nil {
			t.Fatalf("Fetch error: %v", err)
		}
		if gotQuery["q"] != DefaultLocation || gotQuery["appid"] != "secret" || gotQuery["units"] != "metric" {
			t.Errorf("query = %v", gotQuery)
		}
		if *got.Temperature != 22 || *got.WindSpeed != 18 || *got.RainProbability != 0 {
			t.Errorf("reading = %v°C %v km/h %v%%", *got.Temperature, *got.WindSpeed, *got.RainProbability)
		}
		if got.Condition != "clear" || !got.Suitable || !got.CheckedAt.Equal(now) {
			t.Errorf("reading = %+v", got)
		}
	})

	t.Run("rain volume and wind are converted", func(t *testing.T) {
		got, err := c.Fetch(context.Background(), "Storm,XX")
		if err != nil {
			t.Fatalf("Fetch error: %v", err)
		}
		// 2.5mm/h -> 50%, 12.5 m/s -> 45 km/h
		if *got.RainProbability != 50 || *got.WindSpeed != 45 || *got.Temperature != 14.3 {
			t.Errorf("reading = %v°C %v km/h %v%%", *got.Temperature, *got.WindSpeed, *got.RainProbability)
		}
		if got.Suitable {
			t.Error("storm reported as suitable")
		}
	})

	t.Run("limits are judged before rounding", func(t *testing.T) {
		tests := []struct {
			location string
			temp     float64
			wind     float64
			suitable bool
		}{
			// 11.1 m/s is 39.96 km/h, under the 40 km/h limit
			{"Breezy,XX", 20, 40, true},
			// 4.96°C is under the 5°C minimum
			{"Chilly,XX", 5, 7.2, false},
		}
		for _, tt := range tests {
			t.Run(tt.location, func(t *testing.T) {
				got, err := c.Fetch(context.Background(), tt.location)
				if err != nil {
					t.Fatalf("Fetch error: %v", err)
				}
				if *got.Temperature != tt.temp || *got.WindSpeed != tt.wind {
					t.Errorf("reading = %v°C %v km/h, want %v°C %v km/h", *got.Temperature, *got.WindSpeed, tt.temp, tt.wind)
				}
				if got.Suitable != tt.suitable {
					t.Errorf("Suitable = %v, want %v", got.Suitable, tt.suitable)
				}
				if r := NewGuard(nil, c, GuardConfig{}).Fetch(context.Background(), tt.location); r.Suitable != tt.suitable {
					t.Errorf("guard Suitable = %v, want %v", r.Suitable, tt.suitable)
				}
			})
		}
	})

	t.Run("failures are errors", func(t *testing.T) {
		for _, loc := range []string{"Broken,XX", "Partial,XX"} {
			if _, err := c.Fetch(context.Background(), loc); err == nil {
				t.Errorf("Fetch(%s) succeeded, want error", loc)
			}
		}
		if _, err := NewOpenWeatherMap("", srv.URL, 0).Fetch(context.Background(), "Paris,FR"); err == nil {
			t.Error("Fetch without API key succeeded, want error")
		}
	})
}
