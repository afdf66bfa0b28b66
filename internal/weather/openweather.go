package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.openweathermap.org/data/2.5/weather"
	DefaultTimeout = 5 * time.Second
)

// OpenWeatherMap reads current conditions from the OpenWeatherMap API.
// It makes one attempt per call.
type OpenWeatherMap struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
	Now     func() time.Time
}

func NewOpenWeatherMap(apiKey, baseURL string, timeout time.Duration) *OpenWeatherMap {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &OpenWeatherMap{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: timeout},
		Now:     time.Now,
	}
}

type owmResponse struct {
	Main struct {
		Temp *float64 `json:"temp"`
	} `json:"main"`
	Wind struct {
		Speed *float64 `json:"speed"`
	} `json:"wind"`
	Rain *struct {
		OneHour float64 `json:"1h"`
	} `json:"rain"`
	Weather []struct {
		Main string `json:"main"`
	} `json:"weather"`
}

func (c *OpenWeatherMap) Fetch(ctx context.Context, location string) (Reading, error) {
	if c.APIKey == "" {
		return Reading{}, errors.New("openweathermap: no API key configured")
	}
	if location == "" {
		location = DefaultLocation
	}
	q := url.Values{}
	q.Set("q", location)
	q.Set("appid", c.APIKey)
	q.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return Reading{}, fmt.Errorf("openweathermap: %w", err)
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return Reading{}, fmt.Errorf("openweathermap: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Reading{}, fmt.Errorf("openweathermap: unexpected status %s", resp.Status)
	}

	var body owmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Reading{}, fmt.Errorf("openweathermap: decoding response: %w", err)
	}
	if body.Main.Temp == nil || body.Wind.Speed == nil || len(body.Weather) == 0 {
		return Reading{}, errors.New("openweathermap: incomplete response")
	}

	rawTemp := *body.Main.Temp
	rawWind := *body.Wind.Speed * 3.6 // m/s to km/h
	// The API reports rain volume, not probability; 5mm in the last hour
	// or more counts as certain rain.
	rain := 0
	if body.Rain != nil {
		rain = min(int(body.Rain.OneHour*20), 100)
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	// limits apply to the measured values; only the reported ones are rounded
	temp, wind := round1(rawTemp), round1(rawWind)
	return Reading{
		Temperature:     &temp,
		RainProbability: &rain,
		WindSpeed:       &wind,
		Condition:       strings.ToLower(body.Weather[0].Main),
		Suitable:        Suitable(&rawTemp, &rain, &rawWind),
		CheckedAt:       now().UTC(),
	}, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
