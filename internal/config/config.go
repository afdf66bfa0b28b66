package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/derekprior/courtsched/internal/model"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for a config file.
const DefaultPath = "config.yaml"

// Duration is a wrapper around time.Duration for YAML parsing ("5s", "1m30s").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	v, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	d.Duration = v
	return nil
}

type Server struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type Storage struct {
	// Driver is memory, sqlite or postgres.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type Scheduling struct {
	TimeSlots     []string `yaml:"time_slots"`
	BufferMinutes int      `yaml:"buffer_minutes"`
}

type Weather struct {
	Location string   `yaml:"location"`
	BaseURL  string   `yaml:"base_url"`
	APIKey   string   `yaml:"api_key"`
	Timeout  Duration `yaml:"timeout"`
}

type Export struct {
	Bucket          string `yaml:"bucket"`
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	PublicBaseURL   string `yaml:"public_base_url"`
}

// Enabled reports whether exported workbooks should be uploaded.
func (e Export) Enabled() bool { return e.Bucket != "" }

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Server     Server     `yaml:"server"`
	Storage    Storage    `yaml:"storage"`
	Scheduling Scheduling `yaml:"scheduling"`
	Weather    Weather    `yaml:"weather"`
	Export     Export     `yaml:"export"`
	Log        Log        `yaml:"log"`
}

// Default returns the configuration used for anything a file leaves out.
func Default() *Config {
	return &Config{
		Server:  Server{Port: 8080},
		Storage: Storage{Driver: "memory"},
		Scheduling: Scheduling{
			TimeSlots:     []string{"10:00", "12:00", "14:00", "16:00", "18:00"},
			BufferMinutes: 10,
		},
		Weather: Weather{
			Location: "Tunis,TN",
			BaseURL:  "https://api.openweathermap.org/data/2.5/weather",
			Timeout:  Duration{5 * time.Second},
		},
		Log: Log{Level: "info", Format: "json"},
	}
}

// LoadFromBytes parses YAML bytes over the defaults and validates the result.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads and parses a YAML config file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromBytes(data)
}

// Load reads .env files from the working directory, parses path (skipped
// when empty) and applies environment overrides.
func Load(path string) (*Config, error) {
	for _, f := range []string{".env", ".env.local"} {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from the environment and revalidates.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"COURTSCHED_STORAGE_DRIVER":           &c.Storage.Driver,
		"COURTSCHED_DSN":                      &c.Storage.DSN,
		"OPENWEATHER_API_KEY":                 &c.Weather.APIKey,
		"COURTSCHED_EXPORT_ACCESS_KEY_ID":     &c.Export.AccessKeyID,
		"COURTSCHED_EXPORT_SECRET_ACCESS_KEY": &c.Export.SecretAccessKey,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	if v, ok := lookup("COURTSCHED_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid COURTSCHED_PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	return c.validate()
}

// Clocks returns the scheduling time slots parsed.
func (c *Config) Clocks() ([]model.Clock, error) {
	return model.ParseClocks(c.Scheduling.TimeSlots)
}

// Logger builds the process logger described by the log section.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.Log.Level)}
	if strings.EqualFold(c.Log.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.Storage.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the %s driver", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("storage.driver %q: must be memory, sqlite or postgres", c.Storage.Driver)
	}

	if len(c.Scheduling.TimeSlots) == 0 {
		return fmt.Errorf("scheduling.time_slots: at least one time slot is required")
	}
	for _, s := range c.Scheduling.TimeSlots {
		start, err := model.ParseClock(s)
		if err != nil {
			return fmt.Errorf("scheduling.time_slots: %w", err)
		}
		// matches last an hour and may not run past midnight
		if start.Add(60) > model.MinutesPerDay {
			return fmt.Errorf("scheduling.time_slots: %s leaves no room for a match before midnight", s)
		}
	}
	if c.Scheduling.BufferMinutes < 0 {
		return fmt.Errorf("scheduling.buffer_minutes must not be negative, got %d", c.Scheduling.BufferMinutes)
	}

	if c.Weather.Timeout.Duration <= 0 {
		return fmt.Errorf("weather.timeout must be positive")
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format %q: must be json or text", c.Log.Format)
	}

	return nil
}

// Starter is the config file written by `courtsched init`.
const Starter = `# courtsched configuration

server:
  port: 8080
  # Browser origins allowed to call the API and open websockets.
  cors_origins: ["http://localhost:3000"]

storage:
  # memory, sqlite or postgres
  driver: sqlite
  dsn: courtsched.db

scheduling:
  time_slots: ["10:00", "12:00", "14:00", "16:00", "18:00"]
  # Idle minutes required between two bookings on the same court.
  buffer_minutes: 10

weather:
  location: "Tunis,TN"
  # Set OPENWEATHER_API_KEY in the environment or .env instead.
  api_key: ""
  timeout: 5s

export:
  # Leave bucket empty to keep exports local.
  bucket: ""
  endpoint: ""
  region: ""
  public_base_url: ""

log:
  level: info
  format: json
`
