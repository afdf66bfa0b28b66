package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/derekprior/courtsched/internal/config"
	"github.com/derekprior/courtsched/internal/notify"
	"github.com/derekprior/courtsched/internal/schedule"
	"github.com/derekprior/courtsched/internal/store"
	"github.com/derekprior/courtsched/internal/tournament"
	"github.com/derekprior/courtsched/internal/upload"
	"github.com/derekprior/courtsched/internal/weather"
)

// resolveConfigPath returns "" when no flag is given and there is no
// config.yaml, in which case defaults and the environment apply.
func resolveConfigPath(configFlag string) (string, error) {
	if configFlag != "" {
		if _, err := os.Stat(configFlag); err != nil {
			return "", fmt.Errorf("config file %s: %w", configFlag, err)
		}
		return configFlag, nil
	}
	if _, err := os.Stat(config.DefaultPath); err == nil {
		return config.DefaultPath, nil
	}
	return "", nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "courtsched",
		Short: "Padel tournament scheduling and court conflict resolution",
	}

	var configFile string
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (default: config.yaml in current directory)")
	load := func() (*config.Config, error) {
		path, err := resolveConfigPath(configFile)
		if err != nil {
			return nil, err
		}
		return config.Load(path)
	}

	var initOutputPath string
	initCmd := &cobra.Command{
		Use:          "init",
		Short:        "Create a starter config.yaml in the current directory",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(initOutputPath)
		},
	}
	initCmd.Flags().StringVarP(&initOutputPath, "output", "o", config.DefaultPath, "Output path for the config file")

	serveCmd := &cobra.Command{
		Use:          "serve",
		Short:        "Run the HTTP API",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	rootCmd.AddCommand(initCmd, serveCmd, scheduleCommand(load), weatherCommand(load))
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func runInit(outputPath string) error {
	if _, err := os.Stat(outputPath); err == nil {
		return fmt.Errorf("%s already exists; remove it first or use -o to write elsewhere", outputPath)
	}

	if err := os.WriteFile(outputPath, []byte(config.Starter), 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("✓ Created %s\n", outputPath)
	return nil
}

// app holds everything a command needs, built once from the config.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	store       store.Store
	tournaments *tournament.Service
	scheduler   *schedule.Scheduler
	guard       *weather.Guard
	uploader    upload.Uploader
}

func newApp(ctx context.Context, cfg *config.Config, events notify.Publisher) (*app, error) {
	logger := cfg.Logger(os.Stderr)
	if events == nil {
		events = notify.Discard{}
	}
	clocks, err := cfg.Clocks()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Storage.Driver, err)
	}

	a := &app{
		cfg:         cfg,
		logger:      logger,
		store:       st,
		tournaments: tournament.NewService(st, logger, events),
		scheduler: schedule.NewScheduler(st, schedule.Config{
			TimeSlots:     clocks,
			BufferMinutes: cfg.Scheduling.BufferMinutes,
			Logger:        logger,
			Events:        events,
		}),
		guard: weather.NewGuard(st,
			weather.NewOpenWeatherMap(cfg.Weather.APIKey, cfg.Weather.BaseURL, cfg.Weather.Timeout.Duration),
			weather.GuardConfig{
				Location:      cfg.Weather.Location,
				BufferMinutes: cfg.Scheduling.BufferMinutes,
				Logger:        logger,
				Events:        events,
			}),
	}

	if cfg.Export.Enabled() {
		u, err := upload.NewS3(ctx, upload.Config{
			Bucket:          cfg.Export.Bucket,
			Endpoint:        cfg.Export.Endpoint,
			Region:          cfg.Export.Region,
			AccessKeyID:     cfg.Export.AccessKeyID,
			SecretAccessKey: cfg.Export.SecretAccessKey,
			PublicBaseURL:   cfg.Export.PublicBaseURL,
		})
		if err != nil {
			st.Close()
			return nil, err
		}
		a.uploader = u
	}
	return a, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// warnIfEphemeral notes that the memory store starts empty for every command.
func (a *app) warnIfEphemeral() {
	if a.cfg.Storage.Driver == "memory" {
		fmt.Fprintln(os.Stderr, "⚠ storage driver is memory; configure sqlite or postgres to work with saved tournaments")
	}
}
