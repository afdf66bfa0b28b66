package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/derekprior/courtsched/internal/config"
	"github.com/derekprior/courtsched/internal/excel"
	"github.com/derekprior/courtsched/internal/model"
	"github.com/derekprior/courtsched/internal/schedule"
	"github.com/derekprior/courtsched/internal/upload"
	"github.com/derekprior/courtsched/internal/validator"
	"github.com/derekprior/courtsched/internal/weather"
)

type loader func() (*config.Config, error)

func openApp(ctx context.Context, load loader) (*app, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	a, err := newApp(ctx, cfg, nil)
	if err != nil {
		return nil, err
	}
	a.warnIfEphemeral()
	return a, nil
}

func scheduleCommand(load loader) *cobra.Command {
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Generate, validate and export tournament schedules",
	}

	var (
		courtIDs  []string
		startDate string
		slots     []string
		mode      string
		buffer    int
	)
	generateCmd := &cobra.Command{
		Use:          "generate <tournament-id>",
		Short:        "Book every pending match of a tournament",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := model.ParseDate(startDate)
			if err != nil {
				return err
			}
			clocks, err := model.ParseClocks(slots)
			if err != nil {
				return err
			}
			m, err := schedule.ParseMode(mode)
			if err != nil {
				return err
			}
			req := schedule.Request{
				TournamentID: args[0],
				CourtIDs:     courtIDs,
				StartDate:    start,
				TimeSlots:    clocks,
				Mode:         m,
			}
			if cmd.Flags().Changed("buffer") {
				req.BufferMinutes = &buffer
			}
			return runGenerate(cmd.Context(), load, req)
		},
	}
	generateCmd.Flags().StringSliceVar(&courtIDs, "court", nil, "Court ID to schedule on (repeatable)")
	generateCmd.Flags().StringVar(&startDate, "start-date", "", "First day to schedule (YYYY-MM-DD)")
	generateCmd.Flags().StringSliceVar(&slots, "slots", nil, "Start times, e.g. 10:00,12:00 (default from config)")
	generateCmd.Flags().StringVar(&mode, "mode", string(schedule.ModeConflictAware), "conflict_aware or round_robin")
	generateCmd.Flags().IntVar(&buffer, "buffer", 0, "Minutes between bookings on a court (default from config)")
	generateCmd.MarkFlagRequired("court")
	generateCmd.MarkFlagRequired("start-date")

	validateCmd := &cobra.Command{
		Use:          "validate <tournament-id | schedule.xlsx>",
		Short:        "Check a saved or exported schedule for conflicts",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.Context(), load, args[0])
		},
	}

	var (
		outputFile string
		doUpload   bool
	)
	exportCmd := &cobra.Command{
		Use:          "export <tournament-id>",
		Short:        "Write a tournament schedule to an Excel workbook",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), load, args[0], outputFile, doUpload)
		},
	}
	exportCmd.Flags().StringVarP(&outputFile, "output", "o", "schedule.xlsx", "Output Excel file path")
	exportCmd.Flags().BoolVar(&doUpload, "upload", false, "Also upload the workbook to the export bucket")

	scheduleCmd.AddCommand(generateCmd, validateCmd, exportCmd)
	return scheduleCmd
}

func runGenerate(ctx context.Context, load loader, req schedule.Request) error {
	a, err := openApp(ctx, load)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.scheduler.Schedule(ctx, req)
	if err != nil {
		return err
	}

	for _, b := range res.Bookings {
		label, err := bookingLabel(ctx, a, b)
		if err != nil {
			return err
		}
		fmt.Printf("  %s %s  %s\n", model.FormatDate(b.Date), b.Start, label)
	}
	for _, f := range res.Failures {
		fmt.Fprintf(os.Stderr, "⚠ Could not place %s\n", f.Label)
	}
	if !res.Success {
		return errors.New(res.Message)
	}
	fmt.Printf("\n✓ %s\n", res.Message)
	return nil
}

func bookingLabel(ctx context.Context, a *app, b model.Booking) (string, error) {
	m, err := a.store.GetMatch(ctx, b.MatchID)
	if err != nil {
		return "", err
	}
	court, err := a.store.GetCourt(ctx, b.CourtID)
	if err != nil {
		return "", err
	}
	t1, err := a.store.GetTeam(ctx, m.Team1ID)
	if err != nil {
		return "", err
	}
	t2, err := a.store.GetTeam(ctx, m.Team2ID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%-15s %s%s%s", court.Name, t1.Name, excel.MatchSeparator, t2.Name), nil
}

func runValidate(ctx context.Context, load loader, target string) error {
	var violations []validator.Violation
	if strings.HasSuffix(strings.ToLower(target), ".xlsx") {
		cfg, err := load()
		if err != nil {
			return err
		}
		if violations, err = validator.ValidateWorkbook(target, cfg.Scheduling.BufferMinutes); err != nil {
			return fmt.Errorf("validating: %w", err)
		}
	} else {
		a, err := openApp(ctx, load)
		if err != nil {
			return err
		}
		defer a.Close()
		if violations, err = validator.Validate(ctx, a.store, target, a.cfg.Scheduling.BufferMinutes); err != nil {
			return fmt.Errorf("validating: %w", err)
		}
	}

	warnings := 0
	for _, v := range violations {
		where := ""
		if v.Row > 0 {
			where = fmt.Sprintf("row %d: ", v.Row)
		}
		switch v.Type {
		case "error":
			fmt.Printf("✗ Conflict: %s%s\n", where, v.Message)
		default:
			warnings++
			fmt.Printf("⚠ Warning: %s%s\n", where, v.Message)
		}
	}

	errs := validator.Errors(violations)
	fmt.Printf("\nValidation complete: %d conflicts, %d warnings\n", errs, warnings)
	if errs > 0 {
		return fmt.Errorf("%d conflicts found", errs)
	}
	return nil
}

func runExport(ctx context.Context, load loader, tournamentID, outputPath string, doUpload bool) error {
	a, err := openApp(ctx, load)
	if err != nil {
		return err
	}
	defer a.Close()
	if doUpload && a.uploader == nil {
		return errors.New("--upload needs export.bucket in the config")
	}

	sched, err := excel.Load(ctx, a.store, tournamentID)
	if err != nil {
		return fmt.Errorf("loading schedule: %w", err)
	}
	f, err := excel.Generate(sched)
	if err != nil {
		return fmt.Errorf("generating Excel: %w", err)
	}
	defer f.Close()

	if err := f.SaveAs(outputPath); err != nil {
		return fmt.Errorf("saving file: %w", err)
	}
	fmt.Printf("✓ Schedule saved to %s (%d bookings)\n", outputPath, len(sched.Bookings))

	if doUpload {
		buf, err := f.WriteToBuffer()
		if err != nil {
			return err
		}
		res, err := a.uploader.Upload(ctx, upload.ScheduleKey(tournamentID, time.Now()), upload.WorkbookContentType, buf.Bytes())
		if err != nil {
			return fmt.Errorf("uploading: %w", err)
		}
		where := res.Location
		if where == "" {
			where = res.Key
		}
		fmt.Printf("✓ Uploaded to %s\n", where)
	}
	return nil
}

func weatherCommand(load loader) *cobra.Command {
	weatherCmd := &cobra.Command{
		Use:   "weather",
		Short: "Read the weather and move outdoor bookings it rules out",
	}

	var (
		location string
		matchID  string
	)
	checkCmd := &cobra.Command{
		Use:          "check [tournament-id]",
		Short:        "Show current conditions, or check a tournament's or match's bookings",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			tournamentID := ""
			if len(args) == 1 {
				tournamentID = args[0]
			}
			return runWeatherCheck(cmd.Context(), load, location, tournamentID, matchID)
		},
	}
	checkCmd.Flags().StringVar(&location, "location", "", "Location such as Tunis,TN (default from config)")
	checkCmd.Flags().StringVar(&matchID, "match", "", "Check a single match instead of a tournament")

	weatherCmd.AddCommand(checkCmd)
	return weatherCmd
}

func runWeatherCheck(ctx context.Context, load loader, location, tournamentID, matchID string) error {
	a, err := openApp(ctx, load)
	if err != nil {
		return err
	}
	defer a.Close()

	switch {
	case matchID != "":
		out, err := a.guard.CheckMatch(ctx, matchID, location)
		if err != nil {
			return err
		}
		printOutcome(out)
	case tournamentID != "":
		sum, err := a.guard.CheckTournament(ctx, tournamentID, location)
		if err != nil {
			return err
		}
		for _, out := range sum.Results {
			printOutcome(out)
		}
		fmt.Printf("\nChecked %d bookings: %d relocated, %d postponed, %d unchanged\n",
			sum.TotalChecked, sum.Relocated, sum.Postponed, sum.NoAction)
	default:
		r := a.guard.Fetch(ctx, location)
		mark := "✓"
		if !r.Suitable {
			mark = "⚠"
		}
		fmt.Printf("%s %s (%s)\n", mark, weather.Describe(r), formatReading(r))
		if r.Error != "" {
			fmt.Fprintf(os.Stderr, "⚠ weather source unavailable: %s\n", r.Error)
		}
	}
	return nil
}

func printOutcome(out weather.Outcome) {
	switch out.Action {
	case weather.Relocated:
		fmt.Printf("⚠ %s: %s, moved from %s to %s\n", out.MatchID, out.Description, out.OldCourt, out.NewCourt.Name)
	case weather.Postponed:
		fmt.Printf("⚠ %s: %s, postponed from %s to %s\n", out.MatchID, out.Description, out.OriginalDate, out.NewDate)
	default:
		fmt.Printf("✓ %s: %s\n", out.MatchID, out.Reason)
	}
	if out.Conflict != "" {
		fmt.Printf("  ✗ new placement conflicts: %s\n", out.Conflict)
	}
}

func formatReading(r weather.Reading) string {
	var parts []string
	if r.Temperature != nil {
		parts = append(parts, fmt.Sprintf("%.1f°C", *r.Temperature))
	}
	if r.RainProbability != nil {
		parts = append(parts, fmt.Sprintf("rain %d%%", *r.RainProbability))
	}
	if r.WindSpeed != nil {
		parts = append(parts, fmt.Sprintf("wind %.1f km/h", *r.WindSpeed))
	}
	if len(parts) == 0 {
		return "no data"
	}
	return strings.Join(parts, ", ")
}
