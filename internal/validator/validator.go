package validator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/derekprior/courtsched/internal/excel"
	"github.com/derekprior/courtsched/internal/model"
	"github.com/derekprior/courtsched/internal/schedule"
	"github.com/derekprior/courtsched/internal/store"
	"github.com/xuri/excelize/v2"
)

// RuleUnscheduled flags a pending match that has no booking.
const RuleUnscheduled = "unscheduled"

// Violation represents a constraint violation found during validation.
type Violation struct {
	Row      int      `json:"row,omitempty"` // workbook row, 0 for store audits
	Type     string   `json:"type"`          // "error" or "warning"
	Rule     string   `json:"rule"`
	Message  string   `json:"message"`
	MatchIDs []string `json:"match_ids,omitempty"`
}

// Errors counts the violations of type "error".
func Errors(vs []Violation) int {
	n := 0
	for _, v := range vs {
		if v.Type == "error" {
			n++
		}
	}
	return n
}

// audit holds what the checks need to name things.
type audit struct {
	q        store.Queries
	buffer   int
	bookings []model.Booking
	matches  map[string]model.Match
	teams    map[string]model.Team
	courts   map[string]model.Court
}

// Validate re-checks a tournament's persisted bookings. Bookings from other
// tournaments are taken into account wherever they share a court, team or
// player with this one.
func Validate(ctx context.Context, q store.Queries, tournamentID string, buffer int) ([]Violation, error) {
	if _, err := q.GetTournament(ctx, tournamentID); err != nil {
		return nil, err
	}
	bookings, err := q.ListBookings(ctx, store.BookingFilter{TournamentID: tournamentID})
	if err != nil {
		return nil, fmt.Errorf("listing bookings: %w", err)
	}
	a := &audit{
		q:        q,
		buffer:   buffer,
		bookings: bookings,
		matches:  make(map[string]model.Match),
		teams:    make(map[string]model.Team),
		courts:   make(map[string]model.Court),
	}

	var violations []Violation
	checks := []func(context.Context) ([]Violation, error){
		a.checkCourts,
		a.checkTeamDay,
		a.checkPlayers,
	}
	for _, check := range checks {
		vs, err := check(ctx)
		if err != nil {
			return nil, err
		}
		violations = append(violations, vs...)
	}

	unscheduled, err := a.checkUnscheduled(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	return append(violations, unscheduled...), nil
}

func (a *audit) match(ctx context.Context, id string) (model.Match, error) {
	if m, ok := a.matches[id]; ok {
		return m, nil
	}
	m, err := a.q.GetMatch(ctx, id)
	if err != nil {
		return model.Match{}, err
	}
	a.matches[id] = m
	return m, nil
}

func (a *audit) team(ctx context.Context, id string) (model.Team, error) {
	if t, ok := a.teams[id]; ok {
		return t, nil
	}
	t, err := a.q.GetTeam(ctx, id)
	if err != nil {
		return model.Team{}, err
	}
	a.teams[id] = t
	return t, nil
}

func (a *audit) court(ctx context.Context, id string) (model.Court, error) {
	if c, ok := a.courts[id]; ok {
		return c, nil
	}
	c, err := a.q.GetCourt(ctx, id)
	if err != nil {
		return model.Court{}, err
	}
	a.courts[id] = c
	return c, nil
}

func (a *audit) label(ctx context.Context, b model.Booking) (string, error) {
	m, err := a.match(ctx, b.MatchID)
	if err != nil {
		return "", err
	}
	t1, err := a.team(ctx, m.Team1ID)
	if err != nil {
		return "", err
	}
	t2, err := a.team(ctx, m.Team2ID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%s%s (%s %s)", t1.Name, excel.MatchSeparator, t2.Name, model.FormatDate(b.Date), b.Start), nil
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// checkCourts reports bookings sharing a court that overlap or leave less
// than the buffer between them.
func (a *audit) checkCourts(ctx context.Context) ([]Violation, error) {
	seen := make(map[string]bool)
	var violations []Violation
	for _, b := range a.bookings {
		others, err := a.q.BookingsOnCourt(ctx, b.CourtID, b.Date)
		if err != nil {
			return nil, fmt.Errorf("court %s bookings: %w", b.CourtID, err)
		}
		for _, o := range others {
			if o.ID == b.ID || seen[pairKey(b.ID, o.ID)] {
				continue
			}
			rule := schedule.ConflictCourtOccupied
			if !b.Overlaps(o.Start, o.End) {
				if !b.Overlaps(o.Start.Add(-a.buffer), o.End.Add(a.buffer)) {
					continue
				}
				rule = schedule.ConflictCourtBuffer
			}
			seen[pairKey(b.ID, o.ID)] = true

			c, err := a.court(ctx, b.CourtID)
			if err != nil {
				return nil, err
			}
			first, err := a.label(ctx, b)
			if err != nil {
				return nil, err
			}
			second, err := a.label(ctx, o)
			if err != nil {
				return nil, err
			}
			msg := fmt.Sprintf("%s and %s overlap on %s", first, second, c.Name)
			if rule == schedule.ConflictCourtBuffer {
				msg = fmt.Sprintf("%s and %s on %s leave less than %d minutes between them", first, second, c.Name, a.buffer)
			}
			violations = append(violations, Violation{
				Type:     "error",
				Rule:     rule.String(),
				Message:  msg,
				MatchIDs: []string{b.MatchID, o.MatchID},
			})
		}
	}
	return violations, nil
}

// checkTeamDay reports teams booked more than once on the same day, in any
// tournament.
func (a *audit) checkTeamDay(ctx context.Context) ([]Violation, error) {
	type teamDay struct {
		team string
		date time.Time
	}
	seen := make(map[teamDay]bool)
	var violations []Violation
	for _, b := range a.bookings {
		m, err := a.match(ctx, b.MatchID)
		if err != nil {
			return nil, err
		}
		for _, teamID := range []string{m.Team1ID, m.Team2ID} {
			key := teamDay{teamID, b.Date}
			if seen[key] {
				continue
			}
			seen[key] = true
			day, err := schedule.TeamSchedule(ctx, a.q, teamID, b.Date, b.Date)
			if err != nil {
				return nil, err
			}
			if len(day) < 2 {
				continue
			}
			t, err := a.team(ctx, teamID)
			if err != nil {
				return nil, err
			}
			ids := make([]string, len(day))
			for i, d := range day {
				ids[i] = d.MatchID
			}
			violations = append(violations, Violation{
				Type:     "error",
				Rule:     schedule.ConflictTeamDay.String(),
				Message:  fmt.Sprintf("%s plays %d matches on %s (max 1)", t.Name, len(day), model.FormatDate(b.Date)),
				MatchIDs: ids,
			})
		}
	}
	return violations, nil
}

// checkPlayers reports players due on two courts at once. Matches between
// the same teams are left to checkTeamDay.
func (a *audit) checkPlayers(ctx context.Context) ([]Violation, error) {
	seen := make(map[string]bool)
	var violations []Violation
	for _, b := range a.bookings {
		m, err := a.match(ctx, b.MatchID)
		if err != nil {
			return nil, err
		}
		for _, teamID := range []string{m.Team1ID, m.Team2ID} {
			t, err := a.team(ctx, teamID)
			if err != nil {
				return nil, err
			}
			for _, playerID := range t.PlayerIDs {
				day, err := schedule.PlayerSchedule(ctx, a.q, playerID, b.Date, b.Date)
				if err != nil {
					return nil, err
				}
				for _, o := range day {
					if o.ID == b.ID || !b.Overlaps(o.Start, o.End) || seen[pairKey(b.ID, o.ID)] {
						continue
					}
					other, err := a.match(ctx, o.MatchID)
					if err != nil {
						return nil, err
					}
					if other.HasTeam(teamID) {
						continue
					}
					seen[pairKey(b.ID, o.ID)] = true

					p, err := a.q.GetPlayer(ctx, playerID)
					if err != nil {
						return nil, err
					}
					first, err := a.label(ctx, b)
					if err != nil {
						return nil, err
					}
					second, err := a.label(ctx, o)
					if err != nil {
						return nil, err
					}
					violations = append(violations, Violation{
						Type:     "error",
						Rule:     schedule.ConflictPlayerBusy.String(),
						Message:  fmt.Sprintf("%s is due in %s and %s at the same time", p.Name, first, second),
						MatchIDs: []string{b.MatchID, o.MatchID},
					})
				}
			}
		}
	}
	return violations, nil
}

func (a *audit) checkUnscheduled(ctx context.Context, tournamentID string) ([]Violation, error) {
	pending, err := a.q.ListMatches(ctx, store.MatchFilter{
		TournamentID: tournamentID,
		Status:       model.MatchPending,
		Unbooked:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("listing unbooked matches: %w", err)
	}
	var violations []Violation
	for _, m := range pending {
		t1, err := a.team(ctx, m.Team1ID)
		if err != nil {
			return nil, err
		}
		t2, err := a.team(ctx, m.Team2ID)
		if err != nil {
			return nil, err
		}
		violations = append(violations, Violation{
			Type:     "warning",
			Rule:     RuleUnscheduled,
			Message:  fmt.Sprintf("%s%s%s has no booking", t1.Name, excel.MatchSeparator, t2.Name),
			MatchIDs: []string{m.ID},
		})
	}
	return violations, nil
}

// ValidateWorkbook checks an exported schedule workbook. The workbook only
// carries team names, so player clashes cannot be seen; court buffers and
// team days can.
func ValidateWorkbook(path string, buffer int) ([]Violation, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	games, violations, err := readAssignments(f)
	if err != nil {
		return nil, fmt.Errorf("reading assignments: %w", err)
	}
	violations = append(violations, checkWorkbookCourts(games, buffer)...)
	violations = append(violations, checkWorkbookTeamDay(games)...)
	return violations, nil
}

type parsedGame struct {
	Row   int
	Date  time.Time
	Start model.Clock
	Court string
	Team1 string
	Team2 string
}

func readAssignments(f *excelize.File) ([]parsedGame, []Violation, error) {
	rows, err := f.GetRows(excel.MasterSheet)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", excel.MasterSheet, err)
	}

	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("%s is empty", excel.MasterSheet)
	}

	// Header row determines court columns (index 3+)
	header := rows[0]

	var games []parsedGame
	var violations []Violation
	for i, row := range rows {
		if i == 0 {
			continue
		}
		if len(row) < 3 || row[0] == "" {
			continue
		}

		date, err := model.ParseDate(row[0])
		if err != nil {
			violations = append(violations, Violation{Row: i + 1, Type: "warning", Rule: "format",
				Message: fmt.Sprintf("unreadable date %q", row[0])})
			continue
		}
		start, err := model.ParseClock(row[2])
		if err != nil {
			violations = append(violations, Violation{Row: i + 1, Type: "warning", Rule: "format",
				Message: fmt.Sprintf("unreadable time %q", row[2])})
			continue
		}

		for col := 3; col < len(header) && col < len(row); col++ {
			if row[col] == "" {
				continue
			}
			team1, team2, ok := parseMatchCell(row[col])
			if !ok {
				violations = append(violations, Violation{Row: i + 1, Type: "warning", Rule: "format",
					Message: fmt.Sprintf("%s: %q is not a match", header[col], row[col])})
				continue
			}
			games = append(games, parsedGame{
				Row:   i + 1,
				Date:  date,
				Start: start,
				Court: header[col],
				Team1: team1,
				Team2: team2,
			})
		}
	}

	return games, violations, nil
}

// parseMatchCell parses "Team A vs Team B".
func parseMatchCell(cell string) (team1, team2 string, ok bool) {
	team1, team2, ok = strings.Cut(cell, excel.MatchSeparator)
	team1, team2 = strings.TrimSpace(team1), strings.TrimSpace(team2)
	if !ok || team1 == "" || team2 == "" {
		return "", "", false
	}
	return team1, team2, true
}

func checkWorkbookCourts(games []parsedGame, buffer int) []Violation {
	type courtDay struct {
		court string
		date  time.Time
	}
	byCourt := make(map[courtDay][]parsedGame)
	var order []courtDay
	for _, g := range games {
		key := courtDay{g.Court, g.Date}
		if _, ok := byCourt[key]; !ok {
			order = append(order, key)
		}
		byCourt[key] = append(byCourt[key], g)
	}

	var violations []Violation
	for _, key := range order {
		day := byCourt[key]
		sort.SliceStable(day, func(i, j int) bool { return day[i].Start < day[j].Start })
		for i := 1; i < len(day); i++ {
			prev, cur := day[i-1], day[i]
			prevEnd := prev.Start.Add(schedule.MatchMinutes)
			if cur.Start >= prevEnd.Add(buffer) {
				continue
			}
			rule, msg := schedule.ConflictCourtBuffer, fmt.Sprintf("%s on %s: %s starts %d minutes after the previous match ends (min %d)",
				key.court, model.FormatDate(key.date), cur.Start, int(cur.Start)-int(prevEnd), buffer)
			if cur.Start < prevEnd {
				rule, msg = schedule.ConflictCourtOccupied, fmt.Sprintf("%s on %s: %s starts before the %s match ends",
					key.court, model.FormatDate(key.date), cur.Start, prev.Start)
			}
			violations = append(violations, Violation{Row: cur.Row, Type: "error", Rule: rule.String(), Message: msg})
		}
	}
	return violations
}

func checkWorkbookTeamDay(games []parsedGame) []Violation {
	type teamDay struct {
		team string
		date time.Time
	}
	counts := make(map[teamDay][]int)
	var order []teamDay
	for _, g := range games {
		for _, team := range []string{g.Team1, g.Team2} {
			key := teamDay{team, g.Date}
			if _, ok := counts[key]; !ok {
				order = append(order, key)
			}
			counts[key] = append(counts[key], g.Row)
		}
	}

	var violations []Violation
	for _, td := range order {
		rows := counts[td]
		if len(rows) > 1 {
			violations = append(violations, Violation{
				Row:     rows[1],
				Type:    "error",
				Rule:    schedule.ConflictTeamDay.String(),
				Message: fmt.Sprintf("%s plays %d matches on %s (max 1)", td.team, len(rows), model.FormatDate(td.date)),
			})
		}
	}
	return violations
}
