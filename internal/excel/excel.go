package excel

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/derekprior/courtsched/internal/model"
	"github.com/derekprior/courtsched/internal/store"
	"github.com/derekprior/courtsched/internal/strategy"
	"github.com/xuri/excelize/v2"
)

// MasterSheet is the name of the sheet listing every booking.
const MasterSheet = "Master Schedule"

// MatchSeparator joins the two team names in a master schedule cell.
const MatchSeparator = " vs "

// Schedule is a tournament's bookings with everything needed to print them.
type Schedule struct {
	Tournament model.Tournament
	Courts     []model.Court
	Teams      []model.Team
	Matches    map[string]model.Match
	Bookings   []model.Booking
}

// Load reads a tournament's schedule from the store. Courts are limited to
// the ones the tournament has bookings on.
func Load(ctx context.Context, q store.Queries, tournamentID string) (*Schedule, error) {
	t, err := q.GetTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	teams, err := q.ListTournamentTeams(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	matches, err := q.ListMatches(ctx, store.MatchFilter{TournamentID: tournamentID})
	if err != nil {
		return nil, err
	}
	bookings, err := q.ListBookings(ctx, store.BookingFilter{TournamentID: tournamentID})
	if err != nil {
		return nil, err
	}
	courts, err := q.ListCourts(ctx, store.CourtFilter{})
	if err != nil {
		return nil, err
	}

	s := &Schedule{Tournament: t, Teams: teams, Matches: make(map[string]model.Match, len(matches)), Bookings: bookings}
	for _, m := range matches {
		s.Matches[m.ID] = m
	}
	used := make(map[string]bool)
	for _, b := range bookings {
		used[b.CourtID] = true
	}
	for _, c := range courts {
		if used[c.ID] {
			s.Courts = append(s.Courts, c)
		}
	}
	return s, nil
}

func (s *Schedule) teamName(id string) string {
	for _, t := range s.Teams {
		if t.ID == id {
			return t.Name
		}
	}
	return id
}

// Generate creates an Excel workbook with the master schedule and per-team sheets.
func Generate(s *Schedule) (*excelize.File, error) {
	f := excelize.NewFile()

	f.SetDefaultFont("Arial")

	if err := writeMasterSheet(f, s); err != nil {
		return nil, fmt.Errorf("writing master sheet: %w", err)
	}

	if err := writeTeamSheets(f, s); err != nil {
		return nil, fmt.Errorf("writing team sheets: %w", err)
	}

	f.DeleteSheet("Sheet1")
	return f, nil
}

// courtColumnName shortens a court name to its first word when that word
// is unique among the courts.
func courtColumnName(name string, allNames []string) string {
	first, _, _ := strings.Cut(name, " ")
	count := 0
	for _, n := range allNames {
		word, _, _ := strings.Cut(n, " ")
		if word == first {
			count++
		}
	}
	if count > 1 {
		return name
	}
	return first
}

// courtColumns returns one master sheet header per court. Courts sharing a
// name are told apart by the start of their ID, since the workbook is read
// back by header.
func courtColumns(courts []model.Court) []string {
	names := make([]string, len(courts))
	seen := make(map[string]int, len(courts))
	for i, c := range courts {
		names[i] = c.Name
		seen[c.Name]++
	}
	cols := make([]string, len(courts))
	for i, c := range courts {
		if seen[c.Name] > 1 {
			cols[i] = fmt.Sprintf("%s (%s)", c.Name, truncate(c.ID, 8))
			continue
		}
		cols[i] = courtColumnName(c.Name, names)
	}
	return cols
}

func headerStyle(f *excelize.File) int {
	style, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF", Size: 16, Family: "Arial"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#4472C4"}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	return style
}

func writeHeaders(f *excelize.File, sheet string, headers []string) {
	for i, h := range headers {
		f.SetCellValue(sheet, cellRef(i+1, 1), h)
	}
	if style := headerStyle(f); style != 0 {
		f.SetCellStyle(sheet, cellRef(1, 1), cellRef(len(headers), 1), style)
	}
}

func writeMasterSheet(f *excelize.File, s *Schedule) error {
	sheet := MasterSheet
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	courtCols := courtColumns(s.Courts)
	courtIndex := make(map[string]int)
	for i, c := range s.Courts {
		courtIndex[c.ID] = i
	}

	// Headers: Date, Day, Time, <court1>, <court2>, ...
	headers := append([]string{"Date", "Day", "Time"}, courtCols...)
	writeHeaders(f, sheet, headers)

	cellStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Size: 16, Family: "Arial"},
	})
	courtCellStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Size: 16, Family: "Arial"},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	// matches moved by the weather guard
	movedStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Size: 16, Family: "Arial"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#FFEB9C"}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})

	type timeSlot struct {
		date  time.Time
		start model.Clock
	}
	type slotKey struct {
		timeSlot
		court string
	}
	seen := make(map[timeSlot]bool)
	var timeSlots []timeSlot
	// a court can hold more than one booking per slot after a forced move;
	// each one gets its own row so the clash stays visible
	byKey := make(map[slotKey][]model.Booking)
	depth := make(map[timeSlot]int)
	for _, b := range s.Bookings {
		ts := timeSlot{b.Date, b.Start}
		if !seen[ts] {
			seen[ts] = true
			timeSlots = append(timeSlots, ts)
		}
		key := slotKey{ts, b.CourtID}
		byKey[key] = append(byKey[key], b)
		depth[ts] = max(depth[ts], len(byKey[key]))
	}
	sort.Slice(timeSlots, func(i, j int) bool {
		if !timeSlots[i].date.Equal(timeSlots[j].date) {
			return timeSlots[i].date.Before(timeSlots[j].date)
		}
		return timeSlots[i].start < timeSlots[j].start
	})

	row := 1
	for _, ts := range timeSlots {
		for n := 0; n < depth[ts]; n++ {
			row++
			f.SetCellValue(sheet, cellRef(1, row), model.FormatDate(ts.date))
			f.SetCellValue(sheet, cellRef(2, row), ts.date.Format("Mon"))
			f.SetCellValue(sheet, cellRef(3, row), ts.start.String())
			if cellStyle != 0 {
				f.SetCellStyle(sheet, cellRef(1, row), cellRef(3, row), cellStyle)
			}

			for _, c := range s.Courts {
				col := courtIndex[c.ID] + 4 // 1-indexed, after Date/Day/Time
				if courtCellStyle != 0 {
					f.SetCellStyle(sheet, cellRef(col, row), cellRef(col, row), courtCellStyle)
				}
				bookings := byKey[slotKey{ts, c.ID}]
				if n >= len(bookings) {
					continue
				}
				m := s.Matches[bookings[n].MatchID]
				f.SetCellValue(sheet, cellRef(col, row), s.teamName(m.Team1ID)+MatchSeparator+s.teamName(m.Team2ID))
				if m.ScheduleNote != "" {
					f.AddComment(sheet, excelize.Comment{Cell: cellRef(col, row), Author: "courtsched", Text: m.ScheduleNote})
					if movedStyle != 0 {
						f.SetCellStyle(sheet, cellRef(col, row), cellRef(col, row), movedStyle)
					}
				}
			}
		}
	}

	// Set column widths (sized for Arial 16)
	f.SetColWidth(sheet, "A", "A", 18)
	f.SetColWidth(sheet, "B", "B", 8)
	f.SetColWidth(sheet, "C", "C", 10)
	for i := range s.Courts {
		col := colLetter(i + 4)
		f.SetColWidth(sheet, col, col, 34)
	}
	return nil
}

func writeTeamSheets(f *excelize.File, s *Schedule) error {
	courtName := make(map[string]string, len(s.Courts))
	for _, c := range s.Courts {
		courtName[c.ID] = c.Name
	}
	// the default sheet is deleted once the workbook is complete
	used := map[string]bool{"sheet1": true}

	for _, team := range s.Teams {
		sheet := SheetName(team.Name, used)
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("sheet for team %s: %w", team.Name, err)
		}

		headers := []string{"Date", "Day", "Time", "Court", "Opponent", "Round", "Status", "Note"}
		writeHeaders(f, sheet, headers)

		var games []model.Booking
		for _, b := range s.Bookings {
			if s.Matches[b.MatchID].HasTeam(team.ID) {
				games = append(games, b)
			}
		}
		// s.Bookings is already in date and time order

		cellStyle, _ := f.NewStyle(&excelize.Style{
			Font: &excelize.Font{Size: 16, Family: "Arial"},
		})

		for i, b := range games {
			m := s.Matches[b.MatchID]
			row := i + 2
			f.SetCellValue(sheet, cellRef(1, row), model.FormatDate(b.Date))
			f.SetCellValue(sheet, cellRef(2, row), b.Date.Format("Mon"))
			f.SetCellValue(sheet, cellRef(3, row), b.Start.String())
			f.SetCellValue(sheet, cellRef(4, row), courtName[b.CourtID])
			f.SetCellValue(sheet, cellRef(5, row), s.teamName(m.Opponent(team.ID)))
			f.SetCellValue(sheet, cellRef(6, row), strategy.RoundName(m.Round))
			f.SetCellValue(sheet, cellRef(7, row), string(m.Status))
			f.SetCellValue(sheet, cellRef(8, row), m.ScheduleNote)
			if cellStyle != 0 {
				f.SetCellStyle(sheet, cellRef(1, row), cellRef(len(headers), row), cellStyle)
			}
		}

		// Set column widths (sized for Arial 16)
		widths := map[string]float64{"A": 18, "B": 8, "C": 10, "D": 24, "E": 24, "F": 16, "G": 14, "H": 60}
		for col, w := range widths {
			f.SetColWidth(sheet, col, col, w)
		}
	}

	return nil
}

// SheetName turns a team name into a valid, unused sheet name: at most 31
// characters with none of : \ / ? * [ ]. Collisions get a numeric suffix.
func SheetName(name string, used map[string]bool) string {
	clean := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`:\/?*[]`, r) {
			return '-'
		}
		return r
	}, strings.TrimSpace(name))
	clean = strings.Trim(clean, "'")
	if clean == "" {
		clean = "Team"
	}
	base := truncate(clean, 31)
	candidate := base
	for n := 2; used[strings.ToLower(candidate)] || strings.EqualFold(candidate, MasterSheet); n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		candidate = truncate(clean, 31-len(suffix)) + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func cellRef(col, row int) string {
	return fmt.Sprintf("%s%d", colLetter(col), row)
}

func colLetter(col int) string {
	result := ""
	for col > 0 {
		col--
		result = string(rune('A'+col%26)) + result
		col /= 26
	}
	return result
}
