package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/derekprior/courtsched/internal/model"
	"github.com/google/uuid"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

func (d dialect) name() string {
	if d == dialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// rebind rewrites ? placeholders to $1, $2, ... for postgres.
func (d dialect) rebind(query string) string {
	if d != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// SQLStore is the database/sql implementation shared by sqlite and postgres.
type SQLStore struct {
	sqlQueries
	db *sql.DB
}

func (s *SQLStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &sqlTx{sqlQueries: sqlQueries{db: tx, d: s.d}, tx: tx}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

type sqlTx struct {
	sqlQueries
	tx *sql.Tx
}

func (t *sqlTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return ErrTxDone
		}
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *sqlTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return ErrTxDone
		}
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

type sqlQueries struct {
	db executor
	d  dialect
}

func (q sqlQueries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.db.ExecContext(ctx, q.d.rebind(query), args...)
}

func (q sqlQueries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.db.QueryContext(ctx, q.d.rebind(query), args...)
}

func (q sqlQueries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.db.QueryRowContext(ctx, q.d.rebind(query), args...)
}

// atomic runs fn in a transaction unless q is already bound to one.
func (q sqlQueries) atomic(ctx context.Context, fn func(q sqlQueries) error) error {
	db, ok := q.db.(*sql.DB)
	if !ok {
		return fn(q)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(sqlQueries{db: tx, d: q.d}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (q sqlQueries) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := q.queryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func timeText(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTimeText(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", what, id, err)
}

func requireAffected(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return nil
}

func now() time.Time { return time.Now().UTC() }

// Players

const playerColumns = `id, name, ranking, licence_number, created_at`

func scanPlayer(s scanner) (model.Player, error) {
	var p model.Player
	var created string
	if err := s.Scan(&p.ID, &p.Name, &p.Ranking, &p.LicenceNumber, &created); err != nil {
		return model.Player{}, err
	}
	t, err := parseTimeText(created)
	if err != nil {
		return model.Player{}, err
	}
	p.CreatedAt = t
	return p, nil
}

func (q sqlQueries) CreatePlayer(ctx context.Context, p model.Player) (model.Player, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now()
	}
	_, err := q.exec(ctx, `INSERT INTO players (`+playerColumns+`) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Ranking, p.LicenceNumber, timeText(p.CreatedAt))
	if err != nil {
		return model.Player{}, fmt.Errorf("insert player: %w", err)
	}
	return p, nil
}

func (q sqlQueries) GetPlayer(ctx context.Context, id string) (model.Player, error) {
	p, err := scanPlayer(q.queryRow(ctx, `SELECT `+playerColumns+` FROM players WHERE id = ?`, id))
	if err != nil {
		return model.Player{}, notFound(err, "player", id)
	}
	return p, nil
}

func (q sqlQueries) ListPlayers(ctx context.Context) ([]model.Player, error) {
	rows, err := q.query(ctx, `SELECT `+playerColumns+` FROM players ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()
	var out []model.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Teams

func (q sqlQueries) resolveMembers(ctx context.Context, playerIDs []string) ([]model.Player, error) {
	if err := checkMembers(playerIDs); err != nil {
		return nil, err
	}
	players := make([]model.Player, 0, len(playerIDs))
	for _, id := range playerIDs {
		p, err := q.GetPlayer(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("player %s: %w", id, ErrInvalidTeam)
		}
		if err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, nil
}

func (q sqlQueries) insertMembers(ctx context.Context, teamID string, playerIDs []string) error {
	for i, pid := range playerIDs {
		if _, err := q.exec(ctx, `INSERT INTO team_members (team_id, player_id, position) VALUES (?, ?, ?)`, teamID, pid, i+1); err != nil {
			return fmt.Errorf("insert team member: %w", err)
		}
	}
	return nil
}

func (q sqlQueries) teamMembers(ctx context.Context, teamID string) ([]string, error) {
	rows, err := q.query(ctx, `SELECT player_id FROM team_members WHERE team_id = ? ORDER BY position`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list team members: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (q sqlQueries) CreateTeam(ctx context.Context, t model.Team) (model.Team, error) {
	err := q.atomic(ctx, func(q sqlQueries) error {
		players, err := q.resolveMembers(ctx, t.PlayerIDs)
		if err != nil {
			return err
		}
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now()
		}
		t.Ranking = teamRanking(players)
		t.PlayerIDs = append([]string(nil), t.PlayerIDs...)
		if _, err := q.exec(ctx, `INSERT INTO teams (id, name, ranking, created_at) VALUES (?, ?, ?, ?)`,
			t.ID, t.Name, t.Ranking, timeText(t.CreatedAt)); err != nil {
			return fmt.Errorf("insert team: %w", err)
		}
		return q.insertMembers(ctx, t.ID, t.PlayerIDs)
	})
	if err != nil {
		return model.Team{}, err
	}
	return t, nil
}

func (q sqlQueries) GetTeam(ctx context.Context, id string) (model.Team, error) {
	var t model.Team
	var created string
	err := q.queryRow(ctx, `SELECT id, name, ranking, created_at FROM teams WHERE id = ?`, id).
		Scan(&t.ID, &t.Name, &t.Ranking, &created)
	if err != nil {
		return model.Team{}, notFound(err, "team", id)
	}
	if t.CreatedAt, err = parseTimeText(created); err != nil {
		return model.Team{}, err
	}
	if t.PlayerIDs, err = q.teamMembers(ctx, id); err != nil {
		return model.Team{}, err
	}
	return t, nil
}

func (q sqlQueries) ListTeams(ctx context.Context) ([]model.Team, error) {
	rows, err := q.query(ctx, `SELECT id FROM teams ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return q.teamsByID(ctx, ids)
}

func (q sqlQueries) teamsByID(ctx context.Context, ids []string) ([]model.Team, error) {
	out := make([]model.Team, 0, len(ids))
	for _, id := range ids {
		t, err := q.GetTeam(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (q sqlQueries) SetTeamMembers(ctx context.Context, teamID string, playerIDs []string) (model.Team, error) {
	var team model.Team
	err := q.atomic(ctx, func(q sqlQueries) error {
		if _, err := q.GetTeam(ctx, teamID); err != nil {
			return err
		}
		players, err := q.resolveMembers(ctx, playerIDs)
		if err != nil {
			return err
		}
		if _, err := q.exec(ctx, `DELETE FROM team_members WHERE team_id = ?`, teamID); err != nil {
			return fmt.Errorf("clear team members: %w", err)
		}
		if err := q.insertMembers(ctx, teamID, playerIDs); err != nil {
			return err
		}
		if _, err := q.exec(ctx, `UPDATE teams SET ranking = ? WHERE id = ?`, teamRanking(players), teamID); err != nil {
			return fmt.Errorf("update team ranking: %w", err)
		}
		team, err = q.GetTeam(ctx, teamID)
		return err
	})
	if err != nil {
		return model.Team{}, err
	}
	return team, nil
}

func (q sqlQueries) TeamIDsForPlayer(ctx context.Context, playerID string) ([]string, error) {
	rows, err := q.query(ctx, `
SELECT tm.team_id FROM team_members tm
JOIN teams t ON t.id = tm.team_id
WHERE tm.player_id = ?
ORDER BY t.created_at, t.id`, playerID)
	if err != nil {
		return nil, fmt.Errorf("list player teams: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Courts

const courtColumns = `id, name, location, is_indoor, is_available, created_at`

func scanCourt(s scanner) (model.Court, error) {
	var c model.Court
	var created string
	if err := s.Scan(&c.ID, &c.Name, &c.Location, &c.IsIndoor, &c.IsAvailable, &created); err != nil {
		return model.Court{}, err
	}
	t, err := parseTimeText(created)
	if err != nil {
		return model.Court{}, err
	}
	c.CreatedAt = t
	return c, nil
}

func (q sqlQueries) CreateCourt(ctx context.Context, c model.Court) (model.Court, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now()
	}
	_, err := q.exec(ctx, `INSERT INTO courts (`+courtColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Location, c.IsIndoor, c.IsAvailable, timeText(c.CreatedAt))
	if err != nil {
		return model.Court{}, fmt.Errorf("insert court: %w", err)
	}
	return c, nil
}

func (q sqlQueries) GetCourt(ctx context.Context, id string) (model.Court, error) {
	c, err := scanCourt(q.queryRow(ctx, `SELECT `+courtColumns+` FROM courts WHERE id = ?`, id))
	if err != nil {
		return model.Court{}, notFound(err, "court", id)
	}
	return c, nil
}

func (q sqlQueries) ListCourts(ctx context.Context, f CourtFilter) ([]model.Court, error) {
	var where []string
	var args []any
	if f.Indoor != nil {
		where = append(where, "is_indoor = ?")
		args = append(args, *f.Indoor)
	}
	if f.Available != nil {
		where = append(where, "is_available = ?")
		args = append(args, *f.Available)
	}
	query := `SELECT ` + courtColumns + ` FROM courts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list courts: %w", err)
	}
	defer rows.Close()
	var out []model.Court
	for rows.Next() {
		c, err := scanCourt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan court: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q sqlQueries) UpdateCourt(ctx context.Context, c model.Court) error {
	res, err := q.exec(ctx, `UPDATE courts SET name = ?, location = ?, is_indoor = ?, is_available = ? WHERE id = ?`,
		c.Name, c.Location, c.IsIndoor, c.IsAvailable, c.ID)
	if err != nil {
		return fmt.Errorf("update court: %w", err)
	}
	return requireAffected(res, "court", c.ID)
}

func (q sqlQueries) DeleteCourt(ctx context.Context, id string) error {
	return q.atomic(ctx, func(q sqlQueries) error {
		n, err := q.count(ctx, `SELECT COUNT(*) FROM bookings WHERE court_id = ?`, id)
		if err != nil {
			return fmt.Errorf("count court bookings: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("court %s has bookings: %w", id, ErrInUse)
		}
		res, err := q.exec(ctx, `DELETE FROM courts WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete court: %w", err)
		}
		return requireAffected(res, "court", id)
	})
}

// Tournaments

func scanTournament(s scanner) (model.Tournament, error) {
	var t model.Tournament
	var status, created string
	if err := s.Scan(&t.ID, &t.Name, &status, &created); err != nil {
		return model.Tournament{}, err
	}
	var err error
	if t.Status, err = model.ParseTournamentStatus(status); err != nil {
		return model.Tournament{}, err
	}
	if t.CreatedAt, err = parseTimeText(created); err != nil {
		return model.Tournament{}, err
	}
	return t, nil
}

func (q sqlQueries) CreateTournament(ctx context.Context, t model.Tournament) (model.Tournament, error) {
	err := q.atomic(ctx, func(q sqlQueries) error {
		n, err := q.count(ctx, `SELECT COUNT(*) FROM tournaments WHERE name = ?`, t.Name)
		if err != nil {
			return fmt.Errorf("check tournament name: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("tournament %q: %w", t.Name, ErrDuplicate)
		}
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if t.Status == "" {
			t.Status = model.TournamentWaiting
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now()
		}
		_, err = q.exec(ctx, `INSERT INTO tournaments (id, name, status, created_at) VALUES (?, ?, ?, ?)`,
			t.ID, t.Name, string(t.Status), timeText(t.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert tournament: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Tournament{}, err
	}
	return t, nil
}

func (q sqlQueries) GetTournament(ctx context.Context, id string) (model.Tournament, error) {
	t, err := scanTournament(q.queryRow(ctx, `SELECT id, name, status, created_at FROM tournaments WHERE id = ?`, id))
	if err != nil {
		return model.Tournament{}, notFound(err, "tournament", id)
	}
	return t, nil
}

func (q sqlQueries) ListTournaments(ctx context.Context) ([]model.Tournament, error) {
	rows, err := q.query(ctx, `SELECT id, name, status, created_at FROM tournaments ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list tournaments: %w", err)
	}
	defer rows.Close()
	var out []model.Tournament
	for rows.Next() {
		t, err := scanTournament(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tournament: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (q sqlQueries) UpdateTournamentStatus(ctx context.Context, id string, status model.TournamentStatus) error {
	res, err := q.exec(ctx, `UPDATE tournaments SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update tournament status: %w", err)
	}
	return requireAffected(res, "tournament", id)
}

func (q sqlQueries) RegisterTeam(ctx context.Context, tournamentID, teamID string) error {
	return q.atomic(ctx, func(q sqlQueries) error {
		if _, err := q.GetTournament(ctx, tournamentID); err != nil {
			return err
		}
		if _, err := q.GetTeam(ctx, teamID); err != nil {
			return err
		}
		n, err := q.count(ctx, `SELECT COUNT(*) FROM tournament_teams WHERE tournament_id = ? AND team_id = ?`, tournamentID, teamID)
		if err != nil {
			return fmt.Errorf("check registration: %w", err)
		}
		if n > 0 {
			return ErrAlreadyRegistered
		}
		pos, err := q.count(ctx, `SELECT COALESCE(MAX(position), 0) + 1 FROM tournament_teams WHERE tournament_id = ?`, tournamentID)
		if err != nil {
			return fmt.Errorf("next registration position: %w", err)
		}
		_, err = q.exec(ctx, `INSERT INTO tournament_teams (tournament_id, team_id, position) VALUES (?, ?, ?)`, tournamentID, teamID, pos)
		if err != nil {
			return fmt.Errorf("insert registration: %w", err)
		}
		return nil
	})
}

func (q sqlQueries) ListTournamentTeams(ctx context.Context, tournamentID string) ([]model.Team, error) {
	if _, err := q.GetTournament(ctx, tournamentID); err != nil {
		return nil, err
	}
	rows, err := q.query(ctx, `SELECT team_id FROM tournament_teams WHERE tournament_id = ? ORDER BY position`, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("list tournament teams: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return q.teamsByID(ctx, ids)
}

// Matches

const matchColumns = `m.id, m.seq, m.tournament_id, m.team1_id, m.team2_id, m.team1_score, m.team2_score,
m.winner_id, m.status, m.phase, m.round_num, m.cancelled_by_team_id, m.cancellation_reason,
m.schedule_note, m.created_at`

func scanMatch(s scanner) (model.Match, error) {
	var m model.Match
	var s1, s2 sql.NullInt64
	var status, phase, created string
	err := s.Scan(&m.ID, &m.Seq, &m.TournamentID, &m.Team1ID, &m.Team2ID, &s1, &s2,
		&m.WinnerID, &status, &phase, &m.Round, &m.CancelledByTeamID, &m.CancellationReason,
		&m.ScheduleNote, &created)
	if err != nil {
		return model.Match{}, err
	}
	if s1.Valid {
		v := int(s1.Int64)
		m.Team1Score = &v
	}
	if s2.Valid {
		v := int(s2.Int64)
		m.Team2Score = &v
	}
	if m.Status, err = model.ParseMatchStatus(status); err != nil {
		return model.Match{}, err
	}
	if m.Phase, err = model.ParsePhase(phase); err != nil {
		return model.Match{}, err
	}
	if m.CreatedAt, err = parseTimeText(created); err != nil {
		return model.Match{}, err
	}
	return m, nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func (q sqlQueries) CreateMatch(ctx context.Context, m model.Match) (model.Match, error) {
	err := q.atomic(ctx, func(q sqlQueries) error {
		if _, err := q.GetTournament(ctx, m.TournamentID); err != nil {
			return err
		}
		for _, team := range []string{m.Team1ID, m.Team2ID} {
			if _, err := q.GetTeam(ctx, team); err != nil {
				return err
			}
		}
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		if m.Status == "" {
			m.Status = model.MatchPending
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now()
		}
		if err := q.queryRow(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM matches`).Scan(&m.Seq); err != nil {
			return fmt.Errorf("next match seq: %w", err)
		}
		_, err := q.exec(ctx, `
INSERT INTO matches (id, seq, tournament_id, team1_id, team2_id, team1_score, team2_score, winner_id,
  status, phase, round_num, cancelled_by_team_id, cancellation_reason, schedule_note, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, m.Seq, m.TournamentID, m.Team1ID, m.Team2ID, nullableInt(m.Team1Score), nullableInt(m.Team2Score),
			m.WinnerID, string(m.Status), string(m.Phase), m.Round, m.CancelledByTeamID, m.CancellationReason,
			m.ScheduleNote, timeText(m.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert match: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Match{}, err
	}
	return m, nil
}

func (q sqlQueries) GetMatch(ctx context.Context, id string) (model.Match, error) {
	m, err := scanMatch(q.queryRow(ctx, `SELECT `+matchColumns+` FROM matches m WHERE m.id = ?`, id))
	if err != nil {
		return model.Match{}, notFound(err, "match", id)
	}
	return m, nil
}

func (q sqlQueries) ListMatches(ctx context.Context, f MatchFilter) ([]model.Match, error) {
	var where []string
	var args []any
	if f.TournamentID != "" {
		where = append(where, "m.tournament_id = ?")
		args = append(args, f.TournamentID)
	}
	if f.TeamID != "" {
		where = append(where, "(m.team1_id = ? OR m.team2_id = ?)")
		args = append(args, f.TeamID, f.TeamID)
	}
	if f.Status != "" {
		where = append(where, "m.status = ?")
		args = append(args, string(f.Status))
	}
	if f.Phase != "" {
		where = append(where, "m.phase = ?")
		args = append(args, string(f.Phase))
	}
	if f.Unbooked {
		where = append(where, "NOT EXISTS (SELECT 1 FROM bookings b WHERE b.match_id = m.id)")
	}
	query := `SELECT ` + matchColumns + ` FROM matches m`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY m.seq"

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()
	var out []model.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (q sqlQueries) UpdateMatch(ctx context.Context, m model.Match) error {
	res, err := q.exec(ctx, `
UPDATE matches SET team1_score = ?, team2_score = ?, winner_id = ?, status = ?, phase = ?, round_num = ?,
  cancelled_by_team_id = ?, cancellation_reason = ?, schedule_note = ?
WHERE id = ?`,
		nullableInt(m.Team1Score), nullableInt(m.Team2Score), m.WinnerID, string(m.Status), string(m.Phase), m.Round,
		m.CancelledByTeamID, m.CancellationReason, m.ScheduleNote, m.ID)
	if err != nil {
		return fmt.Errorf("update match: %w", err)
	}
	return requireAffected(res, "match", m.ID)
}

// Bookings

const bookingColumns = `b.id, b.match_id, b.court_id, b.booking_date, b.start_minute, b.end_minute,
b.temperature, b.rain_probability, b.wind_speed, b.weather_condition, b.weather_suitable,
b.weather_checked_at, b.created_at`

const bookingOrder = ` ORDER BY b.booking_date, b.start_minute, c.created_at, c.id`

func scanBooking(s scanner) (model.Booking, error) {
	var b model.Booking
	var day, created string
	var temp, wind sql.NullFloat64
	var rain sql.NullInt64
	var condition string
	var suitable sql.NullBool
	var checked sql.NullString
	err := s.Scan(&b.ID, &b.MatchID, &b.CourtID, &day, &b.Start, &b.End,
		&temp, &rain, &wind, &condition, &suitable, &checked, &created)
	if err != nil {
		return model.Booking{}, err
	}
	if b.Date, err = model.ParseDate(day); err != nil {
		return model.Booking{}, err
	}
	if b.CreatedAt, err = parseTimeText(created); err != nil {
		return model.Booking{}, err
	}
	if checked.Valid {
		w := &model.Weather{Condition: condition, Suitable: suitable.Bool}
		if temp.Valid {
			v := temp.Float64
			w.Temperature = &v
		}
		if rain.Valid {
			v := int(rain.Int64)
			w.RainProbability = &v
		}
		if wind.Valid {
			v := wind.Float64
			w.WindSpeed = &v
		}
		if w.CheckedAt, err = parseTimeText(checked.String); err != nil {
			return model.Booking{}, err
		}
		b.Weather = w
	}
	return b, nil
}

// weatherArgs flattens a snapshot into temperature, rain, wind, condition,
// suitable and checked_at column values.
func weatherArgs(w *model.Weather) []any {
	if w == nil {
		return []any{nil, nil, nil, "", nil, nil}
	}
	var temp, rain, wind any
	if w.Temperature != nil {
		temp = *w.Temperature
	}
	if w.RainProbability != nil {
		rain = int64(*w.RainProbability)
	}
	if w.WindSpeed != nil {
		wind = *w.WindSpeed
	}
	return []any{temp, rain, wind, w.Condition, w.Suitable, timeText(w.CheckedAt)}
}

func (q sqlQueries) listBookings(ctx context.Context, query string, args ...any) ([]model.Booking, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (q sqlQueries) CreateBooking(ctx context.Context, b model.Booking) (model.Booking, error) {
	err := q.atomic(ctx, func(q sqlQueries) error {
		if _, err := q.GetMatch(ctx, b.MatchID); err != nil {
			return err
		}
		if _, err := q.GetCourt(ctx, b.CourtID); err != nil {
			return err
		}
		n, err := q.count(ctx, `SELECT COUNT(*) FROM bookings WHERE match_id = ?`, b.MatchID)
		if err != nil {
			return fmt.Errorf("check match booking: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("match %s: %w", b.MatchID, ErrMatchAlreadyBooked)
		}
		if b.ID == "" {
			b.ID = uuid.NewString()
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = now()
		}
		b.Date = model.DateOf(b.Date)
		args := []any{b.ID, b.MatchID, b.CourtID, model.FormatDate(b.Date), int(b.Start), int(b.End)}
		args = append(args, weatherArgs(b.Weather)...)
		args = append(args, timeText(b.CreatedAt))
		_, err = q.exec(ctx, `
INSERT INTO bookings (id, match_id, court_id, booking_date, start_minute, end_minute,
  temperature, rain_probability, wind_speed, weather_condition, weather_suitable, weather_checked_at, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
		if err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Booking{}, err
	}
	return b, nil
}

func (q sqlQueries) GetBooking(ctx context.Context, id string) (model.Booking, error) {
	b, err := scanBooking(q.queryRow(ctx, `SELECT `+bookingColumns+` FROM bookings b WHERE b.id = ?`, id))
	if err != nil {
		return model.Booking{}, notFound(err, "booking", id)
	}
	return b, nil
}

func (q sqlQueries) BookingForMatch(ctx context.Context, matchID string) (model.Booking, error) {
	b, err := scanBooking(q.queryRow(ctx, `SELECT `+bookingColumns+` FROM bookings b WHERE b.match_id = ?`, matchID))
	if err != nil {
		return model.Booking{}, notFound(err, "booking for match", matchID)
	}
	return b, nil
}

func (q sqlQueries) UpdateBooking(ctx context.Context, b model.Booking) error {
	return q.atomic(ctx, func(q sqlQueries) error {
		if _, err := q.GetCourt(ctx, b.CourtID); err != nil {
			return err
		}
		args := []any{b.CourtID, model.FormatDate(b.Date), int(b.Start), int(b.End)}
		args = append(args, weatherArgs(b.Weather)...)
		args = append(args, b.ID)
		res, err := q.exec(ctx, `
UPDATE bookings SET court_id = ?, booking_date = ?, start_minute = ?, end_minute = ?,
  temperature = ?, rain_probability = ?, wind_speed = ?, weather_condition = ?, weather_suitable = ?,
  weather_checked_at = ?
WHERE id = ?`, args...)
		if err != nil {
			return fmt.Errorf("update booking: %w", err)
		}
		return requireAffected(res, "booking", b.ID)
	})
}

func (q sqlQueries) DeleteBooking(ctx context.Context, id string) error {
	res, err := q.exec(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	return requireAffected(res, "booking", id)
}

func (q sqlQueries) BookingsOnCourt(ctx context.Context, courtID string, date time.Time) ([]model.Booking, error) {
	return q.listBookings(ctx, `SELECT `+bookingColumns+` FROM bookings b
JOIN courts c ON c.id = b.court_id
WHERE b.court_id = ? AND b.booking_date = ?`+bookingOrder, courtID, model.FormatDate(date))
}

func (q sqlQueries) BookingsForTeam(ctx context.Context, teamID string, from, to time.Time) ([]model.Booking, error) {
	return q.listBookings(ctx, `SELECT `+bookingColumns+` FROM bookings b
JOIN matches m ON m.id = b.match_id
JOIN courts c ON c.id = b.court_id
WHERE (m.team1_id = ? OR m.team2_id = ?) AND b.booking_date >= ? AND b.booking_date <= ?`+bookingOrder,
		teamID, teamID, model.FormatDate(from), model.FormatDate(to))
}

func (q sqlQueries) ListBookings(ctx context.Context, f BookingFilter) ([]model.Booking, error) {
	var where []string
	var args []any
	if f.TournamentID != "" {
		where = append(where, "m.tournament_id = ?")
		args = append(args, f.TournamentID)
	}
	if !f.From.IsZero() {
		where = append(where, "b.booking_date >= ?")
		args = append(args, model.FormatDate(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "b.booking_date <= ?")
		args = append(args, model.FormatDate(f.To))
	}
	query := `SELECT ` + bookingColumns + ` FROM bookings b
JOIN matches m ON m.id = b.match_id
JOIN courts c ON c.id = b.court_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	return q.listBookings(ctx, query+bookingOrder, args...)
}
