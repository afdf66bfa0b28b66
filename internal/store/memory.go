package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/derekprior/courtsched/internal/model"
	"github.com/google/uuid"
)

// MemoryStore keeps everything in process. A transaction takes the write
// lock for its whole lifetime and works on a private copy of the state,
// which replaces the live state on Commit.
type MemoryStore struct {
	memQueries

	mu    sync.RWMutex
	state *memState
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{state: newMemState()}
	s.memQueries = memQueries{
		state: func() *memState { return s.state },
		lock:  &s.mu,
	}
	return s
}

func (s *MemoryStore) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	tx := &memTx{store: s, work: s.state.clone()}
	tx.memQueries = memQueries{
		state: func() *memState { return tx.work },
		lock:  nopLocker{},
	}
	return tx, nil
}

func (s *MemoryStore) Close() error { return nil }

type memTx struct {
	memQueries

	store *MemoryStore
	work  *memState
	done  bool
}

func (tx *memTx) Commit() error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	tx.store.state = tx.work
	tx.store.mu.Unlock()
	return nil
}

func (tx *memTx) Rollback() error {
	if tx.done {
		return ErrTxDone
	}
	tx.done = true
	tx.store.mu.Unlock()
	return nil
}

type rwLocker interface {
	Lock()
	Unlock()
	RLock()
	RUnlock()
}

// nopLocker is used inside a transaction, which already holds the store lock.
type nopLocker struct{}

func (nopLocker) Lock()    {}
func (nopLocker) Unlock()  {}
func (nopLocker) RLock()   {}
func (nopLocker) RUnlock() {}

// dayKey indexes bookings by an owner (court or team) and calendar day.
type dayKey struct {
	id  string
	day string
}

func dayOf(t time.Time) string {
	return model.FormatDate(t)
}

type memState struct {
	seq int64 // insertion counter, used for stable ordering
	ord map[string]int64

	players     map[string]model.Player
	teams       map[string]model.Team
	playerTeams map[string][]string

	courts      map[string]model.Court
	tournaments map[string]model.Tournament
	entrants    map[string][]string // tournament -> team IDs in registration order

	matches      map[string]model.Match
	matchSeq     int64
	bookings     map[string]model.Booking
	matchBooking map[string]string

	courtDays map[dayKey][]string
	teamDays  map[string]map[string][]string // team -> day -> booking IDs
}

func newMemState() *memState {
	return &memState{
		ord:          make(map[string]int64),
		players:      make(map[string]model.Player),
		teams:        make(map[string]model.Team),
		playerTeams:  make(map[string][]string),
		courts:       make(map[string]model.Court),
		tournaments:  make(map[string]model.Tournament),
		entrants:     make(map[string][]string),
		matches:      make(map[string]model.Match),
		bookings:     make(map[string]model.Booking),
		matchBooking: make(map[string]string),
		courtDays:    make(map[dayKey][]string),
		teamDays:     make(map[string]map[string][]string),
	}
}

func (st *memState) clone() *memState {
	c := &memState{
		seq:          st.seq,
		matchSeq:     st.matchSeq,
		ord:          make(map[string]int64, len(st.ord)),
		players:      make(map[string]model.Player, len(st.players)),
		teams:        make(map[string]model.Team, len(st.teams)),
		playerTeams:  make(map[string][]string, len(st.playerTeams)),
		courts:       make(map[string]model.Court, len(st.courts)),
		tournaments:  make(map[string]model.Tournament, len(st.tournaments)),
		entrants:     make(map[string][]string, len(st.entrants)),
		matches:      make(map[string]model.Match, len(st.matches)),
		bookings:     make(map[string]model.Booking, len(st.bookings)),
		matchBooking: make(map[string]string, len(st.matchBooking)),
		courtDays:    make(map[dayKey][]string, len(st.courtDays)),
		teamDays:     make(map[string]map[string][]string, len(st.teamDays)),
	}
	for k, v := range st.ord {
		c.ord[k] = v
	}
	for k, v := range st.players {
		c.players[k] = v
	}
	for k, v := range st.teams {
		v.PlayerIDs = append([]string(nil), v.PlayerIDs...)
		c.teams[k] = v
	}
	for k, v := range st.playerTeams {
		c.playerTeams[k] = append([]string(nil), v...)
	}
	for k, v := range st.courts {
		c.courts[k] = v
	}
	for k, v := range st.tournaments {
		c.tournaments[k] = v
	}
	for k, v := range st.entrants {
		c.entrants[k] = append([]string(nil), v...)
	}
	for k, v := range st.matches {
		c.matches[k] = v
	}
	for k, v := range st.bookings {
		c.bookings[k] = v
	}
	for k, v := range st.matchBooking {
		c.matchBooking[k] = v
	}
	for k, v := range st.courtDays {
		c.courtDays[k] = append([]string(nil), v...)
	}
	for team, days := range st.teamDays {
		cd := make(map[string][]string, len(days))
		for d, ids := range days {
			cd[d] = append([]string(nil), ids...)
		}
		c.teamDays[team] = cd
	}
	return c
}

func (st *memState) nextOrd(id string) {
	st.seq++
	st.ord[id] = st.seq
}

func (st *memState) byOrd(ids []string) {
	sort.Slice(ids, func(i, j int) bool { return st.ord[ids[i]] < st.ord[ids[j]] })
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func copyTeam(t model.Team) model.Team {
	t.PlayerIDs = append([]string(nil), t.PlayerIDs...)
	return t
}

// indexBooking adds b to the court and team day indexes.
func (st *memState) indexBooking(b model.Booking) {
	day := dayOf(b.Date)
	ck := dayKey{b.CourtID, day}
	st.courtDays[ck] = append(st.courtDays[ck], b.ID)

	m := st.matches[b.MatchID]
	for _, team := range []string{m.Team1ID, m.Team2ID} {
		days := st.teamDays[team]
		if days == nil {
			days = make(map[string][]string)
			st.teamDays[team] = days
		}
		days[day] = append(days[day], b.ID)
	}
}

func (st *memState) unindexBooking(b model.Booking) {
	day := dayOf(b.Date)
	ck := dayKey{b.CourtID, day}
	if ids := removeID(st.courtDays[ck], b.ID); len(ids) > 0 {
		st.courtDays[ck] = ids
	} else {
		delete(st.courtDays, ck)
	}

	m := st.matches[b.MatchID]
	for _, team := range []string{m.Team1ID, m.Team2ID} {
		days := st.teamDays[team]
		if days == nil {
			continue
		}
		if ids := removeID(days[day], b.ID); len(ids) > 0 {
			days[day] = ids
		} else {
			delete(days, day)
		}
	}
}

func (st *memState) bookingList(ids []string) []model.Booking {
	out := make([]model.Booking, 0, len(ids))
	for _, id := range ids {
		out = append(out, st.bookings[id])
	}
	sortBookings(out, st.courtOrder)
	return out
}

func (st *memState) courtOrder(id string) int64 { return st.ord[id] }

// sortBookings orders by date, start time, then court.
func sortBookings(bs []model.Booking, courtRank func(string) int64) {
	sort.SliceStable(bs, func(i, j int) bool {
		a, b := bs[i], bs[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return courtRank(a.CourtID) < courtRank(b.CourtID)
	})
}

// memQueries implements Queries over whichever state the accessor returns.
type memQueries struct {
	state func() *memState
	lock  rwLocker
}

func (q memQueries) read() (*memState, func()) {
	q.lock.RLock()
	return q.state(), q.lock.RUnlock
}

func (q memQueries) write() (*memState, func()) {
	q.lock.Lock()
	return q.state(), q.lock.Unlock
}

func (q memQueries) CreatePlayer(ctx context.Context, p model.Player) (model.Player, error) {
	st, unlock := q.write()
	defer unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, ok := st.players[p.ID]; ok {
		return model.Player{}, fmt.Errorf("player %s: %w", p.ID, ErrDuplicate)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	st.players[p.ID] = p
	st.nextOrd(p.ID)
	return p, nil
}

func (q memQueries) GetPlayer(ctx context.Context, id string) (model.Player, error) {
	st, unlock := q.read()
	defer unlock()
	p, ok := st.players[id]
	if !ok {
		return model.Player{}, fmt.Errorf("player %s: %w", id, ErrNotFound)
	}
	return p, nil
}

func (q memQueries) ListPlayers(ctx context.Context) ([]model.Player, error) {
	st, unlock := q.read()
	defer unlock()
	out := make([]model.Player, 0, len(st.players))
	for _, p := range st.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return st.ord[out[i].ID] < st.ord[out[j].ID] })
	return out, nil
}

func (st *memState) resolveMembers(playerIDs []string) ([]model.Player, error) {
	if err := checkMembers(playerIDs); err != nil {
		return nil, err
	}
	players := make([]model.Player, 0, len(playerIDs))
	for _, id := range playerIDs {
		p, ok := st.players[id]
		if !ok {
			return nil, fmt.Errorf("player %s: %w", id, ErrInvalidTeam)
		}
		players = append(players, p)
	}
	return players, nil
}

func (q memQueries) CreateTeam(ctx context.Context, t model.Team) (model.Team, error) {
	st, unlock := q.write()
	defer unlock()
	players, err := st.resolveMembers(t.PlayerIDs)
	if err != nil {
		return model.Team{}, err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if _, ok := st.teams[t.ID]; ok {
		return model.Team{}, fmt.Errorf("team %s: %w", t.ID, ErrDuplicate)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	t.PlayerIDs = append([]string(nil), t.PlayerIDs...)
	t.Ranking = teamRanking(players)
	st.teams[t.ID] = t
	st.nextOrd(t.ID)
	for _, pid := range t.PlayerIDs {
		st.playerTeams[pid] = append(st.playerTeams[pid], t.ID)
	}
	return copyTeam(t), nil
}

func (q memQueries) GetTeam(ctx context.Context, id string) (model.Team, error) {
	st, unlock := q.read()
	defer unlock()
	t, ok := st.teams[id]
	if !ok {
		return model.Team{}, fmt.Errorf("team %s: %w", id, ErrNotFound)
	}
	return copyTeam(t), nil
}

func (q memQueries) ListTeams(ctx context.Context) ([]model.Team, error) {
	st, unlock := q.read()
	defer unlock()
	ids := make([]string, 0, len(st.teams))
	for id := range st.teams {
		ids = append(ids, id)
	}
	st.byOrd(ids)
	out := make([]model.Team, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyTeam(st.teams[id]))
	}
	return out, nil
}

func (q memQueries) SetTeamMembers(ctx context.Context, teamID string, playerIDs []string) (model.Team, error) {
	st, unlock := q.write()
	defer unlock()
	t, ok := st.teams[teamID]
	if !ok {
		return model.Team{}, fmt.Errorf("team %s: %w", teamID, ErrNotFound)
	}
	players, err := st.resolveMembers(playerIDs)
	if err != nil {
		return model.Team{}, err
	}
	for _, pid := range t.PlayerIDs {
		st.playerTeams[pid] = removeID(st.playerTeams[pid], teamID)
	}
	t.PlayerIDs = append([]string(nil), playerIDs...)
	t.Ranking = teamRanking(players)
	st.teams[teamID] = t
	for _, pid := range t.PlayerIDs {
		st.playerTeams[pid] = append(st.playerTeams[pid], teamID)
	}
	return copyTeam(t), nil
}

func (q memQueries) TeamIDsForPlayer(ctx context.Context, playerID string) ([]string, error) {
	st, unlock := q.read()
	defer unlock()
	return append([]string(nil), st.playerTeams[playerID]...), nil
}

func (q memQueries) CreateCourt(ctx context.Context, c model.Court) (model.Court, error) {
	st, unlock := q.write()
	defer unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, ok := st.courts[c.ID]; ok {
		return model.Court{}, fmt.Errorf("court %s: %w", c.ID, ErrDuplicate)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	st.courts[c.ID] = c
	st.nextOrd(c.ID)
	return c, nil
}

func (q memQueries) GetCourt(ctx context.Context, id string) (model.Court, error) {
	st, unlock := q.read()
	defer unlock()
	c, ok := st.courts[id]
	if !ok {
		return model.Court{}, fmt.Errorf("court %s: %w", id, ErrNotFound)
	}
	return c, nil
}

func (q memQueries) ListCourts(ctx context.Context, f CourtFilter) ([]model.Court, error) {
	st, unlock := q.read()
	defer unlock()
	var out []model.Court
	for _, c := range st.courts {
		if f.Indoor != nil && c.IsIndoor != *f.Indoor {
			continue
		}
		if f.Available != nil && c.IsAvailable != *f.Available {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return st.ord[out[i].ID] < st.ord[out[j].ID] })
	return out, nil
}

func (q memQueries) UpdateCourt(ctx context.Context, c model.Court) error {
	st, unlock := q.write()
	defer unlock()
	old, ok := st.courts[c.ID]
	if !ok {
		return fmt.Errorf("court %s: %w", c.ID, ErrNotFound)
	}
	c.CreatedAt = old.CreatedAt
	st.courts[c.ID] = c
	return nil
}

func (q memQueries) DeleteCourt(ctx context.Context, id string) error {
	st, unlock := q.write()
	defer unlock()
	if _, ok := st.courts[id]; !ok {
		return fmt.Errorf("court %s: %w", id, ErrNotFound)
	}
	for k := range st.courtDays {
		if k.id == id {
			return fmt.Errorf("court %s has bookings: %w", id, ErrInUse)
		}
	}
	delete(st.courts, id)
	delete(st.ord, id)
	return nil
}

func (q memQueries) CreateTournament(ctx context.Context, t model.Tournament) (model.Tournament, error) {
	st, unlock := q.write()
	defer unlock()
	for _, existing := range st.tournaments {
		if existing.Name == t.Name {
			return model.Tournament{}, fmt.Errorf("tournament %q: %w", t.Name, ErrDuplicate)
		}
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = model.TournamentWaiting
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	st.tournaments[t.ID] = t
	st.nextOrd(t.ID)
	return t, nil
}

func (q memQueries) GetTournament(ctx context.Context, id string) (model.Tournament, error) {
	st, unlock := q.read()
	defer unlock()
	t, ok := st.tournaments[id]
	if !ok {
		return model.Tournament{}, fmt.Errorf("tournament %s: %w", id, ErrNotFound)
	}
	return t, nil
}

func (q memQueries) ListTournaments(ctx context.Context) ([]model.Tournament, error) {
	st, unlock := q.read()
	defer unlock()
	out := make([]model.Tournament, 0, len(st.tournaments))
	for _, t := range st.tournaments {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return st.ord[out[i].ID] < st.ord[out[j].ID] })
	return out, nil
}

func (q memQueries) UpdateTournamentStatus(ctx context.Context, id string, status model.TournamentStatus) error {
	st, unlock := q.write()
	defer unlock()
	t, ok := st.tournaments[id]
	if !ok {
		return fmt.Errorf("tournament %s: %w", id, ErrNotFound)
	}
	t.Status = status
	st.tournaments[id] = t
	return nil
}

func (q memQueries) RegisterTeam(ctx context.Context, tournamentID, teamID string) error {
	st, unlock := q.write()
	defer unlock()
	if _, ok := st.tournaments[tournamentID]; !ok {
		return fmt.Errorf("tournament %s: %w", tournamentID, ErrNotFound)
	}
	if _, ok := st.teams[teamID]; !ok {
		return fmt.Errorf("team %s: %w", teamID, ErrNotFound)
	}
	for _, id := range st.entrants[tournamentID] {
		if id == teamID {
			return ErrAlreadyRegistered
		}
	}
	st.entrants[tournamentID] = append(st.entrants[tournamentID], teamID)
	return nil
}

func (q memQueries) ListTournamentTeams(ctx context.Context, tournamentID string) ([]model.Team, error) {
	st, unlock := q.read()
	defer unlock()
	if _, ok := st.tournaments[tournamentID]; !ok {
		return nil, fmt.Errorf("tournament %s: %w", tournamentID, ErrNotFound)
	}
	ids := st.entrants[tournamentID]
	out := make([]model.Team, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyTeam(st.teams[id]))
	}
	return out, nil
}

func (q memQueries) CreateMatch(ctx context.Context, m model.Match) (model.Match, error) {
	st, unlock := q.write()
	defer unlock()
	if _, ok := st.tournaments[m.TournamentID]; !ok {
		return model.Match{}, fmt.Errorf("tournament %s: %w", m.TournamentID, ErrNotFound)
	}
	for _, team := range []string{m.Team1ID, m.Team2ID} {
		if _, ok := st.teams[team]; !ok {
			return model.Match{}, fmt.Errorf("team %s: %w", team, ErrNotFound)
		}
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if _, ok := st.matches[m.ID]; ok {
		return model.Match{}, fmt.Errorf("match %s: %w", m.ID, ErrDuplicate)
	}
	if m.Status == "" {
		m.Status = model.MatchPending
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	st.matchSeq++
	m.Seq = st.matchSeq
	st.matches[m.ID] = m
	return m, nil
}

func (q memQueries) GetMatch(ctx context.Context, id string) (model.Match, error) {
	st, unlock := q.read()
	defer unlock()
	m, ok := st.matches[id]
	if !ok {
		return model.Match{}, fmt.Errorf("match %s: %w", id, ErrNotFound)
	}
	return m, nil
}

func (q memQueries) ListMatches(ctx context.Context, f MatchFilter) ([]model.Match, error) {
	st, unlock := q.read()
	defer unlock()
	var out []model.Match
	for _, m := range st.matches {
		if f.TournamentID != "" && m.TournamentID != f.TournamentID {
			continue
		}
		if f.TeamID != "" && !m.HasTeam(f.TeamID) {
			continue
		}
		if f.Status != "" && m.Status != f.Status {
			continue
		}
		if f.Phase != "" && m.Phase != f.Phase {
			continue
		}
		if f.Unbooked {
			if _, booked := st.matchBooking[m.ID]; booked {
				continue
			}
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (q memQueries) UpdateMatch(ctx context.Context, m model.Match) error {
	st, unlock := q.write()
	defer unlock()
	old, ok := st.matches[m.ID]
	if !ok {
		return fmt.Errorf("match %s: %w", m.ID, ErrNotFound)
	}
	// teams, tournament and ordering are fixed at creation
	m.Seq = old.Seq
	m.TournamentID = old.TournamentID
	m.Team1ID = old.Team1ID
	m.Team2ID = old.Team2ID
	m.CreatedAt = old.CreatedAt
	st.matches[m.ID] = m
	return nil
}

func (q memQueries) CreateBooking(ctx context.Context, b model.Booking) (model.Booking, error) {
	st, unlock := q.write()
	defer unlock()
	if _, ok := st.matches[b.MatchID]; !ok {
		return model.Booking{}, fmt.Errorf("match %s: %w", b.MatchID, ErrNotFound)
	}
	if _, ok := st.courts[b.CourtID]; !ok {
		return model.Booking{}, fmt.Errorf("court %s: %w", b.CourtID, ErrNotFound)
	}
	if _, ok := st.matchBooking[b.MatchID]; ok {
		return model.Booking{}, fmt.Errorf("match %s: %w", b.MatchID, ErrMatchAlreadyBooked)
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	b.Date = model.DateOf(b.Date)
	st.bookings[b.ID] = b
	st.matchBooking[b.MatchID] = b.ID
	st.indexBooking(b)
	return b, nil
}

func (q memQueries) GetBooking(ctx context.Context, id string) (model.Booking, error) {
	st, unlock := q.read()
	defer unlock()
	b, ok := st.bookings[id]
	if !ok {
		return model.Booking{}, fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	return b, nil
}

func (q memQueries) BookingForMatch(ctx context.Context, matchID string) (model.Booking, error) {
	st, unlock := q.read()
	defer unlock()
	id, ok := st.matchBooking[matchID]
	if !ok {
		return model.Booking{}, fmt.Errorf("booking for match %s: %w", matchID, ErrNotFound)
	}
	return st.bookings[id], nil
}

func (q memQueries) UpdateBooking(ctx context.Context, b model.Booking) error {
	st, unlock := q.write()
	defer unlock()
	old, ok := st.bookings[b.ID]
	if !ok {
		return fmt.Errorf("booking %s: %w", b.ID, ErrNotFound)
	}
	if _, ok := st.courts[b.CourtID]; !ok {
		return fmt.Errorf("court %s: %w", b.CourtID, ErrNotFound)
	}
	b.MatchID = old.MatchID
	b.CreatedAt = old.CreatedAt
	b.Date = model.DateOf(b.Date)
	st.unindexBooking(old)
	st.bookings[b.ID] = b
	st.indexBooking(b)
	return nil
}

func (q memQueries) DeleteBooking(ctx context.Context, id string) error {
	st, unlock := q.write()
	defer unlock()
	b, ok := st.bookings[id]
	if !ok {
		return fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	st.unindexBooking(b)
	delete(st.bookings, id)
	delete(st.matchBooking, b.MatchID)
	return nil
}

func (q memQueries) BookingsOnCourt(ctx context.Context, courtID string, date time.Time) ([]model.Booking, error) {
	st, unlock := q.read()
	defer unlock()
	return st.bookingList(st.courtDays[dayKey{courtID, dayOf(date)}]), nil
}

func (q memQueries) BookingsForTeam(ctx context.Context, teamID string, from, to time.Time) ([]model.Booking, error) {
	st, unlock := q.read()
	defer unlock()
	lo, hi := dayOf(from), dayOf(to)
	var ids []string
	for day, dayIDs := range st.teamDays[teamID] {
		// YYYY-MM-DD strings order the same way as the dates they name.
		if day < lo || day > hi {
			continue
		}
		ids = append(ids, dayIDs...)
	}
	return st.bookingList(ids), nil
}

func (q memQueries) ListBookings(ctx context.Context, f BookingFilter) ([]model.Booking, error) {
	st, unlock := q.read()
	defer unlock()
	var ids []string
	for id, b := range st.bookings {
		if f.TournamentID != "" && st.matches[b.MatchID].TournamentID != f.TournamentID {
			continue
		}
		if !f.From.IsZero() && b.Date.Before(model.DateOf(f.From)) {
			continue
		}
		if !f.To.IsZero() && b.Date.After(model.DateOf(f.To)) {
			continue
		}
		ids = append(ids, id)
	}
	return st.bookingList(ids), nil
}
