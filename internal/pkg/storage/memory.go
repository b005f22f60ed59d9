package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps the whole ledger in process memory. It backs tests and
// the -dev mode of the bot; nothing survives a restart. A single mutex
// serializes every transaction, which trivially satisfies the per-row
// atomicity contract of Store.
type MemoryStore struct {
	mu sync.Mutex
	s  memState
}

type memState struct {
	players    map[int64]*PlayerRow
	challenges map[int64]*ChallengeRow
	nextID     int64
}

// NewMemoryStore creates an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		s: memState{
			players:    make(map[int64]*PlayerRow),
			challenges: make(map[int64]*ChallengeRow),
			nextID:     1,
		},
	}
}

func (m *MemoryStore) WithTx(ctx context.Context, fn func(tx Ops) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Snapshot-and-restore gives the same all-or-nothing contract as a
	// database rollback: mutations made before fn fails never become visible.
	snapshot := m.s.clone()
	if err := fn(&m.s); err != nil {
		m.s = snapshot
		return err
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// The locked public methods delegate to memState, which is also what a
// transaction sees.

func (m *MemoryStore) CreatePlayer(ctx context.Context, row *PlayerRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.CreatePlayer(ctx, row)
}

func (m *MemoryStore) GetPlayer(ctx context.Context, id int64) (*PlayerRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.GetPlayer(ctx, id)
}

func (m *MemoryStore) GetPlayerByUsername(ctx context.Context, username string) (*PlayerRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.GetPlayerByUsername(ctx, username)
}

func (m *MemoryStore) AdjustChips(ctx context.Context, id int64, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.AdjustChips(ctx, id, delta)
}

func (m *MemoryStore) IncrementAbortedCounter(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.IncrementAbortedCounter(ctx, id)
}

func (m *MemoryStore) GiveAllPlayersChips(ctx context.Context, amount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.GiveAllPlayersChips(ctx, amount)
}

func (m *MemoryStore) ResetAllCurrentChips(ctx context.Context, amount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.ResetAllCurrentChips(ctx, amount)
}

func (m *MemoryStore) TopPlayersByCurrentChips(ctx context.Context, limit int) ([]PlayerRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.TopPlayersByCurrentChips(ctx, limit)
}

func (m *MemoryStore) TopPlayersByTotalChips(ctx context.Context, limit int) ([]PlayerRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.TopPlayersByTotalChips(ctx, limit)
}

func (m *MemoryStore) Winrate(ctx context.Context, id int64) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.Winrate(ctx, id)
}

func (m *MemoryStore) AllocateChallengeID(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.AllocateChallengeID(ctx)
}

func (m *MemoryStore) CreateChallenge(ctx context.Context, row *ChallengeRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.CreateChallenge(ctx, row)
}

func (m *MemoryStore) GetChallenge(ctx context.Context, id int64) (*ChallengeRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.GetChallenge(ctx, id)
}

func (m *MemoryStore) GetChallengeByExternalRef(ctx context.Context, ref int64) (*ChallengeRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.GetChallengeByExternalRef(ctx, ref)
}

func (m *MemoryStore) ListChallengesByState(ctx context.Context, state string) ([]ChallengeRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.ListChallengesByState(ctx, state)
}

func (m *MemoryStore) ListTimedOutChallenges(ctx context.Context, state string, now time.Time) ([]ChallengeRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.ListTimedOutChallenges(ctx, state, now)
}

func (m *MemoryStore) SetChallengeState(ctx context.Context, id int64, state string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.SetChallengeState(ctx, id, state)
}

func (m *MemoryStore) SetChallengeAcceptedBy(ctx context.Context, id, playerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.SetChallengeAcceptedBy(ctx, id, playerID)
}

func (m *MemoryStore) SetChallengeGameName(ctx context.Context, id int64, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.SetChallengeGameName(ctx, id, name)
}

func (m *MemoryStore) SetChallengeWinner(ctx context.Context, id, playerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.SetChallengeWinner(ctx, id, playerID)
}

func (m *MemoryStore) SetChallengeExternalRef(ctx context.Context, id, ref int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.SetChallengeExternalRef(ctx, id, ref)
}

// memState implements Ops without locking; MemoryStore and WithTx hold the
// mutex around it.
var _ Ops = (*memState)(nil)

func (s *memState) clone() memState {
	players := make(map[int64]*PlayerRow, len(s.players))
	for id, row := range s.players {
		cp := *row
		players[id] = &cp
	}
	challenges := make(map[int64]*ChallengeRow, len(s.challenges))
	for id, row := range s.challenges {
		cp := *row
		challenges[id] = &cp
	}
	return memState{players: players, challenges: challenges, nextID: s.nextID}
}

func (s *memState) CreatePlayer(ctx context.Context, row *PlayerRow) error {
	if _, ok := s.players[row.ID]; ok {
		return ErrDuplicate
	}
	cp := *row
	s.players[row.ID] = &cp
	return nil
}

func (s *memState) GetPlayer(ctx context.Context, id int64) (*PlayerRow, error) {
	row, ok := s.players[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (s *memState) GetPlayerByUsername(ctx context.Context, username string) (*PlayerRow, error) {
	for _, row := range s.players {
		if row.Username == username {
			cp := *row
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memState) AdjustChips(ctx context.Context, id int64, delta int) error {
	row, ok := s.players[id]
	if !ok {
		return ErrNotFound
	}
	if row.CurrentChips+delta < 0 {
		return ErrNegativeBalance
	}
	row.CurrentChips += delta
	row.TotalChips += delta
	return nil
}

func (s *memState) IncrementAbortedCounter(ctx context.Context, id int64) error {
	row, ok := s.players[id]
	if !ok {
		return ErrNotFound
	}
	row.AbortedGames++
	return nil
}

func (s *memState) GiveAllPlayersChips(ctx context.Context, amount int) error {
	for _, row := range s.players {
		row.CurrentChips += amount
		row.TotalChips += amount
	}
	return nil
}

func (s *memState) ResetAllCurrentChips(ctx context.Context, amount int) error {
	for _, row := range s.players {
		row.CurrentChips = amount
	}
	return nil
}

func (s *memState) topPlayers(limit int, less func(a, b *PlayerRow) bool) []PlayerRow {
	all := make([]*PlayerRow, 0, len(s.players))
	for _, row := range s.players {
		all = append(all, row)
	}
	sort.Slice(all, func(i, j int) bool { return less(all[i], all[j]) })
	if limit > len(all) {
		limit = len(all)
	}
	out := make([]PlayerRow, limit)
	for i := 0; i < limit; i++ {
		out[i] = *all[i]
	}
	return out
}

func (s *memState) TopPlayersByCurrentChips(ctx context.Context, limit int) ([]PlayerRow, error) {
	return s.topPlayers(limit, func(a, b *PlayerRow) bool {
		if a.CurrentChips != b.CurrentChips {
			return a.CurrentChips > b.CurrentChips
		}
		return a.ID < b.ID
	}), nil
}

func (s *memState) TopPlayersByTotalChips(ctx context.Context, limit int) ([]PlayerRow, error) {
	return s.topPlayers(limit, func(a, b *PlayerRow) bool {
		if a.TotalChips != b.TotalChips {
			return a.TotalChips > b.TotalChips
		}
		return a.ID < b.ID
	}), nil
}

func (s *memState) Winrate(ctx context.Context, id int64) (int, int, error) {
	wins, played := 0, 0
	for _, ch := range s.challenges {
		participant := ch.AuthorID == id || (ch.AcceptedBy != nil && *ch.AcceptedBy == id)
		if !participant {
			continue
		}
		if ch.State == "created" || ch.State == "aborted" {
			continue
		}
		played++
		if ch.Winner != nil && *ch.Winner == id {
			wins++
		}
	}
	return wins, played, nil
}

func (s *memState) AllocateChallengeID(ctx context.Context) (int64, error) {
	id := s.nextID
	s.nextID++
	return id, nil
}

func (s *memState) CreateChallenge(ctx context.Context, row *ChallengeRow) error {
	if _, ok := s.challenges[row.ID]; ok {
		return ErrDuplicate
	}
	cp := *row
	s.challenges[row.ID] = &cp
	return nil
}

func (s *memState) GetChallenge(ctx context.Context, id int64) (*ChallengeRow, error) {
	row, ok := s.challenges[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (s *memState) GetChallengeByExternalRef(ctx context.Context, ref int64) (*ChallengeRow, error) {
	for _, row := range s.challenges {
		if row.ExternalRef != nil && *row.ExternalRef == ref {
			cp := *row
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memState) ListChallengesByState(ctx context.Context, state string) ([]ChallengeRow, error) {
	var out []ChallengeRow
	for _, row := range s.challenges {
		if row.State == state {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memState) ListTimedOutChallenges(ctx context.Context, state string, now time.Time) ([]ChallengeRow, error) {
	var out []ChallengeRow
	for _, row := range s.challenges {
		if row.State == state && !row.TimeoutAt.After(now) {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memState) setChallenge(id int64, mutate func(*ChallengeRow)) error {
	row, ok := s.challenges[id]
	if !ok {
		return ErrNotFound
	}
	mutate(row)
	return nil
}

func (s *memState) SetChallengeState(ctx context.Context, id int64, state string) error {
	return s.setChallenge(id, func(row *ChallengeRow) { row.State = state })
}

func (s *memState) SetChallengeAcceptedBy(ctx context.Context, id, playerID int64) error {
	return s.setChallenge(id, func(row *ChallengeRow) { row.AcceptedBy = &playerID })
}

func (s *memState) SetChallengeGameName(ctx context.Context, id int64, name string) error {
	return s.setChallenge(id, func(row *ChallengeRow) { row.GameName = &name })
}

func (s *memState) SetChallengeWinner(ctx context.Context, id, playerID int64) error {
	return s.setChallenge(id, func(row *ChallengeRow) { row.Winner = &playerID })
}

func (s *memState) SetChallengeExternalRef(ctx context.Context, id, ref int64) error {
	return s.setChallenge(id, func(row *ChallengeRow) { row.ExternalRef = &ref })
}
