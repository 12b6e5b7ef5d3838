package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/freeeve/dice-odds/api/internal/model"
	"github.com/freeeve/dice-odds/api/pkg/dice"
)

// mockSessionStore implements repository.SessionStore in memory.
type mockSessionStore struct {
	sessions map[string]model.BattleSession
	saves    int
	err      error
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{sessions: make(map[string]model.BattleSession)}
}

func (m *mockSessionStore) Save(_ context.Context, s *model.BattleSession) error {
	if m.err != nil {
		return m.err
	}
	m.saves++
	m.sessions[s.ID] = *s
	return nil
}

func (m *mockSessionStore) Get(_ context.Context, id string) (*model.BattleSession, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *mockSessionStore) ListByUser(_ context.Context, userID string) ([]model.BattleSession, error) {
	result := []model.BattleSession{}
	for _, s := range m.sessions {
		if s.UserID == userID {
			result = append(result, s)
		}
	}
	return result, nil
}

func (m *mockSessionStore) Delete(_ context.Context, userID, id string) error {
	if s, ok := m.sessions[id]; ok && s.UserID == userID {
		delete(m.sessions, id)
	}
	return nil
}

// mockBattleRepo implements repository.BattleRepository in memory.
type mockBattleRepo struct {
	records []model.BattleRecord
	err     error
}

func (m *mockBattleRepo) Create(_ context.Context, rec *model.BattleRecord) (*model.BattleRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, r := range m.records {
		if r.SessionID == rec.SessionID {
			return &r, nil
		}
	}
	cp := *rec
	cp.ID = fmt.Sprintf("rec-%d", len(m.records)+1)
	cp.CreatedAt = time.Now()
	m.records = append(m.records, cp)
	return &cp, nil
}

func (m *mockBattleRepo) ListByUser(_ context.Context, userID string, limit int) ([]model.BattleRecord, error) {
	result := []model.BattleRecord{}
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].UserID == userID && (limit <= 0 || len(result) < limit) {
			result = append(result, m.records[i])
		}
	}
	return result, nil
}

func (m *mockBattleRepo) StatsByUser(_ context.Context, userID string) (*model.BattleStats, error) {
	st := &model.BattleStats{}
	for _, r := range m.records {
		if r.UserID != userID {
			continue
		}
		st.Total++
		switch r.Status {
		case "attacker_win":
			st.AttackerWins++
		case "defender_win":
			st.DefenderWins++
		default:
			st.Unresolved++
		}
		st.ExpectedWins += r.ExpectedWinRate
		st.UnitsLost += r.AttackLosses
		st.UnitsDestroyed += r.DefendLosses
	}
	return st, nil
}

// mockDistributionCache implements repository.DistributionCache in memory.
type mockDistributionCache struct {
	battles map[string][]byte
	gets    int
	sets    int
	getErr  error
}

func newMockDistributionCache() *mockDistributionCache {
	return &mockDistributionCache{battles: make(map[string][]byte)}
}

func cacheKey(units dice.BattleUnits, cfg dice.RoundConfig) string {
	return fmt.Sprintf("%s:%dv%d", cfg, units.Attack, units.Defend)
}

func (m *mockDistributionCache) GetBattle(_ context.Context, units dice.BattleUnits, cfg dice.RoundConfig) (*dice.BattleOutcome, error) {
	m.gets++
	if m.getErr != nil {
		return nil, m.getErr
	}
	data, ok := m.battles[cacheKey(units, cfg)]
	if !ok {
		return nil, nil
	}
	return dice.DecodeBattle(units, cfg, data)
}

func (m *mockDistributionCache) SetBattle(_ context.Context, b *dice.BattleOutcome) error {
	m.sets++
	m.battles[cacheKey(b.Units(), b.Config())] = dice.EncodeBattle(b)
	return nil
}

// recordingBroadcaster captures broadcast events.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []broadcastEvent
}

type broadcastEvent struct {
	battleID  string
	eventType string
	data      any
}

func (r *recordingBroadcaster) BroadcastBattleEvent(battleID, eventType string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, broadcastEvent{battleID, eventType, data})
}

func (r *recordingBroadcaster) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.eventType)
	}
	return out
}

var errStore = errors.New("store unavailable")

var testLimits = Limits{
	MaxUnits:             100,
	MaxFaces:             20,
	MaxDicePerSide:       6,
	MaxRoundPermutations: 10_000_000,
}

// slowSessionStore is a goroutine-safe session store whose reads take a
// while, so concurrent actions on one battle overlap unless serialized.
type slowSessionStore struct {
	mu       sync.Mutex
	sessions map[string]model.BattleSession
	delay    time.Duration
}

func newSlowSessionStore(delay time.Duration) *slowSessionStore {
	return &slowSessionStore{sessions: make(map[string]model.BattleSession), delay: delay}
}

func (m *slowSessionStore) Save(_ context.Context, s *model.BattleSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = *s
	return nil
}

func (m *slowSessionStore) Get(_ context.Context, id string) (*model.BattleSession, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	time.Sleep(m.delay)
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *slowSessionStore) ListByUser(_ context.Context, userID string) ([]model.BattleSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := []model.BattleSession{}
	for _, s := range m.sessions {
		if s.UserID == userID {
			result = append(result, s)
		}
	}
	return result, nil
}

func (m *slowSessionStore) Delete(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok && s.UserID == userID {
		delete(m.sessions, id)
	}
	return nil
}
