package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/dice-odds/api/internal/logger"
	"github.com/freeeve/dice-odds/api/internal/model"
	"github.com/freeeve/dice-odds/api/internal/repository"
	"github.com/freeeve/dice-odds/api/pkg/dice"
)

var (
	ErrBattleNotFound = errors.New("battle not found")
	ErrNotOwner       = errors.New("battle belongs to another user")
)

// CreateBattleRequest starts a battle. A nil Config takes the server dice
// settings; a nil Seed draws a fresh one.
type CreateBattleRequest struct {
	Attack    int               `json:"attack"`
	Defend    int               `json:"defend"`
	StopUntil int               `json:"stop_until"`
	Config    *dice.RoundConfig `json:"config,omitempty"`
	Balanced  bool              `json:"balanced"`
	RNG       string            `json:"rng,omitempty"`
	Seed      *uint64           `json:"seed,omitempty"`
}

// BattleService runs simulated battles for users. Live state lives in the
// session store; finished battles are written to the history repository.
type BattleService struct {
	odds        *OddsService
	sessions    repository.SessionStore
	battles     repository.BattleRepository
	rng         dice.RNGConfig
	broadcaster Broadcaster
	now         func() time.Time

	// battleLocks serializes load, change and save per battle; each action
	// must see the state and RNG step the previous one saved.
	battleLocks sync.Map
}

// NewBattleService creates a BattleService.
func NewBattleService(odds *OddsService, sessions repository.SessionStore, battles repository.BattleRepository, rng dice.RNGConfig, broadcaster Broadcaster) *BattleService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	return &BattleService{
		odds:        odds,
		sessions:    sessions,
		battles:     battles,
		rng:         rng,
		broadcaster: broadcaster,
		now:         time.Now,
	}
}

// Create validates the request, calculates the expected win chance and saves
// a new session.
func (s *BattleService) Create(ctx context.Context, userID string, req CreateBattleRequest) (*model.BattleSession, error) {
	units := dice.BattleUnits{Attack: req.Attack, Defend: req.Defend, StopUntil: req.StopUntil}
	cfg := s.odds.DefaultRoundConfig()
	if req.Config != nil {
		cfg = *req.Config
	}

	rngCfg := s.rng
	if req.RNG != "" {
		rngCfg.Kind = dice.RNGKind(req.RNG)
	}
	if req.Seed != nil {
		rngCfg.Seed, rngCfg.Seeded = *req.Seed, true
	}
	rng, err := rngCfg.New()
	if err != nil {
		return nil, invalid(err)
	}

	odds, err := s.odds.BattleOdds(ctx, units, cfg, req.Balanced)
	if err != nil {
		return nil, err
	}
	sim, err := dice.NewSimulator(s.odds.Engine(), units, cfg, s.odds.balanceFor(req.Balanced), rng)
	if err != nil {
		return nil, invalid(err)
	}

	now := s.now()
	sess := &model.BattleSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		State:     sim.State(),
		RNG:       rngCfg,
		WinChance: odds.AttackWin,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}

	l := logger.ForBattle(ctx, sess.ID)
	l.Info().
		Str("userId", userID).
		Str("units", fmt.Sprintf("%dv%d", units.Attack, units.Defend)).
		Int("stopUntil", units.StopUntil).
		Str("dice", cfg.String()).
		Bool("balanced", req.Balanced).
		Float64("winChance", odds.AttackWin).
		Msg("Battle created")
	return sess, nil
}

// battleLock returns the mutex for a battle ID.
func (s *BattleService) battleLock(id string) *sync.Mutex {
	v, _ := s.battleLocks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Get returns a session owned by userID.
func (s *BattleService) Get(ctx context.Context, userID, id string) (*model.BattleSession, error) {
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrBattleNotFound
	}
	if sess.UserID != userID {
		return nil, ErrNotOwner
	}
	return sess, nil
}

// List returns the user's live sessions, newest first.
func (s *BattleService) List(ctx context.Context, userID string) ([]model.BattleSession, error) {
	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(sessions, func(a, b model.BattleSession) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return sessions, nil
}

// Round resolves a single round with method "dice" or "odds".
func (s *BattleService) Round(ctx context.Context, userID, id, method string) (*model.BattleSession, error) {
	m, err := dice.ParseRoundMethod(method)
	if err != nil {
		return nil, invalid(err)
	}
	mu := s.battleLock(id)
	mu.Lock()
	defer mu.Unlock()

	sess, sim, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := sim.NextRound(m); err != nil {
		return nil, err
	}
	sess.Rounds++
	sess.Method = "round_" + methodName(method, "dice")
	return sess, s.advance(ctx, sess, sim, EventBattleRound)
}

// Blitz resolves the rest of the battle with method "dice", "odds_round" or
// "odds_battle".
func (s *BattleService) Blitz(ctx context.Context, userID, id, method string) (*model.BattleSession, error) {
	m, err := dice.ParseBlitzMethod(method)
	if err != nil {
		return nil, invalid(err)
	}
	mu := s.battleLock(id)
	mu.Lock()
	defer mu.Unlock()

	sess, sim, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sim.IsComplete() {
		return nil, dice.ErrBattleComplete
	}

	switch m {
	case dice.BlitzOddsBattle:
		if err := sim.Blitz(m); err != nil {
			return nil, err
		}
	default:
		round := dice.RoundDiceRoll
		if m == dice.BlitzOddsRound {
			round = dice.RoundOddsBased
		}
		for !sim.IsComplete() {
			if err := sim.NextRound(round); err != nil {
				return nil, err
			}
			sess.Rounds++
		}
	}
	sess.Method = "blitz_" + methodName(method, "odds_battle")
	return sess, s.advance(ctx, sess, sim, EventBattleBlitz)
}

// Reset puts the battle back to its starting units. A finished battle stays
// in the history with its first result.
func (s *BattleService) Reset(ctx context.Context, userID, id string) (*model.BattleSession, error) {
	mu := s.battleLock(id)
	mu.Lock()
	defer mu.Unlock()

	sess, sim, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	sim.Reset()
	sess.Rounds = 0
	sess.Method = ""
	return sess, s.advance(ctx, sess, sim, EventBattleReset)
}

// Delete removes a live session. History is kept.
func (s *BattleService) Delete(ctx context.Context, userID, id string) error {
	mu := s.battleLock(id)
	mu.Lock()
	defer mu.Unlock()

	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.battleLocks.Delete(id)
	return nil
}

// History lists the user's finished battles, newest first.
func (s *BattleService) History(ctx context.Context, userID string, limit int) ([]model.BattleRecord, error) {
	return s.battles.ListByUser(ctx, userID, limit)
}

// Stats aggregates the user's finished battles.
func (s *BattleService) Stats(ctx context.Context, userID string) (*model.BattleStats, error) {
	return s.battles.StatsByUser(ctx, userID)
}

// load fetches the session and rebuilds its simulator with the RNG stream for
// the next step.
func (s *BattleService) load(ctx context.Context, userID, id string) (*model.BattleSession, *dice.Simulator, error) {
	sess, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}
	rng, err := streamFor(sess)
	if err != nil {
		return nil, nil, err
	}
	sim, err := dice.RestoreSimulator(s.odds.Engine(), sess.State, rng)
	if err != nil {
		return nil, nil, fmt.Errorf("restore battle %s: %w", sess.ID, err)
	}
	return sess, sim, nil
}

// streamFor gives seeded sessions a distinct, reproducible stream per step.
func streamFor(sess *model.BattleSession) (dice.RNG, error) {
	cfg := sess.RNG
	if cfg.Seeded {
		cfg.Seed += uint64(sess.Steps)
	}
	return cfg.New()
}

// advance stores the new simulator state, records a battle that just
// finished and notifies subscribers.
func (s *BattleService) advance(ctx context.Context, sess *model.BattleSession, sim *dice.Simulator, event string) error {
	l := logger.ForBattle(ctx, sess.ID)
	sess.State = sim.State()
	sess.Steps++
	sess.UpdatedAt = s.now()

	var rec *model.BattleRecord
	if sess.State.Complete && !sess.Recorded {
		var err error
		rec, err = s.battles.Create(ctx, recordFor(sess))
		if err != nil {
			l.Error().Err(err).Msg("Failed to record battle")
		} else {
			sess.Recorded = true
		}
	}

	if err := s.sessions.Save(ctx, sess); err != nil {
		return err
	}

	s.broadcaster.BroadcastBattleEvent(sess.ID, event, sess)
	l.Info().
		Str("event", event).
		Int("remainingAttack", sess.State.RemainingAttack).
		Int("remainingDefend", sess.State.RemainingDefend).
		Stringer("status", sess.State.Status).
		Msg("Battle advanced")

	if rec != nil {
		s.broadcaster.BroadcastBattleEvent(sess.ID, EventBattleComplete, rec)
		log.Info().
			Str("battleId", sess.ID).
			Str("status", rec.Status).
			Int("rounds", rec.Rounds).
			Msg("Battle complete")
	}
	return nil
}

func recordFor(sess *model.BattleSession) *model.BattleRecord {
	st := sess.State
	return &model.BattleRecord{
		SessionID:       sess.ID,
		UserID:          sess.UserID,
		Attack:          st.Units.Attack,
		Defend:          st.Units.Defend,
		StopUntil:       st.Units.StopUntil,
		Faces:           st.Config.Faces,
		AttackDice:      st.Config.AttackDice,
		DefendDice:      st.Config.DefendDice,
		FavourDefender:  st.Config.FavourDefenderOnDraw,
		Balanced:        st.Balance != nil,
		Method:          sess.Method,
		Status:          st.Status.String(),
		AttackLosses:    st.Units.Attack - st.RemainingAttack,
		DefendLosses:    st.Units.Defend - st.RemainingDefend,
		Rounds:          sess.Rounds,
		ExpectedWinRate: sess.WinChance,
	}
}

func methodName(method, fallback string) string {
	if method == "" {
		return fallback
	}
	return method
}
