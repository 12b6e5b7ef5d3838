package service

import (
	"context"
	"errors"
	"fmt"

	"gorgonia.org/tensor"

	"github.com/freeeve/dice-odds/api/internal/logger"
	"github.com/freeeve/dice-odds/api/internal/repository"
	"github.com/freeeve/dice-odds/api/pkg/dice"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrTooManyUnits   = errors.New("too many units")
	ErrTooManyDice    = errors.New("too many dice")
)

// Limits bound the work a single request can ask of the engine. They are
// checked before anything is calculated.
type Limits struct {
	MaxUnits             int
	MaxFaces             int
	MaxDicePerSide       int
	MaxRoundPermutations uint64
}

// DefaultLimits allow up to d20 and six dice a side, provided one round stays
// within ten million permutations.
var DefaultLimits = Limits{
	MaxUnits:             200,
	MaxFaces:             20,
	MaxDicePerSide:       6,
	MaxRoundPermutations: 10_000_000,
}

// OddsService answers probability queries from the shared engine. Full raw
// battles are mirrored in the distribution cache so other instances can skip
// the calculation.
type OddsService struct {
	engine   *dice.Engine
	cache    repository.DistributionCache
	defaults dice.RoundConfig
	balance  dice.BalanceParams
	limits   Limits
}

// NewOddsService creates an OddsService. cache may be nil.
func NewOddsService(engine *dice.Engine, cache repository.DistributionCache, defaults dice.RoundConfig, balance dice.BalanceParams, limits Limits) *OddsService {
	return &OddsService{
		engine:   engine,
		cache:    cache,
		defaults: defaults,
		balance:  balance,
		limits:   limits,
	}
}

// DefaultRoundConfig is used when a request does not pick its own dice.
func (s *OddsService) DefaultRoundConfig() dice.RoundConfig { return s.defaults }
func (s *OddsService) BalanceParams() dice.BalanceParams    { return s.balance }
func (s *OddsService) Engine() *dice.Engine                 { return s.engine }
func (s *OddsService) Stats() dice.Stats                    { return s.engine.Stats() }

func invalid(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
}

func (s *OddsService) balanceFor(balanced bool) *dice.BalanceParams {
	if !balanced {
		return nil
	}
	p := s.balance
	return &p
}

// checkConfig rejects dice the engine could not enumerate in reasonable time.
func (s *OddsService) checkConfig(cfg dice.RoundConfig) error {
	if err := cfg.Validate(); err != nil {
		return invalid(err)
	}
	l := s.limits
	if cfg.Faces > l.MaxFaces {
		return fmt.Errorf("%w: %d faces exceeds %d", ErrTooManyDice, cfg.Faces, l.MaxFaces)
	}
	if cfg.AttackDice > l.MaxDicePerSide || cfg.DefendDice > l.MaxDicePerSide {
		return fmt.Errorf("%w: %dv%d dice exceeds %d a side", ErrTooManyDice, cfg.AttackDice, cfg.DefendDice, l.MaxDicePerSide)
	}
	if n, ok := cfg.Permutations(); !ok || n > l.MaxRoundPermutations {
		return fmt.Errorf("%w: %s needs more than %d permutations a round", ErrTooManyDice, cfg, l.MaxRoundPermutations)
	}
	return nil
}

func (s *OddsService) checkUnits(units dice.BattleUnits, cfg dice.RoundConfig) error {
	if err := s.checkConfig(cfg); err != nil {
		return err
	}
	if err := units.Validate(); err != nil {
		return invalid(err)
	}
	if units.Attack > s.limits.MaxUnits || units.Defend > s.limits.MaxUnits {
		return fmt.Errorf("%w: %dv%d exceeds %d", ErrTooManyUnits, units.Attack, units.Defend, s.limits.MaxUnits)
	}
	return nil
}

// RoundOdds is the loss distribution of a single round.
type RoundOdds struct {
	Config     dice.RoundConfig `json:"config"`
	Challenges int              `json:"challenges"`
	AttackLoss []float64        `json:"attack_loss"`
}

func (s *OddsService) RoundOdds(cfg dice.RoundConfig) (*RoundOdds, error) {
	if err := s.checkConfig(cfg); err != nil {
		return nil, err
	}
	r, err := s.engine.Round(cfg)
	if err != nil {
		return nil, invalid(err)
	}
	return &RoundOdds{
		Config:     cfg,
		Challenges: cfg.ChallengeCount(),
		AttackLoss: append([]float64(nil), r.AttackLossChances()...),
	}, nil
}

// BattleOdds is the outcome distribution of a whole battle.
// AttackLoss[i] for i < attack is the chance the attacker wins having lost i
// units; DefendLoss is the mirror for the defender.
type BattleOdds struct {
	Units      dice.BattleUnits `json:"units"`
	Config     dice.RoundConfig `json:"config"`
	Kind       string           `json:"kind"`
	AttackWin  float64          `json:"attack_win"`
	DefendWin  float64          `json:"defend_win"`
	Unresolved float64          `json:"unresolved"`
	AttackLoss []float64        `json:"attack_loss"`
	DefendLoss []float64        `json:"defend_loss"`
}

func newBattleOdds(b *dice.BattleOutcome) *BattleOdds {
	return &BattleOdds{
		Units:      b.Units(),
		Config:     b.Config(),
		Kind:       b.Kind().String(),
		AttackWin:  b.AttackWinChance(),
		DefendWin:  b.DefendWinChance(),
		Unresolved: b.UnresolvedChance(),
		AttackLoss: append([]float64(nil), b.AttackLossChances()...),
		DefendLoss: append([]float64(nil), b.DefendLossChances()...),
	}
}

// BattleOdds calculates the battle distribution, consulting the shared cache
// for the full battle underneath an early stop.
func (s *OddsService) BattleOdds(ctx context.Context, units dice.BattleUnits, cfg dice.RoundConfig, balanced bool) (*BattleOdds, error) {
	if err := s.checkUnits(units, cfg); err != nil {
		return nil, err
	}
	s.warm(ctx, units.WithoutStopUntil(), cfg)

	var (
		b   *dice.BattleOutcome
		err error
	)
	if balanced {
		b, err = s.engine.BalancedBattle(units, cfg, s.balance)
	} else {
		b, err = s.engine.Battle(units, cfg)
	}
	if err != nil {
		return nil, invalid(err)
	}
	return newBattleOdds(b), nil
}

// warm makes sure the engine holds the full battle, reading it from the
// distribution cache or writing it back after a local calculation. Cache
// failures only cost a recalculation.
func (s *OddsService) warm(ctx context.Context, base dice.BattleUnits, cfg dice.RoundConfig) {
	if s.cache == nil || s.engine.Cached(base, cfg) != nil {
		return
	}
	l := logger.ForRequest(ctx)

	cached, err := s.cache.GetBattle(ctx, base, cfg)
	if err != nil {
		l.Warn().Err(err).Msg("Distribution cache read failed")
	}
	if cached != nil {
		s.engine.Preload(cached)
		return
	}

	b, err := s.engine.Battle(base, cfg)
	if err != nil {
		return
	}
	if err := s.cache.SetBattle(ctx, b); err != nil {
		l.Warn().Err(err).Msg("Distribution cache write failed")
		return
	}
	l.Debug().Int("attack", base.Attack).Int("defend", base.Defend).Msg("Distribution cached")
}

// WinChance reads the attacker win chance from the win chance table.
func (s *OddsService) WinChance(units dice.BattleUnits, cfg dice.RoundConfig, balanced bool) (float64, error) {
	if err := s.checkUnits(units, cfg); err != nil {
		return 0, err
	}
	w, err := s.engine.WinChance(units, cfg, s.balanceFor(balanced))
	if err != nil {
		return 0, invalid(err)
	}
	return w, nil
}

// IdealUnits returns the fewest attackers reaching threshold against defend.
func (s *OddsService) IdealUnits(defend int, threshold float64, cfg dice.RoundConfig, balanced bool) (int, error) {
	if defend > s.limits.MaxUnits {
		return 0, fmt.Errorf("%w: %d defenders exceeds %d", ErrTooManyUnits, defend, s.limits.MaxUnits)
	}
	if err := s.checkConfig(cfg); err != nil {
		return 0, err
	}
	n, err := s.engine.IdealUnits(defend, threshold, cfg, s.balanceFor(balanced))
	if errors.Is(err, dice.ErrThresholdUnreachable) {
		return 0, err
	}
	if err != nil {
		return 0, invalid(err)
	}
	return n, nil
}

// WinGrid is a block of the win chance table, Cells[attack][defend].
type WinGrid struct {
	Config   dice.RoundConfig `json:"config"`
	Balanced bool             `json:"balanced"`
	Attack   int              `json:"attack"`
	Defend   int              `json:"defend"`
	Cells    [][]float64      `json:"cells"`
}

// WinGrid cuts the block 0..maxAttack by 0..maxDefend out of the win chance table.
func (s *OddsService) WinGrid(maxAttack, maxDefend int, cfg dice.RoundConfig, balanced bool) (*WinGrid, error) {
	if maxAttack < 1 || maxDefend < 1 {
		return nil, fmt.Errorf("%w: grid %dx%d", ErrInvalidRequest, maxAttack, maxDefend)
	}
	if maxAttack > s.limits.MaxUnits || maxDefend > s.limits.MaxUnits {
		return nil, fmt.Errorf("%w: grid %dx%d exceeds %d", ErrTooManyUnits, maxAttack, maxDefend, s.limits.MaxUnits)
	}
	if err := s.checkConfig(cfg); err != nil {
		return nil, err
	}
	table, err := s.engine.WinChances(max(maxAttack, maxDefend), cfg, s.balanceFor(balanced))
	if err != nil {
		return nil, invalid(err)
	}

	size := table.Size()
	full := tensor.New(tensor.WithShape(size, size), tensor.WithBacking(table.Flat()))
	view, err := full.Slice(tensor.S(0, maxAttack+1), tensor.S(0, maxDefend+1))
	if err != nil {
		return nil, fmt.Errorf("slice win table: %w", err)
	}
	block, ok := view.Materialize().(*tensor.Dense)
	if !ok {
		return nil, fmt.Errorf("slice win table: unexpected %T", view)
	}
	data := block.Data().([]float64)

	cols := maxDefend + 1
	cells := make([][]float64, maxAttack+1)
	for a := range cells {
		cells[a] = data[a*cols : (a+1)*cols : (a+1)*cols]
	}
	return &WinGrid{
		Config:   cfg,
		Balanced: balanced,
		Attack:   maxAttack,
		Defend:   maxDefend,
		Cells:    cells,
	}, nil
}
