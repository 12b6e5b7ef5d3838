package dice

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
)

// BattleUnits is the committed force on each side. StopUntil attacker units
// are held back and never fight.
type BattleUnits struct {
	Attack    int `json:"attack"`
	Defend    int `json:"defend"`
	StopUntil int `json:"stop_until"`
}

func NewBattleUnits(attack, defend, stopUntil int) (BattleUnits, error) {
	u := BattleUnits{Attack: attack, Defend: defend, StopUntil: stopUntil}
	if err := u.Validate(); err != nil {
		return BattleUnits{}, err
	}
	return u, nil
}

func (u BattleUnits) Validate() error {
	switch {
	case u.Attack <= 0:
		return fmt.Errorf("%w: attack units must be positive, got %d", ErrInvalidUnits, u.Attack)
	case u.Defend <= 0:
		return fmt.Errorf("%w: defend units must be positive, got %d", ErrInvalidUnits, u.Defend)
	case u.StopUntil < 0:
		return fmt.Errorf("%w: stop until must not be negative, got %d", ErrInvalidUnits, u.StopUntil)
	case u.Attack <= u.StopUntil:
		return fmt.Errorf("%w: attack units %d must exceed stop until %d", ErrInvalidUnits, u.Attack, u.StopUntil)
	}
	return nil
}

func (u BattleUnits) IsEarlyStop() bool { return u.StopUntil > 0 }

// WithoutStopUntil drops the reserve from both the attack count and the threshold.
func (u BattleUnits) WithoutStopUntil() BattleUnits {
	u.Attack -= u.StopUntil
	u.StopUntil = 0
	return u
}

func (u BattleUnits) WithUnits(attack, defend int) BattleUnits {
	u.Attack = attack
	u.Defend = defend
	return u
}

// DistributionKind tags a BattleOutcome as exact or reshaped.
type DistributionKind int

const (
	Raw DistributionKind = iota
	Balanced
)

func (k DistributionKind) String() string {
	if k == Balanced {
		return "balanced"
	}
	return "raw"
}

// BattleOutcome is the loss distribution of a full battle.
//
// attackLoss[i] for i < Attack is the chance the attacker wins having lost i
// units; attackLoss[Attack] is the defender's win chance. defendLoss mirrors
// this from the defender's side.
type BattleOutcome struct {
	units      BattleUnits
	config     RoundConfig
	kind       DistributionKind
	balance    BalanceParams
	attackLoss []float64
	defendLoss []float64

	src   outcomeSource
	once  sync.Once
	ready atomic.Bool
}

// outcomeSource is implemented by Engine. Battles computed through an engine
// share its round and battle caches.
type outcomeSource interface {
	round(cfg RoundConfig) *RoundOutcome
	battle(units BattleUnits, cfg RoundConfig) *BattleOutcome
	readyBattle(cfg RoundConfig, s unitState) *BattleOutcome
	adoptBattles(cfg RoundConfig, states map[unitState]lossPair)
}

// NewBattleOutcome builds an uncached battle model. Sub-battles are computed
// with a private engine.
func NewBattleOutcome(units BattleUnits, cfg RoundConfig) *BattleOutcome {
	return &BattleOutcome{units: units, config: cfg}
}

// RestoreBattleOutcome rebuilds a ready outcome from previously computed
// arrays, for example ones loaded from an external cache.
func RestoreBattleOutcome(units BattleUnits, cfg RoundConfig, attackLoss, defendLoss []float64) (*BattleOutcome, error) {
	if len(attackLoss) != units.Attack+1 || len(defendLoss) != units.Defend+1 {
		return nil, fmt.Errorf("restore battle %dv%d: got %d attack and %d defend buckets",
			units.Attack, units.Defend, len(attackLoss), len(defendLoss))
	}
	b := newReadyBattle(units, cfg, attackLoss, defendLoss)
	if err := b.verify(); err != nil {
		return nil, fmt.Errorf("restore battle %dv%d: %w", units.Attack, units.Defend, err)
	}
	return b, nil
}

func newReadyBattle(units BattleUnits, cfg RoundConfig, attackLoss, defendLoss []float64) *BattleOutcome {
	b := &BattleOutcome{units: units, config: cfg, attackLoss: attackLoss, defendLoss: defendLoss}
	b.once.Do(func() {})
	b.ready.Store(true)
	return b
}

func (b *BattleOutcome) Units() BattleUnits           { return b.units }
func (b *BattleOutcome) Config() RoundConfig          { return b.config }
func (b *BattleOutcome) Kind() DistributionKind       { return b.kind }
func (b *BattleOutcome) Ready() bool                  { return b.ready.Load() }
func (b *BattleOutcome) AttackLossChances() []float64 { return b.attackLoss }
func (b *BattleOutcome) DefendLossChances() []float64 { return b.defendLoss }

// BalanceParams returns the params used to reshape a Balanced outcome.
func (b *BattleOutcome) BalanceParams() (BalanceParams, bool) {
	return b.balance, b.kind == Balanced
}

func (b *BattleOutcome) AttackWinChance() float64 { return b.defendLoss[b.units.Defend] }

func (b *BattleOutcome) DefendWinChance() float64 { return b.attackLoss[b.units.Attack] }

// UnresolvedChance is the chance the attacker reaches its reserve before
// either side is wiped out. Always zero without an early stop.
func (b *BattleOutcome) UnresolvedChance() float64 {
	if !b.units.IsEarlyStop() {
		return 0
	}
	return max(1-b.AttackWinChance()-b.DefendWinChance(), 0)
}

// OutcomeChance returns the chance of a terminal (lostAttack, lostDefend)
// pair, or -1 when the pair does not end the battle.
func (b *BattleOutcome) OutcomeChance(lostAttack, lostDefend int) float64 {
	switch {
	case lostAttack == b.units.Attack-b.units.StopUntil:
		return b.attackLoss[lostAttack]
	case lostDefend == b.units.Defend:
		return b.defendLoss[lostDefend]
	}
	return -1
}

// Calculate fills both loss arrays. Later calls are no-ops.
func (b *BattleOutcome) Calculate() {
	b.once.Do(func() {
		src := b.src
		if src == nil {
			src = NewEngine()
		}
		if b.units.IsEarlyStop() {
			base := src.battle(b.units.WithoutStopUntil(), b.config)
			base.Calculate()
			b.attackLoss, b.defendLoss = truncateEarlyStop(b.units, base)
		} else {
			m := newBattleMemo(b.config, src)
			root := unitState{b.units.Attack, b.units.Defend}
			top := m.solve(root)
			b.attackLoss, b.defendLoss = top.attack, top.defend
			delete(m.states, root)
			src.adoptBattles(b.config, m.computedStates())
		}
		if err := b.verify(); err != nil {
			panic(err)
		}
		b.ready.Store(true)
	})
}

func truncateEarlyStop(units BattleUnits, base *BattleOutcome) ([]float64, []float64) {
	attack := make([]float64, units.Attack+1)
	n := len(base.attackLoss) - 1
	copy(attack[:n], base.attackLoss[:n])
	return attack, slices.Clone(base.defendLoss)
}

func (b *BattleOutcome) verify() error {
	for _, c := range []struct {
		what string
		sum  float64
	}{
		{"attack losses", Sum(b.attackLoss) + b.UnresolvedChance()},
		{"defend losses", Sum(b.defendLoss)},
		{"win chances", b.AttackWinChance() + b.DefendWinChance() + b.UnresolvedChance()},
	} {
		if !ApproxEqual(c.sum, 1) {
			return &InvariantError{What: c.what, Sum: c.sum}
		}
	}
	return nil
}

type unitState struct {
	attack, defend int
}

type lossPair struct {
	attack, defend []float64
	cached         bool
}

// battleMemo resolves a battle bottom-up over every unit state reachable from
// the root. States already computed by the engine are reused and not expanded.
type battleMemo struct {
	config RoundConfig
	src    outcomeSource
	states map[unitState]lossPair
}

func newBattleMemo(cfg RoundConfig, src outcomeSource) *battleMemo {
	return &battleMemo{config: cfg, src: src, states: make(map[unitState]lossPair)}
}

func (m *battleMemo) roundFor(s unitState) (RoundConfig, []float64) {
	rc := m.config.ForUnits(BattleUnits{Attack: s.attack, Defend: s.defend})
	return rc, m.src.round(rc).AttackLossChances()
}

// plan returns the states that must be computed, ordered so that every state
// comes after all of its successors.
func (m *battleMemo) plan(root unitState) []unitState {
	var order []unitState
	seen := map[unitState]bool{root: true}
	stack := []unitState{root}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if s != root {
			if done := m.src.readyBattle(m.config, s); done != nil {
				m.states[s] = lossPair{attack: done.attackLoss, defend: done.defendLoss, cached: true}
				continue
			}
		}
		order = append(order, s)

		rc, round := m.roundFor(s)
		c := rc.ChallengeCount()
		for lossA, p := range round {
			if p <= 0 {
				continue
			}
			next := unitState{s.attack - lossA, s.defend - (c - lossA)}
			if next.attack <= 0 || next.defend <= 0 || seen[next] {
				continue
			}
			seen[next] = true
			stack = append(stack, next)
		}
	}
	// Successors never have more units on either side and always have fewer in total.
	slices.SortFunc(order, func(x, y unitState) int {
		if x.attack != y.attack {
			return x.attack - y.attack
		}
		return x.defend - y.defend
	})
	return order
}

func (m *battleMemo) solve(root unitState) lossPair {
	for _, s := range m.plan(root) {
		m.states[s] = m.step(s)
	}
	return m.states[root]
}

func (m *battleMemo) step(s unitState) lossPair {
	rc, round := m.roundFor(s)
	c := rc.ChallengeCount()
	attack := make([]float64, s.attack+1)
	defend := make([]float64, s.defend+1)

	for lossA, p := range round {
		if p <= 0 {
			continue
		}
		lossD := c - lossA
		next := unitState{s.attack - lossA, s.defend - lossD}
		if next.attack <= 0 || next.defend <= 0 {
			attack[lossA] += p
			defend[lossD] += p
			continue
		}
		sub := m.states[next]
		for i, q := range sub.attack {
			attack[lossA+i] += p * q
		}
		for i, q := range sub.defend {
			defend[lossD+i] += p * q
		}
	}
	return lossPair{attack: attack, defend: defend}
}

func (m *battleMemo) computedStates() map[unitState]lossPair {
	out := make(map[unitState]lossPair, len(m.states))
	for s, lp := range m.states {
		if !lp.cached {
			out[s] = lp
		}
	}
	return out
}
