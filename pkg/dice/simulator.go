package dice

import (
	"fmt"
	"slices"
)

// Status is the state of a simulated battle.
type Status int

const (
	StatusUnresolved Status = iota
	StatusAttackerWin
	StatusDefenderWin
)

func (s Status) String() string {
	switch s {
	case StatusAttackerWin:
		return "attacker_win"
	case StatusDefenderWin:
		return "defender_win"
	}
	return "unresolved"
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "attacker_win":
		*s = StatusAttackerWin
	case "defender_win":
		*s = StatusDefenderWin
	case "unresolved":
		*s = StatusUnresolved
	default:
		return fmt.Errorf("unknown status %q", b)
	}
	return nil
}

// RoundMethod picks how a single round is resolved.
type RoundMethod int

const (
	RoundDiceRoll RoundMethod = iota
	RoundOddsBased
)

// BlitzMethod picks how a whole battle is resolved in one call.
type BlitzMethod int

const (
	BlitzDiceRoll BlitzMethod = iota
	BlitzOddsRound
	BlitzOddsBattle
)

func ParseRoundMethod(s string) (RoundMethod, error) {
	switch s {
	case "dice", "":
		return RoundDiceRoll, nil
	case "odds":
		return RoundOddsBased, nil
	}
	return 0, fmt.Errorf("unknown round method %q", s)
}

func ParseBlitzMethod(s string) (BlitzMethod, error) {
	switch s {
	case "dice":
		return BlitzDiceRoll, nil
	case "odds_round":
		return BlitzOddsRound, nil
	case "odds_battle", "":
		return BlitzOddsBattle, nil
	}
	return 0, fmt.Errorf("unknown blitz method %q", s)
}

// Simulator plays out a battle round by round or in a single blitz.
// It is not safe for concurrent use.
type Simulator struct {
	engine  *Engine
	rng     RNG
	config  RoundConfig
	units   BattleUnits
	balance *BalanceParams

	remainingAttack int
	remainingDefend int
	lastAttackLoss  int
	lastDefendLoss  int

	// Tallies are indexed by face, 0 based.
	attackTally     []int
	defendTally     []int
	attackRolls     []int
	defendRolls     []int
	lastAttackRolls []int
	lastDefendRolls []int

	simulatedAttackDice int
	simulatedDefendDice int
}

// NewSimulator starts a battle. balance may be nil; it only affects odds based blitzes.
func NewSimulator(engine *Engine, units BattleUnits, cfg RoundConfig, balance *BalanceParams, rng RNG) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := units.Validate(); err != nil {
		return nil, err
	}
	if balance != nil {
		if err := balance.Validate(); err != nil {
			return nil, err
		}
		p := *balance
		balance = &p
	}
	if engine == nil {
		engine = NewEngine()
	}
	return &Simulator{
		engine:          engine,
		rng:             rng,
		config:          cfg,
		units:           units,
		balance:         balance,
		remainingAttack: units.Attack,
		remainingDefend: units.Defend,
		attackTally:     make([]int, cfg.Faces),
		defendTally:     make([]int, cfg.Faces),
	}, nil
}

func (s *Simulator) SetRNG(rng RNG) { s.rng = rng }

func (s *Simulator) Units() BattleUnits     { return s.units }
func (s *Simulator) Config() RoundConfig    { return s.config }
func (s *Simulator) RemainingAttack() int   { return s.remainingAttack }
func (s *Simulator) RemainingDefend() int   { return s.remainingDefend }
func (s *Simulator) AttackLosses() int      { return s.units.Attack - s.remainingAttack }
func (s *Simulator) DefendLosses() int      { return s.units.Defend - s.remainingDefend }
func (s *Simulator) LastLosses() (int, int) { return s.lastAttackLoss, s.lastDefendLoss }

// IsComplete reports whether the attacker reached its reserve or the defender was wiped out.
func (s *Simulator) IsComplete() bool {
	return s.remainingAttack <= s.units.StopUntil || s.remainingDefend == 0
}

func (s *Simulator) Status() Status {
	switch {
	case s.remainingDefend <= 0:
		return StatusAttackerWin
	case s.remainingAttack <= 0:
		return StatusDefenderWin
	}
	return StatusUnresolved
}

// NextRound resolves one round.
func (s *Simulator) NextRound(method RoundMethod) error {
	if s.IsComplete() {
		return ErrBattleComplete
	}
	if method == RoundOddsBased {
		return s.oddsRound()
	}
	return s.diceRound()
}

// Blitz resolves the rest of the battle.
func (s *Simulator) Blitz(method BlitzMethod) error {
	if s.IsComplete() {
		return ErrBattleComplete
	}
	switch method {
	case BlitzDiceRoll, BlitzOddsRound:
		round := RoundDiceRoll
		if method == BlitzOddsRound {
			round = RoundOddsBased
		}
		for !s.IsComplete() {
			if err := s.NextRound(round); err != nil {
				return err
			}
		}
		return nil
	case BlitzOddsBattle:
		return s.oddsBattle()
	}
	return fmt.Errorf("unknown blitz method %d", method)
}

func (s *Simulator) currentRound() RoundConfig {
	return s.config.ForUnits(s.units.WithUnits(s.remainingAttack, s.remainingDefend))
}

func (s *Simulator) rollDice(n, faces int) ([]int, error) {
	rolls := make([]int, n)
	for i := range rolls {
		v, err := s.rng.NextInt(0, faces)
		if err != nil {
			return nil, err
		}
		rolls[i] = v
	}
	return rolls, nil
}

func (s *Simulator) diceRound() error {
	rc := s.currentRound()

	attack, err := s.rollDice(rc.AttackDice, rc.Faces)
	if err != nil {
		return err
	}
	defend, err := s.rollDice(rc.DefendDice, rc.Faces)
	if err != nil {
		return err
	}

	for _, v := range attack {
		s.attackTally[v]++
	}
	for _, v := range defend {
		s.defendTally[v]++
	}
	s.attackRolls = append(s.attackRolls, attack...)
	s.defendRolls = append(s.defendRolls, defend...)

	desc := func(a, b int) int { return b - a }
	slices.SortFunc(attack, desc)
	slices.SortFunc(defend, desc)
	s.lastAttackRolls, s.lastDefendRolls = attack, defend

	c := rc.ChallengeCount()
	lossA := 0
	for i := range c {
		if attack[i] < defend[i] || (attack[i] == defend[i] && rc.FavourDefenderOnDraw) {
			lossA++
		}
	}
	s.applyLosses(lossA, c-lossA)
	return nil
}

func (s *Simulator) oddsRound() error {
	rc := s.currentRound()
	chances := s.engine.round(rc).AttackLossChances()

	r, err := s.rng.NextDouble()
	if err != nil {
		return err
	}
	lossA := pick(chances, Clamp01(r))

	s.simulatedAttackDice += rc.AttackDice
	s.simulatedDefendDice += rc.DefendDice
	s.lastAttackRolls, s.lastDefendRolls = nil, nil
	s.applyLosses(lossA, rc.ChallengeCount()-lossA)
	return nil
}

// oddsBattle draws the final result of the whole battle from its
// distribution. The reserve is excluded up front so the draw never eats it.
func (s *Simulator) oddsBattle() error {
	units := s.units.WithUnits(s.remainingAttack, s.remainingDefend).WithoutStopUntil()
	outcome, err := s.engine.Battle(units, s.config)
	if err != nil {
		return err
	}
	if s.balance != nil {
		outcome = Balance(outcome, *s.balance)
	}

	r, err := s.rng.NextDouble()
	if err != nil {
		return err
	}
	r = Clamp01Exclusive(r)

	var lossA, lossD int
	if attackWin := outcome.AttackWinChance(); r <= attackWin {
		lossD = units.Defend
		lossA = pick(nonTerminal(outcome.attackLoss), r)
	} else {
		lossA = units.Attack
		lossD = pick(nonTerminal(outcome.defendLoss), r-attackWin)
	}

	s.simulatedAttackDice += lossA + lossD
	s.simulatedDefendDice += lossA + lossD
	s.lastAttackRolls, s.lastDefendRolls = nil, nil
	s.applyLosses(lossA, lossD)
	return nil
}

// pick walks chances in order until the running total reaches r. Rounding
// can leave r out of reach; the likeliest bucket is used then.
func pick(chances []float64, r float64) int {
	var total float64
	for i, p := range chances {
		if p <= 0 {
			continue
		}
		total += p
		if total >= r {
			return i
		}
	}
	return argmax(chances)
}

func (s *Simulator) applyLosses(attack, defend int) {
	s.lastAttackLoss, s.lastDefendLoss = attack, defend
	s.remainingAttack -= attack
	s.remainingDefend -= defend
}

// Reset restores the starting units and clears all tallies.
func (s *Simulator) Reset() {
	s.remainingAttack = s.units.Attack
	s.remainingDefend = s.units.Defend
	s.lastAttackLoss, s.lastDefendLoss = 0, 0
	clear(s.attackTally)
	clear(s.defendTally)
	s.attackRolls, s.defendRolls = nil, nil
	s.lastAttackRolls, s.lastDefendRolls = nil, nil
	s.simulatedAttackDice, s.simulatedDefendDice = 0, 0
}

// SimulatorState is a serialisable snapshot of a Simulator.
type SimulatorState struct {
	Units               BattleUnits    `json:"units"`
	Config              RoundConfig    `json:"config"`
	Balance             *BalanceParams `json:"balance,omitempty"`
	Status              Status         `json:"status"`
	Complete            bool           `json:"complete"`
	RemainingAttack     int            `json:"remaining_attack"`
	RemainingDefend     int            `json:"remaining_defend"`
	LastAttackLoss      int            `json:"last_attack_loss"`
	LastDefendLoss      int            `json:"last_defend_loss"`
	AttackTally         []int          `json:"attack_tally"`
	DefendTally         []int          `json:"defend_tally"`
	AttackRolls         []int          `json:"attack_rolls,omitempty"`
	DefendRolls         []int          `json:"defend_rolls,omitempty"`
	LastAttackRolls     []int          `json:"last_attack_rolls,omitempty"`
	LastDefendRolls     []int          `json:"last_defend_rolls,omitempty"`
	SimulatedAttackDice int            `json:"simulated_attack_dice"`
	SimulatedDefendDice int            `json:"simulated_defend_dice"`
}

func (s *Simulator) State() SimulatorState {
	return SimulatorState{
		Units:               s.units,
		Config:              s.config,
		Balance:             s.balance,
		Status:              s.Status(),
		Complete:            s.IsComplete(),
		RemainingAttack:     s.remainingAttack,
		RemainingDefend:     s.remainingDefend,
		LastAttackLoss:      s.lastAttackLoss,
		LastDefendLoss:      s.lastDefendLoss,
		AttackTally:         slices.Clone(s.attackTally),
		DefendTally:         slices.Clone(s.defendTally),
		AttackRolls:         slices.Clone(s.attackRolls),
		DefendRolls:         slices.Clone(s.defendRolls),
		LastAttackRolls:     slices.Clone(s.lastAttackRolls),
		LastDefendRolls:     slices.Clone(s.lastDefendRolls),
		SimulatedAttackDice: s.simulatedAttackDice,
		SimulatedDefendDice: s.simulatedDefendDice,
	}
}

// RestoreSimulator rebuilds a simulator from a snapshot taken with State.
func RestoreSimulator(engine *Engine, st SimulatorState, rng RNG) (*Simulator, error) {
	s, err := NewSimulator(engine, st.Units, st.Config, st.Balance, rng)
	if err != nil {
		return nil, err
	}
	if st.RemainingAttack < 0 || st.RemainingAttack > st.Units.Attack ||
		st.RemainingDefend < 0 || st.RemainingDefend > st.Units.Defend {
		return nil, fmt.Errorf("%w: remaining %d/%d outside starting %d/%d", ErrInvalidUnits,
			st.RemainingAttack, st.RemainingDefend, st.Units.Attack, st.Units.Defend)
	}
	if len(st.AttackTally) == st.Config.Faces {
		copy(s.attackTally, st.AttackTally)
	}
	if len(st.DefendTally) == st.Config.Faces {
		copy(s.defendTally, st.DefendTally)
	}
	s.remainingAttack, s.remainingDefend = st.RemainingAttack, st.RemainingDefend
	s.lastAttackLoss, s.lastDefendLoss = st.LastAttackLoss, st.LastDefendLoss
	s.attackRolls = slices.Clone(st.AttackRolls)
	s.defendRolls = slices.Clone(st.DefendRolls)
	s.lastAttackRolls = slices.Clone(st.LastAttackRolls)
	s.lastDefendRolls = slices.Clone(st.LastDefendRolls)
	s.simulatedAttackDice, s.simulatedDefendDice = st.SimulatedAttackDice, st.SimulatedDefendDice
	return s, nil
}
