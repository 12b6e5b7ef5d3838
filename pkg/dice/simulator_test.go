package dice

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"
)

// scriptedRNG replays fixed draws and fails once they run out.
type scriptedRNG struct {
	ints    []int
	doubles []float64
	err     error
}

var errScriptDone = errors.New("script exhausted")

func (s *scriptedRNG) fail() error {
	if s.err != nil {
		return s.err
	}
	return errScriptDone
}

func (s *scriptedRNG) NextInt(lo, hi int) (int, error) {
	if len(s.ints) == 0 {
		return 0, s.fail()
	}
	v := s.ints[0]
	s.ints = s.ints[1:]
	if v < lo || v >= hi {
		return 0, errors.New("scripted int out of range")
	}
	return v, nil
}

func (s *scriptedRNG) NextDouble() (float64, error) {
	if len(s.doubles) == 0 {
		return 0, s.fail()
	}
	v := s.doubles[0]
	s.doubles = s.doubles[1:]
	return v, nil
}

func (s *scriptedRNG) NextUint32() (uint32, error) { return 0, s.fail() }
func (s *scriptedRNG) NextUint64() (uint64, error) { return 0, s.fail() }
func (s *scriptedRNG) NextBytes([]byte) error      { return s.fail() }

func newTestSimulator(t *testing.T, attack, defend, stop int, rng RNG) *Simulator {
	t.Helper()
	units, err := NewBattleUnits(attack, defend, stop)
	if err != nil {
		t.Fatalf("units: %v", err)
	}
	s, err := NewSimulator(nil, units, DefaultRoundConfig, nil, rng)
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	return s
}

func TestDiceRound(t *testing.T) {
	rng := &scriptedRNG{ints: []int{0, 5, 2, 2, 4}}
	s := newTestSimulator(t, 5, 5, 0, rng)

	if err := s.NextRound(RoundDiceRoll); err != nil {
		t.Fatalf("next round: %v", err)
	}
	// 6 beats 5; the tied 3s go to the defender.
	if a, d := s.LastLosses(); a != 1 || d != 1 {
		t.Errorf("expected 1/1 losses, got %d/%d", a, d)
	}
	if s.RemainingAttack() != 4 || s.RemainingDefend() != 4 {
		t.Errorf("expected 4v4 remaining, got %dv%d", s.RemainingAttack(), s.RemainingDefend())
	}

	st := s.State()
	if !reflect.DeepEqual(st.LastAttackRolls, []int{5, 2, 0}) {
		t.Errorf("expected sorted attack rolls [5 2 0], got %v", st.LastAttackRolls)
	}
	if !reflect.DeepEqual(st.LastDefendRolls, []int{4, 2}) {
		t.Errorf("expected sorted defend rolls [4 2], got %v", st.LastDefendRolls)
	}
	if st.AttackTally[5] != 1 || st.AttackTally[0] != 1 || st.DefendTally[2] != 1 {
		t.Errorf("unexpected tallies %v / %v", st.AttackTally, st.DefendTally)
	}
	if !reflect.DeepEqual(st.AttackRolls, []int{0, 5, 2}) {
		t.Errorf("expected rolls in draw order, got %v", st.AttackRolls)
	}
}

func TestDiceRoundDrawsGoToAttacker(t *testing.T) {
	units := BattleUnits{Attack: 3, Defend: 3}
	cfg := DefaultRoundConfig.WithFavourDefenderOnDraw(false)
	s, err := NewSimulator(nil, units, cfg, nil, &scriptedRNG{ints: []int{3, 1, 0, 3, 1}})
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	if err := s.NextRound(RoundDiceRoll); err != nil {
		t.Fatalf("next round: %v", err)
	}
	if a, d := s.LastLosses(); a != 0 || d != 2 {
		t.Errorf("expected 0/2 losses, got %d/%d", a, d)
	}
}

func TestDiceRoundRNGErrorKeepsState(t *testing.T) {
	boom := errors.New("entropy gone")
	s := newTestSimulator(t, 5, 5, 0, &scriptedRNG{ints: []int{1, 2, 3}, err: boom})

	if err := s.NextRound(RoundDiceRoll); !errors.Is(err, boom) {
		t.Fatalf("expected rng error, got %v", err)
	}
	if s.RemainingAttack() != 5 || s.RemainingDefend() != 5 {
		t.Errorf("expected untouched 5v5, got %dv%d", s.RemainingAttack(), s.RemainingDefend())
	}
	if st := s.State(); len(st.AttackRolls) != 0 || st.AttackTally[1] != 0 {
		t.Error("expected no rolls recorded after a failed draw")
	}
}

func TestOddsRound(t *testing.T) {
	tests := []struct {
		name         string
		r            float64
		lossA, lossD int
	}{
		{"lowest draw", 0, 0, 2},
		{"middle draw", 0.5, 1, 1},
		{"highest draw", 0.99, 2, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSimulator(t, 6, 6, 0, &scriptedRNG{doubles: []float64{tt.r}})
			if err := s.NextRound(RoundOddsBased); err != nil {
				t.Fatalf("next round: %v", err)
			}
			if a, d := s.LastLosses(); a != tt.lossA || d != tt.lossD {
				t.Errorf("expected %d/%d losses, got %d/%d", tt.lossA, tt.lossD, a, d)
			}
			if st := s.State(); st.SimulatedAttackDice != 3 || st.SimulatedDefendDice != 2 {
				t.Errorf("expected 3/2 simulated dice, got %d/%d", st.SimulatedAttackDice, st.SimulatedDefendDice)
			}
		})
	}
}

func TestOddsBattleBlitz(t *testing.T) {
	t.Run("attacker win", func(t *testing.T) {
		s := newTestSimulator(t, 8, 3, 0, &scriptedRNG{doubles: []float64{0}})
		if err := s.Blitz(BlitzOddsBattle); err != nil {
			t.Fatalf("blitz: %v", err)
		}
		if s.Status() != StatusAttackerWin || s.RemainingDefend() != 0 {
			t.Errorf("expected attacker win, got %v with %d defenders", s.Status(), s.RemainingDefend())
		}
		if s.RemainingAttack() < 1 {
			t.Errorf("expected surviving attackers, got %d", s.RemainingAttack())
		}
	})
	t.Run("defender win", func(t *testing.T) {
		s := newTestSimulator(t, 8, 3, 0, &scriptedRNG{doubles: []float64{1}})
		if err := s.Blitz(BlitzOddsBattle); err != nil {
			t.Fatalf("blitz: %v", err)
		}
		if s.Status() != StatusDefenderWin || s.RemainingAttack() != 0 {
			t.Errorf("expected defender win, got %v with %d attackers", s.Status(), s.RemainingAttack())
		}
		if s.RemainingDefend() < 1 {
			t.Errorf("expected surviving defenders, got %d", s.RemainingDefend())
		}
	})
}

func TestEarlyStopBlitzKeepsReserve(t *testing.T) {
	s := newTestSimulator(t, 10, 6, 4, &scriptedRNG{doubles: []float64{1}})
	if err := s.Blitz(BlitzOddsBattle); err != nil {
		t.Fatalf("blitz: %v", err)
	}
	if s.RemainingAttack() != 4 {
		t.Errorf("expected the reserve of 4 to survive, got %d", s.RemainingAttack())
	}
	if s.Status() != StatusUnresolved || !s.IsComplete() {
		t.Errorf("expected a complete unresolved battle, got %v complete=%v", s.Status(), s.IsComplete())
	}
	if err := s.Blitz(BlitzOddsBattle); !errors.Is(err, ErrBattleComplete) {
		t.Errorf("expected ErrBattleComplete, got %v", err)
	}

	seeded := newTestSimulator(t, 12, 12, 3, NewPCG(7, 1))
	if err := seeded.Blitz(BlitzDiceRoll); err != nil {
		t.Fatalf("dice blitz: %v", err)
	}
	if seeded.RemainingAttack() < 3 {
		t.Errorf("expected dice blitz to stop at the reserve, got %d", seeded.RemainingAttack())
	}
}

func TestBlitzMethodsComplete(t *testing.T) {
	for _, m := range []BlitzMethod{BlitzDiceRoll, BlitzOddsRound, BlitzOddsBattle} {
		s := newTestSimulator(t, 15, 15, 0, NewPCG(uint64(m)+11, 3))
		if err := s.Blitz(m); err != nil {
			t.Fatalf("blitz %d: %v", m, err)
		}
		if !s.IsComplete() || s.Status() == StatusUnresolved {
			t.Errorf("method %d: expected a resolved battle, got %v", m, s.Status())
		}
		if err := s.NextRound(RoundDiceRoll); !errors.Is(err, ErrBattleComplete) {
			t.Errorf("method %d: expected ErrBattleComplete, got %v", m, err)
		}
	}
}

func TestSimulatorReset(t *testing.T) {
	s := newTestSimulator(t, 6, 4, 0, NewPCG(1, 2))
	if err := s.Blitz(BlitzDiceRoll); err != nil {
		t.Fatalf("blitz: %v", err)
	}
	s.Reset()
	st := s.State()
	if st.RemainingAttack != 6 || st.RemainingDefend != 4 || st.Complete {
		t.Errorf("expected a fresh 6v4 battle, got %+v", st)
	}
	if st.AttackRolls != nil {
		t.Error("expected rolls cleared")
	}
	for face, n := range st.AttackTally {
		if n != 0 {
			t.Errorf("expected face %d tally cleared, got %d", face, n)
		}
	}
}

func TestSimulatorStateRoundTrip(t *testing.T) {
	p := DefaultBalanceParams
	units := BattleUnits{Attack: 9, Defend: 7, StopUntil: 2}
	s, err := NewSimulator(nil, units, DefaultRoundConfig, &p, NewPCG(99, 5))
	if err != nil {
		t.Fatalf("new simulator: %v", err)
	}
	for range 2 {
		if err := s.NextRound(RoundDiceRoll); err != nil && !errors.Is(err, ErrBattleComplete) {
			t.Fatalf("next round: %v", err)
		}
	}

	data, err := json.Marshal(s.State())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var st SimulatorState
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	restored, err := RestoreSimulator(nil, st, NewPCG(99, 5))
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !reflect.DeepEqual(restored.State(), s.State()) {
		t.Errorf("expected %+v, got %+v", s.State(), restored.State())
	}

	st.RemainingAttack = 20
	if _, err := RestoreSimulator(nil, st, nil); !errors.Is(err, ErrInvalidUnits) {
		t.Errorf("expected ErrInvalidUnits, got %v", err)
	}
}

func TestParseMethods(t *testing.T) {
	if m, err := ParseRoundMethod("odds"); err != nil || m != RoundOddsBased {
		t.Errorf("expected odds method, got %v %v", m, err)
	}
	if m, err := ParseBlitzMethod(""); err != nil || m != BlitzOddsBattle {
		t.Errorf("expected odds battle default, got %v %v", m, err)
	}
	if _, err := ParseBlitzMethod("coin"); err == nil {
		t.Error("expected unknown blitz method error")
	}
	var st Status
	if err := st.UnmarshalText([]byte("defender_win")); err != nil || st != StatusDefenderWin {
		t.Errorf("expected defender win, got %v %v", st, err)
	}
}

func TestDiceBlitzMatchesExactOdds(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping statistical test in short mode")
	}
	e := NewEngine()
	units := BattleUnits{Attack: 5, Defend: 3}
	exact := mustBattle(t, e, 5, 3, 0, DefaultRoundConfig).AttackWinChance()

	const trials = 20000
	rng := NewPCG(2024, 17)
	wins := 0
	for range trials {
		s, err := NewSimulator(e, units, DefaultRoundConfig, nil, rng)
		if err != nil {
			t.Fatalf("new simulator: %v", err)
		}
		if err := s.Blitz(BlitzDiceRoll); err != nil {
			t.Fatalf("blitz: %v", err)
		}
		if s.Status() == StatusAttackerWin {
			wins++
		}
	}
	got := float64(wins) / trials
	// Four standard deviations at p=0.5 over 20000 trials.
	if math.Abs(got-exact) > 0.015 {
		t.Errorf("expected attacker win rate near %.4f, got %.4f", exact, got)
	}
}
