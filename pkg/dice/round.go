// Package dice computes loss distributions for dice-resolved attrition battles
// and simulates such battles round by round or in a single blitz.
package dice

import (
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"
)

// RoundConfig describes one clash of dice. It is a comparable value and is
// used directly as a cache key.
type RoundConfig struct {
	Faces                int  `json:"faces"`
	AttackDice           int  `json:"attack_dice"`
	DefendDice           int  `json:"defend_dice"`
	FavourDefenderOnDraw bool `json:"favour_defender_on_draw"`
}

// DefaultRoundConfig is the classic six-sided, three against two setup.
var DefaultRoundConfig = RoundConfig{Faces: 6, AttackDice: 3, DefendDice: 2, FavourDefenderOnDraw: true}

// NewRoundConfig validates and builds a RoundConfig.
func NewRoundConfig(faces, attackDice, defendDice int, favourDefender bool) (RoundConfig, error) {
	cfg := RoundConfig{Faces: faces, AttackDice: attackDice, DefendDice: defendDice, FavourDefenderOnDraw: favourDefender}
	if err := cfg.Validate(); err != nil {
		return RoundConfig{}, err
	}
	return cfg, nil
}

// Validate checks face and dice counts.
func (c RoundConfig) Validate() error {
	if c.Faces < 2 {
		return fmt.Errorf("%w: faces must be at least 2, got %d", ErrInvalidConfig, c.Faces)
	}
	if c.AttackDice <= 0 {
		return fmt.Errorf("%w: attack dice must be positive, got %d", ErrInvalidConfig, c.AttackDice)
	}
	if c.DefendDice <= 0 {
		return fmt.Errorf("%w: defend dice must be positive, got %d", ErrInvalidConfig, c.DefendDice)
	}
	return nil
}

// ChallengeCount is the number of dice pairs compared in a round.
func (c RoundConfig) ChallengeCount() int {
	return min(c.AttackDice, c.DefendDice)
}

// Permutations is the number of face combinations a round enumerates,
// faces^(attack+defend). ok is false when the count does not fit in a uint64.
func (c RoundConfig) Permutations() (n uint64, ok bool) {
	if c.Faces < 1 {
		return 0, true
	}
	n = 1
	faces := uint64(c.Faces)
	for range c.AttackDice + c.DefendDice {
		if n > math.MaxUint64/faces {
			return 0, false
		}
		n *= faces
	}
	return n, true
}

func (c RoundConfig) WithFaces(n int) RoundConfig {
	c.Faces = n
	return c
}

func (c RoundConfig) WithAttackDice(n int) RoundConfig {
	c.AttackDice = n
	return c
}

func (c RoundConfig) WithDefendDice(n int) RoundConfig {
	c.DefendDice = n
	return c
}

func (c RoundConfig) WithFavourDefenderOnDraw(v bool) RoundConfig {
	c.FavourDefenderOnDraw = v
	return c
}

// WithMaxAttackDice caps the attacker's dice; n <= 0 leaves the config unchanged.
func (c RoundConfig) WithMaxAttackDice(n int) RoundConfig {
	if n > 0 {
		c.AttackDice = min(c.AttackDice, n)
	}
	return c
}

// ForUnits caps the dice of both sides by the units they can commit.
func (c RoundConfig) ForUnits(u BattleUnits) RoundConfig {
	c.AttackDice = min(u.Attack-u.StopUntil, c.AttackDice)
	c.DefendDice = min(u.Defend, c.DefendDice)
	return c
}

func (c RoundConfig) String() string {
	return fmt.Sprintf("d%d %dv%d favour=%t", c.Faces, c.AttackDice, c.DefendDice, c.FavourDefenderOnDraw)
}

// Augment is a bit set of tile or unit modifiers.
type Augment uint8

const (
	AugmentNone       Augment = 0
	AugmentOnCapital  Augment = 1 << 1
	AugmentBehindWall Augment = 1 << 2
	AugmentZombie     Augment = 1 << 3
)

func (a Augment) Has(flag Augment) bool { return a&flag != 0 }

// WithAugments returns the config adjusted for the attacker and defender modifiers.
func (c RoundConfig) WithAugments(attacker, defender Augment) RoundConfig {
	if attacker.Has(AugmentZombie) {
		c.AttackDice = max(c.AttackDice-1, 1)
	}
	if defender.Has(AugmentOnCapital) {
		c.DefendDice++
	}
	if defender.Has(AugmentBehindWall) {
		c.DefendDice++
	}
	if defender.Has(AugmentZombie) {
		c.FavourDefenderOnDraw = false
	}
	return c
}

// RoundOutcome is the exact distribution of attacker losses for a single round.
type RoundOutcome struct {
	config     RoundConfig
	attackLoss []float64
	once       sync.Once
	ready      atomic.Bool
}

func NewRoundOutcome(cfg RoundConfig) *RoundOutcome {
	return &RoundOutcome{config: cfg}
}

func (r *RoundOutcome) Config() RoundConfig { return r.config }

func (r *RoundOutcome) Ready() bool { return r.ready.Load() }

// AttackLossChances holds the probability of losing exactly i attacker units.
// The slice is shared and must not be modified.
func (r *RoundOutcome) AttackLossChances() []float64 {
	r.Calculate()
	return r.attackLoss
}

// Calculate enumerates every face permutation of all dice. Later calls are no-ops.
func (r *RoundOutcome) Calculate() {
	r.once.Do(func() {
		r.attackLoss = enumerateRound(r.config)
		r.ready.Store(true)
	})
}

func enumerateRound(cfg RoundConfig) []float64 {
	nA, nD := cfg.AttackDice, cfg.DefendDice
	challenges := cfg.ChallengeCount()
	counts := make([]uint64, challenges+1)

	rolls := make([]int, nA+nD)
	attack := make([]int, nA)
	defend := make([]int, nD)
	var total uint64

	for {
		copy(attack, rolls[:nA])
		copy(defend, rolls[nA:])
		// Ascending sort: the highest dice sit at the tail.
		slices.Sort(attack)
		slices.Sort(defend)

		losses := 0
		for i := 1; i <= challenges; i++ {
			a, d := attack[nA-i], defend[nD-i]
			if a < d || (a == d && cfg.FavourDefenderOnDraw) {
				losses++
			}
		}
		counts[losses]++
		total++

		// Odometer step over all dice.
		k := 0
		for k < len(rolls) {
			rolls[k]++
			if rolls[k] < cfg.Faces {
				break
			}
			rolls[k] = 0
			k++
		}
		if k == len(rolls) {
			break
		}
	}

	chances := make([]float64, challenges+1)
	for i, n := range counts {
		chances[i] = float64(n) / float64(total)
	}
	return chances
}
