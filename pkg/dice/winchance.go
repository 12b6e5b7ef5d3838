package dice

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
)

// WinChanceTable holds the attacker win chance for every (attack, defend)
// pair below Size. Cells are filled from the round distributions of the dice
// caps, so large tables are cheap next to exact battle enumeration.
type WinChanceTable struct {
	size    int
	config  RoundConfig
	balance *BalanceParams
	cells   []float64 // row-major, index attack*size+defend

	src   outcomeSource
	once  sync.Once
	ready atomic.Bool
}

// NewWinChanceTable creates an uncalculated table. A nil balance keeps the raw chances.
func NewWinChanceTable(cfg RoundConfig, size int, balance *BalanceParams) (*WinChanceTable, error) {
	if size <= 2 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &WinChanceTable{size: size, config: cfg}
	if balance != nil {
		p := *balance
		t.balance = &p
	}
	return t, nil
}

func (t *WinChanceTable) Size() int           { return t.size }
func (t *WinChanceTable) Config() RoundConfig { return t.config }
func (t *WinChanceTable) Ready() bool         { return t.ready.Load() }

func (t *WinChanceTable) Balance() (BalanceParams, bool) {
	if t.balance == nil {
		return BalanceParams{}, false
	}
	return *t.balance, true
}

// At returns the attacker win chance for the given unit counts.
func (t *WinChanceTable) At(attack, defend int) float64 {
	return t.cells[attack*t.size+defend]
}

// Row returns a copy of the chances for a fixed attacker count.
func (t *WinChanceTable) Row(attack int) []float64 {
	return slices.Clone(t.cells[attack*t.size : (attack+1)*t.size])
}

// Flat returns a row-major copy of the whole table.
func (t *WinChanceTable) Flat() []float64 {
	return slices.Clone(t.cells)
}

// Calculate fills the table. Later calls are no-ops.
func (t *WinChanceTable) Calculate() {
	t.once.Do(func() {
		src := t.src
		if src == nil {
			src = NewEngine()
		}
		t.cells = t.fill(src)
		t.ready.Store(true)
	})
}

func (t *WinChanceTable) fill(src outcomeSource) []float64 {
	maxA, maxD := t.config.AttackDice, t.config.DefendDice

	rounds := make([][][]float64, maxA+1)
	for a := 1; a <= maxA; a++ {
		rounds[a] = make([][]float64, maxD+1)
		for d := 1; d <= maxD; d++ {
			rc := t.config.ForUnits(BattleUnits{Attack: a, Defend: d})
			rounds[a][d] = src.round(rc).AttackLossChances()
		}
	}

	n := t.size
	cells := make([]float64, n*n)
	for a := 1; a < n; a++ {
		cells[a*n] = 1
	}
	for a := 1; a < n; a++ {
		roundA := min(a, maxA)
		for d := 1; d < n; d++ {
			roundD := min(d, maxD)
			c := min(roundA, roundD)
			chances := rounds[roundA][roundD]
			var w float64
			for o := 0; o <= c && a-o > 0; o++ {
				w += chances[o] * cells[(a-o)*n+d-c+o]
			}
			cells[a*n+d] = w
		}
	}

	if t.balance != nil {
		for i, w := range cells {
			cells[i] = BalanceWinChance(w, *t.balance)
		}
	}
	return cells
}
