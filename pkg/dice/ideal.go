package dice

import (
	"errors"
	"math"
)

// maxIdealUnits bounds the upward search in IdealUnits.
const maxIdealUnits = 1 << 14

var ErrThresholdUnreachable = errors.New("win chance threshold unreachable")

// WinChance looks up the attacker win chance in the win chance table. Held
// back units do not fight, so only Attack-StopUntil units are counted.
func (e *Engine) WinChance(units BattleUnits, cfg RoundConfig, balance *BalanceParams) (float64, error) {
	if err := units.Validate(); err != nil {
		return 0, err
	}
	return e.tableChance(units.Attack-units.StopUntil, units.Defend, cfg, balance)
}

func (e *Engine) tableChance(attack, defend int, cfg RoundConfig, balance *BalanceParams) (float64, error) {
	t, err := e.WinChances(max(attack, defend), cfg, balance)
	if err != nil {
		return 0, err
	}
	return t.At(attack, defend), nil
}

// IdealUnits returns the fewest attacking units whose win chance against
// defend units reaches threshold. The threshold is clamped to [0.01, 0.99].
func (e *Engine) IdealUnits(defend int, threshold float64, cfg RoundConfig, balance *BalanceParams) (int, error) {
	threshold = min(max(threshold, 0.01), 0.99)
	if defend <= 0 {
		return 1, nil
	}

	ideal := max(int(math.RoundToEven(threshold*float64(defend)*2)), 1)
	w, err := e.tableChance(ideal, defend, cfg, balance)
	if err != nil {
		return 0, err
	}

	if w >= threshold {
		for ideal > 1 {
			w, err := e.tableChance(ideal-1, defend, cfg, balance)
			if err != nil {
				return 0, err
			}
			if w < threshold {
				break
			}
			ideal--
		}
		return ideal, nil
	}

	for w < threshold {
		ideal++
		if ideal > maxIdealUnits {
			return 0, ErrThresholdUnreachable
		}
		if w, err = e.tableChance(ideal, defend, cfg, balance); err != nil {
			return 0, err
		}
	}
	return ideal, nil
}
