package dice

import (
	"fmt"
	"math"
	"slices"
)

// BalanceParams tune how a computed distribution is reshaped before use.
// A cutoff <= 0 or a power of exactly 1 disables that stage.
type BalanceParams struct {
	WinChanceCutoff float64 `json:"win_chance_cutoff"`
	WinChancePower  float64 `json:"win_chance_power"`
	OutcomeCutoff   float64 `json:"outcome_cutoff"`
	OutcomePower    float64 `json:"outcome_power"`
}

var DefaultBalanceParams = BalanceParams{
	WinChanceCutoff: 0.05,
	WinChancePower:  1.3,
	OutcomeCutoff:   0.1,
	OutcomePower:    1.8,
}

func (p BalanceParams) Validate() error {
	if p.WinChanceCutoff >= 0.5 {
		return fmt.Errorf("%w: win chance cutoff must be below 0.5, got %g", ErrInvalidBalance, p.WinChanceCutoff)
	}
	if p.WinChancePower <= 0 || p.OutcomePower <= 0 {
		return fmt.Errorf("%w: powers must be positive", ErrInvalidBalance)
	}
	if p.OutcomeCutoff >= 0.5 {
		return fmt.Errorf("%w: outcome cutoff must be below 0.5, got %g", ErrInvalidBalance, p.OutcomeCutoff)
	}
	return nil
}

// Balance returns a reshaped copy of a ready raw outcome. The input is not modified.
func Balance(raw *BattleOutcome, p BalanceParams) *BattleOutcome {
	raw.Calculate()
	b := newReadyBattle(raw.units, raw.config, slices.Clone(raw.attackLoss), slices.Clone(raw.defendLoss))
	b.kind = Balanced
	b.balance = p

	b.applyWinChanceCutoff(p.WinChanceCutoff)
	b.applyWinChancePower(p.WinChancePower)
	b.applyOutcomeCutoff(p.OutcomeCutoff)
	b.applyOutcomePower(p.OutcomePower)

	if err := b.verify(); err != nil {
		panic(err)
	}
	return b
}

func nonTerminal(xs []float64) []float64 { return xs[:len(xs)-1] }

func last(xs []float64) *float64 { return &xs[len(xs)-1] }

// applyWinChanceCutoff snaps a near-certain result to certainty.
func (b *BattleOutcome) applyWinChanceCutoff(cutoff float64) {
	if cutoff <= 0 {
		return
	}
	early := b.units.IsEarlyStop()

	var lose, win []float64
	attackerLoses := false
	if b.AttackWinChance() <= cutoff {
		lose, win = b.attackLoss, b.defendLoss
		attackerLoses = true
	}
	other := b.DefendWinChance()
	if early {
		other = b.UnresolvedChance()
	}
	if other <= cutoff {
		lose, win = b.defendLoss, b.attackLoss
		attackerLoses = false
	}
	if win == nil {
		return
	}

	clear(nonTerminal(lose))
	if early && attackerLoses {
		*last(lose) = 0
	} else {
		*last(lose) = 1
	}
	*last(win) = 0
	NormalizeSum(nonTerminal(win), 1)
}

// applyWinChancePower pushes the likelier side further ahead.
func (b *BattleOutcome) applyWinChancePower(power float64) {
	if power == 1 {
		return
	}
	early := b.units.IsEarlyStop()

	attackWin := b.AttackWinChance()
	other := b.DefendWinChance()
	if early {
		other = b.UnresolvedChance()
	}

	win, lose := b.defendLoss, b.attackLoss
	targetWin, targetLose := math.Pow(other, power), math.Pow(attackWin, power)
	attackerAhead := attackWin > other
	if attackerAhead {
		win, lose = b.attackLoss, b.defendLoss
		targetWin, targetLose = math.Pow(attackWin, power), math.Pow(other, power)
	}

	ratio := 1 / (targetWin + targetLose)
	targetWin *= ratio
	targetLose *= ratio

	NormalizeSum(nonTerminal(win), targetWin)
	NormalizeSum(nonTerminal(lose), targetLose)

	switch {
	case !early:
		*last(win) = targetLose
		*last(lose) = targetWin
	case attackerAhead:
		*last(lose) = targetWin
	default:
		*last(win) = targetLose
	}
}

// applyOutcomeCutoff trims the most extreme outcomes on both ends of the
// spectrum running from "attacker wins losing nothing" to "defender wins
// losing nothing".
func (b *BattleOutcome) applyOutcomeCutoff(cutoff float64) {
	if cutoff <= 0 {
		return
	}
	nA, nD := len(b.attackLoss)-1, len(b.defendLoss)-1
	spectrum := make([]float64, nA+nD)
	copy(spectrum, b.attackLoss[:nA])
	for i := range nD {
		spectrum[nA+i] = b.defendLoss[nD-1-i]
	}

	trim := func(idx func(int) int) {
		var cut float64
		for k := range spectrum {
			i := idx(k)
			cut += spectrum[i]
			if cut > cutoff {
				spectrum[i] = cut - cutoff
				return
			}
			spectrum[i] = 0
		}
	}
	trim(func(k int) int { return k })
	trim(func(k int) int { return len(spectrum) - 1 - k })

	copy(b.attackLoss[:nA], spectrum[:nA])
	for i := range nD {
		b.defendLoss[nD-1-i] = spectrum[nA+i]
	}

	targetAttack := Sum(b.attackLoss[:nA])
	targetOther := Sum(b.defendLoss[:nD])
	ratio := 1 / (targetAttack + targetOther)
	targetAttack *= ratio
	targetOther *= ratio

	NormalizeSum(b.attackLoss[:nA], targetAttack)
	NormalizeSum(b.defendLoss[:nD], targetOther)

	b.defendLoss[nD] = targetAttack
	if !b.units.IsEarlyStop() {
		b.attackLoss[nA] = targetOther
	}
}

// applyOutcomePower sharpens the loss shape without moving the win chance.
func (b *BattleOutcome) applyOutcomePower(power float64) {
	if power == 1 {
		return
	}
	for _, xs := range [][]float64{nonTerminal(b.attackLoss), nonTerminal(b.defendLoss)} {
		for i, v := range xs {
			xs[i] = math.Pow(v, power)
		}
	}

	other := b.DefendWinChance()
	if b.units.IsEarlyStop() {
		other = b.UnresolvedChance()
	}
	NormalizeSum(nonTerminal(b.attackLoss), b.AttackWinChance())
	NormalizeSum(nonTerminal(b.defendLoss), other)
}

// BalanceWinChance applies the scalar form of the first three stages to a
// single attacker win probability.
func BalanceWinChance(w float64, p BalanceParams) float64 {
	if p.WinChanceCutoff > 0 {
		if w < p.WinChanceCutoff {
			w = 0
		} else if w > 1-p.WinChanceCutoff {
			w = 1
		}
	}

	a := math.Pow(w, p.WinChancePower)
	d := math.Pow(1-w, p.WinChancePower)
	w = a / (a + d)

	a = w - p.OutcomeCutoff
	d = (1 - w) - p.OutcomeCutoff
	if a < 0 {
		d -= a
		a = 0
	}
	if d < 0 {
		a -= d
		d = 0
	}
	return a / (a + d)
}
