package dice

import (
	"errors"
	"math"
	"testing"
)

func assertClose(t *testing.T, name string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: expected %.15g, got %.15g", name, want, got)
	}
}

func assertRelClose(t *testing.T, name string, got, want, rel float64) {
	t.Helper()
	if math.Abs(got-want) > rel*math.Abs(want) {
		t.Errorf("%s: expected %.15g, got %.15g (relative tolerance %g)", name, want, got, rel)
	}
}

func TestDefaultRoundDistribution(t *testing.T) {
	r := NewRoundOutcome(DefaultRoundConfig)
	r.Calculate()

	chances := r.AttackLossChances()
	if len(chances) != 3 {
		t.Fatalf("expected 3 buckets, got %d", len(chances))
	}
	assertClose(t, "attack loses 2", chances[2], 0.292566872427984, 1e-12)
	assertClose(t, "attack loses 0", chances[0], 2890.0/7776, 1e-12)
	assertClose(t, "attack loses 1", chances[1], 2611.0/7776, 1e-12)
	assertClose(t, "sum", Sum(chances), 1, 1e-12)
}

func TestSingleDieRounds(t *testing.T) {
	tests := []struct {
		name     string
		favour   bool
		wantLoss float64
	}{
		{"defender favoured", true, 21.0 / 36},
		{"draws go to attacker", false, 15.0 / 36},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := RoundConfig{Faces: 6, AttackDice: 1, DefendDice: 1, FavourDefenderOnDraw: tt.favour}
			chances := NewRoundOutcome(cfg).AttackLossChances()
			assertClose(t, "attack loss", chances[1], tt.wantLoss, 1e-12)
			assertClose(t, "no loss", chances[0], 1-tt.wantLoss, 1e-12)
		})
	}
}

func TestRoundUnevenDice(t *testing.T) {
	// Only one challenge happens with a single defender die.
	cfg := RoundConfig{Faces: 6, AttackDice: 3, DefendDice: 1, FavourDefenderOnDraw: true}
	chances := NewRoundOutcome(cfg).AttackLossChances()
	if len(chances) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(chances))
	}
	assertClose(t, "attack loses 1", chances[1], 441.0/1296, 1e-12)
}

func TestRoundCalculateIdempotent(t *testing.T) {
	r := NewRoundOutcome(RoundConfig{Faces: 8, AttackDice: 2, DefendDice: 2})
	if r.Ready() {
		t.Fatal("expected model not ready before Calculate")
	}
	r.Calculate()
	first := r.AttackLossChances()
	snapshot := append([]float64(nil), first...)
	r.Calculate()
	second := r.AttackLossChances()

	if &first[0] != &second[0] {
		t.Error("expected second Calculate to keep the same distribution")
	}
	for i := range snapshot {
		if math.Float64bits(snapshot[i]) != math.Float64bits(second[i]) {
			t.Errorf("bucket %d changed: %v -> %v", i, snapshot[i], second[i])
		}
	}
	if !r.Ready() {
		t.Error("expected model ready")
	}
}

func TestNewRoundConfigValidation(t *testing.T) {
	tests := []struct {
		name                  string
		faces, attack, defend int
		wantErr               bool
	}{
		{"default", 6, 3, 2, false},
		{"coin", 2, 1, 1, false},
		{"one face", 1, 3, 2, true},
		{"no attack dice", 6, 0, 2, true},
		{"negative defend dice", 6, 3, -1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRoundConfig(tt.faces, tt.attack, tt.defend, true)
			if tt.wantErr && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestWithAugments(t *testing.T) {
	tests := []struct {
		name               string
		attacker, defender Augment
		want               RoundConfig
	}{
		{"none", AugmentNone, AugmentNone, DefaultRoundConfig},
		{"capital", AugmentNone, AugmentOnCapital, DefaultRoundConfig.WithDefendDice(3)},
		{"capital and wall", AugmentNone, AugmentOnCapital | AugmentBehindWall, DefaultRoundConfig.WithDefendDice(4)},
		{"zombie attacker", AugmentZombie, AugmentNone, DefaultRoundConfig.WithAttackDice(2)},
		{"zombie defender", AugmentNone, AugmentZombie, DefaultRoundConfig.WithFavourDefenderOnDraw(false)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DefaultRoundConfig.WithAugments(tt.attacker, tt.defender)
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	single := DefaultRoundConfig.WithAttackDice(1).WithAugments(AugmentZombie, AugmentNone)
	if single.AttackDice != 1 {
		t.Errorf("zombie attacker keeps at least one die, got %d", single.AttackDice)
	}
	if DefaultRoundConfig.AttackDice != 3 {
		t.Error("expected With* to leave the receiver untouched")
	}
}

func TestForUnitsCapsDice(t *testing.T) {
	got := DefaultRoundConfig.ForUnits(BattleUnits{Attack: 4, Defend: 1, StopUntil: 2})
	if got.AttackDice != 2 || got.DefendDice != 1 {
		t.Errorf("expected 2v1, got %dv%d", got.AttackDice, got.DefendDice)
	}
	if got := DefaultRoundConfig.WithMaxAttackDice(0); got != DefaultRoundConfig {
		t.Errorf("expected zero max to be ignored, got %v", got)
	}
	if got := DefaultRoundConfig.WithMaxAttackDice(1); got.AttackDice != 1 {
		t.Errorf("expected 1 attack die, got %d", got.AttackDice)
	}
}

func TestRoundPermutations(t *testing.T) {
	tests := []struct {
		cfg    RoundConfig
		want   uint64
		wantOK bool
	}{
		{DefaultRoundConfig, 7776, true},
		{RoundConfig{Faces: 20, AttackDice: 3, DefendDice: 2}, 3_200_000, true},
		{RoundConfig{Faces: 100, AttackDice: 4, DefendDice: 4}, 10_000_000_000_000_000, true},
		{RoundConfig{Faces: 100, AttackDice: 6, DefendDice: 5}, 0, false},
		{RoundConfig{Faces: 2, AttackDice: 32, DefendDice: 32}, 0, false},
	}
	for _, tt := range tests {
		got, ok := tt.cfg.Permutations()
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("%s: expected %d/%t, got %d/%t", tt.cfg, tt.want, tt.wantOK, got, ok)
		}
	}
}
