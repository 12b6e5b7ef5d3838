package config

import (
	"testing"
	"time"

	"github.com/freeeve/dice-odds/api/pkg/dice"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8009" {
		t.Errorf("expected port 8009, got %s", cfg.Port)
	}
	if cfg.RoundConfig() != dice.DefaultRoundConfig {
		t.Errorf("expected default round config, got %v", cfg.RoundConfig())
	}
	if cfg.BalanceParams() != dice.DefaultBalanceParams {
		t.Errorf("expected default balance params, got %+v", cfg.BalanceParams())
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Errorf("expected 24h session TTL, got %s", cfg.SessionTTL)
	}
	if cfg.JWTAccessTTL != 15*time.Minute || cfg.JWTRefreshTTL != 7*24*time.Hour {
		t.Errorf("expected 15m/168h token TTLs, got %s/%s", cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
	}
	if rc := cfg.RNGConfig(); rc.Kind != dice.RNGPCG || rc.Seeded {
		t.Errorf("expected unseeded pcg, got %+v", rc)
	}
	if cfg.MaxDiceFaces != 20 || cfg.MaxDicePerSide != 6 || cfg.MaxRoundPermutations != 10_000_000 {
		t.Errorf("expected 20 faces, 6 dice, 1e7 permutations, got %d/%d/%d",
			cfg.MaxDiceFaces, cfg.MaxDicePerSide, cfg.MaxRoundPermutations)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9100")
	t.Setenv("DICE_FACES", "8")
	t.Setenv("DICE_FAVOUR_DEFENDER", "false")
	t.Setenv("BALANCE_WIN_POWER", "2")
	t.Setenv("RNG_KIND", "xorshift")
	t.Setenv("RNG_SEED", "42")
	t.Setenv("SESSION_TTL", "90m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9100" {
		t.Errorf("expected port 9100, got %s", cfg.Port)
	}
	want := dice.RoundConfig{Faces: 8, AttackDice: 3, DefendDice: 2, FavourDefenderOnDraw: false}
	if cfg.RoundConfig() != want {
		t.Errorf("expected %v, got %v", want, cfg.RoundConfig())
	}
	if cfg.BalanceParams().WinChancePower != 2 {
		t.Errorf("expected win power 2, got %g", cfg.BalanceParams().WinChancePower)
	}
	if rc := cfg.RNGConfig(); rc.Kind != dice.RNGXorShift || !rc.Seeded || rc.Seed != 42 {
		t.Errorf("expected seeded xorshift, got %+v", rc)
	}
	if cfg.SessionTTL != 90*time.Minute {
		t.Errorf("expected 90m, got %s", cfg.SessionTTL)
	}
}

func TestLoadRejectsInvalidDice(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"one face", "DICE_FACES", "1"},
		{"no defend dice", "DICE_DEFEND", "0"},
		{"cutoff too large", "BALANCE_WIN_CUTOFF", "0.6"},
		{"no units", "MAX_BATTLE_UNITS", "0"},
		{"not a number", "DICE_ATTACK", "three"},
		{"faces above limit", "DICE_FACES", "30"},
		{"attack dice above limit", "DICE_ATTACK", "7"},
		{"face limit too small", "MAX_DICE_FACES", "1"},
		{"no dice per side", "MAX_DICE_PER_SIDE", "0"},
		{"permutations below default", "MAX_ROUND_PERMUTATIONS", "1000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected %s=%s to be rejected", tt.key, tt.value)
			}
		})
	}
}
