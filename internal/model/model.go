package model

import (
	"time"

	"github.com/freeeve/dice-odds/api/pkg/dice"
)

// User represents a registered user.
type User struct {
	ID          string    `json:"id"`
	Provider    string    `json:"provider"`
	ProviderID  string    `json:"provider_id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BattleSession is a live battle owned by one user, kept in Redis between requests.
type BattleSession struct {
	ID        string              `json:"id"`
	UserID    string              `json:"user_id"`
	State     dice.SimulatorState `json:"state"`
	RNG       dice.RNGConfig      `json:"rng"`
	Steps     int                 `json:"steps"` // resolved actions; seeded sessions derive each stream from it
	Rounds    int                 `json:"rounds"`
	Method    string              `json:"method,omitempty"`
	WinChance float64             `json:"win_chance"`
	Recorded  bool                `json:"recorded"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// BattleRecord is the finished-battle history row stored in Postgres.
type BattleRecord struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	UserID          string    `json:"user_id"`
	Attack          int       `json:"attack"`
	Defend          int       `json:"defend"`
	StopUntil       int       `json:"stop_until"`
	Faces           int       `json:"faces"`
	AttackDice      int       `json:"attack_dice"`
	DefendDice      int       `json:"defend_dice"`
	FavourDefender  bool      `json:"favour_defender"`
	Balanced        bool      `json:"balanced"`
	Method          string    `json:"method"`
	Status          string    `json:"status"`
	AttackLosses    int       `json:"attack_losses"`
	DefendLosses    int       `json:"defend_losses"`
	Rounds          int       `json:"rounds"`
	ExpectedWinRate float64   `json:"expected_win_rate"`
	CreatedAt       time.Time `json:"created_at"`
}

// RoundConfig returns the dice settings the battle was fought with.
func (r *BattleRecord) RoundConfig() dice.RoundConfig {
	return dice.RoundConfig{
		Faces:                r.Faces,
		AttackDice:           r.AttackDice,
		DefendDice:           r.DefendDice,
		FavourDefenderOnDraw: r.FavourDefender,
	}
}

// BattleStats aggregates a user's finished battles.
type BattleStats struct {
	Total          int     `json:"total"`
	AttackerWins   int     `json:"attacker_wins"`
	DefenderWins   int     `json:"defender_wins"`
	Unresolved     int     `json:"unresolved"`
	ExpectedWins   float64 `json:"expected_wins"`
	UnitsLost      int     `json:"units_lost"`
	UnitsDestroyed int     `json:"units_destroyed"`
}

// BlitzRun is one method's result in a Monte Carlo blitz comparison.
type BlitzRun struct {
	ID             string    `json:"id"`
	RunID          string    `json:"run_id"`
	Method         string    `json:"method"`
	Attack         int       `json:"attack"`
	Defend         int       `json:"defend"`
	StopUntil      int       `json:"stop_until"`
	Faces          int       `json:"faces"`
	AttackDice     int       `json:"attack_dice"`
	DefendDice     int       `json:"defend_dice"`
	FavourDefender bool      `json:"favour_defender"`
	Balanced       bool      `json:"balanced"`
	Trials         int       `json:"trials"`
	AttackerWins   int       `json:"attacker_wins"`
	DefenderWins   int       `json:"defender_wins"`
	Unresolved     int       `json:"unresolved"`
	ExpectedWin    float64   `json:"expected_win"`
	DurationMS     int64     `json:"duration_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// WinRate is the observed attacker win fraction.
func (b *BlitzRun) WinRate() float64 {
	if b.Trials == 0 {
		return 0
	}
	return float64(b.AttackerWins) / float64(b.Trials)
}
