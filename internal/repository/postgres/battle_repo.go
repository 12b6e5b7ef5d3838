package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/freeeve/dice-odds/api/internal/model"
)

const battleColumns = `id, session_id, user_id, attack, defend, stop_until, faces, attack_dice, defend_dice,
		        favour_defender, balanced, method, status, attack_losses, defend_losses, rounds,
		        expected_win_rate, created_at`

// BattleRepo handles finished battle history.
type BattleRepo struct {
	db *sql.DB
}

// NewBattleRepo creates a BattleRepo.
func NewBattleRepo(db *sql.DB) *BattleRepo {
	return &BattleRepo{db: db}
}

// Create inserts a finished battle. Recording the same session twice is a no-op
// that returns the existing row.
func (r *BattleRepo) Create(ctx context.Context, rec *model.BattleRecord) (*model.BattleRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO battles (session_id, user_id, attack, defend, stop_until, faces, attack_dice, defend_dice,
		                      favour_defender, balanced, method, status, attack_losses, defend_losses, rounds, expected_win_rate)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (session_id) DO UPDATE SET session_id = EXCLUDED.session_id
		 RETURNING `+battleColumns,
		rec.SessionID, rec.UserID, rec.Attack, rec.Defend, rec.StopUntil, rec.Faces, rec.AttackDice, rec.DefendDice,
		rec.FavourDefender, rec.Balanced, rec.Method, rec.Status, rec.AttackLosses, rec.DefendLosses, rec.Rounds, rec.ExpectedWinRate,
	)
	out, err := scanBattle(row)
	if err != nil {
		return nil, fmt.Errorf("create battle: %w", err)
	}
	return out, nil
}

// ListByUser returns the user's most recent battles first.
func (r *BattleRepo) ListByUser(ctx context.Context, userID string, limit int) ([]model.BattleRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+battleColumns+`
		 FROM battles WHERE user_id = $1
		 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list user battles: %w", err)
	}
	defer rows.Close()

	battles := []model.BattleRecord{}
	for rows.Next() {
		b, err := scanBattle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan battle: %w", err)
		}
		battles = append(battles, *b)
	}
	return battles, rows.Err()
}

// StatsByUser aggregates outcomes over all of the user's battles.
func (r *BattleRepo) StatsByUser(ctx context.Context, userID string) (*model.BattleStats, error) {
	var s model.BattleStats
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE status = 'attacker_win'),
		        count(*) FILTER (WHERE status = 'defender_win'),
		        count(*) FILTER (WHERE status = 'unresolved'),
		        coalesce(sum(expected_win_rate), 0),
		        coalesce(sum(attack_losses), 0),
		        coalesce(sum(defend_losses), 0)
		 FROM battles WHERE user_id = $1`, userID,
	).Scan(&s.Total, &s.AttackerWins, &s.DefenderWins, &s.Unresolved, &s.ExpectedWins, &s.UnitsLost, &s.UnitsDestroyed)
	if err != nil {
		return nil, fmt.Errorf("battle stats: %w", err)
	}
	return &s, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBattle(s scanner) (*model.BattleRecord, error) {
	var b model.BattleRecord
	err := s.Scan(&b.ID, &b.SessionID, &b.UserID, &b.Attack, &b.Defend, &b.StopUntil, &b.Faces, &b.AttackDice, &b.DefendDice,
		&b.FavourDefender, &b.Balanced, &b.Method, &b.Status, &b.AttackLosses, &b.DefendLosses, &b.Rounds,
		&b.ExpectedWinRate, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
