package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/freeeve/dice-odds/api/internal/model"
)

// BlitzRunRepo stores Monte Carlo comparison results.
type BlitzRunRepo struct {
	db *sql.DB
}

func NewBlitzRunRepo(db *sql.DB) *BlitzRunRepo {
	return &BlitzRunRepo{db: db}
}

// Create inserts a run and fills in its ID and creation time.
func (r *BlitzRunRepo) Create(ctx context.Context, run *model.BlitzRun) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO blitz_runs (run_id, method, attack, defend, stop_until, faces, attack_dice, defend_dice,
		                         favour_defender, balanced, trials, attacker_wins, defender_wins, unresolved,
		                         expected_win, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 RETURNING id, created_at`,
		run.RunID, run.Method, run.Attack, run.Defend, run.StopUntil, run.Faces, run.AttackDice, run.DefendDice,
		run.FavourDefender, run.Balanced, run.Trials, run.AttackerWins, run.DefenderWins, run.Unresolved,
		run.ExpectedWin, run.DurationMS,
	).Scan(&run.ID, &run.CreatedAt)
	if err != nil {
		return fmt.Errorf("create blitz run: %w", err)
	}
	return nil
}

// ListByRun returns the rows of one comparison in method order.
func (r *BlitzRunRepo) ListByRun(ctx context.Context, runID string) ([]model.BlitzRun, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, run_id, method, attack, defend, stop_until, faces, attack_dice, defend_dice,
		        favour_defender, balanced, trials, attacker_wins, defender_wins, unresolved,
		        expected_win, duration_ms, created_at
		 FROM blitz_runs WHERE run_id = $1 ORDER BY method`, runID)
	if err != nil {
		return nil, fmt.Errorf("list blitz runs: %w", err)
	}
	defer rows.Close()

	runs := []model.BlitzRun{}
	for rows.Next() {
		var b model.BlitzRun
		if err := rows.Scan(&b.ID, &b.RunID, &b.Method, &b.Attack, &b.Defend, &b.StopUntil, &b.Faces,
			&b.AttackDice, &b.DefendDice, &b.FavourDefender, &b.Balanced, &b.Trials, &b.AttackerWins,
			&b.DefenderWins, &b.Unresolved, &b.ExpectedWin, &b.DurationMS, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan blitz run: %w", err)
		}
		runs = append(runs, b)
	}
	return runs, rows.Err()
}
