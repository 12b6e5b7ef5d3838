package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/freeeve/dice-odds/api/pkg/dice"
)

// distributionKey identifies a full battle under one dice configuration.
func distributionKey(units dice.BattleUnits, cfg dice.RoundConfig) string {
	return fmt.Sprintf("dist:%d:%d:%d:%t:%dv%d",
		cfg.Faces, cfg.AttackDice, cfg.DefendDice, cfg.FavourDefenderOnDraw, units.Attack, units.Defend)
}

// GetBattle returns a cached raw distribution, or nil on a miss. Early stop
// battles are never stored; callers derive them from the full battle.
func (c *Client) GetBattle(ctx context.Context, units dice.BattleUnits, cfg dice.RoundConfig) (*dice.BattleOutcome, error) {
	if units.IsEarlyStop() {
		return nil, nil
	}
	data, err := c.rdb.Get(ctx, distributionKey(units, cfg)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get distribution: %w", err)
	}
	b, err := dice.DecodeBattle(units, cfg, data)
	if err != nil {
		return nil, fmt.Errorf("distribution %s: %w", distributionKey(units, cfg), err)
	}
	return b, nil
}

// SetBattle stores a raw full battle. Balanced and early stop outcomes are skipped.
func (c *Client) SetBattle(ctx context.Context, b *dice.BattleOutcome) error {
	if b.Kind() != dice.Raw || b.Units().IsEarlyStop() || !b.Ready() {
		return nil
	}
	key := distributionKey(b.Units(), b.Config())
	if err := c.rdb.Set(ctx, key, dice.EncodeBattle(b), c.distributionTTL).Err(); err != nil {
		return fmt.Errorf("set distribution: %w", err)
	}
	return nil
}

// CachedBattles counts stored distributions for one dice configuration.
func (c *Client) CachedBattles(ctx context.Context, cfg dice.RoundConfig) (int, error) {
	pattern := fmt.Sprintf("dist:%d:%d:%d:%t:*", cfg.Faces, cfg.AttackDice, cfg.DefendDice, cfg.FavourDefenderOnDraw)
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			return 0, fmt.Errorf("scan distributions: %w", err)
		}
		total += len(keys)
		if next == 0 {
			return total, nil
		}
		cursor = next
	}
}
