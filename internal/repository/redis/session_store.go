package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/freeeve/dice-odds/api/internal/model"
)

func sessionKey(id string) string          { return "battle:" + id }
func userSessionsKey(userID string) string { return "user:" + userID + ":battles" }

// Save stores the session JSON and refreshes both TTLs.
func (c *Client) Save(ctx context.Context, s *model.BattleSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(s.ID), data, c.sessionTTL)
		pipe.SAdd(ctx, userSessionsKey(s.UserID), s.ID)
		pipe.Expire(ctx, userSessionsKey(s.UserID), c.sessionTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Get returns the session, or nil when it does not exist or has expired.
func (c *Client) Get(ctx context.Context, id string) (*model.BattleSession, error) {
	data, err := c.rdb.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	var s model.BattleSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &s, nil
}

// ListByUser returns the user's live sessions. IDs whose session expired are
// pruned from the user's set.
func (c *Client) ListByUser(ctx context.Context, userID string) ([]model.BattleSession, error) {
	ids, err := c.rdb.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list session ids: %w", err)
	}
	if len(ids) == 0 {
		return []model.BattleSession{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(id)
	}
	values, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("get sessions: %w", err)
	}

	sessions := make([]model.BattleSession, 0, len(values))
	var stale []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var s model.BattleSession
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", ids[i], err)
		}
		sessions = append(sessions, s)
	}
	if len(stale) > 0 {
		if err := c.rdb.SRem(ctx, userSessionsKey(userID), stale...).Err(); err != nil {
			return nil, fmt.Errorf("prune sessions: %w", err)
		}
	}
	return sessions, nil
}

// Delete removes the session and its entry in the user's set.
func (c *Client) Delete(ctx context.Context, userID, id string) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(id))
		pipe.SRem(ctx, userSessionsKey(userID), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
