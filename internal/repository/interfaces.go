package repository

import (
	"context"

	"github.com/freeeve/dice-odds/api/internal/model"
	"github.com/freeeve/dice-odds/api/pkg/dice"
)

// UserRepository defines user data operations.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByProviderID(ctx context.Context, provider, providerID string) (*model.User, error)
	Upsert(ctx context.Context, provider, providerID, displayName, avatarURL string) (*model.User, error)
	UpdateDisplayName(ctx context.Context, id, displayName string) error
}

// BattleRepository stores finished battles.
type BattleRepository interface {
	Create(ctx context.Context, rec *model.BattleRecord) (*model.BattleRecord, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]model.BattleRecord, error)
	StatsByUser(ctx context.Context, userID string) (*model.BattleStats, error)
}

// SessionStore holds live battle sessions (Redis). Get returns nil for an
// unknown or expired session.
type SessionStore interface {
	Save(ctx context.Context, s *model.BattleSession) error
	Get(ctx context.Context, id string) (*model.BattleSession, error)
	ListByUser(ctx context.Context, userID string) ([]model.BattleSession, error)
	Delete(ctx context.Context, userID, id string) error
}

// DistributionCache is a shared store of computed battle distributions.
// Get returns nil on a miss.
type DistributionCache interface {
	GetBattle(ctx context.Context, units dice.BattleUnits, cfg dice.RoundConfig) (*dice.BattleOutcome, error)
	SetBattle(ctx context.Context, b *dice.BattleOutcome) error
}
