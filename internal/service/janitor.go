package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/dice-odds/api/pkg/dice"
)

// EngineJanitor periodically reports engine cache usage and clears the
// engine once it holds more battles than maxBattles. Cleared battles are
// rebuilt on demand, from the distribution cache when it has them.
type EngineJanitor struct {
	engine     *dice.Engine
	maxBattles int
	interval   time.Duration
}

// NewEngineJanitor creates an EngineJanitor. A non-positive maxBattles only reports.
func NewEngineJanitor(engine *dice.Engine, maxBattles int, interval time.Duration) *EngineJanitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &EngineJanitor{engine: engine, maxBattles: maxBattles, interval: interval}
}

// Start runs the sweep loop until ctx is cancelled.
func (j *EngineJanitor) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", j.interval).Int("maxBattles", j.maxBattles).Msg("Engine janitor started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Engine janitor stopped")
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

// sweep reports whether the engine was cleared.
func (j *EngineJanitor) sweep() bool {
	st := j.engine.Stats()
	log.Debug().
		Int("rounds", st.Rounds).
		Int("battles", st.Battles).
		Int("winTables", st.WinTables).
		Int64("hits", st.Hits).
		Int64("battleBuilds", st.BattleBuilds).
		Msg("Engine cache stats")

	if j.maxBattles <= 0 || st.Battles <= j.maxBattles {
		return false
	}
	j.engine.Clear()
	log.Info().Int("battles", st.Battles).Int("maxBattles", j.maxBattles).Msg("Engine cache cleared")
	return true
}
