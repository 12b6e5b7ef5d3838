package main

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/freeeve/dice-odds/api/pkg/dice"
)

// trialBatch is the number of trials a worker runs per job.
const trialBatch = 500

// matchConfig describes one comparison: a battle, its dice and how many
// trials each method gets.
type matchConfig struct {
	units   dice.BattleUnits
	round   dice.RoundConfig
	balance *dice.BalanceParams
	rng     dice.RNGConfig
	trials  int
	workers int
}

// methodResult is the tally of one blitz method against the exact chance.
type methodResult struct {
	Method       string        `json:"method"`
	Trials       int           `json:"trials"`
	AttackerWins int           `json:"attacker_wins"`
	DefenderWins int           `json:"defender_wins"`
	Unresolved   int           `json:"unresolved"`
	Errors       int           `json:"errors"`
	WinRate      float64       `json:"win_rate"`
	Expected     float64       `json:"expected"`
	StdErr       float64       `json:"std_err"`
	ZScore       float64       `json:"z_score"`
	Duration     time.Duration `json:"duration_ns"`
}

type namedMethod struct {
	name   string
	method dice.BlitzMethod
}

// parseMethods reads a comma separated method list such as "dice,odds_round".
func parseMethods(s string) ([]namedMethod, error) {
	var out []namedMethod
	for part := range strings.SplitSeq(s, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		m, err := dice.ParseBlitzMethod(name)
		if err != nil {
			return nil, err
		}
		out = append(out, namedMethod{name: name, method: m})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no blitz methods in %q", s)
	}
	return out, nil
}

// expectedWin is the exact attacker win chance of the configured battle.
func expectedWin(engine *dice.Engine, mc matchConfig) (float64, error) {
	var (
		b   *dice.BattleOutcome
		err error
	)
	if mc.balance != nil {
		b, err = engine.BalancedBattle(mc.units, mc.round, *mc.balance)
	} else {
		b, err = engine.Battle(mc.units, mc.round)
	}
	if err != nil {
		return 0, err
	}
	return b.AttackWinChance(), nil
}

// runMethod blitzes mc.trials battles on a pool of mc.workers goroutines.
// Seeded runs give trial i the stream Seed+i so results do not depend on
// scheduling.
func runMethod(ctx context.Context, engine *dice.Engine, mc matchConfig, nm namedMethod, expected float64) methodResult {
	start := time.Now()
	res := methodResult{Method: nm.name, Expected: expected}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, max(mc.workers, 1))

	for first := 0; first < mc.trials; first += trialBatch {
		if ctx.Err() != nil {
			break
		}
		last := min(first+trialBatch, mc.trials)
		wg.Add(1)
		sem <- struct{}{}

		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			var local methodResult
			for i := first; i < last; i++ {
				status, err := runTrial(engine, mc, nm.method, i)
				local.Trials++
				if err != nil {
					local.Errors++
					continue
				}
				switch status {
				case dice.StatusAttackerWin:
					local.AttackerWins++
				case dice.StatusDefenderWin:
					local.DefenderWins++
				default:
					local.Unresolved++
				}
			}

			mu.Lock()
			res.Trials += local.Trials
			res.AttackerWins += local.AttackerWins
			res.DefenderWins += local.DefenderWins
			res.Unresolved += local.Unresolved
			res.Errors += local.Errors
			mu.Unlock()
		}()
	}
	wg.Wait()

	res.Duration = time.Since(start)
	if res.Trials > 0 {
		n := float64(res.Trials)
		res.WinRate = float64(res.AttackerWins) / n
		res.StdErr = math.Sqrt(expected * (1 - expected) / n)
		if res.StdErr > 0 {
			res.ZScore = (res.WinRate - expected) / res.StdErr
		}
	}
	return res
}

func runTrial(engine *dice.Engine, mc matchConfig, method dice.BlitzMethod, i int) (dice.Status, error) {
	cfg := mc.rng
	if cfg.Seeded {
		cfg.Seed += uint64(i)
	}
	rng, err := cfg.New()
	if err != nil {
		return 0, err
	}
	sim, err := dice.NewSimulator(engine, mc.units, mc.round, mc.balance, rng)
	if err != nil {
		return 0, err
	}
	if err := sim.Blitz(method); err != nil {
		return 0, err
	}
	return sim.Status(), nil
}
