package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/freeeve/dice-odds/api/internal/repository"
	"github.com/freeeve/dice-odds/api/pkg/dice"
)

// jsonBattle is one line of a battle list file.
type jsonBattle struct {
	Attack int               `json:"attack"`
	Defend int               `json:"defend"`
	Config *dice.RoundConfig `json:"config"` // nil = command line dice
}

type battleJob struct {
	units dice.BattleUnits
	cfg   dice.RoundConfig
}

// warmReport counts what happened to each battle.
type warmReport struct {
	Stored   int `json:"stored"`
	Existing int `json:"existing"`
	Failed   int `json:"failed"`
}

// gridJobs lists every battle from 1v1 up to maxAttack v maxDefend.
func gridJobs(maxAttack, maxDefend int, cfg dice.RoundConfig) []battleJob {
	jobs := make([]battleJob, 0, maxAttack*maxDefend)
	for a := 1; a <= maxAttack; a++ {
		for d := 1; d <= maxDefend; d++ {
			jobs = append(jobs, battleJob{units: dice.BattleUnits{Attack: a, Defend: d}, cfg: cfg})
		}
	}
	return jobs
}

// readJobs parses a JSONL battle list. Blank lines are skipped; a bad line
// fails with its line number.
func readJobs(r io.Reader, defaults dice.RoundConfig) ([]battleJob, error) {
	scanner := bufio.NewScanner(r)
	var jobs []battleJob
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var b jsonBattle
		if err := json.Unmarshal([]byte(text), &b); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		cfg := defaults
		if b.Config != nil {
			cfg = *b.Config
		}
		units := dice.BattleUnits{Attack: b.Attack, Defend: b.Defend}
		if err := units.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		jobs = append(jobs, battleJob{units: units, cfg: cfg})
	}
	return jobs, scanner.Err()
}

// warm stores every job's full battle in the cache unless it is already
// there or force is set.
func warm(ctx context.Context, engine *dice.Engine, cache repository.DistributionCache, jobs []battleJob, force bool, progress func(battleJob, error)) warmReport {
	var rep warmReport
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		stored, err := warmOne(ctx, engine, cache, job, force)
		switch {
		case err != nil:
			rep.Failed++
		case stored:
			rep.Stored++
		default:
			rep.Existing++
		}
		if progress != nil {
			progress(job, err)
		}
	}
	return rep
}

func warmOne(ctx context.Context, engine *dice.Engine, cache repository.DistributionCache, job battleJob, force bool) (bool, error) {
	if !force {
		cached, err := cache.GetBattle(ctx, job.units, job.cfg)
		if err != nil {
			return false, err
		}
		if cached != nil {
			return false, nil
		}
	}
	b, err := engine.Battle(job.units, job.cfg)
	if err != nil {
		return false, err
	}
	if err := cache.SetBattle(ctx, b); err != nil {
		return false, err
	}
	return true, nil
}
