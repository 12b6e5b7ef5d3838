// Command precompute fills the Redis distribution cache with full battle
// distributions so servers can skip the calculation.
//
// Usage:
//
//	go run ./cmd/precompute/ --max-attack 40 --max-defend 40 --redis redis://...
//	go run ./cmd/precompute/ --input battles.jsonl
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	redisrepo "github.com/freeeve/dice-odds/api/internal/repository/redis"
	"github.com/freeeve/dice-odds/api/pkg/dice"
)

func main() {
	redisURL := flag.String("redis", envOr("REDIS_URL", "redis://localhost:6379/0"), "Redis connection URL")
	inputFile := flag.String("input", "", "JSONL battle list (default: the attack x defend grid)")
	maxAttack := flag.Int("max-attack", 30, "Largest attacking force in the grid")
	maxDefend := flag.Int("max-defend", 30, "Largest defending force in the grid")
	faces := flag.Int("faces", dice.DefaultRoundConfig.Faces, "Faces per die")
	attackDice := flag.Int("attack-dice", dice.DefaultRoundConfig.AttackDice, "Attacker dice per round")
	defendDice := flag.Int("defend-dice", dice.DefaultRoundConfig.DefendDice, "Defender dice per round")
	favour := flag.Bool("favour", dice.DefaultRoundConfig.FavourDefenderOnDraw, "Defender wins draws")
	ttl := flag.Duration("ttl", 0, "Distribution TTL (0 = server default)")
	force := flag.Bool("force", false, "Recalculate battles that are already cached")
	flag.Parse()

	cfg, err := dice.NewRoundConfig(*faces, *attackDice, *defendDice, *favour)
	if err != nil {
		log.Fatalf("invalid dice: %v", err)
	}

	var jobs []battleJob
	if *inputFile != "" {
		f, err := os.Open(*inputFile)
		if err != nil {
			log.Fatalf("open input: %v", err)
		}
		jobs, err = readJobs(f, cfg)
		f.Close()
		if err != nil {
			log.Fatalf("read input: %v", err)
		}
	} else {
		jobs = gridJobs(*maxAttack, *maxDefend, cfg)
	}

	client, err := redisrepo.NewClient(*redisURL, 0, *ttl)
	if err != nil {
		log.Fatalf("connect to redis: %v", err)
	}
	defer client.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	start := time.Now()
	engine := dice.NewEngine()
	done := 0
	rep := warm(ctx, engine, client, jobs, *force, func(job battleJob, err error) {
		done++
		if err != nil {
			log.Printf("ERROR: %dv%d (%s): %v", job.units.Attack, job.units.Defend, job.cfg, err)
			return
		}
		if done%100 == 0 {
			log.Printf("%d/%d battles", done, len(jobs))
		}
	})

	log.Printf("done in %s: stored %d, already cached %d, failed %d",
		time.Since(start).Round(time.Millisecond), rep.Stored, rep.Existing, rep.Failed)
	if n, err := client.CachedBattles(ctx, cfg); err == nil {
		log.Printf("%d distributions cached for %s", n, cfg)
	}
	if rep.Failed > 0 {
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
