package handler

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/freeeve/dice-odds/api/pkg/dice"
)

// intParam reads an integer query parameter, returning def when it is absent.
func intParam(q url.Values, name string, def int) (int, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return n, nil
}

func boolParam(q url.Values, name string, def bool) (bool, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q", name, v)
	}
	return b, nil
}

func floatParam(q url.Values, name string, def float64) (float64, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return f, nil
}

var augmentNames = map[string]dice.Augment{
	"capital": dice.AugmentOnCapital,
	"wall":    dice.AugmentBehindWall,
	"zombie":  dice.AugmentZombie,
}

// augmentParam parses a comma separated list such as "capital,wall".
func augmentParam(q url.Values, name string) (dice.Augment, error) {
	var a dice.Augment
	v := q.Get(name)
	if v == "" {
		return a, nil
	}
	for part := range strings.SplitSeq(v, ",") {
		flag, ok := augmentNames[strings.TrimSpace(part)]
		if !ok {
			return 0, fmt.Errorf("invalid %s: unknown augment %q", name, part)
		}
		a |= flag
	}
	return a, nil
}

// roundConfigParams builds the dice settings of a request on top of defaults.
// Augments and the attack dice cap apply after the explicit dice counts.
func roundConfigParams(q url.Values, defaults dice.RoundConfig) (dice.RoundConfig, error) {
	cfg := defaults
	var err error
	if cfg.Faces, err = intParam(q, "faces", cfg.Faces); err != nil {
		return cfg, err
	}
	if cfg.AttackDice, err = intParam(q, "attack_dice", cfg.AttackDice); err != nil {
		return cfg, err
	}
	if cfg.DefendDice, err = intParam(q, "defend_dice", cfg.DefendDice); err != nil {
		return cfg, err
	}
	if cfg.FavourDefenderOnDraw, err = boolParam(q, "favour", cfg.FavourDefenderOnDraw); err != nil {
		return cfg, err
	}

	attacker, err := augmentParam(q, "attacker_augments")
	if err != nil {
		return cfg, err
	}
	defender, err := augmentParam(q, "defender_augments")
	if err != nil {
		return cfg, err
	}
	maxDice, err := intParam(q, "max_attack_dice", 0)
	if err != nil {
		return cfg, err
	}
	return cfg.WithAugments(attacker, defender).WithMaxAttackDice(maxDice), nil
}

func unitsParams(q url.Values) (dice.BattleUnits, error) {
	var (
		u   dice.BattleUnits
		err error
	)
	if u.Attack, err = intParam(q, "attack", 0); err != nil {
		return u, err
	}
	if u.Defend, err = intParam(q, "defend", 0); err != nil {
		return u, err
	}
	if u.StopUntil, err = intParam(q, "stop", 0); err != nil {
		return u, err
	}
	return u, nil
}
