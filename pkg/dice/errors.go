package dice

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig  = errors.New("invalid round config")
	ErrInvalidUnits   = errors.New("invalid battle units")
	ErrInvalidSize    = errors.New("invalid win chance table size")
	ErrInvalidBalance = errors.New("invalid balance params")
	ErrInvalidRNG     = errors.New("invalid rng config")
	ErrBattleComplete = errors.New("battle is complete")
)

// InvariantError reports a probability distribution whose mass drifted away
// from 1. It is raised with panic: it means the engine itself is broken and
// there is nothing a caller can do to recover.
type InvariantError struct {
	What string
	Sum  float64
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("dice invariant violated: %s sums to %.10f", e.What, e.Sum)
}
