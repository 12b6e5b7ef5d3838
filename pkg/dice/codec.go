package dice

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var ErrShortBuffer = errors.New("short buffer")

// AppendFloats encodes xs as a presence flag, an int32 count and the
// little-endian IEEE 754 values. A nil slice is written as the flag alone.
func AppendFloats(dst []byte, xs []float64) []byte {
	if xs == nil {
		return append(dst, 0)
	}
	dst = append(dst, 1)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(xs)))
	for _, x := range xs {
		dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(x))
	}
	return dst
}

// ReadFloats decodes one slice written by AppendFloats and returns the rest of b.
func ReadFloats(b []byte) ([]float64, []byte, error) {
	if len(b) < 1 {
		return nil, nil, fmt.Errorf("read flag: %w", ErrShortBuffer)
	}
	present, b := b[0], b[1:]
	if present == 0 {
		return nil, b, nil
	}
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("read length: %w", ErrShortBuffer)
	}
	n := int(int32(binary.LittleEndian.Uint32(b)))
	b = b[4:]
	if n < 0 || len(b) < n*8 {
		return nil, nil, fmt.Errorf("read %d values: %w", n, ErrShortBuffer)
	}
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return xs, b[n*8:], nil
}

// EncodeBattle packs both loss arrays of an outcome.
func EncodeBattle(b *BattleOutcome) []byte {
	buf := make([]byte, 0, 10+8*(len(b.attackLoss)+len(b.defendLoss)))
	buf = AppendFloats(buf, b.attackLoss)
	return AppendFloats(buf, b.defendLoss)
}

// DecodeBattle restores an outcome packed by EncodeBattle.
func DecodeBattle(units BattleUnits, cfg RoundConfig, data []byte) (*BattleOutcome, error) {
	attack, rest, err := ReadFloats(data)
	if err != nil {
		return nil, fmt.Errorf("decode attack losses: %w", err)
	}
	defend, _, err := ReadFloats(rest)
	if err != nil {
		return nil, fmt.Errorf("decode defend losses: %w", err)
	}
	return RestoreBattleOutcome(units, cfg, attack, defend)
}
