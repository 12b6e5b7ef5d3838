package dice

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand/v2"
)

// RNG is the uniform random source consumed by the simulator.
type RNG interface {
	// NextDouble returns a value in [0, 1).
	NextDouble() (float64, error)
	// NextInt returns a value in [lo, hi).
	NextInt(lo, hi int) (int, error)
	NextUint32() (uint32, error)
	NextUint64() (uint64, error)
	NextBytes(buf []byte) error
}

// RNGKind names a generator implementation.
type RNGKind string

const (
	RNGPCG      RNGKind = "pcg"
	RNGXorShift RNGKind = "xorshift"
	RNGCrypto   RNGKind = "crypto"
	RNGSystem   RNGKind = "system"
)

// RNGConfig selects a generator. Without Seeded the seed is drawn from crypto/rand.
type RNGConfig struct {
	Kind   RNGKind `json:"kind"`
	Seed   uint64  `json:"seed,omitempty"`
	Seeded bool    `json:"seeded,omitempty"`
}

var DefaultRNGConfig = RNGConfig{Kind: RNGPCG}

// New builds the configured generator.
func (c RNGConfig) New() (RNG, error) {
	seed := c.Seed
	if !c.Seeded && c.Kind != RNGCrypto {
		s, err := NewSeed()
		if err != nil {
			return nil, err
		}
		seed = s
	}
	switch c.Kind {
	case RNGPCG, "":
		return NewPCG(seed, 721347520444481703), nil
	case RNGXorShift:
		return NewXorShift(seed), nil
	case RNGCrypto:
		return NewCryptoRNG(crand.Reader), nil
	case RNGSystem:
		return NewSystemRNG(seed), nil
	}
	return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidRNG, c.Kind)
}

// NewSeed reads a seed from crypto/rand.
func NewSeed() (uint64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

// bounded draws from [lo, hi) without modulo bias.
func bounded(lo, hi int, next func() (uint32, error)) (int, error) {
	if hi <= lo {
		return 0, fmt.Errorf("%w: empty range [%d, %d)", ErrInvalidRNG, lo, hi)
	}
	span := uint32(hi - lo)
	threshold := -span % span
	for {
		v, err := next()
		if err != nil {
			return 0, err
		}
		if v >= threshold {
			return int(v%span) + lo, nil
		}
	}
}

func unitDouble(v uint64) float64 {
	return float64(v>>11) * 0x1.0p-53
}

func fillBytes(buf []byte, next func() (uint64, error)) error {
	for len(buf) > 0 {
		v, err := next()
		if err != nil {
			return err
		}
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v)
		buf = buf[copy(buf, b[:]):]
	}
	return nil
}

// PCG is a 32-bit output permuted congruential generator (XSH RR).
type PCG struct {
	state uint64
	inc   uint64
}

func NewPCG(seed, sequence uint64) *PCG {
	p := &PCG{inc: sequence<<1 | 1}
	p.step()
	p.state += seed
	p.step()
	return p
}

func (p *PCG) step() uint32 {
	old := p.state
	p.state = old*6364136223846793005 + p.inc
	xorshifted := uint32(((old >> 18) ^ old) >> 27)
	rot := uint32(old >> 59)
	return xorshifted>>rot | xorshifted<<((-rot)&31)
}

func (p *PCG) NextUint32() (uint32, error) { return p.step(), nil }

func (p *PCG) NextUint64() (uint64, error) {
	hi, lo := p.step(), p.step()
	return uint64(hi)<<32 | uint64(lo), nil
}

func (p *PCG) NextDouble() (float64, error) {
	v, _ := p.NextUint64()
	return unitDouble(v), nil
}

func (p *PCG) NextInt(lo, hi int) (int, error) { return bounded(lo, hi, p.NextUint32) }

func (p *PCG) NextBytes(buf []byte) error { return fillBytes(buf, p.NextUint64) }

// XorShift is xorshift128+. The two words are expanded from one seed with splitmix64.
type XorShift struct {
	s0, s1 uint64
}

func NewXorShift(seed uint64) *XorShift {
	x := &XorShift{}
	x.s0 = splitmix64(&seed)
	x.s1 = splitmix64(&seed)
	if x.s0 == 0 && x.s1 == 0 {
		x.s1 = 1
	}
	return x
}

func splitmix64(state *uint64) uint64 {
	*state += 0x9e3779b97f4a7c15
	z := *state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func (x *XorShift) NextUint64() (uint64, error) {
	s1, s0 := x.s0, x.s1
	x.s0 = s0
	s1 ^= s1 << 23
	x.s1 = s1 ^ s0 ^ (s1 >> 17) ^ (s0 >> 26)
	return x.s1 + s0, nil
}

func (x *XorShift) NextUint32() (uint32, error) {
	v, _ := x.NextUint64()
	return uint32(v >> 32), nil
}

func (x *XorShift) NextDouble() (float64, error) {
	v, _ := x.NextUint64()
	return unitDouble(v), nil
}

func (x *XorShift) NextInt(lo, hi int) (int, error) { return bounded(lo, hi, x.NextUint32) }

func (x *XorShift) NextBytes(buf []byte) error { return fillBytes(buf, x.NextUint64) }

// CryptoRNG reads every draw from an entropy source. Read errors are returned as is.
type CryptoRNG struct {
	r io.Reader
}

func NewCryptoRNG(r io.Reader) *CryptoRNG {
	return &CryptoRNG{r: r}
}

func (c *CryptoRNG) NextBytes(buf []byte) error {
	_, err := io.ReadFull(c.r, buf)
	return err
}

func (c *CryptoRNG) NextUint64() (uint64, error) {
	var b [8]byte
	if err := c.NextBytes(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func (c *CryptoRNG) NextUint32() (uint32, error) {
	var b [4]byte
	if err := c.NextBytes(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func (c *CryptoRNG) NextDouble() (float64, error) {
	v, err := c.NextUint64()
	if err != nil {
		return 0, err
	}
	return unitDouble(v), nil
}

func (c *CryptoRNG) NextInt(lo, hi int) (int, error) { return bounded(lo, hi, c.NextUint32) }

// SystemRNG adapts the standard library generator (ChaCha8).
type SystemRNG struct {
	r *rand.Rand
}

func NewSystemRNG(seed uint64) *SystemRNG {
	var key [32]byte
	for i := range 4 {
		binary.LittleEndian.PutUint64(key[i*8:], splitmix64(&seed))
	}
	return &SystemRNG{r: rand.New(rand.NewChaCha8(key))}
}

func (s *SystemRNG) NextDouble() (float64, error) { return s.r.Float64(), nil }
func (s *SystemRNG) NextUint32() (uint32, error)  { return s.r.Uint32(), nil }
func (s *SystemRNG) NextUint64() (uint64, error)  { return s.r.Uint64(), nil }

func (s *SystemRNG) NextInt(lo, hi int) (int, error) {
	if hi <= lo {
		return 0, fmt.Errorf("%w: empty range [%d, %d)", ErrInvalidRNG, lo, hi)
	}
	return lo + s.r.IntN(hi-lo), nil
}

func (s *SystemRNG) NextBytes(buf []byte) error { return fillBytes(buf, s.NextUint64) }
