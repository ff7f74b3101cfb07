// Package entropy provides the uniform random draws used by the
// passenger spawner. Play uses crypto/rand; replays and tests use a
// seeded or fixed source so runs are reproducible.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand"
	"sync"
)

// Source yields floats uniformly distributed in [0, 1).
type Source interface {
	Float() float64
}

// Seeded is a deterministic source.
type Seeded struct {
	mu  sync.Mutex
	rng *mrand.Rand
}

// NewSeeded creates a deterministic source from seed.
func NewSeeded(seed int64) *Seeded {
	return &Seeded{rng: mrand.New(mrand.NewSource(seed))}
}

// Float returns the next value of the seeded stream.
func (s *Seeded) Float() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// Crypto draws from crypto/rand.
type Crypto struct{}

// Float returns a random float using crypto/rand.
func (Crypto) Float() float64 {
	return cryptoRandFloat()
}

// Fixed always returns the same value. Fixed(0) makes every draw succeed.
type Fixed float64

// Float returns the fixed value.
func (f Fixed) Float() float64 {
	return float64(f)
}

// New returns a seeded source for a non-zero seed and a crypto source otherwise.
func New(seed int64) Source {
	if seed != 0 {
		return NewSeeded(seed)
	}
	return Crypto{}
}

// cryptoRandFloat generates a random float64 using crypto/rand.
func cryptoRandFloat() float64 {
	var buf [8]byte
	_, err := rand.Read(buf[:])
	if err != nil {
		// This should never happen but return 0.5 as a safe default.
		return 0.5
	}
	// Use only 53 bits for a uniform float64 in [0, 1).
	n := binary.LittleEndian.Uint64(buf[:]) >> 11
	return float64(n) / float64(1<<53)
}
