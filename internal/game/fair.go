package game

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"math"
)

const (
	MIN_CRASH_POINT = 1.01
	MAX_CRASH_POINT = 1000000.00
	SEED_BYTES      = 32
)

// Commitment is the published half of a round's fairness proof. The hash is
// broadcast before betting opens; the seed stays hidden until the crash.
type Commitment struct {
	Seed string `json:"seed"`
	Hash string `json:"hash"`
}

// FairnessGenerator produces committed crash points. The entropy source is
// injectable so tests can drive rounds from fixed seeds.
type FairnessGenerator struct {
	entropy   io.Reader
	houseEdge float64
}

func NewFairnessGenerator(houseEdge float64) *FairnessGenerator {
	return &FairnessGenerator{
		entropy:   rand.Reader,
		houseEdge: houseEdge,
	}
}

// NewFairnessGeneratorWithEntropy builds a generator reading seed material
// from the given source instead of crypto/rand.
func NewFairnessGeneratorWithEntropy(houseEdge float64, entropy io.Reader) *FairnessGenerator {
	return &FairnessGenerator{
		entropy:   entropy,
		houseEdge: houseEdge,
	}
}

// Commit generates a fresh 256-bit seed and its SHA256 commitment.
func (g *FairnessGenerator) Commit() (Commitment, error) {
	b := make([]byte, SEED_BYTES)
	if _, err := io.ReadFull(g.entropy, b); err != nil {
		return Commitment{}, fmt.Errorf("fairness: read entropy: %w", err)
	}
	seed := hex.EncodeToString(b)
	return Commitment{Seed: seed, Hash: HashSeed(seed)}, nil
}

// HashSeed returns the SHA256 commitment hash for a seed.
func HashSeed(seed string) string {
	h := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(h[:])
}

// DeriveCrashPoint maps a seed to its crash multiplier. Deterministic: the
// first 8 bytes of SHA256(seed) are normalized to [0,1) and pushed through
// floor(100 / (1 - houseEdge - r)) / 100, clamped to the valid range.
func (g *FairnessGenerator) DeriveCrashPoint(seed string) float64 {
	h := sha256.Sum256([]byte(seed))
	u := binary.BigEndian.Uint64(h[:8])

	const max64 = 18446744073709551616.0 // 2^64
	r := float64(u) / max64

	denom := 1.0 - g.houseEdge - r
	if denom <= 0 {
		return MAX_CRASH_POINT
	}

	crash := math.Floor(100.0/denom) / 100.0

	if crash < MIN_CRASH_POINT {
		return MIN_CRASH_POINT
	}
	if crash > MAX_CRASH_POINT {
		return MAX_CRASH_POINT
	}
	return crash
}

// Verify recomputes the commitment hash for a revealed seed and compares it
// to the published one. Used as the engine's self-check at reveal and by
// external auditors.
func Verify(seed, hash string) bool {
	computed := HashSeed(seed)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}
