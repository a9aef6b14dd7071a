package sampler

import (
	"hash/fnv"
	"math/rand"
)

// SamplingKey identifies a reproducible sampling run. Two runs with the same
// key and identical inputs produce bit-for-bit identical latents.
type SamplingKey int64

func NewSamplingKey(seed int64) SamplingKey {
	return SamplingKey(seed)
}

const (
	// SubsystemNoise draws initial latent noise. Uses the master seed directly
	// so a seed reproduces the same starting latent regardless of sampler.
	SubsystemNoise = "noise"

	// SubsystemSampler feeds stochastic integrators (DDIM with eta > 0).
	SubsystemSampler = "sampler"
)

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem.
//
// Derivation formula:
//   - For SubsystemNoise: uses masterSeed directly
//   - For all other subsystems: masterSeed XOR fnv1a64(subsystemName)
//
// Thread-safety: NOT thread-safe. Each sampling call owns its own instance.
type PartitionedRNG struct {
	key        SamplingKey
	subsystems map[string]*rand.Rand
}

func NewPartitionedRNG(key SamplingKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same name always returns the same cached *rand.Rand. Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}

	var derivedSeed int64
	if name == SubsystemNoise {
		derivedSeed = int64(p.key)
	} else {
		derivedSeed = int64(p.key) ^ fnv1a64(name)
	}

	rng := rand.New(rand.NewSource(derivedSeed))
	p.subsystems[name] = rng
	return rng
}

func (p *PartitionedRNG) Key() SamplingKey {
	return p.key
}

func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
