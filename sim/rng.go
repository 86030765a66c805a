package sim

import (
	"fmt"

	"github.com/iti/rngstream"
)

// === SimulationKey ===

// SimulationKey uniquely identifies a reproducible simulation run.
// Two simulations with the same SimulationKey and identical topology and
// rule configuration MUST produce bit-for-bit identical results.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// === Subsystem names ===

// SubsystemQuantumChannel returns the RNG subsystem name for the named
// quantum channel. Each channel draws its photon-loss outcomes from its own
// stream so that adding a channel never perturbs another channel's draws.
func SubsystemQuantumChannel(name string) string {
	return fmt.Sprintf("qchannel_%s", name)
}

// SubsystemBSM returns the RNG subsystem name for the named heralding node.
func SubsystemBSM(name string) string {
	return fmt.Sprintf("bsm_%s", name)
}

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated random streams per
// subsystem, backed by L'Ecuyer MRG32k3a streams. The subsystem name only
// labels its stream: stream state comes from the master seed and the order
// in which streams are created, so replay relies on components being
// constructed in topology-config order (which the network builder follows).
// Draws in one subsystem never affect another.
//
// Thread-safety: NOT thread-safe. The single-timeline execution model makes
// that a non-issue.
type PartitionedRNG struct {
	key        SimulationKey
	subsystems map[string]*rngstream.RngStream
}

// NewPartitionedRNG creates a PartitionedRNG from a SimulationKey.
// The master seed applies to streams created afterwards, so a run must
// construct its PartitionedRNG before building any components.
func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	rngstream.SetRngStreamMasterSeed(uint64(key))
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rngstream.RngStream),
	}
}

// ForSubsystem returns the deterministically-seeded stream for the named
// subsystem. The same subsystem name always returns the same stream
// instance (cached). Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rngstream.RngStream {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	rng := rngstream.New(name)
	p.subsystems[name] = rng
	return rng
}

// Key returns the SimulationKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() SimulationKey {
	return p.key
}
