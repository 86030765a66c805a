// Defines the Memory struct that models a single quantum-memory slot.
// A memory is the unit of resource entanglement protocols contend for.

package sim

import (
	"github.com/sirupsen/logrus"
)

// MemoryState represents the lifecycle state of a memory slot.
type MemoryState string

const (
	StateRaw       MemoryState = "RAW"       // unclaimed, no entanglement
	StateOccupied  MemoryState = "OCCUPIED"  // claimed by a protocol in flight
	StateEntangled MemoryState = "ENTANGLED" // entangled with a remote partner
	StateExpired   MemoryState = "EXPIRED"   // coherence lapsed, awaiting reclaim
)

// Memory models one quantum-memory slot. Entanglement bookkeeping (remote
// node, remote memory id) lives on the manager's MemoryInfo; the Memory
// itself carries only the physical parameters and the coherence clock.
type Memory struct {
	ID string

	tl *Timeline

	// RawFidelity is the fidelity assigned on a successful generation.
	RawFidelity float64
	// CoherenceTime is how long an entangled state survives, in ticks.
	// Zero means the state never expires.
	CoherenceTime int64

	Fidelity     float64
	EntangleTime int64 // tick of the last successful entanglement, -1 if never

	// expireEpoch invalidates stale expiration events: each new entanglement
	// bumps the epoch, so an expiration scheduled for a previous entanglement
	// is a no-op when it fires.
	expireEpoch uint64

	// onExpire is set by the owning node's resource manager; called when a
	// coherence timeout fires for the current entanglement.
	onExpire func(m *Memory)
}

// NewMemory creates a memory slot bound to the given timeline.
func NewMemory(id string, tl *Timeline, rawFidelity float64, coherenceTime int64) *Memory {
	return &Memory{
		ID:            id,
		tl:            tl,
		RawFidelity:   rawFidelity,
		CoherenceTime: coherenceTime,
		EntangleTime:  -1,
	}
}

// Entangle records a successful generation and arms the coherence timeout.
func (m *Memory) Entangle(fidelity float64) {
	m.Fidelity = fidelity
	m.EntangleTime = m.tl.Now()
	m.expireEpoch++
	if m.CoherenceTime > 0 {
		m.tl.mustSchedule(&MemoryExpireEvent{
			time:   m.tl.Now() + m.CoherenceTime,
			Memory: m,
			epoch:  m.expireEpoch,
		})
	}
}

// Release clears the entangled state and disarms any pending expiration.
func (m *Memory) Release() {
	m.Fidelity = 0
	m.EntangleTime = -1
	m.expireEpoch++
}

// Photon is the abstract flying qubit emitted toward a heralding node.
// It carries enough identity for the herald to name both partners, plus the
// attempt tag so the heralding node never pairs photons from unrelated
// attempts that happen to share an emission tick.
type Photon struct {
	SrcNode   string
	MemoryID  string
	AttemptID string
	EmitTime  int64
}

// EmitPhoton sends a photon from this memory down the given quantum channel.
func (m *Memory) EmitPhoton(qc *QuantumChannel, srcNode, attemptID string) {
	qc.Transmit(Photon{
		SrcNode:   srcNode,
		MemoryID:  m.ID,
		AttemptID: attemptID,
		EmitTime:  m.tl.Now(),
	})
}

// MemoryExpireEvent fires when an entangled memory's coherence time lapses.
type MemoryExpireEvent struct {
	time   int64
	Memory *Memory
	epoch  uint64
}

// Timestamp returns the scheduled time of the MemoryExpireEvent.
func (e *MemoryExpireEvent) Timestamp() int64 {
	return e.time
}

// Execute resets the memory if the expiration still refers to the current
// entanglement; a stale epoch means the memory was already released or
// re-entangled and the event is ignored.
func (e *MemoryExpireEvent) Execute(tl *Timeline) {
	m := e.Memory
	if e.epoch != m.expireEpoch {
		return
	}
	logrus.Debugf("[tick %013d] memory %s coherence expired", tl.Now(), m.ID)
	m.Release()
	if m.onExpire != nil {
		m.onExpire(m)
	}
}
