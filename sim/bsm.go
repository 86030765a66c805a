// The heralding node between two routers. It abstracts a Bell-state
// measurement: when photons from both sides of the same attempt arrive, it
// draws success with a probability set by detector efficiency and announces
// the outcome to both routers over classical channels.

package sim

import (
	"github.com/iti/rngstream"
	"github.com/sirupsen/logrus"
)

// BSMNode is the auxiliary heralding node of the Barrett-Kok scheme.
type BSMNode struct {
	Name string
	// Left and Right are the router names on either side.
	Left  string
	Right string
	// Efficiency is the per-detector efficiency in [0,1].
	Efficiency float64

	tl        *Timeline
	rng       *rngstream.RngStream
	cchannels map[string]*ClassicalChannel
	metrics   *Metrics

	// pending holds the first-arrived photon of each attempt, keyed by the
	// attempt tag so concurrent attempts sharing an emission tick never
	// pair up across attempts.
	pending map[string]Photon
}

// NewBSMNode creates a heralding node between the named routers.
func NewBSMNode(name string, tl *Timeline, rng *PartitionedRNG, left, right string, efficiency float64) *BSMNode {
	return &BSMNode{
		Name:       name,
		Left:       left,
		Right:      right,
		Efficiency: efficiency,
		tl:         tl,
		rng:        rng.ForSubsystem(SubsystemBSM(name)),
		cchannels:  make(map[string]*ClassicalChannel),
		pending:    make(map[string]Photon),
	}
}

// AddClassicalChannel registers the channel toward the named router.
func (b *BSMNode) AddClassicalChannel(router string, c *ClassicalChannel) {
	b.cchannels[router] = c
}

// SetMetrics attaches the metrics sink.
func (b *BSMNode) SetMetrics(m *Metrics) {
	b.metrics = m
}

// SuccessProbability is the chance a coincident detection heralds
// entanglement: both detectors must click. Channel loss is already applied
// at the quantum-channel layer and does not enter here.
func (b *BSMNode) SuccessProbability() float64 {
	return b.Efficiency * b.Efficiency
}

// ReceivePhoton collects photons and performs the measurement once both
// photons of an attempt have arrived. A photon whose partner was lost in
// the fiber is discarded when the next attempt's photon shows up; the
// routers learn of the loss only through their herald timeouts.
func (b *BSMNode) ReceivePhoton(p Photon) {
	first, ok := b.pending[p.AttemptID]
	if !ok {
		// Stale photons belong to attempts that already timed out.
		for id, old := range b.pending {
			if old.EmitTime < p.EmitTime {
				delete(b.pending, id)
			}
		}
		b.pending[p.AttemptID] = p
		return
	}
	delete(b.pending, p.AttemptID)

	outcome := b.rng.RandU01() < b.SuccessProbability()
	if outcome {
		b.metrics.HeraldSuccesses++
	} else {
		b.metrics.HeraldFailures++
	}
	logrus.Debugf("[tick %013d] BSM %s measured %s/%s x %s/%s: success=%v",
		b.tl.Now(), b.Name, first.SrcNode, first.MemoryID, p.SrcNode, p.MemoryID, outcome)

	b.herald(first, p, outcome)
	b.herald(p, first, outcome)
}

// herald announces the outcome to the router that emitted `to`, naming the
// partner on the far side.
func (b *BSMNode) herald(to, partner Photon, outcome bool) {
	c := b.cchannels[to.SrcNode]
	if c == nil {
		logrus.Warnf("BSM %s has no classical channel toward %s", b.Name, to.SrcNode)
		return
	}
	msg := Message{
		Type:        MsgHerald,
		MemoryID:    to.MemoryID,
		Outcome:     outcome,
		OtherNode:   partner.SrcNode,
		OtherMemory: partner.MemoryID,
	}
	if err := c.Transmit(msg, b.Name); err != nil {
		logrus.Warnf("BSM %s herald transmit failed: %v", b.Name, err)
	}
}

// ReceiveClassical satisfies the channel endpoint interface. Heralding
// nodes consume no classical traffic in this model.
func (b *BSMNode) ReceiveClassical(from string, msg Message) {
	logrus.Debugf("BSM %s ignoring classical message %s from %s", b.Name, msg.Type, from)
}
