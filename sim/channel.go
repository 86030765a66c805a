// Channel abstractions. A channel converts a transmit at local time t into
// a delivery event at t + propagation delay; the quantum variant
// additionally drops the payload probabilistically based on distance and
// attenuation. Channel timing and loss drive all protocol timing and
// retries.

package sim

import (
	"fmt"
	"math"

	"github.com/iti/rngstream"
	"github.com/sirupsen/logrus"
)

// Light in fiber covers roughly 2e5 km per second. With picosecond ticks
// that works out to 5e6 ticks per kilometer.
const ticksPerKm = 5e6

// classicalReceiver is implemented by anything that terminates a classical
// channel (quantum routers and heralding nodes).
type classicalReceiver interface {
	ReceiveClassical(from string, msg Message)
}

// === Classical channel ===

// ClassicalChannel connects two endpoints with a fixed propagation delay.
// Deliveries preserve send order per direction: delivery times of successive
// transmits are non-decreasing and the timeline breaks ties by insertion
// order, so the channel is FIFO by construction.
type ClassicalChannel struct {
	Name  string
	Delay int64 // propagation delay in ticks

	tl   *Timeline
	ends map[string]classicalReceiver
}

// NewClassicalChannel creates a classical channel with the given fixed
// delay. Delay is clamped to at least one tick: a zero-delay channel would
// let a failed-pairing retry loop spin without advancing the clock.
func NewClassicalChannel(name string, tl *Timeline, delay int64) *ClassicalChannel {
	if delay < 1 {
		delay = 1
	}
	return &ClassicalChannel{
		Name:  name,
		Delay: delay,
		tl:    tl,
		ends:  make(map[string]classicalReceiver, 2),
	}
}

// SetEnds attaches the two endpoints. Each endpoint registers the channel
// in its own channel table separately.
func (c *ClassicalChannel) SetEnds(nameA string, endA classicalReceiver, nameB string, endB classicalReceiver) {
	c.ends[nameA] = endA
	c.ends[nameB] = endB
}

// Transmit schedules delivery of msg at now + Delay to the endpoint
// opposite from.
func (c *ClassicalChannel) Transmit(msg Message, from string) error {
	var dst classicalReceiver
	var dstName string
	for name, end := range c.ends {
		if name != from {
			dst, dstName = end, name
		}
	}
	if dst == nil {
		return fmt.Errorf("classical channel %s has no endpoint opposite %s", c.Name, from)
	}
	c.tl.mustSchedule(&MessageDeliveryEvent{
		time: c.tl.Now() + c.Delay,
		To:   dst,
		ToID: dstName,
		From: from,
		Msg:  msg,
	})
	return nil
}

// MessageDeliveryEvent delivers a classical message to its destination node.
type MessageDeliveryEvent struct {
	time int64
	To   classicalReceiver
	ToID string
	From string
	Msg  Message
}

// Timestamp returns the scheduled time of the MessageDeliveryEvent.
func (e *MessageDeliveryEvent) Timestamp() int64 {
	return e.time
}

// Execute hands the message to the receiving node.
func (e *MessageDeliveryEvent) Execute(tl *Timeline) {
	logrus.Debugf("[tick %013d] %s -> %s: %s", tl.Now(), e.From, e.ToID, e.Msg.Type)
	e.To.ReceiveClassical(e.From, e.Msg)
}

// === Quantum channel ===

// QuantumChannel carries photons from a router toward a heralding node.
// Each transmit survives with probability 10^(-attenuation*distance/10);
// a lost photon generates no delivery event at all. Loss here is the
// dominant source of protocol failure and retry.
type QuantumChannel struct {
	Name        string
	DistanceKm  float64
	Attenuation float64 // dB per km
	Delay       int64   // propagation delay in ticks

	tl      *Timeline
	rng     *rngstream.RngStream
	dst     *BSMNode
	metrics *Metrics
}

// NewQuantumChannel creates a quantum channel. When delay is zero it is
// derived from the fiber distance.
func NewQuantumChannel(name string, tl *Timeline, rng *PartitionedRNG, distanceKm, attenuation float64, delay int64) *QuantumChannel {
	if delay == 0 {
		delay = int64(distanceKm * ticksPerKm)
	}
	return &QuantumChannel{
		Name:        name,
		DistanceKm:  distanceKm,
		Attenuation: attenuation,
		Delay:       delay,
		tl:          tl,
		rng:         rng.ForSubsystem(SubsystemQuantumChannel(name)),
	}
}

// SetEnds attaches the receiving heralding node and the metrics sink.
func (q *QuantumChannel) SetEnds(dst *BSMNode, metrics *Metrics) {
	q.dst = dst
	q.metrics = metrics
}

// DeliveryProbability returns the survival probability for one photon.
func (q *QuantumChannel) DeliveryProbability() float64 {
	return math.Pow(10, -q.Attenuation*q.DistanceKm/10)
}

// Transmit sends a photon toward the heralding node. On loss the photon is
// silently dropped; the sender finds out only through a herald timeout.
func (q *QuantumChannel) Transmit(p Photon) {
	if q.rng.RandU01() >= q.DeliveryProbability() {
		logrus.Debugf("[tick %013d] photon from %s/%s lost on %s", q.tl.Now(), p.SrcNode, p.MemoryID, q.Name)
		if q.metrics != nil {
			q.metrics.PhotonsLost++
		}
		return
	}
	q.tl.mustSchedule(&PhotonArrivalEvent{
		time:   q.tl.Now() + q.Delay,
		BSM:    q.dst,
		Photon: p,
	})
}

// PhotonArrivalEvent delivers a surviving photon to the heralding node.
type PhotonArrivalEvent struct {
	time   int64
	BSM    *BSMNode
	Photon Photon
}

// Timestamp returns the scheduled time of the PhotonArrivalEvent.
func (e *PhotonArrivalEvent) Timestamp() int64 {
	return e.time
}

// Execute hands the photon to the heralding node's detectors.
func (e *PhotonArrivalEvent) Execute(tl *Timeline) {
	e.BSM.ReceivePhoton(e.Photon)
}
