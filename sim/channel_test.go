package sim

import (
	"testing"
)

// recordingReceiver captures delivered classical messages with their
// arrival ticks.
type recordingReceiver struct {
	tl       *Timeline
	arrivals []Message
	times    []int64
}

func (r *recordingReceiver) ReceiveClassical(from string, msg Message) {
	r.arrivals = append(r.arrivals, msg)
	r.times = append(r.times, r.tl.Now())
}

func TestClassicalChannel_DeliversAfterFixedDelay(t *testing.T) {
	// GIVEN a channel with delay 1000 between a and b
	tl := NewTimeline()
	rx := &recordingReceiver{tl: tl}
	c := NewClassicalChannel("c.ab", tl, 1000)
	c.SetEnds("a", &recordingReceiver{tl: tl}, "b", rx)

	// WHEN a transmits at tick 0
	if err := c.Transmit(Message{Type: MsgNegotiate}, "a"); err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	tl.Run(5000)

	// THEN b receives exactly one message at tick 1000
	if len(rx.arrivals) != 1 {
		t.Fatalf("arrivals: got %d, want 1", len(rx.arrivals))
	}
	if rx.times[0] != 1000 {
		t.Errorf("arrival tick: got %d, want 1000", rx.times[0])
	}
}

func TestClassicalChannel_FIFOPerDirection(t *testing.T) {
	// GIVEN three messages sent back to back in one tick
	tl := NewTimeline()
	rx := &recordingReceiver{tl: tl}
	c := NewClassicalChannel("c.ab", tl, 500)
	c.SetEnds("a", &recordingReceiver{tl: tl}, "b", rx)

	for _, id := range []string{"m0", "m1", "m2"} {
		if err := c.Transmit(Message{Type: MsgNegotiate, Receiver: id}, "a"); err != nil {
			t.Fatalf("Transmit: %v", err)
		}
	}

	// WHEN the timeline runs
	tl.Run(5000)

	// THEN deliveries preserve send order
	want := []string{"m0", "m1", "m2"}
	if len(rx.arrivals) != len(want) {
		t.Fatalf("arrivals: got %d, want %d", len(rx.arrivals), len(want))
	}
	for i, msg := range rx.arrivals {
		if msg.Receiver != want[i] {
			t.Errorf("arrival[%d]: got %s, want %s", i, msg.Receiver, want[i])
		}
	}
}

func TestClassicalChannel_MinimumOneTickDelay(t *testing.T) {
	// GIVEN a channel configured with zero delay
	tl := NewTimeline()
	c := NewClassicalChannel("c.ab", tl, 0)

	// THEN the delay is clamped so the clock always advances
	if c.Delay != 1 {
		t.Errorf("zero-delay clamp: got %d, want 1", c.Delay)
	}
}

func TestQuantumChannel_ZeroAttenuationAlwaysDelivers(t *testing.T) {
	// GIVEN a lossless quantum channel into a heralding node
	tl := NewTimeline()
	rng := NewPartitionedRNG(NewSimulationKey(1))
	metrics := NewMetrics()
	bsm := NewBSMNode("bsm", tl, rng, "a", "b", 1.0)
	bsm.SetMetrics(metrics)
	q := NewQuantumChannel("q.a", tl, rng, 10, 0, 0)
	q.SetEnds(bsm, metrics)

	if got := q.DeliveryProbability(); got != 1.0 {
		t.Fatalf("DeliveryProbability: got %v, want 1.0", got)
	}

	// WHEN 50 photons are transmitted
	for i := 0; i < 50; i++ {
		q.Transmit(Photon{SrcNode: "a", MemoryID: "a.m0", AttemptID: "att", EmitTime: tl.Now()})
	}
	tl.Run(int64(10*ticksPerKm) + 1000)

	// THEN none are lost
	if metrics.PhotonsLost != 0 {
		t.Errorf("PhotonsLost: got %d, want 0", metrics.PhotonsLost)
	}
}

func TestQuantumChannel_ExtremeAttenuationDropsSilently(t *testing.T) {
	// GIVEN a channel whose delivery probability is effectively zero
	tl := NewTimeline()
	rng := NewPartitionedRNG(NewSimulationKey(1))
	metrics := NewMetrics()
	bsm := NewBSMNode("bsm", tl, rng, "a", "b", 1.0)
	bsm.SetMetrics(metrics)
	q := NewQuantumChannel("q.a", tl, rng, 1, 1000, 0)
	q.SetEnds(bsm, metrics)

	// WHEN photons are transmitted
	for i := 0; i < 20; i++ {
		q.Transmit(Photon{SrcNode: "a", MemoryID: "a.m0", AttemptID: "att", EmitTime: tl.Now()})
	}

	// THEN every photon is dropped with no delivery event at all
	if tl.PendingEvents() != 0 {
		t.Errorf("pending events: got %d, want 0", tl.PendingEvents())
	}
	if metrics.PhotonsLost != 20 {
		t.Errorf("PhotonsLost: got %d, want 20", metrics.PhotonsLost)
	}
}

func TestQuantumChannel_DelayDerivedFromDistance(t *testing.T) {
	// GIVEN a channel with no explicit delay over 2 km of fiber
	tl := NewTimeline()
	rng := NewPartitionedRNG(NewSimulationKey(1))
	q := NewQuantumChannel("q.a", tl, rng, 2, 0.2, 0)

	// THEN the delay follows the fiber light speed constant
	want := int64(2 * ticksPerKm)
	if q.Delay != want {
		t.Errorf("derived delay: got %d, want %d", q.Delay, want)
	}
}
