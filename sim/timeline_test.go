package sim

import (
	"errors"
	"math/rand"
	"sort"
	"testing"
)

// testEvent is a minimal event that records its own dispatch.
type testEvent struct {
	time int64
	id   int
	fire func(ev *testEvent, tl *Timeline)
}

func (e *testEvent) Timestamp() int64 { return e.time }

func (e *testEvent) Execute(tl *Timeline) {
	if e.fire != nil {
		e.fire(e, tl)
	}
}

func TestTimeline_Run_DispatchesInTimestampOrder(t *testing.T) {
	// GIVEN 200 events with random timestamps
	tl := NewTimeline()
	rng := rand.New(rand.NewSource(7))
	var dispatched []int64
	times := make([]int64, 200)
	for i := range times {
		times[i] = rng.Int63n(10000)
	}
	for i, ts := range times {
		ev := &testEvent{time: ts, id: i, fire: func(ev *testEvent, tl *Timeline) {
			dispatched = append(dispatched, ev.time)
		}}
		if err := tl.Schedule(ev); err != nil {
			t.Fatalf("Schedule(%d): unexpected error %v", ts, err)
		}
	}

	// WHEN the timeline runs to the horizon
	tl.Run(20000)

	// THEN every event dispatched, in non-decreasing timestamp order
	if len(dispatched) != len(times) {
		t.Fatalf("dispatched %d events, want %d", len(dispatched), len(times))
	}
	if !sort.SliceIsSorted(dispatched, func(i, j int) bool { return dispatched[i] < dispatched[j] }) {
		t.Errorf("dispatch order not sorted by timestamp: %v", dispatched)
	}
}

func TestTimeline_Run_TiesBreakByInsertionOrder(t *testing.T) {
	// GIVEN several events sharing one timestamp
	tl := NewTimeline()
	var order []int
	for i := 0; i < 10; i++ {
		ev := &testEvent{time: 500, id: i, fire: func(ev *testEvent, tl *Timeline) {
			order = append(order, ev.id)
		}}
		if err := tl.Schedule(ev); err != nil {
			t.Fatalf("Schedule: unexpected error %v", err)
		}
	}

	// WHEN the timeline runs
	tl.Run(1000)

	// THEN dispatch follows insertion order exactly
	for i, id := range order {
		if id != i {
			t.Fatalf("tie-break order[%d]: got event %d, want %d", i, id, i)
		}
	}
}

func TestTimeline_Schedule_PastTimestampFails(t *testing.T) {
	// GIVEN a timeline whose clock has advanced to 100
	tl := NewTimeline()
	reached := false
	tl.Schedule(&testEvent{time: 100, fire: func(ev *testEvent, tl *Timeline) {
		// WHEN a callback schedules an event in the past
		err := tl.Schedule(&testEvent{time: 50})
		// THEN it is rejected with a *SchedulingError naming both times
		var schedErr *SchedulingError
		if !errors.As(err, &schedErr) {
			t.Fatalf("Schedule in past: got %v, want *SchedulingError", err)
		}
		if schedErr.Timestamp != 50 || schedErr.Clock != 100 {
			t.Errorf("SchedulingError fields: got ts=%d clock=%d, want ts=50 clock=100",
				schedErr.Timestamp, schedErr.Clock)
		}
		reached = true
	}})
	tl.Run(200)
	if !reached {
		t.Fatal("callback never executed")
	}
}

func TestTimeline_Schedule_CurrentTickAllowed(t *testing.T) {
	// GIVEN a callback executing at tick 100
	tl := NewTimeline()
	var secondRan bool
	tl.Schedule(&testEvent{time: 100, fire: func(ev *testEvent, tl *Timeline) {
		// WHEN it schedules another event at the current tick
		if err := tl.Schedule(&testEvent{time: 100, fire: func(ev *testEvent, tl *Timeline) {
			secondRan = true
		}}); err != nil {
			t.Fatalf("Schedule at current tick: unexpected error %v", err)
		}
	}})
	tl.Run(200)

	// THEN the same-tick event runs after the first callback returns
	if !secondRan {
		t.Error("same-tick event never dispatched")
	}
}

func TestTimeline_Run_StopsAtHorizon(t *testing.T) {
	// GIVEN events on both sides of the horizon
	tl := NewTimeline()
	var ran []int64
	for _, ts := range []int64{10, 20, 5000} {
		tl.Schedule(&testEvent{time: ts, fire: func(ev *testEvent, tl *Timeline) {
			ran = append(ran, ev.time)
		}})
	}

	// WHEN running to a horizon between them
	tl.Run(100)

	// THEN only pre-horizon events ran, the late one stays queued, and the
	// clock rests at the horizon
	if len(ran) != 2 {
		t.Fatalf("ran %d events, want 2", len(ran))
	}
	if tl.PendingEvents() != 1 {
		t.Errorf("pending events: got %d, want 1", tl.PendingEvents())
	}
	if tl.Now() != 100 {
		t.Errorf("clock: got %d, want 100", tl.Now())
	}
}

func TestTimeline_Stop_HaltsDispatch(t *testing.T) {
	// GIVEN a callback that stops the timeline
	tl := NewTimeline()
	var ran int
	tl.Schedule(&testEvent{time: 10, fire: func(ev *testEvent, tl *Timeline) {
		ran++
		tl.Stop()
	}})
	tl.Schedule(&testEvent{time: 20, fire: func(ev *testEvent, tl *Timeline) {
		ran++
	}})

	// WHEN the timeline runs
	tl.Run(100)

	// THEN dispatch halts after the stopping callback
	if ran != 1 {
		t.Errorf("events ran: got %d, want 1", ran)
	}
}

func TestTimeline_Determinism_IdenticalSeedsIdenticalOrder(t *testing.T) {
	// GIVEN the same randomized schedule executed twice
	runOnce := func(seed int64) []int64 {
		tl := NewTimeline()
		rng := rand.New(rand.NewSource(seed))
		var dispatched []int64
		for i := 0; i < 100; i++ {
			ev := &testEvent{time: rng.Int63n(1000), id: i, fire: func(ev *testEvent, tl *Timeline) {
				dispatched = append(dispatched, int64(ev.id))
			}}
			tl.Schedule(ev)
		}
		tl.Run(2000)
		return dispatched
	}

	// WHEN replaying with an identical seed
	a := runOnce(42)
	b := runOnce(42)

	// THEN the dispatch sequences are identical
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("replay diverged at index %d: %d vs %d", i, a[i], b[i])
		}
	}
}
