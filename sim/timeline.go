// sim/timeline.go
package sim

import (
	"container/heap"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Event is the unit of work dispatched by the Timeline.
// Each event carries a Timestamp (in picoseconds of simulated time) and an
// Execute method that advances simulation state when invoked.
type Event interface {
	Timestamp() int64
	Execute(tl *Timeline)
}

// SchedulingError reports an attempt to schedule an event in the simulated
// past. This is a programming-contract violation, not a runtime condition:
// callbacks may schedule future events but never past ones.
type SchedulingError struct {
	Event     string // description of the offending event
	Timestamp int64  // requested execution time
	Clock     int64  // simulation clock at the time of the call
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("event %s scheduled at tick %d, but clock is already at %d",
		e.Event, e.Timestamp, e.Clock)
}

// entry wraps an Event with its insertion sequence number. The sequence is
// the secondary ordering key, so that events with equal timestamps dispatch
// in the order they were scheduled. This makes replay deterministic for
// identical seeds.
type entry struct {
	ev  Event
	seq uint64
}

// eventHeap implements heap.Interface ordered by (timestamp, insertion seq).
// See canonical Golang example here: https://pkg.go.dev/container/heap#example-package-IntHeap
type eventHeap []entry

func (eq eventHeap) Len() int { return len(eq) }
func (eq eventHeap) Less(i, j int) bool {
	if eq[i].ev.Timestamp() != eq[j].ev.Timestamp() {
		return eq[i].ev.Timestamp() < eq[j].ev.Timestamp()
	}
	return eq[i].seq < eq[j].seq
}
func (eq eventHeap) Swap(i, j int) { eq[i], eq[j] = eq[j], eq[i] }

func (eq *eventHeap) Push(x any) {
	*eq = append(*eq, x.(entry))
}

func (eq *eventHeap) Pop() any {
	old := *eq
	n := len(old)
	item := old[n-1]
	*eq = old[0 : n-1]
	return item
}

// Timeline owns the simulated clock and the time-ordered event queue.
// All components execute cooperatively on one logical thread of control:
// callbacks run to completion before the next event is popped, so state
// mutation inside a callback needs no locking.
//
// One Timeline is created per run and passed explicitly to every component
// at construction; there is no ambient global clock.
type Timeline struct {
	clock   int64
	queue   eventHeap
	seq     uint64
	stopped bool

	// ExecutedCount is the number of events dispatched so far, exposed for
	// end-of-run reporting.
	ExecutedCount int64
}

// NewTimeline creates an empty timeline with the clock at zero.
func NewTimeline() *Timeline {
	return &Timeline{queue: make(eventHeap, 0)}
}

// Now returns the current simulated time in ticks.
func (tl *Timeline) Now() int64 {
	return tl.clock
}

// Schedule inserts an event into the queue. Scheduling at the current tick
// is allowed; scheduling in the past returns a *SchedulingError.
func (tl *Timeline) Schedule(ev Event) error {
	if ev.Timestamp() < tl.clock {
		return &SchedulingError{
			Event:     fmt.Sprintf("%T", ev),
			Timestamp: ev.Timestamp(),
			Clock:     tl.clock,
		}
	}
	heap.Push(&tl.queue, entry{ev: ev, seq: tl.seq})
	tl.seq++
	return nil
}

// mustSchedule is used by components whose event timestamps are derived from
// Now() plus a non-negative delay. A failure here indicates a logic bug, so
// it halts the run immediately with full diagnostic context.
func (tl *Timeline) mustSchedule(ev Event) {
	if err := tl.Schedule(ev); err != nil {
		panic(err)
	}
}

// Run dispatches events in (timestamp, insertion order) until the queue is
// empty, Stop is called, or the next event lies beyond the until horizon.
// The clock ends at min(last dispatched timestamp, until); events beyond the
// horizon stay queued.
func (tl *Timeline) Run(until int64) {
	for len(tl.queue) > 0 && !tl.stopped {
		if tl.queue[0].ev.Timestamp() > until {
			break
		}
		ev := heap.Pop(&tl.queue).(entry).ev
		// advance the clock
		tl.clock = ev.Timestamp()
		logrus.Debugf("[tick %013d] Executing %T", tl.clock, ev)
		ev.Execute(tl)
		tl.ExecutedCount++
	}
	if tl.clock < until {
		tl.clock = until
	}
	logrus.Infof("[tick %013d] Timeline drained after %d events", tl.clock, tl.ExecutedCount)
}

// Stop terminates Run after the current callback returns. Pending events
// remain queued.
func (tl *Timeline) Stop() {
	tl.stopped = true
}

// PendingEvents returns the number of events still queued.
func (tl *Timeline) PendingEvents() int {
	return len(tl.queue)
}
