// Package events provides the FIFO channel between generation (which writes
// under the orchestrator's lock) and transport readers (which poll
// independently). The queue is bounded: when full, the oldest undrained
// event is dropped so an unpolled process cannot grow without limit.
package events

import (
	"sync"

	"github.com/deskagent/deskagent/core"
)

// DefaultCapacity bounds the queue when no explicit capacity is configured.
const DefaultCapacity = 256

// Options holds overrides passed to NewQueue().
type Options struct {
	// Capacity is the maximum number of undrained events retained.
	Capacity int
}

// Queue is a mutex-guarded bounded FIFO of events. It carries its own lock,
// lighter than the orchestrator's, so polling never contends with an
// in-flight generation.
type Queue struct {
	mu      sync.Mutex
	items   []core.Event
	cap     int
	dropped uint64
}

// NewQueue constructs an empty queue.
func NewQueue(optFns ...func(o *Options)) *Queue {
	opts := Options{Capacity: DefaultCapacity}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	return &Queue{cap: opts.Capacity}
}

// Push appends an event, evicting the oldest one when the queue is full.
func (q *Queue) Push(ev core.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.cap {
		overflow := len(q.items) - q.cap + 1
		q.items = append(q.items[:0], q.items[overflow:]...)
		q.dropped += uint64(overflow)
	}
	q.items = append(q.items, ev)
}

// Drain atomically removes and returns all queued events in emission order.
func (q *Queue) Drain() []core.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// Clear discards all queued events.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}

// Len returns the number of undrained events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns the number of events evicted due to overflow.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
