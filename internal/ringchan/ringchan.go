// Package ringchan provides a bounded channel with drop-oldest overflow
// semantics, used to fan events out to subscribers that may lag behind the
// radio event rate without ever blocking the publisher.
package ringchan

import "sync/atomic"

// Ring is a bounded channel-like buffer. When full, a send discards the
// oldest buffered element instead of blocking. Readers see elements in FIFO
// order; only intermediate elements can be lost, never reordered.
type Ring[T any] struct {
	ch      chan T
	metrics Metrics
}

// Metrics tracks ring activity with atomic counters.
type Metrics struct {
	Written     int64
	Overwritten int64
	Received    int64
}

// New creates a Ring with the given capacity. Panics if capacity <= 0.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &Ring[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel. Consumers can range over it
// until Close.
func (r *Ring[T]) C() <-chan T {
	return r.ch
}

// Send inserts v, dropping the oldest buffered element if the ring is full.
// It never blocks. Returns true if an element was dropped.
func (r *Ring[T]) Send(v T) bool {
	dropped := false
	select {
	case r.ch <- v:
	default:
		select {
		case <-r.ch:
			atomic.AddInt64(&r.metrics.Overwritten, 1)
			dropped = true
		default:
			// A concurrent reader drained the ring between the two selects.
		}
		r.ch <- v
	}
	atomic.AddInt64(&r.metrics.Written, 1)
	return dropped
}

// TrySend inserts v only if there is room. Returns false if the ring is full.
func (r *Ring[T]) TrySend(v T) bool {
	select {
	case r.ch <- v:
		atomic.AddInt64(&r.metrics.Written, 1)
		return true
	default:
		return false
	}
}

// Receive blocks until a value is available or the ring is closed.
// ok is false once the ring is closed and drained.
func (r *Ring[T]) Receive() (v T, ok bool) {
	v, ok = <-r.ch
	if ok {
		atomic.AddInt64(&r.metrics.Received, 1)
	}
	return
}

// TryReceive performs a non-blocking receive.
func (r *Ring[T]) TryReceive() (v T, ok bool) {
	select {
	case v, ok = <-r.ch:
		if ok {
			atomic.AddInt64(&r.metrics.Received, 1)
		}
		return
	default:
		var zero T
		return zero, false
	}
}

// Len returns the number of buffered elements.
func (r *Ring[T]) Len() int { return len(r.ch) }

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int { return cap(r.ch) }

// Close closes the ring. Sending after Close panics.
func (r *Ring[T]) Close() { close(r.ch) }

// Stats returns a snapshot of the counters. Receives through C() bypass the
// Received counter.
func (r *Ring[T]) Stats() Metrics {
	return Metrics{
		Written:     atomic.LoadInt64(&r.metrics.Written),
		Overwritten: atomic.LoadInt64(&r.metrics.Overwritten),
		Received:    atomic.LoadInt64(&r.metrics.Received),
	}
}
