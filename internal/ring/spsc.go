// Package ring implements a single-consumer hand-off ring buffer
// (Push is also safe for several concurrent producers) used to move
// raw packets from the ingress capture loop to a per-consumer
// reassembly goroutine without a channel's scheduler overhead on the
// hot path.
package ring

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/skalabs/stationdaq/internal/core"
)

// cacheLineSize is the padding that keeps the producer and consumer
// cursors on separate cache lines, avoiding false sharing between the
// capture goroutine and the reassembly goroutine.
const cacheLineSize = 64

// backoff bounds are tuned so a consumer spinning in Pull degrades from
// a bare spin to Gosched to a short sleep well before the OS considers
// it a runaway goroutine.
const (
	spinIterations     = 64
	goschedIterations  = 1024
	backoffSleep       = 500 * time.Microsecond
)

type cell struct {
	sequence atomic.Uint64
	data     []byte
}

// Config describes an SpscRing's fixed geometry. NofCells must be a
// power of two so index masking replaces modulo on the hot path.
type Config struct {
	CellSize uint32
	NofCells uint32
}

// SpscRing is a bounded, wait-minimal hand-off queue with exactly one
// consumer goroutine and one or more producer goroutines. Cells are
// pre-allocated at construction time so Push never allocates.
type SpscRing struct {
	mask  uint64
	cells []cell

	_        [cacheLineSize]byte
	enqueue  atomic.Uint64
	_        [cacheLineSize]byte
	dequeue  atomic.Uint64
	_        [cacheLineSize]byte

	dropped atomic.Uint64
}

// NewSpscRing allocates a ring with the given geometry. NofCells is
// rounded up to the next power of two if it is not one already.
func NewSpscRing(cfg Config) *SpscRing {
	n := nextPowerOfTwo(cfg.NofCells)
	r := &SpscRing{
		mask:  uint64(n - 1),
		cells: make([]cell, n),
	}
	for i := range r.cells {
		r.cells[i].sequence.Store(uint64(i))
		r.cells[i].data = make([]byte, cfg.CellSize)
	}
	return r
}

func nextPowerOfTwo(v uint32) uint32 {
	if v == 0 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	return v + 1
}

// Push copies src into the next free cell. It returns core.ErrRingFull
// immediately if the ring is saturated: the ingress loop counts and
// drops rather than blocking, since blocking the capture thread loses
// far more packets than one drop does.
//
// Push is safe for concurrent multi-writer use: the ingress worker pool
// runs nof_threads goroutines pushing into the same consumer ring, so
// claiming a cell is a CAS loop on the shared enqueue cursor rather than
// a plain load-then-store, matching a single-consumer Vyukov queue
// generalised to multiple producers.
func (r *SpscRing) Push(src []byte) error {
	for {
		pos := r.enqueue.Load()
		c := &r.cells[pos&r.mask]

		seq := c.sequence.Load()
		if seq != pos {
			if seq < pos {
				r.dropped.Add(1)
				return core.ErrRingFull
			}
			// another producer already claimed and published this slot
			// while we were reading; retry against the new cursor.
			continue
		}

		if !r.enqueue.CompareAndSwap(pos, pos+1) {
			continue
		}

		n := copy(c.data[:cap(c.data)], src)
		c.data = c.data[:n]
		c.sequence.Store(pos + 1)
		return nil
	}
}

// Pull returns the next queued cell's bytes, blocking with a bounded
// backoff until data arrives or ctx-style cancellation is signalled by
// the caller checking done between calls.
func (r *SpscRing) Pull() ([]byte, bool) {
	pos := r.dequeue.Load()
	c := &r.cells[pos&r.mask]

	spins := 0
	for c.sequence.Load() != pos+1 {
		spins++
		switch {
		case spins < spinIterations:
			// busy spin
		case spins < goschedIterations:
			runtime.Gosched()
		default:
			time.Sleep(backoffSleep)
		}
	}

	out := make([]byte, len(c.data))
	copy(out, c.data)
	r.dequeue.Store(pos + 1)
	c.sequence.Store(pos + r.mask + 1)
	return out, true
}

// PullReady reports whether a cell is immediately available, without
// blocking. Used by consumers that multiplex several rings.
func (r *SpscRing) PullReady() bool {
	pos := r.dequeue.Load()
	c := &r.cells[pos&r.mask]
	return c.sequence.Load() == pos+1
}

// Dropped returns the cumulative count of pushes rejected because the
// ring was full.
func (r *SpscRing) Dropped() uint64 {
	return r.dropped.Load()
}

// Len returns the current occupancy, an approximation valid only for
// diagnostics since producer and consumer cursors move concurrently.
func (r *SpscRing) Len() uint64 {
	enq := r.enqueue.Load()
	deq := r.dequeue.Load()
	if enq < deq {
		return 0
	}
	return enq - deq
}

// Capacity returns the number of cells in the ring.
func (r *SpscRing) Capacity() int {
	return len(r.cells)
}
