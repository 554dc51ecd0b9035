package reassembly

// CounterWidth is the wire packet counter's bit width, 24 or 32
// depending on stream family.
type CounterWidth uint8

const (
	CounterWidth24 CounterWidth = 24
	CounterWidth32 CounterWidth = 32
)

// RolloverTracker reconstructs a monotonically increasing packet
// counter from a wrapping wire counter, per §4.4.2: a zero counter
// observed on the pivot packet (tile 0, pol 0) after a non-zero value
// was seen increments the rollover epoch. A zero on a non-pivot packet,
// once a non-zero value has been seen, folds into the not-yet-confirmed
// next epoch instead of the current one, since the pivot's own wrap may
// not have been observed yet and the reconstructed counter must stay
// monotonic across the boundary.
type RolloverTracker struct {
	width      CounterWidth
	sawNonZero bool
	rollovers  uint64
}

// NewRolloverTracker returns a tracker for the given wire counter width.
func NewRolloverTracker(width CounterWidth) *RolloverTracker {
	return &RolloverTracker{width: width}
}

// Reconstruct folds rawCounter into the current epoch and returns the
// monotonic counter value. isPivot marks whether this packet is the
// designated rollover-detection pivot (tile_id==0, pol_id==0 or the
// stream's equivalent).
func (r *RolloverTracker) Reconstruct(rawCounter uint64, isPivot bool) uint64 {
	if rawCounter == 0 && isPivot && r.sawNonZero {
		r.rollovers++
	}
	if rawCounter != 0 {
		r.sawNonZero = true
	}

	epoch := r.rollovers
	if rawCounter == 0 && !isPivot && r.sawNonZero {
		epoch++
	}
	return (epoch << uint(r.width)) + rawCounter
}

// Rollovers reports the number of rollovers observed so far.
func (r *RolloverTracker) Rollovers() uint64 {
	return r.rollovers
}

// Reset clears the tracker back to its initial state. No reassembler in
// this package calls it; each keeps one tracker for its whole lifetime.
func (r *RolloverTracker) Reset() {
	r.sawNonZero = false
	r.rollovers = 0
}
