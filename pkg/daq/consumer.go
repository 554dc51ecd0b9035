// Package daq exposes the public capability set every stream-family
// consumer implements: a small tagged interface rather than a deep
// class hierarchy, per the re-architected DataConsumer design.
package daq

import (
	"time"

	"github.com/google/uuid"

	"github.com/skalabs/stationdaq/internal/spead"
)

// ConsumerID uniquely identifies a running consumer instance.
type ConsumerID string

// NewConsumerID generates a fresh consumer identifier.
func NewConsumerID() ConsumerID {
	return ConsumerID(uuid.NewString())
}

// ProcessResult is returned by Consumer.Process to tell the calling
// reassembly loop what happened to one packet, without the consumer
// needing to touch shared reassembler state directly.
type ProcessResult struct {
	Accepted  bool
	Persisted bool
}

// Packet is the decoded, validated view a Consumer inspects: the SPEAD
// view, the located payload, and its arrival timestamp.
type Packet struct {
	View      spead.View
	Payload   []byte
	Timestamp time.Time
}

// Consumer is the capability set every stream-family reassembler
// implements. Dispatch to the right family is done by a small tagged
// enum (spead.CaptureMode), not by embedding or type hierarchies.
type Consumer interface {
	// Init parses the consumer's free-form JSON configuration.
	Init(config map[string]any) error

	// Filter reports whether this consumer accepts the given packet's
	// capture mode.
	Filter(mode spead.CaptureMode) bool

	// Process scatters one packet into the consumer's buffers.
	Process(p Packet) (ProcessResult, error)

	// OnStreamEnd is called on shutdown or an input-stream
	// pause/timeout. The raw, channel burst, beam burst, station-beam,
	// antenna-buffer and correlator consumers flush their in-progress
	// buffer and close their writer; the channel continuous, channel
	// integrated and beam integrated consumers only close their writer
	// and do not flush.
	OnStreamEnd()

	// Cleanup releases any resources the consumer holds (open files,
	// allocated containers).
	Cleanup()
}

// DiagnosticCallback receives periodic per-consumer counters (5 s
// cadence), separate from the per-buffer ConsumerCallback.
type DiagnosticCallback func(id ConsumerID, stats map[string]uint64)

// Factory constructs a fresh, uninitialised Consumer instance. Plugins
// register a Factory under a name; loading is a string lookup against
// compile-time-linked factories, not dynamic-library symbol
// resolution.
type Factory func() Consumer
