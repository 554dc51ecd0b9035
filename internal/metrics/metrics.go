// Package metrics implements Prometheus metrics for the DAQ pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesTotal counts SPEAD packets that a consumer's Process reports
	// as accepted, labelled by consumer name.
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daq_frames_total",
			Help: "Total number of SPEAD frames accepted per consumer",
		},
		[]string{"consumer"},
	)

	// BytesTotal counts payload bytes scattered into containers.
	BytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daq_bytes_total",
			Help: "Total number of payload bytes reassembled per consumer",
		},
		[]string{"consumer"},
	)

	// LostTotal counts packets the consumer stage drops, with reason
	// "malformed" or "filtered". Packets rejected by a full SPSC ring are
	// counted in the ingress worker statistics, not here.
	LostTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daq_lost_total",
			Help: "Total number of packets lost before reassembly",
		},
		[]string{"consumer", "reason"},
	)

	// OverwritesTotal is registered for DoubleBuffer producer-priority
	// overwrites; nothing in this module increments it.
	OverwritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daq_overwrites_total",
			Help: "Total number of DoubleBuffer slots forcibly overwritten by the producer",
		},
		[]string{"consumer"},
	)

	// ContainersPersisted is incremented when a consumer's Process
	// reports Persisted; no plugin in this module sets that flag, so it
	// stays at zero.
	ContainersPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daq_containers_persisted_total",
			Help: "Total number of reassembly containers persisted",
		},
		[]string{"consumer"},
	)

	// RolloverEvents is registered for packet-counter wraps per
	// consumer; nothing in this module increments it.
	RolloverEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "daq_rollover_events_total",
			Help: "Total number of packet counter rollovers observed",
		},
		[]string{"consumer"},
	)
)
