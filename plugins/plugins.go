// Package plugins registers the built-in consumer factories with a
// ConsumerRegistry. Loading a consumer is a string lookup against this
// compile-time-linked table, never dynamic-library symbol resolution.
package plugins

import (
	"log/slog"

	"github.com/skalabs/stationdaq/internal/registry"
	"github.com/skalabs/stationdaq/pkg/daq"
)

// Plugin IDs consumers are loaded under.
const (
	PluginRawBurst          = "raw_burst"
	PluginChannelBurst      = "channel_burst"
	PluginChannelContinuous = "channel_continuous"
	PluginChannelIntegrated = "channel_integrated"
	PluginBeamBurst         = "beam_burst"
	PluginBeamIntegrated    = "beam_integrated"
	PluginStationBeam       = "station_beam"
	PluginAntennaBuffer     = "antenna_buffer"
	PluginCorrelator        = "correlator"
)

// Register attaches every built-in consumer factory to r. log is
// passed to every constructed consumer instance.
func Register(r *registry.ConsumerRegistry, log *slog.Logger) {
	r.RegisterFactory(PluginRawBurst, func() daq.Consumer { return newRawConsumer(log) })
	r.RegisterFactory(PluginChannelBurst, func() daq.Consumer { return newChannelBurstConsumer(log) })
	r.RegisterFactory(PluginChannelContinuous, func() daq.Consumer { return newChannelContinuousConsumer(log) })
	r.RegisterFactory(PluginChannelIntegrated, func() daq.Consumer { return newChannelIntegratedConsumer(log) })
	r.RegisterFactory(PluginBeamBurst, func() daq.Consumer { return newBeamBurstConsumer(log) })
	r.RegisterFactory(PluginBeamIntegrated, func() daq.Consumer { return newBeamIntegratedConsumer(log) })
	r.RegisterFactory(PluginStationBeam, func() daq.Consumer { return newStationBeamConsumer(log) })
	r.RegisterFactory(PluginAntennaBuffer, func() daq.Consumer { return newAntennaBufferConsumer(log) })
	r.RegisterFactory(PluginCorrelator, func() daq.Consumer { return newCorrelatorConsumer(log) })
}
