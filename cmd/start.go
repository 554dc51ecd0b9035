package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"

	"github.com/skalabs/stationdaq/internal/config"
	"github.com/skalabs/stationdaq/internal/ingress"
	"github.com/skalabs/stationdaq/internal/log"
	"github.com/skalabs/stationdaq/internal/metrics"
	"github.com/skalabs/stationdaq/internal/registry"
	"github.com/skalabs/stationdaq/internal/ring"
	"github.com/skalabs/stationdaq/plugins"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the DAQ pipeline daemon",
	Long: `start loads the DAQ configuration, brings up the packet ingress
receiver, and attaches one consumer per configured stream family. It
runs until interrupted, then drains and shuts down cleanly.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runStart(); err != nil {
			exitWithError("start", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}

// streamFamily binds one configured stream to the plugin that consumes
// it, the ports ingress should route to it, and the ring geometry its
// dispatch goroutine reads from.
type streamFamily struct {
	name      string
	pluginID  string
	port      int
	enabled   bool
	cellSize  uint32
	nofCells  uint32
	rawConfig any
}

func runStart() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := log.Init(cfg.Log); err != nil {
		return fmt.Errorf("initialising logging: %w", err)
	}
	logger := log.Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path, logger)
		if err := metricsServer.Start(ctx); err != nil {
			return fmt.Errorf("starting metrics server: %w", err)
		}
	}

	ing := ingress.New(ingress.Config{
		Interface:      cfg.Ingress.Interface,
		IP:             cfg.Ingress.IP,
		FrameSize:      cfg.Ingress.FrameSize,
		FramesPerBlock: cfg.Ingress.FramesPerBlock,
		NofBlocks:      cfg.Ingress.NofBlocks,
		NofThreads:     cfg.Ingress.NofThreads,
		Promiscuous:    cfg.Ingress.Promiscuous,
	}, logger)

	families := []streamFamily{
		{name: "raw", pluginID: plugins.PluginRawBurst, port: cfg.Raw.Port, enabled: cfg.Raw.NofTiles > 0, rawConfig: cfg.Raw},
		{name: "burst_channel", pluginID: plugins.PluginChannelBurst, port: cfg.BurstChannel.Port, enabled: cfg.BurstChannel.NofTiles > 0, rawConfig: cfg.BurstChannel},
		{name: "continuous_channel", pluginID: plugins.PluginChannelContinuous, port: cfg.ContinuousChannel.Port, enabled: cfg.ContinuousChannel.NofTiles > 0, rawConfig: cfg.ContinuousChannel},
		{name: "integrated_channel", pluginID: plugins.PluginChannelIntegrated, port: cfg.IntegratedChannel.Port, enabled: cfg.IntegratedChannel.NofTiles > 0, rawConfig: cfg.IntegratedChannel},
		{name: "burst_beam", pluginID: plugins.PluginBeamBurst, port: cfg.BurstBeam.Port, enabled: cfg.BurstBeam.NofTiles > 0, rawConfig: cfg.BurstBeam},
		{name: "integrated_beam", pluginID: plugins.PluginBeamIntegrated, port: cfg.IntegratedBeam.Port, enabled: cfg.IntegratedBeam.NofTiles > 0, rawConfig: cfg.IntegratedBeam},
		{name: "station_beam", pluginID: plugins.PluginStationBeam, port: cfg.StationBeam.Port, enabled: cfg.StationBeam.NofChannels > 0, rawConfig: cfg.StationBeam},
		{name: "antenna_buffer", pluginID: plugins.PluginAntennaBuffer, port: cfg.AntennaBuffer.Port, enabled: cfg.AntennaBuffer.NofTiles > 0, rawConfig: cfg.AntennaBuffer},
		{name: "correlator", pluginID: plugins.PluginCorrelator, port: cfg.Correlator.Port, enabled: cfg.Correlator.NofTiles > 0, rawConfig: cfg.Correlator},
	}

	for _, f := range families {
		if !f.enabled {
			continue
		}
		if err := ing.AddPort(uint16(f.port)); err != nil {
			return fmt.Errorf("adding port for %s: %w", f.name, err)
		}
	}

	if err := ing.Start(ctx); err != nil {
		return fmt.Errorf("starting ingress: %w", err)
	}

	daqCtx := registry.NewDaqContext(ing, logger)
	reg := registry.New(daqCtx)
	plugins.Register(reg, logger)

	var started []string
	for _, f := range families {
		if !f.enabled {
			continue
		}
		if err := startFamily(reg, ing, f); err != nil {
			shutdownFamilies(reg, started)
			ing.Stop()
			return fmt.Errorf("starting %s: %w", f.name, err)
		}
		started = append(started, f.name)
		logger.Info("consumer started", "family", f.name, "port", f.port)
	}

	logger.Info("stationdaq running", "families", len(started))
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownFamilies(reg, started)
	ing.Stop()
	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
		defer shutdownCancel()
		_ = metricsServer.Stop(shutdownCtx)
	}
	return nil
}

func startFamily(reg *registry.ConsumerRegistry, ing *ingress.PacketIngress, f streamFamily) error {
	if err := reg.LoadConsumer(f.pluginID, f.name); err != nil {
		return err
	}
	configJSON, err := structToConfigJSON(f.rawConfig)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := reg.InitialiseConsumer(f.name, configJSON); err != nil {
		return err
	}
	rg := ring.NewSpscRing(ring.Config{CellSize: 9000, NofCells: 4096})
	return reg.StartConsumer(f.name, &ingress.Consumer{
		Name:  f.name,
		Ports: []uint16{uint16(f.port)},
		Ring:  rg,
	})
}

// structToConfigJSON re-keys a typed stream-family config struct into
// the snake_case map every consumer's Init decodes with mapstructure,
// then serialises it the way InitialiseConsumer expects to receive it.
func structToConfigJSON(v any) (string, error) {
	var m map[string]any
	if err := mapstructure.Decode(v, &m); err != nil {
		return "", err
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func shutdownFamilies(reg *registry.ConsumerRegistry, names []string) {
	for _, name := range names {
		_ = reg.StopConsumer(name)
	}
}
