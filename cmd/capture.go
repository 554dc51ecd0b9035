package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/skalabs/stationdaq/internal/capture"
	"github.com/skalabs/stationdaq/internal/config"
	"github.com/skalabs/stationdaq/internal/ingress"
	"github.com/skalabs/stationdaq/internal/log"
	"github.com/skalabs/stationdaq/internal/reassembly"
	"github.com/skalabs/stationdaq/internal/ring"
	"github.com/skalabs/stationdaq/internal/spead"
)

var captureOpts struct {
	directory      string
	duration       time.Duration
	nofSamples     int
	startChannel   int
	nofChannels    int
	iface          string
	ip             string
	maxFileSize    int64
	source         string
	dada           bool
	individual     bool
	simulate       bool
	testAcq        bool
	captureTime    string
	transpose      bool
	legacyShift    bool
}

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture one station-beam stream to disk",
	Long: `capture is a standalone station-beam acquisition tool: it opens a
single ingress socket, reassembles the station-beam wire family, and
writes the result to rotating binary (or DADA) files for the
configured duration, independent of the daemon's multi-family config
file.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runCapture(); err != nil {
			exitWithError("capture", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(captureCmd)

	f := captureCmd.Flags()
	f.StringVar(&captureOpts.directory, "directory", ".", "output directory")
	f.DurationVar(&captureOpts.duration, "duration", 10*time.Second, "capture duration")
	f.IntVar(&captureOpts.nofSamples, "nof_samples", 262144, "samples per buffer")
	f.IntVar(&captureOpts.startChannel, "start_channel", 0, "first channel captured")
	f.IntVar(&captureOpts.nofChannels, "nof_channels", 1, "number of channels captured")
	f.StringVar(&captureOpts.iface, "interface", "", "network interface to bind")
	f.StringVar(&captureOpts.ip, "ip", "", "destination IP to filter on")
	f.Int64Var(&captureOpts.maxFileSize, "max_file_size", 4*1024*1024*1024, "file rotation cutoff in bytes")
	f.StringVar(&captureOpts.source, "source", "", "DADA SOURCE header field")
	f.BoolVar(&captureOpts.dada, "dada", false, "emit a 4096-byte DADA header per file")
	f.BoolVar(&captureOpts.individual, "individual", false, "write one file per channel")
	f.BoolVar(&captureOpts.simulate, "simulate", false, "run without opening a real capture socket")
	f.BoolVar(&captureOpts.testAcq, "test_acquisition", false, "validate configuration and exit without capturing")
	f.StringVar(&captureOpts.captureTime, "capture_time", "", "alignment point, format YYYY/MM/DD_HH:MM")
	f.BoolVar(&captureOpts.transpose, "transpose", false, "transpose to [sample, channel, pol] layout")
	f.BoolVar(&captureOpts.legacyShift, "legacy_counter_shift", false, "divide packet_counter by 8 before boundary comparison")
}

func runCapture() error {
	if err := log.Init(defaultCaptureLogConfig()); err != nil {
		return fmt.Errorf("initialising logging: %w", err)
	}
	logger := log.Logger()

	var startTime time.Time
	if captureOpts.captureTime != "" {
		t, err := time.Parse(captureStartTimeLayoutForCLI, captureOpts.captureTime)
		if err != nil {
			return fmt.Errorf("parsing capture_time: %w", err)
		}
		startTime = t
	}

	rcfg := reassembly.StationBeamConfig{
		StartChannel:       captureOpts.startChannel,
		NofChannels:        captureOpts.nofChannels,
		NofSamples:         captureOpts.nofSamples,
		TransposeSamples:   captureOpts.transpose,
		SamplesPerPacket:   1,
		LegacyCounterShift: captureOpts.legacyShift,
	}

	const nofPols = 2
	bufferBytes := int64(rcfg.NofChannels * rcfg.NofSamples * nofPols)

	capCfg := capture.Config{
		Directory:          captureOpts.directory,
		FirstChannel:       captureOpts.startChannel,
		ChannelsInFile:     captureOpts.nofChannels,
		MaxFileSizeBytes:   captureOpts.maxFileSize,
		Dada:               captureOpts.dada,
		IndividualChannels: captureOpts.individual,
		CaptureStartTime:   startTime,
		SamplingPeriod:     spead.SamplingPeriod,
		Source:             captureOpts.source,
	}

	if captureOpts.testAcq {
		if _, err := capture.New(capCfg, bufferBytes, logger); err != nil {
			return fmt.Errorf("validating capture configuration: %w", err)
		}
		logger.Info("test_acquisition: configuration is valid")
		return nil
	}

	reassembler := reassembly.NewStationBeamReassembler(rcfg, logger)
	cap, err := capture.New(capCfg, bufferBytes, logger)
	if err != nil {
		return fmt.Errorf("constructing capture pipeline: %w", err)
	}
	reassembler.SetCallback(func(data []byte, ts time.Time, meta reassembly.Metadata) {
		if err := cap.Write(data, ts, meta); err != nil {
			logger.Error("capture: write failed", "error", err)
		}
	})
	defer cap.Close()

	ctx, cancel := context.WithTimeout(context.Background(), captureOpts.duration)
	defer cancel()
	sigCtx, sigCancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer sigCancel()

	if captureOpts.simulate {
		logger.Info("simulate: skipping real ingress socket", "duration", captureOpts.duration)
		<-sigCtx.Done()
		reassembler.Flush()
		return nil
	}

	const stationBeamPort = 4666
	ing := ingress.New(ingress.Config{Interface: captureOpts.iface, IP: captureOpts.ip}, logger)
	if err := ing.AddPort(stationBeamPort); err != nil {
		return fmt.Errorf("adding capture port: %w", err)
	}
	if err := ing.Start(sigCtx); err != nil {
		return fmt.Errorf("starting ingress: %w", err)
	}
	defer ing.Stop()

	rg := ring.NewSpscRing(ring.Config{CellSize: 9000, NofCells: 4096})
	consumer := &ingress.Consumer{Name: "station_beam_capture", Ports: []uint16{stationBeamPort}, Ring: rg}
	if err := ing.RegisterConsumer(consumer); err != nil {
		return fmt.Errorf("registering consumer: %w", err)
	}
	defer ing.UnregisterConsumer(consumer.Name)

	drainLoop(sigCtx, rg, reassembler, logger)
	reassembler.Flush()
	return nil
}

// drainLoop is capture's single-consumer analogue of the daemon's
// registry.dispatchLoop, inlined here since the standalone tool never
// touches a ConsumerRegistry.
func drainLoop(ctx context.Context, rg *ring.SpscRing, r *reassembly.StationBeamReassembler, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !rg.PullReady() {
			time.Sleep(100 * time.Microsecond)
			continue
		}
		payload, ok := rg.Pull()
		if !ok {
			continue
		}
		view, err := spead.Validate(payload)
		if err != nil {
			continue
		}
		body, err := view.Payload()
		if err != nil {
			continue
		}
		if !r.Accept(view.CaptureMode()) {
			continue
		}
		sync, ok := view.Find(spead.ItemSyncTime)
		if !ok {
			continue
		}
		ts, ok := view.Find(spead.ItemTimestamp)
		if !ok {
			continue
		}
		ch, ok := spead.FindEither(view, spead.ItemChannelInfoA, spead.ItemChannelInfoB)
		if !ok {
			continue
		}
		cf := spead.DecodeChannelInfo(ch.Value)
		pol := uint8(0)
		if tile, found := spead.FindEither(view, spead.ItemTileInfoA, spead.ItemTileInfoB); found {
			pol = spead.DecodeTileInfo(tile.Value).PolID
		}
		sampleIndex := int(cf.PacketIndex)
		logicalChannel := int(cf.ChannelID)

		pkt := reassembly.Packet{View: view, Payload: body, Timestamp: spead.PacketTime(sync.Value, ts.Value, spead.ScaleStandard)}
		if err := r.Process(pkt, sync.Value, ts.Value, sampleIndex, pol, logicalChannel); err != nil {
			logger.Warn("capture: processing error", "error", err)
		}
	}
}

const captureStartTimeLayoutForCLI = "2006/01/02_15:04"

func defaultCaptureLogConfig() config.LogConfig {
	return config.LogConfig{Level: "info", Format: "text"}
}
