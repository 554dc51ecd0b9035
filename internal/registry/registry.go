// Package registry implements the process-wide ConsumerRegistry: a
// singleton-per-name lifecycle manager for consumer instances and
// their bindings to the process-wide PacketIngress, held inside an
// explicit DaqContext rather than package-level globals.
package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skalabs/stationdaq/internal/core"
	"github.com/skalabs/stationdaq/internal/ingress"
	"github.com/skalabs/stationdaq/internal/metrics"
	"github.com/skalabs/stationdaq/internal/ring"
	"github.com/skalabs/stationdaq/internal/spead"
	"github.com/skalabs/stationdaq/pkg/daq"
)

// DaqContext owns the process-wide ingress handle and logger. Every
// long-lived component receives it by reference at construction; a
// package-level accessor is deliberately not provided so ownership
// stays explicit outside the CLI entry point.
type DaqContext struct {
	Ingress *ingress.PacketIngress
	Log     *slog.Logger
}

// NewDaqContext constructs a context wrapping an already-configured
// ingress instance.
func NewDaqContext(ing *ingress.PacketIngress, log *slog.Logger) *DaqContext {
	if log == nil {
		log = slog.Default()
	}
	return &DaqContext{Ingress: ing, Log: log}
}

type entry struct {
	consumer    daq.Consumer
	initialised bool
	started     bool
	stop        chan struct{}
	done        chan struct{}
}

// ConsumerRegistry manages the lifecycle of named consumer instances:
// load (instantiate), initialise (configure), start (attach to
// ingress), stop (detach and destroy).
type ConsumerRegistry struct {
	ctx *DaqContext

	mu        sync.Mutex
	factories map[string]daq.Factory
	instances map[string]*entry
}

// New constructs an empty registry bound to ctx.
func New(ctx *DaqContext) *ConsumerRegistry {
	return &ConsumerRegistry{
		ctx:       ctx,
		factories: make(map[string]daq.Factory),
		instances: make(map[string]*entry),
	}
}

// RegisterFactory adds a compile-time-linked consumer factory under
// pluginID. Loading a consumer is a string lookup against this table,
// not dynamic-library symbol resolution.
func (r *ConsumerRegistry) RegisterFactory(pluginID string, f daq.Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[pluginID] = f
}

// LoadConsumer resolves pluginID's factory and stashes a fresh
// instance under name. It rejects duplicate names.
func (r *ConsumerRegistry) LoadConsumer(pluginID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.instances[name]; exists {
		return core.ErrConsumerExists
	}
	factory, ok := r.factories[pluginID]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrPluginNotFound, pluginID)
	}
	r.instances[name] = &entry{consumer: factory()}
	return nil
}

// InitialiseConsumer parses configJSON (a free-form string-keyed map
// of recognised options) and hands it to the consumer's Init.
func (r *ConsumerRegistry) InitialiseConsumer(name, configJSON string) error {
	r.mu.Lock()
	e, ok := r.instances[name]
	r.mu.Unlock()
	if !ok {
		return core.ErrConsumerNotFound
	}
	if e.initialised {
		return core.ErrConsumerAlreadyInitialised
	}

	var cfg map[string]any
	if configJSON != "" {
		if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
			return fmt.Errorf("registry: parsing config for %s: %w", name, err)
		}
	}
	if err := e.consumer.Init(cfg); err != nil {
		return fmt.Errorf("registry: initialising %s: %w", name, err)
	}

	r.mu.Lock()
	e.initialised = true
	r.mu.Unlock()
	return nil
}

// StartConsumer registers the consumer's ring with the process-wide
// ingress and spawns the real-time goroutine that pulls raw payloads
// off it, validates their SPEAD header, and drives the consumer's
// Filter/Process pair.
func (r *ConsumerRegistry) StartConsumer(name string, c *ingress.Consumer) error {
	r.mu.Lock()
	e, ok := r.instances[name]
	r.mu.Unlock()
	if !ok {
		return core.ErrConsumerNotFound
	}
	if !e.initialised {
		return core.ErrConsumerNotInitialised
	}
	if r.ctx.Ingress == nil {
		return core.ErrReceiverUninitialised
	}

	if err := r.ctx.Ingress.RegisterConsumer(c); err != nil {
		return err
	}

	e.stop = make(chan struct{})
	e.done = make(chan struct{})

	r.mu.Lock()
	e.started = true
	r.mu.Unlock()

	go r.dispatchLoop(name, e, c.Ring)
	return nil
}

// dispatchLoop is the per-consumer real-time thread: pull, validate,
// filter, process, account. It polls for ring occupancy rather than
// blocking indefinitely on Pull so it can observe the stop signal
// within a bounded interval, per the cooperative-shutdown design.
func (r *ConsumerRegistry) dispatchLoop(name string, e *entry, rg *ring.SpscRing) {
	defer close(e.done)

	for {
		select {
		case <-e.stop:
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
			metrics.LostTotal.WithLabelValues(name, "malformed").Inc()
			continue
		}
		body, err := view.Payload()
		if err != nil {
			metrics.LostTotal.WithLabelValues(name, "malformed").Inc()
			continue
		}
		mode := view.CaptureMode()
		if !e.consumer.Filter(mode) {
			metrics.LostTotal.WithLabelValues(name, "filtered").Inc()
			continue
		}

		sync, _ := view.Find(spead.ItemSyncTime)
		ts, _ := view.Find(spead.ItemTimestamp)
		timestamp := spead.PacketTime(sync.Value, ts.Value, scaleForMode(mode))

		result, err := e.consumer.Process(daq.Packet{View: view, Payload: body, Timestamp: timestamp})
		if err != nil {
			r.ctx.Log.Warn("registry: consumer processing error", "consumer", name, "error", err)
			continue
		}
		if result.Accepted {
			metrics.FramesTotal.WithLabelValues(name).Inc()
			metrics.BytesTotal.WithLabelValues(name).Add(float64(len(body)))
		}
		if result.Persisted {
			metrics.ContainersPersisted.WithLabelValues(name).Inc()
		}
	}
}

// scaleForMode picks the sync_time+timestamp*scale conversion for
// families whose Process implementation trusts Packet.Timestamp
// directly rather than recomputing it from raw item values itself
// (station-beam recomputes its own scale from the scan-ID item).
func scaleForMode(mode spead.CaptureMode) spead.TimestampScale {
	if mode == spead.CaptureModeAntennaBuffer {
		return spead.ScaleAntennaBuffer
	}
	return spead.ScaleStandard
}

// StopConsumer signals the dispatch goroutine, waits for it to drain,
// unregisters from ingress, and destroys the instance.
func (r *ConsumerRegistry) StopConsumer(name string) error {
	r.mu.Lock()
	e, ok := r.instances[name]
	r.mu.Unlock()
	if !ok {
		return core.ErrConsumerNotFound
	}

	if e.started {
		close(e.stop)
		<-e.done
		if r.ctx.Ingress != nil {
			r.ctx.Ingress.UnregisterConsumer(name)
		}
	}
	e.consumer.OnStreamEnd()
	e.consumer.Cleanup()

	r.mu.Lock()
	delete(r.instances, name)
	r.mu.Unlock()
	return nil
}

// Get returns the named consumer instance, for callers that need to
// invoke it directly from the ingress dispatch loop.
func (r *ConsumerRegistry) Get(name string) (daq.Consumer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.instances[name]
	if !ok {
		return nil, false
	}
	return e.consumer, true
}
