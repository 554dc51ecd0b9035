package registry

import (
	"errors"
	"testing"

	"github.com/skalabs/stationdaq/internal/core"
	"github.com/skalabs/stationdaq/internal/ingress"
	"github.com/skalabs/stationdaq/internal/ring"
	"github.com/skalabs/stationdaq/internal/spead"
	"github.com/skalabs/stationdaq/pkg/daq"
)

type fakeConsumer struct {
	initCalls   int
	streamEnded bool
	cleanedUp   bool
	initErr     error
}

func (f *fakeConsumer) Init(config map[string]any) error {
	f.initCalls++
	return f.initErr
}
func (f *fakeConsumer) Filter(mode spead.CaptureMode) bool { return true }
func (f *fakeConsumer) Process(p daq.Packet) (daq.ProcessResult, error) {
	return daq.ProcessResult{}, nil
}
func (f *fakeConsumer) OnStreamEnd() { f.streamEnded = true }
func (f *fakeConsumer) Cleanup()     { f.cleanedUp = true }

func newTestRegistry() (*ConsumerRegistry, *fakeConsumer) {
	fc := &fakeConsumer{}
	ctx := NewDaqContext(ingress.New(ingress.Config{Interface: "lo"}, nil), nil)
	r := New(ctx)
	r.RegisterFactory("fake", func() daq.Consumer { return fc })
	return r, fc
}

func TestLoadConsumerRejectsDuplicateName(t *testing.T) {
	r, _ := newTestRegistry()
	if err := r.LoadConsumer("fake", "a"); err != nil {
		t.Fatalf("first load failed: %v", err)
	}
	if err := r.LoadConsumer("fake", "a"); !errors.Is(err, core.ErrConsumerExists) {
		t.Fatalf("expected ErrConsumerExists, got %v", err)
	}
}

func TestLoadConsumerRejectsUnknownPlugin(t *testing.T) {
	r, _ := newTestRegistry()
	if err := r.LoadConsumer("missing", "a"); !errors.Is(err, core.ErrPluginNotFound) {
		t.Fatalf("expected ErrPluginNotFound, got %v", err)
	}
}

func TestInitialiseConsumerRejectsDoubleInit(t *testing.T) {
	r, fc := newTestRegistry()
	if err := r.LoadConsumer("fake", "a"); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := r.InitialiseConsumer("a", `{"x":1}`); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if fc.initCalls != 1 {
		t.Fatalf("expected 1 init call, got %d", fc.initCalls)
	}
	if err := r.InitialiseConsumer("a", ""); !errors.Is(err, core.ErrConsumerAlreadyInitialised) {
		t.Fatalf("expected ErrConsumerAlreadyInitialised, got %v", err)
	}
}

func TestInitialiseConsumerRequiresLoad(t *testing.T) {
	r, _ := newTestRegistry()
	if err := r.InitialiseConsumer("missing", ""); !errors.Is(err, core.ErrConsumerNotFound) {
		t.Fatalf("expected ErrConsumerNotFound, got %v", err)
	}
}

func TestStartConsumerRequiresInitialisation(t *testing.T) {
	r, _ := newTestRegistry()
	if err := r.LoadConsumer("fake", "a"); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	c := &ingress.Consumer{Name: "a", Ports: []uint16{4660}, Ring: newRing()}
	if err := r.StartConsumer("a", c); !errors.Is(err, core.ErrConsumerNotInitialised) {
		t.Fatalf("expected ErrConsumerNotInitialised, got %v", err)
	}
}

func TestStartStopRoundTrip(t *testing.T) {
	r, fc := newTestRegistry()
	if err := r.LoadConsumer("fake", "a"); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := r.InitialiseConsumer("a", ""); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	c := &ingress.Consumer{Name: "a", Ports: []uint16{4660}, Ring: newRing()}
	if err := r.StartConsumer("a", c); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := r.StopConsumer("a"); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if !fc.streamEnded || !fc.cleanedUp {
		t.Fatalf("expected OnStreamEnd and Cleanup to be called")
	}
	if _, ok := r.Get("a"); ok {
		t.Fatalf("expected consumer to be removed after stop")
	}
}

func newRing() *ring.SpscRing {
	return ring.NewSpscRing(ring.Config{CellSize: 1500, NofCells: 8})
}
