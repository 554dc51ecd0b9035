// Package ingress implements the zero-copy, kernel-bypass packet
// receiver: one or more AF_PACKET workers pinned to distinct CPUs,
// filtering by destination IP/port and fanning matching packets out to
// registered per-stream SPSC rings.
package ingress

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"

	"github.com/skalabs/stationdaq/internal/core"
	"github.com/skalabs/stationdaq/internal/core/decoder"
	"github.com/skalabs/stationdaq/internal/ring"
)

// realtimePriority is the SCHED_FIFO priority requested for capture
// workers. Low enough to leave headroom above it for anything the
// kernel itself needs to preempt into.
const realtimePriority = 50

const (
	defaultFrameSize      = 65535
	defaultFramesPerBlock = 128
	defaultNofBlocks      = 64
	pollTimeout           = 100 * time.Millisecond
	fanoutID              = 42

	maxConsumers = 6
	maxPorts     = 16
)

// Config describes one ingress instance's capture geometry.
type Config struct {
	Interface      string
	IP             string
	FrameSize      int
	FramesPerBlock int
	NofBlocks      int
	NofThreads     int
	Promiscuous    bool
}

func (c *Config) applyDefaults() {
	if c.FrameSize == 0 {
		c.FrameSize = defaultFrameSize
	}
	if c.FramesPerBlock == 0 {
		c.FramesPerBlock = defaultFramesPerBlock
	}
	if c.NofBlocks == 0 {
		c.NofBlocks = defaultNofBlocks
	}
	if c.NofThreads == 0 {
		c.NofThreads = 1
	}
}

// Consumer is what PacketIngress dispatches matched packets to: a
// destination-port allowlist plus the ring it hands raw payloads to.
type Consumer struct {
	Name  string
	Ports []uint16
	Ring  *ring.SpscRing
}

func (c *Consumer) matches(port uint16) bool {
	for _, p := range c.Ports {
		if p == port {
			return true
		}
	}
	return false
}

// WorkerStats are the per-worker diagnostic counters surfaced at 5 s
// cadence via the optional diagnostic callback.
type WorkerStats struct {
	Received   uint64
	Decoded    uint64
	Filtered   uint64
	Dispatched uint64
	Dropped    uint64
}

// PacketIngress is the process-wide packet receiver. A process hosts
// at most one active instance (enforced by the registry, not here).
type PacketIngress struct {
	cfg    Config
	log    *slog.Logger
	dec    decoder.Decoder

	mu        sync.Mutex
	consumers map[string]*Consumer
	ports     map[uint16]struct{}
	portsSnap atomic.Pointer[map[uint16]struct{}]

	started atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	stats []atomicWorkerStats
}

type atomicWorkerStats struct {
	received   atomic.Uint64
	decoded    atomic.Uint64
	filtered   atomic.Uint64
	dispatched atomic.Uint64
	dropped    atomic.Uint64
}

// New constructs an unstarted PacketIngress.
func New(cfg Config, log *slog.Logger) *PacketIngress {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &PacketIngress{
		cfg:       cfg,
		log:       log,
		dec:       decoder.NewUDPDecoder(),
		consumers: make(map[string]*Consumer),
		ports:     make(map[uint16]struct{}),
	}
}

// AddPort registers a destination port the ingress should accept.
// start_receiver is idempotent with respect to port addition: adding
// an already-registered port is a no-op.
func (p *PacketIngress) AddPort(port uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.ports[port]; ok {
		return nil
	}
	if len(p.ports) >= maxPorts {
		return core.ErrTooManyPorts
	}
	p.ports[port] = struct{}{}
	p.publishPortsSnapshot()
	return nil
}

// publishPortsSnapshot must be called with mu held; it republishes an
// immutable copy of the port set for lock-free reads on the capture
// hot path.
func (p *PacketIngress) publishPortsSnapshot() {
	snap := make(map[uint16]struct{}, len(p.ports))
	for port := range p.ports {
		snap[port] = struct{}{}
	}
	p.portsSnap.Store(&snap)
}

// RegisterConsumer attaches a consumer's ring to the ingress dispatch
// table. Packets matching one of the consumer's ports are copied into
// its ring.
func (p *PacketIngress) RegisterConsumer(c *Consumer) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.consumers[c.Name]; exists {
		return core.ErrConsumerExists
	}
	if len(p.consumers) >= maxConsumers {
		return core.ErrTooManyConsumers
	}
	p.consumers[c.Name] = c
	return nil
}

// UnregisterConsumer removes a consumer from the dispatch table.
func (p *PacketIngress) UnregisterConsumer(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.consumers, name)
}

func (p *PacketIngress) snapshotConsumers() []*Consumer {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Consumer, 0, len(p.consumers))
	for _, c := range p.consumers {
		out = append(out, c)
	}
	return out
}

// Start spins up nof_threads capture workers, each bound to the same
// interface via socket fanout so the kernel load-balances traffic
// across them.
func (p *PacketIngress) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return core.ErrReceiverAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.stats = make([]atomicWorkerStats, p.cfg.NofThreads)

	for i := 0; i < p.cfg.NofThreads; i++ {
		idx := i
		handle, err := p.openHandle()
		if err != nil {
			cancel()
			return fmt.Errorf("ingress: opening worker %d: %w", idx, err)
		}

		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.workerLoop(runCtx, idx, handle)
		}()
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.diagnosticLoop(runCtx)
	}()

	return nil
}

// openHandle creates and configures one AF_PACKET_V3 capture handle.
func (p *PacketIngress) openHandle() (*afpacket.TPacket, error) {
	opts := []any{
		afpacket.OptInterface(p.cfg.Interface),
		afpacket.OptFrameSize(p.cfg.FrameSize),
		afpacket.OptBlockSize(p.cfg.FrameSize * p.cfg.FramesPerBlock),
		afpacket.OptNumBlocks(p.cfg.NofBlocks),
		afpacket.OptPollTimeout(pollTimeout),
		afpacket.OptTPacketVersion(afpacket.TPacketVersion3),
	}

	handle, err := afpacket.NewTPacket(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating TPacket handle: %w", err)
	}

	if err := handle.SetFanout(afpacket.FanoutHash, fanoutID); err != nil {
		handle.Close()
		return nil, fmt.Errorf("setting fanout: %w", err)
	}

	if filter, err := buildBPFFilter(p.cfg.IP, p.portList()); err == nil && filter != "" {
		if err := applyBPFFilter(handle, filter, p.cfg.FrameSize); err != nil {
			p.log.Warn("ingress: failed to apply BPF filter, falling back to userspace filtering", "error", err)
		}
	}

	return handle, nil
}

// pinWorker binds the calling OS thread to CPU idx%NumCPU and requests
// SCHED_FIFO scheduling at realtimePriority, round-robining capture
// workers across distinct CPUs per §4.2. Both are best-effort: a
// container without CAP_SYS_NICE or a cgroup cpuset can't grant either,
// so failures are logged and the worker keeps running unpinned.
func (p *PacketIngress) pinWorker(idx int) {
	cpu := idx % runtime.NumCPU()
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		p.log.Warn("ingress: failed to set worker CPU affinity", "worker", idx, "cpu", cpu, "error", err)
	}

	param := &unix.SchedParam{Priority: realtimePriority}
	if err := unix.SchedSetscheduler(0, unix.SCHED_FIFO, param); err != nil {
		p.log.Warn("ingress: failed to set real-time scheduling class", "worker", idx, "error", err)
	}
}

func (p *PacketIngress) portList() []uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	ports := make([]uint16, 0, len(p.ports))
	for port := range p.ports {
		ports = append(ports, port)
	}
	return ports
}

// applyBPFFilter compiles a pcap-syntax filter and installs it on the
// TPacket handle, mirroring the AF_PACKET capturer's approach.
func applyBPFFilter(handle *afpacket.TPacket, filter string, snapLen int) error {
	insns, err := pcap.CompileBPFFilter(layers.LinkTypeEthernet, snapLen, filter)
	if err != nil {
		return fmt.Errorf("compiling BPF filter %q: %w", filter, err)
	}
	raw := make([]bpf.RawInstruction, len(insns))
	for i, insn := range insns {
		raw[i] = bpf.RawInstruction{Op: insn.Code, Jt: insn.Jt, Jf: insn.Jf, K: insn.K}
	}
	return handle.SetBPF(raw)
}

// workerLoop is the hot path: poll, decode, filter, dispatch. When an
// IP filter is set, the destination-address check formats the address
// as a string for every decoded packet, and the consumer list is
// snapshotted once per packet.
func (p *PacketIngress) workerLoop(ctx context.Context, idx int, handle *afpacket.TPacket) {
	defer handle.Close()
	stats := &p.stats[idx]

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	p.pinWorker(idx)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		data, ci, err := handle.ZeroCopyReadPacketData()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		stats.received.Add(1)

		raw := core.RawPacket{
			Data:           data,
			Timestamp:      ci.Timestamp,
			CaptureLen:     uint32(ci.CaptureLength),
			OrigLen:        uint32(ci.Length),
			InterfaceIndex: ci.InterfaceIndex,
		}

		decoded, err := p.dec.Decode(raw)
		if err != nil {
			stats.dropped.Add(1)
			continue
		}
		stats.decoded.Add(1)

		if p.cfg.IP != "" && ipString(decoded.IP.DstIP) != p.cfg.IP {
			stats.filtered.Add(1)
			continue
		}
		if snap := p.portsSnap.Load(); snap != nil && len(*snap) > 0 {
			if _, ok := (*snap)[decoded.UDP.DstPort]; !ok {
				stats.filtered.Add(1)
				continue
			}
		}

		for _, c := range p.snapshotConsumers() {
			if !c.matches(decoded.UDP.DstPort) {
				continue
			}
			if err := c.Ring.Push(decoded.Payload); err != nil {
				stats.dropped.Add(1)
				continue
			}
			stats.dispatched.Add(1)
		}
	}
}

func ipString(ip [4]byte) string {
	return fmt.Sprintf("%d.%d.%d.%d", ip[0], ip[1], ip[2], ip[3])
}

func buildBPFFilter(ip string, ports []uint16) (string, error) {
	if ip == "" || len(ports) == 0 {
		return "", nil
	}
	filter := fmt.Sprintf("ip dst %s and udp", ip)
	return filter, nil
}

// diagnosticLoop emits per-worker counters every 5 s, per §5.
func (p *PacketIngress) diagnosticLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for i := range p.stats {
				s := &p.stats[i]
				p.log.Info("ingress worker stats",
					"worker", i,
					"received", s.received.Load(),
					"decoded", s.decoded.Load(),
					"filtered", s.filtered.Load(),
					"dispatched", s.dispatched.Load(),
					"dropped", s.dropped.Load(),
				)
			}
		}
	}
}

// Stop signals every worker and blocks until they have all joined.
func (p *PacketIngress) Stop() {
	if !p.started.CompareAndSwap(true, false) {
		return
	}
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// Stats returns a snapshot of each worker's counters.
func (p *PacketIngress) Stats() []WorkerStats {
	out := make([]WorkerStats, len(p.stats))
	for i := range p.stats {
		s := &p.stats[i]
		out[i] = WorkerStats{
			Received:   s.received.Load(),
			Decoded:    s.decoded.Load(),
			Filtered:   s.filtered.Load(),
			Dispatched: s.dispatched.Load(),
			Dropped:    s.dropped.Load(),
		}
	}
	return out
}
