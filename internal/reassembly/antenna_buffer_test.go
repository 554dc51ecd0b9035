package reassembly

import (
	"testing"
	"time"

	"github.com/skalabs/stationdaq/internal/spead"
)

func antennaBufferPacket(t *testing.T) Packet {
	t.Helper()
	view := buildSpeadPacket(t, 1, []byte{0xAB})
	return Packet{View: view, Payload: []byte{0xAB}, Timestamp: time.Now()}
}

func TestAntennaBufferReassemblerAdvancesOncePerLogicalBuffer(t *testing.T) {
	cfg := AntennaBufferConfig{NofAntennas: 1, NofSamples: 8, NofTiles: 1}
	r := NewAntennaBufferReassembler(cfg, nil)

	var persisted []Metadata
	r.SetCallback(func(data []byte, ts time.Time, m Metadata) {
		persisted = append(persisted, m)
	})

	pkt := antennaBufferPacket(t)

	// Discovery: two FPGAs of the single tile must both report before
	// scattering begins.
	if err := r.Process(pkt, 0, 0, 0, 0, 0); err != nil {
		t.Fatalf("Process (discovery fpga0) failed: %v", err)
	}
	if !r.discovering {
		t.Fatal("expected reassembler to still be discovering after only one FPGA reported")
	}
	if err := r.Process(pkt, 0, 1, 0, 0, 0); err != nil {
		t.Fatalf("Process (discovery fpga1) failed: %v", err)
	}
	if r.discovering {
		t.Fatal("expected discovery to end once both FPGAs of the tile reported")
	}

	// Same logical buffer (bufferIndex 0): sample 4, still within the
	// first 8-sample buffer. No advance expected.
	if err := r.Process(pkt, 0, 0, 0, 4, 0); err != nil {
		t.Fatalf("Process (same buffer) failed: %v", err)
	}
	if len(persisted) != 0 {
		t.Fatalf("expected no buffer persisted yet, got %d", len(persisted))
	}

	// Crosses into the second logical buffer (bufferIndex 1): must
	// advance exactly once.
	if err := r.Process(pkt, 0, 0, 0, 8, 0); err != nil {
		t.Fatalf("Process (crossing to buffer 1) failed: %v", err)
	}
	if len(persisted) != 1 {
		t.Fatalf("expected exactly one buffer persisted after crossing into buffer 1, got %d", len(persisted))
	}

	// Stays within buffer 1 for several more packets: no further advance
	// past a logical buffer index beyond the ring's own slot count.
	for _, sample := range []uint64{9, 10, 11, 12, 13, 14, 15} {
		if err := r.Process(pkt, 0, 0, 0, sample, 0); err != nil {
			t.Fatalf("Process (sample %d) failed: %v", sample, err)
		}
	}
	if len(persisted) != 1 {
		t.Fatalf("expected buffer 1 to stay open across further packets, got %d persisted", len(persisted))
	}

	// Crossing into buffer 5, well past the 4-slot container ring, must
	// still be detected as a distinct boundary from buffer 1.
	if err := r.Process(pkt, 0, 0, 0, 40, 0); err != nil {
		t.Fatalf("Process (crossing to buffer 5) failed: %v", err)
	}
	if len(persisted) != 2 {
		t.Fatalf("expected a second buffer to persist past the fourth logical buffer, got %d", len(persisted))
	}
}

func TestAntennaBufferReassemblerAcceptsOnlyAntennaBufferMode(t *testing.T) {
	r := NewAntennaBufferReassembler(AntennaBufferConfig{NofAntennas: 1, NofSamples: 8, NofTiles: 1}, nil)
	if !r.Accept(spead.CaptureModeAntennaBuffer) {
		t.Fatal("expected antenna-buffer reassembler to accept antenna_buffer mode")
	}
	if r.Accept(spead.CaptureModeRawBurst) {
		t.Fatal("expected antenna-buffer reassembler to reject raw_burst mode")
	}
}
