package reassembly

import (
	"testing"
	"time"

	"github.com/skalabs/stationdaq/internal/spead"
)

func TestCorrelatorReassemblerScattersByTileChannelAntenna(t *testing.T) {
	cfg := CorrelatorConfig{
		NofAntennas:     2,
		NofChannels:     2,
		NofFineChannels: 1,
		NofTiles:        1,
		NofPols:         1,
	}
	r := NewCorrelatorReassembler(cfg, nil)

	var got []byte
	r.SetCallback(func(data []byte, ts time.Time, m Metadata) { got = data })

	view := buildSpeadPacket(t, 1, []byte{0x7A})
	pkt := Packet{View: view, Payload: []byte{0x7A}, Timestamp: time.Now()}
	// channel 1, antenna 0
	if err := r.Process(pkt, 0, 1, 0); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	r.Flush()

	// offset = tile_row(0)*chan*fine*ant*pol + channel(1)*fine(1)*ant(2)*pol(1) + antenna(0)*pol(1) = 2
	if got == nil || got[2] != 0x7A {
		t.Fatalf("expected byte at channel-1 offset, got %v", got)
	}
}

func TestCorrelatorReassemblerAcceptsChannelIntegratedMode(t *testing.T) {
	r := NewCorrelatorReassembler(CorrelatorConfig{NofTiles: 1, NofChannels: 1, NofFineChannels: 1, NofAntennas: 1, NofPols: 1}, nil)
	if !r.Accept(spead.CaptureModeChannelIntegrated) {
		t.Fatal("expected correlator to accept channel_integrated mode")
	}
	if r.Accept(spead.CaptureModeRawBurst) {
		t.Fatal("expected correlator to reject raw_burst mode")
	}
}
