package reassembly

import (
	"testing"
	"time"
)

// These tests cover the per-tile persistence families with nof_tiles > 1:
// each tile that reported data in a cycle must reach the consumer callback
// as its own invocation, carrying its own reference timestamp and tile ID,
// and a tile that never reported must not produce a spurious call.

func TestRawReassemblerPersistsOncePerTile(t *testing.T) {
	cfg := RawConfig{
		NofAntennas:      1,
		SamplesPerBuffer: 4,
		NofTiles:         2,
		NofPols:          1,
		SamplesPerPacket: 4,
	}
	r := NewRawReassembler(cfg, nil)

	type call struct {
		data []byte
		ts   time.Time
		meta Metadata
	}
	var calls []call
	r.SetCallback(func(data []byte, ts time.Time, m Metadata) {
		calls = append(calls, call{data: data, ts: ts, meta: m})
	})

	t0 := time.Unix(1000, 0)
	t1 := t0.Add(time.Microsecond)

	p0 := Packet{View: buildSpeadPacket(t, 0, []byte{1, 2, 3, 4}), Payload: []byte{1, 2, 3, 4}, Timestamp: t0}
	if err := r.Process(p0, 0, 0, 0); err != nil {
		t.Fatalf("Process tile 0 failed: %v", err)
	}
	p1 := Packet{View: buildSpeadPacket(t, 0, []byte{5, 6, 7, 8}), Payload: []byte{5, 6, 7, 8}, Timestamp: t1}
	if err := r.Process(p1, 1, 0, 0); err != nil {
		t.Fatalf("Process tile 1 failed: %v", err)
	}

	r.Flush()

	if len(calls) != 2 {
		t.Fatalf("expected 2 per-tile callback invocations, got %d", len(calls))
	}
	byTile := map[uint32]call{}
	for _, c := range calls {
		byTile[c.meta.TileOrChannelID] = c
	}
	if c, ok := byTile[0]; !ok || !c.ts.Equal(t0) || c.data[0] != 1 {
		t.Fatalf("tile 0 call missing or wrong: %+v", c)
	}
	if c, ok := byTile[1]; !ok || !c.ts.Equal(t1) || c.data[0] != 5 {
		t.Fatalf("tile 1 call missing or wrong: %+v", c)
	}
}

func TestRawReassemblerSkipsTileWithNoData(t *testing.T) {
	cfg := RawConfig{
		NofAntennas:      1,
		SamplesPerBuffer: 4,
		NofTiles:         2,
		NofPols:          1,
		SamplesPerPacket: 4,
	}
	r := NewRawReassembler(cfg, nil)

	var calls int
	r.SetCallback(func(data []byte, ts time.Time, m Metadata) { calls++ })

	p0 := Packet{View: buildSpeadPacket(t, 0, []byte{1, 2, 3, 4}), Payload: []byte{1, 2, 3, 4}, Timestamp: time.Unix(1000, 0)}
	if err := r.Process(p0, 0, 0, 0); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	r.Flush()

	if calls != 1 {
		t.Fatalf("expected exactly 1 callback for the single reporting tile, got %d", calls)
	}
}

func TestChannelBurstReassemblerPersistsOncePerTile(t *testing.T) {
	cfg := ChannelConfig{
		NofTiles:         2,
		NofChannels:      1,
		NofSamples:       1,
		NofAntennas:      1,
		NofPols:          1,
		SamplesPerPacket: 1,
	}
	r := NewChannelBurstReassembler(cfg, nil)

	type call struct {
		data []byte
		ts   time.Time
		meta Metadata
	}
	var calls []call
	r.SetCallback(func(data []byte, ts time.Time, m Metadata) {
		calls = append(calls, call{data: data, ts: ts, meta: m})
	})

	t0 := time.Unix(2000, 0)
	t1 := t0.Add(time.Microsecond)

	p0 := Packet{View: buildSpeadPacket(t, 1, []byte{0xAA}), Payload: []byte{0xAA}, Timestamp: t0}
	if err := r.Process(p0, 0, 0, 0, 0); err != nil {
		t.Fatalf("Process tile 0 failed: %v", err)
	}
	p1 := Packet{View: buildSpeadPacket(t, 1, []byte{0xBB}), Payload: []byte{0xBB}, Timestamp: t1}
	if err := r.Process(p1, 1, 0, 0, 0); err != nil {
		t.Fatalf("Process tile 1 failed: %v", err)
	}

	r.Flush()

	if len(calls) != 2 {
		t.Fatalf("expected 2 per-tile callback invocations, got %d", len(calls))
	}
	byTile := map[uint32]call{}
	for _, c := range calls {
		byTile[c.meta.TileOrChannelID] = c
	}
	if c, ok := byTile[0]; !ok || c.data[0] != 0xAA || !c.ts.Equal(t0) {
		t.Fatalf("tile 0 call missing or wrong: %+v", c)
	}
	if c, ok := byTile[1]; !ok || c.data[0] != 0xBB || !c.ts.Equal(t1) {
		t.Fatalf("tile 1 call missing or wrong: %+v", c)
	}
}

func TestChannelIntegratedReassemblerPersistsOncePerTile(t *testing.T) {
	cfg := ChannelConfig{
		NofTiles:    2,
		NofChannels: 1,
		NofAntennas: 1,
		NofPols:     1,
	}
	r := NewChannelIntegratedReassembler(cfg, nil)

	type call struct {
		ts   time.Time
		meta Metadata
	}
	var calls []call
	r.SetCallback(func(data []byte, ts time.Time, m Metadata) {
		calls = append(calls, call{ts: ts, meta: m})
	})

	t0 := time.Unix(3000, 0)
	t1 := t0.Add(time.Microsecond)

	p0 := Packet{View: buildSpeadPacket(t, 1, []byte{0xAA}), Payload: []byte{0xAA}, Timestamp: t0}
	if err := r.Process(p0, 0, 0, 0); err != nil {
		t.Fatalf("Process tile 0 failed: %v", err)
	}
	p1 := Packet{View: buildSpeadPacket(t, 1, []byte{0xBB}), Payload: []byte{0xBB}, Timestamp: t1}
	if err := r.Process(p1, 1, 0, 0); err != nil {
		t.Fatalf("Process tile 1 failed: %v", err)
	}

	if len(calls) != 2 {
		t.Fatalf("expected the second tile to complete the cycle and persist both, got %d calls", len(calls))
	}
	byTile := map[uint32]time.Time{}
	for _, c := range calls {
		byTile[c.meta.TileOrChannelID] = c.ts
	}
	if !byTile[0].Equal(t0) {
		t.Fatalf("tile 0 timestamp wrong: got %v want %v", byTile[0], t0)
	}
	if !byTile[1].Equal(t1) {
		t.Fatalf("tile 1 timestamp wrong: got %v want %v", byTile[1], t1)
	}
}

func TestChannelContinuousReassemblerPersistsOncePerTile(t *testing.T) {
	cfg := ChannelConfig{
		NofTiles:         2,
		NofChannels:      1,
		NofSamples:       4,
		NofAntennas:      1,
		NofPols:          1,
		SamplesPerPacket: 1,
		NofBufferSkips:   0,
	}
	r := NewChannelContinuousReassembler(cfg, nil)

	type call struct {
		ts   time.Time
		meta Metadata
	}
	var calls []call
	r.SetCallback(func(data []byte, ts time.Time, m Metadata) {
		calls = append(calls, call{ts: ts, meta: m})
	})

	t0 := time.Unix(4000, 0)
	t1 := t0.Add(time.Microsecond)
	near := t0.Add(2 * time.Microsecond)

	// First packet sets the container's reference time.
	p := Packet{View: buildSpeadPacket(t, 1, []byte{1}), Payload: []byte{1}, Timestamp: t0}
	if err := r.Process(p, 0, 0, 0, 0, 0); err != nil {
		t.Fatalf("Process p1 failed: %v", err)
	}

	// Three more packets against tile 0's own row, with a non-zero pol
	// ID so none of them satisfy the boundary trigger, to push
	// num_packets past 2*nof_tiles without disturbing tile 0's already
	// recorded reference timestamp.
	for i := 0; i < 3; i++ {
		p := Packet{View: buildSpeadPacket(t, 1, []byte{1}), Payload: []byte{1}, Timestamp: near}
		if err := r.Process(p, 0, 0, 0, 1, 1); err != nil {
			t.Fatalf("Process filler %d failed: %v", i, err)
		}
	}
	// Fifth packet: tile 1's first packet this cycle, landing its own
	// reference timestamp distinct from tile 0's.
	p = Packet{View: buildSpeadPacket(t, 1, []byte{2}), Payload: []byte{2}, Timestamp: t1}
	if err := r.Process(p, 1, 0, 0, 0, 1); err != nil {
		t.Fatalf("Process p5 failed: %v", err)
	}

	// Sixth packet crosses the boundary: tileID 0, polID 0, packetIndex
	// 0, at a time past reference_time + buffer_span, with num_packets
	// (5) already above 2*nof_tiles (4).
	past := t0.Add(10 * time.Microsecond)
	p = Packet{View: buildSpeadPacket(t, 1, []byte{3}), Payload: []byte{3}, Timestamp: past}
	if err := r.Process(p, 0, 0, 0, 0, 0); err != nil {
		t.Fatalf("Process boundary packet failed: %v", err)
	}

	if len(calls) != 2 {
		t.Fatalf("expected 2 per-tile callback invocations on boundary crossing, got %d", len(calls))
	}
	byTile := map[uint32]time.Time{}
	for _, c := range calls {
		byTile[c.meta.TileOrChannelID] = c.ts
	}
	if !byTile[0].Equal(t0) {
		t.Fatalf("tile 0 reference timestamp wrong: got %v want %v", byTile[0], t0)
	}
	if !byTile[1].Equal(t1) {
		t.Fatalf("tile 1 reference timestamp wrong: got %v want %v", byTile[1], t1)
	}
}

func TestBeamBurstReassemblerPersistsOncePerTile(t *testing.T) {
	cfg := BeamConfig{
		NofTiles:    2,
		NofChannels: 2,
		NofSamples:  1,
		NofPols:     1,
	}
	r := NewBeamBurstReassembler(cfg, nil)

	type call struct {
		data []byte
		ts   time.Time
		meta Metadata
	}
	var calls []call
	r.SetCallback(func(data []byte, ts time.Time, m Metadata) {
		calls = append(calls, call{data: data, ts: ts, meta: m})
	})

	t0 := time.Unix(5000, 0)
	t1 := t0.Add(time.Microsecond)

	p0 := Packet{View: buildSpeadPacket(t, 1, []byte{0xAA, 0xBB}), Payload: []byte{0xAA, 0xBB}, Timestamp: t0}
	if err := r.Process(p0, 0, 0, 0); err != nil {
		t.Fatalf("Process tile 0 failed: %v", err)
	}
	p1 := Packet{View: buildSpeadPacket(t, 1, []byte{0xCC, 0xDD}), Payload: []byte{0xCC, 0xDD}, Timestamp: t1}
	if err := r.Process(p1, 1, 0, 0); err != nil {
		t.Fatalf("Process tile 1 failed: %v", err)
	}

	r.Flush()

	if len(calls) != 2 {
		t.Fatalf("expected 2 per-tile callback invocations, got %d", len(calls))
	}
	byTile := map[uint32]call{}
	for _, c := range calls {
		byTile[c.meta.TileOrChannelID] = c
	}
	if c, ok := byTile[0]; !ok || c.data[0] != 0xAA || !c.ts.Equal(t0) {
		t.Fatalf("tile 0 call missing or wrong: %+v", c)
	}
	if c, ok := byTile[1]; !ok || c.data[0] != 0xCC || !c.ts.Equal(t1) {
		t.Fatalf("tile 1 call missing or wrong: %+v", c)
	}
}

func TestBeamIntegratedReassemblerPersistsOncePerTile(t *testing.T) {
	cfg := BeamConfig{
		NofTiles:    2,
		NofChannels: 1,
		NofPols:     1,
		NofBeams:    1,
	}
	r := NewBeamIntegratedReassembler(cfg, nil)

	type call struct {
		ts   time.Time
		meta Metadata
	}
	var calls []call
	r.SetCallback(func(data []byte, ts time.Time, m Metadata) {
		calls = append(calls, call{ts: ts, meta: m})
	})

	t0 := time.Unix(6000, 0)
	t1 := t0.Add(time.Microsecond)

	p0 := Packet{View: buildSpeadPacket(t, 1, []byte{0xAA}), Payload: []byte{0xAA}, Timestamp: t0}
	if err := r.Process(p0, 0, 0, 0, 0); err != nil {
		t.Fatalf("Process tile 0 failed: %v", err)
	}
	p1 := Packet{View: buildSpeadPacket(t, 1, []byte{0xBB}), Payload: []byte{0xBB}, Timestamp: t1}
	if err := r.Process(p1, 1, 0, 0, 0); err != nil {
		t.Fatalf("Process tile 1 failed: %v", err)
	}

	if len(calls) != 2 {
		t.Fatalf("expected the second tile to complete the cycle and persist both, got %d calls", len(calls))
	}
	byTile := map[uint32]time.Time{}
	for _, c := range calls {
		byTile[c.meta.TileOrChannelID] = c.ts
	}
	if !byTile[0].Equal(t0) {
		t.Fatalf("tile 0 timestamp wrong: got %v want %v", byTile[0], t0)
	}
	if !byTile[1].Equal(t1) {
		t.Fatalf("tile 1 timestamp wrong: got %v want %v", byTile[1], t1)
	}
}

func TestAntennaBufferReassemblerPersistsOncePerTile(t *testing.T) {
	cfg := AntennaBufferConfig{NofAntennas: 1, NofSamples: 8, NofTiles: 2}
	r := NewAntennaBufferReassembler(cfg, nil)

	type call struct {
		ts   time.Time
		meta Metadata
	}
	var calls []call
	r.SetCallback(func(data []byte, ts time.Time, m Metadata) {
		calls = append(calls, call{ts: ts, meta: m})
	})

	discover := antennaBufferPacket(t)
	for tile := uint16(0); tile < 2; tile++ {
		for fpga := uint8(0); fpga < 2; fpga++ {
			if err := r.Process(discover, tile, fpga, 0, 0, 0); err != nil {
				t.Fatalf("Process discovery (tile %d fpga %d) failed: %v", tile, fpga, err)
			}
		}
	}
	if r.discovering {
		t.Fatal("expected discovery to end once all FPGAs reported")
	}

	t0 := time.Unix(7000, 0)
	t1 := t0.Add(time.Microsecond)

	p0 := Packet{View: buildSpeadPacket(t, 1, []byte{0xAB}), Payload: []byte{0xAB}, Timestamp: t0}
	if err := r.Process(p0, 0, 0, 0, 0, 0); err != nil {
		t.Fatalf("Process tile 0 failed: %v", err)
	}
	p1 := Packet{View: buildSpeadPacket(t, 1, []byte{0xAB}), Payload: []byte{0xAB}, Timestamp: t1}
	if err := r.Process(p1, 1, 0, 0, 0, 0); err != nil {
		t.Fatalf("Process tile 1 failed: %v", err)
	}

	// Cross into the next logical buffer to force a persist.
	cross := Packet{View: buildSpeadPacket(t, 1, []byte{0xAB}), Payload: []byte{0xAB}, Timestamp: t1}
	if err := r.Process(cross, 0, 0, 0, 8, 0); err != nil {
		t.Fatalf("Process crossing packet failed: %v", err)
	}

	if len(calls) != 2 {
		t.Fatalf("expected 2 per-tile callback invocations on buffer crossing, got %d", len(calls))
	}
	byTile := map[uint32]time.Time{}
	for _, c := range calls {
		byTile[c.meta.TileOrChannelID] = c.ts
	}
	if !byTile[0].Equal(t0) {
		t.Fatalf("tile 0 timestamp wrong: got %v want %v", byTile[0], t0)
	}
	if !byTile[1].Equal(t1) {
		t.Fatalf("tile 1 timestamp wrong: got %v want %v", byTile[1], t1)
	}
}
