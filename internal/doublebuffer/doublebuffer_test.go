package doublebuffer

import (
	"testing"
	"time"
)

func TestWriteReadReleaseRoundTrip(t *testing.T) {
	db := New(4, nil)

	db.WriteData(0, 16, 3, 0, []byte("payload"), time.Now())
	db.FinishWrite()

	buf, ok := db.ReadBuffer()
	if !ok {
		t.Fatal("expected a ready buffer")
	}
	if buf.ChannelID != 3 {
		t.Errorf("expected channel 3, got %d", buf.ChannelID)
	}
	if string(buf.Data) != "payload" {
		t.Errorf("expected payload data, got %q", buf.Data)
	}

	db.ReleaseBuffer()
	if _, ok := db.ReadBuffer(); ok {
		t.Fatal("expected no ready buffer after release")
	}
}

func TestReadBufferEmptyReturnsFalse(t *testing.T) {
	db := New(4, nil)
	if _, ok := db.ReadBuffer(); ok {
		t.Fatal("expected false on empty double buffer")
	}
}

func TestFinishWriteOvertakesUnreadSlot(t *testing.T) {
	db := New(2, nil)

	for i := 0; i < 3; i++ {
		db.WriteData(0, 1, uint32(i), 0, []byte{byte(i)}, time.Now())
		db.FinishWrite()
	}

	// With only 2 slots and 3 writes without a reader draining, the
	// producer must have overtaken the oldest ready slot rather than
	// blocking forever.
	buf, ok := db.ReadBuffer()
	if !ok {
		t.Fatal("expected a ready buffer to remain readable")
	}
	_ = buf
}

func TestReadBufferWaitUnblocksOnStop(t *testing.T) {
	db := New(4, nil)
	stop := make(chan struct{})
	close(stop)

	if _, ok := db.ReadBufferWait(stop); ok {
		t.Fatal("expected ReadBufferWait to return false once stop is closed")
	}
}
