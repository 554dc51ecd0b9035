package reassembly

import "testing"

func TestRolloverTrackerNoWrap(t *testing.T) {
	tr := NewRolloverTracker(CounterWidth24)
	for i := uint64(1); i < 10; i++ {
		if got := tr.Reconstruct(i, true); got != i {
			t.Fatalf("Reconstruct(%d) = %d, want %d", i, got, i)
		}
	}
	if tr.Rollovers() != 0 {
		t.Fatalf("expected no rollovers, got %d", tr.Rollovers())
	}
}

func TestRolloverTrackerWrapOnPivot(t *testing.T) {
	tr := NewRolloverTracker(CounterWidth24)
	tr.Reconstruct(1<<24-2, true)
	tr.Reconstruct(1<<24-1, true)

	got := tr.Reconstruct(0, true)
	want := uint64(1) << 24
	if got != want {
		t.Fatalf("Reconstruct(0) after wrap = %d, want %d", got, want)
	}
	if tr.Rollovers() != 1 {
		t.Fatalf("expected 1 rollover, got %d", tr.Rollovers())
	}

	got = tr.Reconstruct(1, true)
	if got != want+1 {
		t.Fatalf("Reconstruct(1) after wrap = %d, want %d", got, want+1)
	}
}

func TestRolloverTrackerNonPivotZeroFoldsIntoNextEpoch(t *testing.T) {
	tr := NewRolloverTracker(CounterWidth24)
	tr.Reconstruct(5, true)

	got := tr.Reconstruct(0, false)
	want := uint64(1) << 24
	if got != want {
		t.Fatalf("expected non-pivot zero to fold into the unconfirmed next epoch, got %d, want %d", got, want)
	}
	if tr.Rollovers() != 0 {
		t.Fatalf("expected no confirmed rollover from a non-pivot zero, got %d", tr.Rollovers())
	}
}

func TestRolloverTrackerNonPivotZeroBeforeAnyNonZeroStaysCurrentEpoch(t *testing.T) {
	tr := NewRolloverTracker(CounterWidth24)

	got := tr.Reconstruct(0, false)
	if got != 0 {
		t.Fatalf("expected leading non-pivot zero to stay in the initial epoch, got %d", got)
	}
	if tr.Rollovers() != 0 {
		t.Fatalf("expected no rollover, got %d", tr.Rollovers())
	}
}

func TestTileMapAssignsInsertionOrder(t *testing.T) {
	m := NewTileMap()
	if row, ok := m.RowFor(7, 4); !ok || row != 0 {
		t.Fatalf("expected first tile at row 0, got %d (ok=%v)", row, ok)
	}
	if row, ok := m.RowFor(3, 4); !ok || row != 1 {
		t.Fatalf("expected second tile at row 1, got %d (ok=%v)", row, ok)
	}
	if row, ok := m.RowFor(7, 4); !ok || row != 0 {
		t.Fatalf("expected repeat lookup to keep row 0, got %d (ok=%v)", row, ok)
	}
	if m.Len() != 2 {
		t.Fatalf("expected 2 tiles, got %d", m.Len())
	}

	m.Clear()
	if m.Len() != 0 {
		t.Fatalf("expected empty map after Clear, got %d", m.Len())
	}
	if row, ok := m.RowFor(3, 4); !ok || row != 0 {
		t.Fatalf("expected fresh row assignment after Clear, got %d (ok=%v)", row, ok)
	}
}

func TestTileMapCapsAtNofTiles(t *testing.T) {
	m := NewTileMap()
	if _, ok := m.RowFor(1, 2); !ok {
		t.Fatal("expected first tile to be assigned a row")
	}
	if _, ok := m.RowFor(2, 2); !ok {
		t.Fatal("expected second tile to be assigned a row")
	}
	if _, ok := m.RowFor(3, 2); ok {
		t.Fatal("expected a third distinct tile to be rejected once capped at 2")
	}
	if row, ok := m.RowFor(1, 2); !ok || row != 0 {
		t.Fatalf("expected repeat lookup of an already-mapped tile to still succeed, got %d (ok=%v)", row, ok)
	}
}
