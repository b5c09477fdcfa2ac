package view

import (
	"errors"
	"testing"

	"github.com/StoreStation/vibeshitcraft-core/pkg/cache"
	"github.com/StoreStation/vibeshitcraft-core/pkg/protocol"
	"github.com/StoreStation/vibeshitcraft-core/pkg/world"
)

type recordingSender struct {
	centers  []world.ChunkPos
	loaded   []world.ChunkPos
	unloaded []world.ChunkPos
	failed   []world.ChunkPos
}

func (s *recordingSender) UpdateViewPosition(center world.ChunkPos) error {
	s.centers = append(s.centers, center)
	return nil
}

func (s *recordingSender) SendChunk(chunk *world.Chunk) error {
	s.loaded = append(s.loaded, chunk.Pos)
	return nil
}

func (s *recordingSender) UnloadChunk(pos world.ChunkPos) error {
	s.unloaded = append(s.unloaded, pos)
	return nil
}

func (s *recordingSender) GenerationFailed(pos world.ChunkPos, err error) {
	s.failed = append(s.failed, pos)
}

func testCache(t *testing.T) *cache.Cache {
	t.Helper()
	reg := protocol.DefaultBlockRegistry()
	c := cache.New(cache.Config{
		MaxBytes: 1 << 30,
		Loader: func(pos world.ChunkPos) (*world.Chunk, error) {
			return world.NewChunk(pos, world.Overworld, reg), nil
		},
	})
	t.Cleanup(c.Close)
	return c
}

func TestRingSizeMatchesSquareAnnulus(t *testing.T) {
	for d := int32(0); d <= 5; d++ {
		got := len(ring(d))
		want := 1
		if d > 0 {
			want = 8 * int(d)
		}
		if got != want {
			t.Errorf("ring(%d) has %d entries, want %d", d, got, want)
		}
	}
}

func TestSpiralOffsetsSortedByChebyshevDistance(t *testing.T) {
	offsets := spiralOffsets(4)
	prevDist := int32(-1)
	for _, o := range offsets {
		d := world.ChunkPos{X: o.dx, Z: o.dz}.ChebyshevDistance(world.ChunkPos{})
		if d < prevDist {
			t.Fatalf("offset (%d,%d) at distance %d appears after distance %d", o.dx, o.dz, d, prevDist)
		}
		prevDist = d
	}
}

func TestMoveNoopWithinSameChunk(t *testing.T) {
	w := New(testCache(t), 2, nil)
	sender := &recordingSender{}

	if err := w.Move(0, 0, sender); err != nil {
		t.Fatalf("Move: %v", err)
	}
	firstLoadCount := len(sender.loaded)
	if err := w.Move(5, 5, sender); err != nil { // still chunk (0,0)
		t.Fatalf("Move: %v", err)
	}
	if len(sender.loaded) != firstLoadCount {
		t.Errorf("second Move within same chunk loaded %d more chunks, want 0 more", len(sender.loaded)-firstLoadCount)
	}
	if len(sender.centers) != 1 {
		t.Errorf("UpdateViewPosition sent %d times, want 1", len(sender.centers))
	}
}

func TestMoveLoadsExpectedChunkCount(t *testing.T) {
	w := New(testCache(t), 3, nil)
	sender := &recordingSender{}

	if err := w.Move(0, 0, sender); err != nil {
		t.Fatalf("Move: %v", err)
	}
	want := 7 * 7 // (2*3+1)^2
	if len(sender.loaded) != want {
		t.Errorf("loaded %d chunks, want %d", len(sender.loaded), want)
	}
	if len(sender.unloaded) != 0 {
		t.Errorf("expected no unloads on first Move, got %d", len(sender.unloaded))
	}
}

func TestMoveShiftsWindowByOneColumn(t *testing.T) {
	w := New(testCache(t), 3, nil)
	sender := &recordingSender{}
	if err := w.Move(0, 0, sender); err != nil {
		t.Fatalf("Move: %v", err)
	}

	sender2 := &recordingSender{}
	if err := w.Move(16, 0, sender2); err != nil { // shift center by +1 chunk in x
		t.Fatalf("Move: %v", err)
	}
	if len(sender2.unloaded) != 7 {
		t.Errorf("unloaded %d chunks after 1-chunk shift, want 7", len(sender2.unloaded))
	}
	if len(sender2.loaded) != 7 {
		t.Errorf("loaded %d chunks after 1-chunk shift, want 7", len(sender2.loaded))
	}
}

func TestMoveDropsGenerationFailureFromDesired(t *testing.T) {
	reg := protocol.DefaultBlockRegistry()
	failPos := world.ChunkPos{X: 1, Z: 0}
	c := cache.New(cache.Config{
		MaxBytes: 1 << 30,
		Loader: func(pos world.ChunkPos) (*world.Chunk, error) {
			if pos == failPos {
				return nil, errors.New("generation failed")
			}
			return world.NewChunk(pos, world.Overworld, reg), nil
		},
	})
	t.Cleanup(c.Close)

	w := New(c, 1, nil)
	sender := &recordingSender{}

	if err := w.Move(0, 0, sender); err != nil {
		t.Fatalf("Move: %v", err)
	}
	for _, pos := range sender.loaded {
		if pos == failPos {
			t.Fatalf("failed chunk %s should not appear in loaded set", failPos)
		}
	}
	if _, ok := w.loaded[failPos]; ok {
		t.Fatalf("failed chunk %s should not be recorded as loaded", failPos)
	}
	if len(sender.failed) != 1 || sender.failed[0] != failPos {
		t.Fatalf("GenerationFailed events = %v, want exactly [%s]", sender.failed, failPos)
	}
}

func TestCloseUnpinsAllLoaded(t *testing.T) {
	c := testCache(t)
	w := New(c, 1, nil)
	sender := &recordingSender{}
	if err := w.Move(0, 0, sender); err != nil {
		t.Fatalf("Move: %v", err)
	}
	w.Close()
	if len(w.loaded) != 0 {
		t.Errorf("Close left %d chunks in the loaded set", len(w.loaded))
	}
}
