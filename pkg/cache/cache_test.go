package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/StoreStation/vibeshitcraft-core/pkg/protocol"
	"github.com/StoreStation/vibeshitcraft-core/pkg/world"
)

func testLoader(calls *int) Loader {
	return func(pos world.ChunkPos) (*world.Chunk, error) {
		*calls++
		reg := protocol.DefaultBlockRegistry()
		return world.NewChunk(pos, world.Overworld, reg), nil
	}
}

func TestGetOrLoadPopulatesCache(t *testing.T) {
	calls := 0
	c := New(Config{MaxBytes: 1 << 30, ResetInterval: time.Hour, Loader: testLoader(&calls)})
	defer c.Close()

	pos := world.ChunkPos{X: 1, Z: 2}
	chunk, err := c.GetOrLoad(pos)
	if err != nil {
		t.Fatalf("GetOrLoad: %v", err)
	}
	if chunk == nil {
		t.Fatal("expected non-nil chunk")
	}
	if calls != 1 {
		t.Fatalf("loader called %d times, want 1", calls)
	}

	if _, ok := c.Get(pos); !ok {
		t.Fatal("expected chunk to be resident after GetOrLoad")
	}

	if _, err := c.GetOrLoad(pos); err != nil {
		t.Fatalf("GetOrLoad (cached): %v", err)
	}
	if calls != 1 {
		t.Fatalf("loader called %d times after cache hit, want 1", calls)
	}
}

func TestEvictionUnderBudget(t *testing.T) {
	calls := 0
	// Small enough budget to force eviction after a handful of chunks;
	// one shard, since the budget is split evenly across shards.
	c := New(Config{Shards: 1, MaxBytes: estimatedChunkBytes * 3, ResetInterval: time.Hour, Loader: testLoader(&calls)})
	defer c.Close()

	for i := 0; i < 20; i++ {
		pos := world.ChunkPos{X: int32(i), Z: 0}
		if _, err := c.GetOrLoad(pos); err != nil {
			t.Fatalf("GetOrLoad: %v", err)
		}
	}

	if c.Len() > 3 {
		t.Fatalf("Len() = %d, expected eviction to have happened", c.Len())
	}
}

func TestPinPreventsEviction(t *testing.T) {
	calls := 0
	// Room for the pinned chunk plus one more, so every later load has
	// to evict something other than the pinned chunk.
	c := New(Config{Shards: 1, MaxBytes: estimatedChunkBytes * 2, ResetInterval: time.Hour, Loader: testLoader(&calls)})
	defer c.Close()

	pinned := world.ChunkPos{X: 0, Z: 0}
	if _, err := c.GetOrLoad(pinned); err != nil {
		t.Fatalf("GetOrLoad: %v", err)
	}
	c.Pin(pinned)

	for i := 1; i < 10; i++ {
		if _, err := c.GetOrLoad(world.ChunkPos{X: int32(i), Z: 0}); err != nil {
			t.Fatalf("GetOrLoad: %v", err)
		}
	}

	if _, ok := c.Get(pinned); !ok {
		t.Error("pinned chunk was evicted")
	}
}

func TestDirtyReturnsUnflushedChunks(t *testing.T) {
	calls := 0
	c := New(Config{MaxBytes: 1 << 30, ResetInterval: time.Hour, Loader: testLoader(&calls)})
	defer c.Close()

	reg := protocol.DefaultBlockRegistry()
	stoneID, _ := reg.ID("minecraft:stone")

	pos := world.ChunkPos{X: 0, Z: 0}
	chunk, err := c.GetOrLoad(pos)
	if err != nil {
		t.Fatalf("GetOrLoad: %v", err)
	}
	if len(c.Dirty()) != 0 {
		t.Fatalf("expected no dirty chunks before mutation")
	}
	if err := chunk.SetBlock(0, world.Overworld.MinY, 0, stoneID); err != nil {
		t.Fatalf("SetBlock: %v", err)
	}
	dirty := c.Dirty()
	if len(dirty) != 1 {
		t.Fatalf("Dirty() len = %d, want 1", len(dirty))
	}
}

func TestPutReturnsCapacityExhaustedWhenAllPinned(t *testing.T) {
	calls := 0
	c := New(Config{Shards: 1, MaxBytes: estimatedChunkBytes, ResetInterval: time.Hour, Loader: testLoader(&calls)})
	defer c.Close()

	pinned := world.ChunkPos{X: 0, Z: 0}
	if _, err := c.GetOrLoad(pinned); err != nil {
		t.Fatalf("GetOrLoad: %v", err)
	}
	c.Pin(pinned)

	reg := protocol.DefaultBlockRegistry()
	other := world.ChunkPos{X: 1, Z: 0}
	err := c.Put(other, world.NewChunk(other, world.Overworld, reg))

	var capErr *protocol.CapacityExhausted
	if !errors.As(err, &capErr) {
		t.Fatalf("Put() error = %v, want *protocol.CapacityExhausted", err)
	}
	if _, ok := c.Get(other); ok {
		t.Error("chunk rejected by CapacityExhausted should not be resident")
	}
	if _, ok := c.Get(pinned); !ok {
		t.Error("pinned chunk should remain resident after a failed admission")
	}
}

func TestEvictionBreaksHitCountTiesByOldestAccess(t *testing.T) {
	calls := 0
	c := New(Config{Shards: 1, MaxBytes: estimatedChunkBytes * 2, ResetInterval: time.Hour, Loader: testLoader(&calls)})
	defer c.Close()

	first := world.ChunkPos{X: 0, Z: 0}
	second := world.ChunkPos{X: 1, Z: 0}
	third := world.ChunkPos{X: 2, Z: 0}

	if _, err := c.GetOrLoad(first); err != nil {
		t.Fatalf("GetOrLoad(first): %v", err)
	}
	if _, err := c.GetOrLoad(second); err != nil {
		t.Fatalf("GetOrLoad(second): %v", err)
	}
	// first and second now have equal (zero) hit counts; inserting a
	// third entry forces one eviction, which must break the tie in
	// favor of the oldest access ordinal (first), not arbitrary order.
	if _, err := c.GetOrLoad(third); err != nil {
		t.Fatalf("GetOrLoad(third): %v", err)
	}

	if _, ok := c.Get(first); ok {
		t.Error("expected the oldest equally-hit entry to be evicted first")
	}
	if _, ok := c.Get(second); !ok {
		t.Error("expected the more recently accessed entry to remain resident")
	}
}

func TestConcurrentGetOrLoadCoalesces(t *testing.T) {
	calls := 0
	loaderCalled := make(chan struct{}, 1)
	c := New(Config{MaxBytes: 1 << 30, ResetInterval: time.Hour, Loader: func(pos world.ChunkPos) (*world.Chunk, error) {
		calls++
		<-loaderCalled
		reg := protocol.DefaultBlockRegistry()
		return world.NewChunk(pos, world.Overworld, reg), nil
	}})
	defer c.Close()

	pos := world.ChunkPos{X: 9, Z: 9}
	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			_, err := c.GetOrLoad(pos)
			done <- err
		}()
	}
	close(loaderCalled)
	for i := 0; i < 8; i++ {
		if err := <-done; err != nil {
			t.Fatalf("GetOrLoad: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("loader called %d times, want exactly 1 (singleflight coalescing)", calls)
	}
}
