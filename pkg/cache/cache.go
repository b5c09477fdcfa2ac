// Package cache implements the chunk cache (C6): a sharded
// concurrent map of loaded world.Chunk values with LRU+hit-count
// eviction and at-most-one in-flight generation per ChunkPos. The
// sharded-map/per-shard-mutex/atomic-counter shape is grounded on
// Voskan-arena-cache's pkg/cache.go; the generation-coalescing path
// is grounded on golang.org/x/sync/singleflight, as seen wired for
// duplicate-suppression across the retrieval pack.
package cache

import (
	"container/heap"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/StoreStation/vibeshitcraft-core/pkg/metrics"
	"github.com/StoreStation/vibeshitcraft-core/pkg/protocol"
	"github.com/StoreStation/vibeshitcraft-core/pkg/world"
)

// DefaultShardCount matches the teacher-adjacent arena-cache example's
// power-of-two shard convention.
const DefaultShardCount = 16

// Loader produces a chunk for pos when it is not resident; normally
// this is the region store (on disk) falling back to the generation
// pipeline (C7).
type Loader func(pos world.ChunkPos) (*world.Chunk, error)

// Cache is the sharded, evicting chunk cache.
type Cache struct {
	shards    []*shard
	shardMask uint64

	maxBytesPerShard int64
	loader           Loader
	group            singleflight.Group

	resetInterval time.Duration
	stopReset     chan struct{}

	log *zap.Logger
}

// Config configures a new Cache.
type Config struct {
	Shards        int           // power of two, default DefaultShardCount
	MaxBytes      int64         // total resident budget across all shards
	ResetInterval time.Duration // hit-counter reset period; default 300s
	Loader        Loader
	Logger        *zap.Logger
}

// New builds a Cache and starts its background hit-counter reset
// ticker.
func New(cfg Config) *Cache {
	shardCount := cfg.Shards
	if shardCount <= 0 {
		shardCount = DefaultShardCount
	}
	resetInterval := cfg.ResetInterval
	if resetInterval <= 0 {
		resetInterval = 300 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Cache{
		shards:           make([]*shard, shardCount),
		shardMask:        uint64(shardCount - 1),
		maxBytesPerShard: cfg.MaxBytes / int64(shardCount),
		loader:           cfg.Loader,
		resetInterval:    resetInterval,
		stopReset:        make(chan struct{}),
		log:              logger,
	}
	for i := range c.shards {
		c.shards[i] = newShard(c.maxBytesPerShard)
	}

	go c.resetLoop()
	return c
}

func (c *Cache) shardFor(pos world.ChunkPos) *shard {
	h := hashChunkPos(pos)
	return c.shards[h&c.shardMask]
}

func hashChunkPos(pos world.ChunkPos) uint64 {
	return uint64(uint32(pos.X))*31 + uint64(uint32(pos.Z))
}

// Get returns the chunk at pos if resident, bumping its hit count.
func (c *Cache) Get(pos world.ChunkPos) (*world.Chunk, bool) {
	s := c.shardFor(pos)
	entry, ok := s.get(pos)
	if ok {
		metrics.CacheHits.Inc()
		return entry.chunk, true
	}
	metrics.CacheMisses.Inc()
	return nil, false
}

// GetOrLoad returns the resident chunk, or loads it via the Loader,
// coalescing concurrent loads for the same ChunkPos into a single
// call (singleflight), matching spec.md's "at most one in-flight
// generation per ChunkPos" invariant.
func (c *Cache) GetOrLoad(pos world.ChunkPos) (*world.Chunk, error) {
	if chunk, ok := c.Get(pos); ok {
		return chunk, nil
	}

	v, err, _ := c.group.Do(pos.String(), func() (any, error) {
		if chunk, ok := c.Get(pos); ok {
			return chunk, nil
		}
		chunk, err := c.loader(pos)
		if err != nil {
			return nil, err
		}
		if err := c.Put(pos, chunk); err != nil {
			return nil, err
		}
		return chunk, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*world.Chunk), nil
}

// Put inserts or replaces the resident chunk for pos. It returns
// CapacityExhausted when the shard's byte budget cannot be met even
// after evicting every unpinned entry (spec.md's Boundary Behaviors).
func (c *Cache) Put(pos world.ChunkPos, chunk *world.Chunk) error {
	s := c.shardFor(pos)
	evicted, err := s.put(pos, chunk)
	if evicted > 0 {
		metrics.CacheEvictions.Add(float64(evicted))
	}
	metrics.CacheResidentChunks.Set(float64(c.Len()))
	if err != nil {
		metrics.CacheCapacityExhausted.Inc()
		c.log.Warn("chunk cache capacity exhausted, admission refused", zap.Stringer("chunkPos", pos))
	}
	return err
}

// Pin marks a chunk as referenced by a player's view window (C9),
// exempting it from eviction until Unpin is called.
func (c *Cache) Pin(pos world.ChunkPos) {
	c.shardFor(pos).setPinned(pos, true)
}

// Unpin releases a previous Pin.
func (c *Cache) Unpin(pos world.ChunkPos) {
	c.shardFor(pos).setPinned(pos, false)
}

// Dirty returns every resident chunk with unflushed changes, grouped
// by shard iteration order (the region store further groups these by
// world.RegionPos before flushing).
func (c *Cache) Dirty() []*world.Chunk {
	var out []*world.Chunk
	for _, s := range c.shards {
		out = append(out, s.dirty()...)
	}
	return out
}

// Len returns the total number of resident chunks.
func (c *Cache) Len() int {
	total := 0
	for _, s := range c.shards {
		total += s.len()
	}
	return total
}

// Close stops the background reset ticker.
func (c *Cache) Close() {
	close(c.stopReset)
}

func (c *Cache) resetLoop() {
	ticker := time.NewTicker(c.resetInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, s := range c.shards {
				s.resetHitCounts()
			}
		case <-c.stopReset:
			return
		}
	}
}

// entry is one cached chunk plus its eviction bookkeeping. accessOrdinal
// is the CacheEntry "last-access ordinal" spec.md's Data Model calls
// for: a monotonically increasing per-shard counter stamped on every
// access, used to break hit-count ties in favor of the least-recently
// touched entry rather than arbitrary heap order.
type entry struct {
	pos           world.ChunkPos
	chunk         *world.Chunk
	hits          uint32
	accessOrdinal uint64
	pinned        bool
	heapIdx       int
}

// shard owns one slice of the keyspace: its own mutex, its own
// priority heap for O(log n) eviction, and its own byte budget.
type shard struct {
	mu        sync.Mutex
	entries   map[world.ChunkPos]*entry
	evictHeap evictHeap
	maxBytes  int64
	usedBytes int64
	clock     uint64
}

// nextOrdinal returns the next access ordinal; callers hold s.mu.
func (s *shard) nextOrdinal() uint64 {
	s.clock++
	return s.clock
}

// estimatedChunkBytes approximates a resident chunk's footprint for
// the byte budget; exact accounting would require walking every
// section's palette, which the cache does not need to be precise
// about — only proportionally correct as chunks are added/removed.
const estimatedChunkBytes = 64 * 1024

func newShard(maxBytes int64) *shard {
	return &shard{
		entries:  make(map[world.ChunkPos]*entry),
		maxBytes: maxBytes,
	}
}

func (s *shard) get(pos world.ChunkPos) (*entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[pos]
	if !ok {
		return nil, false
	}
	e.hits++
	e.accessOrdinal = s.nextOrdinal()
	if e.heapIdx >= 0 {
		heap.Fix(&s.evictHeap, e.heapIdx)
	}
	return e, true
}

// put inserts chunk at pos, first evicting lowest-priority existing
// entries until there is room for it. It returns the number of entries
// evicted and, per spec.md's Boundary Behaviors ("if zero eviction
// candidates, insertion fails with CapacityExhausted"), an error when
// the shard is still over budget after the eviction heap has been
// drained — every resident entry is pinned and there is nowhere left
// to evict from. Eviction runs against the existing entries only,
// before chunk is admitted: were the new entry pushed onto the heap
// first, an all-pinned shard's only eviction candidate would be the
// entry just inserted, which would evict itself and report success
// without ever actually admitting chunk.
func (s *shard) put(pos world.ChunkPos, chunk *world.Chunk) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[pos]; ok {
		if old.heapIdx >= 0 {
			heap.Remove(&s.evictHeap, old.heapIdx)
		}
		s.usedBytes -= estimatedChunkBytes
		delete(s.entries, pos)
	}

	evicted := 0
	for s.usedBytes+estimatedChunkBytes > s.maxBytes && s.evictHeap.Len() > 0 {
		victim := heap.Pop(&s.evictHeap).(*entry)
		delete(s.entries, victim.pos)
		s.usedBytes -= estimatedChunkBytes
		evicted++
	}

	if s.usedBytes+estimatedChunkBytes > s.maxBytes {
		return evicted, &protocol.CapacityExhausted{Resource: "chunk cache"}
	}

	e := &entry{pos: pos, chunk: chunk, heapIdx: -1, accessOrdinal: s.nextOrdinal()}
	s.entries[pos] = e
	s.usedBytes += estimatedChunkBytes
	if !e.pinned {
		heap.Push(&s.evictHeap, e)
	}
	return evicted, nil
}

func (s *shard) setPinned(pos world.ChunkPos, pinned bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[pos]
	if !ok {
		return
	}
	if e.pinned == pinned {
		return
	}
	e.pinned = pinned
	if pinned && e.heapIdx >= 0 {
		heap.Remove(&s.evictHeap, e.heapIdx)
	} else if !pinned && e.heapIdx < 0 {
		heap.Push(&s.evictHeap, e)
	}
}

func (s *shard) dirty() []*world.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*world.Chunk
	for _, e := range s.entries {
		if e.chunk.Dirty() {
			out = append(out, e.chunk)
		}
	}
	return out
}

func (s *shard) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *shard) resetHitCounts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		e.hits = 0
		if e.heapIdx >= 0 {
			heap.Fix(&s.evictHeap, e.heapIdx)
		}
	}
}

// evictHeap is a container/heap min-heap over hit count (lowest hit
// count evicts first); ties break on accessOrdinal, evicting the
// least-recently-accessed entry first, per spec.md §4.6's "choose the
// entry with the lowest hit count, breaking ties by oldest access
// ordinal."
type evictHeap []*entry

func (h evictHeap) Len() int { return len(h) }
func (h evictHeap) Less(i, j int) bool {
	if h[i].hits != h[j].hits {
		return h[i].hits < h[j].hits
	}
	return h[i].accessOrdinal < h[j].accessOrdinal
}
func (h evictHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIdx = i
	h[j].heapIdx = j
}

func (h *evictHeap) Push(x any) {
	e := x.(*entry)
	e.heapIdx = len(*h)
	*h = append(*h, e)
}

func (h *evictHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.heapIdx = -1
	*h = old[:n-1]
	return e
}
