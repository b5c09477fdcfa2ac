// Package view implements the per-player view-window manager (C9):
// the set of chunks a connected player currently has loaded, and the
// load/unload bookkeeping spec.md §4.9 describes as the player
// crosses chunk boundaries.
//
// There is no view-window precedent in the teacher (a flat, always-
// loaded 1.8 world has no concept of a bounded view distance); the
// spiral-offset table and Chebyshev-distance ordering are grounded
// directly on spec.md §4.9's own algorithm description: the offset
// table is built ring by ring in Chebyshev distance, the metric
// world.ChunkPos.ChebyshevDistance (pkg/world/chunk.go) computes.
package view

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/StoreStation/vibeshitcraft-core/pkg/cache"
	"github.com/StoreStation/vibeshitcraft-core/pkg/protocol"
	"github.com/StoreStation/vibeshitcraft-core/pkg/world"
)

// MinViewDistance/MaxViewDistance clamp the configurable view
// distance per SPEC_FULL.md's CLI/configuration surface (default 10,
// clamped 2..32).
const (
	MinViewDistance = 2
	MaxViewDistance = 32
)

// Sender delivers C9's decisions onto the wire; a connection's C2/C5
// wiring normally implements this.
type Sender interface {
	UpdateViewPosition(center world.ChunkPos) error
	SendChunk(chunk *world.Chunk) error
	UnloadChunk(pos world.ChunkPos) error

	// GenerationFailed surfaces a wrapped protocol.GenerationFailed to
	// the gameplay layer as an event, per spec.md §7, when a desired
	// position could not be loaded this round. Implementations should
	// not treat this as fatal to the connection.
	GenerationFailed(pos world.ChunkPos, err error)
}

type offset struct{ dx, dz int32 }

// spiralOffsetCache memoizes the precomputed offset table per radius,
// since every session at the default view distance shares the same
// table; recomputing per-Window would redo the same O(d^2) work.
var (
	spiralOffsetCacheMu sync.Mutex
	spiralOffsetCache   = map[int32][]offset{}
)

func spiralOffsets(radius int32) []offset {
	spiralOffsetCacheMu.Lock()
	defer spiralOffsetCacheMu.Unlock()
	if cached, ok := spiralOffsetCache[radius]; ok {
		return cached
	}

	var out []offset
	for d := int32(0); d <= radius; d++ {
		out = append(out, ring(d)...)
	}
	spiralOffsetCache[radius] = out
	return out
}

// ring returns the offsets at exactly Chebyshev distance d, ordered
// right edge (top-to-bottom), bottom edge (right-to-left), left edge
// (bottom-to-top), top edge (left-to-right) — the clockwise "right,
// down, left, up" sweep spec.md §4.9 names as the tie-break.
func ring(d int32) []offset {
	if d == 0 {
		return []offset{{0, 0}}
	}
	out := make([]offset, 0, 8*int(d))
	for dz := -d + 1; dz <= d; dz++ { // right edge, downward
		out = append(out, offset{d, dz})
	}
	for dx := d - 1; dx >= -d; dx-- { // bottom edge, leftward
		out = append(out, offset{dx, d})
	}
	for dz := d - 1; dz >= -d; dz-- { // left edge, upward
		out = append(out, offset{-d, dz})
	}
	for dx := -d + 1; dx <= d; dx++ { // top edge, rightward
		out = append(out, offset{dx, -d})
	}
	return out
}

// Window tracks one player's loaded-chunk set and negotiated view
// distance. A Window is owned by the connection task that drives that
// player's session; it is not meant to be called concurrently from
// multiple goroutines (the same single-writer discipline the
// connection driver applies to the rest of a Session).
type Window struct {
	mu sync.Mutex

	viewDistance int32
	offsets      []offset

	loaded    map[world.ChunkPos]struct{}
	center    world.ChunkPos
	hasCenter bool

	cache *cache.Cache
	log   *zap.Logger
}

// New creates a Window backed by c, clamping viewDistance into
// [MinViewDistance, MaxViewDistance].
func New(c *cache.Cache, viewDistance int32, logger *zap.Logger) *Window {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Window{
		loaded: make(map[world.ChunkPos]struct{}),
		cache:  c,
		log:    logger,
	}
	w.SetViewDistance(viewDistance)
	return w
}

// SetViewDistance updates the player's negotiated view distance,
// recomputing the spiral offset table only if the (clamped) value
// actually changed, per spec.md §4.9's "recomputed only when
// view_distance changes."
func (w *Window) SetViewDistance(vd int32) {
	if vd < MinViewDistance {
		vd = MinViewDistance
	}
	if vd > MaxViewDistance {
		vd = MaxViewDistance
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if vd == w.viewDistance && w.offsets != nil {
		return
	}
	w.viewDistance = vd
	w.offsets = spiralOffsets(vd)
}

// Move processes a position update: computes the new chunk-space
// center, and if it differs from the last seen center, loads newly
// visible chunks and unloads newly invisible ones via sender,
// following spec.md §4.9 steps 1-6.
func (w *Window) Move(x, z float64, sender Sender) error {
	cx := int32(math.Floor(x / 16))
	cz := int32(math.Floor(z / 16))
	center := world.ChunkPos{X: cx, Z: cz}

	w.mu.Lock()
	if w.hasCenter && center == w.center {
		w.mu.Unlock()
		return nil
	}
	w.center = center
	w.hasCenter = true
	offsets := w.offsets
	w.mu.Unlock()

	if err := sender.UpdateViewPosition(center); err != nil {
		return fmt.Errorf("view: send UpdateViewPosition: %w", err)
	}

	desired := make(map[world.ChunkPos]struct{}, len(offsets))
	for _, o := range offsets {
		desired[world.ChunkPos{X: cx + o.dx, Z: cz + o.dz}] = struct{}{}
	}

	w.mu.Lock()
	loaded := w.loaded
	w.mu.Unlock()

	for _, o := range offsets {
		pos := world.ChunkPos{X: cx + o.dx, Z: cz + o.dz}
		if _, ok := loaded[pos]; ok {
			continue
		}
		chunk, err := w.cache.GetOrLoad(pos)
		if err != nil {
			// Failure mode per spec.md §4.9: log, drop this position
			// from the desired set, and retry it on the next update —
			// never disconnect the player over one bad chunk. The error
			// is surfaced to the gameplay layer per spec.md §7 as a
			// GenerationFailed event; the pipeline already wraps its own
			// errors, so only loader errors that reach here unwrapped
			// (e.g. a disk I/O failure ahead of generation) get wrapped
			// now, avoiding double-wrapping.
			var wrapped *protocol.GenerationFailed
			if !errors.As(err, &wrapped) {
				wrapped = &protocol.GenerationFailed{Reason: err.Error()}
			}
			w.log.Warn("chunk generation failed for view window", zap.String("chunkPos", pos.String()), zap.Error(wrapped))
			sender.GenerationFailed(pos, wrapped)
			delete(desired, pos)
			continue
		}
		w.cache.Pin(pos)
		if err := sender.SendChunk(chunk); err != nil {
			return fmt.Errorf("view: send chunk %s: %w", pos, err)
		}
		loaded[pos] = struct{}{}
	}

	for pos := range loaded {
		if _, ok := desired[pos]; ok {
			continue
		}
		w.cache.Unpin(pos)
		delete(loaded, pos)
		if err := sender.UnloadChunk(pos); err != nil {
			return fmt.Errorf("view: send unload %s: %w", pos, err)
		}
	}

	return nil
}

// Close releases every chunk reference this window holds, per
// spec.md §4's "a Session's view-window set releases its chunk
// references on destruction, permitting eviction" rule. Call this
// when the owning session's connection task exits.
func (w *Window) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for pos := range w.loaded {
		w.cache.Unpin(pos)
		delete(w.loaded, pos)
	}
}
