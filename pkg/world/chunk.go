// Package world holds the chunk data model (ChunkPos, Dimension,
// Chunk, Section), the paletted-container wiring over pkg/palette,
// and the default terrain generator, per spec.md §3/§4.1 and
// SPEC_FULL.md §4/§5 (C1 registry, C5 palette, C7 generation).
package world

import (
	"fmt"
	"sync/atomic"

	"github.com/StoreStation/vibeshitcraft-core/pkg/palette"
	"github.com/StoreStation/vibeshitcraft-core/pkg/protocol"
)

// ChunkPos identifies a 16x16 column by chunk coordinates.
type ChunkPos struct {
	X, Z int32
}

func (p ChunkPos) String() string { return fmt.Sprintf("%d,%d", p.X, p.Z) }

// ChebyshevDistance is the chunk-grid distance C9's view window uses
// to decide load/unload order (the "square ring" distance, not
// Euclidean).
func (p ChunkPos) ChebyshevDistance(o ChunkPos) int32 {
	dx := p.X - o.X
	if dx < 0 {
		dx = -dx
	}
	dz := p.Z - o.Z
	if dz < 0 {
		dz = -dz
	}
	if dx > dz {
		return dx
	}
	return dz
}

// RegionPos identifies the 32x32-chunk region file a chunk belongs
// to, per §4.8.
type RegionPos struct {
	X, Z int32
}

// Region returns the RegionPos containing this chunk.
func (p ChunkPos) Region() RegionPos {
	return RegionPos{X: floorDiv(p.X, 32), Z: floorDiv(p.Z, 32)}
}

func floorDiv(a, b int32) int32 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Dimension describes the vertical extent of a world, since 1.21.7
// dimensions are no longer pinned to a fixed 0..256 range.
type Dimension struct {
	Name          string
	MinY          int32
	Height        int32 // must be a multiple of 16
	LogicalHeight int32
}

// SectionCount is the number of 16-block-tall sections stacked in a
// column of this dimension.
func (d *Dimension) SectionCount() int { return int(d.Height / 16) }

// Overworld is the default dimension descriptor used by tests and the
// reference generator: 384 total blocks, y in [-64, 320).
var Overworld = &Dimension{Name: "minecraft:overworld", MinY: -64, Height: 384, LogicalHeight: 384}

// Section is one 16x16x16 slice of a Chunk: a paletted block-state
// container plus a paletted biome container, per §4.5.
type Section struct {
	Blocks      *palette.Container
	Biomes      *palette.Container
	nonAirCount int32
}

// NonAirCount is the number of non-air block entries in this section,
// cached at construction/mutation time so network payload sizing and
// the "all-air, skip it" fast path don't rescan 4096 entries.
func (s *Section) NonAirCount() int32 { return atomic.LoadInt32(&s.nonAirCount) }

func newEmptySection(reg *protocol.Registry) *Section {
	airID, _ := reg.ID("minecraft:air")
	return &Section{
		Blocks:      palette.NewSingle(palette.KindBlocks, reg.Size(), airID),
		Biomes:      palette.NewSingle(palette.KindBiomes, len(biomeNames), 0),
		nonAirCount: 0,
	}
}

var biomeNames = []string{
	"minecraft:ocean",
	"minecraft:plains",
	"minecraft:desert",
	"minecraft:windswept_hills",
	"minecraft:forest",
	"minecraft:jungle",
	"minecraft:dark_forest",
	"minecraft:snowy_plains",
}

// BiomeID returns the fixed registry id for a biome name, or -1 if
// unknown. Biomes get their own small id space rather than sharing
// the block registry, since §4.5's Indirect bit range (1..3 bits)
// differs from the block container's (4..8 bits).
func BiomeID(name string) int32 {
	for i, n := range biomeNames {
		if n == name {
			return int32(i)
		}
	}
	return -1
}

// BiomeName is the inverse of BiomeID.
func BiomeName(id int32) string {
	if int(id) < 0 || int(id) >= len(biomeNames) {
		return ""
	}
	return biomeNames[id]
}

// BiomeCount is the size of the fixed biome registry, for callers
// (region persistence) that decode a biome paletted-container without
// otherwise needing the name table.
func BiomeCount() int { return len(biomeNames) }

// RebuildSection reassembles a Section from containers decoded off
// disk, for region persistence's read path.
func RebuildSection(blocks, biomes *palette.Container, nonAirCount int32) *Section {
	return &Section{Blocks: blocks, Biomes: biomes, nonAirCount: nonAirCount}
}

// Chunk is one column's worth of Sections plus the per-column state
// spec.md §4.1 tracks: a heightmap, a monotonic version counter for
// cache invalidation (§4.6), and a dirty flag the region store uses
// to decide what needs flushing (§4.8).
type Chunk struct {
	Pos       ChunkPos
	Dim       *Dimension
	Registry  *protocol.Registry
	Sections  []*Section
	Heightmap [16][16]int32 // world-space y of the highest non-air block + 1

	version uint64
	dirty   uint32
}

// NewChunk allocates an all-air Chunk with one Section per the
// dimension's SectionCount.
func NewChunk(pos ChunkPos, dim *Dimension, reg *protocol.Registry) *Chunk {
	sections := make([]*Section, dim.SectionCount())
	for i := range sections {
		sections[i] = newEmptySection(reg)
	}
	return &Chunk{Pos: pos, Dim: dim, Registry: reg, Sections: sections}
}

// SectionIndex returns the section-stack index for a world-space y,
// or (-1, false) if y falls outside the dimension.
func (c *Chunk) SectionIndex(y int32) (int, bool) {
	if y < c.Dim.MinY || y >= c.Dim.MinY+c.Dim.Height {
		return -1, false
	}
	return int((y - c.Dim.MinY) / 16), true
}

// Version returns the chunk's current cache-invalidation counter.
func (c *Chunk) Version() uint64 { return atomic.LoadUint64(&c.version) }

// Touch bumps the version counter and marks the chunk dirty; callers
// mutating block state call this afterward (SetBlock does it itself).
func (c *Chunk) Touch() {
	atomic.AddUint64(&c.version, 1)
	atomic.StoreUint32(&c.dirty, 1)
}

// Dirty reports whether the chunk has unflushed changes.
func (c *Chunk) Dirty() bool { return atomic.LoadUint32(&c.dirty) == 1 }

// ClearDirty marks the chunk flushed; the region store calls this
// after a successful write.
func (c *Chunk) ClearDirty() { atomic.StoreUint32(&c.dirty, 0) }

// SetBlock sets the block-state id at local coordinates (0..15 each)
// and world-space y, updating the heightmap and non-air count, and
// bumps the version counter.
func (c *Chunk) SetBlock(lx int, y int32, lz int, id int32) error {
	si, ok := c.SectionIndex(y)
	if !ok {
		return fmt.Errorf("world: y=%d out of range for dimension %s", y, c.Dim.Name)
	}
	airID, _ := c.Registry.ID("minecraft:air")
	sec := c.Sections[si]
	ly := int(y-c.Dim.MinY) % 16
	idx := (ly*16+lz)*16 + lx

	values := sec.Blocks.Values()
	wasAir := values[idx] == airID
	isAir := id == airID
	values[idx] = id

	rebuilt, err := palette.FromValues(palette.KindBlocks, c.Registry.Size(), values)
	if err != nil {
		return err
	}
	sec.Blocks = rebuilt

	switch {
	case wasAir && !isAir:
		atomic.AddInt32(&sec.nonAirCount, 1)
	case !wasAir && isAir:
		atomic.AddInt32(&sec.nonAirCount, -1)
	}
	if !isAir && y+1 > c.Heightmap[lz][lx] {
		c.Heightmap[lz][lx] = y + 1
	}
	c.Touch()
	return nil
}

// BlockAt returns the block-state id at local coordinates and
// world-space y.
func (c *Chunk) BlockAt(lx int, y int32, lz int) (int32, error) {
	si, ok := c.SectionIndex(y)
	if !ok {
		return 0, fmt.Errorf("world: y=%d out of range for dimension %s", y, c.Dim.Name)
	}
	ly := int(y-c.Dim.MinY) % 16
	idx := (ly*16+lz)*16 + lx
	return c.Sections[si].Blocks.Get(idx), nil
}
