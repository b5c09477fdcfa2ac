package world

import (
	"math"
	"sync/atomic"

	"github.com/StoreStation/vibeshitcraft-core/pkg/palette"
	"github.com/StoreStation/vibeshitcraft-core/pkg/protocol"
)

// WaterLevel is the sea level used by the reference generator.
const WaterLevel = 62

// blocksPerSection is the entry count a palette.KindBlocks container
// holds: one 16x16x16 section.
const blocksPerSection = 16 * 16 * 16

// Generator produces Chunks from a seed using layered Perlin noise,
// the external "generate(seed, pos)" function C7's worker pool calls.
// Tree, boulder, and structure decoration (present in the teacher)
// are dropped here: they are gameplay decoration layered on top of
// the terrain shape, not part of the core engine's chunk/persistence
// responsibilities, and are out of scope per spec.md's Non-goals.
type Generator struct {
	Seed int64

	registry *protocol.Registry
	dim      *Dimension

	terrain    *Perlin
	tempNoise  *Perlin
	rainNoise  *Perlin
	caveNoise  *Perlin
	cave2      *Perlin
	lakeNoise  *Perlin
	riverNoise *Perlin
}

// NewGenerator creates a terrain generator from a seed, a block
// registry, and a dimension descriptor.
func NewGenerator(seed int64, registry *protocol.Registry, dim *Dimension) *Generator {
	return &Generator{
		Seed:       seed,
		registry:   registry,
		dim:        dim,
		terrain:    NewPerlin(seed),
		tempNoise:  NewPerlin(seed + 1),
		rainNoise:  NewPerlin(seed + 2),
		caveNoise:  NewPerlin(seed + 3),
		cave2:      NewPerlin(seed + 5),
		lakeNoise:  NewPerlin(seed + 300),
		riverNoise: NewPerlin(seed + 400),
	}
}

// SurfaceHeight returns the solid surface Y for the given world-space x, z.
func (g *Generator) SurfaceHeight(x, z int) int {
	biome := BiomeAt(g.tempNoise, g.rainNoise, x, z)

	const noiseScale = 0.015
	h := g.terrain.OctaveNoise2D(float64(x)*noiseScale, float64(z)*noiseScale, 3, 2.0, 0.5)
	height := float64(biome.BaseHeight) + h*biome.HeightVariation

	const riverScale = 0.003
	rv := math.Abs(g.riverNoise.Noise2D(float64(x)*riverScale, float64(z)*riverScale))
	if rv < 0.04 {
		factor := (0.04 - rv) / 0.04
		height -= factor * 15.0
	}

	const lakeScale = 0.01
	lv := g.lakeNoise.Noise2D(float64(x)*lakeScale, float64(z)*lakeScale)
	if lv > 0.82 {
		factor := (lv - 0.82) / (1.0 - 0.82)
		height -= factor * 12.0
	}

	return int(height)
}

// isCave returns true if the block at (x,y,z) should be carved out.
// The cheese-cavern field (caveNoise) is sampled across two octaves so
// its cavern boundaries stay smooth at the scale spaghetti tunnels cut
// through; the spaghetti field itself stays single-octave, since a
// tunnel is meant to read as a thin, noisy ribbon rather than a smooth
// cavern wall.
func (g *Generator) isCave(x, y, z int) bool {
	lowRes := g.caveNoise.OctaveNoise3D(float64(x)*0.03, float64(y)*0.03, float64(z)*0.03, 2, 2.0, 0.5)
	if lowRes > 0.5 {
		spaghetti := g.cave2.Noise3D(float64(x)*0.08, float64(y)*0.08, float64(z)*0.08)
		return spaghetti > 0.3
	}
	return false
}

// Generate builds a fully-populated Chunk for pos. It satisfies the
// gen.Generator interface (C7): a pure function of (seed, pos) beyond
// the Generator's own noise fields, which are themselves a pure
// function of Seed.
func (g *Generator) Generate(pos ChunkPos) (*Chunk, error) {
	chunk := NewChunk(pos, g.dim, g.registry)

	airID, _ := g.registry.ID("minecraft:air")
	bedrockID, _ := g.registry.ID("minecraft:bedrock")
	waterID, _ := g.registry.ID("minecraft:water")
	sandID, _ := g.registry.ID("minecraft:sand")

	sectionCount := g.dim.SectionCount()
	values := make([][]int32, sectionCount)
	for i := range values {
		values[i] = make([]int32, blocksPerSection)
	}
	var biomeGrid [16][16]int32

	for lx := 0; lx < 16; lx++ {
		for lz := 0; lz < 16; lz++ {
			wx, wz := int(pos.X)*16+lx, int(pos.Z)*16+lz
			biome := BiomeAt(g.tempNoise, g.rainNoise, wx, wz)
			biomeGrid[lz][lx] = biome.ID
			surfaceID, _ := g.registry.ID(biome.SurfaceBlock)
			fillerID, _ := g.registry.ID(biome.FillerBlock)
			surfH := g.SurfaceHeight(wx, wz)

			for y := g.dim.MinY; y < g.dim.MinY+g.dim.Height; y++ {
				si, _ := chunk.SectionIndex(y)
				ly := int(y-g.dim.MinY) % 16
				idx := (ly*16+lz)*16 + lx

				var blockID int32
				switch {
				case y == g.dim.MinY:
					blockID = bedrockID
				case int(y) <= surfH:
					if g.isCave(wx, int(y), wz) && int(y) < surfH-2 {
						if int(y) <= WaterLevel {
							blockID = waterID
						} else {
							blockID = airID
						}
					} else if int(y) < surfH {
						blockID = fillerID
					} else if int(y) < WaterLevel {
						blockID = sandID
					} else {
						blockID = surfaceID
					}
				case int(y) <= WaterLevel:
					blockID = waterID
				default:
					blockID = airID
				}

				values[si][idx] = blockID
				if blockID != airID && y+1 > chunk.Heightmap[lz][lx] {
					chunk.Heightmap[lz][lx] = y + 1
				}
			}
		}
	}

	for i, sec := range chunk.Sections {
		container, err := palette.FromValues(palette.KindBlocks, g.registry.Size(), values[i])
		if err != nil {
			return nil, err
		}
		sec.Blocks = container

		var nonAir int32
		for _, v := range values[i] {
			if v != airID {
				nonAir++
			}
		}
		atomic.StoreInt32(&sec.nonAirCount, nonAir)

		sec.Biomes = biomesForSection(biomeGrid)
	}

	chunk.Touch()
	chunk.ClearDirty() // freshly generated, nothing to flush until mutated
	return chunk, nil
}

// biomesForSection downsamples the 16x16 column biome grid to the
// 4x4x4 resolution paletted biome containers use, per §4.5. The
// reference generator does not vary biome by altitude, so every
// section in a column shares the same horizontal sampling.
func biomesForSection(grid [16][16]int32) *palette.Container {
	values := make([]int32, 64)
	for by := 0; by < 4; by++ {
		for bz := 0; bz < 4; bz++ {
			for bx := 0; bx < 4; bx++ {
				idx := (by*4+bz)*4 + bx
				values[idx] = grid[bz*4][bx*4]
			}
		}
	}
	c, err := palette.FromValues(palette.KindBiomes, len(biomeNames), values)
	if err != nil {
		// len(values) is always 64 and biomeNames is a fixed table, so
		// this can only happen from a programming error.
		panic(err)
	}
	return c
}
