package region

import (
	"bytes"
	"fmt"

	"github.com/StoreStation/vibeshitcraft-core/pkg/nbt"
	"github.com/StoreStation/vibeshitcraft-core/pkg/palette"
	"github.com/StoreStation/vibeshitcraft-core/pkg/protocol"
	"github.com/StoreStation/vibeshitcraft-core/pkg/world"
)

// nbtFromChunk flattens a Chunk's sections into the private on-disk
// NBT schema this package owns (spec.md §4.8 requires only that a
// restart reproduce the same world state, not a particular schema).
func nbtFromChunk(c *world.Chunk) nbt.Compound {
	heightmap := make([]int32, 0, 256)
	for lz := 0; lz < 16; lz++ {
		for lx := 0; lx < 16; lx++ {
			heightmap = append(heightmap, c.Heightmap[lz][lx])
		}
	}

	sections := make([]any, len(c.Sections))
	for i, sec := range c.Sections {
		var blockBuf, biomeBuf bytes.Buffer
		// Encode/Decode errors here would indicate an in-memory
		// container invariant violation (impossible bit width, bad
		// mode byte produced by this process itself); palette.Encode
		// only fails on writer I/O, which a bytes.Buffer never does.
		_ = palette.Encode(&blockBuf, sec.Blocks)
		_ = palette.Encode(&biomeBuf, sec.Biomes)
		sections[i] = nbt.Compound{
			"blocks":      blockBuf.Bytes(),
			"biomes":      biomeBuf.Bytes(),
			"nonAirCount": sec.NonAirCount(),
		}
	}

	return nbt.Compound{
		"x":         c.Pos.X,
		"z":         c.Pos.Z,
		"heightmap": heightmap,
		"sections":  nbt.List{Elems: sections},
	}
}

// chunkFromNBT rebuilds a Chunk from the schema nbtFromChunk produces.
func chunkFromNBT(c nbt.Compound, pos world.ChunkPos, dim *world.Dimension, reg *protocol.Registry) (*world.Chunk, error) {
	chunk := world.NewChunk(pos, dim, reg)

	heightmap, ok := c["heightmap"].([]int32)
	if !ok {
		return nil, fmt.Errorf("region: missing heightmap")
	}
	if len(heightmap) != 256 {
		return nil, fmt.Errorf("region: heightmap has %d entries, want 256", len(heightmap))
	}
	for i, v := range heightmap {
		chunk.Heightmap[i/16][i%16] = v
	}

	sectionsList, ok := c["sections"].(nbt.List)
	if !ok {
		return nil, fmt.Errorf("region: missing sections list")
	}
	if len(sectionsList.Elems) != len(chunk.Sections) {
		return nil, fmt.Errorf("region: %d sections on disk, want %d for dimension %s", len(sectionsList.Elems), len(chunk.Sections), dim.Name)
	}

	for i, elem := range sectionsList.Elems {
		secCompound, ok := elem.(nbt.Compound)
		if !ok {
			return nil, fmt.Errorf("region: section %d is not a compound", i)
		}
		blockBytes, ok := secCompound["blocks"].([]byte)
		if !ok {
			return nil, fmt.Errorf("region: section %d missing blocks", i)
		}
		biomeBytes, ok := secCompound["biomes"].([]byte)
		if !ok {
			return nil, fmt.Errorf("region: section %d missing biomes", i)
		}
		blocks, err := palette.Decode(bytes.NewReader(blockBytes), palette.KindBlocks, reg.Size())
		if err != nil {
			return nil, fmt.Errorf("region: decode section %d blocks: %w", i, err)
		}
		biomes, err := palette.Decode(bytes.NewReader(biomeBytes), palette.KindBiomes, world.BiomeCount())
		if err != nil {
			return nil, fmt.Errorf("region: decode section %d biomes: %w", i, err)
		}
		nonAir, _ := secCompound["nonAirCount"].(int32)

		chunk.Sections[i] = world.RebuildSection(blocks, biomes, nonAir)
	}

	return chunk, nil
}
