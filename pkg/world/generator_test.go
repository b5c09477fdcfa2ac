package world

import (
	"testing"

	"github.com/StoreStation/vibeshitcraft-core/pkg/protocol"
)

func TestGeneratorDeterminism(t *testing.T) {
	reg := protocol.DefaultBlockRegistry()
	g1 := NewGenerator(12345, reg, Overworld)
	g2 := NewGenerator(12345, reg, Overworld)

	c1, err := g1.Generate(ChunkPos{X: 0, Z: 0})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	c2, err := g2.Generate(ChunkPos{X: 0, Z: 0})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	for si := range c1.Sections {
		v1 := c1.Sections[si].Blocks.Values()
		v2 := c2.Sections[si].Blocks.Values()
		for i := range v1 {
			if v1[i] != v2[i] {
				t.Fatalf("section %d entry %d differs: %d vs %d", si, i, v1[i], v2[i])
			}
		}
	}
}

func TestChunkNotEmpty(t *testing.T) {
	reg := protocol.DefaultBlockRegistry()
	g := NewGenerator(42, reg, Overworld)
	c, err := g.Generate(ChunkPos{X: 0, Z: 0})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	var totalNonAir int32
	for _, sec := range c.Sections {
		totalNonAir += sec.NonAirCount()
	}
	if totalNonAir == 0 {
		t.Error("expected at least some non-air blocks")
	}
}

func TestBedrockLayer(t *testing.T) {
	reg := protocol.DefaultBlockRegistry()
	g := NewGenerator(999, reg, Overworld)
	bedrockID, _ := reg.ID("minecraft:bedrock")

	for x := -100; x < 100; x += 17 {
		for z := -100; z < 100; z += 17 {
			pos := ChunkPos{X: int32(floorDivInt(x, 16)), Z: int32(floorDivInt(z, 16))}
			c, err := g.Generate(pos)
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			lx, lz := mod16(x), mod16(z)
			got, err := c.BlockAt(lx, Overworld.MinY, lz)
			if err != nil {
				t.Fatalf("BlockAt: %v", err)
			}
			if got != bedrockID {
				t.Errorf("BlockAt(%d, MinY, %d) = %d, want bedrock %d", x, z, got, bedrockID)
			}
		}
	}
}

func TestSurfaceHeightRange(t *testing.T) {
	reg := protocol.DefaultBlockRegistry()
	g := NewGenerator(555, reg, Overworld)

	for x := -200; x < 200; x += 13 {
		for z := -200; z < 200; z += 13 {
			h := g.SurfaceHeight(x, z)
			if h < 1 || h > 250 {
				t.Errorf("SurfaceHeight(%d, %d) = %d, out of valid range [1, 250]", x, z, h)
			}
		}
	}
}

func TestDifferentChunksVary(t *testing.T) {
	reg := protocol.DefaultBlockRegistry()
	g := NewGenerator(42, reg, Overworld)

	c1, err := g.Generate(ChunkPos{X: 0, Z: 0})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	c2, err := g.Generate(ChunkPos{X: 10, Z: 10})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	same := true
outer:
	for si := range c1.Sections {
		v1 := c1.Sections[si].Blocks.Values()
		v2 := c2.Sections[si].Blocks.Values()
		for i := range v1 {
			if v1[i] != v2[i] {
				same = false
				break outer
			}
		}
	}
	if same {
		t.Error("distant chunks produced identical terrain")
	}
}

func floorDivInt(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func mod16(v int) int {
	m := v % 16
	if m < 0 {
		m += 16
	}
	return m
}
