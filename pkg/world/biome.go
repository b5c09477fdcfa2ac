package world

// Biome describes terrain generation parameters for one biome. Block
// fields are registry names rather than legacy numeric states, since
// the block registry (SPEC_FULL.md §5 C1) owns id assignment.
type Biome struct {
	ID              int32
	Name            string
	SurfaceBlock    string
	FillerBlock     string
	BaseHeight      int
	HeightVariation float64
	TreeDensity     float64
	BoulderDensity  float64
	HasSnow         bool
}

// Predefined biomes. Base heights and noise weights are unchanged
// from the teacher's flat-world-era values; only block encodings move
// to the new registry.
var (
	BiomeOcean = &Biome{
		ID: BiomeID("minecraft:ocean"), Name: "Ocean",
		SurfaceBlock: "minecraft:sand", FillerBlock: "minecraft:sand",
		BaseHeight: 38, HeightVariation: 8,
		TreeDensity: 0,
	}
	BiomePlains = &Biome{
		ID: BiomeID("minecraft:plains"), Name: "Plains",
		SurfaceBlock: "minecraft:grass_block", FillerBlock: "minecraft:dirt",
		BaseHeight: 66, HeightVariation: 12,
		TreeDensity:    0.006,
		BoulderDensity: 0.03,
	}
	BiomeDesert = &Biome{
		ID: BiomeID("minecraft:desert"), Name: "Desert",
		SurfaceBlock: "minecraft:sand", FillerBlock: "minecraft:sandstone",
		BaseHeight: 64, HeightVariation: 10,
		TreeDensity:    0,
		BoulderDensity: 0.02,
	}
	BiomeExtremeHills = &Biome{
		ID: BiomeID("minecraft:windswept_hills"), Name: "Windswept Hills",
		SurfaceBlock: "minecraft:grass_block", FillerBlock: "minecraft:stone",
		BaseHeight: 72, HeightVariation: 50,
		TreeDensity:    0.015,
		BoulderDensity: 0.08,
	}
	BiomeForest = &Biome{
		ID: BiomeID("minecraft:forest"), Name: "Forest",
		SurfaceBlock: "minecraft:grass_block", FillerBlock: "minecraft:dirt",
		BaseHeight: 68, HeightVariation: 14,
		TreeDensity:    0.05,
		BoulderDensity: 0.04,
	}
	BiomeJungle = &Biome{
		ID: BiomeID("minecraft:jungle"), Name: "Jungle",
		SurfaceBlock: "minecraft:grass_block", FillerBlock: "minecraft:dirt",
		BaseHeight: 70, HeightVariation: 20,
		TreeDensity:    0.12,
		BoulderDensity: 0.02,
	}
	BiomeDarkForest = &Biome{
		ID: BiomeID("minecraft:dark_forest"), Name: "Dark Forest",
		SurfaceBlock: "minecraft:grass_block", FillerBlock: "minecraft:dirt",
		BaseHeight: 68, HeightVariation: 10,
		TreeDensity:    0.25,
		BoulderDensity: 0.02,
	}
	BiomeSnowyTundra = &Biome{
		ID: BiomeID("minecraft:snowy_plains"), Name: "Snowy Plains",
		SurfaceBlock: "minecraft:snow_block", FillerBlock: "minecraft:dirt",
		BaseHeight: 66, HeightVariation: 8,
		TreeDensity:    0.004,
		BoulderDensity: 0.02,
		HasSnow:        true,
	}
)

// allBiomes is an ordered list used for selection lookups and tests.
var allBiomes = []*Biome{
	BiomeOcean,
	BiomePlains,
	BiomeDesert,
	BiomeExtremeHills,
	BiomeForest,
	BiomeJungle,
	BiomeDarkForest,
	BiomeSnowyTundra,
}

// BiomeAt selects a biome for a world block position using
// temperature and rainfall noise. The noise generators should use
// low-frequency scales so biomes form large regions.
func BiomeAt(tempNoise, rainNoise *Perlin, worldX, worldZ int) *Biome {
	const scale = 0.003
	bx := float64(worldX) * scale
	bz := float64(worldZ) * scale

	temp := tempNoise.OctaveNoise2D(bx, bz, 4, 2.0, 0.5)
	rain := rainNoise.OctaveNoise2D(bx+500, bz+500, 4, 2.0, 0.5)

	temp = (temp + 1) / 2
	rain = (rain + 1) / 2

	switch {
	case temp < 0.25:
		return BiomeSnowyTundra
	case temp < 0.45:
		if rain > 0.7 {
			return BiomeDarkForest
		}
		if rain > 0.4 {
			return BiomeForest
		}
		return BiomePlains
	case temp < 0.75:
		if rain > 0.8 {
			return BiomeJungle
		}
		if rain > 0.5 {
			return BiomeDarkForest
		}
		if rain > 0.3 {
			return BiomeForest
		}
		if rain < 0.2 {
			return BiomeExtremeHills
		}
		return BiomePlains
	default:
		if rain > 0.7 {
			return BiomeJungle
		}
		if rain < 0.3 {
			return BiomeDesert
		}
		return BiomePlains
	}
}
