package world

import (
	"math"
	"testing"
)

func TestPerlinDeterminism(t *testing.T) {
	p1 := NewPerlin(12345)
	p2 := NewPerlin(12345)

	for i := 0; i < 100; i++ {
		x := float64(i) * 0.37
		y := float64(i) * 0.53
		if p1.Noise2D(x, y) != p2.Noise2D(x, y) {
			t.Fatalf("Noise2D not deterministic at (%f, %f)", x, y)
		}
	}
}

func TestPerlinRange(t *testing.T) {
	p := NewPerlin(42)
	for i := 0; i < 10000; i++ {
		x := float64(i)*0.1 - 500
		y := float64(i)*0.07 - 350
		v := p.Noise2D(x, y)
		if v < -1.5 || v > 1.5 {
			t.Errorf("Noise2D(%f, %f) = %f, out of expected range", x, y, v)
		}
	}
}

func TestNoise3DRange(t *testing.T) {
	p := NewPerlin(99)
	for i := 0; i < 5000; i++ {
		x := float64(i)*0.13 - 300
		y := float64(i)*0.07 - 200
		z := float64(i)*0.09 - 100
		v := p.Noise3D(x, y, z)
		if v < -1.5 || v > 1.5 {
			t.Errorf("Noise3D(%f, %f, %f) = %f, out of expected range", x, y, z, v)
		}
	}
}

func TestOctaveNoiseSmoothness(t *testing.T) {
	p := NewPerlin(77)
	// Adjacent samples should not differ wildly
	prev := p.OctaveNoise2D(0, 0, 4, 2.0, 0.5)
	maxDiff := 0.0
	for i := 1; i < 1000; i++ {
		v := p.OctaveNoise2D(float64(i)*0.01, 0, 4, 2.0, 0.5)
		diff := math.Abs(v - prev)
		if diff > maxDiff {
			maxDiff = diff
		}
		prev = v
	}
	if maxDiff > 0.5 {
		t.Errorf("OctaveNoise2D max step difference = %f, expected smooth transitions", maxDiff)
	}
}

func TestOctaveNoise3DDeterminism(t *testing.T) {
	p1 := NewPerlin(500)
	p2 := NewPerlin(500)
	for i := 0; i < 50; i++ {
		x, y, z := float64(i)*0.11, float64(i)*0.07, float64(i)*0.05
		got := p1.OctaveNoise3D(x, y, z, 2, 2.0, 0.5)
		want := p2.OctaveNoise3D(x, y, z, 2, 2.0, 0.5)
		if got != want {
			t.Fatalf("OctaveNoise3D not deterministic at (%f, %f, %f): %f != %f", x, y, z, got, want)
		}
	}
}

func TestOctaveNoise3DSingleOctaveMatchesNoise3D(t *testing.T) {
	p := NewPerlin(7)
	x, y, z := 1.3, 4.7, -2.1
	got := p.OctaveNoise3D(x, y, z, 1, 2.0, 0.5)
	want := p.Noise3D(x, y, z)
	if got != want {
		t.Errorf("OctaveNoise3D with 1 octave = %f, want exactly Noise3D = %f", got, want)
	}
}

func TestDifferentSeeds(t *testing.T) {
	p1 := NewPerlin(1)
	p2 := NewPerlin(2)
	same := 0
	for i := 0; i < 100; i++ {
		x := float64(i) * 0.5
		y := float64(i) * 0.3
		if p1.Noise2D(x, y) == p2.Noise2D(x, y) {
			same++
		}
	}
	if same > 30 {
		t.Errorf("different seeds produced %d/100 identical values", same)
	}
}
