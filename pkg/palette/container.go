// Package palette implements the paletted-container codec (C5): the
// bit-packed representation the wire protocol uses for a chunk
// section's 4096 block entries and 64 biome entries. The container
// shape (BitsPerEntry/Palette/Data/SingleValue, and the
// Get/Set-then-repack structure) is grounded on the block-state
// decoder found in the go-mclib-client reference chunk parser.
package palette

import (
	"fmt"
	"io"
	"math/bits"

	"github.com/StoreStation/vibeshitcraft-core/pkg/protocol"
)

// Mode is the storage strategy a Container currently uses.
type Mode int

const (
	ModeSingle Mode = iota
	ModeIndirect
	ModeDirect
)

// Kind distinguishes the two paletted-container flavors the protocol
// defines, since they have different Indirect bit-width ranges.
type Kind int

const (
	KindBlocks Kind = iota
	KindBiomes
)

func (k Kind) entryCount() int {
	if k == KindBlocks {
		return 4096
	}
	return 64
}

func (k Kind) minIndirectBits() int {
	if k == KindBlocks {
		return 4
	}
	return 1
}

func (k Kind) maxIndirectBits() int {
	if k == KindBlocks {
		return 8
	}
	return 3
}

// Container is a pair (mode, values): the bit-packed array plus an
// optional small palette mapping local indices to registry ids, per
// §3/§4.5. It always holds entryCount() logical entries.
type Container struct {
	kind         Kind
	mode         Mode
	single       int32
	palette      []int32 // ModeIndirect only, first-occurrence order
	bitsPerEntry int
	data         []uint64
	registrySize int // needed to size ModeDirect bits
}

// NewSingle creates a container where every entry is id.
func NewSingle(kind Kind, registrySize int, id int32) *Container {
	return &Container{kind: kind, mode: ModeSingle, single: id, registrySize: registrySize}
}

// FromValues builds the smallest-fitting container (Single, Indirect,
// or Direct) for the given entryCount()-length slice of registry ids,
// per the encoding algorithm in §4.5 steps 1-4.
func FromValues(kind Kind, registrySize int, values []int32) (*Container, error) {
	if len(values) != kind.entryCount() {
		return nil, fmt.Errorf("palette: need %d values, got %d", kind.entryCount(), len(values))
	}

	distinct := make([]int32, 0, 16)
	seen := make(map[int32]int, 16)
	for _, v := range values {
		if _, ok := seen[v]; !ok {
			seen[v] = len(distinct)
			distinct = append(distinct, v)
		}
	}

	c := &Container{kind: kind, registrySize: registrySize}

	if len(distinct) == 1 {
		c.mode = ModeSingle
		c.single = distinct[0]
		return c, nil
	}

	k := bitsFor(len(distinct))
	if k <= kind.maxIndirectBits() {
		bitsPerEntry := k
		if bitsPerEntry < kind.minIndirectBits() {
			bitsPerEntry = kind.minIndirectBits()
		}
		c.mode = ModeIndirect
		c.palette = distinct
		c.bitsPerEntry = bitsPerEntry
		c.data = pack(values, seen, bitsPerEntry)
		return c, nil
	}

	c.mode = ModeDirect
	c.bitsPerEntry = directBits(registrySize)
	c.data = packDirect(values, c.bitsPerEntry)
	return c, nil
}

func bitsFor(paletteSize int) int {
	if paletteSize <= 1 {
		return 0
	}
	return bits.Len(uint(paletteSize - 1))
}

func directBits(registrySize int) int {
	if registrySize <= 1 {
		return 1
	}
	return bits.Len(uint(registrySize - 1))
}

// pack packs local palette indices (looked up via seen) into longs
// with no entry spanning a long boundary, x-fastest/then-z/then-y
// order already implicit in the caller's values slice ordering.
func pack(values []int32, seen map[int32]int, bitsPerEntry int) []uint64 {
	entriesPerLong := 64 / bitsPerEntry
	numLongs := (len(values) + entriesPerLong - 1) / entriesPerLong
	data := make([]uint64, numLongs)
	mask := uint64(1)<<uint(bitsPerEntry) - 1
	for i, v := range values {
		longIdx := i / entriesPerLong
		bitIdx := uint(i%entriesPerLong) * uint(bitsPerEntry)
		idx := uint64(seen[v]) & mask
		data[longIdx] |= idx << bitIdx
	}
	return data
}

func packDirect(values []int32, bitsPerEntry int) []uint64 {
	entriesPerLong := 64 / bitsPerEntry
	numLongs := (len(values) + entriesPerLong - 1) / entriesPerLong
	data := make([]uint64, numLongs)
	mask := uint64(1)<<uint(bitsPerEntry) - 1
	for i, v := range values {
		longIdx := i / entriesPerLong
		bitIdx := uint(i%entriesPerLong) * uint(bitsPerEntry)
		data[longIdx] |= (uint64(v) & mask) << bitIdx
	}
	return data
}

// Get returns the registry id stored at logical index i.
func (c *Container) Get(i int) int32 {
	switch c.mode {
	case ModeSingle:
		return c.single
	case ModeIndirect:
		idx := c.rawIndex(i)
		if int(idx) >= len(c.palette) {
			return 0
		}
		return c.palette[idx]
	default: // ModeDirect
		return int32(c.rawIndex(i))
	}
}

func (c *Container) rawIndex(i int) uint64 {
	entriesPerLong := 64 / c.bitsPerEntry
	longIdx := i / entriesPerLong
	bitIdx := uint(i%entriesPerLong) * uint(c.bitsPerEntry)
	if longIdx >= len(c.data) {
		return 0
	}
	mask := uint64(1)<<uint(c.bitsPerEntry) - 1
	return (c.data[longIdx] >> bitIdx) & mask
}

// Values expands the container back into a full entryCount()-length
// slice of registry ids (the inverse of FromValues).
func (c *Container) Values() []int32 {
	n := c.kind.entryCount()
	out := make([]int32, n)
	for i := range out {
		out[i] = c.Get(i)
	}
	return out
}

func (c *Container) Mode() Mode         { return c.mode }
func (c *Container) BitsPerEntry() int  { return c.bitsPerEntry }
func (c *Container) Palette() []int32   { return c.palette }
func (c *Container) Data() []uint64     { return c.data }
func (c *Container) SingleValue() int32 { return c.single }

func writeU64(w io.Writer, v uint64) error { return protocol.WriteInt64(w, int64(v)) }

func readU64(r io.Reader) (uint64, error) {
	v, err := protocol.ReadInt64(r)
	return uint64(v), err
}

func writeVarIntElem(w io.Writer, v int32) error {
	_, err := protocol.WriteVarInt(w, v)
	return err
}

func readVarIntElem(r io.Reader) (int32, error) {
	v, _, err := protocol.ReadVarInt(r)
	return v, err
}

// Encode writes the wire form of the container: bits_per_entry as an
// unsigned byte, then (for Single, an empty data array; for Indirect,
// the palette followed by the data array; for Direct, just the data
// array), per §4.5.
func Encode(w io.Writer, c *Container) error {
	switch c.mode {
	case ModeSingle:
		if err := protocol.WriteByte(w, 0); err != nil {
			return err
		}
		if _, err := protocol.WriteVarInt(w, c.single); err != nil {
			return err
		}
		return protocol.WritePrefixedArray(w, []uint64{}, writeU64)
	case ModeIndirect:
		if err := protocol.WriteByte(w, byte(c.bitsPerEntry)); err != nil {
			return err
		}
		if err := protocol.WritePrefixedArray(w, c.palette, writeVarIntElem); err != nil {
			return err
		}
		return protocol.WritePrefixedArray(w, c.data, writeU64)
	default: // ModeDirect
		if err := protocol.WriteByte(w, byte(c.bitsPerEntry)); err != nil {
			return err
		}
		return protocol.WritePrefixedArray(w, c.data, writeU64)
	}
}

// Decode reads the wire form Encode produces back into a Container.
// Decoders must tolerate bits_per_entry = 0 (Single) and reject
// registry ids they do not recognize as a ProtocolViolation; registry
// validation is the caller's responsibility since only the caller
// knows registrySize.
func Decode(r io.Reader, kind Kind, registrySize int) (*Container, error) {
	bitsByte, err := protocol.ReadByte(r)
	if err != nil {
		return nil, err
	}
	bitsPerEntry := int(bitsByte)
	c := &Container{kind: kind, registrySize: registrySize, bitsPerEntry: bitsPerEntry}

	if bitsPerEntry == 0 {
		c.mode = ModeSingle
		v, _, err := protocol.ReadVarInt(r)
		if err != nil {
			return nil, err
		}
		c.single = v
		if _, err := protocol.ReadPrefixedArray(r, readU64); err != nil {
			return nil, err
		}
		return c, nil
	}

	if bitsPerEntry <= kind.maxIndirectBits() {
		c.mode = ModeIndirect
		pal, err := protocol.ReadPrefixedArray(r, readVarIntElem)
		if err != nil {
			return nil, err
		}
		c.palette = pal
		data, err := protocol.ReadPrefixedArray(r, readU64)
		if err != nil {
			return nil, err
		}
		c.data = data
		return c, nil
	}

	c.mode = ModeDirect
	data, err := protocol.ReadPrefixedArray(r, readU64)
	if err != nil {
		return nil, err
	}
	c.data = data
	return c, nil
}
