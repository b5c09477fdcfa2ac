// Package protocol implements the Java Edition wire codec (C1) and
// frame transport (C2); the protocol state machine (C3) lives in
// pkg/server (state.go).
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// ProtocolViolation is the single error kind C1/C3 return for
// malformed input or an out-of-state packet. Codec operations are
// total on well-formed input; on failure the caller's read cursor has
// not consumed the offending bytes beyond what was necessary to
// detect the violation.
type ProtocolViolation struct {
	Reason string
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("protocol violation: %s", e.Reason)
}

func violation(format string, args ...any) error {
	return &ProtocolViolation{Reason: fmt.Sprintf(format, args...)}
}

// MaxStringCodeUnits is the default maximum UTF-16 code-unit length
// callers allow for a protocol string, per the Java Edition reference
// (chat messages negotiate their own, smaller limits elsewhere).
const MaxStringCodeUnits = 32767

// ReadVarInt reads a variable-length integer from the reader.
// Minecraft protocol VarInts are at most 5 bytes.
func ReadVarInt(r io.Reader) (int32, int, error) {
	var result int32
	var numRead int
	var buf [1]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, numRead, err
		}
		b := buf[0]
		result |= int32(b&0x7F) << (7 * numRead)
		numRead++
		if numRead > 5 {
			return 0, numRead, violation("VarInt is too big")
		}
		if (b & 0x80) == 0 {
			break
		}
	}
	return result, numRead, nil
}

// WriteVarInt writes a variable-length integer to the writer.
func WriteVarInt(w io.Writer, value int32) (int, error) {
	var buf [5]byte
	n := PutVarInt(buf[:], value)
	return w.Write(buf[:n])
}

// PutVarInt encodes a VarInt into the buffer and returns the number of bytes written.
func PutVarInt(buf []byte, value int32) int {
	uval := uint32(value)
	n := 0
	for {
		if (uval & ^uint32(0x7F)) == 0 {
			buf[n] = byte(uval)
			n++
			return n
		}
		buf[n] = byte(uval&0x7F) | 0x80
		n++
		uval >>= 7
	}
}

// VarIntSize returns the number of bytes needed to encode a VarInt.
func VarIntSize(value int32) int {
	uval := uint32(value)
	size := 0
	for {
		size++
		if (uval & ^uint32(0x7F)) == 0 {
			return size
		}
		uval >>= 7
	}
}

// ReadVarLong reads a variable-length long from the reader.
func ReadVarLong(r io.Reader) (int64, int, error) {
	var result int64
	var numRead int
	var buf [1]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, numRead, err
		}
		b := buf[0]
		result |= int64(b&0x7F) << (7 * numRead)
		numRead++
		if numRead > 10 {
			return 0, numRead, violation("VarLong is too big")
		}
		if (b & 0x80) == 0 {
			break
		}
	}
	return result, numRead, nil
}

// WriteVarLong writes a variable-length long to the writer.
func WriteVarLong(w io.Writer, value int64) (int, error) {
	uval := uint64(value)
	var buf [10]byte
	n := 0
	for {
		if (uval & ^uint64(0x7F)) == 0 {
			buf[n] = byte(uval)
			n++
			break
		}
		buf[n] = byte(uval&0x7F) | 0x80
		n++
		uval >>= 7
	}
	return w.Write(buf[:n])
}

// ReadString reads a length-prefixed UTF-8 string. maxCodeUnits bounds
// the decoded string's length in UTF-16 code units (as the reference
// protocol specifies); exceeding it is a ProtocolViolation.
func ReadString(r io.Reader, maxCodeUnits ...int) (string, error) {
	limit := MaxStringCodeUnits
	if len(maxCodeUnits) > 0 {
		limit = maxCodeUnits[0]
	}
	length, _, err := ReadVarInt(r)
	if err != nil {
		return "", err
	}
	// A UTF-8 code point is at most 4 bytes and encodes at most 2
	// UTF-16 code units (surrogate pairs), so 4 bytes per code unit
	// bounds the byte length we're willing to allocate up-front.
	if length < 0 || length > int32(limit)*4 {
		return "", violation("string length out of range: %d", length)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	s := string(buf)
	if utf16Len(s) > limit {
		return "", violation("string exceeds max length of %d", limit)
	}
	return s, nil
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if r > 0xFFFF {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// WriteString writes a length-prefixed UTF-8 string.
func WriteString(w io.Writer, s string) error {
	b := []byte(s)
	if _, err := WriteVarInt(w, int32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// ReadUint16 reads a big-endian unsigned 16-bit integer.
func ReadUint16(r io.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

// WriteUint16 writes a big-endian unsigned 16-bit integer.
func WriteUint16(w io.Writer, v uint16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// ReadInt16 reads a big-endian signed 16-bit integer.
func ReadInt16(r io.Reader) (int16, error) {
	v, err := ReadUint16(r)
	return int16(v), err
}

// WriteInt16 writes a big-endian signed 16-bit integer.
func WriteInt16(w io.Writer, v int16) error {
	return WriteUint16(w, uint16(v))
}

// ReadInt32 reads a big-endian signed 32-bit integer.
func ReadInt32(r io.Reader) (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(buf[:])), nil
}

// WriteInt32 writes a big-endian signed 32-bit integer.
func WriteInt32(w io.Writer, v int32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	_, err := w.Write(buf[:])
	return err
}

// ReadInt64 reads a big-endian signed 64-bit integer.
func ReadInt64(r io.Reader) (int64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(buf[:])), nil
}

// WriteInt64 writes a big-endian signed 64-bit integer.
func WriteInt64(w io.Writer, v int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	_, err := w.Write(buf[:])
	return err
}

// ReadFloat32 reads a big-endian 32-bit float.
func ReadFloat32(r io.Reader) (float32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.BigEndian.Uint32(buf[:])), nil
}

// WriteFloat32 writes a big-endian 32-bit float.
func WriteFloat32(w io.Writer, v float32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], math.Float32bits(v))
	_, err := w.Write(buf[:])
	return err
}

// ReadFloat64 reads a big-endian 64-bit float.
func ReadFloat64(r io.Reader) (float64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(buf[:])), nil
}

// WriteFloat64 writes a big-endian 64-bit float.
func WriteFloat64(w io.Writer, v float64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(v))
	_, err := w.Write(buf[:])
	return err
}

// ReadBool reads a boolean.
func ReadBool(r io.Reader) (bool, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return false, err
	}
	return buf[0] != 0, nil
}

// WriteBool writes a boolean.
func WriteBool(w io.Writer, v bool) error {
	var buf [1]byte
	if v {
		buf[0] = 1
	}
	_, err := w.Write(buf[:])
	return err
}

// ReadByte reads a single byte.
func ReadByte(r io.Reader) (byte, error) {
	var buf [1]byte
	_, err := io.ReadFull(r, buf[:])
	return buf[0], err
}

// WriteByte writes a single byte.
func WriteByte(w io.Writer, v byte) error {
	_, err := w.Write([]byte{v})
	return err
}

// ReadUUID reads a 128-bit UUID as two big-endian 64-bit halves.
func ReadUUID(r io.Reader) ([16]byte, error) {
	var uuid [16]byte
	_, err := io.ReadFull(r, uuid[:])
	return uuid, err
}

// WriteUUID writes a 128-bit UUID.
func WriteUUID(w io.Writer, uuid [16]byte) error {
	_, err := w.Write(uuid[:])
	return err
}

// ReadPosition reads a Minecraft 1.21.7 position: (x:26, z:26, y:12)
// packed big-endian into a 64-bit word, two's-complement sign
// extension on decode.
func ReadPosition(r io.Reader) (x, y, z int32, err error) {
	val, err := ReadInt64(r)
	if err != nil {
		return 0, 0, 0, err
	}
	x = int32(val >> 38)
	z = int32(val << 26 >> 38)
	y = int32(val << 52 >> 52)
	return x, y, z, nil
}

// WritePosition writes a Minecraft 1.21.7 position.
func WritePosition(w io.Writer, x, y, z int32) error {
	val := (int64(x&0x3FFFFFF) << 38) | (int64(z&0x3FFFFFF) << 12) | int64(y&0xFFF)
	return WriteInt64(w, val)
}

// ReadBitSet reads a length-prefixed BitSet: a VarInt word count
// followed by that many 64-bit words, little-endian bit order within
// a word (i.e. bit i of the set lives at word i/64, bit i%64).
func ReadBitSet(r io.Reader) ([]uint64, error) {
	n, _, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, violation("negative BitSet word count: %d", n)
	}
	words := make([]uint64, n)
	for i := range words {
		v, err := ReadInt64(r)
		if err != nil {
			return nil, err
		}
		words[i] = uint64(v)
	}
	return words, nil
}

// WriteBitSet writes a BitSet in the wire form ReadBitSet accepts.
func WriteBitSet(w io.Writer, words []uint64) error {
	if _, err := WriteVarInt(w, int32(len(words))); err != nil {
		return err
	}
	for _, v := range words {
		if err := WriteInt64(w, int64(v)); err != nil {
			return err
		}
	}
	return nil
}

// ReadPrefixedArray reads a VarInt count followed by that many
// elements, each decoded by elem.
func ReadPrefixedArray[T any](r io.Reader, elem func(io.Reader) (T, error)) ([]T, error) {
	n, _, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, violation("negative array count: %d", n)
	}
	out := make([]T, n)
	for i := range out {
		v, err := elem(r)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// WritePrefixedArray writes a VarInt count followed by each element,
// encoded by elem.
func WritePrefixedArray[T any](w io.Writer, items []T, elem func(io.Writer, T) error) error {
	if _, err := WriteVarInt(w, int32(len(items))); err != nil {
		return err
	}
	for _, it := range items {
		if err := elem(w, it); err != nil {
			return err
		}
	}
	return nil
}

// ReadIDOrX reads the "ID or X" encoding: a VarInt tag where 0 means
// an inline value follows (decoded by readInline) and a non-zero tag
// n means registry id n-1. ok is false when an inline value was read.
func ReadIDOrX[T any](r io.Reader, readInline func(io.Reader) (T, error)) (registryID int32, inline T, ok bool, err error) {
	tag, _, err := ReadVarInt(r)
	if err != nil {
		return 0, inline, false, err
	}
	if tag == 0 {
		v, err := readInline(r)
		return 0, v, false, err
	}
	return tag - 1, inline, true, nil
}
