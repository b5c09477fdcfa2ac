// Package nbt implements a minimal Named Binary Tag codec, sufficient
// to round-trip the chunk blobs region persistence writes to disk.
// Tag ids and big-endian layout follow the public NBT format; the
// on-disk chunk schema built from it is private to this server (see
// region.Store) and is not required to match the reference
// implementation byte-for-byte.
package nbt

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
)

type tagID byte

const (
	tagEnd tagID = iota
	tagByte
	tagShort
	tagInt
	tagLong
	tagFloat
	tagDouble
	tagByteArray
	tagString
	tagList
	tagCompound
	tagIntArray
	tagLongArray
)

// Compound is an ordered-by-key map of NBT values. Supported Go types
// for values: byte, int16, int32, int64, float32, float64, []byte,
// string, []int32, []int64, Compound, and List (a list of compounds is
// a List whose Elems are Compound values).
type Compound map[string]any

// List is a homogeneous NBT list. Elem must be one of the supported
// value types above (including nested Compound/List).
type List struct {
	Elems []any
}

// Marshal encodes a root compound tag (unnamed, per the convention
// used for standalone blobs rather than full NBT files).
func Marshal(w io.Writer, c Compound) error {
	if err := writeByte(w, byte(tagCompound)); err != nil {
		return err
	}
	if err := writeString(w, ""); err != nil {
		return err
	}
	return writeCompoundBody(w, c)
}

// Unmarshal decodes a root compound tag written by Marshal.
func Unmarshal(r io.Reader) (Compound, error) {
	id, err := readByte(r)
	if err != nil {
		return nil, err
	}
	if tagID(id) != tagCompound {
		return nil, fmt.Errorf("nbt: root tag is not a compound (id=%d)", id)
	}
	if _, err := readString(r); err != nil {
		return nil, err
	}
	return readCompoundBody(r)
}

func writeCompoundBody(w io.Writer, c Compound) error {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := writeTag(w, k, c[k]); err != nil {
			return err
		}
	}
	return writeByte(w, byte(tagEnd))
}

func readCompoundBody(r io.Reader) (Compound, error) {
	out := Compound{}
	for {
		idb, err := readByte(r)
		if err != nil {
			return nil, err
		}
		id := tagID(idb)
		if id == tagEnd {
			return out, nil
		}
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		val, err := readPayload(r, id)
		if err != nil {
			return nil, err
		}
		out[name] = val
	}
}

func writeTag(w io.Writer, name string, v any) error {
	id, err := idOf(v)
	if err != nil {
		return err
	}
	if err := writeByte(w, byte(id)); err != nil {
		return err
	}
	if err := writeString(w, name); err != nil {
		return err
	}
	return writePayload(w, id, v)
}

func idOf(v any) (tagID, error) {
	switch v.(type) {
	case byte:
		return tagByte, nil
	case int16:
		return tagShort, nil
	case int32:
		return tagInt, nil
	case int64:
		return tagLong, nil
	case float32:
		return tagFloat, nil
	case float64:
		return tagDouble, nil
	case []byte:
		return tagByteArray, nil
	case string:
		return tagString, nil
	case []int32:
		return tagIntArray, nil
	case []int64:
		return tagLongArray, nil
	case Compound:
		return tagCompound, nil
	case List:
		return tagList, nil
	default:
		return 0, fmt.Errorf("nbt: unsupported value type %T", v)
	}
}

func writePayload(w io.Writer, id tagID, v any) error {
	switch id {
	case tagByte:
		return writeByte(w, v.(byte))
	case tagShort:
		return binary.Write(w, binary.BigEndian, v.(int16))
	case tagInt:
		return binary.Write(w, binary.BigEndian, v.(int32))
	case tagLong:
		return binary.Write(w, binary.BigEndian, v.(int64))
	case tagFloat:
		return binary.Write(w, binary.BigEndian, math.Float32bits(v.(float32)))
	case tagDouble:
		return binary.Write(w, binary.BigEndian, math.Float64bits(v.(float64)))
	case tagByteArray:
		b := v.([]byte)
		if err := binary.Write(w, binary.BigEndian, int32(len(b))); err != nil {
			return err
		}
		_, err := w.Write(b)
		return err
	case tagString:
		return writeString(w, v.(string))
	case tagIntArray:
		a := v.([]int32)
		if err := binary.Write(w, binary.BigEndian, int32(len(a))); err != nil {
			return err
		}
		for _, x := range a {
			if err := binary.Write(w, binary.BigEndian, x); err != nil {
				return err
			}
		}
		return nil
	case tagLongArray:
		a := v.([]int64)
		if err := binary.Write(w, binary.BigEndian, int32(len(a))); err != nil {
			return err
		}
		for _, x := range a {
			if err := binary.Write(w, binary.BigEndian, x); err != nil {
				return err
			}
		}
		return nil
	case tagCompound:
		return writeCompoundBody(w, v.(Compound))
	case tagList:
		l := v.(List)
		var elemID tagID = tagEnd
		if len(l.Elems) > 0 {
			var err error
			elemID, err = idOf(l.Elems[0])
			if err != nil {
				return err
			}
		}
		if err := writeByte(w, byte(elemID)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, int32(len(l.Elems))); err != nil {
			return err
		}
		for _, e := range l.Elems {
			if err := writePayload(w, elemID, e); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("nbt: unhandled tag id %d", id)
}

func readPayload(r io.Reader, id tagID) (any, error) {
	switch id {
	case tagByte:
		return readByte(r)
	case tagShort:
		var v int16
		err := binary.Read(r, binary.BigEndian, &v)
		return v, err
	case tagInt:
		var v int32
		err := binary.Read(r, binary.BigEndian, &v)
		return v, err
	case tagLong:
		var v int64
		err := binary.Read(r, binary.BigEndian, &v)
		return v, err
	case tagFloat:
		var v uint32
		if err := binary.Read(r, binary.BigEndian, &v); err != nil {
			return nil, err
		}
		return math.Float32frombits(v), nil
	case tagDouble:
		var v uint64
		if err := binary.Read(r, binary.BigEndian, &v); err != nil {
			return nil, err
		}
		return math.Float64frombits(v), nil
	case tagByteArray:
		n, err := readInt32(r)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, fmt.Errorf("nbt: negative byte array length")
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		return buf, nil
	case tagString:
		return readString(r)
	case tagIntArray:
		n, err := readInt32(r)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, fmt.Errorf("nbt: negative int array length")
		}
		out := make([]int32, n)
		for i := range out {
			if out[i], err = readInt32(r); err != nil {
				return nil, err
			}
		}
		return out, nil
	case tagLongArray:
		n, err := readInt32(r)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, fmt.Errorf("nbt: negative long array length")
		}
		out := make([]int64, n)
		for i := range out {
			var v int64
			if err := binary.Read(r, binary.BigEndian, &v); err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case tagCompound:
		return readCompoundBody(r)
	case tagList:
		elemIDB, err := readByte(r)
		if err != nil {
			return nil, err
		}
		elemID := tagID(elemIDB)
		n, err := readInt32(r)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, fmt.Errorf("nbt: negative list length")
		}
		l := List{Elems: make([]any, 0, n)}
		for i := int32(0); i < n; i++ {
			v, err := readPayload(r, elemID)
			if err != nil {
				return nil, err
			}
			l.Elems = append(l.Elems, v)
		}
		return l, nil
	}
	return nil, fmt.Errorf("nbt: unhandled tag id %d", id)
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func readByte(r io.Reader) (byte, error) {
	var buf [1]byte
	_, err := io.ReadFull(r, buf[:])
	return buf[0], err
}

func readInt32(r io.Reader) (int32, error) {
	var v int32
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

func writeString(w io.Writer, s string) error {
	b := []byte(s)
	if len(b) > 0xFFFF {
		return fmt.Errorf("nbt: string too long (%d bytes)", len(b))
	}
	if err := binary.Write(w, binary.BigEndian, uint16(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
