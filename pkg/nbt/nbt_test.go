package nbt

import (
	"bytes"
	"reflect"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	in := Compound{
		"xPos": int32(12),
		"zPos": int32(-3),
		"name": "overworld",
		"sections": List{Elems: []any{
			Compound{"Y": byte(0), "data": []int64{1, 2, 3}},
			Compound{"Y": byte(1), "data": []int64{4, 5, 6}},
		}},
		"palette": []int32{0, 1, 2, 3},
		"raw":     []byte{0xDE, 0xAD, 0xBE, 0xEF},
		"height":  float64(3.5),
	}

	var buf bytes.Buffer
	if err := Marshal(&buf, in); err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	out, err := Unmarshal(&buf)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if out["xPos"].(int32) != 12 {
		t.Errorf("xPos = %v, want 12", out["xPos"])
	}
	if out["zPos"].(int32) != -3 {
		t.Errorf("zPos = %v, want -3", out["zPos"])
	}
	if out["name"].(string) != "overworld" {
		t.Errorf("name = %v, want overworld", out["name"])
	}
	if !reflect.DeepEqual(out["palette"].([]int32), []int32{0, 1, 2, 3}) {
		t.Errorf("palette = %v", out["palette"])
	}
	if !reflect.DeepEqual(out["raw"].([]byte), []byte{0xDE, 0xAD, 0xBE, 0xEF}) {
		t.Errorf("raw = %v", out["raw"])
	}
	sections := out["sections"].(List)
	if len(sections.Elems) != 2 {
		t.Fatalf("sections len = %d, want 2", len(sections.Elems))
	}
	sec0 := sections.Elems[0].(Compound)
	if sec0["Y"].(byte) != 0 {
		t.Errorf("sections[0].Y = %v, want 0", sec0["Y"])
	}
	if !reflect.DeepEqual(sec0["data"].([]int64), []int64{1, 2, 3}) {
		t.Errorf("sections[0].data = %v", sec0["data"])
	}
}

func TestEmptyCompound(t *testing.T) {
	var buf bytes.Buffer
	if err := Marshal(&buf, Compound{}); err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out, err := Unmarshal(&buf)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("len(out) = %d, want 0", len(out))
	}
}
