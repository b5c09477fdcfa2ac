package chat

import (
	"encoding/json"
	"testing"
)

func TestTextSetsRootType(t *testing.T) {
	msg := Text("hello")
	if msg.Type != "text" {
		t.Errorf("Text().Type = %q, want %q", msg.Type, "text")
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(msg.String()), &decoded); err != nil {
		t.Fatalf("String() produced invalid JSON: %v", err)
	}
	if decoded["type"] != "text" {
		t.Errorf("serialized type = %v, want %q", decoded["type"], "text")
	}
	if decoded["text"] != "hello" {
		t.Errorf("serialized text = %v, want %q", decoded["text"], "hello")
	}
}

func TestColoredSetsColorAndType(t *testing.T) {
	msg := Colored("warning", "red")
	if msg.Color != "red" || msg.Type != "text" {
		t.Errorf("Colored() = %+v, want Type=text Color=red", msg)
	}
}

func TestTranslatefCarriesExtra(t *testing.T) {
	msg := Translatef("%s joined the game", Text("Notch"))
	if len(msg.Extra) != 1 || msg.Extra[0].Text != "Notch" {
		t.Fatalf("Translatef() Extra = %+v, want one Message{Text: Notch}", msg.Extra)
	}
}

func TestSystemNoticeUsesWarningColor(t *testing.T) {
	msg := SystemNotice("chunk failed to load")
	if msg.Color != "yellow" {
		t.Errorf("SystemNotice().Color = %q, want %q", msg.Color, "yellow")
	}
	if msg.Text != "chunk failed to load" {
		t.Errorf("SystemNotice().Text = %q, want %q", msg.Text, "chunk failed to load")
	}
}
