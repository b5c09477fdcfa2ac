// Package chat builds the JSON text component spec.md §6 pins as the
// payload of the System Chat Message packet (0x6C): a VarInt-prefixed
// JSON string followed by the overlay boolean. 1.21.7 text components
// carry an explicit "type" discriminator on the root object (absent
// from the legacy 1.8 chat JSON the teacher targeted), so Message
// stamps it rather than relying on clients defaulting an omitted
// field.
package chat

import "encoding/json"

// componentType is the only root-component kind this core emits: a
// plain text component. Click/hover events and translated components
// are Non-goals per spec.md's gameplay-decoration boundary.
const componentType = "text"

// Message represents a Minecraft JSON chat message.
type Message struct {
	Type          string    `json:"type"`
	Text          string    `json:"text"`
	Bold          bool      `json:"bold,omitempty"`
	Italic        bool      `json:"italic,omitempty"`
	Underlined    bool      `json:"underlined,omitempty"`
	Strikethrough bool      `json:"strikethrough,omitempty"`
	Obfuscated    bool      `json:"obfuscated,omitempty"`
	Color         string    `json:"color,omitempty"`
	Extra         []Message `json:"extra,omitempty"`
}

// String serializes the message to JSON.
func (m Message) String() string {
	b, _ := json.Marshal(m)
	return string(b)
}

// Text creates a simple text message.
func Text(text string) Message {
	return Message{Type: componentType, Text: text}
}

// Colored creates a colored text message.
func Colored(text, color string) Message {
	return Message{Type: componentType, Text: text, Color: color}
}

// Translatef creates a simple formatted message.
func Translatef(format string, args ...Message) Message {
	msg := Message{Type: componentType, Text: format}
	if len(args) > 0 {
		msg.Extra = args
	}
	return msg
}

// SystemNotice builds the message a core-level event (a failed chunk
// generation, an admin kick) delivers over the system chat channel,
// per spec.md §7's "surfaced to the gameplay layer as an event" —
// always rendered in a single warning color so it reads distinctly
// from a gameplay handler's own chat traffic.
func SystemNotice(text string) Message {
	return Colored(text, "yellow")
}
