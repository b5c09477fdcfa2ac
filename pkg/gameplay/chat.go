// Package gameplay is the thin demonstration handler spec.md §6 calls
// an external collaborator: `on_packet(session, decoded_packet)`
// callbacks registered per packet id. Combat, crafting, inventory,
// and village generation — the bulk of the teacher's gameplay layer —
// are an explicit Non-goal ("concrete gameplay mutation logic... out
// of scope") and are not reimplemented here; this package exists only
// to exercise the RegisterHandler wiring end-to-end with something a
// reader can run: chat.
//
// Grounded on the teacher's handlePlayPacket chat case (pkg/server/
// packet_handler.go) and handleCommand (pkg/server/command.go), now
// adapted to the new Session/PacketHandler shape instead of the
// teacher's Player/*bytes.Reader pair.
package gameplay

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/StoreStation/vibeshitcraft-core/pkg/chat"
	"github.com/StoreStation/vibeshitcraft-core/pkg/protocol"
	"github.com/StoreStation/vibeshitcraft-core/pkg/server"
)

// maxChatLength matches the teacher's own truncation bound.
const maxChatLength = 256

// HandleChat decodes a serverbound chat packet and echoes it back as
// a formatted system chat message, the same "<name> message" shape
// the teacher's packet_handler.go built via chat.Colored+chat.Text.
// A message starting with "/" is treated as an unrecognized command
// rather than dispatched to a command table — commands are gameplay
// surface the Non-goal excludes, not wire-codec surface.
func HandleChat(sess *server.Session, data []byte) error {
	message, err := protocol.ReadString(bytes.NewReader(data))
	if err != nil {
		return err
	}
	if len(message) > maxChatLength {
		message = message[:maxChatLength]
	}

	if strings.HasPrefix(message, "/") {
		return sess.SendSystemChat(chat.Colored(fmt.Sprintf("Unknown command: %s", message), "red").String())
	}

	formatted := chat.Text("")
	formatted.Extra = []chat.Message{
		chat.Colored("<"+sess.Username()+"> ", "gray"),
		chat.Text(message),
	}
	return sess.SendSystemChat(formatted.String())
}
