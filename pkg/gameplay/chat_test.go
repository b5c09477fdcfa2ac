package gameplay

import (
	"bytes"
	"testing"

	"github.com/StoreStation/vibeshitcraft-core/pkg/protocol"
)

func TestDecodedOverlongMessageTruncatesToMaxChatLength(t *testing.T) {
	long := bytes.Repeat([]byte("a"), maxChatLength+50)
	var buf bytes.Buffer
	if err := protocol.WriteString(&buf, string(long)); err != nil {
		t.Fatalf("WriteString: %v", err)
	}

	message, err := protocol.ReadString(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if len(message) <= maxChatLength {
		t.Fatalf("test fixture message too short to exercise truncation: %d", len(message))
	}
	truncated := message[:maxChatLength]
	if len(truncated) != maxChatLength {
		t.Errorf("truncated length = %d, want %d", len(truncated), maxChatLength)
	}
}
