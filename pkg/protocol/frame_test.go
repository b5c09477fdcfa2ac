package protocol

import (
	"bytes"
	"net"
	"testing"
)

func TestWritePacketReadPacketRoundTrip(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	writer := NewTransport(serverConn)
	reader := NewTransport(clientConn)

	done := make(chan error, 1)
	go func() {
		done <- writer.WritePacket(7, func(w *bytes.Buffer) {
			WriteString(w, "hello")
		})
	}()

	pkt, err := reader.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket() error: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("WritePacket() error: %v", err)
	}
	if pkt.ID != 7 {
		t.Errorf("ID = %d, want 7", pkt.ID)
	}
	got, err := ReadString(bytes.NewReader(pkt.Data))
	if err != nil {
		t.Fatalf("ReadString() error: %v", err)
	}
	if got != "hello" {
		t.Errorf("payload = %q, want %q", got, "hello")
	}
}

func TestCompressionRoundTripAboveThreshold(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	writer := NewTransport(serverConn)
	reader := NewTransport(clientConn)
	writer.EnableCompression(8)
	reader.EnableCompression(8)

	payload := bytes.Repeat([]byte("x"), 64)
	done := make(chan error, 1)
	go func() {
		done <- writer.WritePacket(3, func(w *bytes.Buffer) {
			w.Write(payload)
		})
	}()

	pkt, err := reader.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket() error: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("WritePacket() error: %v", err)
	}
	if pkt.ID != 3 {
		t.Errorf("ID = %d, want 3", pkt.ID)
	}
	if !bytes.Equal(pkt.Data, payload) {
		t.Errorf("payload mismatch: got %d bytes, want %d bytes", len(pkt.Data), len(payload))
	}
}

func TestEncryptionRoundTrip(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	secret := bytes.Repeat([]byte{0x42}, 16)
	writer := NewTransport(serverConn)
	reader := NewTransport(clientConn)
	if err := writer.EnableEncryption(secret); err != nil {
		t.Fatalf("EnableEncryption() (writer) error: %v", err)
	}
	if err := reader.EnableEncryption(secret); err != nil {
		t.Fatalf("EnableEncryption() (reader) error: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- writer.WritePacket(1, func(w *bytes.Buffer) {
			WriteString(w, "secret message")
		})
	}()

	pkt, err := reader.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket() error: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("WritePacket() error: %v", err)
	}
	got, err := ReadString(bytes.NewReader(pkt.Data))
	if err != nil {
		t.Fatalf("ReadString() error: %v", err)
	}
	if got != "secret message" {
		t.Errorf("payload = %q, want %q", got, "secret message")
	}
}

func TestEnableEncryptionRejectsWrongSecretLength(t *testing.T) {
	serverConn, _ := net.Pipe()
	defer serverConn.Close()

	transport := NewTransport(serverConn)
	if err := transport.EnableEncryption([]byte{1, 2, 3}); err == nil {
		t.Error("EnableEncryption() with a non-16-byte secret error = nil, want error")
	}
}
