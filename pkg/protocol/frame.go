package protocol

import (
	"bufio"
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"

	"github.com/StoreStation/vibeshitcraft-core/pkg/metrics"
)

// Packet represents a decoded Minecraft protocol packet: an id and
// the bytes that follow it, with any frame-level compression already
// removed.
type Packet struct {
	ID   int32
	Data []byte
}

// MarshalPacket creates a Packet from a packet ID and a builder function.
func MarshalPacket(id int32, builder func(w *bytes.Buffer)) *Packet {
	var buf bytes.Buffer
	builder(&buf)
	return &Packet{ID: id, Data: buf.Bytes()}
}

// maxFrameLength bounds the VarInt-prefixed frame length so a
// malicious peer cannot force an unbounded allocation; the reference
// client never sends frames anywhere near this size.
const maxFrameLength = 2 * 1024 * 1024

// Transport is a duplex byte pipe over a net.Conn (or any
// io.ReadWriteCloser) implementing C2: length-prefixed framing with
// two optional filters, cipher innermost and length-framing
// outermost. Enabling either filter is a one-way transition; once
// active it applies to all subsequent bytes in that direction.
type Transport struct {
	raw io.ReadWriteCloser

	r *bufio.Reader
	w io.Writer

	readMu  sync.Mutex
	writeMu sync.Mutex

	compressionThreshold int32 // < 0 disables compression

	closeOnce sync.Once
}

// NewTransport wraps conn with no compression and no encryption.
func NewTransport(conn io.ReadWriteCloser) *Transport {
	metrics.ConnectionsActive.Inc()
	return &Transport{
		raw:                  conn,
		r:                    bufio.NewReaderSize(conn, 4096),
		w:                    conn,
		compressionThreshold: -1,
	}
}

// Close closes the underlying connection. It is safe to call more than
// once; only the first call decrements ConnectionsActive.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() { metrics.ConnectionsActive.Dec() })
	return t.raw.Close()
}

// EnableEncryption installs AES-128/CFB8 in both directions, keyed
// and IV-seeded from the 16-byte shared secret, per §4.2. It must be
// called at most once, since encryption on/off is a one-way transition
// per connection; a second call is not detected and stacks a second
// cipher layer over the first.
func (t *Transport) EnableEncryption(sharedSecret []byte) error {
	if len(sharedSecret) != 16 {
		return fmt.Errorf("protocol: shared secret must be 16 bytes, got %d", len(sharedSecret))
	}
	block, err := aes.NewCipher(sharedSecret)
	if err != nil {
		return err
	}
	decStream := newCFB8(block, sharedSecret, false)
	encStream := newCFB8(block, sharedSecret, true)

	t.readMu.Lock()
	t.r = bufio.NewReaderSize(&cipher.StreamReader{S: decStream, R: t.r}, 4096)
	t.readMu.Unlock()

	t.writeMu.Lock()
	t.w = &cipher.StreamWriter{S: encStream, W: t.w}
	t.writeMu.Unlock()
	return nil
}

// EnableCompression turns on length-threshold compression for both
// directions with the given threshold. A negative threshold disables
// compression (the default).
func (t *Transport) EnableCompression(threshold int32) {
	t.compressionThreshold = threshold
}

// ReadPacket reads and returns one complete frame, decompressing it
// if compression is active. It blocks until a full frame has arrived.
func (t *Transport) ReadPacket() (*Packet, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	length, _, err := ReadVarInt(t.r)
	if err != nil {
		return nil, err
	}
	if length <= 0 {
		return nil, violation("frame length must be positive, got %d", length)
	}
	if length > maxFrameLength {
		return nil, violation("frame length %d exceeds maximum %d", length, maxFrameLength)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(t.r, body); err != nil {
		return nil, err
	}
	br := bytes.NewReader(body)

	if t.compressionThreshold < 0 {
		id, idLen, err := ReadVarInt(br)
		if err != nil {
			return nil, err
		}
		metrics.FramesRead.Inc()
		return &Packet{ID: id, Data: body[idLen:]}, nil
	}

	dataLength, dlLen, err := ReadVarInt(br)
	if err != nil {
		return nil, err
	}
	var payload []byte
	if dataLength == 0 {
		payload = body[dlLen:]
	} else {
		zr, err := zlib.NewReader(bytes.NewReader(body[dlLen:]))
		if err != nil {
			return nil, violation("bad compressed frame: %v", err)
		}
		defer zr.Close()
		payload = make([]byte, dataLength)
		if _, err := io.ReadFull(zr, payload); err != nil {
			return nil, violation("decompression failed: %v", err)
		}
	}
	pr := bytes.NewReader(payload)
	id, idLen, err := ReadVarInt(pr)
	if err != nil {
		return nil, err
	}
	metrics.FramesRead.Inc()
	return &Packet{ID: id, Data: payload[idLen:]}, nil
}

// WritePacket frames and writes a packet. build appends the payload
// bytes following the packet id; the length prefix and (if active)
// compression are applied automatically. Concurrent writers are
// serialized so a single write is never interleaved with another.
func (t *Transport) WritePacket(id int32, build func(w *bytes.Buffer)) error {
	var payload bytes.Buffer
	WriteVarInt(&payload, id)
	build(&payload)

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.compressionThreshold < 0 {
		var frame bytes.Buffer
		WriteVarInt(&frame, int32(payload.Len()))
		frame.Write(payload.Bytes())
		_, err := t.w.Write(frame.Bytes())
		if err == nil {
			metrics.FramesWritten.Inc()
		}
		return err
	}

	var frame bytes.Buffer
	if int32(payload.Len()) >= t.compressionThreshold {
		var compressed bytes.Buffer
		zw := zlib.NewWriter(&compressed)
		if _, err := zw.Write(payload.Bytes()); err != nil {
			zw.Close()
			return err
		}
		if err := zw.Close(); err != nil {
			return err
		}
		WriteVarInt(&frame, int32(VarIntSize(int32(payload.Len())))+int32(compressed.Len()))
		WriteVarInt(&frame, int32(payload.Len()))
		frame.Write(compressed.Bytes())
	} else {
		WriteVarInt(&frame, int32(VarIntSize(0))+int32(payload.Len()))
		WriteVarInt(&frame, 0)
		frame.Write(payload.Bytes())
	}
	_, err := t.w.Write(frame.Bytes())
	if err == nil {
		metrics.FramesWritten.Inc()
	}
	return err
}

// cfb8 implements AES CFB8-mode stream cipher, which the standard
// library's crypto/cipher package does not provide directly (it only
// offers CFB with a full block segment size). One byte of keystream
// is derived per output byte by re-encrypting a shift register seeded
// with the IV.
type cfb8 struct {
	block     cipher.Block
	shift     []byte
	tmp       []byte
	blockSize int
	encrypt   bool
}

func newCFB8(block cipher.Block, iv []byte, encrypt bool) cipher.Stream {
	bs := block.BlockSize()
	shift := make([]byte, bs)
	copy(shift, iv)
	return &cfb8{
		block:     block,
		shift:     shift,
		tmp:       make([]byte, bs),
		blockSize: bs,
		encrypt:   encrypt,
	}
}

func (c *cfb8) XORKeyStream(dst, src []byte) {
	for i := range src {
		c.block.Encrypt(c.tmp, c.shift)
		var out byte
		if c.encrypt {
			out = src[i] ^ c.tmp[0]
			c.feed(out)
		} else {
			out = src[i] ^ c.tmp[0]
			c.feed(src[i])
		}
		dst[i] = out
	}
}

func (c *cfb8) feed(b byte) {
	copy(c.shift, c.shift[1:])
	c.shift[c.blockSize-1] = b
}
