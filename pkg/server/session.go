package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/StoreStation/vibeshitcraft-core/pkg/auth"
	"github.com/StoreStation/vibeshitcraft-core/pkg/chat"
	"github.com/StoreStation/vibeshitcraft-core/pkg/palette"
	"github.com/StoreStation/vibeshitcraft-core/pkg/protocol"
	"github.com/StoreStation/vibeshitcraft-core/pkg/view"
	"github.com/StoreStation/vibeshitcraft-core/pkg/world"
)

// Packet ids this driver recognizes, scoped per state the way the
// teacher's handleConnection/handlePlayPacket switch on pkt.ID. Only
// the state-machine-critical and view-window-critical ids spec.md §6
// pins are named; a full registry data/feature-flags/plugin-channel
// Configuration exchange is out of scope (spec.md's Non-goal on
// bit-exact reference-server compatibility) — this driver completes
// Configuration immediately after Login.
const (
	idHandshake = 0x00

	idStatusRequest  = 0x00
	idStatusPing     = 0x01
	idStatusResponse = 0x00
	idStatusPong     = 0x01

	idLoginStart          = 0x00
	idEncryptionResponse  = 0x01
	idLoginAcknowledgedSB = 0x03
	idLoginDisconnect     = 0x00
	idEncryptionRequest   = 0x01
	idLoginSuccess        = 0x02
	idSetCompression      = 0x03

	idFinishConfigurationCB  = 0x03
	idFinishConfigurationAck = 0x03

	idKeepAliveCB            = 0x26
	idKeepAliveSB            = 0x1a
	idChatMessageSB          = 0x07
	idSystemChatCB           = 0x6c
	idSetPlayerPositionSB    = 0x1c
	idSetPlayerPositionRotSB = 0x1d
	idJoinGameCB             = 0x2b
	idSpawnPositionCB        = 0x61
	idSynchronizePlayerPosCB = 0x41
	idSetChunkCacheCenterCB  = 0x57
	idChunkDataAndLightCB    = 0x27
	idUnloadChunkCB          = 0x21
	idPlayDisconnectCB       = 0x1d
)

// PacketChatMessage is the serverbound Play-state packet id gameplay
// handlers register against via Server.RegisterHandler to receive
// chat messages; exported since packet ids are otherwise an internal
// wire-layer detail the gameplay package has no other way to name.
const PacketChatMessage = idChatMessageSB

// idleTimeout is the default Play-state idle timeout: no packet
// received for this long closes the connection, per spec.md §5.
const idleTimeout = 30 * time.Second

// PacketHandler is the gameplay extension point spec.md §6 names as
// `on_packet(session, decoded_packet) -> outgoing_packets`: a callback
// registered per packet id. The core dispatches KeepAlive and
// position updates itself (they drive C9 directly); everything else
// in Play state — chat, block interaction — is handed to whatever
// handler Server.RegisterHandler wired up, or silently dropped if
// none is registered, matching spec.md's "gameplay mutation... out of
// scope" boundary.
type PacketHandler func(sess *Session, data []byte) error

// Session owns one connection's state per spec.md §3: the transport
// (cipher + compression), the negotiated protocol state, the player's
// profile once authenticated, the view window, and the teleport
// confirmation sequence counter. It generalizes the teacher's Player
// struct, which held the same responsibilities inline in server.go.
type Session struct {
	srv       *Server
	conn      net.Conn
	transport *protocol.Transport
	state     State

	uuid     uuid.UUID
	username string

	x, y, z    float64
	yaw, pitch float32

	teleportSeq int32
	window      *view.Window

	verifyToken []byte

	log *zap.Logger
}

func newSession(srv *Server, conn net.Conn) *Session {
	return &Session{
		srv:       srv,
		conn:      conn,
		transport: protocol.NewTransport(conn),
		state:     StateHandshaking,
		log:       srv.log,
	}
}

// Serve drives the connection until it closes, mirroring the
// teacher's handleConnection read loop but switching on the typed C3
// State instead of an untyped int, and delegating the legality check
// to NextState rather than inlining it per case. Each read is bounded
// by idleTimeout, matching the teacher's own per-read
// SetReadDeadline in handleConnection.
func (sess *Session) Serve() {
	defer sess.close()

	for {
		sess.conn.SetReadDeadline(time.Now().Add(idleTimeout))
		pkt, err := sess.transport.ReadPacket()
		if err != nil {
			return
		}
		if err := sess.dispatch(pkt); err != nil {
			sess.log.Warn("session closing on dispatch error", zap.Error(err), zap.String("state", sess.state.String()))
			return
		}
		if sess.state == StateClosed {
			return
		}
	}
}

func (sess *Session) close() {
	if sess.window != nil {
		sess.window.Close()
	}
	sess.transport.Close()
	sess.srv.removeSession(sess)
}

func (sess *Session) dispatch(pkt *protocol.Packet) error {
	r := bytes.NewReader(pkt.Data)
	switch sess.state {
	case StateHandshaking:
		return sess.handleHandshake(r, pkt.ID)
	case StateStatus:
		return sess.handleStatusPacket(r, pkt.ID)
	case StateLogin:
		return sess.handleLoginPacket(r, pkt.ID)
	case StateConfiguration:
		return sess.handleConfigurationPacket(r, pkt.ID)
	case StatePlay:
		return sess.handlePlayPacket(r, pkt)
	default:
		return fmt.Errorf("server: packet received in terminal state")
	}
}

func (sess *Session) handleHandshake(r *bytes.Reader, id int32) error {
	if id != idHandshake {
		return &protocol.ProtocolViolation{Reason: "expected Handshake packet"}
	}
	if _, _, err := protocol.ReadVarInt(r); err != nil { // protocol_version
		return err
	}
	if _, err := protocol.ReadString(r); err != nil { // server address
		return err
	}
	if _, err := protocol.ReadUint16(r); err != nil { // server port
		return err
	}
	nextState, _, err := protocol.ReadVarInt(r)
	if err != nil {
		return err
	}

	var trigger string
	switch nextState {
	case 1:
		trigger = TriggerHandshakeStatus
	case 2:
		trigger = TriggerHandshakeLogin
	default:
		return &protocol.ProtocolViolation{Reason: fmt.Sprintf("unknown next_state %d", nextState)}
	}
	next, ok := NextState(sess.state, trigger)
	if !ok {
		return &protocol.ProtocolViolation{Reason: "invalid handshake transition"}
	}
	sess.state = next
	return nil
}

func (sess *Session) handleStatusPacket(r *bytes.Reader, id int32) error {
	switch id {
	case idStatusRequest:
		return sess.sendStatusResponse()
	case idStatusPing:
		payload, err := protocol.ReadInt64(r)
		if err != nil {
			return err
		}
		if err := sess.transport.WritePacket(idStatusPong, func(w *bytes.Buffer) {
			protocol.WriteInt64(w, payload)
		}); err != nil {
			return err
		}
		next, _ := NextState(sess.state, TriggerPing)
		sess.state = next
		return nil
	default:
		return &protocol.ProtocolViolation{Reason: "unexpected packet in Status state"}
	}
}

func (sess *Session) sendStatusResponse() error {
	resp := map[string]any{
		"version": map[string]any{
			"name":     "1.21.7",
			"protocol": 769,
		},
		"players": map[string]any{
			"max":    sess.srv.maxPlayers,
			"online": sess.srv.playerCount(),
			"sample": []any{},
		},
		"description": map[string]any{"text": defaultMOTD},
	}
	body, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return sess.transport.WritePacket(idStatusResponse, func(w *bytes.Buffer) {
		protocol.WriteString(w, string(body))
	})
}

func (sess *Session) handleLoginPacket(r *bytes.Reader, id int32) error {
	switch id {
	case idLoginStart:
		return sess.handleLoginStart(r)
	case idEncryptionResponse:
		return sess.handleEncryptionResponse(r)
	case idLoginAcknowledgedSB:
		next, ok := NextState(sess.state, TriggerLoginAcknowledged)
		if !ok {
			return &protocol.ProtocolViolation{Reason: "LoginAcknowledged out of order"}
		}
		sess.state = next
		return sess.enterConfiguration()
	default:
		return &protocol.ProtocolViolation{Reason: "unexpected packet in Login state"}
	}
}

func (sess *Session) handleLoginStart(r *bytes.Reader) error {
	username, err := protocol.ReadString(r, 16)
	if err != nil {
		return err
	}
	sess.username = username

	if !sess.srv.cfg.OnlineMode {
		sess.uuid = auth.OfflineUUID(username)
		return sess.finishLogin()
	}

	token, err := auth.NewVerifyToken()
	if err != nil {
		return err
	}
	sess.verifyToken = token
	return sess.transport.WritePacket(idEncryptionRequest, func(w *bytes.Buffer) {
		protocol.WriteString(w, "")
		protocol.WritePrefixedArray(w, sess.srv.keyPair.PublicDER, protocol.WriteByte)
		protocol.WritePrefixedArray(w, token, protocol.WriteByte)
		protocol.WriteBool(w, true)
	})
}

func (sess *Session) handleEncryptionResponse(r *bytes.Reader) error {
	encSecret, err := protocol.ReadPrefixedArray(r, protocol.ReadByte)
	if err != nil {
		return err
	}
	encToken, err := protocol.ReadPrefixedArray(r, protocol.ReadByte)
	if err != nil {
		return err
	}

	ok, err := sess.srv.keyPair.VerifyToken(encToken, sess.verifyToken)
	if err != nil {
		return &protocol.Authentication{Reason: err.Error()}
	}
	if !ok {
		return &protocol.Authentication{Reason: "verify token mismatch"}
	}

	secret, err := sess.srv.keyPair.DecryptSharedSecret(encSecret)
	if err != nil {
		return &protocol.Authentication{Reason: err.Error()}
	}
	if err := sess.transport.EnableEncryption(secret); err != nil {
		return &protocol.Authentication{Reason: err.Error()}
	}

	hash := auth.SessionHash("", secret, sess.srv.keyPair.PublicDER)
	playerUUID, name, err := sess.srv.verifier.Verify(sess.username, hash)
	if err != nil {
		return &protocol.Authentication{Reason: err.Error()}
	}
	sess.uuid = playerUUID
	sess.username = name
	return sess.finishLogin()
}

func (sess *Session) finishLogin() error {
	threshold := sess.srv.cfg.CompressionThreshold
	if threshold >= 0 {
		if err := sess.transport.WritePacket(idSetCompression, func(w *bytes.Buffer) {
			protocol.WriteVarInt(w, int32(threshold))
		}); err != nil {
			return err
		}
		sess.transport.EnableCompression(int32(threshold))
	}
	return sess.transport.WritePacket(idLoginSuccess, func(w *bytes.Buffer) {
		protocol.WriteUUID(w, sess.uuid)
		protocol.WriteString(w, sess.username)
		protocol.WriteVarInt(w, 0) // no profile properties
	})
}

func (sess *Session) enterConfiguration() error {
	return sess.transport.WritePacket(idFinishConfigurationCB, func(w *bytes.Buffer) {})
}

func (sess *Session) handleConfigurationPacket(r *bytes.Reader, id int32) error {
	if id != idFinishConfigurationAck {
		// Plugin channels / client information / feature-flag acks are
		// accepted and ignored; only the finish ack drives the state
		// machine.
		return nil
	}
	next, ok := NextState(sess.state, TriggerFinishConfigAck)
	if !ok {
		return &protocol.ProtocolViolation{Reason: "FinishConfigurationAck out of order"}
	}
	sess.state = next
	return sess.enterPlay()
}

func (sess *Session) enterPlay() error {
	sess.srv.addSession(sess)

	dim := sess.srv.dimension
	spawnSurface := sess.srv.generator.SurfaceHeight(8, 8)
	sess.x, sess.y, sess.z = 8, float64(spawnSurface)+1, 8

	if err := sess.transport.WritePacket(idJoinGameCB, func(w *bytes.Buffer) {
		protocol.WriteInt32(w, sess.srv.nextEntityID())
		protocol.WriteBool(w, false) // hardcore
		protocol.WriteString(w, dim.Name)
		protocol.WriteVarInt(w, 10) // max players hint
		protocol.WriteVarInt(w, int32(sess.srv.cfg.ViewDistance))
	}); err != nil {
		return err
	}
	if err := sess.transport.WritePacket(idSpawnPositionCB, func(w *bytes.Buffer) {
		protocol.WritePosition(w, 8, int32(sess.y), 8)
	}); err != nil {
		return err
	}
	sess.teleportSeq++
	if err := sess.transport.WritePacket(idSynchronizePlayerPosCB, func(w *bytes.Buffer) {
		protocol.WriteFloat64(w, sess.x)
		protocol.WriteFloat64(w, sess.y)
		protocol.WriteFloat64(w, sess.z)
		protocol.WriteFloat32(w, sess.yaw)
		protocol.WriteFloat32(w, sess.pitch)
		protocol.WriteByte(w, 0)
		protocol.WriteVarInt(w, sess.teleportSeq)
	}); err != nil {
		return err
	}

	sess.window = view.New(sess.srv.cache, int32(sess.srv.cfg.ViewDistance), sess.log)
	return sess.window.Move(sess.x, sess.z, sess)
}

func (sess *Session) handlePlayPacket(r *bytes.Reader, pkt *protocol.Packet) error {
	switch pkt.ID {
	case idKeepAliveSB:
		_, err := protocol.ReadInt64(r)
		return err
	case idSetPlayerPositionSB, idSetPlayerPositionRotSB:
		x, err := protocol.ReadFloat64(r)
		if err != nil {
			return err
		}
		_, err = protocol.ReadFloat64(r) // feet Y, unused by C9
		if err != nil {
			return err
		}
		z, err := protocol.ReadFloat64(r)
		if err != nil {
			return err
		}
		sess.x, sess.z = x, z
		return sess.window.Move(x, z, sess)
	default:
		if h, ok := sess.srv.handler(pkt.ID); ok {
			return h(sess, pkt.Data)
		}
		return nil
	}
}

// UpdateViewPosition implements view.Sender.
func (sess *Session) UpdateViewPosition(center world.ChunkPos) error {
	return sess.transport.WritePacket(idSetChunkCacheCenterCB, func(w *bytes.Buffer) {
		protocol.WriteVarInt(w, center.X)
		protocol.WriteVarInt(w, center.Z)
	})
}

// SendChunk implements view.Sender: encodes a chunk's sections via
// C5's palette codec into a ChunkDataAndLight packet. The palette
// encoding itself runs on C7's worker pool rather than this
// connection's own goroutine, per spec.md §9/§5's mandate that
// CPU-bound serialization work for a cold-loading view window "must
// run on the worker pool, never on the connection task's scheduler" —
// a player issuing 25+ chunks on their first Move would otherwise
// serialize all of them inline and starve other connections' reads.
func (sess *Session) SendChunk(chunk *world.Chunk) error {
	sectionsBytes, err := sess.encodeSections(chunk)
	if err != nil {
		return fmt.Errorf("session: encode chunk %s: %w", chunk.Pos, err)
	}

	return sess.transport.WritePacket(idChunkDataAndLightCB, func(w *bytes.Buffer) {
		protocol.WriteInt32(w, chunk.Pos.X)
		protocol.WriteInt32(w, chunk.Pos.Z)
		protocol.WritePrefixedArray(w, sectionsBytes, protocol.WriteByte)
	})
}

func (sess *Session) encodeSections(chunk *world.Chunk) ([]byte, error) {
	val, err := sess.srv.pipeline.Submit(context.Background(), func() (any, error) {
		var sections bytes.Buffer
		for _, sec := range chunk.Sections {
			protocol.WriteInt16(&sections, int16(sec.NonAirCount()))
			palette.Encode(&sections, sec.Blocks)
			palette.Encode(&sections, sec.Biomes)
		}
		return sections.Bytes(), nil
	})
	if err != nil {
		return nil, err
	}
	return val.([]byte), nil
}

// UnloadChunk implements view.Sender.
func (sess *Session) UnloadChunk(pos world.ChunkPos) error {
	return sess.transport.WritePacket(idUnloadChunkCB, func(w *bytes.Buffer) {
		protocol.WriteInt32(w, pos.Z)
		protocol.WriteInt32(w, pos.X)
	})
}

// GenerationFailed implements view.Sender: the one concrete event
// surface this core ships for a failed chunk load is the same system
// chat channel gameplay handlers use (pkg/gameplay), so the player
// sees the cold-load miss instead of it only reaching the log.
func (sess *Session) GenerationFailed(pos world.ChunkPos, err error) {
	sess.log.Warn("generation failed for view window", zap.String("chunkPos", pos.String()), zap.Error(err))
	msg := chat.SystemNotice(fmt.Sprintf("Chunk %s failed to load and will be retried.", pos))
	if sendErr := sess.SendSystemChat(msg.String()); sendErr != nil {
		sess.log.Warn("failed to deliver generation-failure event", zap.Error(sendErr))
	}
}

// SendSystemChat delivers a server-originated chat message, used by
// gameplay handlers registered via Server.RegisterHandler.
func (sess *Session) SendSystemChat(message string) error {
	return sess.transport.WritePacket(idSystemChatCB, func(w *bytes.Buffer) {
		protocol.WriteString(w, message)
		protocol.WriteBool(w, false)
	})
}

// Username returns the authenticated player's display name.
func (sess *Session) Username() string { return sess.username }

// UUID returns the authenticated player's id.
func (sess *Session) UUID() uuid.UUID { return sess.uuid }
