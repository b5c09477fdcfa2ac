// Package server implements the connection driver (C3 state machine,
// C2/C4/C6/C7/C8/C9 wiring) and the TCP accept loop, per spec.md §4.3
// and §5. The teacher's server.go mixes all of this with 1.8 gameplay
// in one file; here the concerns split into state.go (the pure
// transition table), session.go (the per-connection driver), and
// server.go (accept loop + world wiring), following the teacher's own
// habit of small, single-purpose files elsewhere in the repo
// (block.go, combat.go, gamemode.go each own one concern).
package server

import "fmt"

// State is a connection's position in the C3 state machine:
// Handshaking -> (Status | Login) -> Configuration -> Play -> Closed.
// This replaces the teacher's untyped int state constants
// (STATE_HANDSHAKE etc. in the old server.go) with a typed enum.
type State int

const (
	StateHandshaking State = iota
	StateStatus
	StateLogin
	StateConfiguration
	StatePlay
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "Handshaking"
	case StateStatus:
		return "Status"
	case StateLogin:
		return "Login"
	case StateConfiguration:
		return "Configuration"
	case StatePlay:
		return "Play"
	case StateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// transitionKey is a (state, trigger) pair the table below is keyed
// on. trigger is the packet/event name driving the transition, not a
// packet id, since packet ids are state-relative and this table must
// stay pure and independent of the wire codec.
type transitionKey struct {
	from    State
	trigger string
}

// Trigger names the transition table recognizes, per spec.md §4.3's
// summary table. TriggerHandshakeStatus/TriggerHandshakeLogin model the two
// outcomes of a single Handshake packet (next_state=1 or 2); the
// driver picks which trigger to feed based on the decoded field.
const (
	TriggerHandshakeStatus   = "handshake_status"
	TriggerHandshakeLogin    = "handshake_login"
	TriggerPing              = "ping"
	TriggerLoginAcknowledged = "login_acknowledged"
	TriggerFinishConfigAck   = "finish_configuration_ack"
	TriggerDisconnect        = "disconnect"
	TriggerTransportError    = "transport_error"
)

// transitions is the pure table spec.md §4.3 describes: "Handshaking
// -> Status on Handshake{next_state=1}", etc. It does no I/O and owns
// no connection state; NextState is safe to call from a test with no
// network or cache wired up at all.
var transitions = map[transitionKey]State{
	{StateHandshaking, TriggerHandshakeStatus}:   StateStatus,
	{StateHandshaking, TriggerHandshakeLogin}:    StateLogin,
	{StateStatus, TriggerPing}:                   StateClosed,
	{StateLogin, TriggerLoginAcknowledged}:       StateConfiguration,
	{StateConfiguration, TriggerFinishConfigAck}: StatePlay,
}

// NextState looks up the transition for (current, trigger). It
// returns (StateClosed, true) for TriggerDisconnect/TriggerTransportError
// from any non-terminal state, per the "any -> Closed" row; otherwise
// ok is false when the trigger is not valid in the current state,
// which the caller (the connection driver) must treat as a
// ProtocolViolation per spec.md §4.3 ("any packet received in a state
// that does not permit it causes the connection to close").
func NextState(current State, trigger string) (State, bool) {
	if current == StateClosed {
		return StateClosed, false
	}
	if trigger == TriggerDisconnect || trigger == TriggerTransportError {
		return StateClosed, true
	}
	next, ok := transitions[transitionKey{current, trigger}]
	return next, ok
}
