package server

import "testing"

func TestHandshakeRoutesToStatusOrLogin(t *testing.T) {
	next, ok := NextState(StateHandshaking, TriggerHandshakeStatus)
	if !ok || next != StateStatus {
		t.Fatalf("Handshaking+status = (%v,%v), want (Status,true)", next, ok)
	}
	next, ok = NextState(StateHandshaking, TriggerHandshakeLogin)
	if !ok || next != StateLogin {
		t.Fatalf("Handshaking+login = (%v,%v), want (Login,true)", next, ok)
	}
}

func TestStatusPingClosesConnection(t *testing.T) {
	next, ok := NextState(StateStatus, TriggerPing)
	if !ok || next != StateClosed {
		t.Fatalf("Status+ping = (%v,%v), want (Closed,true)", next, ok)
	}
}

func TestLoginAcknowledgedAdvancesToConfiguration(t *testing.T) {
	next, ok := NextState(StateLogin, TriggerLoginAcknowledged)
	if !ok || next != StateConfiguration {
		t.Fatalf("Login+loginAck = (%v,%v), want (Configuration,true)", next, ok)
	}
}

func TestFinishConfigurationAckAdvancesToPlay(t *testing.T) {
	next, ok := NextState(StateConfiguration, TriggerFinishConfigAck)
	if !ok || next != StatePlay {
		t.Fatalf("Configuration+finishAck = (%v,%v), want (Play,true)", next, ok)
	}
}

func TestDisconnectAndTransportErrorCloseFromAnyState(t *testing.T) {
	for _, s := range []State{StateHandshaking, StateStatus, StateLogin, StateConfiguration, StatePlay} {
		if next, ok := NextState(s, TriggerDisconnect); !ok || next != StateClosed {
			t.Errorf("%v+disconnect = (%v,%v), want (Closed,true)", s, next, ok)
		}
		if next, ok := NextState(s, TriggerTransportError); !ok || next != StateClosed {
			t.Errorf("%v+transportError = (%v,%v), want (Closed,true)", s, next, ok)
		}
	}
}

func TestClosedIsAbsorbing(t *testing.T) {
	if _, ok := NextState(StateClosed, TriggerDisconnect); ok {
		t.Error("expected Closed to reject every trigger, including disconnect")
	}
	if _, ok := NextState(StateClosed, TriggerHandshakeStatus); ok {
		t.Error("expected Closed to reject every trigger")
	}
}

func TestOutOfStatePacketRejected(t *testing.T) {
	if _, ok := NextState(StatePlay, TriggerHandshakeStatus); ok {
		t.Error("expected a Handshake trigger in Play state to be rejected")
	}
	if _, ok := NextState(StateHandshaking, TriggerPing); ok {
		t.Error("expected Ping in Handshaking state to be rejected")
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateHandshaking:   "Handshaking",
		StateStatus:        "Status",
		StateLogin:         "Login",
		StateConfiguration: "Configuration",
		StatePlay:          "Play",
		StateClosed:        "Closed",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
