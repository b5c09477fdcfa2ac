package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"math/big"
	"strings"
	"testing"
)

func TestOfflineUUIDDeterministic(t *testing.T) {
	a := OfflineUUID("Notch")
	b := OfflineUUID("Notch")
	if a != b {
		t.Fatalf("OfflineUUID not deterministic: %s vs %s", a, b)
	}
	c := OfflineUUID("Herobrine")
	if a == c {
		t.Fatal("different usernames produced the same UUID")
	}
}

func TestOfflineUUIDVersionBits(t *testing.T) {
	id := OfflineUUID("jeb_")
	b := id[:]
	if b[6]&0xF0 != 0x30 {
		t.Errorf("version nibble = %x, want 3 (UUID v3)", b[6]&0xF0)
	}
	if b[8]&0xC0 != 0x80 {
		t.Errorf("variant bits = %x, want RFC 4122 variant", b[8]&0xC0)
	}
}

func TestGenerateKeyPairRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	if len(kp.PublicDER) == 0 {
		t.Fatal("expected non-empty PublicDER")
	}
}

func TestVerifyTokenMatch(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	token, err := NewVerifyToken()
	if err != nil {
		t.Fatalf("NewVerifyToken: %v", err)
	}
	enc, err := rsa.EncryptPKCS1v15(rand.Reader, &kp.Private.PublicKey, token)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	ok, err := kp.VerifyToken(enc, token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if !ok {
		t.Error("expected matching verify token")
	}
}

func TestVerifyTokenMismatch(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	token, _ := NewVerifyToken()
	other, _ := NewVerifyToken()
	enc, err := rsa.EncryptPKCS1v15(rand.Reader, &kp.Private.PublicKey, token)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	ok, err := kp.VerifyToken(enc, other)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if ok {
		t.Error("expected mismatched verify token to fail")
	}
}

func TestSessionHashDeterministic(t *testing.T) {
	a := SessionHash("server-1", []byte("secret"), []byte("pubkey"))
	b := SessionHash("server-1", []byte("secret"), []byte("pubkey"))
	if a != b {
		t.Fatalf("SessionHash not deterministic: %s vs %s", a, b)
	}
	c := SessionHash("server-2", []byte("secret"), []byte("pubkey"))
	if a == c {
		t.Fatal("different server ids produced the same hash")
	}
}

func TestSessionHashSignAndMagnitudeMatchBigInt(t *testing.T) {
	for _, serverID := range []string{"", "a", "Notch", "a server id long enough to flip the sign bit sometimes"} {
		h := sha1.New()
		h.Write([]byte(serverID))
		h.Write([]byte("secret"))
		h.Write([]byte("pubkey"))
		digest := h.Sum(nil)

		// math/big's SetBytes treats digest as an unsigned big-endian
		// integer; Yggdrasil's signed-hex convention instead treats
		// the top bit as a sign bit. Reproduce that interpretation
		// independently of SessionHash's own two's-complement code to
		// cross-check it.
		unsigned := new(big.Int).SetBytes(digest)
		negative := digest[0]&0x80 != 0
		var want *big.Int
		if negative {
			modulus := new(big.Int).Lsh(big.NewInt(1), uint(len(digest)*8))
			want = new(big.Int).Sub(unsigned, modulus)
		} else {
			want = unsigned
		}

		got := SessionHash(serverID, []byte("secret"), []byte("pubkey"))
		gotBig, ok := new(big.Int).SetString(got, 16)
		if !ok {
			t.Fatalf("SessionHash(%q) = %q is not valid hex", serverID, got)
		}
		if gotBig.Cmp(want) != 0 {
			t.Errorf("SessionHash(%q) = %s, want %s", serverID, gotBig.String(), want.String())
		}
		if negative && !strings.HasPrefix(got, "-") {
			t.Errorf("SessionHash(%q) = %q, expected a leading '-' for a negative digest", serverID, got)
		}
	}
}

func TestOfflineVerifierTrustsClaimedUsername(t *testing.T) {
	v := OfflineVerifier{}
	id, name, err := v.Verify("Steve", "")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if name != "Steve" {
		t.Errorf("name = %q, want Steve", name)
	}
	if id != OfflineUUID("Steve") {
		t.Error("offline verifier UUID does not match OfflineUUID derivation")
	}
}
