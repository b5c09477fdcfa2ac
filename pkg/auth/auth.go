// Package auth implements C4: the Login-state identity handshake —
// RSA keypair generation for the encryption request, the verify-token
// round trip, the Yggdrasil "session hash" computation online mode
// uses to query the session server, and offline-mode UUID derivation.
//
// The teacher (VibeShitCraft) never implements real encryption or
// online-mode verification; its offlineUUID (pkg/server/server.go) is
// a hand-rolled MD5-based UUID v3 builder. This package keeps that
// derivation's semantics (MD5 of "OfflinePlayer:"+username, v3/variant
// bits set) and returns it as a github.com/google/uuid UUID, the type
// ErikPelli-MinecraftLightServer's go.mod depends on for the identical
// purpose.
package auth

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// OfflineUUID derives a deterministic UUID v3 for a username, used
// when online_mode is false: MD5("OfflinePlayer:"+username) with the
// version and variant bits set, as Mojang's reference server does.
// uuid.NewMD5 is not used because it hashes a namespace UUID ahead of
// the name, which changes the result.
func OfflineUUID(username string) uuid.UUID {
	sum := md5.Sum([]byte("OfflinePlayer:" + username))
	sum[6] = (sum[6] & 0x0f) | 0x30
	sum[8] = (sum[8] & 0x3f) | 0x80
	return uuid.UUID(sum)
}

// KeyPair is the server's RSA keypair used for the Login-state
// encryption request; 1024 bits matches the reference protocol's key
// size for this handshake.
type KeyPair struct {
	Private *rsa.PrivateKey
	// PublicDER is the ASN.1 DER-encoded SubjectPublicKeyInfo sent
	// verbatim in EncryptionRequest's public key field.
	PublicDER []byte
}

// GenerateKeyPair creates a new 1024-bit RSA keypair.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		return nil, fmt.Errorf("auth: generate RSA key: %w", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("auth: marshal public key: %w", err)
	}
	return &KeyPair{Private: priv, PublicDER: der}, nil
}

// DecryptSharedSecret unwraps the client's RSA-encrypted shared secret
// (EncryptionResponse's shared_secret field).
func (k *KeyPair) DecryptSharedSecret(ciphertext []byte) ([]byte, error) {
	secret, err := rsa.DecryptPKCS1v15(rand.Reader, k.Private, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("auth: decrypt shared secret: %w", err)
	}
	return secret, nil
}

// VerifyToken decrypts and compares the client's echoed verify token
// against the one the server generated in EncryptionRequest.
func (k *KeyPair) VerifyToken(ciphertext, expected []byte) (bool, error) {
	got, err := rsa.DecryptPKCS1v15(rand.Reader, k.Private, ciphertext)
	if err != nil {
		return false, fmt.Errorf("auth: decrypt verify token: %w", err)
	}
	if len(got) != len(expected) {
		return false, nil
	}
	for i := range got {
		if got[i] != expected[i] {
			return false, nil
		}
	}
	return true, nil
}

// NewVerifyToken generates a fresh random verify token for an
// EncryptionRequest.
func NewVerifyToken() ([]byte, error) {
	token := make([]byte, 4)
	if _, err := rand.Read(token); err != nil {
		return nil, fmt.Errorf("auth: generate verify token: %w", err)
	}
	return token, nil
}

// SessionHash computes the Yggdrasil "signed hex" server-id hash:
// SHA-1(serverID + sharedSecret + publicKeyDER), then rendered as a
// signed (two's-complement) hex string the way the reference protocol
// and its session-server API require — not plain hex, since a
// negative digest must be printed with a leading '-' and the
// magnitude of its two's complement, not its raw bytes.
func SessionHash(serverID string, sharedSecret, publicKeyDER []byte) string {
	h := sha1.New()
	h.Write([]byte(serverID))
	h.Write(sharedSecret)
	h.Write(publicKeyDER)
	digest := h.Sum(nil)

	negative := digest[0]&0x80 != 0
	if negative {
		twosComplement(digest)
	}

	hexDigest := hex.EncodeToString(digest)
	for len(hexDigest) > 1 && hexDigest[0] == '0' {
		hexDigest = hexDigest[1:]
	}
	if negative {
		return "-" + hexDigest
	}
	return hexDigest
}

// twosComplement negates b in place, treating it as a big-endian
// signed integer (flip all bits, add one).
func twosComplement(b []byte) {
	carry := true
	for i := len(b) - 1; i >= 0; i-- {
		b[i] = ^b[i]
		if carry {
			b[i]++
			carry = b[i] == 0
		}
	}
}

// Verifier authenticates a player's identity, either against Mojang's
// session server (online mode) or by trusting the client-claimed
// username (offline mode). Both halves are expressed behind this
// interface per spec.md's "auth against an external identity service"
// external-collaborator boundary.
type Verifier interface {
	// Verify returns the authenticated player's UUID and display name.
	Verify(username string, sessionHash string) (playerUUID uuid.UUID, displayName string, err error)
}

// OfflineVerifier trusts the client-supplied username outright and
// derives a deterministic UUID from it. server.New installs it as the
// verifier in online mode too, where it runs after the encryption
// handshake; with online_mode false the session calls OfflineUUID
// directly and no verifier runs.
type OfflineVerifier struct{}

func (OfflineVerifier) Verify(username string, _ string) (uuid.UUID, string, error) {
	return OfflineUUID(username), username, nil
}
