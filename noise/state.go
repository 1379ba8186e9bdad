// Package noise implements a minimal Noise_KK handshake (both parties'
// static keys known to each other in advance) over TCP, used by package
// coordnet to open an authenticated, encrypted session to the coordinator.
// This is a hand-rolled Noise state machine in the style this lineage's own
// brontide package uses for its (Noise_XK) peer transport, generalized to
// the KK pattern: both ends already hold each other's static public key out
// of band, so the handshake has no interactive identity exchange.
package noise

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
)

// protocolName is mixed into the handshake hash as its first input, fixing
// the Noise pattern/cipher/hash suite this package implements.
const protocolName = "Noise_KK_25519_ChaChaPoly_BLAKE2s"

// keyPair is an X25519 keypair used as either a static or ephemeral
// Diffie-Hellman key.
type keyPair struct {
	priv [32]byte
	pub  [32]byte
}

// generateKeyPair creates a fresh X25519 keypair for use as a handshake
// ephemeral key.
func generateKeyPair() (*keyPair, error) {
	var priv [32]byte
	if _, err := rand.Read(priv[:]); err != nil {
		return nil, err
	}
	var pub [32]byte
	curve25519.ScalarBaseMult(&pub, &priv)
	return &keyPair{priv: priv, pub: pub}, nil
}

// dh performs an X25519 Diffie-Hellman exchange between kp's private key
// and the peer's public key.
func dh(priv [32]byte, peerPub [32]byte) ([32]byte, error) {
	var shared [32]byte
	secret, err := curve25519.X25519(priv[:], peerPub[:])
	if err != nil {
		return shared, err
	}
	copy(shared[:], secret)
	return shared, nil
}

// symmetricState carries the running handshake hash h and chaining key ck,
// mirroring the Noise specification's SymmetricState object.
type symmetricState struct {
	ck [32]byte
	h  [32]byte
}

// newSymmetricState initializes h from protocolName (hashed if longer than
// the hash output, copied and zero-padded otherwise) and sets ck = h, per
// Noise's InitializeSymmetric.
func newSymmetricState() *symmetricState {
	s := &symmetricState{}
	name := []byte(protocolName)
	if len(name) <= 32 {
		copy(s.h[:], name)
	} else {
		s.h = blake2s.Sum256(name)
	}
	s.ck = s.h
	return s
}

// mixHash folds data into the running handshake hash: h = HASH(h || data).
func (s *symmetricState) mixHash(data []byte) {
	combined := append(append([]byte{}, s.h[:]...), data...)
	s.h = blake2s.Sum256(combined)
}

// mixKey derives a new chaining key and an AEAD key from ikm via a
// two-output HKDF over BLAKE2s, following Noise's MixKey.
func (s *symmetricState) mixKey(ikm []byte) (cipher.AEAD, error) {
	output1, output2 := hkdf2(s.ck[:], ikm)
	s.ck = output1

	aead, err := chacha20poly1305.New(output2[:])
	if err != nil {
		return nil, fmt.Errorf("noise: deriving AEAD: %w", err)
	}
	return aead, nil
}

// hkdf2 implements Noise's two-output HKDF built from BLAKE2s HMAC,
// mirroring the construction used throughout BOLT8-style Noise handshakes.
func hkdf2(chainingKey, ikm []byte) ([32]byte, [32]byte) {
	tempKey := hmacBlake2s(chainingKey, ikm)
	output1 := hmacBlake2s(tempKey[:], []byte{0x01})
	output2 := hmacBlake2s(tempKey[:], append(output1[:], 0x02))
	return output1, output2
}

// hmacBlake2s computes an HMAC over BLAKE2s, since golang.org/x/crypto's
// blake2s package only exposes the raw hash function.
func hmacBlake2s(key, data []byte) [32]byte {
	const blockSize = 64

	if len(key) > blockSize {
		sum := blake2s.Sum256(key)
		key = sum[:]
	}

	paddedKey := make([]byte, blockSize)
	copy(paddedKey, key)

	ipad := make([]byte, blockSize)
	opad := make([]byte, blockSize)
	for i := 0; i < blockSize; i++ {
		ipad[i] = paddedKey[i] ^ 0x36
		opad[i] = paddedKey[i] ^ 0x5c
	}

	inner := blake2s.Sum256(append(ipad, data...))
	outer := blake2s.Sum256(append(opad, inner[:]...))
	return outer
}

// encryptAndHash seals plaintext under the AEAD derived from the most
// recent mixKey call, authenticating it against the current handshake
// hash, then folds the ciphertext into the hash — Noise's
// EncryptAndHash, with a zero nonce since each handshake AEAD key is used
// exactly once.
func (s *symmetricState) encryptAndHash(aead cipher.AEAD, plaintext []byte) []byte {
	var nonce [12]byte
	ciphertext := aead.Seal(nil, nonce[:], plaintext, s.h[:])
	s.mixHash(ciphertext)
	return ciphertext
}

// decryptAndHash is encryptAndHash's inverse.
func (s *symmetricState) decryptAndHash(aead cipher.AEAD, ciphertext []byte) ([]byte, error) {
	var nonce [12]byte
	plaintext, err := aead.Open(nil, nonce[:], ciphertext, s.h[:])
	if err != nil {
		return nil, fmt.Errorf("noise: handshake decryption failed: %w", err)
	}
	s.mixHash(ciphertext)
	return plaintext, nil
}
