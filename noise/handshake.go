package noise

import (
	"fmt"
	"io"
	"net"

	"golang.org/x/crypto/curve25519"
)

// StaticKey is a party's long-term X25519 key material: a 32-byte private
// scalar and its corresponding public point. The Coordinator Relay holds
// one for the local participant plus the coordinator's known public key.
type StaticKey struct {
	Priv [32]byte
	Pub  [32]byte
}

// GenerateStaticKey creates a fresh X25519 static keypair, for first-run
// bootstrap of a participant's or coordinator's long-term identity.
func GenerateStaticKey() (StaticKey, error) {
	kp, err := generateKeyPair()
	if err != nil {
		return StaticKey{}, err
	}
	return StaticKey{Priv: kp.priv, Pub: kp.pub}, nil
}

// StaticKeyFromPrivate derives the full StaticKey (public point included)
// from an already-provisioned 32-byte private scalar, for loading a
// participant's long-term identity back out of config rather than
// generating a fresh one every run.
func StaticKeyFromPrivate(priv [32]byte) StaticKey {
	var pub [32]byte
	curve25519.ScalarBaseMult(&pub, &priv)
	return StaticKey{Priv: priv, Pub: pub}
}

// handshakeState drives one Noise_KK exchange: message 1 carries "e, es,
// ss", message 2 carries "e, ee, se", after which both sides split the
// final chaining key into a pair of directional transport keys.
type handshakeState struct {
	*symmetricState

	localStatic  StaticKey
	remoteStatic [32]byte

	localEphemeral *keyPair
}

func newHandshakeState(local StaticKey, remote [32]byte, initiator bool) *handshakeState {
	hs := &handshakeState{
		symmetricState: newSymmetricState(),
		localStatic:    local,
		remoteStatic:   remote,
	}
	if initiator {
		hs.mixHash(local.Pub[:])
		hs.mixHash(remote[:])
	} else {
		hs.mixHash(remote[:])
		hs.mixHash(local.Pub[:])
	}
	return hs
}

// actOneInitiator builds message 1: local ephemeral pubkey || tag, where
// tag authenticates the (empty) payload against the running handshake
// hash after mixing in es and ss.
func (hs *handshakeState) actOneInitiator() ([]byte, error) {
	e, err := generateKeyPair()
	if err != nil {
		return nil, err
	}
	hs.localEphemeral = e
	hs.mixHash(e.pub[:])

	es, err := dh(e.priv, hs.remoteStatic)
	if err != nil {
		return nil, err
	}
	aead, err := hs.mixKey(es[:])
	if err != nil {
		return nil, err
	}

	ss, err := dh(hs.localStatic.Priv, hs.remoteStatic)
	if err != nil {
		return nil, err
	}
	aead, err = hs.mixKey(ss[:])
	if err != nil {
		return nil, err
	}

	tag := hs.encryptAndHash(aead, nil)

	out := make([]byte, 0, 32+len(tag))
	out = append(out, e.pub[:]...)
	out = append(out, tag...)
	return out, nil
}

// actOneResponder processes message 1 and derives the same es/ss keys the
// initiator did, verifying the trailing tag.
func (hs *handshakeState) actOneResponder(msg []byte) ([32]byte, error) {
	var remoteEphemeral [32]byte
	if len(msg) < 32+16 {
		return remoteEphemeral, fmt.Errorf("noise: act one message too short (%d bytes)", len(msg))
	}
	copy(remoteEphemeral[:], msg[:32])
	tag := msg[32:]

	hs.mixHash(remoteEphemeral[:])

	es, err := dh(hs.localStatic.Priv, remoteEphemeral)
	if err != nil {
		return remoteEphemeral, err
	}
	aead, err := hs.mixKey(es[:])
	if err != nil {
		return remoteEphemeral, err
	}

	ss, err := dh(hs.localStatic.Priv, hs.remoteStatic)
	if err != nil {
		return remoteEphemeral, err
	}
	aead, err = hs.mixKey(ss[:])
	if err != nil {
		return remoteEphemeral, err
	}

	if _, err := hs.decryptAndHash(aead, tag); err != nil {
		return remoteEphemeral, err
	}

	return remoteEphemeral, nil
}

// actTwoResponder builds message 2: a fresh responder ephemeral pubkey ||
// tag, mixing in ee and se.
func (hs *handshakeState) actTwoResponder(remoteEphemeral [32]byte) ([]byte, error) {
	e, err := generateKeyPair()
	if err != nil {
		return nil, err
	}
	hs.localEphemeral = e
	hs.mixHash(e.pub[:])

	ee, err := dh(e.priv, remoteEphemeral)
	if err != nil {
		return nil, err
	}
	aead, err := hs.mixKey(ee[:])
	if err != nil {
		return nil, err
	}

	se, err := dh(e.priv, hs.remoteStatic)
	if err != nil {
		return nil, err
	}
	aead, err = hs.mixKey(se[:])
	if err != nil {
		return nil, err
	}

	tag := hs.encryptAndHash(aead, nil)

	out := make([]byte, 0, 32+len(tag))
	out = append(out, e.pub[:]...)
	out = append(out, tag...)
	return out, nil
}

// actTwoInitiator processes message 2, deriving the same ee/se keys the
// responder did.
func (hs *handshakeState) actTwoInitiator(msg []byte) error {
	var remoteEphemeral [32]byte
	if len(msg) < 32+16 {
		return fmt.Errorf("noise: act two message too short (%d bytes)", len(msg))
	}
	copy(remoteEphemeral[:], msg[:32])
	tag := msg[32:]

	hs.mixHash(remoteEphemeral[:])

	ee, err := dh(hs.localEphemeral.priv, remoteEphemeral)
	if err != nil {
		return err
	}
	aead, err := hs.mixKey(ee[:])
	if err != nil {
		return err
	}

	se, err := dh(hs.localStatic.Priv, remoteEphemeral)
	if err != nil {
		return err
	}
	aead, err = hs.mixKey(se[:])
	if err != nil {
		return err
	}

	_, err = hs.decryptAndHash(aead, tag)
	return err
}

// split derives the two directional transport keys from the final
// chaining key, per Noise's Split(): sendKey for the initiator is recvKey
// for the responder and vice versa.
func (hs *handshakeState) split() (sendKey, recvKey [32]byte) {
	return hkdf2(hs.ck[:], nil)
}

// Dial opens a TCP connection to addr and runs the initiator side of a
// Noise_KK handshake, returning a framed, encrypted Conn on success.
func Dial(local StaticKey, remoteStatic [32]byte, addr string) (*Conn, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("noise: dialing %s: %w", addr, err)
	}

	nc, err := handshakeInitiator(conn, local, remoteStatic)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return nc, nil
}

func handshakeInitiator(conn net.Conn, local StaticKey, remoteStatic [32]byte) (*Conn, error) {
	hs := newHandshakeState(local, remoteStatic, true)

	msg1, err := hs.actOneInitiator()
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write(msg1); err != nil {
		return nil, fmt.Errorf("noise: writing act one: %w", err)
	}

	msg2 := make([]byte, 32+16)
	if _, err := io.ReadFull(conn, msg2); err != nil {
		return nil, fmt.Errorf("noise: reading act two: %w", err)
	}
	if err := hs.actTwoInitiator(msg2); err != nil {
		return nil, err
	}

	sendKey, recvKey := hs.split()
	return newConn(conn, sendKey, recvKey)
}

// Respond runs the responder side of a Noise_KK handshake over an already
// accepted net.Conn, returning a framed, encrypted Conn on success. The
// coordinator's listener calls this once per inbound stakeholder
// connection.
func Respond(conn net.Conn, local StaticKey, remoteStatic [32]byte) (*Conn, error) {
	hs := newHandshakeState(local, remoteStatic, false)

	msg1 := make([]byte, 32+16)
	if _, err := io.ReadFull(conn, msg1); err != nil {
		return nil, fmt.Errorf("noise: reading act one: %w", err)
	}
	remoteEphemeral, err := hs.actOneResponder(msg1)
	if err != nil {
		return nil, err
	}

	msg2, err := hs.actTwoResponder(remoteEphemeral)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write(msg2); err != nil {
		return nil, fmt.Errorf("noise: writing act two: %w", err)
	}

	// The responder's send key is the initiator's recv key, so the
	// split outputs are used in the opposite order from the initiator.
	recvKey, sendKey := hs.split()
	return newConn(conn, sendKey, recvKey)
}
