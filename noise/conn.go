package noise

import (
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"golang.org/x/crypto/chacha20poly1305"
)

// maxFramePayload bounds a single application-layer message the same way
// lnwire.MaxMessagePayload bounds a Lightning wire message: large enough
// for any Sig message this protocol ever sends, small enough to cap a
// malicious peer's ability to make a reader allocate an unbounded buffer.
const maxFramePayload = 65535

// Conn wraps a raw net.Conn with the transport keys derived from a
// completed Noise_KK handshake, framing each WriteMessage call as
// 2-byte-length-prefix || ciphertext || 16-byte tag, mirroring
// lnwire.WriteMessage/ReadMessage's length-prefixed framing. The embedded
// net.Conn's own Write is not overridden and sends bytes unframed and
// unencrypted.
type Conn struct {
	net.Conn

	sendAEAD cipher.AEAD
	recvAEAD cipher.AEAD

	sendNonce uint64
	recvNonce uint64
}

func newConn(conn net.Conn, sendKey, recvKey [32]byte) (*Conn, error) {
	sendAEAD, err := chacha20poly1305.New(sendKey[:])
	if err != nil {
		return nil, fmt.Errorf("noise: building send cipher: %w", err)
	}
	recvAEAD, err := chacha20poly1305.New(recvKey[:])
	if err != nil {
		return nil, fmt.Errorf("noise: building recv cipher: %w", err)
	}

	return &Conn{
		Conn:     conn,
		sendAEAD: sendAEAD,
		recvAEAD: recvAEAD,
	}, nil
}

// nonceFor encodes a monotonically increasing counter into a 12-byte
// nonce, the fixed-zero-prefix-plus-little-endian-counter construction
// this lineage's brontide package uses for its own transport ciphers.
func nonceFor(counter uint64) [12]byte {
	var nonce [12]byte
	binary.LittleEndian.PutUint64(nonce[4:], counter)
	return nonce
}

// WriteMessage encrypts and frames one application payload, erroring if it
// exceeds maxFramePayload.
func (c *Conn) WriteMessage(payload []byte) error {
	if len(payload) > maxFramePayload {
		return fmt.Errorf("noise: payload of %d bytes exceeds maximum of %d",
			len(payload), maxFramePayload)
	}

	nonce := nonceFor(c.sendNonce)
	c.sendNonce++

	ciphertext := c.sendAEAD.Seal(nil, nonce[:], payload, nil)

	var lengthPrefix [2]byte
	binary.BigEndian.PutUint16(lengthPrefix[:], uint16(len(ciphertext)))

	if _, err := c.Conn.Write(lengthPrefix[:]); err != nil {
		return err
	}
	_, err := c.Conn.Write(ciphertext)
	return err
}

// ReadMessage reads and decrypts the next framed application payload.
func (c *Conn) ReadMessage() ([]byte, error) {
	var lengthPrefix [2]byte
	if _, err := io.ReadFull(c.Conn, lengthPrefix[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint16(lengthPrefix[:])

	ciphertext := make([]byte, length)
	if _, err := io.ReadFull(c.Conn, ciphertext); err != nil {
		return nil, err
	}

	nonce := nonceFor(c.recvNonce)
	c.recvNonce++

	plaintext, err := c.recvAEAD.Open(nil, nonce[:], ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("noise: decrypting frame: %w", err)
	}
	return plaintext, nil
}
