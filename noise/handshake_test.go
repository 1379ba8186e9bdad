package noise

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func testStaticKey(t *testing.T) StaticKey {
	t.Helper()

	kp, err := generateKeyPair()
	require.NoError(t, err)
	return StaticKey{Priv: kp.priv, Pub: kp.pub}
}

// TestHandshakeDerivesMatchingTransportKeys runs both sides of a Noise_KK
// handshake over an in-process pipe and asserts the initiator can send a
// framed message the responder decrypts correctly, and vice versa.
func TestHandshakeDerivesMatchingTransportKeys(t *testing.T) {
	clientConn, serverConn := net.Pipe()

	clientStatic := testStaticKey(t)
	serverStatic := testStaticKey(t)

	type result struct {
		conn *Conn
		err  error
	}

	clientCh := make(chan result, 1)
	serverCh := make(chan result, 1)

	go func() {
		conn, err := handshakeInitiator(clientConn, clientStatic, serverStatic.Pub)
		clientCh <- result{conn, err}
	}()
	go func() {
		conn, err := Respond(serverConn, serverStatic, clientStatic.Pub)
		serverCh <- result{conn, err}
	}()

	clientResult := <-clientCh
	serverResult := <-serverCh

	require.NoError(t, clientResult.err)
	require.NoError(t, serverResult.err)

	client := clientResult.conn
	server := serverResult.conn

	payload := []byte("hello coordinator")

	errCh := make(chan error, 1)
	go func() { errCh <- client.WriteMessage(payload) }()

	got, err := server.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	require.Equal(t, payload, got)

	reply := []byte("ack")
	go func() { errCh <- server.WriteMessage(reply) }()

	gotReply, err := client.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	require.Equal(t, reply, gotReply)
}
