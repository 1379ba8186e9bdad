package coordnet

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"

	"github.com/vaultd-project/vaultd/noise"
	"github.com/vaultd-project/vaultd/vault"
)

// coordinatorHarness accepts a single inbound connection, completes the
// responder side of the Noise_KK handshake, and decodes every Sig message
// it receives onto the returned channel.
func coordinatorHarness(t *testing.T, local noise.StaticKey, remoteStatic [32]byte) (addr string, sigs <-chan Sig) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	out := make(chan Sig, 16)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		nc, err := noise.Respond(conn, local, remoteStatic)
		if err != nil {
			close(out)
			return
		}

		for {
			payload, err := nc.ReadMessage()
			if err != nil {
				close(out)
				return
			}

			var sig Sig
			if err := json.Unmarshal(payload, &sig); err != nil {
				close(out)
				return
			}
			out <- sig
		}
	}()

	return ln.Addr().String(), out
}

func TestShareSigsDeliversOneMessagePerSignature(t *testing.T) {
	clientStatic, err := noise.GenerateStaticKey()
	require.NoError(t, err)
	serverStatic, err := noise.GenerateStaticKey()
	require.NoError(t, err)

	addr, sigCh := coordinatorHarness(t, serverStatic, clientStatic.Pub)

	relay := New(clientStatic, serverStatic.Pub, addr)

	var pubA, pubB [33]byte
	pubA[0], pubB[0] = 0x02, 0x03
	sigs := vault.PartialSigs{
		pubA: []byte("sig-a"),
		pubB: []byte("sig-b"),
	}

	roleTxid := chainhash.Hash{0xaa}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = relay.ShareSigs(ctx, roleTxid, sigs)
	require.NoError(t, err)

	got := make(map[[33]byte][]byte)
	for i := 0; i < 2; i++ {
		select {
		case sig, ok := <-sigCh:
			require.True(t, ok)
			require.Equal(t, roleTxid, sig.ID)
			got[sig.Pubkey] = sig.Signature
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for relayed signature")
		}
	}

	require.Equal(t, []byte("sig-a"), got[pubA])
	require.Equal(t, []byte("sig-b"), got[pubB])
}

func TestShareSigsFailsAfterExhaustingRetriesAgainstDeadCoordinator(t *testing.T) {
	clientStatic, err := noise.GenerateStaticKey()
	require.NoError(t, err)

	var deadStatic [32]byte
	deadStatic[0] = 0x09

	// Port 1 is a privileged, never-listened-on port: dialing it fails
	// immediately and deterministically, standing in for a coordinator
	// that is simply unreachable for the whole retry budget.
	relay := New(clientStatic, deadStatic, "127.0.0.1:1")

	sigs := vault.PartialSigs{{0x02}: []byte("sig")}

	// The retry budget backs off 500ms/1s/2s/4s between its 5 attempts
	// (7.5s total), so the context needs enough headroom to observe
	// ErrCoordinator rather than a context-deadline cancellation.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = relay.ShareSigs(ctx, chainhash.Hash{}, sigs)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrCoordinator)
}
