// Package coordnet implements the Coordinator Relay: it shares collected
// partial signatures with the coordinator over an authenticated, encrypted
// session, so peer stakeholders/managers can pick them up without any
// direct connectivity between participants.
package coordnet

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/vaultd-project/vaultd/noise"
	"github.com/vaultd-project/vaultd/vault"
)

const (
	// maxRetries bounds how many times in total (first try included)
	// ShareSigs attempts the whole dial-and-send sequence, whatever
	// the error, per the distilled spec's fixed retry budget.
	maxRetries = 5

	// baseBackoff is the first retry's delay; each subsequent retry
	// doubles it, capped at maxBackoff, grounded on the
	// connection-retry idiom this lineage's server.go documents for
	// its own peer dial loop.
	baseBackoff = 500 * time.Millisecond
	maxBackoff  = 8 * time.Second
)

// Sig is the wire message sent once per (pubkey, signature) pair: the
// distilled spec's exact wire format, id always the plain txid of the
// presigned transaction being shared, never its wtxid.
type Sig struct {
	Pubkey    [33]byte       `json:"pubkey"`
	Signature []byte         `json:"signature"`
	ID        chainhash.Hash `json:"id"`
}

// Relay opens Noise_KK sessions to a fixed coordinator endpoint and shares
// partial signatures over them.
type Relay struct {
	local             noise.StaticKey
	coordinatorStatic [32]byte
	addr              string
}

// New constructs a Relay for the given local static key, the coordinator's
// known static public key, and its network address.
func New(local noise.StaticKey, coordinatorStatic [32]byte, addr string) *Relay {
	return &Relay{
		local:             local,
		coordinatorStatic: coordinatorStatic,
		addr:              addr,
	}
}

// ShareSigs opens a session to the coordinator and sends one Sig message
// per (pubkey, signature) entry in sigs, making up to maxRetries attempts
// at the whole sequence with bounded exponential backoff between them.
// Every failed attempt is retried; errors are not classified as transient
// or permanent.
// It is fire-and-forget from the coordinator's perspective: success here
// means the coordinator's store-and-forward relay accepted the messages,
// not that any peer has yet retrieved them.
func (r *Relay) ShareSigs(ctx context.Context, roleTxid chainhash.Hash, sigs vault.PartialSigs) error {
	keys := sigs.SortedKeys()

	var lastErr error
	backoff := baseBackoff

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			log.Debugf("Retrying coordinator share (attempt %d/%d) after: %v",
				attempt+1, maxRetries, lastErr)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}

			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		if err := r.sendOnce(ctx, roleTxid, keys, sigs); err != nil {
			lastErr = err
			continue
		}

		return nil
	}

	return fmt.Errorf("%w: %v", ErrCoordinator, lastErr)
}

func (r *Relay) sendOnce(ctx context.Context, roleTxid chainhash.Hash, keys [][33]byte, sigs vault.PartialSigs) error {
	conn, err := noise.Dial(r.local, r.coordinatorStatic, r.addr)
	if err != nil {
		return fmt.Errorf("coordnet: dialing coordinator: %w", err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if ok {
		conn.SetDeadline(deadline)
	}

	for _, pub := range keys {
		msg := Sig{
			Pubkey:    pub,
			Signature: sigs[pub],
			ID:        roleTxid,
		}

		payload, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("coordnet: marshaling Sig message: %w", err)
		}

		if err := conn.WriteMessage(payload); err != nil {
			return fmt.Errorf("coordnet: sending Sig message: %w", err)
		}
	}

	return nil
}
