// Package chainwatch defines the interfaces the Control Dispatcher uses to
// talk to its two sibling goroutines, the chain-watcher and the
// signature-fetcher. Both subsystems are external collaborators: this
// package only specifies the shape of the channel traffic between them and
// the Dispatcher, the same way chainntfs.ChainNotifier specifies a
// notification contract without committing to one backing implementation.
package chainwatch

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// WalletTransaction is the chain-watcher's view of one transaction relevant
// to a vault: whether it's merely seen in the mempool or has reached a
// confirmation, and at what height.
type WalletTransaction struct {
	Txid        chainhash.Hash
	Tx          *wire.MsgTx
	Confirmed   bool
	BlockHeight int32
	BlockHash   chainhash.Hash
}

// Watcher is the chain-watcher's contract with the Control Dispatcher: a
// synchronous, blocking request/response surface plus a best-effort
// shutdown signal. The Dispatcher never assumes a latency bound on any of
// these calls, since they may involve a round trip to a watched btcd/
// bitcoind node.
type Watcher interface {
	// WalletTransaction looks up the chain-watcher's wallet view for
	// txid. The bool return reports whether the watcher has any record
	// of it at all (mempool or confirmed); a false return is not an
	// error, it means the watcher has never seen the transaction.
	WalletTransaction(txid chainhash.Hash) (*WalletTransaction, bool)

	// SyncProgress reports the watcher's best estimate of how caught up
	// it is with the tip of the chain it watches, in [0, 1].
	SyncProgress() float64

	// Tip returns the watcher's last-seen position on the main chain.
	Tip() (height int32, blockHash chainhash.Hash)

	// Shutdown signals the chain-watcher to stop; the Dispatcher does
	// not wait for acknowledgement before returning from its own
	// Shutdown handler, since process shutdown is best-effort.
	Shutdown()
}

// SigFetcher is the signature-fetcher's contract with the Control
// Dispatcher: the fetcher pulls signatures from the coordinator and writes
// them into the Persistence Gateway autonomously, so the Dispatcher has no
// request surface into it beyond shutdown.
type SigFetcher interface {
	Shutdown()
}
