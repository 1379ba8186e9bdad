package control

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"

	"github.com/vaultd-project/vaultd/chainwatch"
	"github.com/vaultd-project/vaultd/vault"
)

// Result is the generic reply payload every Control Request carries back
// to its caller on a zero-capacity (rendezvous) reply channel: at most one
// of Value/Err is meaningful, matching the distilled spec's Option/Result
// reply contract generalized over Go's (value, error) idiom instead of a
// tagged enum. This generalizes switch_control.go's per-request reply
// channel idiom with Go generics instead of duplicating a reply struct per
// request kind.
type Result[T any] struct {
	Value T
	Err   *ControlError
}

// ShutdownRequest asks the Dispatcher to signal its sibling subsystems and
// stop its own Run loop. Shutdown is best-effort: the Dispatcher does not
// wait for pending replies to drain first.
type ShutdownRequest struct {
	reply chan struct{}
}

// GetInfoReply answers GetInfo.
type GetInfoReply struct {
	NetworkName  string
	BlockHeight  int32
	SyncProgress float64
}

// GetInfoRequest queries the chain-watcher's sync progress and the store's
// tip.
type GetInfoRequest struct {
	reply chan Result[GetInfoReply]
}

// VaultSummary is one projected row of ListVaults.
type VaultSummary struct {
	Outpoint        wire.OutPoint
	Amount          btcutil.Amount
	Status          vault.Status
	DerivationIndex uint32
	DepositAddress  string
}

// ListVaultsRequest filters the vault set. A nil Statuses or Outpoints
// means "no filter on that dimension"; non-nil filters AND-combine.
type ListVaultsRequest struct {
	Statuses  []vault.Status
	Outpoints []wire.OutPoint

	reply chan Result[[]VaultSummary]
}

// DepositAddrRequest asks for the next unused deposit address. The
// Dispatcher is a pure pass-through to the configured AddressSource; the
// wallet module that actually manages address reservation is an external
// collaborator.
type DepositAddrRequest struct {
	reply chan Result[string]
}

// GetRevocationTxsRequest asks for a freshly re-derived revocation triple
// for a vault. Only meaningful for Stakeholders; non-Stakeholder callers
// must be blocked at the RPC boundary before a request of this kind is
// ever constructed.
type GetRevocationTxsRequest struct {
	Outpoint wire.OutPoint

	reply chan Result[*RevocationTriple]
}

// RevocationTriple carries the three presigned revocation PSBTs in the
// fixed order the RevocationTxs request expects them back in.
type RevocationTriple struct {
	Cancel           *psbt.Packet
	Emergency        *psbt.Packet
	UnvaultEmergency *psbt.Packet
}

// RevocationTxsRequest submits a co-signed revocation triple for merging.
// A nil Err reply means success; the reply's Value is always the empty
// struct.
type RevocationTxsRequest struct {
	Outpoint         wire.OutPoint
	Cancel           *psbt.Packet
	Emergency        *psbt.Packet
	UnvaultEmergency *psbt.Packet

	reply chan Result[struct{}]
}

// GetUnvaultTxRequest asks for a freshly re-derived Unvault template.
type GetUnvaultTxRequest struct {
	Outpoint wire.OutPoint

	reply chan Result[*psbt.Packet]
}

// UnvaultTxRequest submits a co-signed Unvault PSBT for merging.
type UnvaultTxRequest struct {
	Outpoint wire.OutPoint
	Unvault  *psbt.Packet

	reply chan Result[struct{}]
}

// VaultPresignedTxs is one row of ListPresignedTransactions. Emergency and
// UnvaultEmergency are nil unless the local participant is a Stakeholder.
type VaultPresignedTxs struct {
	Outpoint         wire.OutPoint
	Unvault          *psbt.Packet
	Cancel           *psbt.Packet
	Emergency        *psbt.Packet
	UnvaultEmergency *psbt.Packet
}

// ListPresignedTransactionsRequest lists presigned transactions for the
// given outpoints, or every vault if Outpoints is nil.
type ListPresignedTransactionsRequest struct {
	Outpoints []wire.OutPoint

	reply chan Result[[]VaultPresignedTxs]
}

// VaultOnchainTxs is one row of ListOnchainTransactions. Every field,
// Deposit included, is nil if no chain-watcher is wired or it has no
// record of that transaction yet; a missing deposit record is not
// reported as an error.
type VaultOnchainTxs struct {
	Outpoint         wire.OutPoint
	Deposit          *chainwatch.WalletTransaction
	Unvault          *chainwatch.WalletTransaction
	Cancel           *chainwatch.WalletTransaction
	Emergency        *chainwatch.WalletTransaction
	UnvaultEmergency *chainwatch.WalletTransaction
}

// ListOnchainTransactionsRequest lists on-chain transaction state for the
// given outpoints, or every vault if Outpoints is nil.
type ListOnchainTransactionsRequest struct {
	Outpoints []wire.OutPoint

	reply chan Result[[]VaultOnchainTxs]
}

// Request is the union of every Control Request kind the Dispatcher's Run
// loop accepts on its single inbound channel, per SPEC_FULL.md §4.5's
// "single Dispatcher.Run(ctx) loop ranging over an inbound chan Request".
// requestKind also doubles as the Prometheus metrics label.
type Request interface {
	requestKind() string
}

func (*ShutdownRequest) requestKind() string                  { return "shutdown" }
func (*GetInfoRequest) requestKind() string                   { return "get_info" }
func (*ListVaultsRequest) requestKind() string                { return "list_vaults" }
func (*DepositAddrRequest) requestKind() string                { return "deposit_addr" }
func (*GetRevocationTxsRequest) requestKind() string           { return "get_revocation_txs" }
func (*RevocationTxsRequest) requestKind() string              { return "revocation_txs" }
func (*GetUnvaultTxRequest) requestKind() string               { return "get_unvault_tx" }
func (*UnvaultTxRequest) requestKind() string                  { return "unvault_tx" }
func (*ListPresignedTransactionsRequest) requestKind() string  { return "list_presigned_transactions" }
func (*ListOnchainTransactionsRequest) requestKind() string    { return "list_onchain_transactions" }
