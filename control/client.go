package control

import (
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"

	"github.com/vaultd-project/vaultd/vault"
)

// resultOf submits req, blocks on ch for its reply, and converts the
// ControlError payload into a plain error, which is the shape every
// typed request method below (GetInfo, ListVaults, RevocationTxs, ...)
// returns to its RPC-front-end or test caller.
func resultOf[T any](d *Dispatcher, req Request, ch chan Result[T]) (T, error) {
	d.submit(req)
	result := <-ch
	if result.Err != nil {
		return result.Value, result.Err
	}
	return result.Value, nil
}

// Shutdown asks the Dispatcher to stop its Run loop, blocking until it has
// acknowledged the request.
func (d *Dispatcher) Shutdown() {
	req := &ShutdownRequest{reply: make(chan struct{})}
	d.submit(req)
	<-req.reply
}

// GetInfo answers a GetInfo Control Request.
func (d *Dispatcher) GetInfo() (GetInfoReply, error) {
	req := &GetInfoRequest{reply: make(chan Result[GetInfoReply])}
	return resultOf(d, req, req.reply)
}

// ListVaults answers a ListVaults Control Request.
func (d *Dispatcher) ListVaults(statuses []vault.Status, outpoints []wire.OutPoint) ([]VaultSummary, error) {
	req := &ListVaultsRequest{
		Statuses:  statuses,
		Outpoints: outpoints,
		reply:     make(chan Result[[]VaultSummary]),
	}
	return resultOf(d, req, req.reply)
}

// DepositAddr answers a DepositAddr Control Request.
func (d *Dispatcher) DepositAddr() (string, error) {
	req := &DepositAddrRequest{reply: make(chan Result[string])}
	return resultOf(d, req, req.reply)
}

// GetRevocationTxs answers a GetRevocationTxs Control Request. A nil
// *RevocationTriple with a nil error means the vault is unknown or
// unconfirmed.
func (d *Dispatcher) GetRevocationTxs(outpoint wire.OutPoint) (*RevocationTriple, error) {
	req := &GetRevocationTxsRequest{
		Outpoint: outpoint,
		reply:    make(chan Result[*RevocationTriple]),
	}
	return resultOf(d, req, req.reply)
}

// RevocationTxs answers a RevocationTxs Control Request.
func (d *Dispatcher) RevocationTxs(outpoint wire.OutPoint, cancel, emergency, unvaultEmergency *psbt.Packet) error {
	req := &RevocationTxsRequest{
		Outpoint:         outpoint,
		Cancel:           cancel,
		Emergency:        emergency,
		UnvaultEmergency: unvaultEmergency,
		reply:            make(chan Result[struct{}]),
	}
	_, err := resultOf(d, req, req.reply)
	return err
}

// GetUnvaultTx answers a GetUnvaultTx Control Request.
func (d *Dispatcher) GetUnvaultTx(outpoint wire.OutPoint) (*psbt.Packet, error) {
	req := &GetUnvaultTxRequest{
		Outpoint: outpoint,
		reply:    make(chan Result[*psbt.Packet]),
	}
	return resultOf(d, req, req.reply)
}

// UnvaultTx answers an UnvaultTx Control Request.
func (d *Dispatcher) UnvaultTx(outpoint wire.OutPoint, unvault *psbt.Packet) error {
	req := &UnvaultTxRequest{
		Outpoint: outpoint,
		Unvault:  unvault,
		reply:    make(chan Result[struct{}]),
	}
	_, err := resultOf(d, req, req.reply)
	return err
}

// ListPresignedTransactions answers a ListPresignedTransactions Control
// Request.
func (d *Dispatcher) ListPresignedTransactions(outpoints []wire.OutPoint) ([]VaultPresignedTxs, error) {
	req := &ListPresignedTransactionsRequest{
		Outpoints: outpoints,
		reply:     make(chan Result[[]VaultPresignedTxs]),
	}
	return resultOf(d, req, req.reply)
}

// ListOnchainTransactions answers a ListOnchainTransactions Control
// Request.
func (d *Dispatcher) ListOnchainTransactions(outpoints []wire.OutPoint) ([]VaultOnchainTxs, error) {
	req := &ListOnchainTransactionsRequest{
		Outpoints: outpoints,
		reply:     make(chan Result[[]VaultOnchainTxs]),
	}
	return resultOf(d, req, req.reply)
}
