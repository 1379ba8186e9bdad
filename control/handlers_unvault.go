package control

import (
	"context"

	"github.com/btcsuite/btcd/btcutil/psbt"

	"github.com/vaultd-project/vaultd/sigcheck"
	"github.com/vaultd-project/vaultd/vault"
)

func (d *Dispatcher) handleGetUnvaultTx(req *GetUnvaultTxRequest) *ControlError {
	v, cerr := d.vaultByOutpoint(req.Outpoint)
	if cerr != nil {
		return fatalOutcome[*psbt.Packet](req.reply, nil, cerr)
	}
	if v.Status == vault.StatusUnconfirmed {
		return fatalOutcome[*psbt.Packet](req.reply, nil, stateErrorf(
			"invalid vault status: %s is not yet confirmed", v.Status))
	}

	chain, err := d.cfg.DeriveChain(v.DepositOutpoint, v.Amount, v.DerivationIndex, d.txchainConfig())
	if err != nil {
		return fatalOutcome[*psbt.Packet](req.reply, nil, internalInvariantf(
			"re-deriving unvault template for vault %s: %v", v.DepositOutpoint, err))
	}

	return fatalOutcome(req.reply, chain.Unvault.Packet, nil)
}

// handleUnvaultTx implements the UnvaultTx validation pipeline: status
// check, wtxid match, self-signature presence, signature verification,
// merge, then relay.
func (d *Dispatcher) handleUnvaultTx(req *UnvaultTxRequest) *ControlError {
	v, cerr := d.vaultByOutpoint(req.Outpoint)
	if cerr != nil {
		return fatalOutcome(req.reply, struct{}{}, cerr)
	}
	if v.Status != vault.StatusSecured {
		return fatalOutcome(req.reply, struct{}{}, stateErrorf(
			"invalid vault status: expected %s but got %s", vault.StatusSecured, v.Status))
	}

	stored, err := d.cfg.Gateway.PresignedTxByRole(v.ID, vault.RoleUnvault)
	if err != nil {
		return fatalOutcome(req.reply, struct{}{}, internalInvariantf(
			"no stored unvault template for secured vault %s: %v", v.DepositOutpoint, err))
	}

	if cerr := requireWtxidMatch(vault.RoleUnvault, stored, req.Unvault); cerr != nil {
		return fatalOutcome(req.reply, struct{}{}, cerr)
	}

	sigs, err := extractPartialSigs(req.Unvault)
	if err != nil {
		return fatalOutcome(req.reply, struct{}{}, inputErrorf(
			"invalid unvault transaction: %v", err))
	}

	participants := d.cfg.Daemon.Participants()
	if cerr := requireOurSignature(vault.RoleUnvault, participants, v.DerivationIndex, sigs); cerr != nil {
		return fatalOutcome(req.reply, struct{}{}, cerr)
	}

	// Signature verification runs against the submitted packet itself
	// rather than the stored template: the Unvault role is checked with
	// plain SIGHASH_ALL and sigcheck.CheckUnvaultSignatures reads its
	// partial_sigs straight off tx.Packet.Inputs[0], so the submitted
	// PSBT (already wtxid-matched against stored) carries them.
	checkTx := &vault.PresignedTx{
		Role:   vault.RoleUnvault,
		Packet: req.Unvault,
	}
	checkTx.Packet.Inputs[0].WitnessUtxo = stored.Packet.Inputs[0].WitnessUtxo
	checkTx.Packet.Inputs[0].WitnessScript = stored.Packet.Inputs[0].WitnessScript

	if err := sigcheck.CheckUnvaultSignatures(checkTx); err != nil {
		return fatalOutcome(req.reply, struct{}{}, cryptoErrorf(err,
			"invalid signature in unvault transaction"))
	}

	now := d.cfg.Clock.Now()

	if err := d.cfg.Gateway.TransitionStatus(v.ID, vault.StatusSecured, vault.StatusActivating, now); err != nil {
		return fatalOutcome(req.reply, struct{}{}, persistenceError(err))
	}

	updated, err := d.cfg.Gateway.UpdatePresignedTx(v.ID, vault.RoleUnvault, sigs, participants, now)
	if err != nil {
		return fatalOutcome(req.reply, struct{}{}, persistenceError(err))
	}

	if err := d.cfg.Relay.ShareSigs(context.Background(), updated.Txid(), sigs); err != nil {
		return fatalOutcome(req.reply, struct{}{}, coordinatorError(err))
	}

	return fatalOutcome(req.reply, struct{}{}, nil)
}
