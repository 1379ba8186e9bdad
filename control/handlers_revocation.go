package control

import (
	"context"

	"github.com/btcsuite/btcd/btcutil/psbt"

	"github.com/vaultd-project/vaultd/sigcheck"
	"github.com/vaultd-project/vaultd/vault"
)

func (d *Dispatcher) handleGetRevocationTxs(req *GetRevocationTxsRequest) *ControlError {
	v, cerr := d.vaultByOutpoint(req.Outpoint)
	if cerr != nil {
		if cerr.Kind == KindState {
			return fatalOutcome[*RevocationTriple](req.reply, nil, nil)
		}
		return fatalOutcome[*RevocationTriple](req.reply, nil, cerr)
	}
	if v.Status == vault.StatusUnconfirmed {
		return fatalOutcome[*RevocationTriple](req.reply, nil, nil)
	}

	chain, err := d.cfg.DeriveChain(v.DepositOutpoint, v.Amount, v.DerivationIndex, d.txchainConfig())
	if err != nil {
		return fatalOutcome[*RevocationTriple](req.reply, nil, internalInvariantf(
			"re-deriving revocation chain for vault %s: %v", v.DepositOutpoint, err))
	}

	return fatalOutcome(req.reply, &RevocationTriple{
		Cancel:           chain.Cancel.Packet,
		Emergency:        chain.Emergency.Packet,
		UnvaultEmergency: chain.UnvaultEmergency.Packet,
	}, nil)
}

// handleRevocationTxs implements the RevocationTxs validation pipeline:
// status check, per-role wtxid match, self-signature presence, signature
// verification, atomic merge, then relay. Any failure before the merge
// step leaves persistence untouched, satisfying the all-or-nothing
// invariant.
func (d *Dispatcher) handleRevocationTxs(req *RevocationTxsRequest) *ControlError {
	v, cerr := d.vaultByOutpoint(req.Outpoint)
	if cerr != nil {
		return fatalOutcome(req.reply, struct{}{}, cerr)
	}
	if v.Status != vault.StatusFunded {
		return fatalOutcome(req.reply, struct{}{}, stateErrorf(
			"invalid vault status: expected %s but got %s", vault.StatusFunded, v.Status))
	}

	submitted := map[vault.Role]*psbtPacketAndSigs{
		vault.RoleCancel:           {packet: req.Cancel},
		vault.RoleEmergency:        {packet: req.Emergency},
		vault.RoleUnvaultEmergency: {packet: req.UnvaultEmergency},
	}

	participants := d.cfg.Daemon.Participants()

	for role, entry := range submitted {
		stored, err := d.cfg.Gateway.PresignedTxByRole(v.ID, role)
		if err != nil {
			return fatalOutcome(req.reply, struct{}{}, internalInvariantf(
				"no stored %s template for funded vault %s: %v", role, v.DepositOutpoint, err))
		}
		entry.stored = stored

		if cerr := requireWtxidMatch(role, stored, entry.packet); cerr != nil {
			return fatalOutcome(req.reply, struct{}{}, cerr)
		}

		sigs, err := extractPartialSigs(entry.packet)
		if err != nil {
			return fatalOutcome(req.reply, struct{}{}, inputErrorf(
				"invalid %s transaction: %v", role, err))
		}
		entry.sigs = sigs

		if cerr := requireOurSignature(role, participants, v.DerivationIndex, sigs); cerr != nil {
			return fatalOutcome(req.reply, struct{}{}, cerr)
		}

		if err := sigcheck.CheckRevocationSignatures(stored, sigs); err != nil {
			return fatalOutcome(req.reply, struct{}{}, cryptoErrorf(err,
				"invalid signature in %s transaction", role))
		}
	}

	now := d.cfg.Clock.Now()

	if err := d.cfg.Gateway.TransitionStatus(v.ID, vault.StatusFunded, vault.StatusSecuring, now); err != nil {
		return fatalOutcome(req.reply, struct{}{}, persistenceError(err))
	}

	for _, role := range vault.RevocationRoles() {
		entry := submitted[role]
		updated, err := d.cfg.Gateway.UpdatePresignedTx(v.ID, role, entry.sigs, participants, now)
		if err != nil {
			return fatalOutcome(req.reply, struct{}{}, persistenceError(err))
		}
		entry.updated = updated
	}

	for _, role := range vault.RevocationRoles() {
		entry := submitted[role]
		if err := d.cfg.Relay.ShareSigs(context.Background(), entry.updated.Txid(), entry.sigs); err != nil {
			return fatalOutcome(req.reply, struct{}{}, coordinatorError(err))
		}
	}

	return fatalOutcome(req.reply, struct{}{}, nil)
}

type psbtPacketAndSigs struct {
	packet  *psbt.Packet
	stored  *vault.PresignedTx
	sigs    vault.PartialSigs
	updated *vault.PresignedTx
}
