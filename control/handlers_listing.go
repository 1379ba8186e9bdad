package control

import (
	"github.com/btcsuite/btcd/wire"

	"github.com/vaultd-project/vaultd/chainwatch"
	"github.com/vaultd-project/vaultd/vault"
	"github.com/vaultd-project/vaultd/vaultdb"
)

// targetVaults resolves a request's optional outpoint filter into the
// concrete vault set ListPresignedTransactions/ListOnchainTransactions
// iterate: every vault if outpoints is nil, else exactly those outpoints
// (failing UnknownOutpoint on the first miss).
func (d *Dispatcher) targetVaults(outpoints []wire.OutPoint) ([]*vault.Vault, *ControlError) {
	if outpoints == nil {
		vaults, err := d.cfg.Gateway.Vaults(vaultdb.VaultFilter{})
		if err != nil {
			return nil, persistenceError(err)
		}
		return vaults, nil
	}

	vaults := make([]*vault.Vault, 0, len(outpoints))
	for _, op := range outpoints {
		v, cerr := d.vaultByOutpoint(op)
		if cerr != nil {
			return nil, cerr
		}
		vaults = append(vaults, v)
	}
	return vaults, nil
}

func (d *Dispatcher) handleListPresignedTransactions(req *ListPresignedTransactionsRequest) *ControlError {
	vaults, cerr := d.targetVaults(req.Outpoints)
	if cerr != nil {
		return fatalOutcome[[]VaultPresignedTxs](req.reply, nil, cerr)
	}

	participants := d.cfg.Daemon.Participants()

	rows := make([]VaultPresignedTxs, 0, len(vaults))
	for _, v := range vaults {
		if v.Status == vault.StatusUnconfirmed {
			return fatalOutcome[[]VaultPresignedTxs](req.reply, nil, stateErrorf(
				"invalid vault status: %s is unconfirmed", v.DepositOutpoint))
		}

		unvault, err := d.cfg.Gateway.PresignedTxByRole(v.ID, vault.RoleUnvault)
		if err != nil {
			return fatalOutcome[[]VaultPresignedTxs](req.reply, nil, internalInvariantf(
				"no stored unvault template for vault %s: %v", v.DepositOutpoint, err))
		}
		cancel, err := d.cfg.Gateway.PresignedTxByRole(v.ID, vault.RoleCancel)
		if err != nil {
			return fatalOutcome[[]VaultPresignedTxs](req.reply, nil, internalInvariantf(
				"no stored cancel template for vault %s: %v", v.DepositOutpoint, err))
		}

		row := VaultPresignedTxs{
			Outpoint: v.DepositOutpoint,
			Unvault:  unvault.Packet,
			Cancel:   cancel.Packet,
		}

		if participants.IsStakeholder {
			emergency, err := d.cfg.Gateway.PresignedTxByRole(v.ID, vault.RoleEmergency)
			if err != nil {
				return fatalOutcome[[]VaultPresignedTxs](req.reply, nil, internalInvariantf(
					"no stored emergency template for vault %s: %v", v.DepositOutpoint, err))
			}
			unvaultEmergency, err := d.cfg.Gateway.PresignedTxByRole(v.ID, vault.RoleUnvaultEmergency)
			if err != nil {
				return fatalOutcome[[]VaultPresignedTxs](req.reply, nil, internalInvariantf(
					"no stored unvault_emergency template for vault %s: %v", v.DepositOutpoint, err))
			}
			row.Emergency = emergency.Packet
			row.UnvaultEmergency = unvaultEmergency.Packet
		}

		rows = append(rows, row)
	}

	return fatalOutcome(req.reply, rows, nil)
}

func (d *Dispatcher) handleListOnchainTransactions(req *ListOnchainTransactionsRequest) *ControlError {
	vaults, cerr := d.targetVaults(req.Outpoints)
	if cerr != nil {
		return fatalOutcome[[]VaultOnchainTxs](req.reply, nil, cerr)
	}

	rows := make([]VaultOnchainTxs, 0, len(vaults))
	for _, v := range vaults {
		row := VaultOnchainTxs{Outpoint: v.DepositOutpoint}

		if d.cfg.Watcher != nil {
			if tx, ok := d.cfg.Watcher.WalletTransaction(v.DepositOutpoint.Hash); ok {
				row.Deposit = tx
			}
		}

		if v.Status != vault.StatusUnconfirmed {
			row.Unvault = d.onchainTxByRole(v, vault.RoleUnvault)
			row.Cancel = d.onchainTxByRole(v, vault.RoleCancel)
			row.Emergency = d.onchainTxByRole(v, vault.RoleEmergency)
			row.UnvaultEmergency = d.onchainTxByRole(v, vault.RoleUnvaultEmergency)
		}

		rows = append(rows, row)
	}

	return fatalOutcome(req.reply, rows, nil)
}

// onchainTxByRole looks up the chain-watcher's wallet view of a role's
// presigned transaction by its (signature-invariant) txid, returning nil if
// the watcher has no record of it yet (not broadcast, or not yet seen).
func (d *Dispatcher) onchainTxByRole(v *vault.Vault, role vault.Role) *chainwatch.WalletTransaction {
	if d.cfg.Watcher == nil {
		return nil
	}
	stored, err := d.cfg.Gateway.PresignedTxByRole(v.ID, role)
	if err != nil {
		return nil
	}
	tx, ok := d.cfg.Watcher.WalletTransaction(stored.Txid())
	if !ok {
		return nil
	}
	return tx
}
