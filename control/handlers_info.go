package control

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	vconfig "github.com/vaultd-project/vaultd/config"
	"github.com/vaultd-project/vaultd/txchain"
	"github.com/vaultd-project/vaultd/vault"
	"github.com/vaultd-project/vaultd/vaultdb"
)

func (d *Dispatcher) handleGetInfo(req *GetInfoRequest) *ControlError {
	tip, err := d.cfg.Gateway.Tip()
	if err != nil {
		return fatalOutcome(req.reply, GetInfoReply{}, persistenceError(err))
	}

	var syncProgress float64
	if d.cfg.Watcher != nil {
		syncProgress = d.cfg.Watcher.SyncProgress()
	}

	reply := GetInfoReply{
		NetworkName:  d.cfg.Daemon.NetworkName(),
		BlockHeight:  tip.Height,
		SyncProgress: syncProgress,
	}

	return fatalOutcome(req.reply, reply, nil)
}

func (d *Dispatcher) handleListVaults(req *ListVaultsRequest) *ControlError {
	participants := d.cfg.Daemon.Participants()
	vaultParams := d.cfg.Daemon.Vault()

	vaults, err := d.cfg.Gateway.Vaults(vaultdb.VaultFilter{
		Statuses:  req.Statuses,
		Outpoints: req.Outpoints,
	})
	if err != nil {
		return fatalOutcome[[]VaultSummary](req.reply, nil, persistenceError(err))
	}

	summaries := make([]VaultSummary, 0, len(vaults))
	for _, v := range vaults {
		addr, err := depositAddress(v, participants, vaultParams)
		if err != nil {
			return fatalOutcome[[]VaultSummary](req.reply, nil, internalInvariantf(
				"re-deriving deposit address for vault %s: %v", v.DepositOutpoint, err))
		}

		summaries = append(summaries, VaultSummary{
			Outpoint:        v.DepositOutpoint,
			Amount:          v.Amount,
			Status:          v.Status,
			DerivationIndex: v.DerivationIndex,
			DepositAddress:  addr,
		})
	}

	return fatalOutcome(req.reply, summaries, nil)
}

func (d *Dispatcher) handleDepositAddr(req *DepositAddrRequest) *ControlError {
	addr, err := d.cfg.Addresses.NextDepositAddress()
	if err != nil {
		return fatalOutcome(req.reply, "", inputErrorf("unable to fetch next deposit address: %v", err))
	}

	return fatalOutcome(req.reply, addr, nil)
}

// depositAddress re-derives the deposit output's script for v and renders
// it as an address on vaultParams.ChainParams, for ListVaults' "each entry
// carries the re-derived deposit address" contract.
func depositAddress(v *vault.Vault, participants *vault.Participants, vaultParams vconfig.VaultParams) (string, error) {
	descriptors, err := txchain.DeriveDescriptors(&txchain.Config{
		Participants:     participants,
		EmergencyAddress: vaultParams.EmergencyAddress,
		LockTime:         vaultParams.LockTime,
		UnvaultCSV:       vaultParams.UnvaultCSV,
		ChainParams:      vaultParams.ChainParams,
	}, v.DerivationIndex)
	if err != nil {
		return "", err
	}

	return pkScriptAddress(descriptors.DepositDescriptor, vaultParams.ChainParams)
}

// pkScriptAddress renders a pkScript as its canonical address string on
// params. The deposit script is always a single-address P2WSH output, so
// exactly one address is expected back.
func pkScriptAddress(pkScript []byte, params *chaincfg.Params) (string, error) {
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(pkScript, params)
	if err != nil {
		return "", fmt.Errorf("extracting address from pkScript: %w", err)
	}
	if len(addrs) != 1 {
		return "", fmt.Errorf("expected exactly one address in deposit pkScript, got %d", len(addrs))
	}
	return addrs[0].EncodeAddress(), nil
}
