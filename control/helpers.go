package control

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"

	"github.com/vaultd-project/vaultd/txchain"
	"github.com/vaultd-project/vaultd/vault"
	"github.com/vaultd-project/vaultd/vaultdb"
)

// vaultByOutpoint looks up a vault by deposit outpoint, translating
// vaultdb.ErrNotFound into an UnknownOutpoint StateError at the Dispatcher
// boundary, the mapping every RPC-facing handler needs before it can branch
// on the vault's status.
func (d *Dispatcher) vaultByOutpoint(outpoint wire.OutPoint) (*vault.Vault, *ControlError) {
	v, err := d.cfg.Gateway.VaultByDeposit(outpoint)
	if errors.Is(err, vaultdb.ErrNotFound) {
		return nil, stateErrorf("unknown outpoint %s", outpoint)
	}
	if err != nil {
		return nil, persistenceError(err)
	}
	return v, nil
}

// extractPartialSigs converts a submitted PSBT's sole input partial_sigs
// into the PartialSigs map shape the Signature Verifier and Persistence
// Gateway both consume.
func extractPartialSigs(packet *psbt.Packet) (vault.PartialSigs, error) {
	if len(packet.Inputs) == 0 {
		return nil, fmt.Errorf("control: submitted PSBT has no inputs")
	}

	sigs := make(vault.PartialSigs, len(packet.Inputs[0].PartialSigs))
	for _, sig := range packet.Inputs[0].PartialSigs {
		pub, err := btcec.ParsePubKey(sig.PubKey)
		if err != nil {
			return nil, fmt.Errorf("parsing partial_sigs pubkey: %w", err)
		}
		sigs[vault.PubKeyBytes(pub)] = sig.Signature
	}
	return sigs, nil
}

// txchainConfig assembles the Derivor's Config from the daemon-wide
// settings, the one place every handler that re-derives a template builds
// it from.
func (d *Dispatcher) txchainConfig() *txchain.Config {
	vaultParams := d.cfg.Daemon.Vault()
	return &txchain.Config{
		Participants:     d.cfg.Daemon.Participants(),
		EmergencyAddress: vaultParams.EmergencyAddress,
		LockTime:         vaultParams.LockTime,
		UnvaultCSV:       vaultParams.UnvaultCSV,
		ChainParams:      vaultParams.ChainParams,
	}
}

// requireWtxidMatch enforces that a submitted PSBT's unsigned wtxid equals
// the wtxid of the stored template for the same role, rejecting any
// attempt to attach signatures to a differently-shaped transaction.
func requireWtxidMatch(role vault.Role, stored *vault.PresignedTx, submitted *psbt.Packet) *ControlError {
	storedWtxid := stored.Wtxid()
	submittedWtxid := submitted.UnsignedTx.WitnessHash()
	if storedWtxid != submittedWtxid {
		return inputErrorf("invalid %s tx: db wtxid is %s but this PSBT's is %s",
			role, storedWtxid, submittedWtxid)
	}
	return nil
}

// requireOurSignature enforces that sigs contains an entry for the local
// participant's derived stakeholder pubkey at derivIndex.
func requireOurSignature(role vault.Role, participants *vault.Participants, derivIndex uint32, sigs vault.PartialSigs) *ControlError {
	ourPub, err := participants.OurPubKeyAt(derivIndex)
	if err != nil {
		return internalInvariantf("deriving our pubkey at index %d: %v", derivIndex, err)
	}
	if _, ok := sigs[vault.PubKeyBytes(ourPub)]; !ok {
		return inputErrorf("submitted %s transaction is missing our own signature", role)
	}
	return nil
}
