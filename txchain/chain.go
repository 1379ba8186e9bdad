package txchain

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/vaultd-project/vaultd/vault"
)

// ErrNotStakeholder is returned when Emergency or UnvaultEmergency
// derivation is requested by a participant not holding the Stakeholder
// capability. The Emergency address is mandatory for stakeholders; callers
// without it have no business asking for these templates.
var ErrNotStakeholder = fmt.Errorf("txchain: emergency transactions require the Stakeholder role")

// Config carries everything DeriveChain needs to regenerate a vault's
// transaction chain deterministically: the participant keyset, the
// network-wide CSV delay, and the nLockTime every template is stamped
// with. It is a read-only view into the daemon-wide configuration object
// described in the Control Dispatcher's design notes.
type Config struct {
	// Participants holds every stakeholder/manager xpub plus ours.
	Participants *vault.Participants

	// EmergencyAddress is the fixed cold-storage destination for
	// Emergency and UnvaultEmergency. Only populated for stakeholders.
	EmergencyAddress string

	// LockTime is the nLockTime stamped on every derived transaction.
	// Revault-style daemons keep this at the current block height at
	// first derivation, then freeze it; it does not change across
	// re-derivations of the same vault.
	LockTime uint32

	// UnvaultCSV is the relative-locktime delay, in blocks, that must
	// pass after the Unvault transaction confirms before the Unvault
	// output's CSV branch, which needs every stakeholder's signature,
	// becomes spendable.
	UnvaultCSV uint32

	// ChainParams selects the network the EmergencyAddress is decoded
	// against.
	ChainParams *chaincfg.Params
}

// Chain is the set of four deterministic templates derived from a single
// confirmed deposit.
type Chain struct {
	Unvault          *vault.PresignedTx
	Cancel           *vault.PresignedTx
	Emergency        *vault.PresignedTx
	UnvaultEmergency *vault.PresignedTx
}

// DeriveChain regenerates the canonical unsigned presigned-transaction
// templates for a confirmed deposit. It must produce byte-for-byte
// identical unsigned transactions given the same inputs: independent
// stakeholders compute the same wtxid without coordinating, which is the
// property every signature-sharing step in the protocol depends on.
func DeriveChain(outpoint wire.OutPoint, amount btcutil.Amount, derivIndex uint32, cfg *Config) (*Chain, error) {
	descriptors, depositScript, unvaultScript, err := deriveDescriptors(cfg, derivIndex)
	if err != nil {
		return nil, err
	}

	depositOut := wire.NewTxOut(int64(amount), descriptors.DepositDescriptor)

	stakeholderCount := len(cfg.Participants.StakeholderXpubs)

	unvault, err := buildUnvaultTemplate(outpoint, depositOut, depositScript, descriptors, cfg)
	if err != nil {
		return nil, err
	}
	unvault.RequiredSigners = stakeholderCount

	unvaultOutpoint := wire.OutPoint{Hash: unvault.Packet.UnsignedTx.TxHash(), Index: 0}
	unvaultOut := unvault.Packet.UnsignedTx.TxOut[0]

	cancel, err := buildRevocationTemplate(
		vault.RoleCancel, unvaultOutpoint, unvaultOut, unvaultScript,
		descriptors.DepositDescriptor, cfg,
	)
	if err != nil {
		return nil, err
	}
	cancel.RequiredSigners = stakeholderCount

	emergency, err := buildEmergencyTemplate(
		vault.RoleEmergency, outpoint, depositOut, depositScript, descriptors, cfg,
	)
	if err != nil {
		return nil, err
	}
	emergency.RequiredSigners = stakeholderCount

	unvaultEmergency, err := buildEmergencyTemplate(
		vault.RoleUnvaultEmergency, unvaultOutpoint, unvaultOut, unvaultScript, descriptors, cfg,
	)
	if err != nil {
		return nil, err
	}
	unvaultEmergency.RequiredSigners = stakeholderCount

	return &Chain{
		Unvault:          unvault,
		Cancel:           cancel,
		Emergency:        emergency,
		UnvaultEmergency: unvaultEmergency,
	}, nil
}

// DeriveDescriptors re-derives a vault's output-script descriptors without
// building any transaction template, for callers that only need the
// deposit script (e.g. re-rendering a deposit address for ListVaults).
func DeriveDescriptors(cfg *Config, derivIndex uint32) (*vault.Descriptors, error) {
	descriptors, _, _, err := deriveDescriptors(cfg, derivIndex)
	return descriptors, err
}

// buildUnvaultTemplate spends the deposit output into the CSV-delayed
// Unvault output plus a CPFP anchor output.
func buildUnvaultTemplate(
	outpoint wire.OutPoint, prevOut *wire.TxOut, prevScript []byte,
	descriptors *vault.Descriptors, cfg *Config,
) (*vault.PresignedTx, error) {

	tx := wire.NewMsgTx(2)
	tx.LockTime = cfg.LockTime
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: outpoint,
		Sequence:         wire.MaxTxInSequenceNum,
	})

	unvaultAmount := prevOut.Value - presignedTxFee
	tx.AddTxOut(wire.NewTxOut(unvaultAmount, descriptors.UnvaultDescriptor))
	tx.AddTxOut(wire.NewTxOut(dustCpfpAmount, descriptors.CpfpDescriptor))

	return wrapTemplate(vault.RoleUnvault, tx, prevOut, prevScript)
}

// buildRevocationTemplate spends unvaultOut back into a fresh deposit
// output (the re-vaulting path Cancel takes to abort a spend attempt).
func buildRevocationTemplate(
	role vault.Role, spendOutpoint wire.OutPoint, prevOut *wire.TxOut,
	prevScript, destinationScript []byte, cfg *Config,
) (*vault.PresignedTx, error) {

	tx := wire.NewMsgTx(2)
	tx.LockTime = cfg.LockTime
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: spendOutpoint,
		Sequence:         wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(wire.NewTxOut(prevOut.Value-presignedTxFee, destinationScript))

	return wrapTemplate(role, tx, prevOut, prevScript)
}

// buildEmergencyTemplate spends prevOut straight to the fixed emergency
// address, bypassing the vault's own descriptors entirely. Only valid for
// a Stakeholder config.
func buildEmergencyTemplate(
	role vault.Role, spendOutpoint wire.OutPoint, prevOut *wire.TxOut,
	prevScript []byte, descriptors *vault.Descriptors, cfg *Config,
) (*vault.PresignedTx, error) {

	if !cfg.Participants.IsStakeholder || descriptors.EmergencyAddress == "" {
		return nil, ErrNotStakeholder
	}

	emergencyScript, err := emergencyAddressScript(descriptors.EmergencyAddress, cfg.ChainParams)
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(2)
	tx.LockTime = cfg.LockTime
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: spendOutpoint,
		Sequence:         wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(wire.NewTxOut(prevOut.Value-presignedTxFee, emergencyScript))

	return wrapTemplate(role, tx, prevOut, prevScript)
}

// emergencyAddressScript decodes the daemon's fixed emergency address for
// params and returns its output script. The address is validated once at
// config load time in a complete daemon; DeriveChain re-validates it on
// every call since it has no cheaper place to cache the result.
func emergencyAddressScript(addr string, params *chaincfg.Params) ([]byte, error) {
	decoded, err := btcutil.DecodeAddress(addr, params)
	if err != nil {
		return nil, fmt.Errorf("txchain: invalid emergency address: %w", err)
	}
	return txscript.PayToAddrScript(decoded)
}

// dustCpfpAmount is the fixed value of the CPFP anchor output attached to
// the Unvault transaction. It exists purely so a future fee-bump can add
// an input spending it; it carries no custodial value of its own.
const dustCpfpAmount = 330

// wrapTemplate packages an unsigned transaction into a PSBT packet with
// its single input's witness UTXO and witness script populated, which is
// everything sigcheck.PresignedSighash needs to compute the canonical
// sighash without touching the chain.
func wrapTemplate(role vault.Role, tx *wire.MsgTx, prevOut *wire.TxOut, witnessScript []byte) (*vault.PresignedTx, error) {
	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, fmt.Errorf("txchain: building PSBT for %s: %w", role, err)
	}

	packet.Inputs[0].WitnessUtxo = prevOut
	packet.Inputs[0].WitnessScript = witnessScript

	return &vault.PresignedTx{
		Role:   role,
		Packet: packet,
	}, nil
}
