// Package vault defines the data model shared by every Control orchestrator
// component: the Vault record, its status ladder, the four presigned
// transaction roles, and the descriptors a vault derives its scripts from.
package vault

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// SighashAllAnyoneCanPay is the sighash flag byte every revocation
// (Cancel/Emergency/UnvaultEmergency) signature must carry: the scope fixes
// all outputs but permits additional inputs, so a fee-bumping input can be
// appended later without invalidating the signature.
const SighashAllAnyoneCanPay byte = 0x81

// SighashAll is the sighash flag byte the Unvault signature must carry: the
// scope fixes the entire transaction.
const SighashAll byte = 0x01

// Vault is a custody record keyed by its deposit outpoint. It is created by
// the chain-watcher when a deposit output matching a derived script is
// seen, mutated by the chain-watcher as the on-chain state advances,
// and mutated by the Control Dispatcher as signature collection completes.
// A vault is never deleted, only reclassified via Status.
type Vault struct {
	// ID is the store's internal row identifier, used to address the
	// vault's presigned transaction rows without re-keying on outpoint.
	ID uint64

	// DepositOutpoint is the funding output of the vault: a 32-byte
	// txid plus output index.
	DepositOutpoint wire.OutPoint

	// Amount is the deposit value, in satoshis.
	Amount btcutil.Amount

	// DerivationIndex is the unhardened BIP32 child index this vault's
	// descriptors and participant keys are derived at.
	DerivationIndex uint32

	// Status is the vault's current position on the status ladder.
	Status Status

	// UpdatedAt is the unix timestamp of the last status mutation.
	UpdatedAt int64
}

// String renders a Vault for logs; it deliberately omits Amount precision
// beyond satoshis and never includes any derived key material.
func (v *Vault) String() string {
	return fmt.Sprintf("vault(outpoint=%s, status=%s, amount=%d sat, deriv=%d)",
		v.DepositOutpoint, v.Status, v.Amount, v.DerivationIndex)
}

// PartialSigs maps a participant's compressed secp256k1 public key to its
// signature blob: a DER-encoded ECDSA signature with a single trailing
// sighash-type byte. Iteration order over a PartialSigs value obtained via
// SortedKeys is deterministic (ordered by serialized pubkey), which affects
// only logging and coordinator wire order, never correctness.
type PartialSigs map[[33]byte][]byte

// SortedKeys returns the map's keys sorted lexicographically, giving a
// deterministic iteration order per the partial-signature-maps design note.
func (p PartialSigs) SortedKeys() [][33]byte {
	keys := make([][33]byte, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && lessKey(keys[j], keys[j-1]); j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}

func lessKey(a, b [33]byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// PresignedTx is one row per (vault, role): a partially-signed transaction
// container plus the bookkeeping needed to tell whether it is ready for
// broadcast.
type PresignedTx struct {
	// RowID is the owning vault's row id; the store addresses this row
	// by the (RowID, Role) pair.
	RowID uint64

	// Role identifies which of the four roles this row holds.
	Role Role

	// Packet is the PSBT: unsigned transaction bytes plus whatever
	// partial signatures have been collected on input 0 so far.
	Packet *psbt.Packet

	// FullySigned is true once enough partial signatures have been
	// merged to finalize a valid witness for this transaction.
	FullySigned bool

	// RequiredSigners is the number of distinct pubkeys the witness
	// script demands before a valid witness can be finalized: every
	// role in this protocol uses an N-of-N multisig path, so this is
	// simply the size of the signing quorum for that role (all
	// stakeholders, for every role this package derives).
	RequiredSigners int
}

// Wtxid returns the witness-inclusive transaction id of the unsigned
// transaction this row wraps. It is stable across signature collection:
// two PresignedTx rows for the same (vault, role) always agree on it,
// which is the determinism invariant the whole signing protocol relies on.
func (p *PresignedTx) Wtxid() chainhash.Hash {
	return p.Packet.UnsignedTx.WitnessHash()
}

// Txid returns the non-witness transaction id, used as the coordinator
// message id: the Sig message's id field is always the plain txid, never
// the wtxid, per the coordinator wire protocol.
func (p *PresignedTx) Txid() chainhash.Hash {
	return p.Packet.UnsignedTx.TxHash()
}

// PubKeyBytes serializes a public key in compressed form for use as a
// PartialSigs map key.
func PubKeyBytes(pub *btcec.PublicKey) [33]byte {
	var out [33]byte
	copy(out[:], pub.SerializeCompressed())
	return out
}

// Descriptors holds the three derived output-script descriptors for a
// vault plus its fixed emergency address. All four are deterministic
// functions of the vault's DerivationIndex and the daemon's configured
// participant keys.
type Descriptors struct {
	// DepositDescriptor describes the deposit output's script: an N-of-N
	// multisig over the stakeholders' keys at DerivationIndex.
	DepositDescriptor []byte

	// UnvaultDescriptor describes the Unvault output's script: spendable
	// either immediately with the signatures of every manager and every
	// stakeholder, or by all stakeholders together after the unvault CSV
	// delay.
	UnvaultDescriptor []byte

	// CpfpDescriptor describes the CPFP anchor output used to fee-bump
	// the presigned transactions without invalidating their signatures.
	CpfpDescriptor []byte

	// EmergencyAddress is the fixed, out-of-band emergency cold-storage
	// address. Mandatory for stakeholders; absent for managers.
	EmergencyAddress string
}

// BlockchainTip is the chain-watcher's last-seen position on the main
// chain.
type BlockchainTip struct {
	Height    int32
	BlockHash [32]byte
}
