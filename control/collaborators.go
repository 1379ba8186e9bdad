package control

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/vaultd-project/vaultd/txchain"
	"github.com/vaultd-project/vaultd/vault"
	"github.com/vaultd-project/vaultd/vaultdb"
)

// Gateway is the Persistence Gateway surface the Dispatcher depends on.
// *vaultdb.DB satisfies it; package tests wire a real temp-dir-backed
// *vaultdb.DB through it rather than a fake.
type Gateway interface {
	VaultByDeposit(outpoint wire.OutPoint) (*vault.Vault, error)
	Vaults(filter vaultdb.VaultFilter) ([]*vault.Vault, error)
	PresignedTxByRole(vaultID uint64, role vault.Role) (*vault.PresignedTx, error)
	UpdatePresignedTx(vaultID uint64, role vault.Role, newSigs vault.PartialSigs, participants *vault.Participants, now time.Time) (*vault.PresignedTx, error)
	TransitionStatus(vaultID uint64, from, to vault.Status, now time.Time) error
	Tip() (*vault.BlockchainTip, error)
}

// Relay is the Coordinator Relay surface the Dispatcher depends on.
// *coordnet.Relay satisfies it.
type Relay interface {
	ShareSigs(ctx context.Context, roleTxid chainhash.Hash, sigs vault.PartialSigs) error
}

// AddressSource is the surrounding wallet module's pass-through surface for
// DepositAddr: the Dispatcher never derives or reserves addresses itself.
type AddressSource interface {
	NextDepositAddress() (string, error)
}

// DeriveChainFunc matches txchain.DeriveChain's signature exactly, so the
// Dispatcher's default wiring is literally that function and package tests
// can substitute a fake Derivor, per SPEC_FULL.md §8.
type DeriveChainFunc func(outpoint wire.OutPoint, amount btcutil.Amount, derivIndex uint32, cfg *txchain.Config) (*txchain.Chain, error)
