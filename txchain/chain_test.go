package txchain_test

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/vaultd-project/vaultd/txchain"
	"github.com/vaultd-project/vaultd/vault"
)

func testParticipants(t *testing.T) *vault.Participants {
	t.Helper()

	newXpub := func(seed byte) *hdkeychain.ExtendedKey {
		seedBytes := bytes32(seed)
		xpriv, err := hdkeychain.NewMaster(seedBytes[:], &chaincfg.RegressionNetParams)
		require.NoError(t, err)
		return xpriv
	}

	return &vault.Participants{
		StakeholderXpubs:   []*hdkeychain.ExtendedKey{newXpub(1), newXpub(2)},
		ManagerXpubs:       []*hdkeychain.ExtendedKey{newXpub(3)},
		OurStakeholderXpub: newXpub(1),
		IsStakeholder:      true,
	}
}

func bytes32(seed byte) [32]byte {
	var out [32]byte
	for i := range out {
		out[i] = seed
	}
	return out
}

func testConfig(t *testing.T) *txchain.Config {
	return &txchain.Config{
		Participants:     testParticipants(t),
		EmergencyAddress: "bcrt1qw508d6qejxtdg4y5r3zarvary0c5xw7kygt080",
		LockTime:         0,
		UnvaultCSV:       144,
		ChainParams:      &chaincfg.RegressionNetParams,
	}
}

// TestDeriveChainDeterministic asserts that deriving the same deposit twice
// produces byte-identical unsigned transactions: the property every
// signature-sharing step in the protocol assumes holds without any
// coordination between stakeholders.
func TestDeriveChainDeterministic(t *testing.T) {
	outpoint := wire.OutPoint{Index: 0}
	cfg := testConfig(t)

	chainA, err := txchain.DeriveChain(outpoint, btcutil.Amount(1_000_000), 7, cfg)
	require.NoError(t, err)

	chainB, err := txchain.DeriveChain(outpoint, btcutil.Amount(1_000_000), 7, cfg)
	require.NoError(t, err)

	require.Equal(t, chainA.Unvault.Wtxid(), chainB.Unvault.Wtxid())
	require.Equal(t, chainA.Cancel.Wtxid(), chainB.Cancel.Wtxid())
	require.Equal(t, chainA.Emergency.Wtxid(), chainB.Emergency.Wtxid())
	require.Equal(t, chainA.UnvaultEmergency.Wtxid(), chainB.UnvaultEmergency.Wtxid())
}

// TestDeriveChainDifferentIndexDiverges guards against a degenerate
// derivation that ignores the index entirely.
func TestDeriveChainDifferentIndexDiverges(t *testing.T) {
	outpoint := wire.OutPoint{Index: 0}
	cfg := testConfig(t)

	chainA, err := txchain.DeriveChain(outpoint, btcutil.Amount(1_000_000), 1, cfg)
	require.NoError(t, err)

	chainB, err := txchain.DeriveChain(outpoint, btcutil.Amount(1_000_000), 2, cfg)
	require.NoError(t, err)

	require.NotEqual(t, chainA.Unvault.Wtxid(), chainB.Unvault.Wtxid())
}

// TestDeriveChainRequiresStakeholderForEmergency asserts a manager-only
// config cannot derive Emergency or UnvaultEmergency templates.
func TestDeriveChainRequiresStakeholderForEmergency(t *testing.T) {
	outpoint := wire.OutPoint{Index: 0}
	cfg := testConfig(t)
	cfg.Participants.IsStakeholder = false

	_, err := txchain.DeriveChain(outpoint, btcutil.Amount(1_000_000), 3, cfg)
	require.ErrorIs(t, err, txchain.ErrNotStakeholder)
}

func TestDeriveChainUnvaultSpendsDeposit(t *testing.T) {
	outpoint := wire.OutPoint{Index: 5}
	cfg := testConfig(t)

	chain, err := txchain.DeriveChain(outpoint, btcutil.Amount(2_000_000), 0, cfg)
	require.NoError(t, err)

	require.Equal(t, outpoint, chain.Unvault.Packet.UnsignedTx.TxIn[0].PreviousOutPoint)

	unvaultOutpoint := wire.OutPoint{Hash: chain.Unvault.Packet.UnsignedTx.TxHash(), Index: 0}
	require.Equal(t, unvaultOutpoint, chain.Cancel.Packet.UnsignedTx.TxIn[0].PreviousOutPoint)
	require.Equal(t, unvaultOutpoint, chain.UnvaultEmergency.Packet.UnsignedTx.TxIn[0].PreviousOutPoint)
	require.Equal(t, outpoint, chain.Emergency.Packet.UnsignedTx.TxIn[0].PreviousOutPoint)
}
