package vaultdb

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/vaultd-project/vaultd/vault"
)

func testParticipants(t *testing.T, count int) *vault.Participants {
	t.Helper()

	xpubs := make([]*hdkeychain.ExtendedKey, count)
	for i := 0; i < count; i++ {
		var seed [32]byte
		seed[0] = byte(i + 1)
		xpriv, err := hdkeychain.NewMaster(seed[:], &chaincfg.RegressionNetParams)
		require.NoError(t, err)
		xpubs[i] = xpriv
	}

	return &vault.Participants{
		StakeholderXpubs:   xpubs,
		OurStakeholderXpub: xpubs[0],
		IsStakeholder:      true,
	}
}

func testPresignedTx(t *testing.T, role vault.Role, requiredSigners int) *vault.PresignedTx {
	t.Helper()

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Index: 0}})
	tx.AddTxOut(wire.NewTxOut(100_000, []byte{0x00, 0x20}))

	packet, err := psbt.NewFromUnsignedTx(tx)
	require.NoError(t, err)
	packet.Inputs[0].WitnessUtxo = tx.TxOut[0]
	packet.Inputs[0].WitnessScript = []byte{0x51}

	return &vault.PresignedTx{
		Role:            role,
		Packet:          packet,
		RequiredSigners: requiredSigners,
	}
}

func TestCreateVaultAndLookup(t *testing.T) {
	db := makeTestDB(t)

	v := &vault.Vault{
		DepositOutpoint: wire.OutPoint{Index: 3},
		Amount:          btcutil.Amount(500_000),
		DerivationIndex: 7,
		Status:          vault.StatusFunded,
		UpdatedAt:       time.Now().Unix(),
	}

	created, err := db.CreateVault(v)
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	found, err := db.VaultByDeposit(v.DepositOutpoint)
	require.NoError(t, err)
	require.Equal(t, created.ID, found.ID)
	require.Equal(t, v.Amount, found.Amount)
	require.Equal(t, vault.StatusFunded, found.Status)

	_, err = db.VaultByDeposit(wire.OutPoint{Index: 99})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestVaultsFilter(t *testing.T) {
	db := makeTestDB(t)

	funded := &vault.Vault{DepositOutpoint: wire.OutPoint{Index: 1}, Status: vault.StatusFunded}
	secured := &vault.Vault{DepositOutpoint: wire.OutPoint{Index: 2}, Status: vault.StatusSecured}

	_, err := db.CreateVault(funded)
	require.NoError(t, err)
	_, err = db.CreateVault(secured)
	require.NoError(t, err)

	all, err := db.Vaults(VaultFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	onlyFunded, err := db.Vaults(VaultFilter{Statuses: []vault.Status{vault.StatusFunded}})
	require.NoError(t, err)
	require.Len(t, onlyFunded, 1)
	require.Equal(t, vault.StatusFunded, onlyFunded[0].Status)
}

func TestPresignedTxStoreAndFetch(t *testing.T) {
	db := makeTestDB(t)

	v, err := db.CreateVault(&vault.Vault{
		DepositOutpoint: wire.OutPoint{Index: 0},
		Status:          vault.StatusFunded,
	})
	require.NoError(t, err)

	tx := testPresignedTx(t, vault.RoleCancel, 2)
	_, err = db.StorePresignedTx(v.ID, tx)
	require.NoError(t, err)

	fetched, err := db.PresignedTxByRole(v.ID, vault.RoleCancel)
	require.NoError(t, err)
	require.Equal(t, vault.RoleCancel, fetched.Role)
	require.False(t, fetched.FullySigned)
	require.Equal(t, 2, fetched.RequiredSigners)
	require.Equal(t, tx.Wtxid(), fetched.Wtxid())
	require.NotNil(t, fetched.Packet.Inputs[0].WitnessUtxo)
	require.Equal(t, tx.Packet.Inputs[0].WitnessUtxo.Value, fetched.Packet.Inputs[0].WitnessUtxo.Value)
	require.Equal(t, tx.Packet.Inputs[0].WitnessScript, fetched.Packet.Inputs[0].WitnessScript)

	_, err = db.StorePresignedTx(v.ID, tx)
	require.ErrorIs(t, err, ErrWrongRole)

	_, err = db.PresignedTxByRole(v.ID, vault.RoleUnvault)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdatePresignedTxMergeAndFinalize(t *testing.T) {
	db := makeTestDB(t)
	participants := testParticipants(t, 2)

	v, err := db.CreateVault(&vault.Vault{
		DepositOutpoint: wire.OutPoint{Index: 0},
		DerivationIndex: 5,
		Status:          vault.StatusSecuring,
	})
	require.NoError(t, err)

	for _, role := range vault.RevocationRoles() {
		_, err := db.StorePresignedTx(v.ID, testPresignedTx(t, role, 2))
		require.NoError(t, err)
	}

	pub0, err := vault.DerivePubKey(participants.StakeholderXpubs[0], v.DerivationIndex)
	require.NoError(t, err)
	pub1, err := vault.DerivePubKey(participants.StakeholderXpubs[1], v.DerivationIndex)
	require.NoError(t, err)

	sigA := vault.PartialSigs{vault.PubKeyBytes(pub0): []byte{0xde, 0xad, 0x81}}
	sigB := vault.PartialSigs{vault.PubKeyBytes(pub1): []byte{0xbe, 0xef, 0x81}}

	// Merge the Cancel role's first signature: should stay Securing.
	_, err = db.UpdatePresignedTx(v.ID, vault.RoleCancel, sigA, participants, time.Now())
	require.NoError(t, err)
	afterFirst, err := db.Vaults(VaultFilter{Outpoints: []wire.OutPoint{v.DepositOutpoint}})
	require.NoError(t, err)
	require.Equal(t, vault.StatusSecuring, afterFirst[0].Status)

	// Complete Cancel with the second signature.
	updated, err := db.UpdatePresignedTx(v.ID, vault.RoleCancel, sigB, participants, time.Now())
	require.NoError(t, err)
	require.True(t, updated.FullySigned)

	// Other two roles still incomplete: vault should still be Securing.
	afterCancel, err := db.Vaults(VaultFilter{Outpoints: []wire.OutPoint{v.DepositOutpoint}})
	require.NoError(t, err)
	require.Equal(t, vault.StatusSecuring, afterCancel[0].Status)

	// Finish the remaining two roles; vault should promote to Secured.
	for _, role := range []vault.Role{vault.RoleEmergency, vault.RoleUnvaultEmergency} {
		_, err = db.UpdatePresignedTx(v.ID, role, sigA, participants, time.Now())
		require.NoError(t, err)
		_, err = db.UpdatePresignedTx(v.ID, role, sigB, participants, time.Now())
		require.NoError(t, err)
	}

	final, err := db.Vaults(VaultFilter{Outpoints: []wire.OutPoint{v.DepositOutpoint}})
	require.NoError(t, err)
	require.Equal(t, vault.StatusSecured, final[0].Status)
}

func TestUpdatePresignedTxRejectsNonParticipant(t *testing.T) {
	db := makeTestDB(t)
	participants := testParticipants(t, 2)

	v, err := db.CreateVault(&vault.Vault{DepositOutpoint: wire.OutPoint{Index: 0}})
	require.NoError(t, err)
	_, err = db.StorePresignedTx(v.ID, testPresignedTx(t, vault.RoleCancel, 2))
	require.NoError(t, err)

	strangerXpub := testParticipants(t, 1).StakeholderXpubs[0]
	strangerPub, err := vault.DerivePubKey(strangerXpub, v.DerivationIndex)
	require.NoError(t, err)

	bogus := vault.PartialSigs{vault.PubKeyBytes(strangerPub): []byte{0x01}}
	_, err = db.UpdatePresignedTx(v.ID, vault.RoleCancel, bogus, participants, time.Now())
	require.ErrorIs(t, err, ErrPubkeyNotParticipant)
}

func TestUpdatePresignedTxRejectsConflictingSignature(t *testing.T) {
	db := makeTestDB(t)
	participants := testParticipants(t, 2)

	v, err := db.CreateVault(&vault.Vault{DepositOutpoint: wire.OutPoint{Index: 0}})
	require.NoError(t, err)
	_, err = db.StorePresignedTx(v.ID, testPresignedTx(t, vault.RoleCancel, 2))
	require.NoError(t, err)

	pub0, err := vault.DerivePubKey(participants.StakeholderXpubs[0], v.DerivationIndex)
	require.NoError(t, err)
	key := vault.PubKeyBytes(pub0)

	_, err = db.UpdatePresignedTx(v.ID, vault.RoleCancel, vault.PartialSigs{key: {0x01, 0x81}}, participants, time.Now())
	require.NoError(t, err)

	_, err = db.UpdatePresignedTx(v.ID, vault.RoleCancel, vault.PartialSigs{key: {0x02, 0x81}}, participants, time.Now())
	require.ErrorIs(t, err, ErrSignatureConflict)

	// Resubmitting the identical signature is a no-op, not an error.
	_, err = db.UpdatePresignedTx(v.ID, vault.RoleCancel, vault.PartialSigs{key: {0x01, 0x81}}, participants, time.Now())
	require.NoError(t, err)
}

func TestTipRoundTrip(t *testing.T) {
	db := makeTestDB(t)

	empty, err := db.Tip()
	require.NoError(t, err)
	require.Equal(t, int32(0), empty.Height)

	tip := &vault.BlockchainTip{Height: 123}
	tip.BlockHash[0] = 0xAB
	require.NoError(t, db.SetTip(tip))

	got, err := db.Tip()
	require.NoError(t, err)
	require.Equal(t, tip.Height, got.Height)
	require.Equal(t, tip.BlockHash, got.BlockHash)
}
