package control_test

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/vaultd-project/vaultd/control"
	"github.com/vaultd-project/vaultd/sigcheck"
	vconfig "github.com/vaultd-project/vaultd/config"
	"github.com/vaultd-project/vaultd/txchain"
	"github.com/vaultd-project/vaultd/vault"
	"github.com/vaultd-project/vaultd/vaultdb"
)

const testDerivIndex = 7

// testHarness bundles everything one control_test needs: a real, file-
// backed Gateway (vaultdb.DB satisfies the Gateway interface structurally),
// the stakeholder's private master key for producing real signatures, and
// a fakeRelay recording every ShareSigs call, matching SPEC_FULL.md §8's
// "in-process Dispatcher + fake Relay" test shape.
type testHarness struct {
	t            *testing.T
	db           *vaultdb.DB
	daemon       *vconfig.Config
	master       *hdkeychain.ExtendedKey
	relay        *fakeRelay
	dispatcher   *control.Dispatcher
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	master, err := hdkeychain.NewMaster(
		[]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}, &chaincfg.RegressionNetParams)
	require.NoError(t, err)

	neutered, err := master.Neuter()
	require.NoError(t, err)

	daemon, err := vconfig.Parse([]string{
		"--network", "regtest",
		"--stakeholder_xpub", neutered.String(),
		"--our_stakeholder_xpub", neutered.String(),
		"--emergency_address", "bcrt1qw508d6qejxtdg4y5r3zarvary0c5xw7kygt080",
		"--unvault_csv", "144",
	})
	require.NoError(t, err)

	db, err := vaultdb.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	relay := &fakeRelay{}

	dispatcher := control.New(&control.Config{
		Daemon:      daemon,
		Gateway:     db,
		Relay:       relay,
		Addresses:   fakeAddressSource{},
		DeriveChain: txchain.DeriveChain,
	})

	go dispatcher.Run(context.Background())
	t.Cleanup(dispatcher.Shutdown)

	return &testHarness{t: t, db: db, daemon: daemon, master: master, relay: relay, dispatcher: dispatcher}
}

// createFundedVault persists a vault at status Funded plus its four
// presigned templates, exactly the on-disk shape the (not-yet-built)
// chain-watcher would have produced for a confirmed deposit.
func (h *testHarness) createFundedVault(amount btcutil.Amount) *vault.Vault {
	h.t.Helper()

	outpoint := wire.OutPoint{Hash: chainhash.Hash{0xab, 0xcd}, Index: 0}

	created, err := h.db.CreateVault(&vault.Vault{
		DepositOutpoint: outpoint,
		Amount:          amount,
		DerivationIndex: testDerivIndex,
		Status:          vault.StatusFunded,
	})
	require.NoError(h.t, err)

	cfg := &txchain.Config{
		Participants:     h.daemon.Participants(),
		EmergencyAddress: h.daemon.Vault().EmergencyAddress,
		LockTime:         h.daemon.Vault().LockTime,
		UnvaultCSV:       h.daemon.Vault().UnvaultCSV,
		ChainParams:      h.daemon.ChainParams(),
	}

	chain, err := txchain.DeriveChain(outpoint, amount, testDerivIndex, cfg)
	require.NoError(h.t, err)

	for _, presigned := range []*vault.PresignedTx{chain.Unvault, chain.Cancel, chain.Emergency, chain.UnvaultEmergency} {
		_, err := h.db.StorePresignedTx(created.ID, presigned)
		require.NoError(h.t, err)
	}

	return created
}

// signRevocation produces a valid self-signature over tx's revocation
// sighash (SIGHASH_ALL|ANYONECANPAY), keyed by our derived pubkey, and
// returns a PSBT carrying only that one partial signature on input 0 —
// exactly what an operator's co-signing step would submit back.
func (h *testHarness) signRevocation(t *testing.T, tx *vault.PresignedTx) *psbt.Packet {
	return h.sign(t, tx, txscript.SigHashAll|txscript.SigHashAnyOneCanPay, vault.SighashAllAnyoneCanPay)
}

func (h *testHarness) signUnvault(t *testing.T, tx *vault.PresignedTx) *psbt.Packet {
	return h.sign(t, tx, txscript.SigHashAll, vault.SighashAll)
}

func (h *testHarness) sign(t *testing.T, tx *vault.PresignedTx, hashType txscript.SigHashType, flag byte) *psbt.Packet {
	t.Helper()

	sighash, err := sigcheck.PresignedSighash(tx, hashType)
	require.NoError(t, err)

	child, err := h.master.Derive(testDerivIndex)
	require.NoError(t, err)
	privKey, err := child.ECPrivKey()
	require.NoError(t, err)

	sig := ecdsa.Sign(privKey, sighash)
	blob := append(sig.Serialize(), flag)

	pub, err := child.ECPubKey()
	require.NoError(t, err)

	clone := clonePacket(t, tx.Packet)
	clone.Inputs[0].PartialSigs = []*psbt.PartialSig{{
		PubKey:    pub.SerializeCompressed(),
		Signature: blob,
	}}

	return clone
}

func clonePacket(t *testing.T, src *psbt.Packet) *psbt.Packet {
	t.Helper()

	tx := src.UnsignedTx.Copy()
	clone, err := psbt.NewFromUnsignedTx(tx)
	require.NoError(t, err)
	clone.Inputs[0].WitnessUtxo = src.Inputs[0].WitnessUtxo
	clone.Inputs[0].WitnessScript = src.Inputs[0].WitnessScript
	return clone
}

type fakeRelay struct {
	shared []sharedSig
}

type sharedSig struct {
	id   chainhash.Hash
	sigs vault.PartialSigs
}

func (f *fakeRelay) ShareSigs(_ context.Context, id chainhash.Hash, sigs vault.PartialSigs) error {
	f.shared = append(f.shared, sharedSig{id: id, sigs: sigs})
	return nil
}

type fakeAddressSource struct{}

func (fakeAddressSource) NextDepositAddress() (string, error) {
	return "bcrt1qw508d6qejxtdg4y5r3zarvary0c5xw7kygt080", nil
}

// TestGetInfoReportsStoreTip exercises GetInfo end to end against a real
// Gateway with no chain-watcher wired, the minimal "Dispatcher + Gateway"
// shape.
func TestGetInfoReportsStoreTip(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.db.SetTip(&vault.BlockchainTip{Height: 42}))

	info, err := h.dispatcher.GetInfo()
	require.NoError(t, err)
	require.Equal(t, int32(42), info.BlockHeight)
	require.Equal(t, "regtest", info.NetworkName)
}

// TestRevocationTxsHappyStakeholderFlow is scenario S1: a Funded vault
// receives a fully valid revocation triple, with ListPresignedTransactions
// immediately reflecting the merge. The harness has a single stakeholder,
// so our signature completes all three revocations and the vault moves
// through Securing to Secured within the same call.
func TestRevocationTxsHappyStakeholderFlow(t *testing.T) {
	h := newHarness(t)
	v := h.createFundedVault(100_000_000)

	cancel, err := h.db.PresignedTxByRole(v.ID, vault.RoleCancel)
	require.NoError(t, err)
	emergency, err := h.db.PresignedTxByRole(v.ID, vault.RoleEmergency)
	require.NoError(t, err)
	unvaultEmergency, err := h.db.PresignedTxByRole(v.ID, vault.RoleUnvaultEmergency)
	require.NoError(t, err)

	err = h.dispatcher.RevocationTxs(
		v.DepositOutpoint,
		h.signRevocation(t, cancel),
		h.signRevocation(t, emergency),
		h.signRevocation(t, unvaultEmergency),
	)
	require.NoError(t, err)

	updated, err := h.db.VaultByDeposit(v.DepositOutpoint)
	require.NoError(t, err)
	require.Equal(t, vault.StatusSecured, updated.Status)

	rows, err := h.dispatcher.ListPresignedTransactions([]wire.OutPoint{v.DepositOutpoint})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Len(t, rows[0].Cancel.Inputs[0].PartialSigs, 1)

	require.Len(t, h.relay.shared, 3)
}

// TestRevocationTxsWrongStatus is scenario S2.
func TestRevocationTxsWrongStatus(t *testing.T) {
	h := newHarness(t)
	v := h.createFundedVault(100_000_000)

	cancel, err := h.db.PresignedTxByRole(v.ID, vault.RoleCancel)
	require.NoError(t, err)
	emergency, err := h.db.PresignedTxByRole(v.ID, vault.RoleEmergency)
	require.NoError(t, err)
	unvaultEmergency, err := h.db.PresignedTxByRole(v.ID, vault.RoleUnvaultEmergency)
	require.NoError(t, err)

	require.NoError(t, h.db.TransitionStatus(v.ID, vault.StatusFunded, vault.StatusUnconfirmed, time.Now()))

	err = h.dispatcher.RevocationTxs(
		v.DepositOutpoint,
		h.signRevocation(t, cancel),
		h.signRevocation(t, emergency),
		h.signRevocation(t, unvaultEmergency),
	)
	require.Error(t, err)
}

// TestRevocationTxsWtxidMismatch is scenario S3: a tampered Cancel PSBT is
// rejected before any signature is persisted.
func TestRevocationTxsWtxidMismatch(t *testing.T) {
	h := newHarness(t)
	v := h.createFundedVault(100_000_000)

	cancel, err := h.db.PresignedTxByRole(v.ID, vault.RoleCancel)
	require.NoError(t, err)
	emergency, err := h.db.PresignedTxByRole(v.ID, vault.RoleEmergency)
	require.NoError(t, err)
	unvaultEmergency, err := h.db.PresignedTxByRole(v.ID, vault.RoleUnvaultEmergency)
	require.NoError(t, err)

	tamperedCancel := h.signRevocation(t, cancel)
	tamperedCancel.UnsignedTx.LockTime++

	err = h.dispatcher.RevocationTxs(
		v.DepositOutpoint,
		tamperedCancel,
		h.signRevocation(t, emergency),
		h.signRevocation(t, unvaultEmergency),
	)
	require.Error(t, err)

	stored, err := h.db.VaultByDeposit(v.DepositOutpoint)
	require.NoError(t, err)
	require.Equal(t, vault.StatusFunded, stored.Status)
}

// TestRevocationTxsBadSighashFlag is scenario S4.
func TestRevocationTxsBadSighashFlag(t *testing.T) {
	h := newHarness(t)
	v := h.createFundedVault(100_000_000)

	cancel, err := h.db.PresignedTxByRole(v.ID, vault.RoleCancel)
	require.NoError(t, err)
	emergency, err := h.db.PresignedTxByRole(v.ID, vault.RoleEmergency)
	require.NoError(t, err)
	unvaultEmergency, err := h.db.PresignedTxByRole(v.ID, vault.RoleUnvaultEmergency)
	require.NoError(t, err)

	badEmergency := h.signRevocation(t, emergency)
	blob := badEmergency.Inputs[0].PartialSigs[0].Signature
	blob[len(blob)-1] = 0x01
	badEmergency.Inputs[0].PartialSigs[0].Signature = blob

	err = h.dispatcher.RevocationTxs(
		v.DepositOutpoint,
		h.signRevocation(t, cancel),
		badEmergency,
		h.signRevocation(t, unvaultEmergency),
	)
	require.Error(t, err)

	stored, err := h.db.VaultByDeposit(v.DepositOutpoint)
	require.NoError(t, err)
	require.Equal(t, vault.StatusFunded, stored.Status)
}

// TestUnvaultBeforeSecured is scenario S6.
func TestUnvaultBeforeSecured(t *testing.T) {
	h := newHarness(t)
	v := h.createFundedVault(100_000_000)

	unvault, err := h.db.PresignedTxByRole(v.ID, vault.RoleUnvault)
	require.NoError(t, err)

	err = h.dispatcher.UnvaultTx(v.DepositOutpoint, h.signUnvault(t, unvault))
	require.Error(t, err)
}

// TestUnknownOutpoint covers GetRevocationTxs and GetUnvaultTx against an
// outpoint with no vault.
func TestUnknownOutpoint(t *testing.T) {
	h := newHarness(t)
	unknown := wire.OutPoint{Hash: chainhash.Hash{0xff}, Index: 0}

	triple, err := h.dispatcher.GetRevocationTxs(unknown)
	require.NoError(t, err)
	require.Nil(t, triple)

	_, err = h.dispatcher.GetUnvaultTx(unknown)
	require.Error(t, err)
}
