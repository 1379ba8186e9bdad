// Package txchain implements the Transaction Chain Derivor: it regenerates
// the deterministic Unvault/Cancel/Emergency/Unvault-Emergency templates
// from a confirmed deposit, using per-vault descriptors. Determinism is
// load-bearing: independent stakeholders must compute byte-identical
// unsigned transactions and therefore agree on wtxid without any
// coordination. Script construction is grounded on
// lnwallet/script_utils.go's genMultiSigScript/witnessScriptHash/
// commitScriptToSelf family, generalized from a 2-of-2 funding script and a
// single-revocation-key commitment script to an N-of-N stakeholder script
// and a CSV-delayed unvault script.
package txchain

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"

	"github.com/vaultd-project/vaultd/vault"
)

// witnessScriptHash generates a pay-to-witness-script-hash output script
// for a version-0 witness program paying to redeemScript.
func witnessScriptHash(redeemScript []byte) ([]byte, error) {
	bldr := txscript.NewScriptBuilder()
	bldr.AddOp(txscript.OP_0)
	scriptHash := sha256.Sum256(redeemScript)
	bldr.AddData(scriptHash[:])
	return bldr.Script()
}

// sortedPubKeys returns the compressed serialization of every key, sorted
// lexicographically, the way genMultiSigScript sorts its two keys before
// emitting OP_CHECKMULTISIG so every participant independently builds the
// identical script.
func sortedPubKeys(keys []*btcec.PublicKey) [][]byte {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = k.SerializeCompressed()
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i], out[j]) < 0
	})
	return out
}

// allOfNScript builds an N-of-N OP_CHECKMULTISIG redeem script requiring a
// signature from every one of keys, generalizing genMultiSigScript's 2-of-2
// shape to an arbitrary stakeholder quorum.
func allOfNScript(keys []*btcec.PublicKey) ([]byte, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("txchain: cannot build a multisig script with no keys")
	}
	if len(keys) > 15 {
		return nil, fmt.Errorf("txchain: %d keys exceeds non-P2SH CHECKMULTISIG's 15-key limit", len(keys))
	}

	pubs := sortedPubKeys(keys)

	bldr := txscript.NewScriptBuilder()
	bldr.AddInt64(int64(len(pubs)))
	for _, pub := range pubs {
		bldr.AddData(pub)
	}
	bldr.AddInt64(int64(len(pubs)))
	bldr.AddOp(txscript.OP_CHECKMULTISIG)
	return bldr.Script()
}

// lockTimeToSequence converts a relative block-count timeout into a BIP-68
// sequence number, identical in shape to lnwallet/script_utils.go's helper
// of the same purpose (there used for HTLC/commitment CSV delays, here for
// the vault's unvault-to-spendable delay).
func lockTimeToSequence(blocks uint32) uint32 {
	const sequenceLockTimeMask = 0x0000ffff
	return blocks & sequenceLockTimeMask
}

// unvaultScript builds the Unvault output's witness script: spendable
// either by every stakeholder together after csvDelay blocks have passed
// (the OP_IF branch), or immediately given the signatures of every manager
// and every stakeholder (the OP_ELSE branch). This generalizes
// commitScriptToSelf's immediate-vs-CSV-delayed OP_IF shape from a single
// revocation key to an N-of-N stakeholder quorum.
//
//	OP_IF
//	    <csvDelay> OP_CHECKSEQUENCEVERIFY OP_DROP
//	    N <stakeholder_1> ... <stakeholder_N> N OP_CHECKMULTISIG
//	OP_ELSE
//	    (M+N) <manager_1> ... <manager_M> <stakeholder_1> ... <stakeholder_N> (M+N) OP_CHECKMULTISIG
//	OP_ENDIF
func unvaultScript(stakeholders, managers []*btcec.PublicKey, csvDelay uint32) ([]byte, error) {
	if len(stakeholders) == 0 {
		return nil, fmt.Errorf("txchain: unvault script requires at least one stakeholder key")
	}

	stakeholderPubs := sortedPubKeys(stakeholders)

	bldr := txscript.NewScriptBuilder()
	bldr.AddOp(txscript.OP_IF)
	bldr.AddInt64(int64(lockTimeToSequence(csvDelay)))
	bldr.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
	bldr.AddOp(txscript.OP_DROP)
	bldr.AddInt64(int64(len(stakeholderPubs)))
	for _, pub := range stakeholderPubs {
		bldr.AddData(pub)
	}
	bldr.AddInt64(int64(len(stakeholderPubs)))
	bldr.AddOp(txscript.OP_CHECKMULTISIG)
	bldr.AddOp(txscript.OP_ELSE)

	all := append(append([]*btcec.PublicKey{}, managers...), stakeholders...)
	allPubs := sortedPubKeys(all)
	bldr.AddInt64(int64(len(allPubs)))
	for _, pub := range allPubs {
		bldr.AddData(pub)
	}
	bldr.AddInt64(int64(len(allPubs)))
	bldr.AddOp(txscript.OP_CHECKMULTISIG)
	bldr.AddOp(txscript.OP_ENDIF)

	return bldr.Script()
}

// deriveDescriptors derives the per-vault deposit, unvault and cpfp
// descriptors plus the fixed emergency address, the deterministic
// functions of Config's participant xpubs and index the distilled spec
// requires.
func deriveDescriptors(cfg *Config, index uint32) (*vault.Descriptors, []byte, []byte, error) {
	stakeholderKeys := make([]*btcec.PublicKey, len(cfg.Participants.StakeholderXpubs))
	for i, xpub := range cfg.Participants.StakeholderXpubs {
		pub, err := vault.DerivePubKey(xpub, index)
		if err != nil {
			return nil, nil, nil, err
		}
		stakeholderKeys[i] = pub
	}

	managerKeys := make([]*btcec.PublicKey, len(cfg.Participants.ManagerXpubs))
	for i, xpub := range cfg.Participants.ManagerXpubs {
		pub, err := vault.DerivePubKey(xpub, index)
		if err != nil {
			return nil, nil, nil, err
		}
		managerKeys[i] = pub
	}

	depositScript, err := allOfNScript(stakeholderKeys)
	if err != nil {
		return nil, nil, nil, err
	}
	depositPkScript, err := witnessScriptHash(depositScript)
	if err != nil {
		return nil, nil, nil, err
	}

	unvaultRedeem, err := unvaultScript(stakeholderKeys, managerKeys, cfg.UnvaultCSV)
	if err != nil {
		return nil, nil, nil, err
	}
	unvaultPkScript, err := witnessScriptHash(unvaultRedeem)
	if err != nil {
		return nil, nil, nil, err
	}

	cpfpRedeem, err := allOfNScript(managerKeys)
	if err != nil {
		return nil, nil, nil, err
	}
	cpfpPkScript, err := witnessScriptHash(cpfpRedeem)
	if err != nil {
		return nil, nil, nil, err
	}

	return &vault.Descriptors{
		DepositDescriptor: depositPkScript,
		UnvaultDescriptor: unvaultPkScript,
		CpfpDescriptor:    cpfpPkScript,
		EmergencyAddress:  cfg.EmergencyAddress,
	}, depositScript, unvaultRedeem, nil
}
