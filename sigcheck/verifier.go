// Package sigcheck implements the Signature Verifier: it checks DER
// signatures, the trailing sighash-type byte, and secp256k1 validity
// against a computed per-transaction sighash. It is pure and deterministic
// and never touches the database, grounded on the signature-script
// assembly idiom of lnwallet/script_utils.go generalized from a 2-of-2
// HTLC script to an N-of-N vault script.
package sigcheck

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/txscript"

	"github.com/vaultd-project/vaultd/vault"
)

// PresignedSighash computes the canonical sighash for a presigned
// transaction's sole input under the given sighash type, using the input's
// witness UTXO and witness script recorded on the PSBT. Every
// RevaultTransaction analog derives its sighash this way; callers never
// hash the raw unsigned transaction bytes directly.
func PresignedSighash(tx *vault.PresignedTx, hashType txscript.SigHashType) ([]byte, error) {
	input := tx.Packet.Inputs[0]

	prevOutFetcher := txscript.NewCannedPrevOutputFetcher(
		input.WitnessUtxo.PkScript, input.WitnessUtxo.Value,
	)
	sigHashes := txscript.NewTxSigHashes(tx.Packet.UnsignedTx, prevOutFetcher)

	return txscript.CalcWitnessSigHash(
		input.WitnessScript, sigHashes, hashType,
		tx.Packet.UnsignedTx, 0, input.WitnessUtxo.Value,
	)
}

// checkSignatureEntry verifies one (pubkey, blob) pair: splits the trailing
// sighash-type byte, rejects it outright if it isn't expectedFlag, DER
// decodes the remainder, and checks it against sighash. This factors out
// the per-entry logic shared by CheckRevocationSignatures and
// CheckUnvaultSignatures, mirroring how script_utils.go factors shared
// script-building helpers out of the directional HTLC-script constructors.
func checkSignatureEntry(pub *btcec.PublicKey, blob []byte, expectedFlag byte, sighash []byte) error {
	if len(blob) == 0 {
		return &SigError{Kind: KindInvalidLength}
	}

	sigBytes, flag := blob[:len(blob)-1], blob[len(blob)-1]
	if flag != expectedFlag {
		return &SigError{Kind: KindInvalidSighash}
	}

	if len(sigBytes) < minDERSigLength {
		return &SigError{Kind: KindInvalidLength}
	}

	sig, err := ecdsa.ParseDERSignature(sigBytes)
	if err != nil {
		return &SigError{Kind: KindVerifyError, Err: err}
	}

	if !sig.Verify(sighash, pub) {
		return &SigError{Kind: KindVerifyError, Err: errVerificationFailed}
	}

	return nil
}

// CheckRevocationSignatures verifies every (pubkey, blob) entry in sigs
// against the Cancel/Emergency/UnvaultEmergency sighash of tx, which must
// be signed with SIGHASH_ALL|ANYONECANPAY. It returns the first failure
// encountered; Dispatcher.RevocationTxs treats any failure as all-or-
// nothing and persists nothing.
func CheckRevocationSignatures(tx *vault.PresignedTx, sigs vault.PartialSigs) error {
	sighash, err := PresignedSighash(tx, txscript.SigHashAll|txscript.SigHashAnyOneCanPay)
	if err != nil {
		return &SigError{Kind: KindVerifyError, Err: err}
	}

	for _, pubBytes := range sigs.SortedKeys() {
		pub, err := btcec.ParsePubKey(pubBytes[:])
		if err != nil {
			return &SigError{Kind: KindVerifyError, Err: err}
		}

		if err := checkSignatureEntry(pub, sigs[pubBytes], vault.SighashAllAnyoneCanPay, sighash); err != nil {
			return err
		}
	}

	return nil
}

// CheckUnvaultSignatures verifies every partial signature already recorded
// on the Unvault PSBT's sole input against the Unvault sighash, which must
// be signed with plain SIGHASH_ALL.
func CheckUnvaultSignatures(tx *vault.PresignedTx) error {
	sighash, err := PresignedSighash(tx, txscript.SigHashAll)
	if err != nil {
		return &SigError{Kind: KindVerifyError, Err: err}
	}

	for _, partialSig := range tx.Packet.Inputs[0].PartialSigs {
		pub, err := btcec.ParsePubKey(partialSig.PubKey)
		if err != nil {
			return &SigError{Kind: KindVerifyError, Err: err}
		}

		if err := checkSignatureEntry(pub, partialSig.Signature, vault.SighashAll, sighash); err != nil {
			return err
		}
	}

	return nil
}

var errVerificationFailed = verificationFailedError{}

type verificationFailedError struct{}

func (verificationFailedError) Error() string { return "signature does not verify" }
