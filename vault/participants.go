package vault

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

// Participants holds the daemon-wide stakeholder/manager extended public
// keys. It is part of the process-wide Config object held under a
// reader-writer guard (see package control); the Control Dispatcher only
// ever reads it, taking a read lock for the duration of one request.
type Participants struct {
	// StakeholderXpubs are the extended public keys of every
	// stakeholder, in the fixed order the deposit/unvault scripts are
	// built from.
	StakeholderXpubs []*hdkeychain.ExtendedKey

	// ManagerXpubs are the extended public keys of every manager.
	ManagerXpubs []*hdkeychain.ExtendedKey

	// OurStakeholderXpub is set only if the local participant holds the
	// Stakeholder capability.
	OurStakeholderXpub *hdkeychain.ExtendedKey

	// IsStakeholder mirrors whether OurStakeholderXpub is populated, so
	// callers don't need to nil-check it directly.
	IsStakeholder bool
}

// DerivePubKey derives the unhardened child key at index from xpub and
// returns its plain secp256k1 public key. The derivation index stored
// alongside every vault is guaranteed sane (unhardened) by construction, so
// this never hits the hardened-derivation error path in practice.
func DerivePubKey(xpub *hdkeychain.ExtendedKey, index uint32) (*btcec.PublicKey, error) {
	child, err := xpub.Derive(index)
	if err != nil {
		return nil, err
	}
	return child.ECPubKey()
}

// OurPubKeyAt derives the local stakeholder's public key at the given
// vault's derivation index. Every presigned transaction role uses the same
// public key across the chain, which is why the Dispatcher only ever needs
// to call this once per request.
func (p *Participants) OurPubKeyAt(index uint32) (*btcec.PublicKey, error) {
	return DerivePubKey(p.OurStakeholderXpub, index)
}
