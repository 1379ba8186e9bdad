package vaultdb

import (
	"time"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/lightningnetwork/lnd/kvdb"

	"github.com/vaultd-project/vaultd/vault"
)

// StorePresignedTx inserts the initial (unsigned) row for a (vault, role)
// pair, called once per role when a vault's chain is first derived. It
// fails if a row already exists for that (vault, role): presigned-tx rows
// are created once and only ever mutated via UpdatePresignedTx thereafter.
func (d *DB) StorePresignedTx(vaultID uint64, p *vault.PresignedTx) (uint64, error) {
	blob, err := serializePresignedTx(p)
	if err != nil {
		return 0, err
	}

	err = kvdb.Update(d.backend, func(tx kvdb.RwTx) error {
		bucket := tx.ReadWriteBucket(presignedTxBucket)
		key := presignedTxKey(vaultID, p.Role)
		if bucket.Get(key) != nil {
			return ErrWrongRole
		}
		return bucket.Put(key, blob)
	}, func() {})
	if err != nil {
		return 0, err
	}

	return vaultID, nil
}

// PresignedTxByRole returns the (vault, role) row, failing ErrNotFound if
// it hasn't been created yet.
func (d *DB) PresignedTxByRole(vaultID uint64, role vault.Role) (*vault.PresignedTx, error) {
	var found *vault.PresignedTx

	err := kvdb.View(d.backend, func(tx kvdb.RTx) error {
		raw := tx.ReadBucket(presignedTxBucket).Get(presignedTxKey(vaultID, role))
		if raw == nil {
			return ErrNotFound
		}
		p, err := deserializePresignedTx(vaultID, raw)
		if err != nil {
			return err
		}
		found = p
		return nil
	}, func() {})
	if err != nil {
		return nil, err
	}

	return found, nil
}

// participantPubkeys returns the set of compressed pubkeys permitted to
// sign for a vault at its stored derivation index: every stakeholder,
// since all four roles' scripts are N-of-N over the stakeholder set.
func participantPubkeys(v *vault.Vault, participants *vault.Participants) (map[[33]byte]struct{}, error) {
	allowed := make(map[[33]byte]struct{}, len(participants.StakeholderXpubs))
	for _, xpub := range participants.StakeholderXpubs {
		pub, err := vault.DerivePubKey(xpub, v.DerivationIndex)
		if err != nil {
			return nil, err
		}
		allowed[vault.PubKeyBytes(pub)] = struct{}{}
	}
	return allowed, nil
}

// UpdatePresignedTx atomically merges newSigs into the stored row's
// partial-sig map, rejecting any pubkey that isn't a participant key at
// the vault's derivation index and refusing to overwrite an existing,
// different signature for the same pubkey. After a successful merge it
// marks the row FullySigned once the number of collected signatures
// reaches RequiredSigners (no witness is built or checked) and, on full
// signing, promotes the owning vault's status per the Dispatcher's state
// machine. The whole operation runs
// inside one kvdb.Update transaction, so a concurrent caller observes it
// either fully applied or not at all.
func (d *DB) UpdatePresignedTx(
	vaultID uint64, role vault.Role, newSigs vault.PartialSigs,
	participants *vault.Participants, now time.Time,
) (*vault.PresignedTx, error) {

	var updated *vault.PresignedTx

	err := kvdb.Update(d.backend, func(tx kvdb.RwTx) error {
		v, err := vaultByID(tx, vaultID)
		if err != nil {
			return err
		}

		allowed, err := participantPubkeys(v, participants)
		if err != nil {
			return err
		}

		presignedBucket := tx.ReadWriteBucket(presignedTxBucket)
		key := presignedTxKey(vaultID, role)
		raw := presignedBucket.Get(key)
		if raw == nil {
			return ErrNotFound
		}

		p, err := deserializePresignedTx(vaultID, raw)
		if err != nil {
			return err
		}
		if p.Role != role {
			return ErrWrongRole
		}

		existing := make(map[[33]byte][]byte, len(p.Packet.Inputs[0].PartialSigs))
		for _, sig := range p.Packet.Inputs[0].PartialSigs {
			var key [33]byte
			copy(key[:], sig.PubKey)
			existing[key] = sig.Signature
		}

		for _, pubBytes := range newSigs.SortedKeys() {
			if _, ok := allowed[pubBytes]; !ok {
				return ErrPubkeyNotParticipant
			}

			newBlob := newSigs[pubBytes]
			if prior, ok := existing[pubBytes]; ok {
				if !bytesEqual(prior, newBlob) {
					return ErrSignatureConflict
				}
				continue
			}

			existing[pubBytes] = newBlob
			pubCopy := pubBytes
			p.Packet.Inputs[0].PartialSigs = append(p.Packet.Inputs[0].PartialSigs, &psbt.PartialSig{
				PubKey:    pubCopy[:],
				Signature: newBlob,
			})
		}

		if !p.FullySigned && len(existing) >= p.RequiredSigners {
			p.FullySigned = true
		}

		blob, err := serializePresignedTx(p)
		if err != nil {
			return err
		}
		if err := presignedBucket.Put(key, blob); err != nil {
			return err
		}

		if p.FullySigned {
			if err := promoteOnFinalize(tx, v, role, now); err != nil {
				return err
			}
		}

		updated = p
		return nil
	}, func() { updated = nil })
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// promoteOnFinalize implements the Dispatcher's signature-driven status
// transitions: Securing -> Secured once all three revocations are fully
// signed, Activating -> Active once Unvault is fully signed.
func promoteOnFinalize(tx kvdb.RwTx, v *vault.Vault, role vault.Role, now time.Time) error {
	switch {
	case role == vault.RoleUnvault && v.Status == vault.StatusActivating:
		return setVaultStatus(tx, v.ID, vault.StatusActive, now.Unix())

	case role.IsRevocation() && v.Status == vault.StatusSecuring:
		allSigned, err := allRevocationsFullySigned(tx, v.ID)
		if err != nil {
			return err
		}
		if allSigned {
			return setVaultStatus(tx, v.ID, vault.StatusSecured, now.Unix())
		}
		return nil

	default:
		return nil
	}
}

func allRevocationsFullySigned(tx kvdb.RwTx, vaultID uint64) (bool, error) {
	bucket := tx.ReadWriteBucket(presignedTxBucket)
	for _, role := range vault.RevocationRoles() {
		raw := bucket.Get(presignedTxKey(vaultID, role))
		if raw == nil {
			return false, nil
		}
		p, err := deserializePresignedTx(vaultID, raw)
		if err != nil {
			return false, err
		}
		if !p.FullySigned {
			return false, nil
		}
	}
	return true, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
