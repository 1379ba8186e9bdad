package vaultdb

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/kvdb"

	"github.com/vaultd-project/vaultd/vault"
)

// CreateVault persists a brand-new vault row, called by the chain-watcher
// the moment a deposit output matching a derived script is seen. It
// allocates the row's internal id and indexes it by deposit outpoint.
func (d *DB) CreateVault(v *vault.Vault) (*vault.Vault, error) {
	var created *vault.Vault

	err := kvdb.Update(d.backend, func(tx kvdb.RwTx) error {
		depositIndex := tx.ReadWriteBucket(depositIndexBucket)
		key := outpointKey(v.DepositOutpoint)
		if depositIndex.Get(key) != nil {
			return fmt.Errorf("vaultdb: vault for outpoint %s already exists", v.DepositOutpoint)
		}

		id, err := nextVaultID(tx)
		if err != nil {
			return err
		}

		stored := *v
		stored.ID = id
		created = &stored

		vaults := tx.ReadWriteBucket(vaultsBucket)
		if err := vaults.Put(vaultIDKey(id), serializeVault(&stored)); err != nil {
			return err
		}

		return depositIndex.Put(key, vaultIDKey(id))
	}, func() {})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// VaultByDeposit looks up the vault funded by outpoint, returning
// ErrNotFound if no vault with that deposit outpoint has been created.
func (d *DB) VaultByDeposit(outpoint wire.OutPoint) (*vault.Vault, error) {
	var found *vault.Vault

	err := kvdb.View(d.backend, func(tx kvdb.RTx) error {
		depositIndex := tx.ReadBucket(depositIndexBucket)
		idBytes := depositIndex.Get(outpointKey(outpoint))
		if idBytes == nil {
			return ErrNotFound
		}

		raw := tx.ReadBucket(vaultsBucket).Get(idBytes)
		if raw == nil {
			return ErrNotFound
		}

		v, err := deserializeVault(raw)
		if err != nil {
			return err
		}
		found = v
		return nil
	}, func() {})
	if err != nil {
		return nil, err
	}

	return found, nil
}

// VaultFilter narrows Vaults to the vaults matching both conditions
// (AND-combined); a nil/empty field imposes no constraint.
type VaultFilter struct {
	Statuses  []vault.Status
	Outpoints []wire.OutPoint
}

func (f VaultFilter) matches(v *vault.Vault) bool {
	if len(f.Statuses) > 0 {
		match := false
		for _, s := range f.Statuses {
			if v.Status == s {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}

	if len(f.Outpoints) > 0 {
		match := false
		for _, op := range f.Outpoints {
			if v.DepositOutpoint == op {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}

	return true
}

// Vaults returns every vault matching filter, in ascending row-id order
// (bbolt's natural cursor order over byteOrder-encoded keys).
func (d *DB) Vaults(filter VaultFilter) ([]*vault.Vault, error) {
	var out []*vault.Vault

	err := kvdb.View(d.backend, func(tx kvdb.RTx) error {
		bucket := tx.ReadBucket(vaultsBucket)
		return bucket.ForEach(func(_, raw []byte) error {
			v, err := deserializeVault(raw)
			if err != nil {
				return err
			}
			if filter.matches(v) {
				out = append(out, v)
			}
			return nil
		})
	}, func() { out = nil })
	if err != nil {
		return nil, err
	}

	return out, nil
}

// TransitionStatus moves a vault from exactly from to to, failing
// ErrUnexpectedStatus if the vault's current status is not from. It is the
// Dispatcher's only way to drive the two operator-triggered edges of the
// status ladder that UpdatePresignedTx's own post-merge promotion never
// reaches on its own: Funded -> Securing on the first accepted
// RevocationTxs call, and Secured -> Activating on the first accepted
// UnvaultTx call.
func (d *DB) TransitionStatus(vaultID uint64, from, to vault.Status, now time.Time) error {
	return kvdb.Update(d.backend, func(tx kvdb.RwTx) error {
		v, err := vaultByID(tx, vaultID)
		if err != nil {
			return err
		}
		if v.Status != from {
			return ErrUnexpectedStatus
		}
		return setVaultStatus(tx, vaultID, to, now.Unix())
	}, func() {})
}

// setVaultStatus updates a vault's status and updated_at timestamp in
// place, called only from inside an existing read-write transaction (by
// TransitionStatus and by UpdatePresignedTx's post-merge promotion step).
func setVaultStatus(tx kvdb.RwTx, id uint64, status vault.Status, updatedAt int64) error {
	vaults := tx.ReadWriteBucket(vaultsBucket)
	raw := vaults.Get(vaultIDKey(id))
	if raw == nil {
		return ErrNotFound
	}

	v, err := deserializeVault(raw)
	if err != nil {
		return err
	}

	v.Status = status
	v.UpdatedAt = updatedAt

	return vaults.Put(vaultIDKey(id), serializeVault(v))
}

// vaultByID fetches a vault by its internal row id from inside an existing
// transaction, used by UpdatePresignedTx to look up the participant keyset
// and derivation index a merge must validate signatures against.
func vaultByID(tx kvdb.RTx, id uint64) (*vault.Vault, error) {
	raw := tx.ReadBucket(vaultsBucket).Get(vaultIDKey(id))
	if raw == nil {
		return nil, ErrNotFound
	}
	return deserializeVault(raw)
}
