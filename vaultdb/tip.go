package vaultdb

import (
	"github.com/lightningnetwork/lnd/kvdb"

	"github.com/vaultd-project/vaultd/vault"
)

// Tip returns the chain-watcher's last persisted BlockchainTip. A freshly
// created store has no tip recorded yet; callers see the zero value until
// the chain-watcher's first SetTip call.
func (d *DB) Tip() (*vault.BlockchainTip, error) {
	var tip *vault.BlockchainTip

	err := kvdb.View(d.backend, func(tx kvdb.RTx) error {
		raw := tx.ReadBucket(tipBucket).Get(tipKey)
		if raw == nil {
			tip = &vault.BlockchainTip{}
			return nil
		}
		t, err := deserializeTip(raw)
		if err != nil {
			return err
		}
		tip = t
		return nil
	}, func() {})
	if err != nil {
		return nil, err
	}

	return tip, nil
}

// SetTip persists the chain-watcher's current position, called every time
// its view of the main chain advances.
func (d *DB) SetTip(tip *vault.BlockchainTip) error {
	return kvdb.Update(d.backend, func(tx kvdb.RwTx) error {
		return tx.ReadWriteBucket(tipBucket).Put(tipKey, serializeTip(tip))
	}, func() {})
}
