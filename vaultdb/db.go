// Package vaultdb implements the Persistence Gateway: a synchronous,
// linearizable interface over a single-writer, file-backed, ACID store.
// Every write happens inside one kvdb.Update transaction, which serializes
// all writers against kvdb's single bbolt writer lock — the same
// concurrency model channeldb documents and relies on.
package vaultdb

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/kvdb"

	"github.com/vaultd-project/vaultd/vault"
)

const (
	dbFileName = "vaultd.db"

	// dbTimeout bounds how long Open waits to acquire the bbolt file
	// lock, matching channeldb's own default open timeout rather than
	// blocking indefinitely behind another process holding the file.
	dbTimeout = 10 * time.Second
)

// byteOrder is the fixed-width integer encoding used for every bucket key
// and length prefix in this package, matching channeldb's byteOrder
// convention so cursor scans over integer-keyed buckets iterate in order.
var byteOrder = binary.BigEndian

var (
	// vaultsBucket holds one entry per vault, keyed by its internal row
	// id (byteOrder-encoded uint64), holding the encoded Vault record.
	vaultsBucket = []byte("vaults")

	// depositIndexBucket maps a deposit outpoint (36 bytes: txid ||
	// index) to the vault row id that owns it, so VaultByDeposit never
	// needs a full bucket scan.
	depositIndexBucket = []byte("vault-deposit-index")

	// presignedTxBucket holds one entry per (vault id, role), keyed by
	// vault id (8 bytes) || role (1 byte), holding the TLV-encoded
	// PresignedTx blob.
	presignedTxBucket = []byte("presigned-txs")

	// tipBucket is a singleton bucket holding the chain-watcher's last
	// observed BlockchainTip under a fixed key.
	tipBucket = []byte("chain-tip")
	tipKey    = []byte("tip")

	// metaBucket holds bookkeeping rows: the next vault id counter and
	// the schema version, mirroring channeldb's version-tracking bucket.
	metaBucket       = []byte("meta")
	nextVaultIDKey   = []byte("next-vault-id")
	schemaVersionKey = []byte("schema-version")
)

// migration mutates an older on-disk layout into the current one. Absent
// for this package's first revision, per channeldb's migration table
// convention.
type migration func(tx kvdb.RwTx) error

type schemaVersion struct {
	number    uint32
	migration migration
}

// schemaVersions lists every revision of this package's on-disk layout in
// order. Index 0 needs no migration: it is the layout this package has
// always written.
var schemaVersions = []schemaVersion{
	{number: 0, migration: nil},
}

// DB is the Persistence Gateway's handle onto the on-disk store.
type DB struct {
	backend kvdb.Backend
}

// Open opens (creating if absent) the vaultd store at dbPath, applying any
// schema migrations needed to bring an existing file up to the current
// layout, grounded on channeldb.Open's create-then-migrate shape.
func Open(dbPath string) (*DB, error) {
	backend, err := kvdb.Create(
		kvdb.BoltBackendName, dbPath, dbFileName,
		true /* noFreelistSync */, dbTimeout,
	)
	if err != nil {
		return nil, fmt.Errorf("vaultdb: opening %s: %w", dbPath, err)
	}

	db := &DB{backend: backend}

	if err := db.initBuckets(); err != nil {
		backend.Close()
		return nil, err
	}

	if err := db.syncSchemaVersion(); err != nil {
		backend.Close()
		return nil, err
	}

	return db, nil
}

// Close releases the underlying store's file lock.
func (d *DB) Close() error {
	return d.backend.Close()
}

func (d *DB) initBuckets() error {
	return kvdb.Update(d.backend, func(tx kvdb.RwTx) error {
		for _, name := range [][]byte{
			vaultsBucket, depositIndexBucket, presignedTxBucket,
			tipBucket, metaBucket,
		} {
			if _, err := tx.CreateTopLevelBucket(name); err != nil {
				return fmt.Errorf("vaultdb: creating bucket %s: %w", name, err)
			}
		}
		return nil
	}, func() {})
}

// syncSchemaVersion brings an existing store up to the latest schema,
// applying every migration whose number exceeds the stored version, in
// order, inside a single transaction — matching channeldb.syncVersions.
func (d *DB) syncSchemaVersion() error {
	return kvdb.Update(d.backend, func(tx kvdb.RwTx) error {
		meta := tx.ReadWriteBucket(metaBucket)

		var current uint32
		if raw := meta.Get(schemaVersionKey); raw != nil {
			current = byteOrder.Uint32(raw)
		}

		latest := schemaVersions[len(schemaVersions)-1].number
		if current > latest {
			return fmt.Errorf(
				"vaultdb: store schema version %d is newer than this binary's %d",
				current, latest,
			)
		}

		for _, v := range schemaVersions {
			if v.number <= current || v.migration == nil {
				continue
			}
			log.Infof("Applying vaultdb schema migration to version %d", v.number)
			if err := v.migration(tx); err != nil {
				return fmt.Errorf("vaultdb: migration to version %d: %w", v.number, err)
			}
		}

		var versionBytes [4]byte
		byteOrder.PutUint32(versionBytes[:], latest)
		return meta.Put(schemaVersionKey, versionBytes[:])
	}, func() {})
}

// nextVaultID returns the next unused internal vault row id (ids start at
// 1, so a zero ID is never allocated) and persists the incremented counter,
// called only from inside an existing read-write transaction so the
// allocation is part of the caller's atomic write.
func nextVaultID(tx kvdb.RwTx) (uint64, error) {
	meta := tx.ReadWriteBucket(metaBucket)

	id := uint64(1)
	if raw := meta.Get(nextVaultIDKey); raw != nil {
		id = byteOrder.Uint64(raw)
	}

	var next [8]byte
	byteOrder.PutUint64(next[:], id+1)
	if err := meta.Put(nextVaultIDKey, next[:]); err != nil {
		return 0, err
	}

	return id, nil
}

// outpointKey encodes a deposit outpoint as its fixed 36-byte wire
// representation (32-byte txid || 4-byte big-endian index) for use as a
// depositIndexBucket key.
func outpointKey(outpoint wire.OutPoint) []byte {
	var key [36]byte
	copy(key[:32], outpoint.Hash[:])
	byteOrder.PutUint32(key[32:], outpoint.Index)
	return key[:]
}

// vaultIDKey encodes a vault row id as its fixed 8-byte big-endian form.
func vaultIDKey(id uint64) []byte {
	var key [8]byte
	byteOrder.PutUint64(key[:], id)
	return key[:]
}

// presignedTxKey encodes a (vault id, role) pair as the fixed 9-byte key
// presignedTxBucket stores rows under.
func presignedTxKey(vaultID uint64, role vault.Role) []byte {
	var key [9]byte
	byteOrder.PutUint64(key[:8], vaultID)
	key[8] = byte(role)
	return key[:]
}
