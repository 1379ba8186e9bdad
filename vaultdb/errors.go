package vaultdb

import "errors"

// ErrNotFound is returned by PresignedTxByRole and VaultByDeposit when the
// requested row does not exist. Callers map it onto UnknownOutpoint at the
// Dispatcher boundary; the store itself has no concept of RPC error codes.
var ErrNotFound = errors.New("vaultdb: row not found")

// ErrPubkeyNotParticipant is returned by UpdatePresignedTx when new_sigs
// contains an entry keyed by a pubkey that is not one of the participant
// keys derived at the vault's derivation index. The Gateway rejects the
// whole merge rather than silently dropping the offending entry.
var ErrPubkeyNotParticipant = errors.New("vaultdb: signature pubkey is not a participant key at this vault's derivation index")

// ErrSignatureConflict is returned when new_sigs supplies a different
// signature blob for a pubkey that already has one recorded. Signatures are
// immutable once persisted; the Gateway never overwrites one.
var ErrSignatureConflict = errors.New("vaultdb: conflicting signature already recorded for this pubkey")

// ErrWrongRole is returned by StorePresignedTx when a row already exists
// for the (vault, role) pair, and by UpdatePresignedTx when the stored row
// decodes to a different role than the one requested. The Dispatcher
// reports it like any other UpdatePresignedTx failure, as a fatal
// persistence error; it is not reported as an InternalInvariantError.
var ErrWrongRole = errors.New("vaultdb: row id does not match the expected (vault, role) pair")

// ErrUnexpectedStatus is returned by TransitionStatus when the vault's
// current status does not match the expected "from" status.
var ErrUnexpectedStatus = errors.New("vaultdb: vault is not in the expected status for this transition")
