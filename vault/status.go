package vault

import "fmt"

// Status is a vault's position in its life-cycle ladder. Transitions only
// ever move forward; a vault is reclassified, never destroyed.
type Status uint8

const (
	// StatusUnconfirmed is set the moment a deposit output matching a
	// derived script is seen unconfirmed in the mempool.
	StatusUnconfirmed Status = iota

	// StatusFunded is set once the deposit reaches its first confirmation.
	// Its presigned transaction templates are stored, but none of our
	// revocation signatures has been merged into them yet.
	StatusFunded

	// StatusSecuring is set once a RevocationTxs call has merged at least
	// one of our own revocation signatures, but not all three roles are
	// fully signed yet.
	StatusSecuring

	// StatusSecured is set once Cancel, Emergency, and UnvaultEmergency
	// are all fully signed.
	StatusSecured

	// StatusActivating is set once an UnvaultTx call has merged our own
	// Unvault signature, but the Unvault transaction is not yet fully
	// signed.
	StatusActivating

	// StatusActive is set once the Unvault transaction is fully signed.
	StatusActive

	// StatusUnvaulting is set once the Unvault transaction is broadcast
	// and seen unconfirmed.
	StatusUnvaulting

	// StatusUnvaulted is set once the Unvault transaction confirms and
	// its CSV delay starts running.
	StatusUnvaulted

	// StatusSpending is set once a Spend transaction spending the
	// unvaulted output is seen unconfirmed.
	StatusSpending

	// StatusCanceling is set once the Cancel transaction is broadcast.
	StatusCanceling

	// StatusEmergencyVaulting is set once the Emergency transaction is
	// broadcast from the Funded/Secured stage.
	StatusEmergencyVaulting

	// StatusUnvaultEmergencyVaulting is set once the UnvaultEmergency
	// transaction is broadcast from the Unvaulted stage.
	StatusUnvaultEmergencyVaulting

	// StatusSpent is the terminal state after a Spend transaction
	// confirms.
	StatusSpent

	// StatusCanceled is the terminal state after a Cancel transaction
	// confirms.
	StatusCanceled

	// StatusEmergencyVaulted is the terminal state after an Emergency
	// transaction confirms.
	StatusEmergencyVaulted

	// StatusUnvaultEmergencyVaulted is the terminal state after an
	// UnvaultEmergency transaction confirms.
	StatusUnvaultEmergencyVaulted
)

var statusStrings = map[Status]string{
	StatusUnconfirmed:               "unconfirmed",
	StatusFunded:                    "funded",
	StatusSecuring:                  "securing",
	StatusSecured:                   "secured",
	StatusActivating:                "activating",
	StatusActive:                    "active",
	StatusUnvaulting:                "unvaulting",
	StatusUnvaulted:                 "unvaulted",
	StatusSpending:                  "spending",
	StatusCanceling:                 "canceling",
	StatusEmergencyVaulting:         "emergency_vaulting",
	StatusUnvaultEmergencyVaulting:  "unvault_emergency_vaulting",
	StatusSpent:                     "spent",
	StatusCanceled:                  "canceled",
	StatusEmergencyVaulted:          "emergency_vaulted",
	StatusUnvaultEmergencyVaulted:   "unvault_emergency_vaulted",
}

// String implements fmt.Stringer, used both for logging and for the wire
// representation of a vault's status in RPC replies.
func (s Status) String() string {
	if str, ok := statusStrings[s]; ok {
		return str
	}
	return fmt.Sprintf("unknown_status(%d)", uint8(s))
}

// MarshalJSON implements json.Marshaler so VaultStatus serializes as its
// string name rather than a bare integer on the RPC boundary.
func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}
