package sigcheck

import (
	"errors"
	"fmt"
)

// SigError is thrown when the verification of a signature fails. It always
// surfaces to the RPC caller verbatim; it is never logged at error level
// since it is routine caller input, not a daemon fault.
type SigError struct {
	// Kind classifies the failure.
	Kind SigErrorKind

	// Err is the underlying error, if any (e.g. the secp256k1 library's
	// verification error). May be nil for InvalidSighash/InvalidLength.
	Err error
}

// SigErrorKind enumerates the ways a signature entry can fail validation.
type SigErrorKind uint8

const (
	// KindInvalidLength is returned when a signature blob, after the
	// trailing sighash-type byte is stripped, is too short to possibly
	// contain a minimal DER-encoded ECDSA signature. This resolves the
	// open question of whether InvalidLength is ever constructed: it is,
	// here, guarding the DER decode from a degenerate input.
	KindInvalidLength SigErrorKind = iota

	// KindInvalidSighash is returned when the trailing sighash-type byte
	// doesn't match what this role requires.
	KindInvalidSighash

	// KindVerifyError is returned when DER decoding or the secp256k1
	// verification itself fails.
	KindVerifyError
)

// minDERSigLength is the shortest byte length a valid DER ECDSA signature
// can have: 0x30 len 0x02 len r 0x02 len s, with r and s each collapsing to
// a single non-zero byte.
const minDERSigLength = 8

func (k SigErrorKind) String() string {
	switch k {
	case KindInvalidLength:
		return "invalid length of signature"
	case KindInvalidSighash:
		return "Invalid SIGHASH type"
	case KindVerifyError:
		return "signature verification error"
	default:
		return "unknown signature error"
	}
}

// Error implements the error interface.
func (e *SigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: '%s'", e.Kind, e.Err)
	}
	return e.Kind.String()
}

// Unwrap allows errors.Is/errors.As to reach the underlying secp256k1 error.
func (e *SigError) Unwrap() error {
	return e.Err
}

var (
	// ErrInvalidLength is the sentinel matched via errors.Is for
	// KindInvalidLength failures.
	ErrInvalidLength = &SigError{Kind: KindInvalidLength}

	// ErrInvalidSighash is the sentinel matched via errors.Is for
	// KindInvalidSighash failures.
	ErrInvalidSighash = &SigError{Kind: KindInvalidSighash}
)

// Is allows errors.Is(err, ErrInvalidLength) / errors.Is(err,
// ErrInvalidSighash) to match by Kind alone, ignoring the wrapped error
// and any verification detail.
func (e *SigError) Is(target error) bool {
	var se *SigError
	if !errors.As(target, &se) {
		return false
	}
	return e.Kind == se.Kind
}
