package txchain

// Size constants for the P2WSH-only outputs this package builds, grounded
// on lnwallet/size.go's weight-accounting constants (trimmed to the
// subset a vault's one-input-one-or-two-output templates actually need).
// Spend-transaction fee-bumping mechanics are a Non-goal; these constants
// exist only to size a fixed per-template fee reservation so presigned
// outputs don't require renegotiation once a feerate is chosen later.
const (
	// p2wshOutputSize is the serialized size, in bytes, of a P2WSH
	// output: 8-byte value + 1-byte varint + 34-byte script.
	p2wshOutputSize = 8 + 1 + 34

	// baseTxOverhead accounts for version, locktime, segwit marker/flag,
	// and the single-input/one-or-two-output varints.
	baseTxOverhead = 4 + 4 + 2 + 1 + 1

	// presignedTxFee is the flat satoshi reservation withheld from a
	// template's output relative to its input, at a conservative
	// feerate, so the presigned chain remains broadcastable without
	// requiring every participant to re-sign once a feerate is chosen.
	// CPFP (via CpfpDescriptor) covers any shortfall at broadcast time.
	presignedTxFee = 3_000
)
