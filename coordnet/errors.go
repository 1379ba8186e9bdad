package coordnet

import "errors"

// ErrCoordinator is returned by ShareSigs, wrapping the last failure, once
// all maxRetries attempts have failed. ShareSigs does not tell transient
// from permanent errors apart: every failure is retried alike, and a
// context canceled during a backoff wait yields ctx.Err() instead of
// ErrCoordinator. The Dispatcher surfaces it verbatim as a
// CoordinatorError reply; persistence has already succeeded by the time
// this can happen, per the Relay's pre-condition.
var ErrCoordinator = errors.New("coordnet: failed to reach coordinator")
