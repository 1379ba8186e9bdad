// Package control implements the Control Dispatcher: the single
// coordination loop that answers Control Requests from the operator's
// RPC front-end, driving the Signature Verifier, Transaction Chain
// Derivor, Persistence Gateway, and Coordinator Relay to do so. It is
// grounded directly on control.rs's handle_rpc_messages loop,
// transliterated into the idiomatic Go shape of
// htlcswitch/switch.go's htlcForwarder: a single goroutine owning all
// mutable state, fed by typed requests on a channel, replying on a
// per-request unbuffered channel.
package control

import (
	"context"
	"fmt"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vaultd-project/vaultd/chainwatch"
	vconfig "github.com/vaultd-project/vaultd/config"
)

// defaultStatsInterval is how often the Run loop logs a one-line summary
// of requests handled, mirroring htlcswitch.Switch.htlcForwarder's
// 10-second logTicker.
const defaultStatsInterval = 10 * time.Second

// defaultRequestBuffer is the Dispatcher's own inbound channel capacity.
// It is deliberately small: true backpressure is enforced at the RPC
// layer (SPEC_FULL.md §5), this buffer only smooths bursts of the RPC
// front-end's own bounded queue draining faster than the Dispatcher
// processes requests.
const defaultRequestBuffer = 8

// Config bundles every collaborator the Dispatcher needs: the daemon-wide
// configuration object, the three domain subsystems (Gateway, Relay,
// Derivor), the two sibling goroutines' interfaces (Watcher, SigFetcher),
// the wallet's address source, and a Clock for deterministic testing of
// anything the Dispatcher timestamps.
type Config struct {
	Daemon      *vconfig.Config
	Gateway     Gateway
	Relay       Relay
	Watcher     chainwatch.Watcher
	SigFetcher  chainwatch.SigFetcher
	Addresses   AddressSource
	DeriveChain DeriveChainFunc

	// Clock is injected so tests can freeze time; defaults to the
	// system clock.
	Clock clock.Clock

	// Registerer registers this Dispatcher's Prometheus collectors;
	// nil disables metrics registration (used by tests that construct
	// many Dispatchers against the default registry).
	Registerer prometheus.Registerer

	// StatsInterval overrides defaultStatsInterval; zero means use the
	// default.
	StatsInterval time.Duration
}

// Dispatcher is the Control Dispatcher. It must be driven by a single call
// to Run; all mutation of vault state happens inside that goroutine, so
// Dispatcher itself holds no lock.
type Dispatcher struct {
	cfg      *Config
	metrics  *metrics
	requests chan Request

	totalRequests uint64
}

// New constructs a Dispatcher ready to be driven by Run. It does not start
// any goroutine itself.
func New(cfg *Config) *Dispatcher {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}

	return &Dispatcher{
		cfg:      cfg,
		metrics:  newMetrics(cfg.Registerer),
		requests: make(chan Request, defaultRequestBuffer),
	}
}

// Run is the Dispatcher's central loop: it blocks processing one Control
// Request to completion before accepting the next (SPEC_FULL.md §5's
// single-threaded, strictly-FIFO guarantee), until a ShutdownRequest is
// received or ctx is canceled. PersistenceError and InternalInvariantError
// outcomes cause Run to return a non-nil error; the caller (cmd/vaultd) is
// expected to treat that as fatal and terminate the process, per
// SPEC_FULL.md §7's propagation policy.
func (d *Dispatcher) Run(ctx context.Context) error {
	interval := d.cfg.StatsInterval
	if interval == 0 {
		interval = defaultStatsInterval
	}
	statsTicker := ticker.New(interval)
	statsTicker.Resume()
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Infof("Dispatcher stopping: %v", ctx.Err())
			return ctx.Err()

		case <-statsTicker.Ticks():
			log.Infof("Control Dispatcher processed %d requests since start",
				d.totalRequests)

		case req := <-d.requests:
			if sr, ok := req.(*ShutdownRequest); ok {
				d.handleShutdown(sr)
				return nil
			}

			if err := d.dispatch(req); err != nil {
				return err
			}
		}
	}
}

// dispatch routes one request to its handler, times it, and records
// metrics. It returns non-nil only for fatal outcomes (Persistence /
// InternalInvariant), which unwind Run.
func (d *Dispatcher) dispatch(req Request) error {
	start := d.cfg.Clock.Now()
	kind := req.requestKind()
	d.totalRequests++

	var fatal *ControlError

	switch r := req.(type) {
	case *GetInfoRequest:
		fatal = d.handleGetInfo(r)
	case *ListVaultsRequest:
		fatal = d.handleListVaults(r)
	case *DepositAddrRequest:
		fatal = d.handleDepositAddr(r)
	case *GetRevocationTxsRequest:
		fatal = d.handleGetRevocationTxs(r)
	case *RevocationTxsRequest:
		fatal = d.handleRevocationTxs(r)
	case *GetUnvaultTxRequest:
		fatal = d.handleGetUnvaultTx(r)
	case *UnvaultTxRequest:
		fatal = d.handleUnvaultTx(r)
	case *ListPresignedTransactionsRequest:
		fatal = d.handleListPresignedTransactions(r)
	case *ListOnchainTransactionsRequest:
		fatal = d.handleListOnchainTransactions(r)
	default:
		return fmt.Errorf("control: unhandled request kind %T", req)
	}

	elapsed := d.cfg.Clock.Now().Sub(start).Seconds()

	if fatal != nil {
		d.metrics.observe(kind, outcomeError, elapsed)
		log.Errorf("Control Request %s failed fatally: %v", kind, fatal)
		return fatal
	}

	d.metrics.observe(kind, outcomeSuccess, elapsed)
	return nil
}

func (d *Dispatcher) handleShutdown(req *ShutdownRequest) {
	log.Infof("Control Dispatcher shutting down")

	if d.cfg.Watcher != nil {
		d.cfg.Watcher.Shutdown()
	}
	if d.cfg.SigFetcher != nil {
		d.cfg.SigFetcher.Shutdown()
	}

	close(req.reply)
}

// submit sends req on the Dispatcher's inbound channel and is the shared
// plumbing every typed request method in client.go builds on.
func (d *Dispatcher) submit(req Request) {
	d.requests <- req
}

// fatalOutcome is the shared tail of every handler: it replies on ch with
// err (nil meaning success), and returns err back to dispatch only if its
// kind is fatal (Persistence/InternalInvariant), so Run knows to unwind.
func fatalOutcome[T any](ch chan Result[T], value T, err *ControlError) *ControlError {
	ch <- Result[T]{Value: value, Err: err}
	if err != nil && err.Kind.Fatal() {
		return err
	}
	return nil
}
