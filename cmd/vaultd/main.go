// vaultd is the Control Dispatcher's process entry point: it loads
// configuration, opens the Persistence Gateway, assembles the Coordinator
// Relay, and drives the Dispatcher's Run loop until asked to stop. The RPC
// front-end, chain-watcher, and signature-fetcher are separate, out-of-scope
// collaborators; this binary only brings up the core and the plumbing
// between it and whichever of those happen to be wired in.
//
// Grounded on lnd.go's lndMain: a thin wrapper function so that deferred
// cleanups still run on an early return, with main itself doing nothing but
// call it and set the process exit code.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/daemon"

	"github.com/vaultd-project/vaultd/config"
	"github.com/vaultd-project/vaultd/control"
	"github.com/vaultd-project/vaultd/coordnet"
	"github.com/vaultd-project/vaultd/noise"
	"github.com/vaultd-project/vaultd/txchain"
	"github.com/vaultd-project/vaultd/vaultdb"
)

func main() {
	if err := vaultdMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func vaultdMain() error {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	initLoggers()
	vltdLog.Infof("vaultd starting, network=%s", cfg.NetworkName())

	db, err := vaultdb.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening persistence gateway: %w", err)
	}
	defer db.Close()

	relay, err := buildRelay(cfg)
	if err != nil {
		return fmt.Errorf("assembling coordinator relay: %w", err)
	}

	dispatcher := control.New(&control.Config{
		Daemon:      cfg,
		Gateway:     db,
		Relay:       relay,
		Addresses:   unwiredAddressSource{},
		DeriveChain: txchain.DeriveChain,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		vltdLog.Infof("received shutdown signal")
		dispatcher.Shutdown()
	}()

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		vltdLog.Warnf("sd_notify READY failed: %v", err)
	} else if sent {
		vltdLog.Infof("sd_notify: READY=1 delivered")
	}

	runErr := dispatcher.Run(ctx)

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		vltdLog.Warnf("sd_notify STOPPING failed: %v", err)
	} else if sent {
		vltdLog.Infof("sd_notify: STOPPING=1 delivered")
	}

	if runErr != nil {
		return fmt.Errorf("control dispatcher exited: %w", runErr)
	}
	return nil
}

// buildRelay assembles the Coordinator Relay from the daemon's configured
// Noise identity and the coordinator's known static public key. Both sides
// of a Noise_KK handshake must already hold each other's static public key,
// so config carries them in hex rather than vaultd performing any discovery.
func buildRelay(cfg *config.Config) (*coordnet.Relay, error) {
	privBytes, err := hex.DecodeString(cfg.OurNoisePrivkey)
	if err != nil {
		return nil, fmt.Errorf("decoding our_noise_privkey: %w", err)
	}
	if len(privBytes) != 32 {
		return nil, fmt.Errorf("our_noise_privkey must be 32 bytes, got %d", len(privBytes))
	}
	var priv [32]byte
	copy(priv[:], privBytes)
	local := noise.StaticKeyFromPrivate(priv)

	coordPubBytes, err := hex.DecodeString(cfg.CoordinatorNoisePubkey)
	if err != nil {
		return nil, fmt.Errorf("decoding coordinator_noise_pubkey: %w", err)
	}
	if len(coordPubBytes) != 32 {
		return nil, fmt.Errorf("coordinator_noise_pubkey must be 32 bytes, got %d", len(coordPubBytes))
	}
	var coordPub [32]byte
	copy(coordPub[:], coordPubBytes)

	return coordnet.New(local, coordPub, cfg.CoordinatorAddr), nil
}

// unwiredAddressSource satisfies control.AddressSource for a core build with
// no wallet module attached. DepositAddr is wallet UX, which SPEC_FULL.md's
// Non-goals exclude from this daemon's own scope; a real deployment wires in
// the surrounding wallet process's address source here instead.
type unwiredAddressSource struct{}

func (unwiredAddressSource) NextDepositAddress() (string, error) {
	return "", fmt.Errorf("vaultd: no wallet address source configured")
}
