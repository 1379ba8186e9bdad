package main

import (
	"os"

	"github.com/btcsuite/btclog"

	"github.com/vaultd-project/vaultd/control"
	"github.com/vaultd-project/vaultd/coordnet"
	"github.com/vaultd-project/vaultd/noise"
	"github.com/vaultd-project/vaultd/sigcheck"
	"github.com/vaultd-project/vaultd/txchain"
	"github.com/vaultd-project/vaultd/vaultdb"
)

// vltdLog is this binary's own top-level subsystem logger, for messages
// that belong to process bootstrap rather than any one package.
var vltdLog btclog.Logger

// initLoggers wires every package's package-scoped logger onto one shared
// stdout backend, one subsystem tag per package, mirroring lnd.go's own
// per-subsystem logger registration at startup.
func initLoggers() {
	backend := btclog.NewBackend(os.Stdout)

	vltdLog = backend.Logger("VLTD")

	control.UseLogger(backend.Logger("CTRL"))
	vaultdb.UseLogger(backend.Logger("VDB"))
	coordnet.UseLogger(backend.Logger("CORD"))
	noise.UseLogger(backend.Logger("NOIS"))
	sigcheck.UseLogger(backend.Logger("SIGC"))
	txchain.UseLogger(backend.Logger("TXCH"))
}
