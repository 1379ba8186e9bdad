package sigcheck

import "github.com/btcsuite/btclog"

// log is the package-level logger, disabled until UseLogger is called by
// the daemon's central log registry, following the convention used
// throughout this codebase (one `log` var per package, wired up once at
// startup).
var log = btclog.Disabled

// UseLogger sets the package-wide logger used by this package. This should
// be called before the package is used, to avoid a default no-op logger
// silently swallowing output.
func UseLogger(logger btclog.Logger) {
	log = logger
}
