package rates

import "github.com/btcsuite/btclog"

var log = btclog.Disabled

// UseLogger sets the logger used by the rates package.
func UseLogger(logger btclog.Logger) {
	log = logger
}
