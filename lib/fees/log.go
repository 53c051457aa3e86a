package fees

import "github.com/btcsuite/btclog"

var log = btclog.Disabled

// UseLogger sets the logger used by the fees package.
func UseLogger(logger btclog.Logger) {
	log = logger
}
