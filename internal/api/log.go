package api

import "github.com/btcsuite/btclog"

var log = btclog.Disabled

// UseLogger sets the logger used by the API server.
func UseLogger(logger btclog.Logger) {
	log = logger
}
