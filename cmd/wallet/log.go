package main

import (
	"github.com/btcsuite/btclog"

	"github.com/vwigmore/cloudomate/internal/api"
	"github.com/vwigmore/cloudomate/internal/daemon"
	walletstatedb "github.com/vwigmore/cloudomate/internal/database"
	"github.com/vwigmore/cloudomate/internal/logger"
	"github.com/vwigmore/cloudomate/internal/payment"
	"github.com/vwigmore/cloudomate/lib/fees"
	"github.com/vwigmore/cloudomate/lib/rates"
	"github.com/vwigmore/cloudomate/lib/tribler"
)

var log = btclog.Disabled

// subsystemLoggers maps each subsystem identifier to the function that
// installs its logger. When adding new subsystems, add them here.
var subsystemLoggers = map[string]func(btclog.Logger){
	"MAIN": func(l btclog.Logger) { log = l },
	"WLLT": daemon.UseLogger,
	"FEES": fees.UseLogger,
	"RATE": rates.UseLogger,
	"PAYS": payment.UseLogger,
	"LDGR": walletstatedb.UseLogger,
	"HTTP": api.UseLogger,
	"TRBL": tribler.UseLogger,
}

// initLogging opens the log file and creates every subsystem logger at
// level.
func initLogging(logFile, level string) error {
	if err := logger.Init(logFile, level); err != nil {
		return err
	}

	for subsystemID, useLogger := range subsystemLoggers {
		useLogger(logger.Logger(subsystemID, level))
	}
	return nil
}
