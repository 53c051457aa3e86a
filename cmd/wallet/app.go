package main

import (
	"context"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/vwigmore/cloudomate/internal/config"
	"github.com/vwigmore/cloudomate/internal/daemon"
	walletstatedb "github.com/vwigmore/cloudomate/internal/database"
	"github.com/vwigmore/cloudomate/internal/payment"
	"github.com/vwigmore/cloudomate/lib/fees"
	"github.com/vwigmore/cloudomate/lib/rates"
	"github.com/vwigmore/cloudomate/lib/transaction"
	"github.com/vwigmore/cloudomate/lib/tribler"
)

// defaultRunner runs the wallet command line. Tests replace it with a fake.
var defaultRunner daemon.Runner = daemon.ExecRunner{}

// app holds the collaborators built from the configuration.
type app struct {
	cfg     config.Config
	params  *chaincfg.Params
	runner  daemon.Runner
	options daemon.Options

	fees    *fees.Estimator
	rates   *rates.Converter
	tribler *tribler.Client

	ledger   *walletstatedb.Ledger
	verifier *transaction.ElectrumVerifier
}

func newApp(cfg config.Config) *app {
	params := &chaincfg.MainNetParams
	if cfg.Testnet {
		params = &chaincfg.TestNet3Params
	}

	command := cfg.ElectrumCommand
	if len(command) == 0 {
		command = daemon.DefaultCommand(cfg.Testnet)
	} else if cfg.Testnet {
		command = append(append([]string(nil), command...), "--testnet")
	}

	return &app{
		cfg:     cfg,
		params:  params,
		runner:  defaultRunner,
		options: daemon.Options{Command: command, WalletPath: cfg.WalletPath},
		fees:    fees.NewEstimator(cfg.FeeAPIURL),
		rates:   rates.NewConverter(cfg.RateAPIURL, cfg.FallbackRateURL),
		tribler: tribler.NewClient(cfg.TriblerURL, cfg.Testnet),
	}
}

// context returns a context bounded by request_timeout, if one is set.
func (a *app) context(parent context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.RequestTimeout > 0 {
		return context.WithTimeout(parent, a.cfg.RequestTimeout)
	}
	return context.WithCancel(parent)
}

// openLedger opens the payment ledger, creating it on first use.
func (a *app) openLedger() (*walletstatedb.Ledger, error) {
	if a.ledger != nil {
		return a.ledger, nil
	}

	if !fileExists(a.cfg.LedgerDBPath) {
		log.Infof("No payment ledger found, creating %s", a.cfg.LedgerDBPath)
	}

	ledger, err := walletstatedb.InitSQLiteDB(a.cfg.LedgerDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open payment ledger: %w", err)
	}
	a.ledger = ledger
	return ledger, nil
}

// paymentService builds the payment service with the ledger and, when
// verify_broadcast is set, an Electrum mempool check.
func (a *app) paymentService(ctx context.Context) (*payment.Service, error) {
	ledger, err := a.openLedger()
	if err != nil {
		return nil, err
	}

	deps := payment.Deps{
		Fees:   a.fees,
		Rates:  a.rates,
		Ledger: ledger,
	}

	if a.cfg.VerifyBroadcast && a.verifier == nil {
		v, err := transaction.NewElectrumVerifier(ctx, transaction.ElectrumConfig{
			ServerAddr: a.cfg.ElectrumServer,
			UseSSL:     a.cfg.ElectrumSSL,
		})
		if err != nil {
			log.Warnf("Broadcast verification disabled: %v", err)
		} else {
			a.verifier = v
		}
	}
	if a.verifier != nil {
		deps.Verifier = a.verifier
	}

	return payment.New(payment.Config{
		GatewayFee: btcutil.Amount(a.cfg.GatewayFee.Shift(8).Round(0).IntPart()),
		FeeTier:    a.cfg.FeeTier,
	}, deps), nil
}

// withSession runs fn in a daemon session.
func (a *app) withSession(ctx context.Context, fn func(*daemon.Session) error) error {
	return daemon.WithSession(ctx, a.runner, a.options, fn)
}

func (a *app) Close() {
	if a.verifier != nil {
		a.verifier.Close()
	}
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			log.Errorf("Failed to close payment ledger: %v", err)
		}
	}
}

// Helper function to check if a file exists
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}
