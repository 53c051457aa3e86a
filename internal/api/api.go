// Package api exposes the wallet operations over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vwigmore/cloudomate/internal/daemon"
	walletstatedb "github.com/vwigmore/cloudomate/internal/database"
	"github.com/vwigmore/cloudomate/internal/payment"
	"github.com/vwigmore/cloudomate/lib/fees"
	"github.com/vwigmore/cloudomate/lib/rates"
)

// FeeEstimator quotes network fees for GET /fee.
type FeeEstimator interface {
	EstimateNetworkFee(ctx context.Context, tier string) (btcutil.Amount, error)
}

// History lists recorded payments for GET /payments.
type History interface {
	ListPayments(limit int) ([]walletstatedb.Payment, error)
}

// Config configures a Server. History and Params are optional; without
// Params addresses are passed to the wallet unchecked.
type Config struct {
	Runner   daemon.Runner
	Options  daemon.Options
	Payments *payment.Service
	Fees     FeeEstimator
	History  History
	Params   *chaincfg.Params

	FeeTier       string
	AllowedOrigin string
	JWTSecret     []byte
}

// Server serves the wallet API. Requests that touch the wallet are
// serialized, each running in its own daemon session.
type Server struct {
	cfg Config
	mux *chi.Mux

	// mu is held for the lifetime of every wallet session.
	mu sync.Mutex
}

// NewServer builds the router for cfg.
func NewServer(cfg Config) *Server {
	s := &Server{cfg: cfg, mux: chi.NewRouter()}

	s.mux.Use(middleware.Recoverer)
	s.mux.Use(LoggingMiddleware)
	s.mux.Use(s.CORSMiddleware)

	s.mux.Group(func(r chi.Router) {
		r.Use(s.JWTMiddleware)

		r.Get("/balance", s.handleBalance)
		r.Get("/addresses", s.handleAddresses)
		r.Get("/fee", s.handleFee)
		r.Get("/payments", s.handlePayments)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			r.Post("/pay", s.handlePay)
			r.Post("/invoice", s.handleInvoice)
			r.Post("/empty", s.handleEmpty)
		})
	})

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()

		if err := srv.Shutdown(context.Background()); err != nil {
			log.Errorf("HTTP server Shutdown: %v", err)
		}
	}()

	log.Infof("API server listening on %s", listener.Addr())
	err = srv.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}

	wg.Wait()
	log.Infof("API server stopped")
	return err
}

// withSession runs fn in a daemon session, one at a time.
func (s *Server) withSession(ctx context.Context, fn func(*daemon.Session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return daemon.WithSession(ctx, s.cfg.Runner, s.cfg.Options, fn)
}

func (s *Server) validateAddress(addr string) error {
	if addr == "" {
		return errors.New("address is required")
	}
	if s.cfg.Params == nil {
		return nil
	}
	return payment.ValidateAddress(addr, s.cfg.Params)
}

// writeJSON writes thing with status 200.
func writeJSON(w http.ResponseWriter, thing interface{}) {
	writeJSONWithStatus(w, thing, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, thing interface{}, code int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "    ")
	if err := encoder.Encode(thing); err != nil {
		log.Errorf("JSON encode error: %v", err)
	}
}

// writeError maps err to a status code and writes it with the partial
// outcome, if any.
func writeError(w http.ResponseWriter, err error, outcome *payment.Outcome) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, payment.ErrInvalidAmount):
		code = http.StatusBadRequest
	case errors.Is(err, daemon.ErrDaemonUnavailable),
		errors.Is(err, fees.ErrRateUnavailable),
		errors.Is(err, rates.ErrRateUnavailable):
		code = http.StatusServiceUnavailable
	case errors.Is(err, daemon.ErrCommandFailed),
		errors.Is(err, daemon.ErrMalformedResponse):
		code = http.StatusBadGateway
	}

	log.Warnf("Request failed (%d): %v", code, err)
	writeJSONWithStatus(w, ErrorResponse{Error: err.Error(), Outcome: outcome}, code)
}

func badRequest(w http.ResponseWriter, err error) {
	writeJSONWithStatus(w, ErrorResponse{Error: err.Error()}, http.StatusBadRequest)
}
