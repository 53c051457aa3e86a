package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/vwigmore/cloudomate/internal/daemon"
)

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	var balance daemon.Balance
	err := s.withSession(r.Context(), func(sess *daemon.Session) error {
		var err error
		balance, err = sess.GetBalance(r.Context())
		return err
	})
	if err != nil {
		writeError(w, err, nil)
		return
	}

	writeJSON(w, BalanceResponse{
		Confirmed:   balance.Confirmed,
		Unconfirmed: balance.Unconfirmed,
		Total:       balance.Total(),
	})
}

func (s *Server) handleAddresses(w http.ResponseWriter, r *http.Request) {
	var addresses []interface{}
	err := s.withSession(r.Context(), func(sess *daemon.Session) error {
		var err error
		addresses, err = sess.GetAddresses(r.Context())
		return err
	})
	if err != nil {
		writeError(w, err, nil)
		return
	}

	writeJSON(w, addresses)
}

func (s *Server) handleFee(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Fees == nil {
		writeError(w, errors.New("no fee estimator configured"), nil)
		return
	}

	tier := r.URL.Query().Get("tier")
	if tier == "" {
		tier = s.cfg.FeeTier
	}

	fee, err := s.cfg.Fees.EstimateNetworkFee(r.Context(), tier)
	if err != nil {
		writeError(w, err, nil)
		return
	}

	writeJSON(w, FeeResponse{Tier: tier, Fee: fee})
}

func (s *Server) handlePayments(w http.ResponseWriter, r *http.Request) {
	if s.cfg.History == nil {
		http.Error(w, "payment ledger disabled", http.StatusNotFound)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(w, errors.New("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	payments, err := s.cfg.History.ListPayments(limit)
	if err != nil {
		writeError(w, err, nil)
		return
	}

	writeJSON(w, payments)
}

// sessionContext keeps the daemon session alive for the whole request even
// if the client disconnects mid-payment.
func sessionContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}
