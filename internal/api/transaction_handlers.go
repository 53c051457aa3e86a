package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/btcsuite/btcd/btcutil"

	"github.com/vwigmore/cloudomate/internal/daemon"
	"github.com/vwigmore/cloudomate/internal/payment"
)

func (s *Server) handlePay(w http.ResponseWriter, r *http.Request) {
	var req PayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := s.validateAddress(req.Address); err != nil {
		badRequest(w, err)
		return
	}
	if req.AutoFee && req.Fee != nil {
		badRequest(w, errors.New("fee and auto_fee are mutually exclusive"))
		return
	}

	amount, err := payment.ParseCoins(req.Amount)
	if err != nil {
		badRequest(w, err)
		return
	}
	var fee *btcutil.Amount
	if req.Fee != nil {
		f, err := payment.ParseFee(*req.Fee)
		if err != nil {
			badRequest(w, fmt.Errorf("fee: %w", err))
			return
		}
		fee = &f
	}

	s.pay(w, r, func(sess *daemon.Session) (*payment.Outcome, error) {
		ctx := sessionContext(r)
		if req.AutoFee {
			return s.cfg.Payments.PayWithAutoFee(ctx, sess, req.Address, amount)
		}
		return s.cfg.Payments.Pay(ctx, sess, req.Address, amount, fee)
	})
}

func (s *Server) handleInvoice(w http.ResponseWriter, r *http.Request) {
	var req InvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := s.validateAddress(req.Address); err != nil {
		badRequest(w, err)
		return
	}

	s.pay(w, r, func(sess *daemon.Session) (*payment.Outcome, error) {
		return s.cfg.Payments.PayInvoice(sessionContext(r), sess, payment.Invoice{
			Address:  req.Address,
			Price:    req.Price,
			Currency: req.Currency,
		})
	})
}

func (s *Server) handleEmpty(w http.ResponseWriter, r *http.Request) {
	var req EmptyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := s.validateAddress(req.Address); err != nil {
		badRequest(w, err)
		return
	}

	s.pay(w, r, func(sess *daemon.Session) (*payment.Outcome, error) {
		return s.cfg.Payments.EmptyWallet(sessionContext(r), sess, req.Address)
	})
}

// pay runs fn in a wallet session and writes its outcome. Insufficient
// funds is a 200 with the outcome, like any other completed payment.
func (s *Server) pay(w http.ResponseWriter, r *http.Request, fn func(*daemon.Session) (*payment.Outcome, error)) {
	var outcome *payment.Outcome
	err := s.withSession(sessionContext(r), func(sess *daemon.Session) error {
		var err error
		outcome, err = fn(sess)
		return err
	})
	if err != nil {
		writeError(w, err, outcome)
		return
	}

	log.Infof("Payment to %s: %s", outcome.Destination, outcome.Status)
	writeJSON(w, outcome)
}
