package tribler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientCoin(t *testing.T) {
	assert.Equal(t, "BTC", NewClient("", false).Coin)
	assert.Equal(t, "TBTC", NewClient("", true).Coin)
	assert.Equal(t, DefaultURL, NewClient("", false).BaseURL)
}

func TestBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/wallets/TBTC/balance", r.URL.Path)
		w.Write([]byte(`{"balance": {"available": 0.05, "pending": 0.01}}`))
	}))
	defer srv.Close()

	balance, err := NewClient(srv.URL, true).Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, btcutil.Amount(5000000), balance)
}

func TestBalanceErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"error": "wallet not created"}`},
		{"not json", http.StatusOK, `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, false).Balance(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestTransfer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/wallets/BTC/transfer", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "0.031", r.PostForm.Get("amount"))
		assert.Equal(t, "addr", r.PostForm.Get("destination"))
		w.Write([]byte(`{"txid": "abc123"}`))
	}))
	defer srv.Close()

	txid, err := NewClient(srv.URL, false).Transfer(context.Background(), "addr", 3100000)
	require.NoError(t, err)
	assert.Equal(t, "abc123", txid)
}

func TestTransferFailed(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"empty reply", http.StatusOK, ``},
		{"error reply", http.StatusBadRequest, `{"error": "insufficient funds"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, false).Transfer(context.Background(), "addr", 1000)
			assert.ErrorIs(t, err, ErrTransferFailed)
		})
	}
}
