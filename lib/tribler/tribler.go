// Package tribler pays through the wallet built into a running Tribler
// instance, using its local REST API.
package tribler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/shopspring/decimal"
)

// DefaultURL is where Tribler serves its REST API.
const DefaultURL = "http://localhost:8085"

const (
	mainnetCoin = "BTC"
	testnetCoin = "TBTC"
)

// ErrTransferFailed is returned when Tribler answers a transfer without a
// transaction id.
var ErrTransferFailed = errors.New("tribler transfer failed")

// Client talks to the Tribler wallet of one coin.
type Client struct {
	BaseURL string
	Coin    string
	Client  *http.Client
}

// NewClient returns a Client for baseURL, or DefaultURL if empty.
func NewClient(baseURL string, testnet bool) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	coin := mainnetCoin
	if testnet {
		coin = testnetCoin
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Coin:    coin,
		Client:  &http.Client{},
	}
}

// Balance returns the available balance of the wallet.
func (c *Client) Balance(ctx context.Context) (btcutil.Amount, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("balance"), nil)
	if err != nil {
		return 0, err
	}

	body, status, err := c.do(req)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("balance request returned status %d: %s", status, body)
	}

	var reply struct {
		Balance struct {
			Available decimal.Decimal `json:"available"`
		} `json:"balance"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return 0, fmt.Errorf("decoding balance: %w", err)
	}
	return btcutil.Amount(reply.Balance.Available.Shift(8).Floor().IntPart()), nil
}

// Transfer sends amount to dest and returns the transaction id.
func (c *Client) Transfer(ctx context.Context, dest string, amount btcutil.Amount) (string, error) {
	form := url.Values{}
	form.Set("amount", decimal.New(int64(amount), -8).String())
	form.Set("destination", dest)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("transfer"),
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, status, err := c.do(req)
	if err != nil {
		return "", err
	}

	var reply struct {
		TxID  string `json:"txid"`
		Error string `json:"error"`
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &reply); err != nil {
			log.Debugf("Undecodable transfer reply: %q", body)
		}
	}
	if status != http.StatusOK || reply.TxID == "" {
		msg := reply.Error
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return "", fmt.Errorf("%w: status %d: %s", ErrTransferFailed, status, msg)
	}

	log.Infof("Tribler transfer of %v to %s: %s", amount, dest, reply.TxID)
	return reply.TxID, nil
}

func (c *Client) endpoint(action string) string {
	return fmt.Sprintf("%s/wallets/%s/%s", c.BaseURL, url.PathEscape(c.Coin), action)
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	return body, resp.StatusCode, nil
}
