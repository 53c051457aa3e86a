package transaction

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/checksum0/go-electrum/electrum"
)

// DecodeTxID decodes a raw transaction and returns its txid.
func DecodeTxID(rawHex string) (chainhash.Hash, error) {
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("invalid transaction hex: %w", err)
	}

	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return chainhash.Hash{}, fmt.Errorf("failed to deserialize transaction: %w", err)
	}
	return tx.TxHash(), nil
}

// ElectrumVerifier checks broadcast transactions against an Electrum server's
// view of the mempool.
type ElectrumVerifier struct {
	client *electrum.Client
}

// NewElectrumVerifier connects to the configured Electrum server.
func NewElectrumVerifier(ctx context.Context, config ElectrumConfig) (*ElectrumVerifier, error) {
	client, err := CreateElectrumClient(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to electrum server %s: %w", config.ServerAddr, err)
	}
	return &ElectrumVerifier{client: client}, nil
}

// CreateElectrumClient dials an Electrum server over TCP or SSL.
func CreateElectrumClient(ctx context.Context, config ElectrumConfig) (*electrum.Client, error) {
	if config.UseSSL {
		return electrum.NewClientSSL(ctx, config.ServerAddr, nil)
	}
	return electrum.NewClientTCP(ctx, config.ServerAddr)
}

// InMempool reports whether the server knows the transaction txid.
func (v *ElectrumVerifier) InMempool(ctx context.Context, txid string) (bool, error) {
	if _, err := chainhash.NewHashFromStr(txid); err != nil {
		return false, fmt.Errorf("invalid txid %q: %w", txid, err)
	}

	tx, err := v.client.GetRawTransaction(ctx, txid)
	if err != nil {
		return false, fmt.Errorf("error checking Electrum mempool: %w", err)
	}
	return tx != "", nil
}

// Close shuts the server connection down.
func (v *ElectrumVerifier) Close() {
	v.client.Shutdown()
}
