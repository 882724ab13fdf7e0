package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/voxalabs/storage-redundancy-engine/interfaces"
)

// LedgerTag is a name/value pair attached to a transaction. Both sides are
// base64url encoded on the wire.
type LedgerTag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewLedgerTag encodes a tag for inclusion in a transaction.
func NewLedgerTag(name, value string) LedgerTag {
	return LedgerTag{
		Name:  base64.RawURLEncoding.EncodeToString([]byte(name)),
		Value: base64.RawURLEncoding.EncodeToString([]byte(value)),
	}
}

// LedgerTransaction is a data transaction in the permanent ledger's wire
// format. Binary fields carry base64url; quantity and reward are decimal
// strings in winston.
type LedgerTransaction struct {
	ID        string      `json:"id"`
	LastTx    string      `json:"last_tx"`
	Owner     string      `json:"owner"`
	Tags      []LedgerTag `json:"tags"`
	Target    string      `json:"target"`
	Quantity  string      `json:"quantity"`
	Data      string      `json:"data"`
	Reward    string      `json:"reward"`
	Signature string      `json:"signature"`
}

// signaturePayload assembles the buffer the wallet signs, in the canonical
// field order the network verifies: owner, target, data, quantity, reward,
// anchor, then each tag's name and value.
func (tx *LedgerTransaction) signaturePayload() ([]byte, error) {
	var buf bytes.Buffer
	for _, field := range []string{tx.Owner, tx.Target, tx.Data} {
		raw, err := base64.RawURLEncoding.DecodeString(field)
		if err != nil {
			return nil, fmt.Errorf("failed to decode transaction field: %w", err)
		}
		buf.Write(raw)
	}
	buf.WriteString(tx.Quantity)
	buf.WriteString(tx.Reward)
	anchor, err := base64.RawURLEncoding.DecodeString(tx.LastTx)
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction anchor: %w", err)
	}
	buf.Write(anchor)
	for _, tag := range tx.Tags {
		name, err := base64.RawURLEncoding.DecodeString(tag.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to decode tag name: %w", err)
		}
		value, err := base64.RawURLEncoding.DecodeString(tag.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to decode tag value: %w", err)
		}
		buf.Write(name)
		buf.Write(value)
	}
	return buf.Bytes(), nil
}

// LedgerStatus reports where a submitted transaction stands. Pending means
// the network accepted it but no block includes it yet.
type LedgerStatus struct {
	Pending       bool
	BlockHeight   int64  `json:"block_height"`
	BlockHash     string `json:"block_indep_hash"`
	Confirmations int64  `json:"number_of_confirmations"`
}

// LedgerGateway is the gateway API surface the ledger provider needs.
// Implementations talk to one gateway node.
type LedgerGateway interface {
	SubmitTransaction(ctx context.Context, tx *LedgerTransaction) error
	TransactionStatus(ctx context.Context, id string) (LedgerStatus, error)
	TransactionData(ctx context.Context, id string) ([]byte, error)
	Price(ctx context.Context, size int) (int64, error)
	Balance(ctx context.Context, address string) (int64, error)
	Anchor(ctx context.Context) (string, error)
}

// HTTPGateway implements LedgerGateway against a gateway's REST API.
type HTTPGateway struct {
	endpoint string
	client   *http.Client
	log      *slog.Logger
}

// NewHTTPGateway creates a gateway client. The client timeout only bounds
// individual calls; long confirmation waits are the provider's concern.
func NewHTTPGateway(endpoint string, log *slog.Logger) *HTTPGateway {
	return &HTTPGateway{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		client:   &http.Client{Timeout: 60 * time.Second},
		log:      log,
	}
}

// SubmitTransaction posts a signed transaction. A transaction the gateway
// has already seen counts as accepted.
func (g *HTTPGateway) SubmitTransaction(ctx context.Context, tx *LedgerTransaction) error {
	raw, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("failed to encode transaction: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+"/tx", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to create submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return wrapTransport(ctx, "ledger submit", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAlreadyReported {
		return nil
	}
	return statusError(resp)
}

// TransactionStatus reports confirmation progress for a transaction. The
// gateway answers 202 while the transaction waits for a block.
func (g *HTTPGateway) TransactionStatus(ctx context.Context, id string) (LedgerStatus, error) {
	resp, err := g.get(ctx, "/tx/"+id+"/status")
	if err != nil {
		return LedgerStatus{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var status LedgerStatus
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			return LedgerStatus{}, fmt.Errorf("failed to decode status response: %w", err)
		}
		return status, nil
	case http.StatusAccepted:
		return LedgerStatus{Pending: true}, nil
	default:
		return LedgerStatus{}, statusError(resp)
	}
}

// TransactionData fetches the raw data payload of a confirmed transaction.
func (g *HTTPGateway) TransactionData(ctx context.Context, id string) ([]byte, error) {
	resp, err := g.get(ctx, "/"+id)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Data for a known but unmined transaction is served with 202.
	if resp.StatusCode == http.StatusAccepted {
		return nil, fmt.Errorf("%w: transaction %s awaiting confirmation", interfaces.ErrProviderUnavailable, id)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapTransport(ctx, "ledger data", err)
	}
	return data, nil
}

// Price quotes the fee in winston for storing size bytes.
func (g *HTTPGateway) Price(ctx context.Context, size int) (int64, error) {
	return g.getInt(ctx, "/price/"+strconv.Itoa(size))
}

// Balance reports a wallet's balance in winston.
func (g *HTTPGateway) Balance(ctx context.Context, address string) (int64, error) {
	return g.getInt(ctx, "/wallet/"+address+"/balance")
}

// Anchor fetches the anchor new transactions must reference.
func (g *HTTPGateway) Anchor(ctx context.Context) (string, error) {
	resp, err := g.get(ctx, "/tx_anchor")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", wrapTransport(ctx, "ledger anchor", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

func (g *HTTPGateway) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, wrapTransport(ctx, "ledger gateway", err)
	}
	return resp, nil
}

func (g *HTTPGateway) getInt(ctx context.Context, path string) (int64, error) {
	resp, err := g.get(ctx, path)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, statusError(resp)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return 0, wrapTransport(ctx, "ledger gateway", err)
	}
	value, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse gateway response %q: %w", strings.TrimSpace(string(raw)), err)
	}
	return value, nil
}
