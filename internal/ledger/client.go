package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Client is a JSON-RPC 2.0 client for the settlement network node.
type Client struct {
	rpcURL     string
	httpClient *http.Client
	log        zerolog.Logger
}

// Config holds client configuration.
type Config struct {
	RPCURL  string
	Timeout time.Duration
	Logger  zerolog.Logger
}

// NewClient creates a ledger RPC client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		rpcURL:     cfg.RPCURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        cfg.Logger.With().Str("component", "ledger").Logger(),
	}, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	req := rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.log.Warn().Err(err).Str("method", method).Msg("rpc transport failure")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

// Wire types for parsed transaction responses.

type txResult struct {
	Meta *txMeta `json:"meta"`
	Tx   struct {
		Message struct {
			AccountKeys  []accountKey        `json:"accountKeys"`
			Instructions []parsedInstruction `json:"instructions"`
		} `json:"message"`
	} `json:"transaction"`
}

type txMeta struct {
	Err               interface{}        `json:"err"`
	PreBalances       []uint64           `json:"preBalances"`
	PostBalances      []uint64           `json:"postBalances"`
	InnerInstructions []innerInstruction `json:"innerInstructions"`
}

type accountKey struct {
	Pubkey string `json:"pubkey"`
	Signer bool   `json:"signer"`
}

type innerInstruction struct {
	Instructions []parsedInstruction `json:"instructions"`
}

type parsedInstruction struct {
	Program string `json:"program"`
	Parsed  *struct {
		Type string `json:"type"`
		Info struct {
			Destination string `json:"destination"`
			Amount      string `json:"amount"`
			TokenAmount struct {
				Amount string `json:"amount"`
			} `json:"tokenAmount"`
		} `json:"info"`
	} `json:"parsed"`
}

func (i parsedInstruction) transfer() (TokenTransfer, bool) {
	if i.Parsed == nil {
		return TokenTransfer{}, false
	}
	switch i.Parsed.Type {
	case "transfer", "transferChecked":
	default:
		return TokenTransfer{}, false
	}
	raw := i.Parsed.Info.Amount
	if raw == "" {
		raw = i.Parsed.Info.TokenAmount.Amount
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return TokenTransfer{}, false
	}
	return TokenTransfer{Destination: i.Parsed.Info.Destination, Amount: amount}, true
}

// GetTransaction fetches one finalized transaction. A transaction the node
// does not know yet comes back as (nil, nil) so the caller can resubmit the
// same signature once it finalizes.
func (c *Client) GetTransaction(ctx context.Context, signature string) (*TransactionRecord, error) {
	params := []interface{}{
		signature,
		map[string]interface{}{
			"encoding":   "jsonParsed",
			"commitment": "finalized",
		},
	}
	result, err := c.call(ctx, "getTransaction", params)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 || string(result) == "null" {
		return nil, nil
	}

	var parsed txResult
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, fmt.Errorf("parse transaction: %w", err)
	}
	if parsed.Meta == nil {
		return nil, nil
	}

	record := &TransactionRecord{Success: parsed.Meta.Err == nil}
	for i, key := range parsed.Tx.Message.AccountKeys {
		record.Accounts = append(record.Accounts, AccountKey{Identity: key.Pubkey, IsSigner: key.Signer})
		if i < len(parsed.Meta.PreBalances) && i < len(parsed.Meta.PostBalances) {
			record.Balances = append(record.Balances, BalanceDelta{
				Identity: key.Pubkey,
				Pre:      parsed.Meta.PreBalances[i],
				Post:     parsed.Meta.PostBalances[i],
			})
		}
	}
	for _, ins := range parsed.Tx.Message.Instructions {
		if t, ok := ins.transfer(); ok {
			record.TokenTransfers = append(record.TokenTransfers, t)
		}
	}
	for _, inner := range parsed.Meta.InnerInstructions {
		for _, ins := range inner.Instructions {
			if t, ok := ins.transfer(); ok {
				record.InnerTransfers = append(record.InnerTransfers, t)
			}
		}
	}
	return record, nil
}

// GetBalance returns the native balance of an address in the smallest unit.
func (c *Client) GetBalance(ctx context.Context, address string) (uint64, error) {
	result, err := c.call(ctx, "getBalance", []interface{}{address})
	if err != nil {
		return 0, err
	}
	var parsed struct {
		Value uint64 `json:"value"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return 0, fmt.Errorf("parse balance: %w", err)
	}
	return parsed.Value, nil
}

// GetTokenBalance returns the live balance of owner's derived token account
// for mint, in the token's smallest unit. A missing account reads as zero.
func (c *Client) GetTokenBalance(ctx context.Context, owner, mint string) (*big.Int, error) {
	account := DeriveTokenAccount(mint, owner)
	result, err := c.call(ctx, "getTokenAccountBalance", []interface{}{account})
	if err != nil {
		var rpcErr *rpcError
		if errors.As(err, &rpcErr) {
			// Nodes report unknown token accounts as an RPC error.
			return big.NewInt(0), nil
		}
		return nil, err
	}
	var parsed struct {
		Value struct {
			Amount string `json:"amount"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, fmt.Errorf("parse token balance: %w", err)
	}
	amount, ok := new(big.Int).SetString(parsed.Value.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid token amount %q", parsed.Value.Amount)
	}
	return amount, nil
}
