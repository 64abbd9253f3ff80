package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{RPCURL: srv.URL, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func rpcResult(t *testing.T, w http.ResponseWriter, result string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":` + result + `}`)); err != nil {
		t.Errorf("write response: %v", err)
	}
}

func TestGetTransactionParsesRecord(t *testing.T) {
	const result = `{
		"meta": {
			"err": null,
			"preBalances": [1000000, 500],
			"postBalances": [998500, 2000],
			"innerInstructions": [
				{"instructions": [
					{"program": "token", "parsed": {"type": "transfer", "info": {"destination": "inner-dest", "amount": "2500000"}}}
				]}
			]
		},
		"transaction": {
			"message": {
				"accountKeys": [
					{"pubkey": "payer", "signer": true},
					{"pubkey": "payee", "signer": false}
				],
				"instructions": [
					{"program": "token", "parsed": {"type": "transferChecked", "info": {"destination": "top-dest", "tokenAmount": {"amount": "42"}}}},
					{"program": "memo"}
				]
			}
		}
	}`
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Method != "getTransaction" {
			t.Errorf("method = %q", req.Method)
		}
		rpcResult(t, w, result)
	})

	record, err := c.GetTransaction(context.Background(), "sig")
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if record == nil {
		t.Fatal("record is nil")
	}
	if !record.Success {
		t.Fatal("record should be successful")
	}
	if !record.Signed("payer") {
		t.Fatal("payer should be a signer")
	}
	if record.Signed("payee") {
		t.Fatal("payee must not be a signer")
	}
	delta, ok := record.BalanceOf("payee")
	if !ok || delta.Pre != 500 || delta.Post != 2000 {
		t.Fatalf("payee delta = %+v ok=%v", delta, ok)
	}
	if len(record.TokenTransfers) != 1 || record.TokenTransfers[0].Destination != "top-dest" {
		t.Fatalf("top-level transfers = %+v", record.TokenTransfers)
	}
	if record.TokenTransfers[0].Amount.String() != "42" {
		t.Fatalf("top-level amount = %s", record.TokenTransfers[0].Amount)
	}
	if len(record.InnerTransfers) != 1 || record.InnerTransfers[0].Amount.String() != "2500000" {
		t.Fatalf("inner transfers = %+v", record.InnerTransfers)
	}
}

func TestGetTransactionNotFinalized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rpcResult(t, w, "null")
	})
	record, err := c.GetTransaction(context.Background(), "sig")
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if record != nil {
		t.Fatalf("record = %+v, want nil for unknown transaction", record)
	}
}

func TestGetTransactionFailedTx(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rpcResult(t, w, `{"meta":{"err":{"InstructionError":[0,"Custom"]}},"transaction":{"message":{"accountKeys":[]}}}`)
	})
	record, err := c.GetTransaction(context.Background(), "sig")
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if record == nil || record.Success {
		t.Fatalf("record = %+v, want unsuccessful record", record)
	}
}

func TestCallTransportFailure(t *testing.T) {
	c, err := NewClient(Config{RPCURL: "http://127.0.0.1:1", Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = c.GetTransaction(context.Background(), "sig")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestCallServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := c.GetTransaction(context.Background(), "sig")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestGetBalance(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rpcResult(t, w, `{"value":123456}`)
	})
	got, err := c.GetBalance(context.Background(), "addr")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if got != 123456 {
		t.Fatalf("balance = %d", got)
	}
}

func TestGetTokenBalance(t *testing.T) {
	t.Run("known account", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			rpcResult(t, w, `{"value":{"amount":"750000"}}`)
		})
		got, err := c.GetTokenBalance(context.Background(), "owner", "mint")
		if err != nil {
			t.Fatalf("GetTokenBalance: %v", err)
		}
		if got.String() != "750000" {
			t.Fatalf("balance = %s", got)
		}
	})
	t.Run("unknown account reads as zero", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"could not find account"}}`))
		})
		got, err := c.GetTokenBalance(context.Background(), "owner", "mint")
		if err != nil {
			t.Fatalf("GetTokenBalance: %v", err)
		}
		if got.Sign() != 0 {
			t.Fatalf("balance = %s, want 0", got)
		}
	})
}

func TestDeriveDeterministic(t *testing.T) {
	if DeriveTokenAccount("mint", "owner") != DeriveTokenAccount("mint", "owner") {
		t.Fatal("token account derivation must be deterministic")
	}
	if DeriveTokenAccount("mint", "owner") == DeriveTokenAccount("mint", "other") {
		t.Fatal("different owners must derive different accounts")
	}
	if DeriveHoldingAddress(1, "buyer") != DeriveHoldingAddress(1, "buyer") {
		t.Fatal("holding address derivation must be deterministic")
	}
	if DeriveHoldingAddress(1, "buyer") == DeriveHoldingAddress(2, "buyer") {
		t.Fatal("different listings must derive different holding addresses")
	}
}
