// Package ledger talks to the settlement network. The network is treated as
// a read-only oracle: given a transaction signature it returns a finalized
// record, and given an address it returns live balances. Nothing here
// mutates chain state.
package ledger

import (
	"context"
	"errors"
	"math/big"
)

// ErrUnavailable marks a transient oracle failure. Callers may retry the
// same lookup later; lookups are idempotent and side-effect free.
var ErrUnavailable = errors.New("ledger: oracle unavailable")

// AccountKey is one account referenced by a transaction, with its signer flag.
type AccountKey struct {
	Identity string
	IsSigner bool
}

// BalanceDelta carries the pre/post native balance of one account, in the
// smallest currency unit.
type BalanceDelta struct {
	Identity string
	Pre      uint64
	Post     uint64
}

// TokenTransfer is one parsed transfer-type instruction.
type TokenTransfer struct {
	Destination string
	Amount      *big.Int
}

// TransactionRecord is the finalized view of one transaction. Transfers are
// split into top-level and inner instruction lists because value moves are
// frequently wrapped inside program-composed instructions; verifiers must
// scan both.
type TransactionRecord struct {
	Accounts       []AccountKey
	Balances       []BalanceDelta
	TokenTransfers []TokenTransfer
	InnerTransfers []TokenTransfer
	Success        bool
}

// Signed reports whether identity appears in the account list with the
// signer flag set. Mere presence among the accounts is not enough.
func (r *TransactionRecord) Signed(identity string) bool {
	for _, a := range r.Accounts {
		if a.Identity == identity && a.IsSigner {
			return true
		}
	}
	return false
}

// BalanceOf returns the balance delta entry for identity, if present.
func (r *TransactionRecord) BalanceOf(identity string) (BalanceDelta, bool) {
	for _, b := range r.Balances {
		if b.Identity == identity {
			return b, true
		}
	}
	return BalanceDelta{}, false
}

// Oracle is the read-only ledger contract consumed by the settlement core.
// GetTransaction returns (nil, nil) when the transaction is absent or not
// yet finalized, so callers can resubmit the same signature later.
type Oracle interface {
	GetTransaction(ctx context.Context, signature string) (*TransactionRecord, error)
	GetBalance(ctx context.Context, address string) (uint64, error)
	GetTokenBalance(ctx context.Context, owner, mint string) (*big.Int, error)
}
