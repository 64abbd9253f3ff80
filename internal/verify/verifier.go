// Package verify decides whether a submitted transaction signature proves
// that a required payment was made, without trusting the client. It is pure
// over the oracle's transaction record: no state, no side effects, the same
// signature always verifies the same way.
package verify

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"

	"github.com/peermart/peermart-backend/internal/ledger"
)

// Reason classifies why a payment was rejected.
type Reason string

const (
	ReasonNotFound            Reason = "not_found"
	ReasonChainFailure        Reason = "chain_failure"
	ReasonUnsignedByPayer     Reason = "unsigned_by_payer"
	ReasonInsufficientAmount  Reason = "insufficient_amount"
	ReasonNoMatchingTransfer  Reason = "no_matching_transfer"
	ReasonUnsupportedCurrency Reason = "unsupported_currency"
)

// RejectError reports a failed verification with its reason. It is a
// terminal answer for this transaction: resubmitting the same signature
// yields the same rejection.
type RejectError struct {
	Reason Reason
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("payment rejected: %s", e.Reason)
}

func reject(r Reason) error {
	return &RejectError{Reason: r}
}

// RejectedWith returns the rejection reason carried by err, if any.
func RejectedWith(err error) (Reason, bool) {
	var re *RejectError
	if errors.As(err, &re) {
		return re.Reason, true
	}
	return "", false
}

// Terms are the payment conditions a transaction must satisfy.
type Terms struct {
	Payer     string
	Payee     string
	Currency  Currency
	MinAmount *big.Int
}

// Verifier checks submitted payments against listing terms.
type Verifier struct {
	oracle ledger.Oracle
	log    zerolog.Logger
}

func New(oracle ledger.Oracle, log zerolog.Logger) *Verifier {
	return &Verifier{oracle: oracle, log: log.With().Str("component", "verify").Logger()}
}

// VerifyPayment fetches the transaction and proves it pays Terms. It returns
// nil on acceptance, a *RejectError when the terms are not met, and
// ledger.ErrUnavailable (wrapped) when the oracle cannot answer right now.
func (v *Verifier) VerifyPayment(ctx context.Context, txID string, terms Terms) error {
	if terms.MinAmount == nil || terms.MinAmount.Sign() < 0 {
		return fmt.Errorf("verify: invalid minimum amount")
	}

	record, err := v.oracle.GetTransaction(ctx, txID)
	if err != nil {
		return err
	}
	if record == nil {
		return reject(ReasonNotFound)
	}
	if !record.Success {
		return reject(ReasonChainFailure)
	}
	// The payer must have signed the transaction, not merely appear in it.
	// Otherwise a third party's transfer could be replayed as this buyer's
	// payment.
	if !record.Signed(terms.Payer) {
		return reject(ReasonUnsignedByPayer)
	}

	switch cur := terms.Currency.(type) {
	case Native:
		return v.verifyNative(record, terms)
	case Token:
		return v.verifyToken(record, cur, terms)
	default:
		v.log.Warn().Str("tx", txID).Msg("unsupported currency kind")
		return reject(ReasonUnsupportedCurrency)
	}
}

func (v *Verifier) verifyNative(record *ledger.TransactionRecord, terms Terms) error {
	delta, ok := record.BalanceOf(terms.Payee)
	if !ok {
		return reject(ReasonInsufficientAmount)
	}
	if delta.Post <= delta.Pre {
		return reject(ReasonInsufficientAmount)
	}
	received := new(big.Int).SetUint64(delta.Post - delta.Pre)
	if received.Cmp(terms.MinAmount) < 0 {
		return reject(ReasonInsufficientAmount)
	}
	return nil
}

func (v *Verifier) verifyToken(record *ledger.TransactionRecord, cur Token, terms Terms) error {
	dest := ledger.DeriveTokenAccount(cur.Mint, terms.Payee)
	// Top-level instructions first, then inner ones: transfers routed
	// through another program only show up in the inner list.
	if matchTransfer(record.TokenTransfers, dest, terms.MinAmount) {
		return nil
	}
	if matchTransfer(record.InnerTransfers, dest, terms.MinAmount) {
		return nil
	}
	return reject(ReasonNoMatchingTransfer)
}

func matchTransfer(transfers []ledger.TokenTransfer, dest string, min *big.Int) bool {
	for _, t := range transfers {
		if t.Destination == dest && t.Amount != nil && t.Amount.Cmp(min) >= 0 {
			return true
		}
	}
	return false
}
