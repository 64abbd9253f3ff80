package service

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/peermart/peermart-backend/internal/identity"
	"github.com/peermart/peermart-backend/internal/ledger"
	"github.com/peermart/peermart-backend/internal/model"
	"github.com/peermart/peermart-backend/internal/repository"
	"github.com/peermart/peermart-backend/internal/verify"
)

var (
	seller = identity.NewCaller("SellerWallet11111111111111111111")
	buyer  = identity.NewCaller("BuyerWallet222222222222222222222")
	other  = identity.NewCaller("OtherWallet33333333333333333333")
	admin  = identity.NewCaller("AdminWallet44444444444444444444")
)

// newTestDB opens a private in-memory database. The pool is capped at one
// connection because each sqlite :memory: connection is its own database.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&model.Listing{},
		&model.Thread{},
		&model.ThreadState{},
		&model.Message{},
		&model.Claim{},
	))
	return db
}

type repos struct {
	listings repository.ListingRepository
	threads  repository.ThreadRepository
	messages repository.MessageRepository
	claims   repository.ClaimRepository
}

func newRepos(db *gorm.DB) repos {
	return repos{
		listings: repository.NewListingRepository(db),
		threads:  repository.NewThreadRepository(db),
		messages: repository.NewMessageRepository(db),
		claims:   repository.NewClaimRepository(db),
	}
}

func seedListing(t *testing.T, r repos, mutate func(*model.Listing)) *model.Listing {
	t.Helper()
	listing := &model.Listing{
		SellerID:      seller.ID,
		SellerAddress: seller.Address,
		Title:         "City bike",
		Description:   "Ridden to work, light wear.",
		Price:         "2500000",
		Currency:      model.CurrencyNative,
		Decimals:      6,
		Quantity:      1,
		Status:        model.ListingStatusActive,
		EscrowStatus:  model.EscrowStatusNone,
	}
	if mutate != nil {
		mutate(listing)
	}
	require.NoError(t, r.listings.Create(context.Background(), listing))
	return listing
}

// stubVerifier records every verification and answers from a per-payee error
// map, defaulting to accept.
type stubVerifier struct {
	mu    sync.Mutex
	calls []verify.Terms
	errs  map[string]error // keyed by payee
	err   error            // blanket answer when set
}

func (v *stubVerifier) VerifyPayment(_ context.Context, _ string, terms verify.Terms) error {
	v.mu.Lock()
	v.calls = append(v.calls, terms)
	v.mu.Unlock()
	if v.err != nil {
		return v.err
	}
	if err, ok := v.errs[terms.Payee]; ok {
		return err
	}
	return nil
}

func (v *stubVerifier) payees() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, len(v.calls))
	for i, c := range v.calls {
		out[i] = c.Payee
	}
	return out
}

// stubOracle serves canned balances and transaction records.
type stubOracle struct {
	records       map[string]*ledger.TransactionRecord
	balances      map[string]uint64
	tokenBalances map[string]*big.Int // owner + "|" + mint
}

func (o *stubOracle) GetTransaction(_ context.Context, sig string) (*ledger.TransactionRecord, error) {
	return o.records[sig], nil
}

func (o *stubOracle) GetBalance(_ context.Context, address string) (uint64, error) {
	return o.balances[address], nil
}

func (o *stubOracle) GetTokenBalance(_ context.Context, owner, mint string) (*big.Int, error) {
	if b, ok := o.tokenBalances[owner+"|"+mint]; ok {
		return b, nil
	}
	return big.NewInt(0), nil
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
