package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/peermart/peermart-backend/internal/identity"
	"github.com/peermart/peermart-backend/internal/metrics"
	"github.com/peermart/peermart-backend/internal/model"
	"github.com/peermart/peermart-backend/internal/repository"
	"github.com/peermart/peermart-backend/internal/verify"
)

// PaymentVerifier is the slice of the verifier the orchestrator needs.
type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, txID string, terms verify.Terms) error
}

type PurchaseResult struct {
	Status            model.ListingStatus
	QuantityRemaining uint
}

// TradeService is the orchestrator for direct (non-escrow) settlement: it
// proves the payment, then marks the listing sold with a conditional
// decrement so two buyers racing on the last unit cannot both win.
type TradeService interface {
	Purchase(ctx context.Context, listingID uint64, buyer identity.Caller, txID string) (*PurchaseResult, error)
}

type tradeService struct {
	listingRepo repository.ListingRepository
	threadRepo  repository.ThreadRepository
	messageRepo repository.MessageRepository
	verifier    PaymentVerifier
	log         zerolog.Logger
}

func NewTradeService(listingRepo repository.ListingRepository, threadRepo repository.ThreadRepository, messageRepo repository.MessageRepository, verifier PaymentVerifier, log zerolog.Logger) TradeService {
	return &tradeService{
		listingRepo: listingRepo,
		threadRepo:  threadRepo,
		messageRepo: messageRepo,
		verifier:    verifier,
		log:         log.With().Str("component", "trade").Logger(),
	}
}

// listingTerms builds the payment terms a transaction must satisfy to buy
// the listing. Payment goes to payee, which is the seller's address for a
// direct purchase and the holding address for an escrow deposit.
func listingTerms(listing *model.Listing, payer, payee string, minAmount *big.Int) (verify.Terms, error) {
	terms := verify.Terms{Payer: payer, Payee: payee, MinAmount: minAmount}
	switch listing.Currency {
	case model.CurrencyNative:
		terms.Currency = verify.Native{Decs: listing.Decimals}
	case model.CurrencyToken:
		terms.Currency = verify.Token{Mint: listing.Mint, Decs: listing.Decimals}
	default:
		return verify.Terms{}, fmt.Errorf("listing %d has unsupported currency %q", listing.ID, listing.Currency)
	}
	return terms, nil
}

func listingPrice(listing *model.Listing) (*big.Int, error) {
	price, ok := new(big.Int).SetString(listing.Price, 10)
	if !ok || price.Sign() <= 0 {
		return nil, fmt.Errorf("listing %d has invalid price %q", listing.ID, listing.Price)
	}
	return price, nil
}

func (s *tradeService) Purchase(ctx context.Context, listingID uint64, buyer identity.Caller, txID string) (*PurchaseResult, error) {
	if txID == "" {
		return nil, errors.New("transaction id is required")
	}
	listing, err := s.listingRepo.FindByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if listing.SellerID == buyer.ID {
		return nil, errors.New("cannot buy your own listing")
	}
	if listing.Status != model.ListingStatusActive || listing.Quantity == 0 {
		return nil, ErrConflict
	}

	price, err := listingPrice(listing)
	if err != nil {
		return nil, err
	}
	terms, err := listingTerms(listing, buyer.Address, listing.SellerAddress, price)
	if err != nil {
		return nil, err
	}
	if err := s.verifier.VerifyPayment(ctx, txID, terms); err != nil {
		if reason, ok := verify.RejectedWith(err); ok {
			metrics.VerificationRejectionsTotal.WithLabelValues(string(reason)).Inc()
		}
		metrics.PurchasesTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	rows, err := s.listingRepo.MarkSold(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		// Payment verified but the unit is gone: the buyer lost the race.
		metrics.PurchasesTotal.WithLabelValues("conflict").Inc()
		return nil, ErrConflict
	}
	metrics.PurchasesTotal.WithLabelValues("sold").Inc()

	updated, err := s.listingRepo.FindByID(ctx, listingID)
	if err != nil {
		return nil, err
	}

	if th, err := s.threadRepo.FindOrCreate(ctx, listingID, listing.SellerID, buyer.ID); err == nil {
		_ = s.messageRepo.Create(ctx, &model.Message{
			ThreadID: th.ID,
			SenderID: buyer.ID,
			Body:     "Purchase confirmed on-ledger.",
			Type:     model.MessageTypeSystem,
		})
	}

	s.log.Info().Uint64("listing", listingID).Str("buyer", buyer.ID).Str("tx", txID).Msg("listing sold")
	return &PurchaseResult{Status: updated.Status, QuantityRemaining: updated.Quantity}, nil
}
