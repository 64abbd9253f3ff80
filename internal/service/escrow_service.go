package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/peermart/peermart-backend/internal/identity"
	"github.com/peermart/peermart-backend/internal/ledger"
	"github.com/peermart/peermart-backend/internal/metrics"
	"github.com/peermart/peermart-backend/internal/model"
	"github.com/peermart/peermart-backend/internal/repository"
	"github.com/peermart/peermart-backend/internal/verify"
)

type ResolveAction string

const (
	ResolveRelease ResolveAction = "release"
	ResolveRefund  ResolveAction = "refund"
)

// EscrowConfig is the fixed platform-side escrow policy. Protection fee and
// payout cap are configuration, never derived from the escrow itself.
type EscrowConfig struct {
	ProtectionFeeBps   uint
	CollectionsAddress string
	ShippingSLADays    int
}

// EscrowService drives the hold-and-release lifecycle between two untrusted
// parties: none -> pending -> funded -> shipped -> completed|disputed, with
// disputes resolved only by an admin. Every transition is one conditional
// update; an attempt from the wrong state is rejected, never overwritten.
type EscrowService interface {
	Propose(ctx context.Context, threadID uint64, by identity.Caller) error
	Accept(ctx context.Context, threadID uint64, by identity.Caller) error
	Deposit(ctx context.Context, listingID uint64, buyer identity.Caller, txID string, protection bool) (*model.Listing, error)
	Ship(ctx context.Context, listingID uint64, seller identity.Caller, carrier, trackingNumber string) (*model.Listing, error)
	Confirm(ctx context.Context, listingID uint64, buyer identity.Caller) (*model.Listing, error)
	Dispute(ctx context.Context, listingID uint64, buyer identity.Caller) (*model.Listing, error)
	Resolve(ctx context.Context, listingID uint64, admin identity.Caller, action ResolveAction, payoutRef string) (*model.Listing, error)
}

type escrowService struct {
	listingRepo repository.ListingRepository
	threadRepo  repository.ThreadRepository
	messageRepo repository.MessageRepository
	verifier    PaymentVerifier
	oracle      ledger.Oracle
	auth        Authorizer
	cfg         EscrowConfig
	log         zerolog.Logger
	now         func() time.Time
}

func NewEscrowService(listingRepo repository.ListingRepository, threadRepo repository.ThreadRepository, messageRepo repository.MessageRepository, verifier PaymentVerifier, oracle ledger.Oracle, auth Authorizer, cfg EscrowConfig, log zerolog.Logger) EscrowService {
	return &escrowService{
		listingRepo: listingRepo,
		threadRepo:  threadRepo,
		messageRepo: messageRepo,
		verifier:    verifier,
		oracle:      oracle,
		auth:        auth,
		cfg:         cfg,
		log:         log.With().Str("component", "escrow").Logger(),
		now:         time.Now,
	}
}

func (s *escrowService) thread(ctx context.Context, threadID uint64) (*model.Thread, error) {
	th, err := s.threadRepo.FindByID(ctx, threadID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return th, nil
}

// Propose records an escrow proposal as a tagged message so the negotiation
// itself is part of the audit trail.
func (s *escrowService) Propose(ctx context.Context, threadID uint64, by identity.Caller) error {
	th, err := s.thread(ctx, threadID)
	if err != nil {
		return err
	}
	if th.SellerID != by.ID && th.BuyerID != by.ID {
		return ErrForbidden
	}
	if th.EscrowAgreed {
		return ErrInvalidState
	}
	return s.messageRepo.Create(ctx, &model.Message{
		ThreadID: threadID,
		SenderID: by.ID,
		Body:     "Escrow proposed.",
		Type:     model.MessageTypeEscrowProposed,
	})
}

// Accept flips escrow_agreed when the counterpart of the proposer agrees,
// and moves both the thread and the listing to pending.
func (s *escrowService) Accept(ctx context.Context, threadID uint64, by identity.Caller) error {
	th, err := s.thread(ctx, threadID)
	if err != nil {
		return err
	}
	if th.SellerID != by.ID && th.BuyerID != by.ID {
		return ErrForbidden
	}

	// Acceptance must come from the other side of the latest proposal.
	msgs, err := s.messageRepo.ListByThread(ctx, threadID)
	if err != nil {
		return err
	}
	var proposer string
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type == model.MessageTypeEscrowProposed {
			proposer = msgs[i].SenderID
			break
		}
	}
	if proposer == "" {
		return ErrInvalidState
	}
	if proposer == by.ID {
		return ErrForbidden
	}

	rows, err := s.threadRepo.SetEscrowAgreed(ctx, threadID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrInvalidState
	}
	rows, err = s.listingRepo.TransitionEscrow(ctx, th.ListingID, model.EscrowStatusNone, model.EscrowStatusPending, map[string]interface{}{
		"escrow_buyer_id": th.BuyerID,
	})
	if err != nil {
		return err
	}
	if rows == 0 {
		// Another buyer agreed escrow on this listing first.
		return ErrConflict
	}
	metrics.EscrowTransitionsTotal.WithLabelValues(string(model.EscrowStatusPending)).Inc()

	return s.messageRepo.Create(ctx, &model.Message{
		ThreadID: threadID,
		SenderID: by.ID,
		Body:     "Escrow accepted.",
		Type:     model.MessageTypeEscrowAccepted,
	})
}

// protectionFee computes the fixed-percentage protection fee in smallest
// units, rounding up so the platform never collects less than the rate.
func (s *escrowService) protectionFee(price *big.Int) *big.Int {
	fee := new(big.Int).Mul(price, big.NewInt(int64(s.cfg.ProtectionFeeBps)))
	fee.Add(fee, big.NewInt(9999))
	return fee.Div(fee, big.NewInt(10000))
}

func (s *escrowService) checkFunding(ctx context.Context, listing *model.Listing, buyer identity.Caller, required *big.Int) error {
	switch listing.Currency {
	case model.CurrencyNative:
		balance, err := s.oracle.GetBalance(ctx, buyer.Address)
		if err != nil {
			return err
		}
		if new(big.Int).SetUint64(balance).Cmp(required) < 0 {
			return ErrInsufficientFunds
		}
	case model.CurrencyToken:
		balance, err := s.oracle.GetTokenBalance(ctx, buyer.Address, listing.Mint)
		if err != nil {
			return err
		}
		if balance.Cmp(required) < 0 {
			return ErrInsufficientFunds
		}
	}
	return nil
}

// Deposit confirms the buyer funded the (listing, buyer) holding address and
// moves the escrow to funded. With protection opted in, the fee leg to the
// platform collections address must land in the same transaction.
func (s *escrowService) Deposit(ctx context.Context, listingID uint64, buyer identity.Caller, txID string, protection bool) (*model.Listing, error) {
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
	if listing.EscrowStatus != model.EscrowStatusPending {
		return nil, ErrInvalidState
	}
	if listing.EscrowBuyerID != buyer.ID {
		return nil, ErrForbidden
	}

	price, err := listingPrice(listing)
	if err != nil {
		return nil, err
	}
	required := new(big.Int).Set(price)
	fee := big.NewInt(0)
	if protection {
		fee = s.protectionFee(price)
		required.Add(required, fee)
	}
	if err := s.checkFunding(ctx, listing, buyer, required); err != nil {
		return nil, err
	}

	holding := ledger.DeriveHoldingAddress(listingID, buyer.ID)
	terms, err := listingTerms(listing, buyer.Address, holding, price)
	if err != nil {
		return nil, err
	}
	if err := s.verifier.VerifyPayment(ctx, txID, terms); err != nil {
		if reason, ok := verify.RejectedWith(err); ok {
			metrics.VerificationRejectionsTotal.WithLabelValues(string(reason)).Inc()
		}
		return nil, err
	}
	if protection {
		feeTerms, err := listingTerms(listing, buyer.Address, s.cfg.CollectionsAddress, fee)
		if err != nil {
			return nil, err
		}
		if err := s.verifier.VerifyPayment(ctx, txID, feeTerms); err != nil {
			if reason, ok := verify.RejectedWith(err); ok {
				metrics.VerificationRejectionsTotal.WithLabelValues(string(reason)).Inc()
			}
			return nil, err
		}
	}

	rows, err := s.listingRepo.FundEscrow(ctx, listingID, map[string]interface{}{
		"holding_address":  holding,
		"deposited_amount": price.String(),
		"protection":       protection,
		"deposited_at":     s.now(),
	})
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		// The unit sold directly, or another state change landed, between
		// the read above and this write. The deposit cannot fund.
		return nil, ErrConflict
	}
	metrics.EscrowTransitionsTotal.WithLabelValues(string(model.EscrowStatusFunded)).Inc()
	s.mirrorThread(ctx, listing, buyer.ID, model.EscrowStatusPending, model.EscrowStatusFunded, buyer.ID, "Escrow funded.")

	s.log.Info().Uint64("listing", listingID).Str("buyer", buyer.ID).Str("tx", txID).Bool("protection", protection).Msg("escrow funded")
	return s.listingRepo.FindByID(ctx, listingID)
}

// Ship records carrier and tracking and moves the escrow to shipped. The
// shipping SLA is advisory: a late shipment is logged, never auto-refunded.
func (s *escrowService) Ship(ctx context.Context, listingID uint64, seller identity.Caller, carrier, trackingNumber string) (*model.Listing, error) {
	carrier = strings.TrimSpace(carrier)
	trackingNumber = strings.TrimSpace(trackingNumber)
	if carrier == "" || trackingNumber == "" {
		return nil, errors.New("carrier and tracking number are required")
	}
	listing, err := s.listingRepo.FindByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if listing.SellerID != seller.ID {
		return nil, ErrForbidden
	}
	if deadline := listing.ShippingDeadline(s.cfg.ShippingSLADays); deadline != nil && s.now().After(*deadline) {
		s.log.Warn().Uint64("listing", listingID).Time("deadline", *deadline).Msg("shipping after SLA deadline")
	}

	rows, err := s.listingRepo.TransitionEscrow(ctx, listingID, model.EscrowStatusFunded, model.EscrowStatusShipped, map[string]interface{}{
		"status":          model.ListingStatusShipped,
		"carrier":         carrier,
		"tracking_number": trackingNumber,
		"shipped_at":      s.now(),
	})
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrInvalidState
	}
	metrics.EscrowTransitionsTotal.WithLabelValues(string(model.EscrowStatusShipped)).Inc()
	s.mirrorThread(ctx, listing, listing.EscrowBuyerID, model.EscrowStatusFunded, model.EscrowStatusShipped, seller.ID,
		fmt.Sprintf("Shipped via %s, tracking %s.", carrier, trackingNumber))
	return s.listingRepo.FindByID(ctx, listingID)
}

// Confirm is the buyer's "received as agreed" action.
func (s *escrowService) Confirm(ctx context.Context, listingID uint64, buyer identity.Caller) (*model.Listing, error) {
	return s.buyerClose(ctx, listingID, buyer, model.EscrowStatusCompleted, model.ListingStatusCompleted, "Receipt confirmed, escrow released.")
}

// Dispute is the buyer's "not received / not as described" action. It is
// terminal until an admin resolves it.
func (s *escrowService) Dispute(ctx context.Context, listingID uint64, buyer identity.Caller) (*model.Listing, error) {
	return s.buyerClose(ctx, listingID, buyer, model.EscrowStatusDisputed, model.ListingStatusDisputed, "Escrow disputed.")
}

func (s *escrowService) buyerClose(ctx context.Context, listingID uint64, buyer identity.Caller, to model.EscrowStatus, listingStatus model.ListingStatus, note string) (*model.Listing, error) {
	listing, err := s.listingRepo.FindByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if listing.EscrowBuyerID != buyer.ID {
		return nil, ErrForbidden
	}

	patch := map[string]interface{}{"status": listingStatus}
	if to == model.EscrowStatusCompleted {
		patch["received_at"] = s.now()
	}
	rows, err := s.listingRepo.TransitionEscrow(ctx, listingID, model.EscrowStatusShipped, to, patch)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		// Wrong state, or the seller and buyer raced; the stored state wins.
		return nil, ErrInvalidState
	}
	metrics.EscrowTransitionsTotal.WithLabelValues(string(to)).Inc()
	s.mirrorThread(ctx, listing, buyer.ID, model.EscrowStatusShipped, to, buyer.ID, note)
	return s.listingRepo.FindByID(ctx, listingID)
}

// Resolve is the admin-only exit from a dispute: release completes the
// escrow, refund returns it to a terminal refunded state. Fails closed
// before touching any state.
func (s *escrowService) Resolve(ctx context.Context, listingID uint64, admin identity.Caller, action ResolveAction, payoutRef string) (*model.Listing, error) {
	if !s.auth.IsAdmin(admin.ID) {
		return nil, ErrForbidden
	}
	var (
		to     model.EscrowStatus
		status model.ListingStatus
	)
	switch action {
	case ResolveRelease:
		to, status = model.EscrowStatusCompleted, model.ListingStatusCompleted
	case ResolveRefund:
		to, status = model.EscrowStatusRefunded, model.ListingStatusRefunded
	default:
		return nil, fmt.Errorf("unknown resolve action %q", action)
	}

	listing, err := s.listingRepo.FindByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := s.listingRepo.TransitionEscrow(ctx, listingID, model.EscrowStatusDisputed, to, map[string]interface{}{
		"status":     status,
		"payout_ref": payoutRef,
	})
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrInvalidState
	}
	metrics.EscrowTransitionsTotal.WithLabelValues(string(to)).Inc()
	s.mirrorThread(ctx, listing, listing.EscrowBuyerID, model.EscrowStatusDisputed, to, admin.ID,
		fmt.Sprintf("Dispute resolved: %s.", action))
	s.log.Info().Uint64("listing", listingID).Str("action", string(action)).Str("payout", payoutRef).Msg("escrow resolved")
	return s.listingRepo.FindByID(ctx, listingID)
}

// mirrorThread keeps the thread's escrow status in step with the listing and
// drops a system message into the negotiation channel. Best effort: the
// listing row is the source of truth.
func (s *escrowService) mirrorThread(ctx context.Context, listing *model.Listing, buyerID string, from, to model.EscrowStatus, senderID, note string) {
	if buyerID == "" {
		return
	}
	th, err := s.threadRepo.FindOrCreate(ctx, listing.ID, listing.SellerID, buyerID)
	if err != nil {
		return
	}
	_, _ = s.threadRepo.TransitionEscrow(ctx, th.ID, from, to)
	_ = s.messageRepo.Create(ctx, &model.Message{
		ThreadID: th.ID,
		SenderID: senderID,
		Body:     note,
		Type:     model.MessageTypeSystem,
	})
}
