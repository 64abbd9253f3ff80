package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/peermart/peermart-backend/internal/identity"
	"github.com/peermart/peermart-backend/internal/model"
	"github.com/peermart/peermart-backend/internal/repository"
)

// ClaimService records protection claims and their admin-only resolution.
type ClaimService interface {
	File(ctx context.Context, listingID uint64, buyer identity.Caller, reason model.ClaimReason, description, evidenceURL string) (*model.Claim, error)
	Resolve(ctx context.Context, claimID uint64, admin identity.Caller, approve bool) (*model.Claim, error)
}

type claimService struct {
	claimRepo   repository.ClaimRepository
	listingRepo repository.ListingRepository
	auth        Authorizer
}

func NewClaimService(claimRepo repository.ClaimRepository, listingRepo repository.ListingRepository, auth Authorizer) ClaimService {
	return &claimService{claimRepo: claimRepo, listingRepo: listingRepo, auth: auth}
}

func (s *claimService) File(ctx context.Context, listingID uint64, buyer identity.Caller, reason model.ClaimReason, description, evidenceURL string) (*model.Claim, error) {
	switch reason {
	case model.ClaimReasonNotReceived, model.ClaimReasonNotAsDescribed, model.ClaimReasonOther:
	default:
		return nil, errors.New("unknown claim reason")
	}
	listing, err := s.listingRepo.FindByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	// Claims are only open to the escrow buyer of a protection purchase.
	if !listing.Protection {
		return nil, ErrNotEligible
	}
	if listing.EscrowBuyerID != buyer.ID {
		return nil, ErrForbidden
	}
	switch listing.EscrowStatus {
	case model.EscrowStatusShipped, model.EscrowStatusDisputed, model.EscrowStatusCompleted, model.EscrowStatusRefunded:
	default:
		return nil, ErrInvalidState
	}

	if active, err := s.claimRepo.FindActiveByListing(ctx, listingID); err != nil {
		return nil, err
	} else if active != nil {
		return nil, ErrAlreadyClaimed
	}

	claim := &model.Claim{
		ListingID:   listingID,
		ClaimantID:  buyer.ID,
		Reason:      reason,
		Description: strings.TrimSpace(description),
		EvidenceURL: strings.TrimSpace(evidenceURL),
		Status:      model.ClaimStatusPending,
	}
	if err := s.claimRepo.Create(ctx, claim); err != nil {
		return nil, err
	}
	return claim, nil
}

func (s *claimService) Resolve(ctx context.Context, claimID uint64, admin identity.Caller, approve bool) (*model.Claim, error) {
	if !s.auth.IsAdmin(admin.ID) {
		return nil, ErrForbidden
	}
	status := model.ClaimStatusRejected
	payoutRef := ""
	if approve {
		status = model.ClaimStatusApproved
		payoutRef = uuid.NewString()
	}
	rows, err := s.claimRepo.Resolve(ctx, claimID, status, payoutRef)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrInvalidState
	}
	return s.claimRepo.FindByID(ctx, claimID)
}
