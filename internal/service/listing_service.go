package service

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/peermart/peermart-backend/internal/identity"
	"github.com/peermart/peermart-backend/internal/model"
	"github.com/peermart/peermart-backend/internal/repository"
	"github.com/peermart/peermart-backend/internal/verify"
)

type NewListingInput struct {
	Title       string
	Description string
	Price       string // decimal amount, e.g. "2.5"
	Currency    model.CurrencyKind
	Mint        string
	Decimals    uint8
	Quantity    uint
	Gated       bool
	GateMint    string
}

type ListingService interface {
	Create(ctx context.Context, seller identity.Caller, in NewListingInput) (*model.Listing, error)
	Get(ctx context.Context, id uint64) (*model.Listing, error)
	List(ctx context.Context, limit, offset int) ([]model.Listing, int64, error)
	ListBySeller(ctx context.Context, sellerID string) ([]model.Listing, error)
	Remove(ctx context.Context, id uint64, seller identity.Caller) error
}

type listingService struct {
	repo repository.ListingRepository
}

func NewListingService(repo repository.ListingRepository) ListingService {
	return &listingService{repo: repo}
}

func (s *listingService) Create(ctx context.Context, seller identity.Caller, in NewListingInput) (*model.Listing, error) {
	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)
	if title == "" || len(title) > 120 {
		return nil, errors.New("invalid title")
	}
	if description == "" {
		return nil, errors.New("invalid description")
	}
	if in.Quantity == 0 {
		return nil, errors.New("quantity must be at least 1")
	}
	switch in.Currency {
	case model.CurrencyNative:
	case model.CurrencyToken:
		if strings.TrimSpace(in.Mint) == "" {
			return nil, errors.New("mint is required for token listings")
		}
	default:
		return nil, errors.New("unsupported currency")
	}
	if in.Gated && strings.TrimSpace(in.GateMint) == "" {
		return nil, errors.New("gateMint is required for gated listings")
	}

	// Convert the decimal price to smallest units once, at creation time;
	// everything downstream compares integers.
	amount, err := verify.ParseAmount(in.Price, in.Decimals)
	if err != nil {
		return nil, err
	}
	if amount.Sign() == 0 {
		return nil, errors.New("price must be positive")
	}

	listing := &model.Listing{
		SellerID:      seller.ID,
		SellerAddress: seller.Address,
		Title:         title,
		Description:   description,
		Price:         amount.String(),
		Currency:      in.Currency,
		Mint:          strings.TrimSpace(in.Mint),
		Decimals:      in.Decimals,
		Quantity:      in.Quantity,
		Status:        model.ListingStatusActive,
		EscrowStatus:  model.EscrowStatusNone,
		Gated:         in.Gated,
		GateMint:      strings.TrimSpace(in.GateMint),
	}
	if err := s.repo.Create(ctx, listing); err != nil {
		return nil, err
	}
	return listing, nil
}

func (s *listingService) Get(ctx context.Context, id uint64) (*model.Listing, error) {
	listing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return listing, nil
}

func (s *listingService) List(ctx context.Context, limit, offset int) ([]model.Listing, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}

func (s *listingService) ListBySeller(ctx context.Context, sellerID string) ([]model.Listing, error) {
	return s.repo.ListBySeller(ctx, sellerID)
}

func (s *listingService) Remove(ctx context.Context, id uint64, seller identity.Caller) error {
	listing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if listing.SellerID != seller.ID {
		return ErrForbidden
	}
	rows, err := s.repo.SoftRemove(ctx, id, seller.ID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrInvalidState
	}
	return nil
}
