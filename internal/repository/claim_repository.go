package repository

import (
	"context"
	"errors"

	"github.com/peermart/peermart-backend/internal/model"
	"gorm.io/gorm"
)

type ClaimRepository interface {
	Create(ctx context.Context, claim *model.Claim) error
	FindByID(ctx context.Context, id uint64) (*model.Claim, error)
	// FindActiveByListing returns the pending claim for a listing, or nil.
	FindActiveByListing(ctx context.Context, listingID uint64) (*model.Claim, error)
	// Resolve moves a claim from pending to the given terminal status. Zero
	// rows means the claim was already resolved.
	Resolve(ctx context.Context, id uint64, status model.ClaimStatus, payoutRef string) (int64, error)
	SetDB(db *gorm.DB)
}

type claimRepository struct {
	db *gorm.DB
}

func NewClaimRepository(db *gorm.DB) ClaimRepository {
	return &claimRepository{db: db}
}

func (r *claimRepository) SetDB(db *gorm.DB) {
	r.db = db
}

func (r *claimRepository) Create(ctx context.Context, claim *model.Claim) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).Create(claim).Error
}

func (r *claimRepository) FindByID(ctx context.Context, id uint64) (*model.Claim, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var claim model.Claim
	if err := r.db.WithContext(ctx).First(&claim, id).Error; err != nil {
		return nil, err
	}
	return &claim, nil
}

func (r *claimRepository) FindActiveByListing(ctx context.Context, listingID uint64) (*model.Claim, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var claim model.Claim
	if err := r.db.WithContext(ctx).
		Where("listing_id = ? AND status = ?", listingID, model.ClaimStatusPending).
		First(&claim).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &claim, nil
}

func (r *claimRepository) Resolve(ctx context.Context, id uint64, status model.ClaimStatus, payoutRef string) (int64, error) {
	if r.db == nil {
		return 0, ErrDBNotReady
	}
	res := r.db.WithContext(ctx).
		Model(&model.Claim{}).
		Where("id = ? AND status = ?", id, model.ClaimStatusPending).
		Updates(map[string]interface{}{
			"status":     status,
			"payout_ref": payoutRef,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
