package repository

import (
	"context"
	"errors"

	"github.com/peermart/peermart-backend/internal/model"
	"gorm.io/gorm"
)

var ErrDBNotReady = errors.New("database not initialized")

type ListingRepository interface {
	Create(ctx context.Context, listing *model.Listing) error
	FindByID(ctx context.Context, id uint64) (*model.Listing, error)
	List(ctx context.Context, limit, offset int) ([]model.Listing, int64, error)
	ListBySeller(ctx context.Context, sellerID string) ([]model.Listing, error)
	// MarkSold decrements quantity by one and flips status to sold when the
	// last unit goes, guarded by "still active and quantity >= 1" in the
	// same update. Returns the number of rows changed: zero means the
	// caller lost the race or the listing was not purchasable.
	MarkSold(ctx context.Context, id uint64) (int64, error)
	// TransitionEscrow applies patch and moves escrow_status from -> to in
	// one conditional update. Zero rows means the listing was not in the
	// expected state.
	TransitionEscrow(ctx context.Context, id uint64, from, to model.EscrowStatus, patch map[string]interface{}) (int64, error)
	// FundEscrow moves escrow_status pending -> funded and reserves one
	// unit in the same conditional write. The guard also requires the
	// listing to still be active with stock left, so a unit that was sold
	// directly in the meantime can never settle a second time through
	// escrow.
	FundEscrow(ctx context.Context, id uint64, patch map[string]interface{}) (int64, error)
	// SetChatKey stores the gated chat key only if none exists yet, so the
	// key is generated exactly once per listing.
	SetChatKey(ctx context.Context, id uint64, key string) (int64, error)
	SoftRemove(ctx context.Context, id uint64, sellerID string) (int64, error)
	SetDB(db *gorm.DB)
}

type listingRepository struct {
	db *gorm.DB
}

func NewListingRepository(db *gorm.DB) ListingRepository {
	return &listingRepository{db: db}
}

func (r *listingRepository) Create(ctx context.Context, listing *model.Listing) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	return r.db.WithContext(ctx).Create(listing).Error
}

func (r *listingRepository) FindByID(ctx context.Context, id uint64) (*model.Listing, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var listing model.Listing
	if err := r.db.WithContext(ctx).First(&listing, id).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *listingRepository) List(ctx context.Context, limit, offset int) ([]model.Listing, int64, error) {
	if r.db == nil {
		return nil, 0, ErrDBNotReady
	}
	var (
		listings []model.Listing
		total    int64
	)
	base := r.db.WithContext(ctx).Model(&model.Listing{}).Where("status <> ?", model.ListingStatusRemoved)
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := base.
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&listings).Error; err != nil {
		return nil, 0, err
	}
	return listings, total, nil
}

func (r *listingRepository) ListBySeller(ctx context.Context, sellerID string) ([]model.Listing, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var listings []model.Listing
	if err := r.db.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Order("id DESC").
		Find(&listings).Error; err != nil {
		return nil, err
	}
	return listings, nil
}

func (r *listingRepository) MarkSold(ctx context.Context, id uint64) (int64, error) {
	if r.db == nil {
		return 0, ErrDBNotReady
	}
	res := r.db.WithContext(ctx).
		Model(&model.Listing{}).
		Where("id = ? AND status = ? AND quantity >= 1", id, model.ListingStatusActive).
		Updates(map[string]interface{}{
			"quantity": gorm.Expr("quantity - 1"),
			"status":   gorm.Expr("CASE WHEN quantity - 1 <= 0 THEN ? ELSE status END", model.ListingStatusSold),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *listingRepository) TransitionEscrow(ctx context.Context, id uint64, from, to model.EscrowStatus, patch map[string]interface{}) (int64, error) {
	if r.db == nil {
		return 0, ErrDBNotReady
	}
	updates := map[string]interface{}{"escrow_status": to}
	for k, v := range patch {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&model.Listing{}).
		Where("id = ? AND escrow_status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *listingRepository) FundEscrow(ctx context.Context, id uint64, patch map[string]interface{}) (int64, error) {
	if r.db == nil {
		return 0, ErrDBNotReady
	}
	updates := map[string]interface{}{
		"escrow_status": model.EscrowStatusFunded,
		"status":        model.ListingStatusInEscrow,
		"quantity":      gorm.Expr("quantity - 1"),
	}
	for k, v := range patch {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&model.Listing{}).
		Where("id = ? AND escrow_status = ? AND status = ? AND quantity >= 1",
			id, model.EscrowStatusPending, model.ListingStatusActive).
		Updates(updates)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *listingRepository) SetChatKey(ctx context.Context, id uint64, key string) (int64, error) {
	if r.db == nil {
		return 0, ErrDBNotReady
	}
	res := r.db.WithContext(ctx).
		Model(&model.Listing{}).
		Where("id = ? AND (chat_key IS NULL OR chat_key = '')", id).
		Update("chat_key", key)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *listingRepository) SoftRemove(ctx context.Context, id uint64, sellerID string) (int64, error) {
	if r.db == nil {
		return 0, ErrDBNotReady
	}
	res := r.db.WithContext(ctx).
		Model(&model.Listing{}).
		Where("id = ? AND seller_id = ? AND status = ?", id, sellerID, model.ListingStatusActive).
		Update("status", model.ListingStatusRemoved)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *listingRepository) SetDB(db *gorm.DB) {
	r.db = db
}
