package repository

import (
	"context"
	"time"

	"github.com/peermart/peermart-backend/internal/model"
	"gorm.io/gorm"
)

type ThreadRepository interface {
	FindOrCreate(ctx context.Context, listingID uint64, sellerID, buyerID string) (*model.Thread, error)
	FindByID(ctx context.Context, id uint64) (*model.Thread, error)
	FindByUser(ctx context.Context, identity string) ([]model.Thread, error)
	// SetEscrowAgreed flips escrow_agreed and moves the thread to pending,
	// guarded on not-yet-agreed so acceptance happens at most once.
	SetEscrowAgreed(ctx context.Context, id uint64) (int64, error)
	// TransitionEscrow mirrors the listing-side escrow status on the thread.
	TransitionEscrow(ctx context.Context, id uint64, from, to model.EscrowStatus) (int64, error)
	MarkRead(ctx context.Context, id uint64, identity string) error
	SetDB(db *gorm.DB)
}

type threadRepository struct {
	db *gorm.DB
}

func NewThreadRepository(db *gorm.DB) ThreadRepository {
	return &threadRepository{db: db}
}

func (r *threadRepository) SetDB(db *gorm.DB) {
	r.db = db
}

func (r *threadRepository) FindOrCreate(ctx context.Context, listingID uint64, sellerID, buyerID string) (*model.Thread, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	th := model.Thread{ListingID: listingID, SellerID: sellerID, BuyerID: buyerID, EscrowStatus: model.EscrowStatusNone}
	if err := r.db.WithContext(ctx).
		Where("listing_id = ? AND buyer_id = ?", listingID, buyerID).
		FirstOrCreate(&th).Error; err != nil {
		return nil, err
	}
	return &th, nil
}

func (r *threadRepository) FindByID(ctx context.Context, id uint64) (*model.Thread, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var th model.Thread
	if err := r.db.WithContext(ctx).First(&th, id).Error; err != nil {
		return nil, err
	}
	return &th, nil
}

func (r *threadRepository) FindByUser(ctx context.Context, identity string) ([]model.Thread, error) {
	if r.db == nil {
		return nil, ErrDBNotReady
	}
	var list []model.Thread
	if err := r.db.WithContext(ctx).
		Where("seller_id = ? OR buyer_id = ?", identity, identity).
		Order("id DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *threadRepository) SetEscrowAgreed(ctx context.Context, id uint64) (int64, error) {
	if r.db == nil {
		return 0, ErrDBNotReady
	}
	res := r.db.WithContext(ctx).
		Model(&model.Thread{}).
		Where("id = ? AND escrow_agreed = ?", id, false).
		Updates(map[string]interface{}{
			"escrow_agreed": true,
			"escrow_status": model.EscrowStatusPending,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *threadRepository) TransitionEscrow(ctx context.Context, id uint64, from, to model.EscrowStatus) (int64, error) {
	if r.db == nil {
		return 0, ErrDBNotReady
	}
	res := r.db.WithContext(ctx).
		Model(&model.Thread{}).
		Where("id = ? AND escrow_status = ?", id, from).
		Update("escrow_status", to)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *threadRepository) MarkRead(ctx context.Context, id uint64, identity string) error {
	if r.db == nil {
		return ErrDBNotReady
	}
	state := model.ThreadState{ThreadID: id, Identity: identity}
	if err := r.db.WithContext(ctx).
		Where("thread_id = ? AND identity = ?", id, identity).
		FirstOrCreate(&state).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&state).
		Update("last_read_at", time.Now()).Error
}
