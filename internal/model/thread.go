package model

import "time"

// Thread is the private negotiation channel for one (listing, buyer) pair.
// Participants are stored as pseudonymous identities, never raw wallets.
type Thread struct {
	ID           uint64       `gorm:"primaryKey;autoIncrement" json:"id"`
	ListingID    uint64       `gorm:"column:listing_id;index:idx_listing_buyer,unique" json:"listingId"`
	SellerID     string       `gorm:"column:seller_id;size:64;index" json:"sellerId"`
	BuyerID      string       `gorm:"column:buyer_id;size:64;index:idx_listing_buyer,unique" json:"buyerId"`
	EscrowAgreed bool         `gorm:"column:escrow_agreed" json:"escrowAgreed"`
	EscrowStatus EscrowStatus `gorm:"column:escrow_status;size:16;not null;default:none" json:"escrowStatus"`
	CreatedAt    time.Time    `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time    `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Thread) TableName() string {
	return "threads"
}
