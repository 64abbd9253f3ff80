package model

import "time"

type ClaimReason string

const (
	ClaimReasonNotReceived    ClaimReason = "not_received"
	ClaimReasonNotAsDescribed ClaimReason = "not_as_described"
	ClaimReasonOther          ClaimReason = "other"
)

type ClaimStatus string

const (
	ClaimStatusPending  ClaimStatus = "pending"
	ClaimStatusApproved ClaimStatus = "approved"
	ClaimStatusRejected ClaimStatus = "rejected"
)

// Claim is a buyer-filed protection dispute tied to an escrow purchase that
// opted into protection. Status moves pending -> approved|rejected only.
type Claim struct {
	ID          uint64      `gorm:"primaryKey;autoIncrement" json:"id"`
	ListingID   uint64      `gorm:"column:listing_id;index;not null" json:"listingId"`
	ClaimantID  string      `gorm:"column:claimant_id;size:64;index;not null" json:"claimantId"`
	Reason      ClaimReason `gorm:"column:reason;size:24;not null" json:"reason"`
	Description string      `gorm:"type:text" json:"description"`
	EvidenceURL string      `gorm:"column:evidence_url;size:512" json:"evidenceUrl,omitempty"`
	Status      ClaimStatus `gorm:"column:status;size:16;not null;default:pending" json:"status"`
	PayoutRef   string      `gorm:"column:payout_ref;size:64" json:"payoutRef,omitempty"`
	CreatedAt   time.Time   `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time   `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Claim) TableName() string {
	return "claims"
}
