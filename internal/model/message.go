package model

import "time"

type MessageType string

const (
	MessageTypeText           MessageType = "text"
	MessageTypeSystem         MessageType = "system"
	MessageTypeEscrowProposed MessageType = "escrow_proposed"
	MessageTypeEscrowAccepted MessageType = "escrow_accepted"
)

// Message belongs to exactly one thread (private) or one listing (public).
// Private and gated-public messages carry ciphertext plus nonce; ungated
// public messages carry a plaintext body. Rows are immutable once created.
type Message struct {
	ID         uint64      `gorm:"primaryKey;autoIncrement" json:"id"`
	ThreadID   uint64      `gorm:"column:thread_id;index" json:"threadId,omitempty"`
	ListingID  uint64      `gorm:"column:listing_id;index" json:"listingId,omitempty"`
	SenderID   string      `gorm:"column:sender_id;size:64;index" json:"senderId"`
	Body       string      `gorm:"type:text" json:"body,omitempty"`
	Ciphertext string      `gorm:"type:text" json:"ciphertext,omitempty"`
	Nonce      string      `gorm:"size:64" json:"nonce,omitempty"`
	Type       MessageType `gorm:"column:type;size:24;not null;default:text" json:"type"`
	CreatedAt  time.Time   `gorm:"autoCreateTime;index" json:"createdAt"`
}

func (Message) TableName() string {
	return "messages"
}
