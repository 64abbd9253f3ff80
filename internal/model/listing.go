package model

import "time"

type ListingStatus string

const (
	ListingStatusActive    ListingStatus = "active"
	ListingStatusSold      ListingStatus = "sold"
	ListingStatusInEscrow  ListingStatus = "in_escrow"
	ListingStatusShipped   ListingStatus = "shipped"
	ListingStatusDisputed  ListingStatus = "disputed"
	ListingStatusCompleted ListingStatus = "completed"
	ListingStatusRefunded  ListingStatus = "refunded"
	ListingStatusRemoved   ListingStatus = "removed"
)

type CurrencyKind string

const (
	CurrencyNative CurrencyKind = "native"
	CurrencyToken  CurrencyKind = "token"
)

type EscrowStatus string

const (
	EscrowStatusNone      EscrowStatus = "none"
	EscrowStatusPending   EscrowStatus = "pending"
	EscrowStatusFunded    EscrowStatus = "funded"
	EscrowStatusShipped   EscrowStatus = "shipped"
	EscrowStatusDisputed  EscrowStatus = "disputed"
	EscrowStatusCompleted EscrowStatus = "completed"
	EscrowStatusRefunded  EscrowStatus = "refunded"
)

// Listing is the sellable unit. Price is stored in the smallest unit of the
// settlement currency so comparisons never touch floating point. SellerID is
// the seller's pseudonymous identity; SellerAddress is the public ledger
// address payments settle to.
type Listing struct {
	ID            uint64        `gorm:"primaryKey;autoIncrement"`
	SellerID      string        `gorm:"column:seller_id;size:64;index;not null"`
	SellerAddress string        `gorm:"column:seller_address;size:64;not null"`
	Title         string        `gorm:"size:120;not null"`
	Description   string        `gorm:"type:text;not null"`
	Price         string        `gorm:"column:price;size:40;not null"`
	Currency      CurrencyKind  `gorm:"column:currency;size:16;not null"`
	Mint          string        `gorm:"column:mint;size:64"`
	Decimals      uint8         `gorm:"column:decimals"`
	Quantity      uint          `gorm:"not null"`
	Status        ListingStatus `gorm:"column:status;size:16;index;not null"`

	// Escrow snapshot, populated once the buyer funds the holding address.
	EscrowStatus    EscrowStatus `gorm:"column:escrow_status;size:16;not null;default:none"`
	EscrowBuyerID   string       `gorm:"column:escrow_buyer_id;size:64"`
	HoldingAddress  string       `gorm:"column:holding_address;size:64"`
	DepositedAmount string       `gorm:"column:deposited_amount;size:40"`
	Protection      bool         `gorm:"column:protection"`
	DepositedAt     *time.Time   `gorm:"column:deposited_at"`
	ShippedAt       *time.Time   `gorm:"column:shipped_at"`
	ReceivedAt      *time.Time   `gorm:"column:received_at"`
	Carrier         string       `gorm:"column:carrier;size:64"`
	TrackingNumber  string       `gorm:"column:tracking_number;size:64"`
	PayoutRef       string       `gorm:"column:payout_ref;size:64"`

	// Token-gated community chat.
	Gated    bool   `gorm:"column:gated"`
	GateMint string `gorm:"column:gate_mint;size:64"`
	ChatKey  string `gorm:"column:chat_key;size:128"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Listing) TableName() string {
	return "listings"
}

// ShippingDeadline returns the advisory ship-by time for a funded escrow.
// Exceeding it never auto-refunds; it only raises dispute urgency.
func (l *Listing) ShippingDeadline(slaDays int) *time.Time {
	if l.DepositedAt == nil {
		return nil
	}
	d := l.DepositedAt.Add(time.Duration(slaDays) * 24 * time.Hour)
	return &d
}
