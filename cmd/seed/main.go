package main

import (
	"context"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"github.com/peermart/peermart-backend/internal/config"
	"github.com/peermart/peermart-backend/internal/db"
	"github.com/peermart/peermart-backend/internal/identity"
	"github.com/peermart/peermart-backend/internal/model"
	"github.com/peermart/peermart-backend/internal/repository"
	"github.com/peermart/peermart-backend/internal/service"
)

type seedListing struct {
	Wallet      string
	Title       string
	Description string
	Price       string
	Currency    model.CurrencyKind
	Mint        string
	Decimals    uint8
	Quantity    uint
}

var listings = []seedListing{
	{
		Wallet:      "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
		Title:       "Mechanical keyboard, 65%",
		Description: "Lubed switches, barely used. Ships anywhere.",
		Price:       "1.2",
		Currency:    model.CurrencyNative,
		Decimals:    9,
		Quantity:    1,
	},
	{
		Wallet:      "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T",
		Title:       "Vintage camera lens 50mm",
		Description: "Clean glass, smooth focus ring.",
		Price:       "2.5",
		Currency:    model.CurrencyToken,
		Mint:        "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		Decimals:    6,
		Quantity:    3,
	},
	{
		Wallet:      "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
		Title:       "Hand-thrown ceramic mug set",
		Description: "Set of four, wood-fired.",
		Price:       "0.4",
		Currency:    model.CurrencyNative,
		Decimals:    9,
		Quantity:    4,
	},
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
}

func run() error {
	ctx := context.Background()
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	gdb, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	if err := gdb.AutoMigrate(&model.Listing{}, &model.Thread{}, &model.ThreadState{}, &model.Message{}, &model.Claim{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	svc := service.NewListingService(repository.NewListingRepository(gdb))
	for _, l := range listings {
		created, err := svc.Create(ctx, identity.NewCaller(l.Wallet), service.NewListingInput{
			Title:       l.Title,
			Description: l.Description,
			Price:       l.Price,
			Currency:    l.Currency,
			Mint:        l.Mint,
			Decimals:    l.Decimals,
			Quantity:    l.Quantity,
		})
		if err != nil {
			return fmt.Errorf("seed %q: %w", l.Title, err)
		}
		log.Printf("seeded listing %d: %s", created.ID, created.Title)
	}
	return nil
}
