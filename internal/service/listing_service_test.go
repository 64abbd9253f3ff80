package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/peermart/peermart-backend/internal/model"
)

func validListingInput() NewListingInput {
	return NewListingInput{
		Title:       "City bike",
		Description: "Ridden to work, light wear.",
		Price:       "2.5",
		Currency:    model.CurrencyNative,
		Decimals:    6,
		Quantity:    1,
	}
}

func TestCreateListing(t *testing.T) {
	ctx := context.Background()
	svc := NewListingService(newRepos(newTestDB(t)).listings)

	listing, err := svc.Create(ctx, seller, validListingInput())
	require.NoError(t, err)
	require.Equal(t, seller.ID, listing.SellerID)
	require.Equal(t, seller.Address, listing.SellerAddress)
	// Price is stored in smallest units, converted exactly once.
	require.Equal(t, "2500000", listing.Price)
	require.Equal(t, model.ListingStatusActive, listing.Status)
	require.Equal(t, model.EscrowStatusNone, listing.EscrowStatus)
}

func TestCreateListingValidation(t *testing.T) {
	ctx := context.Background()
	svc := NewListingService(newRepos(newTestDB(t)).listings)

	tests := []struct {
		name   string
		mutate func(*NewListingInput)
	}{
		{"empty title", func(in *NewListingInput) { in.Title = "  " }},
		{"empty description", func(in *NewListingInput) { in.Description = "" }},
		{"zero quantity", func(in *NewListingInput) { in.Quantity = 0 }},
		{"zero price", func(in *NewListingInput) { in.Price = "0" }},
		{"negative price", func(in *NewListingInput) { in.Price = "-1" }},
		{"too many decimal places", func(in *NewListingInput) { in.Price = "1.0000001" }},
		{"unknown currency", func(in *NewListingInput) { in.Currency = "shells" }},
		{"token without mint", func(in *NewListingInput) { in.Currency = model.CurrencyToken }},
		{"gated without gate mint", func(in *NewListingInput) { in.Gated = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validListingInput()
			tt.mutate(&in)
			_, err := svc.Create(ctx, seller, in)
			require.Error(t, err)
		})
	}
}

func TestRemoveListing(t *testing.T) {
	ctx := context.Background()
	r := newRepos(newTestDB(t))
	svc := NewListingService(r.listings)

	listing, err := svc.Create(ctx, seller, validListingInput())
	require.NoError(t, err)

	t.Run("only the seller removes", func(t *testing.T) {
		require.ErrorIs(t, svc.Remove(ctx, listing.ID, buyer), ErrForbidden)
	})

	require.NoError(t, svc.Remove(ctx, listing.ID, seller))

	got, err := svc.Get(ctx, listing.ID)
	require.NoError(t, err)
	require.Equal(t, model.ListingStatusRemoved, got.Status)

	t.Run("already removed", func(t *testing.T) {
		require.ErrorIs(t, svc.Remove(ctx, listing.ID, seller), ErrInvalidState)
	})

	// Removed listings stay out of the public feed.
	listings, total, err := svc.List(ctx, 20, 0)
	require.NoError(t, err)
	require.Zero(t, total)
	require.Empty(t, listings)
}
