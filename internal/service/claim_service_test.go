package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/peermart/peermart-backend/internal/model"
)

func newClaimService(t *testing.T, r repos) ClaimService {
	t.Helper()
	return NewClaimService(r.claims, r.listings, NewAllowList([]string{admin.ID}))
}

// protectedListing seeds a listing whose escrow already shipped under
// protection, the earliest point a claim is possible.
func protectedListing(t *testing.T, r repos) *model.Listing {
	t.Helper()
	return seedListing(t, r, func(l *model.Listing) {
		l.Status = model.ListingStatusShipped
		l.EscrowStatus = model.EscrowStatusShipped
		l.EscrowBuyerID = buyer.ID
		l.Protection = true
	})
}

func TestFileClaim(t *testing.T) {
	ctx := context.Background()
	r := newRepos(newTestDB(t))
	listing := protectedListing(t, r)
	svc := newClaimService(t, r)

	claim, err := svc.File(ctx, listing.ID, buyer, model.ClaimReasonNotReceived, "never arrived", "")
	require.NoError(t, err)
	require.Equal(t, model.ClaimStatusPending, claim.Status)
	require.Equal(t, buyer.ID, claim.ClaimantID)

	t.Run("one active claim per listing", func(t *testing.T) {
		_, err := svc.File(ctx, listing.ID, buyer, model.ClaimReasonOther, "also this", "")
		require.ErrorIs(t, err, ErrAlreadyClaimed)
	})
}

func TestFileClaimGuards(t *testing.T) {
	ctx := context.Background()
	r := newRepos(newTestDB(t))
	svc := newClaimService(t, r)

	t.Run("unknown reason", func(t *testing.T) {
		listing := protectedListing(t, r)
		_, err := svc.File(ctx, listing.ID, buyer, "vibes", "", "")
		require.Error(t, err)
	})
	t.Run("no protection purchased", func(t *testing.T) {
		listing := seedListing(t, r, func(l *model.Listing) {
			l.EscrowStatus = model.EscrowStatusShipped
			l.EscrowBuyerID = buyer.ID
		})
		_, err := svc.File(ctx, listing.ID, buyer, model.ClaimReasonNotReceived, "", "")
		require.ErrorIs(t, err, ErrNotEligible)
	})
	t.Run("not the escrow buyer", func(t *testing.T) {
		listing := protectedListing(t, r)
		_, err := svc.File(ctx, listing.ID, other, model.ClaimReasonNotReceived, "", "")
		require.ErrorIs(t, err, ErrForbidden)
	})
	t.Run("escrow not yet shipped", func(t *testing.T) {
		listing := seedListing(t, r, func(l *model.Listing) {
			l.EscrowStatus = model.EscrowStatusFunded
			l.EscrowBuyerID = buyer.ID
			l.Protection = true
		})
		_, err := svc.File(ctx, listing.ID, buyer, model.ClaimReasonNotReceived, "", "")
		require.ErrorIs(t, err, ErrInvalidState)
	})
}

func TestResolveClaim(t *testing.T) {
	ctx := context.Background()
	r := newRepos(newTestDB(t))
	listing := protectedListing(t, r)
	svc := newClaimService(t, r)

	claim, err := svc.File(ctx, listing.ID, buyer, model.ClaimReasonNotAsDescribed, "wrong size", "https://example.com/photo")
	require.NoError(t, err)

	t.Run("non-admin", func(t *testing.T) {
		_, err := svc.Resolve(ctx, claim.ID, buyer, true)
		require.ErrorIs(t, err, ErrForbidden)
	})

	resolved, err := svc.Resolve(ctx, claim.ID, admin, true)
	require.NoError(t, err)
	require.Equal(t, model.ClaimStatusApproved, resolved.Status)
	require.NotEmpty(t, resolved.PayoutRef)

	t.Run("already resolved", func(t *testing.T) {
		_, err := svc.Resolve(ctx, claim.ID, admin, false)
		require.ErrorIs(t, err, ErrInvalidState)
	})

	// A rejection carries no payout reference.
	second := protectedListing(t, r)
	claim2, err := svc.File(ctx, second.ID, buyer, model.ClaimReasonOther, "changed my mind", "")
	require.NoError(t, err)
	rejected, err := svc.Resolve(ctx, claim2.ID, admin, false)
	require.NoError(t, err)
	require.Equal(t, model.ClaimStatusRejected, rejected.Status)
	require.Empty(t, rejected.PayoutRef)
}
