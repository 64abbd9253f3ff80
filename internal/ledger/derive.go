package ledger

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

// DeriveTokenAccount computes the deterministic token-holding sub-account
// for (mint, owner). Both parties can derive it independently, so the
// verifier never asks the payer which account it paid into.
func DeriveTokenAccount(mint, owner string) string {
	sum := sha256.Sum256([]byte("token-account:" + mint + ":" + owner))
	return base58.Encode(sum[:])
}

// DeriveHoldingAddress computes the escrow deposit target scoped to one
// (listing, buyer) pair.
func DeriveHoldingAddress(listingID uint64, buyerID string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("escrow-hold:%d:%s", listingID, buyerID)))
	return base58.Encode(sum[:])
}
