// Package identity maps raw wallet addresses to the stable pseudonymous
// identifiers used everywhere at rest. Raw wallets never reach the database
// or the key-derivation inputs, which limits correlation risk if either
// store leaks.
package identity

import (
	"crypto/sha256"
	"strings"

	"github.com/mr-tron/base58"
)

const pseudonymLen = 32

// Caller is the authenticated identity of a request: the ledger address the
// caller proved control of, and the pseudonym derived from it.
type Caller struct {
	Address string
	ID      string
}

// NewCaller builds a Caller from a wallet address.
func NewCaller(wallet string) Caller {
	return Caller{Address: wallet, ID: Pseudonym(wallet)}
}

// Pseudonym derives the stable pseudonymous identity for a wallet address.
// The same wallet always maps to the same identity.
func Pseudonym(wallet string) string {
	sum := sha256.Sum256([]byte("peermart:id:" + strings.TrimSpace(wallet)))
	enc := base58.Encode(sum[:])
	if len(enc) > pseudonymLen {
		enc = enc[:pseudonymLen]
	}
	return enc
}

// Valid reports whether s looks like a pseudonym produced by Pseudonym.
func Valid(s string) bool {
	if len(s) == 0 || len(s) > pseudonymLen {
		return false
	}
	_, err := base58.Decode(s)
	return err == nil
}
