package verify

import (
	"fmt"
	"math/big"
	"strings"
)

// Currency is the settlement currency of a payment, modelled as a sealed
// union so an unsupported combination is a missing case, not a nil field.
type Currency interface {
	isCurrency()
	Decimals() uint8
}

// Native is the network's own coin.
type Native struct {
	Decs uint8
}

func (Native) isCurrency() {}
func (n Native) Decimals() uint8 { return n.Decs }

// Token is a fungible token identified by its mint. A listing settled in its
// own token is just a Token with the listing's mint.
type Token struct {
	Mint string
	Decs uint8
}

func (Token) isCurrency() {}
func (t Token) Decimals() uint8 { return t.Decs }

// ParseAmount converts a decimal amount string ("2.5") to the currency's
// smallest unit as a big.Int. Fixed-point only; float parsing is deliberately
// avoided so rounding can never change a comparison.
func ParseAmount(s string, decimals uint8) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", s, decimals)
	}
	frac += strings.Repeat("0", int(decimals)-len(frac))
	digits := whole + frac
	if whole == "" {
		digits = frac
	}
	amount, ok := new(big.Int).SetString(digits, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return amount, nil
}
