package entity

import (
	"fmt"
	"math/big"
)

// TokenCategory is one of the three stake-denominated asset categories
type TokenCategory string

const (
	TokenCategoryYY TokenCategory = "yy"
	TokenCategorySY TokenCategory = "sy"
	TokenCategoryPY TokenCategory = "py"
)

// TokenCategories lists the categories in their canonical order
var TokenCategories = []TokenCategory{TokenCategoryYY, TokenCategorySY, TokenCategoryPY}

// TokenSet maps each category to the token contract that denominates it
type TokenSet struct {
	YY Address `json:"yy"`
	SY Address `json:"sy"`
	PY Address `json:"py"`
}

// Address returns the configured token for a category
func (s TokenSet) Address(category TokenCategory) Address {
	switch category {
	case TokenCategoryYY:
		return s.YY
	case TokenCategorySY:
		return s.SY
	case TokenCategoryPY:
		return s.PY
	}
	return ""
}

// Categorize buckets a token address into its category by address match
func (s TokenSet) Categorize(token Address) (TokenCategory, bool) {
	token = NormalizeAddress(string(token))
	if token.IsZero() {
		return "", false
	}
	for _, category := range TokenCategories {
		if configured := s.Address(category); !configured.IsZero() && configured.Equal(token) {
			return category, true
		}
	}
	return "", false
}

// Validate ensures all three categories are configured with distinct tokens
func (s TokenSet) Validate() error {
	seen := make(map[Address]TokenCategory, len(TokenCategories))
	for _, category := range TokenCategories {
		addr := NormalizeAddress(string(s.Address(category)))
		if !addr.IsValid() || addr.IsZero() {
			return fmt.Errorf("invalid token address for category %s: %q", category, addr)
		}
		if other, exists := seen[addr]; exists {
			return fmt.Errorf("token %s configured for both %s and %s", addr, other, category)
		}
		seen[addr] = category
	}
	return nil
}

// TokenSplit is an address's stake decomposed across the three categories
type TokenSplit struct {
	YY *big.Int `json:"yy"`
	SY *big.Int `json:"sy"`
	PY *big.Int `json:"py"`
}

// NewTokenSplit returns a zeroed split
func NewTokenSplit() *TokenSplit {
	return &TokenSplit{YY: new(big.Int), SY: new(big.Int), PY: new(big.Int)}
}

// Add accumulates amount into the bucket for category
func (t *TokenSplit) Add(category TokenCategory, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	switch category {
	case TokenCategoryYY:
		t.YY.Add(t.YY, amount)
	case TokenCategorySY:
		t.SY.Add(t.SY, amount)
	case TokenCategoryPY:
		t.PY.Add(t.PY, amount)
	}
}

// Sum returns YY + SY + PY
func (t *TokenSplit) Sum() *big.Int {
	sum := new(big.Int)
	for _, v := range []*big.Int{t.YY, t.SY, t.PY} {
		if v != nil {
			sum.Add(sum, v)
		}
	}
	return sum
}

// ClaimableBalances are the root's referral earnings per category
type ClaimableBalances struct {
	YY *big.Int `json:"yy"`
	SY *big.Int `json:"sy"`
	PY *big.Int `json:"py"`
}

// NewClaimableBalances returns zeroed balances
func NewClaimableBalances() ClaimableBalances {
	return ClaimableBalances{YY: new(big.Int), SY: new(big.Int), PY: new(big.Int)}
}

// Set stores the balance for a category
func (c *ClaimableBalances) Set(category TokenCategory, amount *big.Int) {
	if amount == nil {
		amount = new(big.Int)
	}
	switch category {
	case TokenCategoryYY:
		c.YY = amount
	case TokenCategorySY:
		c.SY = amount
	case TokenCategoryPY:
		c.PY = amount
	}
}

// Total sums the three balances
func (c ClaimableBalances) Total() *big.Int {
	total := new(big.Int)
	for _, v := range []*big.Int{c.YY, c.SY, c.PY} {
		if v != nil {
			total.Add(total, v)
		}
	}
	return total
}
