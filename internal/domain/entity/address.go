package entity

import (
	"strings"
)

// Address represents an account address, always held in lowercase 0x-hex form
type Address string

// ZeroAddress is the all-zero account, never a valid referral participant
const ZeroAddress Address = "0x0000000000000000000000000000000000000000"

// NormalizeAddress trims and lowercases a raw address string
func NormalizeAddress(raw string) Address {
	addr := strings.ToLower(strings.TrimSpace(raw))
	if addr == "" {
		return ""
	}
	if !strings.HasPrefix(addr, "0x") && len(addr) == 40 {
		addr = "0x" + addr
	}
	return Address(addr)
}

// NormalizeAddresses normalizes every address in the list, preserving order
func NormalizeAddresses(raw []string) []Address {
	out := make([]Address, 0, len(raw))
	for _, r := range raw {
		out = append(out, NormalizeAddress(r))
	}
	return out
}

// String returns the normalized hex form
func (a Address) String() string {
	return string(a)
}

// IsZero reports whether the address is empty or the zero address
func (a Address) IsZero() bool {
	if a == "" {
		return true
	}
	hexPart := strings.TrimPrefix(string(a), "0x")
	return strings.Trim(hexPart, "0") == ""
}

// IsValid checks the 0x prefix, length and hex charset
func (a Address) IsValid() bool {
	if len(a) != 42 {
		return false
	}

	if !strings.HasPrefix(string(a), "0x") {
		return false
	}

	for _, char := range string(a)[2:] {
		if !((char >= '0' && char <= '9') || (char >= 'a' && char <= 'f')) {
			return false
		}
	}

	return true
}

// Equal compares two addresses case-insensitively
func (a Address) Equal(other Address) bool {
	return NormalizeAddress(string(a)) == NormalizeAddress(string(other))
}
