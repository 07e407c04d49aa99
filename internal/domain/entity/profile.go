package entity

import (
	"errors"
	"fmt"
	"math/big"
	"time"
)

// Profile is the assembled referral network summary for one root address.
// A committed profile is replaced wholesale, never mutated.
type Profile struct {
	Root                  Address           `json:"root"`
	Loading               bool              `json:"loading"`
	Error                 string            `json:"error,omitempty"`
	Level1Rows            []NodeAggregate   `json:"level1_rows"`
	Level1Count           int               `json:"level1_count"`
	Levels                []LevelInfo       `json:"levels"`
	RootTotalStaked       *big.Int          `json:"root_total_staked"`
	RootStakeCount        uint64            `json:"root_stake_count"`
	RootReferrer          *Address          `json:"root_referrer,omitempty"`
	RootClaimableBalances ClaimableBalances `json:"root_claimable_balances"`
	TotalNodes            int               `json:"total_nodes"`
	NetworkTotalStaked    *big.Int          `json:"network_total_staked"`
	Truncated             bool              `json:"truncated"`
	GeneratedAt           time.Time         `json:"generated_at"`
}

// NewLoadingProfile returns the placeholder shown while a traversal runs
func NewLoadingProfile(root Address) *Profile {
	return &Profile{
		Root:                  root,
		Loading:               true,
		Level1Rows:            []NodeAggregate{},
		Levels:                []LevelInfo{},
		RootTotalStaked:       new(big.Int),
		RootClaimableBalances: NewClaimableBalances(),
		NetworkTotalStaked:    new(big.Int),
	}
}

// NewFailedProfile returns a fail-closed profile: an error and no partial data
func NewFailedProfile(root Address, err error, at time.Time) *Profile {
	p := NewLoadingProfile(root)
	p.Loading = false
	p.Error = err.Error()
	p.GeneratedAt = at
	return p
}

// Level returns the level info for a level number, if it was traversed
func (p *Profile) Level(level int) (LevelInfo, bool) {
	for _, l := range p.Levels {
		if l.Level == level {
			return l, true
		}
	}
	return LevelInfo{}, false
}

// ProfileRequest asks for the profile of Address on behalf of one viewer session.
// A newer request from the same session supersedes the previous one.
type ProfileRequest struct {
	Session string  `json:"session"`
	Address Address `json:"address"`
}

// Validate normalizes the address and rejects unusable requests
func (r *ProfileRequest) Validate() error {
	r.Address = NormalizeAddress(string(r.Address))
	if r.Session == "" {
		return errors.New("profile request has no session")
	}
	if !r.Address.IsValid() || r.Address.IsZero() {
		return fmt.Errorf("profile request has invalid address %q", r.Address)
	}
	return nil
}
