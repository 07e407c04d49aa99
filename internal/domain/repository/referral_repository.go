package repository

import (
	"context"

	"referral-network-indexer/internal/domain/entity"
)

// ReferralRepository defines the interface for referral graph snapshots
type ReferralRepository interface {
	// SaveProfileSnapshot persists the accounts and referral edges of a profile
	SaveProfileSnapshot(ctx context.Context, profile *entity.Profile) error

	// GetDirectReferees retrieves the referees recorded for referrer by earlier snapshots
	GetDirectReferees(ctx context.Context, referrer entity.Address) ([]entity.Address, error)

	// GetNetworkSize counts accounts reachable from root within maxHops
	GetNetworkSize(ctx context.Context, root entity.Address, maxHops int) (int, error)
}
