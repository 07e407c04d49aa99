package repository

import (
	"context"
	"errors"

	"referral-network-indexer/internal/domain/entity"
)

// ErrProfileNotFound is returned when no profile is stored for a root
var ErrProfileNotFound = errors.New("profile not found")

// ProfileRepository defines the interface for the local profile cache
type ProfileRepository interface {
	// SaveProfile stores the latest committed profile of its root
	SaveProfile(ctx context.Context, profile *entity.Profile) error

	// GetProfile retrieves the latest stored profile of root
	GetProfile(ctx context.Context, root entity.Address) (*entity.Profile, error)

	// ListRoots returns every root with a stored profile
	ListRoots(ctx context.Context) ([]entity.Address, error)
}
