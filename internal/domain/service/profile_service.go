package service

import (
	"context"
	"time"

	"referral-network-indexer/internal/domain/entity"
)

// ProfileService defines the interface for assembling referral profiles
type ProfileService interface {
	// BuildProfile walks the referral network of root and folds it into a profile.
	// Any error is a top-level failure; no partial profile is returned with it.
	BuildProfile(ctx context.Context, root entity.Address, reader ChainReader) (*entity.Profile, error)
}

// ProfileHook receives every successfully committed profile
type ProfileHook interface {
	// Name identifies the hook in logs
	Name() string

	// HandleProfile processes a committed profile. Errors are logged by the caller
	// and never change the profile.
	HandleProfile(ctx context.Context, profile *entity.Profile) error
}

// BuildObserver is notified after every profile build, successful or not
type BuildObserver interface {
	ObserveBuild(root entity.Address, elapsed time.Duration, err error)
}
