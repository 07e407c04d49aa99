package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"referral-network-indexer/internal/domain/entity"
	"referral-network-indexer/internal/domain/repository"
	"referral-network-indexer/internal/infrastructure/logger"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
	"go.uber.org/zap"
)

const profileKeyPrefix = "profile:"

// LevelDBProfileStore caches the latest committed profile of each root on local disk
type LevelDBProfileStore struct {
	db     *leveldb.DB
	logger *logger.Logger
}

// NewLevelDBProfileStore opens (or creates) a profile store at path
func NewLevelDBProfileStore(path string, logger *logger.Logger) (*LevelDBProfileStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open profile store: %w", err)
	}
	return &LevelDBProfileStore{
		db:     db,
		logger: logger.WithComponent("profile-store"),
	}, nil
}

// Close closes the underlying database
func (s *LevelDBProfileStore) Close() error {
	return s.db.Close()
}

func profileKey(root entity.Address) []byte {
	return []byte(profileKeyPrefix + entity.NormalizeAddress(string(root)).String())
}

// SaveProfile implements repository.ProfileRepository. Loading and failed
// profiles are not cached.
func (s *LevelDBProfileStore) SaveProfile(ctx context.Context, profile *entity.Profile) error {
	if profile == nil || profile.Loading || profile.Error != "" {
		return nil
	}
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	if err := s.db.Put(profileKey(profile.Root), data, nil); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}

	s.logger.Debug("Cached profile",
		zap.String("root", profile.Root.String()),
		zap.Int("bytes", len(data)))
	return nil
}

// GetProfile implements repository.ProfileRepository
func (s *LevelDBProfileStore) GetProfile(ctx context.Context, root entity.Address) (*entity.Profile, error) {
	data, err := s.db.Get(profileKey(root), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, repository.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	var profile entity.Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return &profile, nil
}

// ListRoots implements repository.ProfileRepository
func (s *LevelDBProfileStore) ListRoots(ctx context.Context) ([]entity.Address, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(profileKeyPrefix)), nil)
	defer iter.Release()

	var roots []entity.Address
	for iter.Next() {
		roots = append(roots, entity.Address(iter.Key()[len(profileKeyPrefix):]))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate profiles: %w", err)
	}
	return roots, nil
}

// Name implements service.ProfileHook
func (s *LevelDBProfileStore) Name() string {
	return "profile-store"
}

// HandleProfile implements service.ProfileHook
func (s *LevelDBProfileStore) HandleProfile(ctx context.Context, profile *entity.Profile) error {
	return s.SaveProfile(ctx, profile)
}
