package storage

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"referral-network-indexer/internal/domain/entity"
	"referral-network-indexer/internal/domain/repository"
	"referral-network-indexer/internal/infrastructure/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	rootA = entity.Address("0x0000000000000000000000000000000000000001")
	rootB = entity.Address("0x0000000000000000000000000000000000000002")
)

func newTestStore(t *testing.T) *LevelDBProfileStore {
	t.Helper()
	store, err := NewLevelDBProfileStore(filepath.Join(t.TempDir(), "profiles"), logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func committedProfile(root entity.Address) *entity.Profile {
	profile := entity.NewLoadingProfile(root)
	profile.Loading = false
	profile.Levels = []entity.LevelInfo{entity.NewLevelInfo(1, []entity.NodeAggregate{
		{Address: "0x0000000000000000000000000000000000000003", Referrer: root, Depth: 1, TotalStaked: big.NewInt(77)},
	})}
	profile.Level1Rows = profile.Levels[0].Rows
	profile.Level1Count = 1
	profile.TotalNodes = 1
	profile.NetworkTotalStaked = big.NewInt(77)
	profile.GeneratedAt = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return profile
}

func TestProfileStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.HandleProfile(ctx, committedProfile(rootA)))

	got, err := store.GetProfile(ctx, "0x0000000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, rootA, got.Root)
	assert.Equal(t, 1, got.Level1Count)
	assert.Equal(t, "77", got.NetworkTotalStaked.String())
	require.Len(t, got.Levels, 1)
	assert.Equal(t, rootA, got.Levels[0].Rows[0].Referrer)
}

func TestProfileStoreSkipsUncommitted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveProfile(ctx, nil))
	require.NoError(t, store.SaveProfile(ctx, entity.NewLoadingProfile(rootA)))
	require.NoError(t, store.SaveProfile(ctx, entity.NewFailedProfile(rootB, errors.New("rpc down"), time.Now())))

	_, err := store.GetProfile(ctx, rootA)
	assert.ErrorIs(t, err, repository.ErrProfileNotFound)
	_, err = store.GetProfile(ctx, rootB)
	assert.ErrorIs(t, err, repository.ErrProfileNotFound)
}

func TestProfileStoreListRoots(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	roots, err := store.ListRoots(ctx)
	require.NoError(t, err)
	assert.Empty(t, roots)

	require.NoError(t, store.SaveProfile(ctx, committedProfile(rootB)))
	require.NoError(t, store.SaveProfile(ctx, committedProfile(rootA)))
	require.NoError(t, store.SaveProfile(ctx, committedProfile(rootA)))

	roots, err = store.ListRoots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []entity.Address{rootA, rootB}, roots)
}
