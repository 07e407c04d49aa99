package service_test

import (
	"context"
	"testing"

	"referral-network-indexer/internal/domain/entity"
	"referral-network-indexer/internal/infrastructure/blockchain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileTrackerLifecycle(t *testing.T) {
	hook := &recordingHook{}
	tracker := newProfileService().WithHooks(hook).NewTracker(context.Background())
	assert.Nil(t, tracker.Current())

	chain := blockchain.NewMemoryChain().Refer(addr(1), addr(2))
	reader := newGatedReader(chain)

	task := tracker.Start(entity.Address(addr(1)), reader)

	loading := tracker.Current()
	require.NotNil(t, loading)
	assert.True(t, loading.Loading)
	assert.Equal(t, entity.Address(addr(1)), loading.Root)
	assert.Empty(t, loading.Levels)

	reader.open()
	waitTask(t, task)

	committed := tracker.Current()
	assert.False(t, committed.Loading)
	assert.Empty(t, committed.Error)
	assert.Equal(t, 1, committed.Level1Count)
	assert.Equal(t, []entity.Address{entity.Address(addr(1))}, hook.Roots())
}

func TestProfileTrackerSuppressesStaleResults(t *testing.T) {
	hook := &recordingHook{}
	tracker := newProfileService().WithHooks(hook).NewTracker(context.Background())

	slow := newGatedReader(blockchain.NewMemoryChain().Refer(addr(1), addr(2)))
	first := tracker.Start(entity.Address(addr(1)), slow)

	fast := blockchain.NewMemoryChain().Refer(addr(5), addr(6), addr(7))
	second := tracker.Start(entity.Address(addr(5)), fast)
	waitTask(t, second)

	assert.True(t, first.Cancelled())
	assert.Equal(t, entity.Address(addr(5)), tracker.Current().Root)
	assert.Equal(t, 2, tracker.Current().Level1Count)

	slow.open()
	waitTask(t, first)

	current := tracker.Current()
	assert.Equal(t, entity.Address(addr(5)), current.Root, "superseded build must not overwrite")
	assert.Equal(t, 2, current.Level1Count)
	assert.Equal(t, []entity.Address{entity.Address(addr(5))}, hook.Roots())
	assert.Greater(t, second.ID, first.ID)
}

func TestProfileTrackerFailClosed(t *testing.T) {
	hook := &recordingHook{}
	tracker := newProfileService().WithHooks(hook).NewTracker(context.Background())

	task := tracker.Start(entity.Address(addr(1)), nil)
	waitTask(t, task)

	profile := tracker.Current()
	assert.False(t, profile.Loading)
	assert.NotEmpty(t, profile.Error)
	assert.Empty(t, profile.Levels)
	assert.Empty(t, profile.Level1Rows)
	assert.Equal(t, 0, profile.TotalNodes)
	assert.Equal(t, "0", profile.NetworkTotalStaked.String())
	assert.Empty(t, hook.Roots())
}

func TestProfileTrackerStop(t *testing.T) {
	tracker := newProfileService().NewTracker(context.Background())
	reader := newGatedReader(blockchain.NewMemoryChain().Refer(addr(1), addr(2)))

	task := tracker.Start(entity.Address(addr(1)), reader)
	tracker.Stop()
	assert.True(t, task.Cancelled())

	reader.open()
	waitTask(t, task)

	assert.True(t, tracker.Current().Loading, "stopped build never commits")
}

func TestProfileTrackerBaseContextCancelsBuilds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tracker := newProfileService().NewTracker(ctx)
	reader := newGatedReader(blockchain.NewMemoryChain())

	task := tracker.Start(entity.Address(addr(1)), reader)
	cancel()
	reader.open()
	waitTask(t, task)

	assert.True(t, task.Cancelled())
	assert.True(t, tracker.Current().Loading)
}
