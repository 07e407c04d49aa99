package service

import (
	"context"
	"sync"
	"time"

	"referral-network-indexer/internal/domain/entity"
	"referral-network-indexer/internal/domain/service"
	"referral-network-indexer/internal/infrastructure/logger"

	"golang.org/x/sync/semaphore"
)

// Task is one in-flight profile build. Its context is the cancellation token
// checked before the result is committed.
type Task struct {
	ID   uint64
	Root entity.Address

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel marks the task stale; its result will not be committed
func (t *Task) Cancel() {
	t.cancel()
}

// Cancelled reports whether the task's token has been cancelled
func (t *Task) Cancelled() bool {
	return t.ctx.Err() != nil
}

// Done is closed when the build has finished, committed or not
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the build has finished or ctx ends
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ProfileTracker owns the load / error / success lifecycle of the profile
// shown to one viewer. Only the most recently started task may commit.
type ProfileTracker struct {
	mu         sync.Mutex
	base       context.Context
	builder    service.ProfileService
	hooks      []service.ProfileHook
	now        func() time.Time
	generation uint64
	task       *Task
	profile    *entity.Profile
	limiter    *semaphore.Weighted
	logger     *logger.Logger
}

// NewProfileTracker creates a tracker whose tasks derive from ctx
func NewProfileTracker(
	ctx context.Context,
	builder service.ProfileService,
	hooks []service.ProfileHook,
	now func() time.Time,
	logger *logger.Logger,
) *ProfileTracker {
	if now == nil {
		now = time.Now
	}
	return &ProfileTracker{
		base:    ctx,
		builder: builder,
		hooks:   hooks,
		now:     now,
		logger:  logger.WithComponent("profile-tracker"),
	}
}

// WithLimiter makes every build hold one unit of limiter while it runs.
// Builds waiting for a unit stay cancellable.
func (t *ProfileTracker) WithLimiter(limiter *semaphore.Weighted) *ProfileTracker {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limiter = limiter
	return t
}

// Start supersedes any in-flight build with a new one for (root, reader).
// The current profile flips to a fresh loading placeholder immediately.
func (t *ProfileTracker) Start(root entity.Address, reader service.ChainReader) *Task {
	root = entity.NormalizeAddress(string(root))

	t.mu.Lock()
	if t.task != nil {
		t.task.Cancel()
	}
	t.generation++
	ctx, cancel := context.WithCancel(t.base)
	task := &Task{
		ID:     t.generation,
		Root:   root,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	t.task = task
	t.profile = entity.NewLoadingProfile(root)
	t.mu.Unlock()

	t.logger.WithTask(task.ID, root.String()).Debug("Started profile build")

	go t.run(task, reader)
	return task
}

// Stop cancels the in-flight build, if any, without touching the current profile
func (t *ProfileTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.task != nil {
		t.task.Cancel()
		t.task = nil
	}
}

// Current returns the committed profile snapshot, or nil before the first Start
func (t *ProfileTracker) Current() *entity.Profile {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.profile
}

func (t *ProfileTracker) run(task *Task, reader service.ChainReader) {
	defer close(task.done)

	profile, err := t.build(task, reader)
	if err != nil {
		profile = entity.NewFailedProfile(task.Root, err, t.now())
	}

	if !t.commit(task, profile) {
		t.logger.WithTask(task.ID, task.Root.String()).Debug("Discarded stale profile build")
		return
	}

	if err == nil {
		runProfileHooks(t.base, t.hooks, profile, t.logger)
	}
}

func (t *ProfileTracker) build(task *Task, reader service.ChainReader) (*entity.Profile, error) {
	t.mu.Lock()
	limiter := t.limiter
	t.mu.Unlock()

	if limiter != nil {
		if err := limiter.Acquire(task.ctx, 1); err != nil {
			return nil, err
		}
		defer limiter.Release(1)
	}
	return t.builder.BuildProfile(task.ctx, task.Root, reader)
}

// commit replaces the current profile only if task is still current and live
func (t *ProfileTracker) commit(task *Task, profile *entity.Profile) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.task != task || task.Cancelled() {
		return false
	}
	t.profile = profile
	t.task = nil
	task.cancel()
	return true
}
