package service

import (
	"context"
	"sync"
	"time"

	"referral-network-indexer/internal/domain/entity"
	"referral-network-indexer/internal/domain/service"
	"referral-network-indexer/internal/infrastructure/logger"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// SessionOptions bounds the memory and concurrency of a SessionManager
type SessionOptions struct {
	// MaxSessions caps the tracked sessions; the least recently used one is
	// evicted and its build stopped. Zero means unbounded.
	MaxSessions int
	// IdleTTL forgets a session this long after its last request. Zero disables expiry.
	IdleTTL time.Duration
	// MaxConcurrentBuilds caps builds running at once across all sessions. Zero means unbounded.
	MaxConcurrentBuilds int
}

// SessionManager keeps one ProfileTracker per viewer session, so a newer
// request from a session supersedes that session's in-flight build
type SessionManager struct {
	mu       sync.Mutex
	ctx      context.Context
	profiles *ProfileApplicationService
	reader   service.ChainReader
	trackers *expirable.LRU[string, *ProfileTracker]
	limiter  *semaphore.Weighted
	logger   *logger.Logger
}

// NewSessionManager creates a session manager whose builds derive from ctx
func NewSessionManager(
	ctx context.Context,
	profiles *ProfileApplicationService,
	reader service.ChainReader,
	opts SessionOptions,
	logger *logger.Logger,
) *SessionManager {
	m := &SessionManager{
		ctx:      ctx,
		profiles: profiles,
		reader:   reader,
		logger:   logger.WithComponent("session-manager"),
	}
	if opts.MaxConcurrentBuilds > 0 {
		m.limiter = semaphore.NewWeighted(int64(opts.MaxConcurrentBuilds))
	}
	m.trackers = expirable.NewLRU[string, *ProfileTracker](opts.MaxSessions, m.evicted, opts.IdleTTL)
	return m
}

// evicted stops the build of a session dropped by End, Close, size or TTL
func (m *SessionManager) evicted(session string, tracker *ProfileTracker) {
	tracker.Stop()
	m.logger.WithSession(session).Debug("Session evicted")
}

// Handle starts a build for req, superseding the session's previous one
func (m *SessionManager) Handle(req *entity.ProfileRequest) *Task {
	m.mu.Lock()
	tracker, ok := m.trackers.Get(req.Session)
	if !ok {
		tracker = m.profiles.NewTracker(m.ctx).WithLimiter(m.limiter)
	}
	// re-adding refreshes the idle deadline
	m.trackers.Add(req.Session, tracker)
	m.mu.Unlock()

	task := tracker.Start(req.Address, m.reader)
	m.logger.WithSession(req.Session).Debug("Handling profile request",
		zap.String("address", req.Address.String()),
		zap.Uint64("task_id", task.ID))
	return task
}

// Current returns the committed profile of a session
func (m *SessionManager) Current(session string) (*entity.Profile, bool) {
	tracker, ok := m.trackers.Peek(session)
	if !ok {
		return nil, false
	}
	profile := tracker.Current()
	return profile, profile != nil
}

// End stops a session's in-flight build and forgets the session
func (m *SessionManager) End(session string) {
	m.trackers.Remove(session)
}

// Run consumes requests until the channel closes or ctx ends
func (m *SessionManager) Run(ctx context.Context, requests <-chan *entity.ProfileRequest) {
	m.logger.Info("Starting profile request processing")
	defer m.logger.Info("Stopped profile request processing")

	for {
		select {
		case <-ctx.Done():
			m.Close()
			return
		case req, ok := <-requests:
			if !ok {
				m.Close()
				return
			}
			m.Handle(req)
		}
	}
}

// Close stops every in-flight build
func (m *SessionManager) Close() {
	m.trackers.Purge()
}

// Sessions returns the number of tracked sessions
func (m *SessionManager) Sessions() int {
	return m.trackers.Len()
}
