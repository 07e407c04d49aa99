package service

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"referral-network-indexer/internal/domain/entity"
	"referral-network-indexer/internal/domain/service"
	"referral-network-indexer/internal/infrastructure/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ProfileApplicationService implements the ProfileService interface
type ProfileApplicationService struct {
	cfg      entity.TraversalConfig
	tokens   entity.TokenSet
	injector service.EdgeInjector
	hooks    []service.ProfileHook
	observer service.BuildObserver
	now      func() time.Time
	logger   *logger.Logger
}

// NewProfileApplicationService creates a new profile application service
func NewProfileApplicationService(
	cfg entity.TraversalConfig,
	tokens entity.TokenSet,
	logger *logger.Logger,
) *ProfileApplicationService {
	return &ProfileApplicationService{
		cfg:    cfg,
		tokens: tokens,
		now:    time.Now,
		logger: logger.WithComponent("profile-service"),
	}
}

// WithEdgeInjector installs a synthetic edge strategy for every traversal
func (s *ProfileApplicationService) WithEdgeInjector(injector service.EdgeInjector) *ProfileApplicationService {
	s.injector = injector
	return s
}

// WithHooks appends post-commit hooks
func (s *ProfileApplicationService) WithHooks(hooks ...service.ProfileHook) *ProfileApplicationService {
	for _, hook := range hooks {
		if hook != nil {
			s.hooks = append(s.hooks, hook)
		}
	}
	return s
}

// WithObserver installs a build observer
func (s *ProfileApplicationService) WithObserver(observer service.BuildObserver) *ProfileApplicationService {
	s.observer = observer
	return s
}

// WithClock overrides the clock used for GeneratedAt
func (s *ProfileApplicationService) WithClock(now func() time.Time) *ProfileApplicationService {
	s.now = now
	return s
}

// TraversalConfig returns the bounds applied to every build
func (s *ProfileApplicationService) TraversalConfig() entity.TraversalConfig {
	return s.cfg
}

// BuildProfile walks the referral network of root and reads the root's own
// metrics in parallel, under the configured per-traversal deadline
func (s *ProfileApplicationService) BuildProfile(ctx context.Context, root entity.Address, reader service.ChainReader) (profile *entity.Profile, err error) {
	start := time.Now()
	root = entity.NormalizeAddress(string(root))
	defer func() {
		if s.observer != nil {
			s.observer.ObserveBuild(root, time.Since(start), err)
		}
	}()

	if reader == nil {
		return nil, service.ErrMissingChainReader
	}
	if root.IsZero() {
		return nil, service.ErrMissingRoot
	}

	if s.cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Deadline)
		defer cancel()
	}

	engine := service.NewTraversalEngine(reader, s.tokens, s.logger).WithEdgeInjector(s.injector)

	var traversal *service.TraversalResult
	var metrics entity.RootMetrics

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		result, err := engine.Traverse(gctx, root, s.cfg)
		if err != nil {
			return err
		}
		traversal = result
		return nil
	})
	g.Go(func() error {
		metrics = s.readRootMetrics(gctx, root, reader)
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("Failed to build referral profile",
			zap.String("root", root.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to build profile for %s: %w", root, err)
	}

	profile = s.assemble(root, traversal, metrics)

	s.logger.Info("Built referral profile",
		zap.String("root", root.String()),
		zap.Int("levels", len(profile.Levels)),
		zap.Int("level1_count", profile.Level1Count),
		zap.Int("total_nodes", profile.TotalNodes),
		zap.String("network_total_staked", profile.NetworkTotalStaked.String()),
		zap.Bool("truncated", profile.Truncated),
		zap.Duration("elapsed", time.Since(start)))

	return profile, nil
}

// Generate builds a profile and runs the post-commit hooks on success.
// Failures come back as a fail-closed profile instead of an error.
func (s *ProfileApplicationService) Generate(ctx context.Context, root entity.Address, reader service.ChainReader) *entity.Profile {
	profile, err := s.BuildProfile(ctx, root, reader)
	if err != nil {
		return entity.NewFailedProfile(entity.NormalizeAddress(string(root)), err, s.now())
	}
	runProfileHooks(ctx, s.hooks, profile, s.logger)
	return profile
}

// NewTracker creates a lifecycle tracker for one viewer that shares this
// service's configuration and hooks
func (s *ProfileApplicationService) NewTracker(ctx context.Context) *ProfileTracker {
	return NewProfileTracker(ctx, s, s.hooks, s.now, s.logger)
}

// readRootMetrics reads the root's own figures in one batch. Failed reads are zero.
func (s *ProfileApplicationService) readRootMetrics(ctx context.Context, root entity.Address, reader service.ChainReader) entity.RootMetrics {
	calls := []service.ReadCall{
		service.TotalStakedCall(root),
		service.StakeCountCall(root),
		service.ReferrerOfCall(root),
	}
	for _, category := range entity.TokenCategories {
		calls = append(calls, service.ReferralEarningsCall(root, s.tokens.Address(category)))
	}

	metrics := entity.RootMetrics{
		TotalStaked: new(big.Int),
		Claimable:   entity.NewClaimableBalances(),
	}

	results := reader.BatchRead(ctx, calls)
	if len(results) != len(calls) {
		s.logger.Warn("Root metrics batch misaligned, using zero",
			zap.String("root", root.String()),
			zap.Int("calls", len(calls)),
			zap.Int("results", len(results)))
		return metrics
	}

	failed := 0
	for _, result := range results {
		if result.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		s.logger.Debug("Some root metric reads failed, using zero",
			zap.String("root", root.String()),
			zap.Int("failed", failed))
	}

	metrics.TotalStaked = results[0].AmountOrZero()
	if count := results[1].AmountOrZero(); count.IsUint64() {
		metrics.StakeCount = count.Uint64()
	}
	if results[2].Err == nil {
		referrer := entity.NormalizeAddress(string(results[2].Address))
		if !referrer.IsZero() {
			metrics.Referrer = &referrer
		}
	}
	for i, category := range entity.TokenCategories {
		metrics.Claimable.Set(category, results[3+i].AmountOrZero())
	}

	return metrics
}

// assemble folds the traversal levels and root metrics into a fresh profile
func (s *ProfileApplicationService) assemble(root entity.Address, traversal *service.TraversalResult, metrics entity.RootMetrics) *entity.Profile {
	profile := &entity.Profile{
		Root:                  root,
		Level1Rows:            []entity.NodeAggregate{},
		Levels:                traversal.Levels,
		RootTotalStaked:       metrics.TotalStaked,
		RootStakeCount:        metrics.StakeCount,
		RootReferrer:          metrics.Referrer,
		RootClaimableBalances: metrics.Claimable,
		TotalNodes:            traversal.TotalNodes,
		NetworkTotalStaked:    new(big.Int),
		Truncated:             traversal.Truncated,
		GeneratedAt:           s.now(),
	}
	if profile.Levels == nil {
		profile.Levels = []entity.LevelInfo{}
	}

	for _, level := range profile.Levels {
		profile.NetworkTotalStaked.Add(profile.NetworkTotalStaked, level.TotalStaked)
	}
	if level1, ok := profile.Level(1); ok {
		profile.Level1Rows = level1.Rows
		profile.Level1Count = len(level1.Rows)
	}

	return profile
}

// runProfileHooks hands a committed profile to every hook; failures are only logged
func runProfileHooks(ctx context.Context, hooks []service.ProfileHook, profile *entity.Profile, log *logger.Logger) {
	for _, hook := range hooks {
		if err := hook.HandleProfile(ctx, profile); err != nil {
			log.Warn("Profile hook failed",
				zap.String("hook", hook.Name()),
				zap.String("root", profile.Root.String()),
				zap.Error(err))
		}
	}
}
