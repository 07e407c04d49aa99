package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	app_service "referral-network-indexer/internal/application/service"
	"referral-network-indexer/internal/domain/entity"
	domain_service "referral-network-indexer/internal/domain/service"
	"referral-network-indexer/internal/infrastructure/logger"

	"github.com/stretchr/testify/require"
)

var (
	tokenYY = addr(0xa1)
	tokenSY = addr(0xa2)
	tokenPY = addr(0xa3)

	testTokens = entity.TokenSet{
		YY: entity.Address(tokenYY),
		SY: entity.Address(tokenSY),
		PY: entity.Address(tokenPY),
	}

	fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
)

func addr(n int) string {
	return fmt.Sprintf("0x%040x", n)
}

func testConfig() entity.TraversalConfig {
	cfg := entity.DefaultTraversalConfig()
	cfg.ResolveConcurrency = 4
	cfg.Deadline = 5 * time.Second
	return cfg
}

func newProfileService() *app_service.ProfileApplicationService {
	return app_service.NewProfileApplicationService(testConfig(), testTokens, logger.NewNopLogger()).
		WithClock(func() time.Time { return fixedNow })
}

// gatedReader blocks every read until the gate is opened, ignoring cancellation
type gatedReader struct {
	domain_service.ChainReader
	gate chan struct{}
}

func newGatedReader(inner domain_service.ChainReader) *gatedReader {
	return &gatedReader{ChainReader: inner, gate: make(chan struct{})}
}

func (g *gatedReader) open() {
	close(g.gate)
}

func (g *gatedReader) BatchRead(ctx context.Context, calls []domain_service.ReadCall) []domain_service.ReadResult {
	<-g.gate
	return g.ChainReader.BatchRead(ctx, calls)
}

func (g *gatedReader) QueryReferralLogs(ctx context.Context, referrer entity.Address, fromBlock uint64) ([]entity.ReferralEdge, error) {
	<-g.gate
	return g.ChainReader.QueryReferralLogs(ctx, referrer, fromBlock)
}

// concurrencyReader records the peak number of roots with reads in flight
type concurrencyReader struct {
	domain_service.ChainReader

	mu     sync.Mutex
	active map[entity.Address]int
	peak   int
}

func newConcurrencyReader(inner domain_service.ChainReader) *concurrencyReader {
	return &concurrencyReader{ChainReader: inner, active: make(map[entity.Address]int)}
}

func (c *concurrencyReader) enter(root entity.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[root]++
	if len(c.active) > c.peak {
		c.peak = len(c.active)
	}
}

func (c *concurrencyReader) leave(root entity.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active[root]--
	if c.active[root] == 0 {
		delete(c.active, root)
	}
}

func (c *concurrencyReader) Peak() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peak
}

func (c *concurrencyReader) BatchRead(ctx context.Context, calls []domain_service.ReadCall) []domain_service.ReadResult {
	if len(calls) > 0 {
		c.enter(calls[0].User)
		defer c.leave(calls[0].User)
		time.Sleep(2 * time.Millisecond)
	}
	return c.ChainReader.BatchRead(ctx, calls)
}

func (c *concurrencyReader) QueryReferralLogs(ctx context.Context, referrer entity.Address, fromBlock uint64) ([]entity.ReferralEdge, error) {
	c.enter(referrer)
	defer c.leave(referrer)
	time.Sleep(2 * time.Millisecond)
	return c.ChainReader.QueryReferralLogs(ctx, referrer, fromBlock)
}

// stallingReader blocks until the caller's context ends
type stallingReader struct{}

func (stallingReader) BatchRead(ctx context.Context, calls []domain_service.ReadCall) []domain_service.ReadResult {
	<-ctx.Done()
	results := make([]domain_service.ReadResult, len(calls))
	for i := range results {
		results[i].Err = ctx.Err()
	}
	return results
}

func (stallingReader) QueryReferralLogs(ctx context.Context, referrer entity.Address, fromBlock uint64) ([]entity.ReferralEdge, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type recordingHook struct {
	mu    sync.Mutex
	roots []entity.Address
	err   error
}

func (h *recordingHook) Name() string {
	return "recording"
}

func (h *recordingHook) HandleProfile(ctx context.Context, profile *entity.Profile) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.roots = append(h.roots, profile.Root)
	return h.err
}

func (h *recordingHook) Roots() []entity.Address {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]entity.Address{}, h.roots...)
}

type recordingObserver struct {
	mu     sync.Mutex
	builds int
	errs   []error
}

func (o *recordingObserver) ObserveBuild(root entity.Address, elapsed time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.builds++
	if err != nil {
		o.errs = append(o.errs, err)
	}
}

func waitTask(t *testing.T, task *app_service.Task) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, task.Wait(ctx))
}
