package service

import (
	"context"
	"errors"
	"fmt"

	"referral-network-indexer/internal/domain/entity"
	"referral-network-indexer/internal/infrastructure/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrMissingRoot is returned when the traversal has no usable root address
	ErrMissingRoot = errors.New("root address is missing")
	// ErrMissingChainReader is returned when no chain reader is available
	ErrMissingChainReader = errors.New("chain reader is missing")
)

// TraversalResult is the level-by-level output of one walk
type TraversalResult struct {
	Levels     []entity.LevelInfo `json:"levels"`
	TotalNodes int                `json:"total_nodes"`
	// Truncated is set when the node budget dropped at least one unvisited referee
	Truncated bool `json:"truncated"`
}

// TraversalEngine walks the referral forest breadth-first from a root
type TraversalEngine struct {
	reader     ChainReader
	resolver   *RefereeResolver
	aggregator *NodeAggregator
	logger     *logger.Logger
}

// NewTraversalEngine creates an engine whose resolver and aggregator share one chain reader
func NewTraversalEngine(reader ChainReader, tokens entity.TokenSet, logger *logger.Logger) *TraversalEngine {
	return &TraversalEngine{
		reader:     reader,
		resolver:   NewRefereeResolver(reader, logger),
		aggregator: NewNodeAggregator(reader, tokens, logger),
		logger:     logger.WithComponent("traversal-engine"),
	}
}

// WithEdgeInjector installs a synthetic edge strategy on the resolver
func (e *TraversalEngine) WithEdgeInjector(injector EdgeInjector) *TraversalEngine {
	if injector != nil {
		e.resolver.WithEdgeInjector(injector)
	}
	return e
}

// Traverse walks levels 1..cfg.MaxLevel. Every address appears in at most one
// level, the root never appears, and at most cfg.MaxTotalNodes rows are emitted.
// Row order within a level follows resolver emission order.
func (e *TraversalEngine) Traverse(ctx context.Context, root entity.Address, cfg entity.TraversalConfig) (*TraversalResult, error) {
	if e.reader == nil {
		return nil, ErrMissingChainReader
	}
	root = entity.NormalizeAddress(string(root))
	if root.IsZero() {
		return nil, ErrMissingRoot
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := e.logger.WithRoot(root.String())
	result := &TraversalResult{Levels: []entity.LevelInfo{}}
	visited := map[entity.Address]struct{}{root: {}}

	frontier := []entity.Address{root}
	for level := 1; level <= cfg.MaxLevel && len(frontier) > 0; level++ {
		remaining := cfg.MaxTotalNodes - result.TotalNodes
		if remaining <= 0 {
			pending, err := e.pendingReferees(ctx, frontier, root, visited, cfg)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve level %d: %w", level, err)
			}
			result.Truncated = pending > 0
			log.Info("Node budget exhausted, stopping walk",
				zap.Int("level", level),
				zap.Int("pending_frontier", len(frontier)),
				zap.Int("dropped", pending),
				zap.Int("max_total_nodes", cfg.MaxTotalNodes))
			break
		}

		candidates, err := e.resolveFrontier(ctx, frontier, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve level %d: %w", level, err)
		}

		accepted, dropped := admit(candidates, root, visited, remaining)
		if dropped > 0 {
			result.Truncated = true
			log.Warn("Node budget reached mid-level, dropping excess referees",
				zap.Int("level", level),
				zap.Int("accepted", len(accepted)),
				zap.Int("dropped", dropped))
		}
		if len(accepted) == 0 {
			log.Debug("No new referees, walk complete", zap.Int("level", level))
			break
		}

		addresses := make([]entity.Address, len(accepted))
		for i, c := range accepted {
			addresses[i] = c.address
		}
		rows := e.aggregator.AggregateLevel(ctx, addresses, level, cfg)
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("failed to aggregate level %d: %w", level, err)
		}
		for i := range rows {
			rows[i].Referrer = accepted[i].referrer
		}

		result.Levels = append(result.Levels, entity.NewLevelInfo(level, rows))
		result.TotalNodes += len(rows)
		frontier = addresses

		log.Debug("Level traversed",
			zap.Int("level", level),
			zap.Int("candidates", len(candidates)),
			zap.Int("accepted", len(accepted)),
			zap.Int("total_nodes", result.TotalNodes))
	}

	log.Info("Referral network traversed",
		zap.Int("levels", len(result.Levels)),
		zap.Int("total_nodes", result.TotalNodes),
		zap.Bool("truncated", result.Truncated))

	return result, nil
}

// candidate is a referee together with the frontier address that reported it
type candidate struct {
	referrer entity.Address
	address  entity.Address
}

// resolveFrontier resolves every frontier address concurrently and flattens
// the referees in frontier order
func (e *TraversalEngine) resolveFrontier(ctx context.Context, frontier []entity.Address, cfg entity.TraversalConfig) ([]candidate, error) {
	perAddress := make([][]entity.Address, len(frontier))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.ResolveConcurrency)
	for i, addr := range frontier {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perAddress[i] = e.resolver.Resolve(gctx, addr, cfg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var candidates []candidate
	for i, referees := range perAddress {
		for _, referee := range referees {
			candidates = append(candidates, candidate{referrer: frontier[i], address: referee})
		}
	}
	return candidates, nil
}

// pendingReferees counts the unvisited referees of frontier that an exhausted
// budget keeps out of the result
func (e *TraversalEngine) pendingReferees(ctx context.Context, frontier []entity.Address, root entity.Address, visited map[entity.Address]struct{}, cfg entity.TraversalConfig) (int, error) {
	candidates, err := e.resolveFrontier(ctx, frontier, cfg)
	if err != nil {
		return 0, err
	}
	_, dropped := admit(candidates, root, visited, 0)
	return dropped, nil
}

// admit filters candidates (zero, root, visited), dedupes them, truncates to
// budget, and marks the accepted ones visited
func admit(candidates []candidate, root entity.Address, visited map[entity.Address]struct{}, budget int) ([]candidate, int) {
	accepted := make([]candidate, 0, len(candidates))
	seen := make(map[entity.Address]struct{}, len(candidates))
	dropped := 0

	for _, c := range candidates {
		addr := entity.NormalizeAddress(string(c.address))
		if addr.IsZero() || addr == root {
			continue
		}
		if _, ok := visited[addr]; ok {
			continue
		}
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}

		if len(accepted) >= budget {
			dropped++
			continue
		}
		accepted = append(accepted, candidate{referrer: c.referrer, address: addr})
	}

	for _, c := range accepted {
		visited[c.address] = struct{}{}
	}
	return accepted, dropped
}
