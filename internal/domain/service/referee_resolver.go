package service

import (
	"context"

	"referral-network-indexer/internal/domain/entity"
	"referral-network-indexer/internal/infrastructure/logger"

	"go.uber.org/zap"
)

// EdgeInjector adds synthetic referral edges on top of what the chain reports.
// Only verification harnesses install one.
type EdgeInjector interface {
	Inject(referrer entity.Address, referees []entity.Address) []entity.Address
}

// StaticEdgeInjector injects a single referrer -> referee edge
type StaticEdgeInjector struct {
	Referrer entity.Address
	Referee  entity.Address
}

// NewStaticEdgeInjector returns nil unless both ends are usable addresses
func NewStaticEdgeInjector(referrer, referee string) *StaticEdgeInjector {
	r, e := entity.NormalizeAddress(referrer), entity.NormalizeAddress(referee)
	if r.IsZero() || e.IsZero() || r == e {
		return nil
	}
	return &StaticEdgeInjector{Referrer: r, Referee: e}
}

// Inject appends the configured referee when resolving the configured referrer
func (s *StaticEdgeInjector) Inject(referrer entity.Address, referees []entity.Address) []entity.Address {
	if s == nil || referrer != s.Referrer {
		return referees
	}
	for _, r := range referees {
		if r == s.Referee {
			return referees
		}
	}
	return append(referees, s.Referee)
}

// RefereeResolver determines the addresses a given address directly referred
type RefereeResolver struct {
	reader   ChainReader
	injector EdgeInjector
	logger   *logger.Logger
}

// NewRefereeResolver creates a resolver over one chain reader
func NewRefereeResolver(reader ChainReader, logger *logger.Logger) *RefereeResolver {
	return &RefereeResolver{
		reader: reader,
		logger: logger.WithComponent("referee-resolver"),
	}
}

// WithEdgeInjector installs a synthetic edge strategy
func (r *RefereeResolver) WithEdgeInjector(injector EdgeInjector) *RefereeResolver {
	r.injector = injector
	return r
}

// Resolve returns the direct referees of address using the configured data source.
// It never fails: any read failure yields an empty list, so "no data" and
// "no referees" look the same to the caller. Results are normalized but not
// deduplicated or filtered.
func (r *RefereeResolver) Resolve(ctx context.Context, address entity.Address, cfg entity.TraversalConfig) []entity.Address {
	address = entity.NormalizeAddress(string(address))

	var referees []entity.Address
	switch cfg.DataSourceMode {
	case entity.DataSourcePreferList:
		referees = r.fromList(ctx, address)
	case entity.DataSourcePreferEvents:
		referees = r.fromEvents(ctx, address, cfg.FromBlock)
	default:
		referees = r.fromList(ctx, address)
		if len(referees) == 0 {
			referees = r.fromEvents(ctx, address, cfg.FromBlock)
		}
	}

	if r.injector != nil {
		referees = r.injector.Inject(address, referees)
	}

	return referees
}

// fromList reads the contract's authoritative per-address referee list
func (r *RefereeResolver) fromList(ctx context.Context, address entity.Address) []entity.Address {
	results := r.reader.BatchRead(ctx, []ReadCall{ReferredUsersCall(address)})
	if len(results) != 1 {
		r.logger.Warn("Referee list read returned unexpected result count",
			zap.String("address", address.String()),
			zap.Int("results", len(results)))
		return []entity.Address{}
	}
	if err := results[0].Err; err != nil {
		r.logger.Debug("Failed to read referee list",
			zap.String("address", address.String()),
			zap.Error(err))
		return []entity.Address{}
	}

	referees := make([]entity.Address, 0, len(results[0].Addresses))
	for _, referee := range results[0].Addresses {
		referees = append(referees, entity.NormalizeAddress(string(referee)))
	}
	return referees
}

// fromEvents scans ReferralAssigned records filtered by referrer
func (r *RefereeResolver) fromEvents(ctx context.Context, address entity.Address, fromBlock uint64) []entity.Address {
	edges, err := r.reader.QueryReferralLogs(ctx, address, fromBlock)
	if err != nil {
		r.logger.Debug("Failed to query referral logs",
			zap.String("address", address.String()),
			zap.Uint64("from_block", fromBlock),
			zap.Error(err))
		return []entity.Address{}
	}

	referees := make([]entity.Address, 0, len(edges))
	for _, edge := range edges {
		referees = append(referees, entity.NormalizeAddress(string(edge.Referee)))
	}
	return referees
}
