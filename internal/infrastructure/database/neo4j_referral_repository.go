package database

import (
	"context"
	"fmt"
	"math/big"

	"referral-network-indexer/internal/domain/entity"
	"referral-network-indexer/internal/domain/repository"
	"referral-network-indexer/internal/infrastructure/logger"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

var _ repository.ReferralRepository = (*Neo4JReferralRepository)(nil)

// Neo4JReferralRepository implements ReferralRepository interface
type Neo4JReferralRepository struct {
	client *Neo4JClient
	logger *logger.Logger
}

// NewNeo4JReferralRepository creates a new Neo4J referral repository
func NewNeo4JReferralRepository(client *Neo4JClient, logger *logger.Logger) *Neo4JReferralRepository {
	return &Neo4JReferralRepository{
		client: client,
		logger: logger.WithComponent("neo4j-referral-repo"),
	}
}

// snapshotParams flattens a profile into the root account plus one entry per row
func snapshotParams(profile *entity.Profile) map[string]interface{} {
	var accounts []map[string]interface{}
	for _, level := range profile.Levels {
		for _, row := range level.Rows {
			referrer := row.Referrer
			if referrer.IsZero() {
				referrer = profile.Root
			}
			account := map[string]interface{}{
				"address":      row.Address.String(),
				"referrer":     referrer.String(),
				"depth":        int64(row.Depth),
				"total_staked": amountString(row.TotalStaked),
				"stake_count":  int64(row.StakeCount),
			}
			if row.TokenSplit != nil {
				account["yy"] = amountString(row.TokenSplit.YY)
				account["sy"] = amountString(row.TokenSplit.SY)
				account["py"] = amountString(row.TokenSplit.PY)
			}
			accounts = append(accounts, account)
		}
	}

	return map[string]interface{}{
		"root":                 profile.Root.String(),
		"root_total_staked":    amountString(profile.RootTotalStaked),
		"root_stake_count":     int64(profile.RootStakeCount),
		"network_total_staked": amountString(profile.NetworkTotalStaked),
		"total_nodes":          int64(profile.TotalNodes),
		"indexed_at":           profile.GeneratedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
		"accounts":             accounts,
	}
}

// SaveProfileSnapshot persists the accounts and referral edges of a profile
func (r *Neo4JReferralRepository) SaveProfileSnapshot(ctx context.Context, profile *entity.Profile) error {
	session, err := r.client.NewSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close(ctx)

	rootQuery := `
		MERGE (root:Account {address: $root})
		SET root.total_staked = $root_total_staked,
			root.stake_count = $root_stake_count,
			root.network_total_staked = $network_total_staked,
			root.network_size = $total_nodes,
			root.last_indexed = datetime($indexed_at)
	`

	accountsQuery := `
		UNWIND $accounts AS account
		MERGE (referrer:Account {address: account.referrer})
		MERGE (referee:Account {address: account.address})
		SET referee.total_staked = account.total_staked,
			referee.stake_count = account.stake_count,
			referee.last_indexed = datetime($indexed_at)
		FOREACH (_ IN CASE WHEN account.yy IS NULL THEN [] ELSE [1] END |
			SET referee.yy_staked = account.yy,
				referee.sy_staked = account.sy,
				referee.py_staked = account.py)
		MERGE (referrer)-[rel:REFERRED]->(referee)
		SET rel.depth = account.depth,
			rel.root = $root,
			rel.last_seen = datetime($indexed_at)
	`

	params := snapshotParams(profile)
	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, rootQuery, params); err != nil {
			return nil, err
		}
		if accounts, _ := params["accounts"].([]map[string]interface{}); len(accounts) == 0 {
			return nil, nil
		}
		return tx.Run(ctx, accountsQuery, params)
	})
	if err != nil {
		return fmt.Errorf("failed to save referral snapshot: %w", err)
	}

	r.logger.Debug("Saved referral snapshot",
		zap.String("root", profile.Root.String()),
		zap.Int("total_nodes", profile.TotalNodes))
	return nil
}

// GetDirectReferees retrieves the referees recorded for referrer by earlier snapshots
func (r *Neo4JReferralRepository) GetDirectReferees(ctx context.Context, referrer entity.Address) ([]entity.Address, error) {
	session, err := r.client.NewSession(ctx)
	if err != nil {
		return nil, err
	}
	defer session.Close(ctx)

	query := `
		MATCH (:Account {address: $referrer})-[:REFERRED]->(referee:Account)
		RETURN referee.address
		ORDER BY referee.address
	`

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, query, map[string]interface{}{"referrer": referrer.String()})
		if err != nil {
			return nil, err
		}
		var referees []entity.Address
		for records.Next(ctx) {
			if addr, ok := records.Record().Values[0].(string); ok {
				referees = append(referees, entity.NormalizeAddress(addr))
			}
		}
		return referees, records.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get direct referees: %w", err)
	}

	referees, _ := result.([]entity.Address)
	return referees, nil
}

// GetNetworkSize counts accounts reachable from root within maxHops
func (r *Neo4JReferralRepository) GetNetworkSize(ctx context.Context, root entity.Address, maxHops int) (int, error) {
	if maxHops < 1 {
		return 0, nil
	}

	session, err := r.client.NewSession(ctx)
	if err != nil {
		return 0, err
	}
	defer session.Close(ctx)

	// Variable-length bounds cannot be parameters
	query := fmt.Sprintf(`
		MATCH (:Account {address: $root})-[:REFERRED*1..%d]->(referee:Account)
		WHERE referee.address <> $root
		RETURN count(DISTINCT referee)
	`, maxHops)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		records, err := tx.Run(ctx, query, map[string]interface{}{"root": root.String()})
		if err != nil {
			return nil, err
		}
		record, err := records.Single(ctx)
		if err != nil {
			return nil, err
		}
		return record.Values[0], nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get network size: %w", err)
	}

	count, _ := result.(int64)
	return int(count), nil
}

// Name implements service.ProfileHook
func (r *Neo4JReferralRepository) Name() string {
	return "neo4j-snapshot"
}

// HandleProfile implements service.ProfileHook
func (r *Neo4JReferralRepository) HandleProfile(ctx context.Context, profile *entity.Profile) error {
	return r.SaveProfileSnapshot(ctx, profile)
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
