package database

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"referral-network-indexer/internal/infrastructure/config"
	"referral-network-indexer/internal/infrastructure/logger"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// ErrNotConnected is returned by repository calls made before Connect
var ErrNotConnected = errors.New("neo4j is not connected")

// referralSchema holds the constraints and indexes of the referral graph.
// Failures are logged and skipped so an older server still starts.
var referralSchema = []struct {
	name      string
	statement string
}{
	{"account_address", "CREATE CONSTRAINT account_address IF NOT EXISTS FOR (a:Account) REQUIRE a.address IS UNIQUE"},
	{"account_last_indexed", "CREATE INDEX account_last_indexed IF NOT EXISTS FOR (a:Account) ON (a.last_indexed)"},
	{"referred_depth", "CREATE INDEX referred_depth IF NOT EXISTS FOR ()-[r:REFERRED]-() ON (r.depth)"},
	{"referred_root", "CREATE INDEX referred_root IF NOT EXISTS FOR ()-[r:REFERRED]-() ON (r.root)"},
}

// Neo4JClient owns the driver of the referral graph database
type Neo4JClient struct {
	mu     sync.RWMutex
	driver neo4j.DriverWithContext
	config *config.Neo4JConfig
	logger *logger.Logger
}

// NewNeo4JClient creates a client; nothing is dialed until Connect
func NewNeo4JClient(cfg *config.Neo4JConfig, logger *logger.Logger) *Neo4JClient {
	return &Neo4JClient{
		config: cfg,
		logger: logger.WithComponent("neo4j-client"),
	}
}

// Connect dials the server, verifies it and applies the referral schema
func (n *Neo4JClient) Connect(ctx context.Context) error {
	n.logger.Info("Connecting to Neo4J database",
		zap.String("uri", n.config.URI),
		zap.String("database", n.config.Database))

	driver, err := neo4j.NewDriverWithContext(
		n.config.URI,
		neo4j.BasicAuth(n.config.Username, n.config.Password, ""),
		func(c *neo4j.Config) {
			c.MaxConnectionPoolSize = n.config.MaxConnectionPoolSize
			c.ConnectionAcquisitionTimeout = n.config.ConnectionAcquisitionTimeout
			c.SocketConnectTimeout = n.config.ConnectTimeout
		},
	)
	if err != nil {
		return fmt.Errorf("failed to create Neo4J driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return fmt.Errorf("failed to verify Neo4J connectivity: %w", err)
	}

	n.mu.Lock()
	n.driver = driver
	n.mu.Unlock()

	applied := n.applySchema(ctx)
	n.logger.Info("Connected to Neo4J database",
		zap.Int("schema_applied", applied),
		zap.Int("schema_total", len(referralSchema)))
	return nil
}

// Close releases the driver; calling it on an unconnected client is a no-op
func (n *Neo4JClient) Close(ctx context.Context) error {
	n.mu.Lock()
	driver := n.driver
	n.driver = nil
	n.mu.Unlock()

	if driver == nil {
		return nil
	}
	n.logger.Info("Closing Neo4J connection")
	return driver.Close(ctx)
}

// Connected reports whether Connect has succeeded and Close has not run
func (n *Neo4JClient) Connected() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.driver != nil
}

// NewSession opens a session on the configured database
func (n *Neo4JClient) NewSession(ctx context.Context) (neo4j.SessionWithContext, error) {
	n.mu.RLock()
	driver := n.driver
	n.mu.RUnlock()

	if driver == nil {
		return nil, ErrNotConnected
	}
	return driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.config.Database}), nil
}

// applySchema runs every schema statement and returns how many succeeded
func (n *Neo4JClient) applySchema(ctx context.Context) int {
	session, err := n.NewSession(ctx)
	if err != nil {
		return 0
	}
	defer session.Close(ctx)

	applied := 0
	for _, item := range referralSchema {
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			return tx.Run(ctx, item.statement, nil)
		})
		if err != nil {
			n.logger.Warn("Failed to apply schema item", zap.String("name", item.name), zap.Error(err))
			continue
		}
		applied++
	}
	return applied
}
