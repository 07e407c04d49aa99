package config

import (
	"fmt"
	"strings"
	"time"

	"referral-network-indexer/internal/domain/entity"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Traversal TraversalConfig `mapstructure:"traversal"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Neo4J     Neo4JConfig     `mapstructure:"neo4j"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// AppConfig represents application-specific configuration
type AppConfig struct {
	Env            string        `mapstructure:"env"`
	LogLevel       string        `mapstructure:"log_level"`
	HTTPPort       int           `mapstructure:"http_port"`
	WorkerPoolSize int           `mapstructure:"worker_pool_size"`
	MaxSessions    int           `mapstructure:"max_sessions"`
	SessionIdleTTL time.Duration `mapstructure:"session_idle_ttl"`
}

// ChainConfig represents the staking contract and the RPC endpoint serving it
type ChainConfig struct {
	RPCURL          string       `mapstructure:"rpc_url"`
	ContractAddress string       `mapstructure:"contract_address"`
	FromBlock       uint64       `mapstructure:"from_block"`
	Tokens          TokensConfig `mapstructure:"tokens"`
	// TestReferrer and TestReferee inject one synthetic edge in verification environments
	TestReferrer string `mapstructure:"test_referrer"`
	TestReferee  string `mapstructure:"test_referee"`
}

// TokensConfig holds the token contract of each stake category
type TokensConfig struct {
	YY string `mapstructure:"yy"`
	SY string `mapstructure:"sy"`
	PY string `mapstructure:"py"`
}

// TraversalConfig represents the bounds of one referral network walk
type TraversalConfig struct {
	MaxLevel           int           `mapstructure:"max_level"`
	MaxTotalNodes      int           `mapstructure:"max_total_nodes"`
	DataSourceMode     string        `mapstructure:"data_source_mode"`
	SlotsPerStake      int           `mapstructure:"slots_per_stake"`
	ResolveConcurrency int           `mapstructure:"resolve_concurrency"`
	BatchSize          int           `mapstructure:"batch_size"`
	Deadline           time.Duration `mapstructure:"deadline"`
}

// NATSConfig represents NATS configuration
type NATSConfig struct {
	URL                string        `mapstructure:"url"`
	SubjectPrefix      string        `mapstructure:"subject_prefix"`
	QueueGroup         string        `mapstructure:"queue_group"`
	ConnectTimeout     time.Duration `mapstructure:"connect_timeout"`
	ReconnectAttempts  int           `mapstructure:"reconnect_attempts"`
	ReconnectDelay     time.Duration `mapstructure:"reconnect_delay"`
	MaxPendingMessages int           `mapstructure:"max_pending_messages"`
	Enabled            bool          `mapstructure:"enabled"`
}

// Neo4JConfig represents Neo4J configuration
type Neo4JConfig struct {
	URI                          string        `mapstructure:"uri"`
	Username                     string        `mapstructure:"username"`
	Password                     string        `mapstructure:"password"`
	Database                     string        `mapstructure:"database"`
	ConnectTimeout               time.Duration `mapstructure:"connect_timeout"`
	MaxConnectionPoolSize        int           `mapstructure:"max_connection_pool_size"`
	ConnectionAcquisitionTimeout time.Duration `mapstructure:"connection_acquisition_timeout"`
	Enabled                      bool          `mapstructure:"enabled"`
}

// StorageConfig represents the local profile cache
type StorageConfig struct {
	Path    string `mapstructure:"path"`
	Enabled bool   `mapstructure:"enabled"`
}

// MetricsConfig represents metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load loads configuration from environment variables and files
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/referral-network-indexer")

	// Environment variables
	v.AutomaticEnv()

	// Map environment variables to nested config keys
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Default values
	setDefaults(v)

	// Read config file if exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.env", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.http_port", 8080)
	v.SetDefault("app.worker_pool_size", 10)
	v.SetDefault("app.max_sessions", 1000)
	v.SetDefault("app.session_idle_ttl", "10m")

	// Chain defaults
	v.SetDefault("chain.rpc_url", "")
	v.SetDefault("chain.contract_address", "")
	v.SetDefault("chain.from_block", 0)
	v.SetDefault("chain.tokens.yy", "")
	v.SetDefault("chain.tokens.sy", "")
	v.SetDefault("chain.tokens.py", "")
	v.SetDefault("chain.test_referrer", "")
	v.SetDefault("chain.test_referee", "")

	// Traversal defaults
	v.SetDefault("traversal.max_level", entity.DefaultMaxLevel)
	v.SetDefault("traversal.max_total_nodes", entity.DefaultMaxTotalNodes)
	v.SetDefault("traversal.data_source_mode", string(entity.DataSourceAuto))
	v.SetDefault("traversal.slots_per_stake", entity.DefaultSlotsPerStake)
	v.SetDefault("traversal.resolve_concurrency", entity.DefaultResolveConcurrency)
	v.SetDefault("traversal.batch_size", entity.DefaultBatchSize)
	v.SetDefault("traversal.deadline", entity.DefaultTraversalDeadline.String())

	// NATS defaults
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject_prefix", "referrals")
	v.SetDefault("nats.queue_group", "referral-network-indexer")
	v.SetDefault("nats.connect_timeout", "10s")
	v.SetDefault("nats.reconnect_attempts", 5)
	v.SetDefault("nats.reconnect_delay", "2s")
	v.SetDefault("nats.max_pending_messages", 10000)
	v.SetDefault("nats.enabled", true)

	// Neo4J defaults
	v.SetDefault("neo4j.uri", "neo4j://localhost:7687")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.password", "password")
	v.SetDefault("neo4j.database", "neo4j")
	v.SetDefault("neo4j.connect_timeout", "10s")
	v.SetDefault("neo4j.max_connection_pool_size", 50)
	v.SetDefault("neo4j.connection_acquisition_timeout", "60s")
	v.SetDefault("neo4j.enabled", true)

	// Storage defaults
	v.SetDefault("storage.path", "./data/profiles")
	v.SetDefault("storage.enabled", true)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Bind env for the endpoints most often overridden
	v.BindEnv("nats.url", "NATS_URL")
	v.BindEnv("chain.rpc_url", "RPC_URL")
}

// TraversalConfig converts the traversal section into domain bounds
func (c *Config) TraversalConfig() (entity.TraversalConfig, error) {
	mode, err := entity.ParseDataSourceMode(c.Traversal.DataSourceMode)
	if err != nil {
		return entity.TraversalConfig{}, fmt.Errorf("failed to parse traversal config: %w", err)
	}

	cfg := entity.TraversalConfig{
		MaxLevel:           c.Traversal.MaxLevel,
		MaxTotalNodes:      c.Traversal.MaxTotalNodes,
		DataSourceMode:     mode,
		FromBlock:          c.Chain.FromBlock,
		SlotsPerStake:      c.Traversal.SlotsPerStake,
		ResolveConcurrency: c.Traversal.ResolveConcurrency,
		BatchSize:          c.Traversal.BatchSize,
		Deadline:           c.Traversal.Deadline,
	}
	if err := cfg.Validate(); err != nil {
		return entity.TraversalConfig{}, err
	}
	return cfg, nil
}

// ValidateApp checks the worker pool and session bounds
func (c *Config) ValidateApp() error {
	if c.App.WorkerPoolSize < 1 {
		return fmt.Errorf("app.worker_pool_size must be at least 1, got %d", c.App.WorkerPoolSize)
	}
	if c.App.MaxSessions < 0 {
		return fmt.Errorf("app.max_sessions must not be negative, got %d", c.App.MaxSessions)
	}
	if c.App.SessionIdleTTL < 0 {
		return fmt.Errorf("app.session_idle_ttl must not be negative, got %s", c.App.SessionIdleTTL)
	}
	return nil
}

// TokenSet converts the configured token addresses into a domain token set
func (c *Config) TokenSet() entity.TokenSet {
	return entity.TokenSet{
		YY: entity.NormalizeAddress(c.Chain.Tokens.YY),
		SY: entity.NormalizeAddress(c.Chain.Tokens.SY),
		PY: entity.NormalizeAddress(c.Chain.Tokens.PY),
	}
}
