package entity

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DataSourceMode selects where the resolver looks for a referrer's referees
type DataSourceMode string

const (
	DataSourcePreferList   DataSourceMode = "prefer-list"
	DataSourcePreferEvents DataSourceMode = "prefer-events"
	DataSourceAuto         DataSourceMode = "auto"
)

// ParseDataSourceMode parses a mode name, defaulting to auto when empty
func ParseDataSourceMode(raw string) (DataSourceMode, error) {
	switch DataSourceMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", DataSourceAuto:
		return DataSourceAuto, nil
	case DataSourcePreferList:
		return DataSourcePreferList, nil
	case DataSourcePreferEvents:
		return DataSourcePreferEvents, nil
	}
	return "", fmt.Errorf("unknown data source mode %q", raw)
}

const (
	DefaultMaxLevel           = 15
	DefaultMaxTotalNodes      = 2000
	DefaultSlotsPerStake      = 3
	DefaultResolveConcurrency = 16
	DefaultBatchSize          = 200
	DefaultTraversalDeadline  = 60 * time.Second
)

// ErrInvalidConfig is returned for traversal configs that cannot be walked
var ErrInvalidConfig = errors.New("invalid traversal config")

// TraversalConfig bounds one traversal. It is passed into every call.
type TraversalConfig struct {
	MaxLevel           int            `json:"max_level"`
	MaxTotalNodes      int            `json:"max_total_nodes"`
	DataSourceMode     DataSourceMode `json:"data_source_mode"`
	FromBlock          uint64         `json:"from_block"`
	SlotsPerStake      int            `json:"slots_per_stake"`
	ResolveConcurrency int            `json:"resolve_concurrency"`
	BatchSize          int            `json:"batch_size"`
	Deadline           time.Duration  `json:"deadline"`
}

// DefaultTraversalConfig returns the production bounds
func DefaultTraversalConfig() TraversalConfig {
	return TraversalConfig{
		MaxLevel:           DefaultMaxLevel,
		MaxTotalNodes:      DefaultMaxTotalNodes,
		DataSourceMode:     DataSourceAuto,
		SlotsPerStake:      DefaultSlotsPerStake,
		ResolveConcurrency: DefaultResolveConcurrency,
		BatchSize:          DefaultBatchSize,
		Deadline:           DefaultTraversalDeadline,
	}
}

// Validate rejects configs with non-positive bounds or unknown modes
func (c TraversalConfig) Validate() error {
	if c.MaxLevel < 1 {
		return fmt.Errorf("%w: max level must be positive, got %d", ErrInvalidConfig, c.MaxLevel)
	}
	if c.MaxTotalNodes < 1 {
		return fmt.Errorf("%w: max total nodes must be positive, got %d", ErrInvalidConfig, c.MaxTotalNodes)
	}
	if _, err := ParseDataSourceMode(string(c.DataSourceMode)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.SlotsPerStake < 0 {
		return fmt.Errorf("%w: slots per stake must not be negative", ErrInvalidConfig)
	}
	if c.ResolveConcurrency < 1 {
		return fmt.Errorf("%w: resolve concurrency must be positive", ErrInvalidConfig)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidConfig)
	}
	return nil
}
