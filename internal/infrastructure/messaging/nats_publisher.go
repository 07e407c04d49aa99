package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"referral-network-indexer/internal/domain/entity"
	"referral-network-indexer/internal/infrastructure/config"
	"referral-network-indexer/internal/infrastructure/logger"

	"go.uber.org/zap"
)

// ErrNotConnected is returned when publishing without a NATS connection
var ErrNotConnected = errors.New("nats is not connected")

// Publisher sends raw payloads to a subject
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes committed profiles on <prefix>.profiles
type NATSPublisher struct {
	publisher Publisher
	config    *config.NATSConfig
	logger    *logger.Logger
}

// NewNATSPublisher creates a profile publisher over an existing connection
func NewNATSPublisher(publisher Publisher, cfg *config.NATSConfig, logger *logger.Logger) *NATSPublisher {
	return &NATSPublisher{
		publisher: publisher,
		config:    cfg,
		logger:    logger.WithComponent("nats-publisher"),
	}
}

// ProfileSubject is the subject completed profiles are published on
func (p *NATSPublisher) ProfileSubject() string {
	return fmt.Sprintf("%s.profiles", p.config.SubjectPrefix)
}

// PublishProfile publishes one profile as JSON
func (p *NATSPublisher) PublishProfile(ctx context.Context, profile *entity.Profile) error {
	if !p.config.Enabled {
		return nil
	}

	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	if err := p.publisher.Publish(p.ProfileSubject(), data); err != nil {
		return fmt.Errorf("failed to publish profile: %w", err)
	}

	p.logger.Debug("Published profile",
		zap.String("subject", p.ProfileSubject()),
		zap.String("root", profile.Root.String()),
		zap.Int("bytes", len(data)))
	return nil
}

// Name implements service.ProfileHook
func (p *NATSPublisher) Name() string {
	return "nats-publisher"
}

// HandleProfile implements service.ProfileHook
func (p *NATSPublisher) HandleProfile(ctx context.Context, profile *entity.Profile) error {
	return p.PublishProfile(ctx, profile)
}
