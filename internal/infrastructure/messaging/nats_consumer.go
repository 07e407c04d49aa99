package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"referral-network-indexer/internal/domain/entity"
	"referral-network-indexer/internal/infrastructure/config"
	"referral-network-indexer/internal/infrastructure/logger"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSConsumer receives profile requests from core NATS
type NATSConsumer struct {
	mu      sync.RWMutex
	conn    *nats.Conn
	sub     *nats.Subscription
	config  *config.NATSConfig
	logger  *logger.Logger
	msgChan chan *entity.ProfileRequest
	closed  bool
}

// NewNATSConsumer creates a new NATS consumer
func NewNATSConsumer(cfg *config.NATSConfig, logger *logger.Logger) *NATSConsumer {
	pending := cfg.MaxPendingMessages
	if pending < 1 {
		pending = 1
	}
	return &NATSConsumer{
		config:  cfg,
		logger:  logger.WithComponent("nats-consumer"),
		msgChan: make(chan *entity.ProfileRequest, pending),
	}
}

// RequestSubject is the subject profile requests arrive on
func (n *NATSConsumer) RequestSubject() string {
	return fmt.Sprintf("%s.requests", n.config.SubjectPrefix)
}

// Connect connects to NATS server and subscribes to profile requests
func (n *NATSConsumer) Connect(ctx context.Context) error {
	if !n.config.Enabled {
		n.logger.Info("NATS is disabled, skipping connection")
		return nil
	}

	n.logger.Info("Connecting to NATS server", zap.String("url", n.config.URL))

	opts := []nats.Option{
		nats.Name("referral-network-indexer"),
		nats.Timeout(n.config.ConnectTimeout),
		nats.ReconnectWait(n.config.ReconnectDelay),
		nats.MaxReconnects(n.config.ReconnectAttempts),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			n.logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			n.logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			n.logger.Info("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(n.config.URL, opts...)
	if err != nil {
		n.logger.Error("Failed to connect to NATS", zap.Error(err))
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	subject := n.RequestSubject()
	sub, err := conn.QueueSubscribe(subject, n.config.QueueGroup, n.handleMessage)
	if err != nil {
		conn.Close()
		n.logger.Error("Failed to subscribe to subject", zap.Error(err))
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	n.mu.Lock()
	n.conn = conn
	n.sub = sub
	n.mu.Unlock()

	n.logger.Info("Subscribed to profile requests",
		zap.String("subject", subject),
		zap.String("queue_group", n.config.QueueGroup))

	return nil
}

// handleMessage decodes a profile request and queues it for processing
func (n *NATSConsumer) handleMessage(msg *nats.Msg) {
	var req entity.ProfileRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		n.logger.Error("Failed to unmarshal profile request", zap.Error(err))
		n.respond(msg, "ERROR: Failed to unmarshal")
		return
	}
	if err := req.Validate(); err != nil {
		n.logger.Warn("Rejected profile request", zap.Error(err))
		n.respond(msg, "ERROR: "+err.Error())
		return
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return
	}

	select {
	case n.msgChan <- &req:
		n.logger.Debug("Queued profile request",
			zap.String("session", req.Session),
			zap.String("address", req.Address.String()))
		n.respond(msg, "OK")
	default:
		n.logger.Warn("Request channel is full, dropping request",
			zap.String("session", req.Session),
			zap.String("address", req.Address.String()))
		n.respond(msg, "ERROR: busy")
	}
}

func (n *NATSConsumer) respond(msg *nats.Msg, body string) {
	if msg.Reply == "" || msg.Sub == nil {
		return
	}
	if err := msg.Respond([]byte(body)); err != nil {
		n.logger.Debug("Failed to respond to request", zap.Error(err))
	}
}

// Publish sends data on subject over the consumer's connection
func (n *NATSConsumer) Publish(subject string, data []byte) error {
	n.mu.RLock()
	conn := n.conn
	n.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Publish(subject, data)
}

// Disconnect disconnects from NATS server and closes the request channel
func (n *NATSConsumer) Disconnect() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.sub != nil {
		if err := n.sub.Unsubscribe(); err != nil {
			n.logger.Warn("Failed to unsubscribe", zap.Error(err))
		}
		n.sub = nil
	}
	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
	}
	if !n.closed {
		n.closed = true
		close(n.msgChan)
	}
	n.logger.Info("Disconnected from NATS")
	return nil
}

// IsConnected checks if connected to NATS
func (n *NATSConsumer) IsConnected() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.conn != nil && n.conn.IsConnected()
}

// GetMessageChannel returns the request channel
func (n *NATSConsumer) GetMessageChannel() <-chan *entity.ProfileRequest {
	return n.msgChan
}
