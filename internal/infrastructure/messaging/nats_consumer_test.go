package messaging

import (
	"testing"

	"referral-network-indexer/internal/domain/entity"
	"referral-network-indexer/internal/infrastructure/config"
	"referral-network-indexer/internal/infrastructure/logger"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConsumer(pending int) *NATSConsumer {
	cfg := &config.NATSConfig{SubjectPrefix: "referrals", MaxPendingMessages: pending}
	return NewNATSConsumer(cfg, logger.NewNopLogger())
}

func TestNATSConsumerQueuesValidRequests(t *testing.T) {
	consumer := newTestConsumer(4)
	assert.Equal(t, "referrals.requests", consumer.RequestSubject())

	consumer.handleMessage(&nats.Msg{
		Subject: consumer.RequestSubject(),
		Data:    []byte(`{"session":"tab-1","address":"0x00000000000000000000000000000000000000AB"}`),
	})

	select {
	case req := <-consumer.GetMessageChannel():
		assert.Equal(t, "tab-1", req.Session)
		assert.Equal(t, entity.Address("0x00000000000000000000000000000000000000ab"), req.Address)
	default:
		t.Fatal("request was not queued")
	}
}

func TestNATSConsumerRejectsInvalidRequests(t *testing.T) {
	consumer := newTestConsumer(4)

	for _, body := range []string{
		`not json`,
		`{"address":"0x00000000000000000000000000000000000000ab"}`,
		`{"session":"tab-1","address":"0x0000000000000000000000000000000000000000"}`,
		`{"session":"tab-1","address":"0x12"}`,
	} {
		consumer.handleMessage(&nats.Msg{Data: []byte(body)})
	}

	assert.Len(t, consumer.GetMessageChannel(), 0)
}

func TestNATSConsumerDropsWhenFull(t *testing.T) {
	consumer := newTestConsumer(1)
	body := []byte(`{"session":"tab-1","address":"0x00000000000000000000000000000000000000ab"}`)

	consumer.handleMessage(&nats.Msg{Data: body})
	consumer.handleMessage(&nats.Msg{Data: body})

	assert.Len(t, consumer.GetMessageChannel(), 1)
}

func TestNATSConsumerDisconnectClosesChannel(t *testing.T) {
	consumer := newTestConsumer(1)
	assert.False(t, consumer.IsConnected())

	require.NoError(t, consumer.Disconnect())
	require.NoError(t, consumer.Disconnect())

	_, open := <-consumer.GetMessageChannel()
	assert.False(t, open)

	// Late messages after shutdown are ignored
	consumer.handleMessage(&nats.Msg{Data: []byte(`{"session":"s","address":"0x00000000000000000000000000000000000000ab"}`)})
	assert.ErrorIs(t, consumer.Publish("referrals.profiles", nil), ErrNotConnected)
}
