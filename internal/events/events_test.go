package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcomeEventEncoding(t *testing.T) {
	event := OutcomeEvent{
		EventID:    "evt_1",
		Operation:  "payment_confirm",
		MerchantID: "merchant_1",
		IntentID:   "pay_1",
		AttemptID:  "att_1",
		Connector:  "hmacpay",
		Status:     "succeeded",
		OccurredAt: time.Unix(1700000000, 0).UTC(),
	}

	value, err := json.Marshal(event)
	require.NoError(t, err)

	decoded := map[string]any{}
	require.NoError(t, json.Unmarshal(value, &decoded))
	assert.Equal(t, "payment_confirm", decoded["operation"])
	assert.Equal(t, "pay_1", decoded["intent_id"])
	// Empty optional fields stay off the wire.
	assert.NotContains(t, decoded, "refund_id")
	assert.NotContains(t, decoded, "error_code")
}

func TestNewKafkaPublisherConfiguresWriter(t *testing.T) {
	p := NewKafkaPublisher([]string{"broker-1:9092", "broker-2:9092"}, "payment-outcomes")

	assert.Equal(t, "payment-outcomes", p.writer.Topic)
	assert.IsType(t, &kafka.Hash{}, p.writer.Balancer)
	require.NoError(t, p.Close())
}

func TestNoopPublisher(t *testing.T) {
	var p NoopPublisher
	assert.NoError(t, p.Publish(context.Background(), OutcomeEvent{IntentID: "pay_1"}))
	assert.NoError(t, p.Close())
}
