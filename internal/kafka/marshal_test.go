package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	payload, err := Marshal(orders.LowStockPayload{VariantRef: "tee-m", Stock: 1, LowStockThreshold: 3})
	require.NoError(t, err)
	env := orders.NewEnvelope(orders.EventLowStock, "order-api", "tee-m", payload, time.Now())

	b, err := Marshal(env)
	require.NoError(t, err)
	got, err := UnmarshalEnvelope(b)
	require.NoError(t, err)
	assert.Equal(t, env.EventID, got.EventID)
	assert.Equal(t, orders.EventLowStock, got.EventType)

	p, err := UnwrapPayload[orders.LowStockPayload](got.Payload)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Stock)
	assert.Equal(t, 3, p.LowStockThreshold)
}

func TestDecodeErrorsAreWrapped(t *testing.T) {
	_, err := UnmarshalEnvelope([]byte("{not json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode envelope")

	_, err = UnwrapPayload[orders.LowStockPayload](json.RawMessage(`"text"`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode payload")

	_, err = Marshal(make(chan int))
	assert.Error(t, err)
}
