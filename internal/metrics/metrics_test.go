package metrics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/metrics"
)

func TestCollector_Counts(t *testing.T) {
	c := metrics.New("courier_test")

	c.ConnectionOpened()
	c.ConnectionOpened()
	c.ConnectionClosed()
	c.MessagePersisted()
	c.Purged(3)
	c.JoinDenied()

	families, err := c.Registry().Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, f := range families {
		for _, m := range f.GetMetric() {
			switch {
			case m.GetGauge() != nil:
				values[f.GetName()] = m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				values[f.GetName()] += m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 1.0, values["courier_test_realtime_connections"])
	assert.Equal(t, 1.0, values["courier_test_messages_persisted_total"])
	assert.Equal(t, 3.0, values["courier_test_messages_purged_total"])
	assert.Equal(t, 1.0, values["courier_test_realtime_joins_total"])
}

func TestCollector_NilIsSafe(t *testing.T) {
	var c *metrics.Collector
	assert.NotPanics(t, func() {
		c.ConnectionOpened()
		c.MessageRejected("VALIDATION_ERROR")
		c.Delivered(4)
	})
}
