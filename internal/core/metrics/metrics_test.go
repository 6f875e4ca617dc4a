package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ConnOpened("inbound")
	m.ConnOpened("outbound")
	m.ConnClosed("inbound")
	m.DialResult(true)
	m.DialResult(false)
	m.DialResult(false)
	m.HandshakeFailed()
	m.HandshakeDone(20 * time.Millisecond)
	m.Message(EventDelivered)
	m.Message(EventDuplicate)
	m.Message(EventDuplicate)
	m.MeshSize("chat", 5)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.connections))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.dialAttempts.WithLabelValues("failure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.messages.WithLabelValues(EventDuplicate)))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.meshPeers.WithLabelValues("chat")))

	m.MeshSize("chat", -1)
	n, err := testutil.GatherAndCount(reg, "meshchat_pubsub_mesh_peers")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ConnOpened("inbound")
		m.DialResult(true)
		m.Message(EventReceived)
		m.MeshSize("x", 1)
	})
}
