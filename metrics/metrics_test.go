package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsRegisterOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.PollsClosed.WithLabelValues("expired").Inc()
	m.PollsClosed.WithLabelValues("expired").Inc()
	m.ConsistencyViolations.Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PollsClosed.WithLabelValues("expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConsistencyViolations))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	assert.Panics(t, func() { New(reg) })
	assert.NotPanics(t, func() { NewNop(); NewNop() })
}
