package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	switch {
	case out.Counter != nil:
		return out.Counter.GetValue()
	case out.Gauge != nil:
		return out.Gauge.GetValue()
	}
	t.Fatalf("unsupported metric type")
	return 0
}

func TestInitIsIdempotent(t *testing.T) {
	require.NoError(t, Init())
	require.NoError(t, Init())

	families, err := Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestCountersCollect(t *testing.T) {
	require.NoError(t, Init())

	before := value(t, TenantRejections.WithLabelValues("tenant_unknown"))
	TenantRejections.WithLabelValues("tenant_unknown").Inc()
	assert.Equal(t, before+1, value(t, TenantRejections.WithLabelValues("tenant_unknown")))

	ServersActive.WithLabelValues("42").Set(3)
	assert.Equal(t, float64(3), value(t, ServersActive.WithLabelValues("42")))
}
