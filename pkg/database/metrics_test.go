package database

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func describeAll(c prometheus.Collector) []string {
	ch := make(chan *prometheus.Desc, 32)
	c.Describe(ch)
	close(ch)

	var out []string
	for d := range ch {
		out = append(out, d.String())
	}
	return out
}

func TestPoolStatsCollector_Describe(t *testing.T) {
	c := NewPoolStatsCollector(nil, "qualitylab")
	descs := describeAll(c)
	require.Len(t, descs, 10)

	joined := strings.Join(descs, "\n")
	for _, name := range []string{
		"db_pool_acquired_connections",
		"db_pool_idle_connections",
		"db_pool_total_connections",
		"db_pool_max_connections",
		"db_pool_acquire_count_total",
		"db_pool_new_connections_total",
	} {
		assert.Contains(t, joined, name)
	}
}

func TestPoolStatsCollector_CollectWithoutSource(t *testing.T) {
	c := NewPoolStatsCollector(nil, "qualitylab")

	ch := make(chan prometheus.Metric, 32)
	c.Collect(ch)
	close(ch)

	assert.Empty(t, ch)
}

func TestRegisterPoolMetrics_DuplicateRejected(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewPoolStatsCollector(nil, "qualitylab")))

	err := RegisterPoolMetrics(reg, nil, "qualitylab")
	assert.Error(t, err)
}
