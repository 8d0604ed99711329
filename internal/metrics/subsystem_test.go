package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubsystemMetrics(t *testing.T) {
	provider, err := NewProvider("sub_test")
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, provider.Shutdown(context.Background()))
	}()

	m, err := NewSubsystemMetrics(provider.MeterProvider(), "sub_test")
	require.NoError(t, err)

	ctx := context.Background()
	m.CacheHit(ctx)
	m.CacheHit(ctx)
	m.CacheMiss(ctx)
	m.CacheEvict(ctx, EvictReasonUpdate)
	m.CacheEvict(ctx, EvictReasonRemote)
	m.CacheEvict(ctx, EvictReasonRemote)
	m.CacheFallback(ctx, "broker_unreachable")
	m.BreakerStateChange(ctx, "open")
	m.DBUnavailable(ctx, "breaker_open")
	m.ProbeLatency(ctx, 2*time.Millisecond, "success")

	output := scrape(t, provider)
	assertBizMetricLine(t, output, `sub_test_cache_hits_total`, ``, `2`)
	assertBizMetricLine(t, output, `sub_test_cache_misses_total`, ``, `1`)
	assertBizMetricLine(t, output, `sub_test_cache_evictions_total`, `reason="remote"`, `2`)
	assertBizMetricLine(t, output, `sub_test_cache_fallbacks_total`, `reason="broker_unreachable"`, `1`)
	assertBizMetricLine(t, output, `sub_test_breaker_transitions_total`, `state="open"`, `1`)
	assertBizMetricLine(t, output, `sub_test_db_unavailable_total`, `reason="breaker_open"`, `1`)
	assertBizMetricLine(t, output, `sub_test_preflight_probe_duration_seconds_bucket`, `le="0.0025"`, `1`)
}

func TestNoOpSubsystemMetrics(t *testing.T) {
	m := NewNoOpSubsystemMetrics()
	assert.NotPanics(t, func() {
		m.CacheHit(context.Background())
		m.CacheEvict(context.Background(), EvictReasonClear)
		m.ProbeLatency(context.Background(), time.Second, "error")
	})
}
