package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Eviction reasons reported on the cache eviction counter.
const (
	EvictReasonUpdate   = "update"
	EvictReasonDelete   = "delete"
	EvictReasonClear    = "clear"
	EvictReasonRemote   = "remote"
	EvictReasonExpired  = "expired"
	EvictReasonRotation = "rotation"
	EvictReasonCapacity = "capacity"
)

// SubsystemMetrics covers the cache layer and the preflight breakers.
type SubsystemMetrics interface {
	CacheHit(ctx context.Context)
	CacheMiss(ctx context.Context)
	CacheEvict(ctx context.Context, reason string)
	// CacheFallback counts degradations: broker unreachable, cache fault treated as a miss.
	CacheFallback(ctx context.Context, reason string)
	BreakerStateChange(ctx context.Context, state string)
	DBUnavailable(ctx context.Context, reason string)
	ProbeLatency(ctx context.Context, duration time.Duration, status string)
}

type subsystemMetrics struct {
	cacheHits      metric.Int64Counter
	cacheMisses    metric.Int64Counter
	cacheEvictions metric.Int64Counter
	cacheFallbacks metric.Int64Counter
	breakerStates  metric.Int64Counter
	dbUnavailable  metric.Int64Counter
	probeLatency   metric.Float64Histogram
}

// NewSubsystemMetrics creates SubsystemMetrics on the given meter provider.
func NewSubsystemMetrics(meterProvider metric.MeterProvider, namespace string) (SubsystemMetrics, error) {
	meter := meterProvider.Meter(namespace)
	m := &subsystemMetrics{}

	counters := []struct {
		target *metric.Int64Counter
		name   string
		desc   string
	}{
		{&m.cacheHits, "cache_hits_total", "Tenant config cache hits"},
		{&m.cacheMisses, "cache_misses_total", "Tenant config cache misses"},
		{&m.cacheEvictions, "cache_evictions_total", "Tenant config cache evictions by reason"},
		{&m.cacheFallbacks, "cache_fallbacks_total", "Cache degradations to the backing store or local-only mode"},
		{&m.breakerStates, "breaker_transitions_total", "Preflight breaker state transitions by target state"},
		{&m.dbUnavailable, "db_unavailable_total", "Operations refused because a datasource was unavailable"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(
			fmt.Sprintf("%s_%s", namespace, c.name),
			metric.WithDescription(c.desc),
			metric.WithUnit("{event}"),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
		*c.target = counter
	}

	probeLatency, err := meter.Float64Histogram(
		fmt.Sprintf("%s_preflight_probe_duration_seconds", namespace),
		metric.WithDescription("Preflight probe latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create probe latency histogram: %w", err)
	}
	m.probeLatency = probeLatency

	return m, nil
}

func (m *subsystemMetrics) CacheHit(ctx context.Context) {
	m.cacheHits.Add(ctx, 1)
}

func (m *subsystemMetrics) CacheMiss(ctx context.Context) {
	m.cacheMisses.Add(ctx, 1)
}

func (m *subsystemMetrics) CacheEvict(ctx context.Context, reason string) {
	m.cacheEvictions.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *subsystemMetrics) CacheFallback(ctx context.Context, reason string) {
	m.cacheFallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *subsystemMetrics) BreakerStateChange(ctx context.Context, state string) {
	m.breakerStates.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
}

func (m *subsystemMetrics) DBUnavailable(ctx context.Context, reason string) {
	m.dbUnavailable.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *subsystemMetrics) ProbeLatency(ctx context.Context, duration time.Duration, status string) {
	m.probeLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("status", status)))
}

// NoOpSubsystemMetrics discards everything.
type NoOpSubsystemMetrics struct{}

// NewNoOpSubsystemMetrics creates a NoOpSubsystemMetrics.
func NewNoOpSubsystemMetrics() SubsystemMetrics {
	return NoOpSubsystemMetrics{}
}

func (NoOpSubsystemMetrics) CacheHit(context.Context) {}
func (NoOpSubsystemMetrics) CacheMiss(context.Context) {}
func (NoOpSubsystemMetrics) CacheEvict(context.Context, string) {}
func (NoOpSubsystemMetrics) CacheFallback(context.Context, string) {}
func (NoOpSubsystemMetrics) BreakerStateChange(context.Context, string) {}
func (NoOpSubsystemMetrics) DBUnavailable(context.Context, string) {}
func (NoOpSubsystemMetrics) ProbeLatency(context.Context, time.Duration, string) {}
