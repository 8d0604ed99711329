// Package cache provides the tenant config cache: a local TTL cache with
// generation-guarded population, an in-process event bus and optional
// cross-instance invalidation through a pub/sub broker.
//
// Only decoded values live in the cache and only invalidation events leave
// the process. A failing cache never fails a request; callers fall back to
// the database.
package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"

	"github.com/allisson/tenantconfig/internal/errors"
	"github.com/allisson/tenantconfig/internal/metrics"
)

// ErrCacheUnavailable indicates the broker could not be reached. The cache keeps
// serving locally; this error is only logged and counted.
var ErrCacheUnavailable = errors.Wrap(errors.ErrUnavailable, "cache broker unavailable")

const (
	defaultTTL            = 5 * time.Minute
	defaultConnectTimeout = 2 * time.Second
	defaultRetryInterval  = 30 * time.Second
)

// Broker carries invalidation events between instances.
type Broker interface {
	// Connect subscribes to the shared channel and calls handle for every event
	// received, including the ones this process published. It must be idempotent.
	Connect(ctx context.Context, handle func(InvalidationEvent)) error
	Publish(ctx context.Context, event InvalidationEvent) error
	Close() error
}

// Options configures a TenantCache.
type Options struct {
	TTL            time.Duration
	MaxEntries     uint64
	Logger         *slog.Logger
	Metrics        metrics.SubsystemMetrics
	Broker         Broker
	ConnectTimeout time.Duration
	RetryInterval  time.Duration
}

// SetOptions controls SetTenantConfig.
type SetOptions struct {
	// Broadcast marks a real change: the local entry is evicted and an
	// update event is emitted locally and published.
	Broadcast bool
}

// Token is a generation snapshot taken before reading the backing store.
type Token struct {
	tenantID   uuid.UUID
	generation uint64
}

// TenantCache caches decoded tenant config values by tenant and key.
type TenantCache[V any] struct {
	items    *ttlcache.Cache[string, V]
	bus      *Bus[EventName, InvalidationEvent]
	broker   Broker
	logger   *slog.Logger
	metrics  metrics.SubsystemMetrics
	sourceID string

	// generations bumps on every invalidation of a tenant. Population with a
	// stale Token is dropped so a slow reader cannot resurrect an old value.
	genMu       sync.Mutex
	generations map[uuid.UUID]uint64

	remoteMu       sync.Mutex
	connected      atomic.Bool
	closed         bool
	lastAttempt    time.Time
	connectTimeout time.Duration
	retryInterval  time.Duration
	retrying       bool
	stop           chan struct{}
	wg             sync.WaitGroup

	closeOnce sync.Once
}

// New creates a TenantCache and starts its expiration loop. Close stops it.
func New[V any](opts Options) *TenantCache[V] {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoOpSubsystemMetrics()
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = defaultRetryInterval
	}

	cacheOpts := []ttlcache.Option[string, V]{
		ttlcache.WithTTL[string, V](opts.TTL),
		ttlcache.WithDisableTouchOnHit[string, V](),
	}
	if opts.MaxEntries > 0 {
		cacheOpts = append(cacheOpts, ttlcache.WithCapacity[string, V](opts.MaxEntries))
	}

	c := &TenantCache[V]{
		items:          ttlcache.New(cacheOpts...),
		broker:         opts.Broker,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		sourceID:       newSourceID(),
		generations:    make(map[uuid.UUID]uint64),
		connectTimeout: opts.ConnectTimeout,
		retryInterval:  opts.RetryInterval,
		stop:           make(chan struct{}),
	}
	c.bus = NewBus[EventName, InvalidationEvent](func(event EventName, recovered any) {
		c.logger.Error("cache event handler panicked",
			slog.String("event", string(event)),
			slog.Any("panic", recovered),
		)
	})

	c.items.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, _ *ttlcache.Item[string, V]) {
		switch reason {
		case ttlcache.EvictionReasonExpired:
			c.metrics.CacheEvict(ctx, metrics.EvictReasonExpired)
		case ttlcache.EvictionReasonCapacityReached:
			c.metrics.CacheEvict(ctx, metrics.EvictReasonCapacity)
		}
	})

	go c.items.Start()
	return c
}

// SourceID returns the random identifier this process tags published events with.
func (c *TenantCache[V]) SourceID() string {
	return c.sourceID
}

// GetTenantConfig returns the cached value for key.
func (c *TenantCache[V]) GetTenantConfig(ctx context.Context, tenantID uuid.UUID, key string) (value V, found bool) {
	defer func() {
		if r := recover(); r != nil {
			c.fault(ctx, "get", r)
			var zero V
			value, found = zero, false
		}
	}()

	item := c.items.Get(entryKey(tenantID, key))
	if item == nil {
		c.metrics.CacheMiss(ctx)
		return value, false
	}
	c.metrics.CacheHit(ctx)
	return item.Value(), true
}

// Snapshot captures the tenant generation. Take it before reading the backing
// store and hand it to PopulateTenantConfig.
func (c *TenantCache[V]) Snapshot(tenantID uuid.UUID) Token {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	return Token{tenantID: tenantID, generation: c.generations[tenantID]}
}

// PopulateTenantConfig stores a value read from the backing store unless the
// tenant was invalidated after token was taken. It reports whether it stored.
func (c *TenantCache[V]) PopulateTenantConfig(ctx context.Context, token Token, key string, value V) (stored bool) {
	defer func() {
		if r := recover(); r != nil {
			c.fault(ctx, "populate", r)
			stored = false
		}
	}()

	c.genMu.Lock()
	defer c.genMu.Unlock()
	if c.generations[token.tenantID] != token.generation {
		return false
	}
	c.items.Set(entryKey(token.tenantID, key), value, ttlcache.DefaultTTL)
	return true
}

// SetTenantConfig writes value for key. With Broadcast the entry is evicted
// instead, so this process's next read goes back to the source of truth, and
// an update event is emitted locally and published to other instances.
func (c *TenantCache[V]) SetTenantConfig(ctx context.Context, tenantID uuid.UUID, key string, value V, opts SetOptions) {
	defer func() {
		if r := recover(); r != nil {
			c.fault(ctx, "set", r)
		}
	}()

	if !opts.Broadcast {
		c.genMu.Lock()
		c.items.Set(entryKey(tenantID, key), value, ttlcache.DefaultTTL)
		c.genMu.Unlock()
		return
	}

	c.invalidate(ctx, tenantID, key, metrics.EvictReasonUpdate)
	c.broadcast(ctx, InvalidationEvent{Event: ConfigUpdatedEvent(tenantID), TenantID: tenantID, Key: key})
}

// DeleteTenantConfig evicts key and broadcasts a delete event.
func (c *TenantCache[V]) DeleteTenantConfig(ctx context.Context, tenantID uuid.UUID, key string) {
	defer func() {
		if r := recover(); r != nil {
			c.fault(ctx, "delete", r)
		}
	}()

	c.invalidate(ctx, tenantID, key, metrics.EvictReasonDelete)
	c.broadcast(ctx, InvalidationEvent{Event: ConfigDeletedEvent(tenantID), TenantID: tenantID, Key: key})
}

// ClearTenantConfigs evicts every entry of the tenant and broadcasts a clear event.
func (c *TenantCache[V]) ClearTenantConfigs(ctx context.Context, tenantID uuid.UUID) {
	defer func() {
		if r := recover(); r != nil {
			c.fault(ctx, "clear", r)
		}
	}()

	c.invalidateTenant(ctx, tenantID, metrics.EvictReasonClear)
	c.broadcast(ctx, InvalidationEvent{Event: ConfigsClearedEvent(tenantID), TenantID: tenantID})
}

// EvictTenantConfig drops key locally without emitting anything. Key rotation
// uses it: the value did not change, only its wrapping.
func (c *TenantCache[V]) EvictTenantConfig(ctx context.Context, tenantID uuid.UUID, key string) {
	c.invalidate(ctx, tenantID, key, metrics.EvictReasonRotation)
}

// On subscribes handler to events matching pattern ("tenant:*:config-updated",
// an exact event name, ...). The first subscription connects the broker when
// one is configured.
func (c *TenantCache[V]) On(pattern string, handler Handler[EventName, InvalidationEvent]) func() {
	unsubscribe := c.bus.On(pattern, handler)
	c.ensureRemote(context.Background())
	return unsubscribe
}

// Connect subscribes to the broker without waiting for a subscription or a
// write. An instance that only reads must call it, otherwise it never hears
// about changes made elsewhere. When the broker is unreachable a background
// loop keeps retrying every RetryInterval until it connects, ctx is done or
// the cache is closed. Reports whether the broker is connected now.
func (c *TenantCache[V]) Connect(ctx context.Context) bool {
	if c.ensureRemote(ctx) || c.broker == nil {
		return c.connected.Load()
	}

	c.remoteMu.Lock()
	defer c.remoteMu.Unlock()
	if c.closed || c.retrying {
		return false
	}
	c.retrying = true
	c.wg.Add(1)
	go c.reconnect(ctx)
	return false
}

func (c *TenantCache[V]) reconnect(ctx context.Context) {
	defer c.wg.Done()
	defer func() {
		c.remoteMu.Lock()
		c.retrying = false
		c.remoteMu.Unlock()
	}()

	ticker := time.NewTicker(c.retryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			if c.ensureRemote(ctx) {
				return
			}
		}
	}
}

// Emit delivers an event to local subscribers only.
func (c *TenantCache[V]) Emit(event EventName, payload InvalidationEvent) {
	c.bus.Emit(event, payload)
}

// Len returns the number of live entries.
func (c *TenantCache[V]) Len() int {
	return c.items.Len()
}

// Distributed reports whether the broker connection is established.
func (c *TenantCache[V]) Distributed() bool {
	return c.connected.Load()
}

// Close stops the expiration loop and disconnects the broker.
func (c *TenantCache[V]) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.items.Stop()

		c.remoteMu.Lock()
		c.closed = true
		c.remoteMu.Unlock()
		close(c.stop)
		c.wg.Wait()

		if c.broker != nil {
			err = c.broker.Close()
		}
		c.connected.Store(false)
	})
	return err
}

func (c *TenantCache[V]) invalidate(ctx context.Context, tenantID uuid.UUID, key, reason string) {
	c.genMu.Lock()
	c.generations[tenantID]++
	c.items.Delete(entryKey(tenantID, key))
	c.genMu.Unlock()

	c.metrics.CacheEvict(ctx, reason)
}

func (c *TenantCache[V]) invalidateTenant(ctx context.Context, tenantID uuid.UUID, reason string) {
	prefix := tenantPrefix(tenantID)

	c.genMu.Lock()
	c.generations[tenantID]++
	for _, k := range c.items.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.items.Delete(k)
		}
	}
	c.genMu.Unlock()

	c.metrics.CacheEvict(ctx, reason)
}

func (c *TenantCache[V]) broadcast(ctx context.Context, event InvalidationEvent) {
	event.SourceID = c.sourceID
	event.At = time.Now().UTC()

	c.bus.Emit(event.Event, event)

	if !c.ensureRemote(ctx) {
		return
	}
	if err := c.broker.Publish(ctx, event); err != nil {
		c.logger.Warn("failed to publish cache invalidation",
			slog.String("event", string(event.Event)),
			slog.Any("error", err),
		)
		c.metrics.CacheFallback(ctx, "publish_failed")
	}
}

// handleRemote applies an event received from the broker.
func (c *TenantCache[V]) handleRemote(event InvalidationEvent) {
	if event.SourceID == c.sourceID {
		return
	}

	ctx := context.Background()
	if event.Key != "" {
		c.invalidate(ctx, event.TenantID, event.Key, metrics.EvictReasonRemote)
	} else {
		c.invalidateTenant(ctx, event.TenantID, metrics.EvictReasonRemote)
	}
	c.bus.Emit(event.Event, event)
}

// ensureRemote connects the broker once. A failed attempt is retried after
// RetryInterval; until then the cache runs local-only. It never blocks on a
// connect already in progress.
func (c *TenantCache[V]) ensureRemote(ctx context.Context) bool {
	if c.broker == nil {
		return false
	}
	if c.connected.Load() {
		return true
	}
	if !c.remoteMu.TryLock() {
		return false
	}
	defer c.remoteMu.Unlock()

	if c.closed || c.connected.Load() {
		return c.connected.Load()
	}
	if !c.lastAttempt.IsZero() && time.Since(c.lastAttempt) < c.retryInterval {
		return false
	}
	c.lastAttempt = time.Now()

	connectCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.connectTimeout)
	defer cancel()
	if err := c.broker.Connect(connectCtx, c.handleRemote); err != nil {
		c.logger.Warn("cache broker unreachable, continuing with local-only cache",
			slog.Any("error", fmt.Errorf("%w: %v", ErrCacheUnavailable, err)),
		)
		c.metrics.CacheFallback(ctx, "broker_unreachable")
		return false
	}

	c.connected.Store(true)
	c.logger.Info("cache broker connected", slog.String("source_id", c.sourceID))
	return true
}

func (c *TenantCache[V]) fault(ctx context.Context, op string, recovered any) {
	c.logger.Error("cache operation failed, treating as miss",
		slog.String("operation", op),
		slog.Any("panic", recovered),
	)
	c.metrics.CacheFallback(ctx, "cache_fault")
}

func entryKey(tenantID uuid.UUID, key string) string {
	return tenantPrefix(tenantID) + key
}

func tenantPrefix(tenantID uuid.UUID) string {
	return "tenant:" + tenantID.String() + ":config:"
}

func newSourceID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return uuid.NewString()
	}
	return hex.EncodeToString(b)
}
