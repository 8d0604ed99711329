package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ryanuber/go-glob"
)

// EventName identifies a cache event, e.g. "tenant:<id>:config-updated".
type EventName string

// Wildcard patterns accepted by On.
const (
	AllConfigUpdated = "tenant:*:config-updated"
	AllConfigDeleted = "tenant:*:config-deleted"
	AllConfigsClear  = "tenant:*:configs-cleared"
	AllTenantEvents  = "tenant:*"
)

// ConfigUpdatedEvent is emitted after a tenant config value changed.
func ConfigUpdatedEvent(tenantID uuid.UUID) EventName {
	return EventName(fmt.Sprintf("tenant:%s:config-updated", tenantID))
}

// ConfigDeletedEvent is emitted after a tenant config value was removed.
func ConfigDeletedEvent(tenantID uuid.UUID) EventName {
	return EventName(fmt.Sprintf("tenant:%s:config-deleted", tenantID))
}

// ConfigsClearedEvent is emitted after every cached config of a tenant was dropped.
func ConfigsClearedEvent(tenantID uuid.UUID) EventName {
	return EventName(fmt.Sprintf("tenant:%s:configs-cleared", tenantID))
}

// InvalidationEvent is the payload delivered to local subscribers and, in
// distributed mode, published to other instances. It never carries values.
type InvalidationEvent struct {
	Event    EventName `json:"event"`
	TenantID uuid.UUID `json:"tenant_id"`
	Key      string    `json:"key,omitempty"`
	SourceID string    `json:"source_id"`
	At       time.Time `json:"at"`
}

// Handler receives events matching a subscription.
type Handler[E ~string, P any] func(event E, payload P)

type subscription[E ~string, P any] struct {
	id      uint64
	pattern string
	handler Handler[E, P]
}

// Bus is a small in-process pub/sub with exact and glob-style wildcard
// subscriptions. Patterns are classified once in On: a pattern containing '*'
// is matched with go-glob on every Emit, anything else is an exact lookup.
type Bus[E ~string, P any] struct {
	mu       sync.RWMutex
	nextID   uint64
	exact    map[E][]subscription[E, P]
	wildcard []subscription[E, P]
	onPanic  func(event E, recovered any)
}

// NewBus creates a Bus. onPanic, when set, is called with whatever a handler panicked with.
func NewBus[E ~string, P any](onPanic func(event E, recovered any)) *Bus[E, P] {
	return &Bus[E, P]{
		exact:   make(map[E][]subscription[E, P]),
		onPanic: onPanic,
	}
}

// On registers handler for pattern and returns a function that removes it.
func (b *Bus[E, P]) On(pattern string, handler Handler[E, P]) func() {
	b.mu.Lock()
	b.nextID++
	sub := subscription[E, P]{id: b.nextID, pattern: pattern, handler: handler}
	if isWildcard(pattern) {
		b.wildcard = append(b.wildcard, sub)
	} else {
		b.exact[E(pattern)] = append(b.exact[E(pattern)], sub)
	}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(sub) })
	}
}

// Emit delivers payload to every handler subscribed to event. Handlers run on
// the caller's goroutine, outside the bus lock, and a panicking handler does
// not prevent delivery to the others.
func (b *Bus[E, P]) Emit(event E, payload P) {
	b.mu.RLock()
	handlers := make([]Handler[E, P], 0, len(b.exact[event])+len(b.wildcard))
	for _, sub := range b.exact[event] {
		handlers = append(handlers, sub.handler)
	}
	for _, sub := range b.wildcard {
		if glob.Glob(sub.pattern, string(event)) {
			handlers = append(handlers, sub.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.call(h, event, payload)
	}
}

// Len returns the number of active subscriptions.
func (b *Bus[E, P]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := len(b.wildcard)
	for _, subs := range b.exact {
		n += len(subs)
	}
	return n
}

func (b *Bus[E, P]) call(h Handler[E, P], event E, payload P) {
	defer func() {
		if r := recover(); r != nil && b.onPanic != nil {
			b.onPanic(event, r)
		}
	}()
	h(event, payload)
}

func (b *Bus[E, P]) remove(sub subscription[E, P]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if isWildcard(sub.pattern) {
		b.wildcard = without(b.wildcard, sub.id)
		return
	}
	key := E(sub.pattern)
	remaining := without(b.exact[key], sub.id)
	if len(remaining) == 0 {
		delete(b.exact, key)
		return
	}
	b.exact[key] = remaining
}

// without returns a copy of subs minus id.
func without[E ~string, P any](subs []subscription[E, P], id uint64) []subscription[E, P] {
	out := make([]subscription[E, P], 0, len(subs))
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

func isWildcard(pattern string) bool {
	return strings.Contains(pattern, "*")
}
