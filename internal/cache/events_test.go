package cache

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestEventNames(t *testing.T) {
	id := uuid.MustParse("0190c2a4-7f00-7000-8000-000000000001")

	assert.Equal(t, EventName("tenant:0190c2a4-7f00-7000-8000-000000000001:config-updated"), ConfigUpdatedEvent(id))
	assert.Equal(t, EventName("tenant:0190c2a4-7f00-7000-8000-000000000001:config-deleted"), ConfigDeletedEvent(id))
	assert.Equal(t, EventName("tenant:0190c2a4-7f00-7000-8000-000000000001:configs-cleared"), ConfigsClearedEvent(id))
}

func TestBus(t *testing.T) {
	tenantA := uuid.Must(uuid.NewV7())
	tenantB := uuid.Must(uuid.NewV7())

	t.Run("exact subscription only sees its event", func(t *testing.T) {
		bus := NewBus[EventName, string](nil)
		var got []EventName
		bus.On(string(ConfigUpdatedEvent(tenantA)), func(e EventName, _ string) { got = append(got, e) })

		bus.Emit(ConfigUpdatedEvent(tenantA), "x")
		bus.Emit(ConfigUpdatedEvent(tenantB), "x")
		bus.Emit(ConfigDeletedEvent(tenantA), "x")

		assert.Equal(t, []EventName{ConfigUpdatedEvent(tenantA)}, got)
	})

	t.Run("wildcard subscription matches every tenant", func(t *testing.T) {
		bus := NewBus[EventName, string](nil)
		var updates, all int
		bus.On(AllConfigUpdated, func(EventName, string) { updates++ })
		bus.On(AllTenantEvents, func(EventName, string) { all++ })

		bus.Emit(ConfigUpdatedEvent(tenantA), "")
		bus.Emit(ConfigUpdatedEvent(tenantB), "")
		bus.Emit(ConfigsClearedEvent(tenantB), "")
		bus.Emit("system:started", "")

		assert.Equal(t, 2, updates)
		assert.Equal(t, 3, all)
	})

	t.Run("exact and wildcard both receive", func(t *testing.T) {
		bus := NewBus[EventName, string](nil)
		var payloads []string
		bus.On(string(ConfigDeletedEvent(tenantA)), func(_ EventName, p string) { payloads = append(payloads, "exact:"+p) })
		bus.On(AllConfigDeleted, func(_ EventName, p string) { payloads = append(payloads, "wild:"+p) })

		bus.Emit(ConfigDeletedEvent(tenantA), "smtp")

		assert.Equal(t, []string{"exact:smtp", "wild:smtp"}, payloads)
	})

	t.Run("unsubscribe removes only that handler", func(t *testing.T) {
		bus := NewBus[EventName, string](nil)
		var first, second int
		off := bus.On(AllConfigUpdated, func(EventName, string) { first++ })
		bus.On(AllConfigUpdated, func(EventName, string) { second++ })
		offExact := bus.On(string(ConfigUpdatedEvent(tenantA)), func(EventName, string) { first++ })
		assert.Equal(t, 3, bus.Len())

		off()
		off()
		offExact()
		bus.Emit(ConfigUpdatedEvent(tenantA), "")

		assert.Equal(t, 0, first)
		assert.Equal(t, 1, second)
		assert.Equal(t, 1, bus.Len())
	})

	t.Run("panicking handler does not stop delivery", func(t *testing.T) {
		var recovered []any
		bus := NewBus[EventName, string](func(_ EventName, r any) { recovered = append(recovered, r) })
		var delivered int
		bus.On(AllTenantEvents, func(EventName, string) { panic("boom") })
		bus.On(AllTenantEvents, func(EventName, string) { delivered++ })

		assert.NotPanics(t, func() { bus.Emit(ConfigUpdatedEvent(tenantA), "") })
		assert.Equal(t, 1, delivered)
		assert.Equal(t, []any{"boom"}, recovered)
	})
}
