package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishDeliversInRegistrationOrder(t *testing.T) {
	bus := NewBus()
	var order []string
	bus.Subscribe("nav-highlight", func(context.Context, Signal) { order = append(order, "nav") })
	bus.Subscribe("sidebar-refresh", func(context.Context, Signal) { order = append(order, "sidebar") })

	n := bus.Publish(context.Background(), Signal{Name: ComponentsReady})
	require.Equal(t, 2, n)
	require.Equal(t, []string{"nav", "sidebar"}, order)
}

func TestSubscribeSameNameReplaces(t *testing.T) {
	bus := NewBus()
	calls := map[string]int{}
	bus.Subscribe("nav-highlight", func(context.Context, Signal) { calls["first"]++ })
	bus.Subscribe("nav-highlight", func(context.Context, Signal) { calls["second"]++ })

	bus.Publish(context.Background(), Signal{Name: ComponentsReady})
	bus.Publish(context.Background(), Signal{Name: ComponentsReady})

	require.Equal(t, 0, calls["first"])
	require.Equal(t, 2, calls["second"])
	require.Equal(t, []string{"nav-highlight"}, bus.Subscribers())
}

func TestHandlersMayPublishReentrantly(t *testing.T) {
	bus := NewBus()
	seen := 0
	bus.Subscribe("echo", func(ctx context.Context, sig Signal) {
		seen++
		if sig.Source == "" {
			bus.Publish(ctx, Signal{Name: sig.Name, Source: "echo"})
		}
	})

	bus.Publish(context.Background(), Signal{Name: ComponentsReady})
	require.Equal(t, 2, seen)

	bus.Unsubscribe("echo")
	require.Equal(t, 0, bus.Publish(context.Background(), Signal{Name: ComponentsReady}))
}
