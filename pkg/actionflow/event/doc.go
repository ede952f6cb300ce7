// Package event carries engine lifecycle events to interested observers.
//
// The engine publishes one Event per notable step of a call (rejected,
// skipped, scheduled, dispatched, failed, chained) and for every breathing
// transition. Publishing is fire-and-forget: a LocalBus created with
// NonBlocking drops events for subscribers whose buffer is full instead of
// slowing down calls.
//
//	bus := event.NewBus(event.BusConfig{NonBlocking: true})
//	defer bus.Close()
//
//	bus.Subscribe([]event.Type{event.TypeError}, func(ctx context.Context, evt event.Event) {
//	    log.Printf("%s failed: %s", evt.ChannelID, evt.Error)
//	})
//
//	engine := actionflow.New(actionflow.WithEventBus(bus))
package event
