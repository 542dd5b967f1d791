// Package notify delivers beacon broadcast status changes to subscribers.
//
// The broadcaster publishes an Event whenever it starts or stops advertising
// on its own accord, for example after the radio powers on and the persisted
// broadcasting flag is restored, or when advertising was requested while
// Bluetooth is unavailable. Host code subscribes to refresh its display.
//
// Two implementations are provided:
//
//   - Bus fans events out to in-process subscribers.
//   - RedisNotifier publishes on a Redis pub/sub channel so that other
//     processes can follow a beacon.
//
// Example:
//
//	bus := notify.NewBus(logger)
//	events, _ := bus.Subscribe(ctx)
//	go func() {
//	    for ev := range events {
//	        log.Printf("broadcasting: %v", ev.Broadcasting)
//	    }
//	}()
package notify
