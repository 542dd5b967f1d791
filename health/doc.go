// Package health reports whether a beacon is able to broadcast.
//
// Each check returns a Status that is healthy, degraded or unhealthy:
//
//   - StoreCheck: the beacon configuration loads and validates
//   - RadioCheck: the Bluetooth radio is powered on
//   - UUIDCheck: a string is a canonical proximity UUID
//   - FileCheck: a file or directory exists
//   - Combine: aggregate several checks into one Status
//
// # Usage Example
//
//	overall := health.Combine(
//	    health.StoreCheck(ctx, st, store.DefaultName),
//	    health.RadioCheck(radio),
//	    health.FileCheck(settings.GetStore().GetDir()),
//	)
//	if overall.IsUnhealthy() {
//	    log.Printf("beacon unavailable: %s", overall.Message)
//	}
//
// A degraded radio (powered off, resetting, not yet known) may recover on its
// own; unsupported and unauthorized radios will not.
package health
