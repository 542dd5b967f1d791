// Package beacon defines the typed iBeacon configuration and the
// advertisement payload broadcast for it.
//
// A Config carries the proximity UUID, the major and minor values, the
// measured power and whether the beacon should be broadcasting. Values read
// from users or from storage go through the Parse helpers and Validate so that
// a Config that reaches the radio is always well formed.
package beacon
