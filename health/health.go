package health

import (
	"context"
	"fmt"
	"os"

	"github.com/passkit/gemtot/beacon"
	"github.com/passkit/gemtot/beaconid"
	"github.com/passkit/gemtot/broadcaster"
	"github.com/passkit/gemtot/store"
)

// Health states.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Status is the result of a health check.
type Status struct {
	// Status is one of StatusHealthy, StatusDegraded or StatusUnhealthy.
	Status string `json:"status"`

	// Message describes the state for humans.
	Message string `json:"message,omitempty"`

	// Details carries diagnostic context.
	Details map[string]any `json:"details,omitempty"`
}

// IsHealthy returns true if the status is StatusHealthy.
func (s Status) IsHealthy() bool {
	return s.Status == StatusHealthy
}

// IsDegraded returns true if the status is StatusDegraded.
func (s Status) IsDegraded() bool {
	return s.Status == StatusDegraded
}

// IsUnhealthy returns true if the status is StatusUnhealthy.
func (s Status) IsUnhealthy() bool {
	return s.Status == StatusUnhealthy
}

// Healthy creates a healthy status.
func Healthy(message string) Status {
	return Status{Status: StatusHealthy, Message: message}
}

// Degraded creates a degraded status with optional details.
func Degraded(message string, details map[string]any) Status {
	return Status{Status: StatusDegraded, Message: message, Details: details}
}

// Unhealthy creates an unhealthy status with optional details.
func Unhealthy(message string, details map[string]any) Status {
	return Status{Status: StatusUnhealthy, Message: message, Details: details}
}

// StoreCheck verifies the beacon configuration under name can be loaded.
//
// Example:
//
//	status := health.StoreCheck(ctx, st, store.DefaultName)
//	if status.IsUnhealthy() {
//	    log.Fatal(status.Message)
//	}
func StoreCheck(ctx context.Context, st store.Store, name string) Status {
	if st == nil {
		return Unhealthy("no beacon store configured", nil)
	}

	cfg, err := st.Load(ctx, name)
	if err != nil {
		return Unhealthy(
			fmt.Sprintf("failed to load beacon configuration '%s'", name),
			map[string]any{
				"store": name,
				"error": err.Error(),
			},
		)
	}

	return Status{
		Status:  StatusHealthy,
		Message: fmt.Sprintf("beacon configuration '%s' loaded", name),
		Details: map[string]any{
			"store":        name,
			"uuid":         cfg.UUID,
			"broadcasting": cfg.Broadcasting,
		},
	}
}

// RadioCheck reports the Bluetooth radio's power state. A powered on radio is
// healthy. Unsupported and unauthorized radios are unhealthy; any other state
// is degraded.
func RadioCheck(radio broadcaster.Radio) Status {
	if radio == nil {
		return Unhealthy("no bluetooth radio configured", nil)
	}

	state := radio.State()
	details := map[string]any{
		"state":       state.String(),
		"advertising": radio.Advertising(),
	}

	switch state {
	case broadcaster.StatePoweredOn:
		return Status{
			Status:  StatusHealthy,
			Message: "bluetooth radio powered on",
			Details: details,
		}
	case broadcaster.StateUnsupported, broadcaster.StateUnauthorized:
		return Unhealthy(fmt.Sprintf("bluetooth radio %s", state), details)
	default:
		return Degraded(fmt.Sprintf("bluetooth radio %s", state), details)
	}
}

// UUIDCheck verifies s is a canonical proximity UUID.
func UUIDCheck(s string) Status {
	if !beaconid.IsCanonical(s) {
		return Unhealthy(
			fmt.Sprintf("'%s' is not a canonical UUID", s),
			map[string]any{"uuid": s},
		)
	}
	if _, err := beacon.ParseUUID(s); err != nil {
		return Unhealthy(
			fmt.Sprintf("'%s' is not a valid UUID", s),
			map[string]any{
				"uuid":  s,
				"error": err.Error(),
			},
		)
	}
	return Healthy(fmt.Sprintf("'%s' is a valid proximity UUID", s))
}

// FileCheck verifies that a file or directory exists at the specified path.
func FileCheck(path string) Status {
	if path == "" {
		return Unhealthy("path cannot be empty", nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Unhealthy(
				fmt.Sprintf("path '%s' does not exist", path),
				map[string]any{
					"path": path,
				},
			)
		}

		return Unhealthy(
			fmt.Sprintf("failed to stat path '%s'", path),
			map[string]any{
				"path":  path,
				"error": err.Error(),
			},
		)
	}

	fileType := "file"
	if info.IsDir() {
		fileType = "directory"
	}

	return Healthy(fmt.Sprintf("%s '%s' exists", fileType, path))
}

// Combine aggregates multiple health checks into a single status.
// The result follows this priority:
//   - If any check is unhealthy, the result is unhealthy
//   - If any check is degraded (and none unhealthy), the result is degraded
//   - If all checks are healthy, the result is healthy
func Combine(checks ...Status) Status {
	if len(checks) == 0 {
		return Healthy("no checks provided")
	}

	var unhealthyChecks []string
	var degradedChecks []string
	var healthyCount int

	for _, check := range checks {
		msg := check.Message
		if msg == "" {
			msg = "unnamed check"
		}
		switch check.Status {
		case StatusUnhealthy:
			unhealthyChecks = append(unhealthyChecks, msg)
		case StatusDegraded:
			degradedChecks = append(degradedChecks, msg)
		case StatusHealthy:
			healthyCount++
		}
	}

	if len(unhealthyChecks) > 0 {
		return Unhealthy(
			fmt.Sprintf("%d check(s) failed", len(unhealthyChecks)),
			map[string]any{
				"total":         len(checks),
				"unhealthy":     len(unhealthyChecks),
				"degraded":      len(degradedChecks),
				"healthy":       healthyCount,
				"failed_checks": unhealthyChecks,
			},
		)
	}

	if len(degradedChecks) > 0 {
		return Degraded(
			fmt.Sprintf("%d check(s) degraded", len(degradedChecks)),
			map[string]any{
				"total":           len(checks),
				"degraded":        len(degradedChecks),
				"healthy":         healthyCount,
				"degraded_checks": degradedChecks,
			},
		)
	}

	return Healthy(fmt.Sprintf("all %d check(s) passed", len(checks)))
}
