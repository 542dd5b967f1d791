package broadcaster

import (
	"context"
	"errors"
	"sync"
)

// RadioState is the power state of the Bluetooth peripheral radio.
type RadioState int

const (
	StateUnknown RadioState = iota
	StateResetting
	StateUnsupported
	StateUnauthorized
	StatePoweredOff
	StatePoweredOn
)

var radioStateNames = map[RadioState]string{
	StateUnknown:      "unknown",
	StateResetting:    "resetting",
	StateUnsupported:  "unsupported",
	StateUnauthorized: "unauthorized",
	StatePoweredOff:   "powered_off",
	StatePoweredOn:    "powered_on",
}

// String returns the snake_case name of the state.
func (s RadioState) String() string {
	if name, ok := radioStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseRadioState maps a state name back to its RadioState. Unrecognised
// names map to StateUnknown.
func ParseRadioState(name string) RadioState {
	for s, n := range radioStateNames {
		if n == name {
			return s
		}
	}
	return StateUnknown
}

// ErrRadioOff is returned by MemoryRadio when advertising is requested while
// the radio is not powered on.
var ErrRadioOff = errors.New("radio is not powered on")

// Radio is the peripheral side of a Bluetooth LE controller.
type Radio interface {
	// State returns the current power state.
	State() RadioState

	// Advertising reports whether an advertisement is on air.
	Advertising() bool

	// StartAdvertising puts payload on air, replacing any current payload.
	StartAdvertising(ctx context.Context, payload []byte) error

	// StopAdvertising takes the advertisement off air.
	StopAdvertising(ctx context.Context) error
}

// MemoryRadio is a Radio that keeps its state in memory. It backs tests and
// hosts without a Bluetooth controller.
type MemoryRadio struct {
	mu          sync.RWMutex
	state       RadioState
	advertising bool
	payload     []byte
	startErr    error
	starts      int
}

// NewMemoryRadio returns a radio in the given state.
func NewMemoryRadio(state RadioState) *MemoryRadio {
	return &MemoryRadio{state: state}
}

// SetState changes the power state. Leaving StatePoweredOn takes the
// advertisement off air.
func (r *MemoryRadio) SetState(state RadioState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = state
	if state != StatePoweredOn {
		r.advertising = false
	}
}

// FailStarts makes every following StartAdvertising call return err. A nil
// err clears the failure.
func (r *MemoryRadio) FailStarts(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startErr = err
}

// State implements Radio.
func (r *MemoryRadio) State() RadioState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Advertising implements Radio.
func (r *MemoryRadio) Advertising() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.advertising
}

// Payload returns a copy of the last payload put on air.
func (r *MemoryRadio) Payload() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.payload == nil {
		return nil
	}
	return append([]byte(nil), r.payload...)
}

// Starts returns how many times advertising was started successfully.
func (r *MemoryRadio) Starts() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.starts
}

// StartAdvertising implements Radio.
func (r *MemoryRadio) StartAdvertising(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.startErr != nil {
		return r.startErr
	}
	if r.state != StatePoweredOn {
		return ErrRadioOff
	}
	r.payload = append([]byte(nil), payload...)
	r.advertising = true
	r.starts++
	return nil
}

// StopAdvertising implements Radio.
func (r *MemoryRadio) StopAdvertising(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advertising = false
	return nil
}
