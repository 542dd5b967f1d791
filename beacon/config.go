package beacon

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/passkit/gemtot/beaconid"
)

const (
	// DefaultName is the device name used when the user clears the name.
	DefaultName = "GemTot iOS"

	// DevicePower selects the measured power the radio reports for itself.
	DevicePower int8 = 127

	// MinMeasuredPower and MaxMeasuredPower bound the power values offered for
	// selection. Any int8 other than DevicePower is accepted by Validate.
	MinMeasuredPower = -100
	MaxMeasuredPower = 100
)

var (
	// ErrInvalidUUID indicates the proximity UUID is not a valid UUID.
	ErrInvalidUUID = errors.New("invalid UUID")

	// ErrInvalidMajor indicates a major value outside 0-65535.
	ErrInvalidMajor = errors.New("invalid major value")

	// ErrInvalidMinor indicates a minor value outside 0-65535.
	ErrInvalidMinor = errors.New("invalid minor value")

	// ErrInvalidPower indicates a measured power outside -128 to 127.
	ErrInvalidPower = errors.New("invalid power value")
)

// Config is the configuration of a single iBeacon.
type Config struct {
	// Name is the name the UUID was derived from. It is informational and
	// empty when the UUID was entered directly.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// UUID is the proximity UUID in canonical 36 character form.
	UUID string `yaml:"uuid" json:"uuid"`

	// Major and Minor identify the beacon within the UUID.
	Major uint16 `yaml:"major" json:"major"`
	Minor uint16 `yaml:"minor" json:"minor"`

	// Power is the measured power at one metre in dBm. DevicePower selects
	// the radio's own calibration.
	Power int8 `yaml:"power" json:"power"`

	// Broadcasting records whether the beacon should be advertising.
	Broadcasting bool `yaml:"broadcasting" json:"broadcasting"`
}

// Default returns the configuration of a freshly installed beacon.
func Default() Config {
	id, err := beaconid.DeriveUUID(DefaultName)
	if err != nil {
		// DefaultName is ISO-8859-1 and SHA-1 is always linked in.
		panic(fmt.Sprintf("beacon: deriving default UUID: %v", err))
	}
	return Config{
		Name:  DefaultName,
		UUID:  id,
		Power: DevicePower,
	}
}

// Validate checks the UUID. Major, Minor and Power are range-safe by type.
func (c Config) Validate() error {
	if _, err := ParseUUID(c.UUID); err != nil {
		return err
	}
	return nil
}

// ProximityUUID returns the parsed UUID.
func (c Config) ProximityUUID() (uuid.UUID, error) {
	return ParseUUID(c.UUID)
}

// UsesDevicePower reports whether the radio's own calibration is used.
func (c Config) UsesDevicePower() bool {
	return c.Power == DevicePower
}

// Summary renders the broadcast parameters for display.
func (c Config) Summary() string {
	return fmt.Sprintf("Broadcasting UUID: \n%s\n\nMajor: %d; Minor: %d\nMeasured Power: %s",
		c.UUID, c.Major, c.Minor, DescribePower(c.Power))
}

// ParseUUID accepts a UUID in 36 character 8-4-4-4-12 form of any version.
func ParseUUID(s string) (uuid.UUID, error) {
	if len(s) != beaconid.Length {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidUUID, s)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q: %v", ErrInvalidUUID, s, err)
	}
	return id, nil
}

// ParseMajor parses a major value entered as text.
func ParseMajor(s string) (uint16, error) {
	v, err := parseUint16(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMajor, s)
	}
	return v, nil
}

// ParseMinor parses a minor value entered as text.
func ParseMinor(s string) (uint16, error) {
	v, err := parseUint16(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMinor, s)
	}
	return v, nil
}

// CheckMajor validates an integer major value.
func CheckMajor(v int) (uint16, error) {
	if v < 0 || v > 0xFFFF {
		return 0, fmt.Errorf("%w: %d", ErrInvalidMajor, v)
	}
	return uint16(v), nil
}

// CheckMinor validates an integer minor value.
func CheckMinor(v int) (uint16, error) {
	if v < 0 || v > 0xFFFF {
		return 0, fmt.Errorf("%w: %d", ErrInvalidMinor, v)
	}
	return uint16(v), nil
}

// CheckPower validates an integer measured power.
func CheckPower(v int) (int8, error) {
	if v < -128 || v > 127 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidPower, v)
	}
	return int8(v), nil
}

func parseUint16(s string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}

// DescribePower renders a measured power for display.
func DescribePower(p int8) string {
	if p == DevicePower {
		return "Device Default"
	}
	sign := "+"
	if p <= 0 {
		sign = ""
	}
	return fmt.Sprintf("%s%ddB", sign, p)
}

// PowerChoices lists the selectable measured powers, device default first.
func PowerChoices() []int8 {
	choices := make([]int8, 0, MaxMeasuredPower-MinMeasuredPower+2)
	choices = append(choices, DevicePower)
	for p := MinMeasuredPower; p <= MaxMeasuredPower; p++ {
		choices = append(choices, int8(p))
	}
	return choices
}
