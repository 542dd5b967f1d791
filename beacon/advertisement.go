package beacon

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const (
	// AppleCompanyID is the Bluetooth SIG company identifier iBeacons use.
	AppleCompanyID uint16 = 0x004C

	// ManufacturerDataLength is the size of the iBeacon manufacturer payload,
	// excluding the company identifier.
	ManufacturerDataLength = 23

	typeIBeacon   = 0x02
	lengthIBeacon = 0x15

	adTypeFlags            = 0x01
	adTypeManufacturerData = 0xFF

	flagGeneralDiscoverable = 0x02
	flagLEOnly              = 0x04
)

// ErrNotIBeacon indicates manufacturer data that is not an iBeacon payload.
var ErrNotIBeacon = errors.New("not an iBeacon")

// Reading is an iBeacon decoded from an advertisement.
type Reading struct {
	UUID  uuid.UUID
	Major uint16
	Minor uint16
	Power int8
}

// ManufacturerData encodes the 23 byte iBeacon payload. When c uses the
// device power, devicePower is encoded in its place.
func ManufacturerData(c Config, devicePower int8) ([]byte, error) {
	id, err := c.ProximityUUID()
	if err != nil {
		return nil, err
	}

	power := c.Power
	if c.UsesDevicePower() {
		power = devicePower
	}

	md := make([]byte, ManufacturerDataLength)
	md[0] = typeIBeacon
	md[1] = lengthIBeacon
	copy(md[2:18], id[:])
	binary.BigEndian.PutUint16(md[18:], c.Major)
	binary.BigEndian.PutUint16(md[20:], c.Minor)
	md[22] = uint8(power)
	return md, nil
}

// Packet encodes a complete advertising packet: flags followed by the
// manufacturer specific data field.
func Packet(c Config, devicePower int8) ([]byte, error) {
	md, err := ManufacturerData(c, devicePower)
	if err != nil {
		return nil, err
	}

	p := make([]byte, 0, 3+4+len(md))
	p = appendField(p, adTypeFlags, []byte{flagGeneralDiscoverable | flagLEOnly})

	field := make([]byte, 2, 2+len(md))
	binary.LittleEndian.PutUint16(field, AppleCompanyID)
	field = append(field, md...)
	return appendField(p, adTypeManufacturerData, field), nil
}

func appendField(p []byte, typ byte, b []byte) []byte {
	p = append(p, byte(len(b)+1), typ)
	return append(p, b...)
}

// ParseManufacturerData decodes the 23 byte iBeacon payload. A leading
// little-endian Apple company identifier is accepted and skipped.
func ParseManufacturerData(md []byte) (Reading, error) {
	if len(md) == ManufacturerDataLength+2 && binary.LittleEndian.Uint16(md) == AppleCompanyID {
		md = md[2:]
	}
	if len(md) != ManufacturerDataLength || md[0] != typeIBeacon || md[1] != lengthIBeacon {
		return Reading{}, fmt.Errorf("%w: % x", ErrNotIBeacon, md)
	}

	var r Reading
	copy(r.UUID[:], md[2:18])
	r.Major = binary.BigEndian.Uint16(md[18:])
	r.Minor = binary.BigEndian.Uint16(md[20:])
	r.Power = int8(md[22])
	return r, nil
}

// ParsePacket finds the manufacturer specific field in an advertising packet
// and decodes it.
func ParsePacket(p []byte) (Reading, error) {
	for len(p) > 0 {
		l := int(p[0])
		if l == 0 || len(p) < 1+l {
			break
		}
		if p[1] == adTypeManufacturerData {
			return ParseManufacturerData(p[2 : 1+l])
		}
		p = p[1+l:]
	}
	return Reading{}, ErrNotIBeacon
}
