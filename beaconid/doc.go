// Package beaconid derives beacon proximity UUIDs from human readable names.
//
// A beacon is configured with either a UUID or a free-form name such as
// "Front Door". Names are turned into UUIDs deterministically so that every
// device configured with the same name advertises the same proximity UUID.
//
// # Algorithm
//
// DeriveUUID first checks whether the input already is a UUID in canonical
// 8-4-4-4-12 form with a version nibble of 1-5 and an RFC 4122 variant nibble
// (8, 9, a or b). Such input is returned unchanged, including its case.
//
// Any other input is hashed:
//
//	sha1(namespace[16] || latin1(name))
//
// The first 16 bytes of the digest become the UUID, with the version nibble
// forced to 5 and the two variant bits forced to 10. The result is rendered
// as 36 lowercase characters. The trailing 4 digest bytes are discarded.
//
// # Encoding
//
// Names are encoded as ISO-8859-1, one byte per character, so that output is
// byte-for-byte compatible with previously deployed beacons. A name holding a
// character outside ISO-8859-1 cannot be hashed and yields ErrEncoding.
//
// # Usage
//
//	id, err := beaconid.DeriveUUID("Front Door")
//	// id = "b0a39ea1-4e76-51b0-8598-160ebc193496"
//
// Derivation is a pure function and is safe for concurrent use.
package beaconid
