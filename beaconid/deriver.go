package beaconid

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"hash"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/charmap"
)

// NamespaceHex is the namespace every derived UUID is seeded with.
const NamespaceHex = "b8672a1f84f54e7c97bdff3e9cea6d7a"

// Length is the length of a canonical UUID string.
const Length = 36

var (
	// ErrHashUnavailable indicates the hashing capability could not be obtained.
	ErrHashUnavailable = errors.New("hash function unavailable")

	// ErrEncoding indicates the name holds characters outside ISO-8859-1.
	ErrEncoding = errors.New("name is not representable in ISO-8859-1")
)

// canonicalPattern matches 8-4-4-4-12 hex groups with version 1-5 and an
// RFC 4122 variant nibble.
var canonicalPattern = regexp.MustCompile(
	`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[1-5][0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`,
)

// namespace is decoded once from NamespaceHex.
var namespace = uuid.Must(uuid.Parse(NamespaceHex))

// Hasher provides the hash function used for derivation.
// It returns an error when no implementation is available.
type Hasher func() (hash.Hash, error)

// SHA1 is the default Hasher.
func SHA1() (hash.Hash, error) {
	return sha1.New(), nil
}

// Option configures a Deriver.
type Option func(*Deriver)

// WithHasher replaces the hash function. The hash must produce at least
// 16 bytes of output.
func WithHasher(h Hasher) Option {
	return func(d *Deriver) {
		d.hasher = h
	}
}

// WithNamespace replaces the namespace the derivation is seeded with.
func WithNamespace(ns uuid.UUID) Option {
	return func(d *Deriver) {
		d.namespace = ns
	}
}

// Deriver turns names into beacon UUIDs. The zero value is not usable; create
// one with NewDeriver.
type Deriver struct {
	namespace uuid.UUID
	hasher    Hasher
}

// NewDeriver returns a Deriver seeded with the package namespace and SHA-1,
// modified by opts.
func NewDeriver(opts ...Option) *Deriver {
	d := &Deriver{
		namespace: namespace,
		hasher:    SHA1,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DeriveUUID returns input unchanged when it already is a canonical UUID and
// otherwise the version 5 UUID derived from it.
func (d *Deriver) DeriveUUID(input string) (string, error) {
	if IsCanonical(input) {
		return input, nil
	}

	id, err := d.derive(input)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Parse is DeriveUUID returning the typed value.
func (d *Deriver) Parse(input string) (uuid.UUID, error) {
	if IsCanonical(input) {
		return uuid.Parse(input)
	}
	return d.derive(input)
}

// Namespace returns the namespace the deriver is seeded with.
func (d *Deriver) Namespace() uuid.UUID {
	return d.namespace
}

func (d *Deriver) derive(name string) (uuid.UUID, error) {
	data, err := charmap.ISO8859_1.NewEncoder().String(name)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q: %v", ErrEncoding, name, err)
	}

	h, err := d.hasher()
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrHashUnavailable, err)
	}
	if h == nil {
		return uuid.Nil, ErrHashUnavailable
	}
	if h.Size() < 16 {
		return uuid.Nil, fmt.Errorf("%w: digest size %d is below 16 bytes", ErrHashUnavailable, h.Size())
	}

	// NewHash writes namespace||data, keeps the first 16 digest bytes and
	// sets version and variant bits.
	return uuid.NewHash(h, d.namespace, []byte(data), 5), nil
}

var defaultDeriver = NewDeriver()

// DeriveUUID derives with the package namespace and SHA-1.
func DeriveUUID(input string) (string, error) {
	return defaultDeriver.DeriveUUID(input)
}

// Namespace returns the package namespace.
func Namespace() uuid.UUID {
	return namespace
}

// IsCanonical reports whether s is a 36 character UUID with version 1-5 and
// the RFC 4122 variant. Case is not significant.
func IsCanonical(s string) bool {
	return len(s) == Length && canonicalPattern.MatchString(s)
}

// WithDashes formats a 32 digit undashed UUID in lowercase 8-4-4-4-12 form.
// Input of any other length is returned unchanged.
func WithDashes(s string) string {
	if len(s) != 32 {
		return s
	}
	parts := []string{s[0:8], s[8:12], s[12:16], s[16:20], s[20:]}
	return strings.ToLower(strings.Join(parts, "-"))
}
