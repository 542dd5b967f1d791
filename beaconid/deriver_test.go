package beaconid

import (
	"crypto/md5"
	"crypto/sha256"
	"errors"
	"hash"
	"hash/crc32"
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
)

var derivedPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func TestDeriveUUIDGolden(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "default device name", in: "GemTot iOS", want: "7b44b47b-52a1-5381-90c2-f09b6838c5d4"},
		{name: "empty name", in: "", want: "1a02cdeb-a2ab-5ec9-b038-14efdd2c8dd1"},
		{name: "alice", in: "Alice", want: "3d152d76-be3c-52f0-813d-a136b364cfcf"},
		{name: "bob", in: "Bob", want: "f87b3bc0-7b14-560e-b099-f34e50030d02"},
		{name: "latin1 character", in: "café", want: "e7348d6d-effc-5400-a330-a756aead24e1"},
		{name: "spaces", in: "Front Door", want: "b0a39ea1-4e76-51b0-8598-160ebc193496"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DeriveUUID(tt.in)
			if err != nil {
				t.Fatalf("DeriveUUID(%q) failed: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("DeriveUUID(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDeriveUUIDMatchesNewSHA1(t *testing.T) {
	for _, name := range []string{"GemTot iOS", "", "Lobby", "Zone 42"} {
		want := uuid.NewSHA1(Namespace(), []byte(name)).String()
		got, err := DeriveUUID(name)
		if err != nil {
			t.Fatalf("DeriveUUID(%q) failed: %v", name, err)
		}
		if got != want {
			t.Errorf("DeriveUUID(%q) = %q, uuid.NewSHA1 gives %q", name, got, want)
		}
	}
}

func TestDeriveUUIDPassThrough(t *testing.T) {
	tests := []string{
		"550e8400-e29b-41d4-a716-446655440000", // version 4
		"6ba7b810-9dad-11d1-80b4-00c04fd430c8", // version 1
		"B8672A1F-84F5-4E7C-97BD-FF3E9CEA6D7A", // upper case kept
		"7b44b47b-52a1-5381-90c2-f09b6838c5d4", // a derived value
		"00000000-0000-3000-a000-000000000000",
		"ffffffff-ffff-2fff-bfff-ffffffffffff",
	}

	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			got, err := DeriveUUID(in)
			if err != nil {
				t.Fatalf("DeriveUUID(%q) failed: %v", in, err)
			}
			if got != in {
				t.Errorf("DeriveUUID(%q) = %q, want input unchanged", in, got)
			}
		})
	}
}

func TestDeriveUUIDRederivesNearMisses(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"version 0", "550e8400-e29b-01d4-a716-446655440000"},
		{"version 6", "550e8400-e29b-61d4-a716-446655440000"},
		{"variant c", "550e8400-e29b-41d4-c716-446655440000"},
		{"variant 7", "550e8400-e29b-41d4-7716-446655440000"},
		{"no dashes", "550e8400e29b41d4a716446655440000"},
		{"braces", "{550e8400-e29b-41d4-a716-446655440000}"},
		{"urn", "urn:uuid:550e8400-e29b-41d4-a716-446655440000"},
		{"misplaced dash", "550e840-0e29b-41d4-a716-446655440000"},
		{"non hex", "550e8400-e29b-41d4-a716-44665544000g"},
		{"trailing newline", "550e8400-e29b-41d4-a716-446655440000\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DeriveUUID(tt.in)
			if err != nil {
				t.Fatalf("DeriveUUID(%q) failed: %v", tt.in, err)
			}
			if got == tt.in {
				t.Fatalf("DeriveUUID(%q) passed input through", tt.in)
			}
			assertDerivedShape(t, got)
		})
	}
}

func TestDeriveUUIDProperties(t *testing.T) {
	r := rand.New(rand.NewSource(0))
	letters := []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789 -_éüß")

	seen := make(map[string]string)
	for i := 0; i < 200; i++ {
		n := r.Intn(40)
		var b strings.Builder
		for j := 0; j < n; j++ {
			b.WriteRune(letters[r.Intn(len(letters))])
		}
		name := b.String()

		first, err := DeriveUUID(name)
		if err != nil {
			t.Fatalf("DeriveUUID(%q) failed: %v", name, err)
		}
		second, err := DeriveUUID(name)
		if err != nil {
			t.Fatalf("DeriveUUID(%q) failed: %v", name, err)
		}
		if first != second {
			t.Fatalf("DeriveUUID(%q) not deterministic: %q != %q", name, first, second)
		}
		assertDerivedShape(t, first)

		if prev, ok := seen[first]; ok && prev != name {
			t.Fatalf("collision: %q and %q both derive %q", prev, name, first)
		}
		seen[first] = name
	}
}

func TestDeriveUUIDSensitivity(t *testing.T) {
	alice, err := DeriveUUID("Alice")
	if err != nil {
		t.Fatal(err)
	}
	bob, err := DeriveUUID("Bob")
	if err != nil {
		t.Fatal(err)
	}
	if alice == bob {
		t.Errorf("Alice and Bob derive the same UUID %q", alice)
	}

	lower, err := DeriveUUID("alice")
	if err != nil {
		t.Fatal(err)
	}
	if lower == alice {
		t.Errorf("derivation ignores case: %q", lower)
	}
}

func TestDeriveUUIDEncodingError(t *testing.T) {
	for _, name := range []string{"日本", "beacon 🚀", "Ωmega"} {
		_, err := DeriveUUID(name)
		if !errors.Is(err, ErrEncoding) {
			t.Errorf("DeriveUUID(%q) error = %v, want ErrEncoding", name, err)
		}
	}
}

func TestDeriveUUIDHasherFailure(t *testing.T) {
	backendDown := errors.New("crypto backend unavailable")

	tests := []struct {
		name   string
		hasher Hasher
	}{
		{
			name:   "hasher error",
			hasher: func() (hash.Hash, error) { return nil, backendDown },
		},
		{
			name:   "nil hash",
			hasher: func() (hash.Hash, error) { return nil, nil },
		},
		{
			name:   "digest too short",
			hasher: func() (hash.Hash, error) { return crc32.NewIEEE(), nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDeriver(WithHasher(tt.hasher))
			_, err := d.DeriveUUID("GemTot iOS")
			if !errors.Is(err, ErrHashUnavailable) {
				t.Fatalf("error = %v, want ErrHashUnavailable", err)
			}
		})
	}

	// Pass-through never touches the hasher.
	d := NewDeriver(WithHasher(func() (hash.Hash, error) { return nil, backendDown }))
	in := "550e8400-e29b-41d4-a716-446655440000"
	got, err := d.DeriveUUID(in)
	if err != nil || got != in {
		t.Errorf("pass-through with broken hasher = %q, %v", got, err)
	}
}

func TestDeriverOptions(t *testing.T) {
	t.Run("namespace", func(t *testing.T) {
		d := NewDeriver(WithNamespace(uuid.NameSpaceDNS))
		got, err := d.DeriveUUID("example.com")
		if err != nil {
			t.Fatal(err)
		}
		if want := uuid.NewSHA1(uuid.NameSpaceDNS, []byte("example.com")).String(); got != want {
			t.Errorf("got %q, want %q", got, want)
		}
		if d.Namespace() != uuid.NameSpaceDNS {
			t.Errorf("Namespace() = %v", d.Namespace())
		}
	})

	t.Run("longer digest", func(t *testing.T) {
		d := NewDeriver(WithHasher(func() (hash.Hash, error) { return sha256.New(), nil }))
		got, err := d.DeriveUUID("GemTot iOS")
		if err != nil {
			t.Fatal(err)
		}
		assertDerivedShape(t, got)
	})

	t.Run("exact 16 byte digest", func(t *testing.T) {
		d := NewDeriver(WithHasher(func() (hash.Hash, error) { return md5.New(), nil }))
		got, err := d.DeriveUUID("GemTot iOS")
		if err != nil {
			t.Fatal(err)
		}
		assertDerivedShape(t, got)
	})
}

func TestParse(t *testing.T) {
	d := NewDeriver()

	id, err := d.Parse("GemTot iOS")
	if err != nil {
		t.Fatal(err)
	}
	if id.String() != "7b44b47b-52a1-5381-90c2-f09b6838c5d4" {
		t.Errorf("Parse = %v", id)
	}
	if id.Version() != 5 || id.Variant() != uuid.RFC4122 {
		t.Errorf("version %d variant %v", id.Version(), id.Variant())
	}

	id, err = d.Parse("550E8400-E29B-41D4-A716-446655440000")
	if err != nil {
		t.Fatal(err)
	}
	if id.String() != "550e8400-e29b-41d4-a716-446655440000" {
		t.Errorf("Parse pass-through = %v", id)
	}
}

func TestNamespace(t *testing.T) {
	ns := Namespace()
	want := []byte{0xb8, 0x67, 0x2a, 0x1f, 0x84, 0xf5, 0x4e, 0x7c, 0x97, 0xbd, 0xff, 0x3e, 0x9c, 0xea, 0x6d, 0x7a}
	if string(ns[:]) != string(want) {
		t.Errorf("Namespace() = %x, want %x", ns[:], want)
	}
}

func TestIsCanonical(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"550e8400-e29b-41d4-a716-446655440000", true},
		{"550E8400-E29B-51D4-B716-446655440000", true},
		{"550e8400-e29b-41d4-a716-44665544000", false},
		{"550e8400-e29b-41d4-a716-4466554400000", false},
		{"", false},
		{"GemTot iOS", false},
	}
	for _, tt := range tests {
		if got := IsCanonical(tt.in); got != tt.want {
			t.Errorf("IsCanonical(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWithDashes(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"B8672A1F84F54E7C97BDFF3E9CEA6D7A", "b8672a1f-84f5-4e7c-97bd-ff3e9cea6d7a"},
		{"b8672a1f84f54e7c97bdff3e9cea6d7a", "b8672a1f-84f5-4e7c-97bd-ff3e9cea6d7a"},
		{"short", "short"},
		{"b8672a1f-84f5-4e7c-97bd-ff3e9cea6d7a", "b8672a1f-84f5-4e7c-97bd-ff3e9cea6d7a"},
	}
	for _, tt := range tests {
		if got := WithDashes(tt.in); got != tt.want {
			t.Errorf("WithDashes(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDeriveUUIDConcurrent(t *testing.T) {
	want, err := DeriveUUID("GemTot iOS")
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan string, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := DeriveUUID("GemTot iOS")
			if err != nil || got != want {
				errs <- got
			}
		}()
	}
	wg.Wait()
	close(errs)

	for got := range errs {
		t.Errorf("concurrent derivation = %q, want %q", got, want)
	}
}

func assertDerivedShape(t *testing.T, id string) {
	t.Helper()
	if len(id) != Length {
		t.Fatalf("length of %q = %d", id, len(id))
	}
	if !derivedPattern.MatchString(id) {
		t.Fatalf("%q is not lowercase 8-4-4-4-12 hex", id)
	}
	if id[14] != '5' {
		t.Errorf("version nibble of %q = %c, want 5", id, id[14])
	}
	if !strings.ContainsRune("89ab", rune(id[19])) {
		t.Errorf("variant nibble of %q = %c, want one of 8,9,a,b", id, id[19])
	}
}
