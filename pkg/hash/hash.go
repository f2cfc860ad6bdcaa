package hash

import (
	"errors"
	"fmt"
	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-metro"
	"github.com/spaolacci/murmur3"
	"github.com/zeebo/xxh3"
	"unsafe"
)

var ErrUnknownFamily = errors.New("unknown hash family")

// Family selects the seeded 64-bit hash used to derive register draws.
// Two sketches are comparable only when they share a family.
type Family uint8

const (
	// Murmur3 is MurmurHash3 x64 128, first word. Default.
	Murmur3 Family = iota
	// XXH3 is the 64-bit XXH3 with a 64-bit seed.
	XXH3
	// XXHash is XXH64 with a seeded digest.
	XXHash
	// Metro is metrohash64.
	Metro
)

var familyNames = [...]string{
	Murmur3: "murmur3",
	XXH3:    "xxh3",
	XXHash:  "xxhash",
	Metro:   "metro",
}

func (f Family) String() string {
	if int(f) < len(familyNames) {
		return familyNames[f]
	}
	return fmt.Sprintf("family(%d)", uint8(f))
}

// ParseFamily resolves a family by name, empty string means Murmur3.
func ParseFamily(name string) (Family, error) {
	if name == "" {
		return Murmur3, nil
	}
	for f, n := range familyNames {
		if n == name {
			return Family(f), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFamily, name)
}

// MarshalText lets config encoders write the family by name.
func (f Family) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFamily, uint8(f))
	}
	return []byte(f.String()), nil
}

// UnmarshalText lets yaml and toml decode the family by name.
func (f *Family) UnmarshalText(text []byte) error {
	parsed, err := ParseFamily(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Valid reports whether f is one of the known families.
func (f Family) Valid() bool {
	return int(f) < len(familyNames)
}

// Sum64 hashes elem under the given register seed. Pure: the same (elem, seed)
// pair yields the same value in every process.
func (f Family) Sum64(elem string, seed uint32) uint64 {
	// elem is only read, never retained, so no copy is needed
	b := unsafe.Slice(unsafe.StringData(elem), len(elem))
	switch f {
	case XXH3:
		return xxh3.HashStringSeed(elem, uint64(seed))
	case XXHash:
		d := xxhash.NewWithSeed(uint64(seed))
		_, _ = d.WriteString(elem)
		return d.Sum64()
	case Metro:
		return metro.Hash64Str(elem, uint64(seed))
	default:
		h1, _ := murmur3.Sum128WithSeed(b, seed)
		return h1
	}
}

// Unit maps h onto the open interval (0,1) using its top 52 bits. The result
// lies in [2^-53, 1-2^-53], both exactly representable, so -ln(Unit(h)) is
// finite and positive.
func Unit(h uint64) float64 {
	return (float64(h>>12) + 0.5) * 0x1p-52
}

// Draw is Unit(f.Sum64(elem, seed)).
func (f Family) Draw(elem string, seed uint32) float64 {
	return Unit(f.Sum64(elem, seed))
}

// Mix64 is the murmur3 64-bit finalizer.
func Mix64(x uint64) uint64 {
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x
}
