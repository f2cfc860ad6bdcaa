package seeds

import (
	"errors"
	"fmt"
	"slices"
	"unsafe"
)

var ErrLength = errors.New("seeds must have length m or 0")

// Seeds is the per-register seed vector of a sketch.
// The default vector 1..m is kept implicit and costs no memory; an explicit
// vector equal to 1..m is normalized to the implicit form, so both are
// indistinguishable afterwards.
type Seeds struct {
	m        int
	explicit []uint32 // nil when implicit
}

// New validates and owns a copy of seeds. Empty seeds mean 1..m.
func New(m int, seeds []uint32) (Seeds, error) {
	if len(seeds) != 0 && len(seeds) != m {
		return Seeds{}, fmt.Errorf("%w: got %d, m=%d", ErrLength, len(seeds), m)
	}
	if len(seeds) == 0 || isSequentialFromOne(seeds) {
		return Seeds{m: m}, nil
	}
	return Seeds{m: m, explicit: exactCopy(seeds)}, nil
}

// Get returns the seed of register i.
func (s Seeds) Get(i int) uint32 {
	if s.implicit() {
		return uint32(i + 1)
	}
	return s.explicit[i]
}

// Len is the number of registers covered.
func (s Seeds) Len() int { return s.m }

func (s Seeds) implicit() bool { return s.explicit == nil }

// Slice returns a copy of explicit seeds, nil for the implicit default.
func (s Seeds) Slice() []uint32 {
	return slices.Clone(s.explicit)
}

// Equal compares the effective seed vectors.
func (s Seeds) Equal(o Seeds) bool {
	return s.m == o.m && slices.Equal(s.explicit, o.explicit)
}

// Clone returns seeds with independent backing storage.
func (s Seeds) Clone() Seeds {
	return Seeds{m: s.m, explicit: exactCopy(s.explicit)}
}

// exactCopy keeps cap == len so Bytes reports m*4 for explicit seeds.
func exactCopy(seeds []uint32) []uint32 {
	if seeds == nil {
		return nil
	}
	out := make([]uint32, len(seeds))
	copy(out, seeds)
	return out
}

// Bytes is the resident size of the stored vector.
func (s Seeds) Bytes() int {
	return cap(s.explicit) * int(unsafe.Sizeof(uint32(0)))
}

func isSequentialFromOne(seeds []uint32) bool {
	for i, v := range seeds {
		if v != uint32(i+1) {
			return false
		}
	}
	return true
}
