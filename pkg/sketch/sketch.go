// Package sketch estimates the total weight of a stream of weighted, possibly
// repeated elements, and the weighted Jaccard similarity of two such streams.
//
// Every variant keeps m registers. An element of weight w draws, per register,
// an exponential variable of rate w from a deterministic hash of the element and
// the register seed; the register keeps the minimum (or a quantized encoding of
// it). The minimum of exponentials is exponential with the summed rate, which is
// what the estimators invert. Updates only ever move a register toward rarer
// values, so a sketch is insensitive to duplicates and to insertion order.
//
// Sketches are not synchronized. Concurrent reads are safe while no Add or
// AddMany is in flight.
package sketch

import (
	"fmt"
	"github.com/Borislavv/wcsketch/pkg/hash"
	"github.com/Borislavv/wcsketch/pkg/seeds"
	"math"
	"unsafe"
)

// Sketch is the capability shared by all register encodings.
type Sketch interface {
	// Add inserts elem with the given weight. Rejected weights leave the sketch untouched.
	Add(elem string, weight float64) error

	// AddMany is a batch of Add calls; the whole batch is validated before any register moves.
	AddMany(elems []string, weights []float64) error

	// Estimate returns the total weight estimate. Pure and repeatable; 0 for an empty sketch.
	Estimate() float64

	// Jaccard estimates the weighted Jaccard similarity with a sketch built with the same
	// variant, size, seeds and encoding parameters.
	Jaccard(other Sketch) (float64, error)

	// MemoryUsageTotal is the resident size in bytes.
	MemoryUsageTotal() int

	// MemoryUsageWrite is the part touched by Add.
	MemoryUsageWrite() int

	// MemoryUsageEstimate is the part read by Estimate.
	MemoryUsageEstimate() int

	// Copy returns an independent deep copy.
	Copy() Sketch

	// State exports an equality-comparable snapshot.
	State() *State

	Variant() Variant
	Size() int

	// Seeds returns explicit seeds, nil when the implicit 1..m default is used.
	Seeds() []uint32
}

// AddOne inserts elem with unit weight.
func AddOne(s Sketch, elem string) error {
	return s.Add(elem, 1.0)
}

// Option tunes construction of any variant.
type Option func(*core)

// WithHash selects the hash family used for register draws.
func WithHash(f hash.Family) Option {
	return func(c *core) { c.family = f }
}

// core holds what every variant shares: identity, size, seeds and hasher.
type core struct {
	variant Variant
	m       int
	seeds   seeds.Seeds
	family  hash.Family
}

func newCore(variant Variant, m int, seedList []uint32, opts []Option) (core, error) {
	if m <= 0 {
		return core{}, fmt.Errorf("%w: got %d", ErrSize, m)
	}
	s, err := seeds.New(m, seedList)
	if err != nil {
		return core{}, fmt.Errorf("%w: %w", ErrSeedsLength, err)
	}
	c := core{variant: variant, m: m, seeds: s}
	for _, opt := range opts {
		opt(&c)
	}
	if !c.family.Valid() {
		return core{}, fmt.Errorf("%w: %s", ErrHashFamily, c.family)
	}
	return c, nil
}

func (c *core) Variant() Variant { return c.variant }

func (c *core) Size() int { return c.m }

func (c *core) Seeds() []uint32 { return c.seeds.Slice() }

// draw returns the unit-rate exponential variable of elem at register i.
// Dividing by the weight gives the candidate of rate weight.
func (c *core) draw(elem string, i int) float64 {
	return -math.Log(c.family.Draw(elem, c.seeds.Get(i)))
}

func (c *core) clone() core {
	cp := *c
	cp.seeds = c.seeds.Clone()
	return cp
}

func (c *core) compatible(o *core) error {
	switch {
	case c.variant != o.variant:
		return fmt.Errorf("%w: variant %s vs %s", ErrIncompatible, c.variant, o.variant)
	case c.m != o.m:
		return fmt.Errorf("%w: m %d vs %d", ErrIncompatible, c.m, o.m)
	case !c.seeds.Equal(o.seeds):
		return fmt.Errorf("%w: seeds differ", ErrIncompatible)
	case c.family != o.family:
		return fmt.Errorf("%w: hash family %s vs %s", ErrIncompatible, c.family, o.family)
	}
	return nil
}

// bytes is the fixed part of the resident size: the size field plus seeds.
func (c *core) bytes() int {
	return int(unsafe.Sizeof(c.m)) + int(unsafe.Sizeof(c.family)) + c.seeds.Bytes()
}

func (c *core) exportTo(st *State) {
	st.Variant = c.variant
	st.M = c.m
	st.Seeds = c.seeds.Slice()
	st.Hash = c.family
}
