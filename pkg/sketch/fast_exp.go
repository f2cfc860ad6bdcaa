package sketch

import (
	"fmt"
	"github.com/Borislavv/wcsketch/pkg/hash"
	"github.com/Borislavv/wcsketch/pkg/perm"
	"math"
	"slices"
	"unsafe"
)

// permSalt separates the permutation stream from the first register draw.
const permSalt = 0x9e3779b97f4a7c15

// sortedDraws yields the candidates of one element in ascending order:
// the k-th value is Σ_{j≤k} E_j/((m-j)·w), paired with the k-th register of
// a per-element random permutation. Its distribution over registers is the
// same as one independent exponential per register, so callers can stop as
// soon as the running value cannot improve any register.
type sortedDraws struct {
	perm *perm.FisherYates
}

func newSortedDraws(m int) sortedDraws {
	return sortedDraws{perm: perm.NewFisherYates(m)}
}

func (d sortedDraws) reset(c *core, elem string) {
	d.perm.Reset(hash.Mix64(c.family.Sum64(elem, c.seeds.Get(0)) ^ permSalt))
}

// step advances the running sum by the k-th spacing and returns it.
func (d sortedDraws) step(c *core, elem string, weight, sum float64, k int) float64 {
	return sum + c.draw(elem, k)/(weight*float64(c.m-k))
}

func (d sortedDraws) register(k int) int { return d.perm.Next(k) }

func (d sortedDraws) clone() sortedDraws { return sortedDraws{perm: d.perm.Clone()} }

// FastExpSketch keeps the ExpSketch registers but visits them through
// sortedDraws, stopping once the running sum reaches the largest register.
// Warm sketches pay O(1) hashes per element. The maximum stays +Inf, with no
// rescans, until the last register is filled.
type FastExpSketch struct {
	core
	regs     expRegisters
	draws    sortedDraws
	max      float64
	unfilled int
}

func NewFastExpSketch(m int, seeds []uint32, opts ...Option) (*FastExpSketch, error) {
	c, err := newCore(FastExp, m, seeds, opts)
	if err != nil {
		return nil, err
	}
	return &FastExpSketch{
		core:     c,
		regs:     newExpRegisters(m),
		draws:    newSortedDraws(m),
		max:      math.Inf(1),
		unfilled: m,
	}, nil
}

func (s *FastExpSketch) Add(elem string, weight float64) error {
	if err := validateWeight(weight); err != nil {
		return err
	}
	s.add(elem, weight)
	return nil
}

func (s *FastExpSketch) AddMany(elems []string, weights []float64) error {
	if err := validateBatch(elems, weights); err != nil {
		return err
	}
	for i, elem := range elems {
		s.add(elem, weights[i])
	}
	return nil
}

func (s *FastExpSketch) add(elem string, weight float64) {
	s.draws.reset(&s.core, elem)
	var sum float64
	for k := 0; k < s.m; k++ {
		sum = s.draws.step(&s.core, elem, weight, sum, k)
		if sum >= s.max {
			return
		}
		j := s.draws.register(k)
		if sum >= s.regs[j] {
			continue
		}
		prev := s.regs[j]
		s.regs[j] = sum
		if math.IsInf(prev, 1) {
			s.unfilled--
		}
		if s.unfilled == 0 && prev == s.max {
			s.max = slices.Max(s.regs)
		}
	}
}

func (s *FastExpSketch) Estimate() float64 { return s.regs.estimate() }

func (s *FastExpSketch) Jaccard(other Sketch) (float64, error) {
	o, ok := other.(*FastExpSketch)
	if !ok {
		return 0, fmt.Errorf("%w: variant %s vs %s", ErrIncompatible, s.variant, other.Variant())
	}
	if err := s.compatible(&o.core); err != nil {
		return 0, err
	}
	return s.regs.matches(o.regs), nil
}

func (s *FastExpSketch) MemoryUsageTotal() int {
	return s.core.bytes() + s.regs.bytes() + int(unsafe.Sizeof(s.regs)) +
		s.draws.perm.BytesTotal() + int(unsafe.Sizeof(s.max)) + int(unsafe.Sizeof(s.unfilled))
}

func (s *FastExpSketch) MemoryUsageWrite() int {
	return s.regs.bytes() + s.seeds.Bytes() + s.draws.perm.BytesWrite() + int(unsafe.Sizeof(s.max)) +
		int(unsafe.Sizeof(s.unfilled))
}

func (s *FastExpSketch) MemoryUsageEstimate() int { return s.regs.bytes() }

func (s *FastExpSketch) Copy() Sketch {
	return &FastExpSketch{
		core:     s.clone(),
		regs:     slices.Clone(s.regs),
		draws:    s.draws.clone(),
		max:      s.max,
		unfilled: s.unfilled,
	}
}

func (s *FastExpSketch) State() *State {
	st := &State{Floats: slices.Clone(s.regs)}
	s.exportTo(st)
	return st
}

func (s *FastExpSketch) load(st *State) error {
	if err := s.regs.load(st); err != nil {
		return err
	}
	s.unfilled = s.regs.unfilled()
	s.max = slices.Max(s.regs)
	return nil
}

// FastGMExpSketch is the FastGM flavour of FastExpSketch: no pruning at all
// until every register holds a value, then pruning against the arg-max
// register, which is rescanned only when it is the one lowered.
type FastGMExpSketch struct {
	core
	regs     expRegisters
	draws    sortedDraws
	unfilled int
	argmax   int
}

func NewFastGMExpSketch(m int, seeds []uint32, opts ...Option) (*FastGMExpSketch, error) {
	c, err := newCore(FastGMExp, m, seeds, opts)
	if err != nil {
		return nil, err
	}
	return &FastGMExpSketch{
		core:     c,
		regs:     newExpRegisters(m),
		draws:    newSortedDraws(m),
		unfilled: m,
	}, nil
}

func (s *FastGMExpSketch) Add(elem string, weight float64) error {
	if err := validateWeight(weight); err != nil {
		return err
	}
	s.add(elem, weight)
	return nil
}

func (s *FastGMExpSketch) AddMany(elems []string, weights []float64) error {
	if err := validateBatch(elems, weights); err != nil {
		return err
	}
	for i, elem := range elems {
		s.add(elem, weights[i])
	}
	return nil
}

func (s *FastGMExpSketch) add(elem string, weight float64) {
	s.draws.reset(&s.core, elem)
	var sum float64
	for k := 0; k < s.m; k++ {
		sum = s.draws.step(&s.core, elem, weight, sum, k)
		if s.unfilled == 0 && sum >= s.regs[s.argmax] {
			return
		}
		j := s.draws.register(k)
		if sum >= s.regs[j] {
			continue
		}
		filled := math.IsInf(s.regs[j], 1)
		s.regs[j] = sum
		if filled {
			s.unfilled--
		}
		if s.unfilled == 0 && (filled || j == s.argmax) {
			s.argmax = s.findArgmax()
		}
	}
}

func (r expRegisters) unfilled() int {
	n := 0
	for _, v := range r {
		if math.IsInf(v, 1) {
			n++
		}
	}
	return n
}

func (s *FastGMExpSketch) findArgmax() int {
	best := 0
	for i, v := range s.regs {
		if v > s.regs[best] {
			best = i
		}
	}
	return best
}

func (s *FastGMExpSketch) Estimate() float64 { return s.regs.estimate() }

func (s *FastGMExpSketch) Jaccard(other Sketch) (float64, error) {
	o, ok := other.(*FastGMExpSketch)
	if !ok {
		return 0, fmt.Errorf("%w: variant %s vs %s", ErrIncompatible, s.variant, other.Variant())
	}
	if err := s.compatible(&o.core); err != nil {
		return 0, err
	}
	return s.regs.matches(o.regs), nil
}

func (s *FastGMExpSketch) MemoryUsageTotal() int {
	return s.core.bytes() + s.regs.bytes() + int(unsafe.Sizeof(s.regs)) +
		s.draws.perm.BytesTotal() + int(unsafe.Sizeof(s.unfilled)) + int(unsafe.Sizeof(s.argmax))
}

func (s *FastGMExpSketch) MemoryUsageWrite() int {
	return s.regs.bytes() + s.seeds.Bytes() + s.draws.perm.BytesWrite() +
		int(unsafe.Sizeof(s.unfilled)) + int(unsafe.Sizeof(s.argmax))
}

func (s *FastGMExpSketch) MemoryUsageEstimate() int { return s.regs.bytes() }

func (s *FastGMExpSketch) Copy() Sketch {
	return &FastGMExpSketch{
		core:     s.clone(),
		regs:     slices.Clone(s.regs),
		draws:    s.draws.clone(),
		unfilled: s.unfilled,
		argmax:   s.argmax,
	}
}

func (s *FastGMExpSketch) State() *State {
	st := &State{Floats: slices.Clone(s.regs)}
	s.exportTo(st)
	return st
}

func (s *FastGMExpSketch) load(st *State) error {
	if err := s.regs.load(st); err != nil {
		return err
	}
	s.unfilled = s.regs.unfilled()
	s.argmax = s.findArgmax()
	return nil
}
