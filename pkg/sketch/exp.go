package sketch

import (
	"fmt"
	"gonum.org/v1/gonum/floats"
	"math"
	"slices"
	"unsafe"
)

// expRegisters is a vector of float64 minima shared by the exp variants.
type expRegisters []float64

func newExpRegisters(m int) expRegisters {
	regs := make(expRegisters, m)
	for i := range regs {
		regs[i] = math.Inf(1)
	}
	return regs
}

// estimate is the MLE (k-1)/Σ over the k finite registers.
func (r expRegisters) estimate() float64 {
	finite := make([]float64, 0, len(r))
	for _, v := range r {
		if !math.IsInf(v, 1) {
			finite = append(finite, v)
		}
	}
	return expEstimate(finite)
}

func expEstimate(finite []float64) float64 {
	k := len(finite)
	if k == 0 {
		return 0
	}
	sum := floats.SumCompensated(finite)
	if k == 1 {
		return 1 / sum
	}
	return float64(k-1) / sum
}

func (r expRegisters) matches(o expRegisters) float64 {
	equal := 0
	for i, v := range r {
		if v == o[i] {
			equal++
		}
	}
	return float64(equal) / float64(len(r))
}

func (r expRegisters) bytes() int {
	return cap(r) * int(unsafe.Sizeof(float64(0)))
}

func (r expRegisters) load(st *State) error {
	if len(st.Floats) != len(r) {
		return fmt.Errorf("%w: %d float registers, m=%d", ErrState, len(st.Floats), len(r))
	}
	for i, v := range st.Floats {
		if math.IsNaN(v) || v < 0 {
			return fmt.Errorf("%w: register %d holds %v", ErrState, i, v)
		}
	}
	copy(r, st.Floats)
	return nil
}

// ExpSketch is the reference variant: one float64 minimum per register,
// updated with one hash per register per element.
type ExpSketch struct {
	core
	regs expRegisters
}

func NewExpSketch(m int, seeds []uint32, opts ...Option) (*ExpSketch, error) {
	c, err := newCore(Exp, m, seeds, opts)
	if err != nil {
		return nil, err
	}
	return &ExpSketch{core: c, regs: newExpRegisters(m)}, nil
}

func (s *ExpSketch) Add(elem string, weight float64) error {
	if err := validateWeight(weight); err != nil {
		return err
	}
	s.addRange(elem, weight, 0, s.m)
	return nil
}

func (s *ExpSketch) AddMany(elems []string, weights []float64) error {
	if err := validateBatch(elems, weights); err != nil {
		return err
	}
	forRegisterChunks(s.m, len(elems), func(lo, hi int) {
		for i, elem := range elems {
			s.addRange(elem, weights[i], lo, hi)
		}
	})
	return nil
}

func (s *ExpSketch) addRange(elem string, weight float64, lo, hi int) {
	for i := lo; i < hi; i++ {
		if v := s.draw(elem, i) / weight; v < s.regs[i] {
			s.regs[i] = v
		}
	}
}

func (s *ExpSketch) Estimate() float64 { return s.regs.estimate() }

func (s *ExpSketch) Jaccard(other Sketch) (float64, error) {
	o, ok := other.(*ExpSketch)
	if !ok {
		return 0, fmt.Errorf("%w: variant %s vs %s", ErrIncompatible, s.variant, other.Variant())
	}
	if err := s.compatible(&o.core); err != nil {
		return 0, err
	}
	return s.regs.matches(o.regs), nil
}

func (s *ExpSketch) MemoryUsageTotal() int {
	return s.core.bytes() + s.regs.bytes() + int(unsafe.Sizeof(s.regs))
}

func (s *ExpSketch) MemoryUsageWrite() int { return s.regs.bytes() + s.seeds.Bytes() }

func (s *ExpSketch) MemoryUsageEstimate() int { return s.regs.bytes() }

func (s *ExpSketch) Copy() Sketch {
	return &ExpSketch{core: s.clone(), regs: slices.Clone(s.regs)}
}

func (s *ExpSketch) State() *State {
	st := &State{Floats: slices.Clone(s.regs)}
	s.exportTo(st)
	return st
}

func (s *ExpSketch) load(st *State) error { return s.regs.load(st) }
