package sketch

import (
	"fmt"
	"math"
	"slices"
	"unsafe"
)

// Exp32Sketch halves register memory by keeping float32 minima. Candidates
// are rounded before comparison, so the update is still an exact minimum.
type Exp32Sketch struct {
	core
	regs []float32
}

func NewExp32Sketch(m int, seeds []uint32, opts ...Option) (*Exp32Sketch, error) {
	c, err := newCore(Exp32, m, seeds, opts)
	if err != nil {
		return nil, err
	}
	regs := make([]float32, m)
	for i := range regs {
		regs[i] = float32(math.Inf(1))
	}
	return &Exp32Sketch{core: c, regs: regs}, nil
}

func (s *Exp32Sketch) Add(elem string, weight float64) error {
	if err := validateWeight(weight); err != nil {
		return err
	}
	s.addRange(elem, weight, 0, s.m)
	return nil
}

func (s *Exp32Sketch) AddMany(elems []string, weights []float64) error {
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

func (s *Exp32Sketch) addRange(elem string, weight float64, lo, hi int) {
	for i := lo; i < hi; i++ {
		if v := float32(s.draw(elem, i) / weight); v < s.regs[i] {
			s.regs[i] = v
		}
	}
}

func (s *Exp32Sketch) Estimate() float64 {
	finite := make([]float64, 0, len(s.regs))
	for _, v := range s.regs {
		if !math.IsInf(float64(v), 1) {
			finite = append(finite, float64(v))
		}
	}
	return expEstimate(finite)
}

func (s *Exp32Sketch) Jaccard(other Sketch) (float64, error) {
	o, ok := other.(*Exp32Sketch)
	if !ok {
		return 0, fmt.Errorf("%w: variant %s vs %s", ErrIncompatible, s.variant, other.Variant())
	}
	if err := s.compatible(&o.core); err != nil {
		return 0, err
	}
	equal := 0
	for i, v := range s.regs {
		if v == o.regs[i] {
			equal++
		}
	}
	return float64(equal) / float64(s.m), nil
}

func (s *Exp32Sketch) regBytes() int {
	return cap(s.regs) * int(unsafe.Sizeof(float32(0)))
}

func (s *Exp32Sketch) MemoryUsageTotal() int {
	return s.core.bytes() + s.regBytes() + int(unsafe.Sizeof(s.regs))
}

func (s *Exp32Sketch) MemoryUsageWrite() int { return s.regBytes() + s.seeds.Bytes() }

func (s *Exp32Sketch) MemoryUsageEstimate() int { return s.regBytes() }

func (s *Exp32Sketch) Copy() Sketch {
	return &Exp32Sketch{core: s.clone(), regs: slices.Clone(s.regs)}
}

func (s *Exp32Sketch) State() *State {
	st := &State{Floats32: slices.Clone(s.regs)}
	s.exportTo(st)
	return st
}

func (s *Exp32Sketch) load(st *State) error {
	if len(st.Floats32) != s.m {
		return fmt.Errorf("%w: %d float32 registers, m=%d", ErrState, len(st.Floats32), s.m)
	}
	for i, v := range st.Floats32 {
		if math.IsNaN(float64(v)) || v < 0 {
			return fmt.Errorf("%w: register %d holds %v", ErrState, i, v)
		}
	}
	copy(s.regs, st.Floats32)
	return nil
}
