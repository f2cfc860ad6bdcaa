package sketch

import (
	"fmt"
	"unsafe"
)

// LevelSketch stores floor(-log_base v) of every register minimum in
// amount_bits bits. With base 2 it is the q variant, otherwise log.
type LevelSketch struct {
	core
	lv levels
}

// NewQSketch builds base-2 quantized registers of amountBits bits.
func NewQSketch(m int, seeds []uint32, amountBits uint8, opts ...Option) (*LevelSketch, error) {
	return newLevelSketch(Q, m, seeds, amountBits, 2, opts)
}

// NewLogExpSketch builds registers quantized on a logarithm of the given base.
func NewLogExpSketch(m int, seeds []uint32, amountBits uint8, base float64, opts ...Option) (*LevelSketch, error) {
	if err := validateLogBase(base); err != nil {
		return nil, err
	}
	return newLevelSketch(Log, m, seeds, amountBits, base, opts)
}

func newLevelSketch(v Variant, m int, seeds []uint32, bits uint8, base float64, opts []Option) (*LevelSketch, error) {
	if err := validateSymmetricBits(bits); err != nil {
		return nil, err
	}
	c, err := newCore(v, m, seeds, opts)
	if err != nil {
		return nil, err
	}
	rMin, rMax := symmetricRange(bits)
	return &LevelSketch{core: c, lv: newLevels(m, bits, base, rMin, rMax)}, nil
}

func (s *LevelSketch) Add(elem string, weight float64) error {
	if err := validateWeight(weight); err != nil {
		return err
	}
	s.addRange(elem, weight, 0, s.m)
	return nil
}

func (s *LevelSketch) AddMany(elems []string, weights []float64) error {
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

func (s *LevelSketch) addRange(elem string, weight float64, lo, hi int) {
	for i := lo; i < hi; i++ {
		if q, ok := s.lv.quantize(s.draw(elem, i) / weight); ok && q > s.lv.get(i) {
			s.lv.set(i, q)
		}
	}
}

func (s *LevelSketch) Estimate() float64 { return s.lv.estimate(true) }

func (s *LevelSketch) Jaccard(other Sketch) (float64, error) {
	o, ok := other.(*LevelSketch)
	if !ok {
		return 0, fmt.Errorf("%w: variant %s vs %s", ErrIncompatible, s.variant, other.Variant())
	}
	if err := s.compatible(&o.core); err != nil {
		return 0, err
	}
	if err := s.lv.sameEncoding(&o.lv); err != nil {
		return 0, err
	}
	return s.lv.matches(&o.lv), nil
}

func (s *LevelSketch) MemoryUsageTotal() int {
	return s.core.bytes() + s.lv.bytes() + int(unsafe.Sizeof(s.lv.regs))
}

func (s *LevelSketch) MemoryUsageWrite() int { return s.lv.bytes() + s.seeds.Bytes() }

func (s *LevelSketch) MemoryUsageEstimate() int { return s.lv.bytes() }

func (s *LevelSketch) Copy() Sketch {
	return &LevelSketch{core: s.clone(), lv: s.lv.clone()}
}

func (s *LevelSketch) State() *State {
	st := &State{Levels: s.lv.export()}
	s.exportTo(st)
	s.lv.exportTo(st, s.variant)
	return st
}

func (s *LevelSketch) load(st *State) error { return s.lv.load(st.Levels) }

// FastLevelSketch is LevelSketch fed by sortedDraws. The walk stops once the
// running sum reaches base^-min(registers), the widest value any register can
// still take.
type FastLevelSketch struct {
	core
	lv      levels
	draws   sortedDraws
	minimum int64
}

// NewFastQSketch is the sorted-exponential form of NewQSketch.
func NewFastQSketch(m int, seeds []uint32, amountBits uint8, opts ...Option) (*FastLevelSketch, error) {
	return newFastLevelSketch(FastQ, m, seeds, amountBits, 2, opts)
}

// NewFastLogExpSketch is the sorted-exponential form of NewLogExpSketch.
func NewFastLogExpSketch(m int, seeds []uint32, amountBits uint8, base float64, opts ...Option) (*FastLevelSketch, error) {
	if err := validateLogBase(base); err != nil {
		return nil, err
	}
	return newFastLevelSketch(FastLog, m, seeds, amountBits, base, opts)
}

func newFastLevelSketch(v Variant, m int, seeds []uint32, bits uint8, base float64, opts []Option) (*FastLevelSketch, error) {
	if err := validateSymmetricBits(bits); err != nil {
		return nil, err
	}
	c, err := newCore(v, m, seeds, opts)
	if err != nil {
		return nil, err
	}
	rMin, rMax := symmetricRange(bits)
	return &FastLevelSketch{
		core:    c,
		lv:      newLevels(m, bits, base, rMin, rMax),
		draws:   newSortedDraws(m),
		minimum: rMin,
	}, nil
}

func (s *FastLevelSketch) Add(elem string, weight float64) error {
	if err := validateWeight(weight); err != nil {
		return err
	}
	s.add(elem, weight)
	return nil
}

func (s *FastLevelSketch) AddMany(elems []string, weights []float64) error {
	if err := validateBatch(elems, weights); err != nil {
		return err
	}
	for i, elem := range elems {
		s.add(elem, weights[i])
	}
	return nil
}

func (s *FastLevelSketch) add(elem string, weight float64) {
	s.draws.reset(&s.core, elem)
	limit := s.lv.ceiling(s.minimum)
	var sum float64
	for k := 0; k < s.m; k++ {
		sum = s.draws.step(&s.core, elem, weight, sum, k)
		if sum >= limit {
			return
		}
		j := s.draws.register(k)
		q, ok := s.lv.quantize(sum)
		if !ok {
			continue
		}
		if prev := s.lv.get(j); q > prev {
			s.lv.set(j, q)
			if prev == s.minimum {
				s.minimum = s.lv.min()
				limit = s.lv.ceiling(s.minimum)
			}
		}
	}
}

func (s *FastLevelSketch) Estimate() float64 { return s.lv.estimate(true) }

func (s *FastLevelSketch) Jaccard(other Sketch) (float64, error) {
	o, ok := other.(*FastLevelSketch)
	if !ok {
		return 0, fmt.Errorf("%w: variant %s vs %s", ErrIncompatible, s.variant, other.Variant())
	}
	if err := s.compatible(&o.core); err != nil {
		return 0, err
	}
	if err := s.lv.sameEncoding(&o.lv); err != nil {
		return 0, err
	}
	return s.lv.matches(&o.lv), nil
}

func (s *FastLevelSketch) MemoryUsageTotal() int {
	return s.core.bytes() + s.lv.bytes() + int(unsafe.Sizeof(s.lv.regs)) +
		s.draws.perm.BytesTotal() + int(unsafe.Sizeof(s.minimum))
}

func (s *FastLevelSketch) MemoryUsageWrite() int {
	return s.lv.bytes() + s.seeds.Bytes() + s.draws.perm.BytesWrite() + int(unsafe.Sizeof(s.minimum))
}

func (s *FastLevelSketch) MemoryUsageEstimate() int { return s.lv.bytes() }

func (s *FastLevelSketch) Copy() Sketch {
	return &FastLevelSketch{
		core:    s.clone(),
		lv:      s.lv.clone(),
		draws:   s.draws.clone(),
		minimum: s.minimum,
	}
}

func (s *FastLevelSketch) State() *State {
	st := &State{Levels: s.lv.export()}
	s.exportTo(st)
	s.lv.exportTo(st, s.variant)
	return st
}

func (s *FastLevelSketch) load(st *State) error {
	if err := s.lv.load(st.Levels); err != nil {
		return err
	}
	s.minimum = s.lv.min()
	return nil
}
