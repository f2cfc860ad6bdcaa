package sketch

import (
	"fmt"
	"math"
	"slices"
	"unsafe"
)

// QDynSketch routes each element to a single register chosen by g_seed and
// estimates with a running accumulator: every register change adds w/p, where
// p is the probability, under the state before the change, that an element of
// weight w changes some register. The registers and the histogram of their
// values depend only on the multiset of inserted elements. The accumulator
// depends on insertion order, though it is unbiased for every order.
type QDynSketch struct {
	core
	lv          levels
	hist        []uint32 // hist[v-rMin] registers hold value v
	gSeed       uint32
	cardinality float64
}

func NewQDynSketch(m int, seeds []uint32, amountBits uint8, gSeed uint32, opts ...Option) (*QDynSketch, error) {
	if err := validateAmountBits(amountBits); err != nil {
		return nil, err
	}
	if amountBits > maxDynAmountBits {
		return nil, fmt.Errorf("%w: q_dyn keeps a histogram of 2^bits values, at most %d bits, got %d",
			ErrAmountBits, maxDynAmountBits, amountBits)
	}
	c, err := newCore(QDyn, m, seeds, opts)
	if err != nil {
		return nil, err
	}
	half := int64(1) << (amountBits - 1)
	hist := make([]uint32, 1<<amountBits)
	hist[0] = uint32(m)
	return &QDynSketch{
		core:  c,
		lv:    newLevels(m, amountBits, 2, -half, half-1),
		hist:  hist,
		gSeed: gSeed,
	}, nil
}

func (s *QDynSketch) Add(elem string, weight float64) error {
	if err := validateWeight(weight); err != nil {
		return err
	}
	s.add(elem, weight)
	return nil
}

func (s *QDynSketch) AddMany(elems []string, weights []float64) error {
	if err := validateBatch(elems, weights); err != nil {
		return err
	}
	for i, elem := range elems {
		s.add(elem, weights[i])
	}
	return nil
}

func (s *QDynSketch) add(elem string, weight float64) {
	j := int(s.family.Sum64(elem, s.gSeed) % uint64(s.m))
	q, ok := s.lv.quantize(s.draw(elem, j) / weight)
	if !ok {
		return
	}
	cur := s.lv.get(j)
	if q <= cur {
		return
	}
	if p := s.changeProbability(weight); p > 0 {
		s.cardinality += weight / p
	}
	s.hist[cur-s.lv.rMin]--
	s.hist[q-s.lv.rMin]++
	s.lv.set(j, q)
}

// changeProbability is (1/m)·Σ_v T[v]·(1-exp(-w·2^-(v+1))); registers at the
// top value cannot change and contribute nothing.
func (s *QDynSketch) changeProbability(weight float64) float64 {
	var p float64
	for idx, n := range s.hist {
		v := int64(idx) + s.lv.rMin
		if n == 0 || v == s.lv.rMax {
			continue
		}
		p += float64(n) * -math.Expm1(-weight*math.Ldexp(1, int(-(v+1))))
	}
	return p / float64(s.m)
}

func (s *QDynSketch) Estimate() float64 { return s.cardinality }

func (s *QDynSketch) Jaccard(other Sketch) (float64, error) {
	o, ok := other.(*QDynSketch)
	if !ok {
		return 0, fmt.Errorf("%w: variant %s vs %s", ErrIncompatible, s.variant, other.Variant())
	}
	if err := s.compatible(&o.core); err != nil {
		return 0, err
	}
	if err := s.lv.sameEncoding(&o.lv); err != nil {
		return 0, err
	}
	if s.gSeed != o.gSeed {
		return 0, fmt.Errorf("%w: g_seed %d vs %d", ErrIncompatible, s.gSeed, o.gSeed)
	}
	// an element reaches one register only, so untouched pairs say nothing
	return s.lv.touchedMatches(&o.lv), nil
}

func (s *QDynSketch) histBytes() int {
	return cap(s.hist) * int(unsafe.Sizeof(uint32(0)))
}

func (s *QDynSketch) MemoryUsageTotal() int {
	return s.core.bytes() + s.lv.bytes() + int(unsafe.Sizeof(s.lv.regs)) + s.histBytes() +
		int(unsafe.Sizeof(s.hist)) + int(unsafe.Sizeof(s.gSeed)) + int(unsafe.Sizeof(s.cardinality))
}

func (s *QDynSketch) MemoryUsageWrite() int {
	return s.lv.bytes() + s.histBytes() + s.seeds.Bytes() + int(unsafe.Sizeof(s.gSeed)) +
		int(unsafe.Sizeof(s.cardinality))
}

func (s *QDynSketch) MemoryUsageEstimate() int { return int(unsafe.Sizeof(s.cardinality)) }

func (s *QDynSketch) Copy() Sketch {
	return &QDynSketch{
		core:        s.clone(),
		lv:          s.lv.clone(),
		hist:        slices.Clone(s.hist),
		gSeed:       s.gSeed,
		cardinality: s.cardinality,
	}
}

func (s *QDynSketch) State() *State {
	st := &State{
		Levels:      s.lv.export(),
		Histogram:   slices.Clone(s.hist),
		GSeed:       s.gSeed,
		Cardinality: s.cardinality,
	}
	s.exportTo(st)
	s.lv.exportTo(st, s.variant)
	return st
}

func (s *QDynSketch) load(st *State) error {
	if err := s.lv.load(st.Levels); err != nil {
		return err
	}
	hist := make([]uint32, len(s.hist))
	for i := 0; i < s.m; i++ {
		hist[s.lv.get(i)-s.lv.rMin]++
	}
	if !slices.Equal(hist, st.Histogram) {
		return fmt.Errorf("%w: histogram does not match registers", ErrState)
	}
	if math.IsNaN(st.Cardinality) || st.Cardinality < 0 {
		return fmt.Errorf("%w: cardinality %v", ErrState, st.Cardinality)
	}
	s.hist = hist
	s.cardinality = st.Cardinality
	return nil
}
