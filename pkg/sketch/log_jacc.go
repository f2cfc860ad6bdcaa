package sketch

import (
	"fmt"
	"github.com/Borislavv/wcsketch/pkg/buffer"
	"github.com/zeebo/xxh3"
	"math"
	"unsafe"
)

// LogJaccSketch is a log variant that also remembers, per register, a
// jaccard_bits fingerprint of the element holding it. Coarse levels collide
// often; fingerprints make the Jaccard estimate usable at small bit widths.
type LogJaccSketch struct {
	core
	lv  levels
	fps buffer.Packed // 0 means empty
}

func NewLogJaccSketch(m int, seeds []uint32, amountBits uint8, base float64, jaccardBits uint8, opts ...Option) (*LogJaccSketch, error) {
	if err := validateSymmetricBits(amountBits); err != nil {
		return nil, err
	}
	if err := validateLogBase(base); err != nil {
		return nil, err
	}
	if err := validateJaccardBits(jaccardBits); err != nil {
		return nil, err
	}
	c, err := newCore(LogJacc, m, seeds, opts)
	if err != nil {
		return nil, err
	}
	rMin, rMax := symmetricRange(amountBits)
	return &LogJaccSketch{
		core: c,
		lv:   newLevels(m, amountBits, base, rMin, rMax),
		fps:  buffer.NewPacked(m, jaccardBits),
	}, nil
}

// fingerprint maps elem into [1, 2^bits-1].
func fingerprint(elem string, bits uint8) uint64 {
	return xxh3.HashString(elem)%(uint64(1)<<bits-1) + 1
}

func (s *LogJaccSketch) Add(elem string, weight float64) error {
	if err := validateWeight(weight); err != nil {
		return err
	}
	s.addRange(elem, weight, fingerprint(elem, s.fps.Width()), 0, s.m)
	return nil
}

func (s *LogJaccSketch) AddMany(elems []string, weights []float64) error {
	if err := validateBatch(elems, weights); err != nil {
		return err
	}
	fps := make([]uint64, len(elems))
	for i, elem := range elems {
		fps[i] = fingerprint(elem, s.fps.Width())
	}
	forRegisterChunks(s.m, len(elems), func(lo, hi int) {
		for i, elem := range elems {
			s.addRange(elem, weights[i], fps[i], lo, hi)
		}
	})
	return nil
}

// addRange moves a register to a higher level, or keeps the level and takes
// the smaller fingerprint on a tie.
func (s *LogJaccSketch) addRange(elem string, weight float64, fp uint64, lo, hi int) {
	for i := lo; i < hi; i++ {
		q, ok := s.lv.quantize(s.draw(elem, i) / weight)
		if !ok {
			continue
		}
		cur := s.lv.get(i)
		if q < cur {
			continue
		}
		if q == cur {
			if held := s.fps.Get(i); held != 0 && held <= fp {
				continue
			}
		}
		s.lv.set(i, q)
		s.fps.Set(i, fp)
	}
}

func (s *LogJaccSketch) Estimate() float64 { return s.lv.estimate(true) }

// Jaccard corrects the fingerprint match rate p for chance collisions:
// max(0, (g·p-1)/(g-1)) with g = 2^jaccard_bits-1.
func (s *LogJaccSketch) Jaccard(other Sketch) (float64, error) {
	o, ok := other.(*LogJaccSketch)
	if !ok {
		return 0, fmt.Errorf("%w: variant %s vs %s", ErrIncompatible, s.variant, other.Variant())
	}
	if err := s.compatible(&o.core); err != nil {
		return 0, err
	}
	if err := s.lv.sameEncoding(&o.lv); err != nil {
		return 0, err
	}
	if s.fps.Width() != o.fps.Width() {
		return 0, fmt.Errorf("%w: jaccard bits %d vs %d", ErrIncompatible, s.fps.Width(), o.fps.Width())
	}
	equal := 0
	for i := 0; i < s.m; i++ {
		if fp := s.fps.Get(i); fp != 0 && fp == o.fps.Get(i) {
			equal++
		}
	}
	p := float64(equal) / float64(s.m)
	g := float64(uint64(1)<<s.fps.Width() - 1)
	return math.Max(0, (g*p-1)/(g-1)), nil
}

func (s *LogJaccSketch) MemoryUsageTotal() int {
	return s.core.bytes() + s.lv.bytes() + s.fps.Bytes() + int(unsafe.Sizeof(s.lv.regs)) + int(unsafe.Sizeof(s.fps))
}

func (s *LogJaccSketch) MemoryUsageWrite() int {
	return s.lv.bytes() + s.fps.Bytes() + s.seeds.Bytes()
}

func (s *LogJaccSketch) MemoryUsageEstimate() int { return s.lv.bytes() }

func (s *LogJaccSketch) Copy() Sketch {
	return &LogJaccSketch{core: s.clone(), lv: s.lv.clone(), fps: s.fps.Clone()}
}

func (s *LogJaccSketch) State() *State {
	st := &State{Levels: s.lv.export(), Fingerprints: make([]uint32, s.m), JaccardBits: s.fps.Width()}
	for i := range st.Fingerprints {
		st.Fingerprints[i] = uint32(s.fps.Get(i))
	}
	s.exportTo(st)
	s.lv.exportTo(st, s.variant)
	return st
}

func (s *LogJaccSketch) load(st *State) error {
	if len(st.Fingerprints) != s.m {
		return fmt.Errorf("%w: %d fingerprints, m=%d", ErrState, len(st.Fingerprints), s.m)
	}
	limit := uint64(1)<<s.fps.Width() - 1
	for i, fp := range st.Fingerprints {
		if uint64(fp) > limit {
			return fmt.Errorf("%w: fingerprint %d exceeds %d bits", ErrState, i, s.fps.Width())
		}
	}
	if err := s.lv.load(st.Levels); err != nil {
		return err
	}
	for i, fp := range st.Fingerprints {
		s.fps.Set(i, uint64(fp))
	}
	return nil
}
