package sketch

import (
	"fmt"
	"github.com/rs/zerolog/log"
	"math"
	"unsafe"
)

// maxShiftedLevel bounds candidate levels so an underflowed draw cannot push
// the offset past what an int64 holds.
const maxShiftedLevel = 1 << 40

// window is an unsigned register vector plus a sliding offset: the real level
// of register i is get(i)+offset. Register 0 means nothing above the offset was
// seen. A level beyond the top raises the offset instead of being clamped.
type window struct {
	lv     levels // rMin 0, rMax 2^b-1
	offset int64
}

func newWindow(m int, bits uint8, base float64) window {
	rMin, _ := symmetricRange(bits)
	return window{
		lv:     newLevels(m, bits, base, 0, int64(1)<<bits-1),
		offset: rMin,
	}
}

// offer applies level q to register i and reports whether the offset moved.
func (w *window) offer(i int, q float64) (shifted bool) {
	if q <= float64(w.offset) {
		return false
	}
	rel := int64(math.Min(q, maxShiftedLevel)) - w.offset
	if rel > w.lv.rMax {
		w.shift(rel - w.lv.rMax)
		rel = w.lv.rMax
		shifted = true
	}
	if rel > w.lv.get(i) {
		w.lv.set(i, rel)
	}
	return shifted
}

// shift raises the offset by d and lowers every register by d, floored at 0.
func (w *window) shift(d int64) {
	w.offset += d
	for i := 0; i < w.lv.regs.Len(); i++ {
		w.lv.set(i, max(0, w.lv.get(i)-d))
	}
	log.Trace().Int64("offset", w.offset).Int64("by", d).Msg("[sketch] shifted register window")
}

func (w *window) estimate() float64 {
	values := make([]int64, w.lv.regs.Len())
	for i := range values {
		values[i] = w.lv.get(i) + w.offset
	}
	return mle(histogram(values), censoring{base: w.lv.base, bottom: w.offset})
}

// matches compares real levels, so windows at different offsets still line up.
func (w *window) matches(o *window) float64 {
	equal := 0
	for i := 0; i < w.lv.regs.Len(); i++ {
		if w.lv.get(i)+w.offset == o.lv.get(i)+o.offset {
			equal++
		}
	}
	return float64(equal) / float64(w.lv.regs.Len())
}

func (w *window) clone() window { return window{lv: w.lv.clone(), offset: w.offset} }

func (w *window) bytes() int { return w.lv.bytes() + int(unsafe.Sizeof(w.offset)) }

func (w *window) exportTo(st *State, v Variant) {
	st.Levels = w.lv.export()
	st.Offset = w.offset
	w.lv.exportTo(st, v)
}

func (w *window) load(st *State) error {
	return w.lv.load(st.Levels)
}

func (w *window) restoreOffset(st *State) { w.offset = st.Offset }

// ShiftedLogExpSketch stores log levels relative to a sliding offset, trading
// the fixed clamp of LogExpSketch for a window that follows the data.
type ShiftedLogExpSketch struct {
	core
	win window
}

func NewShiftedLogExpSketch(m int, seeds []uint32, amountBits uint8, base float64, opts ...Option) (*ShiftedLogExpSketch, error) {
	if err := validateAmountBits(amountBits); err != nil {
		return nil, err
	}
	if err := validateLogBase(base); err != nil {
		return nil, err
	}
	c, err := newCore(ShiftedLog, m, seeds, opts)
	if err != nil {
		return nil, err
	}
	return &ShiftedLogExpSketch{core: c, win: newWindow(m, amountBits, base)}, nil
}

func (s *ShiftedLogExpSketch) Add(elem string, weight float64) error {
	if err := validateWeight(weight); err != nil {
		return err
	}
	s.add(elem, weight)
	return nil
}

func (s *ShiftedLogExpSketch) AddMany(elems []string, weights []float64) error {
	if err := validateBatch(elems, weights); err != nil {
		return err
	}
	for i, elem := range elems {
		s.add(elem, weights[i])
	}
	return nil
}

func (s *ShiftedLogExpSketch) add(elem string, weight float64) {
	for i := 0; i < s.m; i++ {
		s.win.offer(i, s.win.lv.level(s.draw(elem, i)/weight))
	}
}

func (s *ShiftedLogExpSketch) Estimate() float64 { return s.win.estimate() }

func (s *ShiftedLogExpSketch) Jaccard(other Sketch) (float64, error) {
	o, ok := other.(*ShiftedLogExpSketch)
	if !ok {
		return 0, fmt.Errorf("%w: variant %s vs %s", ErrIncompatible, s.variant, other.Variant())
	}
	if err := s.compatible(&o.core); err != nil {
		return 0, err
	}
	if err := s.win.lv.sameEncoding(&o.win.lv); err != nil {
		return 0, err
	}
	return s.win.matches(&o.win), nil
}

func (s *ShiftedLogExpSketch) MemoryUsageTotal() int {
	return s.core.bytes() + s.win.bytes() + int(unsafe.Sizeof(s.win.lv.regs))
}

func (s *ShiftedLogExpSketch) MemoryUsageWrite() int { return s.win.bytes() + s.seeds.Bytes() }

func (s *ShiftedLogExpSketch) MemoryUsageEstimate() int { return s.win.bytes() }

func (s *ShiftedLogExpSketch) Copy() Sketch {
	return &ShiftedLogExpSketch{core: s.clone(), win: s.win.clone()}
}

func (s *ShiftedLogExpSketch) State() *State {
	st := &State{}
	s.exportTo(st)
	s.win.exportTo(st, s.variant)
	return st
}

func (s *ShiftedLogExpSketch) load(st *State) error {
	if err := s.win.load(st); err != nil {
		return err
	}
	s.win.restoreOffset(st)
	return nil
}

// FastShiftedLogExpSketch feeds the window from sortedDraws; the level of
// each step is taken from the running sum.
type FastShiftedLogExpSketch struct {
	core
	win     window
	draws   sortedDraws
	minimum int64 // smallest raw register
}

func NewFastShiftedLogExpSketch(m int, seeds []uint32, amountBits uint8, base float64, opts ...Option) (*FastShiftedLogExpSketch, error) {
	if err := validateAmountBits(amountBits); err != nil {
		return nil, err
	}
	if err := validateLogBase(base); err != nil {
		return nil, err
	}
	c, err := newCore(FastShiftedLog, m, seeds, opts)
	if err != nil {
		return nil, err
	}
	return &FastShiftedLogExpSketch{
		core:  c,
		win:   newWindow(m, amountBits, base),
		draws: newSortedDraws(m),
	}, nil
}

func (s *FastShiftedLogExpSketch) Add(elem string, weight float64) error {
	if err := validateWeight(weight); err != nil {
		return err
	}
	s.add(elem, weight)
	return nil
}

func (s *FastShiftedLogExpSketch) AddMany(elems []string, weights []float64) error {
	if err := validateBatch(elems, weights); err != nil {
		return err
	}
	for i, elem := range elems {
		s.add(elem, weights[i])
	}
	return nil
}

func (s *FastShiftedLogExpSketch) add(elem string, weight float64) {
	s.draws.reset(&s.core, elem)
	limit := s.win.lv.ceiling(s.minimum + s.win.offset)
	var sum float64
	for k := 0; k < s.m; k++ {
		sum = s.draws.step(&s.core, elem, weight, sum, k)
		if sum >= limit {
			return
		}
		j := s.draws.register(k)
		prev := s.win.lv.get(j)
		shifted := s.win.offer(j, s.win.lv.level(sum))
		if shifted || (prev == s.minimum && s.win.lv.get(j) != prev) {
			s.minimum = s.win.lv.min()
			limit = s.win.lv.ceiling(s.minimum + s.win.offset)
		}
	}
}

func (s *FastShiftedLogExpSketch) Estimate() float64 { return s.win.estimate() }

func (s *FastShiftedLogExpSketch) Jaccard(other Sketch) (float64, error) {
	o, ok := other.(*FastShiftedLogExpSketch)
	if !ok {
		return 0, fmt.Errorf("%w: variant %s vs %s", ErrIncompatible, s.variant, other.Variant())
	}
	if err := s.compatible(&o.core); err != nil {
		return 0, err
	}
	if err := s.win.lv.sameEncoding(&o.win.lv); err != nil {
		return 0, err
	}
	return s.win.matches(&o.win), nil
}

func (s *FastShiftedLogExpSketch) MemoryUsageTotal() int {
	return s.core.bytes() + s.win.bytes() + int(unsafe.Sizeof(s.win.lv.regs)) +
		s.draws.perm.BytesTotal() + int(unsafe.Sizeof(s.minimum))
}

func (s *FastShiftedLogExpSketch) MemoryUsageWrite() int {
	return s.win.bytes() + s.seeds.Bytes() + s.draws.perm.BytesWrite() + int(unsafe.Sizeof(s.minimum))
}

func (s *FastShiftedLogExpSketch) MemoryUsageEstimate() int { return s.win.bytes() }

func (s *FastShiftedLogExpSketch) Copy() Sketch {
	return &FastShiftedLogExpSketch{
		core:    s.clone(),
		win:     s.win.clone(),
		draws:   s.draws.clone(),
		minimum: s.minimum,
	}
}

func (s *FastShiftedLogExpSketch) State() *State {
	st := &State{}
	s.exportTo(st)
	s.win.exportTo(st, s.variant)
	return st
}

func (s *FastShiftedLogExpSketch) load(st *State) error {
	if err := s.win.load(st); err != nil {
		return err
	}
	s.win.restoreOffset(st)
	s.minimum = s.win.lv.min()
	return nil
}
