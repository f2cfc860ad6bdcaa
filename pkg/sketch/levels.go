package sketch

import (
	"fmt"
	"github.com/Borislavv/wcsketch/pkg/buffer"
	"math"
	"unsafe"
)

// levels is a packed vector of signed integer registers. Value r records a
// minimum in (base^(-r-1), base^-r]; larger is rarer. Fields are stored
// biased by -rMin.
type levels struct {
	regs   buffer.Packed
	rMin   int64
	rMax   int64
	base   float64
	lnBase float64
	bits   uint8
}

// newLevels allocates registers in [rMin, rMax], all at rMin.
func newLevels(m int, bits uint8, base float64, rMin, rMax int64) levels {
	return levels{
		regs:   buffer.NewPacked(m, bits),
		rMin:   rMin,
		rMax:   rMax,
		base:   base,
		lnBase: math.Log(base),
		bits:   bits,
	}
}

// symmetricRange is [-2^(b-1)+1, 2^(b-1)-1].
func symmetricRange(bits uint8) (int64, int64) {
	half := int64(1) << (bits - 1)
	return -half + 1, half - 1
}

func (l *levels) get(i int) int64 { return int64(l.regs.Get(i)) + l.rMin }

func (l *levels) set(i int, r int64) { l.regs.Set(i, uint64(r-l.rMin)) }

// level is floor(-log_base v), without clamping.
func (l *levels) level(v float64) float64 {
	if l.base == 2 {
		return math.Floor(-math.Log2(v))
	}
	return math.Floor(-math.Log(v) / l.lnBase)
}

// quantize clamps the level of v to rMax. ok is false when the level falls
// below rMin and so cannot move any register.
func (l *levels) quantize(v float64) (r int64, ok bool) {
	q := l.level(v)
	switch {
	case q >= float64(l.rMax):
		return l.rMax, true
	case q < float64(l.rMin):
		return 0, false
	}
	return int64(q), true
}

// ceiling is base^-r, the largest minimum register value r stands for.
func (l *levels) ceiling(r int64) float64 {
	if l.base == 2 {
		return math.Ldexp(1, int(-r))
	}
	return math.Pow(l.base, float64(-r))
}

func (l *levels) min() int64 { return int64(l.regs.Min()) + l.rMin }

func (l *levels) estimate(capped bool) float64 {
	values := make([]int64, l.regs.Len())
	for i := range values {
		values[i] = l.get(i)
	}
	return mle(histogram(values), censoring{base: l.base, bottom: l.rMin, top: l.rMax, capped: capped})
}

func (l *levels) matches(o *levels) float64 {
	if l.regs.Equal(&o.regs) {
		return 1
	}
	equal := 0
	for i := 0; i < l.regs.Len(); i++ {
		if l.regs.Get(i) == o.regs.Get(i) {
			equal++
		}
	}
	return float64(equal) / float64(l.regs.Len())
}

// touchedMatches is the fraction of equal registers among those above rMin
// on either side; 0 when no register was touched.
func (l *levels) touchedMatches(o *levels) float64 {
	equal, touched := 0, 0
	for i := 0; i < l.regs.Len(); i++ {
		a, b := l.regs.Get(i), o.regs.Get(i)
		if a == 0 && b == 0 {
			continue
		}
		touched++
		if a == b {
			equal++
		}
	}
	if touched == 0 {
		return 0
	}
	return float64(equal) / float64(touched)
}

func (l *levels) sameEncoding(o *levels) error {
	if l.bits != o.bits || l.base != o.base {
		return fmt.Errorf("%w: encoding %d bits base %v vs %d bits base %v",
			ErrIncompatible, l.bits, l.base, o.bits, o.base)
	}
	return nil
}

func (l *levels) clone() levels {
	c := *l
	c.regs = l.regs.Clone()
	return c
}

// params is the size of the encoding fields read on both paths.
func (l *levels) params() int {
	return int(unsafe.Sizeof(l.rMin)) + int(unsafe.Sizeof(l.rMax)) + int(unsafe.Sizeof(l.base)) +
		int(unsafe.Sizeof(l.lnBase)) + int(unsafe.Sizeof(l.bits))
}

func (l *levels) bytes() int { return l.regs.Bytes() + l.params() }

func (l *levels) export() []int32 {
	out := make([]int32, l.regs.Len())
	for i := range out {
		out[i] = int32(l.get(i))
	}
	return out
}

func (l *levels) load(values []int32) error {
	if len(values) != l.regs.Len() {
		return fmt.Errorf("%w: %d integer registers, m=%d", ErrState, len(values), l.regs.Len())
	}
	for i, r := range values {
		if int64(r) < l.rMin || int64(r) > l.rMax {
			return fmt.Errorf("%w: register %d holds %d outside [%d, %d]", ErrState, i, r, l.rMin, l.rMax)
		}
	}
	for i, r := range values {
		l.set(i, int64(r))
	}
	return nil
}

func (l *levels) exportTo(st *State, v Variant) {
	st.AmountBits = l.bits
	if v.UsesLogBase() {
		st.LogBase = l.base
	}
}
