package sketch

import (
	"math"
	"slices"
)

const (
	mleTolerance  = 1e-10
	mleIterations = 64
	expOverflow   = 700.0
)

// bin is a run of registers sharing one integer value.
type bin struct {
	r int64
	n float64
}

// histogram groups register values in ascending order.
func histogram(values []int64) []bin {
	slices.Sort(values)
	bins := make([]bin, 0, 16)
	for _, r := range values {
		if last := len(bins) - 1; last >= 0 && bins[last].r == r {
			bins[last].n++
			continue
		}
		bins = append(bins, bin{r: r, n: 1})
	}
	return bins
}

// censoring tells the estimator which register values carry only a bound.
type censoring struct {
	base   float64
	bottom int64 // nothing recorded: the minimum exceeds base^(-bottom-1)
	top    int64 // clamped: the minimum is at most base^-top
	capped bool  // whether top censoring applies at all
}

// pow returns base^e, exact for base 2.
func (c censoring) pow(e int64) float64 {
	if c.base == 2 {
		if e > math.MaxInt32 {
			return math.Inf(1)
		}
		if e < math.MinInt32 {
			return 0
		}
		return math.Ldexp(1, int(e))
	}
	return math.Pow(c.base, float64(e))
}

// expTerms returns c/(e^{λc}-1) and -c²e^{λc}/(e^{λc}-1)², the likelihood
// derivative terms of an interval whose width in rate units is c.
func expTerms(lambda, c float64) (d1, d2 float64) {
	a := lambda * c
	switch {
	case a == 0:
		return 1 / lambda, -1 / (lambda * lambda)
	case a > expOverflow:
		e := math.Exp(-a)
		return c * e, -c * c * e
	}
	em := math.Expm1(a)
	d1 = c / em
	return d1, -d1 * d1 * (em + 1)
}

// mle solves the censored likelihood of integer registers for the total
// weight by Newton iteration. Register value r says the minimum lies in
// (base^(-r-1), base^-r].
func mle(bins []bin, cs censoring) float64 {
	var filled, sum float64
	for _, b := range bins {
		if b.r == cs.bottom {
			continue
		}
		filled += b.n
		sum += b.n * cs.pow(-b.r)
	}
	if filled == 0 {
		return 0
	}
	start := (filled - 1) / sum
	if filled == 1 {
		start = 1 / sum
	}
	if !(start > 0) || math.IsInf(start, 0) {
		return start
	}

	lambda := start
	for it := 0; it < mleIterations; it++ {
		var d1, d2 float64
		for _, b := range bins {
			switch {
			case b.r == cs.bottom:
				d1 -= b.n * cs.pow(-b.r-1)
			case cs.capped && b.r == cs.top:
				t1, t2 := expTerms(lambda, cs.pow(-b.r))
				d1 += b.n * t1
				d2 += b.n * t2
			default:
				x := cs.pow(-b.r - 1)
				t1, t2 := expTerms(lambda, (cs.base-1)*x)
				d1 += b.n * (t1 - x)
				d2 += b.n * t2
			}
		}
		if !(d2 < 0) {
			break
		}
		next := lambda - d1/d2
		if !(next > 0) {
			next = lambda / 2
		}
		if math.Abs(next-lambda) <= mleTolerance*lambda {
			lambda = next
			break
		}
		lambda = next
	}
	if math.IsNaN(lambda) || math.IsInf(lambda, 0) || !(lambda > 0) {
		return start
	}
	return lambda
}
