package sketch

import (
	"github.com/stretchr/testify/require"
	"math"
	"math/rand/v2"
	"testing"
)

func quantizedMinima(rng *rand.Rand, lambda, base float64, m int) []int64 {
	out := make([]int64, m)
	for i := range out {
		v := rng.ExpFloat64() / lambda
		out[i] = int64(math.Floor(-math.Log(v) / math.Log(base)))
	}
	return out
}

func TestMLERecoversRate(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 12))
	for _, base := range []float64{2, 1.5, 1.1} {
		for _, lambda := range []float64{0.01, 1, 2500} {
			values := quantizedMinima(rng, lambda, base, 5000)
			got := mle(histogram(values), censoring{base: base, bottom: math.MinInt32, top: math.MaxInt32})
			require.InEpsilon(t, lambda, got, 0.06, "base=%v lambda=%v", base, lambda)
		}
	}
}

func TestMLEHandlesCensoredRegisters(t *testing.T) {
	// all registers at the top clamp: only a lower bound on the rate is known,
	// the estimate must still be finite and positive
	bins := []bin{{r: 3, n: 10}}
	got := mle(bins, censoring{base: 2, bottom: -3, top: 3, capped: true})
	require.Greater(t, got, 0.0)
	require.False(t, math.IsInf(got, 0) || math.IsNaN(got))

	require.Zero(t, mle([]bin{{r: -3, n: 10}}, censoring{base: 2, bottom: -3, top: 3, capped: true}))
}

func TestExpTermsAreContinuous(t *testing.T) {
	lambda := 3.0
	d1Zero, d2Zero := expTerms(lambda, 0)
	d1Tiny, d2Tiny := expTerms(lambda, 1e-300)
	require.InEpsilon(t, d1Zero, d1Tiny, 1e-9)
	require.InEpsilon(t, d2Zero, d2Tiny, 1e-9)

	d1Big, d2Big := expTerms(lambda, 1e3)
	require.Zero(t, d1Big)
	require.Zero(t, d2Big)
}

func TestHistogramGroupsSortedRuns(t *testing.T) {
	require.Equal(t, []bin{{r: -1, n: 2}, {r: 4, n: 1}, {r: 7, n: 3}},
		histogram([]int64{7, -1, 4, 7, -1, 7}))
}
