package sketch

import (
	"errors"
	"fmt"
	"github.com/Borislavv/wcsketch/pkg/hash"
	"github.com/google/go-cmp/cmp"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/tinylib/msgp/msgp"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"math"
	"math/rand/v2"
	"slices"
	"testing"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)
}

func testOptions(v Variant, m int) Options {
	o := Options{Variant: v, M: m, AmountBits: 8, GSeed: 42, JaccardBits: 16}
	if v.UsesLogBase() {
		o.LogBase = 1.2
	}
	return o
}

func newTestSketch(t testing.TB, v Variant, m int) Sketch {
	t.Helper()
	s, err := New(testOptions(v, m))
	require.NoError(t, err)
	return s
}

func elements(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s-%d", prefix, i)
	}
	return out
}

func constant(n int, w float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = w
	}
	return out
}

// registerState drops the order-dependent q_dyn accumulator.
func registerState(s Sketch) *State {
	st := s.State()
	st.Cardinality = 0
	return st
}

func TestNewRejectsInvalidParameters(t *testing.T) {
	cases := []struct {
		name string
		opts Options
		want error
	}{
		{"zero m", Options{Variant: Exp, M: 0}, ErrSize},
		{"negative m", Options{Variant: Exp, M: -3}, ErrSize},
		{"seed length", Options{Variant: Exp, M: 4, Seeds: []uint32{1, 2}}, ErrSeedsLength},
		{"unknown variant", Options{Variant: "hll", M: 4}, ErrUnknownVariant},
		{"unknown hash", Options{Variant: Exp, M: 4, Hash: hash.Family(99)}, ErrHashFamily},
		{"zero bits", Options{Variant: Q, M: 4}, ErrAmountBits},
		{"too many bits", Options{Variant: Q, M: 4, AmountBits: 32}, ErrAmountBits},
		{"one bit q", Options{Variant: Q, M: 4, AmountBits: 1}, ErrAmountBits},
		{"one bit fast_q", Options{Variant: FastQ, M: 4, AmountBits: 1}, ErrAmountBits},
		{"one bit log", Options{Variant: Log, M: 4, AmountBits: 1, LogBase: 2}, ErrAmountBits},
		{"one bit fast_log", Options{Variant: FastLog, M: 4, AmountBits: 1, LogBase: 2}, ErrAmountBits},
		{"one bit log_jacc", Options{Variant: LogJacc, M: 4, AmountBits: 1, LogBase: 2, JaccardBits: 8}, ErrAmountBits},
		{"q_dyn histogram bound", Options{Variant: QDyn, M: 4, AmountBits: 17}, ErrAmountBits},
		{"base one", Options{Variant: Log, M: 4, AmountBits: 8, LogBase: 1}, ErrLogBase},
		{"base nan", Options{Variant: FastLog, M: 4, AmountBits: 8, LogBase: math.NaN()}, ErrLogBase},
		{"base inf", Options{Variant: ShiftedLog, M: 4, AmountBits: 8, LogBase: math.Inf(1)}, ErrLogBase},
		{"jaccard bits", Options{Variant: LogJacc, M: 4, AmountBits: 8, LogBase: 2, JaccardBits: 1}, ErrJaccardBits},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := New(tc.opts)
			require.ErrorIs(t, err, tc.want)
			require.Nil(t, s)
		})
	}
}

func TestNarrowestRegistersStillMove(t *testing.T) {
	for _, v := range []Variant{Q, FastQ, Log, FastLog, LogJacc} {
		t.Run(v.String(), func(t *testing.T) {
			opts := testOptions(v, 8)
			opts.AmountBits = 2
			if v.UsesLogBase() {
				opts.LogBase = 2
			}
			s, err := New(opts)
			require.NoError(t, err)
			require.NoError(t, s.Add("only", 3.5))
			require.Greater(t, s.Estimate(), 0.0)
		})
	}
	s, err := NewQDynSketch(8, nil, 1, 42)
	require.NoError(t, err)
	require.NoError(t, s.Add("only", 100))
	require.Greater(t, s.Estimate(), 0.0)
}

func TestTinyWeightsStillReachRegisters(t *testing.T) {
	s := newTestSketch(t, Exp, 16)
	require.NoError(t, s.Add("tiny", 1e-300))
	require.Greater(t, s.Estimate(), 0.0)
	require.False(t, math.IsInf(s.Estimate(), 0))
}

func TestEmptySketchEstimatesZero(t *testing.T) {
	for _, v := range Variants() {
		t.Run(v.String(), func(t *testing.T) {
			require.Zero(t, newTestSketch(t, v, 16).Estimate())
		})
	}
}

func TestSingleElementGivesPositiveEstimate(t *testing.T) {
	for _, v := range Variants() {
		t.Run(v.String(), func(t *testing.T) {
			s := newTestSketch(t, v, 8)
			require.NoError(t, s.Add("only", 3.5))
			est := s.Estimate()
			require.Greater(t, est, 0.0)
			require.False(t, math.IsInf(est, 0) || math.IsNaN(est))
		})
	}
}

func TestRejectedWeightsLeaveStateUntouched(t *testing.T) {
	for _, v := range Variants() {
		t.Run(v.String(), func(t *testing.T) {
			s := newTestSketch(t, v, 32)
			require.NoError(t, s.AddMany(elements("x", 10), constant(10, 2)))
			before := s.State()

			for _, w := range []float64{0, -1, math.NaN(), math.Inf(1), math.Inf(-1), 1e-320, 1e-308} {
				require.ErrorIs(t, s.Add("bad", w), ErrWeight)
			}

			err := s.AddMany([]string{"a", "b", "c"}, []float64{1, 0, -2})
			require.ErrorIs(t, err, ErrWeight)
			var merr *multierror.Error
			require.True(t, errors.As(err, &merr))
			require.Len(t, merr.Errors, 2)

			require.ErrorIs(t, s.AddMany([]string{"a"}, []float64{1, 2}), ErrBatchLength)
			require.True(t, before.Equal(s.State()), cmp.Diff(before, s.State()))
		})
	}
}

func TestDuplicatesDoNotChangeEstimate(t *testing.T) {
	for _, v := range Variants() {
		t.Run(v.String(), func(t *testing.T) {
			s := newTestSketch(t, v, 64)
			elems := elements("dup", 200)
			require.NoError(t, s.AddMany(elems, constant(len(elems), 10)))
			est, st := s.Estimate(), s.State()

			require.NoError(t, s.AddMany(elems[:50], constant(50, 10)))
			require.NoError(t, s.AddMany(elems[50:120], constant(70, 0.5)))
			for _, e := range elems[120:] {
				require.NoError(t, AddOne(s, e))
			}
			require.Equal(t, est, s.Estimate())
			require.True(t, st.Equal(s.State()), cmp.Diff(st, s.State()))
		})
	}
}

func TestInsertionOrderDoesNotMatter(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	elems := elements("ord", 300)
	weights := make([]float64, len(elems))
	for i := range weights {
		weights[i] = 0.1 + rng.Float64()*50
	}

	for _, v := range Variants() {
		t.Run(v.String(), func(t *testing.T) {
			forward := newTestSketch(t, v, 96)
			require.NoError(t, forward.AddMany(elems, weights))

			backward := newTestSketch(t, v, 96)
			for _, i := range rng.Perm(len(elems)) {
				require.NoError(t, backward.Add(elems[i], weights[i]))
			}

			want, got := registerState(forward), registerState(backward)
			require.True(t, want.Equal(got), cmp.Diff(want, got))
			if v != QDyn {
				require.Equal(t, forward.Estimate(), backward.Estimate())
			}
		})
	}
}

func TestCoarseLogJaccTiesAreOrderIndependent(t *testing.T) {
	opts := Options{Variant: LogJacc, M: 40, AmountBits: 3, LogBase: 4, JaccardBits: 8}
	elems := elements("tie", 500)

	a, err := New(opts)
	require.NoError(t, err)
	b, err := New(opts)
	require.NoError(t, err)
	for i := range elems {
		require.NoError(t, a.Add(elems[i], 1))
		require.NoError(t, b.Add(elems[len(elems)-1-i], 1))
	}
	require.True(t, a.State().Equal(b.State()), cmp.Diff(a.State(), b.State()))
}

func TestDefaultSeedsEqualExplicitOneToM(t *testing.T) {
	const m = 20
	explicit := make([]uint32, m)
	for i := range explicit {
		explicit[i] = uint32(i + 1)
	}
	for _, v := range Variants() {
		t.Run(v.String(), func(t *testing.T) {
			implicitOpts, explicitOpts := testOptions(v, m), testOptions(v, m)
			explicitOpts.Seeds = explicit

			a, err := New(implicitOpts)
			require.NoError(t, err)
			b, err := New(explicitOpts)
			require.NoError(t, err)
			require.Nil(t, b.Seeds())
			require.Equal(t, a.MemoryUsageTotal(), b.MemoryUsageTotal())

			elems := elements("seed", 50)
			require.NoError(t, a.AddMany(elems, constant(50, 4)))
			require.NoError(t, b.AddMany(elems, constant(50, 4)))
			require.Equal(t, a.Estimate(), b.Estimate())
			require.True(t, a.State().Equal(b.State()))
		})
	}
}

func TestCopyIsIndependent(t *testing.T) {
	for _, v := range Variants() {
		t.Run(v.String(), func(t *testing.T) {
			s := newTestSketch(t, v, 32)
			require.NoError(t, s.AddMany(elements("c", 40), constant(40, 1)))
			before := s.Estimate()

			c := s.Copy()
			require.Equal(t, v, c.Variant())
			require.True(t, s.State().Equal(c.State()))

			require.NoError(t, c.AddMany(elements("only-copy", 200), constant(200, 100)))
			require.Equal(t, before, s.Estimate())

			other := s.Copy()
			require.NoError(t, s.Add("both", 7))
			require.NoError(t, other.Add("both", 7))
			require.Equal(t, s.Estimate(), other.Estimate())
		})
	}
}

func TestMemoryAccounting(t *testing.T) {
	for _, v := range Variants() {
		t.Run(v.String(), func(t *testing.T) {
			for _, m := range []int{1, 7, 64, 1000} {
				s := newTestSketch(t, v, m)
				total, write, est := s.MemoryUsageTotal(), s.MemoryUsageWrite(), s.MemoryUsageEstimate()
				require.Greater(t, total, write, "m=%d", m)
				require.GreaterOrEqual(t, write, est, "m=%d", m)
				require.Greater(t, est, 0, "m=%d", m)
			}
		})
	}
}

func TestExplicitSeedsAreCounted(t *testing.T) {
	implicit, err := NewExpSketch(100, nil)
	require.NoError(t, err)
	seeds := make([]uint32, 100)
	for i := range seeds {
		seeds[i] = uint32(1000 + i)
	}
	explicit, err := NewExpSketch(100, seeds)
	require.NoError(t, err)
	require.Equal(t, implicit.MemoryUsageTotal()+400, explicit.MemoryUsageTotal())
	require.Equal(t, seeds, explicit.Seeds())
}

func TestStateSurvivesEncodeAndRestore(t *testing.T) {
	for _, v := range Variants() {
		t.Run(v.String(), func(t *testing.T) {
			s := newTestSketch(t, v, 48)
			require.NoError(t, s.AddMany(elements("st", 120), constant(120, 3)))

			buf, err := s.State().MarshalMsg(nil)
			require.NoError(t, err)
			decoded := &State{}
			rest, err := decoded.UnmarshalMsg(buf)
			require.NoError(t, err)
			require.Empty(t, rest)
			require.True(t, s.State().Equal(decoded), cmp.Diff(s.State(), decoded))

			restored, err := Restore(decoded)
			require.NoError(t, err)
			require.True(t, s.State().Equal(restored.State()))
			require.Equal(t, s.Estimate(), restored.Estimate())

			more := elements("after", 60)
			require.NoError(t, s.AddMany(more, constant(60, 9)))
			require.NoError(t, restored.AddMany(more, constant(60, 9)))
			require.Equal(t, s.Estimate(), restored.Estimate())
		})
	}
}

func TestUnmarshalRejectsOversizedArrayHeaders(t *testing.T) {
	head := msgp.AppendArrayHeader(nil, stateFields)
	head = msgp.AppendString(head, string(Exp))
	head = msgp.AppendInt(head, 4)
	huge := []byte{0xdd, 0xff, 0xff, 0xff, 0xff}

	st := &State{}
	_, err := st.UnmarshalMsg(append(slices.Clone(head), huge...))
	require.Error(t, err)

	buf, err := (&State{Variant: Exp, M: 4, Floats: []float64{1, 2, 3, 4}}).MarshalMsg(nil)
	require.NoError(t, err)
	// swap the fixarray header of Floats for a 32-bit one claiming 2^32-1 entries
	at := slices.Index(buf, 0x94)
	require.Positive(t, at)
	corrupt := append(slices.Clone(buf[:at]), huge...)
	corrupt = append(corrupt, buf[at+1:]...)
	_, err = st.UnmarshalMsg(corrupt)
	require.Error(t, err)
}

func TestRestoreRejectsBrokenState(t *testing.T) {
	s := newTestSketch(t, Q, 8)
	st := s.State()
	st.Levels = st.Levels[:4]
	_, err := Restore(st)
	require.ErrorIs(t, err, ErrState)

	st = s.State()
	st.Levels[0] = 1000
	_, err = Restore(st)
	require.ErrorIs(t, err, ErrState)

	dyn := newTestSketch(t, QDyn, 8)
	st = dyn.State()
	st.Histogram[3]++
	_, err = Restore(st)
	require.ErrorIs(t, err, ErrState)

	_, err = Restore(&State{Variant: "nope", M: 3})
	require.ErrorIs(t, err, ErrState)
	require.ErrorIs(t, err, ErrUnknownVariant)

	_, err = Restore(nil)
	require.ErrorIs(t, err, ErrState)
}

func TestJaccardRequiresComparableSketches(t *testing.T) {
	a := newTestSketch(t, Exp, 16)

	_, err := a.Jaccard(newTestSketch(t, Exp, 17))
	require.ErrorIs(t, err, ErrIncompatible)

	_, err = a.Jaccard(newTestSketch(t, FastExp, 16))
	require.ErrorIs(t, err, ErrIncompatible)

	seeded, err := NewExpSketch(16, []uint32{9, 8, 7, 6, 5, 4, 3, 2, 1, 10, 11, 12, 13, 14, 15, 16})
	require.NoError(t, err)
	_, err = a.Jaccard(seeded)
	require.ErrorIs(t, err, ErrIncompatible)

	xx, err := NewExpSketch(16, nil, WithHash(hash.XXH3))
	require.NoError(t, err)
	_, err = a.Jaccard(xx)
	require.ErrorIs(t, err, ErrIncompatible)

	l1, err := NewLogExpSketch(16, nil, 8, 1.5)
	require.NoError(t, err)
	l2, err := NewLogExpSketch(16, nil, 8, 1.6)
	require.NoError(t, err)
	_, err = l1.Jaccard(l2)
	require.ErrorIs(t, err, ErrIncompatible)

	d1, err := NewQDynSketch(16, nil, 8, 1)
	require.NoError(t, err)
	d2, err := NewQDynSketch(16, nil, 8, 2)
	require.NoError(t, err)
	_, err = d1.Jaccard(d2)
	require.ErrorIs(t, err, ErrIncompatible)
}

func TestJaccardOfCopyIsOne(t *testing.T) {
	for _, v := range Variants() {
		t.Run(v.String(), func(t *testing.T) {
			s := newTestSketch(t, v, 64)
			require.NoError(t, s.AddMany(elements("j", 100), constant(100, 2)))
			j, err := s.Jaccard(s.Copy())
			require.NoError(t, err)
			require.Equal(t, 1.0, j)
		})
	}
}

// accuracyTrials inserts n distinct elements of weight w into fresh sketches
// and returns the mean estimate.
func accuracyTrials(t *testing.T, opts Options, trials, n int, w float64) float64 {
	t.Helper()
	estimates := make([]float64, trials)
	for trial := range estimates {
		s, err := New(opts)
		require.NoError(t, err)
		require.NoError(t, s.AddMany(elements(fmt.Sprintf("trial-%d", trial), n), constant(n, w)))
		estimates[trial] = s.Estimate()
	}
	return stat.Mean(estimates, nil)
}

func TestEstimateIsAccurateOnAverage(t *testing.T) {
	if testing.Short() {
		t.Skip("statistical test")
	}
	const truth = 1000 * 10.0
	for _, v := range Variants() {
		t.Run(v.String(), func(t *testing.T) {
			mean := accuracyTrials(t, testOptions(v, 400), 20, 1000, 10)
			require.InEpsilon(t, truth, mean, 0.2)
		})
	}
}

func TestSmallQuantizedSketchStaysWithinLooseBound(t *testing.T) {
	if testing.Short() {
		t.Skip("statistical test")
	}
	const truth = 1000 * 10.0
	for _, v := range []Variant{Q, FastQ, Log, ShiftedLog} {
		t.Run(v.String(), func(t *testing.T) {
			mean := accuracyTrials(t, testOptions(v, 10), 30, 1000, 10)
			require.InEpsilon(t, truth, mean, 1.0)
		})
	}
}

func TestJaccardConverges(t *testing.T) {
	if testing.Short() {
		t.Skip("statistical test")
	}
	const union = 1000
	schemes := []struct {
		name    string
		weights func(rng *rand.Rand, n int) []float64
	}{
		{"unit", func(_ *rand.Rand, n int) []float64 { return constant(n, 1) }},
		{"mixed", func(rng *rand.Rand, n int) []float64 {
			out := make([]float64, n)
			for i := range out {
				out[i] = 1 + 99*rng.Float64()
			}
			return out
		}},
	}
	for _, scheme := range schemes {
		for _, v := range []Variant{Exp, Exp32, FastExp, FastGMExp, LogJacc} {
			t.Run(scheme.name+"/"+v.String(), func(t *testing.T) {
				rng := rand.New(rand.NewPCG(11, 17))
				for step := 0; step <= 20; step += 4 {
					shared := step * union / 20
					onlyA := (union - shared) / 2
					onlyB := union - shared - onlyA
					common, wc := elements("common", shared), scheme.weights(rng, shared)
					wa, wb := scheme.weights(rng, onlyA), scheme.weights(rng, onlyB)
					truth := floats.Sum(wc) / (floats.Sum(wc) + floats.Sum(wa) + floats.Sum(wb))

					a, b := newTestSketch(t, v, 500), newTestSketch(t, v, 500)
					require.NoError(t, a.AddMany(common, wc))
					require.NoError(t, b.AddMany(common, wc))
					require.NoError(t, a.AddMany(elements("a", onlyA), wa))
					require.NoError(t, b.AddMany(elements("b", onlyB), wb))

					got, err := a.Jaccard(b)
					require.NoError(t, err)
					require.GreaterOrEqual(t, got, 0.0)
					require.LessOrEqual(t, got, 1.0)
					diff := math.Abs(got - truth)
					require.True(t, diff <= 0.05 || diff <= 0.7*truth, "J=%v got %v", truth, got)
				}
			})
		}
	}
}

func TestParallelBatchMatchesSequentialAdds(t *testing.T) {
	const m = 1024
	elems := elements("par", 512)
	weights := constant(len(elems), 2.5)
	for _, v := range []Variant{Exp, Exp32, Q, Log, LogJacc} {
		t.Run(v.String(), func(t *testing.T) {
			batch, seq := newTestSketch(t, v, m), newTestSketch(t, v, m)
			require.NoError(t, batch.AddMany(elems, weights))
			for i, e := range elems {
				require.NoError(t, seq.Add(e, weights[i]))
			}
			require.True(t, batch.State().Equal(seq.State()))
		})
	}
}

func TestShiftedWindowFollowsHeavyWeights(t *testing.T) {
	s, err := NewShiftedLogExpSketch(16, nil, 2, 2)
	require.NoError(t, err)
	initial := s.State().Offset
	require.Equal(t, int64(-1), initial)

	require.NoError(t, s.Add("heavy", 1e6))
	st := s.State()
	require.Greater(t, st.Offset, initial)
	for _, r := range st.Levels {
		require.True(t, r >= 0 && r <= 3)
	}
	require.Greater(t, s.Estimate(), 0.0)

	// a light element lands below the window and is ignored
	require.NoError(t, s.Add("light", 1e-6))
	require.True(t, st.Equal(s.State()))
}

func TestQDynTouchesOneRegisterPerElement(t *testing.T) {
	s, err := NewQDynSketch(64, nil, 8, 7)
	require.NoError(t, err)
	require.NoError(t, s.Add("one", 5))
	st := s.State()

	moved := 0
	for _, r := range st.Levels {
		if r != -128 {
			moved++
		}
	}
	require.Equal(t, 1, moved)
	require.Equal(t, uint32(63), st.Histogram[0])
	// every register starts at the bottom, so the first change is certain
	require.InDelta(t, 5.0, s.Estimate(), 1e-12)
}

func TestQDynJaccardIgnoresUntouchedRegisters(t *testing.T) {
	a, b := newTestSketch(t, QDyn, 400), newTestSketch(t, QDyn, 400)
	j, err := a.Jaccard(b)
	require.NoError(t, err)
	require.Zero(t, j)

	require.NoError(t, a.AddMany(elements("left", 100), constant(100, 1)))
	require.NoError(t, b.AddMany(elements("right", 100), constant(100, 1)))
	j, err = a.Jaccard(b)
	require.NoError(t, err)
	require.Less(t, j, 0.15)

	require.NoError(t, b.AddMany(elements("left", 100), constant(100, 1)))
	same := b.Copy()
	j, err = b.Jaccard(same)
	require.NoError(t, err)
	require.Equal(t, 1.0, j)
}

func TestFastExpTracksUnfilledRegisters(t *testing.T) {
	s, err := NewFastExpSketch(64, nil)
	require.NoError(t, err)
	require.Equal(t, 64, s.unfilled)
	require.True(t, math.IsInf(s.max, 1))

	// nothing prunes the first element, so it fills every register
	require.NoError(t, s.Add("first", 1))
	require.Zero(t, s.unfilled)
	require.Equal(t, slices.Max(s.regs), s.max)
	require.False(t, math.IsInf(s.max, 1))

	gm, err := NewFastGMExpSketch(64, nil)
	require.NoError(t, err)
	elems := elements("warm", 400)
	require.NoError(t, s.AddMany(elems, constant(400, 2)))
	require.NoError(t, gm.Add("first", 1))
	require.NoError(t, gm.AddMany(elems, constant(400, 2)))

	require.Zero(t, s.unfilled)
	require.Equal(t, slices.Max(s.regs), s.max)
	// both prune only candidates that cannot lower a register
	require.Equal(t, gm.regs, s.regs)

	restored, err := Restore(s.State())
	require.NoError(t, err)
	require.Zero(t, restored.(*FastExpSketch).unfilled)
	require.Equal(t, s.max, restored.(*FastExpSketch).max)
}

func BenchmarkAdd(b *testing.B) {
	elems := elements("bench", 4096)
	for _, v := range Variants() {
		b.Run(v.String(), func(b *testing.B) {
			s := newTestSketch(b, v, 256)
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = s.Add(elems[i%len(elems)], 1)
			}
			b.StopTimer()
			allocs := testing.AllocsPerRun(100, func() { _ = s.Add(elems[0], 1) })
			b.ReportMetric(allocs, "allocs/add")
			b.ReportMetric(float64(s.MemoryUsageTotal()), "bytes")
		})
	}
}

func BenchmarkEstimate(b *testing.B) {
	for _, v := range Variants() {
		b.Run(v.String(), func(b *testing.B) {
			s := newTestSketch(b, v, 256)
			_ = s.AddMany(elements("est", 1000), constant(1000, 1))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = s.Estimate()
			}
		})
	}
}
