// Package mock generates deterministic weighted element streams for tests and
// the benchmark harness.
package mock

import (
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
)

const (
	minStrLen = 8  // Minimum random string length for GenerateRandomString
	maxStrLen = 64 // Maximum random string length for GenerateRandomString
)

// Stream is a sequence of weighted insertions; an element may repeat.
type Stream struct {
	Elements []string
	Weights  []float64
}

func (s *Stream) Len() int { return len(s.Elements) }

// Append adds one insertion.
func (s *Stream) Append(elem string, weight float64) {
	s.Elements = append(s.Elements, elem)
	s.Weights = append(s.Weights, weight)
}

// Total is the weighted cardinality: every distinct element counts once with
// its largest weight.
func (s *Stream) Total() float64 {
	var total float64
	for _, w := range s.weights() {
		total += w
	}
	return total
}

func (s *Stream) weights() map[string]float64 {
	out := make(map[string]float64, len(s.Elements))
	for i, e := range s.Elements {
		out[e] = math.Max(out[e], s.Weights[i])
	}
	return out
}

// Shuffle permutes the insertions in place.
func (s *Stream) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(s.Elements), func(i, j int) {
		s.Elements[i], s.Elements[j] = s.Elements[j], s.Elements[i]
		s.Weights[i], s.Weights[j] = s.Weights[j], s.Weights[i]
	})
}

// Elements returns n distinct ids "prefix-0" .. "prefix-(n-1)".
func Elements(prefix string, n int) []string {
	list := make([]string, 0, n)
	for i := 0; i < n; i++ {
		list = append(list, prefix+"-"+strconv.Itoa(i))
	}
	return list
}

// ConstantWeights returns n copies of w.
func ConstantWeights(n int, w float64) []float64 {
	list := make([]float64, n)
	for i := range list {
		list[i] = w
	}
	return list
}

// UniformWeights draws n weights from [lo, hi).
func UniformWeights(rng *rand.Rand, n int, lo, hi float64) []float64 {
	list := make([]float64, n)
	for i := range list {
		list[i] = lo + rng.Float64()*(hi-lo)
	}
	return list
}

// ParetoWeights draws n heavy-tailed weights with scale xm and shape alpha.
// Weights spanning many orders of magnitude push the log variants to their range limits.
func ParetoWeights(rng *rand.Rand, n int, xm, alpha float64) []float64 {
	list := make([]float64, n)
	for i := range list {
		list[i] = xm / math.Pow(1-rng.Float64(), 1/alpha)
	}
	return list
}

// Pair is two streams and their exact weighted Jaccard similarity.
type Pair struct {
	A, B    Stream
	Jaccard float64
}

// Overlapping builds two streams over n distinct elements whose weighted
// Jaccard similarity is close to target; the exact value is in Pair.Jaccard.
// A shared element carries the same weight on both sides and is inserted
// twice into A, the second time lighter.
func Overlapping(rng *rand.Rand, n int, target float64) Pair {
	var p Pair
	shared := int(math.Round(target * float64(n)))
	var inter, union float64
	for i, elem := range Elements("elem", n) {
		wa := 1 + rng.Float64()*9
		if i < shared {
			p.A.Append(elem, wa)
			p.A.Append(elem, wa/2)
			p.B.Append(elem, wa)
			inter += wa
			union += wa
			continue
		}
		if i%2 == 0 {
			p.A.Append(elem, wa)
		} else {
			p.B.Append(elem, wa)
		}
		union += wa
	}
	if union > 0 {
		p.Jaccard = inter / union
	}
	p.A.Shuffle(rng)
	p.B.Shuffle(rng)
	return p
}

// RandomElements returns n random ids of varying length. Ids may repeat,
// which a sketch absorbs as duplicates.
func RandomElements(rng *rand.Rand, n int) []string {
	list := make([]string, n)
	for i := range list {
		list[i] = GenerateRandomString(rng)
	}
	return list
}

// GenerateRandomString returns a random ASCII string of length between minStrLen and maxStrLen.
func GenerateRandomString(rng *rand.Rand) string {
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	length := rng.IntN(maxStrLen-minStrLen+1) + minStrLen

	var sb strings.Builder
	sb.Grow(length)

	for i := 0; i < length; i++ {
		sb.WriteByte(letters[rng.IntN(len(letters))])
	}

	return sb.String()
}
