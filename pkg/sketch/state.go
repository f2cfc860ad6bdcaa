package sketch

import (
	"github.com/Borislavv/wcsketch/pkg/hash"
	"slices"
)

// State is an exported snapshot of a sketch. Two sketches with equal
// construction parameters and equal update history export equal states.
// Only the register fields of the exporting variant are populated.
type State struct {
	Variant     Variant
	M           int
	Seeds       []uint32 // nil for the implicit 1..m default
	Hash        hash.Family
	AmountBits  uint8
	LogBase     float64
	GSeed       uint32
	JaccardBits uint8

	Floats       []float64 // exp, fast_exp, fastgm_exp
	Floats32     []float32 // exp32
	Levels       []int32   // decoded integer registers; raw unsigned ones for shifted variants
	Fingerprints []uint32  // log_jacc
	Histogram    []uint32  // q_dyn, indexed by register value minus its lower bound
	Offset       int64     // shifted variants
	Cardinality  float64   // q_dyn running estimate
}

// Equal compares two snapshots field by field. Nil and empty slices are equal.
func (st *State) Equal(o *State) bool {
	if st == nil || o == nil {
		return st == o
	}
	return st.Variant == o.Variant &&
		st.M == o.M &&
		slices.Equal(st.Seeds, o.Seeds) &&
		st.Hash == o.Hash &&
		st.AmountBits == o.AmountBits &&
		st.LogBase == o.LogBase &&
		st.GSeed == o.GSeed &&
		st.JaccardBits == o.JaccardBits &&
		slices.Equal(st.Floats, o.Floats) &&
		slices.Equal(st.Floats32, o.Floats32) &&
		slices.Equal(st.Levels, o.Levels) &&
		slices.Equal(st.Fingerprints, o.Fingerprints) &&
		slices.Equal(st.Histogram, o.Histogram) &&
		st.Offset == o.Offset &&
		st.Cardinality == o.Cardinality
}

// Options returns the construction parameters recorded in the snapshot.
func (st *State) Options() Options {
	return Options{
		Variant:     st.Variant,
		M:           st.M,
		Seeds:       slices.Clone(st.Seeds),
		Hash:        st.Hash,
		AmountBits:  st.AmountBits,
		LogBase:     st.LogBase,
		GSeed:       st.GSeed,
		JaccardBits: st.JaccardBits,
	}
}
