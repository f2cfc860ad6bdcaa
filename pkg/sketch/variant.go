package sketch

import (
	"fmt"
	"slices"
)

// Variant names a register encoding and update strategy.
type Variant string

const (
	Exp            Variant = "exp"
	Exp32          Variant = "exp32"
	FastExp        Variant = "fast_exp"
	FastGMExp      Variant = "fastgm_exp"
	Q              Variant = "q"
	FastQ          Variant = "fast_q"
	QDyn           Variant = "q_dyn"
	Log            Variant = "log"
	FastLog        Variant = "fast_log"
	LogJacc        Variant = "log_jacc"
	ShiftedLog     Variant = "shifted_log"
	FastShiftedLog Variant = "fast_shifted_log"
)

var variants = []Variant{
	Exp, Exp32, FastExp, FastGMExp,
	Q, FastQ, QDyn,
	Log, FastLog, LogJacc, ShiftedLog, FastShiftedLog,
}

// Variants lists every known variant in a stable order.
func Variants() []Variant {
	return slices.Clone(variants)
}

func (v Variant) String() string { return string(v) }

func (v Variant) Valid() bool {
	return slices.Contains(variants, v)
}

// ParseVariant resolves a variant by name.
func ParseVariant(name string) (Variant, error) {
	v := Variant(name)
	if !v.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownVariant, name)
	}
	return v, nil
}

// UsesLogBase reports whether the variant is parameterized by a logarithm base.
func (v Variant) UsesLogBase() bool {
	switch v {
	case Log, FastLog, LogJacc, ShiftedLog, FastShiftedLog:
		return true
	default:
		return false
	}
}
