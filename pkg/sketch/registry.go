package sketch

import (
	"fmt"
	"github.com/rs/zerolog/log"
)

// loader is implemented by every variant; it fills a freshly built sketch
// from a snapshot taken with the same parameters.
type loader interface {
	Sketch
	load(st *State) error
}

// New builds the variant named by o.Variant, reading only the parameters it uses.
func New(o Options) (Sketch, error) {
	s, err := build(o)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("variant", o.Variant.String()).
		Int("m", o.M).
		Str("hash", o.Hash.String()).
		Msg("[sketch] built")
	return s, nil
}

func build(o Options) (Sketch, error) {
	opts := []Option{WithHash(o.Hash)}
	switch o.Variant {
	case Exp:
		return as(NewExpSketch(o.M, o.Seeds, opts...))
	case Exp32:
		return as(NewExp32Sketch(o.M, o.Seeds, opts...))
	case FastExp:
		return as(NewFastExpSketch(o.M, o.Seeds, opts...))
	case FastGMExp:
		return as(NewFastGMExpSketch(o.M, o.Seeds, opts...))
	case Q:
		return as(NewQSketch(o.M, o.Seeds, o.AmountBits, opts...))
	case FastQ:
		return as(NewFastQSketch(o.M, o.Seeds, o.AmountBits, opts...))
	case QDyn:
		return as(NewQDynSketch(o.M, o.Seeds, o.AmountBits, o.GSeed, opts...))
	case Log:
		return as(NewLogExpSketch(o.M, o.Seeds, o.AmountBits, o.LogBase, opts...))
	case FastLog:
		return as(NewFastLogExpSketch(o.M, o.Seeds, o.AmountBits, o.LogBase, opts...))
	case LogJacc:
		return as(NewLogJaccSketch(o.M, o.Seeds, o.AmountBits, o.LogBase, o.JaccardBits, opts...))
	case ShiftedLog:
		return as(NewShiftedLogExpSketch(o.M, o.Seeds, o.AmountBits, o.LogBase, opts...))
	case FastShiftedLog:
		return as(NewFastShiftedLogExpSketch(o.M, o.Seeds, o.AmountBits, o.LogBase, opts...))
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, o.Variant)
}

// as widens a concrete constructor result without leaking a typed nil.
func as[T Sketch](s T, err error) (Sketch, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Restore rebuilds a sketch from a snapshot. The result exports a state
// equal to st.
func Restore(st *State) (Sketch, error) {
	if st == nil {
		return nil, fmt.Errorf("%w: nil state", ErrState)
	}
	s, err := build(st.Options())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrState, err)
	}
	l, ok := s.(loader)
	if !ok {
		return nil, fmt.Errorf("%w: variant %s cannot be restored", ErrState, st.Variant)
	}
	if err = l.load(st); err != nil {
		return nil, err
	}
	log.Debug().
		Str("variant", st.Variant.String()).
		Int("m", st.M).
		Msg("[sketch] restored")
	return s, nil
}
