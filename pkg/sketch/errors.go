package sketch

import (
	"errors"
	"fmt"
	"github.com/hashicorp/go-multierror"
	"math"
)

var (
	ErrSize           = errors.New("sketch: size 'm' must be positive")
	ErrSeedsLength    = errors.New("sketch: seeds must have length m or 0")
	ErrAmountBits     = errors.New("sketch: amount of bits must be in [1, 31]")
	ErrLogBase        = errors.New("sketch: logarithm base must be finite and greater than 1")
	ErrJaccardBits    = errors.New("sketch: jaccard bits must be in [2, 32]")
	ErrUnknownVariant = errors.New("sketch: unknown variant")
	ErrHashFamily     = errors.New("sketch: unknown hash family")
	ErrWeight         = errors.New("sketch: weight must be finite and above about 2e-307")
	ErrBatchLength    = errors.New("sketch: elems and weights size mismatch")
	ErrIncompatible   = errors.New("sketch: sketches are not comparable")
	ErrState          = errors.New("sketch: invalid state")
)

// maxDraw is the largest unit exponential a register can draw, -ln(2^-53).
var maxDraw = 53 * math.Ln2

// validateWeight also rejects weights so small that a candidate draw/weight
// would overflow to +Inf and never reach a register.
func validateWeight(weight float64) error {
	if !(weight > 0) || math.IsInf(weight, 1) || math.IsInf(maxDraw/weight, 1) {
		return fmt.Errorf("%w: got %v", ErrWeight, weight)
	}
	return nil
}

// validateBatch checks the whole batch up front, so a rejected AddMany never
// leaves a partially applied update behind. Every bad weight is reported.
func validateBatch(elems []string, weights []float64) error {
	if len(elems) != len(weights) {
		return fmt.Errorf("%w: %d elems, %d weights", ErrBatchLength, len(elems), len(weights))
	}
	var errs *multierror.Error
	for i, w := range weights {
		if err := validateWeight(w); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("weights[%d]: %w", i, err))
		}
	}
	return errs.ErrorOrNil()
}
