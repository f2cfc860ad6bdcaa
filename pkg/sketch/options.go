package sketch

import (
	"fmt"
	"github.com/Borislavv/wcsketch/pkg/hash"
	"math"
)

const (
	maxAmountBits    = 31
	maxDynAmountBits = 16
	minJaccardBits   = 2
	maxJaccardBits   = 32
)

// Options describe a sketch independently of its variant; New picks the
// fields the variant needs and ignores the rest.
type Options struct {
	Variant     Variant     `yaml:"variant" toml:"variant"`
	M           int         `yaml:"m" toml:"m"`
	Seeds       []uint32    `yaml:"seeds" toml:"seeds"`
	Hash        hash.Family `yaml:"hash" toml:"hash"`
	AmountBits  uint8       `yaml:"amount_bits" toml:"amount_bits"`
	LogBase     float64     `yaml:"logarithm_base" toml:"logarithm_base"`
	GSeed       uint32      `yaml:"g_seed" toml:"g_seed"`
	JaccardBits uint8       `yaml:"jaccard_bits" toml:"jaccard_bits"`
}

func validateAmountBits(bits uint8) error {
	if bits < 1 || bits > maxAmountBits {
		return fmt.Errorf("%w: got %d", ErrAmountBits, bits)
	}
	return nil
}

// validateSymmetricBits guards the sign-symmetric level range, which is
// empty but for 0 at one bit.
func validateSymmetricBits(bits uint8) error {
	if err := validateAmountBits(bits); err != nil {
		return err
	}
	if bits < 2 {
		return fmt.Errorf("%w: symmetric levels need at least 2 bits, got %d", ErrAmountBits, bits)
	}
	return nil
}

func validateLogBase(base float64) error {
	if !(base > 1) || math.IsInf(base, 1) {
		return fmt.Errorf("%w: got %v", ErrLogBase, base)
	}
	return nil
}

func validateJaccardBits(bits uint8) error {
	if bits < minJaccardBits || bits > maxJaccardBits {
		return fmt.Errorf("%w: got %d", ErrJaccardBits, bits)
	}
	return nil
}
