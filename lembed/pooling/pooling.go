// Package pooling collapses a per-token embedding matrix into a single
// sentence vector using an attention mask.
package pooling

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/venthic/localembed/lembed/vecmath"
)

// Mode identifies a pooling strategy.
type Mode string

const (
	// Mean averages token vectors over attended positions.
	Mean Mode = "mean"
	// Cls takes the first token vector verbatim.
	Cls Mode = "cls"
	// Max takes the per-dimension maximum over attended positions.
	Max Mode = "max"
)

// ErrInvalidMode indicates an unrecognized pooling mode.
var ErrInvalidMode = errors.New("invalid pooling mode")

// meanFloor keeps the mean denominator away from zero when no position
// is attended, so an all-padding row pools to the zero vector.
const meanFloor = 1e-9

// Strategy pools a flat [len(mask) x hidden] matrix into one [hidden]
// vector. Implementations are stateless and safe for concurrent use.
type Strategy interface {
	Mode() Mode
	// Pool allocates and returns the pooled vector.
	Pool(matrix []float32, mask []int64, hidden int) ([]float32, error)
	// PoolInto writes the pooled vector into dst, which must have
	// length hidden.
	PoolInto(dst, matrix []float32, mask []int64, hidden int) error
}

// ParseMode maps a config string onto a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case Mean:
		return Mean, nil
	case Cls:
		return Cls, nil
	case Max:
		return Max, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// New returns the strategy for mode. Unrecognized modes fail here so a
// misconfigured pipeline never gets constructed.
func New(mode Mode) (Strategy, error) {
	switch mode {
	case Mean:
		return meanPooler{}, nil
	case Cls:
		return clsPooler{}, nil
	case Max:
		return maxPooler{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
}

func checkShape(dst, matrix []float32, mask []int64, hidden int) error {
	if hidden <= 0 {
		return fmt.Errorf("%w: hidden size %d", vecmath.ErrDimensionMismatch, hidden)
	}
	if len(matrix) != len(mask)*hidden {
		return fmt.Errorf("%w: matrix length %d, want %d (%d positions x %d)",
			vecmath.ErrDimensionMismatch, len(matrix), len(mask)*hidden, len(mask), hidden)
	}
	if len(dst) != hidden {
		return fmt.Errorf("%w: dst length %d, want %d", vecmath.ErrDimensionMismatch, len(dst), hidden)
	}
	return nil
}

type meanPooler struct{}

func (meanPooler) Mode() Mode { return Mean }

func (p meanPooler) Pool(matrix []float32, mask []int64, hidden int) ([]float32, error) {
	dst := make([]float32, hidden)
	if err := p.PoolInto(dst, matrix, mask, hidden); err != nil {
		return nil, err
	}
	return dst, nil
}

func (meanPooler) PoolInto(dst, matrix []float32, mask []int64, hidden int) error {
	if err := checkShape(dst, matrix, mask, hidden); err != nil {
		return err
	}
	for i := range dst {
		dst[i] = 0
	}
	var count int
	for p, m := range mask {
		if m == 0 {
			continue
		}
		count++
		vecmath.AddInPlace(dst, matrix[p*hidden:(p+1)*hidden])
	}
	denom := float64(count)
	if denom < meanFloor {
		denom = meanFloor
	}
	vecmath.DivInPlace(dst, denom)
	return nil
}

type clsPooler struct{}

func (clsPooler) Mode() Mode { return Cls }

func (p clsPooler) Pool(matrix []float32, mask []int64, hidden int) ([]float32, error) {
	dst := make([]float32, hidden)
	if err := p.PoolInto(dst, matrix, mask, hidden); err != nil {
		return nil, err
	}
	return dst, nil
}

// PoolInto copies the first row. The mask is ignored; position 0 always
// holds the start token.
func (clsPooler) PoolInto(dst, matrix []float32, mask []int64, hidden int) error {
	if err := checkShape(dst, matrix, mask, hidden); err != nil {
		return err
	}
	if len(mask) == 0 {
		return fmt.Errorf("%w: empty sequence", vecmath.ErrEmptyVector)
	}
	copy(dst, matrix[:hidden])
	return nil
}

type maxPooler struct{}

func (maxPooler) Mode() Mode { return Max }

func (p maxPooler) Pool(matrix []float32, mask []int64, hidden int) ([]float32, error) {
	dst := make([]float32, hidden)
	if err := p.PoolInto(dst, matrix, mask, hidden); err != nil {
		return nil, err
	}
	return dst, nil
}

func (maxPooler) PoolInto(dst, matrix []float32, mask []int64, hidden int) error {
	if err := checkShape(dst, matrix, mask, hidden); err != nil {
		return err
	}
	for i := range dst {
		dst[i] = -math.MaxFloat32
	}
	var attended bool
	for p, m := range mask {
		if m == 0 {
			continue
		}
		attended = true
		row := matrix[p*hidden : (p+1)*hidden]
		for i, x := range row {
			if x > dst[i] {
				dst[i] = x
			}
		}
	}
	// Never hand the -MaxFloat32 accumulator to the caller.
	if !attended {
		for i := range dst {
			dst[i] = 0
		}
	}
	return nil
}
