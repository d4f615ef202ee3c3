package rpc

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrMalformedModel is matched by every *MalformedModelError.
var ErrMalformedModel = errors.New("malformed RPC model")

// ErrDegenerate is matched by every *DegenerateError.
var ErrDegenerate = errors.New("degenerate RPC projection")

// MalformedModelError is returned when RPC metadata cannot be turned into a
// model: a required coefficient vector is missing, a vector does not hold
// exactly 20 terms, or a scalar is unusable.
type MalformedModelError struct {
	Reason string
}

func (e *MalformedModelError) Error() string {
	return "malformed RPC model: " + e.Reason
}

// Is reports whether target is ErrMalformedModel.
func (e *MalformedModelError) Is(target error) bool {
	return target == ErrMalformedModel
}

func malformed(format string, args ...any) error {
	return &MalformedModelError{Reason: fmt.Sprintf(format, args...)}
}

// DegenerateError is returned by Model.Project when a denominator polynomial
// evaluates to (nearly) zero or the result is not finite.
type DegenerateError struct {
	Lat, Lon, Height float64
	Axis             string // "line" or "sample"
}

func (e *DegenerateError) Error() string {
	return fmt.Sprintf("degenerate RPC projection at lat=%.9f lon=%.9f h=%.3f: %s denominator near zero",
		e.Lat, e.Lon, e.Height, e.Axis)
}

// Is reports whether target is ErrDegenerate.
func (e *DegenerateError) Is(target error) bool {
	return target == ErrDegenerate
}
