package harness

import (
	"fmt"
	"math"

	canrigErrors "github.com/tturner/canrig/internal/errors"
)

// ExpectOption selects how Expect compares values.
type ExpectOption func(*expectation)

type expectation struct {
	rng      *float64
	accuracy *float64
}

// Range accepts observed values within expected ± r.
func Range(r float64) ExpectOption {
	return func(e *expectation) { e.rng = &r }
}

// Accuracy accepts observed values of the same sign whose magnitude is
// within a fraction a of the expected magnitude.
func Accuracy(a float64) ExpectOption {
	return func(e *expectation) { e.accuracy = &a }
}

// Expect fails with AssertionFailure unless observed matches expected.
// Without options the comparison is exact. Range wins over Accuracy.
func Expect(observed, expected float64, opts ...ExpectOption) error {
	var e expectation
	for _, opt := range opts {
		opt(&e)
	}

	switch {
	case e.rng != nil:
		r := *e.rng
		if observed < expected-r || observed > expected+r {
			return fmt.Errorf("%w: value out of range: expected %v+-%v but observed %v",
				canrigErrors.AssertionFailure, expected, r, observed)
		}
	case e.accuracy != nil:
		a := *e.accuracy
		if sign(observed) != sign(expected) ||
			math.Abs(observed) < math.Abs(expected)*(1-a) ||
			math.Abs(observed) > math.Abs(expected)*(1+a) {
			return fmt.Errorf("%w: value out of range: expected %v+-%v%% but observed %v",
				canrigErrors.AssertionFailure, expected, a*100, observed)
		}
	default:
		if observed != expected {
			return fmt.Errorf("%w: value mismatch: expected %v but observed %v",
				canrigErrors.AssertionFailure, expected, observed)
		}
	}
	return nil
}

func sign(x float64) int {
	if x >= 0 {
		return 1
	}
	return -1
}

// ExpectTrue fails with AssertionFailure and msg when cond is false.
func ExpectTrue(cond bool, format string, args ...interface{}) error {
	if cond {
		return nil
	}
	return fmt.Errorf("%w: %s", canrigErrors.AssertionFailure, fmt.Sprintf(format, args...))
}
