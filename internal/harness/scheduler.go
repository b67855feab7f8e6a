package harness

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tturner/canrig/internal/fixture"
	"github.com/tturner/canrig/internal/logging"
)

// Catalog is the part of fixture.Catalog the scheduler needs.
type Catalog interface {
	Lookup(kind fixture.Kind) []fixture.Fixture
}

// Result describes one scheduler invocation.
type Result struct {
	Test string
	// Fixtures names the tuple the test ran on.
	Fixtures []string
	// Evaluated counts predicate calls.
	Evaluated int
	Duration  time.Duration
	Skipped   bool
}

// Scheduler runs test cases against the fixtures of a catalog.
type Scheduler struct {
	catalog Catalog
	logger  *logging.Logger
	now     func() time.Time
}

// NewScheduler creates a scheduler. A nil logger discards output.
func NewScheduler(catalog Catalog, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Scheduler{catalog: catalog, logger: logger, now: time.Now}
}

// Run executes tc once on the first compatible fixture tuple. Tuples are
// tried in odometer order with the last kind varying fastest. When no
// tuple fits, the result is marked skipped and no error is returned.
func (s *Scheduler) Run(ctx context.Context, tc TestCase) (Result, error) {
	start := s.now()
	res := Result{Test: tc.Name()}

	kinds := tc.Kinds()
	candidates := make([][]fixture.Fixture, len(kinds))
	for i, k := range kinds {
		candidates[i] = s.catalog.Lookup(k)
	}

	tuple, evaluated := firstMatch(candidates, tc.Compatible)
	res.Evaluated = evaluated
	if tuple == nil {
		res.Skipped = true
		s.logger.Debug("no compatible fixtures for %s", tc.Name())
		res.Duration = s.now().Sub(start)
		return res, nil
	}
	for _, f := range tuple {
		res.Fixtures = append(res.Fixtures, f.Name())
	}

	for _, f := range tuple {
		if err := f.Activate(ctx); err != nil {
			res.Duration = s.now().Sub(start)
			return res, err
		}
	}

	s.logger.Notify("* running %s on [%s]...", tc.Name(), strings.Join(res.Fixtures, ", "))
	err := tc.Run(ctx, tuple, s.logger)
	res.Duration = s.now().Sub(start)
	if err != nil {
		return res, fmt.Errorf("%s: %w", tc.Name(), err)
	}
	return res, nil
}

// RunAll runs each case in turn and stops at the first error.
func (s *Scheduler) RunAll(ctx context.Context, cases []TestCase) ([]Result, error) {
	var results []Result
	for _, tc := range cases {
		res, err := s.Run(ctx, tc)
		results = append(results, res)
		if err != nil {
			s.logger.Error("%v", err)
			return results, err
		}
	}
	s.logger.Success("All tests passed!")
	return results, nil
}

// firstMatch walks the cartesian product of candidates and returns the
// first tuple accepted by pred with the number of pred calls made.
func firstMatch(candidates [][]fixture.Fixture, pred func([]fixture.Fixture) bool) ([]fixture.Fixture, int) {
	if len(candidates) == 0 {
		return nil, 0
	}
	for _, c := range candidates {
		if len(c) == 0 {
			return nil, 0
		}
	}

	idx := make([]int, len(candidates))
	evaluated := 0
	for {
		tuple := make([]fixture.Fixture, len(candidates))
		for i, c := range candidates {
			tuple[i] = c[idx[i]]
		}
		evaluated++
		if pred(tuple) {
			return tuple, evaluated
		}

		// advance the odometer
		i := len(idx) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(candidates[i]) {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return nil, evaluated
		}
	}
}
