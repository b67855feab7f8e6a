// Package harness matches test cases to rig fixtures and runs them.
package harness

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tturner/canrig/internal/fixture"
	"github.com/tturner/canrig/internal/logging"
)

// TestCase is a test that needs a tuple of fixtures of declared kinds.
type TestCase interface {
	Name() string
	// Kinds lists the fixture kinds the test needs, in parameter order.
	Kinds() []fixture.Kind
	// Compatible reports whether the tuple suits the test. It must not
	// activate fixtures or have other side effects.
	Compatible(fs []fixture.Fixture) bool
	Run(ctx context.Context, fs []fixture.Fixture, logger *logging.Logger) error
}

type single[A fixture.Fixture] struct {
	name string
	kind fixture.Kind
	pred func(A) bool
	body func(context.Context, A, *logging.Logger) error
}

// Single builds a test case over one fixture of type A. A nil pred
// accepts every candidate.
func Single[A fixture.Fixture](name string, kind fixture.Kind, pred func(A) bool, body func(context.Context, A, *logging.Logger) error) TestCase {
	return &single[A]{name: name, kind: kind, pred: pred, body: body}
}

func (s *single[A]) Name() string          { return s.name }
func (s *single[A]) Kinds() []fixture.Kind { return []fixture.Kind{s.kind} }

func (s *single[A]) Compatible(fs []fixture.Fixture) bool {
	if len(fs) != 1 {
		return false
	}
	a, ok := fs[0].(A)
	if !ok {
		return false
	}
	return s.pred == nil || s.pred(a)
}

func (s *single[A]) Run(ctx context.Context, fs []fixture.Fixture, logger *logging.Logger) error {
	if len(fs) != 1 {
		return fmt.Errorf("%s: expected 1 fixture, got %d", s.name, len(fs))
	}
	a, ok := fs[0].(A)
	if !ok {
		return fmt.Errorf("%s: fixture %s has type %T", s.name, fs[0].Name(), fs[0])
	}
	return s.body(ctx, a, logger)
}

type pair[A, B fixture.Fixture] struct {
	name   string
	ka, kb fixture.Kind
	pred   func(A, B) bool
	body   func(context.Context, A, B, *logging.Logger) error
}

// Pair builds a test case over a fixture of type A and one of type B.
func Pair[A, B fixture.Fixture](name string, ka, kb fixture.Kind, pred func(A, B) bool, body func(context.Context, A, B, *logging.Logger) error) TestCase {
	return &pair[A, B]{name: name, ka: ka, kb: kb, pred: pred, body: body}
}

func (p *pair[A, B]) Name() string          { return p.name }
func (p *pair[A, B]) Kinds() []fixture.Kind { return []fixture.Kind{p.ka, p.kb} }

func (p *pair[A, B]) cast(fs []fixture.Fixture) (A, B, bool) {
	var a A
	var b B
	if len(fs) != 2 {
		return a, b, false
	}
	a, okA := fs[0].(A)
	b, okB := fs[1].(B)
	return a, b, okA && okB
}

func (p *pair[A, B]) Compatible(fs []fixture.Fixture) bool {
	a, b, ok := p.cast(fs)
	if !ok {
		return false
	}
	return p.pred == nil || p.pred(a, b)
}

func (p *pair[A, B]) Run(ctx context.Context, fs []fixture.Fixture, logger *logging.Logger) error {
	a, b, ok := p.cast(fs)
	if !ok {
		return fmt.Errorf("%s: fixtures do not match %s, %s", p.name, p.ka, p.kb)
	}
	return p.body(ctx, a, b, logger)
}

// Registry holds the named test cases the CLI can run.
type Registry struct {
	mu    sync.RWMutex
	cases map[string]TestCase
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{cases: make(map[string]TestCase)}
}

// Register adds tc. Names must be unique.
func (r *Registry) Register(tc TestCase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.cases[tc.Name()]; dup {
		return fmt.Errorf("test case %s already registered", tc.Name())
	}
	r.cases[tc.Name()] = tc
	return nil
}

// Lookup returns the test case called name.
func (r *Registry) Lookup(name string) (TestCase, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tc, ok := r.cases[name]
	return tc, ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.cases))
	for name := range r.cases {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
