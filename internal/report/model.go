// Package report writes machine-readable summaries of test runs.
package report

import (
	"time"

	canrigErrors "github.com/tturner/canrig/internal/errors"
	"github.com/tturner/canrig/internal/harness"
)

// RunReport captures one "canrig run" invocation.
type RunReport struct {
	GeneratedAt   string       `json:"generated_at"`
	CanrigVersion string       `json:"canrig_version"`
	RunID         string       `json:"run_id"`
	Topology      string       `json:"topology"`
	Virtual       bool         `json:"virtual,omitempty"`
	Pass          bool         `json:"pass"`
	Cases         []CaseReport `json:"cases"`
}

// CaseReport captures one test case invocation.
type CaseReport struct {
	Test       string   `json:"test"`
	Fixtures   []string `json:"fixtures,omitempty"`
	Evaluated  int      `json:"evaluated"`
	DurationMs int64    `json:"duration_ms"`
	Skipped    bool     `json:"skipped,omitempty"`
	Pass       bool     `json:"pass"`
	Error      string   `json:"error,omitempty"`
	// ErrorKind is the error category, e.g. "timeout" or "assertion failure".
	ErrorKind string `json:"error_kind,omitempty"`
}

// Cases converts scheduler results. runErr, if set, belongs to the last
// result since the scheduler stops at the first failure.
func Cases(results []harness.Result, runErr error) []CaseReport {
	out := make([]CaseReport, 0, len(results))
	for i, r := range results {
		c := CaseReport{
			Test:       r.Test,
			Fixtures:   r.Fixtures,
			Evaluated:  r.Evaluated,
			DurationMs: r.Duration.Milliseconds(),
			Skipped:    r.Skipped,
			Pass:       !r.Skipped,
		}
		if runErr != nil && i == len(results)-1 {
			c.Pass = false
			c.Error = runErr.Error()
			if k, ok := canrigErrors.KindOf(runErr); ok {
				c.ErrorKind = string(k)
			}
		}
		out = append(out, c)
	}
	return out
}

// Summary counts passed, failed and skipped cases.
func (r RunReport) Summary() (passed, failed, skipped int) {
	for _, c := range r.Cases {
		switch {
		case c.Skipped:
			skipped++
		case c.Pass:
			passed++
		default:
			failed++
		}
	}
	return passed, failed, skipped
}

// Duration is the total time spent in test cases.
func (r RunReport) Duration() time.Duration {
	var total int64
	for _, c := range r.Cases {
		total += c.DurationMs
	}
	return time.Duration(total) * time.Millisecond
}
