package report

import (
	"fmt"
	"io"
	"strings"
)

// WriteText writes a human-readable run summary.
func WriteText(w io.Writer, r RunReport) {
	passed, failed, skipped := r.Summary()
	fmt.Fprintf(w, "Run %s (%s)\n", r.RunID, r.Topology)
	for _, c := range r.Cases {
		status := "PASS"
		switch {
		case c.Skipped:
			status = "SKIP"
		case !c.Pass:
			status = "FAIL"
		}
		fmt.Fprintf(w, "  %-4s %-22s %6dms", status, c.Test, c.DurationMs)
		if len(c.Fixtures) > 0 {
			fmt.Fprintf(w, "  [%s]", strings.Join(c.Fixtures, ", "))
		}
		fmt.Fprintln(w)
		if c.Error != "" {
			fmt.Fprintf(w, "       %s\n", c.Error)
		}
	}
	fmt.Fprintf(w, "%d passed, %d failed, %d skipped in %s\n", passed, failed, skipped, r.Duration())
}
