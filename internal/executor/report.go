package executor

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// Report is the user-visible result of one run: a per-stage status table
// plus, for failures, the causal chain back to the originating stage.
type Report struct {
	Tenant    string
	Mode      string
	Cancelled bool

	// Results follow the execution order of the run.
	Results []*StageResult

	byStage map[string]*StageResult
}

func newReport(tenant, mode string) *Report {
	return &Report{
		Tenant:  tenant,
		Mode:    mode,
		byStage: make(map[string]*StageResult),
	}
}

func (r *Report) add(res *StageResult) {
	r.Results = append(r.Results, res)
	r.byStage[res.Stage] = res
}

// Result returns the result for one stage, or nil if it was out of scope.
func (r *Report) Result(stage string) *StageResult {
	return r.byStage[stage]
}

// Failed reports whether any stage ended Failed.
func (r *Report) Failed() bool {
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			return true
		}
	}
	return false
}

// CausalChain walks PropagatedFrom links from a failed stage back to the
// originating failure, origin first.
func (r *Report) CausalChain(stage string) []string {
	var chain []string
	for cur := r.byStage[stage]; cur != nil && cur.PropagatedFrom != ""; cur = r.byStage[cur.PropagatedFrom] {
		chain = append(chain, cur.PropagatedFrom)
	}
	// Reverse so the origin comes first.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return append(chain, stage)
}

// Counts returns the number of stages per status, for summaries.
func (r *Report) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, res := range r.Results {
		counts[res.Status]++
	}
	return counts
}

// Render writes the human-readable report.
func (r *Report) Render(w io.Writer) {
	fmt.Fprintf(w, "%s for tenant %s\n", r.Mode, r.Tenant)
	if r.Cancelled {
		fmt.Fprintln(w, "run cancelled before completion")
	}

	for _, res := range r.Results {
		line := fmt.Sprintf("  %-24s %s", res.Stage, res.Status)
		if res.Reused {
			line += " (from state)"
		}
		if res.Attempts > 1 {
			line += fmt.Sprintf(" (%d attempts)", res.Attempts)
		}
		if res.Duration > 0 {
			line += fmt.Sprintf(" [%s]", res.Duration.Round(time.Millisecond))
		}
		fmt.Fprintln(w, line)

		if res.Status == StatusFailed {
			if res.PropagatedFrom != "" {
				chain := r.CausalChain(res.Stage)
				fmt.Fprintf(w, "      blocked by: %s\n", strings.Join(chain, " -> "))
			} else if res.Err != nil {
				fmt.Fprintf(w, "      error: %v\n", res.Err)
			}
		}
	}

	counts := r.Counts()
	var parts []string
	for _, s := range []Status{StatusSucceeded, StatusFailed, StatusSkippedByCondition, StatusNotApplied} {
		if counts[s] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[s], s))
		}
	}
	sort.Strings(parts)
	if len(parts) > 0 {
		fmt.Fprintf(w, "summary: %s\n", strings.Join(parts, ", "))
	}
}
