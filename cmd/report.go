// File: cmd/report.go
package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/xkilldash9x/stepwise/api/schemas"
)

func newTable(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
}

// printReport writes a run summary followed by its optimization map.
func printReport(out io.Writer, result *schemas.OptimizationResult) error {
	meta := result.Metadata
	fmt.Fprintf(out, "Run %s\n", result.RunID)
	fmt.Fprintf(out, "  steps:      %d -> %d (%d removed)\n", result.OriginalStepCount, len(result.Steps), meta.StepsRemoved)
	fmt.Fprintf(out, "  sequences:  %d found, %d optimized\n", meta.SequencesFound, meta.SequencesOptimized)
	if meta.AverageConfidence != nil {
		fmt.Fprintf(out, "  confidence: %.2f\n", *meta.AverageConfidence)
	}
	if meta.Oracle != nil {
		fmt.Fprintf(out, "  oracle:     %d calls, %d failed, mean latency %s\n", meta.Oracle.Calls, meta.Oracle.Failures, meta.Oracle.MeanLatency)
	}
	if len(meta.OptimizationMap) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	return printMapEntries(out, meta.OptimizationMap)
}

func printMapEntries(out io.Writer, entries []schemas.OptimizationMapEntry) error {
	w := newTable(out)
	fmt.Fprintln(w, "ORIGINAL\tOPTIMIZED\tMETHOD\tREASON")
	for _, e := range entries {
		target := strconv.Itoa(e.OptimizedIndex)
		if e.OptimizedIndex == schemas.RemovedIndex {
			target = "removed"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", joinInts(e.OriginalIndices), target, e.DecisionMethod, e.Reason)
	}
	return w.Flush()
}

func printSequences(out io.Writer, seqs []schemas.NavigationSequence) error {
	if len(seqs) == 0 {
		fmt.Fprintln(out, "No navigation sequences found.")
		return nil
	}
	w := newTable(out)
	for i, seq := range seqs {
		fmt.Fprintf(w, "Sequence %d\tsteps %d-%d\t%s -> %s\toptimizable: %t\n",
			i+1, seq.StartIndex, seq.EndIndex, seq.StartURL, seq.EndURL, seq.CanOptimize)
		for off, c := range seq.Classifications {
			fmt.Fprintf(w, "  %d\t%s\t%s\t%s\n", c.StepIndex, seq.Steps[off].Type, c.Classification, c.Reasoning)
		}
	}
	return w.Flush()
}

func printRuns(out io.Writer, runs []schemas.RunSummary) error {
	w := newTable(out)
	fmt.Fprintln(w, "RUN\tWORKFLOW\tSTEPS\tREMOVED\tSEQUENCES\tAI\tCREATED")
	for _, r := range runs {
		workflowID := r.WorkflowID
		if workflowID == "" {
			workflowID = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d -> %d\t%d\t%d/%d\t%t\t%s\n",
			r.RunID, workflowID, r.OriginalStepCount, r.OptimizedStepCount, r.StepsRemoved,
			r.SequencesOptimized, r.SequencesFound, r.AIAnalysisUsed, humanize.Time(r.CreatedAt))
	}
	return w.Flush()
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ",")
}
