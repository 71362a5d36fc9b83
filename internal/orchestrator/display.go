package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/zk/xray-reporter/internal/report"
)

// displayResults prints one table row per test result and the totals line
func (o *Orchestrator) displayResults(reports []report.Report) {
	passed, failed := 0, 0
	for _, r := range reports {
		p, f := r.Counts()
		passed += p
		failed += f
	}

	if len(reports) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(o.out)
		t.SetTitle("Xray Results")
		t.AppendHeader(table.Row{"Environment", "Test", "Status", "Examples"})
		t.SetColumnConfigs([]table.ColumnConfig{
			{Name: "Environment", AutoMerge: true},
			{Name: "Examples", WidthMax: 40, WidthMaxEnforcer: text.WrapSoft},
		})

		for _, r := range reports {
			for _, test := range r.Tests {
				t.AppendRow(table.Row{r.Signature(), test.TestKey, string(test.Status), formatExamples(test.Examples)})
			}
			t.AppendSeparator()
		}

		t.SetStyle(table.StyleLight)
		t.AppendFooter(table.Row{"TOTAL", fmt.Sprintf("%d test(s)", passed+failed), fmt.Sprintf("%d failed", failed), ""})
		t.Render()
		fmt.Fprintln(o.out)
	}

	if failed > 0 {
		fmt.Fprintf(o.out, "Results:     %d passed, %d failed, %d total\n", passed, failed, passed+failed)
	} else {
		fmt.Fprintf(o.out, "Results:     %d passed, %d total\n", passed, passed+failed)
	}
	fmt.Fprintf(o.out, "Total time:  %.3fs\n", time.Since(o.startTime).Seconds())
}

// formatExamples renders example statuses compactly, e.g. "PASS FAIL"
func formatExamples(examples []report.Status) string {
	parts := make([]string, len(examples))
	for i, e := range examples {
		parts[i] = string(e)
	}
	return strings.Join(parts, " ")
}
