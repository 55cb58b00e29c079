package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	sb.WriteString("# Liquidation Latency Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	run := r.Run
	sb.WriteString("## Run\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|-------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Run ID | %s |\n", run.RunID))
	sb.WriteString(fmt.Sprintf("| Mode | %s |\n", run.Mode))
	sb.WriteString(fmt.Sprintf("| Duration (ms) | %d |\n", run.FinishedAt-run.StartedAt))
	sb.WriteString(fmt.Sprintf("| Events | %d |\n", run.Events))
	sb.WriteString(fmt.Sprintf("| Signals | %d |\n", run.Signals))
	sb.WriteString(fmt.Sprintf("| Profitable | %d |\n", run.Profitable))
	sb.WriteString(fmt.Sprintf("| Attempts | %d |\n", run.TotalAttempts))
	sb.WriteString(fmt.Sprintf("| Successful | %d |\n", run.Successful))
	sb.WriteString(fmt.Sprintf("| Failed | %d |\n", run.Failed))
	sb.WriteString(fmt.Sprintf("| Success rate | %s |\n", successRate(run.Successful, run.TotalAttempts)))
	sb.WriteString("\n")

	sb.WriteString("## Latency (µs)\n\n")
	if len(run.Metrics) == 0 {
		sb.WriteString("No attempts recorded.\n\n")
	} else {
		sb.WriteString("| Metric | Count | P50 | P95 | P99 | Mean | Min | Max |\n")
		sb.WriteString("|--------|-------|-----|-----|-----|------|-----|-----|\n")
		for _, m := range run.Metrics {
			sb.WriteString(fmt.Sprintf("| %s | %d | %.2f | %.2f | %.2f | %.2f | %.2f | %.2f |\n",
				m.Metric, m.Count, m.P50, m.P95, m.P99, m.Mean, m.Min, m.Max))
		}
		sb.WriteString("\n")
	}

	if len(r.Targets) > 0 {
		sb.WriteString(fmt.Sprintf("## Targets: %s\n\n", r.Decision))
		sb.WriteString("| Stage | Budget (µs) | Actual (µs) | Status |\n")
		sb.WriteString("|-------|-------------|-------------|--------|\n")
		for _, t := range r.Targets {
			status := "FAIL"
			if t.Pass {
				status = "PASS"
			}
			actual := "-"
			if t.Present {
				actual = fmt.Sprintf("%.2f", t.ActualUs)
			}
			sb.WriteString(fmt.Sprintf("| %s P%g | < %.0f | %s | %s |\n",
				t.Name, t.Percentile, t.LimitUs, actual, status))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func successRate(ok, total int) string {
	if total == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", float64(ok)/float64(total)*100)
}
