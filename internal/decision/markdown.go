package decision

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders DecisionResult as Markdown string.
func RenderMarkdown(result *DecisionResult) string {
	var sb strings.Builder

	sb.WriteString("# Latency Gate Report\n\n")
	sb.WriteString(fmt.Sprintf("## Decision: %s\n\n", result.Decision))

	sb.WriteString("## Targets\n\n")
	sb.WriteString("| # | Stage | Budget | Actual | Pass |\n")
	sb.WriteString("|---|-------|--------|--------|------|\n")
	passed := 0
	for i, t := range result.Targets {
		passStr := "PASS"
		if !t.Pass {
			passStr = "FAIL"
		} else {
			passed++
		}
		sb.WriteString(fmt.Sprintf("| %d | %s | P%g < %s | %s | %s |\n",
			i+1, t.Name, t.Percentile, formatDuration(t.Limit), actual(t), passStr))
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Targets: %d/%d passed\n\n", passed, len(result.Targets)))

	sb.WriteString("## NO-GO Triggers\n\n")
	sb.WriteString("| # | Trigger | Condition | Actual | Status |\n")
	sb.WriteString("|---|---------|-----------|--------|--------|\n")
	for i, c := range result.NOGOChecks {
		statusStr := "NOT TRIGGERED"
		if !c.Pass {
			statusStr = "TRIGGERED"
		}
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s |\n",
			i+1, c.Name, c.Threshold, c.Actual, statusStr))
	}
	sb.WriteString("\n")

	sb.WriteString("## Summary\n\n")
	if result.Decision == DecisionGO {
		sb.WriteString("All latency targets met and no NO-GO triggers fired.\n")
		return sb.String()
	}
	sb.WriteString("Decision is NO-GO due to:\n")
	for _, t := range result.Targets {
		if !t.Pass {
			sb.WriteString(fmt.Sprintf("- target missed: %s (actual: %s)\n", t.Name, actual(t)))
		}
	}
	for _, c := range result.NOGOChecks {
		if !c.Pass {
			sb.WriteString(fmt.Sprintf("- NO-GO trigger fired: %s (actual: %s)\n", c.Name, c.Actual))
		}
	}
	return sb.String()
}

func actual(t TargetResult) string {
	if !t.Present {
		return "no samples"
	}
	return formatDuration(t.Actual)
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.3fms", float64(d)/float64(time.Millisecond))
}
