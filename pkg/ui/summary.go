package ui

import (
	"fmt"
	"time"

	"repostreach/pkg/pipeline"
)

// PrintSummary prints the outcome of a finished run
func PrintSummary(report *pipeline.Report, resultPath string) {
	verb := "Processed"
	if report.Resumed {
		verb = "Resumed and finished"
	}
	fmt.Fprintf(Output, "\n%s %s %d posts, results in %s\n",
		Green("✓"), verb, report.Posts, resultPath)

	fmt.Fprintf(Output, "  %s %d posts collected, %d distinct reposters, %d counted\n",
		Dim("•"), report.Collected, report.Accounts, report.Counted)
	fmt.Fprintf(Output, "  %s total exposure %d in %s\n",
		Dim("•"), totalExposure(report), formatDuration(report.Duration))

	if n := len(report.PostMisses); n > 0 {
		fmt.Fprintf(Output, "  %s %d posts missed: %v\n", Yellow("⚠"), n, report.PostMisses)
	}
	if n := len(report.AccountMisses); n > 0 {
		fmt.Fprintf(Output, "  %s %d accounts missed: %v\n", Yellow("⚠"), n, report.AccountMisses)
	}
}

func totalExposure(report *pipeline.Report) int64 {
	var total int64
	for _, r := range report.Table {
		if r.Exposure != nil {
			total += *r.Exposure
		}
	}
	return total
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
