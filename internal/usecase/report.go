package usecase

import (
	"fmt"
	"strings"
	"time"

	"FeedSentinel/internal/domain"
)

// FormatRecoveryReport renders a plain text digest of a recovery run for operators.
func FormatRecoveryReport(r domain.RecoveryReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "FeedSentinel recovery %s\n", r.RunID)
	fmt.Fprintf(&b, "Finished %s in %s\n", r.FinishedAt.Format(time.RFC3339), r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
	fmt.Fprintf(&b, "Probed %d: %d healthy, %d degraded, %d failed\n",
		r.Probed, r.StatusCounts[domain.StatusHealthy], r.StatusCounts[domain.StatusDegraded], r.StatusCounts[domain.StatusFailed])

	if len(r.Deactivated) > 0 {
		fmt.Fprintf(&b, "Deactivated: %s\n", strings.Join(r.Deactivated, ", "))
	}

	b.WriteString("\nCoverage (before -> after):\n")
	for _, cat := range domain.Categories() {
		after, ok := r.CoverageAfter[cat]
		if !ok {
			fmt.Fprintf(&b, "  %-10s unknown\n", cat)
			continue
		}
		marker := ""
		if after < r.MinCoverage {
			marker = "  below minimum"
		}
		fmt.Fprintf(&b, "  %-10s %d -> %d%s\n", cat, r.CoverageBefore[cat], after, marker)
		if added := r.Added[cat]; len(added) > 0 {
			fmt.Fprintf(&b, "             + %s\n", strings.Join(added, ", "))
		}
	}

	if len(r.Errors) > 0 {
		b.WriteString("\nProblems:\n")
		for _, e := range r.Errors {
			if e.Category != "" {
				fmt.Fprintf(&b, "  [%s/%s] %s\n", e.Stage, e.Category, e.Message)
			} else {
				fmt.Fprintf(&b, "  [%s] %s\n", e.Stage, e.Message)
			}
		}
	}

	return b.String()
}

// FormatIngestResult renders a one-line summary of an ingestion run.
func FormatIngestResult(r domain.IngestResult) string {
	return fmt.Sprintf("%s: %d sources (%d failed to fetch), %d items fetched, %d already stored, %d stored, %d failed",
		r.Category, r.Sources, r.FetchFailures, r.Fetched, r.SkippedKnown, r.Succeeded, r.Failed)
}

// FormatVerdicts renders probe verdicts as an aligned table.
func FormatVerdicts(verdicts []domain.HealthVerdict) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-10s %-32s %-9s %5s  %s\n", "CATEGORY", "SOURCE", "STATUS", "ITEMS", "DETAIL")
	for _, v := range verdicts {
		detail := ""
		if v.Status == domain.StatusFailed {
			detail = v.Reason()
		}
		fmt.Fprintf(&b, "%-10s %-32s %-9s %5d  %s\n", v.Category, v.SourceID, v.Status, v.ItemCount, detail)
	}
	return b.String()
}
