package domain

import (
	"sort"
	"time"
)

// FallbackCandidate is a hand-curated backup source waiting to be promoted.
type FallbackCandidate struct {
	ID       string
	Name     string
	URL      string
	Category Category
	Priority int
	Tested   bool
	TestedAt *time.Time
}

// Promote turns a validated candidate into an active registry source.
func (c FallbackCandidate) Promote(at time.Time, frequency time.Duration) Source {
	return Source{
		ID:             c.ID,
		Name:           c.Name,
		URL:            c.URL,
		Category:       c.Category,
		Kind:           KindFeed,
		Active:         true,
		FetchFrequency: frequency,
		Origin:         OriginFallback,
		AddedAt:        at,
	}
}

// Recovery stage names used in reports and logs.
const (
	StageProbe      = "probe"
	StageDeactivate = "deactivate"
	StageCoverage   = "coverage"
	StageFallback   = "fallback"
	StageDiscover   = "discover"
	StageAdd        = "add"
	StageReport     = "report"
)

// StageError attributes a recoverable failure to a stage and category.
type StageError struct {
	Stage    string
	Category Category
	Message  string
}

// RecoveryReport summarises one recovery run.
type RecoveryReport struct {
	RunID          string
	StartedAt      time.Time
	FinishedAt     time.Time
	Probed         int
	StatusCounts   map[HealthStatus]int
	Deactivated    []string
	CoverageBefore map[Category]int
	CoverageAfter  map[Category]int
	Added          map[Category][]string
	Errors         []StageError
	MinCoverage    int
}

// UnderCovered lists categories still below the minimum after the run, in canonical order.
func (r RecoveryReport) UnderCovered() []Category {
	var out []Category
	for cat, n := range r.CoverageAfter {
		if n < r.MinCoverage {
			out = append(out, cat)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank() < out[j].Rank() })
	return out
}

// AddedCount totals sources added across categories.
func (r RecoveryReport) AddedCount() int {
	total := 0
	for _, ids := range r.Added {
		total += len(ids)
	}
	return total
}

// HasFailures reports whether the run completed with anything an operator should look at.
func (r RecoveryReport) HasFailures() bool {
	return len(r.Errors) > 0 || r.StatusCounts[StatusFailed] > 0 || len(r.UnderCovered()) > 0
}

// IngestResult is the tally of one ingestion run for a category.
type IngestResult struct {
	Category      Category
	Sources       int
	FetchFailures int
	Fetched       int
	SkippedKnown  int
	Succeeded     int
	Failed        int
	StoredIDs     []string
}

// HasFailures reports partial failures worth a non-zero exit status.
func (r IngestResult) HasFailures() bool {
	return r.Failed > 0 || r.FetchFailures > 0
}
