package models

import "time"

// FailureKind classifies why a page did not produce a saved record
type FailureKind string

const (
	FailureFetch       FailureKind = "FetchFailure"
	FailureExtraction  FailureKind = "ExtractionFailure"
	FailurePersistence FailureKind = "PersistenceFailure"
	FailureSeed        FailureKind = "SeedFailure"
)

// Failure is one failed URL in a crawl report
type Failure struct {
	URL    string      `json:"url"`
	Kind   FailureKind `json:"kind"`
	Reason string      `json:"reason"`
}

// CrawlReport summarizes a finished (or aborted) crawl session
type CrawlReport struct {
	SessionID       string         `json:"session_id"`
	Seed            string         `json:"seed"`
	BaseDomain      string         `json:"base_domain"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at"`
	PagesVisited    int            `json:"pages_visited"`
	PagesSaved      int            `json:"pages_saved"`
	FailureCount    int            `json:"failure_count"`
	Failures        []Failure      `json:"failures"`
	ExternalDomains map[string]int `json:"external_domains,omitempty"`
	Cancelled       bool           `json:"cancelled"`
}

// Succeeded returns the number of visited pages that were fetched and extracted.
// Pages whose record could not be persisted still count as succeeded.
func (r *CrawlReport) Succeeded() int {
	n := r.PagesVisited
	for _, f := range r.Failures {
		if f.Kind == FailureFetch || f.Kind == FailureExtraction || f.Kind == FailureSeed {
			n--
		}
	}
	if n < 0 {
		return 0
	}
	return n
}

// OK reports whether the crawl counts as an overall success
func (r *CrawlReport) OK() bool {
	return !r.Cancelled && r.Succeeded() > 0
}

// FailuresOf returns the failures of the given kind
func (r *CrawlReport) FailuresOf(kind FailureKind) []Failure {
	var out []Failure
	for _, f := range r.Failures {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}
