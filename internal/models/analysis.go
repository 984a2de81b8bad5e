package models

import "time"

// SiteAnalysis contains the results of analyzing a set of saved page records
type SiteAnalysis struct {
	Domain          string           `json:"domain"`
	GeneratedAt     time.Time        `json:"generated_at"`
	Summary         Summary          `json:"summary"`
	Scores          Scores           `json:"scores"`
	TotalPages      int              `json:"total_pages"`
	TotalImages     int              `json:"total_images"`
	TotalVerses     int              `json:"total_verses"`
	TotalWords      int              `json:"total_words"`
	ReadingMinutes  int              `json:"reading_minutes"`
	Sections        map[string]int   `json:"sections"`
	Keywords        []string         `json:"keywords"`
	TopPages        []RankedPage     `json:"top_pages"`
	Findings        []Finding        `json:"findings"`
	Recommendations []Recommendation `json:"recommendations"`
}

// Summary provides high-level insights
type Summary struct {
	Grade         string   `json:"grade"`
	Score         float64  `json:"score"`
	Strengths     []string `json:"strengths"`
	Weaknesses    []string `json:"weaknesses"`
	TopPriorities []string `json:"top_priorities"`
}

// Scores contains the 0-100 quality scores of a site
type Scores struct {
	Content   float64 `json:"content"`
	Structure float64 `json:"structure"`
	Overall   float64 `json:"overall"`
}

// RankedPage is a page with its PageRank score over the crawled link graph
type RankedPage struct {
	URL      string  `json:"url"`
	Title    string  `json:"title"`
	PageRank float64 `json:"pagerank"`
	Inbound  int     `json:"inbound"`
}

// Finding represents a content issue or observation
type Finding struct {
	Category    string   `json:"category"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Severity    string   `json:"severity"`
	URLs        []string `json:"urls,omitempty"`
}

// Recommendation represents an actionable improvement
type Recommendation struct {
	Priority    string `json:"priority"`
	Category    string `json:"category"`
	Action      string `json:"action"`
	Impact      string `json:"impact"`
	Effort      string `json:"effort"`
	Description string `json:"description"`
}
