package models

import "time"

// TimestampLayout is the UTC layout used for PageRecord.Timestamp
const TimestampLayout = "2006-01-02T15:04:05Z"

// RawDocument is the fetched, not yet extracted content of one URL
type RawDocument struct {
	URL         string    `json:"url"`
	FinalURL    string    `json:"final_url"`
	StatusCode  int       `json:"status_code"`
	ContentType string    `json:"content_type"`
	Body        []byte    `json:"-"`
	Rendered    bool      `json:"rendered"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// PageRecord represents the structured content extracted from a crawled page
type PageRecord struct {
	URL       string            `json:"url"`
	Title     string            `json:"title"`
	Metadata  map[string]string `json:"metadata"`
	Content   []ContentNode     `json:"content"`
	Verses    []Verse           `json:"verses"`
	Images    []Image           `json:"images"`
	Links     []string          `json:"links"`
	Timestamp string            `json:"timestamp"`
}

// ContentNode is one element of the body content tree
type ContentNode struct {
	Type       string        `json:"type"`
	Text       string        `json:"text"`
	Attributes Attributes    `json:"attributes"`
	Children   []ContentNode `json:"children,omitempty"`
}

// Attributes holds the identifying attributes kept for an element.
// ID is nil when the element has no id attribute.
type Attributes struct {
	ID      *string  `json:"id"`
	Classes []string `json:"classes"`
}

// Verse is a text-bearing element in document order
type Verse struct {
	Text       string     `json:"text"`
	Attributes Attributes `json:"attributes"`
}

// Image represents an <img> found on a page. Width and Height are nil when the
// attribute is absent.
type Image struct {
	URL    string  `json:"url"`
	Alt    string  `json:"alt"`
	Width  *string `json:"width"`
	Height *string `json:"height"`
}
