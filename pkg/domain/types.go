package domain

import "time"

// IndexState represents the lifecycle of one uploaded document.
type IndexState string

const (
	StateQueued     IndexState = "queued"
	StateProcessing IndexState = "processing"
	StateDone       IndexState = "done"
	StateError      IndexState = "error"
)

// Terminal reports whether a state admits no further transitions.
func (s IndexState) Terminal() bool {
	return s == StateDone || s == StateError
}

// Passage is one retrieval unit: a chunk of extracted document text tagged
// with its source filename and 0-based page number.
type Passage struct {
	ID       string            `json:"id"`
	Filename string            `json:"filename"`
	Page     int               `json:"page"`
	Seq      int               `json:"seq"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ScoredPassage pairs a passage with its retrieval relevance score.
// Higher scores rank first.
type ScoredPassage struct {
	Passage Passage `json:"passage"`
	Score   float64 `json:"score"`
}

// StatusRecord tracks the indexing lifecycle of one (user, filename) pair.
// It is overwritten on each transition, never appended.
type StatusRecord struct {
	User      string     `json:"user"`
	Filename  string     `json:"filename"`
	State     IndexState `json:"state"`
	Detail    string     `json:"detail,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// IngestJob is the unit of work delivered to indexing workers.
type IngestJob struct {
	ID       string    `json:"id"`
	User     string    `json:"user"`
	Filename string    `json:"filename"`
	Enqueued time.Time `json:"enqueued"`
}

// Source is a deduplicated citation attached to an answer. Page is 1-based
// for display.
type Source struct {
	Filename string `json:"filename"`
	Page     int    `json:"page"`
}

// Answer is the result of one question against a user's index.
type Answer struct {
	Text      string    `json:"answer"`
	Sources   []Source  `json:"sources"`
	CreatedAt time.Time `json:"createdAt"`
}
