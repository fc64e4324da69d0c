package models

import "errors"

// ErrCollectionNotFound is returned by vector stores that are read before
// anything has been ingested into them.
var ErrCollectionNotFound = errors.New("collection not found")

// Chunk is one stored segment of a source document.
type Chunk struct {
	ID       string
	Text     string
	Source   string
	Metadata map[string]string
}

// Match is a chunk returned by a similarity query.
type Match struct {
	Chunk
	Distance float32
}

// Turn is one question/answer exchange of a conversation.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type Answer struct {
	Text      string              `json:"answer"`
	Sources   []map[string]string `json:"sources"`
	NextSteps string              `json:"next_steps"`
}
