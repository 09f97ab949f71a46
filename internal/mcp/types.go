// Package mcp exposes the document assistant as Model Context Protocol tools.
package mcp

import "time"

// AskDocumentsInput defines the input parameters for the ask_documents tool.
type AskDocumentsInput struct {
	// Question is the natural-language question.
	Question string `json:"question" jsonschema:"the question to answer from the uploaded documents"`
	// SessionID keys the conversation history.
	SessionID string `json:"session_id,omitempty" jsonschema:"conversation id; turns in the same session share history (default: default)"`
	// CollectionID selects the document collection.
	CollectionID string `json:"collection_id,omitempty" jsonschema:"collection to search (default: the most recently ingested)"`
	// K is the number of chunks used as context.
	K int `json:"k,omitempty" jsonschema:"number of retrieved passages used as context (default 5)"`
}

// AskDocumentsOutput contains the answer and its sources.
type AskDocumentsOutput struct {
	// Answer is the assistant's reply, or a fallback message.
	Answer string `json:"answer"`
	// Sources are the page-tagged passages the answer was based on.
	Sources []string `json:"sources"`
	// Outcome is answered, no_documents or low_confidence.
	Outcome string `json:"outcome"`
	// Collection is the collection that was searched.
	Collection string `json:"collection,omitempty"`
	// MaxScore is the best similarity score of the retrieval.
	MaxScore float64 `json:"max_score"`
}

// SearchDocumentsInput defines the input parameters for the search_documents tool.
type SearchDocumentsInput struct {
	// Query is the semantic search query.
	Query string `json:"query" jsonschema:"the semantic search query"`
	// CollectionID selects the document collection.
	CollectionID string `json:"collection_id,omitempty" jsonschema:"collection to search (default: the most recently ingested)"`
	// MaxResults is the maximum number of passages to return.
	MaxResults int `json:"max_results,omitempty" jsonschema:"maximum number of passages to return (1-20, default 5)"`
	// MinScore is the minimum similarity score.
	MinScore float64 `json:"min_score,omitempty" jsonschema:"drop passages scoring below this (0-1, default 0)"`
}

// SearchDocumentsOutput contains the matching passages.
type SearchDocumentsOutput struct {
	// Results is the list of passages, best first.
	Results []SearchResult `json:"results"`
	// Collection is the collection that was searched.
	Collection string `json:"collection"`
	// Message provides informational context (e.g., "No matching passages found").
	Message string `json:"message,omitempty"`
}

// SearchResult is a single passage match.
type SearchResult struct {
	// Page is the 1-based source page.
	Page int `json:"page"`
	// Text is the page-tagged passage.
	Text string `json:"text"`
	// Score is the similarity score.
	Score float64 `json:"score"`
}

// ListCollectionsInput defines the input parameters for the list_collections tool.
// This tool takes no parameters.
type ListCollectionsInput struct{}

// ListCollectionsOutput describes the known collections.
type ListCollectionsOutput struct {
	// Collections is every known collection, sorted by id.
	Collections []CollectionInfo `json:"collections"`
	// Active is the collection used when none is given.
	Active string `json:"active"`
	// Count is the number of collections.
	Count int `json:"count"`
}

// CollectionInfo is one collection's provenance.
type CollectionInfo struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Pages      int       `json:"pages"`
	Chunks     int       `json:"chunks"`
	Generation string    `json:"generation"`
	IngestedAt time.Time `json:"ingested_at"`
	Active     bool      `json:"active"`
}
