package store

import (
	"context"

	"github.com/rotisserie/eris"
)

// Collection is the name of the markers collection (table).
const Collection = "markers"

// ErrNotFound is returned when no document exists under the requested key.
var ErrNotFound = eris.New("store: document not found")

// Document is a schemaless marker document. A nil value is stored as JSON null.
type Document map[string]any

// ListFilter specifies paging and optional exact-match filters for listing documents.
type ListFilter struct {
	Skip   int    `json:"skip,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Region string `json:"region,omitempty"`
	Type   string `json:"type,omitempty"`
}

// DefaultListLimit is applied when ListFilter.Limit is not positive.
const DefaultListLimit = 100

// Store defines the document operations on the markers collection.
// Every write is an independent, atomic operation.
type Store interface {
	// Get returns the document stored under id, or ErrNotFound.
	Get(ctx context.Context, id string) (Document, error)
	// Put writes doc under id, replacing any existing document.
	Put(ctx context.Context, id string, doc Document) error
	// PutIfAbsent writes doc only when id is free. It reports whether the document was created.
	PutIfAbsent(ctx context.Context, id string, doc Document) (bool, error)
	// Patch merges fields into the existing document, or returns ErrNotFound.
	Patch(ctx context.Context, id string, fields Document) error
	// Delete removes the document, or returns ErrNotFound.
	Delete(ctx context.Context, id string) error
	// List returns a page of documents keyed by id, ordered by id.
	List(ctx context.Context, filter ListFilter) ([]Entry, error)
	// Count returns the number of documents in the collection.
	Count(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Entry pairs a document with its key.
type Entry struct {
	ID  string
	Doc Document
}

func (f ListFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}
