// Package vectorstore provides embedding-based document retrieval organized
// into named collections. Each uploaded document set lives in its own
// collection; searches embed the query and rank chunks by cosine distance.
package vectorstore

import (
	"context"
	"errors"
	"math"
)

var ErrCollectionNotFound = errors.New("collection not found")

// Document is one chunk of indexable text.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]any
}

// Record is one search hit. Distance is the cosine distance to the query
// embedding, 0 for identical direction and up to 2 for opposite.
type Record struct {
	ID       string
	Text     string
	Metadata map[string]any
	Distance float64
}

// SearchOptions bounds a query.
type SearchOptions struct {
	// Limit caps the number of records returned (default 20).
	Limit int

	// MaxDistance drops records at or beyond this cosine distance. Zero
	// means no filter.
	MaxDistance float64
}

func (o SearchOptions) limit() int {
	if o.Limit <= 0 {
		return 20
	}
	return o.Limit
}

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Store indexes documents into collections and answers similarity queries.
type Store interface {
	// Index adds documents to a collection, creating it if needed.
	// Documents with an existing id are replaced.
	Index(ctx context.Context, collection string, docs []Document) error

	// Search returns the closest records in ascending distance order.
	Search(ctx context.Context, collection, query string, opts SearchOptions) ([]Record, error)

	// DeleteCollection removes a collection and its documents.
	DeleteCollection(ctx context.Context, collection string) error

	// Collections lists the known collection names.
	Collections(ctx context.Context) ([]string, error)

	Close() error
}

func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
