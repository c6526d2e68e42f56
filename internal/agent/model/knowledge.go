package model

import "context"

// Chunk is one ranked result from the similarity search collaborator.
type Chunk struct {
	Content          string   `json:"content"`
	HeadingHierarchy []string `json:"heading_hierarchy"`
	Similarity       float64  `json:"similarity"`
}

// ChunkFilter narrows a similarity query to the learner's curriculum
// position. Empty fields are null filters, matching everything.
type ChunkFilter struct {
	Subject string
	Grade   string
	Chapter string
}

// ChunkSearcher is the similarity search collaborator. The core calls it
// with topK=5 and passes learner context through as optional filters.
type ChunkSearcher interface {
	Search(ctx context.Context, query string, topK int, filter ChunkFilter) ([]Chunk, error)
}

// SearcherFunc adapts a plain function to the ChunkSearcher interface.
type SearcherFunc func(ctx context.Context, query string, topK int, filter ChunkFilter) ([]Chunk, error)

func (f SearcherFunc) Search(ctx context.Context, query string, topK int, filter ChunkFilter) ([]Chunk, error) {
	return f(ctx, query, topK, filter)
}
