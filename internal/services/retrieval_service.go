package services

import (
	"context"
	"fmt"

	"github.com/solenne-labs/corpora/internal/core"
	"github.com/solenne-labs/corpora/internal/models"
)

const (
	defaultMaxResults = 10
	maxMaxResults     = 50
)

// RetrievalService answers owner-scoped similarity queries. It is
// read-only: no pipeline state is touched here.
type RetrievalService struct {
	db       core.DbClient
	embedDim int
}

func NewRetrievalService(db core.DbClient, embedDim int) *RetrievalService {
	return &RetrievalService{db: db, embedDim: embedDim}
}

// Retrieve returns the owner's chunks most similar to the query embedding,
// best first, dropping anything below the threshold. An empty result is a
// valid outcome, not an error; the only input error is a query vector of
// the wrong dimensionality. Owner scoping happens inside the store query,
// never as an after-the-fact filter here.
func (s *RetrievalService) Retrieve(ctx context.Context, ownerID string, queryVec []float32, threshold float64, maxResults int) ([]models.ScoredChunk, error) {
	if len(queryVec) != s.embedDim {
		return nil, fmt.Errorf("query vector has dimension %d, want %d: %w", len(queryVec), s.embedDim, core.ErrDimensionMismatch)
	}
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	if maxResults > maxMaxResults {
		maxResults = maxMaxResults
	}

	chunks, err := s.db.SearchChunks(ctx, ownerID, queryVec, threshold, maxResults)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	return chunks, nil
}
