package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/solenne-labs/corpora/internal/core"
	"github.com/solenne-labs/corpora/internal/models"
)

// Number of embedding requests in flight per document.
const maxInflightBatches = 4

// BatchEmbedder is the batch embedding manager: it partitions a document's
// un-embedded chunks into requests that never exceed the external
// service's per-call limit, retries failed sub-batches alone, validates
// every returned vector's dimensionality, and persists embeddings per
// sub-batch so already-paid work survives a later failure.
type BatchEmbedder struct {
	db       core.DbClient
	provider core.EmbeddingProvider

	batchLimit int
	embedDim   int
	maxRetries int
	backoff    func(attempt int) time.Duration
}

func NewBatchEmbedder(db core.DbClient, provider core.EmbeddingProvider, batchLimit, embedDim, maxRetries int, baseDelay time.Duration) *BatchEmbedder {
	if batchLimit <= 0 {
		batchLimit = 100
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return &BatchEmbedder{
		db:         db,
		provider:   provider,
		batchLimit: batchLimit,
		embedDim:   embedDim,
		maxRetries: maxRetries,
		backoff: func(attempt int) time.Duration {
			if attempt > 20 {
				attempt = 20
			}
			return baseDelay << uint(attempt)
		},
	}
}

// EmbedDocument embeds every chunk of the document that does not have an
// embedding yet. It returns nil only once no chunk is left without one.
func (b *BatchEmbedder) EmbedDocument(ctx context.Context, documentID string) error {
	chunks, err := b.db.GetChunksMissingEmbedding(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInflightBatches)

	for _, batch := range partitionChunks(chunks, b.batchLimit) {
		batch := batch
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i := range batch {
				texts[i] = batch[i].Text
			}

			vecs, err := b.embedBatch(gctx, texts)
			if err != nil {
				return err
			}
			for i := range batch {
				batch[i].Embedding = vecs[i]
			}
			if err := b.db.UpdateChunkEmbeddings(gctx, batch); err != nil {
				return fmt.Errorf("persist embeddings: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	missing, err := b.db.CountChunksMissingEmbedding(ctx, documentID)
	if err != nil {
		return err
	}
	if missing > 0 {
		return fmt.Errorf("%d chunks still missing embeddings for document %s", missing, documentID)
	}
	return nil
}

// embedBatch issues one external request for a single sub-batch, retrying
// only this sub-batch on transient failure. Dimensionality validation
// failures are structural and never retried.
func (b *BatchEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) > b.batchLimit {
		return nil, fmt.Errorf("sub-batch of %d exceeds limit %d", len(texts), b.batchLimit)
	}

	var lastErr error
	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(b.backoff(attempt - 1)):
			}
		}

		vecs, err := b.provider.EmbedTexts(ctx, texts)
		if err != nil {
			if core.Structural(err) {
				return nil, err
			}
			lastErr = err
			continue
		}
		if err := b.validate(vecs, len(texts)); err != nil {
			return nil, err
		}
		return vecs, nil
	}
	return nil, fmt.Errorf("embed sub-batch failed after %d attempts: %w", b.maxRetries+1, lastErr)
}

// validate rejects malformed embedding responses at the boundary, before
// anything reaches the store. A wrong-sized response or wrong-length
// vector would silently degrade every future retrieval for the document.
func (b *BatchEmbedder) validate(vecs [][]float32, want int) error {
	if len(vecs) != want {
		return fmt.Errorf("embedding count %d, want %d: %w", len(vecs), want, core.ErrDimensionMismatch)
	}
	for i, v := range vecs {
		if len(v) != b.embedDim {
			return fmt.Errorf("vector %d has dimension %d, want %d: %w", i, len(v), b.embedDim, core.ErrDimensionMismatch)
		}
	}
	return nil
}

// partitionChunks splits chunks into consecutive sub-slices of at most
// limit items: ⌈len/limit⌉ batches, none ever above the limit.
func partitionChunks(chunks []models.DocumentChunk, limit int) [][]models.DocumentChunk {
	var out [][]models.DocumentChunk
	for start := 0; start < len(chunks); start += limit {
		end := start + limit
		if end > len(chunks) {
			end = len(chunks)
		}
		out = append(out, chunks[start:end])
	}
	return out
}
