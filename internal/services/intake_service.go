package services

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/solenne-labs/corpora/internal/core"
	"github.com/solenne-labs/corpora/internal/core/identity"
	"github.com/solenne-labs/corpora/internal/models"
)

// IntakeService is the deduplication engine: it decides, per upload,
// whether to refresh an existing document, clone another owner's finished
// work, or enqueue a fresh ingest job.
type IntakeService struct {
	db core.DbClient
}

func NewIntakeService(db core.DbClient) *IntakeService {
	return &IntakeService{db: db}
}

// Submit registers an upload for an owner. The three outcomes, in order:
//
//  1. Same owner, same bytes: the deterministic document ID already
//     exists, so only metadata is refreshed. No new job, no reprocessing.
//  2. Different owner, same bytes, fully processed elsewhere: a new
//     document is created for this owner and the source's chunks are
//     copied under regenerated IDs. The copy is a one-shot snapshot, not
//     a reference, so later per-owner deletion cannot leak across owners.
//     No job: the document is already processed by construction.
//  3. Genuinely new content: document plus queued job.
func (s *IntakeService) Submit(ctx context.Context, ownerID, fileName, contentType, rawLocation, contentHash string) (*models.Document, error) {
	if !identity.ValidContentHash(contentHash) {
		return nil, fmt.Errorf("content hash %q: %w", contentHash, core.ErrMalformedContentHash)
	}

	docID := identity.DocumentID(ownerID, contentHash)

	existing, err := s.db.GetDocumentByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := s.db.UpdateDocumentMetadata(ctx, existing.ID, fileName, contentType, rawLocation); err != nil {
			return nil, err
		}
		existing.FileName = fileName
		existing.ContentType = contentType
		existing.RawLocation = rawLocation
		log.Printf("intake: document %s re-submitted by owner %s, metadata refreshed", docID, ownerID)
		return existing, nil
	}

	source, err := s.db.FindCompletedByHash(ctx, contentHash, ownerID)
	if err != nil {
		return nil, err
	}
	if source != nil {
		return s.cloneFromSource(ctx, ownerID, docID, fileName, contentType, rawLocation, source)
	}

	doc := &models.Document{
		ID:          docID,
		OwnerID:     ownerID,
		ContentHash: contentHash,
		FileName:    fileName,
		ContentType: contentType,
		RawLocation: rawLocation,
		Status:      models.DocStatusUploaded,
	}
	if err := s.db.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}

	job := &models.IngestJob{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		Stage:      models.StageQueued,
	}
	if err := s.db.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	return doc, nil
}

// cloneFromSource materializes another owner's finished document for this
// owner: a new document row plus physically copied chunk rows. Chunk IDs
// are regenerated from the new document ID so the copies are idempotent to
// re-insert, and text/embedding are preserved so no parsing or embedding
// call is re-paid.
func (s *IntakeService) cloneFromSource(ctx context.Context, ownerID, docID, fileName, contentType, rawLocation string, source *models.Document) (*models.Document, error) {
	doc := &models.Document{
		ID:          docID,
		OwnerID:     ownerID,
		ContentHash: source.ContentHash,
		FileName:    fileName,
		ContentType: contentType,
		RawLocation: rawLocation,
		Status:      source.Status,
	}
	if err := s.db.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}

	srcChunks, err := s.db.GetChunksByDocument(ctx, source.ID)
	if err != nil {
		return nil, err
	}
	copies := make([]models.DocumentChunk, len(srcChunks))
	for i, ch := range srcChunks {
		copies[i] = models.DocumentChunk{
			ID:             identity.ChunkID(doc.ID, ch.ChunkerName, ch.ChunkerVersion, ch.Ordinal),
			DocumentID:     doc.ID,
			ChunkerName:    ch.ChunkerName,
			ChunkerVersion: ch.ChunkerVersion,
			Ordinal:        ch.Ordinal,
			Text:           ch.Text,
			TokenCount:     ch.TokenCount,
			Embedding:      ch.Embedding,
		}
	}
	if err := s.db.InsertDocumentChunks(ctx, copies); err != nil {
		return nil, err
	}

	log.Printf("intake: document %s cloned from %s (%d chunks), no job enqueued", doc.ID, source.ID, len(copies))
	return doc, nil
}
