package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/solenne-labs/corpora/internal/core"
	"github.com/solenne-labs/corpora/internal/models"
)

var ErrDocumentNotFound = errors.New("document not found")

type DocumentService struct {
	db core.DbClient
}

func NewDocumentService(db core.DbClient) *DocumentService {
	return &DocumentService{db: db}
}

// Get returns the document only if it belongs to the given owner; other
// owners' documents are indistinguishable from missing ones.
func (s *DocumentService) Get(ctx context.Context, ownerID, docID string) (*models.Document, error) {
	doc, err := s.db.GetDocumentByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.OwnerID != ownerID {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

// Status reports the document's processing status.
func (s *DocumentService) Status(ctx context.Context, ownerID, docID string) (string, error) {
	doc, err := s.Get(ctx, ownerID, docID)
	if err != nil {
		return "", err
	}
	return doc.Status, nil
}

func (s *DocumentService) ListByOwner(ctx context.Context, ownerID string) ([]models.Document, error) {
	return s.db.ListDocumentsByOwner(ctx, ownerID)
}

// Reprocess re-queues a failed document's job. The existing document and
// job rows are reused, so a retriggered run can never orphan duplicates.
func (s *DocumentService) Reprocess(ctx context.Context, ownerID, docID string) error {
	doc, err := s.Get(ctx, ownerID, docID)
	if err != nil {
		return err
	}
	if doc.Status != models.DocStatusFailed {
		return fmt.Errorf("document %s is %s, only failed documents can be reprocessed", docID, doc.Status)
	}

	job, err := s.db.GetJobByDocument(ctx, docID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("no ingest job for document %s", docID)
	}
	if err := s.db.RequeueJob(ctx, job.ID); err != nil {
		return err
	}
	return s.db.UpdateDocumentStatus(ctx, docID, models.DocStatusUploaded)
}
