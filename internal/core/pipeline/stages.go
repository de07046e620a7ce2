package pipeline

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/solenne-labs/corpora/internal/core"
	"github.com/solenne-labs/corpora/internal/core/identity"
	"github.com/solenne-labs/corpora/internal/models"
)

// runParse reads the raw object, extracts text, and stores the parsed text
// back to object storage. Empty or whitespace-only parser output is a
// parse failure even when the parser call itself "succeeded".
func (w *Worker) runParse(ctx context.Context, job *models.IngestJob) error {
	doc, err := w.db.GetDocumentByID(ctx, job.DocumentID)
	if err != nil || doc == nil {
		return fmt.Errorf("document %s not found: %w", job.DocumentID, err)
	}

	bucket, key := parseStorageURL(doc.RawLocation)
	raw, err := w.obj.GetFile(ctx, bucket, key)
	if err != nil {
		return fmt.Errorf("get raw object: %w", err)
	}

	text, err := w.parser.Parse(ctx, raw, doc.ContentType)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("parse: %w", core.ErrEmptyParse)
	}

	parsedKey := path.Join("users", doc.OwnerID, "parsed", doc.ID+".txt")
	parsedURL, err := w.obj.UploadFile(ctx, w.bucket, parsedKey, strings.NewReader(text), "text/plain; charset=utf-8")
	if err != nil {
		return fmt.Errorf("store parsed text: %w", err)
	}

	if err := w.db.SetDocumentParsedLocation(ctx, doc.ID, parsedURL); err != nil {
		return err
	}
	if err := w.db.UpdateDocumentStatus(ctx, doc.ID, models.DocStatusParsed); err != nil {
		return err
	}
	return w.advance(ctx, job, models.StageParsing, models.StageParsed)
}

// runChunk splits the parsed text deterministically and bulk-inserts the
// chunks. Chunk IDs come from the identity service, so a rerun after a
// partial insert produces the same IDs and the store skips the duplicates.
func (w *Worker) runChunk(ctx context.Context, job *models.IngestJob) error {
	doc, err := w.db.GetDocumentByID(ctx, job.DocumentID)
	if err != nil || doc == nil {
		return fmt.Errorf("document %s not found: %w", job.DocumentID, err)
	}
	if doc.ParsedLocation == "" {
		return fmt.Errorf("document %s has no parsed text", doc.ID)
	}

	bucket, key := parseStorageURL(doc.ParsedLocation)
	text, err := w.obj.GetFile(ctx, bucket, key)
	if err != nil {
		return fmt.Errorf("get parsed text: %w", err)
	}

	pieces := w.chunker.Split(string(text))
	if len(pieces) == 0 {
		return fmt.Errorf("chunk: %w", core.ErrEmptyParse)
	}

	rows := make([]models.DocumentChunk, len(pieces))
	for i, p := range pieces {
		rows[i] = models.DocumentChunk{
			ID:             identity.ChunkID(doc.ID, ChunkerName, ChunkerVersion, p.Ordinal),
			DocumentID:     doc.ID,
			ChunkerName:    ChunkerName,
			ChunkerVersion: ChunkerVersion,
			Ordinal:        p.Ordinal,
			Text:           p.Text,
			TokenCount:     p.TokenCount,
		}
	}
	if err := w.db.InsertDocumentChunks(ctx, rows); err != nil {
		return fmt.Errorf("insert chunks: %w", err)
	}

	if err := w.db.UpdateDocumentStatus(ctx, doc.ID, models.DocStatusChunked); err != nil {
		return err
	}
	return w.advance(ctx, job, models.StageChunking, models.StageChunked)
}

// runEmbed delegates to the batch embedding manager and advances only once
// every chunk of the document carries an embedding.
func (w *Worker) runEmbed(ctx context.Context, job *models.IngestJob) error {
	if err := w.embedder.EmbedDocument(ctx, job.DocumentID); err != nil {
		return fmt.Errorf("embed: %w", err)
	}

	if err := w.db.UpdateDocumentStatus(ctx, job.DocumentID, models.DocStatusEmbedded); err != nil {
		return err
	}
	return w.advance(ctx, job, models.StageEmbedding, models.StageEmbedded)
}

// finalize marks job and document complete; the document's chunks become
// visible to retrieval callers from here on.
func (w *Worker) finalize(ctx context.Context, job *models.IngestJob) error {
	if err := w.db.UpdateDocumentStatus(ctx, job.DocumentID, models.DocStatusComplete); err != nil {
		return err
	}
	if err := w.db.CompleteJob(ctx, job.ID); err != nil {
		return err
	}
	job.Stage = models.StageComplete
	return nil
}

// advance is a compare-and-set stage transition; on success the in-memory
// job follows the ledger.
func (w *Worker) advance(ctx context.Context, job *models.IngestJob, from, to string) error {
	if err := w.db.AdvanceJobStage(ctx, job.ID, from, to); err != nil {
		return err
	}
	job.Stage = to
	return nil
}

// parseStorageURL extracts the bucket and key from a virtual-hosted-style
// S3 URL, e.g. https://my-bucket.s3.us-east-2.amazonaws.com/path/to/file.
func parseStorageURL(u string) (bucket, key string) {
	hostPath := strings.SplitN(strings.TrimPrefix(u, "https://"), "/", 2)
	host := hostPath[0]
	if len(hostPath) == 2 {
		key = hostPath[1]
	}
	parts := strings.Split(host, ".")
	if len(parts) > 0 {
		bucket = parts[0]
	}
	return bucket, key
}
