package core

import (
	"context"
	"io"
	"time"

	"github.com/solenne-labs/corpora/internal/models"
)

// DbClient defines all persistence operations the services and pipeline
// need. It abstracts Postgres/pgvector so higher layers never depend on a
// specific DB. Lookup methods return (nil, nil) when no row matches.
type DbClient interface {
	CreateUser(ctx context.Context, user *models.User) (err error)
	GetUserByEmail(ctx context.Context, email string) (user *models.User, err error)

	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocumentsByOwner(ctx context.Context, ownerID string) ([]models.Document, error)
	// FindCompletedByHash returns any fully processed document with the
	// given content hash owned by someone other than excludeOwner. Used as
	// the clone source for cross-owner dedup.
	FindCompletedByHash(ctx context.Context, contentHash, excludeOwner string) (*models.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status string) error
	UpdateDocumentMetadata(ctx context.Context, id, fileName, contentType, rawLocation string) error
	SetDocumentParsedLocation(ctx context.Context, id, parsedLocation string) error

	// InsertDocumentChunks bulk-inserts chunks. Rows that collide on
	// (document_id, chunker_name, chunker_version, ordinal) are skipped,
	// not errors: a prior partial run may already have written them.
	InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error
	GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error)
	GetChunksMissingEmbedding(ctx context.Context, documentID string) ([]models.DocumentChunk, error)
	CountChunksMissingEmbedding(ctx context.Context, documentID string) (int, error)
	UpdateChunkEmbeddings(ctx context.Context, chunks []models.DocumentChunk) error

	// SearchChunks runs an owner-scoped cosine similarity search. Owner
	// scoping and the similarity threshold are applied in the query itself,
	// and the query vector is passed as a typed vector parameter.
	SearchChunks(ctx context.Context, ownerID string, queryVec []float32, threshold float64, limit int) ([]models.ScoredChunk, error)

	CreateJob(ctx context.Context, job *models.IngestJob) error
	GetJobByDocument(ctx context.Context, documentID string) (*models.IngestJob, error)
	// ClaimNextJob atomically claims one runnable job: non-terminal, due,
	// and either unclaimed or claimed longer than staleAfter ago (a crashed
	// worker's leftovers). Returns (nil, nil) when nothing is runnable.
	ClaimNextJob(ctx context.Context, staleAfter time.Duration) (*models.IngestJob, error)
	// AdvanceJobStage is a compare-and-set: it moves the job from one stage
	// to the next only if it is still in the expected stage, returning
	// ErrStageConflict otherwise.
	AdvanceJobStage(ctx context.Context, jobID, fromStage, toStage string) error
	// ReleaseJob drops the claim after a transient failure so the job is
	// picked up again once nextRunAt passes.
	ReleaseJob(ctx context.Context, jobID string, retryCount int, lastError string, nextRunAt time.Time) error
	CompleteJob(ctx context.Context, jobID string) error
	FailJob(ctx context.Context, jobID, lastError string) error
	// RequeueJob resets a failed job to queued for reprocessing.
	RequeueJob(ctx context.Context, jobID string) error

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
// It's abstract so you can replace AWS with MinIO, GCP, etc. easily.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)

	GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}
