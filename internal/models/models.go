package models

import (
	"time"
)

// Document processing statuses, in pipeline order.
const (
	DocStatusNone     = "none"
	DocStatusUploaded = "uploaded"
	DocStatusParsed   = "parsed"
	DocStatusChunked  = "chunked"
	DocStatusEmbedded = "embedded"
	DocStatusComplete = "complete"
	DocStatusFailed   = "failed"
)

// Ingest job stages. A job moves queued -> parsing -> parsed -> chunking ->
// chunked -> embedding -> embedded -> complete; failed is reachable from any
// non-terminal stage once retries are exhausted.
const (
	StageQueued    = "queued"
	StageParsing   = "parsing"
	StageParsed    = "parsed"
	StageChunking  = "chunking"
	StageChunked   = "chunked"
	StageEmbedding = "embedding"
	StageEmbedded  = "embedded"
	StageComplete  = "complete"
	StageFailed    = "failed"
)

// TerminalStage reports whether a job stage is terminal.
func TerminalStage(stage string) bool {
	return stage == StageComplete || stage == StageFailed
}

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Document represents a user-uploaded document. Its ID is deterministic:
// the same owner uploading the same bytes always maps to the same row.
type Document struct {
	ID             string    `db:"id" json:"id"`
	OwnerID        string    `db:"owner_id" json:"owner_id"`
	ContentHash    string    `db:"content_hash" json:"content_hash"`
	FileName       string    `db:"file_name" json:"file_name"`
	ContentType    string    `db:"content_type" json:"content_type"`
	RawLocation    string    `db:"raw_location" json:"raw_location"`
	ParsedLocation string    `db:"parsed_location" json:"parsed_location"`
	Status         string    `db:"status" json:"status"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// IngestJob is the durable ledger entry that tracks one document's trip
// through the processing state machine. ClaimedAt is set while a worker
// holds the job; a stale claim becomes reclaimable after a timeout.
type IngestJob struct {
	ID         string     `db:"id" json:"id"`
	DocumentID string     `db:"document_id" json:"document_id"`
	Stage      string     `db:"stage" json:"stage"`
	RetryCount int        `db:"retry_count" json:"retry_count"`
	LastError  string     `db:"last_error" json:"last_error"`
	ClaimedAt  *time.Time `db:"claimed_at" json:"claimed_at,omitempty"`
	NextRunAt  time.Time  `db:"next_run_at" json:"next_run_at"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// DocumentChunk represents one text chunk from a document. The tuple
// (document_id, chunker_name, chunker_version, ordinal) is unique and the
// chunk ID is derived from it, so re-inserting the same chunk is a no-op.
type DocumentChunk struct {
	ID             string    `db:"id" json:"id"`
	DocumentID     string    `db:"document_id" json:"document_id"`
	ChunkerName    string    `db:"chunker_name" json:"chunker_name"`
	ChunkerVersion string    `db:"chunker_version" json:"chunker_version"`
	Ordinal        int       `db:"ordinal" json:"ordinal"`
	Text           string    `db:"text" json:"text"`
	TokenCount     int       `db:"token_count" json:"token_count"`
	Embedding      []float32 `db:"embedding" json:"embedding,omitempty"` // pgvector column, nil until embedded
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// ScoredChunk is a retrieval result: a chunk plus its cosine similarity to
// the query embedding.
type ScoredChunk struct {
	Chunk      DocumentChunk `json:"chunk"`
	Similarity float64       `json:"similarity"`
}
