package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/solenne-labs/corpora/internal/config"
	"github.com/solenne-labs/corpora/internal/core"
	"github.com/solenne-labs/corpora/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (core.DbClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db, cfg.EmbedDim); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Users

func (c *DatabaseClient) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	const q = `
		INSERT INTO users (id, first_name, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q,
		user.ID, user.FirstName, user.Email, user.PasswordHash)
	return err
}

func (c *DatabaseClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `
		SELECT id, first_name, email, password_hash, created_at, updated_at
		FROM users WHERE email = $1
	`
	var u models.User
	err := c.db.QueryRowContext(ctx, q, email).Scan(
		&u.ID, &u.FirstName, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Documents

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(id, owner_id, content_hash, file_name, content_type, raw_location, parsed_location, status, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.OwnerID, doc.ContentHash, doc.FileName, doc.ContentType,
		doc.RawLocation, doc.ParsedLocation, doc.Status)
	return err
}

const documentColumns = `id, owner_id, content_hash, file_name, content_type, raw_location, parsed_location, status, created_at, updated_at`

func scanDocument(row *sql.Row) (*models.Document, error) {
	var d models.Document
	err := row.Scan(
		&d.ID, &d.OwnerID, &d.ContentHash, &d.FileName, &d.ContentType,
		&d.RawLocation, &d.ParsedLocation, &d.Status, &d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	return scanDocument(c.db.QueryRowContext(ctx, q, id))
}

func (c *DatabaseClient) FindCompletedByHash(ctx context.Context, contentHash, excludeOwner string) (*models.Document, error) {
	q := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE content_hash = $1 AND owner_id <> $2 AND status = $3
		ORDER BY created_at ASC
		LIMIT 1
	`
	return scanDocument(c.db.QueryRowContext(ctx, q, contentHash, excludeOwner, models.DocStatusComplete))
}

func (c *DatabaseClient) ListDocumentsByOwner(ctx context.Context, ownerID string) ([]models.Document, error) {
	q := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(
			&d.ID, &d.OwnerID, &d.ContentHash, &d.FileName, &d.ContentType,
			&d.RawLocation, &d.ParsedLocation, &d.Status, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) UpdateDocumentStatus(ctx context.Context, id string, status string) error {
	const q = `
		UPDATE documents
		SET status = $2, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, status)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

func (c *DatabaseClient) UpdateDocumentMetadata(ctx context.Context, id, fileName, contentType, rawLocation string) error {
	const q = `
		UPDATE documents
		SET file_name = $2, content_type = $3, raw_location = $4, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, fileName, contentType, rawLocation)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

func (c *DatabaseClient) SetDocumentParsedLocation(ctx context.Context, id, parsedLocation string) error {
	const q = `
		UPDATE documents
		SET parsed_location = $2, updated_at = now()
		WHERE id = $1
	`
	_, err := c.db.ExecContext(ctx, q, id, parsedLocation)
	return err
}

// Chunks

// vecParam maps an embedding to a typed pgvector parameter, keeping NULL
// for chunks that have not been embedded yet.
func vecParam(e []float32) any {
	if e == nil {
		return nil
	}
	return pgvector.NewVector(e)
}

// InsertDocumentChunks inserts chunks in a single transaction. Conflicts on
// the chunk identity tuple are skipped: they mean a prior partial run
// already wrote the row.
func (c *DatabaseClient) InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO document_chunks
			(id, document_id, chunker_name, chunker_version, ordinal, text, token_count, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (document_id, chunker_name, chunker_version, ordinal) DO NOTHING
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.DocumentID, ch.ChunkerName, ch.ChunkerVersion, ch.Ordinal,
			ch.Text, ch.TokenCount, vecParam(ch.Embedding),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	const q = `
		SELECT id, document_id, chunker_name, chunker_version, ordinal, text, token_count, embedding, created_at
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY ordinal ASC
	`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DocumentChunk
	for rows.Next() {
		var (
			ch  models.DocumentChunk
			emb sql.Null[pgvector.Vector]
		)
		if err := rows.Scan(
			&ch.ID, &ch.DocumentID, &ch.ChunkerName, &ch.ChunkerVersion, &ch.Ordinal,
			&ch.Text, &ch.TokenCount, &emb, &ch.CreatedAt,
		); err != nil {
			return nil, err
		}
		if emb.Valid {
			ch.Embedding = emb.V.Slice()
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) GetChunksMissingEmbedding(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	const q = `
		SELECT id, document_id, chunker_name, chunker_version, ordinal, text, token_count, created_at
		FROM document_chunks
		WHERE document_id = $1 AND embedding IS NULL
		ORDER BY ordinal ASC
	`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DocumentChunk
	for rows.Next() {
		var ch models.DocumentChunk
		if err := rows.Scan(
			&ch.ID, &ch.DocumentID, &ch.ChunkerName, &ch.ChunkerVersion, &ch.Ordinal,
			&ch.Text, &ch.TokenCount, &ch.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) CountChunksMissingEmbedding(ctx context.Context, documentID string) (int, error) {
	const q = `
		SELECT count(*) FROM document_chunks
		WHERE document_id = $1 AND embedding IS NULL
	`
	var n int
	if err := c.db.QueryRowContext(ctx, q, documentID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (c *DatabaseClient) UpdateChunkEmbeddings(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `UPDATE document_chunks SET embedding = $2 WHERE id = $1`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		if ch.Embedding == nil {
			_ = tx.Rollback()
			return fmt.Errorf("chunk %s has no embedding to persist", ch.ID)
		}
		if _, err := stmt.ExecContext(ctx, ch.ID, pgvector.NewVector(ch.Embedding)); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// SearchChunks finds chunks similar to the query embedding, scoped to one
// owner. Scoping and the threshold live in the query itself, and the
// vector travels as a typed parameter, never as an interpolated literal.
func (c *DatabaseClient) SearchChunks(ctx context.Context, ownerID string, queryVec []float32, threshold float64, limit int) ([]models.ScoredChunk, error) {
	const q = `
		SELECT c.id, c.document_id, c.chunker_name, c.chunker_version, c.ordinal,
		       c.text, c.token_count, c.embedding,
		       1 - (c.embedding <=> $2) AS similarity
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.owner_id = $1
		  AND c.embedding IS NOT NULL
		  AND 1 - (c.embedding <=> $2) >= $3
		ORDER BY c.embedding <=> $2 ASC
		LIMIT $4
	`
	vec := pgvector.NewVector(queryVec)
	rows, err := c.db.QueryContext(ctx, q, ownerID, vec, threshold, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ScoredChunk
	for rows.Next() {
		var (
			sc  models.ScoredChunk
			emb pgvector.Vector
		)
		if err := rows.Scan(
			&sc.Chunk.ID, &sc.Chunk.DocumentID, &sc.Chunk.ChunkerName, &sc.Chunk.ChunkerVersion,
			&sc.Chunk.Ordinal, &sc.Chunk.Text, &sc.Chunk.TokenCount, &emb, &sc.Similarity,
		); err != nil {
			return nil, err
		}
		sc.Chunk.Embedding = emb.Slice()
		out = append(out, sc)
	}
	return out, rows.Err()
}

// Job ledger

func (c *DatabaseClient) CreateJob(ctx context.Context, job *models.IngestJob) error {
	if job == nil {
		return errors.New("nil job")
	}
	const q = `
		INSERT INTO ingest_jobs (id, document_id, stage, retry_count, last_error, next_run_at, created_at, updated_at)
		VALUES ($1, $2, $3, 0, '', now(), now(), now())
	`
	_, err := c.db.ExecContext(ctx, q, job.ID, job.DocumentID, job.Stage)
	return err
}

const jobColumns = `id, document_id, stage, retry_count, last_error, claimed_at, next_run_at, created_at, updated_at`

func scanJob(scan func(dest ...any) error) (*models.IngestJob, error) {
	var (
		j       models.IngestJob
		claimed sql.NullTime
	)
	err := scan(
		&j.ID, &j.DocumentID, &j.Stage, &j.RetryCount, &j.LastError,
		&claimed, &j.NextRunAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if claimed.Valid {
		t := claimed.Time
		j.ClaimedAt = &t
	}
	return &j, nil
}

func (c *DatabaseClient) GetJobByDocument(ctx context.Context, documentID string) (*models.IngestJob, error) {
	q := `SELECT ` + jobColumns + ` FROM ingest_jobs WHERE document_id = $1`
	return scanJob(c.db.QueryRowContext(ctx, q, documentID).Scan)
}

// ClaimNextJob claims one runnable job for this worker. SKIP LOCKED keeps
// concurrent pollers from ever claiming the same row; a claim older than
// staleAfter counts as abandoned by a crashed worker and may be stolen.
func (c *DatabaseClient) ClaimNextJob(ctx context.Context, staleAfter time.Duration) (*models.IngestJob, error) {
	const q = `
		UPDATE ingest_jobs
		SET claimed_at = now(), updated_at = now()
		WHERE id = (
			SELECT id FROM ingest_jobs
			WHERE stage NOT IN ($2, $3)
			  AND next_run_at <= now()
			  AND (claimed_at IS NULL OR claimed_at < now() - ($1 * interval '1 millisecond'))
			ORDER BY next_run_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING ` + jobColumns + `
	`
	return scanJob(c.db.QueryRowContext(ctx, q,
		staleAfter.Milliseconds(), models.StageComplete, models.StageFailed).Scan)
}

// AdvanceJobStage moves a job from one stage to the next only if nobody
// else moved it first.
func (c *DatabaseClient) AdvanceJobStage(ctx context.Context, jobID, fromStage, toStage string) error {
	const q = `
		UPDATE ingest_jobs
		SET stage = $3, updated_at = now()
		WHERE id = $1 AND stage = $2
	`
	res, err := c.db.ExecContext(ctx, q, jobID, fromStage, toStage)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return core.ErrStageConflict
	}
	return nil
}

func (c *DatabaseClient) ReleaseJob(ctx context.Context, jobID string, retryCount int, lastError string, nextRunAt time.Time) error {
	const q = `
		UPDATE ingest_jobs
		SET claimed_at = NULL, retry_count = $2, last_error = $3, next_run_at = $4, updated_at = now()
		WHERE id = $1
	`
	_, err := c.db.ExecContext(ctx, q, jobID, retryCount, lastError, nextRunAt)
	return err
}

func (c *DatabaseClient) CompleteJob(ctx context.Context, jobID string) error {
	const q = `
		UPDATE ingest_jobs
		SET stage = $2, claimed_at = NULL, updated_at = now()
		WHERE id = $1
	`
	_, err := c.db.ExecContext(ctx, q, jobID, models.StageComplete)
	return err
}

func (c *DatabaseClient) FailJob(ctx context.Context, jobID, lastError string) error {
	const q = `
		UPDATE ingest_jobs
		SET stage = $2, claimed_at = NULL, last_error = $3, updated_at = now()
		WHERE id = $1
	`
	_, err := c.db.ExecContext(ctx, q, jobID, models.StageFailed, lastError)
	return err
}

// RequeueJob resets a failed job so the document can be reprocessed. The
// stage guard makes this a no-op for jobs that are not actually failed.
func (c *DatabaseClient) RequeueJob(ctx context.Context, jobID string) error {
	const q = `
		UPDATE ingest_jobs
		SET stage = $2, retry_count = 0, last_error = '', claimed_at = NULL, next_run_at = now(), updated_at = now()
		WHERE id = $1 AND stage = $3
	`
	res, err := c.db.ExecContext(ctx, q, jobID, models.StageQueued, models.StageFailed)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return core.ErrStageConflict
	}
	return nil
}
