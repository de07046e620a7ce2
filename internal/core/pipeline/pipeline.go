// Package pipeline drives ingest jobs through the processing state
// machine: parse -> chunk -> embed -> complete. Workers poll the job
// ledger independently; claiming a job is the only synchronization point,
// and it happens atomically in the store. Stages within one job run
// sequentially, different jobs run in parallel.
package pipeline

import (
	"time"

	"github.com/solenne-labs/corpora/internal/core"
)

// WorkerConfig tunes the job worker pool.
//
// Bucket:       object storage bucket holding raw and parsed text.
// PollInterval: how often an idle worker polls the ledger.
// ClaimTimeout: claims older than this count as abandoned and may be
//               stolen by another worker (crashed-worker recovery).
type WorkerConfig struct {
	Bucket       string
	PollInterval time.Duration
	ClaimTimeout time.Duration
	Chunker      Chunker
	Policy       RetryPolicy
}

// Worker owns the poll/claim/dispatch loop and the per-stage handlers.
type Worker struct {
	db       core.DbClient
	obj      core.ObjectClient
	parser   core.Parser
	embedder *BatchEmbedder

	bucket       string
	pollInterval time.Duration
	claimTimeout time.Duration
	chunker      Chunker
	policy       RetryPolicy
}

func NewWorker(db core.DbClient, obj core.ObjectClient, parser core.Parser, embedder *BatchEmbedder, cfg WorkerConfig) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.ClaimTimeout <= 0 {
		cfg.ClaimTimeout = 5 * time.Minute
	}
	return &Worker{
		db:           db,
		obj:          obj,
		parser:       parser,
		embedder:     embedder,
		bucket:       cfg.Bucket,
		pollInterval: cfg.PollInterval,
		claimTimeout: cfg.ClaimTimeout,
		chunker:      cfg.Chunker,
		policy:       cfg.Policy,
	}
}
