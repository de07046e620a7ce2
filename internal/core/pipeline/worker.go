package pipeline

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/solenne-labs/corpora/internal/core"
	"github.com/solenne-labs/corpora/internal/models"
)

// Start launches numWorkers poll loops. Each loop claims and processes
// jobs independently until ctx is cancelled.
func (w *Worker) Start(ctx context.Context, numWorkers int) {
	if numWorkers < 1 {
		numWorkers = 1
	}
	for i := 1; i <= numWorkers; i++ {
		go w.run(ctx, i)
	}
}

func (w *Worker) run(ctx context.Context, id int) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("pipeline: worker %d shutting down", id)
			return
		case <-ticker.C:
			// Drain the ledger before going back to sleep.
			for {
				job, err := w.db.ClaimNextJob(ctx, w.claimTimeout)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					log.Printf("pipeline: worker %d claim failed: %v", id, err)
					break
				}
				if job == nil {
					break
				}
				log.Printf("pipeline: worker %d claimed job %s (stage %s)", id, job.ID, job.Stage)
				w.ProcessJob(ctx, job)
			}
		}
	}
}

// ProcessJob drives a claimed job forward until it completes, a failure
// reschedules or fails it, or another worker takes over. A job claimed in
// an in-flight stage (parsing/chunking/embedding) is a stale claim left by
// a crashed worker; its stage handler simply reruns, which is safe because
// every stage is idempotent.
func (w *Worker) ProcessJob(ctx context.Context, job *models.IngestJob) {
	for {
		var err error
		switch job.Stage {
		case models.StageQueued:
			err = w.advance(ctx, job, models.StageQueued, models.StageParsing)
		case models.StageParsing:
			err = w.runParse(ctx, job)
		case models.StageParsed:
			err = w.advance(ctx, job, models.StageParsed, models.StageChunking)
		case models.StageChunking:
			err = w.runChunk(ctx, job)
		case models.StageChunked:
			err = w.advance(ctx, job, models.StageChunked, models.StageEmbedding)
		case models.StageEmbedding:
			err = w.runEmbed(ctx, job)
		case models.StageEmbedded:
			err = w.finalize(ctx, job)
			if err == nil {
				log.Printf("pipeline: job %s complete (document %s)", job.ID, job.DocumentID)
				return
			}
		default:
			// complete/failed or something unknown: nothing to do.
			return
		}

		if err != nil {
			if errors.Is(err, core.ErrStageConflict) {
				// Another worker moved the job; let it keep it.
				return
			}
			w.handleFailure(ctx, job, err)
			return
		}
	}
}

// handleFailure applies the retry policy: structural errors and exhausted
// budgets fail the job terminally, transient errors release it with
// backoff. Callers only ever observe terminal states through the ledger;
// retry churn stays in here.
func (w *Worker) handleFailure(ctx context.Context, job *models.IngestJob, cause error) {
	d := w.policy.Decide(cause, job.RetryCount)
	if d.Fail {
		log.Printf("pipeline: job %s failed permanently at stage %s: %v", job.ID, job.Stage, cause)
		if err := w.db.FailJob(ctx, job.ID, cause.Error()); err != nil {
			log.Printf("pipeline: recording failure for job %s: %v", job.ID, err)
		}
		if err := w.db.UpdateDocumentStatus(ctx, job.DocumentID, models.DocStatusFailed); err != nil {
			log.Printf("pipeline: marking document %s failed: %v", job.DocumentID, err)
		}
		return
	}

	log.Printf("pipeline: job %s stage %s attempt %d failed, retrying in %s: %v",
		job.ID, job.Stage, job.RetryCount+1, d.Delay, cause)
	if err := w.db.ReleaseJob(ctx, job.ID, job.RetryCount+1, cause.Error(), time.Now().Add(d.Delay)); err != nil {
		log.Printf("pipeline: releasing job %s: %v", job.ID, err)
	}
}
