package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/solenne-labs/corpora/internal/core"
	"github.com/solenne-labs/corpora/internal/models"
)

// fakeDB backs the service tests with an in-memory store. SearchChunks
// implements real cosine similarity so owner scoping and thresholding are
// exercised against actual vector math, not canned responses.
type fakeDB struct {
	core.DbClient

	mu     sync.Mutex
	docs   map[string]models.Document
	jobs   map[string]models.IngestJob
	chunks map[string]models.DocumentChunk // keyed by identity tuple
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		docs:   make(map[string]models.Document),
		jobs:   make(map[string]models.IngestJob),
		chunks: make(map[string]models.DocumentChunk),
	}
}

func chunkKey(ch models.DocumentChunk) string {
	return fmt.Sprintf("%s|%s|%s|%d", ch.DocumentID, ch.ChunkerName, ch.ChunkerVersion, ch.Ordinal)
}

func (f *fakeDB) putDoc(d models.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[d.ID] = d
}

func (f *fakeDB) putJob(j models.IngestJob) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[j.ID] = j
}

func (f *fakeDB) doc(id string) models.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[id]
}

func (f *fakeDB) jobForDocument(documentID string) *models.IngestJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.DocumentID == documentID {
			out := j
			return &out
		}
	}
	return nil
}

func (f *fakeDB) CreateDocument(ctx context.Context, doc *models.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.docs[doc.ID]; exists {
		return fmt.Errorf("document %s already exists", doc.ID)
	}
	f.docs[doc.ID] = *doc
	return nil
}

func (f *fakeDB) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return nil, nil
	}
	out := d
	return &out, nil
}

func (f *fakeDB) ListDocumentsByOwner(ctx context.Context, ownerID string) ([]models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Document
	for _, d := range f.docs {
		if d.OwnerID == ownerID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeDB) FindCompletedByHash(ctx context.Context, contentHash, excludeOwner string) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, d := range f.docs {
		if d.ContentHash == contentHash && d.OwnerID != excludeOwner && d.Status == models.DocStatusComplete {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Strings(ids) // deterministic pick
	out := f.docs[ids[0]]
	return &out, nil
}

func (f *fakeDB) UpdateDocumentStatus(ctx context.Context, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return fmt.Errorf("document not found: %s", id)
	}
	d.Status = status
	f.docs[id] = d
	return nil
}

func (f *fakeDB) UpdateDocumentMetadata(ctx context.Context, id, fileName, contentType, rawLocation string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return fmt.Errorf("document not found: %s", id)
	}
	d.FileName = fileName
	d.ContentType = contentType
	d.RawLocation = rawLocation
	f.docs[id] = d
	return nil
}

func (f *fakeDB) InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range chunks {
		k := chunkKey(ch)
		if _, exists := f.chunks[k]; exists {
			continue
		}
		f.chunks[k] = ch
	}
	return nil
}

func (f *fakeDB) GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.DocumentChunk
	for _, ch := range f.chunks {
		if ch.DocumentID == documentID {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}

// SearchChunks mirrors the store query: owner scoping through the owning
// document, cosine similarity against embedded chunks only, threshold in
// the query, best first, capped at limit.
func (f *fakeDB) SearchChunks(ctx context.Context, ownerID string, queryVec []float32, threshold float64, limit int) ([]models.ScoredChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.ScoredChunk
	for _, ch := range f.chunks {
		owner, ok := f.docs[ch.DocumentID]
		if !ok || owner.OwnerID != ownerID || ch.Embedding == nil {
			continue
		}
		sim := cosineSimilarity(queryVec, ch.Embedding)
		if sim >= threshold {
			out = append(out, models.ScoredChunk{Chunk: ch, Similarity: sim})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeDB) CreateJob(ctx context.Context, job *models.IngestJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.DocumentID == job.DocumentID {
			return fmt.Errorf("job already exists for document %s", job.DocumentID)
		}
	}
	f.jobs[job.ID] = *job
	return nil
}

func (f *fakeDB) GetJobByDocument(ctx context.Context, documentID string) (*models.IngestJob, error) {
	return f.jobForDocument(documentID), nil
}

func (f *fakeDB) RequeueJob(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if j.Stage != models.StageFailed {
		return core.ErrStageConflict
	}
	j.Stage = models.StageQueued
	j.RetryCount = 0
	j.LastError = ""
	j.ClaimedAt = nil
	f.jobs[jobID] = j
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
