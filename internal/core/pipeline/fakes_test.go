package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/solenne-labs/corpora/internal/core"
	"github.com/solenne-labs/corpora/internal/models"
)

// fakeDB is an in-memory stand-in for the pgx client. The embedded
// interface makes any method a test forgot to stub panic loudly.
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

func (f *fakeDB) job(id string) models.IngestJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[id]
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

func (f *fakeDB) SetDocumentParsedLocation(ctx context.Context, id, parsedLocation string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return fmt.Errorf("document not found: %s", id)
	}
	d.ParsedLocation = parsedLocation
	f.docs[id] = d
	return nil
}

// InsertDocumentChunks mirrors ON CONFLICT DO NOTHING on the identity
// tuple.
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

func (f *fakeDB) chunksFor(documentID string) []models.DocumentChunk {
	var out []models.DocumentChunk
	for _, ch := range f.chunks {
		if ch.DocumentID == documentID {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out
}

func (f *fakeDB) GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chunksFor(documentID), nil
}

func (f *fakeDB) GetChunksMissingEmbedding(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.DocumentChunk
	for _, ch := range f.chunksFor(documentID) {
		if ch.Embedding == nil {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (f *fakeDB) CountChunksMissingEmbedding(ctx context.Context, documentID string) (int, error) {
	missing, _ := f.GetChunksMissingEmbedding(ctx, documentID)
	return len(missing), nil
}

func (f *fakeDB) UpdateChunkEmbeddings(ctx context.Context, chunks []models.DocumentChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range chunks {
		if ch.Embedding == nil {
			return fmt.Errorf("chunk %s has no embedding to persist", ch.ID)
		}
		k := chunkKey(ch)
		stored, ok := f.chunks[k]
		if !ok {
			return fmt.Errorf("chunk %s not found", ch.ID)
		}
		stored.Embedding = ch.Embedding
		f.chunks[k] = stored
	}
	return nil
}

func (f *fakeDB) AdvanceJobStage(ctx context.Context, jobID, fromStage, toStage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok || j.Stage != fromStage {
		return core.ErrStageConflict
	}
	j.Stage = toStage
	f.jobs[jobID] = j
	return nil
}

func (f *fakeDB) ReleaseJob(ctx context.Context, jobID string, retryCount int, lastError string, nextRunAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok {
		return fmt.Errorf("job not found: %s", jobID)
	}
	j.ClaimedAt = nil
	j.RetryCount = retryCount
	j.LastError = lastError
	j.NextRunAt = nextRunAt
	f.jobs[jobID] = j
	return nil
}

func (f *fakeDB) CompleteJob(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok {
		return fmt.Errorf("job not found: %s", jobID)
	}
	j.Stage = models.StageComplete
	j.ClaimedAt = nil
	f.jobs[jobID] = j
	return nil
}

func (f *fakeDB) FailJob(ctx context.Context, jobID, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok {
		return fmt.Errorf("job not found: %s", jobID)
	}
	j.Stage = models.StageFailed
	j.ClaimedAt = nil
	j.LastError = lastError
	f.jobs[jobID] = j
	return nil
}

// fakeObjStore is an in-memory object store speaking the same
// virtual-hosted URL scheme as the S3 client.
type fakeObjStore struct {
	mu      sync.Mutex
	region  string
	objects map[string][]byte
}

func newFakeObjStore() *fakeObjStore {
	return &fakeObjStore{region: "us-east-2", objects: make(map[string][]byte)}
}

func (f *fakeObjStore) put(bucket, key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[bucket+"/"+key] = data
}

func (f *fakeObjStore) url(bucket, key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, f.region, key)
}

func (f *fakeObjStore) UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (string, error) {
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	f.put(bucket, key, b)
	return f.url(bucket, key), nil
}

func (f *fakeObjStore) GetFile(ctx context.Context, bucket, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("object not found: %s/%s", bucket, key)
	}
	return b, nil
}

func (f *fakeObjStore) DeleteFile(ctx context.Context, bucket, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, bucket+"/"+key)
	return nil
}

func (f *fakeObjStore) GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

// fakeParser returns canned text, optionally failing transiently first.
type fakeParser struct {
	mu        sync.Mutex
	text      string
	err       error
	transient int // number of leading transient failures
	calls     int
}

func (f *fakeParser) Parse(ctx context.Context, raw []byte, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.transient > 0 {
		f.transient--
		return "", errors.New("parse service timeout")
	}
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

// fakeEmbedder produces deterministic vectors and records every batch it
// was asked for.
type fakeEmbedder struct {
	mu         sync.Mutex
	dim        int
	transient  int // number of leading transient failures
	wrongDim   bool
	calls      int
	batchSizes []int
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.batchSizes = append(f.batchSizes, len(texts))
	if f.transient > 0 {
		f.transient--
		return nil, errors.New("embedding service unavailable")
	}

	dim := f.dim
	if f.wrongDim {
		dim++
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, dim)
		v[0] = float32(len(texts[i]))
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) recordedBatchSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.batchSizes))
	copy(out, f.batchSizes)
	return out
}
