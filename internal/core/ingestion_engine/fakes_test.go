package ingestion_engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/markdave123-py/Contexta-knowledge/internal/core"
	"github.com/markdave123-py/Contexta-knowledge/internal/models"
)

var errBoom = errors.New("boom")

// fakeStore keeps records in memory and can fail the insert of chosen chunk indices.
type fakeStore struct {
	mu      sync.Mutex
	records   map[string]map[int]models.KnowledgeRecord
	failAt    map[int]bool
	lookupErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]map[int]models.KnowledgeRecord{}, failAt: map[int]bool{}}
}

func (f *fakeStore) InsertKnowledgeRecord(_ context.Context, rec *models.KnowledgeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAt[rec.ChunkIndex] {
		return errBoom
	}
	if f.records[rec.DocumentName] == nil {
		f.records[rec.DocumentName] = map[int]models.KnowledgeRecord{}
	}
	f.records[rec.DocumentName][rec.ChunkIndex] = *rec
	return nil
}

func (f *fakeStore) DeleteByDocumentName(_ context.Context, name string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := int64(len(f.records[name]))
	delete(f.records, name)
	return n, nil
}

func (f *fakeStore) DeleteBySession(_ context.Context, id string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for name, recs := range f.records {
		for idx, r := range recs {
			if r.Metadata.SessionID == id {
				delete(recs, idx)
				n++
			}
		}
		if len(recs) == 0 {
			delete(f.records, name)
		}
	}
	return n, nil
}

func (f *fakeStore) GetStoragePath(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return "", f.lookupErr
	}
	recs, ok := f.records[name]
	if !ok || len(recs) == 0 {
		return "", core.ErrNotFound
	}
	for _, r := range recs {
		if r.Metadata.StoragePath != "" {
			return r.Metadata.StoragePath, nil
		}
	}
	return "", nil
}

func (f *fakeStore) ListKnowledgeFiles(context.Context) ([]models.KnowledgeFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []models.KnowledgeFile{}
	for name, recs := range f.records {
		kf := models.KnowledgeFile{Name: name, Chunks: len(recs)}
		for _, r := range recs {
			kf.Type = r.DocumentType
		}
		out = append(out, kf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeStore) SearchKnowledge(context.Context, []float32, int) ([]models.SearchHit, error) {
	return []models.SearchHit{}, nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records[name])
}

func (f *fakeStore) record(name string, idx int) (models.KnowledgeRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[name][idx]
	return r, ok
}

// fakeObjects is an in-memory bucket; uploadFailures makes the first N uploads fail.
type fakeObjects struct {
	mu             sync.Mutex
	blobs          map[string][]byte
	uploads        int
	uploadFailures int
	deleteErr      error
}

func newFakeObjects() *fakeObjects { return &fakeObjects{blobs: map[string][]byte{}} }

func (f *fakeObjects) UploadFile(_ context.Context, bucket, key string, data []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	if f.uploads <= f.uploadFailures {
		return "", errBoom
	}
	f.blobs[bucket+"/"+key] = append([]byte(nil), data...)
	return "https://" + bucket + "/" + key, nil
}

func (f *fakeObjects) DeleteFile(_ context.Context, bucket, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.blobs, bucket+"/"+key)
	return nil
}

func (f *fakeObjects) GetObjectReader(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blobs[bucket+"/"+key]
	if !ok {
		return nil, core.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *fakeObjects) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.blobs)
}

// fakeEmbedder returns [index-in-batch, len(text)] for every text.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
	delay time.Duration
	short bool

	// before runs once, ahead of the first embedding call
	before func()
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	hook := f.before
	f.before = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(i), float32(len(t))}
	}
	if f.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

type mockLLM struct{ mock.Mock }

func (m *mockLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	args := m.Called(ctx, systemPrompt, userPrompt)
	return args.String(0), args.Error(1)
}

type fakeVision struct {
	text  string
	err   error
	calls int
}

func (f *fakeVision) TranscribeDocument(_ context.Context, _, _ string, _ []byte) (string, error) {
	f.calls++
	return f.text, f.err
}

// fakeSessions is a minimal map-backed session store.
type fakeSessions struct {
	mu sync.Mutex
	m  map[string]models.IngestionSession
}

func newFakeSessions() *fakeSessions { return &fakeSessions{m: map[string]models.IngestionSession{}} }

func (f *fakeSessions) Create(_ context.Context, s *models.IngestionSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[s.ID] = *s
	return nil
}

func (f *fakeSessions) Get(_ context.Context, id string) (*models.IngestionSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.m[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &s, nil
}

func (f *fakeSessions) Update(_ context.Context, s *models.IngestionSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[s.ID] = *s
	return nil
}

func (f *fakeSessions) Expired(_ context.Context, now time.Time) ([]models.IngestionSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.IngestionSession
	for _, s := range f.m {
		if s.State == models.SessionOpen && s.ExpiresAt.Before(now) {
			out = append(out, s)
		}
	}
	return out, nil
}
