package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Contexta-knowledge/internal/core/ingestion_engine"
	"github.com/markdave123-py/Contexta-knowledge/internal/models"
	"github.com/markdave123-py/Contexta-knowledge/internal/services"
)

type fakeIngestor struct {
	extract   func(*models.Document) (*ingestion_engine.ExtractResult, error)
	saveBatch func(ingestion_engine.BatchRequest) (int, error)
	ingest    func(*models.Document) (*ingestion_engine.IngestResult, error)
	finalize  func(string) (*models.IngestionSession, error)
	abort     func(string) (int64, error)
}

func (f *fakeIngestor) Extract(_ context.Context, doc *models.Document) (*ingestion_engine.ExtractResult, error) {
	return f.extract(doc)
}

func (f *fakeIngestor) SaveBatch(_ context.Context, req ingestion_engine.BatchRequest) (int, error) {
	return f.saveBatch(req)
}

func (f *fakeIngestor) Ingest(_ context.Context, doc *models.Document) (*ingestion_engine.IngestResult, error) {
	return f.ingest(doc)
}

func (f *fakeIngestor) Finalize(_ context.Context, id string) (*models.IngestionSession, error) {
	return f.finalize(id)
}

func (f *fakeIngestor) Abort(_ context.Context, id string) (int64, error) {
	return f.abort(id)
}

func (f *fakeIngestor) Start(context.Context, int) {}

type fakeKnowledge struct {
	files     []models.KnowledgeFile
	deleted   []string
	downloads map[string]string
	lastLimit int
}

func (f *fakeKnowledge) ListFiles(context.Context) ([]models.KnowledgeFile, error) {
	return f.files, nil
}

func (f *fakeKnowledge) DeleteFile(_ context.Context, name string) (int64, error) {
	f.deleted = append(f.deleted, name)
	return 3, nil
}

func (f *fakeKnowledge) OpenDownload(_ context.Context, name string) (*services.Download, error) {
	body, ok := f.downloads[name]
	if !ok {
		return nil, services.ErrNoStoredFile
	}
	return &services.Download{
		Body:        io.NopCloser(strings.NewReader(body)),
		FileName:    name,
		ContentType: services.ContentTypeFor(name),
	}, nil
}

func (f *fakeKnowledge) Search(_ context.Context, query string, limit int) ([]models.SearchHit, error) {
	f.lastLimit = limit
	return []models.SearchHit{{DocumentName: "a.txt", ChunkText: "about " + query, Keywords: []string{}}}, nil
}

func uploadRequest(t *testing.T, target, fileName, contentType string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, fileName))
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestExtract_Success(t *testing.T) {
	ing := &fakeIngestor{extract: func(doc *models.Document) (*ingestion_engine.ExtractResult, error) {
		assert.Equal(t, "notes.txt", doc.Name)
		assert.Equal(t, "text/plain", doc.ContentType)
		return &ingestion_engine.ExtractResult{
			Text:        string(doc.Content),
			StoragePath: "1_notes.txt",
			SessionID:   "sess-1",
			Document:    models.Document{Name: doc.Name, ContentType: doc.ContentType, Size: doc.Size},
		}, nil
	}}
	h := NewKnowledgeHandler(ing, &fakeKnowledge{}, 1)

	rec := httptest.NewRecorder()
	h.Extract(rec, uploadRequest(t, "/extract", "notes.txt", "text/plain", []byte("hello knowledge")))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "hello knowledge", body["text"])
	assert.Equal(t, "1_notes.txt", body["storagePath"])
	assert.Equal(t, "sess-1", body["sessionId"])
	meta := body["metadata"].(map[string]any)
	assert.Equal(t, "notes.txt", meta["name"])
	assert.EqualValues(t, 15, meta["size"])
}

func TestExtract_Unsupported(t *testing.T) {
	ing := &fakeIngestor{extract: func(*models.Document) (*ingestion_engine.ExtractResult, error) {
		return nil, ingestion_engine.ErrUnsupportedFormat
	}}
	h := NewKnowledgeHandler(ing, &fakeKnowledge{}, 1)

	rec := httptest.NewRecorder()
	h.Extract(rec, uploadRequest(t, "/extract", "a.zip", "application/zip", []byte("PK")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "UNSUPPORTED_FORMAT", body["code"])
	assert.Contains(t, body["error"], "PDF, DOCX or TXT")
}

func TestExistingDocumentIsConflict(t *testing.T) {
	exists := fmt.Errorf("%w: %q", ingestion_engine.ErrDocumentExists, "notes.txt")
	ing := &fakeIngestor{
		extract: func(*models.Document) (*ingestion_engine.ExtractResult, error) { return nil, exists },
		ingest: func(*models.Document) (*ingestion_engine.IngestResult, error) {
			return &ingestion_engine.IngestResult{Stage: ingestion_engine.StageFailed}, exists
		},
	}
	h := NewKnowledgeHandler(ing, &fakeKnowledge{}, 1)

	rec := httptest.NewRecorder()
	h.Extract(rec, uploadRequest(t, "/extract", "notes.txt", "text/plain", []byte("some notes here")))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DOCUMENT_EXISTS", decodeBody(t, rec)["code"])

	rec = httptest.NewRecorder()
	h.UploadKnowledge(rec, uploadRequest(t, "/upload-knowledge", "notes.txt", "text/plain", []byte("some notes here")))
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "DOCUMENT_EXISTS", body["code"])
	assert.Contains(t, body["error"], "notes.txt")
}

func TestExtract_MissingFile(t *testing.T) {
	h := NewKnowledgeHandler(&fakeIngestor{}, &fakeKnowledge{}, 1)

	rec := httptest.NewRecorder()
	h.Extract(rec, jsonRequest(http.MethodPost, "/extract", `{}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MISSING_FILE", decodeBody(t, rec)["code"])
}

func TestSaveChunks(t *testing.T) {
	var got ingestion_engine.BatchRequest
	ing := &fakeIngestor{saveBatch: func(req ingestion_engine.BatchRequest) (int, error) {
		got = req
		return len(req.Chunks), nil
	}}
	h := NewKnowledgeHandler(ing, &fakeKnowledge{}, 1)

	rec := httptest.NewRecorder()
	h.SaveChunks(rec, jsonRequest(http.MethodPost, "/save-chunks",
		`{"chunks":["a","b"],"fileName":"x.txt","fileType":"text/plain","storagePath":"1_x.txt","startIndex":50,"sessionId":"s"}`))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 2, body["processed"])
	assert.Equal(t, 50, got.StartIndex)
	assert.Equal(t, "s", got.SessionID)
}

func TestSaveChunks_Errors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
		code   string
	}{
		{"malformed", `{"chunks":`, nil, http.StatusBadRequest, "INVALID_REQUEST"},
		{"no chunks", `{"chunks":[],"fileName":"x.txt"}`, nil, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"negative start", `{"chunks":["a"],"fileName":"x.txt","startIndex":-1}`, nil, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"batch too large", `{"chunks":["a"],"fileName":"x.txt"}`, fmt.Errorf("%w: too many", ingestion_engine.ErrInvalidBatch), http.StatusBadRequest, "INVALID_BATCH"},
		{"closed session", `{"chunks":["a"],"fileName":"x.txt","sessionId":"s"}`, fmt.Errorf("%w (finalized)", ingestion_engine.ErrSessionClosed), http.StatusConflict, "SESSION_CLOSED"},
		{"unknown session", `{"chunks":["a"],"fileName":"x.txt","sessionId":"s"}`, ingestion_engine.ErrSessionNotFound, http.StatusNotFound, "SESSION_NOT_FOUND"},
		{"write failure", `{"chunks":["a"],"fileName":"x.txt"}`, fmt.Errorf("insert chunk 0: connection reset"), http.StatusInternalServerError, "INTERNAL"},
		{"embedding timeout", `{"chunks":["a"],"fileName":"x.txt"}`, ingestion_engine.ErrEmbeddingTimeout, http.StatusInternalServerError, "EMBEDDING_TIMEOUT"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ing := &fakeIngestor{saveBatch: func(ingestion_engine.BatchRequest) (int, error) {
				return 0, tc.err
			}}
			h := NewKnowledgeHandler(ing, &fakeKnowledge{}, 1)

			rec := httptest.NewRecorder()
			h.SaveChunks(rec, jsonRequest(http.MethodPost, "/save-chunks", tc.body))

			assert.Equal(t, tc.status, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, tc.code, body["code"])
			if tc.status == http.StatusInternalServerError && tc.code == "INTERNAL" {
				assert.NotContains(t, body["error"], "connection reset")
			}
		})
	}
}

func TestUploadKnowledge(t *testing.T) {
	ing := &fakeIngestor{ingest: func(doc *models.Document) (*ingestion_engine.IngestResult, error) {
		return &ingestion_engine.IngestResult{Chunks: 7, Stage: ingestion_engine.StageDone}, nil
	}}
	h := NewKnowledgeHandler(ing, &fakeKnowledge{}, 1)

	rec := httptest.NewRecorder()
	h.UploadKnowledge(rec, uploadRequest(t, "/upload-knowledge", "book.txt", "text/plain", []byte("text")))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 7, body["chunks"])
	assert.Contains(t, body["message"], "book.txt")
}

func TestUploadKnowledge_TooLarge(t *testing.T) {
	h := NewKnowledgeHandler(&fakeIngestor{}, &fakeKnowledge{}, 1)

	rec := httptest.NewRecorder()
	h.UploadKnowledge(rec, uploadRequest(t, "/upload-knowledge", "big.txt", "text/plain", bytes.Repeat([]byte("x"), 3<<20)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "FILE_TOO_LARGE", decodeBody(t, rec)["code"])
}

func TestSessionEndpoints(t *testing.T) {
	ing := &fakeIngestor{
		finalize: func(id string) (*models.IngestionSession, error) {
			if id != "s1" {
				return nil, ingestion_engine.ErrSessionNotFound
			}
			return &models.IngestionSession{ID: id, State: models.SessionFinalized, Chunks: 4}, nil
		},
		abort: func(id string) (int64, error) {
			return 4, nil
		},
	}
	h := NewKnowledgeHandler(ing, &fakeKnowledge{}, 1)

	r := chi.NewRouter()
	r.Post("/ingest-sessions/{id}/finalize", h.FinalizeSession)
	r.Post("/ingest-sessions/{id}/abort", h.AbortSession)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest-sessions/s1/finalize", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	sess := decodeBody(t, rec)["session"].(map[string]any)
	assert.Equal(t, models.SessionFinalized, sess["state"])

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest-sessions/nope/finalize", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest-sessions/s1/abort", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 4, decodeBody(t, rec)["deleted"])
}

func TestListAndDeleteFiles(t *testing.T) {
	kb := &fakeKnowledge{files: []models.KnowledgeFile{{Name: "a.pdf", Type: "application/pdf", Chunks: 12}}}
	h := NewKnowledgeHandler(&fakeIngestor{}, kb, 1)

	rec := httptest.NewRecorder()
	h.ListFiles(rec, httptest.NewRequest(http.MethodGet, "/knowledge-files", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	files := decodeBody(t, rec)["files"].([]any)
	require.Len(t, files, 1)
	assert.EqualValues(t, 12, files[0].(map[string]any)["chunks"])

	rec = httptest.NewRecorder()
	h.DeleteFile(rec, jsonRequest(http.MethodDelete, "/knowledge-files", `{"filename":"a.pdf"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["success"])
	assert.Equal(t, []string{"a.pdf"}, kb.deleted)

	rec = httptest.NewRecorder()
	h.DeleteFile(rec, jsonRequest(http.MethodDelete, "/knowledge-files", `{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "filename")
}

func TestDownload(t *testing.T) {
	kb := &fakeKnowledge{downloads: map[string]string{"cv.pdf": "%PDF-1.7"}}
	h := NewKnowledgeHandler(&fakeIngestor{}, kb, 1)

	rec := httptest.NewRecorder()
	h.Download(rec, httptest.NewRequest(http.MethodGet, "/download-knowledge?filename=cv.pdf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="cv.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.7", rec.Body.String())

	rec = httptest.NewRecorder()
	h.Download(rec, httptest.NewRequest(http.MethodGet, "/download-knowledge?filename=legacy.pdf", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.Download(rec, httptest.NewRequest(http.MethodGet, "/download-knowledge", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearch(t *testing.T) {
	kb := &fakeKnowledge{}
	h := NewKnowledgeHandler(&fakeIngestor{}, kb, 1)

	rec := httptest.NewRecorder()
	h.Search(rec, jsonRequest(http.MethodPost, "/knowledge-search", `{"query":"refunds","limit":3}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, kb.lastLimit)
	results := decodeBody(t, rec)["results"].([]any)
	assert.Len(t, results, 1)

	rec = httptest.NewRecorder()
	h.Search(rec, jsonRequest(http.MethodPost, "/knowledge-search", `{"limit":3}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
