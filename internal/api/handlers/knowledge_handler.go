package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/markdave123-py/Contexta-knowledge/internal/core/ingestion_engine"
	"github.com/markdave123-py/Contexta-knowledge/internal/models"
	"github.com/markdave123-py/Contexta-knowledge/internal/services"
)

// KnowledgeBase is the read and delete side used by the admin endpoints.
type KnowledgeBase interface {
	ListFiles(ctx context.Context) ([]models.KnowledgeFile, error)
	DeleteFile(ctx context.Context, name string) (int64, error)
	OpenDownload(ctx context.Context, name string) (*services.Download, error)
	Search(ctx context.Context, query string, limit int) ([]models.SearchHit, error)
}

type KnowledgeHandler struct {
	ingestor    ingestion_engine.Ingestor
	knowledge   KnowledgeBase
	maxUploadMB int64
}

func NewKnowledgeHandler(ing ingestion_engine.Ingestor, kb KnowledgeBase, maxUploadMB int64) *KnowledgeHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 50
	}
	return &KnowledgeHandler{ingestor: ing, knowledge: kb, maxUploadMB: maxUploadMB}
}

type documentMeta struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

type extractResponse struct {
	Text        string       `json:"text"`
	StoragePath string       `json:"storagePath"`
	SessionID   string       `json:"sessionId"`
	Metadata    documentMeta `json:"metadata"`
}

type saveChunksRequest struct {
	Chunks      []string `json:"chunks" validate:"required,min=1,dive,required"`
	FileName    string   `json:"fileName" validate:"required"`
	FileType    string   `json:"fileType"`
	StoragePath string   `json:"storagePath"`
	StartIndex  int      `json:"startIndex" validate:"gte=0"`
	SessionID   string   `json:"sessionId"`
}

type deleteFileRequest struct {
	Filename string `json:"filename" validate:"required"`
}

type searchRequest struct {
	Query string `json:"query" validate:"required"`
	Limit int    `json:"limit" validate:"gte=0"`
}

// Extract handles POST extract: text extraction, archiving and a new ingestion session.
func (h *KnowledgeHandler) Extract(w http.ResponseWriter, r *http.Request) {
	doc, err := h.readUpload(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.ingestor.Extract(r.Context(), doc)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, extractResponse{
		Text:        res.Text,
		StoragePath: res.StoragePath,
		SessionID:   res.SessionID,
		Metadata:    documentMeta{Name: res.Document.Name, Type: res.Document.ContentType, Size: res.Document.Size},
	})
}

// SaveChunks handles POST save-chunks for one client-side batch.
func (h *KnowledgeHandler) SaveChunks(w http.ResponseWriter, r *http.Request) {
	var req saveChunksRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	n, err := h.ingestor.SaveBatch(r.Context(), ingestion_engine.BatchRequest{
		Chunks:      req.Chunks,
		FileName:    req.FileName,
		FileType:    req.FileType,
		StoragePath: req.StoragePath,
		StartIndex:  req.StartIndex,
		SessionID:   req.SessionID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "processed": n})
}

// UploadKnowledge runs the whole pipeline in one request.
func (h *KnowledgeHandler) UploadKnowledge(w http.ResponseWriter, r *http.Request) {
	doc, err := h.readUpload(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.ingestor.Ingest(r.Context(), doc)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"chunks":  res.Chunks,
		"message": fmt.Sprintf("%s ingested into %d chunks", doc.Name, res.Chunks),
	})
}

func (h *KnowledgeHandler) FinalizeSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.ingestor.Finalize(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "session": sess})
}

func (h *KnowledgeHandler) AbortSession(w http.ResponseWriter, r *http.Request) {
	n, err := h.ingestor.Abort(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": n})
}

func (h *KnowledgeHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.knowledge.ListFiles(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (h *KnowledgeHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	var req deleteFileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if _, err := h.knowledge.DeleteFile(r.Context(), req.Filename); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Download streams the archived original back as an attachment.
func (h *KnowledgeHandler) Download(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("filename"))
	if name == "" {
		writeError(w, r, fmt.Errorf("%w: filename is required", errInvalidRequest))
		return
	}

	dl, err := h.knowledge.OpenDownload(r.Context(), name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer dl.Body.Close()

	w.Header().Set("Content-Type", dl.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, strings.ReplaceAll(dl.FileName, `"`, "")))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, dl.Body); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("document", name).Msg("download interrupted")
	}
}

func (h *KnowledgeHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	hits, err := h.knowledge.Search(r.Context(), req.Query, req.Limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": hits})
}

// readUpload reads the multipart field "file" into a document.
func (h *KnowledgeHandler) readUpload(w http.ResponseWriter, r *http.Request) (*models.Document, error) {
	limit := h.maxUploadMB << 20
	r.Body = http.MaxBytesReader(w, r.Body, limit+(1<<20))

	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: the limit is %d MB", errFileTooLarge, h.maxUploadMB)
		}
		return nil, fmt.Errorf("%w: %v", errMissingFile, err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, errMissingFile
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	return &models.Document{
		Name:        filepath.Base(header.Filename),
		ContentType: header.Header.Get("Content-Type"),
		Size:        int64(len(data)),
		Content:     data,
	}, nil
}
