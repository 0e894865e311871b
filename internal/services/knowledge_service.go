package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/markdave123-py/Contexta-knowledge/internal/core"
	"github.com/markdave123-py/Contexta-knowledge/internal/core/ingestion_engine"
	"github.com/markdave123-py/Contexta-knowledge/internal/models"
)

// ErrNoStoredFile is returned for documents ingested before archiving existed.
var ErrNoStoredFile = fmt.Errorf("%w: no stored file for this document", core.ErrNotFound)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 50
)

// KnowledgeService serves the read and delete side of the knowledge base.
type KnowledgeService struct {
	store    core.KnowledgeStore
	writer   *ingestion_engine.KnowledgeWriter
	archiver *ingestion_engine.BlobArchiver
	embedder *ingestion_engine.BatchEmbedder
}

func NewKnowledgeService(
	store core.KnowledgeStore,
	writer *ingestion_engine.KnowledgeWriter,
	archiver *ingestion_engine.BlobArchiver,
	embedder *ingestion_engine.BatchEmbedder,
) *KnowledgeService {
	return &KnowledgeService{store: store, writer: writer, archiver: archiver, embedder: embedder}
}

func (s *KnowledgeService) ListFiles(ctx context.Context) ([]models.KnowledgeFile, error) {
	return s.store.ListKnowledgeFiles(ctx)
}

func (s *KnowledgeService) DeleteFile(ctx context.Context, name string) (int64, error) {
	return s.writer.DeleteDocument(ctx, name)
}

// Download is an archived original ready to be streamed back.
type Download struct {
	Body        io.ReadCloser
	FileName    string
	ContentType string
}

// OpenDownload finds the archived blob of a document. The caller closes Body.
func (s *KnowledgeService) OpenDownload(ctx context.Context, name string) (*Download, error) {
	path, err := s.store.GetStoragePath(ctx, name)
	if errors.Is(err, core.ErrNotFound) || (err == nil && path == "") {
		return nil, ErrNoStoredFile
	}
	if err != nil {
		return nil, err
	}

	body, err := s.archiver.Open(ctx, path)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, ErrNoStoredFile
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Download{Body: body, FileName: name, ContentType: ContentTypeFor(name)}, nil
}

// Search embeds the query and returns the closest records.
func (s *KnowledgeService) Search(ctx context.Context, query string, limit int) ([]models.SearchHit, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return s.store.SearchKnowledge(ctx, vecs[0], limit)
}

// ContentTypeFor maps a file name to the type served on download.
func ContentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return ingestion_engine.MimePDF
	case ".docx":
		return ingestion_engine.MimeDOCX
	case ".txt":
		return ingestion_engine.MimeText
	}
	return "application/octet-stream"
}
