package core

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/markdave123-py/Contexta-knowledge/internal/models"
)

var ErrNotFound = errors.New("not found")

// KnowledgeStore defines all persistence operations for knowledge records.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
type KnowledgeStore interface {
	InsertKnowledgeRecord(ctx context.Context, rec *models.KnowledgeRecord) error
	DeleteByDocumentName(ctx context.Context, documentName string) (int64, error)
	DeleteBySession(ctx context.Context, sessionID string) (int64, error)

	// GetStoragePath returns ErrNotFound when no record exists for the name, and an empty
	// path when records exist but none carries one.
	GetStoragePath(ctx context.Context, documentName string) (string, error)
	ListKnowledgeFiles(ctx context.Context) ([]models.KnowledgeFile, error)
	SearchKnowledge(ctx context.Context, queryVec []float32, limit int) ([]models.SearchHit, error)

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
// It's abstract so you can replace AWS with MinIO, GCP, etc. easily.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error

	GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// SessionStore keeps track of split-endpoint ingestion sessions.
type SessionStore interface {
	Create(ctx context.Context, s *models.IngestionSession) error
	Get(ctx context.Context, id string) (*models.IngestionSession, error)
	Update(ctx context.Context, s *models.IngestionSession) error

	// Expired lists open sessions whose deadline is before now.
	Expired(ctx context.Context, now time.Time) ([]models.IngestionSession, error)
}
