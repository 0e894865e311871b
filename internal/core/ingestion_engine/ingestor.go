package ingestion_engine

import (
	"context"

	"github.com/markdave123-py/Contexta-knowledge/internal/models"
)

type Ingestor interface {
	Extract(ctx context.Context, doc *models.Document) (*ExtractResult, error)
	SaveBatch(ctx context.Context, req BatchRequest) (int, error)
	Ingest(ctx context.Context, doc *models.Document) (*IngestResult, error)
	Finalize(ctx context.Context, sessionID string) (*models.IngestionSession, error)
	Abort(ctx context.Context, sessionID string) (int64, error)

	Start(ctx context.Context, numWorkers int)
}

var _ Ingestor = (*DocumentIngestor)(nil)
