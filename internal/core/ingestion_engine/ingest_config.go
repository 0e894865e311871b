package ingestion_engine

import (
	"time"

	"github.com/markdave123-py/Contexta-knowledge/internal/config"
)

// IngestConfig tunes the pipeline.
//
// ChunkMaxSize/ChunkOverlap: chunk geometry in characters (semantic) or tokens (token strategy).
// BatchSize:                 chunks per embed+enrich+write pass.
// EnrichWidth:               concurrent enrichment calls per group.
// MinTextChars:              shortest normalized text accepted from the extractor.
// ArchiveAttempts:           blob upload attempts before extraction fails.
// SessionTTL:                how long a split upload may stay open before the janitor aborts it.
type IngestConfig struct {
	Bucket string

	ChunkStrategy string
	ChunkMaxSize  int
	ChunkOverlap  int
	BatchSize     int

	EnrichEnabled      bool
	EnrichWidth        int
	EnrichPreviewChars int

	EmbedTimeout  time.Duration
	EnrichTimeout time.Duration
	VisionTimeout time.Duration

	MinTextChars    int
	ArchiveAttempts int
	ArchiveBackoff  time.Duration

	SessionTTL      time.Duration
	JanitorInterval time.Duration
}

func DefaultIngestConfig() *IngestConfig {
	return &IngestConfig{
		Bucket:             "knowledge-files",
		ChunkStrategy:      "semantic",
		ChunkMaxSize:       2000,
		ChunkOverlap:       200,
		BatchSize:          50,
		EnrichEnabled:      true,
		EnrichWidth:        5,
		EnrichPreviewChars: 1500,
		EmbedTimeout:       15 * time.Second,
		EnrichTimeout:      20 * time.Second,
		VisionTimeout:      90 * time.Second,
		MinTextChars:       50,
		ArchiveAttempts:    2,
		ArchiveBackoff:     time.Second,
		SessionTTL:         30 * time.Minute,
		JanitorInterval:    time.Minute,
	}
}

func NewIngestConfig(cfg *config.Config) *IngestConfig {
	return &IngestConfig{
		Bucket:             cfg.BucketName,
		ChunkStrategy:      cfg.ChunkStrategy,
		ChunkMaxSize:       cfg.ChunkMaxSize,
		ChunkOverlap:       cfg.ChunkOverlap,
		BatchSize:          cfg.BatchSize,
		EnrichEnabled:      cfg.EnrichEnabled,
		EnrichWidth:        cfg.EnrichWidth,
		EnrichPreviewChars: cfg.EnrichPreviewChars,
		EmbedTimeout:       cfg.EmbedTimeout,
		EnrichTimeout:      cfg.EnrichTimeout,
		VisionTimeout:      cfg.VisionTimeout,
		MinTextChars:       cfg.MinTextChars,
		ArchiveAttempts:    cfg.ArchiveAttempts,
		ArchiveBackoff:     cfg.ArchiveBackoff,
		SessionTTL:         cfg.SessionTTL,
		JanitorInterval:    cfg.JanitorInterval,
	}
}
