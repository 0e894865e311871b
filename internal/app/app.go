package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/markdave123-py/Contexta-knowledge/internal/config"
	"github.com/markdave123-py/Contexta-knowledge/internal/core"
	db "github.com/markdave123-py/Contexta-knowledge/internal/core/database"
	"github.com/markdave123-py/Contexta-knowledge/internal/core/ingestion_engine"
	"github.com/markdave123-py/Contexta-knowledge/internal/core/llm"
	objectclient "github.com/markdave123-py/Contexta-knowledge/internal/core/object-client"
	"github.com/markdave123-py/Contexta-knowledge/internal/core/sessions"
	"github.com/markdave123-py/Contexta-knowledge/internal/services"
)

type App struct {
	Store     core.KnowledgeStore
	Objects   core.ObjectClient
	Ingestor  ingestion_engine.Ingestor
	Knowledge *services.KnowledgeService
	Server    *Server

	closers []io.Closer
}

type aiProviders struct {
	embedder core.EmbeddingProvider
	llm      core.LLMProvider
	vision   core.VisionExtractor
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	store, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.closers = append(a.closers, store)
	log.Info().Msg("database initialized and ready")

	objects, err := newObjectClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	a.Objects = objects
	log.Info().Str("provider", cfg.StorageProvider).Str("bucket", cfg.BucketName).Msg("object client initialized and ready")

	ai, err := a.newAIProviders(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info().Str("provider", cfg.AIProvider).Bool("vision", ai.vision != nil).Msg("ai providers initialized")

	sessionStore, err := a.newSessionStore(appCtx, cfg)
	if err != nil {
		return nil, err
	}

	ingCfg := ingestion_engine.NewIngestConfig(cfg)
	chunker, err := ingestion_engine.NewChunker(ingCfg.ChunkStrategy, ingCfg.ChunkMaxSize, ingCfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	var enricher *ingestion_engine.MetadataEnricher
	if ingCfg.EnrichEnabled {
		enricher = ingestion_engine.NewMetadataEnricher(ai.llm, ingCfg.EnrichWidth, ingCfg.EnrichPreviewChars, ingCfg.EnrichTimeout)
	}

	extractor := ingestion_engine.NewDocumentTextExtractor(ai.vision, ingCfg.MinTextChars, ingCfg.VisionTimeout)
	embedder := ingestion_engine.NewBatchEmbedder(ai.embedder, ingCfg.EmbedTimeout)
	archiver := ingestion_engine.NewBlobArchiver(objects, ingCfg.Bucket, ingCfg.ArchiveAttempts, ingCfg.ArchiveBackoff)
	writer := ingestion_engine.NewKnowledgeWriter(store, archiver)

	a.Ingestor = ingestion_engine.NewDocumentIngestor(ingCfg, extractor, chunker, enricher, embedder, writer, archiver, sessionStore)
	a.Knowledge = services.NewKnowledgeService(store, writer, archiver, embedder)
	a.Server = NewServer(cfg, a.Ingestor, a.Knowledge)

	ok = true
	return a, nil
}

func newObjectClient(ctx context.Context, cfg *config.Config) (core.ObjectClient, error) {
	if strings.EqualFold(cfg.StorageProvider, "minio") {
		return objectclient.NewMinioClient(ctx, cfg)
	}
	return objectclient.NewS3Client(ctx, cfg)
}

// newAIProviders builds the embedding, generation and vision clients. Vision
// transcription needs the Gemini File API, so it is absent with OpenAI.
func (a *App) newAIProviders(ctx context.Context, cfg *config.Config) (*aiProviders, error) {
	if strings.EqualFold(cfg.AIProvider, "openai") {
		return &aiProviders{
			embedder: llm.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbedModel),
			llm:      llm.NewOpenAILLM(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.GenModel),
		}, nil
	}

	embedder, err := llm.NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}
	a.closers = append(a.closers, embedder)

	gen, err := llm.NewGeminiLLM(ctx, cfg.GeminiAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the llm, %w", err)
	}
	a.closers = append(a.closers, gen)

	vision, err := llm.NewGeminiVision(ctx, cfg.GeminiAPIKey, cfg.VisionModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the vision model, %w", err)
	}
	a.closers = append(a.closers, vision)

	return &aiProviders{embedder: embedder, llm: gen, vision: vision}, nil
}

func (a *App) newSessionStore(ctx context.Context, cfg *config.Config) (core.SessionStore, error) {
	if cfg.RedisURL == "" {
		log.Info().Msg("REDIS_URL not set, ingestion sessions kept in memory")
		return sessions.NewMemoryStore(), nil
	}
	rs, err := sessions.NewRedisStore(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}
	a.closers = append(a.closers, rs)
	log.Info().Msg("ingestion sessions kept in redis")
	return rs, nil
}

func (a *App) Close() {
	for n := len(a.closers) - 1; n >= 0; n-- {
		if err := a.closers[n].Close(); err != nil {
			log.Warn().Err(err).Msg("close failed")
		}
	}
	a.closers = nil
}
