package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/Contexta-knowledge/internal/core"
	"github.com/markdave123-py/Contexta-knowledge/internal/models"
)

// Stage is a step of a monolithic ingestion run.
type Stage string

const (
	StageExtracting  Stage = "extracting"
	StageChunking    Stage = "chunking"
	StageUploading   Stage = "uploading"
	StageDone        Stage = "done"
	StageRollingBack Stage = "rolling_back"
	StageFailed      Stage = "failed"
)

const rollbackTimeout = time.Minute

// DocumentIngestor orchestrates extraction, archiving, chunking, enrichment,
// embedding and writing, and compensates when a run fails half way.
//
// extractor: text extraction per declared type.
// chunker:   text to ordered chunks.
// enricher:  optional, nil disables summaries/keywords.
// embedder:  batch embedding with a client-side deadline.
// writer:    concurrent record writes and document deletion.
// archiver:  original bytes to object storage.
// sessions:  split-upload sessions between extract and finalize/abort.
// jobs:      expired session ids waiting for the janitor workers.
type DocumentIngestor struct {
	cfg       *IngestConfig
	extractor core.DocumentExtractor
	chunker   Chunker
	enricher  *MetadataEnricher
	embedder  *BatchEmbedder
	writer    *KnowledgeWriter
	archiver  *BlobArchiver
	sessions  core.SessionStore
	jobs      chan string

	now   func() time.Time
	newID func() string
}

// ExtractResult is what the split flow hands back to the client for chunking.
type ExtractResult struct {
	Text        string
	StoragePath string
	SessionID   string
	Document    models.Document
}

// BatchRequest is one client-submitted group of chunks.
type BatchRequest struct {
	Chunks      []string
	FileName    string
	FileType    string
	StoragePath string
	StartIndex  int
	SessionID   string
}

// IngestResult summarises a monolithic run.
type IngestResult struct {
	Chunks      int
	StoragePath string
	Stage       Stage
}

func NewDocumentIngestor(
	cfg *IngestConfig,
	extractor core.DocumentExtractor,
	chunker Chunker,
	enricher *MetadataEnricher,
	embedder *BatchEmbedder,
	writer *KnowledgeWriter,
	archiver *BlobArchiver,
	sessions core.SessionStore,
) *DocumentIngestor {
	if cfg == nil {
		cfg = DefaultIngestConfig()
	}
	return &DocumentIngestor{
		cfg:       cfg,
		extractor: extractor,
		chunker:   chunker,
		enricher:  enricher,
		embedder:  embedder,
		writer:    writer,
		archiver:  archiver,
		sessions:  sessions,
		jobs:      make(chan string, 64),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Extract validates and extracts the document, archives the original and opens an
// ingestion session. The archived blob is removed again if the session cannot be opened.
// A name that already has records is refused before anything is written.
func (i *DocumentIngestor) Extract(ctx context.Context, doc *models.Document) (*ExtractResult, error) {
	doc.ContentType = ResolveContentType(doc.ContentType, doc.Name)
	if !IsSupported(doc.ContentType) {
		return nil, ErrUnsupportedFormat
	}
	if err := i.ensureNew(ctx, doc.Name); err != nil {
		return nil, err
	}

	ext, err := i.extractor.ExtractText(ctx, doc)
	if err != nil {
		return nil, err
	}

	path, err := i.archiver.Archive(ctx, doc)
	if err != nil {
		return nil, err
	}

	now := i.now()
	sess := &models.IngestionSession{
		ID:           i.newID(),
		DocumentName: doc.Name,
		DocumentType: doc.ContentType,
		StoragePath:  path,
		State:        models.SessionOpen,
		CreatedAt:    now,
		ExpiresAt:    now.Add(i.cfg.SessionTTL),
	}
	if err := i.sessions.Create(ctx, sess); err != nil {
		i.removeBlob(ctx, doc.Name, path)
		return nil, fmt.Errorf("open ingestion session: %w", err)
	}

	log.Info().Str("document", doc.Name).Str("session_id", sess.ID).Int("chars", len(ext.Text)).Msg("ingestor: extracted")

	return &ExtractResult{
		Text:        ext.Text,
		StoragePath: path,
		SessionID:   sess.ID,
		Document:    models.Document{Name: doc.Name, ContentType: doc.ContentType, Size: doc.Size},
	}, nil
}

// SaveBatch enriches, embeds and writes one batch. Chunk indices are
// StartIndex..StartIndex+len(Chunks)-1. With a session id, the batch is checked
// against the session and its records are tagged for a later abort.
func (i *DocumentIngestor) SaveBatch(ctx context.Context, req BatchRequest) (int, error) {
	if err := i.validateBatch(req); err != nil {
		return 0, err
	}

	var sess *models.IngestionSession
	if req.SessionID != "" {
		s, err := i.openSession(ctx, req.SessionID)
		if err != nil {
			return 0, err
		}
		if s.DocumentName != req.FileName {
			return 0, fmt.Errorf("%w: session %s belongs to %q", ErrInvalidBatch, s.ID, s.DocumentName)
		}
		if req.StoragePath == "" {
			req.StoragePath = s.StoragePath
		}
		sess = s
	}

	if err := i.processBatch(ctx, req); err != nil {
		return 0, err
	}

	if sess != nil {
		i.recordProgress(ctx, sess.ID, len(req.Chunks))
	}
	return len(req.Chunks), nil
}

// recordProgress re-reads the session so a finalize or abort that landed while the
// batch was running is not overwritten with the stale open state.
func (i *DocumentIngestor) recordProgress(ctx context.Context, sessionID string, chunks int) {
	cur, err := i.sessions.Get(ctx, sessionID)
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("ingestor: session progress not saved")
		return
	}
	if cur.State != models.SessionOpen {
		log.Warn().Str("session_id", sessionID).Str("state", cur.State).Msg("ingestor: session closed while the batch was written")
		return
	}
	cur.Chunks += chunks
	cur.ExpiresAt = i.now().Add(i.cfg.SessionTTL)
	if err := i.sessions.Update(ctx, cur); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("ingestor: session progress not saved")
	}
}

// Ingest runs the whole pipeline for one upload. Once anything durable exists,
// a failure deletes every record of the document name and the archived blob.
func (i *DocumentIngestor) Ingest(ctx context.Context, doc *models.Document) (*IngestResult, error) {
	res := &IngestResult{Stage: StageExtracting}

	doc.ContentType = ResolveContentType(doc.ContentType, doc.Name)
	if !IsSupported(doc.ContentType) {
		res.Stage = StageFailed
		return res, ErrUnsupportedFormat
	}
	// rollback deletes by name, so it must never run against an existing document
	if err := i.ensureNew(ctx, doc.Name); err != nil {
		res.Stage = StageFailed
		return res, err
	}

	ext, err := i.extractor.ExtractText(ctx, doc)
	if err != nil {
		res.Stage = StageFailed
		return res, err
	}

	path, err := i.archiver.Archive(ctx, doc)
	if err != nil {
		res.Stage = StageFailed
		return res, err
	}
	res.StoragePath = path

	res.Stage = StageChunking
	chunks, err := i.chunker.Chunk(ext.Text)
	if err == nil && len(chunks) == 0 {
		err = ErrEmptyText
	}
	if err != nil {
		return i.rollback(ctx, res, doc.Name, err)
	}

	res.Stage = StageUploading
	size := i.cfg.BatchSize
	for start := 0; start < len(chunks); start += size {
		end := start + size
		if end > len(chunks) {
			end = len(chunks)
		}
		err := i.processBatch(ctx, BatchRequest{
			Chunks:      chunks[start:end],
			FileName:    doc.Name,
			FileType:    doc.ContentType,
			StoragePath: path,
			StartIndex:  start,
		})
		if err != nil {
			return i.rollback(ctx, res, doc.Name, fmt.Errorf("batch at %d: %w", start, err))
		}
		res.Chunks += end - start
	}

	res.Stage = StageDone
	log.Info().Str("document", doc.Name).Int("chunks", res.Chunks).Msg("ingestor: document ingested")
	return res, nil
}

// Finalize closes a session; its records stay.
func (i *DocumentIngestor) Finalize(ctx context.Context, sessionID string) (*models.IngestionSession, error) {
	sess, err := i.openSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sess.State = models.SessionFinalized
	if err := i.sessions.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("finalize session %s: %w", sessionID, err)
	}
	log.Info().Str("document", sess.DocumentName).Str("session_id", sess.ID).Int("chunks", sess.Chunks).Msg("ingestor: session finalized")
	return sess, nil
}

// Abort deletes every record written under the session and the archived blob.
func (i *DocumentIngestor) Abort(ctx context.Context, sessionID string) (int64, error) {
	sess, err := i.openSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	n, err := i.writer.DeleteSession(ctx, sess.ID)
	if err != nil {
		return 0, fmt.Errorf("abort session %s: %w", sessionID, err)
	}
	i.removeBlob(ctx, sess.DocumentName, sess.StoragePath)

	sess.State = models.SessionAborted
	if err := i.sessions.Update(ctx, sess); err != nil {
		log.Warn().Err(err).Str("session_id", sess.ID).Msg("ingestor: aborted session state not saved")
	}
	rollbacksTotal.Inc()

	log.Info().Str("document", sess.DocumentName).Str("session_id", sess.ID).Int64("records", n).Msg("ingestor: session aborted")
	return n, nil
}

func (i *DocumentIngestor) ensureNew(ctx context.Context, documentName string) error {
	exists, err := i.writer.Exists(ctx, documentName)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %q", ErrDocumentExists, documentName)
	}
	return nil
}

func (i *DocumentIngestor) openSession(ctx context.Context, id string) (*models.IngestionSession, error) {
	sess, err := i.sessions.Get(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if sess.State != models.SessionOpen {
		return nil, fmt.Errorf("%w (%s)", ErrSessionClosed, sess.State)
	}
	return sess, nil
}

func (i *DocumentIngestor) validateBatch(req BatchRequest) error {
	switch {
	case len(req.Chunks) == 0:
		return fmt.Errorf("%w: no chunks", ErrInvalidBatch)
	case len(req.Chunks) > i.cfg.BatchSize:
		return fmt.Errorf("%w: %d chunks exceeds the batch size of %d", ErrInvalidBatch, len(req.Chunks), i.cfg.BatchSize)
	case strings.TrimSpace(req.FileName) == "":
		return fmt.Errorf("%w: missing file name", ErrInvalidBatch)
	case req.StartIndex < 0:
		return fmt.Errorf("%w: negative start index", ErrInvalidBatch)
	}
	for n, c := range req.Chunks {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("%w: chunk %d is empty", ErrInvalidBatch, n)
		}
	}
	return nil
}

// processBatch embeds and enriches concurrently, then writes once both are done.
func (i *DocumentIngestor) processBatch(ctx context.Context, req BatchRequest) error {
	logger := log.With().Str("document", req.FileName).Int("start_index", req.StartIndex).Int("batch", len(req.Chunks)).Logger()
	started := time.Now()

	var (
		vecs [][]float32
		enr  []models.Enrichment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		vecs, err = i.embedder.Embed(gctx, req.Chunks)
		return err
	})
	g.Go(func() error {
		if i.enricher == nil || !i.cfg.EnrichEnabled {
			enr = make([]models.Enrichment, len(req.Chunks))
			for n := range enr {
				enr[n] = placeholderEnrichment()
			}
			return nil
		}
		enr = i.enricher.EnrichAll(gctx, req.FileName, req.Chunks)
		return nil
	})
	if err := g.Wait(); err != nil {
		batchesTotal.WithLabelValues("failed").Inc()
		logger.Error().Err(err).Msg("ingestor: embedding failed")
		return err
	}

	recs := make([]*models.KnowledgeRecord, len(req.Chunks))
	for n, text := range req.Chunks {
		recs[n] = &models.KnowledgeRecord{
			DocumentName: req.FileName,
			DocumentType: req.FileType,
			ChunkText:    text,
			ChunkIndex:   req.StartIndex + n,
			Embedding:    vecs[n],
			Metadata: models.ChunkMetadata{
				OriginalFile: req.FileName,
				StoragePath:  req.StoragePath,
				BatchIndex:   n,
				Summary:      enr[n].Summary,
				Keywords:     enr[n].Keywords,
				SessionID:    req.SessionID,
			},
		}
	}

	if err := i.writer.WriteBatch(ctx, recs); err != nil {
		batchesTotal.WithLabelValues("failed").Inc()
		logger.Error().Err(err).Msg("ingestor: batch write failed")
		return fmt.Errorf("write batch: %w", err)
	}

	batchesTotal.WithLabelValues("ok").Inc()
	logger.Info().Dur("took", time.Since(started)).Msg("ingestor: batch saved")
	return nil
}

// rollback restores "document does not exist": all records of the name and the blob go.
// It runs on a detached context so a cancelled request still gets cleaned up.
func (i *DocumentIngestor) rollback(ctx context.Context, res *IngestResult, documentName string, cause error) (*IngestResult, error) {
	res.Stage = StageRollingBack
	rollbacksTotal.Inc()
	log.Warn().Err(cause).Str("document", documentName).Msg("ingestor: rolling back")

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	if n, err := i.writer.DeleteRecords(rctx, documentName); err != nil {
		log.Error().Err(err).Str("document", documentName).Msg("ingestor: rollback could not delete records")
	} else {
		log.Info().Str("document", documentName).Int64("records", n).Msg("ingestor: rollback deleted records")
	}
	i.removeBlob(rctx, documentName, res.StoragePath)

	res.Stage = StageFailed
	res.Chunks = 0
	return res, cause
}

func (i *DocumentIngestor) removeBlob(ctx context.Context, documentName, path string) {
	if path == "" {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	if err := i.archiver.Remove(rctx, path); err != nil {
		log.Warn().Err(err).Str("document", documentName).Str("storage_path", path).Msg("ingestor: archived file not removed")
	}
}
