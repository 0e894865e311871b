package ingestion_engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/Contexta-knowledge/internal/core"
	"github.com/markdave123-py/Contexta-knowledge/internal/models"
)

// KnowledgeWriter persists knowledge records and removes whole documents.
type KnowledgeWriter struct {
	store    core.KnowledgeStore
	archiver *BlobArchiver
}

func NewKnowledgeWriter(store core.KnowledgeStore, archiver *BlobArchiver) *KnowledgeWriter {
	return &KnowledgeWriter{store: store, archiver: archiver}
}

// WriteBatch issues every insert concurrently and waits for all of them. The first
// error is returned; records that did succeed stay written.
func (w *KnowledgeWriter) WriteBatch(ctx context.Context, recs []*models.KnowledgeRecord) error {
	var g errgroup.Group
	for _, rec := range recs {
		g.Go(func() error {
			return w.store.InsertKnowledgeRecord(ctx, rec)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	chunksWritten.Add(float64(len(recs)))
	return nil
}

// DeleteDocument removes every record of documentName and then, best effort, its
// archived blob. Deleting an unknown document succeeds with zero rows.
func (w *KnowledgeWriter) DeleteDocument(ctx context.Context, documentName string) (int64, error) {
	path, err := w.store.GetStoragePath(ctx, documentName)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return 0, fmt.Errorf("delete %q: %w", documentName, err)
	}

	n, err := w.store.DeleteByDocumentName(ctx, documentName)
	if err != nil {
		return 0, err
	}

	if path != "" && w.archiver != nil {
		if err := w.archiver.Remove(ctx, path); err != nil {
			log.Warn().Err(err).Str("document", documentName).Str("storage_path", path).Msg("writer: archived file not removed")
		}
	}

	log.Info().Str("document", documentName).Int64("records", n).Msg("writer: document deleted")
	return n, nil
}

// Exists reports whether any record is stored under documentName.
func (w *KnowledgeWriter) Exists(ctx context.Context, documentName string) (bool, error) {
	_, err := w.store.GetStoragePath(ctx, documentName)
	switch {
	case errors.Is(err, core.ErrNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("look up %q: %w", documentName, err)
	}
	return true, nil
}

// DeleteRecords removes the records of documentName without touching its blob.
func (w *KnowledgeWriter) DeleteRecords(ctx context.Context, documentName string) (int64, error) {
	return w.store.DeleteByDocumentName(ctx, documentName)
}

// DeleteSession removes the records tagged with an ingestion session id.
func (w *KnowledgeWriter) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	return w.store.DeleteBySession(ctx, sessionID)
}
