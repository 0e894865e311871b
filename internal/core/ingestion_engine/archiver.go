package ingestion_engine

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/markdave123-py/Contexta-knowledge/internal/core"
	"github.com/markdave123-py/Contexta-knowledge/internal/models"
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// StoragePath derives the blob key for an upload: {unix_millis}_{sanitized name}.
func StoragePath(fileName string, at time.Time) string {
	return fmt.Sprintf("%d_%s", at.UnixMilli(), unsafeNameChars.ReplaceAllString(fileName, "_"))
}

// BlobArchiver stores original uploads in object storage.
type BlobArchiver struct {
	obj      core.ObjectClient
	bucket   string
	attempts int
	backoff  time.Duration
	now      func() time.Time
}

func NewBlobArchiver(obj core.ObjectClient, bucket string, attempts int, backoff time.Duration) *BlobArchiver {
	if attempts <= 0 {
		attempts = 2
	}
	return &BlobArchiver{obj: obj, bucket: bucket, attempts: attempts, backoff: backoff, now: time.Now}
}

// Archive uploads the document bytes, retrying with a fixed backoff, and returns the storage path.
func (a *BlobArchiver) Archive(ctx context.Context, doc *models.Document) (string, error) {
	path := StoragePath(doc.Name, a.now())

	var lastErr error
	for attempt := 1; attempt <= a.attempts; attempt++ {
		if attempt > 1 {
			archiveRetries.Inc()
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(a.backoff):
			}
		}

		_, err := a.obj.UploadFile(ctx, a.bucket, path, doc.Content, doc.ContentType)
		if err == nil {
			log.Info().Str("document", doc.Name).Str("storage_path", path).Int("attempt", attempt).Msg("archiver: original stored")
			return path, nil
		}
		lastErr = err
		log.Warn().Err(err).Str("document", doc.Name).Int("attempt", attempt).Int("of", a.attempts).Msg("archiver: upload failed")
	}
	return "", fmt.Errorf("%w: %w", ErrArchiveFailed, lastErr)
}

// Remove deletes an archived blob. An empty path is a no-op.
func (a *BlobArchiver) Remove(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	return a.obj.DeleteFile(ctx, a.bucket, path)
}

func (a *BlobArchiver) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	return a.obj.GetObjectReader(ctx, a.bucket, path)
}
