package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"

	"github.com/markdave123-py/Contexta-knowledge/internal/config"
	"github.com/markdave123-py/Contexta-knowledge/internal/core"
	"github.com/markdave123-py/Contexta-knowledge/internal/models"
)

var _ core.KnowledgeStore = (*DatabaseClient)(nil)

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	dsn := cfg.DatabaseURL
	if cfg.SslCertPath != "" {
		if _, err := os.Stat(cfg.SslCertPath); err != nil {
			return nil, fmt.Errorf("ssl cert not accessible at %q: %w", cfg.SslCertPath, err)
		}
		u, err := url.Parse(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		q := u.Query()
		q.Set("sslmode", "verify-ca")
		q.Set("sslrootcert", cfg.SslCertPath)
		u.RawQuery = q.Encode()
		dsn = u.String()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db, cfg.EmbedDim); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

// NewDatabaseClientFromDB wraps an already opened handle. The schema is assumed to exist.
func NewDatabaseClientFromDB(db *sql.DB) *DatabaseClient {
	return &DatabaseClient{db: db}
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// InsertKnowledgeRecord writes one chunk. Re-ingesting the same (document_name, chunk_index)
// replaces the previous row.
func (c *DatabaseClient) InsertKnowledgeRecord(ctx context.Context, rec *models.KnowledgeRecord) error {
	if rec == nil {
		return errors.New("nil knowledge record")
	}
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	const q = `
		INSERT INTO knowledge_base
			(document_name, document_type, chunk_text, chunk_index, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
		ON CONFLICT (document_name, chunk_index) DO UPDATE SET
			document_type = EXCLUDED.document_type,
			chunk_text    = EXCLUDED.chunk_text,
			embedding     = EXCLUDED.embedding,
			metadata      = EXCLUDED.metadata,
			created_at    = now()
	`
	_, err = c.db.ExecContext(ctx, q,
		rec.DocumentName, rec.DocumentType, rec.ChunkText, rec.ChunkIndex, pgvector.NewVector(rec.Embedding), string(meta))
	if err != nil {
		return fmt.Errorf("insert chunk %d of %q: %w", rec.ChunkIndex, rec.DocumentName, err)
	}
	return nil
}

func (c *DatabaseClient) DeleteByDocumentName(ctx context.Context, documentName string) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM knowledge_base WHERE document_name = $1`, documentName)
	if err != nil {
		return 0, fmt.Errorf("delete records of %q: %w", documentName, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (c *DatabaseClient) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM knowledge_base WHERE metadata->>'session_id' = $1`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete records of session %s: %w", sessionID, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (c *DatabaseClient) GetStoragePath(ctx context.Context, documentName string) (string, error) {
	const q = `
		SELECT COALESCE(metadata->>'storage_path', '')
		FROM knowledge_base
		WHERE document_name = $1
		ORDER BY (COALESCE(metadata->>'storage_path', '') = '') ASC, chunk_index ASC
		LIMIT 1
	`
	var path string
	err := c.db.QueryRowContext(ctx, q, documentName).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", core.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup storage path of %q: %w", documentName, err)
	}
	return path, nil
}

func (c *DatabaseClient) ListKnowledgeFiles(ctx context.Context) ([]models.KnowledgeFile, error) {
	const q = `
		SELECT document_name, MIN(document_type), MIN(created_at), COUNT(*)
		FROM knowledge_base
		GROUP BY document_name
		ORDER BY MIN(created_at) DESC
	`
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.KnowledgeFile{}
	for rows.Next() {
		var f models.KnowledgeFile
		if err := rows.Scan(&f.Name, &f.Type, &f.CreatedAt, &f.Chunks); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// SearchKnowledge finds the top-k records closest to the query embedding.
func (c *DatabaseClient) SearchKnowledge(ctx context.Context, queryVec []float32, limit int) ([]models.SearchHit, error) {
	const q = `
		SELECT document_name, chunk_index, chunk_text, metadata, embedding <-> $1 AS distance
		FROM knowledge_base
		ORDER BY embedding <-> $1
		LIMIT $2
	`
	rows, err := c.db.QueryContext(ctx, q, pgvector.NewVector(queryVec), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.SearchHit{}
	for rows.Next() {
		var (
			hit  models.SearchHit
			raw  []byte
			meta models.ChunkMetadata
		)
		if err := rows.Scan(&hit.DocumentName, &hit.ChunkIndex, &hit.ChunkText, &raw, &hit.Distance); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &meta); err != nil {
				return nil, fmt.Errorf("decode metadata of %q#%d: %w", hit.DocumentName, hit.ChunkIndex, err)
			}
		}
		hit.Summary = meta.Summary
		hit.Keywords = meta.Keywords
		if hit.Keywords == nil {
			hit.Keywords = []string{}
		}
		out = append(out, hit)
	}
	return out, rows.Err()
}
