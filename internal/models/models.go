package models

import (
	"time"
)

// Document represents an uploaded file before it is turned into knowledge.
type Document struct {
	Name        string `json:"name"`
	ContentType string `json:"type"`
	Size        int64  `json:"size"`
	Content     []byte `json:"-"`
}

// ChunkMetadata is the JSON object stored next to every knowledge record.
type ChunkMetadata struct {
	OriginalFile string   `json:"original_file"`
	StoragePath  string   `json:"storage_path,omitempty"`
	BatchIndex   int      `json:"batch_index"`
	Summary      string   `json:"summary"`
	Keywords     []string `json:"keywords"`
	SessionID    string   `json:"session_id,omitempty"`
}

// KnowledgeRecord represents one persisted chunk, keyed by (document_name, chunk_index).
type KnowledgeRecord struct {
	ID           int64         `db:"id" json:"id"`
	DocumentName string        `db:"document_name" json:"document_name"`
	DocumentType string        `db:"document_type" json:"document_type"`
	ChunkText    string        `db:"chunk_text" json:"chunk_text"`
	ChunkIndex   int           `db:"chunk_index" json:"chunk_index"`
	Embedding    []float32     `db:"embedding" json:"-"` // pgvector column
	Metadata     ChunkMetadata `db:"metadata" json:"metadata"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
}

// KnowledgeFile is a document's knowledge grouped by name.
type KnowledgeFile struct {
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Chunks    int       `json:"chunks"`
}

// SearchHit is a record returned by a similarity search, with its vector distance.
type SearchHit struct {
	DocumentName string   `json:"document_name"`
	ChunkIndex   int      `json:"chunk_index"`
	ChunkText    string   `json:"chunk_text"`
	Summary      string   `json:"summary"`
	Keywords     []string `json:"keywords"`
	Distance     float64  `json:"distance"`
}

// Enrichment is the generated summary/keywords for a single chunk.
type Enrichment struct {
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords"`
}

// IngestionSession tracks a split-endpoint upload between extract and finalize/abort.
type IngestionSession struct {
	ID           string    `json:"id"`
	DocumentName string    `json:"document_name"`
	DocumentType string    `json:"document_type"`
	StoragePath  string    `json:"storage_path"`
	State        string    `json:"state"` // open | finalized | aborted
	Chunks       int       `json:"chunks"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

const (
	SessionOpen      = "open"
	SessionFinalized = "finalized"
	SessionAborted   = "aborted"
)
