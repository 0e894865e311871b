package ingestion_engine

import (
	"errors"

	"github.com/markdave123-py/Contexta-knowledge/internal/core"
)

var (
	ErrUnsupportedFormat = errors.New("format not supported: use PDF, DOCX or TXT")
	ErrEmptyText         = errors.New("the file is empty or unreadable; scanned images must be converted to text first")
	ErrInvalidBatch      = errors.New("invalid chunk batch")
	ErrInvalidChunker    = errors.New("chunk overlap must be smaller than the max chunk size")
	ErrEmbeddingTimeout  = errors.New("embedding service timed out")
	ErrArchiveFailed     = errors.New("could not archive the original file")
	ErrSessionNotFound   = errors.New("ingestion session not found")
	ErrSessionClosed     = errors.New("ingestion session is already closed")
	ErrDocumentExists    = errors.New("a document with this name is already ingested; delete it first")

	ErrNotFound = core.ErrNotFound
)
