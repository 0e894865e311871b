package core

import (
	"context"

	"github.com/markdave123-py/Contexta-knowledge/internal/models"
)

// ExtractedText represents the result of text extraction, potentially with metadata.
type ExtractedText struct {
	Text     string
	Metadata map[string]string
}

// DocumentExtractor defines the interface for extracting text from various document types.
type DocumentExtractor interface {
	// ExtractText picks a strategy from the document's declared content type and returns
	// whitespace-normalized text.
	ExtractText(ctx context.Context, doc *models.Document) (*ExtractedText, error)
}
