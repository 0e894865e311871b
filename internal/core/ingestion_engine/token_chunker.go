package ingestion_engine

import (
	"fmt"

	"github.com/tmc/langchaingo/textsplitter"
)

// TokenChunker is the fixed-width variant: cl100k_base token windows of chunkSize
// tokens with the given overlap.
type TokenChunker struct {
	splitter textsplitter.TokenSplitter
}

func NewTokenChunker(chunkSize, overlap int) (*TokenChunker, error) {
	if chunkSize <= 0 || overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: max=%d overlap=%d", ErrInvalidChunker, chunkSize, overlap)
	}
	return &TokenChunker{
		splitter: textsplitter.NewTokenSplitter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(overlap),
		),
	}, nil
}

func (c *TokenChunker) Chunk(text string) ([]string, error) {
	if text == "" {
		return nil, nil
	}
	chunks, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("token split: %w", err)
	}
	return chunks, nil
}

// NewChunker picks the chunking strategy by name; anything but "token" is semantic.
func NewChunker(strategy string, maxSize, overlap int) (Chunker, error) {
	if strategy == "token" {
		return NewTokenChunker(maxSize, overlap)
	}
	return NewSemanticChunker(maxSize, overlap)
}
