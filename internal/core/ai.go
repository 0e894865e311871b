package core

import "context"

type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}

// VisionExtractor transcribes a binary document (e.g. a scanned PDF) with a vision-capable model.
// Implementations must release any remote resource they create before returning.
type VisionExtractor interface {
	TranscribeDocument(ctx context.Context, fileName, mimeType string, data []byte) (string, error)
}
