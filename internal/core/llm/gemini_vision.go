package llm

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"github.com/markdave123-py/Contexta-knowledge/internal/core"
)

const transcribePrompt = `Extract ABSOLUTELY ALL of the text in this document. Include:
- Full names, titles and roles
- Contact details (email, phone, address, profile links)
- EVERY section (experience, skills, education, certificates, languages, etc.)
- Dates and company or institution names
- Position descriptions and responsibilities

Reply ONLY with the extracted text, verbatim: no summaries, no comments, no extra formatting.
Extract every section in full.`

// GeminiVision transcribes scanned documents through the Gemini File API.
type GeminiVision struct {
	client    *genai.Client
	modelName string
	pollEvery time.Duration
}

func NewGeminiVision(ctx context.Context, apiKey, modelName string, opts ...option.ClientOption) (*GeminiVision, error) {
	cl, err := genai.NewClient(ctx, append(opts, option.WithAPIKey(apiKey))...)
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &GeminiVision{client: cl, modelName: modelName, pollEvery: time.Second}, nil
}

func (g *GeminiVision) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// TranscribeDocument uploads the bytes as a temporary remote file, asks the model for a
// verbatim transcription and deletes the remote file on every exit path.
func (g *GeminiVision) TranscribeDocument(ctx context.Context, fileName, mimeType string, data []byte) (string, error) {
	f, err := g.client.UploadFile(ctx, "", bytes.NewReader(data), &genai.UploadFileOptions{
		DisplayName: fileName,
		MIMEType:    mimeType,
	})
	if err != nil {
		return "", fmt.Errorf("gemini upload file: %w", err)
	}
	name := f.Name
	log.Debug().Str("file", name).Str("document", fileName).Msg("vision: temporary file uploaded")

	defer func() {
		// the request context may already be cancelled here
		delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		if err := g.client.DeleteFile(delCtx, name); err != nil {
			log.Warn().Err(err).Str("file", name).Msg("vision: could not delete temporary file")
			return
		}
		log.Debug().Str("file", name).Msg("vision: temporary file deleted")
	}()

	for f.State == genai.FileStateProcessing {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(g.pollEvery):
		}
		// f must stay non-nil for the checks below
		next, err := g.client.GetFile(ctx, name)
		if err != nil {
			return "", fmt.Errorf("gemini file state: %w", err)
		}
		f = next
	}
	if f.State == genai.FileStateFailed {
		return "", fmt.Errorf("gemini could not process %s", fileName)
	}

	m := g.client.GenerativeModel(g.modelName)
	m.SetTemperature(0)

	resp, err := m.GenerateContent(ctx,
		genai.FileData{MIMEType: f.MIMEType, URI: f.URI},
		genai.Text(transcribePrompt),
	)
	if err != nil {
		return "", fmt.Errorf("gemini transcribe: %w", err)
	}
	return decodeGeneration(resp).Text, nil
}

var _ core.VisionExtractor = (*GeminiVision)(nil)
