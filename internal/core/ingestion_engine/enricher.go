package ingestion_engine

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/Contexta-knowledge/internal/core"
	"github.com/markdave123-py/Contexta-knowledge/internal/models"
)

const enrichSystemPrompt = `You analyse fragments of documents. For each fragment produce:
1. A 1-2 sentence summary capturing the main idea
2. 3-5 relevant keywords

Reply ONLY with JSON: {"summary": "...", "keywords": ["...", "..."]}`

var codeFence = regexp.MustCompile("```(?:json)?\\s*|\\s*```")

// MetadataEnricher annotates chunks with a summary and keywords. It never fails:
// any error yields an empty placeholder for that chunk.
type MetadataEnricher struct {
	llm          core.LLMProvider
	width        int
	previewChars int
	timeout      time.Duration
}

func NewMetadataEnricher(llm core.LLMProvider, width, previewChars int, timeout time.Duration) *MetadataEnricher {
	if width <= 0 {
		width = 5
	}
	if previewChars <= 0 {
		previewChars = 1500
	}
	return &MetadataEnricher{llm: llm, width: width, previewChars: previewChars, timeout: timeout}
}

// EnrichAll enriches chunks in groups of at most width concurrent calls. Groups run
// one after another. The result is index-aligned with chunks.
func (m *MetadataEnricher) EnrichAll(ctx context.Context, fileName string, chunks []string) []models.Enrichment {
	out := make([]models.Enrichment, len(chunks))

	for start := 0; start < len(chunks); start += m.width {
		end := start + m.width
		if end > len(chunks) {
			end = len(chunks)
		}

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				out[i] = m.Enrich(ctx, fileName, chunks[i])
				return nil
			})
		}
		_ = g.Wait()
	}
	return out
}

func (m *MetadataEnricher) Enrich(ctx context.Context, fileName, chunk string) models.Enrichment {
	if m.llm == nil {
		return placeholderEnrichment()
	}
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	user := fmt.Sprintf("File: %s\n\nFragment:\n%s...", fileName, preview(chunk, m.previewChars))
	raw, err := m.llm.Generate(ctx, enrichSystemPrompt, user)
	if err != nil {
		enrichDegraded.Inc()
		log.Warn().Err(err).Str("document", fileName).Msg("enricher: generation failed, using placeholder")
		return placeholderEnrichment()
	}

	enr, err := parseEnrichment(raw)
	if err != nil {
		enrichDegraded.Inc()
		log.Warn().Err(err).Str("document", fileName).Msg("enricher: unparsable reply, using placeholder")
		return placeholderEnrichment()
	}
	return enr
}

func parseEnrichment(raw string) (models.Enrichment, error) {
	clean := strings.TrimSpace(codeFence.ReplaceAllString(raw, ""))

	var reply struct {
		Summary  string `json:"summary"`
		Keywords []any  `json:"keywords"`
	}
	if err := json.Unmarshal([]byte(clean), &reply); err != nil {
		return models.Enrichment{}, fmt.Errorf("decode enrichment: %w", err)
	}

	kws := make([]string, 0, len(reply.Keywords))
	for _, k := range reply.Keywords {
		if s, ok := k.(string); ok && strings.TrimSpace(s) != "" {
			kws = append(kws, strings.TrimSpace(s))
		}
	}
	return models.Enrichment{Summary: strings.TrimSpace(reply.Summary), Keywords: kws}, nil
}

func placeholderEnrichment() models.Enrichment {
	return models.Enrichment{Summary: "", Keywords: []string{}}
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
