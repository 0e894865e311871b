package llm

import (
	"strings"

	"github.com/google/generative-ai-go/genai"
)

// generation is the part of a model response the service cares about.
// Missing candidates or non-text parts decode to an empty Text.
type generation struct {
	Text         string
	FinishReason string
}

func decodeGeneration(resp *genai.GenerateContentResponse) generation {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return generation{}
	}
	cand := resp.Candidates[0]

	var b strings.Builder
	for _, p := range cand.Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return generation{Text: b.String(), FinishReason: cand.FinishReason.String()}
}
