package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/markdave123-py/Contexta-knowledge/internal/core"
)

// BatchEmbedder wraps an EmbeddingProvider with a client-side deadline and checks
// that the provider returned one vector per input, in order.
type BatchEmbedder struct {
	provider core.EmbeddingProvider
	timeout  time.Duration
}

func NewBatchEmbedder(provider core.EmbeddingProvider, timeout time.Duration) *BatchEmbedder {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &BatchEmbedder{provider: provider, timeout: timeout}
}

func (b *BatchEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	ectx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	type result struct {
		vecs [][]float32
		err  error
	}
	done := make(chan result, 1)
	started := time.Now()
	go func() {
		v, err := b.provider.EmbedTexts(ectx, texts)
		done <- result{v, err}
	}()

	// providers that ignore ctx still cannot hold the batch past the deadline
	var vecs [][]float32
	select {
	case <-ectx.Done():
		embedLatency.Observe(time.Since(started).Seconds())
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w after %s", ErrEmbeddingTimeout, b.timeout)
	case r := <-done:
		embedLatency.Observe(time.Since(started).Seconds())
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, fmt.Errorf("%w after %s", ErrEmbeddingTimeout, b.timeout)
			}
			return nil, fmt.Errorf("embed batch: %w", r.err)
		}
		vecs = r.vecs
	}

	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embed batch: got %d vectors for %d texts", len(vecs), len(texts))
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return nil, fmt.Errorf("embed batch: empty vector at position %d", i)
		}
	}
	return vecs, nil
}
