package rag

import (
	"context"
	"fmt"
	"time"

	einoEmbedding "github.com/cloudwego/eino/components/embedding"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"pdfchat/internal/ai"
)

const (
	defaultEmbedBatchSize   = 100
	defaultEmbedConcurrency = 4
	defaultEmbedTimeout     = 30 * time.Second
)

type EmbedderOptions struct {
	BatchSize   int
	Concurrency int
	// RequestsPerSecond paces provider calls; zero disables pacing.
	RequestsPerSecond float64
	Timeout           time.Duration
}

// Embedder batches texts through an embedding provider. Results always
// line up with the input: result[i] is the vector of texts[i].
type Embedder struct {
	provider einoEmbedding.Embedder
	opts     EmbedderOptions
	limiter  *rate.Limiter
}

func NewEmbedder(provider einoEmbedding.Embedder, opts EmbedderOptions) *Embedder {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultEmbedBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultEmbedConcurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultEmbedTimeout
	}
	e := &Embedder{provider: provider, opts: opts}
	if opts.RequestsPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return e
}

// Embed returns one vector per text. Any failed batch fails the whole call;
// no partial result is returned.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)

	for start := 0; start < len(texts); start += e.opts.BatchSize {
		end := min(start+e.opts.BatchSize, len(texts))
		g.Go(func() error {
			vectors, err := e.embedBatch(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
			}
			// each goroutine owns a disjoint range of out
			copy(out[start:end], vectors)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// EmbedQuery embeds a single text.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *Embedder) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, ai.WrapProviderError(ai.ProviderEmbedding, "embed", err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	raw, err := e.provider.EmbedStrings(callCtx, batch)
	if err != nil {
		return nil, ai.WrapProviderError(ai.ProviderEmbedding, "embed", err)
	}
	if len(raw) != len(batch) {
		return nil, ai.WrapProviderError(ai.ProviderEmbedding, "embed",
			fmt.Errorf("provider returned %d vectors for %d inputs", len(raw), len(batch)))
	}

	vectors := make([][]float32, len(raw))
	for i, v := range raw {
		if len(v) == 0 {
			return nil, ai.WrapProviderError(ai.ProviderEmbedding, "embed",
				fmt.Errorf("empty vector at position %d", i))
		}
		vec := make([]float32, len(v))
		for j, f := range v {
			vec[j] = float32(f)
		}
		vectors[i] = vec
	}
	return vectors, nil
}
