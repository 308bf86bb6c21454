package rag

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"

	einoEmbedding "github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfchat/internal/ai"
)

// fakeEmbedder maps "t-<n>" to the vector {n, 1}.
type fakeEmbedder struct {
	mu      sync.Mutex
	batches []int
	failOn  string
	short   bool
}

func (f *fakeEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...einoEmbedding.Option) ([][]float64, error) {
	f.mu.Lock()
	f.batches = append(f.batches, len(texts))
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float64, 0, len(texts))
	for _, text := range texts {
		if f.failOn != "" && text == f.failOn {
			return nil, errors.New("upstream 500")
		}
		n, err := strconv.Atoi(strings.TrimPrefix(text, "t-"))
		if err != nil {
			n = len(text)
		}
		out = append(out, []float64{float64(n), 1})
	}
	if f.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

func inputs(n int) []string {
	texts := make([]string, n)
	for i := range texts {
		texts[i] = fmt.Sprintf("t-%d", i)
	}
	return texts
}

func TestEmbedder_Embed_PreservesOrder(t *testing.T) {
	for _, n := range []int{1, 99, 100, 101, 250} {
		t.Run(strconv.Itoa(n), func(t *testing.T) {
			provider := &fakeEmbedder{}
			e := NewEmbedder(provider, EmbedderOptions{BatchSize: 100, Concurrency: 3})

			vectors, err := e.Embed(context.Background(), inputs(n))
			require.NoError(t, err)
			require.Len(t, vectors, n)
			for i, v := range vectors {
				assert.Equal(t, float32(i), v[0])
			}

			expectedBatches := (n + 99) / 100
			assert.Len(t, provider.batches, expectedBatches)
			for _, size := range provider.batches {
				assert.LessOrEqual(t, size, 100)
			}
		})
	}
}

func TestEmbedder_Embed_Empty(t *testing.T) {
	provider := &fakeEmbedder{}
	vectors, err := NewEmbedder(provider, EmbedderOptions{}).Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
	assert.Empty(t, provider.batches)
}

func TestEmbedder_Embed_BatchFailureFailsWholeCall(t *testing.T) {
	provider := &fakeEmbedder{failOn: "t-150"}
	e := NewEmbedder(provider, EmbedderOptions{BatchSize: 100})

	vectors, err := e.Embed(context.Background(), inputs(250))
	require.Error(t, err)
	assert.Nil(t, vectors)

	pe, ok := ai.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, ai.ProviderEmbedding, pe.Kind)
}

func TestEmbedder_Embed_CountMismatch(t *testing.T) {
	e := NewEmbedder(&fakeEmbedder{short: true}, EmbedderOptions{})

	_, err := e.Embed(context.Background(), inputs(3))
	require.Error(t, err)
	_, ok := ai.AsProviderError(err)
	assert.True(t, ok)
}

func TestEmbedder_Embed_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEmbedder(&fakeEmbedder{}, EmbedderOptions{RequestsPerSecond: 1}).Embed(ctx, inputs(5))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmbedder_EmbedQuery(t *testing.T) {
	v, err := NewEmbedder(&fakeEmbedder{}, EmbedderOptions{}).EmbedQuery(context.Background(), "t-7")
	require.NoError(t, err)
	assert.Equal(t, []float32{7, 1}, v)
}
