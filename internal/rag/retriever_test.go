package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfchat/internal/ai"
	"pdfchat/internal/vectorindex"
)

type stubQueryEmbedder struct {
	err error
}

func (s stubQueryEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []float32{1, 0}, nil
}

// stubIndex returns canned matches in whatever order they were given.
type stubIndex struct {
	matches []vectorindex.Match
	filter  vectorindex.Filter
	err     error
}

func (s *stubIndex) Upsert(context.Context, []vectorindex.Record) error { return nil }

func (s *stubIndex) Query(_ context.Context, _ []float32, _ int, filter vectorindex.Filter) ([]vectorindex.Match, error) {
	s.filter = filter
	if s.err != nil {
		return nil, s.err
	}
	out := make([]vectorindex.Match, len(s.matches))
	copy(out, s.matches)
	return out, nil
}

func (s *stubIndex) DeleteByDocument(context.Context, string) error { return nil }

func TestRetriever_Retrieve_SortsCapsAndThresholds(t *testing.T) {
	idx := &stubIndex{matches: []vectorindex.Match{
		{Score: 0.31, PageNumber: 9, Text: "dropped by cap"},
		{Score: 0.9, PageNumber: 1, Text: "best"},
		{Score: 0.3, PageNumber: 2, Text: "at threshold"},
		{Score: 0.8, PageNumber: 3, Text: "good"},
		{Score: 0.1, PageNumber: 4, Text: "noise"},
		{Score: 0.7, PageNumber: 5, Text: "ok"},
		{Score: 0.65, PageNumber: 6, Text: "fine"},
		{Score: 0.6, PageNumber: 7, Text: "fair"},
		{Score: 0.55, PageNumber: 8, Text: "meh"},
		{Score: 0.5, PageNumber: 10, Text: "last kept"},
	}}
	r := NewRetriever(stubQueryEmbedder{}, idx, DefaultRetrieverOptions())

	passages, err := r.Retrieve(context.Background(), "question", vectorindex.Filter{DocumentID: "doc"})
	require.NoError(t, err)

	assert.Equal(t, "doc", idx.filter.DocumentID)
	require.Len(t, passages, 7)
	for i := 1; i < len(passages); i++ {
		assert.GreaterOrEqual(t, passages[i-1].Score, passages[i].Score)
	}
	for _, p := range passages {
		assert.Greater(t, p.Score, 0.3)
		assert.NotEqual(t, "dropped by cap", p.Text)
	}
	assert.Equal(t, "Page 1", passages[0].Source)
}

func TestRetriever_Context_NothingRelevant(t *testing.T) {
	idx := &stubIndex{matches: []vectorindex.Match{
		{Score: 0.2, PageNumber: 1, Text: "unrelated"},
		{Score: 0.29, PageNumber: 2, Text: "also unrelated"},
	}}
	r := NewRetriever(stubQueryEmbedder{}, idx, DefaultRetrieverOptions())

	block, passages, err := r.Context(context.Background(), "what about llamas?", vectorindex.Filter{})
	require.NoError(t, err)
	assert.Empty(t, passages)
	assert.Equal(t, "", block)
}

func TestRetriever_Retrieve_EmptyQuery(t *testing.T) {
	idx := &stubIndex{err: errors.New("must not be called")}
	passages, err := NewRetriever(stubQueryEmbedder{}, idx, RetrieverOptions{}).Retrieve(context.Background(), "   ", vectorindex.Filter{})
	require.NoError(t, err)
	assert.Empty(t, passages)
}

func TestRetriever_Retrieve_PropagatesProviderErrors(t *testing.T) {
	embedErr := ai.WrapProviderError(ai.ProviderEmbedding, "embed", errors.New("down"))
	_, err := NewRetriever(stubQueryEmbedder{err: embedErr}, &stubIndex{}, RetrieverOptions{}).
		Retrieve(context.Background(), "q", vectorindex.Filter{})
	pe, ok := ai.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, ai.ProviderEmbedding, pe.Kind)

	indexErr := ai.WrapProviderError(ai.ProviderIndex, "query", errors.New("down"))
	_, err = NewRetriever(stubQueryEmbedder{}, &stubIndex{err: indexErr}, RetrieverOptions{}).
		Retrieve(context.Background(), "q", vectorindex.Filter{})
	pe, ok = ai.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, ai.ProviderIndex, pe.Kind)
}

func TestFormatContext(t *testing.T) {
	got := FormatContext([]Passage{
		{Source: "Page 2", Text: "Second."},
		{Source: "Page 5", Text: "Fifth."},
	})
	assert.Equal(t, "[Source: Page 2] Second.\n\n[Source: Page 5] Fifth.", got)
	assert.Equal(t, 1, strings.Count(got, "\n\n"))
	assert.Equal(t, "", FormatContext(nil))
}

func TestRetriever_WithMemoryIndex(t *testing.T) {
	idx := vectorindex.NewMemoryIndex(10)
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, []vectorindex.Record{
		{ID: "d:1:0", Values: []float32{1, 0}, Metadata: vectorindex.Metadata{DocumentID: "d", PageNumber: 1, Text: "match"}},
		{ID: "d:2:0", Values: []float32{0, 1}, Metadata: vectorindex.Metadata{DocumentID: "d", PageNumber: 2, Text: "orthogonal"}},
	}))

	block, _, err := NewRetriever(stubQueryEmbedder{}, idx, DefaultRetrieverOptions()).Context(ctx, "q", vectorindex.Filter{})
	require.NoError(t, err)
	assert.Equal(t, "[Source: Page 1] match", block)
}
