package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"pdfchat/internal/vectorindex"
)

type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type RetrieverOptions struct {
	TopK       int
	MaxResults int
	// MinScore is exclusive: a passage must score above it to be kept.
	MinScore float64
}

func DefaultRetrieverOptions() RetrieverOptions {
	return RetrieverOptions{TopK: 10, MaxResults: 7, MinScore: 0.3}
}

// Passage is a retrieved chunk ready to be cited.
type Passage struct {
	Text       string  `json:"text"`
	Source     string  `json:"source"`
	PageNumber int     `json:"page_number"`
	DocumentID string  `json:"document_id"`
	Score      float64 `json:"score"`
}

type Retriever struct {
	embedder QueryEmbedder
	index    vectorindex.Index
	opts     RetrieverOptions
}

func NewRetriever(embedder QueryEmbedder, index vectorindex.Index, opts RetrieverOptions) *Retriever {
	def := DefaultRetrieverOptions()
	if opts.TopK <= 0 {
		opts.TopK = def.TopK
	}
	return &Retriever{embedder: embedder, index: index, opts: opts}
}

// Retrieve returns the passages that clear the relevance threshold, best
// first. No match is not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, filter vectorindex.Filter) ([]Passage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	matches, err := r.index.Query(ctx, vector, r.opts.TopK, filter)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	// not every index keeps order under a filter
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if r.opts.MaxResults > 0 && len(matches) > r.opts.MaxResults {
		matches = matches[:r.opts.MaxResults]
	}

	passages := make([]Passage, 0, len(matches))
	for _, m := range matches {
		if m.Score <= r.opts.MinScore {
			continue
		}
		passages = append(passages, Passage{
			Text:       m.Text,
			Source:     fmt.Sprintf("Page %d", m.PageNumber),
			PageNumber: m.PageNumber,
			DocumentID: m.DocumentID,
			Score:      m.Score,
		})
	}
	return passages, nil
}

// FormatContext renders passages as "[Source: Page N] text" blocks separated
// by blank lines. No passages gives an empty string.
func FormatContext(passages []Passage) string {
	blocks := make([]string, 0, len(passages))
	for _, p := range passages {
		blocks = append(blocks, fmt.Sprintf("[Source: %s] %s", p.Source, p.Text))
	}
	return strings.Join(blocks, "\n\n")
}

// Context retrieves and formats in one step.
func (r *Retriever) Context(ctx context.Context, query string, filter vectorindex.Filter) (string, []Passage, error) {
	passages, err := r.Retrieve(ctx, query, filter)
	if err != nil {
		return "", nil, err
	}
	return FormatContext(passages), passages, nil
}
