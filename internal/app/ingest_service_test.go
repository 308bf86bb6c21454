package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfchat/internal/ai"
	"pdfchat/internal/model"
	"pdfchat/internal/pkg/pdfextract"
	"pdfchat/internal/rag"
	"pdfchat/internal/vectorindex"
)

type fakeTextEmbedder struct {
	err   error
	calls int
}

func (e *fakeTextEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, float32(i + 1)}
	}
	return out, nil
}

type fakeDocumentStore struct {
	docs map[string]*model.Document
}

func newFakeDocumentStore() *fakeDocumentStore {
	return &fakeDocumentStore{docs: map[string]*model.Document{}}
}

func (s *fakeDocumentStore) Upsert(_ context.Context, doc *model.Document) error {
	copied := *doc
	s.docs[doc.ID] = &copied
	return nil
}

func (s *fakeDocumentStore) Get(_ context.Context, id string) (*model.Document, error) {
	return s.docs[id], nil
}

func (s *fakeDocumentStore) List(_ context.Context, userID string) ([]model.Document, error) {
	var out []model.Document
	for _, d := range s.docs {
		if userID == "" || d.UserID == userID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *fakeDocumentStore) Delete(_ context.Context, id string) error {
	delete(s.docs, id)
	return nil
}

type failingIndex struct {
	*vectorindex.MemoryIndex
	err error
}

func (f *failingIndex) Upsert(_ context.Context, records []vectorindex.Record) error {
	return f.err
}

func sentenceText(n int) string {
	var b strings.Builder
	for b.Len() < n {
		b.WriteString("The quick brown fox jumps over the lazy dog again. ")
	}
	return strings.TrimSpace(b.String()[:n])
}

func newIngestFixture(index vectorindex.Index, embedder TextEmbedder, pages []pdfextract.Page, extractErr error) (*IngestService, *fakeDocumentStore) {
	docs := newFakeDocumentStore()
	svc := NewIngestService(embedder, index, docs, IngestOptions{Chunking: rag.DefaultChunkOptions()})
	svc.extract = func([]byte, pdfextract.Options) ([]pdfextract.Page, error) {
		return pages, extractErr
	}
	return svc, docs
}

func TestIngestService_Ingest(t *testing.T) {
	pages := []pdfextract.Page{
		{PageNumber: 1, Text: sentenceText(2600)},
		{PageNumber: 2, Text: sentenceText(100)},
	}
	index := vectorindex.NewMemoryIndex(100)
	svc, docs := newIngestFixture(index, &fakeTextEmbedder{}, pages, nil)

	res, err := svc.Ingest(context.Background(), IngestInput{
		DocumentID: "doc-1",
		Name:       "manual.pdf",
		Data:       []byte("%PDF"),
		UserID:     "u1",
	})
	require.NoError(t, err)
	assert.Equal(t, "doc-1", res.DocumentID)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, 3, res.Chunks)
	assert.Len(t, []rune(res.Preview), previewRunes)
	assert.Equal(t, 3, index.Len())

	stored := docs.docs["doc-1"]
	require.NotNil(t, stored)
	assert.Equal(t, "manual.pdf", stored.Name)
	assert.Equal(t, 3, stored.Chunks)

	_, err = svc.Ingest(context.Background(), IngestInput{DocumentID: "doc-1", Name: "manual.pdf", Data: []byte("%PDF")})
	require.NoError(t, err)
	assert.Equal(t, 3, index.Len(), "re-ingestion overwrites records")
}

func TestIngestService_Ingest_GeneratesID(t *testing.T) {
	pages := []pdfextract.Page{{PageNumber: 1, Text: "Short page."}}
	svc, _ := newIngestFixture(vectorindex.NewMemoryIndex(0), &fakeTextEmbedder{}, pages, nil)

	res, err := svc.Ingest(context.Background(), IngestInput{Data: []byte("%PDF")})
	require.NoError(t, err)
	assert.NotEmpty(t, res.DocumentID)
	assert.Equal(t, "Short page.", res.Preview)
}

func TestIngestService_Ingest_MalformedInput(t *testing.T) {
	tests := []struct {
		name       string
		data       []byte
		extractErr error
	}{
		{name: "empty file", data: nil},
		{name: "undecodable", data: []byte("junk"), extractErr: pdfextract.ErrMalformedPDF},
		{name: "no text", data: []byte("%PDF"), extractErr: pdfextract.ErrNoText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			embedder := &fakeTextEmbedder{}
			svc, _ := newIngestFixture(vectorindex.NewMemoryIndex(0), embedder, nil, tt.extractErr)
			_, err := svc.Ingest(context.Background(), IngestInput{Data: tt.data})
			assert.ErrorIs(t, err, ErrMalformedInput)
			assert.Equal(t, 0, embedder.calls)
		})
	}
}

func TestIngestService_Ingest_EmbeddingFailureWritesNothing(t *testing.T) {
	pages := []pdfextract.Page{{PageNumber: 1, Text: sentenceText(800)}}
	providerErr := ai.WrapProviderError(ai.ProviderEmbedding, "embed", errors.New("429"))
	index := vectorindex.NewMemoryIndex(0)
	svc, docs := newIngestFixture(index, &fakeTextEmbedder{err: providerErr}, pages, nil)

	_, err := svc.Ingest(context.Background(), IngestInput{DocumentID: "doc-2", Data: []byte("%PDF")})
	pe, ok := ai.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, ai.ProviderEmbedding, pe.Kind)
	assert.Equal(t, 0, index.Len())
	assert.Empty(t, docs.docs)
}

func TestIngestService_Ingest_PartialUpsert(t *testing.T) {
	pages := []pdfextract.Page{{PageNumber: 1, Text: sentenceText(800)}}
	index := &failingIndex{
		MemoryIndex: vectorindex.NewMemoryIndex(0),
		err:         &vectorindex.PartialWriteError{Written: 100, Total: 250, Err: errors.New("timeout")},
	}
	svc, docs := newIngestFixture(index, &fakeTextEmbedder{}, pages, nil)

	_, err := svc.Ingest(context.Background(), IngestInput{DocumentID: "doc-3", Data: []byte("%PDF")})
	var partial *PartialIngestionError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, 100, partial.Succeeded)
	pe, ok := ai.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, ai.ProviderIndex, pe.Kind)
	assert.Empty(t, docs.docs)

	index.err = &vectorindex.PartialWriteError{Written: 0, Total: 1, Err: errors.New("refused")}
	_, err = svc.Ingest(context.Background(), IngestInput{DocumentID: "doc-3", Data: []byte("%PDF")})
	assert.False(t, errors.As(err, &partial))
	_, ok = ai.AsProviderError(err)
	assert.True(t, ok)
}

func TestIngestService_Delete(t *testing.T) {
	pages := []pdfextract.Page{{PageNumber: 1, Text: "Only page."}}
	index := vectorindex.NewMemoryIndex(0)
	svc, docs := newIngestFixture(index, &fakeTextEmbedder{}, pages, nil)

	_, err := svc.Ingest(context.Background(), IngestInput{DocumentID: "doc-4", Data: []byte("%PDF")})
	require.NoError(t, err)
	require.Equal(t, 1, index.Len())

	require.NoError(t, svc.Delete(context.Background(), "doc-4"))
	assert.Equal(t, 0, index.Len())
	assert.Empty(t, docs.docs)

	assert.ErrorIs(t, svc.Delete(context.Background(), "doc-4"), ErrNotFound)
	assert.ErrorIs(t, svc.Delete(context.Background(), " "), ErrInvalidInput)
}
