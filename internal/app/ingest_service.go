package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"pdfchat/internal/ai"
	"pdfchat/internal/model"
	"pdfchat/internal/pkg/pdfextract"
	"pdfchat/internal/rag"
	"pdfchat/internal/vectorindex"
)

const previewRunes = 200

type TextEmbedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type DocumentStore interface {
	Upsert(ctx context.Context, doc *model.Document) error
	Get(ctx context.Context, id string) (*model.Document, error)
	List(ctx context.Context, userID string) ([]model.Document, error)
	Delete(ctx context.Context, id string) error
}

type IngestOptions struct {
	Chunking rag.ChunkOptions
	PDF      pdfextract.Options
}

type IngestService struct {
	embedder TextEmbedder
	index    vectorindex.Index
	docs     DocumentStore
	opts     IngestOptions

	extract func([]byte, pdfextract.Options) ([]pdfextract.Page, error)
}

func NewIngestService(embedder TextEmbedder, index vectorindex.Index, docs DocumentStore, opts IngestOptions) *IngestService {
	return &IngestService{
		embedder: embedder,
		index:    index,
		docs:     docs,
		opts:     opts,
		extract:  pdfextract.Extract,
	}
}

type IngestInput struct {
	DocumentID string
	Name       string
	Data       []byte
	UserID     string
}

type IngestResult struct {
	DocumentID string `json:"documentId"`
	Pages      int    `json:"pages"`
	Chunks     int    `json:"chunks"`
	Preview    string `json:"preview"`
}

// Ingest extracts, chunks, embeds and indexes one PDF. Nothing is written
// to the index unless every chunk was embedded.
func (s *IngestService) Ingest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	if len(input.Data) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrMalformedInput)
	}
	docID := strings.TrimSpace(input.DocumentID)
	if docID == "" {
		docID = uuid.NewString()
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = "Untitled"
	}

	pages, err := s.extract(input.Data, s.opts.PDF)
	if err != nil {
		if errors.Is(err, pdfextract.ErrMalformedPDF) || errors.Is(err, pdfextract.ErrNoText) {
			return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
		return nil, fmt.Errorf("extract pdf failed: %w", err)
	}

	chunks := rag.ChunkPages(docID, pages, s.opts.Chunking)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no text content extracted from pdf", ErrMalformedInput)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		log.Printf("ingest %s: embedding %d chunks failed: %v", docID, len(chunks), err)
		return nil, err
	}

	records := make([]vectorindex.Record, len(chunks))
	for i, c := range chunks {
		records[i] = vectorindex.Record{
			ID:     vectorindex.RecordID(docID, c.PageNumber, c.ChunkIndex),
			Values: vectors[i],
			Metadata: vectorindex.Metadata{
				DocumentID:  docID,
				PageNumber:  c.PageNumber,
				Text:        c.Text,
				ChunkIndex:  c.ChunkIndex,
				TotalChunks: c.TotalChunks,
			},
		}
	}
	if err := s.index.Upsert(ctx, records); err != nil {
		log.Printf("ingest %s: upsert failed: %v", docID, err)
		var pw *vectorindex.PartialWriteError
		if errors.As(err, &pw) && pw.Written > 0 {
			return nil, &PartialIngestionError{
				DocumentID: docID,
				Succeeded:  pw.Written,
				Total:      len(records),
				Err:        ai.WrapProviderError(ai.ProviderIndex, "upsert", pw.Err),
			}
		}
		return nil, ai.WrapProviderError(ai.ProviderIndex, "upsert", err)
	}

	if err := s.docs.Upsert(ctx, &model.Document{
		ID:     docID,
		UserID: input.UserID,
		Name:   name,
		Pages:  len(pages),
		Chunks: len(chunks),
	}); err != nil {
		return nil, err
	}

	log.Printf("ingest %s: %d pages, %d chunks", docID, len(pages), len(chunks))
	return &IngestResult{
		DocumentID: docID,
		Pages:      len(pages),
		Chunks:     len(chunks),
		Preview:    preview(pages[0].Text),
	}, nil
}

func (s *IngestService) List(ctx context.Context, userID string) ([]model.Document, error) {
	return s.docs.List(ctx, userID)
}

// Delete removes the document's vectors first, then its row.
func (s *IngestService) Delete(ctx context.Context, documentID string) error {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return ErrInvalidInput
	}
	doc, err := s.docs.Get(ctx, documentID)
	if err != nil {
		return err
	}
	if doc == nil {
		return ErrNotFound
	}
	if err := s.index.DeleteByDocument(ctx, documentID); err != nil {
		return ai.WrapProviderError(ai.ProviderIndex, "delete", err)
	}
	return s.docs.Delete(ctx, documentID)
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) > previewRunes {
		runes = runes[:previewRunes]
	}
	return string(runes)
}
