package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"
)

const DefaultBatchSize = 100

type Metadata struct {
	DocumentID  string `json:"document_id"`
	PageNumber  int    `json:"page_number"`
	Text        string `json:"text"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
}

type Record struct {
	ID       string
	Values   []float32
	Metadata Metadata
}

// Match is one query hit. Score is cosine similarity, higher is closer.
type Match struct {
	ID         string  `json:"id"`
	Score      float64 `json:"score"`
	DocumentID string  `json:"document_id"`
	PageNumber int     `json:"page_number"`
	Text       string  `json:"text"`
}

// Filter narrows a query. An empty DocumentID matches every document.
type Filter struct {
	DocumentID string
}

type Index interface {
	// Upsert is idempotent per record id. On failure the returned error is a
	// *PartialWriteError carrying how many records were written first.
	Upsert(ctx context.Context, records []Record) error
	Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error)
	DeleteByDocument(ctx context.Context, documentID string) error
}

// RecordID derives the stable id of a chunk, so re-ingesting a document
// overwrites its previous records.
func RecordID(documentID string, pageNumber, chunkIndex int) string {
	return fmt.Sprintf("%s:%d:%d", documentID, pageNumber, chunkIndex)
}

type PartialWriteError struct {
	Written int
	Total   int
	Err     error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("upsert stopped after %d of %d records: %v", e.Written, e.Total, e.Err)
}

func (e *PartialWriteError) Unwrap() error {
	return e.Err
}

// writeBatches calls write on consecutive batches and stops at the first
// failure, reporting how many records made it.
func writeBatches(ctx context.Context, records []Record, batchSize int, write func(context.Context, []Record) error) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	written := 0
	for start := 0; start < len(records); start += batchSize {
		end := min(start+batchSize, len(records))
		if err := ctx.Err(); err != nil {
			return &PartialWriteError{Written: written, Total: len(records), Err: err}
		}
		if err := write(ctx, records[start:end]); err != nil {
			return &PartialWriteError{Written: written, Total: len(records), Err: err}
		}
		written = end
	}
	return nil
}

func sortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
