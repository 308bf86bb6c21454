package rag

import (
	"strings"

	"pdfchat/internal/pkg/pdfextract"
)

type ChunkOptions struct {
	MaxChunkSize int
	OverlapSize  int
	MinChunkSize int
}

func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{
		MaxChunkSize: 1500,
		OverlapSize:  250,
		MinChunkSize: 250,
	}
}

// Chunk is a slice of one page. Offsets count characters (runes) into the
// trimmed page text and describe the window before trimming, so consecutive
// chunks of a page overlap by exactly OverlapSize.
type Chunk struct {
	DocumentID    string `json:"document_id"`
	PageNumber    int    `json:"page_number"`
	ChunkIndex    int    `json:"chunk_index"`
	TotalChunks   int    `json:"total_chunks"`
	Text          string `json:"text"`
	StartOffset   int    `json:"start_offset"`
	EndOffset     int    `json:"end_offset"`
	IsStartOfPage bool   `json:"is_start_of_page"`
	IsEndOfPage   bool   `json:"is_end_of_page"`
}

// boundaryMarkers are tried in order; the first one found in the window wins.
var boundaryMarkers = [][]rune{
	[]rune(". "),
	[]rune("? "),
	[]rune("! "),
	[]rune("\n\n"),
	[]rune(". \n"),
	[]rune("\n"),
}

// ChunkPages splits every page independently. Chunks never span pages.
func ChunkPages(documentID string, pages []pdfextract.Page, opts ChunkOptions) []Chunk {
	opts = opts.normalized()

	var out []Chunk
	for _, page := range pages {
		pageChunks := chunkPage(page.Text, opts)
		for i := range pageChunks {
			pageChunks[i].DocumentID = documentID
			pageChunks[i].PageNumber = page.PageNumber
			pageChunks[i].ChunkIndex = i
			pageChunks[i].TotalChunks = len(pageChunks)
		}
		out = append(out, pageChunks...)
	}
	return out
}

func (o ChunkOptions) normalized() ChunkOptions {
	def := DefaultChunkOptions()
	if o.MaxChunkSize <= 0 {
		o.MaxChunkSize = def.MaxChunkSize
	}
	if o.OverlapSize < 0 || o.OverlapSize >= o.MaxChunkSize {
		o.OverlapSize = o.MaxChunkSize / 6
	}
	if o.MinChunkSize < 0 {
		o.MinChunkSize = 0
	}
	return o
}

func chunkPage(raw string, opts ChunkOptions) []Chunk {
	text := []rune(strings.TrimSpace(raw))
	n := len(text)
	if n == 0 {
		return nil
	}
	if n <= opts.MaxChunkSize {
		return []Chunk{{
			Text:          string(text),
			StartOffset:   0,
			EndOffset:     n,
			IsStartOfPage: true,
			IsEndOfPage:   true,
		}}
	}

	var chunks []Chunk
	start := 0
	for start < n {
		end := start + opts.MaxChunkSize
		if end >= n {
			end = n
		} else {
			end = snapToBoundary(text, start, end, opts.OverlapSize)
		}

		body := strings.TrimSpace(string(text[start:end]))
		// the tail of a page is kept even when short
		if body != "" && (end == n || len([]rune(body)) >= opts.MinChunkSize) {
			chunks = append(chunks, Chunk{
				Text:          body,
				StartOffset:   start,
				EndOffset:     end,
				IsStartOfPage: start == 0,
				IsEndOfPage:   end == n,
			})
		}
		if end == n {
			break
		}
		start = max(start+1, end-opts.OverlapSize)
	}
	return chunks
}

// snapToBoundary moves end back to just after the last boundary marker in
// text[start:end]. This is stricter than taking any boundary after start:
// a boundary within the first overlap characters is skipped, because the
// next window would then start at or before this one.
func snapToBoundary(text []rune, start, end, overlap int) int {
	window := text[start:end]
	for _, marker := range boundaryMarkers {
		idx := lastIndex(window, marker)
		if idx < 0 {
			continue
		}
		boundary := start + idx + len(marker)
		if boundary > start+overlap {
			return boundary
		}
	}
	return end
}

func lastIndex(haystack, needle []rune) int {
	for i := len(haystack) - len(needle); i >= 0; i-- {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
