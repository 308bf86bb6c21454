package rag

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfchat/internal/pkg/pdfextract"
)

// sentences builds n characters of text made of 51-character sentences.
func sentences(n int) string {
	var b strings.Builder
	for i := 0; b.Len() < n; i++ {
		fmt.Fprintf(&b, "Sentence %04d talks about retrieval and grounding. ", i)
	}
	s := []byte(b.String()[:n])
	if s[n-1] == ' ' {
		s[n-1] = 'x'
	}
	return string(s)
}

func pageChunks(chunks []Chunk, page int) []Chunk {
	var out []Chunk
	for _, c := range chunks {
		if c.PageNumber == page {
			out = append(out, c)
		}
	}
	return out
}

func TestChunkPages_ShortPageIsSingleChunk(t *testing.T) {
	pages := []pdfextract.Page{{PageNumber: 3, Text: "  Tiny page.  "}}

	chunks := ChunkPages("doc-1", pages, DefaultChunkOptions())
	require.Len(t, chunks, 1)

	c := chunks[0]
	assert.Equal(t, "doc-1", c.DocumentID)
	assert.Equal(t, 3, c.PageNumber)
	assert.Equal(t, "Tiny page.", c.Text)
	assert.Equal(t, 0, c.StartOffset)
	assert.Equal(t, len("Tiny page."), c.EndOffset)
	assert.True(t, c.IsStartOfPage)
	assert.True(t, c.IsEndOfPage)
	assert.Equal(t, 0, c.ChunkIndex)
	assert.Equal(t, 1, c.TotalChunks)
}

func TestChunkPages_BlankPageContributesNothing(t *testing.T) {
	pages := []pdfextract.Page{{PageNumber: 1, Text: " \n\t "}}
	assert.Empty(t, ChunkPages("doc", pages, DefaultChunkOptions()))
}

func TestChunkPages_TwoPageDocument(t *testing.T) {
	pages := []pdfextract.Page{
		{PageNumber: 1, Text: sentences(2600)},
		{PageNumber: 2, Text: sentences(100)},
	}
	opts := ChunkOptions{MaxChunkSize: 1500, OverlapSize: 250, MinChunkSize: 250}

	chunks := ChunkPages("doc", pages, opts)

	first := pageChunks(chunks, 1)
	require.Len(t, first, 2)
	assert.LessOrEqual(t, first[0].EndOffset, 1500)
	assert.True(t, strings.HasSuffix(first[0].Text, "grounding."), "first chunk should end on a sentence")
	assert.Equal(t, first[0].EndOffset-250, first[1].StartOffset)
	assert.True(t, first[0].IsStartOfPage)
	assert.False(t, first[0].IsEndOfPage)
	assert.False(t, first[1].IsStartOfPage)
	assert.True(t, first[1].IsEndOfPage)
	assert.Equal(t, 2, first[1].TotalChunks)

	second := pageChunks(chunks, 2)
	require.Len(t, second, 1)
	assert.Len(t, second[0].Text, 100)
	assert.True(t, second[0].IsStartOfPage && second[0].IsEndOfPage)
}

func TestChunkPages_ThreeThousandCharacters(t *testing.T) {
	// two windows of 1500 with a 250 overlap cover at most 2750 characters
	chunks := ChunkPages("doc", []pdfextract.Page{{PageNumber: 1, Text: sentences(3000)}}, DefaultChunkOptions())

	require.Len(t, chunks, 3)
	for i := 1; i < len(chunks); i++ {
		assert.Equal(t, 250, chunks[i-1].EndOffset-chunks[i].StartOffset)
	}
	assert.Equal(t, 3000, chunks[2].EndOffset)
}

func TestChunkPages_NoBoundaryMarkers(t *testing.T) {
	text := strings.Repeat("a", 4000)

	chunks := ChunkPages("doc", []pdfextract.Page{{PageNumber: 1, Text: text}}, DefaultChunkOptions())

	require.Len(t, chunks, 3)
	assert.Equal(t, []int{0, 1250, 2500}, []int{chunks[0].StartOffset, chunks[1].StartOffset, chunks[2].StartOffset})
	assert.Equal(t, 4000, chunks[2].EndOffset)
}

func TestChunkPages_SkipsBoundaryInsideOverlap(t *testing.T) {
	opts := ChunkOptions{MaxChunkSize: 100, OverlapSize: 30, MinChunkSize: 0}
	text := "Hi. " + strings.Repeat("a", 146)

	chunks := ChunkPages("doc", []pdfextract.Page{{PageNumber: 1, Text: text}}, opts)

	require.Len(t, chunks, 2)
	assert.Equal(t, 100, chunks[0].EndOffset, "the sentence end at offset 4 is too close to the start")
	assert.Equal(t, 70, chunks[1].StartOffset)
	assert.Equal(t, 150, chunks[1].EndOffset)
}

func TestChunkPages_TerminatesWithLargeOverlap(t *testing.T) {
	opts := ChunkOptions{MaxChunkSize: 10, OverlapSize: 9, MinChunkSize: 0}
	text := strings.Repeat("ab. ", 30)

	chunks := ChunkPages("doc", []pdfextract.Page{{PageNumber: 1, Text: text}}, opts)

	require.NotEmpty(t, chunks)
	assert.True(t, chunks[len(chunks)-1].IsEndOfPage)
	for i := 1; i < len(chunks); i++ {
		assert.Greater(t, chunks[i].StartOffset, chunks[i-1].StartOffset)
	}
}

func TestChunkPages_DropsShortInteriorChunks(t *testing.T) {
	opts := ChunkOptions{MaxChunkSize: 40, OverlapSize: 5, MinChunkSize: 30}
	// the second window is mostly whitespace
	text := strings.Repeat("x", 38) + ". " + strings.Repeat(" ", 30) + "y. " + strings.Repeat("z", 60)

	chunks := ChunkPages("doc", []pdfextract.Page{{PageNumber: 1, Text: text}}, opts)
	for _, c := range chunks {
		if !c.IsEndOfPage {
			assert.GreaterOrEqual(t, len([]rune(c.Text)), 30)
		}
	}
}

func TestChunkPages_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	words := []string{"alpha", "beta", "gamma", "delta", "épsilon", "zeta", "eta", "théta"}
	seps := []string{" ", " ", " ", ". ", "? ", "! ", "\n", "\n\n", ". \n"}
	opts := ChunkOptions{MaxChunkSize: 300, OverlapSize: 50, MinChunkSize: 20}

	for iter := 0; iter < 200; iter++ {
		var b strings.Builder
		target := rng.Intn(4000)
		for b.Len() < target {
			b.WriteString(words[rng.Intn(len(words))])
			b.WriteString(seps[rng.Intn(len(seps))])
		}
		raw := b.String()
		trimmed := []rune(strings.TrimSpace(raw))

		chunks := ChunkPages("doc", []pdfextract.Page{{PageNumber: 1, Text: raw}}, opts)
		if len(trimmed) == 0 {
			assert.Empty(t, chunks)
			continue
		}
		require.NotEmpty(t, chunks)

		var rebuilt strings.Builder
		prevEnd := 0
		for i, c := range chunks {
			assert.LessOrEqual(t, c.EndOffset-c.StartOffset, opts.MaxChunkSize)
			assert.LessOrEqual(t, len([]rune(c.Text)), opts.MaxChunkSize)
			assert.Equal(t, strings.TrimSpace(string(trimmed[c.StartOffset:c.EndOffset])), c.Text)
			if i > 0 {
				prev := chunks[i-1]
				assert.GreaterOrEqual(t, c.StartOffset, prev.StartOffset)
				assert.Equal(t, opts.OverlapSize, prev.EndOffset-c.StartOffset)
			}
			rebuilt.WriteString(string(trimmed[max(c.StartOffset, prevEnd):c.EndOffset]))
			prevEnd = c.EndOffset
		}
		assert.Equal(t, string(trimmed), rebuilt.String(), "iteration %d", iter)
	}
}
