package pdfextract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPageText_GroupsByTolerance(t *testing.T) {
	fragments := []Fragment{
		{X: 120, Y: 700.4, Text: "world"},
		{X: 10, Y: 700.1, Text: "hello"},
		{X: 10, Y: 680, Text: "second line"},
	}

	got := BuildPageText(fragments, 2)
	assert.Equal(t, "hello world\nsecond line", got)
}

func TestBuildPageText_TopToBottom(t *testing.T) {
	fragments := []Fragment{
		{X: 10, Y: 100, Text: "bottom"},
		{X: 10, Y: 500, Text: "top"},
		{X: 10, Y: 300, Text: "middle"},
	}

	assert.Equal(t, "top\nmiddle\nbottom", BuildPageText(fragments, 2))
}

func TestBuildPageText_GluesTouchingRuns(t *testing.T) {
	fragments := []Fragment{
		{X: 10, Y: 100, W: 5, FontSize: 10, Text: "H"},
		{X: 15, Y: 100, W: 5, FontSize: 10, Text: "i"},
		{X: 40, Y: 100, W: 20, FontSize: 10, Text: "there"},
	}

	assert.Equal(t, "Hi there", BuildPageText(fragments, 2))
}

func TestBuildPageText_ParagraphRecovery(t *testing.T) {
	fragments := []Fragment{
		{X: 10, Y: 500, Text: "First sentence."},
		{X: 10, Y: 480, Text: "Next paragraph starts"},
		{X: 10, Y: 460, Text: "and continues here!"},
		{X: 10, Y: 440, Text: "Done?"},
	}

	got := BuildPageText(fragments, 2)
	assert.Equal(t, "First sentence.\n\nNext paragraph starts\nand continues here!\n\nDone?", got)
	assert.NotContains(t, got, "\n\n\n")
}

func TestBuildPageText_Empty(t *testing.T) {
	assert.Equal(t, "", BuildPageText(nil, 2))
	assert.Equal(t, "", BuildPageText([]Fragment{{X: 1, Y: 1, Text: "   "}}, 2))
}

func TestExtract_MalformedInput(t *testing.T) {
	_, err := Extract(nil, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedPDF))

	_, err = Extract([]byte("definitely not a pdf"), Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedPDF))
}
