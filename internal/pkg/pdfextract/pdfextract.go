package pdfextract

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"
)

var (
	ErrMalformedPDF = errors.New("malformed pdf")
	ErrNoText       = errors.New("no text content extracted from pdf")
)

const DefaultLineTolerance = 2.0

// Page is the plain text of one PDF page. Numbers are 1-based.
type Page struct {
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
}

type Options struct {
	// LineTolerance is the vertical distance, in PDF units, under which two
	// fragments are placed on the same line.
	LineTolerance float64
}

// Extract decodes data and returns the non-empty pages in page order.
// Pages without text are dropped; a document with no text at all fails
// with ErrNoText.
func Extract(data []byte, opts Options) (pages []Page, err error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrMalformedPDF)
	}
	tolerance := opts.LineTolerance
	if tolerance <= 0 {
		tolerance = DefaultLineTolerance
	}

	// The decoder panics on some hostile inputs.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: %v", ErrMalformedPDF, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPDF, err)
	}

	total := reader.NumPage()
	for i := 1; i <= total; i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		content := p.Content()
		fragments := make([]Fragment, 0, len(content.Text))
		for _, t := range content.Text {
			fragments = append(fragments, Fragment{
				X:        t.X,
				Y:        t.Y,
				W:        t.W,
				FontSize: t.FontSize,
				Text:     t.S,
			})
		}
		text := BuildPageText(fragments, tolerance)
		if text == "" {
			continue
		}
		pages = append(pages, Page{PageNumber: i, Text: text})
	}

	if len(pages) == 0 {
		return nil, ErrNoText
	}
	return pages, nil
}
