package pdfextract

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// Fragment is one positioned run of text. PDF coordinates grow upwards,
// so a larger Y is higher on the page.
type Fragment struct {
	X        float64
	Y        float64
	W        float64
	FontSize float64
	Text     string
}

var (
	sentenceBreak  = regexp.MustCompile(`([.!?])[ \t]*\n`)
	excessNewlines = regexp.MustCompile(`\n{3,}`)
)

type line struct {
	key       float64
	fragments []Fragment
}

// BuildPageText groups fragments into lines, orders them top to bottom
// and restores paragraph breaks after sentence-ending punctuation.
func BuildPageText(fragments []Fragment, tolerance float64) string {
	if tolerance <= 0 {
		tolerance = DefaultLineTolerance
	}

	byKey := make(map[float64]*line)
	for _, f := range fragments {
		if f.Text == "" {
			continue
		}
		key := math.Round(f.Y / tolerance)
		l, ok := byKey[key]
		if !ok {
			l = &line{key: key}
			byKey[key] = l
		}
		l.fragments = append(l.fragments, f)
	}

	lines := make([]*line, 0, len(byKey))
	for _, l := range byKey {
		lines = append(lines, l)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].key > lines[j].key })

	rendered := make([]string, 0, len(lines))
	for _, l := range lines {
		text := joinLine(l.fragments)
		if text == "" {
			continue
		}
		rendered = append(rendered, text)
	}

	text := strings.Join(rendered, "\n")
	text = sentenceBreak.ReplaceAllString(text, "$1\n\n")
	text = excessNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// joinLine orders a line left to right. Runs that touch horizontally are
// parts of one word and are glued; everything else is separated by a
// single space.
func joinLine(fragments []Fragment) string {
	sort.SliceStable(fragments, func(i, j int) bool { return fragments[i].X < fragments[j].X })

	var b strings.Builder
	var prev *Fragment
	for i := range fragments {
		f := &fragments[i]
		s := strings.TrimSpace(f.Text)
		if s == "" {
			// a blank glyph still separates words
			prev = nil
			continue
		}
		if b.Len() > 0 && !touches(prev, f) {
			b.WriteByte(' ')
		}
		b.WriteString(s)
		prev = f
	}
	return b.String()
}

func touches(prev, next *Fragment) bool {
	if prev == nil || prev.W <= 0 {
		return false
	}
	gap := next.X - (prev.X + prev.W)
	slack := 0.15 * math.Max(prev.FontSize, 1)
	return gap <= slack
}
