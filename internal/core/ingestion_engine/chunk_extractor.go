package ingestion_engine

import (
	"fmt"
	"regexp"
	"strings"
)

// Chunker splits normalized text into ordered, overlapping chunks.
type Chunker interface {
	Chunk(text string) ([]string, error)
}

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

const segmentSep = "\n\n"

// SemanticChunker prefers paragraph boundaries and only slices inside a paragraph
// when the paragraph alone is larger than maxSize. Sizes are counted in runes.
type SemanticChunker struct {
	maxSize int
	overlap int
}

func NewSemanticChunker(maxSize, overlap int) (*SemanticChunker, error) {
	if maxSize <= 0 || overlap < 0 || overlap >= maxSize {
		return nil, fmt.Errorf("%w: max=%d overlap=%d", ErrInvalidChunker, maxSize, overlap)
	}
	return &SemanticChunker{maxSize: maxSize, overlap: overlap}, nil
}

func (c *SemanticChunker) Chunk(text string) ([]string, error) {
	segments := splitSegments(text)
	if len(segments) == 0 {
		return nil, nil
	}

	var (
		chunks  []string
		current []rune
	)
	flush := func() {
		if t := strings.TrimSpace(string(current)); t != "" {
			chunks = append(chunks, t)
		}
		current = nil
	}

	for _, seg := range segments {
		s := []rune(seg)

		if len(s) > c.maxSize {
			flush()
			chunks = append(chunks, c.window(s)...)
			continue
		}

		sep := 0
		if len(current) > 0 {
			sep = len(segmentSep)
		}
		if len(current)+sep+len(s) <= c.maxSize {
			if sep > 0 {
				current = append(current, []rune(segmentSep)...)
			}
			current = append(current, s...)
			continue
		}

		prev := current
		flush()
		current = append(c.seed(prev, len(s)), s...)
	}
	flush()

	return chunks, nil
}

// seed returns the tail of the flushed chunk that starts the next one, shortened
// so that seed, separator and the next segment still fit in maxSize.
func (c *SemanticChunker) seed(prev []rune, nextLen int) []rune {
	n := c.overlap
	if room := c.maxSize - nextLen - len(segmentSep); room < n {
		n = room
	}
	if n <= 0 || len(prev) == 0 {
		return nil
	}
	if n > len(prev) {
		n = len(prev)
	}
	tail := strings.TrimSpace(string(prev[len(prev)-n:]))
	if tail == "" {
		return nil
	}
	return []rune(tail + segmentSep)
}

// window slices one oversized segment into maxSize windows whose starts advance by
// maxSize-overlap. It stops once the rest is within one overlap of the end.
func (c *SemanticChunker) window(s []rune) []string {
	step := c.maxSize - c.overlap
	var out []string
	for start := 0; start < len(s); start += step {
		end := start + c.maxSize
		if end > len(s) {
			end = len(s)
		}
		out = append(out, string(s[start:end]))
		if start+step+c.overlap >= len(s) {
			break
		}
	}
	return out
}

// splitSegments splits on blank lines, or on single newlines when the text has
// at most one paragraph.
func splitSegments(text string) []string {
	segs := nonEmptyTrimmed(paragraphBreak.Split(text, -1))
	if len(segs) <= 1 {
		segs = nonEmptyTrimmed(strings.Split(text, "\n"))
	}
	return segs
}

func nonEmptyTrimmed(parts []string) []string {
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
