// Package chunker splits extracted text into bounded-size, sentence-aligned
// chunks.
//
// Sentences are packed greedily: a sentence joins the current chunk when the
// chunk, with a single space separator and the sentence appended, stays
// within the maximum size. Otherwise the chunk is emitted and a new one
// starts with that sentence. Sizes are counted in characters (runes).
//
// A single sentence longer than the maximum is emitted on its own as an
// oversized chunk. It is never truncated or split mid-sentence.
package chunker

import (
	"errors"
	"iter"
	"slices"
	"strings"
	"unicode/utf8"
)

// ErrInvalidMaxSize is returned for a non-positive maximum chunk size.
var ErrInvalidMaxSize = errors.New("max chunk size must be positive")

// Chunker pairs a Segmenter with a maximum chunk size.
type Chunker struct {
	segmenter Segmenter
	maxSize   int
}

// New creates a Chunker.
func New(segmenter Segmenter, maxSize int) (*Chunker, error) {
	if segmenter == nil {
		return nil, errors.New("segmenter is required")
	}
	if maxSize <= 0 {
		return nil, ErrInvalidMaxSize
	}
	return &Chunker{segmenter: segmenter, maxSize: maxSize}, nil
}

// MaxSize returns the configured maximum chunk size.
func (c *Chunker) MaxSize() int {
	return c.maxSize
}

// Chunks returns the chunks of text in order. Each call segments text
// afresh; the returned sequence is single-use.
func (c *Chunker) Chunks(text string) iter.Seq[string] {
	if strings.TrimSpace(text) == "" {
		return func(func(string) bool) {}
	}
	return Pack(c.segmenter.Sentences(text), c.maxSize)
}

// Split collects Chunks into a slice.
func (c *Chunker) Split(text string) []string {
	return slices.Collect(c.Chunks(text))
}

// Pack greedily packs sentences into chunks of at most maxSize characters.
// Blank sentences are skipped and no empty chunk is ever produced.
func Pack(sentences []string, maxSize int) iter.Seq[string] {
	return func(yield func(string) bool) {
		var buf strings.Builder
		size := 0

		for _, s := range sentences {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			n := utf8.RuneCountInString(s)

			switch {
			case size == 0:
				buf.WriteString(s)
				size = n
			case size+1+n <= maxSize:
				buf.WriteByte(' ')
				buf.WriteString(s)
				size += 1 + n
			default:
				if !yield(buf.String()) {
					return
				}
				buf.Reset()
				buf.WriteString(s)
				size = n
			}
		}

		if size > 0 {
			yield(buf.String())
		}
	}
}
