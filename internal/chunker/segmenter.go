package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
)

// Segmenter splits text into sentences, in order, without dropping text.
type Segmenter interface {
	Sentences(text string) []string
}

// PunktSegmenter detects sentence boundaries with the pretrained English
// Punkt model, which knows common abbreviations and initials.
type PunktSegmenter struct {
	tokenizer *sentences.DefaultSentenceTokenizer
}

// NewPunktSegmenter loads the embedded English Punkt model.
func NewPunktSegmenter() (*PunktSegmenter, error) {
	tokenizer, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		return nil, fmt.Errorf("loading punkt model: %w", err)
	}
	return &PunktSegmenter{tokenizer: tokenizer}, nil
}

// Sentences implements Segmenter.
func (p *PunktSegmenter) Sentences(text string) []string {
	tokens := p.tokenizer.Tokenize(text)
	out := make([]string, 0, len(tokens))
	for _, s := range tokens {
		if t := strings.TrimSpace(s.Text); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// RegexSegmenter splits on runs of terminal punctuation. Text after the
// last terminator is kept as a final sentence.
type RegexSegmenter struct {
	pattern *regexp.Regexp
}

// NewRegexSegmenter returns a deterministic punctuation-based segmenter.
func NewRegexSegmenter() *RegexSegmenter {
	return &RegexSegmenter{
		pattern: regexp.MustCompile(`(?s)[^.!?]+[.!?]+`),
	}
}

// Sentences implements Segmenter.
func (r *RegexSegmenter) Sentences(text string) []string {
	var out []string
	end := 0
	for _, loc := range r.pattern.FindAllStringIndex(text, -1) {
		if t := strings.TrimSpace(text[loc[0]:loc[1]]); t != "" {
			out = append(out, t)
		}
		end = loc[1]
	}
	if t := strings.TrimSpace(text[end:]); t != "" {
		out = append(out, t)
	}
	return out
}

// NewSegmenter returns the segmenter registered under name ("punkt" or
// "regex").
func NewSegmenter(name string) (Segmenter, error) {
	switch strings.ToLower(name) {
	case "", "punkt":
		return NewPunktSegmenter()
	case "regex":
		return NewRegexSegmenter(), nil
	default:
		return nil, fmt.Errorf("unknown segmenter %q", name)
	}
}
