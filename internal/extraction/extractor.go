// Package extraction turns downloaded documents into plain text.
//
// Every file maps to exactly one Format by extension. Extract dispatches on
// that Format in a single switch; there is no registration of new formats at
// runtime. Formats without a native reader go to an Apache Tika server.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Format is the closed set of extraction strategies.
type Format int

const (
	FormatOther Format = iota
	FormatText
	FormatCSV
	FormatJSON
	FormatDOCX
	FormatPDF
	FormatXLSX
	FormatHTML
)

var formatNames = map[Format]string{
	FormatOther: "other",
	FormatText:  "text",
	FormatCSV:   "csv",
	FormatJSON:  "json",
	FormatDOCX:  "docx",
	FormatPDF:   "pdf",
	FormatXLSX:  "xlsx",
	FormatHTML:  "html",
}

// String implements fmt.Stringer.
func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("format(%d)", int(f))
}

var extensions = map[string]Format{
	".txt":  FormatText,
	".text": FormatText,
	".md":   FormatText,
	".log":  FormatText,
	".csv":  FormatCSV,
	".json": FormatJSON,
	".docx": FormatDOCX,
	".pdf":  FormatPDF,
	".xlsx": FormatXLSX,
	".html": FormatHTML,
	".htm":  FormatHTML,
}

// FormatFor selects the format from the file extension, case-insensitively.
func FormatFor(path string) Format {
	if f, ok := extensions[strings.ToLower(filepath.Ext(path))]; ok {
		return f
	}
	return FormatOther
}

var (
	// ErrEmptyContent means the document parsed but held no text.
	ErrEmptyContent = errors.New("no text content extracted")
	// ErrNoContentService means the format needs Tika and none is configured.
	ErrNoContentService = errors.New("unsupported file type: no content extraction service configured")
)

// Error reports a failed extraction.
type Error struct {
	Path   string
	Format Format
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("extract %s (%s): %v", filepath.Base(e.Path), e.Format, e.Err)
}

// Unwrap allows errors.Is and errors.As to see the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// ContentService extracts text from arbitrary documents. *TikaClient is the
// production implementation.
type ContentService interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// Extractor extracts text from local files.
type Extractor struct {
	content ContentService
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithContentService sets the fallback service for PDFs and unknown formats.
func WithContentService(s ContentService) Option {
	return func(e *Extractor) {
		e.content = s
	}
}

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the whitespace-trimmed text of the file at path. Empty
// output is an error.
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	format := FormatFor(path)

	text, err := e.extract(ctx, format, path)
	if err != nil {
		return "", &Error{Path: path, Format: format, Err: err}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", &Error{Path: path, Format: format, Err: ErrEmptyContent}
	}
	return text, nil
}

func (e *Extractor) extract(ctx context.Context, format Format, path string) (string, error) {
	switch format {
	case FormatText:
		return extractText(path)
	case FormatCSV:
		return extractCSV(ctx, path)
	case FormatJSON:
		return extractJSON(path)
	case FormatDOCX:
		return extractDOCX(path)
	case FormatXLSX:
		return extractXLSX(path)
	case FormatHTML:
		return extractHTML(path)
	case FormatPDF:
		if e.content != nil {
			return e.content.ExtractText(ctx, path)
		}
		return extractPDF(path)
	default:
		if e.content == nil {
			return "", ErrNoContentService
		}
		return e.content.ExtractText(ctx, path)
	}
}
