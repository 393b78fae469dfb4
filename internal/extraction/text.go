package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/documentloaders"
)

func extractText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("file is not valid UTF-8")
	}
	return string(data), nil
}

// extractCSV renders each row as "column: value" lines, rows separated by a
// blank line.
func extractCSV(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	docs, err := documentloaders.NewCSV(f).Load(ctx)
	if err != nil {
		return "", fmt.Errorf("parse csv: %w", err)
	}

	rows := make([]string, 0, len(docs))
	for _, doc := range docs {
		rows = append(rows, doc.PageContent)
	}
	return strings.Join(rows, "\n\n"), nil
}

// extractJSON re-serializes the document with sorted keys and two-space
// indentation. Numbers keep their original literal form.
func extractJSON(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("parse json: %w", err)
	}
	if dec.More() {
		return "", fmt.Errorf("parse json: trailing data after top-level value")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return buf.String(), nil
}
