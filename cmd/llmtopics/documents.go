package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const maxDocumentBytes = 16 << 20

// readDocuments loads one document per line. Files ending in .jsonl hold
// objects with a "text" field; anything else is plain text. "-" reads
// stdin as plain text.
//
// Document i is always line i+1 so topic assignments line up with the
// input: blank lines and empty texts are kept as empty documents. Only the
// blank lines at the end of the input are dropped.
func readDocuments(path string, stdin io.Reader) ([]string, error) {
	var r io.Reader
	if path == "-" {
		r = stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	jsonl := strings.EqualFold(filepath.Ext(path), ".jsonl")

	var docs []string
	last := 0
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxDocumentBytes)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			docs = append(docs, "")
			continue
		}
		last = line
		if !jsonl {
			docs = append(docs, raw)
			continue
		}
		var record struct {
			Text *string `json:"text"`
		}
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		if record.Text == nil {
			return nil, fmt.Errorf("%s:%d: missing \"text\" field", path, line)
		}
		docs = append(docs, strings.TrimSpace(*record.Text))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return docs[:last], nil
}
