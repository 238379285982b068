// Package feedlist reads the batch input: feed references in list order.
package feedlist

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"podkeep/internal/opml"
)

// Read returns one reference per non-empty line. Lines starting with # are
// comments.
func Read(r io.Reader) ([]string, error) {
	var refs []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		refs = append(refs, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read feed list: %w", err)
	}
	return refs, nil
}

// ReadFile reads a plain list, or an OPML document when the file name ends
// in .opml.
func ReadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open feed list: %w", err)
	}
	defer f.Close()

	if !strings.EqualFold(filepath.Ext(path), ".opml") {
		return Read(f)
	}

	entries, err := opml.Import(f)
	if err != nil {
		return nil, err
	}
	refs := make([]string, 0, len(entries))
	for _, entry := range entries {
		refs = append(refs, entry.FeedURL)
	}
	return refs, nil
}
