package feeds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// FilePrefix marks a feed reference as a local file path.
const FilePrefix = "file://"

// Source turns feed references into raw feed text.
type Source struct {
	client    *http.Client
	userAgent string
}

func NewSource(client *http.Client, userAgent string) *Source {
	if client == nil {
		client = http.DefaultClient
	}
	return &Source{client: client, userAgent: userAgent}
}

// Fetch reads ref from disk when it carries FilePrefix and over HTTP otherwise.
// Every failure is a *FetchError.
func (s *Source) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if path, ok := strings.CutPrefix(ref, FilePrefix); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &FetchError{Ref: ref, Err: err}
		}
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, &FetchError{Ref: ref, Err: err}
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &FetchError{Ref: ref, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{Ref: ref, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", resp.Status)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Ref: ref, Err: fmt.Errorf("read body: %w", err)}
	}
	return data, nil
}
