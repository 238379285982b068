package downloads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// ChunkSize is the size of each read from the response body.
const ChunkSize = 64 * 1024

// PartialSuffix is appended to the destination while a download is in flight.
const PartialSuffix = ".part"

// Progress is reported after every chunk written.
type Progress struct {
	Written int64
	Total   int64
	Elapsed time.Duration
}

type ProgressFunc func(Progress)

// Result describes a completed download.
type Result struct {
	Path  string
	Bytes int64
}

// DownloadError reports a download that did not complete. Any bytes already
// written remain in the partial file.
type DownloadError struct {
	URL        string
	Path       string
	StatusCode int
	Written    int64
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("download %s to %s: %v", e.URL, e.Path, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

var (
	ErrMissingContentLength = errors.New("response has no content length")
	ErrShortBody            = errors.New("stream ended before content length was reached")
)

// Service streams enclosures into a filesystem, usually rooted at the
// download directory.
type Service struct {
	fs        afero.Fs
	client    *http.Client
	userAgent string
	now       func() time.Time
}

func NewService(fs afero.Fs, client *http.Client, userAgent string) *Service {
	if client == nil {
		client = http.DefaultClient
	}
	return &Service{fs: fs, client: client, userAgent: userAgent, now: time.Now}
}

// Download fetches url into dst. Bytes are written to dst+PartialSuffix and the
// file is renamed to dst only once the full Content-Length has been received.
func (s *Service) Download(ctx context.Context, dst, url string, progress ProgressFunc) (Result, error) {
	fail := func(status int, written int64, err error) (Result, error) {
		return Result{}, &DownloadError{URL: url, Path: dst, StatusCode: status, Written: written, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fail(0, 0, err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	// Keeps the transport from transparently decompressing and dropping the length.
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := s.client.Do(req)
	if err != nil {
		return fail(0, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(resp.StatusCode, 0, fmt.Errorf("%s", resp.Status))
	}
	total := resp.ContentLength
	if total < 0 {
		return fail(0, 0, ErrMissingContentLength)
	}

	if err := s.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fail(0, 0, err)
	}
	partial := dst + PartialSuffix
	file, err := s.fs.OpenFile(partial, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fail(0, 0, err)
	}

	written, err := s.copyChunks(file, resp.Body, total, progress)
	if closeErr := file.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return fail(0, written, err)
	}
	if written != total {
		return fail(0, written, fmt.Errorf("%w: got %d of %d bytes", ErrShortBody, written, total))
	}

	if err := s.fs.Rename(partial, dst); err != nil {
		return fail(0, written, fmt.Errorf("finalize: %w", err))
	}
	return Result{Path: dst, Bytes: written}, nil
}

func (s *Service) copyChunks(dst io.Writer, src io.Reader, total int64, progress ProgressFunc) (int64, error) {
	start := s.now()
	buf := make([]byte, ChunkSize)
	var written int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, err
			}
			written += int64(n)
			if progress != nil {
				progress(Progress{Written: written, Total: total, Elapsed: s.now().Sub(start)})
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}
