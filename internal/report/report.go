// Package report prints the per-feed summary of an ingestion batch.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"podkeep/internal/ingest"
	"podkeep/internal/theme"
)

// Summary totals a batch.
type Summary struct {
	Feeds      int
	Failed     int
	Downloaded int
	Reused     int
	Skipped    int
	Bytes      int64
}

func Summarize(results []ingest.Result) Summary {
	var s Summary
	for _, r := range results {
		s.Feeds++
		if r.Failed() {
			s.Failed++
			continue
		}
		s.Downloaded += r.Downloaded
		s.Reused += r.Reused
		s.Skipped += r.Skipped
		s.Bytes += r.Bytes
	}
	return s
}

// Write prints one line per feed followed by a totals line.
func Write(w io.Writer, th theme.Theme, results []ingest.Result) error {
	var b strings.Builder
	b.WriteString(th.Header.Render("Ingestion summary"))
	b.WriteString("\n")

	for _, r := range results {
		name := r.Title
		if name == "" {
			name = r.Ref
		}
		if r.Failed() {
			fmt.Fprintf(&b, "%s %s %s %s\n",
				th.Failure.Render("FAIL"),
				th.Title.Render(name),
				th.Dim.Render("at "+string(r.Stage)+":"),
				th.Error.Render(r.Err.Error()),
			)
			continue
		}
		fmt.Fprintf(&b, "%s %s %s\n",
			th.Success.Render("OK  "),
			th.Title.Render(name),
			th.Count.Render(counts(r)),
		)
	}

	s := Summarize(results)
	fmt.Fprintf(&b, "%s\n", th.Dim.Render(fmt.Sprintf("%d feeds, %d failed, %d downloaded (%s), %d already present, %d skipped",
		s.Feeds, s.Failed, s.Downloaded, humanize.IBytes(uint64(s.Bytes)), s.Reused, s.Skipped)))

	_, err := io.WriteString(w, b.String())
	return err
}

func counts(r ingest.Result) string {
	parts := []string{fmt.Sprintf("%d new", r.Downloaded), fmt.Sprintf("%d present", r.Reused)}
	if r.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", r.Skipped))
	}
	if r.Collisions > 0 {
		parts = append(parts, fmt.Sprintf("%d name collisions", r.Collisions))
	}
	return strings.Join(parts, ", ")
}
