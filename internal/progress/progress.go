// Package progress renders download progress either as throttled log lines
// or as a single-line terminal bar.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"podkeep/internal/downloads"
	"podkeep/internal/theme"
)

// Reporter hands out a progress callback per download. The returned finish
// func must be called once the download has ended, successfully or not.
type Reporter interface {
	Track(name string) (update downloads.ProgressFunc, finish func())
}

// Nop discards progress.
type Nop struct{}

func (Nop) Track(string) (downloads.ProgressFunc, func()) {
	return func(downloads.Progress) {}, func() {}
}

// LogReporter writes at most one info line per interval for each download.
type LogReporter struct {
	log      logrus.FieldLogger
	interval time.Duration
	now      func() time.Time
}

func NewLogReporter(log logrus.FieldLogger, interval time.Duration) *LogReporter {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &LogReporter{log: log, interval: interval, now: time.Now}
}

func (r *LogReporter) Track(name string) (downloads.ProgressFunc, func()) {
	var (
		last time.Time
		seen downloads.Progress
	)
	update := func(p downloads.Progress) {
		seen = p
		now := r.now()
		if !last.IsZero() && now.Sub(last) < r.interval && p.Written < p.Total {
			return
		}
		last = now
		r.log.WithFields(logrus.Fields{
			"path":    name,
			"written": humanize.IBytes(uint64(p.Written)),
			"total":   humanize.IBytes(uint64(p.Total)),
			"percent": fmt.Sprintf("%.0f%%", percent(p)*100),
			"rate":    rate(p),
		}).Info("download progress")
	}
	finish := func() {
		if seen.Total > 0 && seen.Written < seen.Total {
			r.log.WithFields(logrus.Fields{
				"path":    name,
				"written": humanize.IBytes(uint64(seen.Written)),
				"total":   humanize.IBytes(uint64(seen.Total)),
			}).Warn("download stopped early")
		}
	}
	return update, finish
}

// BarReporter redraws one terminal line per download using a bubbles
// progress bar rendered without a program loop.
type BarReporter struct {
	mu       sync.Mutex
	out      io.Writer
	bar      progress.Model
	interval time.Duration
	now      func() time.Time
}

func NewBarReporter(out io.Writer, th theme.Theme, width int) *BarReporter {
	if width <= 0 {
		width = 40
	}
	bar := progress.New(progress.WithGradient(th.BarStart, th.BarEnd), progress.WithWidth(width))
	return &BarReporter{out: out, bar: bar, interval: 100 * time.Millisecond, now: time.Now}
}

func (r *BarReporter) Track(name string) (downloads.ProgressFunc, func()) {
	var (
		last  time.Time
		drawn bool
	)
	label := truncate(name, 40)
	update := func(p downloads.Progress) {
		now := r.now()
		if drawn && now.Sub(last) < r.interval && p.Written < p.Total {
			return
		}
		last = now
		drawn = true
		r.draw(label, p)
	}
	finish := func() {
		if drawn {
			r.mu.Lock()
			fmt.Fprintln(r.out)
			r.mu.Unlock()
		}
	}
	return update, finish
}

func (r *BarReporter) draw(label string, p downloads.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "\r%s %s %s/%s %s",
		label,
		r.bar.ViewAs(percent(p)),
		humanize.IBytes(uint64(p.Written)),
		humanize.IBytes(uint64(p.Total)),
		rate(p),
	)
}

func percent(p downloads.Progress) float64 {
	if p.Total <= 0 {
		return 0
	}
	v := float64(p.Written) / float64(p.Total)
	if v > 1 {
		return 1
	}
	return v
}

func rate(p downloads.Progress) string {
	secs := p.Elapsed.Seconds()
	if secs <= 0 {
		return "-"
	}
	return humanize.IBytes(uint64(float64(p.Written)/secs)) + "/s"
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s + strings.Repeat(" ", max-len(r))
	}
	return "…" + string(r[len(r)-max+1:])
}
