package app

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"podkeep/internal/config"
	"podkeep/internal/downloads"
	"podkeep/internal/feedlist"
	"podkeep/internal/feeds"
	"podkeep/internal/ingest"
	"podkeep/internal/progress"
	"podkeep/internal/query"
	"podkeep/internal/report"
	"podkeep/internal/repository"
	"podkeep/internal/storage"
	"podkeep/internal/theme"
)

const (
	progressBarWidth    = 40
	progressLogInterval = 5 * time.Second
)

// Dependencies lets callers replace the collaborators New would otherwise
// build from configuration.
type Dependencies struct {
	FeedClient     *http.Client
	DownloadClient *http.Client
	Fs             afero.Fs
	Reporter       progress.Reporter
}

// App wires configuration, storage, and the ingestion and query services.
type App struct {
	config       config.Config
	db           *sql.DB
	store        *repository.Store
	log          logrus.FieldLogger
	theme        theme.Theme
	orchestrator *ingest.Orchestrator
	query        *query.Service
}

func New(cfg config.Config, log logrus.FieldLogger) (*App, error) {
	return NewWithDependencies(cfg, log, Dependencies{})
}

// NewWithDependencies opens the database at cfg.DatabasePath, applying
// migrations, and assembles the services around it.
func NewWithDependencies(cfg config.Config, log logrus.FieldLogger, deps Dependencies) (*App, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	th := theme.ForName(cfg.ColorTheme)

	feedClient := deps.FeedClient
	if feedClient == nil {
		timeout := time.Duration(cfg.FeedTimeoutSeconds) * time.Second
		feedClient = newHTTPClient(cfg, timeout)
	}
	downloadClient := deps.DownloadClient
	if downloadClient == nil {
		// Enclosures can be large; cancellation comes from the context instead.
		downloadClient = newHTTPClient(cfg, 0)
	}

	fs := deps.Fs
	if fs == nil {
		root, err := filepath.Abs(cfg.DownloadRoot)
		if err != nil {
			return nil, fmt.Errorf("resolve download root: %w", err)
		}
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("create download root: %w", err)
		}
		fs = afero.NewBasePathFs(afero.NewOsFs(), root)
	}

	reporter := deps.Reporter
	if reporter == nil {
		reporter = defaultReporter(th, log)
	}

	db, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	if version, dirty, err := storage.SchemaVersion(db); err == nil {
		log.WithFields(logrus.Fields{
			"database":       cfg.DatabasePath,
			"schema_version": version,
			"dirty":          dirty,
		}).Debug("database ready")
	}
	store := repository.New(db)

	source := feeds.NewSource(feedClient, cfg.UserAgent)
	downloader := downloads.NewService(fs, downloadClient, cfg.UserAgent)
	orchestrator := ingest.New(store, source, downloader, fs, log).WithReporter(reporter)

	return &App{
		config:       cfg,
		db:           db,
		store:        store,
		log:          log,
		theme:        th,
		orchestrator: orchestrator,
		query:        query.NewService(store, log),
	}, nil
}

func (a *App) Config() config.Config {
	return a.config
}

func (a *App) Logger() logrus.FieldLogger {
	return a.log
}

func (a *App) Query() *query.Service {
	return a.query
}

func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// RunBatch ingests every feed listed in listPath and writes the summary to
// out. Per-feed failures are reported in the results, not as an error.
func (a *App) RunBatch(ctx context.Context, listPath string, out io.Writer) ([]ingest.Result, error) {
	refs, err := feedlist.ReadFile(listPath)
	if err != nil {
		return nil, err
	}

	log := a.log.WithField("run_id", uuid.NewString())
	log.WithFields(logrus.Fields{"list": listPath, "feeds": len(refs)}).Info("starting ingestion run")
	started := time.Now()

	results := a.orchestrator.WithLogger(log).Run(ctx, refs)

	summary := report.Summarize(results)
	log.WithFields(logrus.Fields{
		"feeds":      summary.Feeds,
		"failed":     summary.Failed,
		"downloaded": summary.Downloaded,
		"elapsed":    time.Since(started).Round(time.Millisecond),
	}).Info("ingestion run finished")

	if err := report.Write(out, a.theme, results); err != nil {
		return results, fmt.Errorf("write summary: %w", err)
	}
	return results, nil
}

func newHTTPClient(cfg config.Config, timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.TLSVerify},
	}
	if proxyURL := strings.TrimSpace(cfg.Proxy); proxyURL != "" {
		if parsed, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

func defaultReporter(th theme.Theme, log logrus.FieldLogger) progress.Reporter {
	if isatty.IsTerminal(os.Stderr.Fd()) {
		return progress.NewBarReporter(os.Stderr, th, progressBarWidth)
	}
	return progress.NewLogReporter(log, progressLogInterval)
}
