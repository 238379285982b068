package ingest

import (
	"context"
	"fmt"
	"path"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"podkeep/internal/downloads"
	"podkeep/internal/feeds"
	"podkeep/internal/progress"
	"podkeep/internal/repository"
)

// Stage is the step a feed reached during ingestion.
type Stage string

const (
	StageFetching    Stage = "fetching"
	StageParsing     Stage = "parsing"
	StageReconciling Stage = "reconciling"
	StageDownloading Stage = "downloading"
	StageDone        Stage = "done"
)

type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

type Downloader interface {
	Download(ctx context.Context, dst, url string, progress downloads.ProgressFunc) (downloads.Result, error)
}

// Result is the outcome of one feed. Err is nil only when Stage is StageDone;
// otherwise Stage names the step that failed.
type Result struct {
	Ref        string
	FeedID     int64
	Title      string
	Stage      Stage
	Err        error
	Episodes   int
	Downloaded int
	Reused     int
	Collisions int
	Skipped    int
	Bytes      int64
}

func (r Result) Failed() bool { return r.Err != nil }

// Orchestrator drives feeds through fetch, parse, reconcile and download.
// Paths handed to the downloader and stored in the database are relative to
// the root of fs.
type Orchestrator struct {
	store      *repository.Store
	fetcher    Fetcher
	parser     *feeds.Parser
	downloader Downloader
	fs         afero.Fs
	reporter   progress.Reporter
	log        logrus.FieldLogger
}

func New(store *repository.Store, fetcher Fetcher, downloader Downloader, fs afero.Fs, log logrus.FieldLogger) *Orchestrator {
	return &Orchestrator{
		store:      store,
		fetcher:    fetcher,
		parser:     feeds.NewParser(),
		downloader: downloader,
		fs:         fs,
		reporter:   progress.Nop{},
		log:        log,
	}
}

// WithReporter sets where download progress goes.
func (o *Orchestrator) WithReporter(r progress.Reporter) *Orchestrator {
	if r != nil {
		o.reporter = r
	}
	return o
}

// WithLogger returns a copy of the orchestrator logging through log.
func (o *Orchestrator) WithLogger(log logrus.FieldLogger) *Orchestrator {
	clone := *o
	clone.log = log
	return &clone
}

// Run ingests refs one after another. A failing feed never stops the batch;
// only cancellation of ctx does.
func (o *Orchestrator) Run(ctx context.Context, refs []string) []Result {
	results := make([]Result, 0, len(refs))
	for _, ref := range refs {
		if ctx.Err() != nil {
			o.log.WithError(ctx.Err()).Warn("ingestion cancelled")
			break
		}
		results = append(results, o.IngestFeed(ctx, ref))
	}
	return results
}

// IngestFeed processes a single feed. All database writes for the feed are
// committed together or not at all.
func (o *Orchestrator) IngestFeed(ctx context.Context, ref string) Result {
	log := o.log.WithField("feed", ref)
	res := Result{Ref: ref, Stage: StageFetching}

	log.Info("fetching feed")
	data, err := o.fetcher.Fetch(ctx, ref)
	if err != nil {
		return o.fail(log, res, err)
	}

	res.Stage = StageParsing
	doc, err := o.parser.Parse(data)
	if err != nil {
		return o.fail(log, res, err)
	}
	res.Title = doc.Title
	for _, skip := range doc.Skipped {
		log.WithField("guid", skip.GUID).WithError(skip.Err).Warn("skipping item")
		res.Skipped++
	}

	res.Stage = StageReconciling
	err = o.store.Update(ctx, func(tx *repository.Tx) error {
		feedID, err := tx.UpsertFeed(ctx, ref, doc.Title, doc.Raw)
		if err != nil {
			return err
		}
		res.FeedID = feedID

		feedDir := FeedDir(doc.Title)
		if err := o.fs.MkdirAll(feedDir, 0o755); err != nil {
			return fmt.Errorf("create feed directory %s: %w", feedDir, err)
		}

		claimed := make(map[string]string)
		for _, item := range doc.Items {
			if err := o.reconcileItem(ctx, tx, log, feedDir, item, claimed, &res); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		res.FeedID = 0
		return o.fail(log, res, err)
	}

	res.Stage = StageDone
	log.WithFields(logrus.Fields{
		"feed_id":    res.FeedID,
		"episodes":   res.Episodes,
		"downloaded": res.Downloaded,
		"reused":     res.Reused,
		"skipped":    res.Skipped,
	}).Info("feed ingested")
	return res
}

func (o *Orchestrator) reconcileItem(ctx context.Context, tx *repository.Tx, log logrus.FieldLogger, feedDir string, item feeds.ItemRecord, claimed map[string]string, res *Result) error {
	episodeID, err := tx.UpsertEpisode(ctx, res.FeedID, item.Input())
	if err != nil {
		return err
	}
	res.Episodes++

	if item.Season != nil {
		dir := path.Join(feedDir, SeasonDir(*item.Season))
		if err := o.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create season directory %s: %w", dir, err)
		}
	}

	target, recorded, err := tx.DownloadPath(ctx, episodeID)
	if err != nil {
		return err
	}
	if !recorded {
		target = EpisodePath(feedDir, item.Season, item.PublishedAt, item.Title, item.GUID)
	}
	elog := log.WithFields(logrus.Fields{"guid": item.GUID, "path": target})

	if owner, taken := claimed[target]; taken && owner != item.GUID {
		elog.WithField("claimed_by", owner).Warn("episode path already used by another item, treating as present")
		res.Collisions++
		return nil
	}
	claimed[target] = item.GUID

	info, err := o.fs.Stat(target)
	if err == nil {
		if !recorded {
			if err := tx.RecordDownloadComplete(ctx, episodeID, target, info.Size()); err != nil {
				return err
			}
			elog.Info("adopted existing file")
		} else {
			elog.Debug("already downloaded")
		}
		res.Reused++
		return nil
	}

	res.Stage = StageDownloading
	elog.WithField("url", item.EnclosureURL).Info("downloading episode")
	update, finish := o.reporter.Track(target)
	result, err := o.downloader.Download(ctx, target, item.EnclosureURL, update)
	finish()
	if err != nil {
		return err
	}
	res.Stage = StageReconciling

	if err := tx.RecordDownloadComplete(ctx, episodeID, result.Path, result.Bytes); err != nil {
		return err
	}
	res.Downloaded++
	res.Bytes += result.Bytes
	elog.WithField("bytes", result.Bytes).Info("downloaded episode")
	return nil
}

func (o *Orchestrator) fail(log logrus.FieldLogger, res Result, err error) Result {
	res.Err = err
	log.WithFields(logrus.Fields{"stage": res.Stage}).WithError(err).Error("feed failed")
	return res
}
