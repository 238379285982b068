package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"podkeep/internal/domain"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrDownloadAlreadyRecorded = errors.New("download already recorded with a different path")
)

// Store owns the durable state of feeds, raw feed snapshots and episodes.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Tx exposes the reconciliation operations inside one open transaction.
type Tx struct {
	tx  *sql.Tx
	now func() time.Time
}

// Update runs fn inside a single transaction. Every write made through the Tx
// is committed together when fn returns nil and discarded otherwise. Starting
// the transaction is retried while another writer holds the database.
func (s *Store) Update(ctx context.Context, fn func(*Tx) error) error {
	var tx *sql.Tx
	err := s.withRetry(ctx, func() error {
		var err error
		tx, err = s.db.BeginTx(ctx, nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if err := fn(&Tx{tx: tx, now: s.now}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

// UpsertFeed resolves the feed for url, inserting it on first sight and
// refreshing its title otherwise, then appends a snapshot of document.
func (t *Tx) UpsertFeed(ctx context.Context, feedURL, title string, document []byte) (int64, error) {
	feedURL = strings.TrimSpace(feedURL)
	if feedURL == "" {
		return 0, errors.New("feed url cannot be empty")
	}
	if len(document) == 0 {
		return 0, errors.New("feed snapshot cannot be empty")
	}
	now := t.now().Format(time.RFC3339Nano)

	var feedID int64
	err := t.tx.QueryRowContext(ctx, `INSERT INTO feed (date_added, feed_url, title)
VALUES (?, ?, ?)
ON CONFLICT(feed_url) DO UPDATE SET title = excluded.title
RETURNING feed_id`, now, feedURL, title).Scan(&feedID)
	if err != nil {
		return 0, fmt.Errorf("upsert feed: %w", err)
	}

	if _, err := t.tx.ExecContext(ctx, `INSERT INTO raw_feed (feed_id, date_added, data)
VALUES (?, ?, ?)`, feedID, now, string(document)); err != nil {
		return 0, fmt.Errorf("insert raw feed: %w", err)
	}
	return feedID, nil
}

// UpsertEpisode resolves the episode for (feedID, guid). Metadata is refreshed
// on every call; download_path is never touched here.
func (t *Tx) UpsertEpisode(ctx context.Context, feedID int64, ep domain.EpisodeInput) (int64, error) {
	guid := strings.TrimSpace(ep.GUID)
	if guid == "" {
		return 0, errors.New("episode guid cannot be empty")
	}

	var episodeID int64
	err := t.tx.QueryRowContext(ctx, `INSERT INTO feed_item (
    feed_id, guid, date_added, title, description, pub_date, itunes_duration,
    enclosure_url, enclosure_length, enclosure_type, itunes_season
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(feed_id, guid) DO UPDATE SET
    title = excluded.title,
    description = excluded.description,
    pub_date = excluded.pub_date,
    itunes_duration = excluded.itunes_duration,
    enclosure_url = excluded.enclosure_url,
    enclosure_length = excluded.enclosure_length,
    enclosure_type = excluded.enclosure_type,
    itunes_season = excluded.itunes_season
RETURNING feed_item_id`,
		feedID, guid, t.now().Format(time.RFC3339Nano), ep.Title, ep.Description,
		formatPubDate(ep.PublishedAt), ep.Duration, ep.EnclosureURL, ep.EnclosureLength,
		ep.EnclosureType, ep.Season).Scan(&episodeID)
	if err != nil {
		return 0, fmt.Errorf("upsert episode %s: %w", guid, err)
	}
	return episodeID, nil
}

// DownloadPath returns the recorded download path. The boolean is false while
// the episode has not been downloaded.
func (t *Tx) DownloadPath(ctx context.Context, episodeID int64) (string, bool, error) {
	return downloadPath(ctx, t.tx, episodeID)
}

// RecordDownloadComplete sets download_path once. Recording the same path again
// is a no-op; recording a different path is refused.
func (t *Tx) RecordDownloadComplete(ctx context.Context, episodeID int64, path string, size int64) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("download path cannot be empty")
	}
	res, err := t.tx.ExecContext(ctx, `UPDATE feed_item
SET download_path = ?, downloaded_at = ?, download_bytes = ?
WHERE feed_item_id = ? AND download_path IS NULL`,
		path, t.now().Format(time.RFC3339Nano), size, episodeID)
	if err != nil {
		return fmt.Errorf("record download: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return err
	} else if affected > 0 {
		return nil
	}

	existing, ok, err := downloadPath(ctx, t.tx, episodeID)
	if err != nil {
		return err
	}
	if ok && existing == path {
		return nil
	}
	return fmt.Errorf("episode %d: %w", episodeID, ErrDownloadAlreadyRecorded)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func downloadPath(ctx context.Context, q queryRower, episodeID int64) (string, bool, error) {
	var path sql.NullString
	err := q.QueryRowContext(ctx, "SELECT download_path FROM feed_item WHERE feed_item_id = ?", episodeID).Scan(&path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, fmt.Errorf("episode %d: %w", episodeID, ErrNotFound)
		}
		return "", false, err
	}
	if !path.Valid || path.String == "" {
		return "", false, nil
	}
	return path.String, true, nil
}

func formatPubDate(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(value string) time.Time {
	if parsed, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return parsed
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed
	}
	return time.Time{}
}

// withRetry calls fn until it succeeds, fails with something other than a
// busy database, or attempts run out.
func (s *Store) withRetry(ctx context.Context, fn func() error) error {
	const attempts = 5
	var err error
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err = fn()
		if err == nil || !isSQLiteBusy(err) {
			return err
		}
		backoff := 50 * time.Millisecond * time.Duration(1<<i)
		if err := waitWithContext(ctx, backoff); err != nil {
			return err
		}
	}
	return err
}

func waitWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
