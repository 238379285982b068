package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"podkeep/internal/domain"
)

const episodeColumns = `feed_item_id, feed_id, guid, date_added, title, description, pub_date,
    itunes_duration, enclosure_url, enclosure_length, enclosure_type, itunes_season,
    download_path, downloaded_at, download_bytes`

// ListFeeds returns every tracked feed ordered by id.
func (s *Store) ListFeeds(ctx context.Context) ([]domain.Feed, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT feed_id, feed_url, title, date_added FROM feed ORDER BY feed_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var feeds []domain.Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, feed)
	}
	return feeds, rows.Err()
}

// GetFeed returns a single feed or ErrNotFound.
func (s *Store) GetFeed(ctx context.Context, id int64) (domain.Feed, error) {
	row := s.db.QueryRowContext(ctx, "SELECT feed_id, feed_url, title, date_added FROM feed WHERE feed_id = ?", id)
	feed, err := scanFeed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Feed{}, fmt.Errorf("feed %d: %w", id, ErrNotFound)
	}
	return feed, err
}

// GetFeedDetail returns the feed, its limit most recently published episodes
// and its latest raw snapshot.
func (s *Store) GetFeedDetail(ctx context.Context, id int64, limit int) (domain.FeedDetail, error) {
	feed, err := s.GetFeed(ctx, id)
	if err != nil {
		return domain.FeedDetail{}, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+episodeColumns+`
FROM feed_item
WHERE feed_id = ?
ORDER BY pub_date DESC, feed_item_id DESC
LIMIT ?`, id, limit)
	if err != nil {
		return domain.FeedDetail{}, err
	}
	items, err := collectEpisodes(rows)
	if err != nil {
		return domain.FeedDetail{}, err
	}

	detail := domain.FeedDetail{Feed: feed, Items: items}
	raw, err := s.LatestRawFeed(ctx, id)
	switch {
	case err == nil:
		detail.RawFeed = &raw
	case errors.Is(err, ErrNotFound):
	default:
		return domain.FeedDetail{}, err
	}
	return detail, nil
}

// ListEpisodes returns episodes matching filter ordered by publication date.
// Title and description filters are case-insensitive substring matches.
func (s *Store) ListEpisodes(ctx context.Context, filter domain.EpisodeFilter) ([]domain.Episode, error) {
	var feedID any
	if filter.FeedID != nil {
		feedID = *filter.FeedID
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+episodeColumns+`
FROM feed_item
WHERE (?1 IS NULL OR feed_id = ?1)
  AND (?2 = '' OR title LIKE '%' || ?2 || '%')
  AND (?3 = '' OR description LIKE '%' || ?3 || '%')
ORDER BY pub_date, feed_item_id`, feedID, filter.Title, filter.Description)
	if err != nil {
		return nil, err
	}
	return collectEpisodes(rows)
}

// GetEpisode returns a single episode or ErrNotFound.
func (s *Store) GetEpisode(ctx context.Context, id int64) (domain.Episode, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+episodeColumns+" FROM feed_item WHERE feed_item_id = ?", id)
	ep, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Episode{}, fmt.Errorf("episode %d: %w", id, ErrNotFound)
	}
	return ep, err
}

// LatestRawFeed returns the newest snapshot stored for a feed.
func (s *Store) LatestRawFeed(ctx context.Context, feedID int64) (domain.RawFeed, error) {
	row := s.db.QueryRowContext(ctx, `SELECT raw_feed_id, feed_id, date_added, data
FROM raw_feed
WHERE feed_id = ?
ORDER BY raw_feed_id DESC
LIMIT 1`, feedID)
	raw, err := scanRawFeed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RawFeed{}, fmt.Errorf("raw feed for feed %d: %w", feedID, ErrNotFound)
	}
	return raw, err
}

// ListFeedExports returns title and URL of every feed, ordered by title.
func (s *Store) ListFeedExports(ctx context.Context) ([]domain.FeedExport, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT title, feed_url FROM feed ORDER BY title COLLATE NOCASE, feed_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exports []domain.FeedExport
	for rows.Next() {
		var export domain.FeedExport
		if err := rows.Scan(&export.Title, &export.FeedURL); err != nil {
			return nil, err
		}
		exports = append(exports, export)
	}
	return exports, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeed(row rowScanner) (domain.Feed, error) {
	var (
		feed      domain.Feed
		dateAdded string
	)
	if err := row.Scan(&feed.ID, &feed.URL, &feed.Title, &dateAdded); err != nil {
		return domain.Feed{}, err
	}
	feed.DateAdded = parseTime(dateAdded)
	return feed, nil
}

func scanRawFeed(row rowScanner) (domain.RawFeed, error) {
	var (
		raw       domain.RawFeed
		dateAdded string
		data      string
	)
	if err := row.Scan(&raw.ID, &raw.FeedID, &dateAdded, &data); err != nil {
		return domain.RawFeed{}, err
	}
	raw.DateAdded = parseTime(dateAdded)
	if json.Valid([]byte(data)) {
		raw.Data = json.RawMessage(data)
	} else {
		quoted, err := json.Marshal(data)
		if err != nil {
			return domain.RawFeed{}, err
		}
		raw.Data = quoted
	}
	return raw, nil
}

func scanEpisode(row rowScanner) (domain.Episode, error) {
	var (
		ep            domain.Episode
		dateAdded     string
		description   sql.NullString
		pubDate       string
		duration      sql.NullString
		enclosureType sql.NullString
		season        sql.NullInt64
		downloadPath  sql.NullString
		downloadedAt  sql.NullString
		downloadBytes sql.NullInt64
	)
	if err := row.Scan(&ep.ID, &ep.FeedID, &ep.GUID, &dateAdded, &ep.Title, &description, &pubDate,
		&duration, &ep.EnclosureURL, &ep.EnclosureLength, &enclosureType, &season,
		&downloadPath, &downloadedAt, &downloadBytes); err != nil {
		return domain.Episode{}, err
	}

	ep.DateAdded = parseTime(dateAdded)
	ep.PublishedAt = parseTime(pubDate)
	ep.Description = description.String
	ep.EnclosureType = enclosureType.String
	if duration.Valid {
		ep.Duration = &duration.String
	}
	if season.Valid {
		n := int(season.Int64)
		ep.Season = &n
	}
	if downloadPath.Valid && downloadPath.String != "" {
		ep.DownloadPath = &downloadPath.String
	}
	if downloadedAt.Valid {
		at := parseTime(downloadedAt.String)
		if !at.IsZero() {
			ep.DownloadedAt = &at
		}
	}
	if downloadBytes.Valid {
		ep.DownloadBytes = &downloadBytes.Int64
	}
	return ep, nil
}

func collectEpisodes(rows *sql.Rows) ([]domain.Episode, error) {
	defer rows.Close()
	var episodes []domain.Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, ep)
	}
	return episodes, rows.Err()
}
