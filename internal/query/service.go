// Package query is the read-only surface over the store. Every operation
// writes one JSON object per line.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"podkeep/internal/domain"
	"podkeep/internal/opml"
	"podkeep/internal/repository"
)

// RecentItems is how many episodes GetFeed includes.
const RecentItems = 10

var ErrNothingToExport = errors.New("no feeds to export")

type Service struct {
	store *repository.Store
	log   logrus.FieldLogger
}

func NewService(store *repository.Store, log logrus.FieldLogger) *Service {
	return &Service{store: store, log: log}
}

func (s *Service) ListFeeds(ctx context.Context, w io.Writer) error {
	feeds, err := s.store.ListFeeds(ctx)
	if err != nil {
		return err
	}
	enc := newEncoder(w)
	for _, feed := range feeds {
		if err := enc.Encode(feed); err != nil {
			return err
		}
	}
	return nil
}

// GetFeed writes the feed with its most recent episodes and latest snapshot.
// An unknown id writes nothing.
func (s *Service) GetFeed(ctx context.Context, w io.Writer, feedID int64) error {
	detail, err := s.store.GetFeedDetail(ctx, feedID, RecentItems)
	if errors.Is(err, repository.ErrNotFound) {
		s.log.WithField("feed_id", feedID).Debug("feed not found")
		return nil
	}
	if err != nil {
		return err
	}
	if detail.Items == nil {
		detail.Items = []domain.Episode{}
	}
	return newEncoder(w).Encode(detail)
}

func (s *Service) ListItems(ctx context.Context, w io.Writer, filter domain.EpisodeFilter) error {
	episodes, err := s.store.ListEpisodes(ctx, filter)
	if err != nil {
		return err
	}
	enc := newEncoder(w)
	for _, ep := range episodes {
		if err := enc.Encode(ep); err != nil {
			return err
		}
	}
	return nil
}

// GetItem writes a single episode. An unknown id writes nothing.
func (s *Service) GetItem(ctx context.Context, w io.Writer, episodeID int64) error {
	ep, err := s.store.GetEpisode(ctx, episodeID)
	if errors.Is(err, repository.ErrNotFound) {
		s.log.WithField("feed_item_id", episodeID).Debug("item not found")
		return nil
	}
	if err != nil {
		return err
	}
	return newEncoder(w).Encode(ep)
}

// GetRawFeed writes the latest snapshot of a feed. An unknown id writes
// nothing.
func (s *Service) GetRawFeed(ctx context.Context, w io.Writer, feedID int64) error {
	raw, err := s.store.LatestRawFeed(ctx, feedID)
	if errors.Is(err, repository.ErrNotFound) {
		s.log.WithField("feed_id", feedID).Debug("raw feed not found")
		return nil
	}
	if err != nil {
		return err
	}
	return newEncoder(w).Encode(raw)
}

// ExportOPML writes every tracked feed as an OPML document.
func (s *Service) ExportOPML(ctx context.Context, w io.Writer) error {
	feeds, err := s.store.ListFeedExports(ctx)
	if err != nil {
		return err
	}
	if len(feeds) == 0 {
		return ErrNothingToExport
	}
	return opml.Export(w, feeds, time.Now())
}

func newEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc
}
