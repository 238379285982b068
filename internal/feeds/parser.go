package feeds

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html/charset"

	"podkeep/internal/domain"
)

// PubDateLayout is the only accepted item date format. The day may have one
// or two digits.
const PubDateLayout = "Mon, 2 Jan 2006 15:04:05 MST"

// Document is a parsed feed: its title, the items in document order, the
// items that were skipped and the full decoded document for snapshots.
type Document struct {
	Title   string
	Items   []ItemRecord
	Skipped []ItemSkip
	Raw     []byte
}

// ItemRecord holds the fields ingestion needs from one feed item.
type ItemRecord struct {
	GUID            string
	Title           string
	Description     string
	PublishedAt     time.Time
	Duration        *string
	EnclosureURL    string
	EnclosureLength int64
	EnclosureType   string
	Season          *int
}

// Input converts the record into the store's upsert payload.
func (r ItemRecord) Input() domain.EpisodeInput {
	return domain.EpisodeInput{
		GUID:            r.GUID,
		Title:           r.Title,
		Description:     r.Description,
		PublishedAt:     r.PublishedAt,
		Duration:        r.Duration,
		EnclosureURL:    r.EnclosureURL,
		EnclosureLength: r.EnclosureLength,
		EnclosureType:   r.EnclosureType,
		Season:          r.Season,
	}
}

// ItemSkip is an item left out of Items because its publish date could not be
// parsed.
type ItemSkip struct {
	GUID string
	Err  *ParseError
}

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{gofeedParser: gofeed.NewParser()}
}

// Parse decodes an RSS document. Structural problems fail the whole document;
// an unparseable item date only skips that item.
func (p *Parser) Parse(data []byte) (*Document, error) {
	if err := checkWellFormed(data); err != nil {
		return nil, err
	}
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	if feed.FeedType != "rss" {
		return nil, &ParseError{Reason: fmt.Sprintf("unsupported feed type %q", feed.FeedType)}
	}

	title := strings.TrimSpace(feed.Title)
	if title == "" {
		return nil, &ParseError{Reason: "channel has no title"}
	}

	raw, err := json.Marshal(feed)
	if err != nil {
		return nil, &ParseError{Reason: "encode snapshot", Err: err}
	}

	doc := &Document{Title: title, Raw: raw, Items: make([]ItemRecord, 0, len(feed.Items))}
	for i, item := range feed.Items {
		guid := strings.TrimSpace(item.GUID)
		if guid == "" {
			return nil, &ParseError{Reason: fmt.Sprintf("item %d has no guid", i+1)}
		}
		if len(item.Enclosures) == 0 || item.Enclosures[0] == nil || strings.TrimSpace(item.Enclosures[0].URL) == "" {
			return nil, &ParseError{GUID: guid, Reason: "item has no enclosure url"}
		}

		published, err := ParsePubDate(item.Published)
		if err != nil {
			doc.Skipped = append(doc.Skipped, ItemSkip{
				GUID: guid,
				Err:  &ParseError{GUID: guid, Reason: "invalid publish date", Err: err},
			})
			continue
		}

		doc.Items = append(doc.Items, normalizeItem(guid, published, item))
	}
	return doc, nil
}

// checkWellFormed walks every token with a strict decoder. gofeed recovers
// from mismatched tags and stray ampersands, dropping content on the way.
func checkWellFormed(data []byte) error {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Strict = true
	decoder.CharsetReader = charset.NewReaderLabel

	sawRoot := false
	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return &ParseError{Reason: "malformed XML", Err: err}
		}
		if _, ok := tok.(xml.StartElement); ok {
			sawRoot = true
		}
	}
	if !sawRoot {
		return &ParseError{Reason: "document has no root element"}
	}
	return nil
}

// ParsePubDate parses the textual publish date of an item.
func ParsePubDate(value string) (time.Time, error) {
	return time.Parse(PubDateLayout, strings.TrimSpace(value))
}

func normalizeItem(guid string, published time.Time, item *gofeed.Item) ItemRecord {
	enclosure := item.Enclosures[0]
	record := ItemRecord{
		GUID:          guid,
		Title:         strings.TrimSpace(item.Title),
		Description:   item.Description,
		PublishedAt:   published,
		EnclosureURL:  strings.TrimSpace(enclosure.URL),
		EnclosureType: enclosure.Type,
	}
	if length, err := strconv.ParseInt(strings.TrimSpace(enclosure.Length), 10, 64); err == nil && length > 0 {
		record.EnclosureLength = length
	}

	if ext := item.ITunesExt; ext != nil {
		if d := strings.TrimSpace(ext.Duration); d != "" {
			record.Duration = &d
		}
		if season, err := strconv.Atoi(strings.TrimSpace(ext.Season)); err == nil {
			record.Season = &season
		}
	}
	return record
}
