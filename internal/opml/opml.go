package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"podkeep/internal/domain"
)

type document struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    head     `xml:"head"`
	Body    body     `xml:"body"`
}

type head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

type body struct {
	Outlines []outline `xml:"outline"`
}

// outline may be a feed (xmlUrl set) or a folder of nested outlines.
type outline struct {
	Type     string    `xml:"type,attr,omitempty"`
	Text     string    `xml:"text,attr"`
	Title    string    `xml:"title,attr,omitempty"`
	XMLURL   string    `xml:"xmlUrl,attr,omitempty"`
	Outlines []outline `xml:"outline"`
}

// Export writes feeds as an OPML 2.0 document.
func Export(w io.Writer, feeds []domain.FeedExport, created time.Time) error {
	doc := document{
		Version: "2.0",
		Head: head{
			Title:       "podkeep feeds",
			DateCreated: created.UTC().Format(time.RFC1123Z),
		},
		Body: body{Outlines: make([]outline, 0, len(feeds))},
	}
	for _, feed := range feeds {
		doc.Body.Outlines = append(doc.Body.Outlines, outline{
			Type:   "rss",
			Text:   feed.Title,
			Title:  feed.Title,
			XMLURL: feed.FeedURL,
		})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("encode OPML: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// Import returns every outline carrying an xmlUrl, folders flattened, in
// document order.
func Import(r io.Reader) ([]domain.FeedExport, error) {
	var doc document
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode OPML: %w", err)
	}

	var feeds []domain.FeedExport
	var walk func([]outline)
	walk = func(outlines []outline) {
		for _, o := range outlines {
			if url := strings.TrimSpace(o.XMLURL); url != "" {
				title := o.Title
				if title == "" {
					title = o.Text
				}
				feeds = append(feeds, domain.FeedExport{Title: title, FeedURL: url})
			}
			walk(o.Outlines)
		}
	}
	walk(doc.Body.Outlines)
	return feeds, nil
}
