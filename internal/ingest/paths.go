package ingest

import (
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	untitledFeed   = "Untitled Feed"
	untitledItem   = "episode"
	episodeExt     = ".mp3"
	episodeDateFmt = "2006-01-02"
)

// Sanitize keeps letters, numbers, spaces and the characters . _ - and trims
// trailing whitespace. Names made only of dots are treated as empty.
func Sanitize(name string) string {
	var b strings.Builder
	for _, r := range norm.NFC.String(name) {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == ' ' || r == '.' || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	out := strings.TrimRightFunc(b.String(), unicode.IsSpace)
	if strings.Trim(out, ".") == "" {
		return ""
	}
	return out
}

// FeedDir is the directory, relative to the download root, holding a feed's
// episodes.
func FeedDir(title string) string {
	if dir := Sanitize(title); dir != "" {
		return dir
	}
	return untitledFeed
}

func SeasonDir(season int) string {
	return fmt.Sprintf("Season %d", season)
}

// EpisodePath builds <feed>/[Season n/]<YYYY-MM-DD> <title>.mp3. The date is
// formatted in the location the feed published it in.
func EpisodePath(feedDir string, season *int, published time.Time, title, guid string) string {
	dir := feedDir
	if season != nil {
		dir = path.Join(feedDir, SeasonDir(*season))
	}
	name := Sanitize(title)
	if name == "" {
		name = Sanitize(guid)
	}
	if name == "" {
		name = untitledItem
	}
	return path.Join(dir, published.Format(episodeDateFmt)+" "+name+episodeExt)
}
