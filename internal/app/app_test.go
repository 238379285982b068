package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podkeep/internal/config"
	"podkeep/internal/ingest"
	"podkeep/internal/progress"
	"podkeep/internal/theme"
)

const audio = "0123456789"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/show.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Example Show</title>
<item><title>Pilot</title><guid>ep-1</guid><pubDate>Mon, 01 Jan 2024 10:00:00 GMT</pubDate>
<enclosure url="%s/audio/1.mp3" length="10" type="audio/mpeg"/></item>
</channel></rss>`, server.URL)
	})
	mux.HandleFunc("/audio/1.mp3", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
		w.Write([]byte(audio))
	})
	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestApp(t *testing.T, fs afero.Fs) *App {
	t.Helper()
	cfg := config.Defaults()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "feeds.db")
	cfg.ColorTheme = theme.Plain
	cfg.LogPath = ""

	logger, _ := test.NewNullLogger()
	application, err := NewWithDependencies(cfg, logger, Dependencies{
		FeedClient:     http.DefaultClient,
		DownloadClient: http.DefaultClient,
		Fs:             fs,
		Reporter:       progress.Nop{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { application.Close() })
	return application
}

func writeList(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feeds.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
	return path
}

func TestRunBatchIngestsAndReports(t *testing.T) {
	server := newTestServer(t)
	fs := afero.NewMemMapFs()
	application := newTestApp(t, fs)

	list := writeList(t, "# podcasts", "", server.URL+"/show.xml", server.URL+"/missing.xml")
	var out bytes.Buffer
	results, err := application.RunBatch(context.Background(), list, &out)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.False(t, results[0].Failed())
	assert.Equal(t, 1, results[0].Downloaded)
	assert.True(t, results[1].Failed())
	assert.Equal(t, ingest.StageFetching, results[1].Stage)

	data, err := afero.ReadFile(fs, "Example Show/2024-01-01 Pilot.mp3")
	require.NoError(t, err)
	assert.Equal(t, audio, string(data))

	summary := out.String()
	assert.Contains(t, summary, "OK   Example Show")
	assert.Contains(t, summary, "FAIL "+server.URL+"/missing.xml")
	assert.Contains(t, summary, "2 feeds, 1 failed, 1 downloaded")

	var feeds bytes.Buffer
	require.NoError(t, application.Query().ListFeeds(context.Background(), &feeds))
	assert.Contains(t, feeds.String(), `"title":"Example Show"`)
}

func TestRunBatchSecondRunReusesFiles(t *testing.T) {
	server := newTestServer(t)
	application := newTestApp(t, afero.NewMemMapFs())
	list := writeList(t, server.URL+"/show.xml")

	_, err := application.RunBatch(context.Background(), list, &bytes.Buffer{})
	require.NoError(t, err)

	results, err := application.RunBatch(context.Background(), list, &bytes.Buffer{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].Downloaded)
	assert.Equal(t, 1, results[0].Reused)
}

func TestRunBatchMissingListFile(t *testing.T) {
	application := newTestApp(t, afero.NewMemMapFs())

	_, err := application.RunBatch(context.Background(), filepath.Join(t.TempDir(), "nope.txt"), &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestNewLogsSchemaVersion(t *testing.T) {
	cfg := config.Defaults()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "feeds.db")
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	application, err := NewWithDependencies(cfg, logger, Dependencies{Fs: afero.NewMemMapFs(), Reporter: progress.Nop{}})
	require.NoError(t, err)
	defer application.Close()

	var found bool
	for _, entry := range hook.AllEntries() {
		if entry.Message == "database ready" {
			found = true
			assert.EqualValues(t, 2, entry.Data["schema_version"])
			assert.Equal(t, false, entry.Data["dirty"])
		}
	}
	assert.True(t, found, "expected a database ready entry")
}

func TestNewUsesDownloadRootOnDisk(t *testing.T) {
	server := newTestServer(t)
	root := filepath.Join(t.TempDir(), "media")

	cfg := config.Defaults()
	cfg.DownloadRoot = root
	cfg.DatabasePath = filepath.Join(t.TempDir(), "feeds.db")
	cfg.ColorTheme = theme.Plain
	logger, _ := test.NewNullLogger()

	application, err := NewWithDependencies(cfg, logger, Dependencies{Reporter: progress.Nop{}})
	require.NoError(t, err)
	defer application.Close()

	_, err = application.RunBatch(context.Background(), writeList(t, server.URL+"/show.xml"), &bytes.Buffer{})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "Example Show", "2024-01-01 Pilot.mp3"))
	require.NoError(t, err)
	assert.Equal(t, audio, string(data))
}
