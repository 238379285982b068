package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podkeep/internal/config"
	"podkeep/internal/storage"
	"podkeep/internal/theme"
)

type cliTestEnv struct {
	configPath string
	dbPath     string
	mediaDir   string
	baseDir    string
	server     *httptest.Server
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	base := t.TempDir()

	env := &cliTestEnv{
		configPath: filepath.Join(base, "config.yaml"),
		dbPath:     filepath.Join(base, "feeds.db"),
		mediaDir:   filepath.Join(base, "media"),
		baseDir:    base,
	}

	cfg := config.Defaults()
	cfg.DownloadRoot = env.mediaDir
	cfg.DatabasePath = env.dbPath
	cfg.LogPath = filepath.Join(base, "podkeep.log")
	cfg.ColorTheme = theme.Plain
	require.NoError(t, config.Save(env.configPath, cfg))

	mux := http.NewServeMux()
	mux.HandleFunc("/show.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Example Show</title>
<item><title>Pilot</title><description>The first one</description><guid>ep-1</guid>
<pubDate>Mon, 01 Jan 2024 10:00:00 GMT</pubDate>
<enclosure url="%s/audio/1.mp3" length="5" type="audio/mpeg"/></item>
</channel></rss>`, env.server.URL)
	})
	mux.HandleFunc("/audio/1.mp3", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(5))
		w.Write([]byte("audio"))
	})
	env.server = httptest.NewServer(mux)
	t.Cleanup(env.server.Close)
	return env
}

func (e *cliTestEnv) writeList(t *testing.T, refs ...string) string {
	t.Helper()
	path := filepath.Join(e.baseDir, "feeds.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(refs, "\n")+"\n"), 0o600))
	return path
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestIngestThenQuery(t *testing.T) {
	env := setupCLITestEnv(t)
	list := env.writeList(t, "# shows", env.server.URL+"/show.xml")

	out, _, err := env.run(t, "ingest", list)
	require.NoError(t, err)
	assert.Contains(t, out, "OK   Example Show")

	data, err := os.ReadFile(filepath.Join(env.mediaDir, "Example Show", "2024-01-01 Pilot.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "audio", string(data))

	out, _, err = env.run(t, "feed", "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"title":"Example Show"`)
	assert.Contains(t, lines[0], `"feed_id":1`)

	out, _, err = env.run(t, "feed", "get", "1")
	require.NoError(t, err)
	assert.Contains(t, out, `"Pilot"`)

	out, _, err = env.run(t, "item", "list", "--feed-id", "1", "--description", "FIRST")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 1)
	assert.Contains(t, out, `"download_path":"Example Show/2024-01-01 Pilot.mp3"`)

	out, _, err = env.run(t, "item", "list", "--title", "nothing like this")
	require.NoError(t, err)
	assert.Empty(t, out)

	out, _, err = env.run(t, "item", "get", "1")
	require.NoError(t, err)
	assert.Contains(t, out, `"guid":"ep-1"`)

	out, _, err = env.run(t, "raw", "get", "1")
	require.NoError(t, err)
	assert.Contains(t, out, `"feed_id":1`)
}

func TestUnknownIDsPrintNothing(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := env.run(t, "feed", "get", "42")
	require.NoError(t, err)
	assert.Empty(t, out)

	out, _, err = env.run(t, "raw", "get", "42")
	require.NoError(t, err)
	assert.Empty(t, out)

	out, _, err = env.run(t, "item", "get", "42")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestInvalidIDIsRejected(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := env.run(t, "feed", "get", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid id "abc"`)
}

func TestIngestReportsFailedFeeds(t *testing.T) {
	env := setupCLITestEnv(t)
	list := env.writeList(t, env.server.URL+"/show.xml", env.server.URL+"/gone.xml")

	out, _, err := env.run(t, "ingest", list)
	require.Error(t, err)
	assert.Equal(t, "1 of 2 feeds failed", err.Error())
	assert.Contains(t, out, "OK   Example Show")
	assert.Contains(t, out, "FAIL "+env.server.URL+"/gone.xml")
}

func TestIngestRefusesConcurrentRun(t *testing.T) {
	env := setupCLITestEnv(t)
	list := env.writeList(t, env.server.URL+"/show.xml")

	lock, err := storage.Lock(env.dbPath)
	require.NoError(t, err)
	defer lock.Unlock()

	_, _, err = env.run(t, "ingest", list)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "another ingestion run is using "+env.dbPath)

	_, err = os.Stat(env.dbPath)
	assert.True(t, os.IsNotExist(err), "refused run must not create or migrate the database")
}

func TestWatchRefusesConcurrentRun(t *testing.T) {
	env := setupCLITestEnv(t)
	list := env.writeList(t, env.server.URL+"/show.xml")

	lock, err := storage.Lock(env.dbPath)
	require.NoError(t, err)
	defer lock.Unlock()

	_, _, err = env.run(t, "watch", list)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "another ingestion run is using")
	_, err = os.Stat(env.dbPath)
	assert.True(t, os.IsNotExist(err))
}

func TestDatabaseFlagOverridesConfig(t *testing.T) {
	env := setupCLITestEnv(t)
	list := env.writeList(t, env.server.URL+"/show.xml")
	other := filepath.Join(env.baseDir, "other.db")

	_, _, err := env.run(t, "--db", other, "ingest", list)
	require.NoError(t, err)

	out, _, err := env.run(t, "-d", other, "feed", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Example Show")

	out, _, err = env.run(t, "feed", "list")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestExportOPML(t *testing.T) {
	env := setupCLITestEnv(t)
	list := env.writeList(t, env.server.URL+"/show.xml")
	_, _, err := env.run(t, "ingest", list)
	require.NoError(t, err)

	target := filepath.Join(env.baseDir, "feeds.opml")
	_, _, err = env.run(t, "feed", "export-opml", target)
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), `xmlUrl="`+env.server.URL+`/show.xml"`)

	// The exported file is itself a valid feed list.
	_, _, err = env.run(t, "ingest", target)
	require.NoError(t, err)
}

func TestWatchRejectsInvalidSchedule(t *testing.T) {
	env := setupCLITestEnv(t)
	list := env.writeList(t, env.server.URL+"/show.xml")

	_, _, err := env.run(t, "watch", list, "--schedule", "not a schedule")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schedule")
}

func TestWatchRunsImmediatelyAndStopsOnCancel(t *testing.T) {
	env := setupCLITestEnv(t)
	list := env.writeList(t, env.server.URL+"/show.xml")

	ctx, cancel := context.WithCancel(context.Background())
	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", env.configPath, "watch", list, "--schedule", "@every 1h"})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(env.mediaDir, "Example Show", "2024-01-01 Pilot.mp3"))
		return err == nil
	}, 10*time.Second, 20*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("watch did not stop after cancellation")
	}
}

func TestConfigPathSkipsLoading(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"--config", missing, "config", "path"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, missing+"\n", stdout.String())
	_, err := os.Stat(missing)
	assert.True(t, os.IsNotExist(err))
}

func TestConfigShowPrintsOverrides(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := env.run(t, "--verbose", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "log_level: debug")
	assert.Contains(t, out, "download_root: "+env.mediaDir)
}
