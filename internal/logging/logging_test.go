package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigureWritesConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "podkeep.log")

	logger, closeFn, err := Configure(&console, path, "debug")
	if err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	logger.WithField("feed", "file:///a.xml").Debug("fetching feed")
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if !strings.Contains(console.String(), `feed="file:///a.xml"`) {
		t.Errorf("console output = %q", console.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "fetching feed") {
		t.Errorf("log file = %q", data)
	}
}

func TestConfigureLevel(t *testing.T) {
	var console bytes.Buffer
	logger, _, err := Configure(&console, "", "")
	if err != nil {
		t.Fatalf("Configure() error = %v", err)
	}
	logger.Debug("hidden")
	if console.Len() != 0 {
		t.Errorf("debug entry written at default level: %q", console.String())
	}

	if _, _, err := Configure(&console, "", "chatty"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
