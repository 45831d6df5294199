package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/taskfeed/taskfeed/internal/config"
)

func TestOpen_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "taskfeed.log")
	sink := Open(config.LogConfig{File: path, MaxSizeMB: 1, MaxBackups: 1})

	sink.Logger("api").Printf("since=%d returning %d events", 4, 2)
	if err := sink.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	line := string(data)
	if !strings.HasPrefix(line, "[api] ") {
		t.Errorf("line = %q, want [api] prefix", line)
	}
	if !strings.Contains(line, "since=4 returning 2 events") {
		t.Errorf("line = %q, want message", line)
	}
}

func TestOpen_StderrSink(t *testing.T) {
	sink := Open(config.LogConfig{})
	if sink.Writer() != os.Stderr {
		t.Error("empty File should log to stderr")
	}
	if err := sink.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}
