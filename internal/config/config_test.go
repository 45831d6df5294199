package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := NewLoader(filepath.Join(t.TempDir(), "missing.toml")).Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.PageSize != 200 {
		t.Errorf("Server.PageSize = %d, want 200", cfg.Server.PageSize)
	}
	if cfg.Client.PollInterval != 2*time.Second {
		t.Errorf("Client.PollInterval = %s, want 2s", cfg.Client.PollInterval)
	}
	if cfg.Client.RequestTimeout != 10*time.Second {
		t.Errorf("Client.RequestTimeout = %s, want 10s", cfg.Client.RequestTimeout)
	}
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskfeed.toml")
	content := `
[server]
port = 9090

[client]
poll_interval = "500ms"
user_id = 7
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	t.Setenv("TASKFEED_SERVER_PAGE_SIZE", "50")

	l := NewLoader(path)
	cfg, err := l.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.PageSize != 50 {
		t.Errorf("Server.PageSize = %d, want 50 from env", cfg.Server.PageSize)
	}
	if cfg.Client.PollInterval != 500*time.Millisecond {
		t.Errorf("Client.PollInterval = %s, want 500ms", cfg.Client.PollInterval)
	}
	if cfg.Client.UserID != 7 {
		t.Errorf("Client.UserID = %d, want 7", cfg.Client.UserID)
	}
	if l.ConfigFileUsed() != path {
		t.Errorf("ConfigFileUsed() = %q, want %q", l.ConfigFileUsed(), path)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"page size too large", "[server]\npage_size = 5000\n", "server.page_size"},
		{"poll interval too short", "[client]\npoll_interval = \"10ms\"\n", "client.poll_interval"},
		{"negative follow ups", "[client]\nmax_follow_ups = -1\n", "client.max_follow_ups"},
		{"bad port", "[server]\nport = 70000\n", "server.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "taskfeed.toml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("WriteFile() failed: %v", err)
			}
			_, err := NewLoader(path).Load()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() err = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestWriteDefault_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "taskfeed.toml")
	if err := WriteDefault(path, false); err != nil {
		t.Fatalf("WriteDefault() failed: %v", err)
	}
	if err := WriteDefault(path, false); err == nil {
		t.Error("second WriteDefault() without force succeeded, want error")
	}
	if err := WriteDefault(path, true); err != nil {
		t.Errorf("WriteDefault(force) failed: %v", err)
	}

	cfg, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Client.PollInterval != 2*time.Second || cfg.Server.PageSize != 200 {
		t.Errorf("round-tripped config = %+v", cfg)
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskfeed.toml")
	if err := os.WriteFile(path, []byte("[client]\npoll_interval = \"2s\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	l := NewLoader(path)
	if _, err := l.Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	reloaded := make(chan time.Duration, 8)
	if err := l.Watch(func(cfg *Config) { reloaded <- cfg.Client.PollInterval }, nil); err != nil {
		t.Fatalf("Watch() failed: %v", err)
	}

	// Give the watcher a moment to register.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("[client]\npoll_interval = \"750ms\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case d := <-reloaded:
			if d == 750*time.Millisecond {
				return
			}
		case <-deadline:
			t.Fatal("config change not observed")
		}
	}
}

func TestWatch_RequiresFile(t *testing.T) {
	l := NewLoader(filepath.Join(t.TempDir(), "missing.toml"))
	if _, err := l.Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if err := l.Watch(func(*Config) {}, nil); err == nil {
		t.Error("Watch() without a file succeeded, want error")
	}
}
