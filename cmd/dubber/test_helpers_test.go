package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeTestConfig lays down a config file whose paths live under a
// per-test temp directory and returns its path.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	content := `
[paths]
data_dir = "` + filepath.Join(base, "data") + `"
audio_dir = "` + filepath.Join(base, "audio") + `"
log_dir = "` + filepath.Join(base, "logs") + `"

[tts]
api_key = "test-key"
group_id = "test-group"

[translation]
api_key = "test-key"
request_delay_seconds = 0
`
	path := filepath.Join(base, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func writeTestSRT(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "episode.srt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write srt: %v", err)
	}
	return path
}

// runCLI executes the root command in-process and returns captured output.
func runCLI(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func requireContains(t *testing.T, output, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, output)
	}
}
