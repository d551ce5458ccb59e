package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sternrassler/starfan/internal/testutil"
)

// setupEnv points configuration at a temp file and the mock server.
func setupEnv(t *testing.T, mock *testutil.MockGitHub, content string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("STARFAN_CONFIG", path)
	t.Setenv("STARFAN_TOKEN", "")
	t.Setenv("STARFAN_PROGRESS_ENABLED", "false")
	if mock != nil {
		t.Setenv("STARFAN_GITHUB_BASE_URL", mock.URL())
	}
}

func TestRun_MissingToken(t *testing.T) {
	mock := testutil.NewMockGitHub()
	defer mock.Close()
	setupEnv(t, mock, "[search]\npage_count = 1\n")

	var stdout, stderr bytes.Buffer
	if code := run(&stdout, &stderr); code != exitSetup {
		t.Errorf("exit code = %d, want %d", code, exitSetup)
	}
	if !strings.Contains(stderr.String(), "token is required") {
		t.Errorf("stderr = %q, want config error", stderr.String())
	}
	if len(mock.SearchQueries()) != 0 || len(mock.StarRequests()) != 0 {
		t.Error("No request may be sent before the configuration is valid")
	}
}

func TestRun_MalformedToken(t *testing.T) {
	setupEnv(t, nil, "token = \"ghp bad\"\n")

	var stdout, stderr bytes.Buffer
	if code := run(&stdout, &stderr); code != exitSetup {
		t.Errorf("exit code = %d, want %d", code, exitSetup)
	}
}

func TestRun_FullBatch(t *testing.T) {
	mock := testutil.NewMockGitHub()
	defer mock.Close()
	mock.SetPage(1, testutil.Repos("alpha", "repo", 2)...)
	mock.SetPage(2, testutil.Repo{Owner: "beta", Name: "one"}, testutil.Repo{Name: "orphan"})

	setupEnv(t, mock, `
token = "ghp_cmdtest"

[search]
page_count = 2
page_size = 2
`)

	var stdout, stderr bytes.Buffer
	if code := run(&stdout, &stderr); code != exitOK {
		t.Fatalf("exit code = %d, want %d; stderr:\n%s", code, exitOK, stderr.String())
	}

	if got := len(mock.StarRequests()); got != 3 {
		t.Errorf("star requests = %d, want 3", got)
	}
	if !strings.Contains(stdout.String(), "3 dispatched, 3 succeeded, 0 failed") {
		t.Errorf("report = %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "owner missing, skipped") {
		t.Errorf("stderr missing owner diagnostic:\n%s", stderr.String())
	}
	if got := mock.LastRequestHeader().Get("Authorization"); got != "Bearer ghp_cmdtest" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestRun_RedisUnavailableIsNotFatal(t *testing.T) {
	mock := testutil.NewMockGitHub()
	defer mock.Close()
	mock.SetPage(1, testutil.Repos("alpha", "repo", 1)...)

	setupEnv(t, mock, `
token = "ghp_cmdtest"

[search]
page_count = 1
page_size = 1

[redis]
addr = "127.0.0.1:1"
`)

	var stdout, stderr bytes.Buffer
	if code := run(&stdout, &stderr); code != exitOK {
		t.Fatalf("exit code = %d, want %d; stderr:\n%s", code, exitOK, stderr.String())
	}
	if !strings.Contains(stderr.String(), "Redis unavailable") {
		t.Errorf("stderr missing Redis warning:\n%s", stderr.String())
	}
}
