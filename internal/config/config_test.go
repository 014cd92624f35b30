package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tftio/org-gh/internal/types"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir()) // hermetic: ignore any real user config
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.GitHub.APIURL != "https://api.github.com" {
		t.Errorf("api_url = %q", cfg.GitHub.APIURL)
	}
	if cfg.GitHub.MaxAttempts != 4 || cfg.GitHub.Concurrency != 4 {
		t.Errorf("transport defaults = %+v", cfg.GitHub)
	}
	if cfg.Sync.DefaultOpen != "TODO" || cfg.Sync.DefaultClosed != "DONE" {
		t.Errorf("keyword defaults = %+v", cfg.Sync)
	}
	if cfg.Sync.LogDrawer != "LOGBOOK" || cfg.Sync.SyncDepth != 1 {
		t.Errorf("outline defaults = %+v", cfg.Sync)
	}
	if cfg.Sync.Conflict.State != "prompt" {
		t.Errorf("conflict policy = %q", cfg.Sync.Conflict.State)
	}
	wf := cfg.Workflow()
	if wf.KeywordFor(types.StateOpen, "", []string{"in-progress"}) != "NEXT" {
		t.Error("default substate mapping broken")
	}
	if wf.ReasonOf("CANCELLED") != types.ReasonNotPlanned {
		t.Error("default closed reason mapping broken")
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
github:
  timeout: 5s
  max_attempts: 2
sync:
  open_keywords: [OPEN, DOING]
  closed_keywords: [SHIPPED]
  default_open: OPEN
  default_closed: SHIPPED
  substate_labels:
    DOING: wip
baseline:
  location: central
  central_dir: /tmp/org-gh
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.GitHub.MaxAttempts != 2 {
		t.Errorf("max_attempts = %d", cfg.GitHub.MaxAttempts)
	}
	if got := cfg.Keywords(); len(got) != 3 || got[0] != "OPEN" || got[2] != "SHIPPED" {
		t.Errorf("keywords = %v", got)
	}
	if cfg.CentralDir() != "/tmp/org-gh" {
		t.Errorf("central dir = %q", cfg.CentralDir())
	}
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	var cerr *types.ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want ConfigError", err)
	}
}

func TestValidateRejectsOverlappingKeywords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
sync:
  open_keywords: [TODO, DONE]
  closed_keywords: [DONE]
  default_open: TODO
  default_closed: DONE
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	var cerr *types.ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want ConfigError", err)
	}
}

func TestValidateRejectsUnknownDefaultKeyword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
sync:
  default_open: NOPE
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	var cerr *types.ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want ConfigError", err)
	}
}

func TestResolveTokenOrder(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GH_TOKEN", "")
	cfg := &Config{}
	cfg.GitHub.Token = "from-config"

	got, err := cfg.ResolveToken("from-flag")
	if err != nil || got != "from-flag" {
		t.Errorf("flag token = %q, %v", got, err)
	}

	t.Setenv("GITHUB_TOKEN", "from-env")
	got, err = cfg.ResolveToken("")
	if err != nil || got != "from-env" {
		t.Errorf("env token = %q, %v", got, err)
	}

	t.Setenv("GITHUB_TOKEN", "")
	got, err = cfg.ResolveToken("")
	if err != nil || got != "from-config" {
		t.Errorf("config token = %q, %v", got, err)
	}
}

func TestResolveTokenHelper(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GH_TOKEN", "")
	cfg := &Config{}
	cfg.GitHub.TokenHelper = "echo from-helper"

	got, err := cfg.ResolveToken("")
	if err != nil || got != "from-helper" {
		t.Errorf("helper token = %q, %v", got, err)
	}
}

func TestResolveTokenMissingIsConfigError(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GH_TOKEN", "")
	_, err := (&Config{}).ResolveToken("")
	var cerr *types.ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want ConfigError", err)
	}
}
