// Package config loads the org-gh configuration file and resolves the
// authentication token. The file is optional; every setting has a
// default, and ORG_GH_* environment variables override the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tftio/org-gh/internal/types"
)

// Config mirrors the configuration file schema. The yaml tags let the
// config command render the effective configuration back out in file
// form.
type Config struct {
	GitHub   GitHubConfig   `mapstructure:"github" yaml:"github"`
	Sync     SyncConfig     `mapstructure:"sync" yaml:"sync"`
	Baseline BaselineConfig `mapstructure:"baseline" yaml:"baseline"`
}

// GitHubConfig holds remote credentials and transport tuning.
type GitHubConfig struct {
	Token       string        `mapstructure:"token" yaml:"token,omitempty"`
	TokenHelper string        `mapstructure:"token_helper" yaml:"token_helper,omitempty"`
	APIURL      string        `mapstructure:"api_url" yaml:"api_url"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency"`
}

// SyncConfig holds the workflow-state mapping and sync behavior.
type SyncConfig struct {
	OpenKeywords   []string          `mapstructure:"open_keywords" yaml:"open_keywords"`
	ClosedKeywords []string          `mapstructure:"closed_keywords" yaml:"closed_keywords"`
	DefaultOpen    string            `mapstructure:"default_open" yaml:"default_open"`
	DefaultClosed  string            `mapstructure:"default_closed" yaml:"default_closed"`
	SubstateLabels map[string]string `mapstructure:"substate_labels" yaml:"substate_labels"`
	ClosedReasons  map[string]string `mapstructure:"closed_reasons" yaml:"closed_reasons"`
	LogDrawer      string            `mapstructure:"log_drawer" yaml:"log_drawer"`
	SyncDepth      int               `mapstructure:"sync_depth" yaml:"sync_depth"`
	Conflict       ConflictConfig    `mapstructure:"conflict" yaml:"conflict"`
}

// ConflictConfig holds per-field conflict policies. Only state is
// policy-selectable; the other fields have fixed merge rules.
type ConflictConfig struct {
	State string `mapstructure:"state" yaml:"state"`
}

// BaselineConfig controls where baseline files live.
type BaselineConfig struct {
	Location   string `mapstructure:"location" yaml:"location"` // sibling | central
	CentralDir string `mapstructure:"central_dir" yaml:"central_dir,omitempty"`
}

// Load reads the configuration. With path set, the file must exist;
// otherwise the default location is tried and silently skipped when
// absent.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("ORG_GH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, &types.ConfigError{Msg: fmt.Sprintf("reading %s: %v", path, err)}
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "org-gh"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, &types.ConfigError{Msg: "reading config: " + err.Error()}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &types.ConfigError{Msg: "parsing config: " + err.Error()}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("github.api_url", "https://api.github.com")
	v.SetDefault("github.timeout", "30s")
	v.SetDefault("github.max_attempts", 4)
	v.SetDefault("github.concurrency", 4)
	v.SetDefault("sync.open_keywords", []string{"TODO", "NEXT", "WAIT"})
	v.SetDefault("sync.closed_keywords", []string{"DONE", "CANCELLED"})
	v.SetDefault("sync.default_open", "TODO")
	v.SetDefault("sync.default_closed", "DONE")
	v.SetDefault("sync.substate_labels", map[string]string{
		"NEXT": "in-progress",
		"WAIT": "blocked",
	})
	v.SetDefault("sync.closed_reasons", map[string]string{
		"DONE":      types.ReasonCompleted,
		"CANCELLED": types.ReasonNotPlanned,
	})
	v.SetDefault("sync.log_drawer", "LOGBOOK")
	v.SetDefault("sync.sync_depth", 1)
	v.SetDefault("sync.conflict.state", "prompt")
	v.SetDefault("baseline.location", "sibling")
}

func (c *Config) validate() error {
	seen := make(map[string]string)
	for _, kw := range c.Sync.OpenKeywords {
		seen[kw] = "open"
	}
	for _, kw := range c.Sync.ClosedKeywords {
		if seen[kw] == "open" {
			return &types.ConfigError{Msg: fmt.Sprintf("keyword %q is configured as both open and closed", kw)}
		}
	}
	if !contains(c.Sync.OpenKeywords, c.Sync.DefaultOpen) {
		return &types.ConfigError{Msg: fmt.Sprintf("default open keyword %q is not in open_keywords", c.Sync.DefaultOpen)}
	}
	if !contains(c.Sync.ClosedKeywords, c.Sync.DefaultClosed) {
		return &types.ConfigError{Msg: fmt.Sprintf("default closed keyword %q is not in closed_keywords", c.Sync.DefaultClosed)}
	}
	switch c.Sync.Conflict.State {
	case "prompt", "org-wins", "gh-wins":
	default:
		return &types.ConfigError{Msg: fmt.Sprintf("unknown state conflict policy %q", c.Sync.Conflict.State)}
	}
	switch c.Baseline.Location {
	case "sibling":
	case "central":
		if c.Baseline.CentralDir == "" {
			return &types.ConfigError{Msg: "baseline.location is central but baseline.central_dir is unset"}
		}
	default:
		return &types.ConfigError{Msg: fmt.Sprintf("unknown baseline location %q", c.Baseline.Location)}
	}
	return nil
}

// Workflow builds the keyword mapping the reconciler consumes. Map
// keys are upper-cased: keywords are written upper case in the outline,
// and viper lower-cases keys read from the file.
func (c *Config) Workflow() *types.WorkflowMap {
	return &types.WorkflowMap{
		Open:          c.Sync.OpenKeywords,
		Closed:        c.Sync.ClosedKeywords,
		DefaultOpen:   c.Sync.DefaultOpen,
		DefaultClosed: c.Sync.DefaultClosed,
		Substate:      upperKeys(c.Sync.SubstateLabels),
		ClosedReasons: upperKeys(c.Sync.ClosedReasons),
	}
}

func upperKeys(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToUpper(k)] = v
	}
	return out
}

// Keywords returns every recognized workflow keyword, open first.
func (c *Config) Keywords() []string {
	out := append([]string(nil), c.Sync.OpenKeywords...)
	return append(out, c.Sync.ClosedKeywords...)
}

// CentralDir returns the central baseline directory, or "" for sibling
// layout.
func (c *Config) CentralDir() string {
	if c.Baseline.Location == "central" {
		return c.Baseline.CentralDir
	}
	return ""
}

// ResolveToken finds the authentication token, in order: the explicit
// flag, the conventional environment variables, the configured
// credential helper command, and finally the config file value.
func (c *Config) ResolveToken(flagToken string) (string, error) {
	if flagToken != "" {
		return flagToken, nil
	}
	for _, env := range []string{"GITHUB_TOKEN", "GH_TOKEN"} {
		if t := os.Getenv(env); t != "" {
			return t, nil
		}
	}
	if c.GitHub.TokenHelper != "" {
		out, err := exec.Command("sh", "-c", c.GitHub.TokenHelper).Output() // #nosec G204 - helper command comes from the user's own config
		if err != nil {
			return "", &types.ConfigError{Msg: fmt.Sprintf("token helper %q failed: %v", c.GitHub.TokenHelper, err)}
		}
		if t := strings.TrimSpace(string(out)); t != "" {
			return t, nil
		}
	}
	if c.GitHub.Token != "" {
		return c.GitHub.Token, nil
	}
	return "", &types.ConfigError{Msg: "no GitHub token: pass --token, set GITHUB_TOKEN, or configure github.token"}
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
