// Package config loads labelr's configuration from an ini file with
// environment overrides for secrets.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/inovacc/labelr/internal/application"
	"gopkg.in/ini.v1"
)

// Environment variables that override file values
const (
	EnvAddr           = "LABELR_ADDR"
	EnvDatabasePath   = "LABELR_DATABASE_PATH"
	EnvWebhookSecret  = "LABELR_WEBHOOK_SECRET"
	EnvClientSecret   = "LABELR_GITHUB_CLIENT_SECRET"
	EnvPrivateKeyPath = "LABELR_GITHUB_PRIVATE_KEY_PATH"
	EnvGitHubToken    = "LABELR_GITHUB_TOKEN"
	EnvOpenReqBaseURL = "LABELR_OPENREQ_URL"
	EnvSlackWebhook   = "LABELR_SLACK_WEBHOOK_URL"
)

// DefaultConfigName is the config file name inside the application directory
const DefaultConfigName = "labelr.ini"

const (
	defaultDatabaseName = "labelr.db"
	defaultSessionsName = "sessions.bolt"
)

// Config is the complete application configuration
type Config struct {
	Server    ServerConfig    `ini:"server"`
	Database  DatabaseConfig  `ini:"database"`
	GitHub    GitHubConfig    `ini:"github"`
	OpenReq   OpenReqConfig   `ini:"openreq"`
	Reconcile ReconcileConfig `ini:"reconcile"`
	Runner    RunnerConfig    `ini:"runner"`
	Notify    NotifyConfig    `ini:"notify"`
	Log       LogConfig       `ini:"log"`
}

type ServerConfig struct {
	Addr string `ini:"addr"`

	// BaseURL is the externally reachable URL, used for OAuth redirects
	BaseURL string `ini:"base_url"`

	SessionPath   string        `ini:"session_path"`
	SessionTTL    time.Duration `ini:"session_ttl"`
	WebhookSecret string        `ini:"webhook_secret"`
}

type DatabaseConfig struct {
	Path string `ini:"path"`
}

type GitHubConfig struct {
	AppID          int64  `ini:"app_id"`
	ClientID       string `ini:"client_id"`
	ClientSecret   string `ini:"client_secret"`
	PrivateKeyPath string `ini:"private_key_path"`

	// PersonalAccessToken raises the rate limit of unauthenticated reads
	PersonalAccessToken string `ini:"personal_access_token"`

	// APIURL overrides the REST endpoint (GitHub Enterprise)
	APIURL string `ini:"api_url"`

	// MaxPages bounds issue pagination, 0 means unbounded
	MaxPages int `ini:"max_pages"`
}

type OpenReqConfig struct {
	BaseURL string        `ini:"base_url"`
	Timeout time.Duration `ini:"timeout"`
}

type ReconcileConfig struct {
	TrainingTimeout       time.Duration `ini:"training_timeout"`
	ClassificationTimeout time.Duration `ini:"classification_timeout"`
	ConfidenceThreshold   float64       `ini:"confidence_threshold"`
}

type RunnerConfig struct {
	Workers   int `ini:"workers"`
	QueueSize int `ini:"queue_size"`

	// RunTimeout bounds a single run, 0 disables the deadline
	RunTimeout time.Duration `ini:"run_timeout"`
}

// NotifyConfig announces finished runs; an empty webhook disables it
type NotifyConfig struct {
	SlackWebhookURL string `ini:"slack_webhook_url"`
	SlackChannel    string `ini:"slack_channel"`
	OnlyFailures    bool   `ini:"only_failures"`
}

type LogConfig struct {
	Level  string `ini:"level"`
	Format string `ini:"format"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:       ":5000",
			BaseURL:    "http://localhost:5000",
			SessionTTL: 7 * 24 * time.Hour,
		},
		OpenReq: OpenReqConfig{
			BaseURL: "https://api.openreq.eu",
			Timeout: 5 * time.Minute,
		},
		Reconcile: ReconcileConfig{
			TrainingTimeout:       time.Hour,
			ClassificationTimeout: time.Hour,
			ConfidenceThreshold:   10,
		},
		Runner: RunnerConfig{
			Workers:    4,
			QueueSize:  64,
			RunTimeout: time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath returns the default configuration file location
func DefaultPath() (string, error) {
	return application.DataPath(DefaultConfigName)
}

// Load reads the configuration at path on top of the defaults.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		file, err := ini.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		if err := file.MapTo(cfg); err != nil {
			return nil, fmt.Errorf("failed to map config file: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.resolvePaths(filepath.Dir(path)); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	overrides := []struct {
		env    string
		target *string
	}{
		{EnvAddr, &c.Server.Addr},
		{EnvDatabasePath, &c.Database.Path},
		{EnvWebhookSecret, &c.Server.WebhookSecret},
		{EnvClientSecret, &c.GitHub.ClientSecret},
		{EnvPrivateKeyPath, &c.GitHub.PrivateKeyPath},
		{EnvGitHubToken, &c.GitHub.PersonalAccessToken},
		{EnvOpenReqBaseURL, &c.OpenReq.BaseURL},
		{EnvSlackWebhook, &c.Notify.SlackWebhookURL},
	}

	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}
}

// resolvePaths fills empty data paths and makes relative ones relative to dir
func (c *Config) resolvePaths(dir string) error {
	paths := []struct {
		target   *string
		fallback string
	}{
		{&c.Database.Path, defaultDatabaseName},
		{&c.Server.SessionPath, defaultSessionsName},
	}

	for _, p := range paths {
		if *p.target == "" {
			def, err := application.DataPath(p.fallback)
			if err != nil {
				return err
			}

			*p.target = def

			continue
		}

		if !filepath.IsAbs(*p.target) {
			*p.target = filepath.Join(dir, *p.target)
		}
	}

	return nil
}

// Validate checks values that would make the reconciler or runner misbehave
func (c *Config) Validate() error {
	var errs []error

	if c.Reconcile.TrainingTimeout <= 0 {
		errs = append(errs, errors.New("reconcile.training_timeout must be positive"))
	}

	if c.Reconcile.ClassificationTimeout <= 0 {
		errs = append(errs, errors.New("reconcile.classification_timeout must be positive"))
	}

	if c.Reconcile.ConfidenceThreshold < 0 || c.Reconcile.ConfidenceThreshold > 100 {
		errs = append(errs, errors.New("reconcile.confidence_threshold must be within [0, 100]"))
	}

	if c.Runner.Workers < 1 {
		errs = append(errs, errors.New("runner.workers must be at least 1"))
	}

	if c.Runner.QueueSize < 1 {
		errs = append(errs, errors.New("runner.queue_size must be at least 1"))
	}

	if c.OpenReq.BaseURL == "" {
		errs = append(errs, errors.New("openreq.base_url is required"))
	}

	return errors.Join(errs...)
}

// Save writes the configuration to path in ini format
func Save(cfg *Config, path string) error {
	file := ini.Empty()
	if err := file.ReflectFrom(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	// durations are written in their human form rather than nanoseconds
	durations := []struct {
		section, key string
		value        time.Duration
	}{
		{"server", "session_ttl", cfg.Server.SessionTTL},
		{"openreq", "timeout", cfg.OpenReq.Timeout},
		{"reconcile", "training_timeout", cfg.Reconcile.TrainingTimeout},
		{"reconcile", "classification_timeout", cfg.Reconcile.ClassificationTimeout},
		{"runner", "run_timeout", cfg.Runner.RunTimeout},
	}

	for _, d := range durations {
		file.Section(d.section).Key(d.key).SetValue(d.value.String())
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := file.SaveTo(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return os.Chmod(path, 0o600)
}

// CreateDefault writes the default configuration if path does not exist yet
func CreateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	return Save(Default(), path)
}

// Masked returns a copy with secrets replaced, suitable for display
func (c *Config) Masked() *Config {
	out := *c
	out.Server.WebhookSecret = mask(c.Server.WebhookSecret)
	out.GitHub.ClientSecret = mask(c.GitHub.ClientSecret)
	out.GitHub.PersonalAccessToken = mask(c.GitHub.PersonalAccessToken)
	out.Notify.SlackWebhookURL = mask(c.Notify.SlackWebhookURL)

	return &out
}

func mask(s string) string {
	if s == "" {
		return ""
	}

	return "********"
}
